package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/hotissueworker/internal/model"
)

// Listing is one row of a board's listing page
type Listing struct {
	Post model.RawPost
	// PostedAt is the listing date; zero when the board does not show one
	PostedAt time.Time
	Views    int
}

// Detail is what a post's own page adds to its listing row
type Detail struct {
	Content  string
	Images   []string
	PostedAt time.Time
	Writer   string
}

// ListingSource is a per-site adapter. Pages are numbered from 1.
type ListingSource interface {
	// FetchPage returns the listing rows of a page
	FetchPage(ctx context.Context, page int) ([]Listing, error)

	// FetchDetail loads the post page of a listing
	FetchDetail(ctx context.Context, listing Listing) (Detail, error)
}

// Crawler is a named adapter bound to a destination domain
type Crawler interface {
	ListingSource

	// GetName returns the crawler's name for logging, CSV naming and rate limit keys
	GetName() string

	// GetDomain returns the table family the crawler feeds
	GetDomain() model.Domain

	// Tune adjusts the engine defaults for this site
	Tune(base EngineConfig) EngineConfig
}

// IDExtractorFunc defines the function signature for extracting an ID from a URL
type IDExtractorFunc func(string) (string, error)

// CustomElementHandlerFunc defines a function to customize extraction logic for elements
type CustomElementHandlerFunc func(*goquery.Selection) string

// ElementRemoval defines elements to remove from a selection before extracting text
type ElementRemoval struct {
	Selector    string // Selector to find elements to remove
	ApplyToPath string // The path to apply this to (e.g., "title", "content")
}

// Selectors contains CSS selectors for the listing and detail pages
type Selectors struct {
	// Listing page
	Row       string
	RowFilter string // rows matching this selector (notices, ads) are skipped
	Title     string
	Link      string
	Category  string
	Writer    string
	Date      string
	Views     string
	Recommend string

	// Detail page
	Content      string
	Images       string
	DetailDate   string
	DetailWriter string
}

// CustomHandlers contains custom handlers for element processing
type CustomHandlers struct {
	// Map paths to custom handlers
	ElementHandlers map[string]CustomElementHandlerFunc
}

// ElementTransformers contains configurations for transforming elements
type ElementTransformers struct {
	// Elements to remove from selections
	RemoveElements []ElementRemoval
}

// SiteConfig describes one board
type SiteConfig struct {
	Name      string // site_board, e.g. "fmkorea_humor"
	Domain    model.Domain
	Community string // community code, e.g. "11" or "11p"

	// ListURL is a format string taking the page number. FirstPageURL, when
	// set, replaces it for page 1. PageURLFunc overrides both.
	ListURL      string
	FirstPageURL string
	PageURLFunc  func(page int) string
	BaseURL      string

	Selectors           Selectors
	IDExtractor         IDExtractorFunc
	CustomHandlers      CustomHandlers
	ElementTransformers ElementTransformers

	// Crawl tuning; zero values keep the engine defaults
	MinViews          int
	MaxPages          int
	PageMissThreshold int
	VerifyDetailDate  bool
}
