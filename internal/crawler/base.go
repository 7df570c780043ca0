package crawler

import (
	"context"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/hotissueworker/helpers"
	apperrors "sjsage522/hotissueworker/pkg/errors"
	"sjsage522/hotissueworker/services/cache"
)

// FetchFunc fetches a page and returns its UTF-8 body
type FetchFunc func(ctx context.Context, url, referer string) (io.Reader, error)

// BaseCrawler provides common functionality for all crawlers
type BaseCrawler struct {
	Name     string
	BaseURL  string
	Guard    *cache.RateLimitGuard
	Fetch    FetchFunc
	Location *time.Location
	Now      func() time.Time
}

// fetchWithCache fetches a URL unless the site is inside a rate limit block,
// and starts a block when the site answers with a rate limit status. The
// block lasts as long as the site's Retry-After, or the guard default.
func (c *BaseCrawler) fetchWithCache(ctx context.Context, url, referer string) (io.Reader, error) {
	if c.Guard.Blocked(c.Name) {
		return nil, apperrors.New(apperrors.ErrorTypeRateLimit, c.Name, "blocked, not sending requests", nil)
	}

	fetch := c.Fetch
	if fetch == nil {
		fetch = helpers.FetchWithRandomHeaders
	}

	body, err := fetch(ctx, url, referer)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeRateLimit) {
			if blockErr := c.Guard.Block(c.Name, apperrors.RetryAfter(err)); blockErr != nil {
				return nil, apperrors.NewCache(c.Name, "store rate limit block", blockErr)
			}
		}
		return nil, err
	}
	return body, nil
}

// createDocument creates a goquery document from a reader
func (c *BaseCrawler) createDocument(reader io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, apperrors.NewParsing(c.Name, "parse HTML", err)
	}
	return doc, nil
}

// ResolveURL makes a link found on the site absolute
func (c *BaseCrawler) ResolveURL(href string) string {
	return helpers.ResolveURL(c.BaseURL, href)
}

// resolveDate resolves a date shown on the site
func (c *BaseCrawler) resolveDate(s string) (time.Time, bool) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return ResolveDate(s, now(), loc)
}

// GetName returns the crawler's name
func (c *BaseCrawler) GetName() string {
	return c.Name
}
