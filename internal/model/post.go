package model

import (
	"fmt"
	"time"
)

// RegDateLayout is the storage and CSV rendering of a post's registration date
const RegDateLayout = "2006-01-02 15:04:05"

// Domain selects the destination table of a crawl
type Domain string

const (
	// DomainHot is the hot issue boards (hot_site)
	DomainHot Domain = "hot"
	// DomainPolitics is the politics boards (current_site)
	DomainPolitics Domain = "politics"
)

// ParseDomain converts a flag or config value into a Domain
func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainHot, DomainPolitics:
		return Domain(s), nil
	}
	return "", fmt.Errorf("unknown domain %q", s)
}

// RawPost is a scraped post as the adapter saw it. Everything is text except
// Images, which may be nil, a []string, a pre-serialized JSON string, or
// anything else an adapter (or a CSV reader) produced.
type RawPost struct {
	PostID    string
	Community string
	Category  string
	Title     string
	Link      string
	Writer    string
	Date      string
	Views     string
	Recommend string
	Content   string
	Images    any
}

// CanonicalPost is a normalized post ready for reconciliation
type CanonicalPost struct {
	PostID    string
	Community string
	Category  string
	Title     string
	Link      string
	Writer    string
	Content   string
	RegDate   time.Time
	Views     int
	Recommend int
	Images    string
}

// RegDateString renders RegDate the way it is compared and stored
func (p CanonicalPost) RegDateString() string {
	return p.RegDate.Format(RegDateLayout)
}

// Key returns the dedup key of the post
func (p CanonicalPost) Key() Key {
	if p.PostID != "" {
		return Key{Mode: KeyPostID, First: p.PostID, Second: p.Community}
	}
	return Key{Mode: KeyTitleWriter, First: p.Title, Second: p.Writer}
}

// KeyMode tells which column pair identifies a post
type KeyMode int

const (
	// KeyPostID matches on (post_id, community)
	KeyPostID KeyMode = iota
	// KeyTitleWriter matches on (title, writer)
	KeyTitleWriter
)

func (m KeyMode) String() string {
	if m == KeyTitleWriter {
		return "title_writer"
	}
	return "post_id"
}

// Key is a dedup key
type Key struct {
	Mode   KeyMode
	First  string
	Second string
}

// Valid reports whether the key can identify a row. A post id key only needs
// the id; the fallback key needs both title and writer.
func (k Key) Valid() bool {
	if k.Mode == KeyPostID {
		return k.First != ""
	}
	return k.First != "" && k.Second != ""
}

func (k Key) String() string {
	return fmt.Sprintf("%s(%s, %s)", k.Mode, k.First, k.Second)
}
