// Package normalizer maps scraped posts onto their canonical shape. It never
// fails: unusable values degrade to defaults.
package normalizer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"sjsage522/hotissueworker/helpers"
	"sjsage522/hotissueworker/internal/model"
)

// EmptyImages is the stored value of a post without images
const EmptyImages = "[]"

var nullMarkers = map[string]struct{}{
	"":     {},
	"nan":  {},
	"NaN":  {},
	"None": {},
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Normalizer converts RawPosts into CanonicalPosts
type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

// New creates a normalizer resolving dates in loc
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc, now: time.Now}
}

// WithClock replaces the clock used for unparseable dates
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Normalize maps raw onto a CanonicalPost
func (n *Normalizer) Normalize(raw model.RawPost) model.CanonicalPost {
	return model.CanonicalPost{
		PostID:    text(raw.PostID),
		Community: text(raw.Community),
		Category:  text(raw.Category),
		Title:     text(raw.Title),
		Link:      text(raw.Link),
		Writer:    text(raw.Writer),
		Content:   text(raw.Content),
		RegDate:   n.ParseRegDate(raw.Date),
		Views:     ParseCount(raw.Views),
		Recommend: ParseCount(raw.Recommend),
		Images:    EncodeImages(raw.Images),
	}
}

// ParseRegDate parses s with second or minute precision; anything else is now
func (n *Normalizer) ParseRegDate(s string) time.Time {
	s = text(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(s), n.loc); err == nil {
			return t
		}
	}
	return n.now().In(n.loc).Truncate(time.Second)
}

// IsNull reports whether s is one of the markers meaning "no value"
func IsNull(s string) bool {
	_, ok := nullMarkers[strings.TrimSpace(s)]
	return ok
}

func text(s string) string {
	if IsNull(s) {
		return ""
	}
	return s
}

// ParseCount turns a count as shown on a board into a non-negative int.
// "1,234" is 1234 and a vote string "3 - 0" is 3. Anything else is 0.
func ParseCount(s string) int {
	s = strings.TrimSpace(text(s))
	s = strings.ReplaceAll(s, ",", "")
	if strings.Contains(s, "-") {
		first, err := helpers.GetSplitPart(s, "-", 0)
		if err != nil {
			return 0
		}
		s = strings.TrimSpace(first)
	}
	if s == "" {
		return 0
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// EncodeImages renders images as the stored JSON text. Strings are assumed to
// be serialized already and pass through.
func EncodeImages(v any) string {
	switch images := v.(type) {
	case nil:
		return EmptyImages
	case string:
		if IsNull(images) {
			return EmptyImages
		}
		return images
	case []string:
		if images == nil {
			return EmptyImages
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return EmptyImages
	}
	out := strings.TrimRight(buf.String(), "\n")
	if out == "null" {
		return EmptyImages
	}
	return out
}
