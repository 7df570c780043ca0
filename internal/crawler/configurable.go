package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/hotissueworker/helpers"
	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/internal/normalizer"
	"sjsage522/hotissueworker/services/cache"
)

// ConfigurableCrawler is a crawler that can be configured with selectors
type ConfigurableCrawler struct {
	BaseCrawler
	Site SiteConfig
}

var _ Crawler = (*ConfigurableCrawler)(nil)

// NewConfigurableCrawler creates a new configurable crawler
func NewConfigurableCrawler(site SiteConfig, guard *cache.RateLimitGuard, loc *time.Location) *ConfigurableCrawler {
	return &ConfigurableCrawler{
		BaseCrawler: BaseCrawler{
			Name:     site.Name,
			BaseURL:  site.BaseURL,
			Guard:    guard,
			Location: loc,
		},
		Site: site,
	}
}

// GetDomain returns the table family of the board
func (c *ConfigurableCrawler) GetDomain() model.Domain {
	return c.Site.Domain
}

// Tune applies the site's overrides to the engine defaults
func (c *ConfigurableCrawler) Tune(base EngineConfig) EngineConfig {
	if c.Site.MinViews > 0 {
		base.MinViews = c.Site.MinViews
	}
	if c.Site.MaxPages > 0 {
		base.MaxPages = c.Site.MaxPages
	}
	if c.Site.PageMissThreshold > 0 {
		base.PageMissThreshold = c.Site.PageMissThreshold
	}
	base.VerifyDetailDate = c.Site.VerifyDetailDate
	return base
}

func (c *ConfigurableCrawler) pageURL(page int) string {
	if c.Site.PageURLFunc != nil {
		return c.Site.PageURLFunc(page)
	}
	if page == 1 && c.Site.FirstPageURL != "" {
		return c.Site.FirstPageURL
	}
	return fmt.Sprintf(c.Site.ListURL, page)
}

// FetchPage fetches and parses one listing page
func (c *ConfigurableCrawler) FetchPage(ctx context.Context, page int) ([]Listing, error) {
	body, err := c.fetchWithCache(ctx, c.pageURL(page), c.BaseURL)
	if err != nil {
		return nil, err
	}

	doc, err := c.createDocument(body)
	if err != nil {
		return nil, err
	}

	var listings []Listing
	doc.Find(c.Site.Selectors.Row).Each(func(_ int, s *goquery.Selection) {
		if l, ok := c.processRow(s); ok {
			listings = append(listings, l)
		}
	})
	return listings, nil
}

// FetchDetail fetches a post page for its content, images and exact date
func (c *ConfigurableCrawler) FetchDetail(ctx context.Context, l Listing) (Detail, error) {
	body, err := c.fetchWithCache(ctx, l.Post.Link, c.pageURL(1))
	if err != nil {
		return Detail{}, err
	}

	doc, err := c.createDocument(body)
	if err != nil {
		return Detail{}, err
	}

	sel := c.Site.Selectors
	root := doc.Selection
	detail := Detail{
		Content: helpers.CollapseSpace(c.processElement(root, "content", sel.Content)),
		Images:  c.collectImages(root),
	}
	if sel.DetailWriter != "" {
		detail.Writer = c.processElement(root, "detailWriter", sel.DetailWriter)
	}
	if sel.DetailDate != "" {
		if t, ok := c.resolveDate(c.processElement(root, "detailDate", sel.DetailDate)); ok {
			detail.PostedAt = t
		}
	}
	return detail, nil
}

// cleanSelection removes specified elements from a selection before getting text
func (c *ConfigurableCrawler) cleanSelection(sel *goquery.Selection, path string) *goquery.Selection {
	if sel.Length() == 0 {
		return sel
	}

	// Clone the selection to avoid modifying the original
	clone := sel.Clone()

	for _, removal := range c.Site.ElementTransformers.RemoveElements {
		if removal.ApplyToPath == path {
			clone.Find(removal.Selector).Remove()
		}
	}

	return clone
}

// processElement extracts text from an element using custom handlers or default method
func (c *ConfigurableCrawler) processElement(s *goquery.Selection, path string, selector string) string {
	if handler, exists := c.Site.CustomHandlers.ElementHandlers[path]; exists && handler != nil {
		return strings.TrimSpace(handler(s))
	}
	if selector == "" {
		return ""
	}

	elementSel := s.Find(selector).First()
	if elementSel.Length() > 0 {
		cleanSel := c.cleanSelection(elementSel, path)
		return strings.TrimSpace(cleanSel.Text())
	}

	return ""
}

// processRow turns one listing row into a Listing
func (c *ConfigurableCrawler) processRow(s *goquery.Selection) (Listing, bool) {
	sel := c.Site.Selectors

	if sel.RowFilter != "" && s.Is(sel.RowFilter) {
		return Listing{}, false
	}

	// Extract title
	var title string
	if handler, exists := c.Site.CustomHandlers.ElementHandlers["title"]; exists && handler != nil {
		title = handler(s)
	} else {
		titleSel := s.Find(sel.Title).First()
		if titleSel.Length() == 0 {
			return Listing{}, false
		}
		cleanTitleSel := c.cleanSelection(titleSel, "title")
		if titleAttr, exists := cleanTitleSel.Attr("title"); exists && titleAttr != "" {
			title = titleAttr
		} else {
			title = cleanTitleSel.Text()
		}
	}
	title = helpers.CollapseSpace(title)
	if title == "" {
		return Listing{}, false
	}

	// Extract link
	link, exists := s.Find(sel.Link).First().Attr("href")
	if !exists || strings.TrimSpace(link) == "" || strings.HasPrefix(link, "javascript:") {
		return Listing{}, false
	}
	link = c.ResolveURL(link)

	var id string
	if c.Site.IDExtractor != nil {
		if extracted, err := c.Site.IDExtractor(link); err == nil {
			id = strings.TrimSpace(extracted)
		}
	}

	views := c.processElement(s, "views", sel.Views)
	dateText := c.processElement(s, "date", sel.Date)

	l := Listing{
		Post: model.RawPost{
			PostID:    id,
			Community: c.Site.Community,
			Category:  c.processElement(s, "category", sel.Category),
			Title:     title,
			Link:      link,
			Writer:    c.processElement(s, "writer", sel.Writer),
			Views:     views,
			Recommend: c.processElement(s, "recommend", sel.Recommend),
		},
		Views: normalizer.ParseCount(views),
	}
	if t, ok := c.resolveDate(dateText); ok {
		l.PostedAt = t
		l.Post.Date = t.Format(model.RegDateLayout)
	}
	return l, true
}

// collectImages returns the absolute, de-duplicated image URLs of a post body
func (c *ConfigurableCrawler) collectImages(root *goquery.Selection) []string {
	if c.Site.Selectors.Images == "" {
		return nil
	}

	images := []string{}
	seen := make(map[string]struct{})
	root.Find(c.Site.Selectors.Images).Each(func(_ int, img *goquery.Selection) {
		src := ""
		for _, attr := range []string{"data-original", "data-src", "src"} {
			if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
				src = strings.TrimSpace(v)
				break
			}
		}
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		src = c.ResolveURL(src)
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		images = append(images, src)
	})
	return images
}
