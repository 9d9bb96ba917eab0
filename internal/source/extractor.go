package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webnotifier/internal/item"
)

// Extractor turns raw page text into candidate items. Implementations must
// be pure: no I/O, no side effects. Duplicate urls are allowed; the store
// keeps the first one.
type Extractor interface {
	Extract(raw string) ([]item.Candidate, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(raw string) ([]item.Candidate, error)

func (f ExtractorFunc) Extract(raw string) ([]item.Candidate, error) { return f(raw) }

// SelectorConfig describes a list page with CSS selectors.
//
// Example (a board whose rows are <li class="post"><a href="/p/1">Title</a></li>):
//
//	item: "li.post"
//	link: "a"
//	title: ""      (defaults to the link text)
type SelectorConfig struct {
	// Item matches one node per listed entry.
	Item string
	// Link selects the anchor inside Item. Empty means the Item node itself.
	Link string
	// LinkAttr is the attribute holding the url. Default "href".
	LinkAttr string
	// Title selects the title node inside Item. Empty means the link text.
	Title string
	// BaseURL resolves relative links. Usually the page url.
	BaseURL string
}

// SelectorExtractor extracts items using goquery.
type SelectorExtractor struct {
	cfg  SelectorConfig
	base *url.URL
}

func NewSelectorExtractor(cfg SelectorConfig) (*SelectorExtractor, error) {
	if strings.TrimSpace(cfg.Item) == "" {
		return nil, errors.New("extractor: item selector is required")
	}
	if strings.TrimSpace(cfg.LinkAttr) == "" {
		cfg.LinkAttr = "href"
	}
	e := &SelectorExtractor{cfg: cfg}
	if b := strings.TrimSpace(cfg.BaseURL); b != "" {
		u, err := url.Parse(b)
		if err != nil {
			return nil, fmt.Errorf("extractor: base url: %w", err)
		}
		e.base = u
	}
	return e, nil
}

func (e *SelectorExtractor) Extract(raw string) ([]item.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []item.Candidate
	doc.Find(e.cfg.Item).Each(func(_ int, sel *goquery.Selection) {
		link := sel
		if e.cfg.Link != "" {
			link = sel.Find(e.cfg.Link).First()
		}
		href, ok := link.Attr(e.cfg.LinkAttr)
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}

		title := link.Text()
		if e.cfg.Title != "" {
			title = sel.Find(e.cfg.Title).First().Text()
		}

		out = append(out, item.Candidate{
			URL:   e.resolve(href),
			Title: collapseSpace(title),
		})
	})
	return out, nil
}

func (e *SelectorExtractor) resolve(href string) string {
	if e.base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return e.base.ResolveReference(ref).String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
