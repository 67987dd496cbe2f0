// Package hn parses the listing and discussion pages of a Hacker News style
// site into story ids, article URLs, and external comment links.
package hn

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ycrawler/internal/crawler"
)

const (
	storyRowSelector    = "tr.athing"
	storyLinkSelector   = "a.storylink"
	titleLinkSelector   = "span.titleline > a"
	commentTreeSelector = "table.comment-tree"
	relativeItemPrefix  = "item"
)

// Parser implements crawler.ListingParser and crawler.CommentParser.
type Parser struct {
	baseURL string
}

// New returns a Parser that resolves relative item links against baseURL.
func New(baseURL string) *Parser {
	return &Parser{baseURL: strings.TrimRight(baseURL, "/")}
}

// ParseListing maps each story row of the newest listing to its article URL.
// Rows without an id or link are skipped and a repeated id keeps the last
// URL seen. Empty input yields an empty map.
func (p *Parser) ParseListing(body []byte) (map[string]string, error) {
	out := make(map[string]string)
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return out, &crawler.ParseError{Source: "listing", Err: err}
	}

	doc.Find(storyRowSelector).Each(func(_ int, row *goquery.Selection) {
		id, ok := row.Attr("id")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return
		}
		href, ok := storyHref(row)
		if !ok {
			return
		}
		out[id] = p.resolve(href)
	})
	return out, nil
}

// ParseComments returns the distinct absolute links found inside the comment
// tree, in document order. A page without a comment tree yields nothing.
func (p *Parser) ParseComments(body []byte) ([]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &crawler.ParseError{Source: "comments", Err: err}
	}

	tree := doc.Find(commentTreeSelector).First()
	if tree.Length() == 0 {
		return nil, nil
	}

	var links []string
	seen := map[string]struct{}{}
	tree.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.HasPrefix(href, "http") {
			return
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})
	return links, nil
}

// ThreadURL builds the discussion page URL for a story id.
func (p *Parser) ThreadURL(storyID string) string {
	return fmt.Sprintf("%s/item?id=%s", p.baseURL, storyID)
}

// ListingURL is the newest listing endpoint.
func (p *Parser) ListingURL() string {
	return p.baseURL + "/newest"
}

func (p *Parser) resolve(href string) string {
	if strings.HasPrefix(href, relativeItemPrefix) {
		return p.baseURL + "/" + href
	}
	return href
}

func storyHref(row *goquery.Selection) (string, bool) {
	for _, sel := range []string{storyLinkSelector, titleLinkSelector} {
		if href, ok := row.Find(sel).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			return strings.TrimSpace(href), true
		}
	}
	return "", false
}
