package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// ErrNoFeed is returned when a page neither is a feed nor links to one.
var ErrNoFeed = errors.New("no RSS or Atom feed found")

// Discovery describes a confirmed feed.
type Discovery struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Items int    `json:"items"`
}

// Discover resolves rawURL to a parseable feed. A feed URL is confirmed as
// is; a web page is searched for an alternate RSS or Atom link, which is
// then fetched and parsed.
func (c *Client) Discover(ctx context.Context, rawURL string) (*Discovery, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if feed, err := gofeed.NewParser().Parse(bytes.NewReader(body)); err == nil {
		return &Discovery{URL: rawURL, Title: strings.TrimSpace(feed.Title), Items: len(feed.Items)}, nil
	}

	feedURL, err := alternateLink(rawURL, body)
	if err != nil {
		return nil, err
	}
	body, err = c.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse discovered feed %s: %w", feedURL, err)
	}
	return &Discovery{URL: feedURL, Title: strings.TrimSpace(feed.Title), Items: len(feed.Items)}, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	header := http.Header{}
	header.Set("User-Agent", c.userAgent)
	return c.http.Get(ctx, u, header)
}

// alternateLink returns the first <link rel="alternate"> pointing at a feed,
// resolved against pageURL.
func alternateLink(pageURL string, body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse page %s: %w", pageURL, err)
	}

	var href string
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		typ := strings.ToLower(sel.AttrOr("type", ""))
		if typ == "application/rss+xml" || typ == "application/atom+xml" {
			href = strings.TrimSpace(sel.AttrOr("href", ""))
		}
		return href == ""
	})
	if href == "" {
		return "", ErrNoFeed
	}
	return resolveURL(pageURL, href), nil
}

// resolveURL resolves a potentially relative href against a base URL.
func resolveURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
