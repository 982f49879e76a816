// Package rss fetches RSS and Atom feeds concurrently.
package rss

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/thinkscotty/prophet/internal/fetch"
	"github.com/thinkscotty/prophet/internal/models"
)

const DefaultUserAgent = "Mozilla/5.0 (compatible; NewsBot/1.0)"

// Item is one feed entry, flattened.
type Item struct {
	Feed           models.RSSFeed
	Title          string
	Link           string
	Content        string
	ContentSnippet string
	Description    string
	Author         string
	Categories     []string
	Published      time.Time // zero when the entry had no usable date
}

// FeedResult is the outcome of fetching one feed.
type FeedResult struct {
	Feed  models.RSSFeed
	Items []Item
	Err   error
}

// Getter is the HTTP surface the client needs.
type Getter interface {
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}

var _ Getter = (*fetch.Client)(nil)

// Options configures a Client.
type Options struct {
	Timeout   time.Duration // per feed
	Parallel  int
	UserAgent string
}

// Client fetches feeds with bounded parallelism.
type Client struct {
	http      Getter
	timeout   time.Duration
	parallel  int
	userAgent string
	now       func() time.Time
}

// New creates an RSS client.
func New(g Getter, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 8
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Client{
		http:      g,
		timeout:   opts.Timeout,
		parallel:  opts.Parallel,
		userAgent: opts.UserAgent,
		now:       time.Now,
	}
}

// Fetch fetches every feed, drops failed ones and returns the in-window items
// of the rest in feed order, plus one failure per feed that could not be read.
func (c *Client) Fetch(ctx context.Context, feeds []models.RSSFeed, daysBack int) ([]Item, []models.ConfigFailure, error) {
	if len(feeds) == 0 {
		return nil, nil, nil
	}
	if daysBack <= 0 {
		daysBack = 2
	}
	cutoff := c.now().Add(-time.Duration(daysBack) * 24 * time.Hour)

	results := c.FetchFeeds(ctx, feeds)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var items []Item
	var failures []models.ConfigFailure
	for _, r := range results {
		if r.Err != nil {
			slog.Warn("Failed to fetch RSS feed", "feed", r.Feed.Name, "url", r.Feed.URL, "error", r.Err)
			failures = append(failures, models.ConfigFailure{Config: feedLabel(r.Feed), Error: r.Err.Error()})
			continue
		}
		for _, it := range r.Items {
			if !it.Published.IsZero() && it.Published.Before(cutoff) {
				continue
			}
			items = append(items, it)
		}
	}
	slog.Info("Fetched RSS feeds", "feeds", len(feeds), "failed", len(failures), "items", len(items))
	return items, failures, nil
}

func feedLabel(f models.RSSFeed) string {
	if f.Name != "" {
		return f.Name
	}
	return f.URL
}

// FetchFeeds fetches all feeds concurrently and reports each outcome. The
// returned slice is index-aligned with feeds.
func (c *Client) FetchFeeds(ctx context.Context, feeds []models.RSSFeed) []FeedResult {
	results := make([]FeedResult, len(feeds))
	sem := make(chan struct{}, c.parallel)
	var wg sync.WaitGroup

	for i, feed := range feeds {
		results[i].Feed = feed

		wg.Add(1)
		go func(i int, feed models.RSSFeed) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = fmt.Errorf("panic while fetching feed: %v", r)
				}
			}()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			}
			defer func() { <-sem }()

			items, err := c.FetchFeed(ctx, feed)
			results[i].Items = items
			results[i].Err = err
		}(i, feed)
	}
	wg.Wait()
	return results
}

// FetchFeed fetches and parses a single feed under the per-feed timeout.
func (c *Client) FetchFeed(ctx context.Context, feed models.RSSFeed) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)
	header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	body, err := c.http.Get(ctx, feed.URL, header)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed.URL, err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		items = append(items, toItem(feed, entry))
	}
	return items, nil
}

func toItem(feed models.RSSFeed, entry *gofeed.Item) Item {
	content := entry.Content
	if content == "" {
		content = entry.Description
	}
	it := Item{
		Feed:           feed,
		Title:          strings.TrimSpace(entry.Title),
		Link:           extractLink(entry),
		Content:        content,
		ContentSnippet: snippet(content),
		Description:    entry.Description,
		Author:         author(entry, feed.Name),
		Categories:     entry.Categories,
	}
	switch {
	case entry.PublishedParsed != nil:
		it.Published = entry.PublishedParsed.UTC()
	case entry.UpdatedParsed != nil:
		it.Published = entry.UpdatedParsed.UTC()
	}
	return it
}

func extractLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}

func author(entry *gofeed.Item, fallback string) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if entry.DublinCoreExt != nil && len(entry.DublinCoreExt.Creator) > 0 {
		return entry.DublinCoreExt.Creator[0]
	}
	return fallback
}

// snippet strips markup from content, leaving whitespace-collapsed text.
func snippet(content string) string {
	if content == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
