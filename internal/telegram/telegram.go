// Package telegram scrapes public channel preview pages (t.me/s/<channel>).
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/thinkscotty/prophet/internal/models"
)

// Post is a message scraped from a channel preview page.
type Post struct {
	ChannelUsername string
	ChannelTitle    string
	MessageID       string
	Date            time.Time // zero when the page carried no timestamp
	Text            string
	Views           int
	Replies         int
	ForwardedFrom   string
}

// Permalink returns the public link to the message.
func (p Post) Permalink(baseURL string) string {
	if p.MessageID == "" {
		return strings.TrimRight(baseURL, "/") + "/" + p.ChannelUsername
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(baseURL, "/"), p.ChannelUsername, p.MessageID)
}

// Client fetches channel previews with a fixed delay between page requests.
type Client struct {
	baseURL   string
	userAgent string
	maxPages  int
	delay     time.Duration
	timeout   time.Duration
	now       func() time.Time
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	MaxPages  int
	Delay     time.Duration
	Timeout   time.Duration
}

// New creates a Telegram client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://t.me"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; Prophet/1.0)"
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		maxPages:  opts.MaxPages,
		delay:     opts.Delay,
		timeout:   opts.Timeout,
		now:       time.Now,
	}
}

// BaseURL returns the host used for preview pages and permalinks.
func (c *Client) BaseURL() string { return c.baseURL }

// Fetch scrapes every channel in turn. A channel that fails is logged,
// contributes nothing and is reported as a failure; only cancellation is
// returned as an error.
func (c *Client) Fetch(ctx context.Context, channels []models.TelegramChannel, daysBack int) ([]Post, []models.ConfigFailure, error) {
	var all []Post
	var failures []models.ConfigFailure
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return all, failures, err
		}
		username := ChannelUsername(ch.URL, ch.Username)
		if username == "" {
			slog.Warn("Skipping Telegram channel without username", "id", ch.ID, "url", ch.URL)
			failures = append(failures, models.ConfigFailure{Config: ch.ID, Error: "channel has no username"})
			continue
		}

		posts, _, err := c.FetchChannel(ctx, username, daysBack)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return all, failures, err
			}
			slog.Warn("Failed to scrape Telegram channel", "channel", username, "error", err)
			failures = append(failures, models.ConfigFailure{Config: username, Error: err.Error()})
			continue
		}
		slog.Info("Scraped Telegram channel", "channel", username, "posts", len(posts))
		all = append(all, posts...)
	}
	return all, failures, nil
}

// FetchChannel walks a channel's preview backwards until the window is
// exhausted, returning posts newest first and the channel title.
func (c *Client) FetchChannel(ctx context.Context, username string, daysBack int) ([]Post, string, error) {
	if daysBack <= 0 {
		daysBack = 2
	}
	cutoff := c.now().Add(-time.Duration(daysBack) * 24 * time.Hour)

	pf := c.newPageFetcher(ctx)

	var (
		posts []Post
		title string
		seen  = make(map[string]bool)
	)
	pageURL := c.previewURL(username, "")

	for n := 0; n < c.maxPages; n++ {
		pg, err := pf.fetch(pageURL, username)
		if err != nil {
			if n == 0 {
				return nil, "", err
			}
			slog.Warn("Stopping Telegram pagination after page error", "channel", username, "page", n+1, "error", err)
			break
		}
		if title == "" {
			title = pg.title
		}

		inWindow := 0
		var oldest time.Time
		for _, post := range pg.posts {
			if !post.Date.IsZero() && (oldest.IsZero() || post.Date.Before(oldest)) {
				oldest = post.Date
			}
			if !post.Date.IsZero() && post.Date.Before(cutoff) {
				continue
			}
			inWindow++
			if seen[post.MessageID] {
				continue
			}
			seen[post.MessageID] = true
			posts = append(posts, post)
		}

		if pg.before == "" || inWindow == 0 {
			break
		}
		if !oldest.IsZero() && oldest.Before(cutoff) {
			break
		}

		if c.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(c.delay):
			}
		}
		pageURL = c.previewURL(username, pg.before)
	}

	for i := range posts {
		if posts[i].ChannelTitle == "" {
			posts[i].ChannelTitle = title
		}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Date.After(posts[j].Date)
	})
	return posts, title, nil
}

// pageFetcher owns one collector per channel walk. Collector callbacks write
// into the fields for the request currently in flight.
type pageFetcher struct {
	collector *colly.Collector
	body      []byte
	err       error
}

func (c *Client) newPageFetcher(ctx context.Context) *pageFetcher {
	pf := &pageFetcher{
		collector: colly.NewCollector(
			colly.UserAgent(c.userAgent),
			colly.StdlibContext(ctx),
			colly.AllowURLRevisit(),
		),
	}
	pf.collector.SetRequestTimeout(c.timeout)
	pf.collector.OnResponse(func(r *colly.Response) {
		pf.body = r.Body
	})
	pf.collector.OnError(func(r *colly.Response, err error) {
		pf.err = fmt.Errorf("fetch %s: %w (status: %d)", r.Request.URL, err, r.StatusCode)
	})
	return pf
}

func (pf *pageFetcher) fetch(pageURL, username string) (*page, error) {
	pf.body, pf.err = nil, nil
	if err := pf.collector.Visit(pageURL); err != nil && pf.err == nil {
		return nil, fmt.Errorf("visit %s: %w", pageURL, err)
	}
	pf.collector.Wait()
	if pf.err != nil {
		return nil, pf.err
	}
	return parsePage(pf.body, username)
}

func (c *Client) previewURL(username, before string) string {
	u := fmt.Sprintf("%s/s/%s", c.baseURL, url.PathEscape(username))
	if before != "" {
		u += "?before=" + url.QueryEscape(before)
	}
	return u
}

var usernameRe = regexp.MustCompile(`(?:t\.me|telegram\.me)/(?:s/)?([A-Za-z0-9_]+)`)

// ChannelUsername resolves the handle to scrape from a configured URL and
// username, preferring the explicit username.
func ChannelUsername(rawURL, username string) string {
	if u := strings.TrimPrefix(strings.TrimSpace(username), "@"); u != "" {
		return u
	}
	rawURL = strings.TrimSpace(rawURL)
	if m := usernameRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return strings.TrimPrefix(rawURL, "@")
}
