// Package twitter reads user timelines through a RapidAPI Twitter proxy.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/thinkscotty/prophet/internal/fetch"
	"github.com/thinkscotty/prophet/internal/models"
	"github.com/tidwall/gjson"
)

const DefaultHost = "twitter-v24.p.rapidapi.com"

// timelineEndpoints are tried in order until one returns tweets.
var timelineEndpoints = []string{"/user/tweets", "/timeline", "/user/timeline"}

// ErrUnavailable means the API refused the account or every endpoint failed.
var ErrUnavailable = errors.New("twitter api unavailable")

// Tweet is the normalized view of an upstream tweet.
type Tweet struct {
	ID         string
	Text       string
	CreatedAt  time.Time // zero when upstream omitted or garbled it
	ScreenName string
	Name       string
	Verified   bool
	Likes      int
	Retweets   int
	Replies    int
	Account    models.TwitterAccount
}

// Getter is the HTTP surface the client needs.
type Getter interface {
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}

var _ Getter = (*fetch.Client)(nil)

// Options configures a Client.
type Options struct {
	Host    string
	BaseURL string // defaults to https://<Host>
	APIKey  string
	Count   int
}

// Client fetches timelines. Every request first passes through the shared Gate.
type Client struct {
	http    Getter
	gate    *Gate
	host    string
	baseURL string
	apiKey  string
	count   int
	now     func() time.Time
}

// New creates a Twitter client. The gate must be shared by all clients
// talking to the same proxy.
func New(g Getter, gate *Gate, opts Options) *Client {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://" + opts.Host
	}
	if opts.Count <= 0 {
		opts.Count = 50
	}
	if gate == nil {
		gate = NewGate(time.Second)
	}
	return &Client{
		http:    g,
		gate:    gate,
		host:    opts.Host,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  strings.TrimSpace(opts.APIKey),
		count:   opts.Count,
		now:     time.Now,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Fetch reads each account's timeline and keeps tweets inside the window.
// Without an API key it logs once and returns nothing.
func (c *Client) Fetch(ctx context.Context, accounts []models.TwitterAccount, daysBack int) ([]Tweet, []models.ConfigFailure, error) {
	if len(accounts) == 0 {
		return nil, nil, nil
	}
	if !c.Configured() {
		slog.Warn("Twitter API key not configured, skipping Twitter accounts", "accounts", len(accounts))
		return nil, nil, nil
	}
	if daysBack <= 0 {
		daysBack = 2
	}
	cutoff := c.now().Add(-time.Duration(daysBack) * 24 * time.Hour)

	var all []Tweet
	var failures []models.ConfigFailure
	for _, acct := range accounts {
		raw, err := c.FetchUserTweets(ctx, acct.Username)
		if errors.Is(err, ErrUnavailable) {
			failures = append(failures, models.ConfigFailure{Config: acct.Username, Error: err.Error()})
			continue
		}
		if err != nil {
			return all, failures, err
		}
		kept := 0
		for _, r := range raw {
			tw := Transform(r)
			if !tw.CreatedAt.IsZero() && tw.CreatedAt.Before(cutoff) {
				continue
			}
			tw.Account = acct
			all = append(all, tw)
			kept++
		}
		slog.Info("Fetched Twitter timeline", "account", acct.Username, "tweets", len(raw), "in_window", kept)
	}
	return all, failures, nil
}

// FetchUserTweets tries each timeline endpoint until one yields tweets.
// A 403 or 429, or every endpoint failing, returns ErrUnavailable; endpoints
// that answer with no tweets yield an empty list.
func (c *Client) FetchUserTweets(ctx context.Context, username string) ([]gjson.Result, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, nil
	}

	header := http.Header{}
	header.Set("X-RapidAPI-Key", c.apiKey)
	header.Set("X-RapidAPI-Host", c.host)
	header.Set("Accept", "application/json")

	q := url.Values{}
	q.Set("screen_name", username)
	q.Set("count", strconv.Itoa(c.count))

	var lastErr error
	responded := false
	for _, endpoint := range timelineEndpoints {
		if err := c.gate.Wait(ctx); err != nil {
			return nil, err
		}
		body, err := c.http.Get(ctx, c.baseURL+endpoint+"?"+q.Encode(), header)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return nil, err
			case fetch.IsStatus(err, http.StatusForbidden):
				slog.Warn("Twitter API: not subscribed or API key invalid", "account", username)
				return nil, fmt.Errorf("%w: not subscribed or API key invalid", ErrUnavailable)
			case fetch.IsStatus(err, http.StatusTooManyRequests):
				slog.Warn("Twitter API: rate limit exceeded", "account", username)
				return nil, fmt.Errorf("%w: rate limit exceeded", ErrUnavailable)
			}
			slog.Debug("Twitter endpoint failed", "endpoint", endpoint, "account", username, "error", err)
			lastErr = err
			continue
		}
		responded = true
		if tweets := unwrap(gjson.ParseBytes(body)); len(tweets) > 0 {
			return tweets, nil
		}
	}
	if !responded && lastErr != nil {
		slog.Warn("All Twitter endpoints failed for account", "account", username, "error", lastErr)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	slog.Warn("No tweets found for account", "account", username)
	return nil, nil
}

// unwrap accepts {"timeline": [...]}, {"tweets": [...]}, {"data": [...]} or a bare array.
func unwrap(r gjson.Result) []gjson.Result {
	for _, key := range []string{"timeline", "tweets", "data"} {
		if v := r.Get(key); v.IsArray() && len(v.Array()) > 0 {
			return v.Array()
		}
	}
	if r.IsArray() {
		return r.Array()
	}
	return nil
}

// Transform maps a raw tweet with tolerant field lookups.
func Transform(t gjson.Result) Tweet {
	tw := Tweet{
		ID:         first(t, "id_str", "id", "rest_id"),
		Text:       first(t, "full_text", "text"),
		ScreenName: first(t, "user.screen_name", "screen_name"),
		Name:       first(t, "user.name", "name"),
		Verified:   t.Get("user.verified").Bool() || t.Get("verified").Bool(),
		Likes:      int(firstValue(t, "favorite_count", "likes").Int()),
		Retweets:   int(firstValue(t, "retweet_count", "retweets").Int()),
		Replies:    int(firstValue(t, "reply_count", "replies").Int()),
	}
	if raw := first(t, "created_at", "timestamp", "date"); raw != "" {
		tw.CreatedAt = parseTime(raw)
	}
	return tw
}

func parseTime(raw string) time.Time {
	if ts, err := time.Parse(time.RubyDate, raw); err == nil {
		return ts.UTC()
	}
	if ts, err := dateparse.ParseAny(raw); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}

func firstValue(t gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := t.Get(p); v.Exists() && v.Type != gjson.Null && v.String() != "" {
			return v
		}
	}
	return gjson.Result{}
}

func first(t gjson.Result, paths ...string) string {
	return firstValue(t, paths...).String()
}
