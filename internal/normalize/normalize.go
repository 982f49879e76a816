// Package normalize maps adapter records onto models.UnifiedPost.
//
// Every function here is pure: the current time is passed in and only used
// as the documented date fallback. Ids are derived from the origin, the
// upstream locator, the upstream timestamp and an occurrence index, all
// encoded in full.
package normalize

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/polymarket"
	"github.com/thinkscotty/prophet/internal/rss"
	"github.com/thinkscotty/prophet/internal/telegram"
	"github.com/thinkscotty/prophet/internal/twitter"
)

// isoLayout matches JavaScript's Date.toISOString output.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	polymarketEventURL = "https://polymarket.com/event/"
	twitterBaseURL     = "https://twitter.com"
)

// PostID builds "<source>_" followed by the unpadded URL-safe base64 of
// "origin__locator__unixmillis__index". A zero timestamp encodes as 0.
func PostID(source models.SourceType, origin, locator string, ts time.Time, index int) string {
	raw := origin + "__" + locator + "__" + strconv.FormatInt(unixMillis(ts), 10) + "__" + strconv.Itoa(index)
	return string(source) + "_" + base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func unixMillis(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UnixMilli()
}

// ISO formats t in UTC, using now when t is zero.
func ISO(t, now time.Time) string {
	if t.IsZero() {
		t = now
	}
	return t.UTC().Format(isoLayout)
}

// occurrences hands out per-key sequence numbers so that records sharing
// origin, locator and timestamp still get distinct ids, while a record's id
// does not depend on unrelated records in the batch.
type occurrences map[string]int

func (o occurrences) next(origin, locator string, ts time.Time) int {
	key := origin + "\x00" + locator + "\x00" + strconv.FormatInt(unixMillis(ts), 10)
	n := o[key]
	o[key] = n + 1
	return n
}

// --- Telegram ---

// Telegram maps one channel message. baseURL is the Telegram host used for
// permalinks.
func Telegram(p telegram.Post, baseURL string, index int, now time.Time) models.UnifiedPost {
	username := p.ChannelUsername
	sourceID := username
	if sourceID == "" {
		sourceID = "unknown"
	}
	name := firstNonEmpty(p.ChannelTitle, username, "Unknown Channel")

	metadata := map[string]any{
		"views":   p.Views,
		"replies": p.Replies,
	}
	if p.ForwardedFrom != "" {
		metadata["forwardedFrom"] = p.ForwardedFrom
	}

	return models.UnifiedPost{
		ID:         PostID(models.SourceTelegram, sourceID, p.MessageID, p.Date, index),
		Source:     models.SourceTelegram,
		SourceID:   sourceID,
		SourceName: name,
		Text:       strings.TrimSpace(p.Text),
		DateISO:    ISO(p.Date, now),
		URL:        p.Permalink(baseURL),
		Metadata:   metadata,
	}
}

// TelegramPosts maps a batch, dropping messages without text.
func TelegramPosts(posts []telegram.Post, baseURL string, now time.Time) []models.UnifiedPost {
	seq := occurrences{}
	out := make([]models.UnifiedPost, 0, len(posts))
	for _, p := range posts {
		up := Telegram(p, baseURL, seq.next(p.ChannelUsername, p.MessageID, p.Date), now)
		if up.Text != "" {
			out = append(out, up)
		}
	}
	return out
}

// --- Polymarket ---

// Polymarket maps one market matched by a topic. Markets carry no creation
// time upstream, so DateISO is always now; the id uses the end date instead.
func Polymarket(tm polymarket.TopicMarket, index int, now time.Time) models.UnifiedPost {
	m := tm.Market
	locator := firstNonEmpty(m.Slug, m.ID)

	return models.UnifiedPost{
		ID:         PostID(models.SourcePolymarket, tm.Topic.ID, m.ID, m.EndDate, index),
		Source:     models.SourcePolymarket,
		SourceID:   tm.Topic.ID,
		SourceName: firstNonEmpty(tm.Topic.Name, "Polymarket"),
		Title:      m.Question,
		Text:       strings.TrimSpace(firstNonEmpty(m.Description, m.Question)),
		DateISO:    ISO(time.Time{}, now),
		URL:        polymarketEventURL + locator,
		Metadata: map[string]any{
			"volume":      m.Volume,
			"probability": m.YesProbability(),
			"endDate":     m.EndDateRaw,
			"outcomes":    m.Outcomes,
		},
	}
}

// PolymarketPosts maps a batch, dropping markets without text.
func PolymarketPosts(markets []polymarket.TopicMarket, now time.Time) []models.UnifiedPost {
	seq := occurrences{}
	out := make([]models.UnifiedPost, 0, len(markets))
	for _, tm := range markets {
		up := Polymarket(tm, seq.next(tm.Topic.ID, tm.Market.ID, tm.Market.EndDate), now)
		if up.Text != "" {
			out = append(out, up)
		}
	}
	return out
}

// --- Twitter ---

// Twitter maps one tweet fetched for an account.
func Twitter(tw twitter.Tweet, index int, now time.Time) models.UnifiedPost {
	username := strings.TrimPrefix(tw.Account.Username, "@")
	screenName := firstNonEmpty(tw.ScreenName, username)

	url := twitterBaseURL + "/" + screenName
	if tw.ID != "" {
		url += "/status/" + tw.ID
	}

	return models.UnifiedPost{
		ID:         PostID(models.SourceTwitter, username, tw.ID, tw.CreatedAt, index),
		Source:     models.SourceTwitter,
		SourceID:   username,
		SourceName: "@" + username,
		Text:       strings.TrimSpace(tw.Text),
		DateISO:    ISO(tw.CreatedAt, now),
		URL:        url,
		Metadata: map[string]any{
			"likes":          tw.Likes,
			"retweets":       tw.Retweets,
			"twitterReplies": tw.Replies,
			"verified":       tw.Verified,
		},
	}
}

// TwitterPosts maps a batch, dropping tweets without text.
func TwitterPosts(tweets []twitter.Tweet, now time.Time) []models.UnifiedPost {
	seq := occurrences{}
	out := make([]models.UnifiedPost, 0, len(tweets))
	for _, tw := range tweets {
		origin := strings.TrimPrefix(tw.Account.Username, "@")
		up := Twitter(tw, seq.next(origin, tw.ID, tw.CreatedAt), now)
		if up.Text != "" {
			out = append(out, up)
		}
	}
	return out
}

// --- RSS ---

// RSS maps one feed item. Text falls back from the plain-text snippet to
// the raw content, the description and finally the title.
func RSS(it rss.Item, index int, now time.Time) models.UnifiedPost {
	sourceID := firstNonEmpty(it.Feed.ID, it.Feed.Name)
	locator := firstNonEmpty(it.Link, "nolink")

	categories := it.Categories
	if categories == nil {
		categories = []string{}
	}

	return models.UnifiedPost{
		ID:         PostID(models.SourceRSS, sourceID, locator, it.Published, index),
		Source:     models.SourceRSS,
		SourceID:   sourceID,
		SourceName: firstNonEmpty(it.Feed.Name, sourceID),
		Title:      it.Title,
		Text:       strings.TrimSpace(firstNonEmpty(it.ContentSnippet, it.Content, it.Description, it.Title)),
		DateISO:    ISO(it.Published, now),
		URL:        firstNonEmpty(it.Link, it.Feed.URL),
		Metadata: map[string]any{
			"author":     it.Author,
			"categories": categories,
		},
	}
}

// RSSPosts maps a batch, dropping items without any text.
func RSSPosts(items []rss.Item, now time.Time) []models.UnifiedPost {
	seq := occurrences{}
	out := make([]models.UnifiedPost, 0, len(items))
	for _, it := range items {
		origin := firstNonEmpty(it.Feed.ID, it.Feed.Name)
		up := RSS(it, seq.next(origin, firstNonEmpty(it.Link, "nolink"), it.Published), now)
		if up.Text != "" {
			out = append(out, up)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
