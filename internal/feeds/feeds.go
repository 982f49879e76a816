// Package feeds holds the built-in source catalogue used to seed an empty
// store and to suggest sources by keyword.
package feeds

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thinkscotty/prophet/internal/models"
)

// Feed is a curated RSS feed.
type Feed struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Category groups feeds by topic area. Name doubles as the feed category.
type Category struct {
	Name  string
	Feeds []Feed
}

// Categories contains the curated RSS feeds in seeding order.
var Categories = []Category{
	{
		Name: "crypto",
		Feeds: []Feed{
			{Name: "CoinDesk", URL: "https://www.coindesk.com/arc/outboundfeeds/rss/"},
			{Name: "Cointelegraph", URL: "https://cointelegraph.com/rss"},
			{Name: "CryptoSlate", URL: "https://cryptoslate.com/feed/"},
			{Name: "Decrypt", URL: "https://decrypt.co/feed"},
		},
	},
	{
		Name: "financial",
		Feeds: []Feed{
			{Name: "Reuters Business", URL: "https://www.reuters.com/rssfeed/businessNews"},
			{Name: "Bloomberg Markets", URL: "https://feeds.bloomberg.com/markets/news.rss"},
			{Name: "CNBC", URL: "https://www.cnbc.com/id/100003114/device/rss/rss.html"},
		},
	},
	{
		Name: "politics",
		Feeds: []Feed{
			{Name: "The Hill", URL: "https://thehill.com/feed/"},
			{Name: "Politico", URL: "https://www.politico.com/rss/politics08.xml"},
			{Name: "CNN Politics", URL: "http://rss.cnn.com/rss/cnn_allpolitics.rss"},
		},
	},
}

func stamp(now time.Time) string {
	return now.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func shortID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// DefaultRSSFeeds flattens Categories into configs with ids rss_<category>_<n>,
// n counting across all categories.
func DefaultRSSFeeds(now time.Time) []models.RSSFeed {
	var out []models.RSSFeed
	for _, cat := range Categories {
		for _, f := range cat.Feeds {
			out = append(out, models.RSSFeed{
				ID:       fmt.Sprintf("rss_%s_%d", cat.Name, len(out)),
				Name:     f.Name,
				URL:      f.URL,
				Category: cat.Name,
				AddedAt:  stamp(now),
				Enabled:  true,
			})
		}
	}
	return out
}

func DefaultPolymarketTopics(now time.Time) []models.PolymarketTopic {
	topics := []models.PolymarketTopic{
		{
			ID:       "pm_crypto_",
			Name:     "Crypto Markets",
			Keywords: []string{"bitcoin", "btc", "ethereum", "eth", "crypto", "cryptocurrency", "solana", "cardano"},
			Category: "crypto",
		},
		{
			ID:       "pm_trump_",
			Name:     "Trump & Politics",
			Keywords: []string{"trump", "donald trump", "election", "republican", "president", "maga"},
			Category: "politics",
		},
		{
			ID:       "pm_financial_",
			Name:     "Economy & Fed",
			Keywords: []string{"fed", "federal reserve", "powell", "inflation", "interest rate", "economy"},
			Category: "financial",
		},
	}
	for i := range topics {
		topics[i].ID += shortID()
		topics[i].AddedAt = stamp(now)
		topics[i].Enabled = true
	}
	return topics
}

func DefaultTwitterAccounts(now time.Time) []models.TwitterAccount {
	accounts := []models.TwitterAccount{
		{Username: "elonmusk", DisplayName: "Elon Musk", AccountType: "person"},
		{Username: "realDonaldTrump", DisplayName: "Donald Trump", AccountType: "person"},
		{Username: "federalreserve", DisplayName: "Federal Reserve", AccountType: "organization"},
		{Username: "VitalikButerin", DisplayName: "Vitalik Buterin", AccountType: "person"},
		{Username: "CoinDesk", DisplayName: "CoinDesk", AccountType: "news"},
	}
	for i := range accounts {
		accounts[i].ID = "tw_" + strings.ToLower(accounts[i].Username) + "_" + shortID()
		accounts[i].AddedAt = stamp(now)
		accounts[i].Enabled = true
	}
	return accounts
}

func DefaultTelegramChannels(now time.Time) []models.TelegramChannel {
	usernames := []string{"coindesk", "DuetNews", "Reuters"}
	channels := make([]models.TelegramChannel, len(usernames))
	for i, u := range usernames {
		channels[i] = models.TelegramChannel{
			ID:       "tg_" + shortID(),
			URL:      "https://t.me/" + u,
			Username: u,
			AddedAt:  stamp(now),
			Enabled:  true,
		}
	}
	return channels
}

// FindRelevant returns catalogue feeds whose category, name or URL mentions
// any word of query with 3 or more characters.
func FindRelevant(query string) []Feed {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			keywords = append(keywords, w)
		}
	}
	if len(keywords) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var results []Feed
	for _, cat := range Categories {
		catMatch := false
		for _, kw := range keywords {
			if strings.Contains(cat.Name, kw) {
				catMatch = true
				break
			}
		}

		for _, f := range cat.Feeds {
			if seen[f.URL] {
				continue
			}
			text := strings.ToLower(f.Name + " " + f.URL)
			match := catMatch
			for _, kw := range keywords {
				if match {
					break
				}
				match = strings.Contains(text, kw)
			}
			if match {
				seen[f.URL] = true
				results = append(results, f)
			}
		}
	}
	return results
}
