package database

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/thinkscotty/prophet/internal/feeds"
	"github.com/thinkscotty/prophet/internal/models"
)

// loadConfigs decodes a config collection. Records written before the
// enabled flag existed are treated as enabled. A collection that was never
// written is seeded from defaults and persisted.
func loadConfigs[T any](db *DB, collection string, setEnabled func(*T), defaults func(time.Time) []T) ([]T, error) {
	body, ok, err := db.getDocument(collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		seeded := defaults(db.now())
		if err := saveDocument(db, collection, seeded); err != nil {
			return nil, err
		}
		slog.Info("Seeded default sources", "collection", collection, "count", len(seeded))
		return seeded, nil
	}

	doc := gjson.Parse(body)
	if !doc.IsArray() {
		return nil, fmt.Errorf("decode %s: not an array", collection)
	}
	out := make([]T, 0, len(doc.Array()))
	for _, item := range doc.Array() {
		var v T
		if err := json.Unmarshal([]byte(item.Raw), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		if !item.Get("enabled").Exists() {
			setEnabled(&v)
		}
		out = append(out, v)
	}
	return out, nil
}

func saveDocument(db *DB, collection string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	return db.putDocument(collection, string(data))
}

func enabled[T any](items []T, err error, isEnabled func(T) bool) ([]T, error) {
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if isEnabled(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// --- Telegram ---

func (db *DB) TelegramChannels() ([]models.TelegramChannel, error) {
	return loadConfigs(db, CollectionTelegram, func(c *models.TelegramChannel) { c.Enabled = true }, feeds.DefaultTelegramChannels)
}

func (db *DB) SaveTelegramChannels(channels []models.TelegramChannel) error {
	return saveDocument(db, CollectionTelegram, nonNil(channels))
}

func (db *DB) EnabledTelegramChannels() ([]models.TelegramChannel, error) {
	all, err := db.TelegramChannels()
	return enabled(all, err, func(c models.TelegramChannel) bool { return c.Enabled })
}

// --- Polymarket ---

func (db *DB) PolymarketTopics() ([]models.PolymarketTopic, error) {
	return loadConfigs(db, CollectionPolymarket, func(t *models.PolymarketTopic) { t.Enabled = true }, feeds.DefaultPolymarketTopics)
}

func (db *DB) SavePolymarketTopics(topics []models.PolymarketTopic) error {
	return saveDocument(db, CollectionPolymarket, nonNil(topics))
}

func (db *DB) EnabledPolymarketTopics() ([]models.PolymarketTopic, error) {
	all, err := db.PolymarketTopics()
	return enabled(all, err, func(t models.PolymarketTopic) bool { return t.Enabled })
}

// --- Twitter ---

func (db *DB) TwitterAccounts() ([]models.TwitterAccount, error) {
	return loadConfigs(db, CollectionTwitter, func(a *models.TwitterAccount) { a.Enabled = true }, feeds.DefaultTwitterAccounts)
}

func (db *DB) SaveTwitterAccounts(accounts []models.TwitterAccount) error {
	return saveDocument(db, CollectionTwitter, nonNil(accounts))
}

func (db *DB) EnabledTwitterAccounts() ([]models.TwitterAccount, error) {
	all, err := db.TwitterAccounts()
	return enabled(all, err, func(a models.TwitterAccount) bool { return a.Enabled })
}

// --- RSS ---

func (db *DB) RSSFeeds() ([]models.RSSFeed, error) {
	return loadConfigs(db, CollectionRSS, func(f *models.RSSFeed) { f.Enabled = true }, feeds.DefaultRSSFeeds)
}

func (db *DB) SaveRSSFeeds(list []models.RSSFeed) error {
	return saveDocument(db, CollectionRSS, nonNil(list))
}

func (db *DB) EnabledRSSFeeds() ([]models.RSSFeed, error) {
	all, err := db.RSSFeeds()
	return enabled(all, err, func(f models.RSSFeed) bool { return f.Enabled })
}

// SourceCatalog is every configured source, enabled or not.
type SourceCatalog struct {
	Telegram   []models.TelegramChannel `json:"telegram"`
	Polymarket []models.PolymarketTopic `json:"polymarket"`
	Twitter    []models.TwitterAccount  `json:"twitter"`
	RSS        []models.RSSFeed         `json:"rss"`
}

func (db *DB) Sources() (*SourceCatalog, error) {
	var (
		c   SourceCatalog
		err error
	)
	if c.Telegram, err = db.TelegramChannels(); err != nil {
		return nil, err
	}
	if c.Polymarket, err = db.PolymarketTopics(); err != nil {
		return nil, err
	}
	if c.Twitter, err = db.TwitterAccounts(); err != nil {
		return nil, err
	}
	if c.RSS, err = db.RSSFeeds(); err != nil {
		return nil, err
	}
	return &c, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
