package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thinkscotty/prophet/internal/fetch"
	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/polymarket"
	"github.com/thinkscotty/prophet/internal/rss"
	"github.com/thinkscotty/prophet/internal/telegram"
	"github.com/thinkscotty/prophet/internal/twitter"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeConfig struct {
	channels    []models.TelegramChannel
	topics      []models.PolymarketTopic
	accounts    []models.TwitterAccount
	feeds       []models.RSSFeed
	telegramErr error
}

func (f *fakeConfig) EnabledTelegramChannels() ([]models.TelegramChannel, error) {
	return f.channels, f.telegramErr
}
func (f *fakeConfig) EnabledPolymarketTopics() ([]models.PolymarketTopic, error) { return f.topics, nil }
func (f *fakeConfig) EnabledTwitterAccounts() ([]models.TwitterAccount, error)   { return f.accounts, nil }
func (f *fakeConfig) EnabledRSSFeeds() ([]models.RSSFeed, error)                 { return f.feeds, nil }

type fakeTelegram struct {
	mu   sync.Mutex
	got  []models.TelegramChannel
	fail error
	down map[string]bool // usernames whose upstream fails
}

func (f *fakeTelegram) Fetch(_ context.Context, channels []models.TelegramChannel, _ int) ([]telegram.Post, []models.ConfigFailure, error) {
	f.mu.Lock()
	f.got = channels
	f.mu.Unlock()
	if f.fail != nil {
		return nil, nil, f.fail
	}
	var out []telegram.Post
	var failures []models.ConfigFailure
	for _, ch := range channels {
		if f.down[ch.Username] {
			failures = append(failures, models.ConfigFailure{Config: ch.Username, Error: "status 502"})
			continue
		}
		out = append(out, telegram.Post{ChannelUsername: ch.Username, MessageID: "1", Text: "tg post", Date: now.Add(-3 * time.Hour)})
	}
	return out, failures, nil
}
func (f *fakeTelegram) BaseURL() string { return "https://t.me" }

type fakePolymarket struct{ panics bool }

func (f *fakePolymarket) Fetch(_ context.Context, topics []models.PolymarketTopic, _ int) ([]polymarket.TopicMarket, []models.ConfigFailure, error) {
	if f.panics {
		panic("boom")
	}
	var out []polymarket.TopicMarket
	for _, t := range topics {
		out = append(out, polymarket.TopicMarket{Topic: t, Market: polymarket.Market{ID: "m-" + t.ID, Question: "Will it?"}})
	}
	return out, nil, nil
}

type fakeTwitter struct{}

func (fakeTwitter) Fetch(_ context.Context, accounts []models.TwitterAccount, _ int) ([]twitter.Tweet, []models.ConfigFailure, error) {
	var out []twitter.Tweet
	for _, a := range accounts {
		out = append(out, twitter.Tweet{ID: "t1", Text: "tweet", CreatedAt: now.Add(-time.Hour), Account: a})
	}
	return out, nil, nil
}

type fakeRSS struct{}

func (fakeRSS) Fetch(_ context.Context, feeds []models.RSSFeed, _ int) ([]rss.Item, []models.ConfigFailure, error) {
	var out []rss.Item
	for _, f := range feeds {
		out = append(out, rss.Item{Feed: f, Title: "headline", Link: "https://x/" + f.ID, Published: now.Add(-2 * time.Hour)})
	}
	return out, nil, nil
}

func fullConfig() *fakeConfig {
	return &fakeConfig{
		channels: []models.TelegramChannel{
			{ID: "c1", Username: "alpha", Enabled: true},
			{ID: "c2", Username: "beta", Enabled: false},
		},
		topics:   []models.PolymarketTopic{{ID: "p1", Name: "Crypto", Enabled: true}},
		accounts: []models.TwitterAccount{{ID: "a1", Username: "elonmusk", Enabled: true}},
		feeds:    []models.RSSFeed{{ID: "f1", Name: "Feed", Enabled: true}},
	}
}

func newScraper(cfg *fakeConfig, tg *fakeTelegram, pm *fakePolymarket) *Scraper {
	s := New(Deps{
		Config:     cfg,
		Telegram:   tg,
		Polymarket: pm,
		Twitter:    fakeTwitter{},
		RSS:        fakeRSS{},
	})
	s.now = func() time.Time { return now }
	return s
}

func TestScrapeAllMergesAndSorts(t *testing.T) {
	tg := &fakeTelegram{}
	res, err := newScraper(fullConfig(), tg, &fakePolymarket{}).ScrapeAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, models.ScrapeStats{Telegram: 1, Polymarket: 1, Twitter: 1, RSS: 1, Total: 4}, res.Stats)
	require.Len(t, res.Posts, 4)

	// Polymarket posts are stamped "now" and sort first; then 1h, 2h, 3h old.
	var order []models.SourceType
	for _, p := range res.Posts {
		order = append(order, p.Source)
	}
	assert.Equal(t, []models.SourceType{models.SourcePolymarket, models.SourceTwitter, models.SourceRSS, models.SourceTelegram}, order)
}

func TestScrapeAllExcludesDisabledConfigs(t *testing.T) {
	tg := &fakeTelegram{}
	_, err := newScraper(fullConfig(), tg, &fakePolymarket{}).ScrapeAll(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, tg.got, 1)
	assert.Equal(t, "alpha", tg.got[0].Username)
}

func TestScrapeAllIsolatesFailures(t *testing.T) {
	cfg := fullConfig()
	cfg.telegramErr = errors.New("store unavailable")

	res, err := newScraper(cfg, &fakeTelegram{}, &fakePolymarket{panics: true}).ScrapeAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 2)
	failed := map[models.SourceType]string{}
	for _, e := range res.Errors {
		failed[e.Source] = e.Error
	}
	assert.Contains(t, failed[models.SourceTelegram], "store unavailable")
	assert.Contains(t, failed[models.SourcePolymarket], "panic")

	assert.Equal(t, 1, res.Stats.Twitter)
	assert.Equal(t, 1, res.Stats.RSS)
	assert.Equal(t, 2, res.Stats.Total)
	assert.Equal(t, "load telegram channels: store unavailable", res.Sources[models.SourceTelegram].Error)
	assert.Equal(t, 1, res.Sources[models.SourceRSS].Posts)
}

func TestScrapeAllOneFailingSourceOfFour(t *testing.T) {
	tg := &fakeTelegram{down: map[string]bool{"alpha": true}}
	res, err := newScraper(fullConfig(), tg, &fakePolymarket{}).ScrapeAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, models.SourceTelegram, res.Errors[0].Source)
	assert.Contains(t, res.Errors[0].Error, "all 1 telegram configs failed")

	assert.Equal(t, models.ScrapeStats{Polymarket: 1, Twitter: 1, RSS: 1, Total: 3}, res.Stats)
	got := map[models.SourceType]int{}
	for _, p := range res.Posts {
		got[p.Source]++
	}
	assert.Equal(t, map[models.SourceType]int{models.SourcePolymarket: 1, models.SourceTwitter: 1, models.SourceRSS: 1}, got)

	tgOutcome := res.Sources[models.SourceTelegram]
	assert.Equal(t, 1, tgOutcome.Failed)
	assert.Equal(t, []string{"alpha"}, tgOutcome.FailedConfigs)
	assert.NotEmpty(t, tgOutcome.Error)
	assert.Empty(t, res.Sources[models.SourceRSS].Error)
}

func TestScrapeAllPartialConfigFailureIsNotAnError(t *testing.T) {
	cfg := fullConfig()
	cfg.channels[1].Enabled = true
	tg := &fakeTelegram{down: map[string]bool{"beta": true}}

	res, err := newScraper(cfg, tg, &fakePolymarket{}).ScrapeAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Empty(t, res.Errors)
	assert.Equal(t, models.SourceOutcome{Enabled: true, Configs: 2, Posts: 1, Failed: 1, FailedConfigs: []string{"beta"}},
		res.Sources[models.SourceTelegram])
}

// rssOnly wires a real RSS client against srv so upstream status codes flow
// through the adapter unchanged.
func rssOnly(t *testing.T, feeds []models.RSSFeed) *Scraper {
	t.Helper()
	g := fetch.New(fetch.Options{Timeout: 2 * time.Second, MaxAttempts: 1, InitialInterval: time.Millisecond})
	s := New(Deps{
		Config: &fakeConfig{feeds: feeds},
		RSS:    rss.New(g, rss.Options{Timeout: time.Second}),
	})
	s.now = func() time.Time { return now }
	return s
}

func TestScrapeAllDistinguishesFailingFromEmptyFeeds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/empty.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Quiet</title></channel></rss>`)
	})
	srv := httptest.NewServer(mux) // anything else is a 404
	defer srv.Close()

	t.Run("all feeds missing", func(t *testing.T) {
		res, err := rssOnly(t, []models.RSSFeed{
			{ID: "a", Name: "Gone", URL: srv.URL + "/gone.xml", Enabled: true},
			{ID: "b", Name: "Moved", URL: srv.URL + "/moved.xml", Enabled: true},
		}).ScrapeAll(context.Background(), Options{})
		require.NoError(t, err)

		assert.False(t, res.Success)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, models.SourceRSS, res.Errors[0].Source)
		assert.Contains(t, res.Errors[0].Error, "all 2 rss configs failed")
		assert.Contains(t, res.Errors[0].Error, "404")

		out := res.Sources[models.SourceRSS]
		assert.Equal(t, 2, out.Configs)
		assert.Equal(t, 2, out.Failed)
		assert.Equal(t, []string{"Gone", "Moved"}, out.FailedConfigs)
		assert.Zero(t, out.Posts)
	})

	t.Run("feed empty", func(t *testing.T) {
		res, err := rssOnly(t, []models.RSSFeed{
			{ID: "c", Name: "Quiet", URL: srv.URL + "/empty.xml", Enabled: true},
		}).ScrapeAll(context.Background(), Options{})
		require.NoError(t, err)

		assert.True(t, res.Success)
		assert.Empty(t, res.Errors)
		assert.Equal(t, models.SourceOutcome{Enabled: true, Configs: 1}, res.Sources[models.SourceRSS])
	})
}

func TestScrapeAllSourceSelection(t *testing.T) {
	sel := Sources{RSS: true}
	res, err := newScraper(fullConfig(), &fakeTelegram{}, &fakePolymarket{}).ScrapeAll(context.Background(), Options{Sources: &sel})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Total)
	assert.False(t, res.Sources[models.SourceTelegram].Enabled)
	assert.True(t, res.Sources[models.SourceRSS].Enabled)
	assert.Equal(t, 1, res.Sources[models.SourceRSS].Configs)
}

func TestScrapeAllWithNoEnabledSources(t *testing.T) {
	res, err := newScraper(&fakeConfig{}, &fakeTelegram{}, &fakePolymarket{}).ScrapeAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Posts)
	assert.NotNil(t, res.Posts)
	assert.True(t, res.Sources[models.SourceTwitter].Enabled)
	assert.Zero(t, res.Sources[models.SourceTwitter].Configs)
}

func TestScrapeAllReportsProgress(t *testing.T) {
	var events []models.ScrapeProgress
	sink := func(ev models.ScrapeProgress) { events = append(events, ev) }

	_, err := newScraper(fullConfig(), &fakeTelegram{}, &fakePolymarket{}).ScrapeAll(context.Background(), Options{OnProgress: sink})
	require.NoError(t, err)

	require.Len(t, events, 9, "start and finish per source plus completion")
	last := events[len(events)-1]
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, 4, last.Progress)
	assert.Equal(t, 4, last.Total)
	assert.Equal(t, "Completed! Found 4 posts from 4 sources", last.Message)
	assert.Equal(t, models.SourceProgress{Completed: 1, Total: 1}, last.SourceBreakdown[models.SourceRSS])
}

func TestScrapeAllSurvivesPanickingSink(t *testing.T) {
	sink := func(models.ScrapeProgress) { panic("observer bug") }
	res, err := newScraper(fullConfig(), &fakeTelegram{}, &fakePolymarket{}).ScrapeAll(context.Background(), Options{OnProgress: sink})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestScrapeAllIDsStableAcrossRuns(t *testing.T) {
	s := newScraper(fullConfig(), &fakeTelegram{}, &fakePolymarket{})
	first, err := s.ScrapeAll(context.Background(), Options{})
	require.NoError(t, err)
	second, err := s.ScrapeAll(context.Background(), Options{})
	require.NoError(t, err)

	ids := func(r *models.ScrapeResult) map[string]bool {
		m := map[string]bool{}
		for _, p := range r.Posts {
			m[p.ID] = true
		}
		return m
	}
	assert.Equal(t, ids(first), ids(second))
	assert.NotEqual(t, first.RunID, second.RunID)
}
