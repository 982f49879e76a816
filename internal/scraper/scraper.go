// Package scraper runs every enabled source adapter for one ingestion cycle
// and merges their normalized posts.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thinkscotty/prophet/internal/metrics"
	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/normalize"
	"github.com/thinkscotty/prophet/internal/polymarket"
	"github.com/thinkscotty/prophet/internal/rss"
	"github.com/thinkscotty/prophet/internal/telegram"
	"github.com/thinkscotty/prophet/internal/twitter"
)

// ConfigReader supplies the enabled source configurations at the start of a run.
type ConfigReader interface {
	EnabledTelegramChannels() ([]models.TelegramChannel, error)
	EnabledPolymarketTopics() ([]models.PolymarketTopic, error)
	EnabledTwitterAccounts() ([]models.TwitterAccount, error)
	EnabledRSSFeeds() ([]models.RSSFeed, error)
}

type TelegramFetcher interface {
	Fetch(ctx context.Context, channels []models.TelegramChannel, daysBack int) ([]telegram.Post, []models.ConfigFailure, error)
	BaseURL() string
}

type PolymarketFetcher interface {
	Fetch(ctx context.Context, topics []models.PolymarketTopic, daysBack int) ([]polymarket.TopicMarket, []models.ConfigFailure, error)
}

type TwitterFetcher interface {
	Fetch(ctx context.Context, accounts []models.TwitterAccount, daysBack int) ([]twitter.Tweet, []models.ConfigFailure, error)
}

type RSSFetcher interface {
	Fetch(ctx context.Context, feeds []models.RSSFeed, daysBack int) ([]rss.Item, []models.ConfigFailure, error)
}

// Sources selects which adapters take part in a run.
type Sources struct {
	Telegram   bool `json:"telegram"`
	Polymarket bool `json:"polymarket"`
	Twitter    bool `json:"twitter"`
	RSS        bool `json:"rss"`
}

// AllSources selects every adapter.
func AllSources() Sources {
	return Sources{Telegram: true, Polymarket: true, Twitter: true, RSS: true}
}

// Has reports whether src is selected.
func (s Sources) Has(src models.SourceType) bool {
	switch src {
	case models.SourceTelegram:
		return s.Telegram
	case models.SourcePolymarket:
		return s.Polymarket
	case models.SourceTwitter:
		return s.Twitter
	case models.SourceRSS:
		return s.RSS
	}
	return false
}

// ProgressFunc observes a run. It may be called from several goroutines,
// but never concurrently.
type ProgressFunc func(models.ScrapeProgress)

// Options controls one run. A nil Sources means all sources.
type Options struct {
	DaysBack   int
	Sources    *Sources
	OnProgress ProgressFunc
}

// Deps wires the orchestrator. Any nil adapter is treated as disabled.
type Deps struct {
	Config     ConfigReader
	Telegram   TelegramFetcher
	Polymarket PolymarketFetcher
	Twitter    TwitterFetcher
	RSS        RSSFetcher
	Metrics    *metrics.Metrics
}

// Scraper coordinates the source adapters.
type Scraper struct {
	config     ConfigReader
	telegram   TelegramFetcher
	polymarket PolymarketFetcher
	twitter    TwitterFetcher
	rss        RSSFetcher
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New creates a Scraper.
func New(d Deps) *Scraper {
	return &Scraper{
		config:     d.Config,
		telegram:   d.Telegram,
		polymarket: d.Polymarket,
		twitter:    d.Twitter,
		rss:        d.RSS,
		metrics:    d.Metrics,
		now:        time.Now,
	}
}

// chain is one source's full pipeline: read configs, fetch, normalize.
type chain func(ctx context.Context, daysBack int) chainResult

type chainResult struct {
	source   models.SourceType
	posts    []models.UnifiedPost
	configs  int
	failures []models.ConfigFailure
	err      error
}

// outcome folds the per-config failures into the source error: a source
// whose every config failed upstream is an error even though the adapter
// returned none.
func (r chainResult) outcome() (models.SourceOutcome, error) {
	o := models.SourceOutcome{Enabled: true, Configs: r.configs, Posts: len(r.posts), Failed: len(r.failures)}
	for _, f := range r.failures {
		o.FailedConfigs = append(o.FailedConfigs, f.Config)
	}
	err := r.err
	if err == nil && r.configs > 0 && len(r.failures) >= r.configs {
		err = fmt.Errorf("all %d %s configs failed: %s", r.configs, r.source, r.failures[0].Error)
	}
	if err != nil {
		o.Error = err.Error()
	}
	return o, err
}

// ScrapeAll runs every selected source concurrently. A failing or panicking
// source is recorded in the result's Errors and never affects the others.
// The returned error is non-nil only when ctx ends before the run completes.
func (s *Scraper) ScrapeAll(ctx context.Context, opts Options) (*models.ScrapeResult, error) {
	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = 2
	}
	selected := AllSources()
	if opts.Sources != nil {
		selected = *opts.Sources
	}

	var kinds []models.SourceType
	for _, src := range models.AllSources {
		if selected.Has(src) && s.chainFor(src) != nil {
			kinds = append(kinds, src)
		}
	}

	runID := uuid.NewString()
	slog.Info("Starting scrape run", "run_id", runID, "sources", kinds, "days_back", daysBack)

	prog := newProgress(opts.OnProgress, len(kinds))
	results := make([]chainResult, len(kinds))

	var g errgroup.Group
	for i, src := range kinds {
		g.Go(func() error {
			prog.started(src)
			start := time.Now()

			r := s.runChain(ctx, src, daysBack)
			r.source = src
			results[i] = r

			failed := r.err != nil || (r.configs > 0 && len(r.failures) >= r.configs)
			s.metrics.ObserveSource(string(src), len(r.posts), failed, time.Since(start))
			prog.finished(src, len(r.posts))
			return nil
		})
	}
	_ = g.Wait()

	result := &models.ScrapeResult{
		RunID:   runID,
		Posts:   []models.UnifiedPost{},
		Errors:  []models.SourceError{},
		Sources: make(map[models.SourceType]models.SourceOutcome, len(models.AllSources)),
	}
	for _, src := range models.AllSources {
		result.Sources[src] = models.SourceOutcome{}
	}
	for _, r := range results {
		outcome, err := r.outcome()
		if err != nil {
			result.Errors = append(result.Errors, models.SourceError{Source: r.source, Error: err.Error()})
			slog.Error("Source failed", "run_id", runID, "source", r.source, "error", err)
		} else if outcome.Failed > 0 {
			slog.Warn("Source partially failed", "run_id", runID, "source", r.source,
				"failed", outcome.Failed, "configs", outcome.Configs, "failed_configs", outcome.FailedConfigs)
		}
		result.Sources[r.source] = outcome
		result.Posts = append(result.Posts, r.posts...)
		result.Stats.Add(r.source, len(r.posts))
	}

	sort.SliceStable(result.Posts, func(i, j int) bool {
		return result.Posts[i].Time().After(result.Posts[j].Time())
	})
	result.Success = len(result.Errors) == 0

	prog.finish(result.Stats)
	s.metrics.ObserveRun(result.Success, result.Stats.Total)
	slog.Info("Scrape run finished", "run_id", runID, "posts", result.Stats.Total, "errors", len(result.Errors))

	return result, ctx.Err()
}

// runChain executes one source chain, converting a panic into an error.
func (s *Scraper) runChain(ctx context.Context, src models.SourceType, daysBack int) (res chainResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in source chain", "source", src, "panic", r, "stack", string(debug.Stack()))
			res.posts, res.err = nil, fmt.Errorf("panic while scraping %s: %v", src, r)
		}
	}()
	return s.chainFor(src)(ctx, daysBack)
}

func (s *Scraper) chainFor(src models.SourceType) chain {
	if s.config == nil {
		return nil
	}
	switch src {
	case models.SourceTelegram:
		if s.telegram != nil {
			return s.scrapeTelegram
		}
	case models.SourcePolymarket:
		if s.polymarket != nil {
			return s.scrapePolymarket
		}
	case models.SourceTwitter:
		if s.twitter != nil {
			return s.scrapeTwitter
		}
	case models.SourceRSS:
		if s.rss != nil {
			return s.scrapeRSS
		}
	}
	return nil
}

func (s *Scraper) scrapeTelegram(ctx context.Context, daysBack int) chainResult {
	all, err := s.config.EnabledTelegramChannels()
	if err != nil {
		return chainResult{err: fmt.Errorf("load telegram channels: %w", err)}
	}
	channels := enabledOnly(all, func(c models.TelegramChannel) bool { return c.Enabled })
	if len(channels) == 0 {
		return chainResult{}
	}
	raw, failures, err := s.telegram.Fetch(ctx, channels, daysBack)
	return chainResult{
		posts:    normalize.TelegramPosts(raw, s.telegram.BaseURL(), s.now()),
		configs:  len(channels),
		failures: failures,
		err:      err,
	}
}

func (s *Scraper) scrapePolymarket(ctx context.Context, daysBack int) chainResult {
	all, err := s.config.EnabledPolymarketTopics()
	if err != nil {
		return chainResult{err: fmt.Errorf("load polymarket topics: %w", err)}
	}
	topics := enabledOnly(all, func(t models.PolymarketTopic) bool { return t.Enabled })
	if len(topics) == 0 {
		return chainResult{}
	}
	raw, failures, err := s.polymarket.Fetch(ctx, topics, daysBack)
	return chainResult{
		posts:    normalize.PolymarketPosts(raw, s.now()),
		configs:  len(topics),
		failures: failures,
		err:      err,
	}
}

func (s *Scraper) scrapeTwitter(ctx context.Context, daysBack int) chainResult {
	all, err := s.config.EnabledTwitterAccounts()
	if err != nil {
		return chainResult{err: fmt.Errorf("load twitter accounts: %w", err)}
	}
	accounts := enabledOnly(all, func(a models.TwitterAccount) bool { return a.Enabled })
	if len(accounts) == 0 {
		return chainResult{}
	}
	raw, failures, err := s.twitter.Fetch(ctx, accounts, daysBack)
	return chainResult{
		posts:    normalize.TwitterPosts(raw, s.now()),
		configs:  len(accounts),
		failures: failures,
		err:      err,
	}
}

func (s *Scraper) scrapeRSS(ctx context.Context, daysBack int) chainResult {
	all, err := s.config.EnabledRSSFeeds()
	if err != nil {
		return chainResult{err: fmt.Errorf("load rss feeds: %w", err)}
	}
	feeds := enabledOnly(all, func(f models.RSSFeed) bool { return f.Enabled })
	if len(feeds) == 0 {
		return chainResult{}
	}
	raw, failures, err := s.rss.Fetch(ctx, feeds, daysBack)
	return chainResult{
		posts:    normalize.RSSPosts(raw, s.now()),
		configs:  len(feeds),
		failures: failures,
		err:      err,
	}
}

func enabledOnly[T any](items []T, enabled func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if enabled(it) {
			out = append(out, it)
		}
	}
	return out
}
