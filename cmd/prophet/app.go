package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/thinkscotty/prophet/internal/ai"
	"github.com/thinkscotty/prophet/internal/config"
	"github.com/thinkscotty/prophet/internal/database"
	"github.com/thinkscotty/prophet/internal/fetch"
	"github.com/thinkscotty/prophet/internal/metrics"
	"github.com/thinkscotty/prophet/internal/polymarket"
	"github.com/thinkscotty/prophet/internal/questions"
	"github.com/thinkscotty/prophet/internal/rss"
	"github.com/thinkscotty/prophet/internal/scheduler"
	"github.com/thinkscotty/prophet/internal/scraper"
	"github.com/thinkscotty/prophet/internal/telegram"
	"github.com/thinkscotty/prophet/internal/twitter"
)

// app holds every wired service for one process.
type app struct {
	db        *database.DB
	registry  *prometheus.Registry
	rss       *rss.Client
	snapshots *questions.SnapshotStore
	sched     *scheduler.Scheduler
}

func newApp(cfg config.Config) (*app, error) {
	if cfg.Scheduler.Cron != "" {
		if _, err := scheduler.ParseCron(cfg.Scheduler.Cron); err != nil {
			return nil, err
		}
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	slog.Info("Database initialized", "path", cfg.Database.Path)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	sc := cfg.Scrape
	httpClient := fetch.New(fetch.Options{
		Timeout:     config.Seconds(sc.HTTP.TimeoutSeconds, 30*time.Second),
		MaxAttempts: sc.HTTP.MaxAttempts,
		MaxElapsed:  config.Seconds(sc.HTTP.MaxElapsedSeconds, time.Minute),
	})
	rssClient := rss.New(httpClient, rss.Options{
		Timeout:   config.Seconds(sc.RSS.TimeoutSeconds, 10*time.Second),
		Parallel:  sc.RSS.Parallel,
		UserAgent: sc.RSS.UserAgent,
	})
	if sc.Twitter.APIKey == "" {
		slog.Warn("RAPIDAPI_KEY not set, Twitter will return no posts")
	}

	ingest := scraper.New(scraper.Deps{
		Config: db,
		Telegram: telegram.New(telegram.Options{
			BaseURL:  sc.Telegram.BaseURL,
			MaxPages: sc.Telegram.MaxPages,
			Delay:    config.Millis(sc.Telegram.RequestDelayMS),
			Timeout:  config.Seconds(sc.HTTP.TimeoutSeconds, 30*time.Second),
		}),
		Polymarket: polymarket.New(httpClient, sc.Polymarket.Endpoints),
		Twitter: twitter.New(httpClient, twitter.NewGate(config.Millis(sc.Twitter.MinIntervalMS)), twitter.Options{
			Host:    sc.Twitter.Host,
			BaseURL: sc.Twitter.BaseURL,
			APIKey:  sc.Twitter.APIKey,
			Count:   sc.Twitter.Count,
		}),
		RSS:     rssClient,
		Metrics: m,
	})

	aiTimeout := config.Seconds(cfg.AI.TimeoutSeconds, 2*time.Minute)
	provider := ai.NewProvider(cfg.AI.Provider, ai.OpenAIConfig{
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		APIKey:  cfg.AI.APIKey,
		Timeout: aiTimeout,
	}, ai.GeminiConfig{
		BaseURL: cfg.AI.GeminiBaseURL,
		Model:   cfg.AI.GeminiModel,
		APIKey:  cfg.AI.GeminiAPIKey,
		Timeout: aiTimeout,
	})
	model := ai.NewClient(provider, cfg.Questions.MaxTokens)
	if !model.Configured() {
		slog.Warn("Model API key not set, only mock generation is available", "provider", provider.Name())
	}

	q := cfg.Questions
	synth := questions.New(model, questions.Options{
		BatchSize:           q.BatchSize,
		MinTextLength:       q.MinTextLength,
		MaxTextChars:        q.MaxTextChars,
		Parallel:            q.Parallel,
		SimilarityThreshold: q.SimilarityThreshold,
	}, m)
	snapshots := questions.NewSnapshotStore(q.SnapshotDir)

	sched := scheduler.New(scheduler.Deps{
		Store:       db,
		Scraper:     ingest,
		Synthesizer: synth,
		Mock:        questions.NewMock(uint64(time.Now().UnixNano())),
		Snapshots:   snapshots,
	}, scheduler.Config{
		Interval:            time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute,
		Cron:                cfg.Scheduler.Cron,
		DaysBack:            sc.DaysBack,
		GenerateAfterScrape: cfg.Scheduler.GenerateAfterScrape,
	})

	return &app{db: db, registry: registry, rss: rssClient, snapshots: snapshots, sched: sched}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}
