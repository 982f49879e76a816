// Package scheduler runs ingestion and question generation cycles, either on
// demand, on a fixed interval or on a cron schedule. One run lock is shared by
// every entry point.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/questions"
	"github.com/thinkscotty/prophet/internal/scraper"
)

// ErrAlreadyRunning is returned when a cycle is requested while another is in progress.
var ErrAlreadyRunning = errors.New("a scrape or generation run is already in progress")

const (
	KindScrape       = "scrape"
	KindGenerate     = "generate"
	KindGenerateMock = "generate-mock"
)

// Store persists the latest posts, the current questions and the run history.
type Store interface {
	SavePosts(posts []models.UnifiedPost) error
	GetPosts() ([]models.UnifiedPost, error)
	SaveQuestions(questions []models.GeneratedQuestion) error
	LogRun(r models.RunLog) error
}

type Scraper interface {
	ScrapeAll(ctx context.Context, opts scraper.Options) (*models.ScrapeResult, error)
}

type Synthesizer interface {
	Generate(ctx context.Context, posts []models.UnifiedPost) (*questions.Result, error)
}

type MockGenerator interface {
	Generate(posts []models.UnifiedPost) ([]models.GeneratedQuestion, error)
}

type Snapshotter interface {
	Save(questions []models.GeneratedQuestion) (string, error)
}

// Config controls periodic runs. Cron takes precedence over Interval; with
// neither set the loop is disabled.
type Config struct {
	Interval            time.Duration
	Cron                string // five-field expression or descriptor such as "@hourly"
	DaysBack            int
	GenerateAfterScrape bool
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron validates a cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return sched, nil
}

// Deps wires the scheduler. Mock and Snapshots may be nil.
type Deps struct {
	Store       Store
	Scraper     Scraper
	Synthesizer Synthesizer
	Mock        MockGenerator
	Snapshots   Snapshotter
}

// Generation is the outcome of one generation run.
type Generation struct {
	Result   *questions.Result
	Snapshot string
	Mock     bool
}

type Scheduler struct {
	store     Store
	scraper   Scraper
	synth     Synthesizer
	mock      MockGenerator
	snapshots Snapshotter
	cfg       Config

	run sync.Mutex
	now func() time.Time

	progressMu sync.RWMutex
	progress   models.ScrapeProgress
}

func New(d Deps, cfg Config) *Scheduler {
	if cfg.DaysBack <= 0 {
		cfg.DaysBack = 2
	}
	return &Scheduler{
		store:     d.Store,
		scraper:   d.Scraper,
		synth:     d.Synthesizer,
		mock:      d.Mock,
		snapshots: d.Snapshots,
		cfg:       cfg,
		now:       time.Now,
		progress:  models.ScrapeProgress{Status: "idle"},
	}
}

// Run starts the periodic loop and blocks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	if s.cfg.Cron != "" {
		s.runCron(ctx)
		return
	}
	if s.cfg.Interval <= 0 {
		slog.Info("Scheduler disabled, runs are on demand only")
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	slog.Info("Scheduler started", "interval", s.cfg.Interval, "generate_after_scrape", s.cfg.GenerateAfterScrape)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.safeCycle(ctx)
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context) {
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(s.cfg.Cron, func() { s.safeCycle(ctx) }); err != nil {
		slog.Error("Invalid cron schedule, scheduler disabled", "cron", s.cfg.Cron, "error", err)
		return
	}
	c.Start()
	slog.Info("Scheduler started", "cron", s.cfg.Cron, "generate_after_scrape", s.cfg.GenerateAfterScrape)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in scheduled cycle", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	s.cycle(ctx)
}

func (s *Scheduler) cycle(ctx context.Context) {
	result, err := s.Scrape(ctx, scraper.Options{DaysBack: s.cfg.DaysBack})
	if errors.Is(err, ErrAlreadyRunning) {
		slog.Debug("Skipping scheduled cycle, a run is in progress")
		return
	}
	if err != nil {
		slog.Error("Scheduled scrape failed", "error", err)
		return
	}
	if !s.cfg.GenerateAfterScrape || result.Stats.Total == 0 {
		return
	}
	if _, err := s.Generate(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		slog.Error("Scheduled generation failed", "error", err)
	}
}

// Progress returns the latest ingestion progress event.
func (s *Scheduler) Progress() models.ScrapeProgress {
	s.progressMu.RLock()
	defer s.progressMu.RUnlock()
	return s.progress
}

func (s *Scheduler) setProgress(p models.ScrapeProgress) {
	s.progressMu.Lock()
	s.progress = p
	s.progressMu.Unlock()
}

// Scrape runs one ingestion cycle and replaces the stored posts with its
// result. Any OnProgress in opts is still called.
func (s *Scheduler) Scrape(ctx context.Context, opts scraper.Options) (*models.ScrapeResult, error) {
	if !s.run.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer s.run.Unlock()

	if opts.DaysBack <= 0 {
		opts.DaysBack = s.cfg.DaysBack
	}
	observer := opts.OnProgress
	opts.OnProgress = func(p models.ScrapeProgress) {
		s.setProgress(p)
		if observer != nil {
			observer(p)
		}
	}

	started := s.now()
	result, err := s.scraper.ScrapeAll(ctx, opts)
	entry := models.RunLog{Kind: KindScrape, StartedAt: started, Duration: s.now().Sub(started).Seconds()}
	if result != nil {
		entry.ID = result.RunID
		entry.Posts = result.Stats.Total
		entry.Errors = len(result.Errors)
	}
	if err != nil {
		s.setProgress(models.ScrapeProgress{Status: "error", Message: err.Error()})
		s.logRun(entry, err)
		return nil, fmt.Errorf("scrape: %w", err)
	}

	if err := s.store.SavePosts(result.Posts); err != nil {
		s.logRun(entry, err)
		return nil, fmt.Errorf("save posts: %w", err)
	}
	entry.Success = result.Success
	s.logRun(entry, nil)
	return result, nil
}

// Generate synthesizes questions from the stored posts with the model.
func (s *Scheduler) Generate(ctx context.Context) (*Generation, error) {
	return s.generate(KindGenerate, func(posts []models.UnifiedPost) (*questions.Result, error) {
		return s.synth.Generate(ctx, posts)
	})
}

// GenerateMock produces template questions from the stored posts without a model.
func (s *Scheduler) GenerateMock() (*Generation, error) {
	if s.mock == nil {
		return nil, errors.New("mock generation not available")
	}
	return s.generate(KindGenerateMock, func(posts []models.UnifiedPost) (*questions.Result, error) {
		qs, err := s.mock.Generate(posts)
		if err != nil {
			return nil, err
		}
		return &questions.Result{Questions: qs, Eligible: len(posts)}, nil
	})
}

func (s *Scheduler) generate(kind string, produce func([]models.UnifiedPost) (*questions.Result, error)) (*Generation, error) {
	if !s.run.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer s.run.Unlock()

	started := s.now()
	entry := models.RunLog{ID: uuid.NewString(), Kind: kind, StartedAt: started}

	posts, err := s.store.GetPosts()
	if err != nil {
		s.logRun(entry, err)
		return nil, fmt.Errorf("load posts: %w", err)
	}
	entry.Posts = len(posts)

	result, err := produce(posts)
	entry.Duration = s.now().Sub(started).Seconds()
	if err != nil {
		s.logRun(entry, err)
		return nil, err
	}
	entry.Questions = len(result.Questions)
	entry.Errors = result.FailedBatches
	entry.TokensUsed = result.TokensUsed

	if err := s.store.SaveQuestions(result.Questions); err != nil {
		s.logRun(entry, err)
		return nil, fmt.Errorf("save questions: %w", err)
	}

	gen := &Generation{Result: result, Mock: kind == KindGenerateMock}
	if s.snapshots != nil {
		name, err := s.snapshots.Save(result.Questions)
		if err != nil {
			slog.Error("Failed to write question snapshot", "error", err)
		} else {
			gen.Snapshot = name
			slog.Info("Saved question snapshot", "file", name, "questions", len(result.Questions))
		}
	}

	entry.Success = true
	s.logRun(entry, nil)
	return gen, nil
}

func (s *Scheduler) logRun(entry models.RunLog, runErr error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if runErr != nil {
		entry.Success = false
		entry.ErrorMessage = runErr.Error()
	}
	if entry.Duration == 0 {
		entry.Duration = s.now().Sub(entry.StartedAt).Seconds()
	}
	if err := s.store.LogRun(entry); err != nil {
		slog.Warn("Failed to record run", "kind", entry.Kind, "error", err)
	}
}
