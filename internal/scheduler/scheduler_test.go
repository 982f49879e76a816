package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkscotty/prophet/internal/ai"
	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/questions"
	"github.com/thinkscotty/prophet/internal/scraper"
)

type memStore struct {
	mu        sync.Mutex
	posts     []models.UnifiedPost
	questions []models.GeneratedQuestion
	runs      []models.RunLog
}

func (m *memStore) SavePosts(p []models.UnifiedPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = p
	return nil
}

func (m *memStore) GetPosts() ([]models.UnifiedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts, nil
}

func (m *memStore) SaveQuestions(q []models.GeneratedQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions = q
	return nil
}

func (m *memStore) LogRun(r models.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func (m *memStore) lastRun() models.RunLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[len(m.runs)-1]
}

type fakeScraper struct {
	release chan struct{}
	entered chan struct{}
	err     error
	calls   int
	opts    scraper.Options
}

func (f *fakeScraper) ScrapeAll(ctx context.Context, opts scraper.Options) (*models.ScrapeResult, error) {
	f.calls++
	f.opts = opts
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	if opts.OnProgress != nil {
		opts.OnProgress(models.ScrapeProgress{Status: "completed", Progress: 1, Total: 1})
	}
	res := &models.ScrapeResult{
		RunID:   "run-1",
		Success: true,
		Posts:   samplePosts(3),
		Errors:  []models.SourceError{},
	}
	res.Stats.Add(models.SourceRSS, 3)
	return res, f.err
}

type fakeSynth struct {
	err error
}

func (f fakeSynth) Generate(ctx context.Context, posts []models.UnifiedPost) (*questions.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &questions.Result{
		Questions:  []models.GeneratedQuestion{{ID: "q_1_0", Question: "Will it happen within the next 24 hours?", SourceIDs: []string{posts[0].ID}}},
		Eligible:   len(posts),
		Batches:    1,
		TokensUsed: 42,
	}, nil
}

func samplePosts(n int) []models.UnifiedPost {
	posts := make([]models.UnifiedPost, n)
	for i := range posts {
		posts[i] = models.UnifiedPost{ID: fmt.Sprintf("rss_%d", i), Source: models.SourceRSS, Text: "Bitcoin ETF inflows hit a record high"}
	}
	return posts
}

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, sc Scraper, synth Synthesizer) (*Scheduler, *memStore) {
	t.Helper()
	store := &memStore{}
	snaps := questions.NewSnapshotStore(t.TempDir())
	s := New(Deps{
		Store:       store,
		Scraper:     sc,
		Synthesizer: synth,
		Mock:        questions.NewMock(7),
		Snapshots:   snaps,
	}, Config{DaysBack: 3})
	s.now = func() time.Time { return fixedNow }
	return s, store
}

func TestScrapeSavesPostsAndLogsRun(t *testing.T) {
	sc := &fakeScraper{}
	s, store := newTestScheduler(t, sc, fakeSynth{})

	var seen []models.ScrapeProgress
	res, err := s.Scrape(context.Background(), scraper.Options{OnProgress: func(p models.ScrapeProgress) { seen = append(seen, p) }})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Total)
	assert.Equal(t, 3, sc.opts.DaysBack, "configured days back applies when unset")
	assert.Len(t, store.posts, 3)
	assert.Len(t, seen, 1, "caller observer still receives events")
	assert.Equal(t, "completed", s.Progress().Status)

	run := store.lastRun()
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, KindScrape, run.Kind)
	assert.True(t, run.Success)
	assert.Equal(t, 3, run.Posts)
}

func TestScrapeCancelled(t *testing.T) {
	sc := &fakeScraper{err: context.Canceled}
	s, store := newTestScheduler(t, sc, fakeSynth{})

	_, err := s.Scrape(context.Background(), scraper.Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.posts)
	assert.False(t, store.lastRun().Success)
	assert.Equal(t, "error", s.Progress().Status)
}

func TestRunLockIsShared(t *testing.T) {
	sc := &fakeScraper{entered: make(chan struct{}), release: make(chan struct{})}
	s, _ := newTestScheduler(t, sc, fakeSynth{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Scrape(context.Background(), scraper.Options{})
		done <- err
	}()
	<-sc.entered

	_, err := s.Scrape(context.Background(), scraper.Options{})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	_, err = s.Generate(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	_, err = s.GenerateMock()
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(sc.release)
	require.NoError(t, <-done)
}

func TestGenerateStoresAndSnapshots(t *testing.T) {
	s, store := newTestScheduler(t, &fakeScraper{}, fakeSynth{})
	store.posts = samplePosts(2)

	gen, err := s.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, gen.Result.Questions, 1)
	assert.False(t, gen.Mock)
	assert.Regexp(t, `^questions_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}(_\d+)?\.json$`, gen.Snapshot)
	assert.Equal(t, gen.Result.Questions, store.questions)

	run := store.lastRun()
	assert.Equal(t, KindGenerate, run.Kind)
	assert.Equal(t, 42, run.TokensUsed)
	assert.Equal(t, 1, run.Questions)
	assert.True(t, run.Success)
}

func TestGenerateErrors(t *testing.T) {
	s, store := newTestScheduler(t, &fakeScraper{}, fakeSynth{err: ai.ErrNotConfigured})
	store.posts = samplePosts(1)

	_, err := s.Generate(context.Background())
	require.ErrorIs(t, err, ai.ErrNotConfigured)
	assert.Nil(t, store.questions)
	run := store.lastRun()
	assert.False(t, run.Success)
	assert.Equal(t, ai.ErrNotConfigured.Error(), run.ErrorMessage)
}

func TestGenerateMock(t *testing.T) {
	s, store := newTestScheduler(t, &fakeScraper{}, fakeSynth{})

	_, err := s.GenerateMock()
	require.True(t, errors.Is(err, questions.ErrNoPosts))

	store.posts = samplePosts(4)
	gen, err := s.GenerateMock()
	require.NoError(t, err)
	assert.True(t, gen.Mock)
	assert.GreaterOrEqual(t, len(gen.Result.Questions), 10)
	assert.LessOrEqual(t, len(gen.Result.Questions), 15)
	assert.NotEmpty(t, gen.Snapshot)
	assert.Equal(t, KindGenerateMock, store.lastRun().Kind)
}

func TestCycleGeneratesAfterScrape(t *testing.T) {
	sc := &fakeScraper{}
	s, store := newTestScheduler(t, sc, fakeSynth{})
	s.cfg.GenerateAfterScrape = true

	s.safeCycle(context.Background())
	assert.Equal(t, 1, sc.calls)
	assert.Len(t, store.questions, 1)
	require.Len(t, store.runs, 2)
	assert.Equal(t, KindScrape, store.runs[0].Kind)
	assert.Equal(t, KindGenerate, store.runs[1].Kind)
}

func TestRunDisabledReturns(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeScraper{}, fakeSynth{})
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when the interval is zero")
	}
}

func TestParseCron(t *testing.T) {
	for _, expr := range []string{"*/30 * * * *", "0 6 * * 1-5", "@hourly", "@every 15m"} {
		_, err := ParseCron(expr)
		assert.NoError(t, err, expr)
	}
	_, err := ParseCron("every day")
	assert.Error(t, err)
	_, err = ParseCron("0 0 * * * *")
	assert.Error(t, err, "seconds field is not accepted")
}

func TestRunInvalidCronReturns(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeScraper{}, fakeSynth{})
	s.cfg.Cron = "not a schedule"
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return when the cron expression is invalid")
	}
}
