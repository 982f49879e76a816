// Package questions turns recent posts into short-horizon yes/no prediction
// questions, either with a language model or with a deterministic mock.
package questions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/thinkscotty/prophet/internal/ai"
	"github.com/thinkscotty/prophet/internal/metrics"
	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/normalize"
	"github.com/thinkscotty/prophet/internal/similarity"
)

// ErrNoPosts is returned when no post is long enough to ground a question.
var ErrNoPosts = errors.New("no posts with enough text to generate questions")

// Model is the completion backend. *ai.Client satisfies it.
type Model interface {
	Configured() bool
	ChatComplete(ctx context.Context, system, user string) (*ai.ChatResponse, error)
}

var _ Model = (*ai.Client)(nil)

type Options struct {
	BatchSize     int
	MinTextLength int // in runes, after trimming
	MaxTextChars  int // per post in the prompt
	Parallel      int
	// SimilarityThreshold drops questions whose trigram similarity to an
	// earlier question reaches it. 0 disables the filter.
	SimilarityThreshold float64
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MinTextLength <= 0 {
		o.MinTextLength = 20
	}
	if o.MaxTextChars <= 0 {
		o.MaxTextChars = 700
	}
	if o.Parallel <= 0 {
		o.Parallel = 1
	}
	return o
}

// Result describes one generation run.
type Result struct {
	Questions     []models.GeneratedQuestion `json:"questions"`
	Eligible      int                        `json:"eligiblePosts"`
	Batches       int                        `json:"batches"`
	FailedBatches int                        `json:"failedBatches"`
	TokensUsed    int                        `json:"tokensUsed"`
}

// Synthesizer generates questions from posts with a Model.
type Synthesizer struct {
	model   Model
	opts    Options
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(model Model, opts Options, m *metrics.Metrics) *Synthesizer {
	return &Synthesizer{model: model, opts: opts.withDefaults(), metrics: m, now: time.Now}
}

type batchOutcome struct {
	questions []models.GeneratedQuestion
	tokens    int
	failed    bool
}

// Generate batches the eligible posts, asks the model for questions per
// batch and returns the validated union. A failing batch contributes zero
// questions and never stops the others.
func (s *Synthesizer) Generate(ctx context.Context, posts []models.UnifiedPost) (*Result, error) {
	if s.model == nil || !s.model.Configured() {
		return nil, ai.ErrNotConfigured
	}

	eligible := Eligible(posts, s.opts.MinTextLength)
	if len(eligible) == 0 {
		return nil, ErrNoPosts
	}
	batches := chunk(eligible, s.opts.BatchSize)
	slog.Info("Generating questions", "posts", len(posts), "eligible", len(eligible), "batches", len(batches))

	outcomes := make([]batchOutcome, len(batches))
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Parallel)
	for i, batch := range batches {
		g.Go(func() error {
			outcomes[i] = s.runBatch(ctx, i, batch)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Eligible: len(eligible), Batches: len(batches), Questions: []models.GeneratedQuestion{}}
	var dedup *similarity.Checker
	if s.opts.SimilarityThreshold > 0 {
		dedup = similarity.New(s.opts.SimilarityThreshold, 3)
	}
	for _, o := range outcomes {
		result.TokensUsed += o.tokens
		if o.failed {
			result.FailedBatches++
		}
		for _, q := range o.questions {
			if dedup != nil && !dedup.Add(q.Question) {
				s.metrics.Dropped("duplicate")
				continue
			}
			result.Questions = append(result.Questions, q)
		}
	}

	now := s.now()
	createdAt := normalize.ISO(now, now)
	for i := range result.Questions {
		result.Questions[i].ID = fmt.Sprintf("q_%d_%d", now.UnixMilli(), i)
		result.Questions[i].CreatedAt = createdAt
	}

	slog.Info("Question generation finished", "questions", len(result.Questions), "failed_batches", result.FailedBatches, "tokens", result.TokensUsed)
	return result, nil
}

func (s *Synthesizer) runBatch(ctx context.Context, n int, batch []models.UnifiedPost) batchOutcome {
	prompt, err := ai.BuildQuestionsPrompt(s.promptPosts(batch))
	if err != nil {
		slog.Error("Failed to build prompt", "batch", n, "error", err)
		s.metrics.ObserveBatch("failed", 0, 0)
		return batchOutcome{failed: true}
	}

	resp, err := s.model.ChatComplete(ctx, ai.QuestionInstructions, prompt)
	if err != nil {
		slog.Warn("Question batch failed", "batch", n, "posts", len(batch), "error", err)
		s.metrics.ObserveBatch("failed", 0, 0)
		return batchOutcome{failed: true}
	}

	candidates := ai.RepairJSON(resp.Content)
	if candidates == nil {
		slog.Warn("Unparseable model output", "batch", n, "response_chars", len(resp.Content))
		s.metrics.ObserveBatch("unparseable", 0, resp.TokensUsed)
		return batchOutcome{tokens: resp.TokensUsed}
	}

	questions := s.validate(candidates, batch)
	s.metrics.ObserveBatch("ok", len(questions), resp.TokensUsed)
	slog.Debug("Question batch done", "batch", n, "candidates", len(candidates), "kept", len(questions))
	return batchOutcome{questions: questions, tokens: resp.TokensUsed}
}

func (s *Synthesizer) promptPosts(batch []models.UnifiedPost) []ai.PromptPost {
	items := make([]ai.PromptPost, len(batch))
	for i, p := range batch {
		items[i] = ai.PromptPost{
			ID:         p.ID,
			Source:     string(p.Source),
			SourceName: p.SourceName,
			DateISO:    p.DateISO,
			Permalink:  p.URL,
			Text:       truncateRunes(strings.TrimSpace(p.Text), s.opts.MaxTextChars),
			Idx:        i,
		}
	}
	return items
}

// validate normalizes candidates and keeps only those grounded in batch.
func (s *Synthesizer) validate(candidates []ai.Candidate, batch []models.UnifiedPost) []models.GeneratedQuestion {
	byID := make(map[string]models.SourceType, len(batch))
	for _, p := range batch {
		byID[p.ID] = p.Source
	}

	out := make([]models.GeneratedQuestion, 0, len(candidates))
	for _, c := range candidates {
		question := NormalizeQuestion(c.Question)
		if question == "" {
			s.metrics.Dropped("empty_question")
			continue
		}
		if len(c.SourceIDs) == 0 {
			s.metrics.Dropped("no_sources")
			continue
		}

		ids, kinds, grounded := ground(c.SourceIDs, byID)
		if !grounded {
			slog.Debug("Dropping ungrounded question", "question", question, "source_ids", c.SourceIDs)
			s.metrics.Dropped("ungrounded")
			continue
		}
		out = append(out, models.GeneratedQuestion{
			Question:  question,
			SourceIDs: ids,
			Sources:   kinds,
		})
	}
	return out
}

// ground dedupes ids and reports false if any id is not in the batch.
func ground(ids []string, byID map[string]models.SourceType) ([]string, []models.SourceType, bool) {
	seen := make(map[string]bool, len(ids))
	seenKind := make(map[models.SourceType]bool)
	var outIDs []string
	var kinds []models.SourceType
	for _, id := range ids {
		kind, ok := byID[id]
		if !ok {
			return nil, nil, false
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		outIDs = append(outIDs, id)
		if !seenKind[kind] {
			seenKind[kind] = true
			kinds = append(kinds, kind)
		}
	}
	return outIDs, kinds, true
}

// Eligible keeps posts whose trimmed text has at least minLen runes.
func Eligible(posts []models.UnifiedPost, minLen int) []models.UnifiedPost {
	out := make([]models.UnifiedPost, 0, len(posts))
	for _, p := range posts {
		if utf8.RuneCountInString(strings.TrimSpace(p.Text)) >= minLen {
			out = append(out, p)
		}
	}
	return out
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
