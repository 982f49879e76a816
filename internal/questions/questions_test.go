package questions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkscotty/prophet/internal/ai"
	"github.com/thinkscotty/prophet/internal/models"
)

// fakeModel answers each batch with respond(call index, user prompt).
type fakeModel struct {
	mu         sync.Mutex
	configured bool
	prompts    []string
	respond    func(n int, user string) (string, error)
}

func (f *fakeModel) Configured() bool { return f.configured }

func (f *fakeModel) ChatComplete(_ context.Context, system, user string) (*ai.ChatResponse, error) {
	f.mu.Lock()
	n := len(f.prompts)
	f.prompts = append(f.prompts, user)
	f.mu.Unlock()

	content, err := f.respond(n, user)
	if err != nil {
		return nil, err
	}
	return &ai.ChatResponse{Content: content, TokensUsed: 100}, nil
}

var idInPrompt = regexp.MustCompile(`"id": "([^"]+)"`)

// groundedAnswer cites the first post of whatever batch it receives.
func groundedAnswer(_ int, user string) (string, error) {
	m := idInPrompt.FindStringSubmatch(user)
	return fmt.Sprintf(`{"questions":[{"sourceIds":[%q],"question":"Will BTC close above $70,000 by 18:00 UTC today."}]}`, m[1]), nil
}

func makePosts(n int, text string) []models.UnifiedPost {
	posts := make([]models.UnifiedPost, n)
	for i := range posts {
		posts[i] = models.UnifiedPost{
			ID:      fmt.Sprintf("rss_%03d", i),
			Source:  models.SourceRSS,
			Text:    text,
			DateISO: "2025-03-10T12:00:00.000Z",
		}
	}
	return posts
}

func assertGrammar(t *testing.T, q string) {
	t.Helper()
	assert.True(t, strings.HasSuffix(q, "?"), q)
	assert.False(t, strings.HasSuffix(q, "??"), q)
	assert.NotContains(t, q, "\n")
	assert.True(t, HasHorizon(q), q)
}

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Will ETH trade above $4,000 within the next 24 hours?", "Will ETH trade above $4,000 within the next 24 hours?"},
		{`"Will SOL flip BNB by tomorrow (UTC)."`, "Will SOL flip BNB by tomorrow (UTC)?"},
		{"Will the SEC approve the ETF", "Will the SEC approve the ETF within the next 24 hours?"},
		{"Will BTC hit $80k by 18:00 UTC today?", "Will BTC hit $80k within the next 24 hours?"},
		{"Will BTC hit $80k by 9:30 gmt today!!", "Will BTC hit $80k within the next 24 hours?"},
		{"Will\nCoinbase   list   PEPE in the 24-hour window??", "Will Coinbase list PEPE in the 24-hour window?"},
		{`"'Will BTC close above $70k?'"`, "Will BTC close above $70k within the next 24 hours?"},
		{"«Will ETH flip?»", "Will ETH flip within the next 24 hours?"},
		{"‘Will DOGE pump tomorrow?’.", "Will DOGE pump tomorrow?"},
		{"Will X list Y by tomorrow? (UTC)", "Will X list Y by tomorrow (UTC)?"},
		{"Will X list Y? (per Binance).", "Will X list Y (per Binance) within the next 24 hours?"},
		{"   ", ""},
		{"?!", ""},
		{`"?"`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuestion(tt.in))
		})
	}
}

func TestEligible(t *testing.T) {
	posts := []models.UnifiedPost{
		{ID: "short", Text: "   too short text   "},
		{ID: "exact", Text: "exactly twenty chars"},
		{ID: "runes", Text: strings.Repeat("é", 19)}, // 38 bytes
	}
	got := Eligible(posts, 20)
	require.Len(t, got, 1)
	assert.Equal(t, "exact", got[0].ID)
}

func TestGenerateBatchesAndNormalizes(t *testing.T) {
	model := &fakeModel{configured: true, respond: groundedAnswer}
	s := New(model, Options{Parallel: 3}, nil)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	posts := makePosts(120, strings.Repeat("x", 900))
	res, err := s.Generate(context.Background(), posts)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 120, res.Eligible)
	assert.Equal(t, 300, res.TokensUsed)
	require.Len(t, res.Questions, 3)
	for i, q := range res.Questions {
		assert.Equal(t, fmt.Sprintf("q_1700000000000_%d", i), q.ID)
		assert.Equal(t, "Will BTC close above $70,000 within the next 24 hours?", q.Question)
		assert.Equal(t, []models.SourceType{models.SourceRSS}, q.Sources)
		assertGrammar(t, q.Question)
	}
	// Batch order is kept regardless of completion order.
	assert.Equal(t, []string{"rss_000"}, res.Questions[0].SourceIDs)
	assert.Equal(t, []string{"rss_050"}, res.Questions[1].SourceIDs)
	assert.Equal(t, []string{"rss_100"}, res.Questions[2].SourceIDs)

	for _, prompt := range model.prompts {
		assert.Contains(t, prompt, `"text": "`+strings.Repeat("x", 700)+`"`)
		assert.NotContains(t, prompt, strings.Repeat("x", 701))
	}
}

func TestGenerateDropsInvalidCandidates(t *testing.T) {
	model := &fakeModel{configured: true, respond: func(int, string) (string, error) {
		return `{"questions":[
			{"sourceIds":["rss_000"],"question":"Will X list Y within 24 hours?"},
			{"sourceIds":[],"question":"Will nothing ground this?"},
			{"sourceIds":["rss_001"],"question":"   "},
			{"sourceIds":["made_up"],"question":"Will an invented post count?"},
			{"sourceIds":["rss_000","rss_001","rss_000"],"question":"Will Z happen tomorrow"}
		]} trailing`, nil
	}}
	s := New(model, Options{}, nil)

	res, err := s.Generate(context.Background(), makePosts(2, "a post that is long enough to use"))
	require.NoError(t, err)

	require.Len(t, res.Questions, 2)
	assert.Equal(t, []string{"rss_000"}, res.Questions[0].SourceIDs)
	assert.Equal(t, []string{"rss_000", "rss_001"}, res.Questions[1].SourceIDs)
	assert.Equal(t, "Will Z happen tomorrow?", res.Questions[1].Question)
}

func TestGenerateFailingBatchIsSoft(t *testing.T) {
	model := &fakeModel{configured: true, respond: func(n int, user string) (string, error) {
		if strings.Contains(user, `"id": "rss_000"`) {
			return "", errors.New("upstream 500")
		}
		if strings.Contains(user, `"id": "rss_050"`) {
			return "I cannot help with that.", nil
		}
		return groundedAnswer(n, user)
	}}
	s := New(model, Options{}, nil)

	res, err := s.Generate(context.Background(), makePosts(150, "a post that is long enough to use"))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 1, res.FailedBatches)
	require.Len(t, res.Questions, 1)
	assert.Equal(t, []string{"rss_100"}, res.Questions[0].SourceIDs)
}

func TestGenerateSimilarityFilter(t *testing.T) {
	model := &fakeModel{configured: true, respond: groundedAnswer}
	s := New(model, Options{BatchSize: 1, SimilarityThreshold: 0.9}, nil)

	res, err := s.Generate(context.Background(), makePosts(4, "a post that is long enough to use"))
	require.NoError(t, err)
	assert.Len(t, res.Questions, 1)
}

func TestGenerateErrors(t *testing.T) {
	unconfigured := New(&fakeModel{}, Options{}, nil)
	_, err := unconfigured.Generate(context.Background(), makePosts(1, "a post that is long enough to use"))
	assert.ErrorIs(t, err, ai.ErrNotConfigured)

	model := &fakeModel{configured: true, respond: groundedAnswer}
	_, err = New(model, Options{}, nil).Generate(context.Background(), makePosts(3, "short"))
	assert.ErrorIs(t, err, ErrNoPosts)
	assert.Empty(t, model.prompts)
}

func TestMockGrammarAndGrounding(t *testing.T) {
	posts := makePosts(5, "whatever")
	ids := map[string]bool{}
	for _, p := range posts {
		ids[p.ID] = true
	}

	for seed := uint64(0); seed < 20; seed++ {
		qs, err := NewMock(seed).Generate(posts)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(qs), 10)
		assert.LessOrEqual(t, len(qs), 15)
		for _, q := range qs {
			assertGrammar(t, q.Question)
			assert.NotContains(t, q.Question, "${")
			require.NotEmpty(t, q.SourceIDs)
			assert.LessOrEqual(t, len(q.SourceIDs), 3)
			for _, id := range q.SourceIDs {
				assert.True(t, ids[id], id)
			}
		}
	}
}

func TestMockDeterministic(t *testing.T) {
	posts := makePosts(5, "whatever")
	a, err := NewMock(7).Generate(posts)
	require.NoError(t, err)
	b, err := NewMock(7).Generate(posts)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Question, b[i].Question)
		assert.Equal(t, a[i].SourceIDs, b[i].SourceIDs)
	}

	_, err = NewMock(7).Generate(nil)
	assert.ErrorIs(t, err, ErrNoPosts)
}
