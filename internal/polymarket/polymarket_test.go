package polymarket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thinkscotty/prophet/internal/fetch"
	"github.com/thinkscotty/prophet/internal/models"
	"github.com/tidwall/gjson"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testFetcher() *fetch.Client {
	return fetch.New(fetch.Options{Timeout: 2 * time.Second, MaxAttempts: 1, InitialInterval: time.Millisecond})
}

func TestFetchMarketsFallsBackAcrossEndpoints(t *testing.T) {
	var third atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"markets":[{"id":"m1","question":"Will BTC close green?"}]}`)
	})
	mux.HandleFunc("/never", func(w http.ResponseWriter, r *http.Request) {
		third.Add(1)
		fmt.Fprint(w, `[{"id":"x"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(testFetcher(), []string{srv.URL + "/broken", srv.URL + "/empty", srv.URL + "/good", srv.URL + "/never"})
	markets, err := c.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "m1", markets[0].Get("id").String())
	assert.Zero(t, third.Load(), "endpoints after the first non-empty one are not tried")
}

func TestFetchMarketsAllEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unexpected":true}`)
	}))
	defer srv.Close()

	c := New(testFetcher(), []string{srv.URL, srv.URL})
	markets, err := c.FetchMarkets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, markets)
}

func TestFetchMarketsAllFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testFetcher(), []string{srv.URL + "/a", srv.URL + "/b"})
	markets, err := c.FetchMarkets(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, markets)
}

func TestFetchReportsEveryTopicWhenUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(testFetcher(), []string{srv.URL})
	got, failures, err := c.Fetch(context.Background(), []models.PolymarketTopic{
		{ID: "t1", Name: "Crypto", Keywords: []string{"btc"}},
		{ID: "t2", Name: "Fed", Keywords: []string{"fed"}},
	}, 2)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.Len(t, failures, 2)
	assert.Equal(t, "Crypto", failures[0].Config)
	assert.Equal(t, "Fed", failures[1].Config)
	assert.Contains(t, failures[0].Error, "no polymarket endpoint responded")
}

func TestFetchEmptyMarketsIsNotAFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	got, failures, err := New(testFetcher(), []string{srv.URL}).Fetch(context.Background(),
		[]models.PolymarketTopic{{ID: "t1", Name: "Crypto", Keywords: []string{"btc"}}}, 2)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, failures)
}

func TestFilterActive(t *testing.T) {
	body := `[
		{"id":"open","active":true,"endDate":"2025-04-01T00:00:00Z"},
		{"id":"noflag","endDate":"2025-04-01T00:00:00Z"},
		{"id":"archived","archived":true},
		{"id":"closed","closed":true},
		{"id":"ended","end_date_iso":"2025-03-01T00:00:00Z"},
		{"id":"inactive","active":false},
		{"id":"nodate","active":true}
	]`
	got := FilterActive(gjson.Parse(body).Array(), now)
	var ids []string
	for _, m := range got {
		ids = append(ids, m.Get("id").String())
	}
	assert.Equal(t, []string{"open", "noflag", "nodate"}, ids)
}

func TestFilterByKeywords(t *testing.T) {
	markets := gjson.Parse(`[
		{"id":"a","question":"Will Bitcoin hit 100k?"},
		{"id":"b","question":"Election odds","description":"Trump vs field"},
		{"id":"c","question":"Rain in Paris?"}
	]`).Array()

	tests := []struct {
		name     string
		keywords []string
		want     []string
	}{
		{"case insensitive question match", []string{"BITCOIN"}, []string{"a"}},
		{"description match", []string{"trump"}, []string{"b"}},
		{"no keywords passes all", nil, []string{"a", "b", "c"}},
		{"blank keywords pass all", []string{"  "}, []string{"a", "b", "c"}},
		{"no match", []string{"solana"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, m := range FilterByKeywords(markets, tt.keywords) {
				ids = append(ids, m.Get("id").String())
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestTransformOutcomeShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantYes float64
		wantLen int
	}{
		{
			name:    "json encoded strings",
			body:    `{"id":"1","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.62\",\"0.38\"]"}`,
			wantYes: 62,
			wantLen: 2,
		},
		{
			name:    "plain arrays",
			body:    `{"id":"2","outcomes":["Yes","No"],"outcomePrices":[0.25,0.75]}`,
			wantYes: 25,
			wantLen: 2,
		},
		{
			name:    "tokens",
			body:    `{"id":"3","tokens":[{"price":"0.9"},{"outcome":"No","price":"0.1"}]}`,
			wantYes: 90,
			wantLen: 2,
		},
		{
			name:    "outcome objects",
			body:    `{"id":"4","outcomes":[{"outcome":"Yes","price":0.5}]}`,
			wantYes: 50,
			wantLen: 1,
		},
		{
			name:    "none",
			body:    `{"id":"5"}`,
			wantYes: 0,
			wantLen: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Transform(gjson.Parse(tt.body))
			assert.Len(t, m.Outcomes, tt.wantLen)
			assert.InDelta(t, tt.wantYes, m.YesProbability(), 0.0001)
		})
	}
}

func TestTransformFieldFallbacks(t *testing.T) {
	m := Transform(gjson.Parse(`{"condition_id":"0xabc","id":"17","title":"Fed cut?","volume_24h":"1234.5","end_date_iso":"2025-06-01T00:00:00Z"}`))
	assert.Equal(t, "0xabc", m.ID)
	assert.Equal(t, "Fed cut?", m.Question)
	assert.InDelta(t, 1234.5, m.Volume, 0.001)
	assert.Equal(t, 2025, m.EndDate.Year())
	assert.True(t, m.Active)
}

func TestFetchFiltersPerTopic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":"btc","question":"Will BTC reach 100k?","active":true},
			{"id":"fed","question":"Will the Fed cut rates?","closed":true},
			{"id":"eth","question":"ETH above 4k?"}
		]`)
	}))
	defer srv.Close()

	c := New(testFetcher(), []string{srv.URL})
	c.now = func() time.Time { return now }

	got, failures, err := c.Fetch(context.Background(), []models.PolymarketTopic{
		{ID: "t1", Name: "Crypto", Keywords: []string{"btc", "eth"}},
		{ID: "t2", Name: "Fed", Keywords: []string{"fed"}},
	}, 2)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].Topic.ID)
	assert.Equal(t, "btc", got[0].Market.ID)
	assert.Equal(t, "eth", got[1].Market.ID)
}
