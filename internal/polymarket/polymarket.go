// Package polymarket reads open prediction markets from Polymarket's public APIs.
package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/thinkscotty/prophet/internal/fetch"
	"github.com/thinkscotty/prophet/internal/models"
	"github.com/tidwall/gjson"
)

// DefaultEndpoints are tried in order; the first one returning markets wins.
var DefaultEndpoints = []string{
	"https://gamma-api.polymarket.com/markets?closed=false&limit=500",
	"https://gamma-api.polymarket.com/markets?active=true&limit=500",
	"https://strapi-matic.poly.market/markets?active=true&_limit=500",
	"https://gamma-api.polymarket.com/markets?limit=500",
}

// Outcome is one side of a market with its implied probability.
type Outcome struct {
	Outcome     string  `json:"outcome"`
	Price       float64 `json:"price"`       // 0..1
	Probability float64 `json:"probability"` // 0..100
}

// Market is the normalized view of an upstream market record.
type Market struct {
	ID          string
	Slug        string
	Question    string
	Description string
	EndDate     time.Time
	EndDateRaw  string
	Active      bool
	Volume      float64
	Outcomes    []Outcome
}

// YesProbability returns the probability of the "Yes" outcome, or 0.
func (m Market) YesProbability() float64 {
	for _, o := range m.Outcomes {
		if strings.EqualFold(o.Outcome, "yes") {
			return o.Probability
		}
	}
	return 0
}

// ErrUnavailable means no endpoint answered successfully.
var ErrUnavailable = errors.New("no polymarket endpoint responded")

// TopicMarket pairs a market with the topic whose keywords selected it.
type TopicMarket struct {
	Topic  models.PolymarketTopic
	Market Market
}

// Getter is the HTTP surface the client needs.
type Getter interface {
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}

var _ Getter = (*fetch.Client)(nil)

// Client fetches and filters markets.
type Client struct {
	http      Getter
	endpoints []string
	now       func() time.Time
}

// New creates a Polymarket client. Nil endpoints means DefaultEndpoints.
func New(g Getter, endpoints []string) *Client {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	return &Client{http: g, endpoints: endpoints, now: time.Now}
}

// Fetch loads the market list once and filters it per topic. When no
// endpoint responds every topic is reported as a failure; only cancellation
// is returned as an error. daysBack is not applied: an open market is
// relevant whenever it was created.
func (c *Client) Fetch(ctx context.Context, topics []models.PolymarketTopic, daysBack int) ([]TopicMarket, []models.ConfigFailure, error) {
	if len(topics) == 0 {
		return nil, nil, nil
	}

	raw, err := c.FetchMarkets(ctx)
	if errors.Is(err, ErrUnavailable) {
		failures := make([]models.ConfigFailure, 0, len(topics))
		for _, topic := range topics {
			failures = append(failures, models.ConfigFailure{Config: topic.Name, Error: err.Error()})
		}
		return nil, failures, nil
	}
	if err != nil {
		return nil, nil, err
	}
	active := FilterActive(raw, c.now())
	slog.Info("Fetched Polymarket markets", "total", len(raw), "active", len(active))

	var out []TopicMarket
	for _, topic := range topics {
		matched := FilterByKeywords(active, topic.Keywords)
		slog.Info("Matched Polymarket topic", "topic", topic.Name, "markets", len(matched))
		for _, m := range matched {
			out = append(out, TopicMarket{Topic: topic, Market: Transform(m)})
		}
	}
	return out, nil, nil
}

// FetchMarkets returns the raw records from the first endpoint that yields a
// non-empty list under any supported envelope. Endpoints that answer with no
// markets yield nil, nil; ErrUnavailable is returned only when every endpoint
// failed outright.
func (c *Client) FetchMarkets(ctx context.Context) ([]gjson.Result, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")

	var lastErr error
	responded := false
	for _, endpoint := range c.endpoints {
		body, err := c.http.Get(ctx, endpoint, header)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			slog.Warn("Polymarket endpoint failed", "endpoint", endpoint, "error", err)
			lastErr = err
			continue
		}
		responded = true
		markets := unwrap(gjson.ParseBytes(body))
		if len(markets) > 0 {
			slog.Debug("Polymarket endpoint returned markets", "endpoint", endpoint, "count", len(markets))
			return markets, nil
		}
		slog.Warn("Polymarket endpoint returned no markets", "endpoint", endpoint)
	}
	if !responded && lastErr != nil {
		slog.Warn("All Polymarket endpoints failed", "endpoints", len(c.endpoints), "error", lastErr)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	slog.Warn("All Polymarket endpoints returned no data")
	return nil, nil
}

// unwrap accepts a bare array, {"markets": [...]} or {"data": [...]}.
func unwrap(r gjson.Result) []gjson.Result {
	switch {
	case r.IsArray():
		return r.Array()
	case r.Get("markets").IsArray():
		return r.Get("markets").Array()
	case r.Get("data").IsArray():
		return r.Get("data").Array()
	}
	return nil
}

// FilterActive drops archived, closed and already-ended markets. A market
// whose active flag is absent counts as active.
func FilterActive(markets []gjson.Result, now time.Time) []gjson.Result {
	var out []gjson.Result
	for _, m := range markets {
		if m.Get("archived").Type == gjson.True || m.Get("closed").Type == gjson.True {
			continue
		}
		if end := firstString(m, "endDate", "end_date_iso", "endDateIso", "end_date"); end != "" {
			if t, err := dateparse.ParseAny(end); err == nil && !t.After(now) {
				continue
			}
		}
		if active := m.Get("active"); active.Exists() && active.Type != gjson.True {
			continue
		}
		out = append(out, m)
	}
	return out
}

// FilterByKeywords keeps markets whose question or description contains any
// keyword, case-insensitively. No keywords keeps everything.
func FilterByKeywords(markets []gjson.Result, keywords []string) []gjson.Result {
	var lower []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lower = append(lower, k)
		}
	}
	if len(lower) == 0 {
		return markets
	}

	var out []gjson.Result
	for _, m := range markets {
		text := strings.ToLower(m.Get("question").String() + " " + m.Get("description").String())
		for _, k := range lower {
			if strings.Contains(text, k) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Transform maps a raw market record to a Market. It never fails; missing
// fields take zero values.
func Transform(m gjson.Result) Market {
	market := Market{
		ID:          firstString(m, "condition_id", "conditionId", "id"),
		Slug:        m.Get("slug").String(),
		Question:    firstString(m, "question", "title"),
		Description: m.Get("description").String(),
		EndDateRaw:  firstString(m, "end_date_iso", "endDate", "endDateIso", "end_date", "end_time"),
		Active:      m.Get("active").Type != gjson.False && m.Get("closed").Type != gjson.True,
		Volume:      parseNumber(firstValue(m, "volume", "volumeNum", "volume_24h")),
		Outcomes:    parseOutcomes(m),
	}
	if market.EndDateRaw != "" {
		if t, err := dateparse.ParseAny(market.EndDateRaw); err == nil {
			market.EndDate = t.UTC()
		}
	}
	return market
}

func parseOutcomes(m gjson.Result) []Outcome {
	outcomes := m.Get("outcomes")

	// Objects already carrying outcome/price pairs.
	if outcomes.IsArray() && len(outcomes.Array()) > 0 && outcomes.Array()[0].IsObject() {
		var out []Outcome
		for i, o := range outcomes.Array() {
			name := o.Get("outcome").String()
			if name == "" {
				name = defaultOutcomeName(i)
			}
			out = append(out, newOutcome(name, parseNumber(o.Get("price"))))
		}
		return out
	}

	// Parallel name/price lists, either as arrays or JSON-encoded strings.
	names := stringList(outcomes)
	prices := stringList(firstValue(m, "outcomePrices", "outcome_prices"))
	if len(names) > 0 && len(prices) > 0 {
		var out []Outcome
		for i, name := range names {
			if i >= len(prices) {
				break
			}
			p, _ := strconv.ParseFloat(prices[i], 64)
			out = append(out, newOutcome(name, p))
		}
		return out
	}

	if tokens := m.Get("tokens"); tokens.IsArray() {
		var out []Outcome
		for i, tok := range tokens.Array() {
			name := tok.Get("outcome").String()
			if name == "" {
				name = defaultOutcomeName(i)
			}
			out = append(out, newOutcome(name, parseNumber(tok.Get("price"))))
		}
		return out
	}
	return nil
}

func newOutcome(name string, price float64) Outcome {
	return Outcome{Outcome: name, Price: price, Probability: price * 100}
}

func defaultOutcomeName(i int) string {
	if i == 0 {
		return "Yes"
	}
	return "No"
}

// stringList reads an array value or a string holding a JSON array.
func stringList(r gjson.Result) []string {
	if r.Type == gjson.String {
		r = gjson.Parse(r.String())
	}
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}

func parseNumber(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.String()), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func firstValue(m gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := m.Get(k); v.Exists() && v.Type != gjson.Null && v.String() != "" {
			return v
		}
	}
	return gjson.Result{}
}

func firstString(m gjson.Result, keys ...string) string {
	return firstValue(m, keys...).String()
}
