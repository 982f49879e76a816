// Package metrics holds the Prometheus instruments for ingestion and
// question generation. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "prophet"

type Metrics struct {
	ScrapeRunsTotal       *prometheus.CounterVec
	SourcePostsTotal      *prometheus.CounterVec
	SourceErrorsTotal     *prometheus.CounterVec
	SourceDuration        *prometheus.HistogramVec
	LastScrapePosts       prometheus.Gauge
	QuestionBatchesTotal  *prometheus.CounterVec
	QuestionsEmittedTotal prometheus.Counter
	QuestionsDroppedTotal *prometheus.CounterVec
	ModelTokensTotal      prometheus.Counter
}

// New creates and registers all metrics on reg (the default registerer if nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ScrapeRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"status"}),
		SourcePostsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "posts_total",
			Help:      "Normalized posts produced per source.",
		}, []string{"source"}),
		SourceErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "source_errors_total",
			Help:      "Source chains that failed outright.",
		}, []string{"source"}),
		SourceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "source_duration_seconds",
			Help:      "Wall time spent per source chain.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"source"}),
		LastScrapePosts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scrape",
			Name:      "last_run_posts",
			Help:      "Posts returned by the most recent run.",
		}),
		QuestionBatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "questions",
			Name:      "batches_total",
			Help:      "Model batches by outcome.",
		}, []string{"status"}),
		QuestionsEmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "questions",
			Name:      "emitted_total",
			Help:      "Questions that passed validation.",
		}),
		QuestionsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "questions",
			Name:      "dropped_total",
			Help:      "Candidate questions rejected, by reason.",
		}, []string{"reason"}),
		ModelTokensTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "questions",
			Name:      "model_tokens_total",
			Help:      "Tokens reported by the model provider.",
		}),
	}
}

// ObserveSource records one finished source chain.
func (m *Metrics) ObserveSource(source string, posts int, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SourcePostsTotal.WithLabelValues(source).Add(float64(posts))
	m.SourceDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if failed {
		m.SourceErrorsTotal.WithLabelValues(source).Inc()
	}
}

// ObserveRun records a finished ingestion run.
func (m *Metrics) ObserveRun(success bool, posts int) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "partial"
	}
	m.ScrapeRunsTotal.WithLabelValues(status).Inc()
	m.LastScrapePosts.Set(float64(posts))
}

// ObserveBatch records one model batch. status is "ok", "failed" or "unparseable".
func (m *Metrics) ObserveBatch(status string, emitted, tokens int) {
	if m == nil {
		return
	}
	m.QuestionBatchesTotal.WithLabelValues(status).Inc()
	m.QuestionsEmittedTotal.Add(float64(emitted))
	m.ModelTokensTotal.Add(float64(tokens))
}

// Dropped records a rejected candidate question.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.QuestionsDroppedTotal.WithLabelValues(reason).Inc()
}
