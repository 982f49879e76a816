package scraper

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/thinkscotty/prophet/internal/models"
)

var sourceLabels = map[models.SourceType]string{
	models.SourceTelegram:   "Scraping Telegram channels...",
	models.SourcePolymarket: "Scraping Polymarket markets...",
	models.SourceTwitter:    "Scraping Twitter accounts...",
	models.SourceRSS:        "Scraping RSS feeds...",
}

// progress serializes calls to an optional sink. A panicking sink is
// logged and ignored.
type progress struct {
	mu    sync.Mutex
	sink  ProgressFunc
	total int
	done  int
	posts map[models.SourceType]int
}

func newProgress(sink ProgressFunc, total int) *progress {
	return &progress{sink: sink, total: total, posts: make(map[models.SourceType]int)}
}

func (p *progress) started(src models.SourceType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(models.ScrapeProgress{
		Status:        "scraping",
		Progress:      p.done,
		Total:         p.total,
		CurrentSource: src,
		Message:       sourceLabels[src],
	}, false)
}

func (p *progress) finished(src models.SourceType, posts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.posts[src] = posts
	p.emit(models.ScrapeProgress{
		Status:        "scraping",
		Progress:      p.done,
		Total:         p.total,
		CurrentSource: src,
		Message:       fmt.Sprintf("Finished %s: %d posts", src, posts),
	}, false)
}

func (p *progress) finish(stats models.ScrapeStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(models.ScrapeProgress{
		Status:   "completed",
		Progress: p.total,
		Total:    p.total,
		Message:  fmt.Sprintf("Completed! Found %d posts from %d sources", stats.Total, p.total),
	}, true)
}

// emit must be called with mu held.
func (p *progress) emit(ev models.ScrapeProgress, final bool) {
	if p.sink == nil {
		return
	}
	ev.SourceBreakdown = make(map[models.SourceType]models.SourceProgress, len(models.AllSources))
	for _, src := range models.AllSources {
		n := p.posts[src]
		sp := models.SourceProgress{Completed: n}
		if final {
			sp.Total = n
		}
		ev.SourceBreakdown[src] = sp
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Progress observer panicked", "panic", r)
		}
	}()
	p.sink(ev)
}
