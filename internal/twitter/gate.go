package twitter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate enforces a minimum interval between any two upstream calls. One Gate
// is shared by every caller in the process that talks to the same API.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate returns a Gate allowing one call per interval. A non-positive
// interval disables pacing.
func NewGate(interval time.Duration) *Gate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Gate{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next call may proceed or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
