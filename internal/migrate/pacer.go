package migrate

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces batches. Wait blocks until the next batch may start or ctx ends.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NewPacer allows one batch per delay; the first batch starts immediately.
// A non-positive delay disables pacing.
func NewPacer(delay time.Duration) Pacer {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
