package retrieval

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter paces external search calls with a randomized delay so no provider
// window ever sees back-to-back queries. The first call passes immediately;
// each later call waits until a jittered interval has elapsed since the
// previous one.
type Limiter struct {
	Min time.Duration
	Max time.Duration

	mu   sync.Mutex
	last time.Time
	rnd  *rand.Rand
}

func NewLimiter(min, max time.Duration) *Limiter {
	if min <= 0 {
		min = 3 * time.Second
	}
	if max < min {
		max = min
	}
	return &Limiter{
		Min: min,
		Max: max,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until the next call is allowed or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	var delay time.Duration
	if !l.last.IsZero() {
		interval := l.Min
		if l.Max > l.Min {
			interval += time.Duration(l.rnd.Int63n(int64(l.Max - l.Min)))
		}
		elapsed := time.Since(l.last)
		if elapsed < interval {
			delay = interval - elapsed
		}
	}
	l.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.mu.Lock()
	l.last = time.Now()
	l.mu.Unlock()
	return nil
}
