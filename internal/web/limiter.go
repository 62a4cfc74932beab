package web

// limiter.go bounds how many combines run at once.
//
// A combine holds every uploaded part open and, in merge mode, every distinct
// key in memory, so parallel requests are capped with a semaphore. A request
// that finds every slot taken waits up to maxWait, then fails with
// errServerBusy (REQ006, 503).

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"
)

var errServerBusy = errors.New("too many concurrent combines")

type combineLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

func newCombineLimiter(maxConcurrent int, maxWait time.Duration) *combineLimiter {
	return &combineLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// acquire takes a slot, waiting at most maxWait. Every successful acquire
// must be paired with release.
func (l *combineLimiter) acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	default:
	}

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return errServerBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *combineLimiter) release() {
	l.active.Add(-1)
	<-l.slots
}

// limiterStatus is reported by /healthz.
type limiterStatus struct {
	Active        int `json:"active"`
	MaxConcurrent int `json:"max_concurrent"`
}

func (l *combineLimiter) status() limiterStatus {
	return limiterStatus{
		Active:        int(l.active.Load()),
		MaxConcurrent: cap(l.slots),
	}
}

func (l *combineLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := l.acquire(r.Context()); err != nil {
			if errors.Is(err, errServerBusy) {
				w.Header().Set("Retry-After", "5")
			}
			respondError(w, r, err, http.StatusServiceUnavailable)
			return
		}
		defer l.release()
		next.ServeHTTP(w, r)
	})
}
