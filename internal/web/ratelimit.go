package web

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// rateLimiter allows limit requests per client per fixed window.
type rateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	clients   map[string]*clientWindow
	lastSweep time.Time
	now       func() time.Time
}

type clientWindow struct {
	start time.Time
	count int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:     limit,
		window:    window,
		clients:   make(map[string]*clientWindow),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// allow consumes one request for client. When refused it also returns how
// long until the window resets.
func (rl *rateLimiter) allow(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.window {
		rl.sweep(now)
	}

	cw, ok := rl.clients[client]
	if !ok || now.Sub(cw.start) >= rl.window {
		rl.clients[client] = &clientWindow{start: now, count: 1}
		return true, 0
	}
	if cw.count >= rl.limit {
		return false, cw.start.Add(rl.window).Sub(now)
	}
	cw.count++
	return true, 0
}

// sweep drops clients whose window has ended. Caller holds mu.
func (rl *rateLimiter) sweep(now time.Time) {
	for c, cw := range rl.clients {
		if now.Sub(cw.start) >= rl.window {
			delete(rl.clients, c)
		}
	}
	rl.lastSweep = now
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(client); err == nil {
			client = host
		}

		ok, retry := rl.allow(client)
		if !ok {
			secs := int(math.Ceil(retry.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			respondError(w, r, errRateLimited, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
