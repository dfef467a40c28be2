package http

import (
	"sync"
	"sync/atomic"
	"time"
)

// API request budget per client IP. Static asset requests are not
// counted; the app shell fetches those in a burst on every reload.
const (
	apiRequestLimit  = 60
	apiRequestWindow = time.Minute
)

// ipLimiter caps API requests per client IP over a fixed window.
type ipLimiter struct {
	limit  int
	window time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor

	stopSweep chan struct{}
	stopOnce  sync.Once
}

type visitor struct {
	windowStart time.Time
	count       int
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	l := &ipLimiter{
		limit:     limit,
		window:    window,
		visitors:  make(map[string]*visitor),
		stopSweep: make(chan struct{}),
	}
	go l.sweep()
	return l
}

// sweep periodically drops visitors that have been idle for ten windows
// so the map stays bounded.
func (l *ipLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.dropIdle()
		case <-l.stopSweep:
			return
		}
	}
}

func (l *ipLimiter) dropIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-10 * l.window)
	for ip, v := range l.visitors {
		if v.windowStart.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

// stop shuts down the sweep goroutine.
func (l *ipLimiter) stop() {
	l.stopOnce.Do(func() {
		close(l.stopSweep)
	})
}

// allow counts one request from the client IP against its current
// window and reports whether it stays within the limit. The window is
// fixed, not sliding; a rejected client gets a fresh budget once the
// window that saturated expires.
func (l *ipLimiter) allow(clientIP string, metrics *securityMetrics) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v, ok := l.visitors[clientIP]
	if !ok || now.Sub(v.windowStart) > l.window {
		l.visitors[clientIP] = &visitor{windowStart: now, count: 1}
		return true
	}

	v.count++
	if v.count > l.limit {
		if metrics != nil {
			atomic.AddInt64(&metrics.rateLimitHits, 1)
		}
		return false
	}
	return true
}
