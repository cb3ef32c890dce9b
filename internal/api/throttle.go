package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocationThrottle limits location lookups per user. The Mirror API courtesy
// limit is 1,000 requests/day and devices notify roughly every 10 minutes, so
// fetching on every notification exhausts the quota with a handful of users.
type LocationThrottle struct {
	mu    sync.Mutex
	every time.Duration
	// key: userId
	m map[string]*rate.Limiter
}

// NewLocationThrottle returns nil when every is not positive; a nil throttle
// allows everything.
func NewLocationThrottle(every time.Duration) *LocationThrottle {
	if every <= 0 {
		return nil
	}
	return &LocationThrottle{every: every, m: map[string]*rate.Limiter{}}
}

// Allow reports whether a lookup for userID may proceed now.
func (t *LocationThrottle) Allow(userID string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.m[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.every), 1)
		t.m[userID] = l
	}
	return l.Allow()
}
