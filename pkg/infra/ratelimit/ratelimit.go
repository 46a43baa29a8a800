// Package ratelimit provides keyed request limiting for the API layer.
package ratelimit

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

type Limiter interface {
	Allow(key string) (bool, error)
	Reset(key string)
}

// KeyedLimiter keeps one token bucket per key (typically the client
// address).
type KeyedLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewPerMinute builds a limiter allowing n requests per minute per key.
func NewPerMinute(n int) *KeyedLimiter {
	if n <= 0 {
		n = 60
	}
	return &KeyedLimiter{
		limit:   rate.Limit(float64(n) / 60.0),
		burst:   n,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *KeyedLimiter) Allow(key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key cannot be empty")
	}

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	return b.Allow(), nil
}

func (l *KeyedLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

var _ Limiter = (*KeyedLimiter)(nil)
