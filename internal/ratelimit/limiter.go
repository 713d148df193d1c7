package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited is returned when the maximum wait elapses without a slot
// becoming available. Callers must treat it as retryable, not fatal.
var ErrRateLimited = errors.New("rate limited: max wait elapsed")

// counterTTL bounds the lifetime of per-second window counters so stale
// keys expire instead of accumulating.
const counterTTL = 3 * time.Second

// Backend is a shared counter keyed by (prefix, key, second). Incr
// increments the counter for the given bucket and returns the
// post-increment count.
type Backend interface {
	Incr(ctx context.Context, bucket string, ttl time.Duration) (int64, error)
}

// Limiter bounds outbound request rate per logical key (one key per shop)
// using a fixed one-second window over a shared counter backend.
type Limiter struct {
	backend Backend
	prefix  string
	limit   int // slots per key per second
	maxWait time.Duration
	now     func() time.Time
}

func NewLimiter(backend Backend, prefix string, limit int, maxWait time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	return &Limiter{
		backend: backend,
		prefix:  prefix,
		limit:   limit,
		maxWait: maxWait,
		now:     time.Now,
	}
}

// Acquire blocks until a slot in the current one-second window for key is
// free, or fails with ErrRateLimited once maxWait elapses. A slot, once
// counted, is never handed to more than limit callers within one window.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	deadline := l.now().Add(l.maxWait)

	for {
		now := l.now()
		sec := now.Unix()
		bucket := fmt.Sprintf("%s:%s:%d", l.prefix, key, sec)

		count, err := l.backend.Incr(ctx, bucket, counterTTL)
		if err != nil {
			return fmt.Errorf("rate limiter backend: %w", err)
		}
		if count <= int64(l.limit) {
			return nil
		}

		// Window is full; wait for it to roll over, bounded by maxWait.
		next := time.Unix(sec+1, 0)
		wait := next.Sub(now)
		if wait <= 0 {
			wait = 20 * time.Millisecond
		}
		if now.Add(wait).After(deadline) {
			return ErrRateLimited
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
