// Package semaphore implements a distributed counting semaphore on top
// of the coordination store: a fixed-capacity list of interchangeable
// placeholder tokens. Acquire blocks until a token is available; release
// returns one.
package semaphore

import (
	"context"
	"time"

	"github.com/catalystforge/subtitle-worker/store"
	"github.com/redis/go-redis/v9"
)

const token = "1"

// Limiter is parameterized only by the backing list key, so the same
// type serves both semaphore:global and semaphore:ai.
type Limiter struct {
	store *store.Client
	name  string
}

func NewLimiter(s *store.Client, name string) *Limiter {
	return &Limiter{store: s, name: name}
}

// Init atomically replaces the backing list with exactly capacity
// placeholder tokens. Must occur at most once per deployment; callers
// racing to initialize concurrently should gate this with an external
// lock (see the bootstrap lock used by cmd/worker).
func (l *Limiter) Init(ctx context.Context, capacity int) error {
	return l.store.MultiExec(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, l.name)
		if capacity > 0 {
			tokens := make([]interface{}, capacity)
			for i := range tokens {
				tokens[i] = token
			}
			pipe.RPush(ctx, l.name, tokens...)
		}
		return nil
	})
}

// Acquire blocks indefinitely until a token is available.
func (l *Limiter) Acquire(ctx context.Context) error {
	_, _, _, err := l.store.ListBlockingPopRight(ctx, 0, l.name)
	return err
}

// Release returns one token to the semaphore. Every Acquire must be
// paired with exactly one Release on all exit paths.
func (l *Limiter) Release(ctx context.Context) error {
	return l.store.ListPushLeft(ctx, l.name, token)
}

// Len reports the number of tokens currently available (not held).
func (l *Limiter) Len(ctx context.Context) (int64, error) {
	return l.store.ListLen(ctx, l.name)
}

// TryInitOnce acquires a short-lived SetNX lock keyed by lockKey and, if
// won, calls Init(capacity); losers skip initialization and return nil
// immediately. Used at worker startup to resolve the semaphore bootstrap
// race without requiring a separate bootstrap binary.
func TryInitOnce(ctx context.Context, s *store.Client, l *Limiter, lockKey string, capacity int, lockTTL time.Duration) error {
	won, err := s.SetNX(ctx, lockKey, "1", lockTTL)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	return l.Init(ctx, capacity)
}
