package rate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter spaces out mutating provider calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket releases one token per interval, holding at most burst.
type TokenBucket struct {
	ticker   *time.Ticker
	tokens   chan struct{}
	done     chan struct{}
	stopDone chan struct{}
	stopOnce sync.Once
}

// NewTokenBucket returns a limiter that releases a token every interval.
// The first call proceeds immediately.
func NewTokenBucket(interval time.Duration, burst int) *TokenBucket {
	if interval <= 0 {
		interval = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	tb := &TokenBucket{
		ticker:   time.NewTicker(interval),
		tokens:   make(chan struct{}, burst),
		done:     make(chan struct{}),
		stopDone: make(chan struct{}),
	}
	tb.tokens <- struct{}{}
	go tb.run()
	return tb
}

func (t *TokenBucket) run() {
	defer close(t.stopDone)
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			select {
			case t.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Wait blocks until a token is available or the context is canceled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate wait canceled: %w", ctx.Err())
	case <-t.tokens:
		return nil
	}
}

// Stop releases resources held by the limiter. It is safe to call more than once.
func (t *TokenBucket) Stop() {
	t.stopOnce.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
	<-t.stopDone
}

// Unlimited never blocks except on a canceled context.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rate wait canceled: %w", err)
	}
	return nil
}

// New returns a TokenBucket for a positive interval and Unlimited otherwise,
// along with its stop function.
func New(interval time.Duration) (Limiter, func()) {
	if interval <= 0 {
		return Unlimited{}, func() {}
	}
	tb := NewTokenBucket(interval, 1)
	return tb, tb.Stop
}

var (
	_ Limiter = (*TokenBucket)(nil)
	_ Limiter = Unlimited{}
)
