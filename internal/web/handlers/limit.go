package handlers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kozaktomas/vface/internal/config"
	"github.com/kozaktomas/vface/internal/dispatch"
)

// limiter bounds the number of API requests served at once. Requests over
// the limit wait for a slot, up to backlog of them for at most timeout each.
// A nil limiter admits everything.
type limiter struct {
	slots   *semaphore.Weighted
	backlog int64
	timeout time.Duration
	waiting atomic.Int64
}

func newLimiter(cfg config.ServerConfig) *limiter {
	if cfg.MaxConcurrent <= 0 {
		return nil
	}
	return &limiter{
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		backlog: int64(max(cfg.Backlog, 0)),
		timeout: cfg.BacklogTimeout,
	}
}

// acquire takes a serving slot. The returned release must be called once the
// request is answered. Errors wrap dispatch.ErrServerBusy.
func (l *limiter) acquire(ctx context.Context) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if l.slots.TryAcquire(1) {
		return l.release, nil
	}

	if l.waiting.Add(1) > l.backlog {
		l.waiting.Add(-1)
		return nil, fmt.Errorf("%d requests already waiting: %w", l.backlog, dispatch.ErrServerBusy)
	}
	defer l.waiting.Add(-1)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a slot: %w: %w", dispatch.ErrServerBusy, err)
	}
	return l.release, nil
}

func (l *limiter) release() {
	l.slots.Release(1)
}
