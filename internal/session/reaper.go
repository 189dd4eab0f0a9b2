package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultReapInterval = 60 * time.Second
	DefaultIdleTimeout  = 5 * time.Minute
	DefaultReapBackoff  = 10 * time.Second
)

// Reaper periodically evicts sessions idle for longer than IdleTimeout. It
// only forgets sessions; it never closes their connections. An evicted id
// whose Forget fails is retried on later cycles.
type Reaper struct {
	Registry    *Registry
	Forget      func(id string)
	Interval    time.Duration
	IdleTimeout time.Duration
	Backoff     time.Duration
	Logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

// Run blocks until ctx is done.
func (rp *Reaper) Run(ctx context.Context) {
	interval := rp.Interval
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	backoff := rp.Backoff
	if backoff <= 0 {
		backoff = DefaultReapBackoff
	}

	rp.logger().Info("Reaper started", "interval", interval, "idle_timeout", rp.idleTimeout())

	wait := interval
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			rp.logger().Info("Reaper stopped")
			return
		case <-timer.C:
		}

		wait = interval
		if _, err := rp.Cycle(ctx); err != nil {
			rp.logger().Error("Reap cycle failed", "err", err, "backoff", backoff)
			wait = backoff + interval
		}
	}
}

// Cycle runs one eviction pass and returns the evicted ids. A panic inside
// the pass is returned as an error.
func (rp *Reaper) Cycle(ctx context.Context) (reaped []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reap cycle panic: %v", p)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rp.Registry == nil {
		return nil, fmt.Errorf("reaper has no registry")
	}

	now := rp.Registry.Now()
	reaped = rp.Registry.Sweep(now.Add(-rp.idleTimeout()))

	var errs []error
	for _, id := range rp.takePending() {
		if _, live := rp.Registry.Lookup(id); live {
			continue
		}
		if err := rp.forget(id); err != nil {
			rp.retryLater(id)
			errs = append(errs, err)
			continue
		}
		rp.logger().Info("Forgot reaped session on retry", "session", id)
	}
	for _, id := range reaped {
		if err := rp.forget(id); err != nil {
			rp.retryLater(id)
			errs = append(errs, err)
			continue
		}
		rp.logger().Info("Reaped idle session", "session", id)
	}
	return reaped, errors.Join(errs...)
}

// takePending returns and clears the ids whose Forget failed earlier.
func (rp *Reaper) takePending() []string {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	ids := make([]string, 0, len(rp.pending))
	for id := range rp.pending {
		ids = append(ids, id)
	}
	rp.pending = nil
	return ids
}

func (rp *Reaper) retryLater(id string) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.pending == nil {
		rp.pending = make(map[string]struct{})
	}
	rp.pending[id] = struct{}{}
}

func (rp *Reaper) forget(id string) (err error) {
	if rp.Forget == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("forget %s: %v", id, p)
		}
	}()
	rp.Forget(id)
	return nil
}

func (rp *Reaper) idleTimeout() time.Duration {
	if rp.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return rp.IdleTimeout
}

func (rp *Reaper) logger() *slog.Logger {
	if rp.Logger == nil {
		return slog.Default()
	}
	return rp.Logger
}
