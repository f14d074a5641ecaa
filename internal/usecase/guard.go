package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"NewsDigest/internal/ports"
)

// ErrLeaseLost is the cancellation cause of a run whose lease expired or was taken.
var ErrLeaseLost = errors.New("run lease lost")

// Exclusive runs fn while owner holds guard. It fails with ErrRunInProgress
// when another owner holds it. A nil guard runs fn directly.
func Exclusive(ctx context.Context, guard ports.RunGuard, owner string, log *slog.Logger, fn func(context.Context) error) error {
	if guard == nil {
		return fn(ctx)
	}
	ok, err := guard.Acquire(ctx, owner)
	if err != nil {
		return fmt.Errorf("acquire run guard: %w", err)
	}
	if !ok {
		return ErrRunInProgress
	}
	defer releaseGuard(guard, owner, log)

	runCtx, stop := holdLease(ctx, guard, owner, log)
	defer stop()
	return fn(runCtx)
}

// holdLease refreshes a LeaseGuard at a third of its TTL until the returned
// stop is called. Losing the lease cancels the returned context with ErrLeaseLost.
func holdLease(ctx context.Context, guard ports.RunGuard, owner string, log *slog.Logger) (context.Context, func()) {
	lease, ok := guard.(ports.LeaseGuard)
	if !ok || lease.TTL() <= 0 {
		return ctx, func() {}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(lease.TTL()/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				held, err := lease.Refresh(runCtx, owner)
				if err != nil {
					if log != nil {
						log.Warn("refresh run lease failed", "owner", owner, "error", err)
					}
					continue
				}
				if !held {
					if log != nil {
						log.Error("run lease lost, cancelling run", "owner", owner)
					}
					cancel(ErrLeaseLost)
					return
				}
			}
		}
	}()

	return runCtx, func() {
		cancel(nil)
		<-done
	}
}

func releaseGuard(guard ports.RunGuard, owner string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := guard.Release(ctx, owner); err != nil && log != nil {
		log.Warn("release run guard", "owner", owner, "error", err)
	}
}
