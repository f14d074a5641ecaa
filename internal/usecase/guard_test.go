package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type leaseGuard struct {
	mu        sync.Mutex
	owner     string
	ttl       time.Duration
	refreshes int
	lostAfter int // Refresh reports the lease gone after this many calls; 0 never
}

func (g *leaseGuard) Acquire(_ context.Context, owner string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.owner != "" {
		return false, nil
	}
	g.owner = owner
	return true, nil
}

func (g *leaseGuard) Release(_ context.Context, owner string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.owner == owner {
		g.owner = ""
	}
	return nil
}

func (g *leaseGuard) Refresh(_ context.Context, owner string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshes++
	if g.lostAfter > 0 && g.refreshes >= g.lostAfter {
		g.owner = "someone-else"
	}
	return g.owner == owner, nil
}

func (g *leaseGuard) TTL() time.Duration { return g.ttl }

func (g *leaseGuard) snapshot() (string, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner, g.refreshes
}

func TestExclusiveRejectsHeldGuard(t *testing.T) {
	t.Parallel()

	guard := &leaseGuard{owner: "serve-run"}
	called := false
	err := Exclusive(context.Background(), guard, "cli", nil, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrRunInProgress) || called {
		t.Fatalf("held guard must reject without running: err=%v called=%v", err, called)
	}
}

func TestExclusiveReleasesAfterFailure(t *testing.T) {
	t.Parallel()

	guard := &leaseGuard{}
	boom := errors.New("commit failed")
	if err := Exclusive(context.Background(), guard, "cli", nil, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	if owner, _ := guard.snapshot(); owner != "" {
		t.Fatalf("guard still held by %q", owner)
	}
}

func TestExclusiveRefreshesLeaseDuringLongRun(t *testing.T) {
	t.Parallel()

	guard := &leaseGuard{ttl: 30 * time.Millisecond}
	err := Exclusive(context.Background(), guard, "cli", nil, func(ctx context.Context) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		t.Fatalf("Exclusive: %v", err)
	}
	if _, refreshes := guard.snapshot(); refreshes < 2 {
		t.Fatalf("lease should be refreshed while the run is active, got %d refreshes", refreshes)
	}
}

func TestExclusiveCancelsRunWhenLeaseLost(t *testing.T) {
	t.Parallel()

	guard := &leaseGuard{ttl: 30 * time.Millisecond, lostAfter: 1}
	err := Exclusive(context.Background(), guard, "cli", nil, func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return errors.New("run was not cancelled")
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	})
	if !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
	if owner, _ := guard.snapshot(); owner != "someone-else" {
		t.Fatalf("a lost lease must not be released from under the new holder, owner=%q", owner)
	}
}

func TestRunnerRefreshesLease(t *testing.T) {
	t.Parallel()

	guard := &leaseGuard{ttl: 30 * time.Millisecond}
	job := func(context.Context) (int, bool, error) {
		time.Sleep(100 * time.Millisecond)
		return 1, false, nil
	}
	r, done := startRunner(t, job, RunnerOptions{Guard: guard})
	if _, err := r.Submit(context.Background(), "api"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitRun(t, done)

	owner, refreshes := guard.snapshot()
	if refreshes < 2 || owner != "" {
		t.Fatalf("expected refreshes and a released guard: refreshes=%d owner=%q", refreshes, owner)
	}
}
