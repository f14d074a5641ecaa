package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// ErrRunInProgress is returned by Submit while another run is queued or running.
var ErrRunInProgress = errors.New("a run is already in progress")

const defaultHistory = 20

// Job is the work executed for one run.
type Job func(ctx context.Context) (items int, published bool, err error)

// RunnerOptions tunes a Runner; zero values pick defaults.
type RunnerOptions struct {
	Guard   ports.RunGuard
	History int
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

// Runner executes at most one Job at a time on a single worker goroutine and
// keeps a bounded history of runs for status polling.
type Runner struct {
	job     Job
	guard   ports.RunGuard
	history int
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	queue chan string

	mu         sync.Mutex
	runs       map[string]*domain.Run
	order      []string
	active     string
	onComplete []func(domain.Run)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner constructs a Runner; call Start before runs are executed.
func NewRunner(job Job, opts RunnerOptions) *Runner {
	r := &Runner{
		job:     job,
		guard:   opts.Guard,
		history: opts.History,
		logger:  opts.Logger,
		now:     opts.Now,
		newID:   opts.NewID,
		queue:   make(chan string, 1),
		runs:    map[string]*domain.Run{},
	}
	if r.history <= 0 {
		r.history = defaultHistory
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// OnComplete registers a callback invoked with the final state of every run.
func (r *Runner) OnComplete(fn func(domain.Run)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onComplete = append(r.onComplete, fn)
}

// Submit queues a run. It fails with ErrRunInProgress when one is active
// locally or the guard is held by another process.
func (r *Runner) Submit(ctx context.Context, trigger string) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != "" {
		return domain.Run{}, ErrRunInProgress
	}

	id := r.newID()
	if r.guard != nil {
		ok, err := r.guard.Acquire(ctx, id)
		if err != nil {
			return domain.Run{}, fmt.Errorf("acquire run guard: %w", err)
		}
		if !ok {
			return domain.Run{}, ErrRunInProgress
		}
	}

	run := &domain.Run{ID: id, Trigger: trigger, State: domain.RunQueued, QueuedAt: r.now()}
	select {
	case r.queue <- id:
	default:
		r.releaseGuard(id)
		return domain.Run{}, ErrRunInProgress
	}

	r.active = id
	r.remember(run)
	r.debug("run queued", "run_id", id, "trigger", trigger)
	return *run, nil
}

// Status returns a snapshot of the run with the given id.
func (r *Runner) Status(id string) (domain.Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return domain.Run{}, false
	}
	return *run, true
}

// Recent returns up to n runs, newest first.
func (r *Runner) Recent(n int) []domain.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.order) {
		n = len(r.order)
	}
	out := make([]domain.Run, 0, n)
	for i := len(r.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *r.runs[r.order[i]])
	}
	return out
}

// Busy reports whether a run is queued or executing.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != ""
}

// Start launches the worker goroutine.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("runner already started")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.work(workerCtx, r.done)
	return nil
}

// Stop cancels the active run and waits for the worker to exit or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) work(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			r.execute(ctx, id)
		}
	}
}

func (r *Runner) execute(ctx context.Context, id string) {
	started := r.now()
	r.update(id, func(run *domain.Run) {
		run.State = domain.RunRunning
		run.StartedAt = &started
	})
	r.debug("run started", "run_id", id)

	runCtx, stop := holdLease(ctx, r.guard, id, r.logger)
	items, published, err := r.safeJob(runCtx)
	stop()

	finished := r.now()
	r.releaseGuard(id)

	r.mu.Lock()
	run := r.runs[id]
	run.FinishedAt = &finished
	run.Items = items
	run.Published = published
	if err != nil {
		run.State = domain.RunFailed
		run.Error = err.Error()
	} else {
		run.State = domain.RunSucceeded
	}
	snapshot := *run
	callbacks := append([]func(domain.Run){}, r.onComplete...)
	r.active = ""
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(snapshot)
	}
}

func (r *Runner) safeJob(ctx context.Context) (items int, published bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("run panicked: %v", rec)
		}
	}()
	if r.job == nil {
		return 0, false, errors.New("runner has no job")
	}
	return r.job(ctx)
}

func (r *Runner) update(id string, fn func(*domain.Run)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok {
		fn(run)
	}
}

// remember stores a run and evicts the oldest ones beyond the history bound.
func (r *Runner) remember(run *domain.Run) {
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)
	for len(r.order) > r.history {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.runs, oldest)
	}
}

func (r *Runner) releaseGuard(id string) {
	if r.guard != nil {
		releaseGuard(r.guard, id, r.logger)
	}
}

func (r *Runner) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
