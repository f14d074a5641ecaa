package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/infrastructure/blob"
	"NewsDigest/internal/infrastructure/feed"
	"NewsDigest/internal/infrastructure/httpapi"
	"NewsDigest/internal/infrastructure/httpx"
	"NewsDigest/internal/infrastructure/imagery"
	"NewsDigest/internal/infrastructure/llm"
	"NewsDigest/internal/infrastructure/runlock"
	"NewsDigest/internal/infrastructure/scheduler"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/infrastructure/telegram"
	"NewsDigest/internal/logging"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	store  *storage.SQLStore
	cycle  *usecase.Cycle
	guard  ports.RunGuard
	runner *usecase.Runner

	closers []func() error
}

// New opens storage and builds every adapter named by cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}
	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}

	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	db, dialect, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.store = storage.NewSQLStore(db, dialect, blobs, baseLogger.With("component", "store"))
	a.closers = append(a.closers, a.store.Close)

	client := httpx.New(httpx.Options{
		Timeout:        cfg.HTTP.Timeout,
		MaxRetries:     cfg.HTTP.MaxRetries,
		InitialBackoff: cfg.HTTP.InitialBackoff,
		UserAgent:      cfg.Feeds.UserAgent,
		Logger:         baseLogger.With("component", "http"),
	})

	generator, err := newGenerator(ctx, cfg.Generation, baseLogger)
	if err != nil {
		a.Close()
		return nil, err
	}
	var gen ports.Generator
	if generator != nil {
		gen = generator
		a.closers = append(a.closers, generator.Close)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:   feed.NewSource(client.HTTPClient(), client.UserAgent(), cfg.Feeds.Politeness, baseLogger.With("component", "feed")),
		Feeds:    cfg.Feeds.URLs,
		Keywords: cfg.Topic.Keywords,
		Category: cfg.Topic.Category,
		Limit:    cfg.Topic.Limit,
		Store:    a.store,
		Images: imagery.NewResolver(client, blobs, imagery.Options{
			MaxBytes:      cfg.Images.MaxBytes,
			ThumbnailEdge: cfg.Images.ThumbnailEdge,
			Logger:        baseLogger.With("component", "imagery"),
		}),
		Scripts: usecase.NewScriptWriter(gen, cfg.Topic.Category, cfg.Generation.Timeout, baseLogger.With("component", "scripts")),
		Clock:   func() time.Time { return time.Now().In(cfg.Scheduler.Location()) },
		Logger:  baseLogger.With("component", "pipeline"),
		Metrics: a.metrics,
	})

	var publisher *usecase.DigestPublisher
	if tg := cfg.Notifications.Telegram; tg.Configured() {
		messenger := telegram.NewMessenger(tg.BotToken, tg.ChatID, tg.APIBaseURL, client.HTTPClient(), blobs,
			baseLogger.With("component", "telegram"))
		publisher = usecase.NewDigestPublisher(messenger, cfg.Topic.Category, tg.SendTimeout, a.metrics,
			baseLogger.With("component", "digest"))
	} else {
		baseLogger.Warn("telegram not configured, digests will not be published")
	}
	a.cycle = usecase.NewCycle(pipeline, publisher)

	a.guard, err = a.newGuard(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner = usecase.NewRunner(a.job, usecase.RunnerOptions{
		Guard:  a.guard,
		Logger: baseLogger.With("component", "runner"),
	})
	a.runner.OnComplete(a.recordRun)

	return a, nil
}

// RunOnce executes one cycle synchronously, bypassing the queue but not the
// run guard: it fails with usecase.ErrRunInProgress while another run holds it.
func (a *Application) RunOnce(ctx context.Context, publish bool) (domain.RunReport, *domain.DigestReport, error) {
	var (
		report domain.RunReport
		digest *domain.DigestReport
	)
	owner := "cli-" + uuid.NewString()
	start := time.Now()
	err := usecase.Exclusive(ctx, a.guard, owner, a.logger.With("component", "runner"), func(ctx context.Context) error {
		var err error
		report, digest, err = a.cycle.Execute(ctx, publish)
		return err
	})
	if errors.Is(err, usecase.ErrRunInProgress) {
		return report, nil, err
	}
	outcome := string(domain.RunSucceeded)
	if err != nil {
		outcome = string(domain.RunFailed)
	}
	a.metrics.ObserveRun(outcome, time.Since(start))
	return report, digest, err
}

// Clear resets persisted state and stored images.
func (a *Application) Clear(ctx context.Context) (domain.ClearReport, error) {
	return a.store.Clear(ctx)
}

// Serve runs the queue, the cron trigger and the HTTP API until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.runner.Start(ctx); err != nil {
		return err
	}

	driver, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(),
		a.logger.With("component", "scheduler"))
	if err != nil {
		return err
	}
	sched := usecase.NewScheduler(driver, a.runner, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}

	server := httpapi.NewServer(a.cfg.Server.Addr, httpapi.Deps{
		Runs:    a.runner,
		Store:   a.store,
		Metrics: a.metrics.Handler(),
		Logger:  a.logger.With("component", "httpapi"),
	})
	serveErrs := server.Start()

	var serveErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErrs:
		if ok {
			serveErr = err
		}
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(
		serveErr,
		server.Shutdown(shutdownCtx),
		sched.Stop(shutdownCtx),
		a.runner.Stop(shutdownCtx),
	)
}

// Close releases storage and client resources.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) job(ctx context.Context) (int, bool, error) {
	report, digest, err := a.cycle.Execute(ctx, true)
	if err != nil {
		return 0, false, err
	}
	if digest != nil && digest.Failed > 0 {
		a.logger.Warn("digest published with failures", "sent", digest.Sent, "failed", digest.Failed, "degraded", digest.Degraded)
	}
	return len(report.Items), digest != nil, nil
}

func (a *Application) recordRun(run domain.Run) {
	var elapsed time.Duration
	if run.StartedAt != nil && run.FinishedAt != nil {
		elapsed = run.FinishedAt.Sub(*run.StartedAt)
	}
	a.metrics.ObserveRun(string(run.State), elapsed)

	if run.State == domain.RunFailed {
		a.logger.Error("run failed", "run_id", run.ID, "trigger", run.Trigger, "error", run.Error)
		return
	}
	a.logger.Info("run finished", "run_id", run.ID, "trigger", run.Trigger, "items", run.Items, "published", run.Published, "elapsed", elapsed)
}

func (a *Application) newGuard(ctx context.Context) (ports.RunGuard, error) {
	if a.cfg.Redis.Addr == "" {
		return runlock.NewMemory(), nil
	}
	guard, err := runlock.NewRedis(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, guard.Close)
	return guard, nil
}

// newGenerator returns nil when no provider is usable; scripts then use the fallback.
// A known provider without a key is not fatal, an unknown provider is.
func newGenerator(ctx context.Context, cfg config.GenerationConfig, log *slog.Logger) (llm.Provider, error) {
	generator, err := llm.New(ctx, cfg)
	if errors.Is(err, llm.ErrMissingAPIKey) {
		log.Warn("generation api key missing, scripts will use the fallback", "provider", cfg.Provider)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if generator == nil {
		log.Warn("no generation provider, scripts will use the fallback")
	}
	return generator, nil
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (ports.BlobStore, error) {
	switch cfg.Backend {
	case "", "local":
		return blob.NewLocal(cfg.Dir)
	case "s3":
		return blob.NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
