package ports

import (
	"context"
	"io"
	"time"

	"NewsDigest/internal/domain"
)

// FeedSource pulls entries from an ordered list of feed endpoints.
type FeedSource interface {
	FetchAll(ctx context.Context, feeds []string) ([]domain.Candidate, error)
}

// ImageResolver finds, downloads and stores a representative image for an article.
type ImageResolver interface {
	Resolve(ctx context.Context, articleURL, imageURL string) domain.ImageResult
}

// Generator produces text for a prompt (Gemini, OpenAI, Cohere, ...).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// StateStore persists the current cycle's batch with clear-then-rebuild semantics.
// CommitBatch replaces the prior batch atomically; Clear is the standalone reset.
type StateStore interface {
	Clear(ctx context.Context) (domain.ClearReport, error)
	ExistsByLink(ctx context.Context, link string) (bool, error)
	CommitBatch(ctx context.Context, unified domain.UnifiedScript, drafts []domain.NewsDraft) (domain.CommitResult, error)
	ListItems(ctx context.Context, limit int) ([]domain.StoredItem, error)
	LatestUnified(ctx context.Context) (domain.UnifiedScript, bool, error)
}

// BlobStore keeps enrichment files under flat names.
type BlobStore interface {
	Put(ctx context.Context, name string, src io.Reader, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, name string) error
}

// Messenger delivers digest messages to a chat channel.
type Messenger interface {
	SendText(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, name, caption string) error
}

// RunGuard keeps at most one pipeline execution active.
type RunGuard interface {
	Acquire(ctx context.Context, owner string) (bool, error)
	Release(ctx context.Context, owner string) error
}

// LeaseGuard is a RunGuard whose hold expires after TTL unless refreshed.
type LeaseGuard interface {
	RunGuard
	Refresh(ctx context.Context, owner string) (bool, error)
	TTL() time.Duration
}

// Scheduler controls when runs are triggered.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// Metrics records pipeline observations.
type Metrics interface {
	ObserveSelection(fetched, selected int)
	ObserveCommitted(n int)
	ObserveImage(outcome domain.Outcome)
	ObserveFallback(script string)
	ObserveDelivery(kind domain.DeliveryKind, outcome domain.Outcome)
	ObserveRun(outcome string, elapsed time.Duration)
}
