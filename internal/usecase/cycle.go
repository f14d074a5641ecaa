package usecase

import (
	"context"

	"NewsDigest/internal/domain"
)

// Cycle is one full weekly execution: the pipeline, then the digest.
type Cycle struct {
	pipeline  *Pipeline
	publisher *DigestPublisher
}

// NewCycle pairs a pipeline with an optional publisher.
func NewCycle(pipeline *Pipeline, publisher *DigestPublisher) *Cycle {
	return &Cycle{pipeline: pipeline, publisher: publisher}
}

// Execute runs the pipeline and, when publish is set and the run succeeded,
// sends the digest. A failed run is never published.
func (c *Cycle) Execute(ctx context.Context, publish bool) (domain.RunReport, *domain.DigestReport, error) {
	report, err := c.pipeline.Run(ctx)
	if err != nil {
		return report, nil, err
	}
	if !publish || c.publisher == nil {
		return report, nil, nil
	}
	digest := c.publisher.Publish(ctx, report.Items, report.Unified.Text)
	return report, &digest, nil
}
