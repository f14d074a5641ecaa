package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// PipelineDeps wires all driven adapters into the weekly pipeline.
type PipelineDeps struct {
	Source   ports.FeedSource
	Feeds    []string
	Keywords []string
	Category string
	Limit    int
	Store    ports.StateStore
	Images   ports.ImageResolver
	Scripts  *ScriptWriter
	Clock    func() time.Time
	Logger   *slog.Logger
	Metrics  ports.Metrics
}

// Pipeline implements the fetch, select, enrich and rebuild workflow.
type Pipeline struct {
	source   ports.FeedSource
	feeds    []string
	keywords []string
	category string
	limit    int
	store    ports.StateStore
	images   ports.ImageResolver
	scripts  *ScriptWriter
	clock    func() time.Time
	logger   *slog.Logger
	metrics  ports.Metrics
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:   deps.Source,
		feeds:    append([]string(nil), deps.Feeds...),
		keywords: append([]string(nil), deps.Keywords...),
		category: deps.Category,
		limit:    deps.Limit,
		store:    deps.Store,
		images:   deps.Images,
		scripts:  deps.Scripts,
		clock:    deps.Clock,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.scripts == nil {
		p.scripts = NewScriptWriter(nil, p.category, 0, p.logger)
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	return p
}

// RunPipeline executes one cycle and returns the persisted batch. An empty
// slice means nothing new was found this week.
func (p *Pipeline) RunPipeline(ctx context.Context) ([]domain.ResultItem, error) {
	report, err := p.Run(ctx)
	return report.Items, err
}

// Run executes one cycle. Only a failed fetch, a failed commit or a cancelled
// context end the run with an error; every other step degrades per item.
func (p *Pipeline) Run(ctx context.Context) (domain.RunReport, error) {
	if p.store == nil {
		return domain.RunReport{Items: []domain.ResultItem{}}, errors.New("pipeline has no state store")
	}

	now := p.clock()
	report := domain.RunReport{
		WeekStart: WeekStart(now),
		Images:    map[domain.Outcome]int{},
		Items:     []domain.ResultItem{},
	}

	var cands []domain.Candidate
	if p.source != nil && len(p.feeds) > 0 {
		var err error
		cands, err = p.source.FetchAll(ctx, p.feeds)
		if err != nil {
			return emptyReport(report), fmt.Errorf("fetch feeds: %w", err)
		}
	}
	selected := Select(cands, report.WeekStart, p.keywords, p.limit)
	report.Fetched, report.Selected = len(cands), len(selected)
	p.metrics.ObserveSelection(report.Fetched, report.Selected)
	p.info("selection done", "fetched", report.Fetched, "selected", report.Selected, "week_start", report.WeekStart)

	if len(selected) == 0 {
		p.info("nothing new this week", "category", p.category)
		return p.commit(ctx, report, domain.UnifiedScript{WeekStart: report.WeekStart, CreatedAt: now}, nil)
	}

	report.Unified = p.scripts.Unified(ctx, selected)
	report.Individual = p.scripts.Individual(ctx, selected)
	if report.Unified.Fallback {
		p.metrics.ObserveFallback("unified")
	}
	if report.Individual.Fallback {
		p.metrics.ObserveFallback("individual")
	}

	drafts := make([]domain.NewsDraft, 0, len(selected))
	for _, cand := range selected {
		if err := ctx.Err(); err != nil {
			return emptyReport(report), fmt.Errorf("enrich items: %w", err)
		}

		image := p.resolveImage(ctx, cand)
		report.Images[image.Outcome]++
		p.metrics.ObserveImage(image.Outcome)

		published := cand.Published
		if !cand.HasPublished() {
			published = now
		}
		drafts = append(drafts, domain.NewsDraft{
			Item: domain.NewsItem{
				Title:     cand.Title,
				Link:      cand.Link,
				Summary:   cand.Summary,
				Published: published,
				Category:  p.category,
				ImagePath: image.File,
				CreatedAt: now,
			},
			Script:    report.Individual.Text,
			Thumbnail: image.Thumbnail,
		})
	}

	unified := domain.UnifiedScript{Content: report.Unified.Text, WeekStart: report.WeekStart, CreatedAt: now}
	return p.commit(ctx, report, unified, drafts)
}

// commit replaces the stored batch. The prior batch is untouched until this
// point, so every earlier abort leaves it intact.
func (p *Pipeline) commit(ctx context.Context, report domain.RunReport, unified domain.UnifiedScript, drafts []domain.NewsDraft) (domain.RunReport, error) {
	if err := ctx.Err(); err != nil {
		return emptyReport(report), fmt.Errorf("commit batch: %w", err)
	}
	result, err := p.store.CommitBatch(ctx, unified, drafts)
	report.Clear = result.Cleared
	if err != nil {
		return emptyReport(report), fmt.Errorf("commit batch: %w", err)
	}
	if !result.Cleared.OK() {
		p.warn("previous batch cleared with errors", "errors", result.Cleared.Errors)
	}

	report.Committed = len(result.Items)
	p.metrics.ObserveCommitted(report.Committed)
	for _, item := range result.Items {
		report.Items = append(report.Items, item.ToResult())
	}

	p.info("batch committed",
		"items", report.Committed,
		"images_ok", report.Images[domain.OutcomeOK],
		"files_removed", result.Cleared.FilesRemoved,
		"unified_fallback", report.Unified.Fallback,
		"individual_fallback", report.Individual.Fallback)
	return report, nil
}

func (p *Pipeline) resolveImage(ctx context.Context, cand domain.Candidate) domain.ImageResult {
	if p.images == nil {
		return domain.ImageAbsent("image resolution disabled")
	}
	result := p.images.Resolve(ctx, cand.Link, cand.ImageURL)
	if result.Outcome == domain.OutcomeFailed {
		p.warn("image failed", "link", cand.Link, "reason", result.Reason)
	}
	if result.Outcome != domain.OutcomeOK {
		result.File = ""
	}
	return result
}

// emptyReport keeps the diagnostic counters but drops any items.
func emptyReport(r domain.RunReport) domain.RunReport {
	r.Committed = 0
	r.Items = []domain.ResultItem{}
	return r
}

func (p *Pipeline) info(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveSelection(int, int) {}
func (nopMetrics) ObserveCommitted(int) {}
func (nopMetrics) ObserveImage(domain.Outcome) {}
func (nopMetrics) ObserveFallback(string) {}
func (nopMetrics) ObserveDelivery(domain.DeliveryKind, domain.Outcome) {}
func (nopMetrics) ObserveRun(string, time.Duration) {}
