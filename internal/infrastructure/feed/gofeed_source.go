package feed

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// Source reads RSS, Atom and JSON feeds one after another.
type Source struct {
	parser     *gofeed.Parser
	politeness time.Duration
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ ports.FeedSource = (*Source)(nil)

// NewSource wires an HTTP client; politeness is the pause between two feeds.
func NewSource(client *http.Client, userAgent string, politeness time.Duration, log *slog.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent
	return &Source{
		parser:     parser,
		politeness: politeness,
		logger:     log,
		sleep:      sleepContext,
	}
}

// FetchAll returns one candidate per entry, in feed order then entry order.
// A failing feed is logged and skipped; only cancellation aborts the walk.
func (s *Source) FetchAll(ctx context.Context, feeds []string) ([]domain.Candidate, error) {
	var aggregated []domain.Candidate
	for i, feedURL := range feeds {
		if i > 0 && s.politeness > 0 {
			if err := s.sleep(ctx, s.politeness); err != nil {
				return aggregated, err
			}
		}
		if err := ctx.Err(); err != nil {
			return aggregated, err
		}

		parsed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			if ctx.Err() != nil {
				return aggregated, ctx.Err()
			}
			s.warn("feed skipped", "feed", feedURL, "error", err)
			continue
		}

		for _, item := range parsed.Items {
			if item == nil {
				continue
			}
			aggregated = append(aggregated, toCandidate(item, feedURL))
		}
		s.debug("feed fetched", "feed", feedURL, "entries", len(parsed.Items))
	}

	s.debug("fetch done", "feeds", len(feeds), "candidates", len(aggregated))
	return aggregated, nil
}

func toCandidate(item *gofeed.Item, feedURL string) domain.Candidate {
	c := domain.Candidate{
		Title:   strings.TrimSpace(item.Title),
		Link:    strings.TrimSpace(item.Link),
		Summary: strings.TrimSpace(item.Description),
		Source:  feedURL,
	}
	if c.Summary == "" {
		c.Summary = strings.TrimSpace(item.Content)
	}

	switch {
	case item.PublishedParsed != nil:
		c.Published = *item.PublishedParsed
		c.PublishedRaw = item.Published
	case item.UpdatedParsed != nil:
		c.Published = *item.UpdatedParsed
		c.PublishedRaw = item.Updated
	default:
		c.PublishedRaw = item.Published
	}

	if item.Image != nil && item.Image.URL != "" {
		c.ImageURL = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if enc != nil && enc.URL != "" && strings.HasPrefix(strings.ToLower(enc.Type), "image/") {
				c.ImageURL = enc.URL
				break
			}
		}
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Source) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Source) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
