package usecase

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const (
	defaultSendTimeout = 15 * time.Second

	// CaptionLimit is Telegram's limit on the visible text of a media caption.
	CaptionLimit = 1024

	// captionOverhead counts the separators Caption adds around title, summary and link.
	captionOverhead = len("\n\n") + len("\n\nRead more: ")
)

// DigestPublisher delivers the weekly digest message by message.
type DigestPublisher struct {
	messenger ports.Messenger
	category  string
	timeout   time.Duration
	metrics   ports.Metrics
	logger    *slog.Logger
}

// NewDigestPublisher wires the messenger; metrics may be nil.
func NewDigestPublisher(messenger ports.Messenger, category string, timeout time.Duration, metrics ports.Metrics, log *slog.Logger) *DigestPublisher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &DigestPublisher{
		messenger: messenger,
		category:  category,
		timeout:   timeout,
		metrics:   metrics,
		logger:    log,
	}
}

// Publish sends the notice for an empty batch, otherwise the unified script
// followed by one photo or text message per item. A failed send never stops the loop.
func (p *DigestPublisher) Publish(ctx context.Context, items []domain.ResultItem, unified string) domain.DigestReport {
	var report domain.DigestReport
	if p.messenger == nil {
		return report
	}

	if len(items) == 0 {
		err := p.send(ctx, func(c context.Context) error {
			return p.messenger.SendText(c, EmptyNotice(p.category))
		})
		p.record(&report, "", domain.DeliveryNotice, err)
		return report
	}

	err := p.send(ctx, func(c context.Context) error {
		return p.messenger.SendText(c, DigestMessage(p.category, unified))
	})
	p.record(&report, "", domain.DeliveryUnified, err)

	for _, item := range items {
		if ctx.Err() != nil {
			p.warn("publish interrupted", "error", ctx.Err())
			break
		}

		caption := Caption(item)
		if item.ImagePath != "" {
			photoCaption := PhotoCaption(item, CaptionLimit)
			err := p.send(ctx, func(c context.Context) error {
				return p.messenger.SendPhoto(c, item.ImagePath, photoCaption)
			})
			if err == nil {
				p.record(&report, item.Link, domain.DeliveryPhoto, nil)
				continue
			}
			p.warn("photo delivery failed, sending text", "link", item.Link, "error", err)
			report.Degraded++
		}

		err := p.send(ctx, func(c context.Context) error {
			return p.messenger.SendText(c, caption)
		})
		p.record(&report, item.Link, domain.DeliveryText, err)
	}

	return report
}

func (p *DigestPublisher) send(ctx context.Context, fn func(context.Context) error) error {
	sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return fn(sendCtx)
}

func (p *DigestPublisher) record(report *domain.DigestReport, link string, kind domain.DeliveryKind, err error) {
	delivery := domain.Delivery{Link: link, Kind: kind, Outcome: domain.OutcomeOK}
	if err != nil {
		delivery.Outcome = domain.OutcomeFailed
		delivery.Reason = err.Error()
		report.Failed++
		p.warn("delivery failed", "kind", kind, "link", link, "error", err)
	} else {
		report.Sent++
	}
	report.Deliveries = append(report.Deliveries, delivery)
	if p.metrics != nil {
		p.metrics.ObserveDelivery(kind, delivery.Outcome)
	}
}

func (p *DigestPublisher) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

// EmptyNotice is sent when a cycle found nothing.
func EmptyNotice(category string) string {
	return fmt.Sprintf("No %s news found this week.", html.EscapeString(strings.ToLower(category)))
}

// DigestHeader precedes the unified script.
func DigestHeader(category string) string {
	return fmt.Sprintf("📰 <b>Weekly %s News Digest</b>\n\n", html.EscapeString(capitalize(category)))
}

// DigestMessage is the header followed by the escaped unified script. Generated
// and fallback text is plain, so titles like "Q&A" must not reach the HTML parser raw.
func DigestMessage(category, unified string) string {
	return DigestHeader(category) + html.EscapeString(unified)
}

// Caption renders an item for Telegram's HTML parse mode.
func Caption(item domain.ResultItem) string {
	return fmt.Sprintf("<b>%s</b>\n\n%s\n\nRead more: %s",
		html.EscapeString(item.Title),
		html.EscapeString(item.Summary),
		html.EscapeString(item.Link))
}

// PhotoCaption is Caption with the raw title and summary shortened before
// escaping, so the visible text stays within limit runes and no entity or tag is cut.
func PhotoCaption(item domain.ResultItem, limit int) string {
	budget := limit - captionOverhead -
		utf8.RuneCountInString(item.Title) - utf8.RuneCountInString(item.Link)
	if budget < 0 {
		item.Title = truncateRunes(item.Title, max(utf8.RuneCountInString(item.Title)+budget, 1))
		budget = 0
	}
	item.Summary = truncateRunes(item.Summary, budget)
	return Caption(item)
}

// truncateRunes shortens s to at most limit runes, marking the cut with an ellipsis.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
