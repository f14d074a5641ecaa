package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const (
	unifiedFallbackTitles    = 7
	individualFallbackTitles = 5

	defaultGenerationTimeout = 30 * time.Second
)

var errNoGenerator = errors.New("no generator configured")

const unifiedPrompt = `You are a professional news presenter creating a short, high-energy script
for TikTok, Instagram Reels and Facebook Reels.

Here are this week's %s headlines and summaries:
%s

Write an engaging, human-sounding short video script that hooks viewers in the first 3 seconds.
Use a friendly but confident tone and keep sentences short and punchy.

Structure:
1. Attention-grabbing intro: a surprising fact, a question or a bold statement.
2. Story delivery: each story with vivid language and smooth transitions.
3. Closing hook: a short, memorable line or question that invites comments.

Rules:
- Keep it under 60 seconds total.
- Avoid long numbers and dates unless they are critical to the story.
- Focus on the human impact and why viewers should care.
`

const individualPrompt = `You write captions for social posts that each share one %s news story from this week.
The stories are:
%s

Write one short narrative (at most 80 words) that can accompany any of these posts:
summarize the week's theme in a conversational voice and end with a call to follow for weekly updates.
`

// ScriptWriter turns a ranked batch into narrative text, falling back to a
// numbered title list whenever generation is unavailable.
type ScriptWriter struct {
	generator ports.Generator
	category  string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewScriptWriter wires a generator; a nil generator always yields the fallback.
func NewScriptWriter(generator ports.Generator, category string, timeout time.Duration, log *slog.Logger) *ScriptWriter {
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	return &ScriptWriter{generator: generator, category: category, timeout: timeout, logger: log}
}

// Unified produces the combined weekly-digest video script.
func (w *ScriptWriter) Unified(ctx context.Context, cands []domain.Candidate) domain.ScriptResult {
	prompt := fmt.Sprintf(unifiedPrompt, w.category, formatHeadlines(cands))
	return w.generate(ctx, "unified", prompt, cands, unifiedFallbackTitles)
}

// Individual produces the narrative shared by every item of the batch.
func (w *ScriptWriter) Individual(ctx context.Context, cands []domain.Candidate) domain.ScriptResult {
	prompt := fmt.Sprintf(individualPrompt, w.category, formatHeadlines(cands))
	return w.generate(ctx, "individual", prompt, cands, individualFallbackTitles)
}

func (w *ScriptWriter) generate(ctx context.Context, kind, prompt string, cands []domain.Candidate, titles int) domain.ScriptResult {
	text, err := w.call(ctx, prompt)
	if err == nil {
		return domain.ScriptResult{Text: text}
	}

	if w.logger != nil {
		w.logger.Warn("script generation fell back", "script", kind, "error", err)
	}
	return domain.ScriptResult{
		Text:     FallbackScript(cands, titles),
		Fallback: true,
		Reason:   err.Error(),
	}
}

func (w *ScriptWriter) call(ctx context.Context, prompt string) (string, error) {
	if w.generator == nil {
		return "", errNoGenerator
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	text, err := w.generator.Generate(callCtx, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("generator returned blank text")
	}
	return text, nil
}

// FallbackScript enumerates up to max titles under a fixed heading.
func FallbackScript(cands []domain.Candidate, max int) string {
	var sb strings.Builder
	sb.WriteString("This week's top stories:")
	for i, cand := range cands {
		if i >= max {
			break
		}
		fmt.Fprintf(&sb, "\n%d. %s", i+1, cand.Title)
	}
	return sb.String()
}

func formatHeadlines(cands []domain.Candidate) string {
	lines := make([]string, 0, len(cands))
	for _, cand := range cands {
		lines = append(lines, fmt.Sprintf("- %s (%s)\n  %s", cand.Title, cand.Link, cand.Summary))
	}
	return strings.Join(lines, "\n")
}
