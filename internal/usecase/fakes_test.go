package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"NewsDigest/internal/domain"
)

var thursdayEvening = time.Date(2025, 11, 13, 18, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return thursdayEvening }

type fakeSource struct {
	cands []domain.Candidate
	err   error
}

func (f *fakeSource) FetchAll(context.Context, []string) ([]domain.Candidate, error) {
	return f.cands, f.err
}

type fakeStore struct {
	mu        sync.Mutex
	commitErr error
	clears    int
	commits   int
	unified   []domain.UnifiedScript
	items     []domain.StoredItem
	nextID    int64
}

func (f *fakeStore) Clear(context.Context) (domain.ClearReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.items, f.unified = nil, nil
	return domain.ClearReport{TablesCleared: []string{"item_scripts", "news_items", "unified_scripts"}}, nil
}

func (f *fakeStore) ExistsByLink(_ context.Context, link string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.Item.Link == link {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CommitBatch(_ context.Context, unified domain.UnifiedScript, drafts []domain.NewsDraft) (domain.CommitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	if f.commitErr != nil {
		return domain.CommitResult{}, f.commitErr
	}

	seen := map[string]bool{}
	var stored []domain.StoredItem
	for _, d := range drafts {
		if seen[d.Item.Link] {
			continue
		}
		seen[d.Item.Link] = true
		f.nextID++
		item := d.Item
		item.ID = f.nextID
		stored = append(stored, domain.StoredItem{
			Item:   item,
			Script: domain.ItemScript{ID: f.nextID, NewsItemID: item.ID, Content: d.Script, CreatedAt: item.CreatedAt},
		})
	}
	f.unified = nil
	if len(drafts) > 0 || unified.Content != "" {
		f.unified = []domain.UnifiedScript{unified}
	}
	f.items = stored
	return domain.CommitResult{
		Items:   stored,
		Cleared: domain.ClearReport{TablesCleared: []string{"item_scripts", "news_items", "unified_scripts"}},
	}, nil
}

func (f *fakeStore) ListItems(context.Context, int) ([]domain.StoredItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.StoredItem(nil), f.items...), nil
}

func (f *fakeStore) LatestUnified(context.Context) (domain.UnifiedScript, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.unified) == 0 {
		return domain.UnifiedScript{}, false, nil
	}
	return f.unified[len(f.unified)-1], true, nil
}

type fakeImages struct {
	results map[string]domain.ImageResult
	calls   int
}

// cancellingImages aborts the run from inside enrichment, like a shutdown would.
type cancellingImages struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingImages) Resolve(ctx context.Context, _, _ string) domain.ImageResult {
	c.calls++
	c.cancel()
	return domain.ImageFailed(ctx.Err())
}

func (f *fakeImages) Resolve(_ context.Context, articleURL, _ string) domain.ImageResult {
	f.calls++
	if res, ok := f.results[articleURL]; ok {
		return res
	}
	return domain.ImageAbsent("no image on page")
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply(prompt)
}

func failingGenerator() *fakeGenerator {
	return &fakeGenerator{reply: func(string) (string, error) {
		return "", errors.New("quota exceeded")
	}}
}

type sent struct {
	kind    string
	name    string
	payload string
}

type fakeMessenger struct {
	mu        sync.Mutex
	sent      []sent
	photoErr  error
	textErrOn map[string]error
}

func (f *fakeMessenger) SendText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for needle, err := range f.textErrOn {
		if strings.Contains(text, needle) {
			return err
		}
	}
	f.sent = append(f.sent, sent{kind: "text", payload: text})
	return nil
}

func (f *fakeMessenger) SendPhoto(_ context.Context, name, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.photoErr != nil {
		return f.photoErr
	}
	f.sent = append(f.sent, sent{kind: "photo", name: name, payload: caption})
	return nil
}
