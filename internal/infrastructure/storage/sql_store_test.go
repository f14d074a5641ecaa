package storage

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/infrastructure/blob"
)

func testStore(t *testing.T) (*SQLStore, *blob.Local) {
	t.Helper()
	dir := t.TempDir()

	db, dialect, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(dir, "state", "test.db"),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobs, err := blob.NewLocal(filepath.Join(dir, "images"))
	if err != nil {
		t.Fatalf("open blob root: %v", err)
	}
	return NewSQLStore(db, dialect, blobs, nil), blobs
}

func draft(link, title, image string, published time.Time) domain.NewsDraft {
	return domain.NewsDraft{
		Item: domain.NewsItem{
			Title:     title,
			Link:      link,
			Summary:   "summary of " + title,
			Published: published,
			Category:  "education",
			ImagePath: image,
		},
		Script: "shared script",
	}
}

func TestClearOnFreshStoreIsIdempotent(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		report, err := store.Clear(ctx)
		if err != nil {
			t.Fatalf("clear #%d: %v", i+1, err)
		}
		if !report.OK() {
			t.Fatalf("clear #%d reported errors: %v", i+1, report.Errors)
		}
		if len(report.TablesSkipped) != 3 || len(report.TablesCleared) != 0 {
			t.Fatalf("clear #%d should skip missing tables: %+v", i+1, report)
		}
	}
}

func TestExistsByLinkWithoutTables(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t)

	exists, err := store.ExistsByLink(context.Background(), "https://example.org/a")
	if err != nil {
		t.Fatalf("ExistsByLink: %v", err)
	}
	if exists {
		t.Fatalf("expected false before any table exists")
	}
}

func TestCommitBatchSkipsDuplicateLinks(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t)
	ctx := context.Background()

	week := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	day := week.Add(50 * time.Hour)
	drafts := []domain.NewsDraft{
		draft("https://example.org/a", "A", "a.png", day),
		draft("https://example.org/b", "B", "", day.Add(-time.Hour)),
		draft("https://example.org/a", "A again", "", day),
	}

	result, err := store.CommitBatch(ctx, domain.UnifiedScript{Content: "weekly", WeekStart: week}, drafts)
	if err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	stored := result.Items
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored items, got %d", len(stored))
	}
	for _, s := range stored {
		if s.Item.ID == 0 || s.Script.ID == 0 || s.Script.NewsItemID != s.Item.ID {
			t.Fatalf("ids not assigned: %+v", s)
		}
		if s.Script.Content != "shared script" {
			t.Fatalf("unexpected script: %q", s.Script.Content)
		}
	}

	exists, err := store.ExistsByLink(ctx, "https://example.org/a")
	if err != nil || !exists {
		t.Fatalf("expected link to exist, got %v (err %v)", exists, err)
	}

	items, err := store.ListItems(ctx, 0)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 listed items, got %d", len(items))
	}
	if items[0].Item.Title != "A" || items[0].Item.ImagePath != "a.png" {
		t.Fatalf("unexpected first item: %+v", items[0].Item)
	}
	if items[1].Item.ImagePath != "" {
		t.Fatalf("missing image should round-trip as empty: %+v", items[1].Item)
	}
	if !items[0].Item.Published.Equal(day) {
		t.Fatalf("published not preserved: %v", items[0].Item.Published)
	}
	if items[1].Script.Content != "shared script" {
		t.Fatalf("script not joined: %+v", items[1].Script)
	}

	unified, ok, err := store.LatestUnified(ctx)
	if err != nil || !ok {
		t.Fatalf("LatestUnified: ok=%v err=%v", ok, err)
	}
	if unified.Content != "weekly" || !unified.WeekStart.Equal(week) {
		t.Fatalf("unexpected unified script: %+v", unified)
	}
}

func TestClearRemovesRowsAndFiles(t *testing.T) {
	t.Parallel()
	store, blobs := testStore(t)
	ctx := context.Background()

	if err := blobs.Put(ctx, "a.png", strings.NewReader("img"), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := blobs.Put(ctx, "thumb_a.png", strings.NewReader("img"), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	now := time.Now()
	d := draft("https://example.org/a", "A", "a.png", now)
	d.Thumbnail = "thumb_a.png"
	if _, err := store.CommitBatch(ctx, domain.UnifiedScript{Content: "x", WeekStart: now}, []domain.NewsDraft{d}); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	report, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(report.TablesCleared) != 3 || report.FilesRemoved != 2 || !report.OK() {
		t.Fatalf("unexpected report: %+v", report)
	}

	items, err := store.ListItems(ctx, 10)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected no items after clear, got %d (err %v)", len(items), err)
	}
	if _, ok, _ := store.LatestUnified(ctx); ok {
		t.Fatalf("unified script should be gone")
	}
	if names, _ := blobs.List(ctx); len(names) != 0 {
		t.Fatalf("expected empty blob root, got %v", names)
	}

	again, err := store.Clear(ctx)
	if err != nil || !again.OK() || again.FilesRemoved != 0 {
		t.Fatalf("second clear should be a clean no-op: %+v (err %v)", again, err)
	}

	if _, err := store.CommitBatch(ctx, domain.UnifiedScript{Content: "y", WeekStart: now},
		[]domain.NewsDraft{draft("https://example.org/a", "A", "", now)}); err != nil {
		t.Fatalf("recommit after clear: %v", err)
	}
	if exists, _ := store.ExistsByLink(ctx, "https://example.org/a"); !exists {
		t.Fatalf("link should be insertable again after clear")
	}
}

func putFiles(t *testing.T, blobs *blob.Local, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := blobs.Put(context.Background(), name, strings.NewReader("img"), "image/png"); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}
}

func TestCommitBatchReplacesPriorBatch(t *testing.T) {
	t.Parallel()
	store, blobs := testStore(t)
	ctx := context.Background()
	now := time.Now()

	putFiles(t, blobs, "a.png", "thumb_a.png")
	first := draft("https://example.org/a", "A", "a.png", now)
	first.Thumbnail = "thumb_a.png"
	if _, err := store.CommitBatch(ctx, domain.UnifiedScript{Content: "old", WeekStart: now}, []domain.NewsDraft{
		first, draft("https://example.org/b", "B", "", now),
	}); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	putFiles(t, blobs, "c.jpg", "thumb_c.jpg", "stray.gif")
	next := draft("https://example.org/c", "C", "c.jpg", now)
	next.Thumbnail = "thumb_c.jpg"
	result, err := store.CommitBatch(ctx, domain.UnifiedScript{Content: "new", WeekStart: now}, []domain.NewsDraft{
		next, draft("https://example.org/a", "A again", "", now),
	})
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("old links must not count as duplicates of the new batch: %+v", result.Items)
	}
	if len(result.Cleared.TablesCleared) != 3 || result.Cleared.FilesRemoved != 3 || !result.Cleared.OK() {
		t.Fatalf("unexpected sweep: %+v", result.Cleared)
	}

	items, err := store.ListItems(ctx, 0)
	if err != nil || len(items) != 2 {
		t.Fatalf("expected only the new batch, got %d (err %v)", len(items), err)
	}
	if unified, _, _ := store.LatestUnified(ctx); unified.Content != "new" {
		t.Fatalf("unified script not replaced: %+v", unified)
	}
	names, _ := blobs.List(ctx)
	if len(names) != 2 || !slices.Contains(names, "c.jpg") || !slices.Contains(names, "thumb_c.jpg") {
		t.Fatalf("only the new batch's files should remain, got %v", names)
	}
}

func TestCommitBatchFailureKeepsPriorBatch(t *testing.T) {
	t.Parallel()
	store, blobs := testStore(t)
	now := time.Now()

	putFiles(t, blobs, "a.png")
	if _, err := store.CommitBatch(context.Background(), domain.UnifiedScript{Content: "old", WeekStart: now},
		[]domain.NewsDraft{draft("https://example.org/a", "A", "a.png", now)}); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	putFiles(t, blobs, "b.png")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.CommitBatch(ctx, domain.UnifiedScript{Content: "new", WeekStart: now},
		[]domain.NewsDraft{draft("https://example.org/b", "B", "b.png", now)}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}

	items, err := store.ListItems(context.Background(), 0)
	if err != nil || len(items) != 1 || items[0].Item.Link != "https://example.org/a" {
		t.Fatalf("prior batch must survive a failed commit: %+v (err %v)", items, err)
	}
	if unified, ok, _ := store.LatestUnified(context.Background()); !ok || unified.Content != "old" {
		t.Fatalf("prior unified script must survive: %+v", unified)
	}
	if ok, _ := blobs.Exists(context.Background(), "a.png"); !ok {
		t.Fatalf("prior image must survive a failed commit")
	}
}

func TestCommitBatchEmptyClearsWithoutUnified(t *testing.T) {
	t.Parallel()
	store, blobs := testStore(t)
	ctx := context.Background()
	now := time.Now()

	putFiles(t, blobs, "a.png")
	if _, err := store.CommitBatch(ctx, domain.UnifiedScript{Content: "old", WeekStart: now},
		[]domain.NewsDraft{draft("https://example.org/a", "A", "a.png", now)}); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	result, err := store.CommitBatch(ctx, domain.UnifiedScript{WeekStart: now}, nil)
	if err != nil {
		t.Fatalf("empty commit: %v", err)
	}
	if len(result.Items) != 0 || result.Cleared.FilesRemoved != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, ok, _ := store.LatestUnified(ctx); ok {
		t.Fatalf("an empty week stores no unified script")
	}
	if items, _ := store.ListItems(ctx, 0); len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestCommitBatchRollsBackOnFailure(t *testing.T) {
	t.Parallel()
	store, _ := testStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.CommitBatch(ctx, domain.UnifiedScript{Content: "x"}, nil); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	if _, ok, err := store.LatestUnified(context.Background()); err != nil || ok {
		t.Fatalf("nothing should be committed: ok=%v err=%v", ok, err)
	}
}

func TestDialectFor(t *testing.T) {
	t.Parallel()

	if d, err := DialectFor("postgres"); err != nil || d.Name != "postgres" {
		t.Fatalf("unexpected dialect: %+v %v", d, err)
	}
	if d, err := DialectFor(""); err != nil || d.Name != "sqlite" {
		t.Fatalf("empty driver should default to sqlite: %+v %v", d, err)
	}
	if _, err := DialectFor("oracle"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}

	query, args, err := Postgres.tableProbe("news_items").PlaceholderFormat(Postgres.placeholder).ToSql()
	if err != nil {
		t.Fatalf("build probe: %v", err)
	}
	if !strings.Contains(query, "information_schema.tables") || !strings.Contains(query, "$1") || len(args) != 1 {
		t.Fatalf("unexpected postgres probe: %s %v", query, args)
	}
}
