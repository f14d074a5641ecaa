package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore persists the weekly batch and owns the enrichment files it references.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
	blobs   ports.BlobStore
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.StateStore = (*SQLStore)(nil)

// NewSQLStore wires a sql.DB; blobs may be nil when there are no files to manage.
func NewSQLStore(db *sql.DB, dialect Dialect, blobs ports.BlobStore, log *slog.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.placeholder),
		blobs:   blobs,
		logger:  log,
		now:     time.Now,
	}
}

// Clear deletes every row and enrichment file. Single table or file failures are
// logged and recorded; only an unreachable store or blob root is returned as an error.
func (s *SQLStore) Clear(ctx context.Context) (domain.ClearReport, error) {
	var report domain.ClearReport
	if err := s.db.PingContext(ctx); err != nil {
		return report, fmt.Errorf("clear: store unreachable: %w", err)
	}

	for _, table := range clearOrder {
		exists, err := s.tableExists(ctx, s.db, table)
		if err != nil {
			return report, fmt.Errorf("clear: probe %s: %w", table, err)
		}
		if !exists {
			report.TablesSkipped = append(report.TablesSkipped, table)
			continue
		}

		query, args, err := s.builder.Delete(table).ToSql()
		if err != nil {
			return report, fmt.Errorf("clear: build delete %s: %w", table, err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			s.warn("clear table failed", "table", table, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("table %s: %v", table, err))
			continue
		}
		report.TablesCleared = append(report.TablesCleared, table)
	}

	if err := s.removeFiles(ctx, nil, &report); err != nil {
		return report, fmt.Errorf("clear: %w", err)
	}

	s.debug("store cleared",
		"tables_cleared", len(report.TablesCleared),
		"tables_skipped", len(report.TablesSkipped),
		"files_removed", report.FilesRemoved,
		"errors", len(report.Errors))
	return report, nil
}

// ExistsByLink reports whether a news item with link is stored; a missing table means no.
func (s *SQLStore) ExistsByLink(ctx context.Context, link string) (bool, error) {
	exists, err := s.tableExists(ctx, s.db, tableNewsItems)
	if err != nil || !exists {
		return false, err
	}
	return s.linkExists(ctx, s.db, link)
}

// CommitBatch replaces the stored batch in one transaction: the old rows are
// deleted, then the unified script and every non-duplicate item with its script
// are inserted. Nothing changes if any statement fails. Files not referenced by
// the new batch are removed only after the commit succeeds.
func (s *SQLStore) CommitBatch(ctx context.Context, unified domain.UnifiedScript, drafts []domain.NewsDraft) (domain.CommitResult, error) {
	var result domain.CommitResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureSchema(ctx, tx); err != nil {
		return domain.CommitResult{}, err
	}
	for _, table := range clearOrder {
		query, args, err := s.builder.Delete(table).ToSql()
		if err != nil {
			return domain.CommitResult{}, fmt.Errorf("build delete %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return domain.CommitResult{}, fmt.Errorf("delete %s: %w", table, err)
		}
		result.Cleared.TablesCleared = append(result.Cleared.TablesCleared, table)
	}

	now := s.now().UTC()
	var unifiedID int64
	if len(drafts) > 0 || unified.Content != "" {
		if unified.CreatedAt.IsZero() {
			unified.CreatedAt = now
		}
		unifiedID, err = s.insertReturningID(ctx, tx, s.builder.Insert(tableUnifiedScripts).
			Columns("content", "week_start", "created_at").
			Values(unified.Content, unified.WeekStart.UTC(), unified.CreatedAt.UTC()))
		if err != nil {
			return domain.CommitResult{}, fmt.Errorf("insert unified script: %w", err)
		}
	}

	keep := map[string]bool{}
	stored := make([]domain.StoredItem, 0, len(drafts))
	for _, draft := range drafts {
		item := draft.Item
		dup, err := s.linkExists(ctx, tx, item.Link)
		if err != nil {
			return domain.CommitResult{}, fmt.Errorf("check link %s: %w", item.Link, err)
		}
		if dup {
			s.debug("duplicate link skipped", "link", item.Link)
			continue
		}

		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.ID, err = s.insertReturningID(ctx, tx, s.builder.Insert(tableNewsItems).
			Columns("title", "link", "summary", "published", "category", "image_path", "created_at").
			Values(item.Title, item.Link, item.Summary, item.Published.UTC(), item.Category,
				sql.NullString{String: item.ImagePath, Valid: item.ImagePath != ""}, item.CreatedAt.UTC()))
		if err != nil {
			return domain.CommitResult{}, fmt.Errorf("insert news item %s: %w", item.Link, err)
		}

		script := domain.ItemScript{NewsItemID: item.ID, Content: draft.Script, CreatedAt: item.CreatedAt}
		script.ID, err = s.insertReturningID(ctx, tx, s.builder.Insert(tableItemScripts).
			Columns("news_item_id", "content", "created_at").
			Values(script.NewsItemID, script.Content, script.CreatedAt.UTC()))
		if err != nil {
			return domain.CommitResult{}, fmt.Errorf("insert script for %s: %w", item.Link, err)
		}

		if item.ImagePath != "" {
			keep[item.ImagePath] = true
			if draft.Thumbnail != "" {
				keep[draft.Thumbnail] = true
			}
		}
		stored = append(stored, domain.StoredItem{Item: item, Script: script})
	}

	if err := tx.Commit(); err != nil {
		return domain.CommitResult{}, fmt.Errorf("commit batch: %w", err)
	}
	result.Items = stored

	// Rows are already replaced, so pruning ignores cancellation.
	if err := s.removeFiles(context.WithoutCancel(ctx), keep, &result.Cleared); err != nil {
		s.warn("prune files failed", "error", err)
		result.Cleared.Errors = append(result.Cleared.Errors, err.Error())
	}
	s.debug("batch committed",
		"unified_id", unifiedID,
		"items", len(stored),
		"skipped", len(drafts)-len(stored),
		"files_removed", result.Cleared.FilesRemoved)
	return result, nil
}

// removeFiles deletes every blob not named in keep. Single failures are recorded
// in report; only a failed listing is returned.
func (s *SQLStore) removeFiles(ctx context.Context, keep map[string]bool, report *domain.ClearReport) error {
	if s.blobs == nil {
		return nil
	}
	names, err := s.blobs.List(ctx)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	for _, name := range names {
		if keep[name] {
			continue
		}
		if err := s.blobs.Remove(ctx, name); err != nil {
			s.warn("remove file failed", "file", name, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("file %s: %v", name, err))
			continue
		}
		report.FilesRemoved++
	}
	return nil
}

// ListItems returns stored items with their scripts, newest first.
func (s *SQLStore) ListItems(ctx context.Context, limit int) ([]domain.StoredItem, error) {
	exists, err := s.tableExists(ctx, s.db, tableNewsItems)
	if err != nil || !exists {
		return nil, err
	}
	scripts, err := s.tableExists(ctx, s.db, tableItemScripts)
	if err != nil {
		return nil, err
	}

	columns := []string{"n.id", "n.title", "n.link", "n.summary", "n.published", "n.category", "n.image_path", "n.created_at"}
	builder := s.builder.Select().From(tableNewsItems + " n").
		OrderBy("n.published DESC", "n.id ASC")
	if scripts {
		columns = append(columns, "s.id", "s.content", "s.created_at")
		builder = builder.LeftJoin(tableItemScripts + " s ON s.news_item_id = n.id")
	}
	builder = builder.Columns(columns...)
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.StoredItem
	for rows.Next() {
		var (
			out       domain.StoredItem
			imagePath sql.NullString
			scriptID  sql.NullInt64
			content   sql.NullString
			scriptAt  sql.NullTime
		)
		dest := []any{&out.Item.ID, &out.Item.Title, &out.Item.Link, &out.Item.Summary,
			&out.Item.Published, &out.Item.Category, &imagePath, &out.Item.CreatedAt}
		if scripts {
			dest = append(dest, &scriptID, &content, &scriptAt)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out.Item.ImagePath = imagePath.String
		if scriptID.Valid {
			out.Script = domain.ItemScript{ID: scriptID.Int64, NewsItemID: out.Item.ID, Content: content.String, CreatedAt: scriptAt.Time}
		}
		items = append(items, out)
	}
	return items, rows.Err()
}

// LatestUnified returns the most recent unified script, if any.
func (s *SQLStore) LatestUnified(ctx context.Context) (domain.UnifiedScript, bool, error) {
	exists, err := s.tableExists(ctx, s.db, tableUnifiedScripts)
	if err != nil || !exists {
		return domain.UnifiedScript{}, false, err
	}

	query, args, err := s.builder.Select("id", "content", "week_start", "created_at").
		From(tableUnifiedScripts).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.UnifiedScript{}, false, fmt.Errorf("build unified query: %w", err)
	}

	var out domain.UnifiedScript
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&out.ID, &out.Content, &out.WeekStart, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UnifiedScript{}, false, nil
	}
	if err != nil {
		return domain.UnifiedScript{}, false, fmt.Errorf("query unified script: %w", err)
	}
	return out, true, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) ensureSchema(ctx context.Context, q queryer) error {
	for _, stmt := range s.dialect.schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) tableExists(ctx context.Context, q queryer, table string) (bool, error) {
	query, args, err := s.dialect.tableProbe(table).PlaceholderFormat(s.dialect.placeholder).ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) linkExists(ctx context.Context, q queryer, link string) (bool, error) {
	query, args, err := s.builder.Select("1").From(tableNewsItems).
		Where(sq.Eq{"link": link}).Limit(1).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) insertReturningID(ctx context.Context, q queryer, insert sq.InsertBuilder) (int64, error) {
	query, args, err := insert.Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLStore) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *SQLStore) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
