package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"NewsDigest/internal/config"
)

const (
	tableNewsItems      = "news_items"
	tableItemScripts    = "item_scripts"
	tableUnifiedScripts = "unified_scripts"
)

// clearOrder deletes children before parents.
var clearOrder = []string{tableItemScripts, tableNewsItems, tableUnifiedScripts}

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	Name        string
	driver      string
	placeholder sq.PlaceholderFormat
	schema      []string
	tableProbe  func(table string) sq.SelectBuilder
}

// SQLite is the default embedded engine.
var SQLite = Dialect{
	Name:        "sqlite",
	driver:      "sqlite",
	placeholder: sq.Question,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS unified_scripts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			content    TEXT NOT NULL,
			week_start DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS news_items (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			title      TEXT NOT NULL,
			link       TEXT NOT NULL,
			summary    TEXT NOT NULL DEFAULT '',
			published  DATETIME NOT NULL,
			category   TEXT NOT NULL,
			image_path TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_news_items_link ON news_items(link)`,
		`CREATE TABLE IF NOT EXISTS item_scripts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			news_item_id INTEGER NOT NULL REFERENCES news_items(id),
			content      TEXT NOT NULL,
			created_at   DATETIME NOT NULL
		)`,
	},
	tableProbe: func(table string) sq.SelectBuilder {
		return sq.Select("COUNT(*)").From("sqlite_master").
			Where(sq.Eq{"type": "table", "name": table})
	},
}

// Postgres uses lib/pq.
var Postgres = Dialect{
	Name:        "postgres",
	driver:      "postgres",
	placeholder: sq.Dollar,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS unified_scripts (
			id         BIGSERIAL PRIMARY KEY,
			content    TEXT NOT NULL,
			week_start TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS news_items (
			id         BIGSERIAL PRIMARY KEY,
			title      TEXT NOT NULL,
			link       TEXT NOT NULL,
			summary    TEXT NOT NULL DEFAULT '',
			published  TIMESTAMPTZ NOT NULL,
			category   TEXT NOT NULL,
			image_path TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_news_items_link ON news_items(link)`,
		`CREATE TABLE IF NOT EXISTS item_scripts (
			id           BIGSERIAL PRIMARY KEY,
			news_item_id BIGINT NOT NULL REFERENCES news_items(id),
			content      TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		)`,
	},
	tableProbe: func(table string) sq.SelectBuilder {
		return sq.Select("COUNT(*)").From("information_schema.tables").
			Where(sq.Eq{"table_name": table}).
			Where("table_schema = current_schema()")
	},
}

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects to the configured database and verifies it is reachable.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, Dialect{}, err
	}

	dsn := cfg.DSN
	if dialect.Name == SQLite.Name {
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, Dialect{}, fmt.Errorf("create database dir: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	}

	db, err := sql.Open(dialect.driver, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, Dialect{}, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	return db, dialect, nil
}
