// Package sqlite implements the storage driver on a single-file SQLite
// database with an FTS5 index over chunk text for full-text relevance.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"
	"github.com/pkg/errors"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	dsn := profile.DSN
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(wal)&_pragma=busy_timeout(10000)&_pragma=foreign_keys(on)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	return &DB{db: db, profile: profile}, nil
}

var _ store.Driver = (*DB)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS memory_chunk (
	id               TEXT PRIMARY KEY,
	text             TEXT NOT NULL,
	tags             TEXT NOT NULL DEFAULT '[]',
	context          TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	priority         INTEGER NOT NULL DEFAULT 5,
	category         TEXT NOT NULL DEFAULT '',
	related_ids      TEXT NOT NULL DEFAULT '[]',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_chunk_created ON memory_chunk(created_at);
CREATE INDEX IF NOT EXISTS idx_memory_chunk_access ON memory_chunk(access_count);
CREATE INDEX IF NOT EXISTS idx_memory_chunk_category ON memory_chunk(category);

CREATE VIRTUAL TABLE IF NOT EXISTS memory_chunk_fts USING fts5(
	text,
	tags,
	context,
	content=memory_chunk,
	content_rowid=rowid
);
`

// Init creates the schema and the FTS5 sync triggers. It is idempotent.
func (d *DB) Init(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS memory_chunk_ai AFTER INSERT ON memory_chunk BEGIN
			INSERT INTO memory_chunk_fts(rowid, text, tags, context) VALUES (new.rowid, new.text, new.tags, new.context);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memory_chunk_ad AFTER DELETE ON memory_chunk BEGIN
			INSERT INTO memory_chunk_fts(memory_chunk_fts, rowid, text, tags, context) VALUES('delete', old.rowid, old.text, old.tags, old.context);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memory_chunk_au AFTER UPDATE OF text, tags, context ON memory_chunk BEGIN
			INSERT INTO memory_chunk_fts(memory_chunk_fts, rowid, text, tags, context) VALUES('delete', old.rowid, old.text, old.tags, old.context);
			INSERT INTO memory_chunk_fts(rowid, text, tags, context) VALUES (new.rowid, new.text, new.tags, new.context);
		END`,
	}
	for _, trigger := range triggers {
		if _, err := d.db.ExecContext(ctx, trigger); err != nil {
			return errors.Wrap(err, "failed to create fts trigger")
		}
	}
	return nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// placeholder returns a placeholder for SQLite (uses ?)
func placeholder(n int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
