// Package postgres implements the storage driver on PostgreSQL with a
// pgvector embedding column for semantic relevance ranking.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/plugin/embed"
	"github.com/hrygo/engram/store"
)

type DB struct {
	db       *sql.DB
	profile  *profile.Profile
	embedder embed.Provider
}

func NewDB(profile *profile.Profile, embedder embed.Provider) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// Modest pool for a single-service deployment.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &DB{
		db:       db,
		profile:  profile,
		embedder: embedder,
	}, nil
}

var _ store.Driver = (*DB)(nil)

func (d *DB) dimensions() int {
	if d.embedder != nil {
		return d.embedder.Dimensions()
	}
	if d.profile.EmbedDimensions > 0 {
		return d.profile.EmbedDimensions
	}
	return 384
}

// Init creates the vector extension, the schema and the indexes. It is
// idempotent. The pgvector extension must be installable on the target
// database.
func (d *DB) Init(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return errors.Wrap(err, "failed to create pgvector extension")
	}

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS memory_chunk (
	id               TEXT PRIMARY KEY,
	seq              BIGSERIAL,
	text             TEXT NOT NULL,
	tags             TEXT[] NOT NULL DEFAULT '{}',
	context          TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	priority         INTEGER NOT NULL DEFAULT 5,
	category         TEXT NOT NULL DEFAULT '',
	related_ids      TEXT[] NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMPTZ NOT NULL,
	embedding        vector(%d)
)`, d.dimensions())
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_memory_chunk_tags ON memory_chunk USING GIN (tags)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_chunk_created ON memory_chunk (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_chunk_access ON memory_chunk (access_count)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_chunk_category ON memory_chunk (category)`,
	}
	for _, index := range indexes {
		if _, err := d.db.ExecContext(ctx, index); err != nil {
			return errors.Wrap(err, "failed to create index")
		}
	}

	// Sequential scan stays correct if the hnsw index cannot be built
	// (pgvector < 0.5), so failure here is not fatal.
	d.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_memory_chunk_embedding ON memory_chunk USING hnsw (embedding vector_cosine_ops)`)

	return nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// placeholder returns a placeholder for PostgreSQL (uses $1, $2, ...)
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n placeholders for PostgreSQL
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
