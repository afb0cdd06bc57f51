package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pgvector/pgvector-go"

	"github.com/hrygo/engram/store"
)

const chunkFields = `id, text, tags, context, source, priority, category, related_ids, created_at, updated_at, access_count, last_accessed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMemoryChunk(row scanner) (*store.MemoryChunk, error) {
	c := &store.MemoryChunk{}
	var tags, relatedIDs pq.StringArray
	if err := row.Scan(
		&c.ID,
		&c.Text,
		&tags,
		&c.Metadata.Context,
		&c.Metadata.Source,
		&c.Metadata.Priority,
		&c.Metadata.Category,
		&relatedIDs,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.AccessCount,
		&c.LastAccessedAt,
	); err != nil {
		return nil, err
	}
	c.Metadata.Tags = []string(tags)
	if c.Metadata.Tags == nil {
		c.Metadata.Tags = []string{}
	}
	c.Metadata.RelatedIDs = []string(relatedIDs)
	if c.Metadata.RelatedIDs == nil {
		c.Metadata.RelatedIDs = []string{}
	}
	return c, nil
}

// embedText computes the embedding value for a chunk, or NULL when no
// provider is configured.
func (d *DB) embedText(ctx context.Context, text string) (any, error) {
	if d.embedder == nil {
		return nil, nil
	}
	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	return pgvector.NewVector(vec), nil
}

func (d *DB) CreateMemoryChunk(ctx context.Context, create *store.MemoryChunk) (*store.MemoryChunk, error) {
	now := time.Now().UTC()
	create.ID = shortuuid.New()
	create.CreatedAt = now
	create.UpdatedAt = now
	create.AccessCount = 0
	create.LastAccessedAt = now

	embedding, err := d.embedText(ctx, create.Text)
	if err != nil {
		return nil, err
	}

	stmt := `INSERT INTO memory_chunk (` + chunkFields + `, embedding)
		VALUES (` + placeholders(13) + `)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.Text,
		pq.Array(create.Metadata.Tags),
		create.Metadata.Context,
		create.Metadata.Source,
		create.Metadata.Priority,
		create.Metadata.Category,
		pq.Array(create.Metadata.RelatedIDs),
		create.CreatedAt,
		create.UpdatedAt,
		create.AccessCount,
		create.LastAccessedAt,
		embedding,
	); err != nil {
		return nil, fmt.Errorf("failed to create memory_chunk: %w", err)
	}
	return create, nil
}

// GetMemoryChunk bumps the access count and reads the row in a single
// statement, so concurrent gets never lose an increment.
func (d *DB) GetMemoryChunk(ctx context.Context, id string) (*store.MemoryChunk, error) {
	stmt := `UPDATE memory_chunk
		SET access_count = access_count + 1, last_accessed_at = now()
		WHERE id = $1
		RETURNING ` + chunkFields
	chunk, err := scanMemoryChunk(d.db.QueryRowContext(ctx, stmt, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get memory_chunk: %w", err)
	}
	return chunk, nil
}

func (d *DB) UpdateMemoryChunk(ctx context.Context, update *store.UpdateMemoryChunk) (*store.MemoryChunk, error) {
	set, args := []string{}, []any{}
	if update.Text != nil {
		set, args = append(set, "text = "+placeholder(len(args)+1)), append(args, *update.Text)
		embedding, err := d.embedText(ctx, *update.Text)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "embedding = "+placeholder(len(args)+1)), append(args, embedding)
	}
	if update.Tags != nil {
		set, args = append(set, "tags = "+placeholder(len(args)+1)), append(args, pq.Array(*update.Tags))
	}
	if update.Context != nil {
		set, args = append(set, "context = "+placeholder(len(args)+1)), append(args, *update.Context)
	}
	if update.Source != nil {
		set, args = append(set, "source = "+placeholder(len(args)+1)), append(args, *update.Source)
	}
	if update.Priority != nil {
		set, args = append(set, "priority = "+placeholder(len(args)+1)), append(args, *update.Priority)
	}
	if update.Category != nil {
		set, args = append(set, "category = "+placeholder(len(args)+1)), append(args, *update.Category)
	}
	if update.RelatedIDs != nil {
		set, args = append(set, "related_ids = "+placeholder(len(args)+1)), append(args, pq.Array(*update.RelatedIDs))
	}
	set, args = append(set, "updated_at = "+placeholder(len(args)+1)), append(args, time.Now().UTC())
	args = append(args, update.ID)

	stmt := `UPDATE memory_chunk SET ` + strings.Join(set, ", ") + `
		WHERE id = ` + placeholder(len(args)) + `
		RETURNING ` + chunkFields
	chunk, err := scanMemoryChunk(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update memory_chunk: %w", err)
	}
	return chunk, nil
}

func (d *DB) DeleteMemoryChunk(ctx context.Context, delete *store.DeleteMemoryChunk) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM memory_chunk WHERE id = $1`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete memory_chunk: %w", err)
	}
	return nil
}

func (d *DB) SearchMemoryChunks(ctx context.Context, find *store.FindMemoryChunk) (*store.SearchResult, error) {
	where, args := []string{"1 = 1"}, []any{}

	hasQuery := strings.TrimSpace(find.Query) != ""
	if hasQuery {
		pattern := "%" + find.Query + "%"
		where = append(where, `(text ILIKE `+placeholder(len(args)+1)+
			` OR context ILIKE `+placeholder(len(args)+2)+
			` OR EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE `+placeholder(len(args)+3)+`))`)
		args = append(args, pattern, pattern, pattern)
	}
	if len(find.Tags) > 0 {
		where = append(where, "tags && "+placeholder(len(args)+1))
		args = append(args, pq.Array(find.Tags))
	}
	if find.Category != "" {
		where = append(where, "category = "+placeholder(len(args)+1))
		args = append(args, find.Category)
	}
	if find.CreatedAfter != nil {
		where = append(where, "created_at >= "+placeholder(len(args)+1))
		args = append(args, *find.CreatedAfter)
	}
	if find.CreatedBefore != nil {
		where = append(where, "created_at <= "+placeholder(len(args)+1))
		args = append(args, *find.CreatedBefore)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countStmt := `SELECT COUNT(*) FROM memory_chunk WHERE ` + whereClause
	if err := d.db.QueryRowContext(ctx, countStmt, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count memory_chunks: %w", err)
	}

	dir := "DESC"
	if find.SortOrder == store.SortOrderAsc {
		dir = "ASC"
	}
	var orderBy string
	switch find.SortBy {
	case store.SortByAccess:
		orderBy = "access_count " + dir + ", seq ASC"
	case store.SortByPriority:
		orderBy = "priority " + dir + ", seq ASC"
	case store.SortByRelevance:
		if hasQuery && d.embedder != nil {
			// Cosine distance is better when smaller, so best-first
			// means ascending distance.
			vec, err := d.embedder.Embed(ctx, find.Query)
			if err != nil {
				return nil, fmt.Errorf("failed to embed query: %w", err)
			}
			distDir := "ASC"
			if find.SortOrder == store.SortOrderAsc {
				distDir = "DESC"
			}
			orderBy = "embedding <=> " + placeholder(len(args)+1) + " " + distDir + " NULLS LAST, seq ASC"
			args = append(args, pgvector.NewVector(vec))
		} else {
			orderBy = "access_count " + dir + ", seq ASC"
		}
	default:
		orderBy = "created_at " + dir + ", seq ASC"
	}

	limit := find.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := find.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + chunkFields + ` FROM memory_chunk
		WHERE ` + whereClause + `
		ORDER BY ` + orderBy +
		fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search memory_chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]*store.MemoryChunk, 0)
	for rows.Next() {
		chunk, err := scanMemoryChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory_chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memory_chunks: %w", err)
	}

	return &store.SearchResult{
		Chunks:  chunks,
		Total:   total,
		HasMore: offset+len(chunks) < total,
	}, nil
}

func (d *DB) ListTags(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT unnest(tags) AS tag FROM memory_chunk ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	return tags, nil
}

func (d *DB) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT category FROM memory_chunk
		WHERE category != '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

func (d *DB) GetStats(ctx context.Context) (*store.Stats, error) {
	stats := &store.Stats{}

	var oldest, newest sql.NullTime
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(created_at), MAX(created_at)
		FROM memory_chunk`).Scan(&stats.TotalMemories, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	if oldest.Valid {
		t := oldest.Time
		stats.OldestMemory = &t
	}
	if newest.Valid {
		t := newest.Time
		stats.NewestMemory = &t
	}

	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT tag)
		FROM (SELECT unnest(tags) AS tag FROM memory_chunk) AS all_tags`).Scan(&stats.TotalTags); err != nil {
		return nil, fmt.Errorf("failed to count tags: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT category) FROM memory_chunk
		WHERE category != ''`).Scan(&stats.TotalCategories); err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	return stats, nil
}

func (d *DB) Cleanup(ctx context.Context, maxMemories int) (int, error) {
	if maxMemories <= 0 {
		return 0, nil
	}

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_chunk`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count memory_chunks: %w", err)
	}
	if total <= maxMemories {
		return 0, nil
	}

	excess := total - maxMemories
	result, err := d.db.ExecContext(ctx, `DELETE FROM memory_chunk WHERE id IN (
		SELECT id FROM memory_chunk
		ORDER BY access_count ASC, created_at ASC, seq ASC
		LIMIT $1
	)`, excess)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up memory_chunks: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed memory_chunks: %w", err)
	}
	return int(removed), nil
}

// Optimize reclaims dead rows and refreshes planner statistics.
func (d *DB) Optimize(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `VACUUM ANALYZE memory_chunk`); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	return nil
}
