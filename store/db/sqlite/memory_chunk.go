package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/engram/store"
)

// timeFormat is fixed-width UTC so that lexicographic comparison of stored
// timestamps matches chronological order.
const timeFormat = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func marshalStrings(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func unmarshalStrings(s string) []string {
	list := []string{}
	if s != "" {
		json.Unmarshal([]byte(s), &list)
	}
	return list
}

const chunkFields = `id, text, tags, context, source, priority, category, related_ids, created_at, updated_at, access_count, last_accessed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMemoryChunk(row scanner) (*store.MemoryChunk, error) {
	c := &store.MemoryChunk{}
	var tags, relatedIDs, createdAt, updatedAt, lastAccessedAt string
	if err := row.Scan(
		&c.ID,
		&c.Text,
		&tags,
		&c.Metadata.Context,
		&c.Metadata.Source,
		&c.Metadata.Priority,
		&c.Metadata.Category,
		&relatedIDs,
		&createdAt,
		&updatedAt,
		&c.AccessCount,
		&lastAccessedAt,
	); err != nil {
		return nil, err
	}
	c.Metadata.Tags = unmarshalStrings(tags)
	c.Metadata.RelatedIDs = unmarshalStrings(relatedIDs)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	c.LastAccessedAt = parseTime(lastAccessedAt)
	return c, nil
}

func (d *DB) CreateMemoryChunk(ctx context.Context, create *store.MemoryChunk) (*store.MemoryChunk, error) {
	now := time.Now().UTC()
	create.ID = shortuuid.New()
	create.CreatedAt = now
	create.UpdatedAt = now
	create.AccessCount = 0
	create.LastAccessedAt = now

	stmt := `INSERT INTO memory_chunk (` + chunkFields + `)
		VALUES (` + placeholders(12) + `)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.Text,
		marshalStrings(create.Metadata.Tags),
		create.Metadata.Context,
		create.Metadata.Source,
		create.Metadata.Priority,
		create.Metadata.Category,
		marshalStrings(create.Metadata.RelatedIDs),
		formatTime(create.CreatedAt),
		formatTime(create.UpdatedAt),
		create.AccessCount,
		formatTime(create.LastAccessedAt),
	); err != nil {
		return nil, fmt.Errorf("failed to create memory_chunk: %w", err)
	}
	return create, nil
}

// GetMemoryChunk bumps the access count and reads the row in a single
// statement, so concurrent gets never lose an increment.
func (d *DB) GetMemoryChunk(ctx context.Context, id string) (*store.MemoryChunk, error) {
	stmt := `UPDATE memory_chunk
		SET access_count = access_count + 1, last_accessed_at = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + `
		RETURNING ` + chunkFields
	chunk, err := scanMemoryChunk(d.db.QueryRowContext(ctx, stmt, formatTime(time.Now()), id))
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
		set, args = append(set, "text = ?"), append(args, *update.Text)
	}
	if update.Tags != nil {
		set, args = append(set, "tags = ?"), append(args, marshalStrings(*update.Tags))
	}
	if update.Context != nil {
		set, args = append(set, "context = ?"), append(args, *update.Context)
	}
	if update.Source != nil {
		set, args = append(set, "source = ?"), append(args, *update.Source)
	}
	if update.Priority != nil {
		set, args = append(set, "priority = ?"), append(args, *update.Priority)
	}
	if update.Category != nil {
		set, args = append(set, "category = ?"), append(args, *update.Category)
	}
	if update.RelatedIDs != nil {
		set, args = append(set, "related_ids = ?"), append(args, marshalStrings(*update.RelatedIDs))
	}
	set, args = append(set, "updated_at = ?"), append(args, formatTime(time.Now()))
	args = append(args, update.ID)

	stmt := `UPDATE memory_chunk SET ` + strings.Join(set, ", ") + `
		WHERE id = ?
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
	stmt := `DELETE FROM memory_chunk WHERE id = ` + placeholder(1)
	if _, err := d.db.ExecContext(ctx, stmt, delete.ID); err != nil {
		return fmt.Errorf("failed to delete memory_chunk: %w", err)
	}
	return nil
}

// ftsQuery turns free text into an FTS5 query: each token quoted and
// AND-combined, so user input never reaches the FTS parser unescaped.
func ftsQuery(q string) string {
	terms := []string{}
	for _, field := range strings.Fields(q) {
		terms = append(terms, `"`+strings.ReplaceAll(field, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " AND ")
}

func orderClause(find *store.FindMemoryChunk, hasQuery bool) string {
	dir := "DESC"
	if find.SortOrder == store.SortOrderAsc {
		dir = "ASC"
	}
	switch find.SortBy {
	case store.SortByAccess:
		return "m.access_count " + dir + ", m.rowid ASC"
	case store.SortByPriority:
		return "m.priority " + dir + ", m.rowid ASC"
	case store.SortByRelevance:
		if hasQuery {
			// bm25 rank is better when smaller, so best-first means
			// ascending rank.
			rankDir := "ASC"
			if find.SortOrder == store.SortOrderAsc {
				rankDir = "DESC"
			}
			return "f.rank " + rankDir + ", m.rowid ASC"
		}
		return "m.access_count " + dir + ", m.rowid ASC"
	default:
		return "m.created_at " + dir + ", m.rowid ASC"
	}
}

func (d *DB) SearchMemoryChunks(ctx context.Context, find *store.FindMemoryChunk) (*store.SearchResult, error) {
	where, args := []string{"1 = 1"}, []any{}

	hasQuery := strings.TrimSpace(find.Query) != ""
	from := `memory_chunk m`
	if hasQuery {
		from = `memory_chunk m JOIN memory_chunk_fts f ON f.rowid = m.rowid`
		where = append(where, "f.memory_chunk_fts MATCH ?")
		args = append(args, ftsQuery(find.Query))
	}
	if len(find.Tags) > 0 {
		tagMatch := []string{}
		for _, tag := range find.Tags {
			tagMatch = append(tagMatch, "m.tags LIKE ?")
			args = append(args, `%"`+tag+`"%`)
		}
		where = append(where, "("+strings.Join(tagMatch, " OR ")+")")
	}
	if find.Category != "" {
		where = append(where, "m.category = ?")
		args = append(args, find.Category)
	}
	if find.CreatedAfter != nil {
		where = append(where, "m.created_at >= ?")
		args = append(args, formatTime(*find.CreatedAfter))
	}
	if find.CreatedBefore != nil {
		where = append(where, "m.created_at <= ?")
		args = append(args, formatTime(*find.CreatedBefore))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countStmt := `SELECT COUNT(*) FROM ` + from + ` WHERE ` + whereClause
	if err := d.db.QueryRowContext(ctx, countStmt, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count memory_chunks: %w", err)
	}

	limit := find.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := find.Offset
	if offset < 0 {
		offset = 0
	}

	fields := strings.Split(chunkFields, ", ")
	for i, f := range fields {
		fields[i] = "m." + f
	}
	query := `SELECT ` + strings.Join(fields, ", ") + ` FROM ` + from +
		` WHERE ` + whereClause +
		` ORDER BY ` + orderClause(find, hasQuery) +
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
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT je.value
		FROM memory_chunk, json_each(memory_chunk.tags) AS je
		ORDER BY je.value`)
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

	var oldest, newest sql.NullString
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(created_at), MAX(created_at)
		FROM memory_chunk`).Scan(&stats.TotalMemories, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	if oldest.Valid {
		t := parseTime(oldest.String)
		stats.OldestMemory = &t
	}
	if newest.Valid {
		t := parseTime(newest.String)
		stats.NewestMemory = &t
	}

	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT je.value)
		FROM memory_chunk, json_each(memory_chunk.tags) AS je`).Scan(&stats.TotalTags); err != nil {
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
		ORDER BY access_count ASC, created_at ASC, rowid ASC
		LIMIT `+placeholder(1)+`
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

// Optimize merges the FTS index segments and compacts the database file.
func (d *DB) Optimize(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `INSERT INTO memory_chunk_fts(memory_chunk_fts) VALUES('optimize')`); err != nil {
		return fmt.Errorf("failed to optimize fts index: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	return nil
}
