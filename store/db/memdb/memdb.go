// Package memdb implements the storage driver on a process-local map.
// Everything is lost when the process exits. It is the default driver and
// the reference behavior for the backend contract tests.
package memdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/store"
)

type entry struct {
	chunk *store.MemoryChunk
	// seq fixes the insertion order so that equal sort keys resolve
	// deterministically.
	seq int64
}

type DB struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq int64
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) *DB {
	return &DB{
		entries: make(map[string]*entry),
		profile: profile,
	}
}

var _ store.Driver = (*DB)(nil)

func (d *DB) Init(ctx context.Context) error {
	return nil
}

func (d *DB) Close() error {
	return nil
}

func cloneChunk(c *store.MemoryChunk) *store.MemoryChunk {
	clone := *c
	// Copies stay non-nil so tags and related ids always serialize as [].
	clone.Metadata.Tags = append([]string{}, c.Metadata.Tags...)
	clone.Metadata.RelatedIDs = append([]string{}, c.Metadata.RelatedIDs...)
	return &clone
}

func (d *DB) CreateMemoryChunk(ctx context.Context, create *store.MemoryChunk) (*store.MemoryChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UTC()
	chunk := cloneChunk(create)
	chunk.ID = shortuuid.New()
	chunk.CreatedAt = now
	chunk.UpdatedAt = now
	chunk.AccessCount = 0
	chunk.LastAccessedAt = now

	d.nextSeq++
	d.entries[chunk.ID] = &entry{chunk: chunk, seq: d.nextSeq}
	return cloneChunk(chunk), nil
}

func (d *DB) GetMemoryChunk(ctx context.Context, id string) (*store.MemoryChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return nil, nil
	}
	e.chunk.AccessCount++
	e.chunk.LastAccessedAt = time.Now().UTC()
	return cloneChunk(e.chunk), nil
}

func (d *DB) UpdateMemoryChunk(ctx context.Context, update *store.UpdateMemoryChunk) (*store.MemoryChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[update.ID]
	if !ok {
		return nil, nil
	}

	chunk := e.chunk
	if update.Text != nil {
		chunk.Text = *update.Text
	}
	if update.Tags != nil {
		chunk.Metadata.Tags = append([]string(nil), *update.Tags...)
	}
	if update.Context != nil {
		chunk.Metadata.Context = *update.Context
	}
	if update.Source != nil {
		chunk.Metadata.Source = *update.Source
	}
	if update.Priority != nil {
		chunk.Metadata.Priority = *update.Priority
	}
	if update.Category != nil {
		chunk.Metadata.Category = *update.Category
	}
	if update.RelatedIDs != nil {
		chunk.Metadata.RelatedIDs = append([]string(nil), *update.RelatedIDs...)
	}
	chunk.UpdatedAt = time.Now().UTC()
	return cloneChunk(chunk), nil
}

func (d *DB) DeleteMemoryChunk(ctx context.Context, del *store.DeleteMemoryChunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Deleting an unknown id is not an error, same as a DELETE matching
	// zero rows.
	delete(d.entries, del.ID)
	return nil
}

func matches(c *store.MemoryChunk, find *store.FindMemoryChunk) bool {
	if find.Query != "" {
		query := strings.ToLower(find.Query)
		hit := strings.Contains(strings.ToLower(c.Text), query) ||
			strings.Contains(strings.ToLower(c.Metadata.Context), query)
		if !hit {
			for _, tag := range c.Metadata.Tags {
				if strings.Contains(tag, query) {
					hit = true
					break
				}
			}
		}
		if !hit {
			return false
		}
	}
	if len(find.Tags) > 0 {
		hit := false
		for _, want := range find.Tags {
			for _, have := range c.Metadata.Tags {
				if want == have {
					hit = true
					break
				}
			}
			if hit {
				break
			}
		}
		if !hit {
			return false
		}
	}
	if find.Category != "" && c.Metadata.Category != find.Category {
		return false
	}
	if find.CreatedAfter != nil && c.CreatedAt.Before(*find.CreatedAfter) {
		return false
	}
	if find.CreatedBefore != nil && c.CreatedAt.After(*find.CreatedBefore) {
		return false
	}
	return true
}

func (d *DB) SearchMemoryChunks(ctx context.Context, find *store.FindMemoryChunk) (*store.SearchResult, error) {
	d.mu.RLock()
	matched := make([]*entry, 0, len(d.entries))
	for _, e := range d.entries {
		if matches(e.chunk, find) {
			matched = append(matched, e)
		}
	}
	d.mu.RUnlock()

	sortBy := find.SortBy
	if sortBy == "" {
		sortBy = store.SortByDate
	}
	desc := find.SortOrder != store.SortOrderAsc

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less, equal bool
		switch sortBy {
		case store.SortByAccess, store.SortByRelevance:
			// There is no text-match signal in this backend, so
			// relevance falls back to access count.
			less = a.chunk.AccessCount < b.chunk.AccessCount
			equal = a.chunk.AccessCount == b.chunk.AccessCount
		case store.SortByPriority:
			less = a.chunk.Metadata.Priority < b.chunk.Metadata.Priority
			equal = a.chunk.Metadata.Priority == b.chunk.Metadata.Priority
		default:
			less = a.chunk.CreatedAt.Before(b.chunk.CreatedAt)
			equal = a.chunk.CreatedAt.Equal(b.chunk.CreatedAt)
		}
		if equal {
			return a.seq < b.seq
		}
		if desc {
			return !less
		}
		return less
	})

	total := len(matched)

	offset := find.Offset
	if offset < 0 {
		offset = 0
	}
	limit := find.Limit
	if limit <= 0 {
		limit = 50
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	chunks := make([]*store.MemoryChunk, 0, end-offset)
	for _, e := range matched[offset:end] {
		chunks = append(chunks, cloneChunk(e.chunk))
	}

	return &store.SearchResult{
		Chunks:  chunks,
		Total:   total,
		HasMore: offset+len(chunks) < total,
	}, nil
}

func (d *DB) ListTags(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := map[string]bool{}
	for _, e := range d.entries {
		for _, tag := range e.chunk.Metadata.Tags {
			seen[tag] = true
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

func (d *DB) ListCategories(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := map[string]bool{}
	for _, e := range d.entries {
		if c := e.chunk.Metadata.Category; c != "" {
			seen[c] = true
		}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}

func (d *DB) GetStats(ctx context.Context) (*store.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &store.Stats{TotalMemories: len(d.entries)}

	tags := map[string]bool{}
	categories := map[string]bool{}
	for _, e := range d.entries {
		for _, tag := range e.chunk.Metadata.Tags {
			tags[tag] = true
		}
		if c := e.chunk.Metadata.Category; c != "" {
			categories[c] = true
		}
		created := e.chunk.CreatedAt
		if stats.OldestMemory == nil || created.Before(*stats.OldestMemory) {
			t := created
			stats.OldestMemory = &t
		}
		if stats.NewestMemory == nil || created.After(*stats.NewestMemory) {
			t := created
			stats.NewestMemory = &t
		}
	}
	stats.TotalTags = len(tags)
	stats.TotalCategories = len(categories)
	return stats, nil
}

func (d *DB) Cleanup(ctx context.Context, maxMemories int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := len(d.entries)
	if maxMemories <= 0 || total <= maxMemories {
		return 0, nil
	}

	victims := make([]*entry, 0, total)
	for _, e := range d.entries {
		victims = append(victims, e)
	}
	// Least accessed first, oldest among equals next.
	sort.Slice(victims, func(i, j int) bool {
		a, b := victims[i], victims[j]
		if a.chunk.AccessCount != b.chunk.AccessCount {
			return a.chunk.AccessCount < b.chunk.AccessCount
		}
		if !a.chunk.CreatedAt.Equal(b.chunk.CreatedAt) {
			return a.chunk.CreatedAt.Before(b.chunk.CreatedAt)
		}
		return a.seq < b.seq
	})

	excess := total - maxMemories
	for _, e := range victims[:excess] {
		delete(d.entries, e.chunk.ID)
	}
	return excess, nil
}

func (d *DB) Optimize(ctx context.Context) error {
	return nil
}
