package store

import (
	"context"
	"strings"

	"github.com/hrygo/engram/internal/profile"
)

// Store provides access to all stored memory chunks through the configured
// backend driver. It owns write-time normalization so that every backend
// sees the same canonical shapes.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Init(ctx context.Context) error {
	return s.driver.Init(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// NormalizeTags lowercases, trims and deduplicates tags, preserving the
// first-occurrence order. Empty tags are dropped.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		normalized = append(normalized, tag)
	}
	return normalized
}

func (s *Store) CreateMemoryChunk(ctx context.Context, create *MemoryChunk) (*MemoryChunk, error) {
	create.Metadata.Tags = NormalizeTags(create.Metadata.Tags)
	if create.Metadata.RelatedIDs == nil {
		create.Metadata.RelatedIDs = []string{}
	}
	if create.Metadata.Priority == 0 {
		create.Metadata.Priority = 5
	}
	return s.driver.CreateMemoryChunk(ctx, create)
}

func (s *Store) GetMemoryChunk(ctx context.Context, id string) (*MemoryChunk, error) {
	return s.driver.GetMemoryChunk(ctx, id)
}

func (s *Store) UpdateMemoryChunk(ctx context.Context, update *UpdateMemoryChunk) (*MemoryChunk, error) {
	if update.Tags != nil {
		normalized := NormalizeTags(*update.Tags)
		update.Tags = &normalized
	}
	return s.driver.UpdateMemoryChunk(ctx, update)
}

func (s *Store) DeleteMemoryChunk(ctx context.Context, delete *DeleteMemoryChunk) error {
	return s.driver.DeleteMemoryChunk(ctx, delete)
}

func (s *Store) SearchMemoryChunks(ctx context.Context, find *FindMemoryChunk) (*SearchResult, error) {
	find.Tags = NormalizeTags(find.Tags)
	return s.driver.SearchMemoryChunks(ctx, find)
}

func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	return s.driver.ListTags(ctx)
}

func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	return s.driver.ListCategories(ctx)
}

func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	return s.driver.GetStats(ctx)
}

func (s *Store) Cleanup(ctx context.Context, maxMemories int) (int, error) {
	return s.driver.Cleanup(ctx, maxMemories)
}

func (s *Store) Optimize(ctx context.Context) error {
	return s.driver.Optimize(ctx)
}
