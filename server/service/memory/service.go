// Package memory implements the memorize pipeline: chunking, metadata
// detection and retrieval over the storage port. The service is stateless
// between calls; every operation re-reads through the store.
package memory

import (
	"context"
	"strings"

	"github.com/hrygo/engram/server/internal/errdef"
	"github.com/hrygo/engram/store"
)

// Service orchestrates the chunker, the metadata detector and the store.
type Service struct {
	store     *store.Store
	chunkSize int
}

// NewService creates a new memory service. chunkSize bounds the length of
// stored chunks in characters; zero selects the default.
func NewService(s *store.Store, chunkSize int) *Service {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Service{
		store:     s,
		chunkSize: chunkSize,
	}
}

// MemorizeParams is a request to memorize a piece of text.
type MemorizeParams struct {
	Text     string   `json:"text"`
	Tags     []string `json:"tags"`
	Context  string   `json:"context"`
	Source   string   `json:"source"`
	Priority int      `json:"priority"`
	Category string   `json:"category"`
}

// MemorizeResult reports the chunks created for a memorize request, in
// chunk order.
type MemorizeResult struct {
	MemoryIDs     []string `json:"memoryIds"`
	ChunksCreated int      `json:"chunksCreated"`
}

// Memorize splits the text into chunks, attaches detected metadata and
// stores each chunk. A storage failure part-way through leaves the already
// stored chunks in place; callers needing all-or-nothing semantics must
// compensate themselves.
func (s *Service) Memorize(ctx context.Context, params *MemorizeParams) (*MemorizeResult, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, errdef.InvalidArgument("text", "text must not be empty")
	}

	chunks := splitChunks(params.Text, s.chunkSize)
	memoryIDs := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		created, err := s.store.CreateMemoryChunk(ctx, &store.MemoryChunk{
			Text:     chunk,
			Metadata: detectMetadata(chunk, params),
		})
		if err != nil {
			return nil, err
		}
		memoryIDs = append(memoryIDs, created.ID)
	}

	return &MemorizeResult{
		MemoryIDs:     memoryIDs,
		ChunksCreated: len(memoryIDs),
	}, nil
}

// GetMemory returns the chunk with the given id. Reading bumps the chunk's
// access count; that is the store's read side effect, not this service's.
func (s *Service) GetMemory(ctx context.Context, id string) (*store.MemoryChunk, error) {
	chunk, err := s.store.GetMemoryChunk(ctx, id)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, errdef.NotFound(id)
	}
	return chunk, nil
}

// SearchMemories delegates to the store. Filter normalization and limit
// clamping happen at the front end.
func (s *Service) SearchMemories(ctx context.Context, find *store.FindMemoryChunk) (*store.SearchResult, error) {
	return s.store.SearchMemoryChunks(ctx, find)
}

// AllTags returns every distinct tag, sorted.
func (s *Service) AllTags(ctx context.Context) ([]string, error) {
	return s.store.ListTags(ctx)
}

// AllCategories returns every distinct category, sorted.
func (s *Service) AllCategories(ctx context.Context) ([]string, error) {
	return s.store.ListCategories(ctx)
}

// Stats returns corpus statistics.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	return s.store.GetStats(ctx)
}
