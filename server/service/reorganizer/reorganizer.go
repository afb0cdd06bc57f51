// Package reorganizer implements on-demand maintenance over the stored
// corpus: merging near-duplicate tags, pruning excess memories and running
// backend storage optimization.
package reorganizer

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/engram/store"
)

const (
	// defaultMaxMemories caps the corpus when the caller does not supply one.
	defaultMaxMemories = 1000

	// rewriteBatchSize bounds how many chunks a tag rewrite loads per page.
	rewriteBatchSize = 100

	StatusOK    = "ok"
	StatusError = "error"
)

// Request selects which maintenance actions to run. The actions are
// independent; any combination of flags is valid.
type Request struct {
	MergeSimilarTags   bool `json:"mergeSimilarTags"`
	CleanupOldMemories bool `json:"cleanupOldMemories"`
	OptimizeStorage    bool `json:"optimizeStorage"`
	MaxMemories        int  `json:"maxMemories"`
}

// Result summarizes a reorganize run. On failure Status is "error", Error
// carries the cause and the counts reflect only the actions that completed
// before the failure.
type Result struct {
	Status           string `json:"status"`
	TagsMerged       int    `json:"tagsMerged"`
	MemoriesCleaned  int    `json:"memoriesCleaned"`
	StorageOptimized bool   `json:"storageOptimized"`
	Error            string `json:"error,omitempty"`
}

// Service runs reorganize requests against the store.
type Service struct {
	store *store.Store

	// sem serializes reorganize runs so bulk rewrites never interleave
	sem *semaphore.Weighted
}

// NewService creates a new reorganizer service.
func NewService(s *store.Store) *Service {
	return &Service{
		store: s,
		sem:   semaphore.NewWeighted(1),
	}
}

// Reorganize runs the requested actions in a fixed order: tag merge, then
// cleanup, then optimize. The first failing action stops the run; later
// actions are not attempted. Action failures are reported in the Result
// rather than as an error so the caller always sees the partial counts.
// A call that arrives while another run is in flight waits its turn.
func (s *Service) Reorganize(ctx context.Context, request *Request) (*Result, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	result := &Result{Status: StatusOK}

	if request.MergeSimilarTags {
		merged, err := s.mergeSimilarTags(ctx)
		if err != nil {
			result.Status = StatusError
			result.Error = err.Error()
			return result, nil
		}
		result.TagsMerged = merged
	}

	if request.CleanupOldMemories {
		maxMemories := request.MaxMemories
		if maxMemories <= 0 {
			maxMemories = defaultMaxMemories
		}
		removed, err := s.store.Cleanup(ctx, maxMemories)
		if err != nil {
			result.Status = StatusError
			result.Error = err.Error()
			return result, nil
		}
		result.MemoriesCleaned = removed
	}

	if request.OptimizeStorage {
		if err := s.store.Optimize(ctx); err != nil {
			result.Status = StatusError
			result.Error = err.Error()
			return result, nil
		}
		result.StorageOptimized = true
	}

	return result, nil
}

// mergeSimilarTags groups the known tags by similarity and rewrites every
// chunk carrying a secondary tag to carry its group's primary tag instead.
// Returns the number of groups that actually merged.
func (s *Service) mergeSimilarTags(ctx context.Context) (int, error) {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return 0, err
	}

	merged := 0
	for _, group := range groupSimilarTags(tags) {
		if len(group) < 2 {
			continue
		}
		primary := pickPrimaryTag(group)
		for _, tag := range group {
			if tag == primary {
				continue
			}
			if err := s.rewriteTag(ctx, tag, primary); err != nil {
				return 0, err
			}
		}
		merged++
	}
	return merged, nil
}

// rewriteTag replaces tag from with to on every chunk carrying from.
// Each update removes the chunk from the filtered set, so re-querying at
// offset zero walks the whole set without skipping.
func (s *Service) rewriteTag(ctx context.Context, from, to string) error {
	for {
		result, err := s.store.SearchMemoryChunks(ctx, &store.FindMemoryChunk{
			Tags:  []string{from},
			Limit: rewriteBatchSize,
		})
		if err != nil {
			return err
		}
		if len(result.Chunks) == 0 {
			return nil
		}
		for _, chunk := range result.Chunks {
			tags := replaceTag(chunk.Metadata.Tags, from, to)
			if _, err := s.store.UpdateMemoryChunk(ctx, &store.UpdateMemoryChunk{
				ID:   chunk.ID,
				Tags: &tags,
			}); err != nil {
				return err
			}
		}
		if !result.HasMore {
			return nil
		}
	}
}
