package store

import (
	"context"
)

// Driver is an interface for store driver.
// It contains all methods that a storage backend should implement.
type Driver interface {
	// Init prepares the backend (schema creation, index setup). It is
	// idempotent and must be called before any other method.
	Init(ctx context.Context) error
	Close() error

	// MemoryChunk model related methods.
	CreateMemoryChunk(ctx context.Context, create *MemoryChunk) (*MemoryChunk, error)
	// GetMemoryChunk increments the chunk's access count and updates its
	// last-accessed time as a side effect of the read. The increment must
	// not lose updates under concurrent gets of the same id.
	GetMemoryChunk(ctx context.Context, id string) (*MemoryChunk, error)
	UpdateMemoryChunk(ctx context.Context, update *UpdateMemoryChunk) (*MemoryChunk, error)
	DeleteMemoryChunk(ctx context.Context, delete *DeleteMemoryChunk) error
	SearchMemoryChunks(ctx context.Context, find *FindMemoryChunk) (*SearchResult, error)

	// ListTags returns all distinct tags in ascending order.
	ListTags(ctx context.Context) ([]string, error)
	// ListCategories returns all distinct non-empty categories in ascending order.
	ListCategories(ctx context.Context) ([]string, error)
	GetStats(ctx context.Context) (*Stats, error)

	// Cleanup deletes chunks beyond maxMemories, removing those with the
	// lowest (access count, created at) first. Returns the number removed.
	Cleanup(ctx context.Context, maxMemories int) (int, error)
	// Optimize runs backend-defined maintenance. Backends with nothing to
	// maintain return nil.
	Optimize(ctx context.Context) error
}
