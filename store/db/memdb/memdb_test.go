package memdb

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/store"
)

func newTestDB() *DB {
	return NewDB(&profile.Profile{Mode: "dev", Driver: "memory"})
}

func TestCleanupAtScale(t *testing.T) {
	ctx := context.Background()
	d := newTestDB()

	ids := make([]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		chunk, err := d.CreateMemoryChunk(ctx, &store.MemoryChunk{
			Text:     fmt.Sprintf("note %d", i),
			Metadata: store.MemoryMetadata{Tags: []string{}, RelatedIDs: []string{}},
		})
		require.NoError(t, err)
		ids = append(ids, chunk.ID)
	}

	removed, err := d.Cleanup(ctx, 1000)
	require.NoError(t, err)
	require.Equal(t, 200, removed)

	stats, err := d.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1000, stats.TotalMemories)

	// With equal access counts the earliest insertions go first.
	for i, id := range ids {
		chunk, err := d.GetMemoryChunk(ctx, id)
		require.NoError(t, err)
		if i < 200 {
			require.Nil(t, chunk, "chunk %d should have been removed", i)
		} else {
			require.NotNil(t, chunk, "chunk %d should have survived", i)
		}
	}
}

func TestCleanupPrefersLowAccessOverAge(t *testing.T) {
	ctx := context.Background()
	d := newTestDB()

	var ids []string
	for _, text := range []string{"oldest", "middle", "newest"} {
		chunk, err := d.CreateMemoryChunk(ctx, &store.MemoryChunk{Text: text})
		require.NoError(t, err)
		ids = append(ids, chunk.ID)
	}
	// oldest read twice, newest once, middle never.
	for _, id := range []string{ids[0], ids[0], ids[2]} {
		_, err := d.GetMemoryChunk(ctx, id)
		require.NoError(t, err)
	}

	removed, err := d.Cleanup(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	middle, err := d.GetMemoryChunk(ctx, ids[1])
	require.NoError(t, err)
	require.Nil(t, middle, "the least accessed chunk goes before the oldest")
}

func TestSearchEqualKeysKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	d := newTestDB()

	var ids []string
	for i := 0; i < 3; i++ {
		chunk, err := d.CreateMemoryChunk(ctx, &store.MemoryChunk{
			Text:     fmt.Sprintf("note %d", i),
			Metadata: store.MemoryMetadata{Priority: 5},
		})
		require.NoError(t, err)
		ids = append(ids, chunk.ID)
	}

	for _, order := range []store.SortOrder{store.SortOrderAsc, store.SortOrderDesc} {
		result, err := d.SearchMemoryChunks(ctx, &store.FindMemoryChunk{
			SortBy: store.SortByPriority, SortOrder: order,
		})
		require.NoError(t, err)
		require.Len(t, result.Chunks, 3)
		for i, chunk := range result.Chunks {
			require.Equal(t, ids[i], chunk.ID, "equal priorities keep insertion order under %s", order)
		}
	}
}

func TestConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	d := newTestDB()

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		i := i
		g.Go(func() error {
			_, err := d.CreateMemoryChunk(ctx, &store.MemoryChunk{Text: fmt.Sprintf("note %d", i)})
			return err
		})
	}
	require.NoError(t, g.Wait())

	stats, err := d.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 50, stats.TotalMemories)
}
