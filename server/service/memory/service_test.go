package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/server/internal/errdef"
	"github.com/hrygo/engram/store"
	"github.com/hrygo/engram/store/db/memdb"
)

func newTestService(t *testing.T, chunkSize int) *Service {
	testProfile := &profile.Profile{Mode: "dev", Driver: "memory"}
	st := store.New(memdb.NewDB(testProfile), testProfile)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})
	return NewService(st, chunkSize)
}

func TestMemorizeRejectsEmptyText(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0)

	for _, text := range []string{"", "   ", "\n\t  \n"} {
		result, err := svc.Memorize(ctx, &MemorizeParams{Text: text})
		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, errdef.IsCode(err, errdef.ErrCodeInvalidArgument))
	}
}

func TestMemorizeSingleChunk(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0)

	result, err := svc.Memorize(ctx, &MemorizeParams{
		Text: "Bug in API. Fixed with a patch.",
		Tags: []string{"bug"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.ChunksCreated)
	require.Len(t, result.MemoryIDs, 1)

	chunk, err := svc.GetMemory(ctx, result.MemoryIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Bug in API. Fixed with a patch.", chunk.Text)
	assert.Equal(t, []string{"bug", "fixed", "api"}, chunk.Metadata.Tags)
	assert.Equal(t, "troubleshooting", chunk.Metadata.Category)
	assert.Equal(t, 5, chunk.Metadata.Priority)
	assert.Equal(t, 1, chunk.AccessCount, "reading bumps the access count")
}

func TestMemorizeReturnsIDsInChunkOrder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0)

	result, err := svc.Memorize(ctx, &MemorizeParams{
		Text: "First paragraph.\n\nSecond paragraph.\n\nThird paragraph.",
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.ChunksCreated)
	require.Len(t, result.MemoryIDs, 3)

	want := []string{"First paragraph.", "Second paragraph.", "Third paragraph."}
	for i, id := range result.MemoryIDs {
		chunk, err := svc.GetMemory(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want[i], chunk.Text)
	}
}

func TestMemorizeAppliesCallerMetadata(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0)

	result, err := svc.Memorize(ctx, &MemorizeParams{
		Text:     "Plain content.\n\nMore plain content.",
		Context:  "quarterly planning",
		Source:   "wiki",
		Priority: 9,
		Category: "notes",
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.ChunksCreated)

	for _, id := range result.MemoryIDs {
		chunk, err := svc.GetMemory(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "quarterly planning", chunk.Metadata.Context)
		assert.Equal(t, "wiki", chunk.Metadata.Source)
		assert.Equal(t, 9, chunk.Metadata.Priority)
		assert.Equal(t, "notes", chunk.Metadata.Category)
	}
}

func TestMemorizeSplitsByConfiguredChunkSize(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 20)

	result, err := svc.Memorize(ctx, &MemorizeParams{
		Text: "One two three. Four five six. Seven eight nine.",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ChunksCreated)
	assert.Equal(t, len(result.MemoryIDs), result.ChunksCreated)
}

func TestGetMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0)

	chunk, err := svc.GetMemory(ctx, "no-such-id")
	require.Error(t, err)
	assert.Nil(t, chunk)
	assert.True(t, errdef.IsCode(err, errdef.ErrCodeNotFound))
}

func TestGetMemoryBumpsAccessCount(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0)

	result, err := svc.Memorize(ctx, &MemorizeParams{Text: "counting reads"})
	require.NoError(t, err)
	id := result.MemoryIDs[0]

	for want := 1; want <= 3; want++ {
		chunk, err := svc.GetMemory(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, chunk.AccessCount)
	}
}

func TestSearchAndEnumerate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, 0)

	_, err := svc.Memorize(ctx, &MemorizeParams{Text: "golang concurrency patterns", Tags: []string{"golang"}})
	require.NoError(t, err)
	_, err = svc.Memorize(ctx, &MemorizeParams{Text: "python asyncio guide", Tags: []string{"python"}})
	require.NoError(t, err)

	result, err := svc.SearchMemories(ctx, &store.FindMemoryChunk{Query: "asyncio"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "python asyncio guide", result.Chunks[0].Text)

	tags, err := svc.AllTags(ctx)
	require.NoError(t, err)
	assert.Contains(t, tags, "golang")
	assert.Contains(t, tags, "python")

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMemories)
}
