package rpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/server/service/memory"
	"github.com/hrygo/engram/server/service/reorganizer"
	"github.com/hrygo/engram/store"
	"github.com/hrygo/engram/store/db/memdb"
)

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

func newTestHandler(t *testing.T) *Handler {
	testProfile := &profile.Profile{Mode: "dev", Driver: "memory", ChunkSize: 500}
	st := store.New(memdb.NewDB(testProfile), testProfile)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(testProfile, memory.NewService(st, testProfile.ChunkSize), reorganizer.NewService(st), logger)
}

func callRPC(t *testing.T, h *Handler, method string, params any) *testResponse {
	request := map[string]any{"jsonrpc": Version, "id": 1, "method": method}
	if params != nil {
		request["params"] = params
	}
	raw, err := json.Marshal(request)
	require.NoError(t, err)

	out := h.Handle(context.Background(), raw)
	require.NotNil(t, out)

	response := &testResponse{}
	require.NoError(t, json.Unmarshal(out, response))
	assert.Equal(t, Version, response.JSONRPC)
	return response
}

func decodeResult(t *testing.T, response *testResponse, v any) {
	require.Nil(t, response.Error)
	require.NoError(t, json.Unmarshal(response.Result, v))
}

func TestHandleParseError(t *testing.T) {
	h := newTestHandler(t)
	response := &testResponse{}
	require.NoError(t, json.Unmarshal(h.Handle(context.Background(), []byte("{not json")), response))
	require.NotNil(t, response.Error)
	assert.Equal(t, CodeParseError, response.Error.Code)
}

func TestHandleInvalidRequest(t *testing.T) {
	h := newTestHandler(t)
	for _, raw := range []string{
		`{"jsonrpc":"1.0","id":1,"method":"getStats"}`,
		`{"jsonrpc":"2.0","id":1}`,
	} {
		response := &testResponse{}
		require.NoError(t, json.Unmarshal(h.Handle(context.Background(), []byte(raw)), response))
		require.NotNil(t, response.Error)
		assert.Equal(t, CodeInvalidRequest, response.Error.Code)
	}
}

func TestHandleMethodNotFound(t *testing.T) {
	h := newTestHandler(t)
	response := callRPC(t, h, "defragment", nil)
	require.NotNil(t, response.Error)
	assert.Equal(t, CodeMethodNotFound, response.Error.Code)
	assert.Contains(t, response.Error.Message, "defragment")
}

func TestHandleNotification(t *testing.T) {
	h := newTestHandler(t)

	raw := []byte(`{"jsonrpc":"2.0","method":"memorize","params":{"text":"noted silently"}}`)
	out := h.Handle(context.Background(), raw)
	assert.Nil(t, out, "notifications get no response")

	var stats store.Stats
	decodeResult(t, callRPC(t, h, "getStats", nil), &stats)
	assert.Equal(t, 1, stats.TotalMemories, "the notification was still processed")
}

func TestMemorizeRPC(t *testing.T) {
	h := newTestHandler(t)

	var result memory.MemorizeResult
	decodeResult(t, callRPC(t, h, "memorize", map[string]any{
		"text": "Bug in API. Fixed with a patch.",
		"tags": []string{"bug"},
	}), &result)

	assert.Equal(t, 1, result.ChunksCreated)
	require.Len(t, result.MemoryIDs, 1)

	var chunk store.MemoryChunk
	decodeResult(t, callRPC(t, h, "getMemory", map[string]any{"id": result.MemoryIDs[0]}), &chunk)
	assert.Equal(t, "Bug in API. Fixed with a patch.", chunk.Text)
	assert.Equal(t, "troubleshooting", chunk.Metadata.Category)
}

func TestMemorizeRPCValidation(t *testing.T) {
	h := newTestHandler(t)

	response := callRPC(t, h, "memorize", map[string]any{"text": "   "})
	require.NotNil(t, response.Error)
	assert.Equal(t, CodeInvalidParams, response.Error.Code)
	assert.Equal(t, map[string]any{"field": "text"}, response.Error.Data)
}

func TestMemorizeRPCClampsPriority(t *testing.T) {
	h := newTestHandler(t)

	var result memory.MemorizeResult
	decodeResult(t, callRPC(t, h, "memorize", map[string]any{
		"text":     "priority goes to eleven",
		"priority": 99,
	}), &result)

	var chunk store.MemoryChunk
	decodeResult(t, callRPC(t, h, "getMemory", map[string]any{"id": result.MemoryIDs[0]}), &chunk)
	assert.Equal(t, 10, chunk.Metadata.Priority)
}

func TestGetMemoryRPCErrors(t *testing.T) {
	h := newTestHandler(t)

	response := callRPC(t, h, "getMemory", map[string]any{"id": "missing"})
	require.NotNil(t, response.Error)
	assert.Equal(t, CodeNotFound, response.Error.Code)

	response = callRPC(t, h, "getMemory", map[string]any{})
	require.NotNil(t, response.Error)
	assert.Equal(t, CodeInvalidParams, response.Error.Code)
}

func TestSearchMemoriesRPC(t *testing.T) {
	h := newTestHandler(t)

	var memorized memory.MemorizeResult
	decodeResult(t, callRPC(t, h, "memorize", map[string]any{"text": "golang concurrency patterns"}), &memorized)
	decodeResult(t, callRPC(t, h, "memorize", map[string]any{"text": "python asyncio guide"}), &memorized)

	var result store.SearchResult
	decodeResult(t, callRPC(t, h, "searchMemories", map[string]any{"query": "asyncio"}), &result)
	assert.Equal(t, 1, result.Total)
	assert.False(t, result.HasMore)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "python asyncio guide", result.Chunks[0].Text)

	response := callRPC(t, h, "searchMemories", map[string]any{"sortBy": "alphabetical"})
	require.NotNil(t, response.Error)
	assert.Equal(t, CodeInvalidParams, response.Error.Code)
	assert.Equal(t, map[string]any{"field": "sortBy"}, response.Error.Data)
}

func TestEnumerationRPC(t *testing.T) {
	h := newTestHandler(t)

	var memorized memory.MemorizeResult
	decodeResult(t, callRPC(t, h, "memorize", map[string]any{
		"text": "database tuning notes", "tags": []string{"postgres"},
	}), &memorized)

	var tags []string
	decodeResult(t, callRPC(t, h, "getAllTags", nil), &tags)
	assert.Contains(t, tags, "postgres")

	var categories []string
	decodeResult(t, callRPC(t, h, "getAllCategories", nil), &categories)
	assert.Contains(t, categories, "database")

	var stats store.Stats
	decodeResult(t, callRPC(t, h, "getStats", nil), &stats)
	assert.Equal(t, 1, stats.TotalMemories)
	require.NotNil(t, stats.OldestMemory)
	require.NotNil(t, stats.NewestMemory)
}

func TestReorganizeRPC(t *testing.T) {
	h := newTestHandler(t)

	var memorized memory.MemorizeResult
	decodeResult(t, callRPC(t, h, "memorize", map[string]any{"text": "gateway notes", "tags": []string{"api"}}), &memorized)
	decodeResult(t, callRPC(t, h, "memorize", map[string]any{"text": "ingress notes", "tags": []string{"api-server"}}), &memorized)

	var result reorganizer.Result
	decodeResult(t, callRPC(t, h, "reorganize", map[string]any{"mergeSimilarTags": true}), &result)
	assert.Equal(t, reorganizer.StatusOK, result.Status)
	assert.Equal(t, 1, result.TagsMerged)

	var tags []string
	decodeResult(t, callRPC(t, h, "getAllTags", nil), &tags)
	assert.Equal(t, []string{"api"}, tags)
}
