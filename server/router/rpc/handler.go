package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/server/internal/errdef"
	"github.com/hrygo/engram/server/internal/observability"
	"github.com/hrygo/engram/server/service/memory"
	"github.com/hrygo/engram/server/service/reorganizer"
)

// Handler dispatches JSON-RPC requests to the services.
type Handler struct {
	profile     *profile.Profile
	memory      *memory.Service
	reorganizer *reorganizer.Service
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewHandler creates a new RPC handler.
func NewHandler(profile *profile.Profile, memoryService *memory.Service, reorganizerService *reorganizer.Service, logger *slog.Logger) *Handler {
	return &Handler{
		profile:     profile,
		memory:      memoryService,
		reorganizer: reorganizerService,
		logger:      logger,
		metrics:     observability.GlobalMetrics(),
	}
}

// Handle processes one raw JSON-RPC request and returns the marshaled
// response. Notifications (requests without an id) are processed but
// return nil.
func (h *Handler) Handle(ctx context.Context, raw []byte) []byte {
	var request Request
	if err := json.Unmarshal(raw, &request); err != nil {
		return h.marshal(errorResponse(nil, &Error{
			Code:    CodeParseError,
			Message: "parse error",
			Data:    err.Error(),
		}))
	}
	if request.JSONRPC != Version || request.Method == "" {
		return h.marshal(errorResponse(request.ID, &Error{
			Code:    CodeInvalidRequest,
			Message: "invalid request",
		}))
	}

	response := h.dispatch(ctx, &request)
	if request.ID == nil {
		return nil
	}
	return h.marshal(response)
}

func (h *Handler) dispatch(ctx context.Context, request *Request) *Response {
	requestCtx := observability.NewRequestContext(h.logger, request.Method)
	h.metrics.RecordRequest(request.Method)
	defer func() {
		h.metrics.RecordDuration(request.Method, requestCtx.Duration())
	}()

	result, err := h.call(ctx, request.Method, request.Params)
	if err != nil {
		h.metrics.RecordFailure(request.Method)
		rpcErr := toRPCError(err)
		if rpcErr.Code == CodeInternalError {
			requestCtx.Error("request failed", err, slog.Int(observability.LogFieldErrorCode, rpcErr.Code))
		} else {
			requestCtx.Warn("request rejected",
				slog.Int(observability.LogFieldErrorCode, rpcErr.Code),
				slog.String("reason", rpcErr.Message))
		}
		return errorResponse(request.ID, rpcErr)
	}

	requestCtx.Info("request completed", slog.Int64(observability.LogFieldDuration, requestCtx.DurationMs()))
	return resultResponse(request.ID, result)
}

func (h *Handler) call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "memorize":
		return h.handleMemorize(ctx, params)
	case "searchMemories":
		return h.handleSearchMemories(ctx, params)
	case "getMemory":
		return h.handleGetMemory(ctx, params)
	case "getAllTags":
		return h.memory.AllTags(ctx)
	case "getAllCategories":
		return h.memory.AllCategories(ctx)
	case "getStats":
		return h.memory.Stats(ctx)
	case "reorganize":
		return h.handleReorganize(ctx, params)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
	}
}

func (h *Handler) handleMemorize(ctx context.Context, raw json.RawMessage) (any, error) {
	params := &memory.MemorizeParams{}
	if err := decodeParams(raw, params); err != nil {
		return nil, err
	}
	params.Priority = clampPriority(params.Priority)
	return h.memory.Memorize(ctx, params)
}

func (h *Handler) handleSearchMemories(ctx context.Context, raw json.RawMessage) (any, error) {
	params := &searchParams{}
	if err := decodeParams(raw, params); err != nil {
		return nil, err
	}
	find, err := params.toFind()
	if err != nil {
		return nil, err
	}
	return h.memory.SearchMemories(ctx, find)
}

func (h *Handler) handleGetMemory(ctx context.Context, raw json.RawMessage) (any, error) {
	params := &getMemoryParams{}
	if err := decodeParams(raw, params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, invalidParams("id", "id must not be empty")
	}
	return h.memory.GetMemory(ctx, params.ID)
}

func (h *Handler) handleReorganize(ctx context.Context, raw json.RawMessage) (any, error) {
	request := &reorganizer.Request{}
	if err := decodeParams(raw, request); err != nil {
		return nil, err
	}
	return h.reorganizer.Reorganize(ctx, request)
}

// toRPCError maps service errors onto protocol error objects. Typed
// validation and not-found errors get their own codes; everything else is
// an internal error carrying the wrapped backend message.
func toRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var serviceErr *errdef.ServiceError
	if errors.As(err, &serviceErr) {
		switch serviceErr.Code {
		case errdef.ErrCodeInvalidArgument:
			return invalidParams(serviceErr.Field, serviceErr.Message)
		case errdef.ErrCodeNotFound:
			return &Error{Code: CodeNotFound, Message: serviceErr.Message}
		}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func (h *Handler) marshal(response *Response) []byte {
	data, err := json.Marshal(response)
	if err != nil {
		h.logger.Error("failed to marshal rpc response", slog.String("error", err.Error()))
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}
