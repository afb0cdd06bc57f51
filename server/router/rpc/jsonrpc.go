// Package rpc implements the JSON-RPC 2.0 front end over the memory and
// reorganizer services. One dispatcher serves both transports (HTTP POST
// and stdio); the transports only move bytes.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version.
const Version = "2.0"

// JSON-RPC 2.0 error codes, plus the application-defined range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeNotFound reports an unknown memory id, distinct from invalid
	// params so clients can tell "bad request" from "gone".
	CodeNotFound = -32001
)

// Request is a JSON-RPC 2.0 request. A nil ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is
// set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object. It implements the error interface
// so the dispatcher can route protocol errors and service errors through
// the same path.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func errorResponse(id json.RawMessage, rpcErr *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: rpcErr}
}

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func invalidParams(field, msg string) *Error {
	rpcErr := &Error{Code: CodeInvalidParams, Message: msg}
	if field != "" {
		rpcErr.Data = map[string]string{"field": field}
	}
	return rpcErr
}
