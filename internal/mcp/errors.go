// Package mcp exposes the retrieval engine as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	stderrors "errors"
	"fmt"

	lserrors "github.com/lodestar-dev/lodestar/internal/errors"
)

// MCP error codes. Negative values follow JSON-RPC conventions.
const (
	ErrCodeIndexNotFound   = -32001
	ErrCodeEmbeddingFailed = -32002
	ErrCodeTimeout         = -32003

	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// ProtocolError is an MCP protocol error with code and message.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates a parameter validation error.
func NewInvalidParamsError(msg string) *ProtocolError {
	return &ProtocolError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts internal errors into protocol errors, carrying the
// structured message and suggestion through to the client.
func MapError(err error) *ProtocolError {
	if err == nil {
		return nil
	}

	var lsErr *lserrors.Error
	if stderrors.As(err, &lsErr) {
		message := lsErr.Message
		if lsErr.Suggestion != "" {
			message = fmt.Sprintf("%s %s", lsErr.Message, lsErr.Suggestion)
		}

		switch lsErr.Code {
		case lserrors.ErrCodeTimeout:
			return &ProtocolError{Code: ErrCodeTimeout, Message: message}
		case lserrors.ErrCodeInvalidInput:
			return &ProtocolError{Code: ErrCodeInvalidParams, Message: message}
		case lserrors.ErrCodeAuth, lserrors.ErrCodeProvider, lserrors.ErrCodeProviderState:
			return &ProtocolError{Code: ErrCodeEmbeddingFailed, Message: message}
		case lserrors.ErrCodeIO:
			return &ProtocolError{Code: ErrCodeIndexNotFound, Message: message}
		default:
			return &ProtocolError{Code: ErrCodeInternalError, Message: message}
		}
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return &ProtocolError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case stderrors.Is(err, context.Canceled):
		return &ProtocolError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &ProtocolError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}
