// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors provides a typed error value used throughout mcpcore.
// Internal code returns *Error; only the protocol codec and session
// dispatcher translate a *Error into a wire-level JSON-RPC error (see
// pkg/protocol), so the mapping from "kind of failure" to "JSON-RPC code"
// lives in exactly one place.
package errors

import (
	"fmt"

	"github.com/tool-mesh/mcpcore/pkg/protocol"
)

// Type is a stable, machine-comparable error classification.
type Type string

// Error kinds used across the server.
const (
	ErrParse               Type = "parse_error"
	ErrInvalidRequest      Type = "invalid_request"
	ErrMethodNotFound      Type = "method_not_found"
	ErrInvalidParams       Type = "invalid_params"
	ErrInternal            Type = "internal_error"
	ErrAuthentication      Type = "authentication_failed"
	ErrAuthorization       Type = "authorization_denied"
	ErrRateLimited         Type = "rate_limited"
	ErrResourceNotFound    Type = "resource_not_found"
	ErrResourceAccessDenied Type = "resource_access_denied"
	ErrToolExecutionFailed Type = "tool_execution_failed"
	ErrRequestTooLarge     Type = "request_too_large"
	ErrTimeout             Type = "timeout"
	ErrInvalidArgument     Type = "invalid_argument"
	ErrNotFound            Type = "not_found"
)

// Error is the typed error value carried through the call stack.
type Error struct {
	Type    Type
	Message string
	Cause   error

	// Data carries machine-readable detail (e.g. retry_after seconds for
	// ErrRateLimited) that the protocol edge copies into the JSON-RPC
	// error's `data` field.
	Data map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// MCPCode returns the JSON-RPC wire code this error translates to at the
// protocol edge. Session dispatch consults this via the
// unexported `interface{ MCPCode() int }` duck type so pkg/session never
// imports pkg/errors directly.
func (e *Error) MCPCode() int {
	return protocol.CodeForErrorType(string(e.Type))
}

// New constructs an *Error of the given type.
func New(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// WithData attaches machine-readable data and returns the same error for
// chaining at the call site.
func (e *Error) WithData(data map[string]any) *Error {
	e.Data = data
	return e
}

// NewInvalidArgumentError constructs an ErrInvalidArgument.
func NewInvalidArgumentError(message string, cause error) *Error {
	return New(ErrInvalidArgument, message, cause)
}

// NewInternalError constructs an ErrInternal.
func NewInternalError(message string, cause error) *Error {
	return New(ErrInternal, message, cause)
}

// NewAuthenticationError constructs an ErrAuthentication.
func NewAuthenticationError(message string, cause error) *Error {
	return New(ErrAuthentication, message, cause)
}

// NewAuthorizationError constructs an ErrAuthorization.
func NewAuthorizationError(message string, cause error) *Error {
	return New(ErrAuthorization, message, cause)
}

// NewRateLimitedError constructs an ErrRateLimited carrying a retry_after
// hint (seconds) in Data.
func NewRateLimitedError(message string, retryAfterSeconds int) *Error {
	return New(ErrRateLimited, message, nil).WithData(map[string]any{"retry_after": retryAfterSeconds})
}

// NewResourceNotFoundError constructs an ErrResourceNotFound.
func NewResourceNotFoundError(message string, cause error) *Error {
	return New(ErrResourceNotFound, message, cause)
}

// NewToolExecutionFailedError constructs an ErrToolExecutionFailed.
func NewToolExecutionFailedError(message string, cause error) *Error {
	return New(ErrToolExecutionFailed, message, cause)
}

// NewTimeoutError constructs an ErrTimeout.
func NewTimeoutError(message string) *Error {
	return New(ErrTimeout, message, nil)
}

// Is reports whether err is an *Error of the given type, so callers can
// write `errors.Is(err, errors.ErrRateLimited)`-style checks via errors.As
// plus a type comparison without exporting sentinel values per kind.
func Is(err error, t Type) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Type == t
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
