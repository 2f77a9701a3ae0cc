// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

// JSON-RPC 2.0 and MCP-specific error codes. Values are part of the wire
// contract and must never change.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeResourceNotFound     = -32001
	CodeResourceAccessDenied = -32002
	CodeToolExecutionFailed  = -32003
)

// errTypeToCode maps pkg/errors.Type strings to wire codes. Kept local to
// avoid pkg/protocol importing pkg/errors — the mapping direction is
// intentionally "error kind name" -> "code" using plain strings so this
// package has no dependency on the error-kind package; session/bridge code
// does the *errors.Error -> protocol.ErrorObject translation and consults
// this table by name.
var errTypeToCode = map[string]int{
	"parse_error":             CodeParseError,
	"invalid_request":         CodeInvalidRequest,
	"method_not_found":        CodeMethodNotFound,
	"invalid_params":          CodeInvalidParams,
	"internal_error":          CodeInternalError,
	"authentication_failed":   CodeInternalError,
	"authorization_denied":    CodeInternalError,
	"rate_limited":            CodeInternalError,
	"resource_not_found":      CodeResourceNotFound,
	"resource_access_denied":  CodeResourceAccessDenied,
	"tool_execution_failed":   CodeToolExecutionFailed,
	"request_too_large":       CodeInternalError,
	"timeout":                 CodeInternalError,
}

// CodeForErrorType returns the wire error code for a named error kind,
// defaulting to CodeInternalError for unrecognized kinds. Authentication,
// authorization, rate-limit, timeout, and shutdown failures are all
// surfaced as InternalError over the wire for uniformity; their true kind
// is recorded only in the audit log.
func CodeForErrorType(errType string) int {
	if code, ok := errTypeToCode[errType]; ok {
		return code
	}
	return CodeInternalError
}
