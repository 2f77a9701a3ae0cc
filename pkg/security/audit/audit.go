// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package audit implements the audit layer of the security pipeline: the
// audit-entry model, sensitive-field redaction, and MCP-method event-type
// classification.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tool-mesh/mcpcore/pkg/catalog"
)

// EntryType is the AuditEntry.Type enum.
type EntryType string

// Entry types.
const (
	TypeAuthentication EntryType = "authentication"
	TypeAuthorization  EntryType = "authorization"
	TypeOperation      EntryType = "operation"
	TypeSecurityEvent  EntryType = "security_event"
	TypeRateLimit      EntryType = "rate_limit"
	TypeError          EntryType = "error"
)

// MCP method -> event-type classification.
var methodEventType = map[string]string{
	"initialize":         "mcp_initialize",
	"tools/call":         "mcp_tool_call",
	"tools/list":         "mcp_tools_list",
	"resources/read":     "mcp_resource_read",
	"resources/list":     "mcp_resources_list",
	"prompts/get":        "mcp_prompt_get",
	"prompts/list":       "mcp_prompts_list",
	"ping":                "mcp_ping",
	"logging/setLevel":   "mcp_logging",
	"shutdown":           "mcp_shutdown",
	"workflows/execute":  "mcp_workflow_execute",
}

// EventTypeForMethod returns the audit event-type label for an MCP method,
// falling back to "mcp_request" for anything unrecognized.
func EventTypeForMethod(method string) string {
	if t, ok := methodEventType[method]; ok {
		return t
	}
	return "mcp_request"
}

// Entry is one audit record.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EntryType      `json:"type"`
	ClientID  string         `json:"client_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Result    string         `json:"result"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// sensitiveFieldNames are substrings that mark a params/metadata field
// for redaction.
var sensitiveFieldNames = []string{"password", "token", "secret", "apikey", "credentials"}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveFieldNames {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Redact returns a copy of m with sensitive-named fields replaced by
// "[REDACTED]". Nested map[string]any values are redacted recursively;
// other values are copied as they are.
func Redact(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Logger writes redacted audit entries to a catalog.AuditSink.
type Logger struct {
	sink catalog.AuditSink
}

// NewLogger constructs a Logger writing to sink.
func NewLogger(sink catalog.AuditSink) *Logger {
	return &Logger{sink: sink}
}

// New builds a fully-populated, redacted Entry.
func New(entryType EntryType, clientID, userID, sessionID, operation, result string, params, metadata map[string]any) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      entryType,
		ClientID:  clientID,
		UserID:    userID,
		SessionID: sessionID,
		Operation: operation,
		Params:    Redact(params),
		Result:    result,
		Metadata:  Redact(metadata),
	}
}

// Write serializes entry and writes it to the sink. A nil sink is a no-op,
// so tests and early bring-up can run the pipeline without a real sink.
func (l *Logger) Write(ctx context.Context, entry Entry) error {
	if l == nil || l.sink == nil {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return l.sink.Write(ctx, raw)
}
