// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the adapter translating MCP tools/*,
// resources/*, and prompts/* calls into pkg/catalog.ToolCatalog operations
// and back. Tool metadata is carried as data and executed indirectly
// through the catalog; JSON-Schema validation with xeipuuv/gojsonschema
// runs ahead of dispatch.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tool-mesh/mcpcore/pkg/catalog"
	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

// Content is one block of a tool/resource/prompt result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ResultMetadata carries execution bookkeeping alongside a tool result.
type ResultMetadata struct {
	Tool            string         `json:"tool"`
	ExecutionTimeMS int64          `json:"executionTime,omitempty"`
	ResourceUsage   map[string]any `json:"resourceUsage,omitempty"`
}

// ToolCallResult is the MCP-shaped response to tools/call.
type ToolCallResult struct {
	Content  []Content      `json:"content"`
	Metadata ResultMetadata `json:"metadata"`
}

// CapabilityDescriptor is the capability block advertised alongside each
// tool descriptor.
type CapabilityDescriptor struct {
	SupportsAsync        bool           `json:"supportsAsync"`
	SupportsStreaming    bool           `json:"supportsStreaming"`
	SupportsCancellation bool           `json:"supportsCancellation"`
	MaxExecutionTime     int            `json:"maxExecutionTime"`
	ResourceLimits       map[string]any `json:"resourceLimits,omitempty"`
	SecurityConstraints  map[string]any `json:"securityConstraints,omitempty"`
}

// ToolDescriptorDTO is one entry of the tools/list response.
type ToolDescriptorDTO struct {
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	InputSchema  JSONSchema           `json:"inputSchema"`
	Capabilities CapabilityDescriptor `json:"capabilities"`
}

// Notifier delivers a server-initiated notification to the calling
// session; the bridge uses this for tool-progress reporting.
type Notifier interface {
	Notify(method string, params any)
}

// Bridge adapts MCP method calls onto a catalog.
type Bridge struct {
	Catalog catalog.ToolCatalog
}

// New constructs a Bridge over cat.
func New(cat catalog.ToolCatalog) *Bridge {
	return &Bridge{Catalog: cat}
}

// ListTools implements tools/list.
func (b *Bridge) ListTools(ctx context.Context) ([]ToolDescriptorDTO, error) {
	tools, err := b.Catalog.ListTools(ctx)
	if err != nil {
		return nil, mcperrors.NewInternalError("failed to list tools", err)
	}
	out := make([]ToolDescriptorDTO, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolDescriptorDTO{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: DeriveSchema(t.Parameters),
			Capabilities: CapabilityDescriptor{
				SupportsAsync:        t.Hints.SupportsAsync,
				SupportsStreaming:    t.Hints.SupportsStreaming,
				SupportsCancellation: t.Hints.SupportsCancellation,
				MaxExecutionTime:     t.Hints.MaxExecutionTime,
				ResourceLimits:       t.Hints.ResourceLimits,
				SecurityConstraints:  t.Hints.SecurityConstraints,
			},
		})
	}
	return out, nil
}

// CallParams is tools/call's decoded params.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Progress  bool           `json:"progress,omitempty"`
}

// CallTool implements tools/call: resolves the tool, validates and
// transforms params, executes, and shapes the result.
func (b *Bridge) CallTool(ctx context.Context, sessionID string, notifier Notifier, params CallParams, requestID any) (*ToolCallResult, error) {
	desc, err := b.Catalog.GetTool(ctx, params.Name)
	if err != nil {
		var nf *catalog.NotFound
		if asNotFound(err, &nf) {
			return nil, mcperrors.New(mcperrors.ErrToolExecutionFailed, fmt.Sprintf("unknown tool %q", params.Name), err)
		}
		return nil, mcperrors.NewInternalError("failed to resolve tool", err)
	}

	args, err := transformArgs(*desc, params.Arguments)
	if err != nil {
		return nil, err
	}

	if err := validateArgs(*desc, args); err != nil {
		return nil, err
	}

	execCtx := catalog.ExecContext{MCPSessionID: sessionID}
	if params.Progress && notifier != nil {
		execCtx.ProgressReporter = func(progress float64) {
			notifier.Notify("notifications/tool/progress", map[string]any{
				"toolName":  params.Name,
				"requestId": requestID,
				"progress":  progress,
			})
		}
	}

	res, err := b.Catalog.ExecuteTool(ctx, params.Name, args, execCtx)
	if err != nil {
		return nil, mcperrors.New(mcperrors.ErrToolExecutionFailed, SanitizeMessage(err.Error()), err)
	}

	return &ToolCallResult{
		Content: resultContent(res),
		Metadata: ResultMetadata{
			Tool:            params.Name,
			ExecutionTimeMS: res.ExecutionTimeMS,
			ResourceUsage:   res.ResourceUsage,
		},
	}, nil
}

func resultContent(res *catalog.Result) []Content {
	switch {
	case res.Markdown != "":
		return []Content{{Type: "text", Text: res.Markdown, MimeType: "text/markdown"}}
	case res.JSON != nil:
		raw, err := json.Marshal(res.JSON)
		if err != nil {
			return []Content{{Type: "text", Text: fmt.Sprintf("%v", res.JSON), MimeType: "application/json"}}
		}
		return []Content{{Type: "text", Text: string(raw), MimeType: "application/json"}}
	default:
		return []Content{{Type: "text", Text: res.Text}}
	}
}

// transformArgs fills defaults and coerces scalar types per the
// descriptor's declared parameter types.
func transformArgs(desc catalog.ToolDescriptor, in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(desc.Parameters))
	for k, v := range in {
		out[k] = v
	}
	for _, p := range desc.Parameters {
		v, present := out[p.Name]
		if !present {
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		coerced, err := coerce(p.Type, v)
		if err != nil {
			return nil, mcperrors.New(mcperrors.ErrInvalidParams, fmt.Sprintf("parameter %q: %s", p.Name, err.Error()), err)
		}
		out[p.Name] = coerced
	}
	return out, nil
}

func coerce(t catalog.ParamType, v any) (any, error) {
	switch t {
	case catalog.ParamString:
		switch s := v.(type) {
		case string:
			return s, nil
		default:
			return fmt.Sprintf("%v", s), nil
		}
	case catalog.ParamNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("expected a number")
			}
			return f, nil
		default:
			return nil, fmt.Errorf("expected a number")
		}
	case catalog.ParamInteger:
		switch n := v.(type) {
		case float64:
			return int64(n), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("expected an integer")
			}
			return i, nil
		default:
			return nil, fmt.Errorf("expected an integer")
		}
	case catalog.ParamBoolean:
		switch bv := v.(type) {
		case bool:
			return bv, nil
		case string:
			b, err := strconv.ParseBool(bv)
			if err != nil {
				return nil, fmt.Errorf("expected a boolean")
			}
			return b, nil
		default:
			return nil, fmt.Errorf("expected a boolean")
		}
	default:
		return v, nil
	}
}

func validateArgs(desc catalog.ToolDescriptor, args map[string]any) error {
	schema := DeriveSchema(desc.Parameters)
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return mcperrors.NewInternalError("failed to marshal derived schema", err)
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return mcperrors.NewInternalError("failed to marshal arguments", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(argsJSON))
	if err != nil {
		return mcperrors.NewInternalError("schema validation failed", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return mcperrors.New(mcperrors.ErrInvalidParams, strings.Join(msgs, "; "), nil)
	}
	return nil
}

func asNotFound(err error, target **catalog.NotFound) bool {
	if nf, ok := err.(*catalog.NotFound); ok {
		*target = nf
		return true
	}
	return false
}
