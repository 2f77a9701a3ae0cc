// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package catalog declares the external collaborator interfaces mcpcore
// depends on but does not implement: the tool/resource/prompt catalog,
// the identity provider, the workflow template registry, the event bus, and
// the audit sink. Nothing in this package has a concrete implementation
// here — pkg/bridge, pkg/workflow, and pkg/security consume these as
// dependencies injected by the binary that embeds mcpcore.
package catalog

//go:generate mockgen -destination=mocks/mock_catalog.go -package=mocks -source=catalog.go

import "context"

// ParamType is a tool parameter's declared scalar type.
type ParamType string

// Supported parameter types.
const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
)

// ParamConstraints mirrors the JSON-Schema keywords the bridge must derive
// parameters into.
type ParamConstraints struct {
	Min       *float64
	Max       *float64
	MinLength *int
	MaxLength *int
	Pattern   string
	Enum      []any
}

// ParamDescriptor declares one tool parameter.
type ParamDescriptor struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any
	Constraints ParamConstraints
}

// ExecutionHints describes a tool's runtime capabilities, copied into the
// MCP tool descriptor's capability block.
type ExecutionHints struct {
	SupportsAsync        bool
	SupportsStreaming    bool
	SupportsCancellation bool
	MaxExecutionTime     int // seconds
	ResourceLimits       map[string]any
	SecurityConstraints  map[string]any
}

// ToolDescriptor is the catalog's declaration of one tool.
type ToolDescriptor struct {
	Name        string
	Description string
	Category    string
	Version     string
	Parameters  []ParamDescriptor
	Hints       ExecutionHints
}

// ResourceDescriptor is the catalog's declaration of one resource.
type ResourceDescriptor struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// PromptDescriptor is the catalog's declaration of one prompt.
type PromptDescriptor struct {
	Name        string
	Description string
	Arguments   []ParamDescriptor
}

// ExecContext carries the per-call context the bridge attaches to every
// catalog execution.
type ExecContext struct {
	MCPSessionID     string
	ProgressReporter func(progress float64)
}

// Result is a catalog execution's return value before MCP-shaping.
type Result struct {
	// Text, if non-empty, is treated as a single text content block.
	Text string
	// JSON, if non-nil, is JSON-encoded as an application/json content block.
	JSON any
	// Markdown, if non-empty, is a text/markdown content block.
	Markdown string

	ExecutionTimeMS int64
	ResourceUsage   map[string]any
}

// NotFound is returned by a ToolCatalog lookup (GetTool, ReadResource,
// GetPrompt) for an unknown name.
type NotFound struct{ Name string }

func (e *NotFound) Error() string { return "not found: " + e.Name }

// ToolCatalog is the external tool/resource/prompt catalog.
type ToolCatalog interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	GetTool(ctx context.Context, name string) (*ToolDescriptor, error)
	ExecuteTool(ctx context.Context, name string, params map[string]any, execCtx ExecContext) (*Result, error)

	ListResources(ctx context.Context) ([]ResourceDescriptor, error)
	ReadResource(ctx context.Context, uri string) (*Result, error)

	ListPrompts(ctx context.Context) ([]PromptDescriptor, error)
	GetPrompt(ctx context.Context, name string, args map[string]any) (*Result, error)
}

// Identity is a verified principal returned by an IdentityProvider.
type Identity struct {
	UserID   string
	Metadata map[string]string
}

// Credential is the shape accepted by IdentityProvider.Verify: either a
// signed session token or a raw API key.
type Credential struct {
	Token  string
	APIKey string
}

// IdentityProvider verifies credentials and reports capabilities.
type IdentityProvider interface {
	Verify(ctx context.Context, cred Credential) (*Identity, error)
	Capabilities(ctx context.Context, identity *Identity) ([]string, error)
}

// TemplateRegistry resolves named workflow templates.
type TemplateRegistry interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) (map[string]any, error)
	Instantiate(ctx context.Context, template map[string]any, vars map[string]any) (map[string]any, error)
}

// EventBus is the publish/subscribe collaborator used for catalog change
// notifications and workflow reactive triggers.
type EventBus interface {
	Publish(ctx context.Context, topic string, msg any) error
	Subscribe(ctx context.Context, topic string) (<-chan any, func(), error)
}

// AuditSink accepts serialized audit entries. Implementations
// may buffer and rotate; mcpcore only guarantees entries are delivered in
// the order Write is called from a single goroutine.
type AuditSink interface {
	Write(ctx context.Context, entry []byte) error
}

// SamplingMessage is one entry of a sampling/createMessage conversation.
type SamplingMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingResult is a completed sampling/createMessage response.
type SamplingResult struct {
	Role       string
	Content    string
	Model      string
	StopReason string
}

// Sampler lets a server operator delegate sampling/createMessage to an LLM
// of their choosing rather than mcpcore picking one. A ToolCatalog that
// also implements Sampler has the handler call it directly; one that
// doesn't causes sampling/createMessage to report method_not_found.
type Sampler interface {
	CreateMessage(ctx context.Context, messages []SamplingMessage, systemPrompt string, maxTokens int) (*SamplingResult, error)
}
