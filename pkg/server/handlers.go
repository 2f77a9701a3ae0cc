// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/tool-mesh/mcpcore/pkg/bridge"
	"github.com/tool-mesh/mcpcore/pkg/catalog"
	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
	"github.com/tool-mesh/mcpcore/pkg/security"
	"github.com/tool-mesh/mcpcore/pkg/security/audit"
	"github.com/tool-mesh/mcpcore/pkg/session"
	"github.com/tool-mesh/mcpcore/pkg/workflow"
)

// getSess resolves the session a handler closure runs under. It is always
// called after session.New has assigned the connection's forward-declared
// session variable, since a HandlerSet is never invoked before that.
type getSess func() *session.Session

// buildHandlerSet wires one connection's session.HandlerSet: every method
// runs the operation through the security pipeline (colon-form operation
// names, matching authz's resource:action convention) before reaching its
// collaborator (bridge, workflow compiler/engine, or the session object
// itself for the lifecycle methods).
func (s *Server) buildHandlerSet(entry *connEntry, sess getSess) session.HandlerSet {
	return session.HandlerSet{
		ToolsList:             s.handleToolsList(entry),
		ToolsCall:              s.handleToolsCall(entry, sess),
		ResourcesList:         s.handleResourcesList(entry),
		ResourcesRead:         s.handleResourcesRead(entry),
		ResourcesSubscribe:    s.handleResourcesSubscribe(entry, sess),
		ResourcesUnsubscribe:  s.handleResourcesUnsubscribe(entry, sess),
		PromptsList:           s.handlePromptsList(entry),
		PromptsGet:            s.handlePromptsGet(entry),
		LoggingSetLevel:       s.handleLoggingSetLevel(entry),
		Ping:                  s.handlePing(entry),
		Shutdown:              s.handleShutdown(entry, sess),
		WorkflowsCreate:       s.handleWorkflowsCreate(entry),
		WorkflowsExecute:      s.handleWorkflowsExecute(entry, sess),
		WorkflowsTemplates:    s.handleWorkflowsTemplates(entry),
		SamplingCreateMessage: s.handleSamplingCreateMessage(entry),
	}
}

// evaluate runs req through the security pipeline on entry's cached
// credential/IP, attaching params for the pipeline's audit entry.
func (s *Server) evaluate(ctx context.Context, entry *connEntry, operation string, params map[string]any) (security.Context, error) {
	result, err := s.pipeline.Evaluate(ctx, security.Request{
		Credential: entry.credential,
		IPAddress:  entry.ipAddress,
		Operation:  operation,
		Params:     params,
	})
	if err != nil {
		return security.Context{}, err
	}
	return result.Context, nil
}

func (s *Server) handlePing(entry *connEntry) session.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		if _, err := s.evaluate(ctx, entry, "session:ping", nil); err != nil {
			return nil, err
		}
		return map[string]any{}, nil
	}
}

func (s *Server) handleShutdown(entry *connEntry, sess getSess) session.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		if _, err := s.evaluate(ctx, entry, "session:shutdown", nil); err != nil {
			return nil, err
		}
		go sess().BeginShutdown("client requested shutdown")
		return map[string]any{}, nil
	}
}

func (s *Server) handleToolsList(entry *connEntry) session.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		if _, err := s.evaluate(ctx, entry, "tools:list", nil); err != nil {
			return nil, err
		}
		tools, err := s.bridge.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tools": tools}, nil
	}
}

func (s *Server) handleToolsCall(entry *connEntry, sess getSess) session.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params bridge.CallParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, mcperrors.NewInvalidArgumentError("malformed tools/call params", err)
		}
		if _, err := s.evaluate(ctx, entry, "tools:call", map[string]any{"name": params.Name}); err != nil {
			return nil, err
		}
		requestID, _ := session.RequestIDFromContext(ctx)
		current := sess()
		result, err := s.bridge.CallTool(ctx, current.ID, current, params, requestID)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func (s *Server) handleResourcesList(entry *connEntry) session.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		if _, err := s.evaluate(ctx, entry, "resources:list", nil); err != nil {
			return nil, err
		}
		resources, err := s.bridge.ListResources(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"resources": resources}, nil
	}
}

// resourceURIParams is the shape shared by resources/read,
// resources/subscribe, and resources/unsubscribe.
type resourceURIParams struct {
	URI string `json:"uri"`
}

// schemeOf returns the URI scheme mcpcore authorizes resource access by
// (capability "resources:<scheme>", e.g. "resources:workspace").
func schemeOf(uri string) string {
	for i, r := range uri {
		if r == ':' {
			return uri[:i]
		}
	}
	return ""
}

func (s *Server) handleResourcesRead(entry *connEntry) session.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params resourceURIParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, mcperrors.NewInvalidArgumentError("malformed resources/read params", err)
		}
		sc, err := s.evaluate(ctx, entry, "resources:read", map[string]any{"uri": params.URI})
		if err != nil {
			return nil, err
		}

		scheme := schemeOf(params.URI)
		required := "resources:" + scheme
		if !sc.HasCapability(required) {
			s.auditSchemeDenial(ctx, sc, params.URI, required)
			return nil, mcperrors.NewAuthorizationError("not authorized for resource scheme "+scheme, nil)
		}

		result, err := s.bridge.ReadResource(ctx, params.URI)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func (s *Server) handleResourcesSubscribe(entry *connEntry, sess getSess) session.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params resourceURIParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, mcperrors.NewInvalidArgumentError("malformed resources/subscribe params", err)
		}
		if _, err := s.evaluate(ctx, entry, "resources:subscribe", map[string]any{"uri": params.URI}); err != nil {
			return nil, err
		}
		sess().Subscribe("resources", params.URI)
		s.watchResource(entry, sess(), params.URI)
		return map[string]any{}, nil
	}
}

func (s *Server) handleResourcesUnsubscribe(entry *connEntry, sess getSess) session.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params resourceURIParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, mcperrors.NewInvalidArgumentError("malformed resources/unsubscribe params", err)
		}
		if _, err := s.evaluate(ctx, entry, "resources:unsubscribe", map[string]any{"uri": params.URI}); err != nil {
			return nil, err
		}
		sess().Unsubscribe("resources", params.URI)
		s.unwatchResource(entry, params.URI)
		return map[string]any{}, nil
	}
}

func (s *Server) handlePromptsList(entry *connEntry) session.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		if _, err := s.evaluate(ctx, entry, "prompts:list", nil); err != nil {
			return nil, err
		}
		prompts, err := s.bridge.ListPrompts(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"prompts": prompts}, nil
	}
}

func (s *Server) handlePromptsGet(entry *connEntry) session.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, mcperrors.NewInvalidArgumentError("malformed prompts/get params", err)
		}
		if _, err := s.evaluate(ctx, entry, "prompts:get", map[string]any{"name": params.Name}); err != nil {
			return nil, err
		}
		result, err := s.bridge.GetPrompt(ctx, params.Name, params.Arguments)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func (s *Server) handleLoggingSetLevel(entry *connEntry) session.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params struct {
			Level string `json:"level"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, mcperrors.NewInvalidArgumentError("malformed logging/setLevel params", err)
		}
		if _, err := s.evaluate(ctx, entry, "logging:setLevel", map[string]any{"level": params.Level}); err != nil {
			return nil, err
		}
		return map[string]any{}, nil
	}
}

// auditSchemeDenial records the resources:<scheme> authorization check's
// own denial, since it runs after, and independently of, Pipeline.Evaluate's
// single built-in audit entry for the base resources:read operation.
func (s *Server) auditSchemeDenial(ctx context.Context, sc security.Context, uri, required string) {
	if s.pipeline == nil || s.pipeline.AuditLog == nil {
		return
	}
	entry := audit.New(audit.TypeAuthorization, sc.ClientID, sc.UserID, sc.SessionID, "resources:read", "denied:resource_scheme:"+required, map[string]any{"uri": uri}, nil)
	_ = s.pipeline.AuditLog.Write(ctx, entry)
}

// workflowEntry holds the graph workflows/create compiled; workflows/execute
// by id runs that stored graph again.
type workflowEntry struct {
	graph *workflow.Graph
}

func (s *Server) handleWorkflowsCreate(entry *connEntry) session.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var spec workflow.Spec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return nil, mcperrors.NewInvalidArgumentError("malformed workflows/create params", err)
		}
		if _, err := s.evaluate(ctx, entry, "workflows:create", map[string]any{"type": string(spec.Type)}); err != nil {
			return nil, err
		}

		graph, err := s.compiler.Compile(ctx, &spec)
		if err != nil {
			return nil, err
		}

		id := uuid.NewString()
		s.workflows.Put(id, &workflowEntry{graph: graph})
		return map[string]any{"workflow_id": id}, nil
	}
}

func (s *Server) handleWorkflowsExecute(entry *connEntry, sess getSess) session.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params struct {
			WorkflowID string         `json:"workflow_id,omitempty"`
			Spec       *workflow.Spec `json:"spec,omitempty"`
			Context    map[string]any `json:"context,omitempty"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, mcperrors.NewInvalidArgumentError("malformed workflows/execute params", err)
		}
		if _, err := s.evaluate(ctx, entry, "workflows:execute", map[string]any{"workflow_id": params.WorkflowID}); err != nil {
			return nil, err
		}

		var graph *workflow.Graph
		switch {
		case params.WorkflowID != "":
			wf, err := s.workflows.Get(params.WorkflowID)
			if err != nil {
				return nil, err
			}
			graph = wf.graph
		case params.Spec != nil:
			g, err := s.compiler.Compile(ctx, params.Spec)
			if err != nil {
				return nil, err
			}
			graph = g
		default:
			return nil, mcperrors.NewInvalidArgumentError("workflows/execute requires workflow_id or spec", nil)
		}

		current := sess()
		engine := workflow.NewEngine(workflow.CatalogRunner(s.bridge.Catalog, current.ID), s.engine.MaxFanOut)

		// A reactive graph registers its triggers instead of running once;
		// firings execute under the server's lifetime, not this request's.
		if len(graph.Triggers) > 0 {
			if s.bus == nil {
				return nil, mcperrors.NewInternalError("reactive workflows require an event bus", nil)
			}
			stop, err := engine.RegisterTriggers(s.runContext(), s.bus, graph, params.Context)
			if err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.triggerStops = append(s.triggerStops, stop)
			s.mu.Unlock()
			return map[string]any{"registered": true, "triggers": len(graph.Triggers)}, nil
		}

		result, events, err := engine.Execute(ctx, graph, params.Context)
		if err != nil {
			return nil, err
		}
		if events != nil {
			requestID, _ := session.RequestIDFromContext(ctx)
			go streamWorkflowEvents(current, requestID, events)
		}
		return result, nil
	}
}

// streamWorkflowEvents forwards a streaming workflow's progress as
// notifications/workflow/event notifications until the event channel
// closes.
func streamWorkflowEvents(notifier bridge.Notifier, requestID any, events <-chan workflow.Event) {
	for ev := range events {
		payload := map[string]any{
			"requestId": requestID,
			"kind":      ev.Kind,
			"step":      ev.Step,
		}
		if ev.Err != nil {
			payload["error"] = ev.Err.Error()
		}
		notifier.Notify("notifications/workflow/event", payload)
	}
}

func (s *Server) handleWorkflowsTemplates(entry *connEntry) session.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		if _, err := s.evaluate(ctx, entry, "workflows:templates", nil); err != nil {
			return nil, err
		}
		if s.compiler.Templates == nil {
			return map[string]any{"templates": []string{}}, nil
		}
		names, err := s.compiler.Templates.List(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"templates": names}, nil
	}
}

func (s *Server) handleSamplingCreateMessage(entry *connEntry) session.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params struct {
			Messages     []catalog.SamplingMessage `json:"messages"`
			SystemPrompt string                    `json:"systemPrompt,omitempty"`
			MaxTokens    int                        `json:"maxTokens,omitempty"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, mcperrors.NewInvalidArgumentError("malformed sampling/createMessage params", err)
		}
		if _, err := s.evaluate(ctx, entry, "sampling:createMessage", nil); err != nil {
			return nil, err
		}

		sampler, ok := s.bridge.Catalog.(catalog.Sampler)
		if !ok {
			return nil, mcperrors.New(mcperrors.ErrMethodNotFound, "sampling/createMessage is not supported by this catalog", nil)
		}
		result, err := sampler.CreateMessage(ctx, params.Messages, params.SystemPrompt, params.MaxTokens)
		if err != nil {
			return nil, mcperrors.NewInternalError("sampling/createMessage failed", err)
		}
		return result, nil
	}
}
