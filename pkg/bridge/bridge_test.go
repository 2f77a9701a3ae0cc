// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tool-mesh/mcpcore/pkg/catalog"
	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

type fakeCatalog struct {
	tools     []catalog.ToolDescriptor
	execArgs  map[string]any
	execErr   error
	resources []catalog.ResourceDescriptor
	prompts   []catalog.PromptDescriptor
}

func (f *fakeCatalog) ListTools(context.Context) ([]catalog.ToolDescriptor, error) { return f.tools, nil }

func (f *fakeCatalog) GetTool(_ context.Context, name string) (*catalog.ToolDescriptor, error) {
	for _, t := range f.tools {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, &catalog.NotFound{Name: name}
}

func (f *fakeCatalog) ExecuteTool(_ context.Context, _ string, params map[string]any, execCtx catalog.ExecContext) (*catalog.Result, error) {
	f.execArgs = params
	if execCtx.ProgressReporter != nil {
		execCtx.ProgressReporter(0.5)
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &catalog.Result{Text: "ok"}, nil
}

func (f *fakeCatalog) ListResources(context.Context) ([]catalog.ResourceDescriptor, error) {
	return f.resources, nil
}

func (f *fakeCatalog) ReadResource(_ context.Context, uri string) (*catalog.Result, error) {
	for _, r := range f.resources {
		if r.URI == uri {
			return &catalog.Result{Text: "resource-body"}, nil
		}
	}
	return nil, &catalog.NotFound{Name: uri}
}

func (f *fakeCatalog) ListPrompts(context.Context) ([]catalog.PromptDescriptor, error) { return f.prompts, nil }

func (f *fakeCatalog) GetPrompt(_ context.Context, name string, _ map[string]any) (*catalog.Result, error) {
	for _, p := range f.prompts {
		if p.Name == name {
			return &catalog.Result{Text: "prompt-body"}, nil
		}
	}
	return nil, &catalog.NotFound{Name: name}
}

type recordingNotifier struct {
	method string
	params any
}

func (r *recordingNotifier) Notify(method string, params any) {
	r.method = method
	r.params = params
}

func testTool() catalog.ToolDescriptor {
	return catalog.ToolDescriptor{
		Name:        "echo",
		Description: "echoes input",
		Parameters: []catalog.ParamDescriptor{
			{Name: "message", Type: catalog.ParamString, Required: true},
			{Name: "count", Type: catalog.ParamInteger, Default: float64(1)},
		},
	}
}

func TestListTools(t *testing.T) {
	t.Parallel()
	b := New(&fakeCatalog{tools: []catalog.ToolDescriptor{testTool()}})
	tools, err := b.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Contains(t, tools[0].InputSchema.Required, "message")
}

func TestCallToolFillsDefaultsAndCoerces(t *testing.T) {
	t.Parallel()
	fc := &fakeCatalog{tools: []catalog.ToolDescriptor{testTool()}}
	b := New(fc)

	res, err := b.CallTool(context.Background(), "sess-1", nil, CallParams{
		Name:      "echo",
		Arguments: map[string]any{"message": "hi"},
	}, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content[0].Text)
	assert.Equal(t, "hi", fc.execArgs["message"])
	assert.Equal(t, float64(1), fc.execArgs["count"])
}

func TestCallToolMissingRequiredParam(t *testing.T) {
	t.Parallel()
	b := New(&fakeCatalog{tools: []catalog.ToolDescriptor{testTool()}})
	_, err := b.CallTool(context.Background(), "sess-1", nil, CallParams{Name: "echo", Arguments: map[string]any{}}, "req-1")
	require.Error(t, err)
	assert.True(t, mcperrors.Is(err, mcperrors.ErrInvalidParams))
}

func TestCallToolReportsProgress(t *testing.T) {
	t.Parallel()
	b := New(&fakeCatalog{tools: []catalog.ToolDescriptor{testTool()}})
	notifier := &recordingNotifier{}

	_, err := b.CallTool(context.Background(), "sess-1", notifier, CallParams{
		Name:      "echo",
		Arguments: map[string]any{"message": "hi"},
		Progress:  true,
	}, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "notifications/tool/progress", notifier.method)
}

func TestCallToolUnknownToolFails(t *testing.T) {
	t.Parallel()
	b := New(&fakeCatalog{})
	_, err := b.CallTool(context.Background(), "sess-1", nil, CallParams{Name: "nope"}, "req-1")
	require.Error(t, err)
	assert.True(t, mcperrors.Is(err, mcperrors.ErrToolExecutionFailed))
}

func TestReadResourceInvalidURI(t *testing.T) {
	t.Parallel()
	b := New(&fakeCatalog{})
	_, err := b.ReadResource(context.Background(), "not-a-uri")
	require.Error(t, err)
	assert.True(t, mcperrors.Is(err, mcperrors.ErrResourceNotFound))
}

func TestReadResourceFound(t *testing.T) {
	t.Parallel()
	b := New(&fakeCatalog{resources: []catalog.ResourceDescriptor{{URI: "workspace://file/1", Name: "f1"}}})
	res, err := b.ReadResource(context.Background(), "workspace://file/1")
	require.NoError(t, err)
	assert.Equal(t, "resource-body", res.Content[0].Text)
}

func TestGetPromptNotFound(t *testing.T) {
	t.Parallel()
	b := New(&fakeCatalog{})
	_, err := b.GetPrompt(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, mcperrors.Is(err, mcperrors.ErrResourceNotFound))
}

func TestSanitizeMessage(t *testing.T) {
	t.Parallel()
	got := SanitizeMessage(`failed reading /etc/passwd from 10.0.0.5`)
	assert.Contains(t, got, "/***")
	assert.Contains(t, got, "*.*.*.*")
	assert.NotContains(t, got, "/etc/passwd")
	assert.NotContains(t, got, "10.0.0.5")
}
