// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package democatalog is a minimal in-memory catalog.ToolCatalog used only
// to let cmd/mcpcored boot and serve real traffic without an external tool
// backend wired in. This package exists for cmd/mcpcored, not as a
// reference implementation of the catalog contract.
package democatalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tool-mesh/mcpcore/pkg/catalog"
)

// Catalog is a fixed set of tools, resources, and prompts held in memory.
type Catalog struct {
	mu    sync.RWMutex
	notes map[string]string
}

// New constructs a Catalog seeded with a handful of demonstration tools.
func New() *Catalog {
	return &Catalog{
		notes: map[string]string{
			"example": "mcpcore demo note",
		},
	}
}

var tools = []catalog.ToolDescriptor{
	{
		Name:        "echo",
		Description: "Returns its input text unchanged.",
		Category:    "demo",
		Version:     "1.0.0",
		Parameters: []catalog.ParamDescriptor{
			{Name: "text", Type: catalog.ParamString, Description: "text to echo", Required: true,
				Constraints: catalog.ParamConstraints{MaxLength: intPtr(4096)}},
		},
		Hints: catalog.ExecutionHints{MaxExecutionTime: 5},
	},
	{
		Name:        "sum",
		Description: "Adds a list of numbers.",
		Category:    "demo",
		Version:     "1.0.0",
		Parameters: []catalog.ParamDescriptor{
			{Name: "values", Type: catalog.ParamArray, Description: "numbers to add", Required: true},
		},
		Hints: catalog.ExecutionHints{MaxExecutionTime: 5},
	},
	{
		Name:        "note_append",
		Description: "Appends text to the named note, stored in-memory for the process lifetime.",
		Category:    "demo",
		Version:     "1.0.0",
		Parameters: []catalog.ParamDescriptor{
			{Name: "name", Type: catalog.ParamString, Description: "note name", Required: true},
			{Name: "text", Type: catalog.ParamString, Description: "text to append", Required: true},
		},
		Hints: catalog.ExecutionHints{SupportsStreaming: true, MaxExecutionTime: 5},
	},
}

func intPtr(v int) *int { return &v }

// ListTools implements catalog.ToolCatalog.
func (c *Catalog) ListTools(context.Context) ([]catalog.ToolDescriptor, error) {
	return append([]catalog.ToolDescriptor(nil), tools...), nil
}

// GetTool implements catalog.ToolCatalog.
func (c *Catalog) GetTool(_ context.Context, name string) (*catalog.ToolDescriptor, error) {
	for i := range tools {
		if tools[i].Name == name {
			t := tools[i]
			return &t, nil
		}
	}
	return nil, &catalog.NotFound{Name: name}
}

// ExecuteTool implements catalog.ToolCatalog.
func (c *Catalog) ExecuteTool(_ context.Context, name string, params map[string]any, execCtx catalog.ExecContext) (*catalog.Result, error) {
	start := time.Now()
	if execCtx.ProgressReporter != nil {
		execCtx.ProgressReporter(0)
	}
	switch name {
	case "echo":
		text, _ := params["text"].(string)
		if execCtx.ProgressReporter != nil {
			execCtx.ProgressReporter(1)
		}
		return &catalog.Result{Text: text, ExecutionTimeMS: time.Since(start).Milliseconds()}, nil
	case "sum":
		total := 0.0
		for _, v := range asSlice(params["values"]) {
			switch n := v.(type) {
			case float64:
				total += n
			case int:
				total += float64(n)
			}
		}
		if execCtx.ProgressReporter != nil {
			execCtx.ProgressReporter(1)
		}
		return &catalog.Result{JSON: map[string]any{"sum": total}, ExecutionTimeMS: time.Since(start).Milliseconds()}, nil
	case "note_append":
		noteName, _ := params["name"].(string)
		text, _ := params["text"].(string)
		c.mu.Lock()
		c.notes[noteName] = c.notes[noteName] + text
		c.mu.Unlock()
		if execCtx.ProgressReporter != nil {
			execCtx.ProgressReporter(1)
		}
		return &catalog.Result{Text: "appended", ExecutionTimeMS: time.Since(start).Milliseconds()}, nil
	default:
		return nil, &catalog.NotFound{Name: name}
	}
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

// ListResources implements catalog.ToolCatalog, exposing every in-memory
// note as a memory://note/<name> resource.
func (c *Catalog) ListResources(context.Context) ([]catalog.ResourceDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.notes))
	for name := range c.notes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]catalog.ResourceDescriptor, 0, len(names))
	for _, name := range names {
		out = append(out, catalog.ResourceDescriptor{
			URI:      fmt.Sprintf("memory://note/%s", name),
			Name:     name,
			MimeType: "text/plain",
		})
	}
	return out, nil
}

// ReadResource implements catalog.ToolCatalog.
func (c *Catalog) ReadResource(_ context.Context, uri string) (*catalog.Result, error) {
	name, ok := strings.CutPrefix(uri, "memory://note/")
	if !ok {
		return nil, &catalog.NotFound{Name: uri}
	}
	c.mu.RLock()
	text, ok := c.notes[name]
	c.mu.RUnlock()
	if !ok {
		return nil, &catalog.NotFound{Name: uri}
	}
	return &catalog.Result{Text: text}, nil
}

// ListPrompts implements catalog.ToolCatalog.
func (c *Catalog) ListPrompts(context.Context) ([]catalog.PromptDescriptor, error) {
	return []catalog.PromptDescriptor{
		{
			Name:        "greeting",
			Description: "A friendly greeting prompt.",
			Arguments: []catalog.ParamDescriptor{
				{Name: "name", Type: catalog.ParamString, Required: true},
			},
		},
	}, nil
}

// GetPrompt implements catalog.ToolCatalog.
func (c *Catalog) GetPrompt(_ context.Context, name string, args map[string]any) (*catalog.Result, error) {
	if name != "greeting" {
		return nil, &catalog.NotFound{Name: name}
	}
	who, _ := args["name"].(string)
	if who == "" {
		who = "there"
	}
	return &catalog.Result{Text: fmt.Sprintf("Hello, %s!", who)}, nil
}
