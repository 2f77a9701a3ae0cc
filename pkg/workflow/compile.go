// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tool-mesh/mcpcore/pkg/catalog"
	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

// ToolResolver reports whether toolName exists in the catalog, so Compile
// can fail at compile time rather than at execution time.
type ToolResolver func(ctx context.Context, toolName string) bool

// Compiler compiles WorkflowSpecs into Graphs.
type Compiler struct {
	Resolver  ToolResolver
	Templates catalog.TemplateRegistry
}

// NewCompiler constructs a Compiler backed by a tool resolver and an
// optional template registry (required only for `template` specs).
func NewCompiler(resolver ToolResolver, templates catalog.TemplateRegistry) *Compiler {
	return &Compiler{Resolver: resolver, Templates: templates}
}

// Compile turns spec into an executable, acyclic Graph.
func (c *Compiler) Compile(ctx context.Context, spec *Spec) (*Graph, error) {
	var g *Graph
	var err error
	switch spec.Type {
	case TypeSequential:
		g, err = c.compileSequential(ctx, spec)
	case TypeParallel:
		g, err = c.compileParallel(ctx, spec)
	case TypeConditional:
		g, err = c.compileConditional(ctx, spec)
	case TypeLoop:
		g, err = c.compileLoop(ctx, spec)
	case TypeReactive:
		g, err = c.compileReactive(ctx, spec)
	case TypeTemplate:
		g, err = c.compileTemplate(ctx, spec)
	default:
		return nil, mcperrors.NewInvalidArgumentError(fmt.Sprintf("unknown workflow spec type %q", spec.Type), nil)
	}
	if err != nil {
		return nil, err
	}
	if err := validateAcyclic(g); err != nil {
		return nil, err
	}
	return g, nil
}

// validateAcyclic rejects cyclic graphs via a depth-first check over
// Deps.
func validateAcyclic(g *Graph) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.Steps))
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return mcperrors.NewInvalidArgumentError("workflow graph contains a cycle at step "+name, nil)
		}
		state[name] = visiting
		step, ok := g.Steps[name]
		if !ok {
			return mcperrors.NewInvalidArgumentError("workflow graph references unknown step "+name, nil)
		}
		for _, dep := range step.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for name := range g.Steps {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) checkTool(ctx context.Context, tool string) error {
	if c.Resolver == nil {
		return nil
	}
	if !c.Resolver(ctx, tool) {
		return mcperrors.New(mcperrors.ErrInvalidParams, fmt.Sprintf("tool %q does not resolve in the catalog", tool), nil)
	}
	return nil
}

func newGraph(spec *Spec) *Graph {
	return &Graph{Streaming: spec.Streaming, Timeout: spec.Timeout, Context: spec.Context}
}

// compileSequential chains Steps[i] -> deps=[Steps[i-1]].
func (c *Compiler) compileSequential(ctx context.Context, spec *Spec) (*Graph, error) {
	if len(spec.Steps) == 0 {
		return nil, mcperrors.NewInvalidArgumentError("sequential workflow requires at least one step", nil)
	}
	g := newGraph(spec)
	var prev string
	for i, call := range spec.Steps {
		if err := c.checkTool(ctx, call.Tool); err != nil {
			return nil, err
		}
		name := stepName(call, i)
		deps := []string{}
		if prev != "" {
			deps = []string{prev}
		}
		g.addStep(&Step{Name: name, Tool: call.Tool, Params: call.Params, Deps: deps})
		prev = name
	}
	g.ResultStep = prev
	return g, nil
}

// compileParallel gives every step deps=[]; an optional merge step
// depends on all of them.
func (c *Compiler) compileParallel(ctx context.Context, spec *Spec) (*Graph, error) {
	if len(spec.Steps) == 0 {
		return nil, mcperrors.NewInvalidArgumentError("parallel workflow requires at least one step", nil)
	}
	g := newGraph(spec)
	names := make([]string, 0, len(spec.Steps))
	for i, call := range spec.Steps {
		if err := c.checkTool(ctx, call.Tool); err != nil {
			return nil, err
		}
		name := stepName(call, i)
		g.addStep(&Step{Name: name, Tool: call.Tool, Params: call.Params})
		names = append(names, name)
	}
	if spec.MergeStep != nil {
		if err := c.checkTool(ctx, spec.MergeStep.Tool); err != nil {
			return nil, err
		}
		mergeName := "merge"
		if spec.MergeStep.Name != "" {
			mergeName = spec.MergeStep.Name
		}
		g.addStep(&Step{Name: mergeName, Tool: spec.MergeStep.Tool, Params: spec.MergeStep.Params, Deps: names, IsMerge: true})
		g.ResultStep = mergeName
	} else {
		// With no merge step, the result is the full set of parallel
		// outputs; the executor returns a map keyed by step name.
		g.ResultStep = ""
	}
	return g, nil
}

// compileConditional wires a no-deps condition step, a success chain
// depending on its truthy branch, a failure chain on the falsy branch, and
// a synthetic merge when both chains exist.
func (c *Compiler) compileConditional(ctx context.Context, spec *Spec) (*Graph, error) {
	if spec.Condition == nil {
		return nil, mcperrors.NewInvalidArgumentError("conditional workflow requires a condition step", nil)
	}
	if err := c.checkTool(ctx, spec.Condition.Tool); err != nil {
		return nil, err
	}
	g := newGraph(spec)
	condName := "condition"
	g.addStep(&Step{Name: condName, Tool: spec.Condition.Tool, Params: spec.Condition.Params, IsCondition: true})
	g.ConditionStep = condName

	successTail, err := c.compileChain(ctx, g, spec.Success, condName, "success")
	if err != nil {
		return nil, err
	}
	failureTail, err := c.compileChain(ctx, g, spec.Failure, condName, "failure")
	if err != nil {
		return nil, err
	}

	switch {
	case successTail != "" && failureTail != "":
		g.addStep(&Step{
			Name: "merge", Tool: "", Params: nil,
			Deps: []string{successTail, failureTail}, IsMerge: true,
		})
		g.ResultStep = "merge"
	case successTail != "":
		g.ResultStep = successTail
	case failureTail != "":
		g.ResultStep = failureTail
	default:
		g.ResultStep = condName
	}
	return g, nil
}

func (c *Compiler) compileChain(ctx context.Context, g *Graph, calls []ToolCall, firstDep, branch string) (string, error) {
	if len(calls) == 0 {
		return "", nil
	}
	prev := firstDep
	var last string
	for i, call := range calls {
		if err := c.checkTool(ctx, call.Tool); err != nil {
			return "", err
		}
		name := branch + fmt.Sprintf("%d", i)
		if call.Name != "" {
			name = branch + "_" + call.Name
		}
		g.addStep(&Step{Name: name, Tool: call.Tool, Params: call.Params, Deps: []string{prev}, Branch: branch})
		prev = name
		last = name
	}
	return last, nil
}

// compileLoop instantiates an independent chain per item; an optional
// aggregator depends on every per-item terminal.
func (c *Compiler) compileLoop(ctx context.Context, spec *Spec) (*Graph, error) {
	if len(spec.ItemChain) == 0 {
		return nil, mcperrors.NewInvalidArgumentError("loop workflow requires an item_chain", nil)
	}
	g := newGraph(spec)
	terminals := make([]string, 0, len(spec.Items))

	for idx, item := range spec.Items {
		var prev string
		for ci, call := range spec.ItemChain {
			if err := c.checkTool(ctx, call.Tool); err != nil {
				return nil, err
			}
			name := fmt.Sprintf("item%d_step%d", idx, ci)
			params := bindLoopItem(call.Params, item)
			deps := []string{}
			if prev != "" {
				deps = []string{prev}
			}
			g.addStep(&Step{Name: name, Tool: call.Tool, Params: params, Deps: deps})
			prev = name
		}
		if prev != "" {
			terminals = append(terminals, prev)
		}
	}

	if spec.Aggregator != nil {
		if err := c.checkTool(ctx, spec.Aggregator.Tool); err != nil {
			return nil, err
		}
		g.addStep(&Step{Name: "aggregator", Tool: spec.Aggregator.Tool, Params: spec.Aggregator.Params, Deps: terminals, IsMerge: true})
		g.ResultStep = "aggregator"
	}
	return g, nil
}

func bindLoopItem(params map[string]any, item any) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["item"] = item
	return out
}

// compileReactive compiles the base workflow and attaches its triggers;
// the execution engine registers those triggers with an event bus rather
// than running the base graph immediately.
func (c *Compiler) compileReactive(ctx context.Context, spec *Spec) (*Graph, error) {
	if spec.Base == nil {
		return nil, mcperrors.NewInvalidArgumentError("reactive workflow requires a base spec", nil)
	}
	g, err := c.Compile(ctx, spec.Base)
	if err != nil {
		return nil, err
	}
	g.Triggers = spec.Triggers
	return g, nil
}

// compileTemplate looks up a named spec, substitutes `{{var}}`
// placeholders from Params, and recompiles the result.
func (c *Compiler) compileTemplate(ctx context.Context, spec *Spec) (*Graph, error) {
	if c.Templates == nil {
		return nil, mcperrors.NewInternalError("no template registry configured", nil)
	}
	tmpl, err := c.Templates.Get(ctx, spec.Template)
	if err != nil {
		return nil, mcperrors.New(mcperrors.ErrInvalidParams, fmt.Sprintf("unknown workflow template %q", spec.Template), err)
	}
	instantiated, err := c.Templates.Instantiate(ctx, tmpl, spec.Params)
	if err != nil {
		return nil, mcperrors.NewInternalError("failed to instantiate workflow template", err)
	}

	raw, err := json.Marshal(instantiated)
	if err != nil {
		return nil, mcperrors.NewInternalError("failed to marshal instantiated template", err)
	}
	var resolved Spec
	if err := json.Unmarshal(raw, &resolved); err != nil {
		return nil, mcperrors.New(mcperrors.ErrInvalidParams, "instantiated template is not a valid workflow spec", err)
	}
	return c.Compile(ctx, &resolved)
}

func stepName(call ToolCall, index int) string {
	if call.Name != "" {
		return call.Name
	}
	return fmt.Sprintf("%s_%d", call.Tool, index)
}
