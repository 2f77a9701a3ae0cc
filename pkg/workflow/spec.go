// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package workflow compiles a declarative workflow spec (sequential /
// parallel / conditional / loop / reactive / template) into an executable
// step DAG and runs it with streaming progress and a shared,
// per-execution context.
package workflow

import "time"

// Type discriminates the WorkflowSpec union.
type Type string

// Supported workflow spec types.
const (
	TypeSequential  Type = "sequential"
	TypeParallel    Type = "parallel"
	TypeConditional Type = "conditional"
	TypeLoop        Type = "loop"
	TypeReactive    Type = "reactive"
	TypeTemplate    Type = "template"
)

// ToolCall is one `{tool, params}` pair, the atomic unit every spec body
// is built from. A multi-tool operation is exactly a Sequential spec over
// a list of these.
type ToolCall struct {
	Name   string         `json:"name,omitempty"`
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

// Trigger is a reactive workflow's event binding.
type Trigger struct {
	Event     string        `json:"event"`
	Condition string        `json:"condition,omitempty"`
	Delay     time.Duration `json:"delay,omitempty"`
}

// Spec is the declarative input to Compile.
type Spec struct {
	Type Type `json:"type"`

	// sequential / parallel body.
	Steps     []ToolCall `json:"steps,omitempty"`
	MergeStep *ToolCall  `json:"merge_step,omitempty"`

	// conditional body.
	Condition *ToolCall  `json:"condition,omitempty"`
	Success   []ToolCall `json:"success,omitempty"`
	Failure   []ToolCall `json:"failure,omitempty"`

	// loop body.
	Items      []any      `json:"items,omitempty"`
	ItemChain  []ToolCall `json:"item_chain,omitempty"`
	Aggregator *ToolCall  `json:"aggregator,omitempty"`

	// reactive body.
	Base     *Spec     `json:"base,omitempty"`
	Triggers []Trigger `json:"triggers,omitempty"`

	// template body.
	Template string         `json:"template,omitempty"`
	Params   map[string]any `json:"params,omitempty"`

	Streaming bool           `json:"streaming,omitempty"`
	Timeout   time.Duration  `json:"timeout,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Step is one node of a compiled WorkflowGraph.
type Step struct {
	Name   string
	Tool   string
	Params map[string]any
	Deps   []string

	// IsCondition marks the step whose boolean-ish output selects which
	// branch of a conditional spec runs.
	IsCondition bool
	// IsMerge marks a synthetic merge step that receives every
	// predecessor's output keyed by predecessor name, rather than a
	// single bound `input`.
	IsMerge bool
	// Branch, set on steps compiled from a conditional's success/failure
	// chains, records which branch this step belongs to.
	Branch string
}

// Graph is the compiled DAG a WorkflowSpec reduces to.
type Graph struct {
	Steps map[string]*Step
	// Order lists step names in the order they were added, used only to
	// make iteration deterministic for tests; execution derives the real
	// topological order from Deps at run time.
	Order []string
	// ResultStep names the step whose output is the overall workflow
	// result.
	ResultStep string
	// ConditionStep names the condition step of a conditional spec;
	// execution uses its outcome to gate the success/failure branches.
	ConditionStep string
	Streaming     bool
	Timeout       time.Duration
	Context       map[string]any

	// Triggers is set only for a compiled reactive workflow: the base
	// graph's steps above run once per firing, gated by these bindings.
	Triggers []Trigger
}

func (g *Graph) addStep(s *Step) {
	if g.Steps == nil {
		g.Steps = make(map[string]*Step)
	}
	g.Steps[s.Name] = s
	g.Order = append(g.Order, s.Name)
}
