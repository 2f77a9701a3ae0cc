// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tool-mesh/mcpcore/pkg/catalog"
	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
	"github.com/tool-mesh/mcpcore/pkg/logger"
)

// EventTopicPrefix is the bus topic namespace reactive triggers listen on:
// a trigger on event "file_changed" subscribes to "mcp:events:file_changed".
const EventTopicPrefix = "mcp:events:"

// RegisterTriggers binds a compiled reactive graph's triggers to bus: each
// trigger subscribes to its event topic and, on firing, executes the base
// graph. Firing is debounced by the trigger's delay — a burst of events
// inside the delay window collapses into one execution after the window
// closes. The returned stop function cancels every subscription; ctx
// cancellation does the same.
func (e *Engine) RegisterTriggers(ctx context.Context, bus catalog.EventBus, g *Graph, callerContext map[string]any) (func(), error) {
	if len(g.Triggers) == 0 {
		return nil, mcperrors.NewInvalidArgumentError("graph has no triggers to register", nil)
	}
	if bus == nil {
		return nil, mcperrors.NewInternalError("no event bus configured for reactive workflows", nil)
	}

	cancels := make([]func(), 0, len(g.Triggers))
	stop := func() {
		for _, c := range cancels {
			c()
		}
	}

	for _, tr := range g.Triggers {
		ch, cancel, err := bus.Subscribe(ctx, EventTopicPrefix+tr.Event)
		if err != nil {
			stop()
			return nil, mcperrors.NewInternalError("failed to subscribe trigger event "+tr.Event, err)
		}
		cancels = append(cancels, cancel)
		go e.runTrigger(ctx, ch, tr, g, callerContext)
	}
	return stop, nil
}

// runTrigger drains one trigger's event channel until it closes or ctx is
// cancelled. With no delay the base graph runs once per matching event;
// with a delay, events reset a debounce timer and the graph runs once per
// quiet window.
func (e *Engine) runTrigger(ctx context.Context, ch <-chan any, tr Trigger, g *Graph, callerContext map[string]any) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !triggerMatches(tr, msg) {
				continue
			}
			if tr.Delay <= 0 {
				e.fireTrigger(ctx, tr, g, callerContext)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(tr.Delay)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(tr.Delay)
			}
		case <-timerC:
			timerC = nil
			timer = nil
			e.fireTrigger(ctx, tr, g, callerContext)
		}
	}
}

func (e *Engine) fireTrigger(ctx context.Context, tr Trigger, g *Graph, callerContext map[string]any) {
	if _, _, err := e.Execute(ctx, g, callerContext); err != nil {
		logger.Warnf("workflow: trigger %s execution failed: %v", tr.Event, err)
	}
}

// triggerMatches evaluates a trigger's optional condition against the
// event payload: the condition is a gjson path into the payload whose
// resolved value must be truthy. An empty condition always matches; a
// condition over an unencodable payload never does.
func triggerMatches(tr Trigger, msg any) bool {
	if tr.Condition == "" {
		return true
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	v := gjson.GetBytes(raw, tr.Condition)
	if !v.Exists() {
		return false
	}
	switch v.Type {
	case gjson.False, gjson.Null:
		return false
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	default:
		return true
	}
}
