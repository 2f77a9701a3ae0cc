// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus is a minimal in-memory catalog.EventBus for trigger tests.
type fakeBus struct {
	mu   sync.Mutex
	subs map[string][]chan any
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string][]chan any)}
}

func (b *fakeBus) Publish(_ context.Context, topic string, msg any) error {
	b.mu.Lock()
	targets := append([]chan any(nil), b.subs[topic]...)
	b.mu.Unlock()
	for _, ch := range targets {
		ch <- msg
	}
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, topic string) (<-chan any, func(), error) {
	ch := make(chan any, 16)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		kept := b.subs[topic][:0]
		for _, c := range b.subs[topic] {
			if c != ch {
				kept = append(kept, c)
			}
		}
		b.subs[topic] = kept
	}
	return ch, cancel, nil
}

func compileReactive(t *testing.T, trigger Trigger) *Graph {
	t.Helper()
	c := NewCompiler(allowAll, nil)
	g, err := c.Compile(context.Background(), &Spec{
		Type:     TypeReactive,
		Base:     &Spec{Type: TypeSequential, Steps: []ToolCall{{Tool: "notify"}}},
		Triggers: []Trigger{trigger},
	})
	require.NoError(t, err)
	require.Len(t, g.Triggers, 1)
	return g
}

func countingEngine(runs *int, mu *sync.Mutex) *Engine {
	return NewEngine(func(context.Context, string, map[string]any) (any, error) {
		mu.Lock()
		*runs++
		mu.Unlock()
		return "ok", nil
	}, 2)
}

func runCount(runs *int, mu *sync.Mutex) func() int {
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return *runs
	}
}

func TestRegisterTriggersExecutesBaseOnEvent(t *testing.T) {
	t.Parallel()
	var runs int
	var mu sync.Mutex
	e := countingEngine(&runs, &mu)
	g := compileReactive(t, Trigger{Event: "file_changed"})
	bus := newFakeBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop, err := e.RegisterTriggers(ctx, bus, g, nil)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, bus.Publish(ctx, "mcp:events:file_changed", map[string]any{"path": "/tmp/x"}))

	count := runCount(&runs, &mu)
	require.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRegisterTriggersDebouncesBursts(t *testing.T) {
	t.Parallel()
	var runs int
	var mu sync.Mutex
	e := countingEngine(&runs, &mu)
	g := compileReactive(t, Trigger{Event: "file_changed", Delay: 50 * time.Millisecond})
	bus := newFakeBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop, err := e.RegisterTriggers(ctx, bus, g, nil)
	require.NoError(t, err)
	defer stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, "mcp:events:file_changed", map[string]any{"n": i}))
	}

	count := runCount(&runs, &mu)
	// The burst collapses into one run after the quiet window.
	require.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, count())
}

func TestRegisterTriggersFiltersByCondition(t *testing.T) {
	t.Parallel()
	var runs int
	var mu sync.Mutex
	e := countingEngine(&runs, &mu)
	g := compileReactive(t, Trigger{Event: "deploy", Condition: "env.production"})
	bus := newFakeBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop, err := e.RegisterTriggers(ctx, bus, g, nil)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, bus.Publish(ctx, "mcp:events:deploy", map[string]any{"env": map[string]any{"production": false}}))
	require.NoError(t, bus.Publish(ctx, "mcp:events:deploy", map[string]any{"env": map[string]any{"production": true}}))

	count := runCount(&runs, &mu)
	require.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, count())
}

func TestRegisterTriggersRequiresBus(t *testing.T) {
	t.Parallel()
	var runs int
	var mu sync.Mutex
	e := countingEngine(&runs, &mu)
	g := compileReactive(t, Trigger{Event: "x"})

	_, err := e.RegisterTriggers(context.Background(), nil, g, nil)
	require.Error(t, err)
}

func TestRegisterTriggersRejectsTriggerlessGraph(t *testing.T) {
	t.Parallel()
	var runs int
	var mu sync.Mutex
	e := countingEngine(&runs, &mu)
	c := NewCompiler(allowAll, nil)
	g, err := c.Compile(context.Background(), &Spec{Type: TypeSequential, Steps: []ToolCall{{Tool: "a"}}})
	require.NoError(t, err)

	_, err = e.RegisterTriggers(context.Background(), newFakeBus(), g, nil)
	require.Error(t, err)
}
