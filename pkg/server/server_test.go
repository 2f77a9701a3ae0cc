// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tool-mesh/mcpcore/pkg/bridge"
	"github.com/tool-mesh/mcpcore/pkg/catalog"
	"github.com/tool-mesh/mcpcore/pkg/catalog/mocks"
	"github.com/tool-mesh/mcpcore/pkg/registry"
	"github.com/tool-mesh/mcpcore/pkg/security"
	"github.com/tool-mesh/mcpcore/pkg/security/audit"
	"github.com/tool-mesh/mcpcore/pkg/security/auth"
	"github.com/tool-mesh/mcpcore/pkg/security/authz"
	"github.com/tool-mesh/mcpcore/pkg/security/ipacl"
	"github.com/tool-mesh/mcpcore/pkg/security/ratelimit"
	"github.com/tool-mesh/mcpcore/pkg/session"
	"github.com/tool-mesh/mcpcore/pkg/transport"
	"github.com/tool-mesh/mcpcore/pkg/workflow"
)

const testAPIKey = "0123456789abcdef0123456789abcdef"

// fakeTransport is an in-memory transport.Port the tests drive by pushing
// events and reading back what the server sent or closed.
type fakeTransport struct {
	events chan transport.Event

	mu     sync.Mutex
	sent   map[string][][]byte
	closed map[string]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan transport.Event, 16),
		sent:   make(map[string][][]byte),
		closed: make(map[string]string),
	}
}

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) Send(connID string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[connID] = append(f.sent[connID], append([]byte(nil), raw...))
	return nil
}

func (f *fakeTransport) Recv(context.Context, string, time.Duration) ([]byte, error) {
	return nil, fmt.Errorf("fakeTransport is push-only")
}

func (f *fakeTransport) Close(connID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[connID] = reason
	return nil
}

func (f *fakeTransport) Shutdown(context.Context) error { return nil }

func (f *fakeTransport) connect(connID string) {
	f.events <- transport.Event{Kind: transport.EventConnected, ConnID: connID, Info: transport.ConnInfo{ConnID: connID, PeerAddr: "10.0.0.1"}}
}

func (f *fakeTransport) push(connID, raw string) {
	f.events <- transport.Event{Kind: transport.EventMessage, ConnID: connID, Raw: []byte(raw)}
}

func (f *fakeTransport) disconnect(connID string) {
	f.events <- transport.Event{Kind: transport.EventDisconnected, ConnID: connID, Reason: "test disconnect"}
}

func (f *fakeTransport) messages(connID string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent[connID]))
	for _, raw := range f.sent[connID] {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) closeReason(connID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reason, ok := f.closed[connID]
	return reason, ok
}

func newTestPipeline() *security.Pipeline {
	authn := auth.New([]byte("server-test-secret"), time.Hour, func(string) []string {
		return []string{"*"}
	})
	rl := ratelimit.New(
		ratelimit.BucketConfig{RefillRate: 1000, Burst: 1000},
		ratelimit.BucketConfig{RefillRate: 1000, Burst: 1000},
		map[string]float64{"normal": 1.0},
		func(string) int { return 1 },
	)
	return &security.Pipeline{
		Authn:                  authn,
		IPACL:                  ipacl.New(ipacl.Config{AllowByDefault: true}),
		RateLim:                rl,
		Authz:                  authz.New(),
		AuditLog:               audit.NewLogger(nil),
		Failures:               audit.NewFailureWindow(time.Minute),
		MaxFailuresBeforeBlock: 5,
		BlockDuration:          time.Minute,
	}
}

func newTestServer(t *testing.T, cat catalog.ToolCatalog, maxSessions int) (*Server, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	compiler := workflow.NewCompiler(func(context.Context, string) bool { return true }, nil)
	engine := workflow.NewEngine(workflow.CatalogRunner(cat, ""), 4)
	srv := New(Config{
		Info:        ServerInfo{Name: "mcpcore-test", Version: "0.0.1"},
		MaxSessions: maxSessions,
		SessionConfig: session.Config{
			MaxConcurrentRequests: 10,
			RequestTimeout:        5 * time.Second,
		},
	}, ft, newTestPipeline(), bridge.New(cat), compiler, engine, nil, registry.NewClients(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv, ft
}

func initializeJSON(id int, version string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"initialize","params":{"protocolVersion":%q,"clientInfo":{"name":"test","version":"0.0"},"auth":{"apiKey":%q}}}`, id, version, testAPIKey)
}

func waitForMessages(t *testing.T, ft *fakeTransport, connID string, n int) []map[string]any {
	t.Helper()
	var msgs []map[string]any
	require.Eventually(t, func() bool {
		msgs = ft.messages(connID)
		return len(msgs) >= n
	}, 2*time.Second, 10*time.Millisecond)
	return msgs
}

func TestInitializeHandshake(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	_, ft := newTestServer(t, cat, 10)

	ft.connect("c1")
	ft.push("c1", initializeJSON(1, ProtocolVersion))

	msgs := waitForMessages(t, ft, "c1", 1)
	resp := msgs[0]
	assert.Equal(t, "2.0", resp["jsonrpc"])
	assert.Equal(t, float64(1), resp["id"])

	result, ok := resp["result"].(map[string]any)
	require.True(t, ok, "expected a result, got %v", resp)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])

	caps := result["capabilities"].(map[string]any)
	assert.Contains(t, caps, "tools")
	assert.Contains(t, caps, "resources")
	assert.Contains(t, caps, "experimental")

	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "mcpcore-test", info["name"])

	_, closed := ft.closeReason("c1")
	assert.False(t, closed)
}

func TestInitializeVersionMismatchClosesConnection(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	_, ft := newTestServer(t, cat, 10)

	ft.connect("c1")
	ft.push("c1", initializeJSON(1, "2020-01-01"))

	msgs := waitForMessages(t, ft, "c1", 1)
	errObj, ok := msgs[0]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(-32602), errObj["code"])
	assert.Contains(t, errObj["message"], "Incompatible protocol version")
	assert.Equal(t, float64(1), msgs[0]["id"])

	require.Eventually(t, func() bool {
		_, closed := ft.closeReason("c1")
		return closed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMethodBeforeInitializeClosesConnection(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	_, ft := newTestServer(t, cat, 10)

	ft.connect("c1")
	ft.push("c1", `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)

	msgs := waitForMessages(t, ft, "c1", 1)
	errObj, ok := msgs[0]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(-32600), errObj["code"])
	assert.Nil(t, msgs[0]["id"])

	require.Eventually(t, func() bool {
		_, closed := ft.closeReason("c1")
		return closed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRejectsConnectionsOverSessionLimit(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	srv, ft := newTestServer(t, cat, 1)

	ft.connect("c1")
	ft.push("c1", initializeJSON(1, ProtocolVersion))
	waitForMessages(t, ft, "c1", 1)
	require.Equal(t, 1, srv.Status().SessionCount)

	ft.connect("c2")
	require.Eventually(t, func() bool {
		_, closed := ft.closeReason("c2")
		return closed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestToolsListThroughBoundSession(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	cat.EXPECT().ListTools(gomock.Any()).Return([]catalog.ToolDescriptor{
		{Name: "echo", Description: "echo a string"},
	}, nil)
	_, ft := newTestServer(t, cat, 10)

	ft.connect("c1")
	ft.push("c1", initializeJSON(1, ProtocolVersion))
	waitForMessages(t, ft, "c1", 1)

	ft.push("c1", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	msgs := waitForMessages(t, ft, "c1", 2)

	resp := msgs[1]
	assert.Equal(t, float64(2), resp["id"])
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok, "expected a result, got %v", resp)
	tools := result["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].(map[string]any)["name"])
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	_, ft := newTestServer(t, cat, 10)

	ft.connect("c1")
	ft.push("c1", initializeJSON(1, ProtocolVersion))
	waitForMessages(t, ft, "c1", 1)

	ft.push("c1", `{"jsonrpc":"2.0","id":2,"method":"no/such/method"}`)
	msgs := waitForMessages(t, ft, "c1", 2)

	errObj, ok := msgs[1]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(-32601), errObj["code"])
}

func TestDisconnectRemovesSession(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	srv, ft := newTestServer(t, cat, 10)

	ft.connect("c1")
	ft.push("c1", initializeJSON(1, ProtocolVersion))
	waitForMessages(t, ft, "c1", 1)
	require.Equal(t, 1, srv.Status().SessionCount)
	require.Len(t, srv.ListSessions(), 1)

	ft.disconnect("c1")
	require.Eventually(t, func() bool {
		return srv.Status().SessionCount == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, srv.ListSessions())
}

func TestShutdownNotifiesSessions(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	srv, ft := newTestServer(t, cat, 10)

	ft.connect("c1")
	ft.push("c1", initializeJSON(1, ProtocolVersion))
	waitForMessages(t, ft, "c1", 1)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(shutdownCtx))
	assert.True(t, srv.Status().ShutdownRequested)

	msgs := ft.messages("c1")
	var sawCancelled bool
	for _, m := range msgs {
		if m["method"] == "notifications/cancelled" {
			params := m["params"].(map[string]any)
			assert.Equal(t, "Server is shutting down", params["reason"])
			sawCancelled = true
		}
	}
	assert.True(t, sawCancelled, "expected a notifications/cancelled notification, got %v", msgs)
}

// newTestServerWithBus is newTestServer plus an attached event bus; the
// bus must be attached before Run starts draining events.
func newTestServerWithBus(t *testing.T, cat catalog.ToolCatalog, bus catalog.EventBus) (*Server, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	compiler := workflow.NewCompiler(func(context.Context, string) bool { return true }, nil)
	engine := workflow.NewEngine(workflow.CatalogRunner(cat, ""), 4)
	srv := New(Config{
		Info:        ServerInfo{Name: "mcpcore-test", Version: "0.0.1"},
		MaxSessions: 10,
		SessionConfig: session.Config{
			MaxConcurrentRequests: 10,
			RequestTimeout:        5 * time.Second,
		},
	}, ft, newTestPipeline(), bridge.New(cat), compiler, engine, nil, registry.NewClients(), nil)
	srv.AttachEventBus(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv, ft
}

func TestResourceSubscriptionRelaysChangeEvents(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	bus := mocks.NewMockEventBus(ctrl)

	changeCh := make(chan any, 1)
	// The three aggregate list-changed watchers subscribe at Run start.
	bus.EXPECT().Subscribe(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string) (<-chan any, func(), error) {
			return make(chan any), func() {}, nil
		}).Times(3)
	bus.EXPECT().Subscribe(gomock.Any(), "mcp:resources:workspace://doc/1").DoAndReturn(
		func(context.Context, string) (<-chan any, func(), error) {
			return changeCh, func() {}, nil
		})

	_, ft := newTestServerWithBus(t, cat, bus)

	ft.connect("c1")
	ft.push("c1", initializeJSON(1, ProtocolVersion))
	waitForMessages(t, ft, "c1", 1)

	ft.push("c1", `{"jsonrpc":"2.0","id":2,"method":"resources/subscribe","params":{"uri":"workspace://doc/1"}}`)
	waitForMessages(t, ft, "c1", 2)

	changeCh <- map[string]any{"deleted": false}

	msgs := waitForMessages(t, ft, "c1", 3)
	var sawUpdate bool
	for _, m := range msgs {
		if m["method"] == "notifications/resources/updated" {
			params := m["params"].(map[string]any)
			assert.Equal(t, "workspace://doc/1", params["uri"])
			sawUpdate = true
		}
	}
	assert.True(t, sawUpdate, "expected a resources/updated notification, got %v", msgs)
}

func TestReactiveWorkflowRegistersAndFires(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	bus := mocks.NewMockEventBus(ctrl)

	eventCh := make(chan any, 1)
	executed := make(chan string, 4)
	bus.EXPECT().Subscribe(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string) (<-chan any, func(), error) {
			return make(chan any), func() {}, nil
		}).Times(3)
	bus.EXPECT().Subscribe(gomock.Any(), "mcp:events:tick").DoAndReturn(
		func(context.Context, string) (<-chan any, func(), error) {
			return eventCh, func() {}, nil
		})
	cat.EXPECT().ExecuteTool(gomock.Any(), "echo", gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string, map[string]any, catalog.ExecContext) (*catalog.Result, error) {
			executed <- "echo"
			return &catalog.Result{Text: "ok"}, nil
		}).MinTimes(1)

	_, ft := newTestServerWithBus(t, cat, bus)

	ft.connect("c1")
	ft.push("c1", initializeJSON(1, ProtocolVersion))
	waitForMessages(t, ft, "c1", 1)

	ft.push("c1", `{"jsonrpc":"2.0","id":2,"method":"workflows/execute","params":{"spec":{"type":"reactive","base":{"type":"sequential","steps":[{"tool":"echo"}]},"triggers":[{"event":"tick"}]}}}`)
	msgs := waitForMessages(t, ft, "c1", 2)

	result, ok := msgs[1]["result"].(map[string]any)
	require.True(t, ok, "expected a result, got %v", msgs[1])
	assert.Equal(t, true, result["registered"])
	assert.Equal(t, float64(1), result["triggers"])

	eventCh <- map[string]any{"n": 1}
	select {
	case <-executed:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger firing never executed the base workflow")
	}
}

func TestOversizeRequestRejected(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	cat := mocks.NewMockToolCatalog(ctrl)
	ft := newFakeTransport()
	compiler := workflow.NewCompiler(func(context.Context, string) bool { return true }, nil)
	engine := workflow.NewEngine(workflow.CatalogRunner(cat, ""), 4)
	srv := New(Config{
		Info:           ServerInfo{Name: "mcpcore-test", Version: "0.0.1"},
		MaxSessions:    10,
		MaxRequestSize: 64,
		SessionConfig:  session.Config{MaxConcurrentRequests: 10, RequestTimeout: 5 * time.Second},
	}, ft, newTestPipeline(), bridge.New(cat), compiler, engine, nil, registry.NewClients(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ft.connect("c1")
	ft.push("c1", initializeJSON(1, ProtocolVersion))

	msgs := waitForMessages(t, ft, "c1", 1)
	errObj, ok := msgs[0]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(-32603), errObj["code"])
	data := errObj["data"].(map[string]any)
	assert.Equal(t, "request_too_large", data["type"])
}

func TestMergeCapabilitiesOverrideWins(t *testing.T) {
	t.Parallel()
	merged := mergeCapabilities(map[string]any{
		"tools": map[string]any{"listChanged": false},
		"extra": map[string]any{"enabled": true},
	})
	assert.Equal(t, map[string]any{"listChanged": false}, merged["tools"])
	assert.Equal(t, map[string]any{"enabled": true}, merged["extra"])
	// Untouched defaults survive the merge.
	assert.Equal(t, map[string]any{"subscribe": true, "listChanged": true}, merged["resources"])
}
