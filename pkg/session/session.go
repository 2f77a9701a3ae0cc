// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tool-mesh/mcpcore/pkg/logger"
	"github.com/tool-mesh/mcpcore/pkg/protocol"
)

// State is the session lifecycle: a session starts Fresh, becomes
// Initialized once the client completes the handshake, moves to
// ShuttingDown when the server or client begins closing it, and ends
// Terminated.
type State int

const (
	StateFresh State = iota
	StateInitialized
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateInitialized:
		return "initialized"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Handler processes one request's params and returns its result, or an
// error to be translated to the wire error shape.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// HandlerSet is the method -> handler map for a session. Any nil field
// is exposed to dispatch as method_not_found.
type HandlerSet struct {
	ToolsList           Handler
	ToolsCall           Handler
	ResourcesList       Handler
	ResourcesRead       Handler
	ResourcesSubscribe  Handler
	ResourcesUnsubscribe Handler
	PromptsList         Handler
	PromptsGet          Handler
	LoggingSetLevel     Handler
	Ping                Handler
	Shutdown            Handler

	// Extension methods: workflow composition and sampling.
	WorkflowsCreate        Handler
	WorkflowsExecute       Handler
	WorkflowsTemplates     Handler
	SamplingCreateMessage  Handler
}

func (h HandlerSet) methods() map[string]Handler {
	return map[string]Handler{
		"tools/list":             h.ToolsList,
		"tools/call":             h.ToolsCall,
		"resources/list":         h.ResourcesList,
		"resources/read":         h.ResourcesRead,
		"resources/subscribe":    h.ResourcesSubscribe,
		"resources/unsubscribe":  h.ResourcesUnsubscribe,
		"prompts/list":           h.PromptsList,
		"prompts/get":            h.PromptsGet,
		"logging/setLevel":       h.LoggingSetLevel,
		"ping":                   h.Ping,
		"shutdown":               h.Shutdown,
		"workflows/create":       h.WorkflowsCreate,
		"workflows/execute":      h.WorkflowsExecute,
		"workflows/templates":    h.WorkflowsTemplates,
		"sampling/createMessage": h.SamplingCreateMessage,
	}
}

// Sender delivers an encoded message to the underlying transport
// connection. Sessions never talk to a transport directly.
type Sender interface {
	Send(connID string, raw []byte) error
}

const (
	// DefaultRequestTimeout bounds how long a single request may run
	// before its context is cancelled and a timeout error is sent.
	DefaultRequestTimeout = 30 * time.Second
	// ForceShutdownTimeout bounds how long BeginShutdown waits for
	// in-flight requests to drain before force-terminating the session.
	ForceShutdownTimeout = 5 * time.Second
)

type pendingRequest struct {
	cancel context.CancelFunc
}

// Session is one MCP connection's server-side state: its lifecycle
// state, pending-request correlation, concurrency admission, and
// subscriptions.
type Session struct {
	ID     string
	ConnID string

	mu    sync.Mutex
	state State

	handlers        HandlerSet
	sender          Sender
	admission       *admissionQueue
	requestTimeout  time.Duration
	freshViolations int

	pending map[any]*pendingRequest

	subs *subscriptions
}

// Config configures a new Session.
type Config struct {
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
}

// New constructs a Fresh session.
func New(id, connID string, sender Sender, handlers HandlerSet, cfg Config) *Session {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Session{
		ID:             id,
		ConnID:         connID,
		state:          StateFresh,
		handlers:       handlers,
		sender:         sender,
		admission:      newAdmissionQueue(cfg.MaxConcurrentRequests),
		requestTimeout: timeout,
		pending:        make(map[any]*pendingRequest),
		subs:           newSubscriptions(),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkInitialized transitions Fresh -> Initialized, called by the server
// core once the initialize handshake succeeds.
func (s *Session) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateInitialized
}

// Deliver handles one raw inbound message: parses it, enforces the
// session's lifecycle/dispatch rules, and replies on the transport for
// requests (never for notifications).
func (s *Session) Deliver(ctx context.Context, raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		s.sendParseError(err)
		return
	}

	switch msg.Kind {
	case protocol.KindNotification:
		s.handleNotification(ctx, msg)
	case protocol.KindRequest:
		s.handleRequest(ctx, msg)
	default:
		// Responses/error-responses inbound to a server session are not part
		// of this spec's surface; ignore rather than error, since no request
		// originates from the server side in this core.
		logger.Debugf("session %s: ignoring inbound %v message", s.ID, msg.Kind)
	}
}

func (s *Session) sendParseError(err error) {
	resp := protocol.BuildError(nil, protocol.CodeParseError, err.Error(), nil)
	s.sendMessage(resp)
}

func (s *Session) handleNotification(_ context.Context, msg *protocol.Message) {
	// Clients in this method surface only send requests, never
	// notifications, so any inbound notification is logged and dropped
	// rather than erroring — notifications never receive a response
	// either way.
	logger.Debugf("session %s: notification %s", s.ID, msg.Method)
}

func (s *Session) handleRequest(ctx context.Context, msg *protocol.Message) {
	state := s.State()

	if state == StateFresh && msg.Method != "initialize" {
		s.recordFreshViolation()
		s.sendError(msg.ID, protocol.CodeInvalidRequest, "session must initialize before any other request")
		return
	}

	if state == StateShuttingDown {
		s.sendError(msg.ID, protocol.CodeInternalError, "server is shutting down")
		return
	}

	if state == StateTerminated {
		return
	}

	admitted, done := s.admission.TryAdmit()
	if !admitted {
		s.sendError(msg.ID, protocol.CodeInternalError, "too many concurrent requests")
		return
	}

	handler, ok := s.handlers.methods()[msg.Method]
	if !ok || handler == nil {
		done()
		s.sendError(msg.ID, protocol.CodeMethodNotFound, fmt.Sprintf("unknown method %q", msg.Method))
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	reqCtx = context.WithValue(reqCtx, requestIDKey{}, msg.ID)
	s.trackPending(msg.ID, cancel)

	go s.runHandler(reqCtx, cancel, done, msg, handler)
}

func (s *Session) runHandler(ctx context.Context, cancel context.CancelFunc, done func(), msg *protocol.Message, handler Handler) {
	defer done()
	defer cancel()

	result, err := s.safeInvoke(ctx, handler, msg.Params)

	if !s.untrackPending(msg.ID) {
		// The timeout already fired and removed the entry; discard the
		// late response.
		return
	}

	if ctx.Err() != nil {
		s.sendError(msg.ID, protocol.CodeInternalError, "request timed out")
		return
	}

	if err != nil {
		s.sendHandlerError(msg.ID, err)
		return
	}

	raw, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		s.sendError(msg.ID, protocol.CodeInternalError, "failed to encode result")
		return
	}
	s.sendMessage(protocol.BuildResponse(msg.ID, raw))
}

// safeInvoke recovers a handler panic into an internal_error so one
// misbehaving handler cannot take down the session's dispatch loop.
func (s *Session) safeInvoke(ctx context.Context, handler Handler, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, params)
}

func (s *Session) sendHandlerError(id any, err error) {
	code := protocol.CodeInternalError
	if coder, ok := err.(interface{ MCPCode() int }); ok {
		code = coder.MCPCode()
	}
	s.sendError(id, code, err.Error())
}

func (s *Session) trackPending(id any, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[idKey(id)] = &pendingRequest{cancel: cancel}
}

// untrackPending removes id's bookkeeping entry and reports whether it
// was still present (false means a timeout already claimed it).
func (s *Session) untrackPending(id any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := idKey(id)
	if _, ok := s.pending[key]; !ok {
		return false
	}
	delete(s.pending, key)
	return true
}

// idKey normalizes a JSON-decoded id (string, float64, nil) into a value
// usable as a Go map key as-is; JSON numbers decode to float64, which is
// comparable, so no extra normalization is required.
func idKey(id any) any { return id }

type requestIDKey struct{}

// RequestIDFromContext returns the JSON-RPC id of the request a handler is
// currently executing for, so a handler that needs to correlate
// asynchronous progress notifications with the originating call can do so without threading it through every
// Handler signature.
func RequestIDFromContext(ctx context.Context) (any, bool) {
	id := ctx.Value(requestIDKey{})
	if id == nil {
		return nil, false
	}
	return id, true
}

func (s *Session) recordFreshViolation() {
	s.mu.Lock()
	s.freshViolations++
	violations := s.freshViolations
	s.mu.Unlock()
	if violations >= 2 {
		s.Terminate("repeated pre-initialize violation")
	}
}

func (s *Session) sendError(id any, code int, message string) {
	s.sendMessage(protocol.BuildError(id, code, message, nil))
}

func (s *Session) sendMessage(msg *protocol.Message) {
	raw, err := protocol.Encode(msg)
	if err != nil {
		logger.Errorf("session %s: failed to encode message: %v", s.ID, err)
		return
	}
	if s.sender == nil {
		return
	}
	if err := s.sender.Send(s.ConnID, raw); err != nil {
		logger.Errorf("session %s: failed to send message: %v", s.ID, err)
	}
}

// Notify sends a server-initiated notification (e.g.
// notifications/resources/updated) to the client.
func (s *Session) Notify(method string, params any) {
	raw, err := json.Marshal(params)
	if err != nil {
		logger.Errorf("session %s: failed to encode notification params: %v", s.ID, err)
		return
	}
	s.sendMessage(protocol.BuildNotification(method, raw))
}

// BeginShutdown transitions Initialized -> ShuttingDown, notifies the
// client, and schedules a force-terminate after ForceShutdownTimeout if
// pending requests have not drained by then.
func (s *Session) BeginShutdown(reason string) {
	s.mu.Lock()
	if s.state == StateTerminated || s.state == StateShuttingDown {
		s.mu.Unlock()
		return
	}
	s.state = StateShuttingDown
	s.mu.Unlock()

	s.Notify("notifications/cancelled", map[string]string{"reason": reason})

	drained := make(chan struct{})
	go func() {
		s.admission.CloseAndDrain()
		close(drained)
	}()

	go func() {
		select {
		case <-drained:
		case <-time.After(ForceShutdownTimeout):
		}
		s.Terminate(reason)
	}()
}

// Terminate releases subscriptions and transitions to Terminated. It is
// idempotent.
func (s *Session) Terminate(_ string) {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated
	pending := s.pending
	s.pending = make(map[any]*pendingRequest)
	s.mu.Unlock()

	for _, p := range pending {
		p.cancel()
	}
	s.subs.releaseAll()
}

// Info is a point-in-time snapshot of a session's state.
type Info struct {
	ID              string              `json:"id"`
	ConnID          string              `json:"conn_id"`
	State           string              `json:"state"`
	PendingRequests int                 `json:"pending_requests"`
	Subscriptions   map[string][]string `json:"subscriptions"`
}

// Info snapshots the session for status reporting.
func (s *Session) Info() Info {
	s.mu.Lock()
	state := s.state
	pending := len(s.pending)
	s.mu.Unlock()
	return Info{
		ID:              s.ID,
		ConnID:          s.ConnID,
		State:           state.String(),
		PendingRequests: pending,
		Subscriptions:   s.subs.list(),
	}
}

// Subscribe registers the session's interest in a resource/tool/prompt
// uri under kind ("resources", "tools", "prompts").
func (s *Session) Subscribe(kind, uri string) { s.subs.add(kind, uri) }

// Unsubscribe removes a prior Subscribe.
func (s *Session) Unsubscribe(kind, uri string) { s.subs.remove(kind, uri) }

// IsSubscribed reports whether kind/uri has an active subscription.
func (s *Session) IsSubscribed(kind, uri string) bool { return s.subs.has(kind, uri) }

// NotifyResourceChange does nothing unless uri is subscribed; for a
// subscribed uri it emits notifications/resources/deleted when deleted is
// true, else notifications/resources/updated.
func (s *Session) NotifyResourceChange(uri string, deleted bool) {
	if !s.IsSubscribed("resources", uri) {
		return
	}
	method := "notifications/resources/updated"
	if deleted {
		method = "notifications/resources/deleted"
	}
	s.Notify(method, map[string]string{"uri": uri})
}
