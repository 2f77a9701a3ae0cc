// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server implements the server core: it accepts transport
// connections, performs the initialize handshake, binds each connection to
// a pkg/session.Session, and owns the session map and the process-wide
// shutdown sequence.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tool-mesh/mcpcore/pkg/bridge"
	"github.com/tool-mesh/mcpcore/pkg/catalog"
	"github.com/tool-mesh/mcpcore/pkg/logger"
	"github.com/tool-mesh/mcpcore/pkg/protocol"
	"github.com/tool-mesh/mcpcore/pkg/registry"
	"github.com/tool-mesh/mcpcore/pkg/security"
	"github.com/tool-mesh/mcpcore/pkg/security/auth"
	"github.com/tool-mesh/mcpcore/pkg/security/tokens"
	"github.com/tool-mesh/mcpcore/pkg/session"
	"github.com/tool-mesh/mcpcore/pkg/telemetry"
	"github.com/tool-mesh/mcpcore/pkg/transport"
	"github.com/tool-mesh/mcpcore/pkg/workflow"
)

// ProtocolVersion is the exact version string an initialize handshake
// must carry; any other value is refused.
const ProtocolVersion = "2024-11-05"

// ShutdownGracePeriod bounds how long Shutdown waits for sessions to
// drain before returning.
const ShutdownGracePeriod = 5 * time.Second

// ServerInfo identifies this server in a successful initialize response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Config configures a Server.
type Config struct {
	Info ServerInfo

	// CapabilityOverrides replaces entries of the default capability map
	// (override wins per name). Keys are top-level capability names
	// ("tools", "resources", "prompts", "experimental", ...).
	CapabilityOverrides map[string]any

	// MaxSessions refuses new connections once reached (session.max_sessions).
	MaxSessions int

	// MaxRequestSize rejects any inbound frame larger than this many
	// bytes with a request_too_large error
	// (security.request_max_size_bytes). Zero disables the check.
	MaxRequestSize int64

	SessionConfig session.Config
}

// defaultCapabilities returns the capability set advertised when no
// overrides are configured.
func defaultCapabilities() map[string]any {
	return map[string]any{
		"tools":        map[string]any{"listChanged": true},
		"resources":    map[string]any{"subscribe": true, "listChanged": true},
		"prompts":      map[string]any{"listChanged": true},
		"logging":      map[string]any{},
		"experimental": map[string]any{"streaming": true},
	}
}

// mergeCapabilities overlays overrides onto the defaults, override wins
// per capability name.
func mergeCapabilities(overrides map[string]any) map[string]any {
	merged := defaultCapabilities()
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// connEntry is the server core's bookkeeping for one bound connection.
type connEntry struct {
	sess       *session.Session
	credential auth.Credential
	ipAddress  string
	clientID   string

	watchMu sync.Mutex
	watches map[string]func()
}

// addWatch records the bus-subscription cancel for one watched uri,
// replacing (and cancelling) any previous watch on the same uri.
func (e *connEntry) addWatch(uri string, cancel func()) {
	e.watchMu.Lock()
	prev := e.watches[uri]
	if e.watches == nil {
		e.watches = make(map[string]func())
	}
	e.watches[uri] = cancel
	e.watchMu.Unlock()
	if prev != nil {
		prev()
	}
}

func (e *connEntry) removeWatch(uri string) {
	e.watchMu.Lock()
	cancel := e.watches[uri]
	delete(e.watches, uri)
	e.watchMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// stopWatches cancels every bus subscription held for this connection.
func (e *connEntry) stopWatches() {
	e.watchMu.Lock()
	watches := e.watches
	e.watches = nil
	e.watchMu.Unlock()
	for _, cancel := range watches {
		cancel()
	}
}

// Server owns the transport's event loop, the session map, and the
// handshake and shutdown logic.
type Server struct {
	cfg       Config
	transport transport.Port
	pipeline  *security.Pipeline
	bridge    *bridge.Bridge
	compiler  *workflow.Compiler
	engine    *workflow.Engine
	tokensMgr *tokens.Manager
	clients   *registry.Clients
	metrics   *telemetry.Metrics
	workflows *registry.Compositions[*workflowEntry]
	bus       catalog.EventBus

	mu                sync.RWMutex
	conns             map[string]*connEntry
	shutdownRequested bool
	baseCtx           context.Context
	triggerStops      []func()
}

// New constructs a Server over its collaborators. tokensMgr and metrics
// may be nil (token issuance and metrics emission become no-ops).
func New(cfg Config, t transport.Port, pipeline *security.Pipeline, br *bridge.Bridge, compiler *workflow.Compiler, engine *workflow.Engine, tokensMgr *tokens.Manager, clients *registry.Clients, metrics *telemetry.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		transport: t,
		pipeline:  pipeline,
		bridge:    br,
		compiler:  compiler,
		engine:    engine,
		tokensMgr: tokensMgr,
		clients:   clients,
		metrics:   metrics,
		workflows: registry.NewCompositions[*workflowEntry](),
		conns:     make(map[string]*connEntry),
	}
}

// Run drains the transport's event stream until it closes or ctx is
// cancelled, dispatching each event to the matching connection lifecycle
// handler. It returns once the transport's Events channel closes.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	if s.bus != nil {
		s.watchListChanges(ctx)
	}

	events := s.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case transport.EventConnected:
				s.handleConnected(ev)
			case transport.EventMessage:
				s.handleMessage(ctx, ev)
			case transport.EventDisconnected:
				s.handleDisconnected(ev)
			}
		}
	}
}

func (s *Server) handleConnected(ev transport.Event) {
	s.mu.RLock()
	over := s.cfg.MaxSessions > 0 && len(s.conns) >= s.cfg.MaxSessions
	shuttingDown := s.shutdownRequested
	s.mu.RUnlock()

	if over || shuttingDown {
		reason := "server is shutting down"
		if over {
			reason = "server has reached its maximum session count"
		}
		logger.Warnf("server: rejecting connection %s: %s", ev.ConnID, reason)
		_ = s.transport.Close(ev.ConnID, reason)
		return
	}
	logger.Debugf("server: connection %s accepted from %s", ev.ConnID, ev.Info.PeerAddr)
}

func (s *Server) handleDisconnected(ev transport.Event) {
	s.mu.Lock()
	entry, ok := s.conns[ev.ConnID]
	delete(s.conns, ev.ConnID)
	s.mu.Unlock()
	if !ok {
		return
	}
	entry.stopWatches()
	entry.sess.Terminate(ev.Reason)
	if s.tokensMgr != nil {
		_ = s.tokensMgr.Revoke(context.Background(), entry.sess.ID)
	}
	s.clients.Remove(entry.sess.ID)
	if s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}
}

// handleMessage routes one inbound frame: connections without a bound
// session only accept `initialize`; bound connections hand the frame to
// their session.
func (s *Server) handleMessage(ctx context.Context, ev transport.Event) {
	if s.cfg.MaxRequestSize > 0 && int64(len(ev.Raw)) > s.cfg.MaxRequestSize {
		s.send(ev.ConnID, protocol.BuildError(nil, protocol.CodeInternalError, "request exceeds maximum size", map[string]any{"type": "request_too_large"}))
		return
	}

	s.mu.RLock()
	entry, bound := s.conns[ev.ConnID]
	s.mu.RUnlock()

	if bound {
		entry.sess.Deliver(ctx, ev.Raw)
		return
	}

	s.handlePreInitMessage(ctx, ev)
}

// handlePreInitMessage handles a connection with no bound session yet: only `initialize`
// is accepted, a parse failure or any other method closes the connection,
// and a protocol-version mismatch closes it with invalid_params.
func (s *Server) handlePreInitMessage(ctx context.Context, ev transport.Event) {
	msg, err := protocol.Parse(ev.Raw)
	if err != nil {
		s.sendAndClose(ev.ConnID, protocol.BuildError(nil, protocol.CodeParseError, err.Error(), nil), "parse error before initialize")
		return
	}

	if msg.Kind != protocol.KindRequest || msg.Method != "initialize" {
		s.sendAndClose(ev.ConnID, protocol.BuildError(nil, protocol.CodeInvalidRequest, "connection must initialize before any other request", nil), "method before initialize")
		return
	}

	var params struct {
		ProtocolVersion string          `json:"protocolVersion"`
		ClientInfo      json.RawMessage `json:"clientInfo"`
		Auth            *struct {
			Token  string `json:"token"`
			APIKey string `json:"apiKey"`
		} `json:"auth"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendAndClose(ev.ConnID, protocol.BuildError(msg.ID, protocol.CodeInvalidParams, "malformed initialize params", nil), "malformed initialize params")
		return
	}

	if params.ProtocolVersion != ProtocolVersion {
		s.sendAndClose(ev.ConnID, protocol.BuildError(msg.ID, protocol.CodeInvalidParams, "Incompatible protocol version", nil), "protocol version mismatch")
		return
	}

	var clientInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	_ = json.Unmarshal(params.ClientInfo, &clientInfo)

	cred := auth.Credential{}
	if params.Auth != nil {
		cred = auth.Credential{Token: params.Auth.Token, APIKey: params.Auth.APIKey}
	}

	sc, err := s.pipeline.Evaluate(ctx, security.Request{
		Credential: cred,
		IPAddress:  ev.Info.PeerAddr,
		Operation:  "session:initialize",
	})
	if err != nil {
		s.sendAndClose(ev.ConnID, protocol.BuildError(msg.ID, codeForErr(err), err.Error(), nil), "initialize authentication/authorization failed")
		return
	}

	sessionID := uuid.NewString()
	if s.tokensMgr != nil {
		if _, err := s.tokensMgr.Issue(ctx, sessionID, sc.Context.UserID); err != nil {
			s.sendAndClose(ev.ConnID, protocol.BuildError(msg.ID, protocol.CodeInternalError, err.Error(), nil), "session-limit exceeded")
			return
		}
	}

	entry := &connEntry{credential: cred, ipAddress: ev.Info.PeerAddr, clientID: sc.Context.ClientID}
	var sessPtr *session.Session
	handlers := s.buildHandlerSet(entry, func() *session.Session { return sessPtr })
	sessPtr = session.New(sessionID, ev.ConnID, s.transport, handlers, s.cfg.SessionConfig)
	entry.sess = sessPtr
	sessPtr.MarkInitialized()

	s.mu.Lock()
	s.conns[ev.ConnID] = entry
	s.mu.Unlock()

	s.clients.Put(registry.ClientInfo{
		SessionID:    sessionID,
		ConnID:       ev.ConnID,
		Name:         clientInfo.Name,
		Version:      clientInfo.Version,
		Capabilities: map[string]any{},
	})
	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
		s.metrics.SessionsTotal.Inc()
	}

	result := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    mergeCapabilities(s.cfg.CapabilityOverrides),
		"serverInfo":      s.cfg.Info,
	}
	raw, err := json.Marshal(result)
	if err != nil {
		s.sendAndClose(ev.ConnID, protocol.BuildError(msg.ID, protocol.CodeInternalError, "failed to encode initialize result", nil), "encode failure")
		return
	}
	s.send(ev.ConnID, protocol.BuildResponse(msg.ID, raw))
}

// codeForErr extracts the JSON-RPC wire code from an error through an
// anonymous interface{ MCPCode() int } check, which pkg/errors.Error
// satisfies; any other error maps to the internal-error code.
func codeForErr(err error) int {
	if coder, ok := err.(interface{ MCPCode() int }); ok {
		return coder.MCPCode()
	}
	return protocol.CodeInternalError
}

func (s *Server) send(connID string, msg *protocol.Message) {
	raw, err := protocol.Encode(msg)
	if err != nil {
		logger.Errorf("server: failed to encode message for %s: %v", connID, err)
		return
	}
	if err := s.transport.Send(connID, raw); err != nil {
		logger.Errorf("server: failed to send to %s: %v", connID, err)
	}
}

func (s *Server) sendAndClose(connID string, msg *protocol.Message, reason string) {
	s.send(connID, msg)
	_ = s.transport.Close(connID, reason)
}

// Notify delivers a server-initiated notification to sessionID's
// connection, if bound.
func (s *Server) Notify(sessionID string, method string, params any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.conns {
		if entry.sess.ID == sessionID {
			entry.sess.Notify(method, params)
			return
		}
	}
}

// Status summarizes the server core's current state.
type Status struct {
	SessionCount      int  `json:"session_count"`
	MaxSessions       int  `json:"max_sessions"`
	ShutdownRequested bool `json:"shutdown_requested"`
}

// Status implements the server core's `status()` operation.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		SessionCount:      len(s.conns),
		MaxSessions:       s.cfg.MaxSessions,
		ShutdownRequested: s.shutdownRequested,
	}
}

// ListSessions implements the server core's `list_sessions()` operation.
func (s *Server) ListSessions() []registry.ClientInfo {
	return s.clients.List()
}

// Shutdown runs the graceful shutdown sequence: mark
// shutdown_requested, notify every session, wait up to
// ShutdownGracePeriod for them to drain, then return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdownRequested = true
	sessions := make([]*session.Session, 0, len(s.conns))
	for _, entry := range s.conns {
		sessions = append(sessions, entry.sess)
	}
	stops := s.triggerStops
	s.triggerStops = nil
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}

	for _, sess := range sessions {
		sess.BeginShutdown("Server is shutting down")
	}

	deadline := time.NewTimer(ShutdownGracePeriod)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.activeSessionCount() == 0 {
			return s.transport.Shutdown(ctx)
		}
		select {
		case <-ctx.Done():
			return s.transport.Shutdown(ctx)
		case <-deadline.C:
			return s.transport.Shutdown(ctx)
		case <-ticker.C:
		}
	}
}

func (s *Server) activeSessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, entry := range s.conns {
		if entry.sess.State() != session.StateTerminated {
			n++
		}
	}
	return n
}
