// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package httpsse implements the Transport Port over HTTP + Server-Sent
// Events: a GET /sse stream carries server->client frames as
// `event: message\ndata: <json>\n\n` with a heartbeat every <=30s, and a
// POST /messages?connId=<id> carries client->server frames. Routed with
// go-chi/chi/v5 (chi.NewRouter + middleware.RequestID).
package httpsse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tool-mesh/mcpcore/pkg/logger"
	"github.com/tool-mesh/mcpcore/pkg/transport"
)

// HeartbeatInterval bounds the gap between SSE comment-heartbeats
// so idle proxies never reap the stream.
const HeartbeatInterval = 25 * time.Second

type sseConn struct {
	id      string
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  chan struct{}
}

// Transport is a multi-connection HTTP/SSE Port.
type Transport struct {
	mu     sync.Mutex
	conns  map[string]*sseConn
	events chan transport.Event
	closed bool
}

// New constructs an HTTP/SSE transport.
func New() *Transport {
	return &Transport{
		conns:  make(map[string]*sseConn),
		events: make(chan transport.Event, 64),
	}
}

// Router returns the chi.Router exposing GET /sse and POST /messages,
// ready to be mounted under a prefix by the caller (cmd/mcpcored).
func (t *Transport) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Get("/sse", t.handleSSE)
	r.Post("/messages", t.handleMessage)
	return r
}

func (t *Transport) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	c := &sseConn{id: uuid.NewString(), w: w, flusher: flusher, closed: make(chan struct{})}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	t.conns[c.id] = c
	t.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	t.emit(transport.Event{
		Kind:   transport.EventConnected,
		ConnID: c.id,
		Info:   transport.ConnInfo{PeerAddr: r.RemoteAddr, UserAgent: r.UserAgent()},
	})

	// The connection id is sent as the first event so the client knows
	// which connId to use on its POST /messages requests.
	c.writeEvent("endpoint", []byte(fmt.Sprintf(`{"connId":%q}`, c.id)))

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			t.disconnect(c.id, "client disconnected")
			return
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.writeComment("heartbeat"); err != nil {
				t.disconnect(c.id, "write error")
				return
			}
		}
	}
}

func (t *Transport) handleMessage(w http.ResponseWriter, r *http.Request) {
	connID := r.URL.Query().Get("connId")
	if connID == "" {
		http.Error(w, "missing connId", http.StatusBadRequest)
		return
	}
	t.mu.Lock()
	_, ok := t.conns[connID]
	t.mu.Unlock()
	if !ok {
		http.Error(w, "unknown connId", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	t.emit(transport.Event{Kind: transport.EventMessage, ConnID: connID, Raw: body})
	w.WriteHeader(http.StatusAccepted)
}

func (c *sseConn) writeEvent(name string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", name, data)
	c.flusher.Flush()
}

func (c *sseConn) writeComment(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, ": %s\n\n", text); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (t *Transport) emit(e transport.Event) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	t.events <- e
}

func (t *Transport) disconnect(connID, reason string) {
	t.mu.Lock()
	c, ok := t.conns[connID]
	if ok {
		delete(t.conns, connID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	t.emit(transport.Event{Kind: transport.EventDisconnected, ConnID: connID, Reason: reason})
}

// Events implements transport.Port.
func (t *Transport) Events() <-chan transport.Event { return t.events }

// Send implements transport.Port: writes one `event: message` SSE frame.
func (t *Transport) Send(connID string, raw []byte) error {
	t.mu.Lock()
	c, ok := t.conns[connID]
	t.mu.Unlock()
	if !ok {
		return errors.New("httpsse transport: unknown connection " + connID)
	}
	c.writeEvent("message", raw)
	return nil
}

// Recv is unsupported: this transport is push-only via Events.
func (*Transport) Recv(context.Context, string, time.Duration) ([]byte, error) {
	return nil, errors.New("httpsse transport: Recv unsupported, consume Events")
}

// Close terminates one SSE stream.
func (t *Transport) Close(connID string, reason string) error {
	t.disconnect(connID, reason)
	return nil
}

// Shutdown closes every open stream and the event channel.
func (t *Transport) Shutdown(context.Context) error {
	t.mu.Lock()
	t.closed = true
	ids := make([]string, 0, len(t.conns))
	for id := range t.conns {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.disconnect(id, "server shutting down")
	}
	close(t.events)
	logger.Debugf("httpsse transport: shut down")
	return nil
}
