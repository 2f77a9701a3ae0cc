// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ws implements the Transport Port over WebSocket text frames
// with gorilla/websocket; Transport doubles as the http.Handler that
// upgrades incoming connections.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tool-mesh/mcpcore/pkg/logger"
	"github.com/tool-mesh/mcpcore/pkg/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type conn struct {
	id   string
	ws   *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
}

// Transport is a multi-connection WebSocket Port. One http.Handler
// (ServeHTTP) accepts upgrade requests; each accepted socket becomes one
// connection with its own id.
type Transport struct {
	mu     sync.Mutex
	conns  map[string]*conn
	events chan transport.Event
	closed bool
}

// New constructs an empty WebSocket transport. Mount ServeHTTP on the
// desired path (conventionally "/ws") to start accepting connections.
func New() *Transport {
	return &Transport{
		conns:  make(map[string]*conn),
		events: make(chan transport.Event, 64),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers a new
// connection, reading frames until the client disconnects.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws transport: upgrade failed: %v", err)
		return
	}
	c := &conn{id: uuid.NewString(), ws: wsConn, done: make(chan struct{})}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = wsConn.Close()
		return
	}
	t.conns[c.id] = c
	t.mu.Unlock()

	t.emit(transport.Event{
		Kind:   transport.EventConnected,
		ConnID: c.id,
		Info:   transport.ConnInfo{PeerAddr: r.RemoteAddr, UserAgent: r.UserAgent()},
	})

	t.readLoop(c)
}

func (t *Transport) readLoop(c *conn) {
	defer func() {
		t.mu.Lock()
		delete(t.conns, c.id)
		t.mu.Unlock()
		close(c.done)
		t.emit(transport.Event{Kind: transport.EventDisconnected, ConnID: c.id, Reason: "connection closed"})
	}()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		t.emit(transport.Event{Kind: transport.EventMessage, ConnID: c.id, Raw: data})
	}
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

// Events implements transport.Port.
func (t *Transport) Events() <-chan transport.Event { return t.events }

// Send implements transport.Port: writes one text frame.
func (t *Transport) Send(connID string, raw []byte) error {
	t.mu.Lock()
	c, ok := t.conns[connID]
	t.mu.Unlock()
	if !ok {
		return errors.New("ws transport: unknown connection " + connID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

// Recv is unsupported: this transport is push-only via Events.
func (*Transport) Recv(context.Context, string, time.Duration) ([]byte, error) {
	return nil, errors.New("ws transport: Recv unsupported, consume Events")
}

// Close terminates one connection.
func (t *Transport) Close(connID string, reason string) error {
	t.mu.Lock()
	c, ok := t.conns[connID]
	t.mu.Unlock()
	if !ok {
		return errors.New("ws transport: unknown connection " + connID)
	}
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

// Shutdown closes every open connection and the event channel.
func (t *Transport) Shutdown(context.Context) error {
	t.mu.Lock()
	t.closed = true
	conns := make([]*conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.Close()
		<-c.done
	}
	close(t.events)
	return nil
}
