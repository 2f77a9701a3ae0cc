// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package stdio implements the Transport Port over line-framed JSON on
// stdin/stdout, the simplest of the pluggable transports (each line is
// exactly one JSON-RPC message).
package stdio

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tool-mesh/mcpcore/pkg/logger"
	"github.com/tool-mesh/mcpcore/pkg/transport"
)

// Transport is a single-connection stdio Port. There is exactly one
// connection, minted on New, whose id stays fixed for the process
// lifetime.
type Transport struct {
	connID string

	in  io.Reader
	out io.Writer

	events chan transport.Event

	mu     sync.Mutex
	writer *bufio.Writer
	closed bool
}

// New constructs a stdio transport reading in and writing out, starting a
// background goroutine that scans in line by line and emits
// transport.Event values.
func New(in io.Reader, out io.Writer) *Transport {
	t := &Transport{
		connID: uuid.NewString(),
		in:     in,
		out:    out,
		events: make(chan transport.Event, 16),
		writer: bufio.NewWriter(out),
	}
	t.events <- transport.Event{Kind: transport.EventConnected, ConnID: t.connID, Info: transport.ConnInfo{PeerAddr: "stdio"}}
	go t.readLoop()
	return t
}

func (t *Transport) readLoop() {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		t.events <- transport.Event{Kind: transport.EventMessage, ConnID: t.connID, Raw: msg}
	}
	if err := scanner.Err(); err != nil {
		logger.Errorf("stdio transport: read error: %v", err)
	}
	t.events <- transport.Event{Kind: transport.EventDisconnected, ConnID: t.connID, Reason: "stdin closed"}
	close(t.events)
}

// Events implements transport.Port.
func (t *Transport) Events() <-chan transport.Event { return t.events }

// Send implements transport.Port: writes raw followed by a newline.
func (t *Transport) Send(connID string, raw []byte) error {
	if connID != t.connID {
		return errors.New("stdio transport: unknown connection " + connID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("stdio transport: closed")
	}
	if _, err := t.writer.Write(raw); err != nil {
		return err
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return err
	}
	return t.writer.Flush()
}

// Recv is unsupported: stdio delivers exclusively via Events.
func (*Transport) Recv(context.Context, string, time.Duration) ([]byte, error) {
	return nil, errors.New("stdio transport: Recv unsupported, consume Events")
}

// Close marks the connection closed so later Sends fail. Since stdio has
// exactly one connection tied to the process's stdin/stdout, the
// underlying streams are left open, and no EventDisconnected is emitted;
// that event comes only from the read goroutine when input ends.
func (t *Transport) Close(connID string, _ string) error {
	if connID != t.connID {
		return errors.New("stdio transport: unknown connection " + connID)
	}
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Shutdown marks the transport closed; it closes neither the streams nor
// the Events channel. The read goroutine exits on its own once stdin hits
// EOF or the process exits, emitting EventDisconnected and closing Events.
func (t *Transport) Shutdown(context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
