// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the id -> handle lookup tables the server core
// uses (connected clients keyed by session id, and compiled workflows keyed
// by workflow id): concurrency-safe maps with Put/Get/List/Remove.
package registry

import (
	"sync"

	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

// ClientInfo records one connected MCP client, keyed by session id.
type ClientInfo struct {
	SessionID    string
	ConnID       string
	Name         string
	Version      string
	Capabilities map[string]any
}

// Clients is the session-id -> ClientInfo registry the server core populates
// on a successful initialize handshake and clears on session termination.
type Clients struct {
	mu      sync.RWMutex
	entries map[string]ClientInfo
}

// NewClients constructs an empty client registry.
func NewClients() *Clients {
	return &Clients{entries: make(map[string]ClientInfo)}
}

// Put registers or replaces the client entry for sessionID.
func (c *Clients) Put(info ClientInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[info.SessionID] = info
}

// Remove deletes sessionID's entry, if any.
func (c *Clients) Remove(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// Get returns sessionID's entry.
func (c *Clients) Get(sessionID string) (ClientInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.entries[sessionID]
	return info, ok
}

// List returns a snapshot of all registered clients.
func (c *Clients) List() []ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ClientInfo, 0, len(c.entries))
	for _, info := range c.entries {
		out = append(out, info)
	}
	return out
}

// Count reports the number of registered clients.
func (c *Clients) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Compositions is a generic id -> handle registry. The server core stores
// each graph compiled by workflows/create in one under the returned
// workflow id, so workflows/execute can look it up by id.
type Compositions[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// NewCompositions constructs an empty composition registry.
func NewCompositions[T any]() *Compositions[T] {
	return &Compositions[T]{entries: make(map[string]T)}
}

// Put registers handle under id, overwriting any prior entry.
func (r *Compositions[T]) Put(id string, handle T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = handle
}

// Get looks up id, returning mcperrors.ErrNotFound if absent.
func (r *Compositions[T]) Get(id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, mcperrors.New(mcperrors.ErrNotFound, "no entry registered for id "+id, nil)
	}
	return h, nil
}

// Remove deletes id's entry, if any.
func (r *Compositions[T]) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// List returns a snapshot of all registered ids.
func (r *Compositions[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}
