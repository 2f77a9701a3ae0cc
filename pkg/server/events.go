// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"github.com/tool-mesh/mcpcore/pkg/catalog"
	"github.com/tool-mesh/mcpcore/pkg/logger"
	"github.com/tool-mesh/mcpcore/pkg/session"
)

// Bus topic forms the server listens on: per-uri resource change topics,
// and the aggregate list-changed events broadcast to every session.
const (
	resourceTopicPrefix = "mcp:resources:"

	toolsListChangedTopic     = "mcp:events:tools_list_changed"
	resourcesListChangedTopic = "mcp:events:resources_list_changed"
	promptsListChangedTopic   = "mcp:events:prompts_list_changed"
)

// AttachEventBus wires an optional catalog.EventBus into the server:
// per-uri resource subscriptions start relaying catalog change events as
// notifications/resources/updated (or .../deleted), the aggregate
// list-changed topics are broadcast to every bound session, and reactive
// workflows become registrable. Must be called before Run. A server
// without a bus still serves every request method; subscriptions simply
// never observe changes.
func (s *Server) AttachEventBus(bus catalog.EventBus) {
	s.bus = bus
}

// watchListChanges subscribes to the three aggregate list-changed topics
// and broadcasts each firing to every bound session.
func (s *Server) watchListChanges(ctx context.Context) {
	topics := map[string]string{
		toolsListChangedTopic:     "notifications/tools/list_changed",
		resourcesListChangedTopic: "notifications/resources/list_changed",
		promptsListChangedTopic:   "notifications/prompts/list_changed",
	}
	for topic, method := range topics {
		ch, cancel, err := s.bus.Subscribe(ctx, topic)
		if err != nil {
			logger.Warnf("server: failed to subscribe %s: %v", topic, err)
			continue
		}
		go func(method string) {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-ch:
					if !ok {
						return
					}
					s.broadcast(method, map[string]any{})
				}
			}
		}(method)
	}
}

// broadcast sends a notification to every bound session.
func (s *Server) broadcast(method string, params any) {
	s.mu.RLock()
	sessions := make([]*session.Session, 0, len(s.conns))
	for _, entry := range s.conns {
		sessions = append(sessions, entry.sess)
	}
	s.mu.RUnlock()
	for _, sess := range sessions {
		sess.Notify(method, params)
	}
}

// watchResource relays change events for one subscribed uri into sess as
// updated/deleted notifications until the subscription is cancelled. The
// catalog publishes to "mcp:resources:<uri>"; a payload map carrying
// `deleted: true` marks a deletion.
func (s *Server) watchResource(entry *connEntry, sess *session.Session, uri string) {
	if s.bus == nil {
		return
	}
	ctx := s.runContext()
	ch, cancel, err := s.bus.Subscribe(ctx, resourceTopicPrefix+uri)
	if err != nil {
		logger.Warnf("server: failed to subscribe resource topic for %s: %v", uri, err)
		return
	}
	entry.addWatch(uri, cancel)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				deleted := false
				if m, isMap := msg.(map[string]any); isMap {
					deleted, _ = m["deleted"].(bool)
				}
				sess.NotifyResourceChange(uri, deleted)
			}
		}
	}()
}

// unwatchResource cancels a prior watchResource for uri, if any.
func (s *Server) unwatchResource(entry *connEntry, uri string) {
	entry.removeWatch(uri)
}

// runContext returns the context Run is draining under, or Background
// when Run has not started (direct-call unit tests).
func (s *Server) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}
