// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

type recordingSender struct {
	mu       sync.Mutex
	sent     []string
	failNext map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{failNext: make(map[string]bool)}
}

func (s *recordingSender) Send(connID string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, connID)
	if s.failNext[connID] {
		return assertErr{"send failed"}
	}
	return nil
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestEnqueueAcknowledgeRemovesMessage(t *testing.T) {
	t.Parallel()
	q := New(nil, 5, time.Millisecond, time.Second)
	id := q.Enqueue("conn-1", []byte("hi"), PriorityNormal)
	require.NoError(t, q.Acknowledge(id))
	assert.Equal(t, 1, q.Stats().Acknowledged)
	assert.Equal(t, 0, q.Stats().Pending)

	err := q.Acknowledge(id)
	require.Error(t, err)
	assert.True(t, mcperrors.Is(err, mcperrors.ErrNotFound))
}

func TestReportDeliveryFailureBacksOffThenDeadLetters(t *testing.T) {
	t.Parallel()
	q := New(nil, 3, time.Millisecond, time.Second)
	id := q.Enqueue("conn-1", []byte("hi"), PriorityNormal)

	require.NoError(t, q.ReportDeliveryFailure(id, "timeout"))
	assert.Equal(t, 1, q.Stats().Pending)

	require.NoError(t, q.ReportDeliveryFailure(id, "timeout"))
	assert.Equal(t, 1, q.Stats().Pending)

	require.NoError(t, q.ReportDeliveryFailure(id, "timeout"))
	assert.Equal(t, 0, q.Stats().Pending)

	err := q.Acknowledge(id)
	require.Error(t, err)
}

func TestReportDeliveryFailureUnknownID(t *testing.T) {
	t.Parallel()
	q := New(nil, 3, time.Millisecond, time.Second)
	err := q.ReportDeliveryFailure("missing", "x")
	require.Error(t, err)
	assert.True(t, mcperrors.Is(err, mcperrors.ErrNotFound))
}

func TestSchedulerRedeliversDueMessages(t *testing.T) {
	t.Parallel()
	q := New(nil, 5, time.Millisecond, time.Second)
	q.Enqueue("conn-1", []byte("hi"), PriorityNormal)

	sender := newRecordingSender()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go q.RunScheduler(ctx, sender, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) >= 1
	}, 90*time.Millisecond, 5*time.Millisecond)
}

func TestSchedulerFailureReschedulesMessage(t *testing.T) {
	t.Parallel()
	q := New(nil, 5, time.Millisecond, time.Second)
	id := q.Enqueue("conn-1", []byte("hi"), PriorityNormal)

	sender := newRecordingSender()
	sender.failNext["conn-1"] = true

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	go q.RunScheduler(ctx, sender, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) >= 1
	}, 50*time.Millisecond, 5*time.Millisecond)

	msg, ok := q.pending[id]
	require.True(t, ok)
	assert.GreaterOrEqual(t, msg.Attempts, 1)
}
