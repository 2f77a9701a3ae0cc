// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package queue implements at-least-once message delivery to
// connection-oriented transports whose clients may be momentarily
// offline. Every outbound message is tracked under a delivery id until
// the client acknowledges it; an explicit failure report backs off and
// redelivers, and a message that exhausts its attempts is handed to the
// dead-letter queue.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/tool-mesh/mcpcore/pkg/dlq"
	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

// Priority orders pending redelivery; higher values are attempted first
// on a tie at the scheduler tick.
type Priority int

// Priority levels, matching the client priority names used elsewhere in
// the security pipeline's rate limiter.
const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityCritical
)

// Sender delivers a raw payload to a connection; implemented by a
// transport.Port in production, a recording fake in tests.
type Sender interface {
	Send(connID string, raw []byte) error
}

// Message is one outbound delivery tracked by the queue.
type Message struct {
	ID            string    `json:"id"`
	ConnID        string    `json:"conn_id"`
	Payload       []byte    `json:"-"`
	Priority      Priority  `json:"priority"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"created_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LastError     string    `json:"last_error,omitempty"`
}

// Stats summarizes queue contents.
type Stats struct {
	Pending       int `json:"pending"`
	DeadLettered  int `json:"dead_lettered"`
	Acknowledged  int `json:"acknowledged_total"`
}

// Queue tracks in-flight deliveries for connection-oriented transports
// whose clients may be offline when a message is produced.
type Queue struct {
	mu       sync.Mutex
	pending  map[string]*Message
	acked    int

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	sink DLQAdder
}

// DLQAdder is the subset of *dlq.Queue the delivery layer depends on:
// only the hand-off operation for a message that exhausted its delivery
// attempts.
type DLQAdder interface {
	Add(signal any, cause error, opts dlq.AddOptions) string
}

// New constructs a Queue. sink may be nil, in which case exhausted
// messages are simply dropped with their last error recorded nowhere
// (acceptable for transports that do not wire a dead-letter queue).
func New(sink DLQAdder, maxAttempts int, baseDelay, maxDelay time.Duration) *Queue {
	return &Queue{
		pending:     make(map[string]*Message),
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		sink:        sink,
	}
}

// Enqueue files a new outbound message and returns its delivery id.
func (q *Queue) Enqueue(connID string, payload []byte, priority Priority) string {
	id := uuid.NewString()
	now := time.Now()
	msg := &Message{
		ID:            id,
		ConnID:        connID,
		Payload:       payload,
		Priority:      priority,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
	q.mu.Lock()
	q.pending[id] = msg
	q.mu.Unlock()
	return id
}

// Acknowledge removes a message once the client confirms receipt.
func (q *Queue) Acknowledge(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		return mcperrors.New(mcperrors.ErrNotFound, "delivery id not found: "+id, nil)
	}
	delete(q.pending, id)
	q.acked++
	return nil
}

// ReportDeliveryFailure records an explicit failure for id, scheduling a
// backoff retry or, once maxAttempts is exhausted, handing the message to
// the dead-letter sink and removing it from this queue.
func (q *Queue) ReportDeliveryFailure(id string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.pending[id]
	if !ok {
		return mcperrors.New(mcperrors.ErrNotFound, "delivery id not found: "+id, nil)
	}

	msg.Attempts++
	msg.LastError = reason

	if msg.Attempts >= q.maxAttempts {
		delete(q.pending, id)
		if q.sink != nil {
			q.sink.Add(msg, mcperrors.New(mcperrors.ErrInternal, reason, nil), dlq.AddOptions{ErrorMessage: reason})
		}
		return nil
	}

	msg.NextAttemptAt = time.Now().Add(q.delayFor(msg.Attempts))
	return nil
}

// delayFor computes the backoff interval before redelivery attempt n
// (1-indexed), using the same deterministic cenkalti/backoff/v5
// exponential generator pkg/dlq uses for its own retry schedule.
func (q *Queue) delayFor(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.baseDelay
	b.Multiplier = 2
	b.MaxInterval = q.maxDelay
	b.RandomizationFactor = 0

	var delay time.Duration
	for i := 0; i < attempt; i++ {
		next, err := b.NextBackOff()
		if err != nil {
			return q.maxDelay
		}
		delay = next
	}
	return delay
}

// Stats summarizes queue contents.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Pending: len(q.pending), Acknowledged: q.acked}
}

// RunScheduler redelivers due messages via sender every tick, until ctx
// is cancelled. A Send error is treated as an implicit delivery failure
// report for that message.
func (q *Queue) RunScheduler(ctx context.Context, sender Sender, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.dispatchDue(sender)
		}
	}
}

func (q *Queue) dispatchDue(sender Sender) {
	now := time.Now()
	q.mu.Lock()
	due := make([]*Message, 0)
	for _, m := range q.pending {
		if !m.NextAttemptAt.After(now) {
			due = append(due, m)
		}
	}
	q.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].Priority > due[j].Priority })

	for _, m := range due {
		if err := sender.Send(m.ConnID, m.Payload); err != nil {
			_ = q.ReportDeliveryFailure(m.ID, err.Error())
		}
	}
}
