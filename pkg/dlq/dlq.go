// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package dlq implements the dead-letter queue a failed signal lands
// in once its original delivery attempt exhausts, its exponential-backoff
// retry schedule, and the retention cleanup that ages entries out after a
// configurable window.
package dlq

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

// Status is an Entry's lifecycle state.
type Status string

// Entry lifecycle states.
const (
	StatusPending          Status = "pending"
	StatusPermanentlyFailed Status = "permanently_failed"
)

// HistoryRecord is one attempt recorded in an Entry's processing_history.
type HistoryRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
}

// Entry is one dead-lettered signal: the payload that failed processing,
// its error, and its retry schedule.
type Entry struct {
	ID               string          `json:"id"`
	OriginalSignal   any             `json:"original_signal"`
	Error            string          `json:"error"`
	ErrorMessage     string          `json:"error_message"`
	RetryCount       int             `json:"retry_count"`
	NextRetryAt      *time.Time      `json:"next_retry_at"`
	Status           Status          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ProcessingHistory []HistoryRecord `json:"processing_history"`
}

// Stats summarizes queue contents for stats().
type Stats struct {
	Total             int `json:"total"`
	Pending           int `json:"pending"`
	PermanentlyFailed int `json:"permanently_failed"`
}

// Filter narrows list() to a subset of entries.
type Filter struct {
	Status Status
}

// Router dispatches a DLQ entry's signal back through the system for a
// retry attempt; it returns an error if the redelivery attempt failed.
type Router func(ctx context.Context, signal any) error

// AddOptions customizes add() beyond the mandatory signal/error pair.
type AddOptions struct {
	ErrorMessage string
}

// Queue is the in-process dead-letter queue. Entries live in a map
// guarded by a mutex; the scheduler copies due entries out from under the
// lock before dispatching, so a tick works against a consistent snapshot.
type Queue struct {
	mu      sync.Mutex
	entries map[string]*Entry

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	retention  time.Duration

	router Router
}

// New constructs a Queue. maxRetries/baseDelay/maxDelay/retention mirror
// the dlq.* configuration keys.
func New(router Router, maxRetries int, baseDelay, maxDelay, retention time.Duration) *Queue {
	return &Queue{
		entries:    make(map[string]*Entry),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		retention:  retention,
		router:     router,
	}
}

// Add files a failed signal into the queue and returns its id.
func (q *Queue) Add(signal any, cause error, opts AddOptions) string {
	id := uuid.NewString()
	now := time.Now()
	next := now.Add(q.delayFor(0))

	msg := opts.ErrorMessage
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	errStr := ""
	if cause != nil {
		errStr = cause.Error()
	}

	entry := &Entry{
		ID:             id,
		OriginalSignal: signal,
		Error:          errStr,
		ErrorMessage:   msg,
		RetryCount:     0,
		NextRetryAt:    &next,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	q.mu.Lock()
	q.entries[id] = entry
	q.mu.Unlock()
	return id
}

// Get returns the entry with the given id.
func (q *Queue) Get(id string) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return nil, mcperrors.New(mcperrors.ErrNotFound, "dlq entry not found: "+id, nil)
	}
	return cloneEntry(e), nil
}

// List returns every entry matching filter (zero-value Filter matches all).
func (q *Queue) List(filter Filter) []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Entry, 0, len(q.entries))
	for _, e := range q.entries {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out
}

// Stats summarizes queue contents.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Total: len(q.entries)}
	for _, e := range q.entries {
		switch e.Status {
		case StatusPending:
			s.Pending++
		case StatusPermanentlyFailed:
			s.PermanentlyFailed++
		}
	}
	return s
}

// Remove deletes an entry outright (manual discard).
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[id]; !ok {
		return mcperrors.New(mcperrors.ErrNotFound, "dlq entry not found: "+id, nil)
	}
	delete(q.entries, id)
	return nil
}

// Clear empties the queue entirely.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[string]*Entry)
}

// Retry forces an immediate redelivery attempt for id, bypassing its
// scheduled next_retry_at (manual replay).
func (q *Queue) Retry(ctx context.Context, id string) error {
	q.mu.Lock()
	entry, ok := q.entries[id]
	q.mu.Unlock()
	if !ok {
		return mcperrors.New(mcperrors.ErrNotFound, "dlq entry not found: "+id, nil)
	}
	q.attempt(ctx, entry)
	return nil
}

// RunScheduler blocks, dispatching due entries to the router every tick,
// until ctx is cancelled.
func (q *Queue) RunScheduler(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.tick(ctx)
		}
	}
}

func (q *Queue) tick(ctx context.Context) {
	now := time.Now()
	q.mu.Lock()
	due := make([]*Entry, 0)
	for _, e := range q.entries {
		if e.Status == StatusPending && e.NextRetryAt != nil && !e.NextRetryAt.After(now) && e.RetryCount < q.maxRetries {
			due = append(due, e)
		}
	}
	q.mu.Unlock()

	for _, e := range due {
		q.attempt(ctx, e)
	}
}

func (q *Queue) attempt(ctx context.Context, entry *Entry) {
	var dispatchErr error
	if q.router != nil {
		dispatchErr = q.router(ctx, entry.OriginalSignal)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if dispatchErr == nil {
		delete(q.entries, entry.ID)
		return
	}

	entry.RetryCount++
	entry.UpdatedAt = time.Now()
	entry.ProcessingHistory = append(entry.ProcessingHistory, HistoryRecord{
		Timestamp: entry.UpdatedAt,
		Attempt:   entry.RetryCount,
		Error:     dispatchErr.Error(),
	})

	if entry.RetryCount >= q.maxRetries {
		entry.Status = StatusPermanentlyFailed
		entry.NextRetryAt = nil
		return
	}

	next := entry.UpdatedAt.Add(q.delayFor(entry.RetryCount))
	entry.NextRetryAt = &next
}

// delayFor computes `min(base * 2^retryCount, max_delay)`
// using cenkalti/backoff/v5's ExponentialBackOff as the deterministic
// interval generator: with RandomizationFactor zeroed out, its Nth call
// (1-indexed) returns base*multiplier^(N-1), so requesting call
// retryCount+1 yields exactly base*2^retryCount, capped at MaxInterval.
func (q *Queue) delayFor(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.baseDelay
	b.Multiplier = 2
	b.MaxInterval = q.maxDelay
	b.RandomizationFactor = 0

	var delay time.Duration
	for i := 0; i <= retryCount; i++ {
		next, err := b.NextBackOff()
		if err != nil {
			return q.maxDelay
		}
		delay = next
	}
	return delay
}

// RunRetentionSweep blocks, deleting every entry (whatever its status)
// created longer ago than the configured retention window every tick, until
// ctx is cancelled.
func (q *Queue) RunRetentionSweep(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweep()
		}
	}
}

func (q *Queue) sweep() {
	cutoff := time.Now().Add(-q.retention)
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, e := range q.entries {
		if e.CreatedAt.Before(cutoff) {
			delete(q.entries, id)
		}
	}
}

func cloneEntry(e *Entry) *Entry {
	out := *e
	if e.NextRetryAt != nil {
		next := *e.NextRetryAt
		out.NextRetryAt = &next
	}
	out.ProcessingHistory = append([]HistoryRecord(nil), e.ProcessingHistory...)
	return &out
}
