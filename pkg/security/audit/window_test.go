// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// clock lets tests drive FailureWindow.now deterministically.
type clock struct{ t time.Time }

func (c *clock) now() time.Time  { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestWindow(window time.Duration) (*FailureWindow, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := NewFailureWindow(window)
	w.now = c.now
	return w, c
}

func TestFailureWindow_CountsWithinWindow(t *testing.T) {
	t.Parallel()
	w, _ := newTestWindow(time.Minute)

	w.Record("auth_failure", "1.2.3.4")
	w.Record("auth_failure", "1.2.3.4")
	w.Record("auth_failure", "5.6.7.8")

	assert.Equal(t, 2, w.Count("auth_failure", "1.2.3.4"))
	assert.Equal(t, 1, w.Count("auth_failure", "5.6.7.8"))
}

func TestFailureWindow_PrunesExpiredEvents(t *testing.T) {
	t.Parallel()
	w, c := newTestWindow(time.Minute)

	w.Record("auth_failure", "1.2.3.4")
	c.advance(30 * time.Second)
	w.Record("auth_failure", "1.2.3.4")
	c.advance(31 * time.Second)

	assert.Equal(t, 1, w.Count("auth_failure", "1.2.3.4"))
}

func TestFailureWindow_Exceeds(t *testing.T) {
	t.Parallel()
	w, _ := newTestWindow(time.Minute)

	for i := 0; i < 4; i++ {
		w.Record("auth_failure", "1.2.3.4")
	}
	assert.False(t, w.Exceeds("auth_failure", "1.2.3.4", 5))

	w.Record("auth_failure", "1.2.3.4")
	assert.True(t, w.Exceeds("auth_failure", "1.2.3.4", 5))
}

func TestFailureWindow_MetricsAreIsolated(t *testing.T) {
	t.Parallel()
	w, _ := newTestWindow(time.Minute)

	w.Record("auth_failure", "1.2.3.4")
	assert.Equal(t, 0, w.Count("rate_limit_denied", "1.2.3.4"))
}
