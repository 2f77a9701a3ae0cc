// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissionQueue_TryAdmit_Open(t *testing.T) {
	t.Parallel()
	q := newAdmissionQueue(0)
	admitted, done := q.TryAdmit()
	require.True(t, admitted)
	require.NotNil(t, done)
	done()
}

func TestAdmissionQueue_EnforcesLimit(t *testing.T) {
	t.Parallel()
	q := newAdmissionQueue(2)

	_, done1 := q.TryAdmit()
	_, done2 := q.TryAdmit()
	require.NotNil(t, done1)
	require.NotNil(t, done2)

	admitted, done3 := q.TryAdmit()
	assert.False(t, admitted)
	assert.Nil(t, done3)

	done1()
	admitted, done4 := q.TryAdmit()
	assert.True(t, admitted)
	require.NotNil(t, done4)
	done4()
	done2()
}

func TestAdmissionQueue_CloseAndDrain_BlocksUntilDone(t *testing.T) {
	t.Parallel()
	q := newAdmissionQueue(0)

	admitted, done := q.TryAdmit()
	require.True(t, admitted)

	drainDone := make(chan struct{})
	go func() {
		q.CloseAndDrain()
		close(drainDone)
	}()

	select {
	case <-drainDone:
		t.Fatal("CloseAndDrain returned before in-flight request completed")
	case <-time.After(50 * time.Millisecond):
	}

	done()
	select {
	case <-drainDone:
	case <-time.After(time.Second):
		t.Fatal("CloseAndDrain did not return after done() was called")
	}
}

func TestAdmissionQueue_AfterCloseRejectsAll(t *testing.T) {
	t.Parallel()
	q := newAdmissionQueue(0)
	q.CloseAndDrain()

	admitted, done := q.TryAdmit()
	assert.False(t, admitted)
	assert.Nil(t, done)
}
