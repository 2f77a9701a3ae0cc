// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientsPutGetRemove(t *testing.T) {
	t.Parallel()
	c := NewClients()

	c.Put(ClientInfo{SessionID: "s1", Name: "test-client", Version: "0.0"})
	info, ok := c.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "test-client", info.Name)
	assert.Equal(t, 1, c.Count())

	c.Remove("s1")
	_, ok = c.Get("s1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Count())
}

func TestClientsList(t *testing.T) {
	t.Parallel()
	c := NewClients()
	c.Put(ClientInfo{SessionID: "a"})
	c.Put(ClientInfo{SessionID: "b"})
	assert.Len(t, c.List(), 2)
}

func TestCompositionsGetMissing(t *testing.T) {
	t.Parallel()
	r := NewCompositions[int]()
	_, err := r.Get("missing")
	require.Error(t, err)
}

func TestCompositionsRoundTrip(t *testing.T) {
	t.Parallel()
	r := NewCompositions[string]()
	r.Put("wf1", "running")
	v, err := r.Get("wf1")
	require.NoError(t, err)
	assert.Equal(t, "running", v)

	assert.Equal(t, []string{"wf1"}, r.List())

	r.Remove("wf1")
	_, err = r.Get("wf1")
	require.Error(t, err)
}
