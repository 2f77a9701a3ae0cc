// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PopulatesDocumentedDefaults(t *testing.T) {
	t.Parallel()
	c := Default()

	assert.Equal(t, 30_000, c.Protocol.RequestTimeoutMS)
	assert.Equal(t, 100, c.Session.MaxSessions)
	assert.Equal(t, 50, c.Session.MaxConcurrentRequests)
	assert.Equal(t, 5, c.Session.MaxSessionsPerUser)
	assert.Equal(t, 3600, c.Security.TokenTTLSeconds)
	assert.EqualValues(t, 1_048_576, c.Security.RequestMaxSizeBytes)
	assert.Equal(t, 5, c.OperationCost("tools/call"))
	assert.Equal(t, 1, c.OperationCost("ping"))
	assert.Equal(t, 3, c.DLQ.MaxRetries)
}

func TestLoad_OverridesFromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  max_sessions: 7\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, c.Session.MaxSessions)
	// Untouched keys keep their spec default.
	assert.Equal(t, 50, c.Session.MaxConcurrentRequests)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MCPCORE_SESSION_MAX_SESSIONS", "42")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, c.Session.MaxSessions)
}
