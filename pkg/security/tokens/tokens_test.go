// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tool-mesh/mcpcore/pkg/security/auth"
)

func newTestAuthn() *auth.Authenticator {
	return auth.New([]byte("secret"), time.Hour, func(string) []string { return nil })
}

func TestManager_IssueThenRefreshWithinWindow(t *testing.T) {
	t.Parallel()
	m := NewManager(newTestAuthn(), NewMemoryStore(), 100*time.Millisecond, time.Hour, 5)

	tok, err := m.Issue(t.Context(), "s1", "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	newTok, err := m.Refresh(t.Context(), "s1")
	require.NoError(t, err)
	assert.NotEqual(t, tok, newTok)
}

func TestManager_RefreshOutsideWindowIsRejected(t *testing.T) {
	t.Parallel()
	m := NewManager(newTestAuthn(), NewMemoryStore(), time.Hour, time.Minute, 5)

	_, err := m.Issue(t.Context(), "s1", "u1")
	require.NoError(t, err)

	_, err = m.Refresh(t.Context(), "s1")
	require.Error(t, err)
}

func TestManager_EnforcesMaxSessionsPerUser(t *testing.T) {
	t.Parallel()
	m := NewManager(newTestAuthn(), NewMemoryStore(), time.Hour, time.Minute, 2)

	_, err := m.Issue(t.Context(), "s1", "u1")
	require.NoError(t, err)
	_, err = m.Issue(t.Context(), "s2", "u1")
	require.NoError(t, err)

	_, err = m.Issue(t.Context(), "s3", "u1")
	require.Error(t, err)
}

func TestManager_RevokeInvalidatesSession(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	m := NewManager(newTestAuthn(), store, time.Hour, time.Minute, 5)

	_, err := m.Issue(t.Context(), "s1", "u1")
	require.NoError(t, err)
	require.NoError(t, m.Revoke(t.Context(), "s1"))

	_, ok, err := store.Get(t.Context(), "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "mcpcore:test:")
}

func TestRedisStore_SaveGetDeleteRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestRedisStore(t)

	s := Session{SessionID: "s1", UserID: "u1", Token: "tok", IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(t.Context(), s, time.Hour))

	got, ok, err := store.Get(t.Context(), "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", got.UserID)

	n, err := store.CountForUser(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Delete(t.Context(), "s1"))
	_, ok, err = store.Get(t.Context(), "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_RevokedTokenStopsAuthenticating(t *testing.T) {
	t.Parallel()
	authn := newTestAuthn()
	m := NewManager(authn, NewMemoryStore(), time.Hour, time.Minute, 5)
	authn.SetRevocationChecker(m)

	tok, err := m.Issue(t.Context(), "s1", "u1")
	require.NoError(t, err)

	_, err = authn.Authenticate(auth.Credential{Token: tok}, "1.2.3.4")
	require.NoError(t, err)

	require.NoError(t, m.Revoke(t.Context(), "s1"))

	_, err = authn.Authenticate(auth.Credential{Token: tok}, "1.2.3.4")
	require.Error(t, err)
	assert.True(t, m.IsRevoked(tok))
}

func TestManager_RefreshRevokesPriorToken(t *testing.T) {
	t.Parallel()
	authn := newTestAuthn()
	// refreshWindow > ttl makes the session refreshable immediately.
	m := NewManager(authn, NewMemoryStore(), time.Hour, 2*time.Hour, 5)
	authn.SetRevocationChecker(m)

	old, err := m.Issue(t.Context(), "s1", "u1")
	require.NoError(t, err)

	rotated, err := m.Refresh(t.Context(), "s1")
	require.NoError(t, err)
	require.NotEqual(t, old, rotated)

	_, err = authn.Authenticate(auth.Credential{Token: old}, "1.2.3.4")
	require.Error(t, err)

	_, err = authn.Authenticate(auth.Credential{Token: rotated}, "1.2.3.4")
	require.NoError(t, err)
}

func TestMemoryStore_RevocationExpiresWithOriginalTTL(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()

	require.NoError(t, store.AddRevocation(t.Context(), "h1", time.Now().Add(50*time.Millisecond)))
	revoked, err := store.IsRevoked(t.Context(), "h1")
	require.NoError(t, err)
	assert.True(t, revoked)

	time.Sleep(80 * time.Millisecond)
	revoked, err = store.IsRevoked(t.Context(), "h1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisStore_RevocationRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestRedisStore(t)

	require.NoError(t, store.AddRevocation(t.Context(), "h1", time.Now().Add(time.Hour)))
	revoked, err := store.IsRevoked(t.Context(), "h1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(t.Context(), "h2")
	require.NoError(t, err)
	assert.False(t, revoked)
}
