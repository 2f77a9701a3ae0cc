// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

func newTestAuthenticator() *Authenticator {
	return New([]byte("test-secret"), time.Hour, func(userID string) []string {
		return []string{"tools:*"}
	})
}

func TestIssueTokenThenAuthenticate(t *testing.T) {
	t.Parallel()
	a := newTestAuthenticator()

	tok, err := a.IssueToken("session-1", "user-1")
	require.NoError(t, err)

	sc, err := a.Authenticate(Credential{Token: tok}, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "user-1", sc.UserID)
	assert.Equal(t, "session-1", sc.SessionID)
	assert.True(t, sc.HasCapability("tools:call"))
}

func TestAuthenticate_RejectsExpiredToken(t *testing.T) {
	t.Parallel()
	a := New([]byte("s"), -time.Hour, func(string) []string { return nil })
	tok, err := a.IssueToken("s1", "u1")
	require.NoError(t, err)

	_, err = a.Authenticate(Credential{Token: tok}, "1.2.3.4")
	require.Error(t, err)
	assert.True(t, mcperrors.Is(err, mcperrors.ErrAuthentication))
}

func TestAuthenticate_RejectsShortAPIKey(t *testing.T) {
	t.Parallel()
	a := newTestAuthenticator()
	_, err := a.Authenticate(Credential{APIKey: "short"}, "1.2.3.4")
	require.Error(t, err)
}

func TestAuthenticate_APIKeyIsDeterministicAndPseudonymous(t *testing.T) {
	t.Parallel()
	a := newTestAuthenticator()
	key := strings.Repeat("k", 40)

	sc1, err := a.Authenticate(Credential{APIKey: key}, "1.2.3.4")
	require.NoError(t, err)
	sc2, err := a.Authenticate(Credential{APIKey: key}, "5.6.7.8")
	require.NoError(t, err)

	assert.Equal(t, sc1.UserID, sc2.UserID)
	assert.NotEqual(t, key, sc1.UserID)
}

func TestAuthenticate_NoCredential(t *testing.T) {
	t.Parallel()
	a := newTestAuthenticator()
	_, err := a.Authenticate(Credential{}, "1.2.3.4")
	require.Error(t, err)
}

type listChecker struct{ revoked map[string]bool }

func (c *listChecker) IsRevoked(token string) bool { return c.revoked[token] }

func TestAuthenticate_ConsultsRevocationChecker(t *testing.T) {
	t.Parallel()
	a := newTestAuthenticator()
	checker := &listChecker{revoked: map[string]bool{}}
	a.SetRevocationChecker(checker)

	tok, err := a.IssueToken("session-1", "user-1")
	require.NoError(t, err)

	_, err = a.Authenticate(Credential{Token: tok}, "1.2.3.4")
	require.NoError(t, err)

	checker.revoked[tok] = true
	_, err = a.Authenticate(Credential{Token: tok}, "1.2.3.4")
	require.Error(t, err)
	assert.True(t, mcperrors.Is(err, mcperrors.ErrAuthentication))
}

func TestIssueToken_TokensAreUniquePerIssue(t *testing.T) {
	t.Parallel()
	a := newTestAuthenticator()

	first, err := a.IssueToken("session-1", "user-1")
	require.NoError(t, err)
	second, err := a.IssueToken("session-1", "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
