// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the authentication layer of the security
// pipeline: verifying a signed session token or a raw API key and
// producing a security.Context. Session tokens are
// github.com/golang-jwt/jwt/v5 claims HMAC-signed with a per-server
// secret.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
	"github.com/tool-mesh/mcpcore/pkg/security"
)

// Credential is the shape accepted by Authenticator.Authenticate:
// `{token: signed-string}` or `{apiKey: >=32-char string}`.
type Credential struct {
	Token  string
	APIKey string
}

const minAPIKeyLength = 32

// claims is the payload of a session token, signed with HS256 over a
// per-server secret.
type claims struct {
	jwt.RegisteredClaims
	UserID       string   `json:"user_id"`
	Capabilities []string `json:"capabilities"`
}

// RevocationChecker reports whether a token has been revoked ahead of its
// natural expiry. The session-token Manager implements this over its
// revocation set.
type RevocationChecker interface {
	IsRevoked(token string) bool
}

// Authenticator issues and verifies session tokens and validates API keys.
// It keeps no per-IP failure state; the security pipeline counts
// authentication failures itself to drive the automatic temporary_block.
type Authenticator struct {
	secret []byte
	ttl    time.Duration

	// capabilitiesForUser resolves a verified user id (from a token or an
	// API key) to its granted capability set. In this core, capability
	// resolution is the catalog/IdentityProvider's job — wired in by the
	// embedding binary — so it is injected rather than hardcoded.
	capabilitiesForUser func(userID string) []string

	revocations RevocationChecker
}

// New constructs an Authenticator. secret is the per-server signing
// secret (security.token_salt); ttl is security.token_ttl_seconds.
func New(secret []byte, ttl time.Duration, capabilitiesForUser func(string) []string) *Authenticator {
	return &Authenticator{
		secret:              secret,
		ttl:                 ttl,
		capabilitiesForUser: capabilitiesForUser,
	}
}

// SetRevocationChecker wires the revocation set consulted on every token
// validation. It is a setter rather than a constructor argument because
// the token Manager that implements it is itself built over this
// Authenticator.
func (a *Authenticator) SetRevocationChecker(rc RevocationChecker) {
	a.revocations = rc
}

// IssueToken signs a new session token for sessionID/userID.
func (a *Authenticator) IssueToken(sessionID, userID string) (string, error) {
	now := time.Now()
	// The jti keeps every issued token distinct even within the same
	// second, so revoking one token never affects its successor.
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		UserID: userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(a.secret)
}

// Authenticate verifies cred and returns a security.Context, or a
// *errors.Error of type ErrAuthentication. Callers (the security Pipeline)
// are responsible for feeding failures into the IP auto-block counter —
// Authenticate itself is stateless with respect to the IP.
func (a *Authenticator) Authenticate(cred Credential, ip string) (security.Context, error) {
	switch {
	case cred.Token != "":
		return a.authenticateToken(cred.Token, ip)
	case cred.APIKey != "":
		return a.authenticateAPIKey(cred.APIKey, ip)
	default:
		return security.Context{}, mcperrors.NewAuthenticationError("no credential provided", nil)
	}
}

func (a *Authenticator) authenticateToken(tok string, ip string) (security.Context, error) {
	parsed, err := jwt.ParseWithClaims(tok, &claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return security.Context{}, mcperrors.NewAuthenticationError("invalid token", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return security.Context{}, mcperrors.NewAuthenticationError("invalid token claims", nil)
	}
	if a.revocations != nil && a.revocations.IsRevoked(tok) {
		return security.Context{}, mcperrors.NewAuthenticationError("token has been revoked", nil)
	}
	return a.buildContext(c.UserID, c.Subject, ip), nil
}

func (a *Authenticator) authenticateAPIKey(key string, ip string) (security.Context, error) {
	if len(key) < minAPIKeyLength {
		return security.Context{}, mcperrors.NewAuthenticationError("api key too short", nil)
	}
	userID := pseudonymousUserID(key)
	return a.buildContext(userID, "", ip), nil
}

func (a *Authenticator) buildContext(userID, sessionID, ip string) security.Context {
	var caps []string
	if a.capabilitiesForUser != nil {
		caps = a.capabilitiesForUser(userID)
	}
	capSet := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		capSet[c] = struct{}{}
	}
	return security.Context{
		ClientID:     userID,
		UserID:       userID,
		SessionID:    sessionID,
		IPAddress:    ip,
		Capabilities: capSet,
	}
}

// pseudonymousUserID maps an API key deterministically to a stable,
// non-reversible user id.
func pseudonymousUserID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "apikey-" + hex.EncodeToString(sum[:])[:16]
}

// ErrNoCredential is returned when neither a token nor an API key is set.
var ErrNoCredential = errors.New("no credential provided")
