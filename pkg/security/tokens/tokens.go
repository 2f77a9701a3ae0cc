// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tokens implements the session-token lifecycle:
// issuance, expiry-window refresh with rotation, revocation, and the
// max_sessions_per_user ceiling. Session bookkeeping is behind a Store
// interface with an in-process map implementation for a single instance
// and a Redis-backed one (github.com/redis/go-redis/v9) for sharing
// session state across replicas of this server.
package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
	"github.com/tool-mesh/mcpcore/pkg/security/auth"
)

// Session is the bookkeeping record behind an issued token.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists Sessions, supports the per-user ceiling check, and holds
// the revocation set: token hashes that must not validate until their
// original expiry passes, after which they are garbage-collected. All
// methods are safe for concurrent use.
type Store interface {
	Save(ctx context.Context, s Session, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (Session, bool, error)
	Delete(ctx context.Context, sessionID string) error
	CountForUser(ctx context.Context, userID string) (int, error)

	AddRevocation(ctx context.Context, tokenHash string, until time.Time) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// Manager issues, refreshes, and revokes session tokens, enforcing
// max_sessions_per_user and the refresh-window rule:
// a token can only be rotated within refreshWindow of its expiry, and the
// old token stops validating once rotated.
type Manager struct {
	authn           *auth.Authenticator
	store           Store
	ttl             time.Duration
	refreshWindow   time.Duration
	maxSessionsUser int
}

// NewManager constructs a Manager.
func NewManager(authn *auth.Authenticator, store Store, ttl, refreshWindow time.Duration, maxSessionsPerUser int) *Manager {
	return &Manager{
		authn:           authn,
		store:           store,
		ttl:             ttl,
		refreshWindow:   refreshWindow,
		maxSessionsUser: maxSessionsPerUser,
	}
}

// Issue creates a new session token for userID, refusing if the user has
// already reached maxSessionsUser live sessions.
func (m *Manager) Issue(ctx context.Context, sessionID, userID string) (string, error) {
	count, err := m.store.CountForUser(ctx, userID)
	if err != nil {
		return "", mcperrors.NewInternalError("counting sessions", err)
	}
	if m.maxSessionsUser > 0 && count >= m.maxSessionsUser {
		return "", mcperrors.NewAuthenticationError(fmt.Sprintf("user %s has reached the session limit", userID), nil)
	}

	tok, err := m.authn.IssueToken(sessionID, userID)
	if err != nil {
		return "", mcperrors.NewInternalError("issuing token", err)
	}

	now := time.Now()
	s := Session{SessionID: sessionID, UserID: userID, Token: tok, IssuedAt: now, ExpiresAt: now.Add(m.ttl)}
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return "", mcperrors.NewInternalError("saving session", err)
	}
	return tok, nil
}

// Refresh rotates sessionID's token if it is within refreshWindow of
// expiry, revoking the prior token. Outside the window it returns an
// error so callers keep using the existing token.
func (m *Manager) Refresh(ctx context.Context, sessionID string) (string, error) {
	s, ok, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return "", mcperrors.NewInternalError("loading session", err)
	}
	if !ok {
		return "", mcperrors.NewAuthenticationError("session not found", nil)
	}

	now := time.Now()
	if now.Before(s.ExpiresAt.Add(-m.refreshWindow)) {
		return "", mcperrors.NewAuthenticationError("session is not yet within its refresh window", nil)
	}
	if now.After(s.ExpiresAt) {
		_ = m.store.Delete(ctx, sessionID)
		return "", mcperrors.NewAuthenticationError("session has expired", nil)
	}

	tok, err := m.authn.IssueToken(sessionID, s.UserID)
	if err != nil {
		return "", mcperrors.NewInternalError("issuing token", err)
	}

	// The rotated-out token joins the revocation set for the remainder of
	// its original lifetime, so rotation invalidates it immediately.
	if err := m.store.AddRevocation(ctx, hashToken(s.Token), s.ExpiresAt); err != nil {
		return "", mcperrors.NewInternalError("revoking rotated token", err)
	}

	rotated := Session{SessionID: sessionID, UserID: s.UserID, Token: tok, IssuedAt: now, ExpiresAt: now.Add(m.ttl)}
	if err := m.store.Save(ctx, rotated, m.ttl); err != nil {
		return "", mcperrors.NewInternalError("saving rotated session", err)
	}
	return tok, nil
}

// Revoke invalidates sessionID's token immediately: the token hash enters
// the revocation set until the token's original expiry, then the session
// record is deleted.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	s, ok, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return mcperrors.NewInternalError("loading session", err)
	}
	if ok {
		if err := m.store.AddRevocation(ctx, hashToken(s.Token), s.ExpiresAt); err != nil {
			return mcperrors.NewInternalError("revoking token", err)
		}
	}
	return m.store.Delete(ctx, sessionID)
}

// IsRevoked implements auth.RevocationChecker. A store error counts as
// revoked: a token whose revocation status is unknown must not
// authenticate.
func (m *Manager) IsRevoked(token string) bool {
	revoked, err := m.store.IsRevoked(context.Background(), hashToken(token))
	if err != nil {
		return true
	}
	return revoked
}

// hashToken keeps raw token strings out of the store; only digests are
// persisted in the revocation set.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryStore is an in-process Store, sufficient for a single server
// instance or for tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memEntry
	revoked  map[string]time.Time // token hash -> original expiry
}

type memEntry struct {
	session Session
	expires time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memEntry),
		revoked:  make(map[string]time.Time),
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, session Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = memEntry{session: session, expires: time.Now().Add(ttl)}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, false, nil
	}
	if time.Now().After(e.expires) {
		delete(s.sessions, sessionID)
		return Session{}, false, nil
	}
	return e.session, true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// CountForUser implements Store.
func (s *MemoryStore) CountForUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now()
	for id, e := range s.sessions {
		if now.After(e.expires) {
			delete(s.sessions, id)
			continue
		}
		if e.session.UserID == userID {
			n++
		}
	}
	return n, nil
}

// AddRevocation implements Store.
func (s *MemoryStore) AddRevocation(_ context.Context, tokenHash string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenHash] = until
	return nil
}

// IsRevoked implements Store, garbage-collecting entries whose original
// expiry has passed.
func (s *MemoryStore) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[tokenHash]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(s.revoked, tokenHash)
		return false, nil
	}
	return true, nil
}

// RedisStore persists sessions in Redis so multiple server replicas share
// session state, grouping each user's live session ids in a Redis set for
// the max_sessions_per_user ceiling.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore. prefix namespaces keys (e.g.
// "mcpcore:sessions:") so the client can be shared with other subsystems.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) sessionKey(sessionID string) string { return r.prefix + "session:" + sessionID }
func (r *RedisStore) userSetKey(userID string) string    { return r.prefix + "user:" + userID }
func (r *RedisStore) revokedKey(tokenHash string) string { return r.prefix + "revoked:" + tokenHash }

// AddRevocation implements Store, letting the key's TTL garbage-collect
// the entry once the token's original expiry passes.
func (r *RedisStore) AddRevocation(ctx context.Context, tokenHash string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.revokedKey(tokenHash), "1", ttl).Err()
}

// IsRevoked implements Store.
func (r *RedisStore) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	n, err := r.client.Exists(ctx, r.revokedKey(tokenHash)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, s Session, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(s.SessionID), raw, ttl)
	pipe.SAdd(ctx, r.userSetKey(s.UserID), s.SessionID)
	pipe.Expire(ctx, r.userSetKey(s.UserID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, sessionID string) (Session, bool, error) {
	raw, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	s, ok, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(sessionID))
	if ok {
		pipe.SRem(ctx, r.userSetKey(s.UserID), sessionID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// CountForUser implements Store, pruning session ids whose key has
// already expired out of the user's set.
func (r *RedisStore) CountForUser(ctx context.Context, userID string) (int, error) {
	ids, err := r.client.SMembers(ctx, r.userSetKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionKey(id)
	}
	existing, err := r.client.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	if int(existing) != len(ids) {
		stale := make([]string, 0, len(ids))
		for i, id := range ids {
			if n, err := r.client.Exists(ctx, keys[i]).Result(); err == nil && n == 0 {
				stale = append(stale, id)
			}
		}
		if len(stale) > 0 {
			r.client.SRem(ctx, r.userSetKey(userID), toAny(stale)...)
		}
	}
	return int(existing), nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
