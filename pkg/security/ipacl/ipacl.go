// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ipacl implements the IP access-control layer of the security
// pipeline: the whitelist -> blacklist -> temporary_block -> geo ->
// default-policy evaluation order, with a short-lived result cache
// invalidated whenever rules change. Rule patterns are literal addresses,
// CIDRs, or dotted wildcards ("192.168.*.*").
package ipacl

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tool-mesh/mcpcore/pkg/logger"
)

// Decision is the outcome of an Evaluate call.
type Decision struct {
	Allowed bool
	Reason  string
}

var (
	allow = Decision{Allowed: true, Reason: "default_allow"}
	deny  = Decision{Allowed: false, Reason: "default_deny"}
)

// GeoChecker resolves an IP to a country/region code, letting geo-blocking
// be implemented against any provider (MaxMind, a cloud IP-intelligence
// API, a static table) without ipacl depending on one.
type GeoChecker interface {
	// CountryCode returns the ISO 3166-1 alpha-2 country code for ip, or
	// "" if it cannot be determined.
	CountryCode(ctx context.Context, ip net.IP) (string, error)
}

// RuleType discriminates access rules.
type RuleType string

// Rule types.
const (
	RuleWhitelist      RuleType = "whitelist"
	RuleBlacklist      RuleType = "blacklist"
	RuleTemporaryBlock RuleType = "temporary_block"
)

// Rule is one IP access rule. Pattern is a literal IPv4/IPv6 address, a
// CIDR ("10.0.0.0/8"), or a dotted wildcard ("192.168.*.*"); the
// remaining fields travel with the rule into audit entries and admin
// listings. A zero ExpiresAt means the rule never expires.
type Rule struct {
	Type      RuleType       `json:"type"`
	Pattern   string         `json:"pattern"`
	Reason    string         `json:"reason,omitempty"`
	CreatedBy string         `json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at,omitzero"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	matcher matcher
}

func (r *Rule) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// matcher decides whether a rule pattern covers an address.
type matcher interface {
	match(ip net.IP) bool
}

type cidrMatcher struct{ ipnet *net.IPNet }

func (m cidrMatcher) match(ip net.IP) bool { return m.ipnet.Contains(ip) }

// wildcardMatcher matches IPv4 addresses octet-by-octet, "*" matching any
// value in its position.
type wildcardMatcher struct{ octets [4]string }

func (m wildcardMatcher) match(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	for i, want := range m.octets {
		if want == "*" {
			continue
		}
		if strconv.Itoa(int(v4[i])) != want {
			return false
		}
	}
	return true
}

// parsePattern accepts the three supported pattern forms: a CIDR, a
// dotted IPv4 wildcard, or a literal address (normalized to a
// full-length-mask CIDR).
func parsePattern(pattern string) (matcher, error) {
	if strings.Contains(pattern, "/") {
		_, ipnet, err := net.ParseCIDR(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", pattern, err)
		}
		return cidrMatcher{ipnet: ipnet}, nil
	}

	if strings.Contains(pattern, "*") {
		parts := strings.Split(pattern, ".")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid wildcard pattern %q: want four dotted octets", pattern)
		}
		var m wildcardMatcher
		for i, part := range parts {
			if part != "*" {
				n, err := strconv.Atoi(part)
				if err != nil || n < 0 || n > 255 {
					return nil, fmt.Errorf("invalid wildcard pattern %q: octet %q", pattern, part)
				}
				part = strconv.Itoa(n)
			}
			m.octets[i] = part
		}
		return m, nil
	}

	ip := net.ParseIP(pattern)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address %q", pattern)
	}
	if v4 := ip.To4(); v4 != nil {
		return cidrMatcher{ipnet: &net.IPNet{IP: v4, Mask: net.CIDRMask(32, 32)}}, nil
	}
	return cidrMatcher{ipnet: &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}}, nil
}

// cacheTTL is the per-IP result-cache lifetime.
const cacheTTL = 5 * time.Minute

type cacheEntry struct {
	decision Decision
	expires  time.Time
}

// List enforces the layered IP policy. Rule mutation (AddRule/Block/
// Unblock) invalidates the whole cache rather than tracking per-entry
// dependencies, since rule changes are rare relative to lookups.
type List struct {
	mu sync.Mutex

	allowByDefault bool
	whitelist      []*Rule
	blacklist      []*Rule
	blocked        map[string]*Rule // literal ip -> temporary_block rule

	blockedCountries map[string]struct{}
	geo              GeoChecker

	cache map[string]cacheEntry
	now   func() time.Time
}

// Config configures a new List.
type Config struct {
	AllowByDefault   bool
	Whitelist        []string
	Blacklist        []string
	BlockedCountries []string
	Geo              GeoChecker
}

// New builds a List from cfg. Entries that fail to parse are logged and
// skipped (malformed configuration should not make the whole ACL panic or
// fail closed for every address).
func New(cfg Config) *List {
	l := &List{
		allowByDefault:   cfg.AllowByDefault,
		blocked:          make(map[string]*Rule),
		blockedCountries: make(map[string]struct{}),
		geo:              cfg.Geo,
		cache:            make(map[string]cacheEntry),
		now:              time.Now,
	}
	for _, pattern := range cfg.Whitelist {
		if err := l.AddToWhitelist(pattern); err != nil {
			logger.Warnf("ipacl: skipping whitelist entry: %v", err)
		}
	}
	for _, pattern := range cfg.Blacklist {
		if err := l.AddToBlacklist(pattern); err != nil {
			logger.Warnf("ipacl: skipping blacklist entry: %v", err)
		}
	}
	for _, c := range cfg.BlockedCountries {
		l.blockedCountries[c] = struct{}{}
	}
	return l
}

// Evaluate applies the whitelist -> blacklist -> temporary_block -> geo ->
// default-policy order, caching the result for cacheTTL.
func (l *List) Evaluate(ctx context.Context, ipStr string) Decision {
	if d, ok := l.cached(ipStr); ok {
		return d
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return deny
	}

	d := l.evaluateUncached(ctx, ip)
	l.store(ipStr, d)
	return d
}

func (l *List) evaluateUncached(ctx context.Context, ip net.IP) Decision {
	if l.matchesAny(l.whitelistSnapshot(), ip) {
		return Decision{Allowed: true, Reason: "whitelist"}
	}
	if l.matchesAny(l.blacklistSnapshot(), ip) {
		return Decision{Allowed: false, Reason: "blacklist"}
	}
	if l.isTemporarilyBlocked(ip.String()) {
		return Decision{Allowed: false, Reason: "temporary_block"}
	}
	if blocked, reason := l.isGeoBlocked(ctx, ip); blocked {
		return Decision{Allowed: false, Reason: reason}
	}
	if l.allowByDefault {
		return allow
	}
	return deny
}

func (l *List) matchesAny(rules []*Rule, ip net.IP) bool {
	now := l.now()
	for _, r := range rules {
		if r.expired(now) {
			continue
		}
		if r.matcher.match(ip) {
			return true
		}
	}
	return false
}

func (l *List) whitelistSnapshot() []*Rule {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Rule(nil), l.whitelist...)
}

func (l *List) blacklistSnapshot() []*Rule {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Rule(nil), l.blacklist...)
}

func (l *List) isTemporarilyBlocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.blocked[ip]
	if !ok {
		return false
	}
	if r.expired(l.now()) {
		delete(l.blocked, ip)
		return false
	}
	return true
}

func (l *List) isGeoBlocked(ctx context.Context, ip net.IP) (bool, string) {
	if l.geo == nil || len(l.blockedCountries) == 0 {
		return false, ""
	}
	code, err := l.geo.CountryCode(ctx, ip)
	if err != nil || code == "" {
		return false, ""
	}
	if _, blocked := l.blockedCountries[code]; blocked {
		return true, "geo_blocked:" + code
	}
	return false, ""
}

// AddRule parses r.Pattern and installs r under its Type. The caller may
// fill Reason/CreatedBy/ExpiresAt/Metadata; CreatedAt is stamped here if
// unset.
func (l *List) AddRule(r Rule) error {
	m, err := parsePattern(r.Pattern)
	if err != nil {
		return err
	}
	r.matcher = m
	if r.CreatedAt.IsZero() {
		r.CreatedAt = l.now()
	}

	l.mu.Lock()
	switch r.Type {
	case RuleWhitelist:
		l.whitelist = append(l.whitelist, &r)
	case RuleBlacklist:
		l.blacklist = append(l.blacklist, &r)
	case RuleTemporaryBlock:
		l.blocked[r.Pattern] = &r
	default:
		l.mu.Unlock()
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	l.mu.Unlock()
	l.invalidate()
	return nil
}

// AddToWhitelist installs a whitelist rule for pattern.
func (l *List) AddToWhitelist(pattern string) error {
	return l.AddRule(Rule{Type: RuleWhitelist, Pattern: pattern})
}

// AddToBlacklist installs a blacklist rule for pattern.
func (l *List) AddToBlacklist(pattern string) error {
	return l.AddRule(Rule{Type: RuleBlacklist, Pattern: pattern})
}

// Block installs a temporary_block for ip lasting d, used by the pipeline
// orchestrator's automatic protection once a failure threshold is hit.
func (l *List) Block(ip string, d time.Duration) {
	_ = l.AddRule(Rule{
		Type:      RuleTemporaryBlock,
		Pattern:   ip,
		Reason:    "auto_block",
		CreatedBy: "security_pipeline",
		ExpiresAt: l.now().Add(d),
	})
}

// Unblock removes any temporary_block on ip.
func (l *List) Unblock(ip string) {
	l.mu.Lock()
	delete(l.blocked, ip)
	l.mu.Unlock()
	l.invalidate()
}

// Rules returns a snapshot of every live rule for admin listing, expired
// ones omitted.
func (l *List) Rules() []Rule {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make([]Rule, 0, len(l.whitelist)+len(l.blacklist)+len(l.blocked))
	for _, r := range l.whitelist {
		if !r.expired(now) {
			out = append(out, *r)
		}
	}
	for _, r := range l.blacklist {
		if !r.expired(now) {
			out = append(out, *r)
		}
	}
	for ip, r := range l.blocked {
		if r.expired(now) {
			delete(l.blocked, ip)
			continue
		}
		out = append(out, *r)
	}
	return out
}

func (l *List) cached(ip string) (Decision, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.cache[ip]
	if !ok || l.now().After(e.expires) {
		return Decision{}, false
	}
	return e.decision, true
}

func (l *List) store(ip string, d Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[ip] = cacheEntry{decision: d, expires: l.now().Add(cacheTTL)}
}

func (l *List) invalidate() {
	l.mu.Lock()
	l.cache = make(map[string]cacheEntry)
	l.mu.Unlock()
}
