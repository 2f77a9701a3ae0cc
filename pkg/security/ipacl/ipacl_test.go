// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ipacl

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeo struct{ codes map[string]string }

func (g *fakeGeo) CountryCode(_ context.Context, ip net.IP) (string, error) {
	return g.codes[ip.String()], nil
}

func TestEvaluate_WhitelistTakesPriorityOverBlacklist(t *testing.T) {
	t.Parallel()
	l := New(Config{
		AllowByDefault: false,
		Whitelist:      []string{"10.0.0.0/8"},
		Blacklist:      []string{"10.0.0.0/8"},
	})
	d := l.Evaluate(context.Background(), "10.1.2.3")
	assert.True(t, d.Allowed)
	assert.Equal(t, "whitelist", d.Reason)
}

func TestEvaluate_BlacklistDenies(t *testing.T) {
	t.Parallel()
	l := New(Config{AllowByDefault: true, Blacklist: []string{"192.168.0.0/16"}})
	d := l.Evaluate(context.Background(), "192.168.1.1")
	assert.False(t, d.Allowed)
	assert.Equal(t, "blacklist", d.Reason)
}

func TestEvaluate_DefaultPolicyAppliesWhenNoRuleMatches(t *testing.T) {
	t.Parallel()
	allow := New(Config{AllowByDefault: true})
	assert.True(t, allow.Evaluate(context.Background(), "8.8.8.8").Allowed)

	deny := New(Config{AllowByDefault: false})
	assert.False(t, deny.Evaluate(context.Background(), "8.8.8.8").Allowed)
}

func TestEvaluate_TemporaryBlockExpiresAndUnblocks(t *testing.T) {
	t.Parallel()
	l := New(Config{AllowByDefault: true})
	l.Block("1.2.3.4", time.Minute)

	d := l.Evaluate(context.Background(), "1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, "temporary_block", d.Reason)

	l.Unblock("1.2.3.4")
	d = l.Evaluate(context.Background(), "1.2.3.4")
	assert.True(t, d.Allowed)
}

func TestEvaluate_GeoBlockDeniesConfiguredCountry(t *testing.T) {
	t.Parallel()
	l := New(Config{
		AllowByDefault:   true,
		BlockedCountries: []string{"NK"},
		Geo:              &fakeGeo{codes: map[string]string{"3.3.3.3": "NK"}},
	})
	d := l.Evaluate(context.Background(), "3.3.3.3")
	assert.False(t, d.Allowed)
	assert.Equal(t, "geo_blocked:NK", d.Reason)
}

func TestEvaluate_MalformedIPIsDenied(t *testing.T) {
	t.Parallel()
	l := New(Config{AllowByDefault: true})
	d := l.Evaluate(context.Background(), "not-an-ip")
	assert.False(t, d.Allowed)
}

func TestEvaluate_ResultIsCachedUntilInvalidated(t *testing.T) {
	t.Parallel()
	l := New(Config{AllowByDefault: true})

	first := l.Evaluate(context.Background(), "4.4.4.4")
	require.True(t, first.Allowed)

	require.NoError(t, l.AddToBlacklist("4.4.4.4/32"))
	second := l.Evaluate(context.Background(), "4.4.4.4")
	assert.False(t, second.Allowed)
}

func TestEvaluate_LiteralAddressRules(t *testing.T) {
	t.Parallel()
	l := New(Config{AllowByDefault: true, Blacklist: []string{"203.0.113.5"}})

	assert.False(t, l.Evaluate(context.Background(), "203.0.113.5").Allowed)
	assert.True(t, l.Evaluate(context.Background(), "203.0.113.6").Allowed)

	require.NoError(t, l.AddToWhitelist("2001:db8::1"))
	d := l.Evaluate(context.Background(), "2001:db8::1")
	assert.True(t, d.Allowed)
	assert.Equal(t, "whitelist", d.Reason)
}

func TestEvaluate_DottedWildcardRules(t *testing.T) {
	t.Parallel()
	l := New(Config{AllowByDefault: true, Blacklist: []string{"192.168.*.*"}})

	assert.False(t, l.Evaluate(context.Background(), "192.168.1.1").Allowed)
	assert.False(t, l.Evaluate(context.Background(), "192.168.254.7").Allowed)
	assert.True(t, l.Evaluate(context.Background(), "192.169.1.1").Allowed)

	require.NoError(t, l.AddToBlacklist("10.*.3.*"))
	assert.False(t, l.Evaluate(context.Background(), "10.200.3.9").Allowed)
	assert.True(t, l.Evaluate(context.Background(), "10.200.4.9").Allowed)
}

func TestAddRule_RejectsMalformedPatterns(t *testing.T) {
	t.Parallel()
	l := New(Config{AllowByDefault: true})

	assert.Error(t, l.AddToBlacklist("not-an-ip"))
	assert.Error(t, l.AddToBlacklist("10.0.0.0/64"))
	assert.Error(t, l.AddToBlacklist("192.168.*"))
	assert.Error(t, l.AddToBlacklist("192.168.*.999"))
}

func TestAddRule_CarriesMetadataIntoListing(t *testing.T) {
	t.Parallel()
	l := New(Config{AllowByDefault: true})
	require.NoError(t, l.AddRule(Rule{
		Type:      RuleBlacklist,
		Pattern:   "198.51.100.0/24",
		Reason:    "abuse report #4411",
		CreatedBy: "ops",
		Metadata:  map[string]any{"ticket": "SEC-4411"},
	}))
	l.Block("1.2.3.4", time.Minute)

	rules := l.Rules()
	require.Len(t, rules, 2)

	var black, block *Rule
	for i := range rules {
		switch rules[i].Type {
		case RuleBlacklist:
			black = &rules[i]
		case RuleTemporaryBlock:
			block = &rules[i]
		}
	}
	require.NotNil(t, black)
	assert.Equal(t, "abuse report #4411", black.Reason)
	assert.Equal(t, "ops", black.CreatedBy)
	assert.Equal(t, "SEC-4411", black.Metadata["ticket"])
	assert.False(t, black.CreatedAt.IsZero())

	require.NotNil(t, block)
	assert.Equal(t, "1.2.3.4", block.Pattern)
	assert.Equal(t, "auto_block", block.Reason)
	assert.False(t, block.ExpiresAt.IsZero())
}

func TestRuleExpiryIsHonored(t *testing.T) {
	t.Parallel()
	l := New(Config{AllowByDefault: true})
	require.NoError(t, l.AddRule(Rule{
		Type:      RuleBlacklist,
		Pattern:   "5.5.5.5",
		ExpiresAt: time.Now().Add(-time.Second),
	}))

	assert.True(t, l.Evaluate(context.Background(), "5.5.5.5").Allowed)
	assert.Empty(t, l.Rules())
}
