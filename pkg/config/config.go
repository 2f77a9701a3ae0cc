// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the server-wide configuration with viper: a YAML
// file layered under "MCPCORE_"-prefixed environment overrides, with
// every default registered in code.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every recognized tunable.
type Config struct {
	Protocol struct {
		RequestTimeoutMS int `mapstructure:"request_timeout_ms"`
	} `mapstructure:"protocol"`

	Session struct {
		MaxSessions            int `mapstructure:"max_sessions"`
		MaxConcurrentRequests  int `mapstructure:"max_concurrent_requests"`
		MaxSessionsPerUser     int `mapstructure:"max_sessions_per_user"`
	} `mapstructure:"session"`

	Security struct {
		TokenTTLSeconds      int    `mapstructure:"token_ttl_seconds"`
		RefreshWindowSeconds int    `mapstructure:"refresh_window_seconds"`
		TokenSalt            string `mapstructure:"token_salt"`
		RequestMaxSizeBytes   int64  `mapstructure:"request_max_size_bytes"`
	} `mapstructure:"security"`

	RateLimit struct {
		Global struct {
			MaxTokens   float64 `mapstructure:"max_tokens"`
			RefillRate  float64 `mapstructure:"refill_rate"`
			Burst       float64 `mapstructure:"burst"`
		} `mapstructure:"global"`
		Client struct {
			Priority map[string]float64 `mapstructure:"priority"`
		} `mapstructure:"client"`
		OperationCosts map[string]int `mapstructure:"operation_costs"`
	} `mapstructure:"ratelimit"`

	IPACL struct {
		AllowByDefault        bool `mapstructure:"allow_by_default"`
		MaxFailuresBeforeBlock int  `mapstructure:"max_failures_before_block"`
		BlockDurationSeconds   int  `mapstructure:"block_duration_seconds"`
		EnableGeoBlocking      bool `mapstructure:"enable_geo_blocking"`
	} `mapstructure:"ip_acl"`

	Audit struct {
		RetentionDays      int   `mapstructure:"retention_days"`
		FileRotationBytes  int64 `mapstructure:"file_rotation_bytes"`
	} `mapstructure:"audit"`

	DLQ struct {
		MaxRetries   int   `mapstructure:"max_retries"`
		BaseDelayMS  int   `mapstructure:"base_delay_ms"`
		MaxDelayMS   int   `mapstructure:"max_delay_ms"`
		RetentionDays int  `mapstructure:"retention_days"`
	} `mapstructure:"dlq"`

	Delivery struct {
		MaxAttempts int `mapstructure:"max_attempts"`
		BaseDelayMS int `mapstructure:"base_delay_ms"`
		MaxDelayMS  int `mapstructure:"max_delay_ms"`
	} `mapstructure:"delivery"`
}

// RequestTimeout returns protocol.request_timeout_ms as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Protocol.RequestTimeoutMS) * time.Millisecond
}

// TokenTTL returns security.token_ttl_seconds as a duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Security.TokenTTLSeconds) * time.Second
}

// RefreshWindow returns security.refresh_window_seconds as a duration.
func (c *Config) RefreshWindow() time.Duration {
	return time.Duration(c.Security.RefreshWindowSeconds) * time.Second
}

// BlockDuration returns ip_acl.block_duration_seconds as a duration.
func (c *Config) BlockDuration() time.Duration {
	return time.Duration(c.IPACL.BlockDurationSeconds) * time.Second
}

// DLQBaseDelay returns dlq.base_delay_ms as a duration.
func (c *Config) DLQBaseDelay() time.Duration {
	return time.Duration(c.DLQ.BaseDelayMS) * time.Millisecond
}

// DLQMaxDelay returns dlq.max_delay_ms as a duration.
func (c *Config) DLQMaxDelay() time.Duration {
	return time.Duration(c.DLQ.MaxDelayMS) * time.Millisecond
}

// DeliveryBaseDelay returns delivery.base_delay_ms as a duration.
func (c *Config) DeliveryBaseDelay() time.Duration {
	return time.Duration(c.Delivery.BaseDelayMS) * time.Millisecond
}

// DeliveryMaxDelay returns delivery.max_delay_ms as a duration.
func (c *Config) DeliveryMaxDelay() time.Duration {
	return time.Duration(c.Delivery.MaxDelayMS) * time.Millisecond
}

// Default returns a Config populated entirely with built-in defaults.
func Default() *Config {
	v := newViperWithDefaults()
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		// Defaults are registered in code below; unmarshal can only fail
		// on a type mismatch we control, so this would be a programming
		// error, not a runtime condition.
		panic(err)
	}
	return &c
}

// Load reads configuration from path (YAML), falling back to defaults for
// any key not present, then applies MCPCORE_-prefixed environment overrides.
func Load(path string) (*Config, error) {
	v := newViperWithDefaults()
	v.SetEnvPrefix("MCPCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func newViperWithDefaults() *viper.Viper {
	v := viper.New()

	v.SetDefault("protocol.request_timeout_ms", 30_000)

	v.SetDefault("session.max_sessions", 100)
	v.SetDefault("session.max_concurrent_requests", 50)
	v.SetDefault("session.max_sessions_per_user", 5)

	v.SetDefault("security.token_ttl_seconds", 3600)
	v.SetDefault("security.refresh_window_seconds", 300)
	v.SetDefault("security.token_salt", "")
	v.SetDefault("security.request_max_size_bytes", 1_048_576)

	v.SetDefault("ratelimit.global.max_tokens", 10_000.0)
	v.SetDefault("ratelimit.global.refill_rate", 100.0)
	v.SetDefault("ratelimit.global.burst", 1_000.0)
	v.SetDefault("ratelimit.client.priority.normal", 1.0)
	v.SetDefault("ratelimit.client.priority.high", 2.0)
	v.SetDefault("ratelimit.client.priority.critical", 5.0)
	v.SetDefault("ratelimit.operation_costs", map[string]int{
		"tools/list":             1,
		"tools/call":             5,
		"resources/read":         2,
		"workflows/execute":      20,
		"sampling/createMessage": 15,
	})

	v.SetDefault("ip_acl.allow_by_default", true)
	v.SetDefault("ip_acl.max_failures_before_block", 5)
	v.SetDefault("ip_acl.block_duration_seconds", 300)
	v.SetDefault("ip_acl.enable_geo_blocking", false)

	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.file_rotation_bytes", 100_000_000)

	v.SetDefault("dlq.max_retries", 3)
	v.SetDefault("dlq.base_delay_ms", 1_000)
	v.SetDefault("dlq.max_delay_ms", 300_000)
	v.SetDefault("dlq.retention_days", 7)

	v.SetDefault("delivery.max_attempts", 5)
	v.SetDefault("delivery.base_delay_ms", 500)
	v.SetDefault("delivery.max_delay_ms", 60_000)

	return v
}

// DefaultOperationCost is used when an operation has no entry in
// ratelimit.operation_costs.
const DefaultOperationCost = 1

// OperationCost returns the configured token cost for an operation. The
// security pipeline's capability strings use colon form ("tools:call") to
// match authz's "resource:action" convention, while the config writes
// the cost table in slash form ("tools/call"); a lookup miss retries once
// with ':' normalized to '/' so either form resolves to the same cost.
func (c *Config) OperationCost(operation string) int {
	if cost, ok := c.RateLimit.OperationCosts[operation]; ok {
		return cost
	}
	if normalized := strings.ReplaceAll(operation, ":", "/"); normalized != operation {
		if cost, ok := c.RateLimit.OperationCosts[normalized]; ok {
			return cost
		}
	}
	return DefaultOperationCost
}
