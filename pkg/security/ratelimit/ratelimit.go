// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit implements the rate-limit layer of the security
// pipeline: a hierarchical global -> client -> operation token-bucket
// check with lazy refill and burst allowance. It wraps
// golang.org/x/time/rate.Limiter (reserve-then-cancel for a non-blocking,
// all-or-nothing check across buckets).
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

// BucketConfig configures one token bucket's steady-state refill rate and
// maximum burst. A bucket holds at most Burst tokens and starts full;
// MaxTokens is not read by Limiter and does not add to that capacity.
type BucketConfig struct {
	MaxTokens  float64
	RefillRate float64
	Burst      float64
}

// Limiter enforces the three-tier bucket hierarchy: one global
// bucket, one bucket per client (scaled by the client's priority), and one
// bucket per (client, operation) pair sized from the operation's cost.
type Limiter struct {
	mu sync.Mutex

	global *rate.Limiter

	clientCfg      BucketConfig
	clientPriority map[string]float64
	clients        map[string]*rate.Limiter

	operationCost func(operation string) int
	operations    map[string]*rate.Limiter
}

// New constructs a Limiter. clientPriority maps a priority name
// ("normal","high","critical") to a multiplier applied to clientCfg's
// rate and burst; operationCost resolves an MCP method to its token cost.
func New(global BucketConfig, clientCfg BucketConfig, clientPriority map[string]float64, operationCost func(string) int) *Limiter {
	return &Limiter{
		global:         rate.NewLimiter(rate.Limit(global.RefillRate), int(global.Burst)),
		clientCfg:      clientCfg,
		clientPriority: clientPriority,
		clients:        make(map[string]*rate.Limiter),
		operationCost:  operationCost,
		operations:     make(map[string]*rate.Limiter),
	}
}

// Decision is the hierarchical check's outcome.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Allow checks whether clientID may perform operation "now", consuming
// tokens from the global, client, and operation buckets atomically: if any
// tier denies, tokens tentatively reserved in the others are returned.
func (l *Limiter) Allow(clientID, priority, operation string) (Decision, error) {
	cost := 1
	if l.operationCost != nil {
		cost = l.operationCost(operation)
	}
	if cost < 1 {
		cost = 1
	}

	now := time.Now()

	globalRes := l.global.ReserveN(now, cost)
	if !globalRes.OK() {
		return Decision{}, mcperrors.NewInvalidArgumentError(fmt.Sprintf("operation cost %d exceeds global burst", cost), nil)
	}
	if d := globalRes.DelayFrom(now); d > 0 {
		globalRes.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: d}, nil
	}

	clientLimiter := l.clientLimiterFor(clientID, priority)
	clientRes := clientLimiter.ReserveN(now, cost)
	if !clientRes.OK() {
		globalRes.CancelAt(now)
		return Decision{}, mcperrors.NewInvalidArgumentError(fmt.Sprintf("operation cost %d exceeds client burst", cost), nil)
	}
	if d := clientRes.DelayFrom(now); d > 0 {
		globalRes.CancelAt(now)
		clientRes.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: d}, nil
	}

	opLimiter := l.operationLimiterFor(clientID, operation, cost)
	opRes := opLimiter.ReserveN(now, cost)
	if !opRes.OK() {
		globalRes.CancelAt(now)
		clientRes.CancelAt(now)
		return Decision{}, mcperrors.NewInvalidArgumentError(fmt.Sprintf("operation cost %d exceeds operation burst", cost), nil)
	}
	if d := opRes.DelayFrom(now); d > 0 {
		globalRes.CancelAt(now)
		clientRes.CancelAt(now)
		opRes.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: d}, nil
	}

	return Decision{Allowed: true}, nil
}

func (l *Limiter) clientLimiterFor(clientID, priority string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.clients[clientID]; ok {
		return lim
	}
	mult := l.clientPriority[priority]
	if mult <= 0 {
		mult = 1
	}
	lim := rate.NewLimiter(rate.Limit(l.clientCfg.RefillRate*mult), int(l.clientCfg.Burst*mult))
	l.clients[clientID] = lim
	return lim
}

// operationLimiterFor lazily creates a per-(client,operation) bucket that
// refills at the client bucket's (priority-scaled) rate and holds the
// client bucket's burst, or four times the operation's cost if that is
// larger.
func (l *Limiter) operationLimiterFor(clientID, operation string, cost int) *rate.Limiter {
	key := clientID + "\x00" + operation

	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.operations[key]; ok {
		return lim
	}
	refill, clientBurst := rate.Limit(l.clientCfg.RefillRate), l.clientCfg.Burst
	if clientLim, ok := l.clients[clientID]; ok {
		refill, clientBurst = clientLim.Limit(), float64(clientLim.Burst())
	}
	burst := int(math.Max(float64(cost*4), clientBurst))
	lim := rate.NewLimiter(refill, burst)
	l.operations[key] = lim
	return lim
}

// RetryAfterSeconds converts a Decision's delay into the whole-second
// ceiling used for the Retry-After hint.
func RetryAfterSeconds(d Decision) int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}
