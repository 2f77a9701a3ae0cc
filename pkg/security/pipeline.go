// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package security

import (
	"context"
	"time"

	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
	"github.com/tool-mesh/mcpcore/pkg/security/audit"
	"github.com/tool-mesh/mcpcore/pkg/security/auth"
	"github.com/tool-mesh/mcpcore/pkg/security/authz"
	"github.com/tool-mesh/mcpcore/pkg/security/ipacl"
	"github.com/tool-mesh/mcpcore/pkg/security/ratelimit"
)

// Request is what the Pipeline evaluates for a single inbound MCP call.
type Request struct {
	Credential auth.Credential
	IPAddress  string
	Operation  string // "resource:action", also used as the rate-limit operation key
	Params     map[string]any
}

// Pipeline enforces a strict layer order: Authenticate -> IP ACL -> Rate
// Limit -> Authorize -> Audit. Each layer either advances the request or
// produces exactly one audit entry and stops; the catalog is never
// invoked for a request that fails any layer (the chain returns before
// the caller can reach it).
type Pipeline struct {
	Authn    *auth.Authenticator
	IPACL    *ipacl.List
	RateLim  *ratelimit.Limiter
	Authz    *authz.Authorizer
	AuditLog *audit.Logger
	Failures *audit.FailureWindow

	MaxFailuresBeforeBlock int
	BlockDuration          time.Duration
}

// Result is what a successful pipeline run produces: the caller's
// identity, ready to execute the operation against the catalog.
type Result struct {
	Context Context
}

// Evaluate runs req through all five layers, returning the caller's
// security.Context on success or a *errors.Error identifying the layer
// that denied the request.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (Result, error) {
	sc, err := p.Authn.Authenticate(req.Credential, req.IPAddress)
	if err != nil {
		p.Failures.Record("auth_failure", req.IPAddress)
		p.audit(ctx, audit.TypeAuthentication, Context{IPAddress: req.IPAddress}, req, "denied:authentication")
		p.maybeAutoBlock(req.IPAddress)
		return Result{}, err
	}

	if d := p.IPACL.Evaluate(ctx, req.IPAddress); !d.Allowed {
		p.audit(ctx, audit.TypeSecurityEvent, sc, req, "denied:ip_acl:"+d.Reason)
		return Result{}, mcperrors.NewAuthorizationError("ip address denied: "+d.Reason, nil)
	}

	if d, rlErr := p.RateLim.Allow(sc.ClientID, "normal", req.Operation); rlErr != nil {
		p.audit(ctx, audit.TypeError, sc, req, "error:rate_limit")
		return Result{}, rlErr
	} else if !d.Allowed {
		p.Failures.Record("rate_limit_denied", sc.ClientID)
		p.audit(ctx, audit.TypeRateLimit, sc, req, "denied:rate_limit")
		return Result{}, mcperrors.NewRateLimitedError("rate limit exceeded", ratelimit.RetryAfterSeconds(d))
	}

	if err := p.Authz.Authorize(sc, req.Operation); err != nil {
		p.Failures.Record("security_event", sc.ClientID)
		p.audit(ctx, audit.TypeAuthorization, sc, req, "denied:authorization")
		return Result{}, err
	}

	p.audit(ctx, audit.TypeOperation, sc, req, "allowed")
	return Result{Context: sc}, nil
}

func (p *Pipeline) maybeAutoBlock(ip string) {
	if p.MaxFailuresBeforeBlock <= 0 {
		return
	}
	if p.Failures.Exceeds("auth_failure", ip, p.MaxFailuresBeforeBlock) {
		p.IPACL.Block(ip, p.BlockDuration)
	}
}

func (p *Pipeline) audit(ctx context.Context, t audit.EntryType, sc Context, req Request, result string) {
	if p.AuditLog == nil {
		return
	}
	entry := audit.New(t, sc.ClientID, sc.UserID, sc.SessionID, req.Operation, result, req.Params, map[string]any{
		"ip": req.IPAddress,
	})
	_ = p.AuditLog.Write(ctx, entry)
}
