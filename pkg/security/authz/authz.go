// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authz implements the authorization layer of the security
// pipeline: deciding whether a verified security.Context may perform a
// "resource:action" capability. Grants are compiled into a
// cedar.PolicySet and evaluated as a cedar.Request per call; this package adapts
// that shape to capability strings instead of Kubernetes-resource ACLs by
// compiling one Cedar policy per granted capability pattern, using Cedar's
// `like` operator to express the "tools:*" wildcard grants.
package authz

import (
	"fmt"
	"strings"
	"sync"

	cedar "github.com/cedar-policy/cedar-go"
	"github.com/cedar-policy/cedar-go/types"

	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
	"github.com/tool-mesh/mcpcore/pkg/security"
)

const (
	principalType = "User"
	actionID      = "Invoke"
	resourceType  = "Capability"
	resourceID    = "Capability"
	contextKey    = "required"
)

// Authorizer evaluates capability grants via per-identity Cedar policy
// sets. Policy sets are cached per distinct grant list, since identical
// users/roles generate identical policies and recompiling a PolicySet on
// every call would cost more than the checks it serves.
type Authorizer struct {
	mu    sync.Mutex
	cache map[string]*cedar.PolicySet
}

// New constructs an Authorizer.
func New() *Authorizer {
	return &Authorizer{cache: make(map[string]*cedar.PolicySet)}
}

// Authorize reports whether sc's granted capabilities permit required
// ("resource:action", possibly with a "*" segment on the required side is
// not meaningful — required is always a concrete action being attempted).
// It returns a *errors.Error of type ErrAuthorization on denial.
func (a *Authorizer) Authorize(sc security.Context, required string) error {
	granted := make([]string, 0, len(sc.Capabilities))
	for c := range sc.Capabilities {
		granted = append(granted, c)
	}

	ps, err := a.policySetFor(granted)
	if err != nil {
		return mcperrors.NewAuthorizationError(fmt.Sprintf("invalid capability grants: %v", err), err)
	}

	req := cedar.Request{
		Principal: types.NewEntityUID(principalType, types.String(sc.UserID)),
		Action:    types.NewEntityUID("Action", actionID),
		Resource:  types.NewEntityUID(resourceType, resourceID),
		Context: types.NewRecord(types.RecordMap{
			contextKey: types.String(required),
		}),
	}

	decision, _ := ps.IsAuthorized(types.EntityMap{}, req)
	if decision != types.Allow {
		return mcperrors.NewAuthorizationError(fmt.Sprintf("capability %q not granted", required), nil)
	}
	return nil
}

// policySetFor returns a cached PolicySet compiled from granted, sorted
// and joined to form the cache key so equivalent grant sets (in any
// order) share one compiled set.
func (a *Authorizer) policySetFor(granted []string) (*cedar.PolicySet, error) {
	key := cacheKey(granted)

	a.mu.Lock()
	if ps, ok := a.cache[key]; ok {
		a.mu.Unlock()
		return ps, nil
	}
	a.mu.Unlock()

	ps, err := compile(granted)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[key] = ps
	a.mu.Unlock()
	return ps, nil
}

func cacheKey(granted []string) string {
	sorted := append([]string(nil), granted...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return strings.Join(sorted, ",")
}

// compile builds one permit policy per granted capability pattern. A
// pattern containing "*" is translated into Cedar's `like` glob operator
// (Cedar uses the same "*" wildcard character, so capability patterns
// carry over unescaped); an exact pattern is compared with `==`.
func compile(granted []string) (*cedar.PolicySet, error) {
	var sb strings.Builder
	for i, pattern := range granted {
		if strings.Contains(pattern, "*") {
			fmt.Fprintf(&sb, "@id(\"cap%d\")\npermit(principal, action, resource) when { context.%s like \"%s\" };\n",
				i, contextKey, cedarEscape(pattern))
		} else {
			fmt.Fprintf(&sb, "@id(\"cap%d\")\npermit(principal, action, resource) when { context.%s == \"%s\" };\n",
				i, contextKey, cedarEscape(pattern))
		}
	}
	if sb.Len() == 0 {
		// No grants at all: an empty policy set denies everything, which is
		// the correct default for an identity with zero capabilities.
		return cedar.NewPolicySet(), nil
	}
	return cedar.NewPolicySetFromBytes("capabilities.cedar", []byte(sb.String()))
}

// cedarEscape neutralizes characters that would break out of a Cedar
// string literal. Capability patterns are server-controlled (derived from
// configuration/role definitions, never raw user input), so this is a
// defense-in-depth measure rather than a hard security boundary.
func cedarEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
