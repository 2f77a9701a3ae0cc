// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// OIDCVerifier is a JWKS-backed catalog.IdentityProvider: it
// verifies an upstream-issued bearer token against an OIDC provider's
// JWKS instead of this server's own HMAC session tokens, for deployments
// that front mcpcore with an existing identity provider rather than
// relying on locally-issued session tokens.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/tool-mesh/mcpcore/pkg/catalog"
	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
	"github.com/tool-mesh/mcpcore/pkg/logger"
)

// OIDCConfig configures an OIDCVerifier.
type OIDCConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
}

// OIDCVerifier validates bearer tokens issued by an external OIDC
// provider, using jwx's auto-refreshing JWKS cache to resolve signing
// keys by "kid".
type OIDCVerifier struct {
	issuer   string
	audience string
	jwksURL  string
	cache    *jwk.Cache
}

// NewOIDCVerifier constructs an OIDCVerifier and registers its JWKS URL
// with an auto-refreshing cache.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.JWKSURL == "" {
		return nil, mcperrors.NewInvalidArgumentError("jwks url is required", nil)
	}
	cache, err := jwk.NewCache(ctx, jwk.NewFetcher())
	if err != nil {
		return nil, mcperrors.NewInternalError("constructing jwks cache", err)
	}
	if err := cache.Register(ctx, cfg.JWKSURL); err != nil {
		return nil, mcperrors.NewInternalError("registering jwks url", err)
	}
	return &OIDCVerifier{issuer: cfg.Issuer, audience: cfg.Audience, jwksURL: cfg.JWKSURL, cache: cache}, nil
}

// Verify implements catalog.IdentityProvider: it validates tok's
// signature against the JWKS, then its issuer/audience/expiry, returning
// an Identity keyed on the token's subject.
func (v *OIDCVerifier) Verify(ctx context.Context, cred catalog.Credential) (*catalog.Identity, error) {
	if cred.Token == "" {
		return nil, mcperrors.NewAuthenticationError("no bearer token provided", nil)
	}

	token, err := jwt.Parse(cred.Token, func(tok *jwt.Token) (any, error) {
		return v.resolveKey(ctx, tok)
	})
	if err != nil || !token.Valid {
		logger.Debugf("oidc: token validation failed: %v", err)
		return nil, mcperrors.NewAuthenticationError("invalid bearer token", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, mcperrors.NewAuthenticationError("token has no usable claims", nil)
	}

	if err := v.validateClaims(claims); err != nil {
		return nil, mcperrors.NewAuthenticationError(err.Error(), err)
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return nil, mcperrors.NewAuthenticationError("token is missing a subject", nil)
	}

	return &catalog.Identity{UserID: subject, Metadata: map[string]string{"auth_method": "oidc"}}, nil
}

// Capabilities implements catalog.IdentityProvider with a minimal default:
// OIDC identities carry no capability claims of their own in this core,
// so capability resolution is left to the embedding binary's
// capabilitiesForUser mapping (the same hook Authenticator.buildContext
// uses for session tokens).
func (v *OIDCVerifier) Capabilities(context.Context, *catalog.Identity) ([]string, error) {
	return nil, nil
}

func (v *OIDCVerifier) resolveKey(ctx context.Context, token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token header missing kid")
	}

	keySet, err := v.cache.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get jwks: %w", err)
	}
	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key id %s not found in jwks", kid)
	}
	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export key: %w", err)
	}
	return rawKey, nil
}

func (v *OIDCVerifier) validateClaims(claims jwt.MapClaims) error {
	if v.issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != v.issuer {
			return fmt.Errorf("invalid issuer")
		}
	}
	if v.audience != "" {
		auds, err := claims.GetAudience()
		if err != nil {
			return fmt.Errorf("invalid audience")
		}
		found := false
		for _, a := range auds {
			if a == v.audience {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("invalid audience")
		}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fmt.Errorf("token has no expiration")
	}
	return nil
}
