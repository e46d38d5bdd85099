// Package identity implements the external identity verifier contract:
// each verifier validates an identity-provider attestation and returns the
// stable subject and email behind it.
package identity

import (
	"context"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/usherhq/usher/internal/config"
	"github.com/usherhq/usher/internal/core"
)

// Registry holds the configured verifiers by name and, for JWT-shaped
// attestations, by issuer URL for auto-discovery.
type Registry struct {
	byName   map[string]core.IdentityVerifier
	byIssuer map[string]core.IdentityVerifier
}

// BuildRegistry constructs all configured verifiers.
func BuildRegistry(ctx context.Context, cfgs []config.VerifierConfig) (*Registry, error) {
	r := &Registry{
		byName:   make(map[string]core.IdentityVerifier),
		byIssuer: make(map[string]core.IdentityVerifier),
	}
	for _, cfg := range cfgs {
		var (
			v   core.IdentityVerifier
			err error
		)
		switch cfg.Type {
		case "oidc":
			var issuerURL string
			if v, issuerURL, err = NewOIDC(ctx, cfg); err == nil {
				r.byIssuer[issuerURL] = v
			}
		case "jwt":
			var issuer string
			if v, issuer, err = NewJWT(cfg); err == nil && issuer != "" {
				r.byIssuer[issuer] = v
			}
		case "static":
			v, err = NewStatic(cfg)
		default:
			err = fmt.Errorf("unknown verifier type %q", cfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("building verifier %q: %w", cfg.Name, err)
		}
		if _, dup := r.byName[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate verifier name %q", cfg.Name)
		}
		r.byName[cfg.Name] = v
	}
	return r, nil
}

// Get returns the verifier registered under name.
func (r *Registry) Get(name string) (core.IdentityVerifier, bool) {
	v, ok := r.byName[name]
	return v, ok
}

// Identify picks a verifier for an attestation by its unverified `iss`
// claim. The claim only routes the attestation; the chosen verifier still
// fully validates it.
func (r *Registry) Identify(attestation string) (core.IdentityVerifier, error) {
	iss, err := extractIssuer(attestation)
	if err != nil {
		return nil, core.E(core.KindBadRequest, "cannot identify attestation provider", err)
	}
	v, ok := r.byIssuer[iss]
	if !ok {
		return nil, core.Errorf(core.KindBadRequest, "no verifier for issuer %q", iss)
	}
	return v, nil
}

// extractIssuer reads the `iss` claim from a JWT without verifying it.
func extractIssuer(attestation string) (string, error) {
	parser := jwtlib.NewParser()
	token, _, err := parser.ParseUnverified(attestation, jwtlib.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("parsing attestation: %w", err)
	}
	iss, err := token.Claims.GetIssuer()
	if err != nil || iss == "" {
		return "", fmt.Errorf("attestation missing 'iss' claim")
	}
	return iss, nil
}
