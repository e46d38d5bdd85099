package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/mitchellh/mapstructure"

	"github.com/usherhq/usher/internal/config"
	"github.com/usherhq/usher/internal/core"
)

type oidcConfig struct {
	IssuerURL string `mapstructure:"issuer_url"`
	ClientID  string `mapstructure:"client_id"`

	// EmailClaim overrides the claim holding the verified email address.
	EmailClaim string `mapstructure:"email_claim"`
}

// OIDCVerifier validates OIDC ID tokens against the provider's published
// keys and configuration.
type OIDCVerifier struct {
	name       string
	emailClaim string
	verifier   *oidc.IDTokenVerifier
}

// NewOIDC builds an OIDC verifier and returns it with its issuer URL for
// auto-discovery registration.
func NewOIDC(ctx context.Context, cfg config.VerifierConfig) (*OIDCVerifier, string, error) {
	var c oidcConfig
	if err := mapstructure.Decode(cfg.Config, &c); err != nil {
		return nil, "", fmt.Errorf("decoding oidc verifier config: %w", err)
	}
	if c.IssuerURL == "" {
		return nil, "", fmt.Errorf("oidc verifier %q missing 'issuer_url'", cfg.Name)
	}
	if c.ClientID == "" {
		return nil, "", fmt.Errorf("oidc verifier %q missing 'client_id'", cfg.Name)
	}
	if c.EmailClaim == "" {
		c.EmailClaim = "email"
	}

	provider, err := oidc.NewProvider(ctx, c.IssuerURL)
	if err != nil {
		return nil, "", fmt.Errorf("creating oidc provider for verifier %q: %w", cfg.Name, err)
	}

	return &OIDCVerifier{
		name:       cfg.Name,
		emailClaim: c.EmailClaim,
		verifier:   provider.Verifier(&oidc.Config{ClientID: c.ClientID}),
	}, c.IssuerURL, nil
}

func (v *OIDCVerifier) Name() string {
	return v.name
}

func (v *OIDCVerifier) Verify(ctx context.Context, attestation string) (*core.Identity, error) {
	idToken, err := v.verifier.Verify(ctx, attestation)
	if err != nil {
		return nil, core.E(core.KindUnauthorized, "attestation verification failed", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, core.E(core.KindUnauthorized, "attestation verification failed", err)
	}

	email, _ := claims[v.emailClaim].(string)
	if idToken.Subject == "" {
		return nil, core.E(core.KindUnauthorized, "attestation missing subject")
	}
	return &core.Identity{
		Provider: v.name,
		Subject:  idToken.Subject,
		Email:    email,
	}, nil
}
