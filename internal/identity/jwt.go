package identity

import (
	"context"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"

	"github.com/usherhq/usher/internal/config"
	"github.com/usherhq/usher/internal/core"
)

type jwtConfig struct {
	// Secret is the shared HMAC key the provider signs attestations with.
	Secret string `mapstructure:"secret"`

	// Issuer, when set, is required to match the token's `iss` claim and
	// registers the verifier for auto-discovery.
	Issuer string `mapstructure:"issuer"`

	// Audience, when set, is required to appear in the token's `aud` claim.
	Audience string `mapstructure:"audience"`

	EmailClaim string `mapstructure:"email_claim"`
}

// JWTVerifier validates shared-secret HS256 attestations. It suits
// first-party identity providers that sign their own assertions without a
// full OIDC discovery surface.
type JWTVerifier struct {
	name       string
	secret     []byte
	issuer     string
	audience   string
	emailClaim string
}

// NewJWT builds a JWT verifier and returns it with its expected issuer (or
// "" when unset).
func NewJWT(cfg config.VerifierConfig) (*JWTVerifier, string, error) {
	var c jwtConfig
	if err := mapstructure.Decode(cfg.Config, &c); err != nil {
		return nil, "", fmt.Errorf("decoding jwt verifier config: %w", err)
	}
	if c.Secret == "" {
		return nil, "", fmt.Errorf("jwt verifier %q missing 'secret'", cfg.Name)
	}
	if c.EmailClaim == "" {
		c.EmailClaim = "email"
	}
	return &JWTVerifier{
		name:       cfg.Name,
		secret:     []byte(c.Secret),
		issuer:     c.Issuer,
		audience:   c.Audience,
		emailClaim: c.EmailClaim,
	}, c.Issuer, nil
}

func (v *JWTVerifier) Name() string {
	return v.name
}

func (v *JWTVerifier) Verify(_ context.Context, attestation string) (*core.Identity, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwtlib.WithAudience(v.audience))
	}

	token, err := jwtlib.Parse(attestation, func(t *jwtlib.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, core.E(core.KindUnauthorized, "attestation verification failed", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, core.E(core.KindUnauthorized, "attestation verification failed")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, core.E(core.KindUnauthorized, "attestation missing subject")
	}
	email, _ := claims[v.emailClaim].(string)

	return &core.Identity{
		Provider: v.name,
		Subject:  sub,
		Email:    email,
	}, nil
}
