package identity

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/usherhq/usher/internal/config"
	"github.com/usherhq/usher/internal/core"
)

type staticConfig struct {
	// Identities maps a literal attestation string to the identity it
	// proves. Development and test use only.
	Identities map[string]staticIdentity `mapstructure:"identities"`
}

type staticIdentity struct {
	Subject string `mapstructure:"subject"`
	Email   string `mapstructure:"email"`
}

// StaticVerifier resolves attestations from a fixed config map.
type StaticVerifier struct {
	name       string
	identities map[string]staticIdentity
}

func NewStatic(cfg config.VerifierConfig) (*StaticVerifier, error) {
	var c staticConfig
	if err := mapstructure.Decode(cfg.Config, &c); err != nil {
		return nil, fmt.Errorf("decoding static verifier config: %w", err)
	}
	return &StaticVerifier{
		name:       cfg.Name,
		identities: c.Identities,
	}, nil
}

func (v *StaticVerifier) Name() string {
	return v.name
}

func (v *StaticVerifier) Verify(_ context.Context, attestation string) (*core.Identity, error) {
	id, ok := v.identities[attestation]
	if !ok || id.Subject == "" {
		return nil, core.E(core.KindUnauthorized, "attestation verification failed")
	}
	return &core.Identity{
		Provider: v.name,
		Subject:  id.Subject,
		Email:    id.Email,
	}, nil
}
