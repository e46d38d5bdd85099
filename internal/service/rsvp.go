package service

import (
	"context"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/usherhq/usher/internal/core"
)

// RsvpRequest asks for a sealed rsvp binding a verified user to an
// application grant.
type RsvpRequest struct {
	// App is the application the rsvp is issued for.
	App string

	// Provider optionally names the identity verifier. When empty the
	// attestation's issuer claim selects one.
	Provider string

	// Attestation is the raw identity-provider token.
	Attestation string

	// Email, when set, must match the verified email exactly.
	Email string
}

// RsvpResponse carries the sealed rsvp and its expiration.
type RsvpResponse struct {
	Rsvp string    `json:"rsvp"`
	Exp  time.Time `json:"exp"`
}

// IssueRsvp verifies an external identity attestation and seals an rsvp the
// target application can later exchange for a user ticket.
func (s *Service) IssueRsvp(ctx context.Context, req RsvpRequest) (resp *RsvpResponse, err error) {
	logger := log.Ctx(ctx)
	now := time.Now()

	entry := core.AuditEntry{Action: "rsvp.issue", App: req.App}
	defer func() { s.audit(ctx, &entry, err) }()

	if req.App == "" {
		return nil, core.E(core.KindBadRequest, "missing app")
	}
	if req.Attestation == "" {
		return nil, core.E(core.KindBadRequest, "missing attestation")
	}

	verifier, err := s.selectVerifier(req)
	if err != nil {
		return nil, err
	}

	ident, err := verifier.Verify(ctx, req.Attestation)
	if err != nil {
		return nil, core.E(core.KindUnauthorized, "invalid attestation", err)
	}
	entry.User = ident.Subject

	// The caller-supplied email is a cross-check against the verified
	// identity, not a lookup key.
	if req.Email != "" && req.Email != ident.Email {
		return nil, core.E(core.KindBadRequest, "email does not match verified identity")
	}

	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("sub", ident.Subject).Str("provider", ident.Provider)
	})

	if err = s.users.UpsertUser(ctx, &core.User{
		Provider:  ident.Provider,
		Subject:   ident.Subject,
		Email:     ident.Email,
		LastLogin: now,
	}); err != nil {
		return nil, err
	}

	app, err := s.store.FindApplication(ctx, req.App)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil, core.E(core.KindUnauthorized, "unknown application", err)
		}
		return nil, err
	}

	grant, err := s.findOrCreateGrant(ctx, app, ident.Subject, now)
	if err != nil {
		return nil, err
	}
	entry.Grant = grant.ID
	entry.Scope = grant.Scope

	if grant.Expired(now) {
		return nil, core.E(core.KindForbidden, "grant expired")
	}

	token, exp, err := s.issuer.GenerateRsvp(ctx, app, grant, now)
	if err != nil {
		return nil, err
	}
	entry.Metadata = map[string]any{"exp": exp.UnixMilli()}

	logger.Debug().Str("app", app.ID).Str("grant", grant.ID).Msg("issued rsvp")
	return &RsvpResponse{Rsvp: token, Exp: exp}, nil
}

func (s *Service) selectVerifier(req RsvpRequest) (core.IdentityVerifier, error) {
	if req.Provider != "" {
		v, ok := s.verifiers.Get(req.Provider)
		if !ok {
			return nil, core.Errorf(core.KindBadRequest, "unknown provider %q", req.Provider)
		}
		return v, nil
	}
	v, err := s.verifiers.Identify(req.Attestation)
	if err != nil {
		return nil, core.E(core.KindUnauthorized, "invalid attestation", err)
	}
	return v, nil
}

// findOrCreateGrant loads the user's grant for the application, creating an
// empty-scope one on first contact unless the application forbids that.
func (s *Service) findOrCreateGrant(ctx context.Context, app *core.Application, user string, now time.Time) (*core.Grant, error) {
	grant, err := s.store.FindGrantByAppAndUser(ctx, app.ID, user)
	if err == nil {
		return grant, nil
	}
	if !core.IsKind(err, core.KindNotFound) {
		return nil, err
	}
	if app.Settings.DisallowAutoCreationGrants {
		return nil, core.E(core.KindForbidden, "no grant for this application", err)
	}

	grant = &core.Grant{
		ID:        xid.New().String(),
		App:       app.ID,
		User:      user,
		Scope:     []string{},
		CreatedAt: now,
	}
	if err := s.store.InsertGrant(ctx, grant); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("app", app.ID).Str("grant", grant.ID).Msg("auto-created grant")
	return grant, nil
}
