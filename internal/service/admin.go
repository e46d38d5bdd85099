package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/hawk"
	"github.com/usherhq/usher/internal/scope"
	"github.com/usherhq/usher/internal/ticket"
)

// CreateApplicationRequest registers a new application. The credential key
// is always generated server-side.
type CreateApplicationRequest struct {
	ID       string           `json:"id"`
	Scope    []string         `json:"scope"`
	Delegate bool             `json:"delegate,omitempty"`
	Settings core.AppSettings `json:"settings"`
}

// CreateApplication registers an application. Requested ids that collide
// with an existing application are suffixed by the store; the returned
// record carries the assigned id and the generated key.
func (s *Service) CreateApplication(ctx context.Context, actor *core.Ticket, req CreateApplicationRequest) (app *core.Application, err error) {
	entry := core.AuditEntry{Action: "admin.app.create", App: req.ID, User: actor.User}
	defer func() { s.audit(ctx, &entry, err) }()

	if !isAdmin(actor.Scope) {
		return nil, core.E(core.KindForbidden, "admin scope required")
	}
	if req.ID == "" {
		return nil, core.E(core.KindBadRequest, "missing application id")
	}
	if err = scope.Validate(req.Scope); err != nil {
		return nil, err
	}

	key, err := ticket.GenerateAppKey()
	if err != nil {
		return nil, err
	}
	app = &core.Application{
		ID:        req.ID,
		Key:       key,
		Algorithm: hawk.SHA256,
		Scope:     append([]string(nil), req.Scope...),
		Delegate:  req.Delegate,
		Settings:  req.Settings,
	}

	assigned, err := s.store.InsertApplication(ctx, app)
	if err != nil {
		return nil, err
	}
	app.ID = assigned
	entry.App = assigned
	entry.Scope = app.Scope

	log.Ctx(ctx).Info().Str("app", assigned).Msg("created application")
	return app, nil
}

// GetApplication returns the full application record, credential included.
// Only administrators of that application may read it.
func (s *Service) GetApplication(ctx context.Context, actor *core.Ticket, id string) (*core.Application, error) {
	if !scope.CanAdminister(actor.Scope, id) && !isAdmin(actor.Scope) {
		return nil, core.E(core.KindForbidden, "admin scope required")
	}
	return s.store.FindApplication(ctx, id)
}

// GrantAdminScope adds a reserved admin scope to a grant. The actor needs
// the authority that scope represents: admin:* to hand out admin:*, and
// administration of the target application for admin:<appID>. Actors can
// never modify the grant backing their own ticket.
func (s *Service) GrantAdminScope(ctx context.Context, actor *core.Ticket, grantID, adminScope string) (grant *core.Grant, err error) {
	entry := core.AuditEntry{
		Action: "admin.grant.scope.add",
		User:   actor.User,
		Grant:  grantID,
		Scope:  []string{adminScope},
	}
	defer func() { s.audit(ctx, &entry, err) }()

	// The scope lives on the grant alone. Application records stay exactly
	// as configured; reconciliation exempts reserved scopes, so nothing is
	// dropped at the next mint and the application's own static credential
	// never picks up administrative authority as a side effect.
	if grant, err = s.mutateGrantScope(ctx, actor, grantID, adminScope, func(g *core.Grant) {
		if !slices.Contains(g.Scope, adminScope) {
			g.Scope = append(g.Scope, adminScope)
		}
	}); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("grant", grantID).Str("scope", adminScope).Msg("granted admin scope")
	return grant, nil
}

// RevokeAdminScope removes a reserved admin scope from a grant. Other
// grants carrying the same scope are unaffected.
func (s *Service) RevokeAdminScope(ctx context.Context, actor *core.Ticket, grantID, adminScope string) (grant *core.Grant, err error) {
	entry := core.AuditEntry{
		Action: "admin.grant.scope.remove",
		User:   actor.User,
		Grant:  grantID,
		Scope:  []string{adminScope},
	}
	defer func() { s.audit(ctx, &entry, err) }()

	if grant, err = s.mutateGrantScope(ctx, actor, grantID, adminScope, func(g *core.Grant) {
		g.Scope = slices.DeleteFunc(g.Scope, func(s string) bool { return s == adminScope })
	}); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("grant", grantID).Str("scope", adminScope).Msg("revoked admin scope")
	return grant, nil
}

func (s *Service) mutateGrantScope(ctx context.Context, actor *core.Ticket, grantID, adminScope string, mutate func(*core.Grant)) (*core.Grant, error) {
	if !scope.ValidReservedGrantScope(adminScope) {
		return nil, core.Errorf(core.KindBadRequest, "invalid admin scope %q", adminScope)
	}
	if core.IsAnonymousGrantID(grantID) {
		return nil, core.E(core.KindBadRequest, "anonymous grants cannot be modified")
	}
	if actor.GrantID != "" && actor.GrantID == grantID {
		return nil, core.E(core.KindForbidden, "cannot modify own grant")
	}

	if adminScope == scope.AdminWildcard {
		if !slices.Contains(actor.Scope, scope.AdminWildcard) {
			return nil, core.E(core.KindForbidden, "admin:* scope required")
		}
	} else {
		target := strings.TrimPrefix(adminScope, "admin:")
		if !scope.CanAdminister(actor.Scope, target) {
			return nil, core.Errorf(core.KindForbidden, "not an administrator of %q", target)
		}
	}

	grant, err := s.store.AtomicUpdateGrant(ctx, grantID, func(g *core.Grant) error {
		if g.Expired(time.Now()) {
			return core.E(core.KindForbidden, "grant expired")
		}
		mutate(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// isAdmin reports general administrative authority: the root admin scope or
// the wildcard.
func isAdmin(scopes []string) bool {
	return slices.Contains(scopes, scope.Admin) || slices.Contains(scopes, scope.AdminWildcard)
}
