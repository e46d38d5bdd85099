package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/usherhq/usher/internal/core"
)

// AnonymousTTL bounds anonymous grants. Anonymous tickets inherit it
// through the grant expiration.
const AnonymousTTL = time.Hour

// AnonymousRequest starts or continues an anonymous session.
type AnonymousRequest struct {
	// App optionally names the application to mint a ticket for. Without
	// it only the anonymous user id is assigned.
	App string

	// UserID is the caller's existing anonymous id, typically read from a
	// cookie. Absent or malformed ids are replaced.
	UserID string
}

// AnonymousResponse carries the session id and, when an application was
// named, the minted ticket.
type AnonymousResponse struct {
	UserID string

	// SetCookie signals that UserID is new and should be stored.
	SetCookie bool

	Ticket *core.Ticket
}

// Anonymous assigns an anonymous user id and, for applications that permit
// it, mints a user ticket against an ephemeral grant. The grant is encoded
// into its own id and never persisted.
func (s *Service) Anonymous(ctx context.Context, req AnonymousRequest) (resp *AnonymousResponse, err error) {
	now := time.Now()

	entry := core.AuditEntry{Action: "ticket.anonymous", App: req.App}
	defer func() { s.audit(ctx, &entry, err) }()

	resp = &AnonymousResponse{UserID: req.UserID}
	if !core.ValidAnonymousUserID(resp.UserID) {
		resp.UserID = core.NewAnonymousUserID()
		resp.SetCookie = true
	}
	entry.User = resp.UserID

	if req.App == "" {
		return resp, nil
	}

	app, err := s.store.FindApplication(ctx, req.App)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil, core.E(core.KindUnauthorized, "unknown application", err)
		}
		return nil, err
	}
	if !app.Settings.AllowAnonymousUsers {
		return nil, core.E(core.KindUnauthorized, "anonymous not allowed")
	}

	grant := core.NewAnonymousGrant(app.ID, resp.UserID, now.Add(AnonymousTTL))
	entry.Grant = grant.ID

	t, err := s.issuer.MintUserTicket(ctx, app, grant, now)
	if err != nil {
		return nil, err
	}
	resp.Ticket = t
	entry.Scope = t.Scope

	log.Ctx(ctx).Debug().Str("app", app.ID).Str("user", resp.UserID).Msg("issued anonymous ticket")
	return resp, nil
}
