package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/usherhq/usher/internal/core"
)

// AppTicket mints a service-to-service ticket for an application that
// already proved possession of its static credential at the transport layer.
func (s *Service) AppTicket(ctx context.Context, appID string) (t *core.Ticket, err error) {
	entry := core.AuditEntry{Action: "ticket.app", App: appID}
	defer func() { s.audit(ctx, &entry, err) }()

	app, err := s.store.FindApplication(ctx, appID)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil, core.E(core.KindUnauthorized, "unknown application", err)
		}
		return nil, err
	}

	t, err = s.issuer.MintAppTicket(ctx, app, time.Now())
	if err != nil {
		return nil, err
	}
	entry.Scope = t.Scope
	entry.Metadata = map[string]any{"exp": t.Exp}

	log.Ctx(ctx).Debug().Str("app", appID).Msg("issued app ticket")
	return t, nil
}

// ExchangeRsvp turns a sealed rsvp into a user ticket. The presenter must
// hold an app ticket for the application the rsvp was issued to.
func (s *Service) ExchangeRsvp(ctx context.Context, presenter *core.Ticket, rsvpToken string) (t *core.Ticket, err error) {
	entry := core.AuditEntry{Action: "ticket.rsvp", App: presenter.App}
	defer func() { s.audit(ctx, &entry, err) }()

	if presenter.User != "" {
		return nil, core.E(core.KindUnauthorized, "rsvp exchange requires an app ticket")
	}
	if rsvpToken == "" {
		return nil, core.E(core.KindBadRequest, "missing rsvp")
	}

	t, err = s.issuer.ExchangeRsvp(ctx, presenter.App, rsvpToken, time.Now())
	if err != nil {
		return nil, err
	}
	entry.User = t.User
	entry.Grant = t.GrantID
	entry.Scope = t.Scope

	log.Ctx(ctx).Debug().Str("app", t.App).Str("user", t.User).Msg("exchanged rsvp for user ticket")
	return t, nil
}

// Reissue rotates a still-valid ticket presented over MAC auth. Scope and
// expiry are recomputed from the current application and grant records.
func (s *Service) Reissue(ctx context.Context, presented *core.Ticket) (t *core.Ticket, err error) {
	entry := core.AuditEntry{
		Action: "ticket.reissue",
		App:    presented.App,
		User:   presented.User,
		Grant:  presented.GrantID,
	}
	defer func() { s.audit(ctx, &entry, err) }()

	t, err = s.issuer.Reissue(ctx, presented, time.Now())
	if err != nil {
		return nil, err
	}
	entry.Scope = t.Scope

	log.Ctx(ctx).Debug().Str("app", t.App).Str("user", t.User).Msg("reissued ticket")
	return t, nil
}
