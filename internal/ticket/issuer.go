// Package ticket mints, reissues and parses the sealed MAC credentials at
// the heart of the service: app tickets, user tickets bound to a grant, and
// the single-use rsvps exchanged for them.
package ticket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/hawk"
	"github.com/usherhq/usher/internal/scope"
	"github.com/usherhq/usher/internal/seal"
)

// Options are issuing durations and credential parameters.
type Options struct {
	// AppTicketTTL bounds app tickets.
	AppTicketTTL time.Duration

	// UserTicketTTL bounds user tickets unless the application overrides it
	// with a shorter Settings.TicketDuration.
	UserTicketTTL time.Duration

	// RsvpTTL bounds rsvps.
	RsvpTTL time.Duration

	// Algorithm is the MAC algorithm minted into fresh credentials.
	Algorithm string

	// KeyBytes is the entropy of minted credential keys.
	KeyBytes int
}

func (o Options) withDefaults() Options {
	if o.AppTicketTTL <= 0 {
		o.AppTicketTTL = time.Hour
	}
	if o.UserTicketTTL <= 0 {
		o.UserTicketTTL = time.Hour
	}
	if o.RsvpTTL <= 0 {
		o.RsvpTTL = time.Hour
	}
	if o.Algorithm == "" {
		o.Algorithm = hawk.SHA256
	}
	if o.KeyBytes <= 0 {
		o.KeyBytes = 32
	}
	return o
}

// Issuer mints and parses tickets and rsvps.
type Issuer struct {
	codec *seal.Codec
	store core.GrantStore
	perms core.PermissionData
	opts  Options
}

// NewIssuer returns an Issuer. perms may be nil when no permission-data
// collaborator is configured.
func NewIssuer(codec *seal.Codec, store core.GrantStore, perms core.PermissionData, opts Options) *Issuer {
	return &Issuer{
		codec: codec,
		store: store,
		perms: perms,
		opts:  opts.withDefaults(),
	}
}

// MintAppTicket issues a service-to-service ticket for an application that
// already authenticated with its static credential. The ticket carries a
// fresh credential pair and the application's full scope; no grant is
// involved.
func (i *Issuer) MintAppTicket(ctx context.Context, app *core.Application, now time.Time) (*core.Ticket, error) {
	key, err := generateKey(i.opts.KeyBytes)
	if err != nil {
		return nil, err
	}
	t := &core.Ticket{
		App:       app.ID,
		Scope:     append([]string(nil), app.Scope...),
		Exp:       now.Add(i.opts.AppTicketTTL).UnixMilli(),
		Key:       key,
		Algorithm: i.opts.Algorithm,
	}
	return i.sealTicket(t)
}

// ExchangeRsvp consumes a sealed rsvp presented by the application it was
// issued to and mints the delegated user ticket. The rsvp must unseal with
// the rsvp kind, be unexpired, and reference the presenting application.
func (i *Issuer) ExchangeRsvp(ctx context.Context, appID, rsvpToken string, now time.Time) (*core.Ticket, error) {
	var r core.Rsvp
	if err := i.codec.UnsealAt(rsvpToken, seal.KindRsvp, &r, now); err != nil {
		return nil, err
	}
	if r.Expired(now) {
		return nil, core.E(core.KindUnauthorized, "invalid rsvp", fmt.Errorf("expired at %d", r.Exp))
	}
	if r.App != appID {
		return nil, core.E(core.KindUnauthorized, "invalid rsvp", fmt.Errorf("issued to %q, presented by %q", r.App, appID))
	}

	app, err := i.findApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	grant, err := i.findGrant(ctx, r.GrantID, now)
	if err != nil {
		return nil, err
	}
	if grant.App != app.ID {
		return nil, core.E(core.KindUnauthorized, "invalid rsvp", fmt.Errorf("grant %s belongs to app %q", grant.ID, grant.App))
	}
	return i.MintUserTicket(ctx, app, grant, now)
}

// MintUserTicket issues a ticket bound to a grant. The grant scope is
// reconciled against the current application scope and expanded with the
// application's non-administrative scopes before minting. Anonymous grants
// are exempt: their scope is fixed at the anonymous scope and never widened
// from the application record.
func (i *Issuer) MintUserTicket(ctx context.Context, app *core.Application, grant *core.Grant, now time.Time) (*core.Ticket, error) {
	if grant.Expired(now) {
		return nil, core.E(core.KindUnauthorized, "grant expired")
	}

	effective := append([]string(nil), grant.Scope...)
	if !core.IsAnonymousGrantID(grant.ID) {
		effective = scope.ExpandMissing(scope.Reconcile(grant.Scope, app.Scope), app.Scope)
		if !scope.IsSubset(app.Scope, scope.DropReserved(effective)) {
			return nil, core.E(core.KindUnauthorized, "invalid grant scope",
				fmt.Errorf("grant %s scope %v exceeds app scope %v", grant.ID, effective, app.Scope))
		}
	}

	ttl := i.opts.UserTicketTTL
	if app.Settings.TicketDuration > 0 {
		ttl = app.Settings.TicketDuration
	}
	exp := now.Add(ttl)
	if !grant.Exp.IsZero() && grant.Exp.Before(exp) {
		exp = grant.Exp
	}

	key, err := generateKey(i.opts.KeyBytes)
	if err != nil {
		return nil, err
	}
	t := &core.Ticket{
		App:       app.ID,
		User:      grant.User,
		GrantID:   grant.ID,
		Scope:     effective,
		Exp:       exp.UnixMilli(),
		Key:       key,
		Algorithm: i.opts.Algorithm,
	}

	if app.Settings.IncludeScopeInPrivateExt && i.perms != nil {
		data, err := i.perms.GetScopedData(ctx, grant.User, effective)
		if err != nil {
			return nil, core.E(core.KindUnavailable, "permission data unavailable", err)
		}
		if data != nil {
			t.Ext.Private = data
		}
	}

	return i.sealTicket(t)
}

// Reissue rotates a still-valid ticket: same app, user and grant, fresh
// credential pair, freshly computed expiry and scope. User tickets re-read
// the grant so admin scope changes take effect on the next reissue.
func (i *Issuer) Reissue(ctx context.Context, t *core.Ticket, now time.Time) (*core.Ticket, error) {
	if t.Expired(now) {
		return nil, core.E(core.KindUnauthorized, "ticket expired")
	}
	app, err := i.findApplication(ctx, t.App)
	if err != nil {
		return nil, err
	}
	if t.User == "" {
		return i.MintAppTicket(ctx, app, now)
	}
	grant, err := i.findGrant(ctx, t.GrantID, now)
	if err != nil {
		return nil, err
	}
	if grant.User != t.User || grant.App != t.App {
		return nil, core.E(core.KindUnauthorized, "invalid grant",
			fmt.Errorf("grant %s does not match ticket (app %q user %q)", t.GrantID, t.App, t.User))
	}
	return i.MintUserTicket(ctx, app, grant, now)
}

// GenerateRsvp seals a single-purpose rsvp for the grant. Its window is the
// configured rsvp TTL, cut short by the grant's own expiration when that
// comes first.
func (i *Issuer) GenerateRsvp(ctx context.Context, app *core.Application, grant *core.Grant, now time.Time) (string, time.Time, error) {
	exp := now.Add(i.opts.RsvpTTL)
	if !grant.Exp.IsZero() && grant.Exp.Before(exp) {
		exp = grant.Exp
	}
	token, err := i.codec.SealWithExpiry(seal.KindRsvp, core.Rsvp{
		App:     app.ID,
		GrantID: grant.ID,
		Exp:     exp.UnixMilli(),
	}, exp)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// ParseTicket unseals a ticket identifier and rejects expired tickets.
func (i *Issuer) ParseTicket(tokenID string, now time.Time) (*core.Ticket, error) {
	var t core.Ticket
	if err := i.codec.UnsealAt(tokenID, seal.KindTicket, &t, now); err != nil {
		return nil, err
	}
	if t.Expired(now) {
		return nil, core.E(core.KindUnauthorized, "ticket expired")
	}
	t.ID = tokenID
	return &t, nil
}

// TicketCredentials returns a hawk lookup resolving sealed ticket ids to
// their minted credential pair.
func (i *Issuer) TicketCredentials() hawk.CredentialLookup {
	return func(_ context.Context, id string) (*hawk.Credential, error) {
		t, err := i.ParseTicket(id, time.Now())
		if err != nil {
			return nil, err
		}
		return &hawk.Credential{ID: id, Key: t.Key, Algorithm: t.Algorithm}, nil
	}
}

// AppCredentials returns a hawk lookup resolving application ids to their
// static credential.
func (i *Issuer) AppCredentials() hawk.CredentialLookup {
	return func(ctx context.Context, id string) (*hawk.Credential, error) {
		app, err := i.findApplication(ctx, id)
		if err != nil {
			return nil, err
		}
		return &hawk.Credential{ID: app.ID, Key: app.Key, Algorithm: app.Algorithm}, nil
	}
}

func (i *Issuer) sealTicket(t *core.Ticket) (*core.Ticket, error) {
	// The identifier is the sealed ticket minus its own ID field.
	id, err := i.codec.Seal(seal.KindTicket, t)
	if err != nil {
		return nil, err
	}
	t.ID = id
	return t, nil
}

func (i *Issuer) findApplication(ctx context.Context, id string) (*core.Application, error) {
	app, err := i.store.FindApplication(ctx, id)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil, core.E(core.KindUnauthorized, "unknown application", err)
		}
		return nil, err
	}
	return app, nil
}

// findGrant resolves stored grants and the self-describing anonymous kind
// alike, applying the same validity checks to both.
func (i *Issuer) findGrant(ctx context.Context, id string, now time.Time) (*core.Grant, error) {
	if core.IsAnonymousGrantID(id) {
		return core.DecodeAnonymousGrantID(id, now)
	}
	grant, err := i.store.FindGrant(ctx, id)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil, core.E(core.KindUnauthorized, "invalid grant", err)
		}
		return nil, err
	}
	return grant, nil
}

func generateKey(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", core.E(core.KindInternal, "key generation failed", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateAppKey mints a static application key. Exposed for application
// creation and the keygen command.
func GenerateAppKey() (string, error) {
	return generateKey(32)
}
