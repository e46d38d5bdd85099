package core

import (
	"time"
)

// Application represents a registered API client. Its static (ID, Key,
// Algorithm) triple is the MAC credential used to request app tickets.
type Application struct {
	// ID is the unique application identifier. Collisions on creation are
	// resolved by the store with a numeric suffix ("news", "news-1", ...).
	ID string `json:"id"`

	// Key is the shared MAC secret. Generated server-side, never chosen
	// by the caller.
	Key string `json:"key"`

	// Algorithm is the HMAC algorithm used with Key (e.g. "sha256").
	Algorithm string `json:"algorithm"`

	// Scope is the full set of capabilities this application may hold or
	// delegate. Reserved admin scopes are only ever added by system paths.
	Scope []string `json:"scope"`

	// Delegate indicates whether tickets issued to this application may be
	// re-delegated to other applications.
	Delegate bool `json:"delegate,omitempty"`

	Settings AppSettings `json:"settings"`
}

// AppSettings are per-application policy knobs.
type AppSettings struct {
	// TicketDuration overrides the server default user-ticket lifetime.
	TicketDuration time.Duration `json:"ticket_duration,omitempty"`

	// AllowAnonymousUsers permits minting anonymous user tickets.
	AllowAnonymousUsers bool `json:"allow_anonymous_users,omitempty"`

	// DisallowAutoCreationGrants disables implicit grant creation on first
	// successful identity verification.
	DisallowAutoCreationGrants bool `json:"disallow_auto_creation_grants,omitempty"`

	// IncludeScopeInPrivateExt attaches the subject's stored per-scope
	// permission data to the ticket's private ext.
	IncludeScopeInPrivateExt bool `json:"include_scope_in_private_ext,omitempty"`
}

// Grant is a standing delegation of scope from one user to one application.
type Grant struct {
	ID   string `json:"id"`
	App  string `json:"app"`
	User string `json:"user"`

	// Scope is the delegated subset of the application's scope.
	Scope []string `json:"scope"`

	// Exp is the grant expiration. Zero means no fixed expiration; issued
	// tickets are still bounded by the server's maximum ticket duration.
	Exp time.Time `json:"exp,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Expired reports whether the grant has a set expiration in the past.
func (g *Grant) Expired(now time.Time) bool {
	return !g.Exp.IsZero() && g.Exp.Before(now)
}

// Ticket is the logical content of a sealed ticket identifier. The ID field
// holds the sealed envelope itself; everything else round-trips through it.
// An empty User marks an app ticket, a non-empty one a user ticket.
type Ticket struct {
	ID string `json:"id,omitempty"`

	App     string `json:"app"`
	User    string `json:"user,omitempty"`
	GrantID string `json:"grant,omitempty"`

	Scope []string `json:"scope"`

	// Exp is the ticket expiration in epoch milliseconds.
	Exp int64 `json:"exp"`

	// Key and Algorithm form the MAC credential pair minted for this ticket
	// instance. The pair is never reused across tickets.
	Key       string `json:"key"`
	Algorithm string `json:"algorithm"`

	Ext TicketExt `json:"ext,omitempty"`
}

// TicketExt carries application data attached to a ticket. Public travels
// back to the client in the response body; Private only ever lives inside
// the sealed identifier.
type TicketExt struct {
	Public  map[string]any `json:"public,omitempty"`
	Private map[string]any `json:"private,omitempty"`
}

// ExpiresAt returns the ticket expiration as a time.
func (t *Ticket) ExpiresAt() time.Time {
	return time.UnixMilli(t.Exp)
}

// Expired reports whether the ticket expiration has passed.
func (t *Ticket) Expired(now time.Time) bool {
	return t.Exp <= now.UnixMilli()
}

// Rsvp is the sealed payload an application exchanges for a user ticket.
// It is single-purpose: the seal kind distinguishes it from tickets so one
// can never be replayed as the other.
type Rsvp struct {
	App     string `json:"app"`
	GrantID string `json:"grant"`

	// Exp is the rsvp expiration in epoch milliseconds.
	Exp int64 `json:"exp"`
}

// Expired reports whether the rsvp expiration has passed.
func (r *Rsvp) Expired(now time.Time) bool {
	return r.Exp <= now.UnixMilli()
}

// User is the local record of an externally verified identity, keyed by
// (Provider, Subject).
type User struct {
	Provider  string    `json:"provider"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	LastLogin time.Time `json:"last_login"`
}

// Identity is what an IdentityVerifier returns after checking an external
// attestation.
type Identity struct {
	Provider string
	Subject  string
	Email    string
}
