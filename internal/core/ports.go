package core

import (
	"context"
	"time"
)

// GrantStore is the data-access contract for applications and grants. All
// mutations that could race (scope changes in particular) go through the
// atomic update methods; a plain read-modify-write is never acceptable.
//
// Lookup methods return a KindNotFound error when the record is absent and
// a KindUnavailable error on timeout, never a bare nil result.
type GrantStore interface {
	FindApplication(ctx context.Context, id string) (*Application, error)

	// InsertApplication stores the application, resolving ID collisions by
	// appending "-1", "-2", ... and returning the assigned ID.
	InsertApplication(ctx context.Context, app *Application) (string, error)

	// AtomicUpdateApplication applies update under the store's atomicity
	// guarantee and returns the updated record.
	AtomicUpdateApplication(ctx context.Context, id string, update func(*Application) error) (*Application, error)

	FindGrant(ctx context.Context, id string) (*Grant, error)
	FindGrantByAppAndUser(ctx context.Context, app, user string) (*Grant, error)
	InsertGrant(ctx context.Context, grant *Grant) error

	// AtomicUpdateGrant applies update under the store's atomicity guarantee
	// and returns the updated record.
	AtomicUpdateGrant(ctx context.Context, id string, update func(*Grant) error) (*Grant, error)

	// DeleteExpiredGrants removes grants whose expiration is before now and
	// returns how many were removed.
	DeleteExpiredGrants(ctx context.Context, now time.Time) (int64, error)
}

// UserStore records externally verified identities.
type UserStore interface {
	UpsertUser(ctx context.Context, user *User) error
	FindUser(ctx context.Context, provider, subject string) (*User, error)
}

// PermissionData is the optional collaborator that holds per-scope
// permission payloads for a subject. A nil map with nil error means no data.
type PermissionData interface {
	GetScopedData(ctx context.Context, subject string, scope []string) (map[string]any, error)
}

// IdentityVerifier checks an external identity-provider attestation and
// returns the stable subject behind it.
// Implementations: OIDC, shared-secret JWT, static (dev/test).
type IdentityVerifier interface {
	// Name returns the identifier of this verifier (as used in config).
	Name() string

	// Verify validates the raw attestation and returns the identity.
	Verify(ctx context.Context, attestation string) (*Identity, error)
}

// Auditor records authorization decisions. External audit tooling consumes
// these entries; the service only produces them.
type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}
