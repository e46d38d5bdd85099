// Package scope implements the capability-label algebra: validation of
// client-supplied scope lists, subset checks, reconciliation of grant scope
// against application scope, and the reserved admin hierarchy.
package scope

import (
	"sort"
	"strings"

	"github.com/usherhq/usher/internal/core"
)

const (
	// Admin is the root reserved scope.
	Admin = "admin"

	// AdminWildcard marks a superadmin who may administer every application.
	AdminWildcard = "admin:*"

	adminPrefix = "admin:"
)

// ForApp returns the reserved per-application admin scope.
func ForApp(appID string) string {
	return adminPrefix + appID
}

// IsReserved reports whether s belongs to the reserved admin hierarchy:
// the literal "admin" or anything under "admin:". Note that labels merely
// sharing the prefix letters ("adminish") are not reserved.
func IsReserved(s string) bool {
	return s == Admin || strings.HasPrefix(s, adminPrefix)
}

// Validate checks a client-supplied scope list: entries must be non-empty
// unique strings and must not touch the reserved admin hierarchy. Reserved
// scopes are only ever written by system paths, never accepted from a
// client payload; the whole payload is rejected, never silently stripped.
func Validate(scopes []string) error {
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		if s == "" {
			return core.E(core.KindBadRequest, "scope entries must be non-empty strings")
		}
		if IsReserved(s) {
			return core.Errorf(core.KindBadRequest, "scope %q is reserved", s)
		}
		if _, dup := seen[s]; dup {
			return core.Errorf(core.KindBadRequest, "duplicate scope %q", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// ValidateSystem checks a scope list written by a system path (bootstrap
// config, admin mutation). Reserved scopes are allowed, but only in their
// exact forms: the literal "admin", "admin:*" or "admin:<appID>".
func ValidateSystem(scopes []string) error {
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		if s == "" {
			return core.E(core.KindBadRequest, "scope entries must be non-empty strings")
		}
		if IsReserved(s) && s != Admin && !ValidReservedGrantScope(s) {
			return core.Errorf(core.KindBadRequest, "malformed reserved scope %q", s)
		}
		if _, dup := seen[s]; dup {
			return core.Errorf(core.KindBadRequest, "duplicate scope %q", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// IsSubset reports whether every element of subset appears in superset.
// Membership is exact string equality; there is no pattern matching.
func IsSubset(superset, subset []string) bool {
	if len(subset) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(superset))
	for _, s := range superset {
		have[s] = struct{}{}
	}
	for _, s := range subset {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// Reconcile drops grant scopes no longer present in the application scope.
// Configuration drift can leave a grant wider than its application; the
// reconciled scope is what subset checks may trust. Reserved admin scopes
// are exempt: they are written onto grants by explicit admin mutations and
// never appear on the application record, so reconciliation must not drop
// them.
func Reconcile(grantScope, appScope []string) []string {
	have := make(map[string]struct{}, len(appScope))
	for _, s := range appScope {
		have[s] = struct{}{}
	}
	out := make([]string, 0, len(grantScope))
	for _, s := range grantScope {
		if _, ok := have[s]; ok || IsReserved(s) {
			out = append(out, s)
		}
	}
	return out
}

// DropReserved returns the scopes with every reserved admin entry removed.
func DropReserved(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if !IsReserved(s) {
			out = append(out, s)
		}
	}
	return out
}

// ExpandMissing adds every non-reserved application scope the grant does
// not already carry. A user with a grant to an application implicitly
// receives all of its non-administrative scopes; administrative scopes must
// be granted explicitly.
func ExpandMissing(grantScope, appScope []string) []string {
	have := make(map[string]struct{}, len(grantScope))
	out := make([]string, 0, len(appScope))
	for _, s := range grantScope {
		have[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range appScope {
		if IsReserved(s) {
			continue
		}
		if _, ok := have[s]; !ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// CanAdminister reports whether an actor carrying actorScope may perform
// admin operations concerning appID: superadmins (admin:*) always, and
// holders of the matching per-application scope.
func CanAdminister(actorScope []string, appID string) bool {
	target := ForApp(appID)
	for _, s := range actorScope {
		if s == AdminWildcard || s == target {
			return true
		}
	}
	return false
}

// ValidReservedGrantScope reports whether s is one of the reserved forms an
// admin mutation may write onto a grant: admin:* or admin:<appID>.
func ValidReservedGrantScope(s string) bool {
	if s == AdminWildcard {
		return true
	}
	rest, ok := strings.CutPrefix(s, adminPrefix)
	return ok && rest != "" && rest != "*"
}
