package scope

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/usherhq/usher/internal/core"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		wantErr bool
	}{
		{"empty list", nil, false},
		{"plain scopes", []string{"read", "write"}, false},
		{"shares letters but not reserved", []string{"adminish", "administrator"}, false},
		{"empty entry", []string{"read", ""}, true},
		{"duplicate", []string{"read", "read"}, true},
		{"literal admin", []string{"admin"}, true},
		{"admin wildcard", []string{"admin:*"}, true},
		{"per-app admin", []string{"admin:news"}, true},
		{"admin buried in list", []string{"read", "admin:billing", "write"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.scopes)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.scopes, err, tt.wantErr)
			}
			if err != nil && !core.IsKind(err, core.KindBadRequest) {
				t.Errorf("kind = %v, want bad request", core.KindOf(err))
			}
		})
	}
}

func TestIsSubset(t *testing.T) {
	tests := []struct {
		name     string
		superset []string
		subset   []string
		want     bool
	}{
		{"empty subset", []string{"a"}, nil, true},
		{"equal", []string{"a", "b"}, []string{"b", "a"}, true},
		{"proper subset", []string{"a", "b", "c"}, []string{"b"}, true},
		{"missing element", []string{"a", "b"}, []string{"b", "c"}, false},
		{"no pattern matching", []string{"admin:*"}, []string{"admin:news"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSubset(tt.superset, tt.subset); got != tt.want {
				t.Errorf("IsSubset(%v, %v) = %v, want %v", tt.superset, tt.subset, got, tt.want)
			}
		})
	}
}

func TestReconcileAndExpand(t *testing.T) {
	tests := []struct {
		name       string
		grantScope []string
		appScope   []string
		want       []string
	}{
		{
			// Any user with a grant implicitly receives the app's
			// non-administrative scopes; admin is never auto-granted.
			name:       "empty grant against app with admin",
			grantScope: nil,
			appScope:   []string{"read", "admin"},
			want:       []string{"read"},
		},
		{
			name:       "drift dropped then expanded",
			grantScope: []string{"read", "stale"},
			appScope:   []string{"read", "write"},
			want:       []string{"read", "write"},
		},
		{
			name:       "explicit admin grant survives",
			grantScope: []string{"admin:news"},
			appScope:   []string{"read", "admin:news"},
			want:       []string{"admin:news", "read"},
		},
		{
			// Reserved scopes live on the grant alone; reconciliation keeps
			// them even though no application record lists them.
			name:       "admin grant survives without app backing",
			grantScope: []string{"admin:news", "stale"},
			appScope:   []string{"read"},
			want:       []string{"admin:news", "read"},
		},
		{
			name:       "wildcard admin grant survives",
			grantScope: []string{"admin:*"},
			appScope:   []string{"read"},
			want:       []string{"admin:*", "read"},
		},
		{
			name:       "per-app admin not auto-granted",
			grantScope: nil,
			appScope:   []string{"read", "admin:news", "admin:*"},
			want:       []string{"read"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandMissing(Reconcile(tt.grantScope, tt.appScope), tt.appScope)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("scope mismatch (-want +got):\n%s", diff)
			}
			if !IsSubset(tt.appScope, DropReserved(got)) {
				t.Errorf("non-reserved part of %v not a subset of app scope %v", got, tt.appScope)
			}
		})
	}
}

func TestDropReserved(t *testing.T) {
	got := DropReserved([]string{"read", "admin:*", "adminish", "admin", "write", "admin:news"})
	if diff := cmp.Diff([]string{"read", "adminish", "write"}, got); diff != "" {
		t.Errorf("scope mismatch (-want +got):\n%s", diff)
	}
}

func TestCanAdminister(t *testing.T) {
	tests := []struct {
		name  string
		actor []string
		appID string
		want  bool
	}{
		{"superadmin", []string{"admin:*"}, "news", true},
		{"matching app admin", []string{"admin:news"}, "news", true},
		{"other app admin", []string{"admin:billing"}, "news", false},
		{"plain admin scope is not enough", []string{"admin"}, "news", false},
		{"no admin scopes", []string{"read", "write"}, "news", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAdminister(tt.actor, tt.appID); got != tt.want {
				t.Errorf("CanAdminister(%v, %q) = %v, want %v", tt.actor, tt.appID, got, tt.want)
			}
		})
	}
}

func TestValidReservedGrantScope(t *testing.T) {
	tests := []struct {
		scope string
		want  bool
	}{
		{"admin:*", true},
		{"admin:news", true},
		{"admin", false},
		{"admin:", false},
		{"read", false},
	}
	for _, tt := range tests {
		if got := ValidReservedGrantScope(tt.scope); got != tt.want {
			t.Errorf("ValidReservedGrantScope(%q) = %v, want %v", tt.scope, got, tt.want)
		}
	}
}
