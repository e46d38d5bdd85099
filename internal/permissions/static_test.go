package permissions

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStaticGetScopedData(t *testing.T) {
	s := NewStatic(map[string]any{
		"read":  map[string]any{"region": "eu"},
		"write": "unrestricted",
	})

	tests := []struct {
		name   string
		scopes []string
		want   map[string]any
	}{
		{"no scopes", nil, nil},
		{"no configured data", []string{"browse"}, nil},
		{"single match", []string{"read"}, map[string]any{"read": map[string]any{"region": "eu"}}},
		{
			"mixed",
			[]string{"read", "browse", "write"},
			map[string]any{"read": map[string]any{"region": "eu"}, "write": "unrestricted"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetScopedData(context.Background(), "alice", tt.scopes)
			if err != nil {
				t.Fatalf("GetScopedData() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
