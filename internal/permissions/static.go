// Package permissions provides the configuration-backed permission-data
// adapter. Applications that opt in via include_scope_in_private_ext get
// the configured per-scope payloads embedded in the sealed private ext of
// their user tickets.
package permissions

import (
	"context"

	"github.com/usherhq/usher/internal/core"
)

// Static serves fixed per-scope payloads from the server configuration.
type Static struct {
	data map[string]any
}

var _ core.PermissionData = (*Static)(nil)

func NewStatic(data map[string]any) *Static {
	return &Static{data: data}
}

// GetScopedData returns the configured payload of every scope held. The
// subject is ignored; a scope's payload is the same for every holder.
func (s *Static) GetScopedData(_ context.Context, _ string, scopes []string) (map[string]any, error) {
	var out map[string]any
	for _, sc := range scopes {
		v, ok := s.data[sc]
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[sc] = v
	}
	return out, nil
}
