// Package service orchestrates the authorization flows on top of the ticket
// issuer: rsvp issuance for verified identities, anonymous sessions, and the
// administrative operations on applications and grants.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/identity"
	"github.com/usherhq/usher/internal/ticket"
)

// Service is the main orchestration layer behind the HTTP handlers.
type Service struct {
	store     core.GrantStore
	users     core.UserStore
	issuer    *ticket.Issuer
	verifiers *identity.Registry
	auditor   core.Auditor
}

func NewService(
	store core.GrantStore,
	users core.UserStore,
	issuer *ticket.Issuer,
	verifiers *identity.Registry,
	auditor core.Auditor,
) *Service {
	return &Service{
		store:     store,
		users:     users,
		issuer:    issuer,
		verifiers: verifiers,
		auditor:   auditor,
	}
}

// Issuer exposes the underlying ticket issuer for credential lookups.
func (s *Service) Issuer() *ticket.Issuer {
	return s.issuer
}

// audit finalizes and writes an audit entry. Audit failures never fail the
// request; they are logged and dropped.
func (s *Service) audit(ctx context.Context, entry *core.AuditEntry, err error) {
	entry.Time = time.Now()
	if id, ok := ctx.Value("correlation_id").(string); ok {
		entry.ID = id
	}
	entry.Success = err == nil
	if err != nil {
		entry.Error = err.Error()
	}
	if logErr := s.auditor.Log(*entry); logErr != nil {
		log.Ctx(ctx).Error().Err(logErr).Str("action", entry.Action).Msg("failed to write audit log entry")
	}
}
