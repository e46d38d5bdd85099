package api

import (
	"net/http"

	"github.com/usherhq/usher/internal/api/presenter"
	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/service"
)

type issueRsvpPayload struct {
	// App is the application the rsvp is for.
	App string `json:"app"`

	// Provider optionally names the identity verifier.
	Provider string `json:"provider,omitempty"`

	// Attestation is the raw identity-provider token.
	Attestation string `json:"attestation"`

	// Email cross-checks the verified identity.
	Email string `json:"email,omitempty"`
}

// handleIssueRsvp verifies an identity attestation and returns a sealed
// rsvp. The caller signs with an app ticket; any application holding a
// ticket may broker logins for another.
func (s *Server) handleIssueRsvp(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	t, err := s.authTicket(r, body)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	if t.User != "" {
		presenter.Err(w, r, core.E(core.KindUnauthorized, "rsvp issuance requires an app ticket"))
		return
	}
	if err := contentTypeOK(r); err != nil {
		presenter.Err(w, r, err)
		return
	}

	var payload issueRsvpPayload
	if err := decodePayload(body, &payload, false); err != nil {
		presenter.Err(w, r, err)
		return
	}

	resp, err := s.svc.IssueRsvp(r.Context(), service.RsvpRequest{
		App:         payload.App,
		Provider:    payload.Provider,
		Attestation: payload.Attestation,
		Email:       payload.Email,
	})
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, resp, http.StatusOK)
}
