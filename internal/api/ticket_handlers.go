package api

import (
	"net/http"

	"github.com/usherhq/usher/internal/api/presenter"
)

// handleAppTicket mints an app ticket for an application authenticating
// with its static credential.
func (s *Server) handleAppTicket(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	appID, err := s.authApp(r, body)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}

	t, err := s.svc.AppTicket(r.Context(), appID)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, newTicketResponse(t), http.StatusOK)
}

type rsvpTicketPayload struct {
	Rsvp string `json:"rsvp"`
}

// handleRsvpTicket exchanges a sealed rsvp for a user ticket. The caller
// signs with its app ticket.
func (s *Server) handleRsvpTicket(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	appTicket, err := s.authTicket(r, body)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	if err := contentTypeOK(r); err != nil {
		presenter.Err(w, r, err)
		return
	}

	var payload rsvpTicketPayload
	if err := decodePayload(body, &payload, false); err != nil {
		presenter.Err(w, r, err)
		return
	}

	t, err := s.svc.ExchangeRsvp(r.Context(), appTicket, payload.Rsvp)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, newTicketResponse(t), http.StatusOK)
}

// handleReissue rotates the ticket the request is signed with.
func (s *Server) handleReissue(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presented, err := s.authTicket(r, body)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}

	t, err := s.svc.Reissue(r.Context(), presented)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, newTicketResponse(t), http.StatusOK)
}
