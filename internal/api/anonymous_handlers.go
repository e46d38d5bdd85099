package api

import (
	"net/http"
	"time"

	"github.com/usherhq/usher/internal/api/presenter"
	"github.com/usherhq/usher/internal/service"
)

// AnonymousCookie stores the caller's anonymous user id.
const AnonymousCookie = "usher_aid"

type anonymousPayload struct {
	// App optionally names the application to mint a ticket for.
	App string `json:"app,omitempty"`
}

type anonymousResponse struct {
	ID     string          `json:"id"`
	Ticket *TicketResponse `json:"ticket,omitempty"`
}

// handleAnonymous assigns (or continues) an anonymous session and, when an
// application is named, mints an anonymous user ticket. Unauthenticated by
// design: the session only ever carries the anonymous scope.
func (s *Server) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	if err := contentTypeOK(r); err != nil {
		presenter.Err(w, r, err)
		return
	}

	var payload anonymousPayload
	if err := decodePayload(body, &payload, true); err != nil {
		presenter.Err(w, r, err)
		return
	}

	req := service.AnonymousRequest{App: payload.App}
	if c, err := r.Cookie(AnonymousCookie); err == nil {
		req.UserID = c.Value
	}

	resp, err := s.svc.Anonymous(r.Context(), req)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}

	if resp.SetCookie {
		http.SetCookie(w, &http.Cookie{
			Name:     AnonymousCookie,
			Value:    resp.UserID,
			Path:     "/",
			Expires:  time.Now().Add(365 * 24 * time.Hour),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	out := anonymousResponse{ID: resp.UserID}
	if resp.Ticket != nil {
		t := newTicketResponse(resp.Ticket)
		out.Ticket = &t
	}
	presenter.JSON(w, r, out, http.StatusOK)
}
