package api

import (
	"context"
	"net/http"

	"github.com/usherhq/usher/internal/api/presenter"
	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/service"
)

// handleCreateApplication registers a new application. The generated
// credential key is returned exactly once, in this response.
func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	actor, err := s.authTicket(r, body)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	if err := contentTypeOK(r); err != nil {
		presenter.Err(w, r, err)
		return
	}

	var req service.CreateApplicationRequest
	if err := decodePayload(body, &req, false); err != nil {
		presenter.Err(w, r, err)
		return
	}

	app, err := s.svc.CreateApplication(r.Context(), actor, req)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, app, http.StatusCreated)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	actor, err := s.authTicket(r, body)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}

	app, err := s.svc.GetApplication(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, app, http.StatusOK)
}

type grantScopePayload struct {
	Scope string `json:"scope"`
}

// handleGrantScope adds a reserved admin scope to a grant.
func (s *Server) handleGrantScope(w http.ResponseWriter, r *http.Request) {
	s.handleScopeMutation(w, r, s.svc.GrantAdminScope)
}

// handleRevokeScope removes a reserved admin scope from a grant.
func (s *Server) handleRevokeScope(w http.ResponseWriter, r *http.Request) {
	s.handleScopeMutation(w, r, s.svc.RevokeAdminScope)
}

func (s *Server) handleScopeMutation(
	w http.ResponseWriter, r *http.Request,
	mutate func(ctx context.Context, actor *core.Ticket, grantID, adminScope string) (*core.Grant, error),
) {
	body, err := readBody(r)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	actor, err := s.authTicket(r, body)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	if err := contentTypeOK(r); err != nil {
		presenter.Err(w, r, err)
		return
	}

	var payload grantScopePayload
	if err := decodePayload(body, &payload, false); err != nil {
		presenter.Err(w, r, err)
		return
	}

	grant, err := mutate(r.Context(), actor, r.PathValue("id"), payload.Scope)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, grant, http.StatusOK)
}
