package api

import (
	"errors"
	"net/http"
	"slices"

	"github.com/usherhq/usher/internal/api/presenter"
	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/scope"
	"github.com/usherhq/usher/internal/tasks"
)

func (s *Server) requireTaskAdmin(r *http.Request, body []byte) error {
	t, err := s.authTicket(r, body)
	if err != nil {
		return err
	}
	if !slices.Contains(t.Scope, scope.Admin) && !slices.Contains(t.Scope, scope.AdminWildcard) {
		return core.E(core.KindForbidden, "admin scope required")
	}
	return nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	if err := s.requireTaskAdmin(r, body); err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, s.taskManager.ListStatus(), http.StatusOK)
}

func (s *Server) handleTriggerTask(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	if err := s.requireTaskAdmin(r, body); err != nil {
		presenter.Err(w, r, err)
		return
	}

	name := r.PathValue("name")
	if err := s.taskManager.Trigger(name); err != nil {
		var notFound tasks.TaskNotFoundError
		if errors.As(err, &notFound) {
			presenter.Err(w, r, core.E(core.KindNotFound, "task not found", err))
			return
		}
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, map[string]string{"status": "triggered", "task": name}, http.StatusAccepted)
}
