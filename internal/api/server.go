// Package api exposes the HTTP surface: ticket minting, rsvp issuance,
// anonymous sessions and the administrative endpoints, all authenticated
// with signed requests.
package api

import (
	"net/http"
	"time"

	"github.com/usherhq/usher/internal/api/middleware"
	"github.com/usherhq/usher/internal/hawk"
	"github.com/usherhq/usher/internal/service"
	"github.com/usherhq/usher/internal/tasks"
)

// Options tune request authentication.
type Options struct {
	// Skew is the tolerated client clock drift on signed requests.
	Skew time.Duration

	// Replay rejects reused nonces. Optional.
	Replay *hawk.ReplayCache
}

type Server struct {
	svc         *service.Service
	taskManager *tasks.Manager
	skew        time.Duration
	replay      *hawk.ReplayCache
}

func NewServer(svc *service.Service, taskManager *tasks.Manager, opts Options) *Server {
	if opts.Skew <= 0 {
		opts.Skew = time.Minute
	}
	return &Server{
		svc:         svc,
		taskManager: taskManager,
		skew:        opts.Skew,
		replay:      opts.Replay,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)
	mux.HandleFunc("POST "+AnonymousRoute, s.handleAnonymous)

	// signed routes
	mux.HandleFunc("POST "+AppTicketRoute, s.handleAppTicket)
	mux.HandleFunc("POST "+RsvpTicketRoute, s.handleRsvpTicket)
	mux.HandleFunc("POST "+ReissueTicketRoute, s.handleReissue)
	mux.HandleFunc("POST "+RsvpRoute, s.handleIssueRsvp)

	// admin routes (authorization is per-handler, scope-based)
	mux.HandleFunc("POST "+AdminApplicationsRoute, s.handleCreateApplication)
	mux.HandleFunc("GET "+AdminApplicationRoute, s.handleGetApplication)
	mux.HandleFunc("POST "+AdminGrantScopesRoute, s.handleGrantScope)
	mux.HandleFunc("DELETE "+AdminGrantScopesRoute, s.handleRevokeScope)
	mux.HandleFunc("GET "+ListTasksRoute, s.handleListTasks)
	mux.HandleFunc("POST "+TriggerTaskRoute, s.handleTriggerTask)

	return middleware.Chain(mux)
}
