package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/hawk"
)

const maxBodyBytes = 1 << 20

// readBody drains and returns the request body so it can be both verified
// against the signed payload hash and decoded afterwards.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return nil, core.E(core.KindBadRequest, "unreadable request body", err)
	}
	return body, nil
}

// authApp authenticates a request signed with a static application
// credential and returns the application id.
func (s *Server) authApp(r *http.Request, body []byte) (string, error) {
	cred, _, err := s.verify(r, s.svc.Issuer().AppCredentials(), body)
	if err != nil {
		return "", err
	}
	return cred.ID, nil
}

// authTicket authenticates a request signed with a sealed ticket and
// returns the parsed ticket.
func (s *Server) authTicket(r *http.Request, body []byte) (*core.Ticket, error) {
	var parsed *core.Ticket
	lookup := func(_ context.Context, id string) (*hawk.Credential, error) {
		t, err := s.svc.Issuer().ParseTicket(id, time.Now())
		if err != nil {
			return nil, err
		}
		parsed = t
		return &hawk.Credential{ID: id, Key: t.Key, Algorithm: t.Algorithm}, nil
	}
	if _, _, err := s.verify(r, lookup, body); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (s *Server) verify(r *http.Request, lookup hawk.CredentialLookup, body []byte) (*hawk.Credential, *hawk.Header, error) {
	host, port := hostPort(r)
	opts := hawk.VerifyOptions{
		Skew:   s.skew,
		Replay: s.replay,
	}
	if len(body) > 0 {
		opts.Payload = body
		opts.ContentType = r.Header.Get("Content-Type")
	}
	return hawk.Verify(r.Context(), r.Header.Get("Authorization"), lookup, hawk.RequestAttributes{
		Method: r.Method,
		Host:   host,
		Port:   port,
		Path:   r.URL.RequestURI(),
	}, opts)
}

// hostPort splits the request host, defaulting the port by scheme.
func hostPort(r *http.Request) (string, string) {
	host, port, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
		if r.TLS != nil {
			port = "443"
		} else {
			port = "80"
		}
	}
	return host, port
}
