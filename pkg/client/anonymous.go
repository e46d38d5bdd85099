package client

import (
	"context"
	"net/http"

	"github.com/usherhq/usher/internal/api"
	"github.com/usherhq/usher/internal/core"
)

// AnonymousSession is the result of starting or continuing an anonymous
// session.
type AnonymousSession struct {
	ID     string
	Ticket *core.Ticket
}

type anonymousWire struct {
	ID     string              `json:"id"`
	Ticket *api.TicketResponse `json:"ticket,omitempty"`
}

// Anonymous starts or continues an anonymous session. app may be empty to
// only obtain an id. The anonymous cookie rides on the client's cookie jar
// when one is configured.
func (c *Client) Anonymous(ctx context.Context, app string) (*AnonymousSession, error) {
	var wire anonymousWire
	payload := map[string]string{}
	if app != "" {
		payload["app"] = app
	}
	if _, err := c.request(ctx, http.MethodPost, api.AnonymousRoute, nil, payload, &wire); err != nil {
		return nil, err
	}
	session := &AnonymousSession{ID: wire.ID}
	if wire.Ticket != nil {
		session.Ticket = toTicket(*wire.Ticket)
	}
	return session, nil
}
