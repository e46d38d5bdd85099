package client

import (
	"context"
	"net/http"
	"time"

	"github.com/usherhq/usher/internal/api"
	"github.com/usherhq/usher/internal/core"
)

// AppTicket requests a fresh app ticket using the static application
// credential and installs it as the client's signing ticket.
func (c *Client) AppTicket(ctx context.Context) (*core.Ticket, error) {
	if c.appCred == nil {
		return nil, ErrNoTicket
	}
	var resp api.TicketResponse
	if _, err := c.request(ctx, http.MethodPost, api.AppTicketRoute, c.appCred, nil, &resp); err != nil {
		return nil, err
	}
	t := toTicket(resp)
	c.SetTicket(t)
	return t, nil
}

// ExchangeRsvp trades a sealed rsvp for a user ticket. The request is
// signed with the client's app ticket.
func (c *Client) ExchangeRsvp(ctx context.Context, rsvp string) (*core.Ticket, error) {
	cred, err := c.ticketCredential()
	if err != nil {
		return nil, err
	}
	var resp api.TicketResponse
	if _, err := c.request(ctx, http.MethodPost, api.RsvpTicketRoute, cred,
		map[string]string{"rsvp": rsvp}, &resp); err != nil {
		return nil, err
	}
	return toTicket(resp), nil
}

// Reissue rotates the client's current ticket and installs the replacement.
func (c *Client) Reissue(ctx context.Context) (*core.Ticket, error) {
	cred, err := c.ticketCredential()
	if err != nil {
		return nil, err
	}
	var resp api.TicketResponse
	if _, err := c.request(ctx, http.MethodPost, api.ReissueTicketRoute, cred, nil, &resp); err != nil {
		return nil, err
	}
	t := toTicket(resp)
	c.SetTicket(t)
	return t, nil
}

// IssueRsvpRequest mirrors the rsvp issuance payload.
type IssueRsvpRequest struct {
	App         string `json:"app"`
	Provider    string `json:"provider,omitempty"`
	Attestation string `json:"attestation"`
	Email       string `json:"email,omitempty"`
}

// IssueRsvpResponse carries the sealed rsvp.
type IssueRsvpResponse struct {
	Rsvp string    `json:"rsvp"`
	Exp  time.Time `json:"exp"`
}

// IssueRsvp verifies a user attestation server-side and returns the sealed
// rsvp for the named application. Signed with the client's app ticket.
func (c *Client) IssueRsvp(ctx context.Context, req IssueRsvpRequest) (*IssueRsvpResponse, error) {
	cred, err := c.ticketCredential()
	if err != nil {
		return nil, err
	}
	var resp IssueRsvpResponse
	if _, err := c.request(ctx, http.MethodPost, api.RsvpRoute, cred, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func toTicket(resp api.TicketResponse) *core.Ticket {
	return &core.Ticket{
		ID:        resp.ID,
		App:       resp.App,
		User:      resp.User,
		GrantID:   resp.Grant,
		Scope:     resp.Scope,
		Exp:       resp.Exp,
		Key:       resp.Key,
		Algorithm: resp.Algorithm,
		Ext:       core.TicketExt{Public: resp.Ext},
	}
}
