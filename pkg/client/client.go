// Package client is the Go SDK for an Usher server. It signs requests with
// the caller's application credential or ticket, keeps the app ticket
// refreshed in the background, and wraps every HTTP endpoint.
package client

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/hawk"
)

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	// appCred is the static application credential, used to mint app
	// tickets.
	appCred *hawk.Credential

	mu     sync.RWMutex
	ticket *core.Ticket
}

type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAppCredential sets the static application credential used to request
// app tickets.
func WithAppCredential(id, key, algorithm string) Option {
	return func(c *Client) {
		c.appCred = &hawk.Credential{ID: id, Key: key, Algorithm: algorithm}
	}
}

// WithTicket seeds the client with an existing ticket.
func WithTicket(t *core.Ticket) Option {
	return func(c *Client) { c.ticket = t }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ticket returns the ticket the client currently signs with, or nil.
func (c *Client) Ticket() *core.Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticket
}

// SetTicket replaces the ticket the client signs with.
func (c *Client) SetTicket(t *core.Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticket = t
}

func (c *Client) ticketCredential() (*hawk.Credential, error) {
	t := c.Ticket()
	if t == nil {
		return nil, ErrNoTicket
	}
	return &hawk.Credential{ID: t.ID, Key: t.Key, Algorithm: t.Algorithm}, nil
}
