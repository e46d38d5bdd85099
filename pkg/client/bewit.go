package client

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/usherhq/usher/internal/hawk"
)

// Bewit builds a URL granting time-limited GET access to uri, signed with
// the client's current ticket. The returned URL carries the credential in
// its query string; treat it like a secret until it expires.
func (c *Client) Bewit(uri string, ttl time.Duration) (string, error) {
	cred, err := c.ticketCredential()
	if err != nil {
		return "", err
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parsing uri: %w", err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		host = u.Host
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	exp := time.Now().Add(ttl)
	bewit, err := hawk.SignBewit(cred, host, port, u.RequestURI(), exp, "")
	if err != nil {
		return "", err
	}

	// Append to the raw query instead of re-encoding it: the MAC covers the
	// query exactly as signed, and url.Values would reorder it.
	param := hawk.BewitParam + "=" + bewit
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery += "&" + param
	}
	return u.String(), nil
}
