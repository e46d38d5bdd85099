package hawk

import (
	"context"
	"crypto/hmac"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/usherhq/usher/internal/core"
)

// A bewit is a MAC credential embedded directly in a URL query string,
// authorizing exactly one GET before its expiry. The MAC computation matches
// the header scheme except the nonce is empty, the method is fixed to GET
// and the timestamp is the expiry itself.

// BewitParam is the query parameter carrying the bewit.
const BewitParam = "bewit"

// The separator cannot appear in a credential id, an expiry or a base64
// MAC, so the four fields split unambiguously.
const bewitSeparator = `\`

// Bewit is a decoded bewit token.
type Bewit struct {
	ID  string
	Exp int64
	MAC string
	Ext string
}

// SignBewit builds the bewit query value for a single GET of path (which
// may include a query string, without the bewit parameter) expiring at exp.
func SignBewit(cred *Credential, host, port, path string, exp time.Time, ext string) (string, error) {
	mac, err := CalculateMAC(cred, "bewit", RequestAttributes{
		Method:    "GET",
		Host:      host,
		Port:      port,
		Path:      path,
		Timestamp: exp.Unix(),
		Ext:       ext,
	})
	if err != nil {
		return "", err
	}
	raw := strings.Join([]string{cred.ID, strconv.FormatInt(exp.Unix(), 10), mac, ext}, bewitSeparator)
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// VerifyBewit authenticates a GET request whose uri (path plus raw query)
// carries a bewit parameter. The parameter is stripped before the MAC is
// recomputed. Failures collapse into a generic unauthorized error.
func VerifyBewit(ctx context.Context, method, host, port, uri string, lookup CredentialLookup, now time.Time) (*Credential, *Bewit, error) {
	if now.IsZero() {
		now = time.Now()
	}

	m := strings.ToUpper(method)
	if m != "GET" && m != "HEAD" {
		return nil, nil, unauthorized(fmt.Errorf("bewit not allowed for method %s", method))
	}

	stripped, value, found := extractBewit(uri)
	if !found {
		return nil, nil, unauthorized(fmt.Errorf("missing bewit"))
	}

	bewit, err := decodeBewit(value)
	if err != nil {
		return nil, nil, unauthorized(err)
	}

	if bewit.Exp <= now.Unix() {
		return nil, nil, unauthorized(fmt.Errorf("bewit expired at %d", bewit.Exp))
	}

	cred, err := lookup(ctx, bewit.ID)
	if err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) && coreErr.Kind == core.KindUnavailable {
			return nil, nil, err
		}
		return nil, nil, unauthorized(err)
	}

	expected, err := CalculateMAC(cred, "bewit", RequestAttributes{
		Method:    "GET",
		Host:      host,
		Port:      port,
		Path:      stripped,
		Timestamp: bewit.Exp,
		Ext:       bewit.Ext,
	})
	if err != nil {
		return nil, nil, unauthorized(err)
	}
	if !hmac.Equal([]byte(expected), []byte(bewit.MAC)) {
		return nil, nil, unauthorized(fmt.Errorf("bewit mac mismatch"))
	}

	return cred, bewit, nil
}

func decodeBewit(value string) (*Bewit, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("malformed bewit: %w", err)
	}
	parts := strings.Split(string(raw), bewitSeparator)
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed bewit: %d fields", len(parts))
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed bewit expiry: %w", err)
	}
	if parts[0] == "" || parts[2] == "" {
		return nil, fmt.Errorf("malformed bewit: empty id or mac")
	}
	return &Bewit{ID: parts[0], Exp: exp, MAC: parts[2], Ext: parts[3]}, nil
}

// extractBewit removes the bewit parameter from uri, preserving the rest of
// the query untouched, and returns the stripped uri and the parameter value.
func extractBewit(uri string) (stripped, value string, found bool) {
	path, query, hasQuery := strings.Cut(uri, "?")
	if !hasQuery {
		return uri, "", false
	}

	kept := make([]string, 0, 4)
	for _, pair := range strings.Split(query, "&") {
		if v, ok := strings.CutPrefix(pair, BewitParam+"="); ok && !found {
			value = v
			found = true
			continue
		}
		kept = append(kept, pair)
	}
	if !found {
		return uri, "", false
	}
	if len(kept) == 0 {
		return path, value, true
	}
	return path + "?" + strings.Join(kept, "&"), value, true
}
