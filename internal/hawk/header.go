package hawk

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Header is a parsed Authorization header.
type Header struct {
	ID        string
	Timestamp int64
	Nonce     string
	MAC       string
	Hash      string
	Ext       string
}

var attributePattern = regexp.MustCompile(`(\w+)="([^"\\]*)"`)

var allowedKeys = map[string]struct{}{
	"id": {}, "ts": {}, "nonce": {}, "mac": {}, "hash": {}, "ext": {},
}

// ParseHeader parses an `Usher id="...", ts="...", ...` header value. It is
// strict: unknown or duplicate keys and a missing id/ts/nonce/mac are all
// rejected.
func ParseHeader(value string) (*Header, error) {
	rest, ok := strings.CutPrefix(value, Scheme+" ")
	if !ok {
		return nil, fmt.Errorf("not an %s header", Scheme)
	}

	matches := attributePattern.FindAllStringSubmatch(rest, -1)
	if matches == nil {
		return nil, fmt.Errorf("no header attributes")
	}

	seen := make(map[string]string, len(matches))
	for _, m := range matches {
		key, val := m[1], m[2]
		if _, ok := allowedKeys[key]; !ok {
			return nil, fmt.Errorf("unknown header attribute %q", key)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate header attribute %q", key)
		}
		seen[key] = val
	}

	for _, required := range []string{"id", "ts", "nonce", "mac"} {
		if seen[required] == "" {
			return nil, fmt.Errorf("missing header attribute %q", required)
		}
	}

	ts, err := strconv.ParseInt(seen["ts"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed ts: %w", err)
	}

	return &Header{
		ID:        seen["id"],
		Timestamp: ts,
		Nonce:     seen["nonce"],
		MAC:       seen["mac"],
		Hash:      seen["hash"],
		Ext:       seen["ext"],
	}, nil
}
