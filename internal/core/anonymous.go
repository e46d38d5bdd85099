package core

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Anonymous grants are never persisted. Their id carries the whole grant
// (agid**<base64url JSON>) so it can be rebuilt from the id alone, but a
// decoded grant is validated as strictly as a stored one before use.

const (
	// AnonymousScope is the only scope an anonymous grant may carry.
	AnonymousScope = "anonymous"

	// AnonymousIDPrefix is the fixed prefix of anonymous user ids; the
	// remainder must be a UUID.
	AnonymousIDPrefix = "aid:"

	agidPrefix = "agid**"
)

type anonymousGrantEnvelope struct {
	App  string `json:"app"`
	User string `json:"user"`
	Exp  int64  `json:"exp"`
}

// NewAnonymousUserID returns a fresh anonymous user id.
func NewAnonymousUserID() string {
	return AnonymousIDPrefix + uuid.NewString()
}

// ValidAnonymousUserID reports whether id is the fixed prefix followed by a
// well-formed UUID.
func ValidAnonymousUserID(id string) bool {
	suffix, ok := strings.CutPrefix(id, AnonymousIDPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(suffix)
	return err == nil
}

// NewAnonymousGrant builds an ephemeral grant for the given application and
// anonymous user, expiring at exp.
func NewAnonymousGrant(app, user string, exp time.Time) *Grant {
	g := &Grant{
		App:   app,
		User:  user,
		Scope: []string{AnonymousScope},
		Exp:   exp,
	}
	g.ID = EncodeAnonymousGrantID(g)
	return g
}

// EncodeAnonymousGrantID serializes the grant into a self-describing id.
func EncodeAnonymousGrantID(g *Grant) string {
	raw, _ := json.Marshal(anonymousGrantEnvelope{
		App:  g.App,
		User: g.User,
		Exp:  g.Exp.UnixMilli(),
	})
	return agidPrefix + base64.RawURLEncoding.EncodeToString(raw)
}

// IsAnonymousGrantID reports whether id is a self-describing anonymous
// grant id.
func IsAnonymousGrantID(id string) bool {
	return strings.HasPrefix(id, agidPrefix)
}

// DecodeAnonymousGrantID rebuilds the grant encoded in id. It rejects
// malformed structure, missing fields, a non-anonymous user id, and an
// expiration in the past.
func DecodeAnonymousGrantID(id string, now time.Time) (*Grant, error) {
	encoded, ok := strings.CutPrefix(id, agidPrefix)
	if !ok {
		return nil, E(KindUnauthorized, "invalid grant")
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, E(KindUnauthorized, "invalid grant", err)
	}
	var env anonymousGrantEnvelope
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, E(KindUnauthorized, "invalid grant", err)
	}
	if env.App == "" || env.Exp == 0 {
		return nil, E(KindUnauthorized, "invalid grant")
	}
	if !ValidAnonymousUserID(env.User) {
		return nil, E(KindUnauthorized, "invalid grant")
	}
	exp := time.UnixMilli(env.Exp)
	if !exp.After(now) {
		return nil, E(KindUnauthorized, "invalid grant")
	}
	return &Grant{
		ID:    id,
		App:   env.App,
		User:  env.User,
		Scope: []string{AnonymousScope},
		Exp:   exp,
	}, nil
}
