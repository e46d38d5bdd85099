package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/usherhq/usher/internal/core"
)

// TicketResponse is the client-facing view of a minted ticket. The private
// ext only ever travels inside the sealed identifier, never in plaintext.
type TicketResponse struct {
	ID        string         `json:"id"`
	App       string         `json:"app"`
	User      string         `json:"user,omitempty"`
	Grant     string         `json:"grant,omitempty"`
	Scope     []string       `json:"scope"`
	Exp       int64          `json:"exp"`
	Key       string         `json:"key"`
	Algorithm string         `json:"algorithm"`
	Ext       map[string]any `json:"ext,omitempty"`
}

func newTicketResponse(t *core.Ticket) TicketResponse {
	return TicketResponse{
		ID:        t.ID,
		App:       t.App,
		User:      t.User,
		Grant:     t.GrantID,
		Scope:     t.Scope,
		Exp:       t.Exp,
		Key:       t.Key,
		Algorithm: t.Algorithm,
		Ext:       t.Ext.Public,
	}
}

// decodePayload decodes a JSON body strictly: unknown fields and trailing
// data are errors.
func decodePayload(body []byte, dest any, allowEmpty bool) error {
	if len(body) == 0 {
		if allowEmpty {
			return nil
		}
		return core.E(core.KindBadRequest, "missing request body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return core.E(core.KindBadRequest, "invalid request body", err)
	}
	if dec.More() {
		return core.E(core.KindBadRequest, "invalid request body", errors.New("extra data after payload"))
	}
	return nil
}

func contentTypeOK(r *http.Request) error {
	switch ct := r.Header.Get("Content-Type"); ct {
	case "application/json", "":
		return nil
	default:
		return core.Errorf(core.KindBadRequest, "unsupported content type %q", ct)
	}
}
