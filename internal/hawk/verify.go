package hawk

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"time"

	"github.com/usherhq/usher/internal/core"
)

// CredentialLookup resolves a credential id (application id or sealed
// ticket) to its MAC credential. It returns a core error with the kind the
// caller should see; a NotFound from storage is reported as Unauthorized.
type CredentialLookup func(ctx context.Context, id string) (*Credential, error)

// VerifyOptions tune request verification.
type VerifyOptions struct {
	// Skew is the tolerated clock difference between the client timestamp
	// and server time.
	Skew time.Duration

	// Now overrides the clock; zero means time.Now().
	Now time.Time

	// Payload and ContentType, when Payload is non-nil, are checked against
	// the hash the client signed.
	Payload     []byte
	ContentType string

	// Replay, when set, rejects a (credential, nonce) pair seen before
	// within the cache horizon.
	Replay *ReplayCache
}

// Verify authenticates a signed request. The steps run in a fixed order:
// header parse, credential lookup, constant-time MAC comparison, timestamp
// skew, payload hash, nonce replay. Every failure collapses into the same
// unauthorized error; the distinguishing detail is wrapped for logging only.
func Verify(ctx context.Context, headerValue string, lookup CredentialLookup, attrs RequestAttributes, opts VerifyOptions) (*Credential, *Header, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	header, err := ParseHeader(headerValue)
	if err != nil {
		return nil, nil, unauthorized(err)
	}

	cred, err := lookup(ctx, header.ID)
	if err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) && coreErr.Kind == core.KindUnavailable {
			return nil, nil, err
		}
		return nil, nil, unauthorized(err)
	}

	attrs.Timestamp = header.Timestamp
	attrs.Nonce = header.Nonce
	attrs.Hash = header.Hash
	attrs.Ext = header.Ext

	expected, err := CalculateMAC(cred, "request", attrs)
	if err != nil {
		return nil, nil, unauthorized(err)
	}
	if !hmac.Equal([]byte(expected), []byte(header.MAC)) {
		return nil, nil, unauthorized(fmt.Errorf("mac mismatch"))
	}

	if drift := now.Unix() - header.Timestamp; drift > int64(opts.Skew.Seconds()) || -drift > int64(opts.Skew.Seconds()) {
		return nil, nil, unauthorized(fmt.Errorf("stale timestamp: drift %ds exceeds %s skew", drift, opts.Skew))
	}

	if opts.Payload != nil {
		if header.Hash == "" {
			return nil, nil, unauthorized(fmt.Errorf("missing payload hash"))
		}
		if computed := PayloadHash(opts.ContentType, opts.Payload); !hmac.Equal([]byte(computed), []byte(header.Hash)) {
			return nil, nil, unauthorized(fmt.Errorf("payload hash mismatch"))
		}
	}

	// Replay detection runs last so only fully authenticated requests can
	// populate the cache.
	if opts.Replay != nil {
		if !opts.Replay.Remember(cred.ID, header.Nonce, now) {
			return nil, nil, unauthorized(fmt.Errorf("nonce replayed"))
		}
	}

	return cred, header, nil
}

func unauthorized(detail error) error {
	return core.E(core.KindUnauthorized, "unauthorized", detail)
}
