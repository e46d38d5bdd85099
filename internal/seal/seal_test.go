package seal

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/usherhq/usher/internal/core"
)

var testPassword = []byte("correct-horse-battery-staple-0123456789")

type testPayload struct {
	App   string   `json:"app"`
	Scope []string `json:"scope"`
	Exp   int64    `json:"exp"`
}

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New(testPassword)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RejectsShortPassword(t *testing.T) {
	if _, err := New([]byte("too short")); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestSealUnseal_RoundTrip(t *testing.T) {
	c := newTestCodec(t)
	in := testPayload{App: "news", Scope: []string{"read", "write"}, Exp: 12345}

	token, err := c.Seal(KindTicket, in)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(token, Version+"*") {
		t.Errorf("token missing version prefix: %q", token)
	}

	var out testPayload
	if err := c.Unseal(token, KindTicket, &out); err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestUnseal_RejectsEveryFlippedBit(t *testing.T) {
	c := newTestCodec(t)
	token, err := c.Seal(KindTicket, testPayload{App: "news"})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Flipping any single bit anywhere in the token must fail closed.
	// Stride keeps the test fast while still covering every region.
	for i := 0; i < len(token); i += 7 {
		mutated := []byte(token)
		mutated[i] ^= 0x01
		if string(mutated) == token {
			continue
		}
		var out testPayload
		err := c.Unseal(string(mutated), KindTicket, &out)
		if err == nil {
			t.Fatalf("bit flip at offset %d accepted", i)
		}
		if !core.IsKind(err, core.KindUnauthorized) {
			t.Fatalf("bit flip at offset %d: kind = %v, want unauthorized", i, core.KindOf(err))
		}
	}
}

func TestUnseal_RejectsWrongKind(t *testing.T) {
	c := newTestCodec(t)

	ticket, err := c.Seal(KindTicket, testPayload{App: "news"})
	if err != nil {
		t.Fatalf("Seal ticket: %v", err)
	}
	rsvp, err := c.Seal(KindRsvp, testPayload{App: "news"})
	if err != nil {
		t.Fatalf("Seal rsvp: %v", err)
	}

	var out testPayload
	if err := c.Unseal(ticket, KindRsvp, &out); !core.IsKind(err, core.KindUnauthorized) {
		t.Errorf("ticket accepted as rsvp: %v", err)
	}
	if err := c.Unseal(rsvp, KindTicket, &out); !core.IsKind(err, core.KindUnauthorized) {
		t.Errorf("rsvp accepted as ticket: %v", err)
	}
}

func TestUnseal_RejectsWrongPassword(t *testing.T) {
	c := newTestCodec(t)
	other, err := New([]byte("a-completely-different-password-9876543210"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token, err := c.Seal(KindTicket, testPayload{App: "news"})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	var out testPayload
	if err := other.Unseal(token, KindTicket, &out); !core.IsKind(err, core.KindUnauthorized) {
		t.Errorf("wrong password: kind = %v, want unauthorized", core.KindOf(err))
	}
}

func TestUnseal_EnforcesEnvelopeExpiry(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()

	token, err := c.SealWithExpiry(KindRsvp, testPayload{App: "news"}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SealWithExpiry: %v", err)
	}

	var out testPayload
	if err := c.UnsealAt(token, KindRsvp, &out, now); err != nil {
		t.Fatalf("unseal before expiry: %v", err)
	}
	if err := c.UnsealAt(token, KindRsvp, &out, now.Add(2*time.Hour)); !core.IsKind(err, core.KindUnauthorized) {
		t.Errorf("unseal after expiry: kind = %v, want unauthorized", core.KindOf(err))
	}
}

func TestUnseal_RejectsMalformedStructure(t *testing.T) {
	c := newTestCodec(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not a token"},
		{"too few parts", "us1*a*b*c"},
		{"unknown version", "us9*a*b*c*d*e*f"},
		{"bad salts", "us1*xx*b*c**yy*zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out testPayload
			err := c.Unseal(tt.token, KindTicket, &out)
			if !core.IsKind(err, core.KindUnauthorized) {
				t.Errorf("kind = %v, want unauthorized", core.KindOf(err))
			}
		})
	}
}
