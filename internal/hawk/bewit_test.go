package hawk

import (
	"context"
	"testing"
	"time"

	"github.com/usherhq/usher/internal/core"
)

func TestBewit_RoundTrip(t *testing.T) {
	now := time.Now()
	exp := now.Add(5 * time.Minute)

	bewit, err := SignBewit(testCred, "example.com", "443", "/resource?a=1", exp, "link")
	if err != nil {
		t.Fatalf("SignBewit: %v", err)
	}

	uri := "/resource?a=1&" + BewitParam + "=" + bewit

	cred, decoded, err := VerifyBewit(context.Background(), "GET", "example.com", "443", uri, staticLookup(testCred), now)
	if err != nil {
		t.Fatalf("VerifyBewit: %v", err)
	}
	if cred.ID != testCred.ID {
		t.Errorf("credential id = %q, want %q", cred.ID, testCred.ID)
	}
	if decoded.Ext != "link" {
		t.Errorf("ext = %q, want %q", decoded.Ext, "link")
	}
}

func TestBewit_BareResource(t *testing.T) {
	now := time.Now()
	bewit, err := SignBewit(testCred, "example.com", "80", "/resource", now.Add(time.Minute), "")
	if err != nil {
		t.Fatalf("SignBewit: %v", err)
	}
	uri := "/resource?" + BewitParam + "=" + bewit
	if _, _, err := VerifyBewit(context.Background(), "GET", "example.com", "80", uri, staticLookup(testCred), now); err != nil {
		t.Fatalf("VerifyBewit: %v", err)
	}
}

func TestBewit_Failures(t *testing.T) {
	now := time.Now()
	bewit, err := SignBewit(testCred, "example.com", "443", "/resource", now.Add(time.Minute), "")
	if err != nil {
		t.Fatalf("SignBewit: %v", err)
	}
	uri := "/resource?" + BewitParam + "=" + bewit

	tests := []struct {
		name   string
		method string
		host   string
		port   string
		uri    string
		now    time.Time
	}{
		{"method mismatch", "POST", "example.com", "443", uri, now},
		{"expired", "GET", "example.com", "443", uri, now.Add(2 * time.Minute)},
		{"host mismatch", "GET", "evil.com", "443", uri, now},
		{"port mismatch", "GET", "example.com", "80", uri, now},
		{"path mismatch", "GET", "example.com", "443", "/other?" + BewitParam + "=" + bewit, now},
		{"missing bewit", "GET", "example.com", "443", "/resource", now},
		{"garbage bewit", "GET", "example.com", "443", "/resource?" + BewitParam + "=%%%", now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := VerifyBewit(context.Background(), tt.method, tt.host, tt.port, tt.uri, staticLookup(testCred), tt.now)
			if !core.IsKind(err, core.KindUnauthorized) {
				t.Errorf("kind = %v, want unauthorized (err: %v)", core.KindOf(err), err)
			}
		})
	}
}

func TestExtractBewit(t *testing.T) {
	tests := []struct {
		name         string
		uri          string
		wantStripped string
		wantValue    string
		wantFound    bool
	}{
		{"only bewit", "/r?bewit=abc", "/r", "abc", true},
		{"bewit first", "/r?bewit=abc&a=1", "/r?a=1", "abc", true},
		{"bewit middle", "/r?a=1&bewit=abc&b=2", "/r?a=1&b=2", "abc", true},
		{"no query", "/r", "/r", "", false},
		{"no bewit", "/r?a=1", "/r?a=1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stripped, value, found := extractBewit(tt.uri)
			if stripped != tt.wantStripped || value != tt.wantValue || found != tt.wantFound {
				t.Errorf("extractBewit(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.uri, stripped, value, found, tt.wantStripped, tt.wantValue, tt.wantFound)
			}
		})
	}
}
