// Package hawk implements the MAC request-signing scheme used to
// authenticate every API call: a keyed hash over the normalized request
// (method, host, port, path, timestamp, nonce, payload hash, ext) carried
// in the Authorization header, plus the URL-embedded single-GET variant
// (bewit).
package hawk

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/usherhq/usher/internal/core"
)

// Scheme is the Authorization header scheme.
const Scheme = "Usher"

// SHA256 is the default MAC algorithm.
const SHA256 = "sha256"

// Credential is a MAC credential triple. For applications the ID is the
// application id and the pair is static; for tickets the ID is the sealed
// ticket and the pair is minted per ticket instance.
type Credential struct {
	ID        string
	Key       string
	Algorithm string
}

// RequestAttributes are the signed request parts.
type RequestAttributes struct {
	Method    string
	Host      string
	Port      string
	Path      string
	Timestamp int64
	Nonce     string
	Hash      string
	Ext       string
}

func hashFor(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case SHA256, "":
		return sha256.New, nil
	case "sha1":
		return sha1.New, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}

func normalized(context string, attrs RequestAttributes) string {
	var b strings.Builder
	b.WriteString("usher.1.")
	b.WriteString(context)
	b.WriteByte('\n')
	b.WriteString(strings.ToUpper(attrs.Method))
	b.WriteByte('\n')
	b.WriteString(strings.ToLower(attrs.Host))
	b.WriteByte('\n')
	b.WriteString(attrs.Port)
	b.WriteByte('\n')
	b.WriteString(attrs.Path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(attrs.Timestamp, 10))
	b.WriteByte('\n')
	b.WriteString(attrs.Nonce)
	b.WriteByte('\n')
	b.WriteString(attrs.Hash)
	b.WriteByte('\n')
	b.WriteString(attrs.Ext)
	b.WriteByte('\n')
	return b.String()
}

// CalculateMAC computes the base64 MAC of the normalized request string for
// the given context ("request" or "bewit").
func CalculateMAC(cred *Credential, context string, attrs RequestAttributes) (string, error) {
	newHash, err := hashFor(cred.Algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(newHash, []byte(cred.Key))
	mac.Write([]byte(normalized(context, attrs)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// PayloadHash computes the hash that binds a request body (and its content
// type) into the signed string. An empty body still hashes; the caller
// decides whether to include it at all.
func PayloadHash(contentType string, body []byte) string {
	h := sha256.New()
	h.Write([]byte("usher.1.payload\n"))
	h.Write([]byte(baseContentType(contentType)))
	h.Write([]byte{'\n'})
	h.Write(body)
	h.Write([]byte{'\n'})
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func baseContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// Sign produces the Authorization header value for the request. Timestamp
// and nonce must already be set in attrs.
func Sign(cred *Credential, attrs RequestAttributes) (string, error) {
	mac, err := CalculateMAC(cred, "request", attrs)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(Scheme)
	fmt.Fprintf(&b, ` id="%s", ts="%d", nonce="%s"`, cred.ID, attrs.Timestamp, attrs.Nonce)
	if attrs.Hash != "" {
		fmt.Fprintf(&b, `, hash="%s"`, attrs.Hash)
	}
	if attrs.Ext != "" {
		fmt.Fprintf(&b, `, ext="%s"`, attrs.Ext)
	}
	fmt.Fprintf(&b, `, mac="%s"`, mac)
	return b.String(), nil
}

// Nonce returns a fresh random nonce for signing.
func Nonce() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", core.E(core.KindInternal, "nonce generation failed", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
