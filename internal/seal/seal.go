// Package seal implements the authenticated encryption envelope behind
// ticket and rsvp identifiers. Tokens are versioned, encrypt-then-MAC
// (AES-256-CBC + HMAC-SHA256 under keys derived with PBKDF2), and carry a
// kind tag so a sealed rsvp can never pass where a ticket is expected.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/usherhq/usher/internal/core"
)

// Version tags the wire format. Unseal rejects anything else outright.
const Version = "us1"

// Kind distinguishes the two sealed credential types.
type Kind string

const (
	KindTicket Kind = "ticket"
	KindRsvp   Kind = "rsvp"
)

const (
	MinPasswordLength = 32

	keyLength  = 32
	saltLength = 16
	iterations = 8192

	// version*encSalt*iv*ciphertext*exp*macSalt*mac
	partCount = 7
)

type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Codec seals and unseals credential payloads under a server-wide password.
type Codec struct {
	password []byte
}

// New returns a Codec. The password must be at least MinPasswordLength
// bytes; a short password is a configuration error, not a runtime one.
func New(password []byte) (*Codec, error) {
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("seal password must be at least %d bytes, got %d", MinPasswordLength, len(password))
	}
	return &Codec{password: password}, nil
}

// Seal serializes payload into a sealed token of the given kind with no
// envelope-level expiry.
func (c *Codec) Seal(kind Kind, payload any) (string, error) {
	return c.SealWithExpiry(kind, payload, time.Time{})
}

// SealWithExpiry serializes payload into a sealed token of the given kind.
// A non-zero exp is embedded in the authenticated envelope and enforced on
// unseal independently of anything inside the payload.
func (c *Codec) SealWithExpiry(kind Kind, payload any, exp time.Time) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", core.E(core.KindInternal, "sealing failed", err)
	}
	plain, err := json.Marshal(envelope{Kind: kind, Payload: raw})
	if err != nil {
		return "", core.E(core.KindInternal, "sealing failed", err)
	}

	encSalt, err := randomSalt()
	if err != nil {
		return "", core.E(core.KindInternal, "sealing failed", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", core.E(core.KindInternal, "sealing failed", err)
	}

	block, err := aes.NewCipher(c.deriveKey(encSalt))
	if err != nil {
		return "", core.E(core.KindInternal, "sealing failed", err)
	}
	padded := pad(plain, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	expField := ""
	if !exp.IsZero() {
		expField = strconv.FormatInt(exp.UnixMilli(), 10)
	}

	base := strings.Join([]string{
		Version,
		encSalt,
		base64.RawURLEncoding.EncodeToString(iv),
		base64.RawURLEncoding.EncodeToString(ct),
		expField,
	}, "*")

	macSalt, err := randomSalt()
	if err != nil {
		return "", core.E(core.KindInternal, "sealing failed", err)
	}
	mac := c.computeMAC(macSalt, base)

	return base + "*" + macSalt + "*" + base64.RawURLEncoding.EncodeToString(mac), nil
}

// Unseal verifies and decrypts token, requiring its kind tag to match the
// expected kind, and unmarshals the payload into out. Every failure mode
// surfaces as the same generic unauthorized error; the wrapped detail is
// for server-side logs only.
func (c *Codec) Unseal(token string, kind Kind, out any) error {
	return c.UnsealAt(token, kind, out, time.Now())
}

// UnsealAt is Unseal with an explicit clock.
func (c *Codec) UnsealAt(token string, kind Kind, out any, now time.Time) error {
	parts := strings.Split(token, "*")
	if len(parts) != partCount {
		return invalid(fmt.Errorf("expected %d parts, got %d", partCount, len(parts)))
	}
	version, encSalt, ivB64, ctB64, expField, macSalt, macB64 := parts[0], parts[1], parts[2], parts[3], parts[4], parts[5], parts[6]

	if version != Version {
		return invalid(fmt.Errorf("unknown version %q", version))
	}
	if !validSalt(encSalt) || !validSalt(macSalt) {
		return invalid(fmt.Errorf("malformed salt"))
	}

	// MAC check comes first, in constant time, before anything is decoded
	// or decrypted.
	base := strings.Join([]string{version, encSalt, ivB64, ctB64, expField}, "*")
	expected := c.computeMAC(macSalt, base)
	received, err := base64.RawURLEncoding.DecodeString(macB64)
	if err != nil {
		return invalid(fmt.Errorf("malformed mac: %w", err))
	}
	if !hmac.Equal(expected, received) {
		return invalid(fmt.Errorf("mac mismatch"))
	}

	if expField != "" {
		expMs, err := strconv.ParseInt(expField, 10, 64)
		if err != nil {
			return invalid(fmt.Errorf("malformed expiry: %w", err))
		}
		if expMs <= now.UnixMilli() {
			return invalid(fmt.Errorf("expired at %d", expMs))
		}
	}

	iv, err := base64.RawURLEncoding.DecodeString(ivB64)
	if err != nil || len(iv) != aes.BlockSize {
		return invalid(fmt.Errorf("malformed iv"))
	}
	ct, err := base64.RawURLEncoding.DecodeString(ctB64)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return invalid(fmt.Errorf("malformed ciphertext"))
	}

	block, err := aes.NewCipher(c.deriveKey(encSalt))
	if err != nil {
		return core.E(core.KindInternal, "unsealing failed", err)
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	plain, err = unpad(plain, aes.BlockSize)
	if err != nil {
		return invalid(err)
	}

	var env envelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return invalid(fmt.Errorf("malformed envelope: %w", err))
	}
	if env.Kind != kind {
		return invalid(fmt.Errorf("kind %q where %q expected", env.Kind, kind))
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return invalid(fmt.Errorf("malformed payload: %w", err))
	}
	return nil
}

func (c *Codec) deriveKey(saltHex string) []byte {
	return pbkdf2.Key(c.password, []byte(saltHex), iterations, keyLength, sha256.New)
}

func (c *Codec) computeMAC(saltHex, base string) []byte {
	mac := hmac.New(sha256.New, c.deriveKey(saltHex))
	mac.Write([]byte(base))
	return mac.Sum(nil)
}

func invalid(detail error) error {
	return core.E(core.KindUnauthorized, "invalid token", detail)
}

func randomSalt() (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt), nil
}

func validSalt(s string) bool {
	if len(s) != hex.EncodedLen(saltLength) {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("malformed padding")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("malformed padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("malformed padding")
		}
	}
	return b[:len(b)-n], nil
}
