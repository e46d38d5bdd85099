package hawk

import (
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"
)

// ReplayCache remembers (credential, nonce) pairs for the skew window so a
// captured, still-fresh signed request cannot be replayed. Entries are keyed
// by a digest of the pair; credential ids can be kilobyte-sized sealed
// tickets and are not worth holding in memory verbatim.
type ReplayCache struct {
	mu      sync.Mutex
	horizon time.Duration
	entries map[string]time.Time
}

// NewReplayCache returns a cache whose entries live for the given horizon.
// The horizon should be at least twice the verification skew.
func NewReplayCache(horizon time.Duration) *ReplayCache {
	return &ReplayCache{
		horizon: horizon,
		entries: make(map[string]time.Time),
	}
}

// Remember records the pair and reports whether it was new. A false return
// means the nonce was already used within the horizon.
func (c *ReplayCache) Remember(credentialID, nonce string, now time.Time) bool {
	key := replayKey(credentialID, nonce)

	c.mu.Lock()
	defer c.mu.Unlock()

	if exp, ok := c.entries[key]; ok && exp.After(now) {
		return false
	}
	c.entries[key] = now.Add(c.horizon)
	return true
}

// Prune drops expired entries and returns how many were removed.
func (c *ReplayCache) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, exp := range c.entries {
		if !exp.After(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func replayKey(credentialID, nonce string) string {
	h := sha256.New()
	h.Write([]byte(credentialID))
	h.Write([]byte{0})
	h.Write([]byte(nonce))
	return base64.RawStdEncoding.EncodeToString(h.Sum(nil))
}
