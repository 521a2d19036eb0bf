package qbittorrent

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// session is a cached WebUI login.
type session struct {
	identity string
	sid      string
	issuedAt time.Time
}

// sessionCache holds at most one session per target name. A session is only
// returned while its identity still matches the target and it is younger
// than the TTL.
type sessionCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]session
}

func newSessionCache(ttl time.Duration, now func() time.Time) *sessionCache {
	return &sessionCache{
		ttl:      ttl,
		now:      now,
		sessions: make(map[string]session),
	}
}

// identity ties a session to the host, user and password it was issued for.
// Only a fingerprint of the password is kept.
func identity(t Target) string {
	sum := sha256.Sum256([]byte(t.Password))
	return t.Host + "|" + t.Username + "|" + hex.EncodeToString(sum[:8])
}

func (c *sessionCache) get(t Target) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[t.Name]
	if !ok {
		return "", false
	}
	if s.identity != identity(t) || c.now().Sub(s.issuedAt) >= c.ttl {
		delete(c.sessions, t.Name)
		return "", false
	}
	return s.sid, true
}

func (c *sessionCache) put(t Target, sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions[t.Name] = session{
		identity: identity(t),
		sid:      sid,
		issuedAt: c.now(),
	}
}

func (c *sessionCache) invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sessions, name)
}
