package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"spendwise/internal/cache"
)

// Session is one signed-in browser.
type Session struct {
	Token     string
	Identity  Identity
	CreatedAt time.Time
}

// Sessions keeps live sessions in an LRU cache with a TTL. Sessions do not
// survive a restart; users sign in again.
type Sessions struct {
	cache *cache.LRUCache[Session]
	ttl   time.Duration
}

const maxSessions = 10000

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		cache: cache.NewLRUCache[Session](maxSessions, ttl),
		ttl:   ttl,
	}
}

// Cache exposes the backing cache so a cache.Manager can sweep it.
func (s *Sessions) Cache() cache.Cleaner {
	return s.cache
}

func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Start creates a session for id and returns it with a fresh random token.
func (s *Sessions) Start(id Identity) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	sess := Session{Token: token, Identity: id, CreatedAt: time.Now().UTC()}
	s.cache.Set(token, sess)
	return sess, nil
}

func (s *Sessions) Lookup(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	return s.cache.Get(token)
}

func (s *Sessions) End(token string) {
	s.cache.Delete(token)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
