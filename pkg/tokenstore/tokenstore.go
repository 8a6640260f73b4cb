package tokenstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid is returned when a token is unknown or already consumed
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned when a token exists but its TTL has elapsed
	ErrTokenExpired = errors.New("token has expired")
)

// DefaultTTL is the lifetime of an issued token. Password reset links use
// the 30 minute default.
const DefaultTTL = 30 * time.Minute

type entry struct {
	payload   string
	expiresAt time.Time
}

// Store is a single-use, time-limited token-to-payload map. Tokens are
// unguessable, expire after the configured TTL, and are removed on
// consumption. Expired entries are evicted lazily on lookup; StartSweeper
// adds a periodic sweep so abandoned tokens do not accumulate.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithTTL sets the token lifetime
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new token store
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue stores the payload under a fresh unguessable token and returns the
// token. The entry expires TTL from now.
func (s *Store) Issue(payload string) string {
	token := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = entry{
		payload:   payload,
		expiresAt: s.now().Add(s.ttl),
	}
	return token
}

// Validate returns the payload for the token without consuming it, so a
// caller can check a token on page load and spend it later on submit.
// Unknown tokens fail with ErrTokenInvalid; expired tokens are evicted and
// fail with ErrTokenExpired.
func (s *Store) Validate(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(token)
}

// Consume returns the payload for the token and removes the entry, so a
// token can be spent at most once even under concurrent callers.
func (s *Store) Consume(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.lookup(token)
	if err != nil {
		return "", err
	}
	delete(s.entries, token)
	return payload, nil
}

// lookup must be called with s.mu held
func (s *Store) lookup(token string) (string, error) {
	e, ok := s.entries[token]
	if !ok {
		return "", ErrTokenInvalid
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, token)
		return "", ErrTokenExpired
	}
	return e.payload, nil
}

// Len returns the number of live entries, counting expired ones not yet
// evicted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartSweeper removes expired entries every interval until the context is
// cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, token)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Swept expired tokens", "removed", removed, "remaining", len(s.entries))
	}
}
