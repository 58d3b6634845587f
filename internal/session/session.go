// Package session issues time-bounded capability tokens that bind a caller
// to one account. A token is valid until its explicit expiry; every
// successful lookup slides the expiry forward by the configured TTL.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found or expired")

type Session struct {
	Token     string    `json:"token"`
	AccountID int64     `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type Store interface {
	// Create issues a new token for accountID.
	Create(ctx context.Context, accountID int64) (*Session, error)
	// Touch returns the live session for token and extends its expiry.
	Touch(ctx context.Context, token string) (*Session, error)
	Revoke(ctx context.Context, token string) error
	// RevokeAccount drops every session bound to accountID.
	RevokeAccount(ctx context.Context, accountID int64) error
}

func newToken() string {
	return uuid.NewString()
}

// MemoryStore keeps sessions in process. It serves single-instance
// deployments without Redis and tests.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]Session
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]Session),
	}
}

// WithClock replaces the time source.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Create(_ context.Context, accountID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Session{
		Token:     newToken(),
		AccountID: accountID,
		ExpiresAt: m.now().Add(m.ttl),
	}
	m.sessions[s.Token] = s
	return &s, nil
}

func (m *MemoryStore) Touch(_ context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Expired(now) {
		delete(m.sessions, token)
		return nil, ErrNotFound
	}

	s.ExpiresAt = now.Add(m.ttl)
	m.sessions[token] = s
	return &s, nil
}

func (m *MemoryStore) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, token)
	return nil
}

func (m *MemoryStore) RevokeAccount(_ context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for token, s := range m.sessions {
		if s.AccountID == accountID {
			delete(m.sessions, token)
		}
	}
	return nil
}
