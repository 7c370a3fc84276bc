// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-gateway.
//
// go-webauthn-gateway is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store.
// This is intended for development and testing only.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewMemoryStore creates a new in-memory session store with a 24 hour TTL.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithTTL(24 * time.Hour)
}

// NewMemoryStoreWithTTL creates a new in-memory session store with a custom TTL.
func NewMemoryStoreWithTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create allocates a fresh session with a random id and empty data.
func (s *MemoryStore) Create(ctx context.Context) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        id,
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &Session{ID: sess.ID, Data: sess.Data, ExpiresAt: sess.ExpiresAt}

	return sess, nil
}

// Load retrieves a session by id, purging it lazily if expired.
func (s *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Expired(time.Now()) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}

	// Return a copy to prevent external modification before Save.
	cp := *sess
	return &cp, nil
}

// Save persists mutated session data without extending the expiry.
func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sess.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Data = sess.Data
	return nil
}

// Delete removes the session row.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// PurgeExpired removes all expired sessions.
func (s *MemoryStore) PurgeExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of sessions in the store.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
