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

package credential

import (
	"context"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store.
// This is intended for development and testing only.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User  // keyed by username
	owner map[string]string // credential key -> username
}

// NewMemoryStore creates a new in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		owner: make(map[string]string),
	}
}

// GetUserWithCredentials fetches or lazily provisions a user.
func (s *MemoryStore) GetUserWithCredentials(ctx context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		user = &User{ID: uuid.New(), Username: username}
		s.users[username] = user
	}

	// Return a copy so callers cannot mutate the store through the slice.
	cp := &User{ID: user.ID, Username: user.Username}
	cp.Credentials = make([]Credential, len(user.Credentials))
	copy(cp.Credentials, user.Credentials)
	return cp, nil
}

// AddCredential appends a newly registered credential for the user.
func (s *MemoryStore) AddCredential(ctx context.Context, username, name string, passkey *webauthn.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := CredentialKey(passkey.ID)
	if _, exists := s.owner[key]; exists {
		return ErrDuplicate
	}

	user, ok := s.users[username]
	if !ok {
		user = &User{ID: uuid.New(), Username: username}
		s.users[username] = user
	}

	user.Credentials = append(user.Credentials, Credential{
		Name:      name,
		Passkey:   *passkey,
		CreatedAt: time.Now().UTC(),
	})
	s.owner[key] = username
	return nil
}

// UpdateCredential writes back an updated passkey record.
func (s *MemoryStore) UpdateCredential(ctx context.Context, passkey *webauthn.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := CredentialKey(passkey.ID)
	username, ok := s.owner[key]
	if !ok {
		return ErrNotFound
	}

	user := s.users[username]
	for i := range user.Credentials {
		if string(user.Credentials[i].Passkey.ID) == string(passkey.ID) {
			user.Credentials[i].Passkey = *passkey
			user.Credentials[i].LastUsedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

// DeleteCredential removes a credential by its id.
func (s *MemoryStore) DeleteCredential(ctx context.Context, credID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := CredentialKey(credID)
	username, ok := s.owner[key]
	if !ok {
		return ErrNotFound
	}
	delete(s.owner, key)

	user := s.users[username]
	for i := range user.Credentials {
		if string(user.Credentials[i].Passkey.ID) == string(credID) {
			user.Credentials = append(user.Credentials[:i], user.Credentials[i+1:]...)
			break
		}
	}
	return nil
}

// Count returns the total number of credentials in the store.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.owner)
}
