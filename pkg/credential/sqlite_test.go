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
	"path/filepath"
	"testing"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testPasskey(id string) *webauthn.Credential {
	return &webauthn.Credential{
		ID:        []byte(id),
		PublicKey: []byte("test-public-key"),
	}
}

func TestGetUserWithCredentialsProvisions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// First sight of a username provisions a user with zero credentials.
	user, err := store.GetUserWithCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.Credentials)

	// The same username resolves to the same user id.
	again, err := store.GetUserWithCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	// A different username gets a different id.
	other, err := store.GetUserWithCredentials(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, user.ID, other.ID)
}

func TestAddCredential(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetUserWithCredentials(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, store.AddCredential(ctx, "alice", "yubikey", testPasskey("cred-1")))

	user, err := store.GetUserWithCredentials(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, user.Credentials, 1)
	assert.Equal(t, "yubikey", user.Credentials[0].Name)
	assert.Equal(t, []byte("cred-1"), []byte(user.Credentials[0].Passkey.ID))
	assert.True(t, user.HasCredential([]byte("cred-1")))
	assert.False(t, user.HasCredential([]byte("cred-2")))
}

func TestAddCredentialDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetUserWithCredentials(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, store.AddCredential(ctx, "alice", "key a", testPasskey("cred-1")))

	err = store.AddCredential(ctx, "alice", "key b", testPasskey("cred-1"))
	assert.ErrorIs(t, err, ErrDuplicate)

	user, err := store.GetUserWithCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, user.Credentials, 1)
}

func TestUpdateCredential(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetUserWithCredentials(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, store.AddCredential(ctx, "alice", "yubikey", testPasskey("cred-1")))

	updated := testPasskey("cred-1")
	updated.Authenticator.SignCount = 7
	require.NoError(t, store.UpdateCredential(ctx, updated))

	user, err := store.GetUserWithCredentials(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, user.Credentials, 1)
	assert.Equal(t, uint32(7), user.Credentials[0].Passkey.Authenticator.SignCount)
	assert.False(t, user.Credentials[0].LastUsedAt.IsZero())

	// Updating an unknown credential reports NotFound.
	err = store.UpdateCredential(ctx, testPasskey("cred-9"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCredential(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetUserWithCredentials(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, store.AddCredential(ctx, "alice", "yubikey", testPasskey("cred-1")))

	require.NoError(t, store.DeleteCredential(ctx, []byte("cred-1")))

	user, err := store.GetUserWithCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, user.Credentials)

	// Second delete reports NotFound; HTTP layer treats it as a no-op.
	err = store.DeleteCredential(ctx, []byte("cred-1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialKeyRoundTrip(t *testing.T) {
	id := []byte{0x01, 0x02, 0xff, 0xfe}
	key := CredentialKey(id)

	decoded, err := ParseCredentialKey(key)
	require.NoError(t, err)
	assert.Equal(t, id, decoded)

	_, err = ParseCredentialKey("!!!not base64url!!!")
	assert.Error(t, err)
}
