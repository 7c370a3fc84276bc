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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T, ttl time.Duration) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(&SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "sessions.db"),
		TTL:  ttl,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreCreateLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, time.Hour)

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.False(t, sess.Data.LoggedIn)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.False(t, loaded.Data.LoggedIn)

	// Session ids are unique across creates.
	other, err := store.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, other.ID)
}

func TestSQLiteStoreLoadUnknown(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, time.Hour)

	_, err := store.Load(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreSave(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, time.Hour)

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	sess.Data.LoggedIn = true
	sess.Data.RedirectURL = "https://app.example.com/"
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Data.LoggedIn)
	assert.Equal(t, "https://app.example.com/", loaded.Data.RedirectURL)

	// Saving a session that no longer exists fails with ErrNotFound.
	require.NoError(t, store.Delete(ctx, sess.ID))
	assert.ErrorIs(t, store.Save(ctx, sess), ErrNotFound)
}

func TestSQLiteStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, time.Hour)

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is not an error.
	assert.NoError(t, store.Delete(ctx, sess.ID))
}

func TestSQLiteStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, 50*time.Millisecond)

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	// An expired session loads as not found.
	_, err = store.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStorePurgeExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx)
		require.NoError(t, err)
	}

	time.Sleep(100 * time.Millisecond)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, purged)

	purged, err = store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, purged)
}
