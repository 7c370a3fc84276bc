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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperInvalidSchedule(t *testing.T) {
	sweeper := NewSweeper(NewMemoryStore(), "not a schedule")
	err := sweeper.Start(context.Background())
	assert.Error(t, err)
}

func TestSweeperStartStop(t *testing.T) {
	sweeper := NewSweeper(NewMemoryStore(), "@every 1h")
	require.NoError(t, sweeper.Start(context.Background()))
	sweeper.Stop()
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStoreWithTTL(10 * time.Millisecond)

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	assert.Equal(t, 0, store.Count())

	_, err = store.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
