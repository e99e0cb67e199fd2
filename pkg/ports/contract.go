package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/quire/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	state := domain.NewWorldState(map[domain.Fact]domain.Value{
		domain.HasOutline:        domain.Bool(true),
		domain.ChaptersCompleted: domain.Int(2),
		domain.ChaptersTotal:     domain.Int(5),
	})

	t.Run("Save and Load", func(t *testing.T) {
		snap := domain.NewSnapshot(sessionID, state)
		snap.RunID = "run-1"

		err := store.Save(ctx, sessionID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sessionID, loaded.SessionID)
		assert.Equal(t, 1, loaded.Version)
		assert.Equal(t, "run-1", loaded.RunID)
		assert.True(t, state.Equal(loaded.State), "state must round-trip: got %s", loaded.State)

		// Fact kinds survive persistence.
		v, ok := loaded.State.Get(domain.HasOutline)
		require.True(t, ok)
		assert.Equal(t, domain.KindBool, v.Kind())
	})

	t.Run("Overwrite", func(t *testing.T) {
		first, err := store.Load(ctx, sessionID)
		require.NoError(t, err)

		next := first.Next(first.State.With(domain.ChaptersCompleted, domain.Int(3)), "run-2")
		require.NoError(t, store.Save(ctx, sessionID, next))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, first.Version+1, loaded.Version)
		assert.Equal(t, 3, loaded.State.Int(domain.ChaptersCompleted))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSnapshot(sessionID, state))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSnapshot(id1, state))
		_ = store.Save(ctx, id2, domain.NewSnapshot(id2, state))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
