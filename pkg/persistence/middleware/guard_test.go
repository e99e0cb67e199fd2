package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/quire/pkg/domain"
	"github.com/aretw0/quire/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvariantMiddleware(t *testing.T) {
	underlying := NewMockStore()
	store := middleware.NewInvariantMiddleware(domain.DefaultBounds...)(underlying)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "ok", domain.NewSnapshot("ok", draftState(3))))

	bad := domain.NewSnapshot("bad", draftState(11))
	err := store.Save(ctx, "bad", bad)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	// Data corrupted behind the middleware's back is caught on load.
	_ = underlying.Save(ctx, "bad", bad)
	_, err = store.Load(ctx, "bad")
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestVersionGuard(t *testing.T) {
	store := middleware.NewVersionGuard()(NewMockStore())
	ctx := context.Background()

	first := domain.NewSnapshot("novel", draftState(1))
	require.NoError(t, store.Save(ctx, "novel", first))

	second := first.Next(draftState(2), "run-a")
	require.NoError(t, store.Save(ctx, "novel", second))

	// A concurrent writer that started from the first snapshot loses.
	stale := first.Next(draftState(5), "run-b")
	assert.ErrorIs(t, store.Save(ctx, "novel", stale), domain.ErrStaleSnapshot)

	loaded, err := store.Load(ctx, "novel")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.State.Int(domain.ChaptersCompleted))
}

func TestChain(t *testing.T) {
	underlying := NewMockStore()
	key := generateKey(t)
	store := middleware.Chain(underlying,
		middleware.NewInvariantMiddleware(domain.DefaultBounds...),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}),
	)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "novel", domain.NewSnapshot("novel", draftState(2))))

	// Invariants are checked on the plain state before it is sealed.
	raw, err := underlying.Load(ctx, "novel")
	require.NoError(t, err)
	assert.NotEmpty(t, raw.Sealed)

	loaded, err := store.Load(ctx, "novel")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.State.Int(domain.ChaptersCompleted))
}
