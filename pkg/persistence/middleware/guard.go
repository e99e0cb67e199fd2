package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/quire/pkg/domain"
	"github.com/aretw0/quire/pkg/ports"
)

type invariantMiddleware struct {
	next   ports.StateStore
	bounds []domain.Bound
}

// NewInvariantMiddleware rejects snapshots whose world state breaks a counter
// bound, on the way in and on the way out.
func NewInvariantMiddleware(bounds ...domain.Bound) Middleware {
	return func(next ports.StateStore) ports.StateStore {
		return &invariantMiddleware{next: next, bounds: bounds}
	}
}

func (m *invariantMiddleware) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	if err := snap.State.Validate(m.bounds...); err != nil {
		return fmt.Errorf("refusing to save session %s: %w", sessionID, err)
	}
	return m.next.Save(ctx, sessionID, snap)
}

func (m *invariantMiddleware) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	snap, err := m.next.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := snap.State.Validate(m.bounds...); err != nil {
		return nil, fmt.Errorf("session %s is corrupt: %w", sessionID, err)
	}
	return snap, nil
}

func (m *invariantMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *invariantMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

type versionMiddleware struct {
	next ports.StateStore
}

// NewVersionGuard rejects writes whose snapshot version is not newer than the
// stored one (optimistic concurrency). It is only sound under the session lock.
func NewVersionGuard() Middleware {
	return func(next ports.StateStore) ports.StateStore {
		return &versionMiddleware{next: next}
	}
}

func (m *versionMiddleware) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	current, err := m.next.Load(ctx, sessionID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
	case err != nil:
		return err
	case snap.Version <= current.Version:
		return fmt.Errorf("%w: session %s is at version %d, got %d",
			domain.ErrStaleSnapshot, sessionID, current.Version, snap.Version)
	}
	return m.next.Save(ctx, sessionID, snap)
}

func (m *versionMiddleware) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *versionMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *versionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
