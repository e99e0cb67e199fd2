package ports

import (
	"context"

	"github.com/aretw0/quire/pkg/domain"
)

// StateStore defines the interface for persisting world-state snapshots.
// This allows a project to be resumed across runs and processes.
type StateStore interface {
	// Save persists the snapshot for a given session ID, replacing any previous one.
	Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error

	// Load retrieves the latest snapshot for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Snapshot, error)

	// Delete removes the snapshot for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}
