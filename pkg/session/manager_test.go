package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/quire/pkg/adapters/memory"
	"github.com/aretw0/quire/pkg/adapters/redis"
	"github.com/aretw0/quire/pkg/domain"
	"github.com/aretw0/quire/pkg/session"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	data map[string]domain.Snapshot
	mu   sync.Mutex
}

func (s *SlowStore) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[string]domain.Snapshot)
	}
	s.data[sessionID] = *snap
	return nil
}

func (s *SlowStore) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.data[sessionID]; ok {
		return &snap, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *SlowStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *SlowStore) List(ctx context.Context) ([]string, error) {
	return nil, nil
}

func project(total int) domain.WorldState {
	return domain.NewWorldState(map[domain.Fact]domain.Value{
		domain.ChaptersTotal: domain.Int(total),
	})
}

func writeOne(ctx context.Context, cur *domain.Snapshot) (domain.WorldState, string, error) {
	n := cur.State.Int(domain.ChaptersCompleted)
	return cur.State.With(domain.ChaptersCompleted, domain.Int(n+1)), "run", nil
}

func TestManager_AdvanceSerializesWriters(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()
	id := "race-test"

	_, err := manager.LoadOrStart(ctx, id, project(10))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Advance(ctx, id, writeOne)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Without the lock, concurrent read-modify-write would lose updates.
	snap, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.State.Int(domain.ChaptersCompleted))
	assert.Equal(t, 11, snap.Version)
}

func TestManager_LoadOrStart(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()
	id := "atomic-init"

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := manager.LoadOrStart(ctx, id, project(5))
			assert.NoError(t, err)
			assert.NotNil(t, snap)
		}()
	}
	wg.Wait()

	snap, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, 5, snap.State.Int(domain.ChaptersTotal))
}

func TestManager_LoadOrStartRejectsInvalidState(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	bad := project(1).With(domain.ChaptersCompleted, domain.Int(3))

	_, err := manager.LoadOrStart(context.Background(), "bad", bad)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	_, err = manager.Load(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_Advance(t *testing.T) {
	ctx := context.Background()

	t.Run("missing session", func(t *testing.T) {
		manager := session.NewManager(memory.NewStore())
		_, err := manager.Advance(ctx, "nope", writeOne)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("keeps partial progress", func(t *testing.T) {
		manager := session.NewManager(memory.NewStore())
		_, err := manager.LoadOrStart(ctx, "p", project(3))
		require.NoError(t, err)

		boom := errors.New("boom")
		snap, err := manager.Advance(ctx, "p", func(ctx context.Context, cur *domain.Snapshot) (domain.WorldState, string, error) {
			state, runID, _ := writeOne(ctx, cur)
			return state, runID, boom
		})
		assert.ErrorIs(t, err, boom)
		require.NotNil(t, snap)
		assert.Equal(t, 2, snap.Version)
		assert.Equal(t, "run", snap.RunID)

		loaded, err := manager.Load(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.State.Int(domain.ChaptersCompleted))
	})

	t.Run("unchanged state keeps version", func(t *testing.T) {
		manager := session.NewManager(memory.NewStore())
		_, err := manager.LoadOrStart(ctx, "same", project(3))
		require.NoError(t, err)

		snap, err := manager.Advance(ctx, "same", func(ctx context.Context, cur *domain.Snapshot) (domain.WorldState, string, error) {
			return cur.State, "noop", nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Version)
	})

	t.Run("rejects out of bounds state", func(t *testing.T) {
		manager := session.NewManager(memory.NewStore())
		_, err := manager.LoadOrStart(ctx, "b", project(0))
		require.NoError(t, err)

		_, err = manager.Advance(ctx, "b", writeOne)
		assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	})
}

func TestManager_DistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := redis.NewLocker(client, "test:")
	store := memory.NewStore()

	// Two managers model two replicas sharing one store.
	a := session.NewManager(store, session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	b := session.NewManager(store, session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	ctx := context.Background()

	_, err := a.LoadOrStart(ctx, "shared", project(20))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		for _, m := range []*session.Manager{a, b} {
			wg.Add(1)
			go func(m *session.Manager) {
				defer wg.Done()
				_, err := m.Advance(ctx, "shared", writeOne)
				assert.NoError(t, err)
			}(m)
		}
	}
	wg.Wait()

	snap, err := a.Load(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, 10, snap.State.Int(domain.ChaptersCompleted))
	assert.False(t, mr.Exists("test:lock:shared"), "lock must be released")
}
