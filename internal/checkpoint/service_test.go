package checkpoint

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justchokingaround/reel/internal/clock"
)

type memoryStore struct {
	mu    sync.Mutex
	saved []Checkpoint
}

func (s *memoryStore) Save(ctx context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, cp)
	return nil
}

func (s *memoryStore) Get(ctx context.Context, key Key) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.saved) - 1; i >= 0; i-- {
		if s.saved[i].Key == key {
			return s.saved[i], nil
		}
	}
	return Checkpoint{}, ErrNotFound
}

func (s *memoryStore) FetchByUser(ctx context.Context, userID string) ([]Checkpoint, error) {
	return nil, nil
}

func (s *memoryStore) all() []Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Checkpoint(nil), s.saved...)
}

func newTestService(t *testing.T, key Key, duration float64) (*Service, *Writer, *memoryStore) {
	t.Helper()
	store := &memoryStore{}
	w := NewWriter(store, WriterOptions{})
	t.Cleanup(w.Close)
	svc := NewService(w, "session-1", clock.NewFake(base), nil)
	svc.SetTarget(key, duration)
	return svc, w, store
}

func TestServiceWritesOnlyWhileArmed(t *testing.T) {
	key := Key{UserID: "u", ContentID: "c"}
	svc, w, store := newTestService(t, key, 300)

	assert.False(t, svc.OnTimeUpdate(10))

	svc.Arm()
	assert.True(t, svc.OnTimeUpdate(10.4))
	w.Flush()
	assert.False(t, svc.OnTimeUpdate(11))
	assert.False(t, svc.OnTimeUpdate(95))
	assert.True(t, svc.OnTimeUpdate(270.2))
	w.Flush()

	svc.Disarm()
	assert.False(t, svc.OnTimeUpdate(280))
	w.Flush()

	saved := store.all()
	require.Len(t, saved, 2)
	assert.Equal(t, 10.4, saved[0].LastPosition)
	assert.False(t, saved[0].Completed)
	assert.Equal(t, 270.2, saved[1].LastPosition)
	assert.True(t, saved[1].Completed)
	assert.Equal(t, base, saved[1].WatchedAt)
}

func TestServiceFinalBypassesThrottle(t *testing.T) {
	key := Key{UserID: "u", ContentID: "c", EpisodeID: "e1"}
	svc, w, store := newTestService(t, key, 300)

	assert.True(t, svc.Final(299.5))
	w.Flush()

	saved := store.all()
	require.Len(t, saved, 1)
	assert.True(t, saved[0].Completed)
	assert.Equal(t, key, saved[0].Key)
}

func TestServiceSkipsGuests(t *testing.T) {
	svc, w, store := newTestService(t, Key{ContentID: "c"}, 300)
	svc.Arm()

	assert.False(t, svc.OnTimeUpdate(10))
	assert.False(t, svc.Final(300))
	w.Flush()
	assert.Empty(t, store.all())
}

func TestServiceNoWriteAfterClose(t *testing.T) {
	svc, w, store := newTestService(t, Key{UserID: "u", ContentID: "c"}, 300)
	svc.Arm()
	svc.Close()
	svc.Close()

	assert.False(t, svc.Armed())
	svc.Arm()
	assert.False(t, svc.Armed())
	assert.False(t, svc.OnTimeUpdate(20))
	assert.False(t, svc.Final(300))
	w.Flush()
	assert.Empty(t, store.all())
}

func TestServiceCloseDropsWritesForEarlierTargets(t *testing.T) {
	store := newGatedStore()
	w := NewWriter(store, WriterOptions{})
	t.Cleanup(w.Close)

	svc := NewService(w, "session-1", clock.NewFake(base), nil)
	svc.SetTarget(Key{UserID: "u", ContentID: "c", EpisodeID: "a"}, 300)
	require.True(t, svc.Final(10))
	assert.Equal(t, 10.0, store.waitStarted(t).LastPosition)
	require.True(t, svc.Final(20))

	svc.SetTarget(Key{UserID: "u", ContentID: "c", EpisodeID: "b"}, 300)
	svc.Close()
	w.Flush()

	assert.Empty(t, store.positions())
	assert.Equal(t, 1, store.canceled)
	assert.Empty(t, store.started, "write started after Close")
}

func TestServiceRetarget(t *testing.T) {
	svc, w, store := newTestService(t, Key{UserID: "u", ContentID: "c", EpisodeID: "e1"}, 300)
	svc.Arm()

	svc.SetTarget(Key{UserID: "u", ContentID: "c", EpisodeID: "e2"}, 0)
	svc.SetDuration(0)
	svc.SetDuration(100)
	assert.True(t, svc.OnTimeUpdate(90))
	w.Flush()

	saved := store.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "e2", saved[0].EpisodeID)
	assert.Equal(t, 100.0, saved[0].Duration)
	assert.True(t, saved[0].Completed)
}
