package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/justchokingaround/reel/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

var base = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func TestGormStoreOverwritesPerKey(t *testing.T) {
	store := NewGormStore(newTestDB(t), CompletionMonotonic)
	ctx := context.Background()
	key := Key{UserID: "u1", ContentID: "c1", EpisodeID: "e1"}

	require.NoError(t, store.Save(ctx, Checkpoint{Key: key, LastPosition: 10, Duration: 300, WatchedAt: base}))
	require.NoError(t, store.Save(ctx, Checkpoint{Key: key, LastPosition: 20, Duration: 300, WatchedAt: base.Add(10 * time.Second)}))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.LastPosition)

	all, err := store.FetchByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGormStoreLastWriteWinsByWatchedAt(t *testing.T) {
	store := NewGormStore(newTestDB(t), CompletionMonotonic)
	ctx := context.Background()
	key := Key{UserID: "u1", ContentID: "c1"}

	require.NoError(t, store.Save(ctx, Checkpoint{Key: key, LastPosition: 40, WatchedAt: base.Add(time.Minute)}))
	require.NoError(t, store.Save(ctx, Checkpoint{Key: key, LastPosition: 30, WatchedAt: base}))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 40.0, got.LastPosition)
}

func TestGormStoreCompletionPolicy(t *testing.T) {
	tests := []struct {
		policy CompletionPolicy
		want   bool
	}{
		{CompletionMonotonic, true},
		{CompletionRecompute, false},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			store := NewGormStore(newTestDB(t), tt.policy)
			ctx := context.Background()
			key := Key{UserID: "u1", ContentID: "c1"}

			require.NoError(t, store.Save(ctx, Checkpoint{Key: key, LastPosition: 280, Duration: 300, WatchedAt: base, Completed: true}))
			require.NoError(t, store.Save(ctx, Checkpoint{Key: key, LastPosition: 20, Duration: 300, WatchedAt: base.Add(time.Hour)}))

			got, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, 20.0, got.LastPosition)
			assert.Equal(t, tt.want, got.Completed)
		})
	}
}

func TestGormStoreFetchByUserOrdersRecentFirst(t *testing.T) {
	store := NewGormStore(newTestDB(t), CompletionMonotonic)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Checkpoint{Key: Key{UserID: "u1", ContentID: "old"}, WatchedAt: base}))
	require.NoError(t, store.Save(ctx, Checkpoint{Key: Key{UserID: "u1", ContentID: "new"}, WatchedAt: base.Add(time.Hour)}))
	require.NoError(t, store.Save(ctx, Checkpoint{Key: Key{UserID: "u2", ContentID: "other"}, WatchedAt: base}))

	got, err := store.FetchByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ContentID)
	assert.Equal(t, "old", got[1].ContentID)
}

func TestResumeOffset(t *testing.T) {
	store := NewGormStore(newTestDB(t), CompletionMonotonic)
	ctx := context.Background()
	key := Key{UserID: "u1", ContentID: "c1", EpisodeID: "e2"}

	offset, err := ResumeOffset(ctx, store, key)
	require.NoError(t, err)
	assert.Equal(t, 0.0, offset)

	require.NoError(t, store.Save(ctx, Checkpoint{Key: key, LastPosition: 130, WatchedAt: base}))
	offset, err = ResumeOffset(ctx, store, key)
	require.NoError(t, err)
	assert.Equal(t, 130.0, offset)

	offset, err = ResumeOffset(ctx, store, Key{ContentID: "c1", EpisodeID: "e2"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, offset)

	_, err = store.Get(ctx, Key{UserID: "u1", ContentID: "c1"})
	assert.ErrorIs(t, err, ErrNotFound)
}
