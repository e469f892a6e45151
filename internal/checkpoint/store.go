package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/justchokingaround/reel/internal/database"
)

// ErrNotFound is returned by Get when no checkpoint exists for the key.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists checkpoints.
type Store interface {
	// Save upserts cp. A write older than the stored row is ignored.
	Save(ctx context.Context, cp Checkpoint) error
	Get(ctx context.Context, key Key) (Checkpoint, error)
	FetchByUser(ctx context.Context, userID string) ([]Checkpoint, error)
}

// GormStore is the SQLite-backed Store. Last-write-wins and the completion
// policy are enforced by a single upsert statement.
type GormStore struct {
	db     *gorm.DB
	policy CompletionPolicy
}

// NewGormStore creates a store using policy for the completed flag
func NewGormStore(db *gorm.DB, policy CompletionPolicy) *GormStore {
	return &GormStore{db: db, policy: policy}
}

// Save implements Store
func (s *GormStore) Save(ctx context.Context, cp Checkpoint) error {
	if cp.LastPosition < 0 {
		cp.LastPosition = 0
	}

	row := database.Checkpoint{
		ID:           uuid.NewString(),
		UserID:       cp.UserID,
		ContentID:    cp.ContentID,
		EpisodeID:    cp.EpisodeID,
		LastPosition: cp.LastPosition,
		Duration:     cp.Duration,
		Completed:    cp.Completed,
		WatchedAt:    cp.WatchedAt.UTC(),
	}

	completed := clause.Assignment{Column: clause.Column{Name: "completed"}, Value: gorm.Expr("excluded.completed")}
	if s.policy == CompletionMonotonic {
		completed.Value = gorm.Expr("checkpoints.completed OR excluded.completed")
	}

	updates := clause.AssignmentColumns([]string{"last_position", "duration", "watched_at", "updated_at"})
	updates = append(updates, completed)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_id"}, {Name: "episode_id"}},
		DoUpdates: updates,
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "excluded.watched_at >= checkpoints.watched_at"},
		}},
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.Key, err)
	}
	return nil
}

// Get implements Store
func (s *GormStore) Get(ctx context.Context, key Key) (Checkpoint, error) {
	var row database.Checkpoint
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND content_id = ? AND episode_id = ?", key.UserID, key.ContentID, key.EpisodeID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to load checkpoint %s: %w", key, err)
	}
	return fromRow(row), nil
}

// FetchByUser implements Store. Most recently watched first.
func (s *GormStore) FetchByUser(ctx context.Context, userID string) ([]Checkpoint, error) {
	var rows []database.Checkpoint
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("watched_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints for %s: %w", userID, err)
	}

	out := make([]Checkpoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func fromRow(row database.Checkpoint) Checkpoint {
	return Checkpoint{
		Key:          Key{UserID: row.UserID, ContentID: row.ContentID, EpisodeID: row.EpisodeID},
		LastPosition: row.LastPosition,
		Duration:     row.Duration,
		WatchedAt:    row.WatchedAt,
		Completed:    row.Completed,
	}
}

// ResumeOffset returns the stored position for key, or 0 when there is none.
func ResumeOffset(ctx context.Context, store Store, key Key) (float64, error) {
	if key.UserID == "" {
		return 0, nil
	}
	cp, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cp.LastPosition, nil
}
