package database

import (
	"time"

	"gorm.io/gorm"
)

// Checkpoint is the persisted watch position for one (user, content, episode)
// key. EpisodeID is "" for content without episodes so the unique index holds.
type Checkpoint struct {
	ID           string    `gorm:"primaryKey"`
	UserID       string    `gorm:"not null;uniqueIndex:idx_checkpoint_key,priority:1;index"`
	ContentID    string    `gorm:"not null;uniqueIndex:idx_checkpoint_key,priority:2"`
	EpisodeID    string    `gorm:"not null;default:'';uniqueIndex:idx_checkpoint_key,priority:3"`
	LastPosition float64   `gorm:"not null"`
	Duration     float64   `gorm:"not null;default:0"`
	Completed    bool      `gorm:"default:false"`
	WatchedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time
}

// TableName overrides the table name
func (Checkpoint) TableName() string {
	return "checkpoints"
}

// Content is a catalog title
type Content struct {
	ID          string    `gorm:"primaryKey"`
	Title       string    `gorm:"not null;index"`
	Description string    `gorm:""`
	VideoURL    string    `gorm:"column:video_url"`
	Duration    float64   `gorm:"default:0"` // seconds
	Tags        []string  `gorm:"serializer:json"`
	IsOriginal  bool      `gorm:"default:false;index"`
	IsSeries    bool      `gorm:"default:false"`
	Episodes    []Episode `gorm:"foreignKey:ContentID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName overrides the table name
func (Content) TableName() string {
	return "contents"
}

// Episode belongs to a series Content
type Episode struct {
	ID        string  `gorm:"primaryKey"`
	ContentID string  `gorm:"not null;index"`
	Number    int     `gorm:"not null"`
	Title     string  `gorm:""`
	VideoURL  string  `gorm:"column:video_url;not null"`
	Duration  float64 `gorm:"default:0"`
}

// TableName overrides the table name
func (Episode) TableName() string {
	return "episodes"
}

// User is an account with its subscription tier
type User struct {
	ID        string    `gorm:"primaryKey"`
	Email     string    `gorm:"uniqueIndex"`
	Nickname  string    `gorm:""`
	Tier      string    `gorm:"not null;default:'none'"` // none, basic, premium
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Content{},
		&Episode{},
		&Checkpoint{},
	)
}
