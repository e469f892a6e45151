// Package account stores users and answers subscription tier lookups.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/justchokingaround/reel/internal/database"
)

// Tier is a subscription level.
type Tier string

const (
	TierNone    Tier = "none"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// ErrUserNotFound is returned when no user has the requested id.
var ErrUserNotFound = errors.New("user not found")

// ParseTier parses a tier name. Unknown names are an error.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierNone, "":
		return TierNone, nil
	case TierBasic:
		return TierBasic, nil
	case TierPremium:
		return TierPremium, nil
	default:
		return TierNone, fmt.Errorf("unknown subscription tier %q", s)
	}
}

// TierLookup supplies the subscription tier of a user.
type TierLookup interface {
	TierFor(ctx context.Context, userID string) (Tier, error)
}

// User is an account
type User struct {
	ID       string
	Email    string
	Nickname string
	Tier     Tier
}

// Repository persists users with gorm
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a user repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create stores a new user. An empty ID gets a generated one.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Tier == "" {
		u.Tier = TierNone
	}

	row := database.User{ID: u.ID, Email: u.Email, Nickname: u.Nickname, Tier: string(u.Tier)}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// Get returns the user with the given id
func (r *Repository) Get(ctx context.Context, id string) (User, error) {
	var row database.User
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to load user %s: %w", id, err)
	}

	tier, err := ParseTier(row.Tier)
	if err != nil {
		return User{}, err
	}
	return User{ID: row.ID, Email: row.Email, Nickname: row.Nickname, Tier: tier}, nil
}

// List returns all users ordered by creation
func (r *Repository) List(ctx context.Context) ([]User, error) {
	var rows []database.User
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]User, 0, len(rows))
	for _, row := range rows {
		tier, _ := ParseTier(row.Tier)
		users = append(users, User{ID: row.ID, Email: row.Email, Nickname: row.Nickname, Tier: tier})
	}
	return users, nil
}

// SetTier changes a user's subscription tier
func (r *Repository) SetTier(ctx context.Context, id string, tier Tier) error {
	res := r.db.WithContext(ctx).Model(&database.User{}).Where("id = ?", id).Update("tier", string(tier))
	if res.Error != nil {
		return fmt.Errorf("failed to update tier: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return nil
}

// TierFor implements TierLookup. Guests (empty id) and unknown users have no
// subscription.
func (r *Repository) TierFor(ctx context.Context, userID string) (Tier, error) {
	if userID == "" {
		return TierNone, nil
	}
	u, err := r.Get(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return TierNone, nil
	}
	if err != nil {
		return TierNone, err
	}
	return u.Tier, nil
}
