package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/justchokingaround/reel/internal/database"
)

// Repository is the gorm-backed Provider
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a catalog repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetContentByID implements Provider
func (r *Repository) GetContentByID(ctx context.Context, id string) (*Content, error) {
	var row database.Content
	err := r.db.WithContext(ctx).
		Preload("Episodes", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load content %s: %w", id, err)
	}
	return fromRow(row), nil
}

// List returns all content ordered by title, without episodes
func (r *Repository) List(ctx context.Context) ([]Content, error) {
	var rows []database.Content
	if err := r.db.WithContext(ctx).Order("title ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}

	out := make([]Content, 0, len(rows))
	for _, row := range rows {
		out = append(out, *fromRow(row))
	}
	return out, nil
}

// Save inserts or replaces c and its episodes
func (r *Repository) Save(ctx context.Context, c Content) error {
	if c.ID == "" {
		return errors.New("content id is required")
	}
	row := toRow(c)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Omit("Episodes").Create(&row).Error; err != nil {
			return fmt.Errorf("failed to save content %s: %w", c.ID, err)
		}
		if err := tx.Where("content_id = ?", c.ID).Delete(&database.Episode{}).Error; err != nil {
			return fmt.Errorf("failed to replace episodes of %s: %w", c.ID, err)
		}
		if len(row.Episodes) > 0 {
			if err := tx.Create(&row.Episodes).Error; err != nil {
				return fmt.Errorf("failed to save episodes of %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// FindByTitle resolves a user-typed title. An exact id match wins; otherwise
// the best fuzzy title match is returned.
func (r *Repository) FindByTitle(ctx context.Context, query string) (*Content, error) {
	if c, err := r.GetContentByID(ctx, query); err == nil {
		return c, nil
	}

	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	titles := make([]string, len(all))
	for i, c := range all {
		titles[i] = c.Title
	}

	matches := fuzzy.Find(query, titles)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no title matches %q", ErrContentNotFound, query)
	}
	return r.GetContentByID(ctx, all[matches[0].Index].ID)
}

// seedFile is the YAML layout accepted by ImportYAML
type seedFile struct {
	Contents []Content `yaml:"contents"`
}

// ImportYAML loads content from a seed document and saves every entry.
// It returns the number of titles imported.
func (r *Repository) ImportYAML(ctx context.Context, in io.Reader) (int, error) {
	var seed seedFile
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return 0, fmt.Errorf("failed to parse catalog seed: %w", err)
	}

	for i, c := range seed.Contents {
		if c.ID == "" {
			return i, fmt.Errorf("entry %d (%q) has no id", i, c.Title)
		}
		if c.IsSeries {
			for j := range c.Episodes {
				if c.Episodes[j].ID == "" {
					c.Episodes[j].ID = fmt.Sprintf("%s-e%d", c.ID, c.Episodes[j].Number)
				}
			}
		}
		if err := r.Save(ctx, c); err != nil {
			return i, err
		}
	}
	return len(seed.Contents), nil
}

func fromRow(row database.Content) *Content {
	c := &Content{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		VideoURL:    row.VideoURL,
		Duration:    row.Duration,
		Tags:        row.Tags,
		IsOriginal:  row.IsOriginal,
		IsSeries:    row.IsSeries,
	}
	for _, ep := range row.Episodes {
		c.Episodes = append(c.Episodes, Episode{
			ID:       ep.ID,
			Number:   ep.Number,
			Title:    ep.Title,
			VideoURL: ep.VideoURL,
			Duration: ep.Duration,
		})
	}
	return c
}

func toRow(c Content) database.Content {
	row := database.Content{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		VideoURL:    c.VideoURL,
		Duration:    c.Duration,
		Tags:        c.Tags,
		IsOriginal:  c.IsOriginal,
		IsSeries:    c.IsSeries,
	}
	for _, ep := range c.Episodes {
		row.Episodes = append(row.Episodes, database.Episode{
			ID:        ep.ID,
			ContentID: c.ID,
			Number:    ep.Number,
			Title:     ep.Title,
			VideoURL:  ep.VideoURL,
			Duration:  ep.Duration,
		})
	}
	return row
}
