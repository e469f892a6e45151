// Package catalog is the read side of the content collection the playback
// core consumes: content lookup, watch permission and seed import.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/justchokingaround/reel/internal/account"
)

var (
	// ErrContentNotFound is returned when no content has the requested id.
	ErrContentNotFound = errors.New("content not found")
	// ErrEpisodeNotFound is returned when a series has no such episode.
	ErrEpisodeNotFound = errors.New("episode not found")
)

// Content is a catalog title. Series carry their episodes.
type Content struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	VideoURL    string    `yaml:"video_url"`
	Duration    float64   `yaml:"duration"` // seconds
	Tags        []string  `yaml:"tags"`
	IsOriginal  bool      `yaml:"is_original"`
	IsSeries    bool      `yaml:"is_series"`
	Episodes    []Episode `yaml:"episodes"`
}

// Episode is one part of a series
type Episode struct {
	ID       string  `yaml:"id"`
	Number   int     `yaml:"number"`
	Title    string  `yaml:"title"`
	VideoURL string  `yaml:"video_url"`
	Duration float64 `yaml:"duration"`
}

// Provider looks up content by id.
type Provider interface {
	GetContentByID(ctx context.Context, id string) (*Content, error)
}

// CanWatch reports whether a subscriber of tier may start playback of c.
// Originals require a subscription; everything else is free.
func CanWatch(tier account.Tier, c *Content) bool {
	return tier != account.TierNone || !c.IsOriginal
}

// Episode returns the episode with the given id
func (c *Content) Episode(id string) (Episode, error) {
	for _, ep := range c.Episodes {
		if ep.ID == id {
			return ep, nil
		}
	}
	return Episode{}, fmt.Errorf("%w: %s in %s", ErrEpisodeNotFound, id, c.ID)
}

// FirstEpisode returns the lowest numbered episode
func (c *Content) FirstEpisode() (Episode, bool) {
	if len(c.Episodes) == 0 {
		return Episode{}, false
	}
	eps := c.SortedEpisodes()
	return eps[0], true
}

// SortedEpisodes returns the episodes ordered by number
func (c *Content) SortedEpisodes() []Episode {
	eps := append([]Episode(nil), c.Episodes...)
	sort.SliceStable(eps, func(i, j int) bool { return eps[i].Number < eps[j].Number })
	return eps
}

// Source resolves what to play: the episode's stream for a series, the title's
// own stream otherwise. An empty episodeID on a series selects the first episode.
func (c *Content) Source(episodeID string) (url string, duration float64, ep *Episode, err error) {
	if !c.IsSeries {
		if c.VideoURL == "" {
			return "", 0, nil, fmt.Errorf("content %s has no video url", c.ID)
		}
		return c.VideoURL, c.Duration, nil, nil
	}

	var e Episode
	if episodeID == "" {
		var ok bool
		if e, ok = c.FirstEpisode(); !ok {
			return "", 0, nil, fmt.Errorf("%w: series %s has no episodes", ErrEpisodeNotFound, c.ID)
		}
	} else if e, err = c.Episode(episodeID); err != nil {
		return "", 0, nil, err
	}
	return e.VideoURL, e.Duration, &e, nil
}
