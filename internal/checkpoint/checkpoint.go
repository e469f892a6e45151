// Package checkpoint persists watch positions: the throttle and completion
// rules, the store, and a writer that keeps one write in flight per key.
package checkpoint

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// SaveInterval is the modulus, in whole seconds, of positions that are persisted.
	SaveInterval = 10
	// CompletionThreshold is the watched fraction at which content counts as completed.
	CompletionThreshold = 0.9
)

// Key identifies one checkpoint. EpisodeID is empty for content without episodes.
type Key struct {
	UserID    string
	ContentID string
	EpisodeID string
}

func (k Key) String() string {
	if k.EpisodeID == "" {
		return k.UserID + "/" + k.ContentID
	}
	return k.UserID + "/" + k.ContentID + "/" + k.EpisodeID
}

// Checkpoint is a persisted watch position.
type Checkpoint struct {
	Key
	LastPosition float64   // seconds
	Duration     float64   // seconds, 0 if unknown
	WatchedAt    time.Time // orders concurrent writes, last wins
	Completed    bool
}

// Progress returns the watched fraction in [0, 1], or 0 if the duration is unknown.
func (c Checkpoint) Progress() float64 {
	if c.Duration <= 0 {
		return 0
	}
	return math.Min(1, c.LastPosition/c.Duration)
}

// ShouldWrite reports whether a time update at position t triggers a write:
// the floored second must be a multiple of SaveInterval. Seeking onto a
// boundary therefore writes exactly like playing through it.
func ShouldWrite(t float64) bool {
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return false
	}
	return int64(math.Floor(t))%SaveInterval == 0
}

// IsCompleted applies the completion rule. An unknown duration never completes.
func IsCompleted(position, duration float64) bool {
	if duration <= 0 {
		return false
	}
	return position >= CompletionThreshold*duration
}

// CompletionPolicy decides what a partial write does to an already completed key.
type CompletionPolicy int

const (
	// CompletionMonotonic keeps completed once set.
	CompletionMonotonic CompletionPolicy = iota
	// CompletionRecompute takes the completed flag of the latest write.
	CompletionRecompute
)

// ParseCompletionPolicy parses "monotonic" or "recompute"
func ParseCompletionPolicy(s string) (CompletionPolicy, error) {
	switch strings.ToLower(s) {
	case "", "monotonic":
		return CompletionMonotonic, nil
	case "recompute":
		return CompletionRecompute, nil
	default:
		return CompletionMonotonic, fmt.Errorf("unknown completion policy %q", s)
	}
}

func (p CompletionPolicy) String() string {
	if p == CompletionRecompute {
		return "recompute"
	}
	return "monotonic"
}

// WriteError wraps a failed checkpoint write. It is logged and dropped.
type WriteError struct {
	Key Key
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("checkpoint write %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
