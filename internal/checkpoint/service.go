package checkpoint

import (
	"log/slog"

	"github.com/justchokingaround/reel/internal/clock"
)

// Service is the per-session side of checkpointing. It turns time updates
// into writes while armed. It is not safe for concurrent use; the session
// calls it from its event loop.
type Service struct {
	writer *Writer
	owner  string
	clock  clock.Clock
	logger *slog.Logger

	key      Key
	duration float64
	armed    bool
	closed   bool
}

// NewService creates a service that submits to writer as owner.
func NewService(writer *Writer, owner string, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		writer: writer,
		owner:  owner,
		clock:  clk,
		logger: logger,
	}
}

// SetTarget points the service at a new key, e.g. after an episode switch.
func (s *Service) SetTarget(key Key, duration float64) {
	s.key = key
	s.duration = duration
}

// Key returns the current target key
func (s *Service) Key() Key {
	return s.key
}

// SetDuration updates the duration used for the completion rule. Non-positive
// values are ignored so a known duration is not lost.
func (s *Service) SetDuration(d float64) {
	if d > 0 {
		s.duration = d
	}
}

// Arm starts accepting throttled writes (Playing).
func (s *Service) Arm() {
	if !s.closed {
		s.armed = true
	}
}

// Disarm stops throttled writes (Paused, Ended, Error).
func (s *Service) Disarm() {
	s.armed = false
}

// Armed reports whether time updates can trigger writes.
func (s *Service) Armed() bool {
	return s.armed
}

// OnTimeUpdate submits a write if armed and t passes the throttle. It reports
// whether a write was submitted.
func (s *Service) OnTimeUpdate(t float64) bool {
	if !s.armed || !ShouldWrite(t) {
		return false
	}
	return s.submit(t)
}

// Final writes position regardless of the throttle; used when playback ends.
func (s *Service) Final(position float64) bool {
	return s.submit(position)
}

func (s *Service) submit(position float64) bool {
	if s.closed || s.writer == nil || s.key.UserID == "" || s.key.ContentID == "" {
		return false
	}
	if position < 0 {
		position = 0
	}

	cp := Checkpoint{
		Key:          s.key,
		LastPosition: position,
		Duration:     s.duration,
		WatchedAt:    s.clock.Now(),
		Completed:    IsCompleted(position, s.duration),
	}
	s.writer.Submit(s.owner, cp)
	s.logger.Debug("checkpoint submitted", "key", s.key.String(), "position", position, "completed", cp.Completed)
	return true
}

// Close disarms, drops this session's pending writes and cancels its
// in-flight ones, for earlier targets as well. No write is submitted
// afterwards.
func (s *Service) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.armed = false
	if s.writer != nil {
		s.writer.DiscardOwner(s.owner)
	}
}
