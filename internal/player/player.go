package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSurfaceBusy is returned when a second owner tries to bind a surface that
// already has a stream attached.
var ErrSurfaceBusy = errors.New("surface already bound to another source")

// ErrNotReady is returned by surface commands issued before the surface can accept them.
var ErrNotReady = errors.New("surface not ready")

// HLSMimeType is the manifest type probed for native adaptive streaming support.
const HLSMimeType = "application/vnd.apple.mpegurl"

// Surface is a playback surface: the thing a stream is rendered on.
// Implementations deliver events through Subscribe; listeners may be invoked
// from any goroutine.
type Surface interface {
	// ID identifies the surface for binding and logging.
	ID() string

	// Bind marks the surface as owned by owner. Only one owner may be bound at a time.
	Bind(owner string) error
	// Unbind releases the surface if owner currently holds it.
	Unbind(owner string)

	// CanPlayNativeHLS reports whether the surface can decode HLS manifests itself.
	CanPlayNativeHLS() bool

	// Source control (native path)
	SetSource(ctx context.Context, url string) error
	ClearSource(ctx context.Context) error

	// Playback control
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetRate(ctx context.Context, rate float64) error
	SetVolume(ctx context.Context, volume float64) error // 0.0 - 1.0
	SetMuted(ctx context.Context, muted bool) error

	// Status
	ReadyState() ReadyState
	CurrentTime() float64
	Duration() float64

	// Fullscreen
	RequestFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
	IsFullscreen() bool

	// Subscribe registers fn for events of the given kind and returns a function
	// that removes it.
	Subscribe(kind EventKind, fn Listener) (unsubscribe func())
}

// BufferSink is implemented by surfaces that accept media pushed by a software
// demuxer instead of loading a manifest themselves.
type BufferSink interface {
	AttachBuffer(ctx context.Context, info StreamInfo) error
	AppendSegment(ctx context.Context, data []byte) error
	EndOfStream(ctx context.Context) error
	DetachBuffer(ctx context.Context) error
}

// StreamInfo describes the rendition a demuxer is about to feed into a BufferSink.
type StreamInfo struct {
	Duration   float64 `json:"duration"` // seconds, sum of segment durations
	Bandwidth  int     `json:"bandwidth,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	Title      string  `json:"title,omitempty"`
}

// ReadyState mirrors the media element readiness levels.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// String returns the string representation of ReadyState
func (r ReadyState) String() string {
	switch r {
	case HaveNothing:
		return "nothing"
	case HaveMetadata:
		return "metadata"
	case HaveCurrentData:
		return "current-data"
	case HaveFutureData:
		return "future-data"
	case HaveEnoughData:
		return "enough-data"
	default:
		return fmt.Sprintf("ready-state(%d)", int(r))
	}
}

// EventKind names a surface event.
type EventKind string

const (
	EventLoadedMetadata   EventKind = "loadedmetadata"
	EventLoadedData       EventKind = "loadeddata"
	EventTimeUpdate       EventKind = "timeupdate"
	EventPlay             EventKind = "play"
	EventPause            EventKind = "pause"
	EventSeeking          EventKind = "seeking"
	EventSeeked           EventKind = "seeked"
	EventEnded            EventKind = "ended"
	EventError            EventKind = "error"
	EventFullscreenChange EventKind = "fullscreenchange"
)

// Event is a single surface notification.
type Event struct {
	Kind        EventKind `json:"kind"`
	CurrentTime float64   `json:"current_time"`
	Duration    float64   `json:"duration"`
	Fullscreen  bool      `json:"fullscreen"`
	Err         error     `json:"-"`
}

// Listener receives surface events.
type Listener func(Event)

// Once subscribes fn for the first event of kind only. The returned function
// cancels the subscription if it has not fired yet.
func Once(s Surface, kind EventKind, fn Listener) (cancel func()) {
	var (
		once  sync.Once
		mu    sync.Mutex
		unsub func()
		fired bool
	)

	release := func() {
		mu.Lock()
		u := unsub
		mu.Unlock()
		if u != nil {
			u()
		}
	}

	u := s.Subscribe(kind, func(ev Event) {
		once.Do(func() {
			mu.Lock()
			fired = true
			mu.Unlock()
			release()
			fn(ev)
		})
	})

	mu.Lock()
	unsub = u
	alreadyFired := fired
	mu.Unlock()
	if alreadyFired {
		u()
	}

	return func() {
		once.Do(func() {})
		release()
	}
}
