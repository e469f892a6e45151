package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition is returned when an event has no edge from the current state.
	ErrIllegalTransition = errors.New("illegal playback transition")
	// ErrSessionClosed is returned by commands issued after Close.
	ErrSessionClosed = errors.New("playback session closed")
	// ErrNoSource is returned by commands that need an attached stream.
	ErrNoSource = errors.New("no media source attached")
	// ErrSurfaceMounted is returned by MountSurface when the session already has a surface.
	ErrSurfaceMounted = errors.New("session already has a surface mounted")
)

// ManifestLoadError is fatal: the stream could not be loaded. It drives the
// session to Error and is reported through OnError. It is never retried.
type ManifestLoadError struct {
	URL string
	Err error
}

func (e *ManifestLoadError) Error() string {
	return fmt.Sprintf("failed to load manifest %s: %v", e.URL, e.Err)
}

func (e *ManifestLoadError) Unwrap() error {
	return e.Err
}

// FullscreenDeniedError is returned when the surface refuses fullscreen.
type FullscreenDeniedError struct {
	Err error
}

func (e *FullscreenDeniedError) Error() string {
	return fmt.Sprintf("fullscreen request denied: %v", e.Err)
}

func (e *FullscreenDeniedError) Unwrap() error {
	return e.Err
}
