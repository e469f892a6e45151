package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/justchokingaround/reel/internal/eventloop"
	"github.com/justchokingaround/reel/internal/hls"
	"github.com/justchokingaround/reel/internal/player"
)

// Demuxer is the software adaptive-streaming path: it loads a manifest and
// feeds segments into a BufferSink, reporting progress through events.
// *hls.Demuxer implements it.
type Demuxer interface {
	OnEvent(fn func(hls.Event))
	AttachMedia(sink player.BufferSink)
	LoadSource(url string) error
	// Destroy releases the demuxer and waits for its goroutines.
	Destroy()
}

// DemuxerFactory creates a fresh demuxer for every attach.
type DemuxerFactory func() Demuxer

// AdapterCallbacks receive adapter lifecycle events on the event loop.
type AdapterCallbacks struct {
	// OnMetadata fires once per attach, before the pending seek/autoplay.
	OnMetadata         func(duration float64)
	OnAutoplay         func()
	OnLoadedData       func()
	OnTimeUpdate       func(current, duration float64)
	OnPlay             func()
	OnPause            func()
	OnSeeking          func()
	OnSeeked           func()
	OnEnded            func()
	OnFullscreenChange func(fullscreen bool)
	OnFault            func(err error)
}

// Adapter binds a manifest URL to a surface, natively when the surface can
// decode HLS, through a Demuxer otherwise. All methods run on the loop.
type Adapter struct {
	owner      string
	loop       *eventloop.Loop
	newDemuxer DemuxerFactory
	callbacks  AdapterCallbacks
	logger     *slog.Logger

	surface     player.Surface
	demuxer     Demuxer
	subs        []func()
	generation  int
	url         string
	startOffset float64
	autoplay    bool
	metadata    bool
	// start offset still to be applied once the surface opens the stream
	reseek bool
}

// NewAdapter creates an adapter that binds surfaces as owner.
func NewAdapter(owner string, loop *eventloop.Loop, newDemuxer DemuxerFactory, callbacks AdapterCallbacks, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		owner:      owner,
		loop:       loop,
		newDemuxer: newDemuxer,
		callbacks:  callbacks,
		logger:     logger.With("component", "adapter"),
	}
}

// Attached reports whether a stream is bound to a surface.
func (a *Adapter) Attached() bool {
	return a.surface != nil
}

// Surface returns the bound surface, or nil.
func (a *Adapter) Surface() player.Surface {
	return a.surface
}

// URL returns the attached manifest URL
func (a *Adapter) URL() string {
	return a.url
}

// Native reports whether the current attach uses the surface's own HLS support.
func (a *Adapter) Native() bool {
	return a.surface != nil && a.demuxer == nil
}

// Attach binds url to surface. The surface must not be bound to anyone else;
// callers detach first. On metadata it seeks to startOffset (if > 0) and then
// requests autoplay.
func (a *Adapter) Attach(ctx context.Context, surface player.Surface, url string, startOffset float64, autoplay bool) error {
	if a.surface != nil {
		return fmt.Errorf("adapter already attached to %s", a.surface.ID())
	}
	if err := surface.Bind(a.owner); err != nil {
		return err
	}

	a.generation++
	a.surface = surface
	a.url = url
	a.startOffset = startOffset
	a.autoplay = autoplay
	a.metadata = false
	a.reseek = false
	a.subscribe(surface)

	if surface.CanPlayNativeHLS() {
		a.logger.Debug("attaching natively", "url", url, "surface", surface.ID())
		if err := surface.SetSource(ctx, url); err != nil {
			a.release(ctx)
			return &ManifestLoadError{URL: url, Err: err}
		}
		return nil
	}

	sink, ok := surface.(player.BufferSink)
	if !ok || a.newDemuxer == nil {
		a.release(ctx)
		return &ManifestLoadError{URL: url, Err: errors.New("surface has no native HLS support and no demuxer is available")}
	}

	a.logger.Debug("attaching through demuxer", "url", url, "surface", surface.ID())
	d := a.newDemuxer()
	gen := a.generation
	d.OnEvent(func(ev hls.Event) {
		a.loop.Post(func() {
			if gen == a.generation {
				a.handleDemuxerEvent(ev)
			}
		})
	})
	d.AttachMedia(sink)
	a.demuxer = d

	if err := d.LoadSource(url); err != nil {
		a.release(ctx)
		return &ManifestLoadError{URL: url, Err: err}
	}
	return nil
}

// Detach fully releases the demuxer or clears the native source, cancels every
// subscription and unbinds the surface. Events still queued from this attach
// are dropped.
func (a *Adapter) Detach(ctx context.Context) {
	if a.surface == nil {
		return
	}
	a.release(ctx)
}

func (a *Adapter) release(ctx context.Context) {
	a.generation++

	for _, unsub := range a.subs {
		unsub()
	}
	a.subs = nil

	if a.demuxer != nil {
		a.demuxer.Destroy()
		a.demuxer = nil
	} else if err := a.surface.ClearSource(ctx); err != nil {
		a.logger.Warn("failed to clear source", "error", err)
	}

	a.surface.Unbind(a.owner)
	a.logger.Debug("detached", "url", a.url, "surface", a.surface.ID())

	a.surface = nil
	a.url = ""
	a.metadata = false
	a.reseek = false
}

func (a *Adapter) subscribe(surface player.Surface) {
	gen := a.generation
	on := func(kind player.EventKind, handle func(player.Event)) {
		a.subs = append(a.subs, surface.Subscribe(kind, func(ev player.Event) {
			a.loop.Post(func() {
				if gen == a.generation {
					handle(ev)
				}
			})
		}))
	}

	on(player.EventLoadedMetadata, func(ev player.Event) {
		// The software path reports metadata from the manifest already.
		if a.metadata {
			a.reapplyStartOffset()
			return
		}
		a.onMetadata(ev.Duration)
	})
	on(player.EventLoadedData, func(player.Event) { call(a.callbacks.OnLoadedData) })
	on(player.EventTimeUpdate, func(ev player.Event) {
		if a.callbacks.OnTimeUpdate != nil {
			a.callbacks.OnTimeUpdate(ev.CurrentTime, ev.Duration)
		}
	})
	on(player.EventPlay, func(player.Event) { call(a.callbacks.OnPlay) })
	on(player.EventPause, func(player.Event) { call(a.callbacks.OnPause) })
	on(player.EventSeeking, func(player.Event) { call(a.callbacks.OnSeeking) })
	on(player.EventSeeked, func(player.Event) { call(a.callbacks.OnSeeked) })
	on(player.EventEnded, func(player.Event) { call(a.callbacks.OnEnded) })
	on(player.EventFullscreenChange, func(ev player.Event) {
		if a.callbacks.OnFullscreenChange != nil {
			a.callbacks.OnFullscreenChange(ev.Fullscreen)
		}
	})
	on(player.EventError, func(ev player.Event) {
		err := ev.Err
		if err == nil {
			err = errors.New("surface error")
		}
		a.fault(err)
	})
}

func (a *Adapter) handleDemuxerEvent(ev hls.Event) {
	switch ev.Kind {
	case hls.EventManifestParsed:
		a.logger.Debug("manifest parsed", "duration", ev.Info.Duration, "bandwidth", ev.Info.Bandwidth)
		a.onMetadata(ev.Info.Duration)
	case hls.EventError:
		if ev.Fatal {
			a.fault(ev.Err)
			return
		}
		a.logger.Warn("fragment skipped", "fragment", ev.Fragment, "error", ev.Err)
	case hls.EventEndOfStream:
		a.logger.Debug("all fragments buffered", "url", a.url)
	}
}

// onMetadata runs once per attach: notify, then seek, then autoplay.
func (a *Adapter) onMetadata(duration float64) {
	if a.metadata || a.surface == nil {
		return
	}
	a.metadata = true
	gen := a.generation

	if a.callbacks.OnMetadata != nil {
		a.callbacks.OnMetadata(duration)
	}
	// A callback may have detached us.
	if gen != a.generation {
		return
	}

	if a.startOffset > 0 {
		a.seekStartOffset()
		// The surface has not opened the stream yet; seek again when it has.
		a.reseek = a.demuxer != nil
	}
	if a.autoplay {
		call(a.callbacks.OnAutoplay)
	}
}

func (a *Adapter) seekStartOffset() {
	if err := a.surface.Seek(context.Background(), a.startOffset); err != nil {
		a.logger.Warn("failed to seek to start offset", "offset", a.startOffset, "error", err)
	}
}

func (a *Adapter) reapplyStartOffset() {
	if !a.reseek || a.surface == nil {
		return
	}
	a.reseek = false
	a.logger.Debug("surface opened the stream, reapplying start offset", "offset", a.startOffset)
	a.seekStartOffset()
}

// CancelStartOffset drops a start offset that has not been reapplied yet.
// An explicit seek replaces it.
func (a *Adapter) CancelStartOffset() {
	a.reseek = false
}

// fault reports a fatal error. Before metadata it is a manifest load failure.
func (a *Adapter) fault(err error) {
	if !a.metadata {
		var manifestErr *ManifestLoadError
		if !errors.As(err, &manifestErr) {
			err = &ManifestLoadError{URL: a.url, Err: err}
		}
	}
	a.logger.Error("adapter fault", "url", a.url, "error", err)
	if a.callbacks.OnFault != nil {
		a.callbacks.OnFault(err)
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
