package hls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/justchokingaround/reel/internal/player"
)

// EventKind identifies a demuxer event.
type EventKind int

const (
	EventManifestParsed EventKind = iota
	EventFragmentBuffered
	EventEndOfStream
	EventError
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case EventManifestParsed:
		return "manifest-parsed"
	case EventFragmentBuffered:
		return "fragment-buffered"
	case EventEndOfStream:
		return "end-of-stream"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to the OnEvent callback from the demuxer's goroutine.
type Event struct {
	Kind     EventKind
	Info     player.StreamInfo
	Fragment int
	Err      error
	// Fatal errors end the stream; the others only skip a fragment.
	Fatal bool
}

// ManifestError reports a manifest that could not be fetched or parsed.
type ManifestError struct {
	URL string
	Err error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.URL, e.Err)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// ErrDestroyed is returned when a destroyed demuxer is reused.
var ErrDestroyed = errors.New("demuxer destroyed")

// prefetch is how many segments are fetched ahead of the sink.
const prefetch = 3

// Demuxer loads an HLS manifest, selects the highest-bandwidth variant and
// pushes its segments into a BufferSink in order. Progress is reported only
// through events.
type Demuxer struct {
	client *Client
	logger *slog.Logger

	mu        sync.Mutex
	sink      player.BufferSink
	onEvent   func(Event)
	cancel    context.CancelFunc
	done      chan struct{}
	attached  bool
	loaded    bool
	destroyed bool
}

// NewDemuxer creates a demuxer that fetches with client.
func NewDemuxer(client *Client, logger *slog.Logger) *Demuxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Demuxer{
		client: client,
		logger: logger.With("component", "hls"),
	}
}

// OnEvent sets the event callback. It is called from the demuxer goroutine.
func (d *Demuxer) OnEvent(fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onEvent = fn
}

// AttachMedia sets the sink segments are fed into.
func (d *Demuxer) AttachMedia(sink player.BufferSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

// LoadSource starts loading url in the background. It may be called once.
func (d *Demuxer) LoadSource(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.destroyed:
		return ErrDestroyed
	case d.sink == nil:
		return errors.New("no media attached")
	case d.loaded:
		return errors.New("source already loaded")
	}
	d.loaded = true

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		d.run(ctx, url)
	}()
	return nil
}

// Destroy stops loading, detaches the buffer and waits for the background
// goroutines to exit. It is safe to call more than once.
func (d *Demuxer) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	if d.cancel != nil {
		d.cancel()
	}
	sink := d.sink
	attached := d.attached
	d.attached = false
	done := d.done
	d.mu.Unlock()

	// Detaching before waiting unblocks a sink write stuck on backpressure.
	if attached && sink != nil {
		if err := sink.DetachBuffer(context.Background()); err != nil {
			d.logger.Warn("failed to detach buffer", "error", err)
		}
	}
	if done != nil {
		<-done
	}
}

func (d *Demuxer) emit(ctx context.Context, ev Event) {
	if ctx.Err() != nil {
		return
	}
	d.mu.Lock()
	fn := d.onEvent
	d.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (d *Demuxer) run(ctx context.Context, url string) {
	playlist, err := d.loadPlaylist(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.logger.Error("manifest load failed", "url", url, "error", err)
		d.emit(ctx, Event{Kind: EventError, Err: &ManifestError{URL: url, Err: err}, Fatal: true})
		return
	}

	info := player.StreamInfo{Duration: playlist.TotalDuration()}
	if len(playlist.Segments) > 0 {
		info.Title = playlist.Segments[0].Title
	}
	if v, ok := d.selectedVariant(playlist); ok {
		info.Bandwidth = v.Bandwidth
		info.Resolution = v.Resolution
	}

	d.mu.Lock()
	if ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	sink := d.sink
	err = sink.AttachBuffer(ctx, info)
	d.attached = err == nil
	d.mu.Unlock()
	if err != nil {
		d.emit(ctx, Event{Kind: EventError, Err: fmt.Errorf("attach buffer: %w", err), Fatal: true})
		return
	}

	d.logger.Debug("manifest parsed", "url", playlist.URL, "segments", len(playlist.Segments), "duration", info.Duration)
	d.emit(ctx, Event{Kind: EventManifestParsed, Info: info})

	if err := d.feed(ctx, sink, playlist.Segments); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.emit(ctx, Event{Kind: EventError, Err: err, Fatal: true})
		return
	}

	if err := sink.EndOfStream(ctx); err != nil {
		d.logger.Warn("end of stream failed", "error", err)
	}
	d.emit(ctx, Event{Kind: EventEndOfStream})
}

// loadPlaylist fetches url and, for a master playlist, the media playlist of
// its best variant.
func (d *Demuxer) loadPlaylist(ctx context.Context, url string) (*Playlist, error) {
	playlist, err := d.fetchPlaylist(ctx, url)
	if err != nil {
		return nil, err
	}
	if !playlist.IsMaster() {
		return playlist, nil
	}

	best, _ := playlist.BestVariant()
	d.logger.Debug("selected variant", "url", best.URL, "bandwidth", best.Bandwidth, "resolution", best.Resolution)

	media, err := d.fetchPlaylist(ctx, best.URL)
	if err != nil {
		return nil, err
	}
	if media.IsMaster() {
		return nil, fmt.Errorf("variant %s is itself a master playlist", best.URL)
	}
	media.Variants = []Variant{best}
	return media, nil
}

func (d *Demuxer) selectedVariant(p *Playlist) (Variant, bool) {
	if len(p.Variants) == 1 {
		return p.Variants[0], true
	}
	return Variant{}, false
}

func (d *Demuxer) fetchPlaylist(ctx context.Context, url string) (*Playlist, error) {
	body, err := d.client.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(body), url)
}

type fragment struct {
	index int
	data  []byte
}

// feed fetches segments ahead of the sink and appends them in playlist order.
// A segment that fails to download is skipped.
func (d *Demuxer) feed(ctx context.Context, sink player.BufferSink, segments []Segment) error {
	g, gctx := errgroup.WithContext(ctx)
	fragments := make(chan fragment, prefetch)

	g.Go(func() error {
		defer close(fragments)
		for _, seg := range segments {
			data, err := d.client.Fetch(gctx, seg.URL)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.logger.Warn("segment fetch failed", "index", seg.Index, "url", seg.URL, "error", err)
				d.emit(gctx, Event{Kind: EventError, Fragment: seg.Index, Err: err})
				continue
			}
			select {
			case fragments <- fragment{index: seg.Index, data: data}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for frag := range fragments {
			if err := sink.AppendSegment(gctx, frag.data); err != nil {
				return fmt.Errorf("append segment %d: %w", frag.index, err)
			}
			d.emit(gctx, Event{Kind: EventFragmentBuffered, Fragment: frag.index})
		}
		return nil
	})

	return g.Wait()
}
