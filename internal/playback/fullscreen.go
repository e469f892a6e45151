package playback

import (
	"context"
	"log/slog"
	"time"

	"github.com/justchokingaround/reel/internal/eventloop"
	"github.com/justchokingaround/reel/internal/player"
)

const (
	// DefaultSettleDelay is how long the orchestrator waits for the surface to
	// mount before checking readiness anyway.
	DefaultSettleDelay = 300 * time.Millisecond
	// DefaultFullscreenTimeout bounds how long the placeholder can stay visible.
	DefaultFullscreenTimeout = 10 * time.Second
)

// SurfaceProvider returns the current surface, or nil while none is mounted.
type SurfaceProvider func() player.Surface

// Orchestrator turns a fullscreen intent into a single fullscreen request once
// the surface exists and has decoded its first frame. A blocking placeholder
// is shown from Start until the request settles. It runs on the session loop.
type Orchestrator struct {
	loop          *eventloop.Loop
	surface       SurfaceProvider
	settleDelay   time.Duration
	timeout       time.Duration
	onPlaceholder func(visible bool)
	logger        *slog.Logger

	active     bool
	attempted  bool
	settle     *eventloop.Timer
	watchdog   *eventloop.Timer
	readyUnsub func()
	exitUnsub  func()
	generation int
}

// OrchestratorOptions configures an Orchestrator
type OrchestratorOptions struct {
	SettleDelay   time.Duration
	Timeout       time.Duration
	OnPlaceholder func(visible bool)
	Logger        *slog.Logger
}

// NewOrchestrator creates an orchestrator reading surfaces from provider.
func NewOrchestrator(loop *eventloop.Loop, provider SurfaceProvider, opts OrchestratorOptions) *Orchestrator {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFullscreenTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		loop:          loop,
		surface:       provider,
		settleDelay:   opts.SettleDelay,
		timeout:       opts.Timeout,
		onPlaceholder: opts.OnPlaceholder,
		logger:        opts.Logger.With("component", "fullscreen"),
	}
}

// Active reports whether the placeholder is showing.
func (o *Orchestrator) Active() bool {
	return o.active
}

// Start consumes a fullscreen intent. Without Fullscreen it does nothing.
func (o *Orchestrator) Start(intent FullscreenIntent) {
	if !intent.Fullscreen {
		return
	}
	o.Cancel()

	o.generation++
	o.active = true
	o.attempted = false
	o.setPlaceholder(true)

	gen := o.generation
	o.settle = o.loop.AfterFunc(o.settleDelay, func() {
		if gen == o.generation {
			o.attempt()
		}
	})
	o.watchdog = o.loop.AfterFunc(o.timeout, func() {
		if gen == o.generation && o.active {
			o.logger.Warn("fullscreen request timed out waiting for the surface", "timeout", o.timeout)
			o.finish()
		}
	})

	if o.surface != nil && o.surface() != nil {
		o.attempt()
	}
}

// SurfaceAttached signals that the surface has mounted.
func (o *Orchestrator) SurfaceAttached() {
	if o.active && !o.attempted {
		o.attempt()
	}
}

// Cancel stops the settle timer, the watchdog and any readiness subscription.
// The placeholder is cleared.
func (o *Orchestrator) Cancel() {
	if !o.active {
		return
	}
	o.finish()
}

func (o *Orchestrator) attempt() {
	if !o.active || o.attempted {
		return
	}
	o.attempted = true
	o.settle.Stop()

	var s player.Surface
	if o.surface != nil {
		s = o.surface()
	}
	if s == nil {
		o.logger.Debug("no surface mounted, dropping fullscreen request")
		o.finish()
		return
	}

	gen := o.generation
	o.exitUnsub = s.Subscribe(player.EventFullscreenChange, func(ev player.Event) {
		if ev.Fullscreen {
			return
		}
		o.loop.Post(func() {
			if gen == o.generation && o.active {
				o.logger.Debug("fullscreen exited while pending")
				o.finish()
			}
		})
	})

	if s.ReadyState() >= player.HaveCurrentData {
		o.request(s)
		return
	}

	o.logger.Debug("waiting for first frame before fullscreen", "ready_state", s.ReadyState().String())
	o.readyUnsub = player.Once(s, player.EventLoadedData, func(player.Event) {
		o.loop.Post(func() {
			if gen == o.generation && o.active {
				o.request(s)
			}
		})
	})
}

func (o *Orchestrator) request(s player.Surface) {
	if err := s.RequestFullscreen(context.Background()); err != nil {
		o.logger.Warn("fullscreen request failed", "error", &FullscreenDeniedError{Err: err})
	}
	o.finish()
}

func (o *Orchestrator) finish() {
	o.generation++
	o.active = false
	o.settle.Stop()
	o.watchdog.Stop()
	o.settle = nil
	o.watchdog = nil
	if o.readyUnsub != nil {
		o.readyUnsub()
		o.readyUnsub = nil
	}
	if o.exitUnsub != nil {
		o.exitUnsub()
		o.exitUnsub = nil
	}
	o.setPlaceholder(false)
}

func (o *Orchestrator) setPlaceholder(visible bool) {
	if o.onPlaceholder != nil {
		o.onPlaceholder(visible)
	}
}
