// Package playback implements the playback session: it binds a stream to a
// surface, tracks the canonical playback state, persists watch position and
// gates in-session capabilities by subscription tier.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justchokingaround/reel/internal/account"
	"github.com/justchokingaround/reel/internal/checkpoint"
	"github.com/justchokingaround/reel/internal/clock"
	"github.com/justchokingaround/reel/internal/eventloop"
	"github.com/justchokingaround/reel/internal/player"
)

// Source is one stream to load into the session.
type Source struct {
	URL         string
	StartOffset float64
	Autoplay    bool
	// Key identifies the checkpoint row. An empty UserID disables checkpoints.
	Key checkpoint.Key
	// Duration is a hint used until the stream reports its own.
	Duration float64
}

// Snapshot is a read-only view of the session for hosts.
type Snapshot struct {
	ID          string
	State       State
	Seeking     bool
	URL         string
	CurrentTime float64
	Duration    float64
	Volume      float64
	Muted       bool
	Rate        float64
	Fullscreen  bool
	Placeholder bool
	Profile     CapabilityProfile
	Err         error
}

// Progress returns CurrentTime/Duration in [0, 1].
func (s Snapshot) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, s.CurrentTime/s.Duration))
}

// Options configures a Session
type Options struct {
	ID     string
	Clock  clock.Clock
	Logger *slog.Logger

	// Writer persists checkpoints; nil disables them.
	Writer     *checkpoint.Writer
	Tier       account.Tier
	NewDemuxer DemuxerFactory

	SettleDelay       time.Duration
	FullscreenTimeout time.Duration
	// Volume is the initial volume, 0.0 - 1.0.
	Volume float64

	// Host callbacks. They run on the session loop and must not call back into
	// the session synchronously.
	OnTimeUpdate  func(seconds float64)
	OnChange      func(Snapshot)
	OnError       func(error)
	OnPlaceholder func(visible bool)
}

// Session is one playback session: a surface, at most one attached stream and
// the state that goes with it. Public methods are safe for concurrent use;
// they run on the session's event loop.
type Session struct {
	id     string
	loop   *eventloop.Loop
	logger *slog.Logger
	opts   Options

	adapter      *Adapter
	machine      Machine
	checkpoints  *checkpoint.Service
	orchestrator *Orchestrator

	surface     player.Surface
	pending     *Source
	source      Source
	profile     CapabilityProfile
	currentTime float64
	duration    float64
	volume      float64
	muted       bool
	rate        float64
	fullscreen  bool
	placeholder bool
	userSeek    bool
	lastErr     error
	closed      bool

	closeOnce sync.Once
}

// NewSession creates a session. surface may be nil and mounted later with
// MountSurface.
func NewSession(surface player.Surface, opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Volume <= 0 || opts.Volume > 1 {
		opts.Volume = 1
	}

	logger := opts.Logger.With("session", opts.ID)
	s := &Session{
		id:      opts.ID,
		loop:    eventloop.New(opts.Clock, logger),
		logger:  logger,
		opts:    opts,
		surface: surface,
		profile: ProfileFor(opts.Tier),
		volume:  opts.Volume,
		rate:    1,
	}

	s.checkpoints = checkpoint.NewService(opts.Writer, opts.ID, opts.Clock, logger)
	s.adapter = NewAdapter(opts.ID, s.loop, opts.NewDemuxer, AdapterCallbacks{
		OnMetadata:         s.onMetadata,
		OnAutoplay:         s.onAutoplay,
		OnTimeUpdate:       s.onTimeUpdate,
		OnPlay:             s.onSurfacePlay,
		OnPause:            s.onSurfacePause,
		OnSeeking:          s.onSurfaceSeeking,
		OnSeeked:           s.onSurfaceSeeked,
		OnEnded:            s.onEnded,
		OnFullscreenChange: s.onFullscreenChange,
		OnFault:            s.fault,
	}, logger)
	s.orchestrator = NewOrchestrator(s.loop, func() player.Surface { return s.surface }, OrchestratorOptions{
		SettleDelay: opts.SettleDelay,
		Timeout:     opts.FullscreenTimeout,
		Logger:      logger,
		OnPlaceholder: func(visible bool) {
			s.placeholder = visible
			if opts.OnPlaceholder != nil {
				opts.OnPlaceholder(visible)
			}
			s.changed()
		},
	})
	return s
}

// ID returns the session id, also used as the surface and checkpoint owner.
func (s *Session) ID() string {
	return s.id
}

// MountSurface provides the surface to a session created without one. A
// source loaded before the mount is attached now.
func (s *Session) MountSurface(ctx context.Context, surface player.Surface) error {
	return s.do(ctx, func() error {
		if s.surface != nil {
			return ErrSurfaceMounted
		}
		s.surface = surface
		s.orchestrator.SurfaceAttached()
		if s.pending == nil {
			return nil
		}
		src := *s.pending
		s.pending = nil
		return s.load(ctx, src)
	})
}

// Load switches the session to src: the current stream is fully detached
// before the new one is attached.
func (s *Session) Load(ctx context.Context, src Source) error {
	return s.do(ctx, func() error {
		return s.load(ctx, src)
	})
}

func (s *Session) load(ctx context.Context, src Source) error {
	s.detach(ctx)

	s.source = src
	s.currentTime = 0
	s.duration = src.Duration
	s.lastErr = nil
	s.checkpoints.SetTarget(src.Key, src.Duration)

	if s.surface == nil {
		s.logger.Debug("no surface mounted yet, deferring load", "url", src.URL)
		pending := src
		s.pending = &pending
		return nil
	}

	if _, err := s.machine.Fire(EvAttach); err != nil {
		return err
	}
	s.logger.Info("loading source", "url", src.URL, "start_offset", src.StartOffset, "autoplay", src.Autoplay)

	if err := s.adapter.Attach(ctx, s.surface, src.URL, src.StartOffset, src.Autoplay); err != nil {
		if errors.Is(err, player.ErrSurfaceBusy) {
			s.machine.Fire(EvDetach)
			return err
		}
		s.fault(err)
		return err
	}
	return nil
}

func (s *Session) detach(ctx context.Context) {
	s.pending = nil
	s.adapter.Detach(ctx)
	if tr, err := s.machine.Fire(EvDetach); err == nil {
		s.apply(tr)
	}
	s.userSeek = false
}

// Play starts playback. From Ended it replays from the start.
func (s *Session) Play(ctx context.Context) error {
	return s.do(ctx, func() error {
		return s.play(ctx)
	})
}

func (s *Session) play(ctx context.Context) error {
	if !s.adapter.Attached() {
		return ErrNoSource
	}
	replay := s.machine.State() == StateEnded

	tr, err := s.machine.Fire(EvPlay)
	if err != nil {
		return err
	}
	s.apply(tr)

	surface := s.adapter.Surface()
	if replay {
		s.currentTime = 0
		if err := surface.Seek(ctx, 0); err != nil {
			s.logger.Warn("failed to rewind for replay", "error", err)
		}
	}
	if err := surface.Play(ctx); err != nil {
		s.logger.Warn("surface refused to play", "error", err)
		if tr, ferr := s.machine.Fire(EvPause); ferr == nil {
			s.apply(tr)
		}
		return err
	}
	return nil
}

// Pause pauses playback.
func (s *Session) Pause(ctx context.Context) error {
	return s.do(ctx, func() error {
		return s.pause(ctx)
	})
}

func (s *Session) pause(ctx context.Context) error {
	if !s.adapter.Attached() {
		return ErrNoSource
	}
	tr, err := s.machine.Fire(EvPause)
	if err != nil {
		return err
	}
	s.apply(tr)
	return s.adapter.Surface().Pause(ctx)
}

// TogglePlay pauses while playing and plays otherwise.
func (s *Session) TogglePlay(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.machine.State() == StatePlaying {
			return s.pause(ctx)
		}
		return s.play(ctx)
	})
}

// BeginSeek raises the seeking overlay for a seek-bar drag.
func (s *Session) BeginSeek(ctx context.Context) error {
	return s.do(ctx, func() error {
		if err := s.machine.BeginSeek(); err != nil {
			return err
		}
		s.userSeek = true
		return nil
	})
}

// SeekTo moves the position, clamped to [0, duration].
func (s *Session) SeekTo(ctx context.Context, seconds float64) error {
	return s.do(ctx, func() error {
		return s.seekTo(ctx, seconds)
	})
}

func (s *Session) seekTo(ctx context.Context, seconds float64) error {
	if !s.adapter.Attached() {
		return ErrNoSource
	}
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	if s.duration > 0 && seconds > s.duration {
		seconds = s.duration
	}
	s.currentTime = seconds
	s.adapter.CancelStartOffset()
	return s.adapter.Surface().Seek(ctx, seconds)
}

// EndSeek drops the seeking overlay; the play/pause state is what it was.
func (s *Session) EndSeek(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.machine.EndSeek()
		s.userSeek = false
		return nil
	})
}

// Seek is BeginSeek, SeekTo and EndSeek in one step.
func (s *Session) Seek(ctx context.Context, seconds float64) error {
	return s.do(ctx, func() error {
		if err := s.machine.BeginSeek(); err != nil {
			return err
		}
		defer s.machine.EndSeek()
		return s.seekTo(ctx, seconds)
	})
}

// SetVolume sets the volume, clamped to [0, 1]. Zero mutes.
func (s *Session) SetVolume(ctx context.Context, volume float64) error {
	return s.do(ctx, func() error {
		if math.IsNaN(volume) {
			volume = 0
		}
		s.volume = math.Min(1, math.Max(0, volume))
		s.muted = s.volume == 0
		return s.applyVolume(ctx)
	})
}

// ToggleMute flips the muted flag. Unmuting at zero volume restores full volume.
func (s *Session) ToggleMute(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.muted = !s.muted
		if !s.muted && s.volume == 0 {
			s.volume = 1
		}
		return s.applyVolume(ctx)
	})
}

func (s *Session) applyVolume(ctx context.Context) error {
	surface := s.adapter.Surface()
	if surface == nil {
		return nil
	}
	if err := surface.SetVolume(ctx, s.volume); err != nil {
		return err
	}
	return surface.SetMuted(ctx, s.muted)
}

// ChangePlaybackRate switches the rate. Without rate control, or for a rate
// outside the allowed set, it does nothing and reports no error.
func (s *Session) ChangePlaybackRate(ctx context.Context, rate float64) error {
	return s.do(ctx, func() error {
		if !s.profile.CanChangeRate(rate) {
			s.logger.Debug("playback rate change not allowed", "rate", rate, "tier", string(s.profile.Tier))
			return nil
		}
		s.rate = rate
		if surface := s.adapter.Surface(); surface != nil {
			return surface.SetRate(ctx, rate)
		}
		return nil
	})
}

// SetTier replaces the capability profile. Losing rate control resets the
// rate to 1.
func (s *Session) SetTier(ctx context.Context, tier account.Tier) error {
	return s.do(ctx, func() error {
		s.profile = ProfileFor(tier)
		if s.rate == 1 || s.profile.CanChangeRate(s.rate) {
			return nil
		}
		s.logger.Info("rate control lost, resetting playback rate", "tier", string(tier), "rate", s.rate)
		s.rate = 1
		if surface := s.adapter.Surface(); surface != nil {
			return surface.SetRate(ctx, 1)
		}
		return nil
	})
}

// ToggleFullscreen enters or exits fullscreen on the mounted surface.
func (s *Session) ToggleFullscreen(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.surface == nil {
			return ErrNoSource
		}
		if s.surface.IsFullscreen() {
			if err := s.surface.ExitFullscreen(ctx); err != nil {
				return fmt.Errorf("exit fullscreen: %w", err)
			}
			return nil
		}
		if err := s.surface.RequestFullscreen(ctx); err != nil {
			return &FullscreenDeniedError{Err: err}
		}
		return nil
	})
}

// StartIntent hands a fullscreen intent to the orchestrator. It is consumed
// once; later intents replace it.
func (s *Session) StartIntent(ctx context.Context, intent FullscreenIntent) error {
	return s.do(ctx, func() error {
		s.orchestrator.Start(intent)
		return nil
	})
}

// Snapshot returns the current session view.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:          s.id,
		State:       s.machine.State(),
		Seeking:     s.machine.Seeking(),
		URL:         s.adapter.URL(),
		CurrentTime: s.currentTime,
		Duration:    s.duration,
		Volume:      s.volume,
		Muted:       s.muted,
		Rate:        s.rate,
		Fullscreen:  s.fullscreen,
		Placeholder: s.placeholder,
		Profile:     s.profile,
		Err:         s.lastErr,
	}
}

// Close unmounts the session: it cancels the fullscreen orchestration and the
// checkpoint writes, detaches the stream and stops the loop. It is idempotent
// and must not be called from a session callback.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.loop.Do(context.Background(), func() {
			s.closed = true
			s.orchestrator.Cancel()
			s.checkpoints.Close()
			s.detach(context.Background())
			s.logger.Debug("session closed")
		})
		s.loop.Close()
	})
}

// do runs fn on the loop and notifies the host of the resulting state.
func (s *Session) do(ctx context.Context, fn func() error) error {
	var err error
	derr := s.loop.Do(ctx, func() {
		if s.closed {
			err = ErrSessionClosed
			return
		}
		err = fn()
		s.changed()
	})
	if errors.Is(derr, eventloop.ErrClosed) {
		return ErrSessionClosed
	}
	if derr != nil {
		return derr
	}
	return err
}

func (s *Session) apply(tr Transition) {
	if tr.Effects.Has(EffectArmCheckpoint) {
		s.checkpoints.Arm()
	}
	if tr.Effects.Has(EffectDisarmCheckpoint) {
		s.checkpoints.Disarm()
	}
	if tr.Effects.Has(EffectFinalCheckpoint) {
		s.checkpoints.Final(s.currentTime)
	}
	s.logger.Debug("state changed", "from", tr.From.String(), "to", tr.To.String(), "event", tr.Event.String())
}

func (s *Session) changed() {
	if s.opts.OnChange != nil && !s.closed {
		s.opts.OnChange(s.snapshot())
	}
}

// Adapter callbacks, all on the loop.

func (s *Session) onMetadata(duration float64) {
	if duration > 0 {
		s.duration = duration
		s.checkpoints.SetDuration(duration)
	}
	tr, err := s.machine.Fire(EvMetadata)
	if err != nil {
		s.logger.Warn("unexpected metadata", "error", err)
		return
	}
	s.apply(tr)

	if tr.Effects.Has(EffectStartPending) {
		ctx := context.Background()
		if err := s.applyVolume(ctx); err != nil {
			s.logger.Warn("failed to apply volume", "error", err)
		}
		if s.rate != 1 {
			if err := s.adapter.Surface().SetRate(ctx, s.rate); err != nil {
				s.logger.Warn("failed to apply playback rate", "error", err)
			}
		}
	}
	if s.source.StartOffset > 0 {
		s.currentTime = s.source.StartOffset
	}
	s.changed()
}

func (s *Session) onAutoplay() {
	if err := s.play(context.Background()); err != nil {
		s.logger.Warn("autoplay failed", "error", err)
	}
	s.changed()
}

func (s *Session) onTimeUpdate(current, duration float64) {
	s.currentTime = current
	if duration > 0 && duration != s.duration {
		s.duration = duration
		s.checkpoints.SetDuration(duration)
	}
	s.checkpoints.OnTimeUpdate(current)
	if s.opts.OnTimeUpdate != nil {
		s.opts.OnTimeUpdate(current)
	}
	s.changed()
}

// onSurfacePlay syncs a play started outside the session (e.g. the surface's
// own controls).
func (s *Session) onSurfacePlay() {
	if s.machine.State() == StatePlaying || !s.machine.Can(EvPlay) {
		return
	}
	if tr, err := s.machine.Fire(EvPlay); err == nil {
		s.apply(tr)
		s.changed()
	}
}

func (s *Session) onSurfacePause() {
	if s.machine.State() != StatePlaying {
		return
	}
	if tr, err := s.machine.Fire(EvPause); err == nil {
		s.apply(tr)
		s.changed()
	}
}

func (s *Session) onSurfaceSeeking() {
	if !s.machine.Seeking() && s.machine.BeginSeek() == nil {
		s.changed()
	}
}

func (s *Session) onSurfaceSeeked() {
	if s.userSeek {
		return
	}
	s.machine.EndSeek()
	s.changed()
}

func (s *Session) onEnded() {
	if !s.machine.Can(EvEnded) {
		return
	}
	if surface := s.adapter.Surface(); surface != nil {
		if t := surface.CurrentTime(); t > 0 {
			s.currentTime = t
		}
	}
	tr, _ := s.machine.Fire(EvEnded)
	s.apply(tr)
	s.logger.Info("playback ended", "position", s.currentTime)
	s.changed()
}

func (s *Session) onFullscreenChange(fullscreen bool) {
	s.fullscreen = fullscreen
	s.changed()
}

func (s *Session) fault(err error) {
	s.lastErr = err
	s.orchestrator.Cancel()
	if tr, ferr := s.machine.Fire(EvFault); ferr == nil {
		s.apply(tr)
	}
	s.logger.Error("playback failed", "error", err)
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
	s.changed()
}
