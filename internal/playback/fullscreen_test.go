package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justchokingaround/reel/internal/clock"
	"github.com/justchokingaround/reel/internal/eventloop"
	"github.com/justchokingaround/reel/internal/player"
)

type orchestratorFixture struct {
	t       *testing.T
	clock   *clock.Fake
	loop    *eventloop.Loop
	orch    *Orchestrator
	surface *fakeSurface
	mounted bool

	mu      sync.Mutex
	visible []bool
}

func newOrchestratorFixture(t *testing.T, mounted bool) *orchestratorFixture {
	t.Helper()

	f := &orchestratorFixture{
		t:       t,
		clock:   clock.NewFake(start),
		surface: newFakeSurface(true),
		mounted: mounted,
	}
	f.loop = eventloop.New(f.clock, nil)
	t.Cleanup(f.loop.Close)

	provider := func() player.Surface {
		if !f.mounted {
			return nil
		}
		return f.surface
	}
	f.orch = NewOrchestrator(f.loop, provider, OrchestratorOptions{
		OnPlaceholder: func(visible bool) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.visible = append(f.visible, visible)
		},
	})
	return f
}

// run executes fn on the loop after everything queued before it.
func (f *orchestratorFixture) run(fn func()) {
	f.t.Helper()
	require.NoError(f.t, f.loop.Do(f.t.Context(), fn))
}

func (f *orchestratorFixture) sync() {
	f.run(func() {})
}

func (f *orchestratorFixture) placeholders() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.visible...)
}

func (f *orchestratorFixture) active() bool {
	var active bool
	f.run(func() { active = f.orch.Active() })
	return active
}

func TestOrchestratorIgnoresIntentWithoutFullscreen(t *testing.T) {
	f := newOrchestratorFixture(t, true)
	f.run(func() { f.orch.Start(FullscreenIntent{Autoplay: true}) })

	assert.False(t, f.active())
	assert.Empty(t, f.placeholders())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestOrchestratorRequestsImmediatelyWhenReady(t *testing.T) {
	f := newOrchestratorFixture(t, true)
	f.surface.setReady(player.HaveEnoughData)

	f.run(func() { f.orch.Start(FullscreenIntent{Fullscreen: true}) })

	assert.False(t, f.active())
	assert.True(t, f.surface.IsFullscreen())
	assert.Equal(t, []bool{true, false}, f.placeholders())
	assert.Equal(t, 0, f.clock.Pending())
	assert.Equal(t, 0, f.surface.TotalListeners())
}

func TestOrchestratorNoSurfaceAtSettle(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	f.run(func() { f.orch.Start(FullscreenIntent{Fullscreen: true}) })
	assert.True(t, f.active())

	f.clock.Advance(DefaultSettleDelay)
	f.sync()

	assert.False(t, f.active())
	assert.Empty(t, f.surface.Calls(), "no request before the surface exists")
	assert.Equal(t, []bool{true, false}, f.placeholders())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestOrchestratorMountSignalBeatsSettleDelay(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	f.surface.setReady(player.HaveCurrentData)
	f.run(func() { f.orch.Start(FullscreenIntent{Fullscreen: true}) })

	f.mounted = true
	f.run(f.orch.SurfaceAttached)

	assert.False(t, f.active())
	assert.True(t, f.surface.IsFullscreen())

	f.clock.Advance(DefaultSettleDelay)
	f.sync()
	assert.Equal(t, 1, countOf(f.surface.Calls(), "fullscreen"))
}

func TestOrchestratorWaitsForLoadedData(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	f.run(func() { f.orch.Start(FullscreenIntent{Fullscreen: true}) })

	f.mounted = true
	f.clock.Advance(DefaultSettleDelay)
	f.sync()
	assert.True(t, f.active())
	assert.Equal(t, 1, f.surface.Listeners(player.EventLoadedData))
	assert.NotContains(t, f.surface.Calls(), "fullscreen")

	f.surface.setReady(player.HaveCurrentData)
	f.surface.Emit(player.Event{Kind: player.EventLoadedData})
	f.surface.Emit(player.Event{Kind: player.EventLoadedData})
	f.sync()

	assert.False(t, f.active())
	assert.Equal(t, 1, countOf(f.surface.Calls(), "fullscreen"))
	assert.Equal(t, []bool{true, false}, f.placeholders())
	assert.Equal(t, 0, f.surface.TotalListeners())
}

func TestOrchestratorDeniedClearsPlaceholder(t *testing.T) {
	f := newOrchestratorFixture(t, true)
	f.surface.setReady(player.HaveCurrentData)
	f.surface.fsErr = errors.New("permission denied")

	f.run(func() { f.orch.Start(FullscreenIntent{Fullscreen: true}) })

	assert.False(t, f.active())
	assert.False(t, f.surface.IsFullscreen())
	assert.Equal(t, []bool{true, false}, f.placeholders())
}

func TestOrchestratorWatchdogBoundsPlaceholder(t *testing.T) {
	f := newOrchestratorFixture(t, true)
	f.run(func() { f.orch.Start(FullscreenIntent{Fullscreen: true}) })
	assert.True(t, f.active())

	f.clock.Advance(DefaultFullscreenTimeout - time.Millisecond)
	f.sync()
	assert.True(t, f.active())

	f.clock.Advance(time.Millisecond)
	f.sync()
	assert.False(t, f.active())
	assert.Equal(t, 0, f.surface.TotalListeners())

	// Readiness arriving late does not trigger a request.
	f.surface.setReady(player.HaveCurrentData)
	f.surface.Emit(player.Event{Kind: player.EventLoadedData})
	f.sync()
	assert.NotContains(t, f.surface.Calls(), "fullscreen")
	assert.Equal(t, []bool{true, false}, f.placeholders())
}

func TestOrchestratorExternalExitClearsPlaceholder(t *testing.T) {
	f := newOrchestratorFixture(t, true)
	f.run(func() { f.orch.Start(FullscreenIntent{Fullscreen: true}) })
	assert.True(t, f.active())

	f.surface.Emit(player.Event{Kind: player.EventFullscreenChange, Fullscreen: false})
	f.sync()

	assert.False(t, f.active())
	assert.Equal(t, 0, f.clock.Pending())
	assert.Equal(t, 0, f.surface.TotalListeners())
}

func TestOrchestratorCancel(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	f.run(func() { f.orch.Start(FullscreenIntent{Fullscreen: true}) })
	assert.Equal(t, 2, f.clock.Pending())

	f.run(f.orch.Cancel)
	f.run(f.orch.Cancel)

	assert.False(t, f.active())
	assert.Equal(t, 0, f.clock.Pending())
	assert.Equal(t, []bool{true, false}, f.placeholders())

	f.mounted = true
	f.clock.Advance(DefaultFullscreenTimeout)
	f.sync()
	assert.Empty(t, f.surface.Calls())
}
