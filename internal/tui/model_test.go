package tui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justchokingaround/reel/internal/account"
	"github.com/justchokingaround/reel/internal/catalog"
	"github.com/justchokingaround/reel/internal/playback"
	"github.com/justchokingaround/reel/internal/tui/common"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (c *fakeController) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.err
}

func (c *fakeController) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeController) TogglePlay(ctx context.Context) error { return c.record("toggle") }
func (c *fakeController) ToggleMute(ctx context.Context) error { return c.record("mute") }
func (c *fakeController) ToggleFullscreen(ctx context.Context) error {
	return c.record("fullscreen")
}

func (c *fakeController) Seek(ctx context.Context, seconds float64) error {
	return c.record(fmt.Sprintf("seek:%g", seconds))
}

func (c *fakeController) SetVolume(ctx context.Context, volume float64) error {
	return c.record(fmt.Sprintf("volume:%g", volume))
}

func (c *fakeController) ChangePlaybackRate(ctx context.Context, rate float64) error {
	return c.record(fmt.Sprintf("rate:%g", rate))
}

func (c *fakeController) Load(ctx context.Context, src playback.Source) error {
	return c.record("load:" + src.URL)
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) Write(ctx context.Context, text string) error {
	c.text = text
	return c.err
}

var series = &catalog.Content{
	ID:          "night-shift",
	Title:       "Night Shift",
	Description: "A hospital after dark.",
	Tags:        []string{"drama"},
	IsOriginal:  true,
	IsSeries:    true,
	Episodes: []catalog.Episode{
		{ID: "ns-2", Number: 2, Title: "Rounds", VideoURL: "https://cdn.test/ns2.m3u8"},
		{ID: "ns-1", Number: 1, Title: "Intake", VideoURL: "https://cdn.test/ns1.m3u8"},
		{ID: "ns-3", Number: 3, Title: "Discharge", VideoURL: "https://cdn.test/ns3.m3u8"},
	},
}

func newTestModel(ctrl *fakeController, clip *fakeClipboard) Model {
	return New(Options{
		Content:    series,
		Controller: ctrl,
		Clipboard:  clip,
		Resolve: func(ctx context.Context, ep catalog.Episode) (playback.Source, error) {
			return playback.Source{URL: ep.VideoURL}, nil
		},
	})
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func withSnapshot(t *testing.T, m Model, snap playback.Snapshot) Model {
	t.Helper()
	m, _ = update(t, m, common.SnapshotMsg{Snapshot: snap})
	return m
}

func TestKeysDriveController(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
		snap playback.Snapshot
		want string
	}{
		{"space toggles", tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, playback.Snapshot{}, "toggle"},
		{"k toggles", runes("k"), playback.Snapshot{}, "toggle"},
		{"back clamps at zero", tea.KeyMsg{Type: tea.KeyLeft}, playback.Snapshot{CurrentTime: 4}, "seek:0"},
		{"forward", runes("l"), playback.Snapshot{CurrentTime: 30}, "seek:40"},
		{"volume up clamps", tea.KeyMsg{Type: tea.KeyUp}, playback.Snapshot{Volume: 0.95}, "volume:1"},
		{"volume down", runes("-"), playback.Snapshot{Volume: 0.5}, "volume:0.4"},
		{"mute", runes("m"), playback.Snapshot{}, "mute"},
		{"fullscreen", runes("f"), playback.Snapshot{}, "fullscreen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{}
			m := withSnapshot(t, newTestModel(ctrl, nil), tt.snap)

			_, cmd := update(t, m, tt.key)
			require.NotNil(t, cmd)
			msg := cmd()

			assert.IsType(t, common.CommandResultMsg{}, msg)
			assert.Equal(t, []string{tt.want}, ctrl.Calls())
		})
	}
}

func TestCommandFailureShowsStatus(t *testing.T) {
	ctrl := &fakeController{err: playback.ErrNoSource}
	m := newTestModel(ctrl, nil)

	_, cmd := update(t, m, runes("k"))
	m, clearCmd := update(t, m, cmd())

	assert.NotNil(t, clearCmd)
	assert.True(t, m.statusErr)
	assert.Contains(t, m.View(), "play/pause failed")
}

func TestRateStepsThroughAllowedRates(t *testing.T) {
	ctrl := &fakeController{}
	basic := playback.ProfileFor(account.TierBasic)

	m := withSnapshot(t, newTestModel(ctrl, nil), playback.Snapshot{Rate: 1, Profile: basic})
	_, cmd := update(t, m, runes("]"))
	cmd()
	_, cmd = update(t, m, runes("["))
	cmd()
	assert.Equal(t, []string{"rate:1.25", "rate:0.75"}, ctrl.Calls())

	m = withSnapshot(t, m, playback.Snapshot{Rate: 2, Profile: basic})
	_, cmd = update(t, m, runes("]"))
	assert.Nil(t, cmd)
}

func TestRateWithoutSubscription(t *testing.T) {
	ctrl := &fakeController{}
	m := withSnapshot(t, newTestModel(ctrl, nil), playback.Snapshot{Rate: 1, Profile: playback.ProfileFor(account.TierNone)})

	m, _ = update(t, m, runes("]"))
	assert.Empty(t, ctrl.Calls())
	assert.Contains(t, m.status, "subscription")
}

func TestEpisodeSwitch(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl, nil)

	m, _ = update(t, m, runes("p"))
	assert.Empty(t, ctrl.Calls(), "no episode before the first")

	m, cmd := update(t, m, runes("n"))
	require.NotNil(t, cmd)
	assert.True(t, m.switching)

	msg := cmd()
	assert.Equal(t, common.EpisodeLoadedMsg{Index: 1}, msg)
	assert.Equal(t, []string{"load:https://cdn.test/ns2.m3u8"}, ctrl.Calls())

	m, _ = update(t, m, msg)
	assert.Equal(t, 1, m.current)
	assert.False(t, m.switching)
	assert.Contains(t, m.View(), "Episode 2 · Rounds")
}

func TestRapidEpisodeSwitchEndsOnLastPick(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl, nil)

	m, first := update(t, m, runes("n"))
	require.NotNil(t, first)
	m, queued := update(t, m, runes("n"))
	assert.Nil(t, queued, "one load runs at a time")
	assert.Equal(t, 2, m.target)

	m, follow := update(t, m, first())
	assert.Equal(t, 1, m.current)
	assert.True(t, m.switching)
	require.NotNil(t, follow)

	msg := follow()
	assert.Equal(t, common.EpisodeLoadedMsg{Index: 2}, msg)
	m, _ = update(t, m, msg)

	assert.Equal(t, []string{
		"load:https://cdn.test/ns2.m3u8",
		"load:https://cdn.test/ns3.m3u8",
	}, ctrl.Calls())
	assert.Equal(t, 2, m.current)
	assert.False(t, m.switching)
	assert.Contains(t, m.View(), "Episode 3 · Discharge")
}

func TestEpisodeSwitchBackWhileLoading(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl, nil)

	m, first := update(t, m, runes("n"))
	m, _ = update(t, m, runes("p"))

	m, follow := update(t, m, first())
	require.NotNil(t, follow)
	m, _ = update(t, m, follow())

	calls := ctrl.Calls()
	assert.Equal(t, "load:https://cdn.test/ns1.m3u8", calls[len(calls)-1])
	assert.Equal(t, 0, m.current)
	assert.False(t, m.switching)
}

func TestEpisodeSwitchFailureKeepsCurrent(t *testing.T) {
	ctrl := &fakeController{err: errors.New("surface busy")}
	m := newTestModel(ctrl, nil)

	m, cmd := update(t, m, runes("n"))
	m, _ = update(t, m, cmd())

	assert.Equal(t, 0, m.current)
	assert.Equal(t, 0, m.target)
	assert.False(t, m.switching)
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "surface busy")
}

func TestCopyURL(t *testing.T) {
	clip := &fakeClipboard{}
	m := newTestModel(&fakeController{}, clip)

	_, cmd := update(t, m, runes("y"))
	assert.Nil(t, cmd, "nothing to copy without a source")

	m = withSnapshot(t, m, playback.Snapshot{URL: "https://cdn.test/ns1.m3u8"})
	_, cmd = update(t, m, runes("y"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Equal(t, "https://cdn.test/ns1.m3u8", clip.text)
	assert.Contains(t, m.status, "copied")
}

func TestPlaceholderView(t *testing.T) {
	m := newTestModel(&fakeController{}, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, cmd := update(t, m, common.SnapshotMsg{Snapshot: playback.Snapshot{Placeholder: true}})
	assert.NotNil(t, cmd)
	assert.True(t, m.spinning)
	assert.Contains(t, m.View(), "Entering fullscreen")

	m = withSnapshot(t, m, playback.Snapshot{State: playback.StatePlaying, Fullscreen: true, Rate: 1, Volume: 1})
	view := m.View()
	assert.NotContains(t, view, "Entering fullscreen")
	assert.Contains(t, view, "fullscreen")
}

func TestDetailView(t *testing.T) {
	m := newTestModel(&fakeController{}, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m = withSnapshot(t, m, playback.Snapshot{
		State:       playback.StatePaused,
		URL:         "https://cdn.test/ns1.m3u8",
		CurrentTime: 65,
		Duration:    1440,
		Volume:      0.8,
		Rate:        1.5,
	})

	view := m.View()
	assert.Contains(t, view, "Night Shift")
	assert.Contains(t, view, "ORIGINAL")
	assert.Contains(t, view, "Episode 1 · Intake")
	assert.Contains(t, view, "paused")
	assert.Contains(t, view, "1:05 / 24:00")
	assert.Contains(t, view, "vol 80%")
	assert.Contains(t, view, "1.5x")

	m = withSnapshot(t, m, playback.Snapshot{State: playback.StateError, Muted: true, Rate: 1, Err: errors.New("manifest 404")})
	view = m.View()
	assert.Contains(t, view, "muted")
	assert.Contains(t, view, "manifest 404")
}

func TestHelpToggle(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 50})

	m, _ = update(t, m, runes("?"))
	assert.Contains(t, m.View(), "KEYBOARD SHORTCUTS")

	_, cmd := update(t, m, runes("k"))
	assert.Nil(t, cmd, "player keys are blocked while help is open")
	assert.Empty(t, ctrl.Calls())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.NotContains(t, m.View(), "KEYBOARD SHORTCUTS")
}

func TestBridgeCoalescesSnapshots(t *testing.T) {
	b := NewBridge()
	b.Publish(playback.Snapshot{CurrentTime: 1})
	b.Publish(playback.Snapshot{CurrentTime: 2})

	msg := b.Next()()
	assert.Equal(t, common.SnapshotMsg{Snapshot: playback.Snapshot{CurrentTime: 2}}, msg)

	b.Close()
	b.Close()
	assert.Nil(t, b.Next()())
}
