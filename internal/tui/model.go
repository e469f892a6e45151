package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justchokingaround/reel/internal/catalog"
	"github.com/justchokingaround/reel/internal/playback"
	"github.com/justchokingaround/reel/internal/tui/common"
	"github.com/justchokingaround/reel/internal/tui/components/help"
	"github.com/justchokingaround/reel/internal/tui/styles"
	"github.com/justchokingaround/reel/internal/tui/utils"
)

const (
	seekStep     = 10.0
	volumeStep   = 0.1
	statusExpiry = 2500 * time.Millisecond
)

// Controller is the part of a playback session the detail view drives.
// *playback.Session implements it.
type Controller interface {
	TogglePlay(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, volume float64) error
	ToggleMute(ctx context.Context) error
	ChangePlaybackRate(ctx context.Context, rate float64) error
	ToggleFullscreen(ctx context.Context) error
	Load(ctx context.Context, src playback.Source) error
}

// SourceFunc resolves the stream for an episode picked in the view.
type SourceFunc func(ctx context.Context, ep catalog.Episode) (playback.Source, error)

// ClipboardWriter copies text to the system clipboard
type ClipboardWriter interface {
	Write(ctx context.Context, text string) error
}

// Options configures the detail view
type Options struct {
	Content    *catalog.Content
	Episode    int // index into Content.SortedEpisodes()
	Controller Controller
	Resolve    SourceFunc
	Clipboard  ClipboardWriter
	Bridge     *Bridge
	Logger     *slog.Logger
}

// Model is the content detail view hosting one playback session.
type Model struct {
	content    *catalog.Content
	episodes   []catalog.Episode
	current    int
	// last episode the user picked; equals current when no switch is running
	target     int
	controller Controller
	resolve    SourceFunc
	clipboard  ClipboardWriter
	bridge     *Bridge
	logger     *slog.Logger

	keys     KeyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model

	snap       playback.Snapshot
	spinning   bool
	switching  bool
	status     string
	statusErr  bool
	statusTime time.Time
	width      int
	height     int
}

// New creates the detail view model
func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.OxocarbonPurple)

	h := help.New()
	var episodes []catalog.Episode
	if opts.Content != nil {
		h.SetTitle(opts.Content.Title)
		episodes = opts.Content.SortedEpisodes()
	}
	if len(episodes) == 0 {
		h.SetContext(help.GlobalContext)
	}

	return Model{
		content:    opts.Content,
		episodes:   episodes,
		current:    opts.Episode,
		target:     opts.Episode,
		controller: opts.Controller,
		resolve:    opts.Resolve,
		clipboard:  opts.Clipboard,
		bridge:     opts.Bridge,
		logger:     logger,
		keys:       DefaultKeyMap(),
		help:       h,
		spinner:    s,
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		snap:       playback.Snapshot{Volume: 1, Rate: 1},
	}
}

func (m Model) Init() tea.Cmd {
	if m.bridge == nil {
		return nil
	}
	return m.bridge.Next()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.SetSize(msg.Width, msg.Height)
		m.progress.Width = max(10, min(60, msg.Width-24))
		return m, nil

	case common.SnapshotMsg:
		return m.applySnapshot(msg.Snapshot)

	case spinner.TickMsg:
		if !m.snap.Placeholder {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case common.CommandResultMsg:
		if msg.Err != nil {
			m.logger.Warn("playback command failed", "action", msg.Action, "error", msg.Err)
			cmd := m.setStatus(fmt.Sprintf("%s failed: %v", msg.Action, msg.Err), true)
			return m, cmd
		}
		return m, nil

	case common.EpisodeLoadedMsg:
		if msg.Err != nil {
			m.logger.Error("episode switch failed", "index", msg.Index, "error", msg.Err)
		} else {
			m.current = msg.Index
		}
		// Another episode was picked while this one loaded: the last pick wins.
		if m.target != msg.Index {
			return m, m.loadEpisode(m.target)
		}
		m.switching = false
		if msg.Err != nil {
			m.target = m.current
			cmd := m.setStatus(fmt.Sprintf("Could not load episode: %v", msg.Err), true)
			return m, cmd
		}
		cmd := m.setStatus(fmt.Sprintf("Episode %d", m.episodes[msg.Index].Number), false)
		return m, cmd

	case common.ClipboardResultMsg:
		if msg.Err != nil {
			cmd := m.setStatus(fmt.Sprintf("Copy failed: %v", msg.Err), true)
			return m, cmd
		}
		cmd := m.setStatus("📋 Stream URL copied to clipboard", false)
		return m, cmd

	case common.ClearStatusMsg:
		if time.Since(m.statusTime) >= statusExpiry {
			m.status = ""
			m.statusErr = false
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) applySnapshot(snap playback.Snapshot) (tea.Model, tea.Cmd) {
	prevErr := m.snap.Err
	m.snap = snap

	cmds := []tea.Cmd{}
	if m.bridge != nil {
		cmds = append(cmds, m.bridge.Next())
	}
	if snap.Placeholder && !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	if snap.Err != nil && !errors.Is(snap.Err, prevErr) {
		m.logger.Error("playback failed", "session", snap.ID, "error", snap.Err)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Help) {
		m.help.Toggle()
		return m, nil
	}

	if m.help.IsVisible() {
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if msg.String() == "esc" {
			m.help.Hide()
			return m, nil
		}
		var cmd tea.Cmd
		m.help, cmd = m.help.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.TogglePlay):
		return m, m.command("play/pause", m.controller.TogglePlay)

	case key.Matches(msg, m.keys.Back):
		target := math.Max(0, m.snap.CurrentTime-seekStep)
		return m, m.command("seek", func(ctx context.Context) error {
			return m.controller.Seek(ctx, target)
		})

	case key.Matches(msg, m.keys.Forward):
		target := m.snap.CurrentTime + seekStep
		return m, m.command("seek", func(ctx context.Context) error {
			return m.controller.Seek(ctx, target)
		})

	case key.Matches(msg, m.keys.VolumeUp):
		return m, m.volume(m.snap.Volume + volumeStep)

	case key.Matches(msg, m.keys.VolumeDown):
		return m, m.volume(m.snap.Volume - volumeStep)

	case key.Matches(msg, m.keys.Mute):
		return m, m.command("mute", m.controller.ToggleMute)

	case key.Matches(msg, m.keys.Slower):
		return m.stepRate(-1)

	case key.Matches(msg, m.keys.Faster):
		return m.stepRate(1)

	case key.Matches(msg, m.keys.Fullscreen):
		return m, m.command("fullscreen", m.controller.ToggleFullscreen)

	case key.Matches(msg, m.keys.Next):
		return m.switchEpisode(m.target + 1)

	case key.Matches(msg, m.keys.Prev):
		return m.switchEpisode(m.target - 1)

	case key.Matches(msg, m.keys.CopyURL):
		return m, m.copyURL()
	}

	return m, nil
}

// command runs fn off the update loop and reports the outcome
func (m Model) command(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return common.CommandResultMsg{Action: action, Err: fn(context.Background())}
	}
}

func (m Model) volume(v float64) tea.Cmd {
	v = math.Round(math.Max(0, math.Min(1, v))*100) / 100
	return m.command("volume", func(ctx context.Context) error {
		return m.controller.SetVolume(ctx, v)
	})
}

// stepRate moves to the neighbouring allowed rate
func (m Model) stepRate(dir int) (tea.Model, tea.Cmd) {
	if !m.snap.Profile.RateControl {
		cmd := m.setStatus("Playback speed needs a subscription", true)
		return m, cmd
	}
	rates := m.snap.Profile.Rates
	i := slices.Index(rates, m.snap.Rate)
	if i < 0 {
		i = slices.Index(rates, 1)
	}
	next := i + dir
	if i < 0 || next < 0 || next >= len(rates) {
		return m, nil
	}
	rate := rates[next]
	return m, m.command("speed", func(ctx context.Context) error {
		return m.controller.ChangePlaybackRate(ctx, rate)
	})
}

// switchEpisode loads one episode at a time. A pick made while a load is
// running is loaded once it finishes.
func (m Model) switchEpisode(index int) (tea.Model, tea.Cmd) {
	if index < 0 || index >= len(m.episodes) || m.resolve == nil {
		return m, nil
	}
	m.target = index
	if m.switching {
		return m, nil
	}
	m.switching = true
	return m, m.loadEpisode(index)
}

func (m Model) loadEpisode(index int) tea.Cmd {
	ep := m.episodes[index]
	resolve, controller := m.resolve, m.controller
	return func() tea.Msg {
		ctx := context.Background()
		src, err := resolve(ctx, ep)
		if err == nil {
			err = controller.Load(ctx, src)
		}
		return common.EpisodeLoadedMsg{Index: index, Err: err}
	}
}

func (m Model) copyURL() tea.Cmd {
	if m.clipboard == nil || m.snap.URL == "" {
		return nil
	}
	url, clip := m.snap.URL, m.clipboard
	return func() tea.Msg {
		return common.ClipboardResultMsg{Err: clip.Write(context.Background(), url)}
	}
}

func (m *Model) setStatus(status string, isErr bool) tea.Cmd {
	m.status = status
	m.statusErr = isErr
	m.statusTime = time.Now()
	return tea.Tick(statusExpiry, func(time.Time) tea.Msg {
		return common.ClearStatusMsg{}
	})
}

func (m Model) View() string {
	if m.help.IsVisible() {
		return m.help.View()
	}
	if m.snap.Placeholder {
		return m.renderPlaceholder()
	}

	width := m.width
	if width <= 0 {
		width = 80
	}
	inner := max(20, width-8)

	var b strings.Builder
	b.WriteString(m.renderHeader(inner))
	b.WriteString("\n")
	b.WriteString(m.renderPlayer(inner))
	if eps := m.renderEpisodes(inner); eps != "" {
		b.WriteString("\n")
		b.WriteString(eps)
	}
	if m.status != "" {
		b.WriteString("\n\n")
		if m.statusErr {
			b.WriteString(styles.ErrorStyle.Render(m.status))
		} else {
			b.WriteString(styles.MetadataStyle.Render(m.status))
		}
	}
	b.WriteString("\n\n")
	b.WriteString(styles.HelpStyle.Render("space play/pause • ←/→ seek • ↑/↓ volume • f fullscreen • ? help • q quit"))

	return styles.AppStyle.Render(b.String())
}

func (m Model) renderHeader(width int) string {
	if m.content == nil {
		return styles.TitleStyle.Render("reel")
	}

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render(utils.TruncateWithWidth(m.content.Title, width-2)))
	b.WriteString("\n\n")

	var badges []string
	if m.content.IsOriginal {
		badges = append(badges, styles.OriginalBadgeStyle.Render("ORIGINAL"))
	}
	for _, tag := range m.content.Tags {
		badges = append(badges, styles.TagBadgeStyle.Render(tag))
	}
	if len(badges) > 0 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, badges...))
		b.WriteString("\n")
	}

	if m.content.Description != "" {
		b.WriteString(styles.SynopsisStyle.Render(utils.TruncateToLines(m.content.Description, 3, width)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderPlayer(width int) string {
	snap := m.snap

	var b strings.Builder
	b.WriteString(styles.HeaderStyle.Render("Now Playing"))
	b.WriteString("\n")

	if ep, ok := m.currentEpisode(); ok {
		line := fmt.Sprintf("Episode %d · %s", ep.Number, ep.Title)
		b.WriteString(styles.SubtitleStyle.Render(utils.TruncateWithWidth(line, width)))
		b.WriteString("\n")
	}

	state := snap.State.String()
	if snap.Seeking {
		state = "seeking"
	}
	b.WriteString(styles.FormatStateBadge(state))
	b.WriteString("  ")
	b.WriteString(m.progress.ViewAs(snap.Progress()))
	b.WriteString("  ")
	b.WriteString(styles.MetadataStyle.Render(fmt.Sprintf("%s / %s",
		utils.FormatTimestamp(snap.CurrentTime), utils.FormatTimestamp(snap.Duration))))
	b.WriteString("\n")

	vol := fmt.Sprintf("vol %d%%", int(math.Round(snap.Volume*100)))
	if snap.Muted {
		vol = "muted"
	}
	details := []string{vol, fmt.Sprintf("%gx", snap.Rate)}
	if snap.Fullscreen {
		details = append(details, "fullscreen")
	}
	b.WriteString(styles.MetadataStyle.Render(strings.Join(details, " • ")))

	if snap.URL != "" {
		b.WriteString("\n")
		b.WriteString(styles.URLStyle.Render(utils.TruncateWithWidth(snap.URL, width)))
	}
	if snap.Err != nil {
		b.WriteString("\n")
		b.WriteString(styles.ErrorStyle.Render(utils.TruncateToLines("Error: "+snap.Err.Error(), 2, width)))
	}
	return b.String()
}

func (m Model) renderEpisodes(width int) string {
	if len(m.episodes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.HeaderStyle.Render("Episodes"))
	for i, ep := range m.episodes {
		b.WriteString("\n")
		line := utils.TruncateWithWidth(fmt.Sprintf("%2d. %s", ep.Number, ep.Title), width-2)
		if i == m.current {
			b.WriteString(styles.SubtitleStyle.Render("▶ " + line))
		} else {
			b.WriteString(styles.MetadataStyle.Render("  " + line))
		}
	}
	return b.String()
}

func (m Model) renderPlaceholder() string {
	popup := styles.PopupStyle.Render(fmt.Sprintf("%s Entering fullscreen...", m.spinner.View()))
	if m.width == 0 || m.height == 0 {
		return popup
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, popup)
}

func (m Model) currentEpisode() (catalog.Episode, bool) {
	if m.current < 0 || m.current >= len(m.episodes) {
		return catalog.Episode{}, false
	}
	return m.episodes[m.current], true
}
