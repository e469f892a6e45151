package help

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/justchokingaround/reel/internal/tui/styles"
)

// HelpContext represents which view the help is being shown in
type HelpContext int

const (
	GlobalContext HelpContext = iota
	PlayerContext
	EpisodesContext
)

// Shortcut represents a keyboard shortcut with its description
type Shortcut struct {
	Key         string
	Description string
	Context     []HelpContext
}

// Model represents the help panel state
type Model struct {
	context      HelpContext
	width        int
	height       int
	visible      bool
	title        string
	scrollOffset int
}

var allShortcuts = []Shortcut{
	// Global
	{Key: "?", Description: "Show/hide this help", Context: []HelpContext{GlobalContext}},
	{Key: "y", Description: "Copy stream URL", Context: []HelpContext{GlobalContext}},
	{Key: "q / ctrl+c", Description: "Quit", Context: []HelpContext{GlobalContext}},

	// Player
	{Key: "space / k", Description: "Play / pause", Context: []HelpContext{PlayerContext}},
	{Key: "← / h", Description: "Back 10 seconds", Context: []HelpContext{PlayerContext}},
	{Key: "→ / l", Description: "Forward 10 seconds", Context: []HelpContext{PlayerContext}},
	{Key: "↑ / +", Description: "Volume up", Context: []HelpContext{PlayerContext}},
	{Key: "↓ / -", Description: "Volume down", Context: []HelpContext{PlayerContext}},
	{Key: "m", Description: "Mute / unmute", Context: []HelpContext{PlayerContext}},
	{Key: "[ / ]", Description: "Slower / faster (subscribers)", Context: []HelpContext{PlayerContext}},
	{Key: "f", Description: "Toggle fullscreen", Context: []HelpContext{PlayerContext}},

	// Episodes
	{Key: "n", Description: "Next episode", Context: []HelpContext{EpisodesContext}},
	{Key: "p", Description: "Previous episode", Context: []HelpContext{EpisodesContext}},
}

// New creates a new help model
func New() Model {
	return Model{context: PlayerContext}
}

// SetTitle sets the title shown above the shortcuts
func (m *Model) SetTitle(title string) {
	m.title = title
}

// SetSize updates the area the panel is centered in
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Update handles scrolling while the panel is visible
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		if !m.visible {
			return m, nil
		}
		switch msg.String() {
		case "up", "k":
			if m.scrollOffset > 0 {
				m.scrollOffset--
			}
		case "down", "j":
			m.scrollOffset++
		case "home", "g":
			m.scrollOffset = 0
		case "end", "G":
			m.scrollOffset = 999999 // clamped in View
		}
	}
	return m, nil
}

// View renders the help panel
func (m Model) View() string {
	if !m.visible || m.width == 0 || m.height == 0 {
		return ""
	}

	var content strings.Builder
	if m.title != "" {
		content.WriteString(styles.SubtitleStyle.Render(m.title))
		content.WriteString("\n\n")
	}

	global := filterBySpecificContext(allShortcuts, GlobalContext)
	content.WriteString(styles.HeaderStyle.Render("General"))
	content.WriteString("\n")
	for _, sc := range global {
		content.WriteString(renderShortcutLine(sc))
		content.WriteString("\n")
	}

	if name := m.contextName(); name != "" {
		contextShortcuts := filterBySpecificContext(allShortcuts, m.context)
		// Episode navigation is shown alongside the player
		if m.context == PlayerContext {
			contextShortcuts = append(contextShortcuts, filterBySpecificContext(allShortcuts, EpisodesContext)...)
		}
		content.WriteString("\n")
		content.WriteString(styles.HeaderStyle.Render(name))
		content.WriteString("\n")
		for _, sc := range contextShortcuts {
			content.WriteString(renderShortcutLine(sc))
			content.WriteString("\n")
		}
	}

	lines := strings.Split(content.String(), "\n")

	availableHeight := m.height - 6
	if availableHeight < 10 {
		availableHeight = 10
	}
	offset := m.scrollOffset
	if offset > len(lines)-availableHeight {
		offset = len(lines) - availableHeight
	}
	if offset < 0 {
		offset = 0
	}
	end := min(offset+availableHeight, len(lines))

	scrollInfo := ""
	if len(lines) > availableHeight {
		scrollInfo = fmt.Sprintf(" (%d-%d/%d)", offset+1, end, len(lines))
	}

	boxWidth := 56
	if m.width < boxWidth+4 {
		boxWidth = max(m.width-4, 30)
	}

	titleBar := styles.TitleStyle.
		Width(boxWidth - 4).
		Align(lipgloss.Center).
		Render("KEYBOARD SHORTCUTS" + scrollInfo)

	box := styles.PopupStyle.
		Padding(0, 2).
		Width(boxWidth).
		Render(titleBar + "\n\n" + strings.Join(lines[offset:end], "\n"))

	if lipgloss.Height(box) >= m.height {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// SetContext sets the current help context
func (m *Model) SetContext(ctx HelpContext) {
	m.context = ctx
}

// Toggle toggles the visibility of the help panel
func (m *Model) Toggle() {
	if m.visible {
		m.Hide()
	} else {
		m.Show()
	}
}

// Show shows the help panel
func (m *Model) Show() {
	m.visible = true
	m.scrollOffset = 0
}

// Hide hides the help panel
func (m *Model) Hide() {
	m.visible = false
	m.scrollOffset = 0
}

// IsVisible returns whether the help panel is visible
func (m Model) IsVisible() bool {
	return m.visible
}

func (m Model) contextName() string {
	switch m.context {
	case PlayerContext:
		return "Player"
	case EpisodesContext:
		return "Episodes"
	default:
		return ""
	}
}

func renderShortcutLine(sc Shortcut) string {
	keyStyle := lipgloss.NewStyle().
		Foreground(styles.OxocarbonPurple).
		Bold(true).
		Width(14)

	descStyle := lipgloss.NewStyle().
		Foreground(styles.OxocarbonBase05)

	return "  " + keyStyle.Render(sc.Key) + descStyle.Render(sc.Description)
}

// filterBySpecificContext returns shortcuts that list ctx
func filterBySpecificContext(shortcuts []Shortcut, ctx HelpContext) []Shortcut {
	var filtered []Shortcut
	for _, sc := range shortcuts {
		for _, c := range sc.Context {
			if c == ctx {
				filtered = append(filtered, sc)
				break
			}
		}
	}
	return filtered
}
