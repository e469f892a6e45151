package styles

import "github.com/charmbracelet/lipgloss"

// Oxocarbon color scheme - IBM Carbon inspired
var (
	// Base colors
	OxocarbonBlack  = lipgloss.Color("#161616")
	OxocarbonBase00 = lipgloss.Color("#262626") // UI elements (lighter than bg)
	OxocarbonBase01 = lipgloss.Color("#393939") // Borders, secondary UI
	OxocarbonBase02 = lipgloss.Color("#525252")
	OxocarbonBase03 = lipgloss.Color("#767676") // Disabled/muted elements
	OxocarbonBase04 = lipgloss.Color("#dde1e6") // Secondary foreground
	OxocarbonBase05 = lipgloss.Color("#f2f4f8") // Primary foreground
	OxocarbonWhite  = lipgloss.Color("#ffffff")

	// Accent colors
	OxocarbonTeal    = lipgloss.Color("#3ddbd9")
	OxocarbonBlue    = lipgloss.Color("#78a9ff")
	OxocarbonPink    = lipgloss.Color("#ee5396")
	OxocarbonRed     = lipgloss.Color("#ff5252")
	OxocarbonCyan    = lipgloss.Color("#33b1ff")
	OxocarbonGreen   = lipgloss.Color("#42be65")
	OxocarbonPurple  = lipgloss.Color("#be95ff") // main accent
	OxocarbonMauve   = lipgloss.Color("#d1aaff")
	OxocarbonYellow  = lipgloss.Color("#f1c21b")
	OxocarbonMagenta = lipgloss.Color("#ff7eb6")
)

var (
	AppStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(OxocarbonBase01)

	TitleStyle = lipgloss.NewStyle().
			Foreground(OxocarbonWhite).
			Background(OxocarbonPurple).
			Padding(0, 1).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(OxocarbonMauve).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(OxocarbonBase03).
			Italic(true)

	MetadataStyle = lipgloss.NewStyle().
			Foreground(OxocarbonBase04)

	// Stream URL shown under the controls
	URLStyle = lipgloss.NewStyle().
			Foreground(OxocarbonCyan).
			Italic(true)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(OxocarbonPurple).
			Bold(true).
			Underline(true).
			MarginBottom(1).
			MarginTop(1)

	StateBadgeStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true)

	// Pill-shaped tags
	TagBadgeStyle = lipgloss.NewStyle().
			Foreground(OxocarbonBase05).
			Background(OxocarbonBase01).
			Padding(0, 1).
			MarginRight(1)

	OriginalBadgeStyle = lipgloss.NewStyle().
				Foreground(OxocarbonBlack).
				Background(OxocarbonTeal).
				Padding(0, 1).
				MarginRight(1).
				Bold(true)

	SynopsisStyle = lipgloss.NewStyle().
			Foreground(OxocarbonBase04).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(OxocarbonRed).
			Bold(true)

	FooterStyle = lipgloss.NewStyle().
			Foreground(OxocarbonBase05).
			Background(OxocarbonBase01).
			Padding(0, 1)

	PopupStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(OxocarbonPurple).
			Padding(1, 2).
			Background(OxocarbonBase00).
			Foreground(OxocarbonBase05)
)

// StateColor returns the color for a playback state name
func StateColor(state string) lipgloss.Color {
	switch state {
	case "playing":
		return OxocarbonGreen
	case "paused":
		return OxocarbonPink
	case "ended":
		return OxocarbonBlue
	case "loading", "ready":
		return OxocarbonYellow
	case "error":
		return OxocarbonRed
	default:
		return OxocarbonBase03
	}
}

// FormatStateBadge renders a colored badge for a playback state
func FormatStateBadge(state string) string {
	return StateBadgeStyle.Foreground(StateColor(state)).Render(state)
}
