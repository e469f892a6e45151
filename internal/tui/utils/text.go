package utils

import (
	"fmt"
	"math"
	"strings"

	"github.com/mattn/go-runewidth"
)

// TruncateToLines wraps text and keeps at most maxLines lines. The last kept
// line ends in "..." when text was cut.
func TruncateToLines(text string, maxLines int, maxWidth int) string {
	lines := WrapText(text, maxWidth)
	if maxLines <= 0 {
		return ""
	}
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}

	kept := lines[:maxLines]
	last := kept[maxLines-1]
	if runewidth.StringWidth(last) > maxWidth-3 {
		last = runewidth.Truncate(last, maxWidth-3, "")
	}
	last += "..."
	kept[maxLines-1] = last

	return strings.Join(kept, "\n")
}

// WrapText wraps text at word boundaries to fit within maxWidth.
func WrapText(text string, maxWidth int) []string {
	var (
		lines []string
		line  strings.Builder
		width int
	)

	for _, word := range strings.Fields(text) {
		w := runewidth.StringWidth(word)
		switch {
		case width == 0:
			line.WriteString(word)
			width = w
		case width+1+w <= maxWidth:
			line.WriteByte(' ')
			line.WriteString(word)
			width += 1 + w
		default:
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(word)
			width = w
		}
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

// TruncateWithWidth cuts text to maxWidth display cells, ending in "...".
func TruncateWithWidth(text string, maxWidth int) string {
	return runewidth.Truncate(text, maxWidth, "...")
}

// FormatTimestamp renders seconds as m:ss, or h:mm:ss past the hour.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
