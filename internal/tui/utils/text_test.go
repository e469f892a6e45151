package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"the quick", "brown fox", "jumps"}, WrapText("  the quick brown fox jumps ", 10))
	assert.Nil(t, WrapText("   ", 10))
	assert.Equal(t, []string{"supercalifragilistic"}, WrapText("supercalifragilistic", 5))
}

func TestTruncateToLines(t *testing.T) {
	text := "one two three four five six seven eight"

	assert.Equal(t, "one two\nthree f...", TruncateToLines(text, 2, 10))
	assert.Equal(t, "one two three four five six seven eight", TruncateToLines(text, 1, 80))
	assert.Equal(t, "", TruncateToLines(text, 0, 10))
}

func TestTruncateWithWidth(t *testing.T) {
	assert.Equal(t, "short", TruncateWithWidth("short", 10))
	assert.Equal(t, "a long ...", TruncateWithWidth("a long episode title", 10))
	// wide runes count as two cells
	assert.Equal(t, "日本...", TruncateWithWidth("日本語のタイトル", 8))
}

func TestFormatTimestamp(t *testing.T) {
	tests := map[float64]string{
		0:      "0:00",
		9.9:    "0:09",
		65:     "1:05",
		3599:   "59:59",
		3600:   "1:00:00",
		5025.4: "1:23:45",
		-3:     "0:00",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatTimestamp(in), "%v", in)
	}
	assert.Equal(t, "0:00", FormatTimestamp(math.NaN()))
	assert.Equal(t, "0:00", FormatTimestamp(math.Inf(1)))
}
