package clipboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	name  string
	args  []string
	stdin string
}

func newTestService(command string, primaryErr error) (*Service, *[]recordedRun) {
	var runs []recordedRun
	s := NewService(command, nil)
	s.writeAll = func(string) error { return primaryErr }
	s.run = func(ctx context.Context, name string, args []string, stdin string) error {
		runs = append(runs, recordedRun{name: name, args: args, stdin: stdin})
		return nil
	}
	s.goos = "linux"
	s.detectWSL = func() bool { return false }
	s.lookPath = func(cmd string) bool { return cmd == "xclip" }
	return s, &runs
}

func TestWriteUsesPrimaryClipboard(t *testing.T) {
	s, runs := newTestService("wl-copy", nil)

	require.NoError(t, s.Write(t.Context(), "https://cdn.test/a.m3u8"))
	assert.Empty(t, *runs)
}

func TestWriteFallsBackToConfiguredCommand(t *testing.T) {
	s, runs := newTestService(`wl-copy --type "text/plain"`, errors.New("no display"))

	require.NoError(t, s.Write(t.Context(), "https://cdn.test/a.m3u8"))
	require.Len(t, *runs, 1)
	assert.Equal(t, recordedRun{
		name:  "wl-copy",
		args:  []string{"--type", "text/plain"},
		stdin: "https://cdn.test/a.m3u8",
	}, (*runs)[0])
}

func TestWriteFallsBackToPlatformTool(t *testing.T) {
	s, runs := newTestService("", errors.New("no display"))

	require.NoError(t, s.Write(t.Context(), "url"))
	require.Len(t, *runs, 1)
	assert.Equal(t, "xclip", (*runs)[0].name)
	assert.Equal(t, []string{"-selection", "clipboard"}, (*runs)[0].args)
}

func TestWriteWithoutAnyClipboard(t *testing.T) {
	s, runs := newTestService("", errors.New("no display"))
	s.lookPath = func(string) bool { return false }

	err := s.Write(t.Context(), "url")
	assert.ErrorIs(t, err, ErrNoClipboard)
	assert.Empty(t, *runs)
}

func TestWriteReportsCommandFailure(t *testing.T) {
	s, _ := newTestService("pbcopy", errors.New("no display"))
	s.run = func(context.Context, string, []string, string) error { return errors.New("exit status 1") }

	assert.ErrorContains(t, s.Write(t.Context(), "url"), "clipboard command pbcopy failed")
}

func TestDefaultCommand(t *testing.T) {
	none := func(string) bool { return false }
	all := func(string) bool { return true }

	assert.Equal(t, []string{"clip.exe"}, defaultCommand("windows", false, none))
	assert.Equal(t, []string{"pbcopy"}, defaultCommand("darwin", false, none))
	assert.Equal(t, []string{"clip.exe"}, defaultCommand("linux", true, all))
	assert.Equal(t, []string{"wl-copy"}, defaultCommand("linux", false, all))
	assert.Nil(t, defaultCommand("linux", false, none))
	assert.Nil(t, defaultCommand("plan9", false, all))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"pbcopy", []string{"pbcopy"}},
		{"xclip  -selection clipboard", []string{"xclip", "-selection", "clipboard"}},
		{`sh -c "cat > /tmp/out"`, []string{"sh", "-c", "cat > /tmp/out"}},
		{`echo 'it"s'`, []string{"echo", `it"s`}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCommand(tt.in))
		})
	}
}
