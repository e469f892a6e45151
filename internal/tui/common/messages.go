package common

import (
	"github.com/justchokingaround/reel/internal/playback"
)

// Custom tea.Msg types shared by the TUI and its bridge to the session.

// SnapshotMsg carries the latest session snapshot.
type SnapshotMsg struct {
	Snapshot playback.Snapshot
}

// PlaybackErrorMsg reports a fatal playback error from the session.
type PlaybackErrorMsg struct {
	Err error
}

// CommandResultMsg is the outcome of a session command run in the background.
type CommandResultMsg struct {
	Action string
	Err    error
}

// EpisodeLoadedMsg is sent after an episode switch finished.
type EpisodeLoadedMsg struct {
	Index int
	Err   error
}

// ClipboardResultMsg is sent after copying to the clipboard.
type ClipboardResultMsg struct {
	Err error
}

// ClearStatusMsg clears an expired status message.
type ClearStatusMsg struct{}
