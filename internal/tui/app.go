package tui

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justchokingaround/reel/internal/playback"
	"github.com/justchokingaround/reel/internal/tui/common"
)

// Run is the entry point for the TUI. It blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

// Bridge carries session snapshots into the program. Publish runs on the
// session loop and never blocks it; intermediate snapshots are coalesced so
// the view only ever sees the latest one.
type Bridge struct {
	mu     sync.Mutex
	latest playback.Snapshot
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewBridge creates an empty bridge
func NewBridge() *Bridge {
	return &Bridge{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Publish records snap as the latest snapshot
func (b *Bridge) Publish(snap playback.Snapshot) {
	b.mu.Lock()
	b.latest = snap
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Next waits for the next published snapshot
func (b *Bridge) Next() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.notify:
		case <-b.done:
			return nil
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		return common.SnapshotMsg{Snapshot: b.latest}
	}
}

// Close releases any pending Next
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}
