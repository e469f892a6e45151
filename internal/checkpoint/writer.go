package checkpoint

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Writer serializes checkpoint writes: at most one write per key is in flight,
// and while it is, newer writes for that key collapse into a single pending
// slot holding the most recent one. Submit never blocks the caller.
type Writer struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
	onError func(*WriteError)

	mu     sync.Mutex
	slots  map[Key]*slot
	closed bool
	wg     sync.WaitGroup
}

type write struct {
	owner string
	cp    Checkpoint
}

type slot struct {
	owner   string // owner of the in-flight write
	cancel  context.CancelFunc
	pending *write
}

// WriterOptions configures a Writer
type WriterOptions struct {
	// Timeout bounds a single store write. Zero means 5s.
	Timeout time.Duration
	Logger  *slog.Logger
	// OnError is called for every failed write, after it is logged.
	OnError func(*WriteError)
}

// NewWriter creates a writer on top of store
func NewWriter(store Store, opts WriterOptions) *Writer {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Writer{
		store:   store,
		logger:  opts.Logger.With("component", "checkpoint"),
		timeout: opts.Timeout,
		onError: opts.OnError,
		slots:   make(map[Key]*slot),
	}
}

// Submit queues cp on behalf of owner. A pending write with a newer WatchedAt
// is kept over an older incoming one.
func (w *Writer) Submit(owner string, cp Checkpoint) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	if s, ok := w.slots[cp.Key]; ok {
		if s.pending == nil || !cp.WatchedAt.Before(s.pending.cp.WatchedAt) {
			s.pending = &write{owner: owner, cp: cp}
		}
		return
	}

	w.start(&write{owner: owner, cp: cp})
}

// start must be called with the lock held
func (w *Writer) start(wr *write) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	s, ok := w.slots[wr.cp.Key]
	if !ok {
		s = &slot{}
		w.slots[wr.cp.Key] = s
	}
	s.owner = wr.owner
	s.cancel = cancel

	w.wg.Add(1)
	go w.run(ctx, cancel, wr)
}

func (w *Writer) run(ctx context.Context, cancel context.CancelFunc, wr *write) {
	defer w.wg.Done()

	err := w.store.Save(ctx, wr.cp)
	cancel()
	if err != nil {
		werr := &WriteError{Key: wr.cp.Key, Err: err}
		w.logger.Warn("checkpoint write dropped", "key", wr.cp.Key.String(), "position", wr.cp.LastPosition, "error", err)
		if w.onError != nil {
			w.onError(werr)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.slots[wr.cp.Key]
	if s == nil || s.pending == nil || w.closed {
		delete(w.slots, wr.cp.Key)
		return
	}
	next := s.pending
	s.pending = nil
	w.start(next)
}

// Discard drops owner's pending write for key and cancels owner's in-flight
// write. Writes submitted by other owners are untouched.
func (w *Writer) Discard(owner string, key Key) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.slots[key]; ok {
		s.discard(owner)
	}
}

// DiscardOwner is Discard across every key, used when owner goes away.
func (w *Writer) DiscardOwner(owner string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range w.slots {
		s.discard(owner)
	}
}

// discard must be called with the writer lock held
func (s *slot) discard(owner string) {
	if s.pending != nil && s.pending.owner == owner {
		s.pending = nil
	}
	if s.owner == owner && s.cancel != nil {
		s.cancel()
	}
}

// InFlight reports whether a write for key is running.
func (w *Writer) InFlight(key Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.slots[key]
	return ok
}

// Flush waits until no write is in flight.
func (w *Writer) Flush() {
	w.wg.Wait()
}

// Close drops pending writes, stops accepting new ones and waits for the
// in-flight ones to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	for _, s := range w.slots {
		s.pending = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
}
