// Package eventloop provides a single-goroutine cooperative executor. Everything
// that mutates a playback session (commands, surface events, timer expiries)
// is funneled through one Loop so session state needs no locking.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justchokingaround/reel/internal/clock"
)

// ErrClosed is returned when work is submitted to a closed loop.
var ErrClosed = errors.New("event loop closed")

// Loop runs posted functions one at a time, in posting order, on a single
// goroutine. The queue is unbounded so handlers running on the loop may post
// follow-up work without blocking.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	clock  clock.Clock
	logger *slog.Logger
}

// New creates a loop and starts its goroutine.
func New(clk clock.Clock, logger *slog.Logger) *Loop {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loop{
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		clock:  clk,
		logger: logger,
	}
	go l.run()
	return l
}

// Clock returns the time source the loop schedules timers with.
func (l *Loop) Clock() clock.Clock {
	return l.clock
}

// Post queues fn to run on the loop. It returns false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish.
// It must not be called from the loop goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// The loop may have run fn right before stopping.
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc schedules fn to run on the loop after d. Stopping the returned
// timer guarantees fn does not run, even if the clock already fired and the
// call is sitting in the queue.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.inner = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.canceled.Load() {
				return
			}
			t.fired.Store(true)
			fn()
		})
	})
	return t
}

// Close stops the loop. Queued work that has not started is dropped.
// Close waits for the running function (if any) to return, so it must not be
// called from the loop goroutine.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	close(l.stop)
	<-l.done
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		select {
		case <-l.stop:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.closed || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.invoke(fn)
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop handler panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Timer is a cancellable handle for work scheduled with AfterFunc.
type Timer struct {
	inner    clock.Timer
	canceled atomic.Bool
	fired    atomic.Bool
}

// Stop cancels the timer. It returns false if the callback already ran or the
// timer was stopped before.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	if t.fired.Load() {
		return false
	}
	if !t.canceled.CompareAndSwap(false, true) {
		return false
	}
	t.inner.Stop()
	return true
}
