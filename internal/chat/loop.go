package chat

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Scheduler runs the callbacks that mutate conversation state, one at a time and in arrival order.
// Implementations must never run two callbacks concurrently.
type Scheduler interface {
	// Do runs fn on the scheduler and waits for it to return. It reports false if fn was never run
	// because the scheduler has stopped. Do must not be called from inside a scheduled callback.
	Do(fn func()) bool
	// Post queues fn to run on the scheduler without waiting for it.
	Post(fn func())
	// AfterFunc queues fn to run on the scheduler once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from being queued. It returns false if the timer already fired.
	Stop() bool
}

// ErrStopped is returned by controller operations once the event loop is no longer running.
var ErrStopped = errors.New("event loop stopped")

const eventQueueSize = 64

// EventLoop is a Scheduler backed by a single goroutine. Timers fire on their own goroutines and
// hand their callbacks to the loop, so every callback observes state changed by earlier ones.
type EventLoop struct {
	events chan func()
	stop   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
}

// NewEventLoop creates a loop. Callbacks queue up until Run is called.
func NewEventLoop() *EventLoop {
	return &EventLoop{
		events: make(chan func(), eventQueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run processes callbacks until ctx is done or Close is called. Callbacks still queued at that
// point are dropped.
func (l *EventLoop) Run(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case fn := <-l.events:
			fn()
		}
	}
}

// Close stops the loop. It is safe to call more than once.
func (l *EventLoop) Close() {
	l.closeOnce.Do(func() {
		close(l.stop)
	})
}

// Done is closed once Run has returned.
func (l *EventLoop) Done() <-chan struct{} {
	return l.done
}

// Post implements Scheduler. Callbacks posted after the loop stopped are dropped.
func (l *EventLoop) Post(fn func()) {
	select {
	case <-l.stop:
		return
	case <-l.done:
		return
	default:
	}

	select {
	case l.events <- fn:
	case <-l.stop:
	case <-l.done:
	}
}

// Do implements Scheduler.
func (l *EventLoop) Do(fn func()) bool {
	ran := make(chan struct{})
	l.Post(func() {
		defer close(ran)
		fn()
	})

	select {
	case <-ran:
		return true
	case <-l.done:
		// fn may have been the last callback processed before the loop returned.
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// AfterFunc implements Scheduler.
func (l *EventLoop) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		l.Post(fn)
	})
}
