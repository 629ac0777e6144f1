package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ampora-ai/ampora-web/internal/chat"
	"github.com/ampora-ai/ampora-web/internal/models"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// manualScheduler runs everything on the test goroutine against a virtual clock. Callbacks posted
// from other goroutines wait in posted until the test runs them.
type manualScheduler struct {
	now    time.Duration
	timers []*manualTimer
	posted chan func()

	// ignoreStop makes Stop report success without preventing the callback, as if the timer had
	// already fired and queued its callback.
	ignoreStop bool
}

type manualTimer struct {
	sched   *manualScheduler
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

type gatewayCall struct {
	text  string
	token string
}

type fakeGateway struct {
	reply   models.Reply
	err     error
	release chan struct{}

	mu    sync.Mutex
	calls []gatewayCall
}

type recorder struct {
	processing []bool
	artifacts  []string
	reveals    []string
	turnIDs    []string
	messages   []models.Message
	locks      []bool
}

const tickDelay = 10 * time.Millisecond

func newManualScheduler() *manualScheduler {
	return &manualScheduler{posted: make(chan func(), 16)}
}

func (s *manualScheduler) Do(fn func()) bool {
	fn()
	return true
}

func (s *manualScheduler) Post(fn func()) {
	s.posted <- fn
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) chat.Timer {
	t := &manualTimer{sched: s, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	if t.sched.ignoreStop {
		return true
	}
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// advance moves the clock forward by d, firing due timers in deadline order.
func (s *manualScheduler) advance(d time.Duration) {
	end := s.now + d
	for {
		t := s.next(end)
		if t == nil {
			break
		}
		s.now = t.at
		t.fired = true
		t.fn()
	}
	s.now = end
}

// drain fires timers until none is pending.
func (s *manualScheduler) drain() {
	for {
		t := s.next(time.Duration(1 << 62))
		if t == nil {
			return
		}
		s.now = t.at
		t.fired = true
		t.fn()
	}
}

func (s *manualScheduler) next(end time.Duration) *manualTimer {
	var next *manualTimer
	for _, t := range s.timers {
		if t.fired || t.stopped || t.at > end {
			continue
		}
		if next == nil || t.at < next.at {
			next = t
		}
	}
	return next
}

func (s *manualScheduler) pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// awaitPosted runs the next callback posted from another goroutine.
func (s *manualScheduler) awaitPosted(t *testing.T) {
	t.Helper()

	select {
	case fn := <-s.posted:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no callback was posted")
	}
}

func (g *fakeGateway) SendMessage(ctx context.Context, text, authToken string) (models.Reply, error) {
	g.mu.Lock()
	g.calls = append(g.calls, gatewayCall{text: text, token: authToken})
	g.mu.Unlock()

	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return models.Reply{}, ctx.Err()
		}
	}
	return g.reply, g.err
}

func (g *fakeGateway) recordedCalls() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gatewayCall(nil), g.calls...)
}

func (r *recorder) OnProcessing(processing bool) {
	r.processing = append(r.processing, processing)
}

func (r *recorder) OnArtifact(url string) {
	r.artifacts = append(r.artifacts, url)
}

func (r *recorder) OnReveal(turnID, prefix string) {
	r.turnIDs = append(r.turnIDs, turnID)
	r.reveals = append(r.reveals, prefix)
}

func (r *recorder) OnMessage(msg models.Message) {
	r.messages = append(r.messages, msg)
}

func (r *recorder) OnInputLocked(locked bool) {
	r.locks = append(r.locks, locked)
}

func constantDelay() time.Duration {
	return tickDelay
}
