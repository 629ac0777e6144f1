package chat

import (
	"math/rand/v2"
	"time"
)

// Default bounds of the per-character reveal delay. The lower bound is inclusive, the upper bound
// exclusive.
const (
	DefaultMinDelay = 20 * time.Millisecond
	DefaultMaxDelay = 60 * time.Millisecond
)

// DelayFunc returns the pause before the next character is revealed.
type DelayFunc func() time.Duration

// RandomDelay returns a DelayFunc drawing uniformly from [minDelay, maxDelay). If maxDelay is not
// greater than minDelay, the delay is always minDelay.
func RandomDelay(minDelay, maxDelay time.Duration) DelayFunc {
	if maxDelay <= minDelay {
		return func() time.Duration { return minDelay }
	}
	return func() time.Duration {
		return minDelay + rand.N(maxDelay-minDelay)
	}
}

// RenderState is the phase of a Renderer.
type RenderState int

const (
	// StateIdle means no reply is being revealed.
	StateIdle RenderState = iota
	// StateRevealing means characters are still being disclosed on a timer.
	StateRevealing
	// StateFinalizing is entered briefly while the finished text is handed over.
	StateFinalizing
)

func (s RenderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRevealing:
		return "revealing"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Renderer turns a complete reply into a timed sequence of growing prefixes, one character per tick.
// All methods must be called on the Scheduler the renderer was created with.
type Renderer struct {
	sched Scheduler
	delay DelayFunc

	onProgress func(prefix string)
	onFinish   func(text string)

	state    RenderState
	source   []rune
	revealed int
	canceled bool

	timer Timer
	// seq identifies the current reveal. Ticks scheduled for an older value are ignored.
	seq uint64
}

// NewRenderer creates an idle renderer. onProgress receives every revealed prefix. onFinish receives
// the full text once the reveal completes without cancellation; it is responsible for appending the
// text to the conversation log.
func NewRenderer(sched Scheduler, delay DelayFunc, onProgress, onFinish func(string)) *Renderer {
	if delay == nil {
		delay = RandomDelay(DefaultMinDelay, DefaultMaxDelay)
	}
	if onProgress == nil {
		onProgress = func(string) {}
	}
	if onFinish == nil {
		onFinish = func(string) {}
	}
	return &Renderer{
		sched:      sched,
		delay:      delay,
		onProgress: onProgress,
		onFinish:   onFinish,
	}
}

// Start begins revealing source. A reveal already in progress is abandoned without being finished.
func (r *Renderer) Start(source string) {
	r.stopTimer()
	r.seq++

	r.state = StateRevealing
	r.source = []rune(source)
	r.revealed = 0
	r.canceled = false

	r.advance()
}

// Cancel stops the current reveal and returns the prefix revealed so far. It returns an empty string
// when nothing is being revealed. No character is revealed after Cancel returns, even when the
// pending tick has already fired and is waiting on the scheduler.
func (r *Renderer) Cancel() string {
	if r.state != StateRevealing {
		return ""
	}
	r.canceled = true
	r.stopTimer()
	r.seq++

	prefix := string(r.source[:r.revealed])
	r.reset()
	return prefix
}

// State returns the current phase.
func (r *Renderer) State() RenderState {
	return r.state
}

// Revealed returns the prefix disclosed so far.
func (r *Renderer) Revealed() string {
	return string(r.source[:r.revealed])
}

// RevealedLen returns the number of characters disclosed so far.
func (r *Renderer) RevealedLen() int {
	return r.revealed
}

// Len returns the number of characters of the reply being revealed.
func (r *Renderer) Len() int {
	return len(r.source)
}

func (r *Renderer) advance() {
	if r.revealed < len(r.source) && !r.canceled {
		r.schedule()
		return
	}
	r.finalize()
}

func (r *Renderer) schedule() {
	r.stopTimer()
	seq := r.seq
	r.timer = r.sched.AfterFunc(r.delay(), func() {
		r.tick(seq)
	})
}

func (r *Renderer) tick(seq uint64) {
	if seq != r.seq || r.state != StateRevealing {
		return
	}
	r.timer = nil

	r.revealed++
	r.onProgress(string(r.source[:r.revealed]))
	r.advance()
}

func (r *Renderer) finalize() {
	r.state = StateFinalizing
	text := string(r.source)
	r.reset()
	r.onFinish(text)
}

func (r *Renderer) reset() {
	r.state = StateIdle
	r.source = nil
	r.revealed = 0
	r.timer = nil
}

func (r *Renderer) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
