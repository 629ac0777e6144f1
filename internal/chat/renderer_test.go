package chat_test

import (
	"testing"
	"time"

	"github.com/ampora-ai/ampora-web/internal/chat"
)

func TestRendererRevealsOneCharacterPerTick(t *testing.T) {
	sched := newManualScheduler()

	var progress []string
	var finished []string
	r := chat.NewRenderer(sched, constantDelay,
		func(prefix string) { progress = append(progress, prefix) },
		func(text string) { finished = append(finished, text) },
	)

	source := "héllo 👋"
	r.Start(source)

	if r.State() != chat.StateRevealing {
		t.Fatalf("State() = %v, want %v", r.State(), chat.StateRevealing)
	}
	if r.RevealedLen() != 0 {
		t.Fatalf("RevealedLen() = %d before the first tick, want 0", r.RevealedLen())
	}

	runes := []rune(source)
	for i := 1; i <= len(runes); i++ {
		sched.advance(tickDelay)
		if len(progress) != i {
			t.Fatalf("after %d ticks got %d progress updates", i, len(progress))
		}
		if want := string(runes[:i]); progress[i-1] != want {
			t.Errorf("progress[%d] = %q, want %q", i-1, progress[i-1], want)
		}
	}

	if len(finished) != 1 || finished[0] != source {
		t.Fatalf("finished = %q, want [%q]", finished, source)
	}
	if r.State() != chat.StateIdle {
		t.Errorf("State() = %v after completion, want %v", r.State(), chat.StateIdle)
	}
	if sched.pending() != 0 {
		t.Errorf("pending timers = %d after completion, want 0", sched.pending())
	}
}

func TestRendererPrefixNeverShrinksOrSkips(t *testing.T) {
	sched := newManualScheduler()

	var lengths []int
	r := chat.NewRenderer(sched, chat.RandomDelay(chat.DefaultMinDelay, chat.DefaultMaxDelay),
		func(prefix string) { lengths = append(lengths, len([]rune(prefix))) },
		nil,
	)
	source := "The quick brown fox jumps over the lazy dog."
	r.Start(source)
	sched.drain()

	if len(lengths) != len([]rune(source)) {
		t.Fatalf("got %d updates, want %d", len(lengths), len([]rune(source)))
	}
	for i, l := range lengths {
		if l != i+1 {
			t.Fatalf("update %d revealed %d characters, want %d", i, l, i+1)
		}
	}
}

func TestRendererEmptySourceFinishesImmediately(t *testing.T) {
	sched := newManualScheduler()

	calls := 0
	r := chat.NewRenderer(sched, constantDelay, nil, func(text string) {
		calls++
		if text != "" {
			t.Errorf("finish text = %q, want empty", text)
		}
	})
	r.Start("")

	if calls != 1 {
		t.Errorf("finish called %d times, want 1", calls)
	}
	if sched.pending() != 0 {
		t.Errorf("pending timers = %d, want 0", sched.pending())
	}
}

func TestRendererRestartInvalidatesPendingTick(t *testing.T) {
	sched := newManualScheduler()

	var progress []string
	var finished []string
	r := chat.NewRenderer(sched, constantDelay,
		func(prefix string) { progress = append(progress, prefix) },
		func(text string) { finished = append(finished, text) },
	)

	r.Start("abc")
	sched.advance(tickDelay)
	r.Start("xyz")

	if sched.pending() != 1 {
		t.Fatalf("pending timers = %d after restart, want 1", sched.pending())
	}
	sched.drain()

	want := []string{"a", "x", "xy", "xyz"}
	if len(progress) != len(want) {
		t.Fatalf("progress = %q, want %q", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %q, want %q", i, progress[i], want[i])
		}
	}
	if len(finished) != 1 || finished[0] != "xyz" {
		t.Errorf("finished = %q, want [\"xyz\"]", finished)
	}
}

func TestRendererCancel(t *testing.T) {
	tests := []struct {
		name        string
		ignoreStop  bool
		ticks       int
		wantPrefix  string
		wantUpdates int
	}{
		{
			name:        "Stops pending tick",
			ticks:       3,
			wantPrefix:  "lon",
			wantUpdates: 3,
		},
		{
			name:        "Ignores tick that already fired",
			ignoreStop:  true,
			ticks:       3,
			wantPrefix:  "lon",
			wantUpdates: 3,
		},
		{
			name:        "Before first tick",
			ticks:       0,
			wantPrefix:  "",
			wantUpdates: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := newManualScheduler()
			sched.ignoreStop = tt.ignoreStop

			updates := 0
			finished := 0
			r := chat.NewRenderer(sched, constantDelay,
				func(string) { updates++ },
				func(string) { finished++ },
			)
			r.Start("long text")
			sched.advance(time.Duration(tt.ticks) * tickDelay)

			prefix := r.Cancel()
			if prefix != tt.wantPrefix {
				t.Errorf("Cancel() = %q, want %q", prefix, tt.wantPrefix)
			}
			if r.State() != chat.StateIdle {
				t.Errorf("State() = %v after cancel, want %v", r.State(), chat.StateIdle)
			}

			sched.drain()
			if updates != tt.wantUpdates {
				t.Errorf("got %d updates, want %d", updates, tt.wantUpdates)
			}
			if finished != 0 {
				t.Errorf("finish called %d times after cancel, want 0", finished)
			}
			if r.Cancel() != "" {
				t.Error("second Cancel() should return an empty prefix")
			}
		})
	}
}

func TestRandomDelay(t *testing.T) {
	delay := chat.RandomDelay(20*time.Millisecond, 60*time.Millisecond)
	for range 1000 {
		d := delay()
		if d < 20*time.Millisecond || d >= 60*time.Millisecond {
			t.Fatalf("delay %v outside [20ms, 60ms)", d)
		}
	}

	fixed := chat.RandomDelay(5*time.Millisecond, 5*time.Millisecond)
	if d := fixed(); d != 5*time.Millisecond {
		t.Errorf("RandomDelay(5ms, 5ms)() = %v, want 5ms", d)
	}
}

func TestRenderStateString(t *testing.T) {
	tests := []struct {
		state chat.RenderState
		want  string
	}{
		{chat.StateIdle, "idle"},
		{chat.StateRevealing, "revealing"},
		{chat.StateFinalizing, "finalizing"},
		{chat.RenderState(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
