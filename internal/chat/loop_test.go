package chat_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ampora-ai/ampora-web/internal/chat"
	"github.com/ampora-ai/ampora-web/internal/models"
)

type channelObserver struct {
	messages chan models.Message
}

func (o channelObserver) OnProcessing(bool)          {}
func (o channelObserver) OnArtifact(string)          {}
func (o channelObserver) OnReveal(string, string)    {}
func (o channelObserver) OnMessage(m models.Message) { o.messages <- m }
func (o channelObserver) OnInputLocked(bool)         {}

func startLoop(t *testing.T) *chat.EventLoop {
	t.Helper()

	loop := chat.NewEventLoop()
	go loop.Run(context.Background())
	t.Cleanup(func() {
		loop.Close()
		<-loop.Done()
	})
	return loop
}

func TestEventLoopRunsCallbacksInOrder(t *testing.T) {
	loop := startLoop(t)

	var got []int
	for i := range 10 {
		loop.Post(func() { got = append(got, i) })
	}

	var snapshot []int
	if !loop.Do(func() { snapshot = append(snapshot, got...) }) {
		t.Fatal("Do() = false on a running loop")
	}
	for i, v := range snapshot {
		if v != i {
			t.Fatalf("callbacks ran out of order: %v", snapshot)
		}
	}
	if len(snapshot) != 10 {
		t.Errorf("got %d callbacks, want 10", len(snapshot))
	}
}

func TestEventLoopAfterFunc(t *testing.T) {
	loop := startLoop(t)

	fired := make(chan struct{})
	loop.AfterFunc(time.Millisecond, func() { close(fired) })

	stopped := loop.AfterFunc(time.Hour, func() { t.Error("stopped timer fired") })
	if !stopped.Stop() {
		t.Error("Stop() = false on a pending timer")
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer callback did not run")
	}
}

func TestEventLoopStopped(t *testing.T) {
	loop := chat.NewEventLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	cancel()
	<-loop.Done()

	if loop.Do(func() { t.Error("callback ran on a stopped loop") }) {
		t.Error("Do() = true on a stopped loop")
	}
	loop.Post(func() { t.Error("callback ran on a stopped loop") })
	loop.Close()
	loop.Close()
}

func TestControllerOnEventLoop(t *testing.T) {
	loop := startLoop(t)

	gw := &fakeGateway{reply: models.Reply{Text: "Hi there!"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := chat.NewController(loop, gw, logger, chat.WithDelay(chat.RandomDelay(time.Millisecond, 2*time.Millisecond)))
	t.Cleanup(c.Close)

	obs := channelObserver{messages: make(chan models.Message, 4)}
	c.Subscribe(obs)

	if err := c.Submit("hello"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	want := []models.Message{userMsg("hello"), assistantMsg("Hi there!")}
	for i := range want {
		select {
		case m := <-obs.messages:
			if m.Sender != want[i].Sender || m.Text != want[i].Text {
				t.Errorf("message %d = {%s, %q}, want {%s, %q}", i, m.Sender, m.Text, want[i].Sender, want[i].Text)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("message %d was not appended", i)
		}
	}

	if err := c.Submit("again"); err != nil {
		t.Errorf("Submit() after the reveal error = %v", err)
	}
}
