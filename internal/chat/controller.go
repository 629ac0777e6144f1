package chat

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/ampora-ai/ampora-web/internal/models"
	"github.com/google/uuid"
)

// Gateway obtains the complete reply for a user message. Implementations may block; the controller
// always calls them off the scheduler.
type Gateway interface {
	SendMessage(ctx context.Context, text, authToken string) (models.Reply, error)
}

// Credentials supplies the opaque token forwarded to the gateway.
type Credentials interface {
	AuthToken() string
}

// Observer receives the externally visible changes of a conversation. Callbacks run on the
// scheduler and must not call back into the controller.
type Observer interface {
	// OnProcessing reports whether the conversation is waiting for the gateway.
	OnProcessing(processing bool)
	// OnArtifact reports a media URL that accompanied a reply.
	OnArtifact(url string)
	// OnReveal reports the prefix of the reply revealed so far in the given turn.
	OnReveal(turnID, prefix string)
	// OnMessage reports a message appended to the conversation log.
	OnMessage(msg models.Message)
	// OnInputLocked reports whether a live turn rejects new submissions. It fires when a turn
	// starts and again when it finishes or is canceled, whether or not a message was appended.
	OnInputLocked(locked bool)
}

// Texts substituted for replies.
const (
	DefaultReply      = "Sorry, I couldn't process your request."
	TimeoutReply      = "Request timed out. Please try again."
	FailureReply      = "Failed to contact the server. Please try again."
	InterruptedSuffix = " (Message interrupted)"
)

var (
	// ErrEmptyInput is returned by Submit for blank text.
	ErrEmptyInput = errors.New("empty input")
	// ErrTurnInProgress is returned by Submit while an earlier turn is waiting or being revealed.
	ErrTurnInProgress = errors.New("turn in progress")
)

// Controller owns a conversation: its log, the processing flag, the last artifact URL and the turn
// currently in flight. Its exported methods are safe to call from any goroutine except scheduler
// callbacks.
type Controller struct {
	sched       Scheduler
	gateway     Gateway
	credentials Credentials
	renderer    *Renderer

	log         ConversationLog
	processing  bool
	artifactURL string
	draft       string
	turn        *turn

	observers []*subscription

	inflight sync.WaitGroup

	logger *slog.Logger
}

// Snapshot is a point-in-time copy of a conversation's visible state.
type Snapshot struct {
	Messages    []models.Message
	Processing  bool
	ArtifactURL string
	// Partial is the prefix of the reply being revealed, empty when no reveal is running.
	Partial     string
	InputLocked bool
	Draft       string
}

// Option configures a Controller.
type Option func(*Controller)

type turn struct {
	id       string
	canceled bool

	ctx    context.Context
	cancel context.CancelFunc
}

type subscription struct {
	observer Observer
}

type staticToken string

func (s staticToken) AuthToken() string { return string(s) }

const errLoggerKey = "err"

// WithCredentials sets the source of the token forwarded to the gateway.
func WithCredentials(c Credentials) Option {
	return func(ctl *Controller) {
		ctl.credentials = c
	}
}

// WithToken forwards a fixed token to the gateway.
func WithToken(token string) Option {
	return WithCredentials(staticToken(token))
}

// WithDelay replaces the per-character reveal delay.
func WithDelay(delay DelayFunc) Option {
	return func(ctl *Controller) {
		if delay != nil {
			ctl.renderer.delay = delay
		}
	}
}

// NewController creates a controller whose state is mutated only on sched.
func NewController(sched Scheduler, gateway Gateway, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		sched:       sched,
		gateway:     gateway,
		credentials: staticToken(""),
		logger:      logger.With(slog.String("module", "chat")),
	}
	c.renderer = NewRenderer(sched, nil, c.revealed, c.finish)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit starts a turn for text. It returns ErrEmptyInput or ErrTurnInProgress when the submission is
// ignored.
func (c *Controller) Submit(text string) error {
	var err error
	if !c.sched.Do(func() { err = c.submit(text) }) {
		return ErrStopped
	}
	return err
}

// Cancel interrupts the live turn, keeping whatever part of the reply was already revealed. It does
// nothing when no turn is live.
func (c *Controller) Cancel() {
	c.sched.Do(c.cancel)
}

// SetDraft replaces the input buffer. It reports false while input is locked by a live turn.
func (c *Controller) SetDraft(text string) bool {
	accepted := false
	c.sched.Do(func() {
		if c.turn != nil {
			return
		}
		c.draft = text
		accepted = true
	})
	return accepted
}

// InputLocked reports whether a turn is live, which rejects new submissions.
func (c *Controller) InputLocked() bool {
	locked := false
	c.sched.Do(func() { locked = c.turn != nil })
	return locked
}

// Snapshot returns the current visible state.
func (c *Controller) Snapshot() Snapshot {
	var s Snapshot
	c.sched.Do(func() {
		s = Snapshot{
			Messages:    c.log.Messages(),
			Processing:  c.processing,
			ArtifactURL: c.artifactURL,
			Partial:     c.renderer.Revealed(),
			InputLocked: c.turn != nil,
			Draft:       c.draft,
		}
	})
	return s
}

// Subscribe registers o for conversation events until the returned function is called.
func (c *Controller) Subscribe(o Observer) (unsubscribe func()) {
	sub := &subscription{observer: o}
	c.sched.Do(func() {
		c.observers = append(c.observers, sub)
	})
	return func() {
		c.sched.Do(func() {
			for i, s := range c.observers {
				if s == sub {
					c.observers = append(c.observers[:i], c.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Close abandons the live turn without logging it and waits for outstanding gateway calls.
func (c *Controller) Close() {
	c.sched.Do(func() {
		if c.turn == nil {
			return
		}
		c.turn.cancel()
		c.renderer.Cancel()
		c.setTurn(nil)
	})
	c.inflight.Wait()
}

func (c *Controller) submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	if c.turn != nil {
		return ErrTurnInProgress
	}

	c.appendMessage(models.NewMessage(models.SenderUser, text))
	c.setProcessing(true)
	c.draft = ""

	ctx, cancel := context.WithCancel(context.Background())
	t := &turn{
		id:     uuid.New().String(),
		ctx:    ctx,
		cancel: cancel,
	}
	c.setTurn(t)

	c.logger.Debug("Turn submitted", slog.String("turnID", t.id))

	token := c.credentials.AuthToken()
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		reply, err := c.gateway.SendMessage(t.ctx, text, token)
		c.sched.Post(func() {
			c.resolve(t, reply, err)
		})
	}()

	return nil
}

func (c *Controller) resolve(t *turn, reply models.Reply, err error) {
	if c.turn != t || t.canceled {
		c.logger.Debug("Discarding reply of abandoned turn", slog.String("turnID", t.id))
		return
	}
	c.setProcessing(false)

	if err != nil {
		c.logger.Warn("Gateway failed",
			slog.String("turnID", t.id),
			slog.String(errLoggerKey, err.Error()))
		c.renderer.Start(failureText(err))
		return
	}

	if reply.ArtifactURL != "" {
		c.artifactURL = reply.ArtifactURL
		for _, s := range c.observers {
			s.observer.OnArtifact(reply.ArtifactURL)
		}
	}

	text := reply.Text
	if text == "" {
		text = DefaultReply
	}
	c.renderer.Start(text)
}

func (c *Controller) cancel() {
	t := c.turn
	if t == nil {
		return
	}
	t.canceled = true
	t.cancel()

	prefix := c.renderer.Cancel()
	c.setProcessing(false)
	if strings.TrimSpace(prefix) != "" {
		c.appendMessage(models.NewMessage(models.SenderAssistant, prefix+InterruptedSuffix))
	}
	c.setTurn(nil)

	c.logger.Debug("Turn canceled",
		slog.String("turnID", t.id),
		slog.Int("revealed", len([]rune(prefix))))
}

// revealed is the renderer's progress callback.
func (c *Controller) revealed(prefix string) {
	if c.turn == nil {
		return
	}
	for _, s := range c.observers {
		s.observer.OnReveal(c.turn.id, prefix)
	}
}

// finish is the renderer's completion callback.
func (c *Controller) finish(text string) {
	if strings.TrimSpace(text) != "" {
		c.appendMessage(models.NewMessage(models.SenderAssistant, text))
	}
	if c.turn != nil {
		c.turn.cancel()
		c.setTurn(nil)
	}
}

// setTurn replaces the live turn and reports the input lock when it changes.
func (c *Controller) setTurn(t *turn) {
	wasLocked := c.turn != nil
	c.turn = t
	if locked := t != nil; locked != wasLocked {
		for _, s := range c.observers {
			s.observer.OnInputLocked(locked)
		}
	}
}

func (c *Controller) appendMessage(msg models.Message) {
	c.log.Append(msg)
	for _, s := range c.observers {
		s.observer.OnMessage(msg)
	}
}

func (c *Controller) setProcessing(processing bool) {
	if c.processing == processing {
		return
	}
	c.processing = processing
	for _, s := range c.observers {
		s.observer.OnProcessing(processing)
	}
}

func failureText(err error) string {
	if isTimeout(err) {
		return TimeoutReply
	}
	if msg := err.Error(); strings.TrimSpace(msg) != "" {
		return msg
	}
	return FailureReply
}

func isTimeout(err error) bool {
	var gwErr *models.GatewayError
	if errors.As(err, &gwErr) && gwErr.Timeout {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timed out")
}
