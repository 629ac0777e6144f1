package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	amporaweb "github.com/ampora-ai/ampora-web"
	"github.com/ampora-ai/ampora-web/internal/chat"
	"github.com/ampora-ai/ampora-web/internal/models"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// SessionStore defines the interface for signing users in and resolving the opaque session tokens
// carried by the dashboard cookie.
type SessionStore interface {
	Signup(ctx context.Context, username, email, password string) (models.Session, error)
	Login(ctx context.Context, username, password string) (models.Session, error)
	Session(ctx context.Context, token string) (models.Session, error)
	Logout(ctx context.Context, token string) error
}

// Main serves the dashboard. It keeps one conversation per signed in session, all driven by the same
// scheduler, and pushes their changes to the browser through server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  goldmark.Markdown

	sched   chat.Scheduler
	gateway chat.Gateway
	store   SessionStore
	delay   chat.DelayFunc

	conversations *conversations

	logger *slog.Logger
}

type conversations struct {
	mu      sync.Mutex
	byToken map[string]*conversation
}

type conversation struct {
	id          string
	controller  *chat.Controller
	unsubscribe func()
}

const (
	errLoggerKey = "err"

	sessionCookieName = "ampora_session"
)

// NewMain creates a new Main instance. Every conversation is revealed with delay, calls gateway and
// runs its callbacks on sched. The SSE server subscribes each client to the topic of the conversation
// bound to its session cookie.
func NewMain(
	sched chat.Scheduler,
	gateway chat.Gateway,
	store SessionStore,
	delay chat.DelayFunc,
	logger *slog.Logger,
) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		amporaweb.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	m := Main{
		templates: tmpl,
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(highlighting.WithStyle("monokai")),
			),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		sched:   sched,
		gateway: gateway,
		store:   store,
		delay:   delay,
		conversations: &conversations{
			byToken: make(map[string]*conversation),
		},
		logger: logger.With(slog.String("module", "handlers")),
	}

	m.sseSrv = &sse.Server{
		OnSession: func(s *sse.Session) (sse.Subscription, bool) {
			session, ok := m.session(s.Req)
			if !ok {
				return sse.Subscription{}, false
			}
			conv := m.conversation(session)

			return sse.Subscription{
				Client:      s,
				LastEventID: s.LastEventID,
				Topics:      []string{sse.DefaultTopic, conversationTopic(conv.id)},
			}, true
		},
	}

	return m, nil
}

func conversationTopic(conversationID string) string {
	return fmt.Sprintf("conversation-%s", conversationID)
}

// conversation returns the conversation of session, creating it on first use.
func (m Main) conversation(session models.Session) *conversation {
	m.conversations.mu.Lock()
	defer m.conversations.mu.Unlock()

	if conv, ok := m.conversations.byToken[session.Token]; ok {
		return conv
	}

	ctl := chat.NewController(m.sched, m.gateway, m.logger,
		chat.WithCredentials(session),
		chat.WithDelay(m.delay),
	)
	conv := &conversation{
		id:         uuid.New().String(),
		controller: ctl,
	}
	conv.unsubscribe = ctl.Subscribe(sseObserver{
		main:  m,
		topic: conversationTopic(conv.id),
	})
	m.conversations.byToken[session.Token] = conv

	m.logger.Debug("Conversation created",
		slog.String("conversationID", conv.id),
		slog.String("username", session.Username))

	return conv
}

// dropConversation abandons the conversation of token, if any.
func (m Main) dropConversation(token string) {
	m.conversations.mu.Lock()
	conv, ok := m.conversations.byToken[token]
	delete(m.conversations.byToken, token)
	m.conversations.mu.Unlock()

	if !ok {
		return
	}
	conv.unsubscribe()
	conv.controller.Close()
}

// PruneConversations abandons the conversations whose session has expired or ended without a
// logout. It returns how many were dropped.
func (m Main) PruneConversations(ctx context.Context) int {
	m.conversations.mu.Lock()
	tokens := make([]string, 0, len(m.conversations.byToken))
	for token := range m.conversations.byToken {
		tokens = append(tokens, token)
	}
	m.conversations.mu.Unlock()

	dropped := 0
	for _, token := range tokens {
		_, err := m.store.Session(ctx, token)
		if !errors.Is(err, models.ErrSessionNotFound) {
			continue
		}
		m.dropConversation(token)
		dropped++
	}
	if dropped > 0 {
		m.logger.Debug("Conversations pruned", slog.Int("count", dropped))
	}
	return dropped
}

func (m Main) renderMarkdown(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := m.markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	// goldmark escapes raw HTML unless the unsafe renderer option is set.
	return template.HTML(buf.String()), nil
}

// Shutdown gracefully terminates the Main instance's SSE server and abandons every live
// conversation. It broadcasts a close message to all connected clients and waits up to 5 seconds for
// connections to terminate. After the timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	m.conversations.mu.Lock()
	tokens := make([]string, 0, len(m.conversations.byToken))
	for token := range m.conversations.byToken {
		tokens = append(tokens, token)
	}
	m.conversations.mu.Unlock()
	for _, token := range tokens {
		m.dropConversation(token)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
