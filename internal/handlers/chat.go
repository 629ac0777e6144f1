package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ampora-ai/ampora-web/internal/chat"
)

// HandleChats submits the "message" form field to the caller's conversation. The reply is delivered
// through the SSE stream, so a successful submission answers 202 Accepted with no body.
//
// Blank messages and messages sent while the previous reply is still pending or being revealed are
// ignored and answered with 204 No Content.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := m.session(r)
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	conv := m.conversation(session)
	err := conv.controller.Submit(r.FormValue("message"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, chat.ErrEmptyInput), errors.Is(err, chat.ErrTurnInProgress):
		m.logger.Debug("Message ignored",
			slog.String("conversationID", conv.id),
			slog.String("reason", err.Error()))
		w.WriteHeader(http.StatusNoContent)
	default:
		m.logger.Error("Failed to submit message",
			slog.String("conversationID", conv.id),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	}
}

// HandleCancel interrupts the reply currently pending or being revealed in the caller's
// conversation.
func (m Main) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, ok := m.session(r)
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	m.conversation(session).controller.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// HandleSSE streams the caller's conversation events.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := m.session(r); !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}
	m.sseSrv.ServeHTTP(w, r)
}
