package handlers

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ampora-ai/ampora-web/internal/models"
)

type message struct {
	ID        string
	Sender    string
	HTML      template.HTML
	Timestamp time.Time
}

type homePageData struct {
	Username    string
	Messages    []message
	Processing  bool
	ArtifactURL string
	Partial     string
	InputLocked bool
	Draft       string
}

type loginPageData struct {
	LoginError  string
	SignupError string
	Username    string
	Email       string
}

// Form messages shown when signing up fails.
const (
	signupFieldsRequired  = "Username, email and password are required"
	signupPasswordsDiffer = "Passwords do not match"
	signupUsernameTaken   = "Username already exists. Please choose a different username."
	signupEmailTaken      = "Email already registered. Please use a different email."
	signupPasswordShort   = "Password must be at least 6 characters long."
)

// HandleHome renders the dashboard for a signed in user, or the login form otherwise.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	session, ok := m.session(r)
	if !ok {
		m.renderLogin(w, http.StatusOK, loginPageData{})
		return
	}

	snapshot := m.conversation(session).controller.Snapshot()

	msgs := make([]message, len(snapshot.Messages))
	for i, msg := range snapshot.Messages {
		view, err := m.messageView(msg)
		if err != nil {
			m.logger.Error("Failed to render message",
				slog.String("messageID", msg.ID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		msgs[i] = view
	}

	data := homePageData{
		Username:    session.Username,
		Messages:    msgs,
		Processing:  snapshot.Processing,
		ArtifactURL: snapshot.ArtifactURL,
		Partial:     snapshot.Partial,
		InputLocked: snapshot.InputLocked,
		Draft:       snapshot.Draft,
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleLogin signs the user in with the "username" and "password" form fields and stores the
// session token in a cookie.
func (m Main) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		m.renderLogin(w, http.StatusBadRequest, loginPageData{
			LoginError: "Username and password are required",
			Username:   username,
		})
		return
	}

	session, err := m.store.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			m.renderLogin(w, http.StatusUnauthorized, loginPageData{
				LoginError: "Invalid username or password",
				Username:   username,
			})
			return
		}
		m.logger.Error("Failed to log in",
			slog.String("username", username),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	setSessionCookie(w, session)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleSignup creates an account from the "username", "email", "password" and "confirmPassword"
// form fields and signs the new user in.
func (m Main) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	data := loginPageData{Username: username, Email: email}
	switch {
	case username == "" || email == "" || password == "":
		data.SignupError = signupFieldsRequired
	case password != r.FormValue("confirmPassword"):
		data.SignupError = signupPasswordsDiffer
	}
	if data.SignupError != "" {
		m.renderLogin(w, http.StatusBadRequest, data)
		return
	}

	session, err := m.store.Signup(r.Context(), username, email, password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUsernameTaken):
			data.SignupError = signupUsernameTaken
		case errors.Is(err, models.ErrEmailTaken):
			data.SignupError = signupEmailTaken
		case errors.Is(err, models.ErrPasswordTooShort):
			data.SignupError = signupPasswordShort
		default:
			m.logger.Error("Failed to sign up",
				slog.String("username", username),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		m.renderLogin(w, http.StatusBadRequest, data)
		return
	}

	m.logger.Info("User signed up", slog.String("username", session.Username))

	setSessionCookie(w, session)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func setSessionCookie(w http.ResponseWriter, session models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// HandleLogout ends the session, abandoning its conversation.
func (m Main) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if c, err := r.Cookie(sessionCookieName); err == nil {
		m.dropConversation(c.Value)
		if err := m.store.Logout(r.Context(), c.Value); err != nil {
			m.logger.Error("Failed to log out", slog.String(errLoggerKey, err.Error()))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (m Main) renderLogin(w http.ResponseWriter, status int, data loginPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := m.templates.ExecuteTemplate(w, "login.html", data); err != nil {
		m.logger.Error("Failed to render login page", slog.String(errLoggerKey, err.Error()))
	}
}

// session resolves the session cookie of r. A conversation left behind by an expired or unknown
// session is abandoned.
func (m Main) session(r *http.Request) (models.Session, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return models.Session{}, false
	}
	session, err := m.store.Session(r.Context(), c.Value)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			m.dropConversation(c.Value)
		}
		return models.Session{}, false
	}
	return session, true
}

func (m Main) messageView(msg models.Message) (message, error) {
	html, err := m.renderMarkdown(msg.Text)
	if err != nil {
		return message{}, err
	}
	return message{
		ID:        msg.ID,
		Sender:    string(msg.Sender),
		HTML:      html,
		Timestamp: msg.Timestamp,
	}, nil
}
