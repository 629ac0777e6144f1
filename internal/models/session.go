package models

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned when signing in with an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrSessionNotFound is returned for unknown or expired session tokens.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUsernameTaken is returned when signing up with a username that is registered already.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrEmailTaken is returned when signing up with an email that is registered already.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPasswordTooShort is returned when signing up with a password below the minimum length.
	ErrPasswordTooShort = errors.New("password is too short")
)

// User is an account allowed to sign in to the dashboard.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Session binds an opaque token to a signed in user.
type Session struct {
	Token     string
	UserID    string
	Username  string
	ExpiresAt time.Time
}

// AuthToken returns the token forwarded to request gateways.
func (s Session) AuthToken() string {
	return s.Token
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
