package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ampora-ai/ampora-web/internal/models"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"
)

// BoltDB stores dashboard accounts and sign-in sessions in a BoltDB file. Conversations are never
// written to it.
type BoltDB struct {
	db *bolt.DB

	sessionTTL time.Duration
	now        func() time.Time
}

// Account describes a user to create.
type Account struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Defaults for sessions and accounts.
const (
	DefaultSessionTTL = 7 * 24 * time.Hour
	MinPasswordLength = 6
)

var (
	usersBucket    = []byte("users")
	sessionsBucket = []byte("sessions")
)

// DefaultAccounts are the development accounts seeded into a fresh store.
var DefaultAccounts = []Account{
	{Username: "testuser", Email: "test@example.com", Password: "test123"},
	{Username: "demo", Email: "demo@example.com", Password: "demo123"},
}

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string, sessionTTL time.Duration) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{usersBucket, sessionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, err
	}

	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}

	return BoltDB{
		db:         db,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

// SeedAccounts creates the given accounts unless a user with the same username exists.
func (b BoltDB) SeedAccounts(ctx context.Context, accounts []Account) error {
	for _, acc := range accounts {
		_, err := b.AddUser(ctx, acc)
		if err != nil && !errors.Is(err, models.ErrUsernameTaken) {
			return fmt.Errorf("failed to seed account %s: %w", acc.Username, err)
		}
	}
	return nil
}

// AddUser registers a new account. Usernames are case-insensitive.
func (b BoltDB) AddUser(_ context.Context, acc Account) (models.User, error) {
	if len(acc.Password) < MinPasswordLength {
		return models.User{}, models.ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(acc.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     acc.Username,
		Email:        acc.Email,
		PasswordHash: hash,
		CreatedAt:    b.now(),
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(usersBucket)

		key := userKey(acc.Username)
		if users.Get(key) != nil {
			return models.ErrUsernameTaken
		}

		if acc.Email != "" {
			err := users.ForEach(func(_, v []byte) error {
				var u models.User
				if err := json.Unmarshal(v, &u); err != nil {
					return fmt.Errorf("failed to unmarshal user: %w", err)
				}
				if strings.EqualFold(u.Email, acc.Email) {
					return models.ErrEmailTaken
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		v, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		return users.Put(key, v)
	})
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

// Signup registers a new account and signs it in. It returns models.ErrUsernameTaken,
// models.ErrEmailTaken or models.ErrPasswordTooShort when the account is rejected.
func (b BoltDB) Signup(ctx context.Context, username, email, password string) (models.Session, error) {
	_, err := b.AddUser(ctx, Account{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return models.Session{}, err
	}
	return b.Login(ctx, username, password)
}

// Login checks the credentials and issues a new session.
func (b BoltDB) Login(_ context.Context, username, password string) (models.Session, error) {
	var session models.Session
	err := b.db.Update(func(tx *bolt.Tx) error {
		v := tx.Bucket(usersBucket).Get(userKey(username))
		if v == nil {
			return models.ErrInvalidCredentials
		}

		var user models.User
		if err := json.Unmarshal(v, &user); err != nil {
			return fmt.Errorf("failed to unmarshal user: %w", err)
		}
		if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
			return models.ErrInvalidCredentials
		}

		session = models.Session{
			Token:     uuid.New().String(),
			UserID:    user.ID,
			Username:  user.Username,
			ExpiresAt: b.now().Add(b.sessionTTL),
		}
		sv, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		return tx.Bucket(sessionsBucket).Put([]byte(session.Token), sv)
	})
	if err != nil {
		return models.Session{}, err
	}

	return session, nil
}

// Session returns the session for token. Expired sessions are removed and reported as not found.
func (b BoltDB) Session(_ context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, models.ErrSessionNotFound
	}

	var session models.Session
	expired := false
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get([]byte(token))
		if v == nil {
			return models.ErrSessionNotFound
		}
		if err := json.Unmarshal(v, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		expired = session.Expired(b.now())
		return nil
	})
	if err != nil {
		return models.Session{}, err
	}

	if expired {
		if err := b.deleteSession(token); err != nil {
			return models.Session{}, err
		}
		return models.Session{}, models.ErrSessionNotFound
	}

	return session, nil
}

// Logout removes the session for token. Unknown tokens are ignored.
func (b BoltDB) Logout(_ context.Context, token string) error {
	return b.deleteSession(token)
}

func (b BoltDB) deleteSession(token string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(token))
	})
}

func userKey(username string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(username)))
}
