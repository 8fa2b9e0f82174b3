package core

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mikey/sms-spam-classifier/internal/artifact"
)

var (
	// ErrUserExists is returned by CreateUser for a taken identity.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by GetUser for an unknown identity.
	ErrUserNotFound = errors.New("user not found")
)

// ModelLoader loads trained artifact pairs
type ModelLoader interface {
	// Load returns the pair selected for name, falling back to the default model.
	Load(name string) (*artifact.Pair, error)

	// Models lists the trained model names
	Models() ([]string, error)

	// Metrics returns the evaluation report stored with the model
	Metrics(name string) (json.RawMessage, error)
}

// UserRepository stores accounts keyed by normalized email
type UserRepository interface {
	// CreateUser stores a new user or returns ErrUserExists
	CreateUser(ctx context.Context, user *User) error

	// GetUser returns the user or ErrUserNotFound
	GetUser(ctx context.Context, email string) (*User, error)
}

// HistoryRepository is an append-only prediction log
type HistoryRepository interface {
	// Append stores a record
	Append(ctx context.Context, record *HistoryRecord) error

	// ListFor returns at most limit records for identity, newest first.
	// A limit <= 0 yields an empty slice.
	ListFor(ctx context.Context, identity string, limit int) ([]HistoryRecord, error)
}

// Store is a backend serving both users and history.
type Store interface {
	UserRepository
	HistoryRepository

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// PasswordHasher hashes and verifies secrets.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) bool
}
