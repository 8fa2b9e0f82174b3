package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
)

// NormalizeIdentity trims and lowercases an email address.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// AccountService manages user accounts
type AccountService struct {
	users  UserRepository
	hasher PasswordHasher
	logger *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(users UserRepository, hasher PasswordHasher, logger *zap.Logger) *AccountService {
	return &AccountService{
		users:  users,
		hasher: hasher,
		logger: logger,
	}
}

// Register creates an account. Secrets are only ever stored hashed.
func (a *AccountService) Register(ctx context.Context, identity, secret string) error {
	email := NormalizeIdentity(identity)
	if email == "" || secret == "" {
		return apperrors.Validation("Email and password required.")
	}

	hash, err := a.hasher.Hash(secret)
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "could not create user", err)
	}

	err = a.users.CreateUser(ctx, &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, ErrUserExists) {
		return apperrors.New(apperrors.KindConflict, "User already exists.", err)
	}
	if err != nil {
		a.logger.Error("Failed to store user", zap.String("identity", email), zap.Error(err))
		return apperrors.UpstreamStore("user store unavailable", err)
	}

	a.logger.Info("Created user", zap.String("identity", email))
	return nil
}

// CreateUser registers an account and reports the outcome as a message.
func (a *AccountService) CreateUser(ctx context.Context, identity, secret string) (bool, string) {
	if err := a.Register(ctx, identity, secret); err != nil {
		return false, apperrors.PublicMessage(err)
	}
	return true, "User created."
}

// Authenticate reports whether secret matches the stored hash for identity.
func (a *AccountService) Authenticate(ctx context.Context, identity, secret string) bool {
	email := NormalizeIdentity(identity)
	if email == "" || secret == "" {
		return false
	}
	user, err := a.users.GetUser(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			a.logger.Error("Failed to look up user", zap.String("identity", email), zap.Error(err))
		}
		return false
	}
	return a.hasher.Compare(user.PasswordHash, secret)
}
