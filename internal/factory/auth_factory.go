package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/auth"
	"github.com/mikey/sms-spam-classifier/internal/config"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
)

// AuthFactory creates the password hasher and session token manager
type AuthFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAuthFactory creates a new auth factory
func NewAuthFactory(cfg *config.Config, logger *zap.Logger) *AuthFactory {
	return &AuthFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateHasher creates a bcrypt hasher with the configured cost
func (f *AuthFactory) CreateHasher() (*auth.BcryptHasher, error) {
	cfg, err := f.cfg.GetAuth()
	if err != nil {
		return nil, apperrors.Configuration("invalid auth configuration", err)
	}
	return auth.NewBcryptHasher(cfg.BcryptCost), nil
}

// CreateTokenManager creates the JWT manager. The signing secret has no
// default and must be configured.
func (f *AuthFactory) CreateTokenManager() (*auth.TokenManager, error) {
	cfg, err := f.cfg.GetAuth()
	if err != nil {
		return nil, apperrors.Configuration("invalid auth configuration", err)
	}
	if cfg.JWTSecret == "" {
		return nil, apperrors.Configuration("auth.jwt_secret must be set (SMS_SPAM_AUTH_JWT_SECRET)", nil)
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, apperrors.Configuration("invalid auth configuration", err)
	}
	f.logger.Debug("Token manager ready", zap.Duration("ttl", tokens.TTL()))
	return tokens, nil
}
