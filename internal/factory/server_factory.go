package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/adapters/web"
	"github.com/mikey/sms-spam-classifier/internal/config"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
	"github.com/mikey/sms-spam-classifier/internal/ports"
)

// ServerFactory creates the HTTP API server based on configuration
type ServerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewServerFactory creates a new server factory
func NewServerFactory(cfg *config.Config, logger *zap.Logger) *ServerFactory {
	return &ServerFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateServer wires the handlers into a server listening on the configured address
func (f *ServerFactory) CreateServer(handlers *web.Handlers) (ports.Server, error) {
	cfg, err := f.cfg.GetServer()
	if err != nil {
		return nil, apperrors.Configuration("invalid server configuration", err)
	}
	return web.NewServer(handlers, f.logger.Named("http"), web.Options{
		ListenAddress:   cfg.ListenAddress,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		MaxBodyBytes:    cfg.MaxBodyBytes,
	}), nil
}
