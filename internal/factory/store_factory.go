package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/adapters/store"
	"github.com/mikey/sms-spam-classifier/internal/config"
	"github.com/mikey/sms-spam-classifier/internal/core"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
)

const pingTimeout = 5 * time.Second

// StoreFactory creates user and history stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates the configured store. A backend that cannot be opened
// or reached is replaced by the memory store so predictions keep working.
func (f *StoreFactory) CreateStore(ctx context.Context) (core.Store, error) {
	storeCfg, err := f.cfg.GetStore()
	if err != nil {
		return nil, apperrors.Configuration("invalid store configuration", err)
	}
	opts := store.Options{Retention: storeCfg.Retention, CleanupFrequency: storeCfg.CleanupFrequency}
	logger := f.logger.Named("store")

	s, err := f.open(ctx, storeCfg, opts, logger)
	if err != nil {
		if apperrors.Is(err, apperrors.KindConfiguration) {
			return nil, err
		}
		f.logger.Warn("Store unavailable, falling back to memory",
			zap.String("type", storeCfg.Type), zap.Error(err))
		return store.NewMemoryStore(logger, opts), nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		f.logger.Warn("Store ping failed, falling back to memory",
			zap.String("type", storeCfg.Type), zap.Error(err))
		if cerr := s.Close(); cerr != nil {
			f.logger.Debug("Failed to close unreachable store", zap.Error(cerr))
		}
		return store.NewMemoryStore(logger, opts), nil
	}

	f.logger.Info("Using store", zap.String("type", storeCfg.Type))
	return s, nil
}

func (f *StoreFactory) open(ctx context.Context, cfg config.StoreConfig, opts store.Options, logger *zap.Logger) (core.Store, error) {
	switch cfg.Type {
	case "memory":
		return store.NewMemoryStore(logger, opts), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLiteStore(cfg.SQLitePath, logger, opts)
	case "mysql":
		return store.NewMySQLStore(cfg.MySQLDSN, logger, opts)
	case "badger":
		return store.NewBadgerStore(cfg.BadgerPath, logger, opts)
	case "dynamodb":
		return store.NewDynamoDBStore(ctx, store.DynamoDBConfig{
			Table:    cfg.DynamoDB.Table,
			Region:   cfg.DynamoDB.Region,
			Endpoint: cfg.DynamoDB.Endpoint,
		}, logger, opts)
	default:
		return nil, apperrors.Configuration(fmt.Sprintf("unsupported store type: %s", cfg.Type), nil)
	}
}
