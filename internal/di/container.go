package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/adapters/web"
	"github.com/mikey/sms-spam-classifier/internal/artifact"
	"github.com/mikey/sms-spam-classifier/internal/auth"
	"github.com/mikey/sms-spam-classifier/internal/config"
	"github.com/mikey/sms-spam-classifier/internal/core"
	"github.com/mikey/sms-spam-classifier/internal/factory"
	"github.com/mikey/sms-spam-classifier/internal/logging"
	"github.com/mikey/sms-spam-classifier/internal/nlp"
	"github.com/mikey/sms-spam-classifier/internal/ports"
	"github.com/mikey/sms-spam-classifier/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
// for the API server
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideModel(container); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewAuthFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewServerFactory); err != nil {
		return nil, err
	}

	// Register user and history store
	if err := container.Provide(func(f *factory.StoreFactory) (core.Store, error) {
		return f.CreateStore(context.Background())
	}); err != nil {
		return nil, err
	}

	// Register auth
	if err := container.Provide(func(f *factory.AuthFactory) (*auth.BcryptHasher, error) {
		return f.CreateHasher()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.AuthFactory) (*auth.TokenManager, error) {
		return f.CreateTokenManager()
	}); err != nil {
		return nil, err
	}

	// Register services
	if err := container.Provide(func(s core.Store, h *auth.BcryptHasher, logger *zap.Logger) *core.AccountService {
		return core.NewAccountService(s, h, logger.Named("accounts"))
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s core.Store, logger *zap.Logger) *core.HistoryService {
		return core.NewHistoryService(s, logger.Named("history"))
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(newClassifierService(true)); err != nil {
		return nil, err
	}

	// Register API handlers and server
	if err := container.Provide(func(
		classifier *core.ClassifierService,
		accounts *core.AccountService,
		history *core.HistoryService,
		tokens *auth.TokenManager,
		s core.Store,
		logger *zap.Logger,
	) *web.Handlers {
		return web.NewHandlers(classifier, accounts, history, tokens, s, logger.Named("api"))
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.ServerFactory, h *web.Handlers) (ports.Server, error) {
		return f.CreateServer(h)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideModel registers the pieces shared by every binary: the
// normalizer, the artifact store and the text processor
func provideModel(container *dig.Container) error {
	if err := container.Provide(factory.NewModelFactory); err != nil {
		return err
	}

	// Register normalizer
	if err := container.Provide(func(f *factory.ModelFactory) (*nlp.Normalizer, error) {
		return f.CreateNormalizer()
	}); err != nil {
		return err
	}

	// Register artifact store
	if err := container.Provide(func(f *factory.ModelFactory) (*artifact.Store, error) {
		return f.CreateArtifactStore()
	}); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.ModelFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	return nil
}

// newClassifierService returns a provider for the classifier. The server
// records history, the CLI does not.
func newClassifierService(withHistory bool) any {
	if withHistory {
		return func(
			n *nlp.Normalizer,
			arts *artifact.Store,
			history *core.HistoryService,
			tp *utils.TextProcessor,
			cfg *config.Config,
			logger *zap.Logger,
		) *core.ClassifierService {
			return core.NewClassifierService(n, arts, history, tp, logger.Named("classifier"), cfg.GetInference().MaxInputSize)
		}
	}
	return func(
		n *nlp.Normalizer,
		arts *artifact.Store,
		tp *utils.TextProcessor,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.ClassifierService {
		return core.NewClassifierService(n, arts, nil, tp, logger.Named("classifier"), cfg.GetInference().MaxInputSize)
	}
}
