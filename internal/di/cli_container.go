package di

import (
	"io"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/adapters/cli"
	"github.com/mikey/sms-spam-classifier/internal/artifact"
	"github.com/mikey/sms-spam-classifier/internal/config"
	"github.com/mikey/sms-spam-classifier/internal/core"
	"github.com/mikey/sms-spam-classifier/internal/logging"
	"github.com/mikey/sms-spam-classifier/internal/nlp"
	"github.com/mikey/sms-spam-classifier/internal/training"
)

// CLIFlags contains the command line flags shared by the trainer and the
// predictor. Empty values leave the configuration untouched.
type CLIFlags struct {
	ConfigFile   string
	ArtifactsDir string
	Verbose      bool
	JSONLog      bool

	// Training flags
	DataPath     string
	Encoding     string
	StrictLabels bool
	Workers      int

	// Output receives results; logs always go to stderr
	Output io.Writer
}

// BuildCLIContainer creates and configures a dependency injection container
// for the command line tools
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Debug("Loaded configuration from file", zap.String("file", used))
		}
		applyFlags(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideModel(container); err != nil {
		return nil, err
	}

	// Register classifier service with no history
	if err := container.Provide(newClassifierService(false)); err != nil {
		return nil, err
	}

	// Register predictor
	if err := container.Provide(func(s *core.ClassifierService, flags *CLIFlags, logger *zap.Logger) *cli.Predictor {
		return cli.NewPredictor(s, logger.Named("predict"), flags.Output)
	}); err != nil {
		return nil, err
	}

	// Register training pipeline
	if err := container.Provide(func(n *nlp.Normalizer, arts *artifact.Store, logger *zap.Logger) *training.Pipeline {
		return training.NewPipeline(n, arts, logger.Named("train"))
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// applyFlags overrides configuration with the flags that were set
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	if flags.ArtifactsDir != "" {
		cfg.Set("artifacts.dir", flags.ArtifactsDir)
	}
	if flags.DataPath != "" {
		cfg.Set("training.data_path", flags.DataPath)
	}
	if flags.Encoding != "" {
		cfg.Set("training.encoding", flags.Encoding)
	}
	if flags.StrictLabels {
		cfg.Set("training.strict_labels", true)
	}
	if flags.Workers > 0 {
		cfg.Set("training.workers", flags.Workers)
	}
}
