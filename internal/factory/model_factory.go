package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/artifact"
	"github.com/mikey/sms-spam-classifier/internal/config"
	"github.com/mikey/sms-spam-classifier/internal/features"
	"github.com/mikey/sms-spam-classifier/internal/nlp"
	"github.com/mikey/sms-spam-classifier/internal/training"
	"github.com/mikey/sms-spam-classifier/internal/utils"
)

// ModelFactory creates the normalizer, text processor, artifact store and
// training options shared by the trainer, the predictor and the server
type ModelFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewModelFactory creates a new model factory
func NewModelFactory(cfg *config.Config, logger *zap.Logger) *ModelFactory {
	return &ModelFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNormalizer loads the linguistic resources and runs their
// readiness check
func (f *ModelFactory) CreateNormalizer() (*nlp.Normalizer, error) {
	res, err := nlp.LoadResources(f.cfg.GetString("nlp.stopwords_path"))
	if err != nil {
		return nil, err
	}
	return nlp.NewNormalizer(res)
}

// CreateArtifactStore opens the artifact directory
func (f *ModelFactory) CreateArtifactStore() (*artifact.Store, error) {
	cfg := f.cfg.GetArtifacts()
	return artifact.NewStore(cfg.Dir, cfg.KeepRuns, f.logger.Named("artifacts"))
}

// CreateTextProcessor creates the input sanitizer used before normalization
func (f *ModelFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger.Named("text"))
}

// TrainingOptions returns the pipeline options from configuration
func (f *ModelFactory) TrainingOptions() training.Options {
	cfg := f.cfg.GetTraining()
	opts := training.DefaultOptions()
	opts.DataPath = cfg.DataPath
	opts.Encoding = cfg.Encoding
	opts.StrictLabels = cfg.StrictLabels
	if cfg.Workers > 0 {
		opts.Workers = cfg.Workers
	}
	if cfg.TestSize > 0 {
		opts.TestSize = cfg.TestSize
	}
	opts.Seed = cfg.Seed
	opts.Features = features.Config{
		NgramMin:    cfg.NgramMin,
		NgramMax:    cfg.NgramMax,
		MaxFeatures: cfg.MaxFeatures,
	}
	if cfg.Alpha > 0 {
		opts.Alpha = cfg.Alpha
	}
	opts.MaxInputSize = f.cfg.GetInference().MaxInputSize
	return opts
}
