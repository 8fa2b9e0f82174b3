package core

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/artifact"
	"github.com/mikey/sms-spam-classifier/internal/bayes"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
	"github.com/mikey/sms-spam-classifier/internal/features"
	"github.com/mikey/sms-spam-classifier/internal/nlp"
	"github.com/mikey/sms-spam-classifier/internal/utils"
)

// modelSet is an immutable snapshot of every loaded pair.
type modelSet struct {
	pairs    map[string]*artifact.Pair
	loadedAt time.Time
}

// ClassifierService is the core service for SMS classification
type ClassifierService struct {
	normalizer    *nlp.Normalizer
	loader        ModelLoader
	history       *HistoryService
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	maxInputSize  int
	models        atomic.Pointer[modelSet]
}

// NewClassifierService creates a new classifier service. Call Reload before
// the first prediction. history may be nil.
func NewClassifierService(
	normalizer *nlp.Normalizer,
	loader ModelLoader,
	history *HistoryService,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
	maxInputSize int,
) *ClassifierService {
	return &ClassifierService{
		normalizer:    normalizer,
		loader:        loader,
		history:       history,
		textProcessor: textProcessor,
		logger:        logger,
		maxInputSize:  maxInputSize,
	}
}

// Reload loads every trained model and swaps them in as one unit. On error
// the previously loaded set stays active.
func (s *ClassifierService) Reload(ctx context.Context) error {
	names, err := s.loader.Models()
	if err != nil {
		return err
	}
	if !lo.Contains(names, artifact.DefaultModel) {
		return apperrors.Configuration("default model has not been trained", artifact.ErrModelNotFound)
	}

	pairs := make(map[string]*artifact.Pair, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		pair, err := s.loader.Load(name)
		if err != nil {
			s.logger.Error("Failed to load model", zap.String("model", name), zap.Error(err))
			return err
		}
		pairs[name] = pair
	}

	s.models.Store(&modelSet{pairs: pairs, loadedAt: time.Now()})
	s.logger.Info("Loaded models", zap.Strings("models", names))
	return nil
}

// Ready reports whether the service can classify.
func (s *ClassifierService) Ready() error {
	if err := s.normalizer.Check(); err != nil {
		return err
	}
	if s.models.Load() == nil {
		return apperrors.Configuration("no model loaded", nil)
	}
	return nil
}

// Models returns the loaded model names.
func (s *ClassifierService) Models() []string {
	set := s.models.Load()
	if set == nil {
		return []string{}
	}
	names := make([]string, 0, len(set.pairs))
	for name := range set.pairs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metrics returns the stored evaluation report for a model.
func (s *ClassifierService) Metrics(name string) (json.RawMessage, error) {
	return s.loader.Metrics(name)
}

// Predict classifies text with the named model, or the default one.
func (s *ClassifierService) Predict(ctx context.Context, text, model string) (*PredictionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pair, err := s.pair(model)
	if err != nil {
		return nil, err
	}

	steps := s.normalizer.Explain(s.textProcessor.ProcessText(text, s.maxInputSize))
	if steps.Transformed == "" {
		return nil, apperrors.Validation("message has no words to classify")
	}

	vec, err := pair.Vectorizer.Transform(steps.Transformed)
	if err != nil {
		if errors.Is(err, features.ErrNotFitted) {
			return nil, apperrors.Configuration("vectorizer is not fitted", err)
		}
		return nil, err
	}

	var clf bayes.Classifier = pair.Model
	prediction, err := clf.Predict(vec)
	if err != nil {
		return nil, err
	}
	var probabilities []float64
	if pe, ok := clf.(bayes.ProbabilityEstimator); ok {
		if probabilities, err = pe.PredictProba(vec); err != nil {
			return nil, err
		}
	}

	result := &PredictionResult{
		Input:         text,
		Transformed:   steps.Transformed,
		Steps:         steps,
		Prediction:    prediction,
		Label:         LabelName(prediction),
		Probabilities: probabilities,
		Model:         pair.Name,
		RunID:         pair.RunID,
		AnalyzedAt:    time.Now().UTC(),
	}
	s.logger.Debug("Classified message",
		zap.String("model", pair.Name),
		zap.String("label", result.Label),
		zap.Int("tokens", len(steps.AfterStem)))
	return result, nil
}

// PredictFor classifies text and records it in identity's history. A
// history failure is reported in the result and never fails the prediction.
func (s *ClassifierService) PredictFor(ctx context.Context, identity, text, model string) (*PredictionResult, error) {
	result, err := s.Predict(ctx, text, model)
	if err != nil {
		return nil, err
	}
	if s.history == nil || identity == "" {
		return result, nil
	}
	if err := s.history.Append(ctx, identity, text, result); err != nil {
		s.logger.Warn("Failed to record prediction history", zap.String("identity", identity), zap.Error(err))
		result.HistoryError = apperrors.PublicMessage(err)
	}
	return result, nil
}

func (s *ClassifierService) pair(model string) (*artifact.Pair, error) {
	set := s.models.Load()
	if set == nil {
		return nil, apperrors.Configuration("no model loaded", nil)
	}
	if model == "" {
		model = artifact.DefaultModel
	}
	if pair, ok := set.pairs[model]; ok {
		return pair, nil
	}
	if err := artifact.ValidateName(model); err != nil {
		return nil, err
	}
	s.logger.Debug("Model not loaded, using default", zap.String("model", model))
	pair, ok := set.pairs[artifact.DefaultModel]
	if !ok {
		return nil, apperrors.Configuration("default model is not loaded", nil)
	}
	return pair, nil
}
