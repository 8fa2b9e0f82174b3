// Package training fits the vectorizer and classifier from a labeled corpus,
// evaluates them and persists the resulting artifact pair.
package training

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/sms-spam-classifier/internal/artifact"
	"github.com/mikey/sms-spam-classifier/internal/bayes"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
	"github.com/mikey/sms-spam-classifier/internal/features"
	"github.com/mikey/sms-spam-classifier/internal/nlp"
	"github.com/mikey/sms-spam-classifier/internal/utils"
)

// DefaultMaxInputSize is the byte limit applied to every text before
// normalization, matching the inference limit.
const DefaultMaxInputSize = 4096

// State is a stage of a training run.
type State string

const (
	StateLoadingCorpus     State = "LoadingCorpus"
	StateNormalizing       State = "Normalizing"
	StateFittingExtractor  State = "FittingExtractor"
	StateFittingClassifier State = "FittingClassifier"
	StateEvaluating        State = "Evaluating"
	StatePersisting        State = "Persisting"
	StateDone              State = "Done"
	StateFailed            State = "Failed"
)

// Observer is notified of every state transition.
type Observer func(State)

// Options configures a training run.
type Options struct {
	DataPath     string
	ModelName    string
	Encoding     string
	StrictLabels bool
	Workers      int
	TestSize     float64
	Seed         int64
	Features     features.Config
	Alpha        float64
	// MaxInputSize truncates each text the way inference does; 0 disables it
	MaxInputSize int
}

// DefaultOptions returns the standard training configuration.
func DefaultOptions() Options {
	return Options{
		ModelName:    artifact.DefaultModel,
		Encoding:     EncodingLatin1,
		Workers:      runtime.NumCPU(),
		TestSize:     DefaultTestSize,
		Seed:         DefaultSeed,
		Features:     features.DefaultConfig(),
		Alpha:        bayes.DefaultAlpha,
		MaxInputSize: DefaultMaxInputSize,
	}
}

// Result summarizes a finished run.
type Result struct {
	RunID        string
	ModelName    string
	Rows         int
	TrainRows    int
	TestRows     int
	NFeatures    int
	Report       Report
	Unrecognized map[string]int
	Duration     time.Duration
}

// Saver persists a fitted pair with its metrics and returns the run id.
type Saver interface {
	Save(pair *artifact.Pair, metrics any) (string, error)
}

// Pipeline runs training end to end.
type Pipeline struct {
	normalizer *nlp.Normalizer
	text       *utils.TextProcessor
	saver      Saver
	logger     *zap.Logger
	observer   Observer
}

// NewPipeline creates a training pipeline.
func NewPipeline(normalizer *nlp.Normalizer, saver Saver, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		normalizer: normalizer,
		text:       utils.NewTextProcessor(logger.Named("text")),
		saver:      saver,
		logger:     logger,
	}
}

// WithObserver sets a callback for state transitions.
func (p *Pipeline) WithObserver(o Observer) *Pipeline {
	p.observer = o
	return p
}

// Run loads the corpus at opts.DataPath and trains on it.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	p.enter(StateLoadingCorpus)
	corpus, err := LoadCorpus(opts.DataPath, LoadOptions{Encoding: opts.Encoding, StrictLabels: opts.StrictLabels})
	if err != nil {
		return nil, p.fail(err)
	}
	return p.RunCorpus(ctx, corpus, opts)
}

// RunCorpus trains on an already loaded corpus.
func (p *Pipeline) RunCorpus(ctx context.Context, corpus *Corpus, opts Options) (*Result, error) {
	start := time.Now()
	opts = withDefaults(opts)

	if len(corpus.Unrecognized) > 0 {
		p.logger.Warn("Corpus contains unrecognized labels, treating them as ham",
			zap.Strings("labels", corpus.UnrecognizedLabels()),
			zap.Int("rows", lo.Sum(lo.Values(corpus.Unrecognized))))
	}
	if corpus.DroppedEmpty > 0 {
		p.logger.Info("Dropped rows with empty label", zap.Int("rows", corpus.DroppedEmpty))
	}

	labels := corpus.Labels()
	// Fail before doing any work when the split cannot succeed.
	trainIdx, testIdx, err := StratifiedSplit(labels, opts.TestSize, opts.Seed)
	if err != nil {
		return nil, p.fail(err)
	}

	if err := p.checkpoint(ctx, StateNormalizing); err != nil {
		return nil, err
	}
	normalized, err := p.normalizeAll(ctx, corpus.Texts(), opts.Workers, opts.MaxInputSize)
	if err != nil {
		return nil, p.fail(err)
	}

	if err := p.checkpoint(ctx, StateFittingExtractor); err != nil {
		return nil, err
	}
	vec, X, err := features.FitTransform(opts.Features, normalized)
	if err != nil {
		return nil, p.fail(apperrors.Configuration("failed to fit vectorizer", err))
	}
	p.logger.Info("Fitted vectorizer", zap.Int("n_features", vec.Dim()))

	if err := p.checkpoint(ctx, StateFittingClassifier); err != nil {
		return nil, err
	}
	evalModel, err := bayes.Fit(pick(X, trainIdx), pick(labels, trainIdx), opts.Alpha)
	if err != nil {
		return nil, p.fail(apperrors.Configuration("failed to fit classifier", err))
	}

	if err := p.checkpoint(ctx, StateEvaluating); err != nil {
		return nil, err
	}
	yTest := pick(labels, testIdx)
	yPred := make([]int, len(testIdx))
	for i, row := range testIdx {
		if yPred[i], err = evalModel.Predict(X[row]); err != nil {
			return nil, p.fail(err)
		}
	}
	report := Evaluate(yTest, yPred, evalModel.Classes())
	p.logger.Info("Evaluated classifier",
		zap.Float64("accuracy", report.Accuracy),
		zap.Int("train_rows", len(trainIdx)),
		zap.Int("test_rows", len(testIdx)))

	// The shipped classifier sees every row.
	finalModel, err := bayes.Fit(X, labels, opts.Alpha)
	if err != nil {
		return nil, p.fail(apperrors.Configuration("failed to fit classifier", err))
	}

	if err := p.checkpoint(ctx, StatePersisting); err != nil {
		return nil, err
	}
	runID, err := p.saver.Save(&artifact.Pair{Name: opts.ModelName, Vectorizer: vec, Model: finalModel}, NewMetrics(report))
	if err != nil {
		return nil, p.fail(err)
	}

	p.enter(StateDone)
	return &Result{
		RunID:        runID,
		ModelName:    opts.ModelName,
		Rows:         len(labels),
		TrainRows:    len(trainIdx),
		TestRows:     len(testIdx),
		NFeatures:    vec.Dim(),
		Report:       report,
		Unrecognized: corpus.Unrecognized,
		Duration:     time.Since(start),
	}, nil
}

// normalizeAll sanitizes, truncates and normalizes texts with a bounded
// worker pool, preserving order.
func (p *Pipeline) normalizeAll(ctx context.Context, texts []string, workers, maxSize int) ([]string, error) {
	out := make([]string, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, text := range texts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.normalizer.Normalize(p.text.ProcessText(text, maxSize))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("normalization aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("normalization aborted: %w", err)
	}
	return out, nil
}

func (p *Pipeline) checkpoint(ctx context.Context, next State) error {
	if err := ctx.Err(); err != nil {
		return p.fail(fmt.Errorf("training aborted before %s: %w", next, err))
	}
	p.enter(next)
	return nil
}

func (p *Pipeline) enter(s State) {
	p.logger.Debug("Training state", zap.String("state", string(s)))
	if p.observer != nil {
		p.observer(s)
	}
}

func (p *Pipeline) fail(err error) error {
	p.logger.Error("Training failed", zap.Error(err))
	p.enter(StateFailed)
	return err
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.ModelName == "" {
		opts.ModelName = def.ModelName
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.TestSize == 0 {
		opts.TestSize = def.TestSize
	}
	if opts.Features == (features.Config{}) {
		opts.Features = def.Features
	}
	if opts.Alpha == 0 {
		opts.Alpha = def.Alpha
	}
	return opts
}

func pick[T any](rows []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}
