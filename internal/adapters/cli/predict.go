// Package cli renders classifier results for the command-line tools.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/core"
	"github.com/mikey/sms-spam-classifier/internal/nlp"
)

// Prediction is the JSON line printed by the predictor.
type Prediction struct {
	Input         string    `json:"input"`
	Transformed   string    `json:"transformed"`
	Steps         nlp.Steps `json:"steps"`
	Prediction    int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
}

// Predictor classifies one message and writes the result as JSON
type Predictor struct {
	service *core.ClassifierService
	logger  *zap.Logger
	out     io.Writer
}

// NewPredictor creates a new CLI predictor writing to out
func NewPredictor(service *core.ClassifierService, logger *zap.Logger, out io.Writer) *Predictor {
	return &Predictor{service: service, logger: logger, out: out}
}

// Predict classifies text with the named model and prints one JSON line.
func (p *Predictor) Predict(ctx context.Context, text, model string) (*core.PredictionResult, error) {
	result, err := p.service.Predict(ctx, text, model)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Classified message",
		zap.String("model", result.Model),
		zap.String("run_id", result.RunID),
		zap.String("label", result.Label))

	line, err := json.Marshal(Prediction{
		Input:         result.Input,
		Transformed:   result.Transformed,
		Steps:         result.Steps,
		Prediction:    result.Prediction,
		Probabilities: result.Probabilities,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode prediction: %w", err)
	}
	if _, err := fmt.Fprintln(p.out, string(line)); err != nil {
		return nil, fmt.Errorf("failed to write prediction: %w", err)
	}
	return result, nil
}
