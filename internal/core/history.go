package core

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// HistoryService records and lists per-user predictions
type HistoryService struct {
	repo   HistoryRepository
	logger *zap.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(repo HistoryRepository, logger *zap.Logger) *HistoryService {
	return &HistoryService{repo: repo, logger: logger}
}

// Append stores a prediction for identity.
func (h *HistoryService) Append(ctx context.Context, identity, raw string, result *PredictionResult) error {
	record := &HistoryRecord{
		ID:            uuid.New().String(),
		Identity:      NormalizeIdentity(identity),
		Text:          raw,
		Transformed:   result.Transformed,
		Steps:         result.Steps,
		Prediction:    result.Prediction,
		Label:         result.Label,
		Probabilities: result.Probabilities,
		Model:         result.Model,
		CreatedAt:     result.AnalyzedAt,
	}
	if err := h.repo.Append(ctx, record); err != nil {
		return apperrors.UpstreamStore("prediction history unavailable", err)
	}
	return nil
}

// ListFor returns identity's newest records. limit <= 0 selects the
// default and anything above the cap is clamped.
func (h *HistoryService) ListFor(ctx context.Context, identity string, limit int) ([]HistoryRecord, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	records, err := h.repo.ListFor(ctx, NormalizeIdentity(identity), limit)
	if err != nil {
		h.logger.Warn("Failed to list prediction history", zap.String("identity", identity), zap.Error(err))
		return nil, apperrors.UpstreamStore("prediction history unavailable", err)
	}
	if records == nil {
		records = []HistoryRecord{}
	}
	return records, nil
}
