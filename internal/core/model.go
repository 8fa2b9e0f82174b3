package core

import (
	"time"

	"github.com/mikey/sms-spam-classifier/internal/nlp"
)

const (
	LabelHam  = "ham"
	LabelSpam = "spam"
)

// LabelName maps a class index to its label.
func LabelName(prediction int) string {
	if prediction == 1 {
		return LabelSpam
	}
	return LabelHam
}

// PredictionResult is the outcome of classifying one message.
type PredictionResult struct {
	Input       string    `json:"input"`
	Transformed string    `json:"transformed"`
	Steps       nlp.Steps `json:"steps"`
	Prediction  int       `json:"prediction"`
	Label       string    `json:"label"`
	// Probabilities is [P(ham), P(spam)], or nil when the model cannot estimate them.
	Probabilities []float64 `json:"probabilities"`
	Model         string    `json:"model"`
	RunID         string    `json:"run_id"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
	// HistoryError is set when the prediction succeeded but could not be recorded.
	HistoryError string `json:"history_error,omitempty"`
}

// SpamProbability returns P(spam) and whether it is known.
func (r *PredictionResult) SpamProbability() (float64, bool) {
	if len(r.Probabilities) < 2 {
		return 0, false
	}
	return r.Probabilities[1], true
}

// HistoryRecord is one stored prediction for a user.
type HistoryRecord struct {
	ID            string    `json:"id"`
	Identity      string    `json:"identity"`
	Text          string    `json:"text"`
	Transformed   string    `json:"transformed"`
	Steps         nlp.Steps `json:"steps"`
	Prediction    int       `json:"prediction"`
	Label         string    `json:"label"`
	Probabilities []float64 `json:"probabilities"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"created_at"`
}

// User is a registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
