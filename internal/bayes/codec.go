package bayes

import (
	"encoding/json"
	"fmt"
)

// FormatVersion is bumped whenever the serialized layout changes.
const FormatVersion = 1

type modelState struct {
	Version        int         `json:"version"`
	Alpha          float64     `json:"alpha"`
	Classes        []int       `json:"classes"`
	ClassCount     []float64   `json:"class_count"`
	ClassLogPrior  []float64   `json:"class_log_prior"`
	FeatureLogProb [][]float64 `json:"feature_log_prob"`
	NFeatures      int         `json:"n_features"`
}

// MarshalJSON serializes priors and per-class feature log probabilities.
func (m *MultinomialNB) MarshalJSON() ([]byte, error) {
	if m == nil || len(m.classes) == 0 {
		return nil, ErrNotFitted
	}
	return json.Marshal(modelState{
		Version:        FormatVersion,
		Alpha:          m.alpha,
		Classes:        m.classes,
		ClassCount:     m.classCount,
		ClassLogPrior:  m.classLogPrior,
		FeatureLogProb: m.featureLogProb,
		NFeatures:      m.nFeatures,
	})
}

// UnmarshalJSON restores a fitted model and validates its shape.
func (m *MultinomialNB) UnmarshalJSON(data []byte) error {
	var st modelState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to decode classifier: %w", err)
	}
	if st.Version != FormatVersion {
		return fmt.Errorf("unsupported classifier format version %d", st.Version)
	}
	n := len(st.Classes)
	if n < 2 {
		return fmt.Errorf("classifier has %d classes, need at least 2", n)
	}
	if len(st.ClassLogPrior) != n || len(st.FeatureLogProb) != n || len(st.ClassCount) != n {
		return fmt.Errorf("classifier arrays do not match %d classes", n)
	}
	for ci, flp := range st.FeatureLogProb {
		if len(flp) != st.NFeatures {
			return fmt.Errorf("%w: class %d has %d feature weights, expected %d", ErrDimensionMismatch, ci, len(flp), st.NFeatures)
		}
	}

	m.alpha = st.Alpha
	m.classes = st.Classes
	m.classCount = st.ClassCount
	m.classLogPrior = st.ClassLogPrior
	m.featureLogProb = st.FeatureLogProb
	m.nFeatures = st.NFeatures
	return nil
}
