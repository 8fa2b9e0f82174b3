// Package bayes implements multinomial naive Bayes over sparse TF-IDF vectors.
package bayes

import (
	"errors"
	"fmt"
	"math"
	"sort"

	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
	"github.com/mikey/sms-spam-classifier/internal/features"
)

// DefaultAlpha is additive (Laplace) smoothing.
const DefaultAlpha = 1.0

var (
	// ErrDimensionMismatch means a vector does not live in the model's feature space.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	// ErrNotFitted is returned by a zero-value model.
	ErrNotFitted = errors.New("classifier is not fitted")
)

// Classifier predicts a class label for a feature vector.
type Classifier interface {
	Predict(v features.Vector) (int, error)
	Classes() []int
	NFeatures() int
}

// ProbabilityEstimator is implemented by classifiers that produce
// per-class probabilities, ordered like Classes().
type ProbabilityEstimator interface {
	PredictProba(v features.Vector) ([]float64, error)
}

// MultinomialNB is a fitted multinomial naive Bayes model. It is immutable
// after Fit or UnmarshalJSON and safe for concurrent use.
type MultinomialNB struct {
	alpha          float64
	classes        []int
	classCount     []float64
	classLogPrior  []float64
	featureLogProb [][]float64
	nFeatures      int
}

// Fit trains a model on X with labels y.
func Fit(X []features.Vector, y []int, alpha float64) (*MultinomialNB, error) {
	if len(X) == 0 {
		return nil, errors.New("cannot fit classifier on an empty training set")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("got %d vectors but %d labels", len(X), len(y))
	}
	if alpha <= 0 {
		return nil, fmt.Errorf("alpha must be positive, got %v", alpha)
	}

	classes := uniqueSorted(y)
	if len(classes) < 2 {
		return nil, fmt.Errorf("need at least two classes to fit, got %v", classes)
	}
	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}

	nFeatures := X[0].Dim
	classCount := make([]float64, len(classes))
	featureCount := make([][]float64, len(classes))
	for i := range featureCount {
		featureCount[i] = make([]float64, nFeatures)
	}
	for i, v := range X {
		if v.Dim != nFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrDimensionMismatch, i, v.Dim, nFeatures)
		}
		ci := pos[y[i]]
		classCount[ci]++
		for k, idx := range v.Indices {
			if v.Values[k] < 0 {
				return nil, fmt.Errorf("negative feature value at row %d", i)
			}
			featureCount[ci][idx] += v.Values[k]
		}
	}

	total := float64(len(X))
	m := &MultinomialNB{
		alpha:          alpha,
		classes:        classes,
		classCount:     classCount,
		classLogPrior:  make([]float64, len(classes)),
		featureLogProb: make([][]float64, len(classes)),
		nFeatures:      nFeatures,
	}
	for ci := range classes {
		m.classLogPrior[ci] = math.Log(classCount[ci] / total)

		smoothedTotal := alpha * float64(nFeatures)
		for _, fc := range featureCount[ci] {
			smoothedTotal += fc
		}
		logTotal := math.Log(smoothedTotal)
		flp := make([]float64, nFeatures)
		for j, fc := range featureCount[ci] {
			flp[j] = math.Log(fc+alpha) - logTotal
		}
		m.featureLogProb[ci] = flp
	}
	return m, nil
}

// Predict returns the most likely class for v.
func (m *MultinomialNB) Predict(v features.Vector) (int, error) {
	jll, err := m.jointLogLikelihood(v)
	if err != nil {
		return 0, err
	}
	best := 0
	for ci := 1; ci < len(jll); ci++ {
		if jll[ci] > jll[best] {
			best = ci
		}
	}
	return m.classes[best], nil
}

// PredictProba returns P(class | v) for every class, ordered like Classes().
func (m *MultinomialNB) PredictProba(v features.Vector) ([]float64, error) {
	jll, err := m.jointLogLikelihood(v)
	if err != nil {
		return nil, err
	}
	maxLL := jll[0]
	for _, ll := range jll[1:] {
		maxLL = math.Max(maxLL, ll)
	}
	var sum float64
	for _, ll := range jll {
		sum += math.Exp(ll - maxLL)
	}
	logNorm := maxLL + math.Log(sum)

	proba := make([]float64, len(jll))
	for ci, ll := range jll {
		proba[ci] = math.Exp(ll - logNorm)
	}
	return proba, nil
}

// Classes returns a copy of the sorted class labels.
func (m *MultinomialNB) Classes() []int {
	return append([]int(nil), m.classes...)
}

// NFeatures returns the feature dimensionality the model was fitted on.
func (m *MultinomialNB) NFeatures() int {
	if m == nil {
		return 0
	}
	return m.nFeatures
}

// ClassLogPrior returns a copy of the log prior per class.
func (m *MultinomialNB) ClassLogPrior() []float64 {
	return append([]float64(nil), m.classLogPrior...)
}

// FeatureLogProb returns log P(feature | class) for class index ci.
func (m *MultinomialNB) FeatureLogProb(ci int) []float64 {
	return append([]float64(nil), m.featureLogProb[ci]...)
}

func (m *MultinomialNB) jointLogLikelihood(v features.Vector) ([]float64, error) {
	if m == nil || len(m.classes) == 0 {
		return nil, ErrNotFitted
	}
	if v.Dim != m.nFeatures {
		return nil, apperrors.ArtifactMismatch("feature space does not match the loaded model",
			fmt.Errorf("%w: vector has %d features, model expects %d", ErrDimensionMismatch, v.Dim, m.nFeatures))
	}
	jll := make([]float64, len(m.classes))
	for ci := range m.classes {
		ll := m.classLogPrior[ci]
		flp := m.featureLogProb[ci]
		for k, idx := range v.Indices {
			if idx < 0 || idx >= m.nFeatures {
				return nil, apperrors.ArtifactMismatch("feature index out of range",
					fmt.Errorf("%w: index %d, model expects < %d", ErrDimensionMismatch, idx, m.nFeatures))
			}
			ll += v.Values[k] * flp[idx]
		}
		jll[ci] = ll
	}
	return jll, nil
}

func uniqueSorted(y []int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, c := range y {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}
