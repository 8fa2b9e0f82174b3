package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/bayes"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
	"github.com/mikey/sms-spam-classifier/internal/features"
)

func fitPair(t *testing.T, name string, docs []string, labels []int) *Pair {
	t.Helper()
	vec, X, err := features.FitTransform(features.DefaultConfig(), docs)
	require.NoError(t, err)
	model, err := bayes.Fit(X, labels, bayes.DefaultAlpha)
	require.NoError(t, err)
	return &Pair{Name: name, Vectorizer: vec, Model: model}
}

func samplePair(t *testing.T, name string) *Pair {
	return fitPair(t, name,
		[]string{"win free prize", "claim cash prize", "lunch tomorrow", "see mum later"},
		[]int{1, 1, 0, 0})
}

func newTestStore(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), keep, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestSaveLoad_RoundTripGivesIdenticalPredictions(t *testing.T) {
	s := newTestStore(t, 0)
	pair := samplePair(t, DefaultModel)

	runID, err := s.Save(pair, map[string]float64{"accuracy": 1})
	require.NoError(t, err)

	loaded, err := s.Load(DefaultModel)
	require.NoError(t, err)
	assert.Equal(t, runID, loaded.RunID)
	assert.Equal(t, DefaultModel, loaded.Name)

	for _, text := range []string{"free prize", "lunch later", "cash", ""} {
		want, err := pair.Vectorizer.Transform(text)
		require.NoError(t, err)
		got, err := loaded.Vectorizer.Transform(text)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), text)

		wantP, err := pair.Model.PredictProba(want)
		require.NoError(t, err)
		gotP, err := loaded.Model.PredictProba(got)
		require.NoError(t, err)
		assert.Equal(t, wantP, gotP, text)
	}
}

func TestSave_LaysOutRunDirectory(t *testing.T) {
	s := newTestStore(t, 0)
	runID, err := s.Save(samplePair(t, DefaultModel), map[string]int{"x": 1})
	require.NoError(t, err)

	for _, f := range []string{vectorizerFile, modelFile, metricsFile, manifestFile} {
		assert.FileExists(t, filepath.Join(s.Dir(), runsDir, runID, f))
	}
	pointer, err := os.ReadFile(filepath.Join(s.Dir(), DefaultModel+pointerSuffix))
	require.NoError(t, err)
	assert.Equal(t, runID, strings.TrimSpace(string(pointer)))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), "leftover temp file %s", e.Name())
	}
}

func TestSave_NewRunReplacesPointer(t *testing.T) {
	s := newTestStore(t, 0)
	first, err := s.Save(samplePair(t, DefaultModel), nil)
	require.NoError(t, err)
	second, err := s.Save(samplePair(t, DefaultModel), nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	current, err := s.Current(DefaultModel)
	require.NoError(t, err)
	assert.Equal(t, second, current)
}

func TestLoad_FallsBackToDefault(t *testing.T) {
	s := newTestStore(t, 0)
	runID, err := s.Save(samplePair(t, DefaultModel), nil)
	require.NoError(t, err)

	pair, err := s.Load("experimental")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, pair.Name)
	assert.Equal(t, runID, pair.RunID)
}

func TestLoad_MissingModelIsConfigurationError(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.Load(DefaultModel)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConfiguration))
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestLoad_InvalidNameIsValidationError(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.Load("../etc")
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestLoad_TamperedFileIsArtifactMismatch(t *testing.T) {
	s := newTestStore(t, 0)
	runID, err := s.Save(samplePair(t, DefaultModel), nil)
	require.NoError(t, err)

	path := filepath.Join(s.Dir(), runsDir, runID, modelFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, ' '), 0o644))

	_, err = s.Load(DefaultModel)
	assert.True(t, apperrors.Is(err, apperrors.KindArtifactMismatch))
}

func TestLoad_SwappedClassifierIsArtifactMismatch(t *testing.T) {
	s := newTestStore(t, 0)
	runA, err := s.Save(samplePair(t, "a"), nil)
	require.NoError(t, err)
	other := fitPair(t, "b",
		[]string{"free", "prize", "hello there friend", "lunch"},
		[]int{1, 1, 0, 0})
	runB, err := s.Save(other, nil)
	require.NoError(t, err)

	// Copy run B's classifier into run A and rewrite A's manifest hash so
	// only the dimension check can catch it.
	modelB, err := os.ReadFile(filepath.Join(s.Dir(), runsDir, runB, modelFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), runsDir, runA, modelFile), modelB, 0o644))

	manifestPath := filepath.Join(s.Dir(), runsDir, runA, manifestFile)
	raw, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	m.ModelSHA256 = digest(modelB)
	raw, err = json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifestPath, raw, 0o644))

	require.NotEqual(t, samplePair(t, "a").Vectorizer.Dim(), other.Vectorizer.Dim())
	_, err = s.Load("a")
	assert.True(t, apperrors.Is(err, apperrors.KindArtifactMismatch))
}

func TestLoad_MissingFileIsConfigurationError(t *testing.T) {
	s := newTestStore(t, 0)
	runID, err := s.Save(samplePair(t, DefaultModel), nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(s.Dir(), runsDir, runID, vectorizerFile)))

	_, err = s.Load(DefaultModel)
	assert.True(t, apperrors.Is(err, apperrors.KindConfiguration))
}

func TestModelsAndMetrics(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.Save(samplePair(t, DefaultModel), map[string]float64{"accuracy": 0.5})
	require.NoError(t, err)
	_, err = s.Save(samplePair(t, "alt"), map[string]float64{"accuracy": 0.75})
	require.NoError(t, err)

	names, err := s.Models()
	require.NoError(t, err)
	assert.Equal(t, []string{"alt", DefaultModel}, names)

	raw, err := s.Metrics("alt")
	require.NoError(t, err)
	assert.JSONEq(t, `{"accuracy": 0.75}`, string(raw))
}

func TestPrune_KeepsNewestAndReferencedRuns(t *testing.T) {
	s := newTestStore(t, 2)

	pinned, err := s.Save(samplePair(t, "pinned"), nil)
	require.NoError(t, err)
	var last string
	for i := 0; i < 4; i++ {
		last, err = s.Save(samplePair(t, DefaultModel), nil)
		require.NoError(t, err)
	}

	runs, err := s.Runs()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.Contains(t, runs, pinned)
	assert.Contains(t, runs, last)

	_, err = s.Load("pinned")
	assert.NoError(t, err)
}

func TestSave_RejectsMismatchedPair(t *testing.T) {
	s := newTestStore(t, 0)
	a := samplePair(t, DefaultModel)
	b := fitPair(t, DefaultModel, []string{"one two", "three four five six"}, []int{0, 1})
	require.NotEqual(t, a.Vectorizer.Dim(), b.Model.NFeatures())

	_, err := s.Save(&Pair{Name: DefaultModel, Vectorizer: a.Vectorizer, Model: b.Model}, nil)
	assert.True(t, apperrors.Is(err, apperrors.KindArtifactMismatch))
}
