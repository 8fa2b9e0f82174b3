package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/bayes"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
	"github.com/mikey/sms-spam-classifier/internal/features"
)

const (
	runsDir       = "runs"
	pointerSuffix = ".current"
)

// ErrModelNotFound is wrapped when no pointer exists for a model name.
var ErrModelNotFound = errors.New("model not found")

var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Store reads and writes artifact runs under a root directory.
type Store struct {
	dir      string
	keepRuns int
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewStore creates the store, making the directory layout if needed.
// keepRuns <= 0 disables pruning.
func NewStore(dir string, keepRuns int, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, apperrors.Configuration("artifact directory is not configured", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(dir, runsDir), 0o755); err != nil {
		return nil, apperrors.Configuration("failed to create artifact directory", err)
	}
	return &Store{dir: dir, keepRuns: keepRuns, logger: logger}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// ValidateName reports whether name can be used as a model name.
func ValidateName(name string) error {
	if !modelNamePattern.MatchString(name) {
		return apperrors.Validation(fmt.Sprintf("invalid model name %q", name))
	}
	return nil
}

// Save writes the pair and its metrics as a new run and points pair.Name at it.
// Readers observe either the previous run or the new one, never a mix.
func (s *Store) Save(pair *Pair, metrics any) (string, error) {
	if err := pair.Validate(); err != nil {
		return "", err
	}
	name := pair.Name
	if name == "" {
		name = DefaultModel
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}

	vecData, err := json.Marshal(pair.Vectorizer)
	if err != nil {
		return "", fmt.Errorf("failed to encode vectorizer: %w", err)
	}
	modelData, err := json.Marshal(pair.Model)
	if err != nil {
		return "", fmt.Errorf("failed to encode classifier: %w", err)
	}
	metricsData, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode metrics: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runID := ulid.Make().String()
	manifest := Manifest{
		Version:          ManifestVersion,
		RunID:            runID,
		Name:             name,
		CreatedAt:        time.Now().UTC(),
		VectorizerSHA256: digest(vecData),
		ModelSHA256:      digest(modelData),
		NFeatures:        pair.Vectorizer.Dim(),
		Classes:          pair.Model.Classes(),
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}

	root := filepath.Join(s.dir, runsDir)
	tmpDir, err := os.MkdirTemp(root, ".tmp-"+runID+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	files := []struct {
		name string
		data []byte
	}{
		{vectorizerFile, vecData},
		{modelFile, modelData},
		{metricsFile, metricsData},
		{manifestFile, manifestData},
	}
	for _, f := range files {
		if err := writeFileSync(filepath.Join(tmpDir, f.name), f.data); err != nil {
			os.RemoveAll(tmpDir)
			return "", err
		}
	}
	if err := os.Rename(tmpDir, filepath.Join(root, runID)); err != nil {
		os.RemoveAll(tmpDir)
		return "", fmt.Errorf("failed to publish run directory: %w", err)
	}

	if err := s.swapPointer(name, runID); err != nil {
		return "", err
	}
	s.logger.Info("Saved model artifacts",
		zap.String("model", name),
		zap.String("run_id", runID),
		zap.Int("n_features", manifest.NFeatures))

	if err := s.prune(); err != nil {
		s.logger.Warn("Failed to prune old runs", zap.Error(err))
	}
	return runID, nil
}

// Current returns the run id a model name points at.
func (s *Store) Current(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.pointerPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.Configuration(fmt.Sprintf("model %q has not been trained", name), ErrModelNotFound)
		}
		return "", apperrors.Configuration("failed to read model pointer", err)
	}
	runID := strings.TrimSpace(string(data))
	if _, err := ulid.ParseStrict(runID); err != nil {
		return "", apperrors.Configuration(fmt.Sprintf("model pointer for %q is corrupt", name), err)
	}
	return runID, nil
}

// Resolve returns the name and run id to load for name, falling back to
// the default model when name has never been trained.
func (s *Store) Resolve(name string) (string, string, error) {
	if name == "" {
		name = DefaultModel
	}
	runID, err := s.Current(name)
	if err != nil && errors.Is(err, ErrModelNotFound) && name != DefaultModel {
		s.logger.Warn("Model not found, falling back to default", zap.String("model", name))
		name = DefaultModel
		runID, err = s.Current(name)
	}
	if err != nil {
		return "", "", err
	}
	return name, runID, nil
}

// Load loads the pair currently selected for name.
func (s *Store) Load(name string) (*Pair, error) {
	resolved, runID, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	pair, err := s.LoadRun(runID)
	if err != nil {
		return nil, err
	}
	pair.Name = resolved
	return pair, nil
}

// LoadRun loads a specific run and verifies it against its manifest.
func (s *Store) LoadRun(runID string) (*Pair, error) {
	dir := filepath.Join(s.dir, runsDir, runID)

	manifestData, err := readArtifactFile(dir, manifestFile)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, apperrors.Configuration("run manifest is corrupt", err)
	}
	if manifest.Version != ManifestVersion {
		return nil, apperrors.Configuration(fmt.Sprintf("unsupported manifest version %d", manifest.Version), nil)
	}
	if manifest.RunID != runID {
		return nil, apperrors.ArtifactMismatch("run manifest belongs to another run",
			fmt.Errorf("manifest run id %s, directory %s", manifest.RunID, runID))
	}

	vecData, err := readArtifactFile(dir, vectorizerFile)
	if err != nil {
		return nil, err
	}
	modelData, err := readArtifactFile(dir, modelFile)
	if err != nil {
		return nil, err
	}
	if digest(vecData) != manifest.VectorizerSHA256 {
		return nil, apperrors.ArtifactMismatch("vectorizer does not match the run manifest", nil)
	}
	if digest(modelData) != manifest.ModelSHA256 {
		return nil, apperrors.ArtifactMismatch("classifier does not match the run manifest", nil)
	}

	var vec features.TFIDF
	if err := json.Unmarshal(vecData, &vec); err != nil {
		return nil, apperrors.Configuration("vectorizer artifact is corrupt", err)
	}
	var model bayes.MultinomialNB
	if err := json.Unmarshal(modelData, &model); err != nil {
		return nil, apperrors.Configuration("classifier artifact is corrupt", err)
	}
	if vec.Dim() != manifest.NFeatures {
		return nil, apperrors.ArtifactMismatch("vectorizer does not match the run manifest",
			fmt.Errorf("%w: vectorizer has %d features, manifest records %d", bayes.ErrDimensionMismatch, vec.Dim(), manifest.NFeatures))
	}

	pair := &Pair{Name: manifest.Name, RunID: runID, Vectorizer: &vec, Model: &model}
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	return pair, nil
}

// Models lists the names that currently point at a run.
func (s *Store) Models() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.Configuration("failed to list artifact directory", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), pointerSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), pointerSuffix)
		if modelNamePattern.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Metrics returns the stored evaluation report of the run selected for name.
func (s *Store) Metrics(name string) (json.RawMessage, error) {
	_, runID, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := readArtifactFile(filepath.Join(s.dir, runsDir, runID), metricsFile)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, apperrors.Configuration("metrics artifact is corrupt", nil)
	}
	return json.RawMessage(data), nil
}

// Runs lists run ids oldest first.
func (s *Store) Runs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, runsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var runs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := ulid.ParseStrict(e.Name()); err != nil {
			continue
		}
		runs = append(runs, e.Name())
	}
	sort.Strings(runs)
	return runs, nil
}

// prune removes the oldest runs beyond keepRuns. Runs referenced by any
// pointer are never removed.
func (s *Store) prune() error {
	if s.keepRuns <= 0 {
		return nil
	}
	runs, err := s.Runs()
	if err != nil {
		return err
	}
	excess := len(runs) - s.keepRuns
	if excess <= 0 {
		return nil
	}

	names, err := s.Models()
	if err != nil {
		return err
	}
	referenced := make(map[string]bool, len(names))
	for _, name := range names {
		if runID, err := s.Current(name); err == nil {
			referenced[runID] = true
		}
	}

	for _, runID := range runs {
		if excess == 0 {
			break
		}
		if referenced[runID] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, runsDir, runID)); err != nil {
			return fmt.Errorf("failed to remove run %s: %w", runID, err)
		}
		s.logger.Debug("Pruned old run", zap.String("run_id", runID))
		excess--
	}
	return nil
}

func (s *Store) pointerPath(name string) string {
	return filepath.Join(s.dir, name+pointerSuffix)
}

// swapPointer replaces the pointer file with a rename so readers never see
// a partially written run id.
func (s *Store) swapPointer(name, runID string) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+pointerSuffix+".*")
	if err != nil {
		return fmt.Errorf("failed to create pointer file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(runID + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write pointer file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync pointer file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close pointer file: %w", err)
	}
	if err := os.Rename(tmpName, s.pointerPath(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to swap pointer file: %w", err)
	}
	return nil
}

func readArtifactFile(dir, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Configuration(fmt.Sprintf("artifact file %s is missing", name), err)
		}
		return nil, apperrors.Configuration(fmt.Sprintf("failed to read artifact file %s", name), err)
	}
	return data, nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
