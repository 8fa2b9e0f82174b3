package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ManifestVersion is bumped whenever the run layout changes.
const ManifestVersion = 1

const (
	vectorizerFile = "vectorizer.json"
	modelFile      = "model.json"
	metricsFile    = "metrics.json"
	manifestFile   = "manifest.json"
)

// Manifest records what a run directory must contain.
type Manifest struct {
	Version          int       `json:"version"`
	RunID            string    `json:"run_id"`
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"created_at"`
	VectorizerSHA256 string    `json:"vectorizer_sha256"`
	ModelSHA256      string    `json:"model_sha256"`
	NFeatures        int       `json:"n_features"`
	Classes          []int     `json:"classes"`
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
