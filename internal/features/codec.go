package features

import (
	"encoding/json"
	"fmt"
)

type tfidfState struct {
	Version     int            `json:"version"`
	NgramRange  [2]int         `json:"ngram_range"`
	MaxFeatures int            `json:"max_features"`
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
}

// MarshalJSON serializes the vocabulary together with its IDF weights.
// Go's shortest round-trip float formatting keeps weights bit-identical.
func (t *TFIDF) MarshalJSON() ([]byte, error) {
	if !t.Fitted() {
		return nil, ErrNotFitted
	}
	return json.Marshal(tfidfState{
		Version:     FormatVersion,
		NgramRange:  [2]int{t.cfg.NgramMin, t.cfg.NgramMax},
		MaxFeatures: t.cfg.MaxFeatures,
		Vocabulary:  t.vocab,
		IDF:         t.idf,
	})
}

// UnmarshalJSON restores a fitted extractor and validates its consistency.
func (t *TFIDF) UnmarshalJSON(data []byte) error {
	var st tfidfState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to decode vectorizer: %w", err)
	}
	if st.Version != FormatVersion {
		return fmt.Errorf("unsupported vectorizer format version %d", st.Version)
	}
	cfg := Config{NgramMin: st.NgramRange[0], NgramMax: st.NgramRange[1], MaxFeatures: st.MaxFeatures}
	if err := cfg.validate(); err != nil {
		return err
	}
	if len(st.Vocabulary) == 0 {
		return ErrEmptyVocabulary
	}
	if len(st.IDF) != len(st.Vocabulary) {
		return fmt.Errorf("vectorizer has %d idf weights for %d terms", len(st.IDF), len(st.Vocabulary))
	}

	terms := make([]string, len(st.Vocabulary))
	for term, idx := range st.Vocabulary {
		if idx < 0 || idx >= len(terms) || terms[idx] != "" {
			return fmt.Errorf("vectorizer vocabulary index %d for %q is invalid", idx, term)
		}
		terms[idx] = term
	}

	t.cfg = cfg
	t.vocab = st.Vocabulary
	t.terms = terms
	t.idf = st.IDF
	return nil
}
