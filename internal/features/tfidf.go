// Package features implements the TF-IDF feature extractor used by the
// classifier: unigram and bigram counts over normalized text, a vocabulary
// capped by corpus frequency, smoothed IDF weights and L2-normalized rows.
package features

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	// DefaultMaxFeatures caps the vocabulary size.
	DefaultMaxFeatures = 20000
	// FormatVersion is bumped whenever the serialized layout changes.
	FormatVersion = 1
)

var (
	// ErrNotFitted is returned by Transform on an extractor that was neither fitted nor loaded.
	ErrNotFitted = errors.New("vectorizer is not fitted")
	// ErrEmptyVocabulary is returned when the corpus yields no terms at all.
	ErrEmptyVocabulary = errors.New("empty vocabulary: documents contain no terms of two or more characters")
)

// wordPattern matches runs of two or more word characters.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Config controls n-gram extraction and vocabulary size.
type Config struct {
	NgramMin    int
	NgramMax    int
	MaxFeatures int
}

// DefaultConfig returns unigrams+bigrams capped at DefaultMaxFeatures terms.
func DefaultConfig() Config {
	return Config{NgramMin: 1, NgramMax: 2, MaxFeatures: DefaultMaxFeatures}
}

func (c Config) validate() error {
	if c.NgramMin < 1 || c.NgramMax < c.NgramMin {
		return fmt.Errorf("invalid ngram range (%d, %d)", c.NgramMin, c.NgramMax)
	}
	if c.MaxFeatures < 0 {
		return fmt.Errorf("invalid max features %d", c.MaxFeatures)
	}
	return nil
}

// TFIDF is a fitted feature extractor. It is immutable after Fit or
// UnmarshalJSON and safe for concurrent Transform calls.
type TFIDF struct {
	cfg   Config
	vocab map[string]int
	terms []string
	idf   []float64
}

// Fit builds the vocabulary and IDF weights from corpus.
func Fit(cfg Config, corpus []string) (*TFIDF, error) {
	t, _, err := fit(cfg, corpus, false)
	return t, err
}

// FitTransform is Fit followed by Transform on every document of corpus.
func FitTransform(cfg Config, corpus []string) (*TFIDF, []Vector, error) {
	return fit(cfg, corpus, true)
}

func fit(cfg Config, corpus []string, transform bool) (*TFIDF, []Vector, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	docCounts := make([]map[string]int, len(corpus))
	df := make(map[string]int)
	total := make(map[string]int)
	for i, doc := range corpus {
		counts := countTerms(analyze(doc, cfg))
		docCounts[i] = counts
		for term, c := range counts {
			df[term]++
			total[term] += c
		}
	}
	if len(df) == 0 {
		return nil, nil, ErrEmptyVocabulary
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if cfg.MaxFeatures > 0 && len(terms) > cfg.MaxFeatures {
		sort.Slice(terms, func(a, b int) bool {
			if total[terms[a]] != total[terms[b]] {
				return total[terms[a]] > total[terms[b]]
			}
			return terms[a] < terms[b]
		})
		terms = terms[:cfg.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(corpus))
	t := &TFIDF{
		cfg:   cfg,
		vocab: make(map[string]int, len(terms)),
		terms: terms,
		idf:   make([]float64, len(terms)),
	}
	for i, term := range terms {
		t.vocab[term] = i
		t.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	if !transform {
		return t, nil, nil
	}
	vectors := make([]Vector, len(docCounts))
	for i, counts := range docCounts {
		vectors[i] = t.weigh(counts)
	}
	return t, vectors, nil
}

// Transform maps text to its TF-IDF vector. Terms outside the vocabulary are ignored.
func (t *TFIDF) Transform(text string) (Vector, error) {
	if !t.Fitted() {
		return Vector{}, ErrNotFitted
	}
	return t.weigh(countTerms(analyze(text, t.cfg))), nil
}

// Fitted reports whether the extractor has a vocabulary.
func (t *TFIDF) Fitted() bool {
	return t != nil && len(t.terms) > 0
}

// Dim returns the dimensionality of the feature space.
func (t *TFIDF) Dim() int {
	if t == nil {
		return 0
	}
	return len(t.terms)
}

// Config returns the configuration the extractor was fitted with.
func (t *TFIDF) Config() Config {
	return t.cfg
}

// Vocabulary returns a copy of the term to index mapping.
func (t *TFIDF) Vocabulary() map[string]int {
	out := make(map[string]int, len(t.vocab))
	for k, v := range t.vocab {
		out[k] = v
	}
	return out
}

// IDF returns a copy of the per-index IDF weights.
func (t *TFIDF) IDF() []float64 {
	return append([]float64(nil), t.idf...)
}

// Term returns the term stored at index i.
func (t *TFIDF) Term(i int) string {
	return t.terms[i]
}

func (t *TFIDF) weigh(counts map[string]int) Vector {
	v := Vector{Dim: len(t.terms)}
	for term := range counts {
		idx, ok := t.vocab[term]
		if !ok {
			continue
		}
		v.Indices = append(v.Indices, idx)
	}
	sort.Ints(v.Indices)

	v.Values = make([]float64, len(v.Indices))
	var sumSq float64
	for i, idx := range v.Indices {
		w := float64(counts[t.terms[idx]]) * t.idf[idx]
		v.Values[i] = w
		sumSq += w * w
	}
	if sumSq > 0 {
		norm := math.Sqrt(sumSq)
		for i := range v.Values {
			v.Values[i] /= norm
		}
	}
	return v
}

// analyze extracts the word n-grams of text.
func analyze(text string, cfg Config) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	if cfg.NgramMin == 1 && cfg.NgramMax == 1 {
		return words
	}
	grams := make([]string, 0, len(words)*(cfg.NgramMax-cfg.NgramMin+1))
	for n := cfg.NgramMin; n <= cfg.NgramMax; n++ {
		for i := 0; i+n <= len(words); i++ {
			grams = append(grams, strings.Join(words[i:i+n], " "))
		}
	}
	return grams
}

func countTerms(terms []string) map[string]int {
	counts := make(map[string]int, len(terms))
	for _, term := range terms {
		counts[term]++
	}
	return counts
}
