package nlp

import (
	"fmt"
	"strings"
	"unicode/utf8"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Steps records every intermediate stage of a normalization run.
type Steps struct {
	Raw            string   `json:"raw"`
	Lower          string   `json:"lower"`
	Tokens         []string `json:"tokens"`
	TokensAlpha    []string `json:"tokens_alpha"`
	AfterStop      []string `json:"after_stop"`
	AfterLemmatize []string `json:"after_lemmatize"`
	AfterStem      []string `json:"after_stem"`
	Transformed    string   `json:"transformed"`
}

// Normalizer turns raw SMS text into the canonical token stream the
// vectorizer is trained on. It holds no mutable state and is safe for
// concurrent use.
type Normalizer struct {
	res        *Resources
	lemmatizer *Lemmatizer
}

// NewNormalizer creates a Normalizer after running the resource readiness check.
func NewNormalizer(res *Resources) (*Normalizer, error) {
	if err := res.Check(); err != nil {
		return nil, err
	}
	return &Normalizer{
		res:        res,
		lemmatizer: NewLemmatizer(res),
	}, nil
}

// Check re-runs the resource readiness check.
func (n *Normalizer) Check() error {
	if n == nil {
		return (*Resources)(nil).Check()
	}
	return n.res.Check()
}

// Normalize returns the normalized text for raw.
func (n *Normalizer) Normalize(raw string) string {
	return n.Explain(raw).Transformed
}

// NormalizeValue formats v with fmt.Sprint and normalizes the result.
// A nil value is a missing field and normalizes to "".
func (n *Normalizer) NormalizeValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return n.Normalize(s)
	default:
		return n.Normalize(fmt.Sprint(s))
	}
}

// Explain runs the pipeline and returns the output of every stage.
// The stage order is fixed: lowercase, tokenize, keep alphanumeric tokens,
// drop stopwords and punctuation, lemmatize, stem.
func (n *Normalizer) Explain(raw string) Steps {
	// Invalid bytes are dropped the same way request input is sanitized;
	// the segmenter would otherwise stop at the first one.
	clean := strings.ToValidUTF8(raw, "")
	// cases.Caser is stateful, so one per call.
	lower := cases.Lower(language.Und).String(norm.NFC.String(clean))

	tokens := tokenize(lower)
	alpha := lo.Filter(tokens, func(t string, _ int) bool {
		return isAlnum(t)
	})
	afterStop := lo.Filter(alpha, func(t string, _ int) bool {
		return !n.res.IsStopword(t) && !n.res.IsPunctuation(t)
	})
	lemmas := lo.Map(afterStop, func(t string, _ int) string {
		return n.lemmatizer.Lemmatize(t)
	})
	stems := lo.Map(lemmas, func(t string, _ int) string {
		return stem(t)
	})

	return Steps{
		Raw:            raw,
		Lower:          lower,
		Tokens:         nonNil(tokens),
		TokensAlpha:    nonNil(alpha),
		AfterStop:      nonNil(afterStop),
		AfterLemmatize: nonNil(lemmas),
		AfterStem:      nonNil(stems),
		Transformed:    strings.Join(stems, " "),
	}
}

// stem applies the Porter stemmer; words of one or two runes are left alone.
func stem(word string) string {
	if utf8.RuneCountInString(word) <= 2 {
		return word
	}
	return porterstemmer.StemString(word)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
