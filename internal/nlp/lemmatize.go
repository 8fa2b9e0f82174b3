package nlp

import "strings"

// minLemmaLen is the shortest word the detachment rules apply to.
const minLemmaLen = 4

// Lemmatizer reduces a word to its base form assuming it is a noun: irregular
// plurals come from an exception table, regular ones from suffix detachment.
type Lemmatizer struct {
	res *Resources
}

// NewLemmatizer creates a noun lemmatizer backed by res.
func NewLemmatizer(res *Resources) *Lemmatizer {
	return &Lemmatizer{res: res}
}

// Lemmatize returns the base form of word, or word itself when no rule applies.
func (l *Lemmatizer) Lemmatize(word string) string {
	if base, ok := l.res.nounExceptions[word]; ok {
		return base
	}
	if _, ok := l.res.nounInvariants[word]; ok {
		return word
	}
	if len(word) < minLemmaLen {
		return word
	}

	switch {
	case strings.HasSuffix(word, "ies") && len(word) > minLemmaLen:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "sses"),
		strings.HasSuffix(word, "xes"),
		strings.HasSuffix(word, "ches"),
		strings.HasSuffix(word, "shes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ss"),
		strings.HasSuffix(word, "us"),
		strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	}
	return word
}
