package nlp

import (
	"strings"
	"unicode"

	"github.com/blevesearch/segment"
)

// contractionSuffixes are split off the end of a word, Treebank style.
// Order matters: "n't" must be tried before "'t" could ever match.
var contractionSuffixes = []string{"n't", "'ll", "'re", "'ve", "'s", "'m", "'d"}

// fusedWords are single words the Treebank tokenizer splits in two.
var fusedWords = map[string][2]string{
	"cannot": {"can", "not"},
	"gimme":  {"gim", "me"},
	"gonna":  {"gon", "na"},
	"gotta":  {"got", "ta"},
	"lemme":  {"lem", "me"},
	"wanna":  {"wan", "na"},
}

// tokenize splits text on Unicode word boundaries (UAX #29). Whitespace is
// discarded, every other non-word segment (punctuation, symbols) becomes a
// token of its own, and English contractions are split off the word they
// are attached to.
func tokenize(text string) []string {
	tokens := make([]string, 0, len(text)/4+1)
	seg := segment.NewWordSegmenterDirect([]byte(text))
	for seg.Segment() {
		s := string(seg.Bytes())
		if strings.TrimFunc(s, unicode.IsSpace) == "" {
			continue
		}
		if seg.Type() == segment.None {
			tokens = append(tokens, s)
			continue
		}
		tokens = append(tokens, splitWord(s)...)
	}
	return tokens
}

func splitWord(word string) []string {
	if pair, ok := fusedWords[word]; ok {
		return []string{pair[0], pair[1]}
	}
	w := strings.ReplaceAll(word, "’", "'")
	if !strings.Contains(w, "'") {
		return []string{word}
	}
	for _, suffix := range contractionSuffixes {
		if strings.HasSuffix(w, suffix) && len(w) > len(suffix) {
			return []string{w[:len(w)-len(suffix)], suffix}
		}
	}
	return []string{w}
}

// isAlnum reports whether every rune of s is a letter or a number.
func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
