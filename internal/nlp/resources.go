package nlp

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"os"
	"strings"

	porterstemmer "github.com/blevesearch/go-porterstemmer"

	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
)

//go:embed data/*.txt
var dataFS embed.FS

// punctuation mirrors the ASCII punctuation set used for single-character token filtering.
const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// minStopwords guards against truncated or empty stopword files.
const minStopwords = 100

// Resources is the immutable linguistic data shared by every Normalizer.
// Build it once at startup with LoadResources and inject it.
type Resources struct {
	stopwords       map[string]struct{}
	nounExceptions  map[string]string
	nounInvariants  map[string]struct{}
	punctuationRune map[rune]struct{}
}

// LoadResources loads the embedded English resources. A non-empty
// stopwordsPath replaces the embedded stopword list with a file of one word per line.
func LoadResources(stopwordsPath string) (*Resources, error) {
	var stopData []byte
	var err error
	if stopwordsPath != "" {
		stopData, err = os.ReadFile(stopwordsPath)
		if err != nil {
			return nil, apperrors.Configuration("stopword list unavailable", err)
		}
	} else {
		stopData, err = dataFS.ReadFile("data/stopwords_en.txt")
		if err != nil {
			return nil, apperrors.Configuration("embedded stopword list unavailable", err)
		}
	}

	excData, err := dataFS.ReadFile("data/noun_exceptions.txt")
	if err != nil {
		return nil, apperrors.Configuration("embedded noun exceptions unavailable", err)
	}
	invData, err := dataFS.ReadFile("data/noun_invariants.txt")
	if err != nil {
		return nil, apperrors.Configuration("embedded noun invariants unavailable", err)
	}

	res := &Resources{
		stopwords:       make(map[string]struct{}),
		nounExceptions:  make(map[string]string),
		nounInvariants:  make(map[string]struct{}),
		punctuationRune: make(map[rune]struct{}, len(punctuation)),
	}
	for _, w := range readLines(stopData) {
		res.stopwords[strings.ToLower(w)] = struct{}{}
	}
	for _, line := range readLines(excData) {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, apperrors.Configuration("malformed noun exception entry", fmt.Errorf("line %q", line))
		}
		res.nounExceptions[fields[0]] = fields[1]
	}
	for _, w := range readLines(invData) {
		res.nounInvariants[w] = struct{}{}
	}
	for _, r := range punctuation {
		res.punctuationRune[r] = struct{}{}
	}

	if err := res.Check(); err != nil {
		return nil, err
	}
	return res, nil
}

// MustLoadResources is LoadResources with the embedded data, panicking on failure.
func MustLoadResources() *Resources {
	res, err := LoadResources("")
	if err != nil {
		panic(err)
	}
	return res
}

// Check is the startup readiness check: it verifies that every resource is
// present and that the tokenizer and stemmer behave as expected.
func (r *Resources) Check() error {
	if r == nil {
		return apperrors.Configuration("linguistic resources not initialised", nil)
	}
	if len(r.stopwords) < minStopwords {
		return apperrors.Configuration("stopword list too small",
			fmt.Errorf("got %d entries, want at least %d", len(r.stopwords), minStopwords))
	}
	if _, ok := r.stopwords["the"]; !ok {
		return apperrors.Configuration("stopword list is not English", nil)
	}
	if len(r.nounExceptions) == 0 {
		return apperrors.Configuration("noun exception list empty", nil)
	}
	if got := tokenize("hello, world"); len(got) != 3 {
		return apperrors.Configuration("word tokenizer self-check failed", fmt.Errorf("got %q", got))
	}
	if got := porterstemmer.StemString("running"); got != "run" {
		return apperrors.Configuration("stemmer self-check failed", fmt.Errorf("stem(running) = %q", got))
	}
	return nil
}

// IsStopword reports whether w is in the stopword list.
func (r *Resources) IsStopword(w string) bool {
	_, ok := r.stopwords[w]
	return ok
}

// IsPunctuation reports whether w is exactly one ASCII punctuation character.
func (r *Resources) IsPunctuation(w string) bool {
	if len(w) != 1 {
		return false
	}
	_, ok := r.punctuationRune[rune(w[0])]
	return ok
}

// Stopwords returns a copy of the stopword list.
func (r *Resources) Stopwords() []string {
	out := make([]string, 0, len(r.stopwords))
	for w := range r.stopwords {
		out = append(out, w)
	}
	return out
}

func readLines(data []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
