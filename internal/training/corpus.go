package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"

	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
)

const (
	LabelHam  = 0
	LabelSpam = 1
)

// Supported corpus encodings.
const (
	EncodingLatin1 = "latin-1"
	EncodingUTF8   = "utf-8"
)

// Example is one labeled row of the training corpus.
type Example struct {
	Label    int
	RawLabel string
	Text     string
}

// Corpus is the parsed training data.
type Corpus struct {
	Examples []Example
	// Unrecognized counts labels that were neither spam nor ham.
	Unrecognized map[string]int
	// DroppedEmpty is the number of rows dropped for an empty label.
	DroppedEmpty int
}

// Labels returns the label column.
func (c *Corpus) Labels() []int {
	out := make([]int, len(c.Examples))
	for i, ex := range c.Examples {
		out[i] = ex.Label
	}
	return out
}

// Texts returns the text column.
func (c *Corpus) Texts() []string {
	out := make([]string, len(c.Examples))
	for i, ex := range c.Examples {
		out[i] = ex.Text
	}
	return out
}

// UnrecognizedLabels returns the unrecognized label values, sorted.
func (c *Corpus) UnrecognizedLabels() []string {
	out := make([]string, 0, len(c.Unrecognized))
	for l := range c.Unrecognized {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// LoadOptions controls corpus parsing.
type LoadOptions struct {
	Encoding     string
	StrictLabels bool
}

// MapLabel maps a raw label to spam (1) or ham (0). known is false for
// anything other than spam or ham, which still maps to ham.
func MapLabel(raw string) (label int, known bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "spam":
		return LabelSpam, true
	case "ham":
		return LabelHam, true
	default:
		return LabelHam, false
	}
}

// LoadCorpus reads a CSV corpus from path.
func LoadCorpus(path string, opts LoadOptions) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Configuration(fmt.Sprintf("training data not found: %s", path), err)
		}
		return nil, apperrors.Configuration("failed to open training data", err)
	}
	defer f.Close()
	return ReadCorpus(f, opts)
}

// ReadCorpus parses a CSV corpus. The first row is a header. The first two
// columns are label and text; extra columns are ignored.
func ReadCorpus(r io.Reader, opts LoadOptions) (*Corpus, error) {
	decoded, err := decodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.Configuration("training data is empty", nil)
		}
		return nil, apperrors.Configuration("failed to read training data header", err)
	}

	corpus := &Corpus{Unrecognized: make(map[string]int)}
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.Configuration(fmt.Sprintf("failed to parse training data at row %d", row), err)
		}
		if len(record) < 2 {
			return nil, apperrors.Configuration(
				fmt.Sprintf("training data row %d has %d column(s), need label and text", row, len(record)), nil)
		}

		raw := record[0]
		if strings.TrimSpace(raw) == "" {
			corpus.DroppedEmpty++
			continue
		}
		label, known := MapLabel(raw)
		if !known {
			if opts.StrictLabels {
				return nil, apperrors.Configuration(
					fmt.Sprintf("training data row %d has unrecognized label %q", row, raw), nil)
			}
			corpus.Unrecognized[strings.TrimSpace(raw)]++
		}
		corpus.Examples = append(corpus.Examples, Example{Label: label, RawLabel: raw, Text: record[1]})
	}

	if len(corpus.Examples) == 0 {
		return nil, apperrors.Configuration("training data has no labeled rows", nil)
	}
	return corpus, nil
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingLatin1, "latin1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	case EncodingUTF8, "utf8":
		return r, nil
	default:
		return nil, apperrors.Configuration(fmt.Sprintf("unsupported corpus encoding %q", encoding), nil)
	}
}
