package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/artifact"
	"github.com/mikey/sms-spam-classifier/internal/core"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
	"github.com/mikey/sms-spam-classifier/internal/nlp"
	"github.com/mikey/sms-spam-classifier/internal/training"
	"github.com/mikey/sms-spam-classifier/internal/utils"
)

func corpus() *training.Corpus {
	c := &training.Corpus{Unrecognized: map[string]int{}}
	for _, text := range []string{
		"WINNER! You won a free prize, call now to claim",
		"Free entry to win cash prizes, text WIN",
		"Claim your free cash prize today",
		"URGENT you have won a cash award, call to claim",
		"Free ringtone, text WIN to claim your prize",
	} {
		c.Examples = append(c.Examples, training.Example{Label: training.LabelSpam, RawLabel: "spam", Text: text})
	}
	for _, text := range []string{
		"Are we still meeting for lunch tomorrow?",
		"I will call you when I get home",
		"Can you pick up milk on the way back",
		"See you at the office in the morning",
		"Thanks for dinner last night",
	} {
		c.Examples = append(c.Examples, training.Example{Label: training.LabelHam, RawLabel: "ham", Text: text})
	}
	return c
}

func newPredictor(t *testing.T) (*Predictor, *bytes.Buffer) {
	t.Helper()
	logger := zap.NewNop()
	normalizer, err := nlp.NewNormalizer(nlp.MustLoadResources())
	require.NoError(t, err)
	arts, err := artifact.NewStore(t.TempDir(), 0, logger)
	require.NoError(t, err)

	opts := training.DefaultOptions()
	opts.Workers = 2
	_, err = training.NewPipeline(normalizer, arts, logger).RunCorpus(context.Background(), corpus(), opts)
	require.NoError(t, err)

	svc := core.NewClassifierService(normalizer, arts, nil, utils.NewTextProcessor(logger), logger, 4096)
	require.NoError(t, svc.Reload(context.Background()))

	var out bytes.Buffer
	return NewPredictor(svc, logger, &out), &out
}

func TestPredictorWritesOneJSONLine(t *testing.T) {
	p, out := newPredictor(t)

	result, err := p.Predict(context.Background(), "WIN a FREE prize now", "")
	require.NoError(t, err)
	assert.Equal(t, core.LabelSpam, result.Label)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 1)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &fields))
	assert.ElementsMatch(t, []string{"input", "transformed", "steps", "prediction", "probabilities"}, keys(fields))

	var got Prediction
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "WIN a FREE prize now", got.Input)
	assert.Equal(t, "win free prize", got.Transformed)
	assert.Equal(t, "win a free prize now", got.Steps.Lower)
	assert.Equal(t, 1, got.Prediction)
	require.Len(t, got.Probabilities, 2)
	assert.Greater(t, got.Probabilities[1], got.Probabilities[0])
}

func TestPredictorRejectsEmptyText(t *testing.T) {
	p, out := newPredictor(t)

	for _, text := range []string{"", "   ", "?!"} {
		_, err := p.Predict(context.Background(), text, "")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindValidation), text)
	}
	assert.Empty(t, out.String())
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestWriteReport(t *testing.T) {
	report := training.Evaluate([]int{0, 0, 1, 1}, []int{0, 1, 1, 1}, []int{0, 1})
	var buf bytes.Buffer
	WriteReport(&buf, &training.Result{
		RunID:        "01HZX3Q4T7N8M0B9C2D5E6F7G8",
		ModelName:    "default",
		Rows:         20,
		TrainRows:    16,
		TestRows:     4,
		NFeatures:    42,
		Report:       report,
		Unrecognized: map[string]int{"junk": 2},
		Duration:     1500 * time.Millisecond,
	})

	s := buf.String()
	assert.Contains(t, s, "Run ID:   01HZX3Q4T7N8M0B9C2D5E6F7G8")
	assert.Contains(t, s, "Rows:     20 (train 16, test 4)")
	assert.Contains(t, s, `Unrecognized label "junk" mapped to ham: 2 rows`)
	for _, want := range []string{"ham", "spam", "accuracy", "macro avg", "weighted avg", "0.75", "0.67"} {
		assert.Contains(t, s, want)
	}
}
