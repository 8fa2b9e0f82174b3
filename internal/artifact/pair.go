// Package artifact persists fitted vectorizer/classifier pairs as immutable
// run directories selected through an atomically swapped pointer file.
package artifact

import (
	"fmt"

	"github.com/mikey/sms-spam-classifier/internal/bayes"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
	"github.com/mikey/sms-spam-classifier/internal/features"
)

// DefaultModel is the model name used when none is requested.
const DefaultModel = "default"

// Pair binds a vectorizer to the classifier fitted on its output.
type Pair struct {
	Name       string
	RunID      string
	Vectorizer *features.TFIDF
	Model      *bayes.MultinomialNB
}

// Validate checks that both halves are present and share one feature space.
func (p *Pair) Validate() error {
	if p == nil || p.Vectorizer == nil || p.Model == nil {
		return apperrors.Configuration("artifact pair is incomplete", nil)
	}
	if !p.Vectorizer.Fitted() {
		return apperrors.Configuration("vectorizer is not fitted", features.ErrNotFitted)
	}
	if p.Vectorizer.Dim() != p.Model.NFeatures() {
		return apperrors.ArtifactMismatch("vectorizer and classifier do not belong together",
			fmt.Errorf("%w: vectorizer has %d features, classifier expects %d",
				bayes.ErrDimensionMismatch, p.Vectorizer.Dim(), p.Model.NFeatures()))
	}
	return nil
}
