package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := Validation("nothing to classify")
	assert.Equal(t, "VALIDATION: nothing to classify", err.Error())

	wrapped := Configuration("artifacts missing", stderrors.New("open /tmp/x: no such file"))
	assert.Equal(t, "CONFIGURATION: artifacts missing: open /tmp/x: no such file", wrapped.Error())
}

func TestIs_ThroughWrapping(t *testing.T) {
	base := ArtifactMismatch("dimension mismatch", nil)
	wrapped := fmt.Errorf("predict: %w", base)

	assert.True(t, Is(wrapped, KindArtifactMismatch))
	assert.False(t, Is(wrapped, KindValidation))
	assert.False(t, Is(stderrors.New("plain"), KindValidation))
	assert.Equal(t, KindArtifactMismatch, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(stderrors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := UpstreamStore("history unavailable", cause)
	assert.ErrorIs(t, err, cause)
}

func TestPublicMessage_HidesInternals(t *testing.T) {
	assert.Equal(t, "internal error", PublicMessage(stderrors.New("open /srv/secret/model.json: permission denied")))
	assert.Equal(t, "internal error", PublicMessage(New(KindInternal, "boom", nil)))
	assert.Equal(t, "nothing to classify", PublicMessage(Validation("nothing to classify")))
}
