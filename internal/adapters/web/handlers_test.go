package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mikey/sms-spam-classifier/internal/adapters/store"
	"github.com/mikey/sms-spam-classifier/internal/artifact"
	"github.com/mikey/sms-spam-classifier/internal/auth"
	"github.com/mikey/sms-spam-classifier/internal/bayes"
	"github.com/mikey/sms-spam-classifier/internal/core"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
	"github.com/mikey/sms-spam-classifier/internal/features"
	"github.com/mikey/sms-spam-classifier/internal/nlp"
	"github.com/mikey/sms-spam-classifier/internal/utils"
)

var (
	spamTexts = []string{
		"WINNER! You won a free prize, call now to claim",
		"Free entry to win cash prizes, text WIN",
		"Claim your free cash prize today",
		"URGENT you have won a cash award, call to claim",
	}
	hamTexts = []string{
		"Are we still meeting for lunch tomorrow?",
		"I will call you when I get home",
		"Can you pick up milk on the way back",
		"See you at the office in the morning",
	}
)

type testEnv struct {
	handler    http.Handler
	server     *Server
	classifier *core.ClassifierService
	tokens     *auth.TokenManager
}

func train(t *testing.T, arts *artifact.Store, n *nlp.Normalizer) {
	t.Helper()
	var docs []string
	var labels []int
	for _, s := range spamTexts {
		docs = append(docs, n.Normalize(s))
		labels = append(labels, 1)
	}
	for _, h := range hamTexts {
		docs = append(docs, n.Normalize(h))
		labels = append(labels, 0)
	}
	vec, X, err := features.FitTransform(features.DefaultConfig(), docs)
	require.NoError(t, err)
	model, err := bayes.Fit(X, labels, bayes.DefaultAlpha)
	require.NoError(t, err)
	_, err = arts.Save(&artifact.Pair{Name: artifact.DefaultModel, Vectorizer: vec, Model: model},
		map[string]any{"accuracy": 1.0})
	require.NoError(t, err)
}

func setupTest(t *testing.T, loaded bool) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	normalizer, err := nlp.NewNormalizer(nlp.MustLoadResources())
	require.NoError(t, err)
	arts, err := artifact.NewStore(t.TempDir(), 0, logger)
	require.NoError(t, err)
	train(t, arts, normalizer)

	backend := store.NewMemoryStore(logger, store.Options{})
	t.Cleanup(func() { backend.Close() })

	history := core.NewHistoryService(backend, logger)
	classifier := core.NewClassifierService(normalizer, arts, history, utils.NewTextProcessor(logger), logger, 4096)
	if loaded {
		require.NoError(t, classifier.Reload(context.Background()))
	}
	accounts := core.NewAccountService(backend, auth.NewBcryptHasher(bcrypt.MinCost), logger)
	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	handlers := NewHandlers(classifier, accounts, history, tokens, backend, logger)
	srv := NewServer(handlers, logger, Options{ListenAddress: "127.0.0.1:0"})
	return &testEnv{handler: srv.Handler(), server: srv, classifier: classifier, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/signup", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	return resp.Token
}

func TestSignup(t *testing.T) {
	env := setupTest(t, true)

	rec := env.do(t, http.MethodPost, "/api/signup", "", map[string]string{"email": "Alice@Example.com", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "User created.")

	rec = env.do(t, http.MethodPost, "/api/signup", "", map[string]string{"email": "alice@example.com", "password": "other"})
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, apperrors.KindConflict, resp.Code)
	assert.Equal(t, "User already exists.", resp.Message)

	rec = env.do(t, http.MethodPost, "/api/signup", "", map[string]string{"email": "bob@example.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email and password required.", decodeError(t, rec).Message)

	rec = env.do(t, http.MethodPost, "/api/signup", "", map[string]string{"email": "not-an-email", "password": "hunter2"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid email address.", decodeError(t, rec).Message)

	rec = env.do(t, http.MethodPost, "/api/signup", "", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.KindValidation, decodeError(t, rec).Code)
}

func TestLogin(t *testing.T) {
	env := setupTest(t, true)
	token := env.login(t, "alice@example.com", "hunter2")

	claims, err := env.tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)

	rec := env.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperrors.KindUnauthorized, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "nobody@example.com", "password": "hunter2"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPredictAnonymous(t *testing.T) {
	env := setupTest(t, true)

	rec := env.do(t, http.MethodPost, "/api/predict", "", map[string]string{"text": "WIN a FREE prize now"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "WIN a FREE prize now", result.Input)
	assert.Equal(t, "win free prize", result.Transformed)
	assert.Equal(t, 1, result.Prediction)
	assert.Equal(t, core.LabelSpam, result.Label)
	assert.Equal(t, artifact.DefaultModel, result.Model)
	require.Len(t, result.Probabilities, 2)
	assert.Equal(t, []string{"win", "free", "prize"}, result.Steps.AfterStem)
	assert.Empty(t, result.HistoryError)

	rec = env.do(t, http.MethodPost, "/api/predict", "", map[string]string{"text": "Are we meeting for lunch?"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, core.LabelHam, result.Label)
}

func TestPredictRecordsHistoryForAuthenticatedUser(t *testing.T) {
	env := setupTest(t, true)
	token := env.login(t, "alice@example.com", "hunter2")

	rec := env.do(t, http.MethodPost, "/api/predict", token, map[string]string{"text": "Claim your free cash prize"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/predict", token, map[string]string{"text": "See you at lunch"})
	require.Equal(t, http.StatusOK, rec.Code)
	// Anonymous predictions are not recorded.
	rec = env.do(t, http.MethodPost, "/api/predict", "", map[string]string{"text": "Free prize"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []core.HistoryRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "See you at lunch", records[0].Text)
	assert.Equal(t, "Claim your free cash prize", records[1].Text)
	assert.Equal(t, core.LabelSpam, records[1].Label)
	assert.Equal(t, "alice@example.com", records[0].Identity)

	rec = env.do(t, http.MethodGet, "/api/history?limit=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "See you at lunch", records[0].Text)
}

func TestPredictErrors(t *testing.T) {
	env := setupTest(t, true)

	rec := env.do(t, http.MethodPost, "/api/predict", "", map[string]string{"text": "!!! ... ???"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.KindValidation, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/predict", "", map[string]string{"text": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Text is required.", decodeError(t, rec).Message)

	rec = env.do(t, http.MethodPost, "/api/predict", "", map[string]string{"text": "free prize", "model": "../etc"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/predict", "not-a-token", map[string]string{"text": "free prize"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/predict", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPredictUnknownModelFallsBackToDefault(t *testing.T) {
	env := setupTest(t, true)

	rec := env.do(t, http.MethodPost, "/api/predict", "", map[string]string{"text": "free prize", "model": "experimental"})
	require.Equal(t, http.StatusOK, rec.Code)
	var result core.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, artifact.DefaultModel, result.Model)
}

func TestPredictBeforeModelsLoaded(t *testing.T) {
	env := setupTest(t, false)

	rec := env.do(t, http.MethodPost, "/api/predict", "", map[string]string{"text": "free prize"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, apperrors.KindConfiguration, decodeError(t, rec).Code)
}

func TestHistoryRequiresAuth(t *testing.T) {
	env := setupTest(t, true)

	rec := env.do(t, http.MethodGet, "/api/history", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token := env.login(t, "alice@example.com", "hunter2")
	rec = env.do(t, http.MethodGet, "/api/history?limit=abc", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestMetricsAndModels(t *testing.T) {
	env := setupTest(t, true)

	rec := env.do(t, http.MethodGet, "/api/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accuracy": 1.0}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/metrics?model=bad%20name", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/models", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"models": ["default"]}`, rec.Body.String())
}

func TestReload(t *testing.T) {
	env := setupTest(t, false)
	assert.Empty(t, env.classifier.Models())

	rec := env.do(t, http.MethodPost, "/api/reload", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token := env.login(t, "alice@example.com", "hunter2")
	rec = env.do(t, http.MethodPost, "/api/reload", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"models": ["default"]}`, rec.Body.String())
	assert.Equal(t, []string{"default"}, env.classifier.Models())
}

func TestHealth(t *testing.T) {
	env := setupTest(t, true)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Store)
	assert.Equal(t, []string{"default"}, resp.Models)

	env = setupTest(t, false)
	rec = env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	env := setupTest(t, true)
	rec := env.do(t, http.MethodGet, "/api/models", "", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRequestBodyLimit(t *testing.T) {
	env := setupTest(t, true)
	big := `{"text": "` + strings.Repeat("a", 2<<20) + `"}`
	rec := env.do(t, http.MethodPost, "/api/predict", "", big)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body too large.", decodeError(t, rec).Message)
}

func TestStatusFor(t *testing.T) {
	cases := map[apperrors.Kind]int{
		apperrors.KindValidation:       http.StatusBadRequest,
		apperrors.KindUnauthorized:     http.StatusUnauthorized,
		apperrors.KindConflict:         http.StatusConflict,
		apperrors.KindConfiguration:    http.StatusServiceUnavailable,
		apperrors.KindUpstreamStore:    http.StatusServiceUnavailable,
		apperrors.KindArtifactMismatch: http.StatusInternalServerError,
		apperrors.KindInternal:         http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), string(kind))
	}
}
