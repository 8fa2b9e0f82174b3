package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/artifact"
	"github.com/mikey/sms-spam-classifier/internal/auth"
	"github.com/mikey/sms-spam-classifier/internal/core"
	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
)

var validate = validator.New()

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type predictRequest struct {
	Text  string `json:"text" validate:"required"`
	Model string `json:"model" validate:"omitempty,max=64"`
}

type errorResponse struct {
	Code    apperrors.Kind `json:"code"`
	Message string         `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

type modelsResponse struct {
	Models []string `json:"models"`
}

type healthResponse struct {
	Status string   `json:"status"`
	Models []string `json:"models"`
	Store  string   `json:"store"`
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers contains the API route handlers.
type Handlers struct {
	classifier   *core.ClassifierService
	accounts     *core.AccountService
	history      *core.HistoryService
	tokens       *auth.TokenManager
	store        Pinger
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewHandlers creates the API handlers. store may be nil.
func NewHandlers(
	classifier *core.ClassifierService,
	accounts *core.AccountService,
	history *core.HistoryService,
	tokens *auth.TokenManager,
	store Pinger,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		classifier:   classifier,
		accounts:     accounts,
		history:      history,
		tokens:       tokens,
		store:        store,
		logger:       logger,
		maxBodyBytes: 1 << 20,
	}
}

// HandleSignup handles POST /api/signup.
func (h *Handlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.accounts.Register(r.Context(), req.Email, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "User created."})
}

// HandleLogin handles POST /api/login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if !h.accounts.Authenticate(r.Context(), req.Email, req.Password) {
		h.writeError(w, r, apperrors.New(apperrors.KindUnauthorized, "Invalid email or password.", nil))
		return
	}

	token, err := h.tokens.Generate(core.NormalizeIdentity(req.Email))
	if err != nil {
		h.writeError(w, r, apperrors.New(apperrors.KindInternal, "could not issue token", err))
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresIn: int64(h.tokens.TTL() / time.Second)})
}

// HandlePredict handles POST /api/predict. A valid bearer token records the
// prediction in that user's history.
func (h *Handlers) HandlePredict(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req predictRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.classifier.PredictFor(r.Context(), identity, req.Text, req.Model)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleHistory handles GET /api/history.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, r, apperrors.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	records, err := h.history.ListFor(r.Context(), identityFrom(r.Context()), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleMetrics handles GET /api/metrics.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("model")
	if name == "" {
		name = artifact.DefaultModel
	}
	metrics, err := h.classifier.Metrics(name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(metrics)
}

// HandleModels handles GET /api/models.
func (h *Handlers) HandleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{Models: h.classifier.Models()})
}

// HandleReload handles POST /api/reload.
func (h *Handlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.classifier.Reload(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("Reloaded models", zap.String("identity", identityFrom(r.Context())))
	writeJSON(w, http.StatusOK, modelsResponse{Models: h.classifier.Models()})
}

// HandleHealth handles GET /healthz. The store being down degrades the
// response but does not fail it, since predictions still work.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Models: h.classifier.Models(), Store: "ok"}
	if h.store == nil {
		resp.Store = "disabled"
	} else if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Store ping failed", zap.Error(err))
		resp.Store = "unavailable"
	}

	if err := h.classifier.Ready(); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body into dst and validates it.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Validation("Request body too large.")
		}
		return apperrors.Validation("Request body must be valid JSON.")
	}
	if err := validate.Struct(dst); err != nil {
		return apperrors.Validation(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request."
	}
	fe := verrs[0]
	switch {
	case fe.Tag() == "required" && (fe.Field() == "Email" || fe.Field() == "Password"):
		return "Email and password required."
	case fe.Tag() == "required" && fe.Field() == "Text":
		return "Text is required."
	case fe.Tag() == "email":
		return "Invalid email address."
	case fe.Tag() == "max":
		return fe.Field() + " is too long."
	default:
		return "Invalid " + fe.Field() + "."
	}
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindConfiguration, apperrors.KindUpstreamStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: kind, Message: apperrors.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
