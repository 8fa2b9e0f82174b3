package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
)

type contextKey int

const identityKey contextKey = iota

// identityFrom returns the authenticated identity, if any.
func identityFrom(ctx context.Context) string {
	identity, _ := ctx.Value(identityKey).(string)
	return identity
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// bearerToken extracts the token from an Authorization header. ok is false
// when no header was sent.
func bearerToken(r *http.Request) (token string, ok bool, err error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false, nil
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", true, apperrors.New(apperrors.KindUnauthorized, "Invalid authorization header.", nil)
	}
	return strings.TrimSpace(token), true, nil
}

// authenticate resolves the request's identity. An absent header yields an
// empty identity; a bad one is an error.
func (h *Handlers) authenticate(r *http.Request) (string, error) {
	token, ok, err := bearerToken(r)
	if err != nil || !ok {
		return "", err
	}
	claims, err := h.tokens.Validate(token)
	if err != nil {
		return "", apperrors.New(apperrors.KindUnauthorized, "Invalid or expired token.", err)
	}
	return claims.Email, nil
}

// requireAuth rejects requests without a valid bearer token.
func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.authenticate(r)
		if err == nil && identity == "" {
			err = apperrors.New(apperrors.KindUnauthorized, "Authentication required.", nil)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}
