package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/nowserving/internal/auth"
	"github.com/DoyleJ11/nowserving/internal/hub"
	"github.com/DoyleJ11/nowserving/internal/metrics"
	"github.com/DoyleJ11/nowserving/internal/types"
)

const stateTimeout = 2 * time.Second

// Authenticator is the PIN-login side of the auth service.
type Authenticator interface {
	auth.Verifier
	Login(pin string) (auth.Token, error)
}

type loginRequest struct {
	PIN any `json:"pin"`
}

type loginResponse struct {
	OK        bool       `json:"ok"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Login exchanges the staff PIN for a signed token.
func Login(a Authenticator, limiter *loginLimiter, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(clientKey(r)) {
			metrics.AuthLoginAttemptsTotal.WithLabelValues("rate_limited").Inc()
			writeJSON(w, http.StatusTooManyRequests, loginResponse{Message: "Too many attempts, try again later"})
			return
		}

		var req loginRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024))
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			metrics.AuthLoginAttemptsTotal.WithLabelValues("bad_request").Inc()
			writeJSON(w, http.StatusBadRequest, loginResponse{Message: "Invalid request body"})
			return
		}

		tok, err := a.Login(pinString(req.PIN))
		switch {
		case errors.Is(err, auth.ErrPINRequired):
			metrics.AuthLoginAttemptsTotal.WithLabelValues("bad_request").Inc()
			writeJSON(w, http.StatusBadRequest, loginResponse{Message: "PIN is required"})
		case errors.Is(err, auth.ErrAuthenticationFailed):
			metrics.AuthLoginAttemptsTotal.WithLabelValues("failed").Inc()
			log.Info("staff login failed", zap.String("remote", clientKey(r)))
			writeJSON(w, http.StatusUnauthorized, loginResponse{Message: "Invalid PIN"})
		case err != nil:
			log.Error("staff login", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, loginResponse{Message: "Failed to generate token"})
		default:
			metrics.AuthLoginAttemptsTotal.WithLabelValues("ok").Inc()
			log.Info("staff login", zap.String("remote", clientKey(r)), zap.Time("expires_at", tok.ExpiresAt))
			writeJSON(w, http.StatusOK, loginResponse{OK: true, Token: tok.Value, ExpiresAt: &tok.ExpiresAt})
		}
	}
}

func pinString(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case json.Number:
		return p.String()
	default:
		return ""
	}
}

// State serves the same snapshot a websocket client receives.
func State(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), stateTimeout)
		defer cancel()

		v, err := h.State(ctx)
		if err != nil {
			http.Error(w, "state unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, types.ServerMessage{
			Type:    types.MsgStateSnapshot,
			Version: v.Version,
			State:   &v.State,
		})
	}
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
