package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/rolewarden/rolewarden/internal/observability"
	"github.com/rolewarden/rolewarden/internal/platform/httpx"
	"github.com/rolewarden/rolewarden/internal/webhook"
)

// maxBodyBytes caps the command request body.
const maxBodyBytes = 64 * 1024

// Handler terminates the remote command endpoint: bearer token auth,
// body size guard, per-IP rate limiting, and a mandatory audit log entry
// for every incoming request, rejected ones included.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	limiter   RateLimiter
	logs      *webhook.LogStore
	metrics   *observability.Metrics
	tokenHash string
}

// NewHandler builds Handler instance. tokenHash is the bcrypt hash of the
// admin token; empty disables the endpoint.
func NewHandler(logger *slog.Logger, service *Service, limiter RateLimiter, logs *webhook.LogStore, metrics *observability.Metrics, tokenHash string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		limiter:   limiter,
		logs:      logs,
		metrics:   metrics,
		tokenHash: tokenHash,
	}
}

// MountRoutes registers the command route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/command", h.execute)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	remote := clientIP(r)

	if err := h.authenticate(r); err != nil {
		h.audit(r, remote, "", nil, webhook.StatusFailed, "unauthenticated", start)
		httpx.RespondError(w, err)
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), remote)
	if err != nil {
		h.logger.Error("command rate limit", slog.Any("error", err))
		h.audit(r, remote, "", nil, webhook.StatusFailed, "rate limiter unavailable", start)
		httpx.RespondError(w, err)
		return
	}
	if !allowed {
		h.audit(r, remote, "", nil, webhook.StatusFailed, "rate limited", start)
		h.metrics.ObserveCommand("unknown", "rate_limited")
		httpx.RespondError(w, fmt.Errorf("%w: too many requests", httpx.ErrRateLimited))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.audit(r, remote, "", nil, webhook.StatusFailed, "payload too large", start)
			httpx.RespondError(w, fmt.Errorf("%w: body exceeds %d bytes", httpx.ErrPayloadTooLarge, maxBodyBytes))
			return
		}
		h.audit(r, remote, "", nil, webhook.StatusFailed, "malformed request", start)
		httpx.RespondError(w, fmt.Errorf("%w: malformed request body", httpx.ErrValidation))
		return
	}

	result, err := h.service.Execute(r.Context(), req)
	params := decodeParams(req.Params)
	if err != nil {
		h.audit(r, remote, req.Action, params, webhook.StatusFailed, err.Error(), start)
		h.metrics.ObserveCommand(actionLabel(req.Action), "error")
		httpx.RespondError(w, err)
		return
	}
	h.audit(r, remote, req.Action, params, webhook.StatusSuccess, "", start)
	h.metrics.ObserveCommand(req.Action, "ok")
	httpx.JSON(w, http.StatusOK, result)
}

// authenticate checks the bearer token against the configured bcrypt hash.
func (h *Handler) authenticate(r *http.Request) error {
	if h.tokenHash == "" {
		return fmt.Errorf("%w: command endpoint disabled", httpx.ErrForbidden)
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return fmt.Errorf("%w: bearer token required", httpx.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.tokenHash), []byte(token)); err != nil {
		return fmt.Errorf("%w: invalid token", httpx.ErrUnauthorized)
	}
	return nil
}

func (h *Handler) audit(r *http.Request, remote, action string, params map[string]any, status, message string, start time.Time) {
	entry := webhook.LogEntry{
		Direction:  webhook.DirectionIncoming,
		Action:     action,
		URL:        r.URL.Path,
		Method:     r.Method,
		RemoteAddr: remote,
		Status:     status,
		Message:    message,
		Params:     params,
		DurationMS: time.Since(start).Milliseconds(),
		CreatedAt:  start.UTC(),
	}
	if err := h.logs.Append(r.Context(), entry); err != nil {
		h.logger.Error("append command log", slog.Any("error", err))
	}
}

func decodeParams(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil
	}
	return params
}

func actionLabel(action string) string {
	if KnownAction(action) {
		return action
	}
	return "unknown"
}

// clientIP prefers the RealIP middleware's rewrite of RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
