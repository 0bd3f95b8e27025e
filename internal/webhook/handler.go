package webhook

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rolewarden/rolewarden/internal/platform/httpx"
)

// Handler exposes subscription CRUD and the delivery log over HTTP.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
	queue    *Queue
	logs     *LogStore
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, registry *Registry, queue *Queue, logs *LogStore) *Handler {
	return &Handler{logger: logger, registry: registry, queue: queue, logs: logs}
}

// MountRoutes registers webhook routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/queue", h.pending)
	r.Get("/logs", h.listLogs)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	subs, err := h.registry.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"webhooks": subs})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input SubscriptionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sub, err := h.registry.Create(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sub)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var input SubscriptionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sub, err := h.registry.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queue.Pending(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queue": entries, "depth": len(entries)})
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entries, err := h.logs.List(r.Context(), r.URL.Query().Get("direction"), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logs": entries})
}
