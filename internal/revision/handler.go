package revision

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rolewarden/rolewarden/internal/platform/httpx"
)

// Handler exposes the revision log and restore.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers revision routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/restore", h.restore)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	revisions, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revisions": revisions})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rev, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rev)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	strict := r.URL.Query().Get("strict") == "true"
	if err := h.service.Restore(r.Context(), id, strict); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"restored": id, "strict": strict})
}
