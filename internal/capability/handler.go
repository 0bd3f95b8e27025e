package capability

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rolewarden/rolewarden/internal/platform/httpx"
)

// Handler exposes role, matrix, and user-role endpoints.
type Handler struct {
	logger      *slog.Logger
	store       *Store
	disablement *Disablement
	resolver    *Resolver
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store *Store, disablement *Disablement, resolver *Resolver) *Handler {
	return &Handler{logger: logger, store: store, disablement: disablement, resolver: resolver}
}

// MountRoleRoutes registers the /roles subtree.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Post("/", h.createRole)
	r.Delete("/{slug}", h.deleteRole)
	r.Post("/{slug}/enable", h.enableRole)
	r.Post("/{slug}/disable", h.disableRole)
	r.Post("/{slug}/capabilities", h.addCapability)
	r.Delete("/{slug}/capabilities/{cap}", h.removeCapability)
	r.Post("/{slug}/capabilities/{cap}/enable", h.enableCapability)
	r.Post("/{slug}/capabilities/{cap}/disable", h.disableCapability)
}

// MountCapabilityRoutes registers the /capabilities subtree.
func (h *Handler) MountCapabilityRoutes(r chi.Router) {
	r.Get("/matrix", h.matrix)
}

// MountUserRoutes registers the /users subtree.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Put("/{id}/roles", h.updateUserRoles)
	r.Get("/{id}/capabilities", h.userCapabilities)
	r.Get("/{id}/capabilities/{cap}", h.testUserCapability)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type createRoleRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	info, err := h.store.CreateRole(r.Context(), req.Slug, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, info)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRole(r.Context(), chi.URLParam(r, "slug")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) enableRole(w http.ResponseWriter, r *http.Request) {
	h.setRoleDisabled(w, r, false)
}

func (h *Handler) disableRole(w http.ResponseWriter, r *http.Request) {
	h.setRoleDisabled(w, r, true)
}

func (h *Handler) setRoleDisabled(w http.ResponseWriter, r *http.Request, disabled bool) {
	slug := chi.URLParam(r, "slug")
	if err := h.disablement.SetRoleDisabled(r.Context(), slug, disabled); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": slug, "disabled": disabled})
}

type addCapabilityRequest struct {
	Capability string `json:"capability"`
	Grant      *bool  `json:"grant"`
}

func (h *Handler) addCapability(w http.ResponseWriter, r *http.Request) {
	var req addCapabilityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	grant := true
	if req.Grant != nil {
		grant = *req.Grant
	}
	slug := chi.URLParam(r, "slug")
	if err := h.store.AddCapability(r.Context(), slug, req.Capability, grant); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"role": slug, "capability": req.Capability, "grant": grant,
	})
}

func (h *Handler) removeCapability(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveCapability(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "cap")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) enableCapability(w http.ResponseWriter, r *http.Request) {
	if err := h.disablement.EnableCapability(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "cap")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) disableCapability(w http.ResponseWriter, r *http.Request) {
	if err := h.disablement.DisableCapability(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "cap")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) matrix(w http.ResponseWriter, r *http.Request) {
	matrix, err := h.store.BuildMatrix(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, matrix)
}

type updateUserRolesRequest struct {
	Roles []string `json:"roles"`
}

func (h *Handler) updateUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateUserRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.store.UpdateUserRoles(r.Context(), userID, req.Roles); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "roles": req.Roles})
}

func (h *Handler) userCapabilities(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	caps, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "capabilities": caps})
}

func (h *Handler) testUserCapability(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	capName := chi.URLParam(r, "cap")
	state, err := h.resolver.TestUserCapability(r.Context(), userID, capName)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id": userID, "capability": capName, "state": state,
	})
}

func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, httpx.ErrValidation
	}
	return id, nil
}
