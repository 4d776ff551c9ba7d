package employees

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kueskilink/kueskilink/internal/platform/httpx"
	"github.com/kueskilink/kueskilink/internal/shared"
)

// Handler exposes the roster endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the roster routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/employees", h.list)
	r.Delete("/employees/{id}", h.remove)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.CompanyID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant identity required")
		return
	}
	items, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.logger.Error("list employees", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employees": items})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.CompanyID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant identity required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: malformed employee id", shared.ErrValidation))
		return
	}
	result, err := h.service.Remove(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
