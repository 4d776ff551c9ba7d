package stats

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/kueskilink/kueskilink/internal/platform/httpx"
	"github.com/kueskilink/kueskilink/internal/shared"
)

// Handler exposes the dashboard endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stats/dashboard", h.dashboard)
}

// dashboardResponse is the full dashboard payload.
type dashboardResponse struct {
	Summary   *SalesSummary   `json:"summary"`
	Week      *WeekChart      `json:"week"`
	Products  []TopProduct    `json:"top_products"`
	LinkKinds *LinkKindCounts `json:"link_kinds"`
	Movements []Movement      `json:"movements"`
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.CompanyID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "merchant identity required")
		return
	}

	var resp dashboardResponse
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		resp.Summary, err = h.service.Summary(ctx, actor)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Week, err = h.service.Week(ctx, actor)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Products, err = h.service.Products(ctx, actor)
		return err
	})
	g.Go(func() error {
		var err error
		resp.LinkKinds, err = h.service.LinkKinds(ctx, actor)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Movements, err = h.service.Movements(ctx, actor, 5)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("assemble dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}
