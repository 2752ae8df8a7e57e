package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kargoline/kargoline/internal/auth"
	"github.com/kargoline/kargoline/internal/platform/httpx"
)

// Handler exposes the report views. Read-only, any authenticated user.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   auth.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireUser())
		r.Get("/margin", h.margin)
		r.Get("/sales", h.sales)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRole())
		r.Post("/invalidate", h.invalidate)
	})
}

func parseFilter(r *http.Request) Filter {
	var f Filter
	q := r.URL.Query()
	if v := q.Get("date_from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.DateFrom = &t
		}
	}
	if v := q.Get("date_to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.DateTo = &t
		}
	}
	if v := q.Get("destination"); v != "" {
		f.Destination = &v
	}
	return f
}

func (h *Handler) margin(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Margin(r.Context(), parseFilter(r))
	if err != nil {
		h.logger.Error("margin report", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

// invalidate drops the cached reports, admin only. Useful after backfills
// that bypass the API.
func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	h.service.Invalidate(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) sales(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Sales(r.Context(), parseFilter(r))
	if err != nil {
		h.logger.Error("sales report", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}
