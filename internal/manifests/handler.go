package manifests

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kargoline/kargoline/internal/auth"
	"github.com/kargoline/kargoline/internal/invoices"
	"github.com/kargoline/kargoline/internal/platform/httpx"
	"github.com/kargoline/kargoline/internal/shared"
)

// Handler manages manifest endpoints. Ops builds manifests; accounting
// owns invoice generation.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     auth.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz, validator: validator.New()}
}

// MountRoutes registers manifest routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireUser())
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/shipments", h.shipments)
		r.Get("/{id}/costs", h.costs)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRole(auth.RoleOps))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Put("/{id}/shipments", h.setShipments)
		r.Put("/{id}/costs", h.saveCosts)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRole(auth.RoleAccounting))
		r.Post("/{id}/invoices", h.generateInvoices)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListManifestsRequest{}
	q := r.URL.Query()
	if v := q.Get("search"); v != "" {
		req.Search = &v
	}
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list manifests", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	perPage := req.Limit
	if perPage <= 0 {
		perPage = 50
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"manifests":  items,
		"pagination": shared.NewPagination(req.Offset/perPage+1, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "get manifest", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) shipments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Shipments(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "list manifest shipments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shipments": rows})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateManifestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, "create manifest", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req UpdateManifestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.respondServiceError(w, "update manifest", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

type setShipmentsRequest struct {
	ShipmentIDs []int64 `json:"shipment_ids" validate:"dive,gt=0"`
}

func (h *Handler) setShipments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req setShipmentsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	rows, err := h.service.SetShipments(r.Context(), id, req.ShipmentIDs)
	if err != nil {
		h.respondServiceError(w, "set manifest shipments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shipments": rows})
}

func (h *Handler) costs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Costs(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "get manifest costs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) saveCosts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req SaveCostsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.SaveCosts(r.Context(), id, req)
	if err != nil {
		h.respondServiceError(w, "save manifest costs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

type generateInvoicesRequest struct {
	PPhPercent float64 `json:"pph_percent" validate:"gte=0,lte=100"`
}

func (h *Handler) generateInvoices(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req generateInvoicesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.GenerateInvoices(r.Context(), id, req.PPhPercent)
	if err != nil {
		h.respondServiceError(w, "generate invoices", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"invoices": created})
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid manifest id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrValidation), errors.Is(err, invoices.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
