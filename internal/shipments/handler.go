package shipments

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kargoline/kargoline/internal/auth"
	"github.com/kargoline/kargoline/internal/blob"
	"github.com/kargoline/kargoline/internal/platform/httpx"
	"github.com/kargoline/kargoline/internal/shared"
)

const maxPODUploadBytes = 10 << 20

// Handler manages shipment endpoints.
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

// MountRoutes registers shipment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireUser())
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/pod", h.getPOD)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRole(auth.RoleOps))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/returned", h.setReturned)
		r.Post("/{id}/pod", h.uploadPOD)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListShipmentsRequest{}
	q := r.URL.Query()

	if v := q.Get("manifest_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.ManifestID = &id
		}
	}
	if v := q.Get("customer_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.CustomerID = &id
		}
	}
	if v := q.Get("destination"); v != "" {
		req.Destination = &v
	}
	if v := q.Get("search"); v != "" {
		req.Search = &v
	}
	req.Unassigned = q.Get("unassigned") == "true"
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list shipments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	perPage := req.Limit
	if perPage <= 0 {
		perPage = 50
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"shipments":  items,
		"pagination": shared.NewPagination(req.Offset/perPage+1, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shipment id")
		return
	}
	sh, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "get shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sh)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateShipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sh, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, "create shipment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sh)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shipment id")
		return
	}
	var req UpdateShipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sh, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.respondServiceError(w, "update shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sh)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shipment id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrInUse) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "shipment is referenced by invoice items")
			return
		}
		h.respondServiceError(w, "delete shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type setReturnedRequest struct {
	Returned bool `json:"returned"`
}

func (h *Handler) setReturned(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shipment id")
		return
	}
	var req setReturnedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	sh, err := h.service.SetReturned(r.Context(), id, req.Returned)
	if err != nil {
		h.respondServiceError(w, "set returned", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sh)
}

func (h *Handler) uploadPOD(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shipment id")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxPODUploadBytes+1))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "read upload")
		return
	}
	if len(data) > maxPODUploadBytes {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Too Large", "upload exceeds 10 MiB")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	sh, err := h.service.AttachProofOfDelivery(r.Context(), id, contentType, data)
	if err != nil {
		h.respondServiceError(w, "upload pod", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sh)
}

func (h *Handler) getPOD(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid shipment id")
		return
	}
	data, contentType, err := h.service.ProofOfDelivery(r.Context(), id)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.respondServiceError(w, "get pod", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if errors.Is(err, ErrAlreadyExists) {
		httpx.RespondError(w, httpx.ErrDuplicate)
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
