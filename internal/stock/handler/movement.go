package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/labstock/labstock-backend/internal/stock/service"
	"github.com/labstock/labstock-backend/pkg/httputil"
	"github.com/labstock/labstock-backend/pkg/logger"
)

// MovementHandler handles distribution and waste endpoints
type MovementHandler struct {
	service *service.MovementService
	logger  *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(svc *service.MovementService, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		service: svc,
		logger:  log,
	}
}

// Distribute issues stock to a department
func (h *MovementHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	var input service.DistributeInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	dist, err := h.service.Distribute(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, dist)
}

// ListDistributions lists distributions
func (h *MovementHandler) ListDistributions(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	itemID := r.URL.Query().Get("item_id")
	department := r.URL.Query().Get("department")

	distributions, total, err := h.service.ListDistributions(r.Context(), itemID, department, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, distributions, meta(page, perPage, total))
}

// GetDistribution gets a distribution with its lot allocations
func (h *MovementHandler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dist, err := h.service.GetDistribution(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dist)
}

// ConfirmDistribution marks an open distribution as delivered
func (h *MovementHandler) ConfirmDistribution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dist, err := h.service.ConfirmDistribution(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dist)
}

// RecordWaste documents a disposal
func (h *MovementHandler) RecordWaste(w http.ResponseWriter, r *http.Request) {
	var input service.RecordWasteInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	record, err := h.service.RecordWaste(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, record)
}

// ListWaste lists waste records
func (h *MovementHandler) ListWaste(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	itemID := r.URL.Query().Get("item_id")
	wasteType := r.URL.Query().Get("waste_type")

	records, total, err := h.service.ListWaste(r.Context(), itemID, wasteType, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, records, meta(page, perPage, total))
}

// GetWaste gets a waste record with its lot allocations
func (h *MovementHandler) GetWaste(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.service.GetWaste(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, record)
}
