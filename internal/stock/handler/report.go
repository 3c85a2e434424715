package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstock/labstock-backend/internal/stock/service"
	"github.com/labstock/labstock-backend/pkg/errors"
	"github.com/labstock/labstock-backend/pkg/httputil"
	"github.com/labstock/labstock-backend/pkg/logger"
)

// ReportHandler handles read-side report endpoints
type ReportHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *service.StockService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service: svc,
		logger:  log,
	}
}

// LowStock lists items at or below their minimum stock
func (h *ReportHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStockReport(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, items)
}

// Expiring lists lots expiring within a window (default 30 days)
func (h *ReportHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	lots, err := h.service.ExpiringReport(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// timeWindow parses from/to query params, defaulting to the last 30 days
func timeWindow(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.Validation(map[string]string{"from": "must be YYYY-MM-DD"})
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.Validation(map[string]string{"to": "must be YYYY-MM-DD"})
		}
		// Inclusive end date
		to = parsed.AddDate(0, 0, 1)
	}

	return from, to, nil
}

// DepartmentUsage aggregates distributions per department over a window
func (h *ReportHandler) DepartmentUsage(w http.ResponseWriter, r *http.Request) {
	from, to, err := timeWindow(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	usage, err := h.service.DepartmentUsageReport(r.Context(), from, to)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, usage)
}

// WasteSummary aggregates waste records over a window
func (h *ReportHandler) WasteSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := timeWindow(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	summary, err := h.service.WasteSummaryReport(r.Context(), from, to)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}
