package handler

import (
	"net/http"

	"github.com/labstock/labstock-backend/internal/stock/importer"
	"github.com/labstock/labstock-backend/internal/stock/service"
	"github.com/labstock/labstock-backend/pkg/errors"
	"github.com/labstock/labstock-backend/pkg/httputil"
	"github.com/labstock/labstock-backend/pkg/logger"
)

// maxImportSize caps uploaded workbooks at 10 MiB
const maxImportSize = 10 << 20

// ImportHandler handles spreadsheet import uploads
type ImportHandler struct {
	service *service.ImportService
	logger  *logger.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(svc *service.ImportService, log *logger.Logger) *ImportHandler {
	return &ImportHandler{
		service: svc,
		logger:  log,
	}
}

// Upload parses an xlsx workbook and imports its rows. The workbook goes in
// the "file" field of a multipart form.
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		httputil.Error(w, errors.BadRequest("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, errors.BadRequest("missing file field"))
		return
	}
	defer file.Close()

	rows, err := importer.ParseWorkbook(file)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().
		Str("filename", header.Filename).
		Int("rows", len(rows)).
		Msg("import upload parsed")

	result, err := h.service.Import(r.Context(), toImportRows(rows))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

func toImportRows(rows []importer.Row) []service.ImportRow {
	out := make([]service.ImportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, service.ImportRow{
			RowNumber:     r.RowNumber,
			Code:          r.Code,
			Name:          r.Name,
			Category:      r.Category,
			Department:    r.Department,
			Unit:          r.Unit,
			MinStock:      r.MinStock,
			Supplier:      r.Supplier,
			CatalogNumber: r.CatalogNumber,
			LotNumber:     r.LotNumber,
			Quantity:      r.Quantity,
			ExpiryDate:    r.ExpiryDate,
		})
	}
	return out
}
