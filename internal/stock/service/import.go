package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/labstock/labstock-backend/internal/stock/repository"
	"github.com/labstock/labstock-backend/pkg/errors"
	"github.com/labstock/labstock-backend/pkg/logger"
)

// ImportRow is one spreadsheet row handed to the import service. Lot fields
// are optional; when both a lot number and quantity are present, an opening
// lot is created with the item.
type ImportRow struct {
	RowNumber     int
	Code          string
	Name          string
	Category      string
	Department    string
	Unit          string
	MinStock      string
	Supplier      string
	CatalogNumber string
	LotNumber     string
	Quantity      string
	ExpiryDate    *time.Time
}

// ImportRowError records why one row was skipped
type ImportRowError struct {
	RowNumber int    `json:"row_number"`
	Message   string `json:"message"`
}

// ImportResult summarizes an import run. Rows fail independently: a bad row
// is reported and skipped, it never aborts the rest of the workbook.
type ImportResult struct {
	Created     int              `json:"created"`
	Updated     int              `json:"updated"`
	LotsCreated int              `json:"lots_created"`
	LotsUpdated int              `json:"lots_updated"`
	Errors      []ImportRowError `json:"errors,omitempty"`
}

// ImportService loads spreadsheet rows into the item registry and lot ledger
type ImportService struct {
	items  *repository.ItemRepository
	lots   *repository.LotRepository
	logger *logger.Logger
}

// NewImportService creates a new import service
func NewImportService(items *repository.ItemRepository, lots *repository.LotRepository, log *logger.Logger) *ImportService {
	return &ImportService{
		items:  items,
		lots:   lots,
		logger: log.WithComponent("import_service"),
	}
}

// Import upserts items by code and creates opening lots row by row
func (s *ImportService) Import(ctx context.Context, rows []ImportRow) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, errors.BadRequest("no rows to import")
	}

	result := &ImportResult{}
	for _, row := range rows {
		if err := s.importRow(ctx, row, result); err != nil {
			result.Errors = append(result.Errors, ImportRowError{
				RowNumber: row.RowNumber,
				Message:   err.Error(),
			})
		}
	}

	s.logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("lots_created", result.LotsCreated).
		Int("lots_updated", result.LotsUpdated).
		Int("errors", len(result.Errors)).
		Msg("import finished")

	return result, nil
}

func (s *ImportService) importRow(ctx context.Context, row ImportRow, result *ImportResult) error {
	if row.Code == "" {
		return fmt.Errorf("missing item code")
	}
	if row.Name == "" {
		return fmt.Errorf("missing item name")
	}

	item, err := s.upsertItem(ctx, row, result)
	if err != nil {
		return err
	}

	if row.LotNumber == "" && row.Quantity == "" {
		return nil
	}
	if row.LotNumber == "" || row.Quantity == "" {
		return fmt.Errorf("lot rows need both a lot number and a quantity")
	}

	qty, err := decimal.NewFromString(row.Quantity)
	if err != nil {
		return fmt.Errorf("unparseable quantity: %s", row.Quantity)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("lot quantity must be positive: %s", row.Quantity)
	}

	// Re-importing the same workbook must not duplicate lots or inflate
	// quantities: a lot number already on the ledger is left untouched.
	if _, err := s.lots.GetByLotNumber(ctx, item.ID, row.LotNumber); err == nil {
		result.LotsUpdated++
		return nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	lot := &repository.Lot{
		ItemID:          item.ID,
		LotNumber:       row.LotNumber,
		InitialQuantity: qty,
		ExpiryDate:      row.ExpiryDate,
	}
	if err := s.lots.Create(ctx, lot); err != nil {
		return err
	}
	result.LotsCreated++

	return nil
}

func (s *ImportService) upsertItem(ctx context.Context, row ImportRow, result *ImportResult) (*repository.ItemDefinition, error) {
	minStock := decimal.Zero
	if row.MinStock != "" {
		parsed, err := decimal.NewFromString(row.MinStock)
		if err != nil {
			return nil, fmt.Errorf("unparseable min stock: %s", row.MinStock)
		}
		if parsed.IsNegative() {
			return nil, fmt.Errorf("min stock must not be negative: %s", row.MinStock)
		}
		minStock = parsed
	}

	existing, err := s.items.GetByCode(ctx, row.Code)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}

		item := &repository.ItemDefinition{
			Code:       row.Code,
			Name:       row.Name,
			Category:   orDefault(row.Category, "uncategorized"),
			Department: orDefault(row.Department, "general"),
			Unit:       orDefault(row.Unit, "pcs"),
			MinStock:   minStock,
		}
		if row.Supplier != "" {
			item.Supplier = &row.Supplier
		}
		if row.CatalogNumber != "" {
			item.CatalogNumber = &row.CatalogNumber
		}

		if err := s.items.Create(ctx, item); err != nil {
			return nil, err
		}
		result.Created++
		return item, nil
	}

	// Existing item: spreadsheet values win where present, blanks keep the
	// stored definition.
	existing.Name = row.Name
	if row.Category != "" {
		existing.Category = row.Category
	}
	if row.Department != "" {
		existing.Department = row.Department
	}
	if row.Unit != "" {
		existing.Unit = row.Unit
	}
	if row.MinStock != "" {
		existing.MinStock = minStock
	}
	if row.Supplier != "" {
		existing.Supplier = &row.Supplier
	}
	if row.CatalogNumber != "" {
		existing.CatalogNumber = &row.CatalogNumber
	}

	if err := s.items.Update(ctx, existing); err != nil {
		return nil, err
	}
	result.Updated++
	return existing, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
