package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/labstock/labstock-backend/internal/stock/events"
	"github.com/labstock/labstock-backend/internal/stock/repository"
	"github.com/labstock/labstock-backend/pkg/actor"
	"github.com/labstock/labstock-backend/pkg/errors"
	"github.com/labstock/labstock-backend/pkg/logger"
	"github.com/labstock/labstock-backend/pkg/messaging"
)

// Stock statuses derived by the aggregator
const (
	StockStatusInStock        = "IN_STOCK"
	StockStatusPurchaseNeeded = "PURCHASE_NEEDED"
)

// ItemView is an item definition together with quantities aggregated from its
// lots at read time.
type ItemView struct {
	*repository.ItemDefinition
	TotalQuantity   decimal.Decimal   `json:"total_quantity"`
	UsableQuantity  decimal.Decimal   `json:"usable_quantity"`
	ExpiredQuantity decimal.Decimal   `json:"expired_quantity"`
	ActiveLotCount  int               `json:"active_lot_count"`
	NearestExpiry   *time.Time        `json:"nearest_expiry,omitempty"`
	StockStatus     string            `json:"stock_status"`
	LowStock        bool              `json:"low_stock"`
	Lots            []*repository.Lot `json:"lots,omitempty"`
}

// computeItemView aggregates an item's lots into view quantities. Expired
// quantity counts toward total but not usable. Stock status compares total
// quantity against the minimum; the low-stock alert flag is stricter and
// compares usable quantity only, so a shelf full of expired stock still
// alerts.
func computeItemView(item *repository.ItemDefinition, lots []*repository.Lot, now time.Time) *ItemView {
	view := &ItemView{
		ItemDefinition:  item,
		TotalQuantity:   decimal.Zero,
		UsableQuantity:  decimal.Zero,
		ExpiredQuantity: decimal.Zero,
		Lots:            lots,
	}

	for _, lot := range lots {
		view.TotalQuantity = view.TotalQuantity.Add(lot.CurrentQuantity)
		if lot.IsExpired(now) {
			view.ExpiredQuantity = view.ExpiredQuantity.Add(lot.CurrentQuantity)
		} else {
			view.UsableQuantity = view.UsableQuantity.Add(lot.CurrentQuantity)
		}
		if lot.CurrentQuantity.IsPositive() {
			view.ActiveLotCount++
			if lot.ExpiryDate != nil && (view.NearestExpiry == nil || lot.ExpiryDate.Before(*view.NearestExpiry)) {
				view.NearestExpiry = lot.ExpiryDate
			}
		}
	}

	view.StockStatus = StockStatusInStock
	if view.TotalQuantity.LessThan(item.MinStock) {
		view.StockStatus = StockStatusPurchaseNeeded
	}
	view.LowStock = item.MinStock.IsPositive() && view.UsableQuantity.LessThanOrEqual(item.MinStock)
	return view
}

// CreateItemInput is the payload for registering an item
type CreateItemInput struct {
	Code          string  `json:"code" validate:"required,max=64"`
	Name          string  `json:"name" validate:"required,max=255"`
	Category      string  `json:"category" validate:"required,max=100"`
	Department    string  `json:"department" validate:"required,max=100"`
	Unit          string  `json:"unit" validate:"required,max=32"`
	MinStock      string  `json:"min_stock,omitempty"`
	Supplier      *string `json:"supplier,omitempty"`
	CatalogNumber *string `json:"catalog_number,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// CreateLotInput is the payload for a manual lot entry outside the purchase flow
type CreateLotInput struct {
	LotNumber       string     `json:"lot_number" validate:"required,max=100"`
	InitialQuantity string     `json:"initial_quantity" validate:"required"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	ReceivedDate    *time.Time `json:"received_date,omitempty"`
}

// StockService implements the item registry, lot ledger, and read-side views
type StockService struct {
	items     *repository.ItemRepository
	lots      *repository.LotRepository
	reports   *repository.ReportRepository
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(
	items *repository.ItemRepository,
	lots *repository.LotRepository,
	reports *repository.ReportRepository,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *StockService {
	return &StockService{
		items:     items,
		lots:      lots,
		reports:   reports,
		publisher: publisher,
		logger:    log.WithComponent("stock_service"),
	}
}

// parseQuantity parses a decimal quantity field, treating empty as zero.
func parseQuantity(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.Validation(map[string]string{field: "must be a decimal number"})
	}
	return d, nil
}

// CreateItem registers a new item definition
func (s *StockService) CreateItem(ctx context.Context, input CreateItemInput) (*repository.ItemDefinition, error) {
	minStock, err := parseQuantity("min_stock", input.MinStock)
	if err != nil {
		return nil, err
	}
	if minStock.IsNegative() {
		return nil, errors.Validation(map[string]string{"min_stock": "must not be negative"})
	}

	item := &repository.ItemDefinition{
		Code:          input.Code,
		Name:          input.Name,
		Category:      input.Category,
		Department:    input.Department,
		Unit:          input.Unit,
		MinStock:      minStock,
		Supplier:      input.Supplier,
		CatalogNumber: input.CatalogNumber,
		Notes:         input.Notes,
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info().Str("item_id", item.ID).Str("code", item.Code).Msg("item created")
	return item, nil
}

// GetItem returns an item with its aggregated quantities and lots
func (s *StockService) GetItem(ctx context.Context, id string) (*ItemView, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	lots, err := s.lots.ListByItem(ctx, id)
	if err != nil {
		return nil, err
	}

	return computeItemView(item, lots, time.Now().UTC()), nil
}

// ListItems lists items with their aggregated quantities
func (s *StockService) ListItems(ctx context.Context, page, perPage int, category, department string) ([]*ItemView, int64, error) {
	items, total, err := s.items.List(ctx, page, perPage, category, department)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	views := make([]*ItemView, 0, len(items))
	for _, item := range items {
		lots, err := s.lots.ListByItem(ctx, item.ID)
		if err != nil {
			return nil, 0, err
		}
		view := computeItemView(item, lots, now)
		view.Lots = nil
		views = append(views, view)
	}

	return views, total, nil
}

// UpdateItem updates an item definition
func (s *StockService) UpdateItem(ctx context.Context, id string, input CreateItemInput) (*repository.ItemDefinition, error) {
	minStock, err := parseQuantity("min_stock", input.MinStock)
	if err != nil {
		return nil, err
	}
	if minStock.IsNegative() {
		return nil, errors.Validation(map[string]string{"min_stock": "must not be negative"})
	}

	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	item.Code = input.Code
	item.Name = input.Name
	item.Category = input.Category
	item.Department = input.Department
	item.Unit = input.Unit
	item.MinStock = minStock
	item.Supplier = input.Supplier
	item.CatalogNumber = input.CatalogNumber
	item.Notes = input.Notes

	if err := s.items.Update(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info().Str("item_id", item.ID).Msg("item updated")
	return item, nil
}

// DeleteItem removes an item and, by cascade, its lots and movement history
func (s *StockService) DeleteItem(ctx context.Context, id string) error {
	if err := s.items.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("item_id", id).Msg("item deleted")
	return nil
}

// CreateLot records a manually entered lot against an item
func (s *StockService) CreateLot(ctx context.Context, itemID string, input CreateLotInput) (*repository.Lot, error) {
	initial, err := parseQuantity("initial_quantity", input.InitialQuantity)
	if err != nil {
		return nil, err
	}
	if !initial.IsPositive() {
		return nil, errors.Validation(map[string]string{"initial_quantity": "must be positive"})
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	lot := &repository.Lot{
		ItemID:          item.ID,
		LotNumber:       input.LotNumber,
		InitialQuantity: initial,
	}
	if input.ExpiryDate != nil {
		lot.ExpiryDate = input.ExpiryDate
	}
	if input.ReceivedDate != nil {
		lot.ReceivedDate = *input.ReceivedDate
	}

	if err := s.lots.Create(ctx, lot); err != nil {
		return nil, err
	}

	expiry := ""
	if lot.ExpiryDate != nil {
		expiry = lot.ExpiryDate.Format("2006-01-02")
	}
	receivedBy := ""
	if act := actor.FromContext(ctx); act != nil {
		receivedBy = act.ID
	}
	s.publisher.LotReceived(ctx, messaging.LotReceivedEvent{
		ItemID:     item.ID,
		LotID:      lot.ID,
		LotNumber:  lot.LotNumber,
		Quantity:   lot.InitialQuantity.String(),
		ExpiryDate: expiry,
		ReceivedBy: receivedBy,
	})

	s.logger.Info().
		Str("item_id", item.ID).
		Str("lot_id", lot.ID).
		Str("quantity", lot.InitialQuantity.String()).
		Msg("lot created")

	return lot, nil
}

// GetLot returns a lot by ID
func (s *StockService) GetLot(ctx context.Context, id string) (*repository.Lot, error) {
	return s.lots.GetByID(ctx, id)
}

// ListLots lists an item's lots in allocation order
func (s *StockService) ListLots(ctx context.Context, itemID string) ([]*repository.Lot, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.lots.ListByItem(ctx, itemID)
}

// LowStockReport returns items whose usable stock is at or below minimum
func (s *StockService) LowStockReport(ctx context.Context) ([]*repository.LowStockItem, error) {
	return s.reports.LowStock(ctx)
}

// ExpiringReport returns lots expiring within the given window
func (s *StockService) ExpiringReport(ctx context.Context, withinDays int) ([]*repository.ExpiringLot, error) {
	if withinDays <= 0 {
		withinDays = 30
	}
	return s.reports.Expiring(ctx, withinDays)
}

// DepartmentUsageReport aggregates distributions per department over a window
func (s *StockService) DepartmentUsageReport(ctx context.Context, from, to time.Time) ([]*repository.DepartmentUsage, error) {
	if !from.Before(to) {
		return nil, errors.Validation(map[string]string{"from": "must be before to"})
	}
	return s.reports.DepartmentUsage(ctx, from, to)
}

// WasteSummaryReport aggregates waste records over a window
func (s *StockService) WasteSummaryReport(ctx context.Context, from, to time.Time) ([]*repository.WasteSummary, error) {
	if !from.Before(to) {
		return nil, errors.Validation(map[string]string{"from": "must be before to"})
	}
	return s.reports.WasteSummary(ctx, from, to)
}
