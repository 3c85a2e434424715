package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/labstock/labstock-backend/pkg/database"
)

// LowStockItem is an item whose usable stock is at or below its minimum.
// Usable stock excludes expired quantity.
type LowStockItem struct {
	ItemID      string          `db:"item_id" json:"item_id"`
	Code        string          `db:"code" json:"code"`
	Name        string          `db:"name" json:"name"`
	Department  string          `db:"department" json:"department"`
	Unit        string          `db:"unit" json:"unit"`
	MinStock    decimal.Decimal `db:"min_stock" json:"min_stock"`
	UsableStock decimal.Decimal `db:"usable_stock" json:"usable_stock"`
}

// ExpiringLot is a lot nearing or past expiry, joined with its item.
type ExpiringLot struct {
	LotID           string          `db:"lot_id" json:"lot_id"`
	ItemID          string          `db:"item_id" json:"item_id"`
	ItemCode        string          `db:"item_code" json:"item_code"`
	ItemName        string          `db:"item_name" json:"item_name"`
	Unit            string          `db:"unit" json:"unit"`
	LotNumber       string          `db:"lot_number" json:"lot_number"`
	CurrentQuantity decimal.Decimal `db:"current_quantity" json:"current_quantity"`
	ExpiryDate      time.Time       `db:"expiry_date" json:"expiry_date"`
	DaysUntil       int             `db:"days_until" json:"days_until"`
}

// DepartmentUsage aggregates distributed quantity per department and item
// over a time window.
type DepartmentUsage struct {
	Department  string          `db:"department" json:"department"`
	ItemID      string          `db:"item_id" json:"item_id"`
	ItemCode    string          `db:"item_code" json:"item_code"`
	ItemName    string          `db:"item_name" json:"item_name"`
	Unit        string          `db:"unit" json:"unit"`
	TotalIssued decimal.Decimal `db:"total_issued" json:"total_issued"`
	Count       int64           `db:"movement_count" json:"movement_count"`
}

// WasteSummary aggregates wasted quantity per item and waste type over a
// time window.
type WasteSummary struct {
	ItemID      string          `db:"item_id" json:"item_id"`
	ItemCode    string          `db:"item_code" json:"item_code"`
	ItemName    string          `db:"item_name" json:"item_name"`
	Unit        string          `db:"unit" json:"unit"`
	WasteType   string          `db:"waste_type" json:"waste_type"`
	TotalWasted decimal.Decimal `db:"total_wasted" json:"total_wasted"`
	Count       int64           `db:"record_count" json:"record_count"`
}

// ReportRepository runs the read-side aggregate queries. All aggregates are
// computed fresh from the ledger tables on every call.
type ReportRepository struct {
	db *database.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// LowStock returns items whose non-expired stock is at or below min_stock.
// Items with a zero minimum are excluded: no threshold means no alert.
func (r *ReportRepository) LowStock(ctx context.Context) ([]*LowStockItem, error) {
	query := `
		SELECT
			i.id AS item_id, i.code, i.name, i.department, i.unit, i.min_stock,
			COALESCE(SUM(l.current_quantity) FILTER (
				WHERE l.expiry_date IS NULL OR l.expiry_date >= NOW()
			), 0) AS usable_stock
		FROM items i
		LEFT JOIN lots l ON l.item_id = i.id
		WHERE i.min_stock > 0
		GROUP BY i.id
		HAVING COALESCE(SUM(l.current_quantity) FILTER (
			WHERE l.expiry_date IS NULL OR l.expiry_date >= NOW()
		), 0) <= i.min_stock
		ORDER BY i.name
	`

	var items []*LowStockItem
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}

// Expiring returns lots with remaining quantity whose expiry falls within the
// given number of days, including already-expired lots (negative days_until).
func (r *ReportRepository) Expiring(ctx context.Context, withinDays int) ([]*ExpiringLot, error) {
	query := `
		SELECT
			l.id AS lot_id, l.item_id, i.code AS item_code, i.name AS item_name,
			i.unit, l.lot_number, l.current_quantity, l.expiry_date,
			(l.expiry_date::date - NOW()::date) AS days_until
		FROM lots l
		JOIN items i ON i.id = l.item_id
		WHERE l.current_quantity > 0
		AND l.expiry_date IS NOT NULL
		AND l.expiry_date <= NOW() + INTERVAL '1 day' * $1
		ORDER BY l.expiry_date, i.name
	`

	var lots []*ExpiringLot
	if err := r.db.SelectContext(ctx, &lots, query, withinDays); err != nil {
		return nil, err
	}
	return lots, nil
}

// DepartmentUsage aggregates distributions by department and item between the
// given times.
func (r *ReportRepository) DepartmentUsage(ctx context.Context, from, to time.Time) ([]*DepartmentUsage, error) {
	query := `
		SELECT
			d.department, d.item_id, i.code AS item_code, i.name AS item_name,
			i.unit, SUM(d.quantity) AS total_issued, COUNT(*) AS movement_count
		FROM distributions d
		JOIN items i ON i.id = d.item_id
		WHERE d.created_at >= $1 AND d.created_at < $2
		GROUP BY d.department, d.item_id, i.code, i.name, i.unit
		ORDER BY d.department, i.name
	`

	var usage []*DepartmentUsage
	if err := r.db.SelectContext(ctx, &usage, query, from, to); err != nil {
		return nil, err
	}
	return usage, nil
}

// WasteSummary aggregates waste records by item and waste type between the
// given times.
func (r *ReportRepository) WasteSummary(ctx context.Context, from, to time.Time) ([]*WasteSummary, error) {
	query := `
		SELECT
			w.item_id, i.code AS item_code, i.name AS item_name, i.unit,
			w.waste_type, SUM(w.quantity) AS total_wasted, COUNT(*) AS record_count
		FROM waste_records w
		JOIN items i ON i.id = w.item_id
		WHERE w.created_at >= $1 AND w.created_at < $2
		GROUP BY w.item_id, i.code, i.name, i.unit, w.waste_type
		ORDER BY i.name, w.waste_type
	`

	var summary []*WasteSummary
	if err := r.db.SelectContext(ctx, &summary, query, from, to); err != nil {
		return nil, err
	}
	return summary, nil
}
