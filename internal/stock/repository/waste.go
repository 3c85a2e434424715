package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/labstock/labstock-backend/pkg/database"
	"github.com/labstock/labstock-backend/pkg/errors"
)

// Waste types
const (
	WasteTypeExpired      = "EXPIRED"
	WasteTypeContaminated = "CONTAMINATED"
	WasteTypeDamaged      = "DAMAGED"
	WasteTypeRecalled     = "RECALLED"
)

// ValidWasteType reports whether the given waste type is one of the known kinds.
func ValidWasteType(t string) bool {
	switch t {
	case WasteTypeExpired, WasteTypeContaminated, WasteTypeDamaged, WasteTypeRecalled:
		return true
	}
	return false
}

// WasteRecord documents a disposal of stock. Records are immutable.
type WasteRecord struct {
	ID             string          `db:"id" json:"id"`
	ItemID         string          `db:"item_id" json:"item_id"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	WasteType      string          `db:"waste_type" json:"waste_type"`
	Reason         string          `db:"reason" json:"reason"`
	DisposalMethod string          `db:"disposal_method" json:"disposal_method"`
	CertificateRef *string         `db:"certificate_ref" json:"certificate_ref,omitempty"`
	RecordedBy     string          `db:"recorded_by" json:"recorded_by"`
	RecordedByName string          `db:"recorded_by_name" json:"recorded_by_name"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`

	Allocations []*Allocation `db:"-" json:"allocations,omitempty"`
}

// WasteRepository handles waste record persistence
type WasteRepository struct {
	db *database.DB
}

// NewWasteRepository creates a new waste repository
func NewWasteRepository(db *database.DB) *WasteRepository {
	return &WasteRepository{db: db}
}

// CreateTx creates a waste record inside the caller's transaction
func (r *WasteRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, w *WasteRecord) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}

	query := `
		INSERT INTO waste_records (
			id, item_id, quantity, waste_type, reason, disposal_method,
			certificate_ref, recorded_by, recorded_by_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := sqlx.GetContext(ctx, tx, &w.CreatedAt, query,
		w.ID, w.ItemID, w.Quantity, w.WasteType, w.Reason,
		w.DisposalMethod, w.CertificateRef, w.RecordedBy, w.RecordedByName,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a waste record by ID
func (r *WasteRepository) GetByID(ctx context.Context, id string) (*WasteRecord, error) {
	var w WasteRecord
	if err := r.db.GetContext(ctx, &w, `SELECT * FROM waste_records WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("waste record")
		}
		return nil, err
	}
	return &w, nil
}

// List lists waste records with optional item and type filters
func (r *WasteRepository) List(ctx context.Context, itemID, wasteType string, page, perPage int) ([]*WasteRecord, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}

	if itemID != "" {
		args = append(args, itemID)
		where += ` AND item_id = $1`
	}
	if wasteType != "" {
		args = append(args, wasteType)
		if len(args) == 1 {
			where += ` AND waste_type = $1`
		} else {
			where += ` AND waste_type = $2`
		}
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM waste_records`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT * FROM waste_records` + where + ` ORDER BY created_at DESC`
	switch len(args) {
	case 0:
		query += ` LIMIT $1 OFFSET $2`
	case 1:
		query += ` LIMIT $2 OFFSET $3`
	case 2:
		query += ` LIMIT $3 OFFSET $4`
	}
	args = append(args, perPage, offset)

	var records []*WasteRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
