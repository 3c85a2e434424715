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

// Lot statuses. Status is derived from quantity and expiry on every read;
// the stored column is never consulted as the source of truth.
const (
	LotStatusActive   = "ACTIVE"
	LotStatusDepleted = "DEPLETED"
	LotStatusExpired  = "EXPIRED"
)

// Lot is one received batch of an item. Current quantity only ever decreases;
// lots are never physically deleted except through item deletion cascades.
type Lot struct {
	ID              string          `db:"id" json:"id"`
	ItemID          string          `db:"item_id" json:"item_id"`
	LotNumber       string          `db:"lot_number" json:"lot_number"`
	InitialQuantity decimal.Decimal `db:"initial_quantity" json:"initial_quantity"`
	CurrentQuantity decimal.Decimal `db:"current_quantity" json:"current_quantity"`
	ExpiryDate      *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	ReceivedDate    time.Time       `db:"received_date" json:"received_date"`
	Status          string          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the lot's expiry date has passed.
func (l *Lot) IsExpired(now time.Time) bool {
	return l.ExpiryDate != nil && l.ExpiryDate.Before(now)
}

// Allocation records one lot's contribution to an outgoing movement.
type Allocation struct {
	ID         string          `db:"id" json:"id"`
	SourceType string          `db:"source_type" json:"source_type"`
	SourceID   string          `db:"source_id" json:"source_id"`
	LotID      string          `db:"lot_id" json:"lot_id"`
	LotNumber  string          `db:"lot_number" json:"lot_number"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Allocation source types
const (
	AllocationSourceDistribution = "distribution"
	AllocationSourceWaste        = "waste"
)

// statusExpr derives the lot status at read time. DEPLETED wins over EXPIRED
// so a used-up expired lot reports as depleted.
const statusExpr = `
	CASE
		WHEN current_quantity = 0 THEN 'DEPLETED'
		WHEN expiry_date IS NOT NULL AND expiry_date < NOW() THEN 'EXPIRED'
		ELSE 'ACTIVE'
	END AS status
`

const lotColumns = `id, item_id, lot_number, initial_quantity, current_quantity,
	expiry_date, received_date, created_at, ` + statusExpr

// fefoOrder is the allocation order: dated lots soonest-expiry first, undated
// lots after all dated ones, ties broken by received date then insertion order.
const fefoOrder = ` ORDER BY expiry_date ASC NULLS LAST, received_date ASC, created_at ASC`

// LotRepository handles lot persistence
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Create creates a new lot outside any surrounding transaction.
func (r *LotRepository) Create(ctx context.Context, lot *Lot) error {
	return r.create(ctx, r.db, lot)
}

// CreateTx creates a new lot inside the caller's transaction.
func (r *LotRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, lot *Lot) error {
	return r.create(ctx, tx, lot)
}

func (r *LotRepository) create(ctx context.Context, q sqlx.ExtContext, lot *Lot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}
	if lot.ReceivedDate.IsZero() {
		lot.ReceivedDate = time.Now().UTC()
	}
	lot.CurrentQuantity = lot.InitialQuantity
	lot.Status = LotStatusActive

	query := `
		INSERT INTO lots (
			id, item_id, lot_number, initial_quantity, current_quantity,
			expiry_date, received_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := sqlx.GetContext(ctx, q, &lot.CreatedAt, query,
		lot.ID, lot.ItemID, lot.LotNumber, lot.InitialQuantity,
		lot.CurrentQuantity, lot.ExpiryDate, lot.ReceivedDate,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a lot by ID
func (r *LotRepository) GetByID(ctx context.Context, id string) (*Lot, error) {
	var lot Lot
	query := `SELECT ` + lotColumns + ` FROM lots WHERE id = $1`
	if err := r.db.GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// GetByLotNumber gets an item's lot by its lot number
func (r *LotRepository) GetByLotNumber(ctx context.Context, itemID, lotNumber string) (*Lot, error) {
	var lot Lot
	query := `SELECT ` + lotColumns + ` FROM lots WHERE item_id = $1 AND lot_number = $2`
	if err := r.db.GetContext(ctx, &lot, query, itemID, lotNumber); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// ListByItem lists all lots for an item, allocation-ordered
func (r *LotRepository) ListByItem(ctx context.Context, itemID string) ([]*Lot, error) {
	var lots []*Lot
	query := `SELECT ` + lotColumns + ` FROM lots WHERE item_id = $1` + fefoOrder
	if err := r.db.SelectContext(ctx, &lots, query, itemID); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListActiveForAllocation locks and returns an item's lots with remaining
// quantity, in allocation order. Must run inside a transaction: the row locks
// serialize concurrent allocations against the same item.
func (r *LotRepository) ListActiveForAllocation(ctx context.Context, tx *sqlx.Tx, itemID string) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT id, item_id, lot_number, initial_quantity, current_quantity,
			expiry_date, received_date, created_at, ` + statusExpr + `
		FROM lots
		WHERE item_id = $1 AND current_quantity > 0` + fefoOrder + `
		FOR UPDATE
	`
	if err := sqlx.SelectContext(ctx, tx, &lots, query, itemID); err != nil {
		return nil, err
	}
	return lots, nil
}

// GetForAllocation locks and returns a single lot for a manual-override
// allocation. Same locking contract as ListActiveForAllocation.
func (r *LotRepository) GetForAllocation(ctx context.Context, tx *sqlx.Tx, lotID string) (*Lot, error) {
	var lot Lot
	query := `
		SELECT id, item_id, lot_number, initial_quantity, current_quantity,
			expiry_date, received_date, created_at, ` + statusExpr + `
		FROM lots
		WHERE id = $1
		FOR UPDATE
	`
	if err := sqlx.GetContext(ctx, tx, &lot, query, lotID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// Decrement atomically reduces a lot's current quantity. The guard in the
// UPDATE itself makes overdraw impossible even under a lost-update race.
func (r *LotRepository) Decrement(ctx context.Context, tx *sqlx.Tx, lotID string, amount decimal.Decimal) error {
	query := `
		UPDATE lots
		SET current_quantity = current_quantity - $2
		WHERE id = $1 AND current_quantity >= $2
	`
	result, err := tx.ExecContext(ctx, query, lotID, amount)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.InsufficientLotQuantity(lotID, amount.String(), "unknown")
	}

	return nil
}

// InsertAllocations persists the allocation records of one movement.
func (r *LotRepository) InsertAllocations(ctx context.Context, tx *sqlx.Tx, sourceType, sourceID string, allocations []*Allocation) error {
	query := `
		INSERT INTO lot_allocations (id, source_type, source_id, lot_id, lot_number, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	for _, a := range allocations {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		a.SourceType = sourceType
		a.SourceID = sourceID

		err := sqlx.GetContext(ctx, tx, &a.CreatedAt, query,
			a.ID, a.SourceType, a.SourceID, a.LotID, a.LotNumber, a.Quantity,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListAllocations lists the allocation records of one movement.
func (r *LotRepository) ListAllocations(ctx context.Context, sourceType, sourceID string) ([]*Allocation, error) {
	var allocations []*Allocation
	query := `
		SELECT * FROM lot_allocations
		WHERE source_type = $1 AND source_id = $2
		ORDER BY created_at
	`
	if err := r.db.SelectContext(ctx, &allocations, query, sourceType, sourceID); err != nil {
		return nil, err
	}
	return allocations, nil
}

// ListExpiring lists lots with remaining quantity expiring within the given
// number of days, soonest first. Already-expired lots are included.
func (r *LotRepository) ListExpiring(ctx context.Context, withinDays int) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT ` + lotColumns + `
		FROM lots
		WHERE current_quantity > 0
		AND expiry_date IS NOT NULL
		AND expiry_date <= NOW() + INTERVAL '1 day' * $1
		ORDER BY expiry_date
	`
	if err := r.db.SelectContext(ctx, &lots, query, withinDays); err != nil {
		return nil, err
	}
	return lots, nil
}
