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

// Distribution statuses
const (
	DistributionStatusOpen      = "open"
	DistributionStatusCompleted = "completed"
)

// Distribution is a hand-out of stock to a department. Quantity is deducted
// from the lot ledger at creation; confirmation only acknowledges delivery.
type Distribution struct {
	ID             string          `db:"id" json:"id"`
	ItemID         string          `db:"item_id" json:"item_id"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	Department     string          `db:"department" json:"department"`
	RequestedBy    string          `db:"requested_by" json:"requested_by"`
	Purpose        string          `db:"purpose" json:"purpose"`
	IssuedBy       string          `db:"issued_by" json:"issued_by"`
	IssuedByName   string          `db:"issued_by_name" json:"issued_by_name"`
	Status         string          `db:"status" json:"status"`
	ConfirmedBy    *string         `db:"confirmed_by" json:"confirmed_by,omitempty"`
	ConfirmedAt    *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`

	Allocations []*Allocation `db:"-" json:"allocations,omitempty"`
}

// DistributionRepository handles distribution persistence
type DistributionRepository struct {
	db *database.DB
}

// NewDistributionRepository creates a new distribution repository
func NewDistributionRepository(db *database.DB) *DistributionRepository {
	return &DistributionRepository{db: db}
}

// CreateTx creates a distribution inside the caller's transaction, in the
// open state.
func (r *DistributionRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, d *Distribution) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.Status = DistributionStatusOpen

	query := `
		INSERT INTO distributions (
			id, item_id, quantity, department, requested_by, purpose,
			issued_by, issued_by_name, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := sqlx.GetContext(ctx, tx, &d.CreatedAt, query,
		d.ID, d.ItemID, d.Quantity, d.Department, d.RequestedBy, d.Purpose,
		d.IssuedBy, d.IssuedByName, d.Status,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a distribution with its lot allocations
func (r *DistributionRepository) GetByID(ctx context.Context, id string) (*Distribution, error) {
	var d Distribution
	if err := r.db.GetContext(ctx, &d, `SELECT * FROM distributions WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("distribution")
		}
		return nil, err
	}
	return &d, nil
}

// Confirm marks an open distribution as completed. The status guard in the
// WHERE clause makes confirmation idempotence failures visible as conflicts.
func (r *DistributionRepository) Confirm(ctx context.Context, id, confirmedBy string) (*Distribution, error) {
	query := `
		UPDATE distributions
		SET status = $2, confirmed_by = $3, confirmed_at = NOW()
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, id, DistributionStatusCompleted, confirmedBy, DistributionStatusOpen)
	if err != nil {
		return nil, err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		d, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, errors.InvalidStateTransition(d.Status, "confirm")
	}

	return r.GetByID(ctx, id)
}

// List lists distributions with optional item and department filters
func (r *DistributionRepository) List(ctx context.Context, itemID, department string, page, perPage int) ([]*Distribution, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}

	if itemID != "" {
		args = append(args, itemID)
		where += ` AND item_id = $1`
	}
	if department != "" {
		args = append(args, department)
		if len(args) == 1 {
			where += ` AND department = $1`
		} else {
			where += ` AND department = $2`
		}
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM distributions`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT * FROM distributions` + where + ` ORDER BY created_at DESC`
	switch len(args) {
	case 0:
		query += ` LIMIT $1 OFFSET $2`
	case 1:
		query += ` LIMIT $2 OFFSET $3`
	case 2:
		query += ` LIMIT $3 OFFSET $4`
	}
	args = append(args, perPage, offset)

	var distributions []*Distribution
	if err := r.db.SelectContext(ctx, &distributions, query, args...); err != nil {
		return nil, 0, err
	}

	return distributions, total, nil
}
