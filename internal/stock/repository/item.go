package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/labstock/labstock-backend/pkg/database"
	"github.com/labstock/labstock-backend/pkg/errors"
)

// ItemDefinition is the canonical definition of a trackable material.
// The human-entered code is unique and stable; imports upsert by code.
type ItemDefinition struct {
	ID            string          `db:"id" json:"id"`
	Code          string          `db:"code" json:"code"`
	Name          string          `db:"name" json:"name"`
	Category      string          `db:"category" json:"category"`
	Department    string          `db:"department" json:"department"`
	Unit          string          `db:"unit" json:"unit"`
	MinStock      decimal.Decimal `db:"min_stock" json:"min_stock"`
	Supplier      *string         `db:"supplier" json:"supplier,omitempty"`
	CatalogNumber *string         `db:"catalog_number" json:"catalog_number,omitempty"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// ItemRepository handles item persistence
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create creates a new item
func (r *ItemRepository) Create(ctx context.Context, item *ItemDefinition) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO items (
			id, code, name, category, department, unit, min_stock,
			supplier, catalog_number, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		item.ID, item.Code, item.Name, item.Category, item.Department,
		item.Unit, item.MinStock, item.Supplier, item.CatalogNumber, item.Notes,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*ItemDefinition, error) {
	var item ItemDefinition
	query := `SELECT * FROM items WHERE id = $1`
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item")
		}
		return nil, err
	}
	return &item, nil
}

// GetByCode gets an item by its unique code
func (r *ItemRepository) GetByCode(ctx context.Context, code string) (*ItemDefinition, error) {
	var item ItemDefinition
	query := `SELECT * FROM items WHERE code = $1`
	if err := r.db.GetContext(ctx, &item, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item")
		}
		return nil, err
	}
	return &item, nil
}

// List lists items with pagination and optional category/department filters
func (r *ItemRepository) List(ctx context.Context, page, perPage int, category, department string) ([]*ItemDefinition, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}

	if category != "" {
		args = append(args, category)
		where += ` AND category = $1`
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
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM items`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT * FROM items` + where + ` ORDER BY name`
	switch len(args) {
	case 0:
		query += ` LIMIT $1 OFFSET $2`
	case 1:
		query += ` LIMIT $2 OFFSET $3`
	case 2:
		query += ` LIMIT $3 OFFSET $4`
	}
	args = append(args, perPage, offset)

	var items []*ItemDefinition
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// Update updates an item definition
func (r *ItemRepository) Update(ctx context.Context, item *ItemDefinition) error {
	query := `
		UPDATE items SET
			code = $2, name = $3, category = $4, department = $5, unit = $6,
			min_stock = $7, supplier = $8, catalog_number = $9, notes = $10,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		item.ID, item.Code, item.Name, item.Category, item.Department,
		item.Unit, item.MinStock, item.Supplier, item.CatalogNumber, item.Notes,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("item")
	}

	return nil
}

// Delete deletes an item. Lots and movement history reference items with
// ON DELETE CASCADE, so the item's whole ledger goes with it.
func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("item")
	}

	return nil
}
