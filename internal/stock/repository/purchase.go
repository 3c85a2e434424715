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

// PurchaseStatus is the lifecycle state of a procurement request.
type PurchaseStatus string

const (
	PurchaseStatusRequested         PurchaseStatus = "REQUESTED"
	PurchaseStatusApproved          PurchaseStatus = "APPROVED"
	PurchaseStatusRejected          PurchaseStatus = "REJECTED"
	PurchaseStatusOrdered           PurchaseStatus = "ORDERED"
	PurchaseStatusPartiallyReceived PurchaseStatus = "PARTIALLY_RECEIVED"
	PurchaseStatusReceived          PurchaseStatus = "RECEIVED"
)

// IsValid checks if the status is a valid PurchaseStatus
func (s PurchaseStatus) IsValid() bool {
	switch s {
	case PurchaseStatusRequested, PurchaseStatusApproved, PurchaseStatusRejected,
		PurchaseStatusOrdered, PurchaseStatusPartiallyReceived, PurchaseStatusReceived:
		return true
	}
	return false
}

// String returns the string representation of PurchaseStatus
func (s PurchaseStatus) String() string {
	return string(s)
}

// CanReceive returns true if receiving goods is allowed in this status.
// RECEIVED still accepts further receipts (late or corrective deliveries).
func (s PurchaseStatus) CanReceive() bool {
	return s == PurchaseStatusOrdered || s == PurchaseStatusPartiallyReceived || s == PurchaseStatusReceived
}

// Purchase is one procurement request, from initial request through approval,
// ordering, and possibly many partial receipts.
type Purchase struct {
	ID              string          `db:"id" json:"id"`
	ItemID          string          `db:"item_id" json:"item_id"`
	RequestedQty    decimal.Decimal `db:"requested_qty" json:"requested_qty"`
	Urgency         string          `db:"urgency" json:"urgency"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	Status          PurchaseStatus  `db:"status" json:"status"`
	RequestedBy     string          `db:"requested_by" json:"requested_by"`
	RequestedByName string          `db:"requested_by_name" json:"requested_by_name"`

	ApprovedBy     *string    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedByName *string    `db:"approved_by_name" json:"approved_by_name,omitempty"`
	ApprovedAt     *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ApprovalNote   *string    `db:"approval_note" json:"approval_note,omitempty"`

	RejectedBy     *string    `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt     *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectedReason *string    `db:"rejected_reason" json:"rejected_reason,omitempty"`

	OrderedBy  *string         `db:"ordered_by" json:"ordered_by,omitempty"`
	OrderedAt  *time.Time      `db:"ordered_at" json:"ordered_at,omitempty"`
	Supplier   *string         `db:"supplier" json:"supplier,omitempty"`
	PONumber   *string         `db:"po_number" json:"po_number,omitempty"`
	OrderedQty decimal.Decimal `db:"ordered_qty" json:"ordered_qty"`

	ReceivedQtyTotal decimal.Decimal `db:"received_qty_total" json:"received_qty_total"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Receipts []*Receipt `db:"-" json:"receipts,omitempty"`
}

// Receipt is one delivery against a purchase. Immutable once created; every
// receipt materializes exactly one new lot.
type Receipt struct {
	ID             string          `db:"id" json:"id"`
	PurchaseID     string          `db:"purchase_id" json:"purchase_id"`
	ItemID         string          `db:"item_id" json:"item_id"`
	LotID          string          `db:"lot_id" json:"lot_id"`
	LotNumber      string          `db:"lot_number" json:"lot_number"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	ExpiryDate     *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	InvoiceRef     *string         `db:"invoice_ref" json:"invoice_ref,omitempty"`
	AttachmentURL  *string         `db:"attachment_url" json:"attachment_url,omitempty"`
	ReceivedBy     string          `db:"received_by" json:"received_by"`
	ReceivedByName string          `db:"received_by_name" json:"received_by_name"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Approve moves the purchase from REQUESTED to APPROVED.
func (p *Purchase) Approve(approverID, approverName, note string, now time.Time) error {
	if p.Status != PurchaseStatusRequested {
		return errors.InvalidStateTransition(p.Status.String(), "approve")
	}
	if approverID == "" {
		return errors.Validation(map[string]string{"approver": "approver identity is required"})
	}

	p.Status = PurchaseStatusApproved
	p.ApprovedBy = &approverID
	p.ApprovedByName = &approverName
	p.ApprovedAt = &now
	if note != "" {
		p.ApprovalNote = &note
	}
	return nil
}

// Reject moves the purchase from REQUESTED to the terminal REJECTED state.
func (p *Purchase) Reject(actorID, reason string, now time.Time) error {
	if p.Status != PurchaseStatusRequested {
		return errors.InvalidStateTransition(p.Status.String(), "reject")
	}
	if reason == "" {
		return errors.Validation(map[string]string{"reason": "a rejection reason is required"})
	}

	p.Status = PurchaseStatusRejected
	p.RejectedBy = &actorID
	p.RejectedAt = &now
	p.RejectedReason = &reason
	return nil
}

// Order moves the purchase from APPROVED to ORDERED. The ordered quantity
// defaults to the requested quantity when not specified.
func (p *Purchase) Order(actorID, supplier, poNumber string, orderedQty decimal.Decimal, now time.Time) error {
	if p.Status != PurchaseStatusApproved {
		return errors.InvalidStateTransition(p.Status.String(), "order")
	}
	if supplier == "" {
		return errors.Validation(map[string]string{"supplier": "supplier name is required"})
	}
	if orderedQty.IsZero() {
		orderedQty = p.RequestedQty
	}
	if !orderedQty.IsPositive() {
		return errors.Validation(map[string]string{"ordered_qty": "ordered quantity must be positive"})
	}

	p.Status = PurchaseStatusOrdered
	p.OrderedBy = &actorID
	p.OrderedAt = &now
	p.Supplier = &supplier
	if poNumber != "" {
		p.PONumber = &poNumber
	}
	p.OrderedQty = orderedQty
	return nil
}

// ApplyReceipt folds a receipt quantity into the running total and derives the
// new status. Over-receipt is permitted but only with the caller's explicit
// acknowledgement.
func (p *Purchase) ApplyReceipt(quantity decimal.Decimal, overReceiptAck bool) error {
	if !p.Status.CanReceive() {
		return errors.InvalidStateTransition(p.Status.String(), "receive")
	}
	if !quantity.IsPositive() {
		return errors.Validation(map[string]string{"quantity": "received quantity must be positive"})
	}

	newTotal := p.ReceivedQtyTotal.Add(quantity)
	if newTotal.GreaterThan(p.OrderedQty) && !overReceiptAck {
		return errors.OverReceiptNotAcknowledged(p.OrderedQty.String(), newTotal.String())
	}

	p.ReceivedQtyTotal = newTotal
	if newTotal.GreaterThanOrEqual(p.OrderedQty) {
		p.Status = PurchaseStatusReceived
	} else {
		p.Status = PurchaseStatusPartiallyReceived
	}
	return nil
}

// PurchaseRepository handles purchase and receipt persistence
type PurchaseRepository struct {
	db *database.DB
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db *database.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Create creates a new purchase in REQUESTED state
func (r *PurchaseRepository) Create(ctx context.Context, p *Purchase) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Status = PurchaseStatusRequested

	query := `
		INSERT INTO purchases (
			id, item_id, requested_qty, urgency, notes, status,
			requested_by, requested_by_name, ordered_qty, received_qty_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		p.ID, p.ItemID, p.RequestedQty, p.Urgency, p.Notes, p.Status,
		p.RequestedBy, p.RequestedByName,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a purchase with its receipts
func (r *PurchaseRepository) GetByID(ctx context.Context, id string) (*Purchase, error) {
	var p Purchase
	if err := r.db.GetContext(ctx, &p, `SELECT * FROM purchases WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("purchase")
		}
		return nil, err
	}

	receipts, err := r.listReceipts(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	p.Receipts = receipts

	return &p, nil
}

// GetForUpdate locks and returns a purchase row inside the caller's
// transaction, serializing concurrent lifecycle transitions.
func (r *PurchaseRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*Purchase, error) {
	var p Purchase
	query := `SELECT * FROM purchases WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, tx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("purchase")
		}
		return nil, err
	}
	return &p, nil
}

// Update persists the mutable lifecycle fields of a purchase
func (r *PurchaseRepository) Update(ctx context.Context, q sqlx.ExtContext, p *Purchase) error {
	query := `
		UPDATE purchases SET
			status = $2,
			approved_by = $3, approved_by_name = $4, approved_at = $5, approval_note = $6,
			rejected_by = $7, rejected_at = $8, rejected_reason = $9,
			ordered_by = $10, ordered_at = $11, supplier = $12, po_number = $13, ordered_qty = $14,
			received_qty_total = $15,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := q.ExecContext(ctx, query,
		p.ID, p.Status,
		p.ApprovedBy, p.ApprovedByName, p.ApprovedAt, p.ApprovalNote,
		p.RejectedBy, p.RejectedAt, p.RejectedReason,
		p.OrderedBy, p.OrderedAt, p.Supplier, p.PONumber, p.OrderedQty,
		p.ReceivedQtyTotal,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("purchase")
	}

	return nil
}

// AddReceipt appends an immutable receipt row inside the caller's transaction
func (r *PurchaseRepository) AddReceipt(ctx context.Context, tx *sqlx.Tx, receipt *Receipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.New().String()
	}

	query := `
		INSERT INTO purchase_receipts (
			id, purchase_id, item_id, lot_id, lot_number, quantity,
			expiry_date, invoice_ref, attachment_url, received_by, received_by_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	err := sqlx.GetContext(ctx, tx, &receipt.CreatedAt, query,
		receipt.ID, receipt.PurchaseID, receipt.ItemID, receipt.LotID,
		receipt.LotNumber, receipt.Quantity, receipt.ExpiryDate,
		receipt.InvoiceRef, receipt.AttachmentURL,
		receipt.ReceivedBy, receipt.ReceivedByName,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// SumReceipts recomputes the received total from the receipt rows, inside the
// caller's transaction. The stored running total must always equal this sum.
func (r *PurchaseRepository) SumReceipts(ctx context.Context, tx *sqlx.Tx, purchaseID string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	query := `SELECT SUM(quantity) FROM purchase_receipts WHERE purchase_id = $1`
	if err := sqlx.GetContext(ctx, tx, &total, query, purchaseID); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// List lists purchases with optional status filter
func (r *PurchaseRepository) List(ctx context.Context, status PurchaseStatus, page, perPage int) ([]*Purchase, int64, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM purchases`+where, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT * FROM purchases` + where + ` ORDER BY created_at DESC`
	if status != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, perPage, offset)

	var purchases []*Purchase
	if err := r.db.SelectContext(ctx, &purchases, query, args...); err != nil {
		return nil, 0, err
	}

	return purchases, total, nil
}

func (r *PurchaseRepository) listReceipts(ctx context.Context, q sqlx.QueryerContext, purchaseID string) ([]*Receipt, error) {
	var receipts []*Receipt
	query := `SELECT * FROM purchase_receipts WHERE purchase_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, q, &receipts, query, purchaseID); err != nil {
		return nil, err
	}
	return receipts, nil
}
