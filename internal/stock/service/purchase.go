package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/labstock/labstock-backend/internal/stock/events"
	"github.com/labstock/labstock-backend/internal/stock/repository"
	"github.com/labstock/labstock-backend/pkg/actor"
	"github.com/labstock/labstock-backend/pkg/database"
	"github.com/labstock/labstock-backend/pkg/errors"
	"github.com/labstock/labstock-backend/pkg/logger"
	"github.com/labstock/labstock-backend/pkg/messaging"
)

// RequestPurchaseInput is the payload for opening a procurement request
type RequestPurchaseInput struct {
	ItemID       string  `json:"item_id" validate:"required,uuid"`
	RequestedQty string  `json:"requested_qty" validate:"required"`
	Urgency      string  `json:"urgency" validate:"omitempty,oneof=low normal high critical"`
	Notes        *string `json:"notes,omitempty"`
}

// ApprovePurchaseInput is the payload for approving a request
type ApprovePurchaseInput struct {
	Note string `json:"note,omitempty"`
}

// RejectPurchaseInput is the payload for rejecting a request
type RejectPurchaseInput struct {
	Reason string `json:"reason" validate:"required"`
}

// OrderPurchaseInput is the payload for placing the order with a supplier
type OrderPurchaseInput struct {
	Supplier   string `json:"supplier" validate:"required,max=255"`
	PONumber   string `json:"po_number,omitempty"`
	OrderedQty string `json:"ordered_qty,omitempty"`
}

// ReceivePurchaseInput is the payload for recording a delivery. Every receipt
// creates a new lot; quantities from separate deliveries are never merged.
type ReceivePurchaseInput struct {
	Quantity       string     `json:"quantity" validate:"required"`
	LotNumber      string     `json:"lot_number" validate:"required,max=100"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	InvoiceRef     *string    `json:"invoice_ref,omitempty"`
	AttachmentURL  *string    `json:"attachment_url,omitempty"`
	OverReceiptAck bool       `json:"over_receipt_ack,omitempty"`
}

// PurchaseService drives the procurement lifecycle
type PurchaseService struct {
	db        *database.DB
	purchases *repository.PurchaseRepository
	items     *repository.ItemRepository
	lots      *repository.LotRepository
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(
	db *database.DB,
	purchases *repository.PurchaseRepository,
	items *repository.ItemRepository,
	lots *repository.LotRepository,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *PurchaseService {
	return &PurchaseService{
		db:        db,
		purchases: purchases,
		items:     items,
		lots:      lots,
		publisher: publisher,
		logger:    log.WithComponent("purchase_service"),
	}
}

func requireActor(ctx context.Context) (*actor.Actor, error) {
	act := actor.FromContext(ctx)
	if act == nil {
		return nil, errors.Unauthorized("acting identity is required")
	}
	return act, nil
}

func requirePurchaseManager(ctx context.Context) (*actor.Actor, error) {
	act, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !act.CanManagePurchases() {
		return nil, errors.Forbidden("purchase management requires an admin or lab manager role")
	}
	return act, nil
}

// Request opens a new purchase request in REQUESTED state
func (s *PurchaseService) Request(ctx context.Context, input RequestPurchaseInput) (*repository.Purchase, error) {
	act, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	qty, err := parseQuantity("requested_qty", input.RequestedQty)
	if err != nil {
		return nil, err
	}
	if !qty.IsPositive() {
		return nil, errors.Validation(map[string]string{"requested_qty": "must be positive"})
	}

	if _, err := s.items.GetByID(ctx, input.ItemID); err != nil {
		return nil, err
	}

	urgency := input.Urgency
	if urgency == "" {
		urgency = "normal"
	}

	p := &repository.Purchase{
		ItemID:          input.ItemID,
		RequestedQty:    qty,
		Urgency:         urgency,
		Notes:           input.Notes,
		RequestedBy:     act.ID,
		RequestedByName: act.Name,
	}

	if err := s.purchases.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("purchase_id", p.ID).
		Str("item_id", p.ItemID).
		Str("requested_by", act.ID).
		Msg("purchase requested")

	return p, nil
}

// transition loads and locks a purchase, applies fn to it, and persists the
// result, all in one transaction. The status-changed event fires after commit.
func (s *PurchaseService) transition(ctx context.Context, purchaseID, actorID string, fn func(p *repository.Purchase) error) (*repository.Purchase, error) {
	var oldStatus repository.PurchaseStatus
	var updated *repository.Purchase

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		p, err := s.purchases.GetForUpdate(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		oldStatus = p.Status

		if err := fn(p); err != nil {
			return err
		}

		if err := s.purchases.Update(ctx, tx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Status != oldStatus {
		s.publisher.PurchaseStatusChanged(ctx, messaging.PurchaseStatusChangedEvent{
			PurchaseID: updated.ID,
			ItemID:     updated.ItemID,
			OldStatus:  oldStatus.String(),
			NewStatus:  updated.Status.String(),
			ActorID:    actorID,
		})
	}

	return updated, nil
}

// Approve moves a request to APPROVED
func (s *PurchaseService) Approve(ctx context.Context, purchaseID string, input ApprovePurchaseInput) (*repository.Purchase, error) {
	act, err := requirePurchaseManager(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p, err := s.transition(ctx, purchaseID, act.ID, func(p *repository.Purchase) error {
		return p.Approve(act.ID, act.Name, input.Note, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("purchase_id", p.ID).Str("approved_by", act.ID).Msg("purchase approved")
	return p, nil
}

// Reject moves a request to the terminal REJECTED state
func (s *PurchaseService) Reject(ctx context.Context, purchaseID string, input RejectPurchaseInput) (*repository.Purchase, error) {
	act, err := requirePurchaseManager(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p, err := s.transition(ctx, purchaseID, act.ID, func(p *repository.Purchase) error {
		return p.Reject(act.ID, input.Reason, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("purchase_id", p.ID).Str("rejected_by", act.ID).Msg("purchase rejected")
	return p, nil
}

// Order places the approved request with a supplier
func (s *PurchaseService) Order(ctx context.Context, purchaseID string, input OrderPurchaseInput) (*repository.Purchase, error) {
	act, err := requirePurchaseManager(ctx)
	if err != nil {
		return nil, err
	}

	orderedQty := decimal.Zero
	if input.OrderedQty != "" {
		orderedQty, err = parseQuantity("ordered_qty", input.OrderedQty)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	p, err := s.transition(ctx, purchaseID, act.ID, func(p *repository.Purchase) error {
		return p.Order(act.ID, input.Supplier, input.PONumber, orderedQty, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("purchase_id", p.ID).
		Str("supplier", input.Supplier).
		Str("ordered_qty", p.OrderedQty.String()).
		Msg("purchase ordered")

	return p, nil
}

// Receive records a delivery against an ordered purchase: a new lot enters
// the ledger, an immutable receipt ties it to the purchase, and the purchase
// status follows the running received total.
func (s *PurchaseService) Receive(ctx context.Context, purchaseID string, input ReceivePurchaseInput) (*repository.Purchase, error) {
	act, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	qty, err := parseQuantity("quantity", input.Quantity)
	if err != nil {
		return nil, err
	}

	var oldStatus repository.PurchaseStatus
	var updated *repository.Purchase
	var lot *repository.Lot

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		p, err := s.purchases.GetForUpdate(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		oldStatus = p.Status

		if err := p.ApplyReceipt(qty, input.OverReceiptAck); err != nil {
			return err
		}

		lot = &repository.Lot{
			ItemID:          p.ItemID,
			LotNumber:       input.LotNumber,
			InitialQuantity: qty,
			ExpiryDate:      input.ExpiryDate,
		}
		if err := s.lots.CreateTx(ctx, tx, lot); err != nil {
			return err
		}

		receipt := &repository.Receipt{
			PurchaseID:     p.ID,
			ItemID:         p.ItemID,
			LotID:          lot.ID,
			LotNumber:      lot.LotNumber,
			Quantity:       qty,
			ExpiryDate:     input.ExpiryDate,
			InvoiceRef:     input.InvoiceRef,
			AttachmentURL:  input.AttachmentURL,
			ReceivedBy:     act.ID,
			ReceivedByName: act.Name,
		}
		if err := s.purchases.AddReceipt(ctx, tx, receipt); err != nil {
			return err
		}

		// The stored running total must equal the sum of receipt rows;
		// recompute from the rows rather than trusting the in-memory add.
		total, err := s.purchases.SumReceipts(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		p.ReceivedQtyTotal = total
		if total.GreaterThanOrEqual(p.OrderedQty) {
			p.Status = repository.PurchaseStatusReceived
		} else {
			p.Status = repository.PurchaseStatusPartiallyReceived
		}

		if err := s.purchases.Update(ctx, tx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	expiry := ""
	if lot.ExpiryDate != nil {
		expiry = lot.ExpiryDate.Format("2006-01-02")
	}
	s.publisher.LotReceived(ctx, messaging.LotReceivedEvent{
		ItemID:     updated.ItemID,
		LotID:      lot.ID,
		LotNumber:  lot.LotNumber,
		Quantity:   qty.String(),
		ExpiryDate: expiry,
		PurchaseID: updated.ID,
		ReceivedBy: act.ID,
	})
	if updated.Status != oldStatus {
		s.publisher.PurchaseStatusChanged(ctx, messaging.PurchaseStatusChangedEvent{
			PurchaseID: updated.ID,
			ItemID:     updated.ItemID,
			OldStatus:  oldStatus.String(),
			NewStatus:  updated.Status.String(),
			ActorID:    act.ID,
		})
	}

	s.logger.Info().
		Str("purchase_id", updated.ID).
		Str("lot_id", lot.ID).
		Str("quantity", qty.String()).
		Str("status", updated.Status.String()).
		Msg("purchase receipt recorded")

	return s.purchases.GetByID(ctx, updated.ID)
}

// Get returns a purchase with its receipts
func (s *PurchaseService) Get(ctx context.Context, id string) (*repository.Purchase, error) {
	return s.purchases.GetByID(ctx, id)
}

// List lists purchases, optionally filtered by status
func (s *PurchaseService) List(ctx context.Context, status string, page, perPage int) ([]*repository.Purchase, int64, error) {
	var st repository.PurchaseStatus
	if status != "" {
		st = repository.PurchaseStatus(status)
		if !st.IsValid() {
			return nil, 0, errors.Validation(map[string]string{"status": "unknown purchase status"})
		}
	}
	return s.purchases.List(ctx, st, page, perPage)
}
