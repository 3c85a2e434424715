package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/labstock/labstock-backend/internal/stock/events"
	"github.com/labstock/labstock-backend/internal/stock/repository"
	"github.com/labstock/labstock-backend/pkg/database"
	"github.com/labstock/labstock-backend/pkg/errors"
	"github.com/labstock/labstock-backend/pkg/logger"
	"github.com/labstock/labstock-backend/pkg/messaging"
)

// DistributeInput is the payload for issuing stock to a department
type DistributeInput struct {
	ItemID      string `json:"item_id" validate:"required,uuid"`
	Quantity    string `json:"quantity" validate:"required"`
	Department  string `json:"department" validate:"required,max=100"`
	RequestedBy string `json:"requested_by" validate:"required,max=255"`
	Purpose     string `json:"purpose" validate:"required"`
	LotID       string `json:"lot_id,omitempty" validate:"omitempty,uuid"`
}

// RecordWasteInput is the payload for documenting a disposal
type RecordWasteInput struct {
	ItemID         string  `json:"item_id" validate:"required,uuid"`
	Quantity       string  `json:"quantity" validate:"required"`
	WasteType      string  `json:"waste_type" validate:"required"`
	Reason         string  `json:"reason" validate:"required"`
	DisposalMethod string  `json:"disposal_method" validate:"required,max=255"`
	CertificateRef *string `json:"certificate_ref,omitempty" validate:"omitempty,max=100"`
	LotID          string  `json:"lot_id,omitempty" validate:"omitempty,uuid"`
}

// MovementService implements outgoing stock movements: distributions to
// departments and waste disposals. Both deduct from the lot ledger through
// the allocator in a single transaction.
type MovementService struct {
	db            *database.DB
	allocator     *Allocator
	items         *repository.ItemRepository
	lots          *repository.LotRepository
	distributions *repository.DistributionRepository
	waste         *repository.WasteRepository
	publisher     *events.StockEventPublisher
	logger        *logger.Logger
}

// NewMovementService creates a new movement service
func NewMovementService(
	db *database.DB,
	allocator *Allocator,
	items *repository.ItemRepository,
	lots *repository.LotRepository,
	distributions *repository.DistributionRepository,
	waste *repository.WasteRepository,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *MovementService {
	return &MovementService{
		db:            db,
		allocator:     allocator,
		items:         items,
		lots:          lots,
		distributions: distributions,
		waste:         waste,
		publisher:     publisher,
		logger:        log.WithComponent("movement_service"),
	}
}

// Distribute issues stock to a department. The quantity leaves the lot ledger
// immediately; the distribution stays open until delivery is confirmed.
func (s *MovementService) Distribute(ctx context.Context, input DistributeInput) (*repository.Distribution, error) {
	act, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	qty, err := parseQuantity("quantity", input.Quantity)
	if err != nil {
		return nil, err
	}

	item, err := s.items.GetByID(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}

	var dist *repository.Distribution
	var allocations []*repository.Allocation

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		allocations, err = s.allocator.Allocate(ctx, tx, item.ID, qty, AllocateOptions{
			LotID: input.LotID,
		})
		if err != nil {
			return err
		}

		dist = &repository.Distribution{
			ItemID:       item.ID,
			Quantity:     qty,
			Department:   input.Department,
			RequestedBy:  input.RequestedBy,
			Purpose:      input.Purpose,
			IssuedBy:     act.ID,
			IssuedByName: act.Name,
		}
		if err := s.distributions.CreateTx(ctx, tx, dist); err != nil {
			return err
		}

		return s.lots.InsertAllocations(ctx, tx, repository.AllocationSourceDistribution, dist.ID, allocations)
	})
	if err != nil {
		return nil, err
	}
	dist.Allocations = allocations

	s.publisher.StockAllocated(ctx, messaging.StockAllocatedEvent{
		ItemID:     item.ID,
		SourceType: repository.AllocationSourceDistribution,
		SourceID:   dist.ID,
		Quantity:   qty.String(),
		LotCount:   len(allocations),
		ActorID:    act.ID,
	})
	s.checkLowStock(ctx, item)

	s.logger.Info().
		Str("distribution_id", dist.ID).
		Str("item_id", item.ID).
		Str("department", dist.Department).
		Str("quantity", qty.String()).
		Int("lot_count", len(allocations)).
		Msg("stock distributed")

	return dist, nil
}

// ConfirmDistribution marks an open distribution as delivered
func (s *MovementService) ConfirmDistribution(ctx context.Context, id string) (*repository.Distribution, error) {
	act, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	dist, err := s.distributions.Confirm(ctx, id, act.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("distribution_id", id).Str("confirmed_by", act.ID).Msg("distribution confirmed")
	return dist, nil
}

// GetDistribution returns a distribution with its lot allocations
func (s *MovementService) GetDistribution(ctx context.Context, id string) (*repository.Distribution, error) {
	dist, err := s.distributions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	allocations, err := s.lots.ListAllocations(ctx, repository.AllocationSourceDistribution, id)
	if err != nil {
		return nil, err
	}
	dist.Allocations = allocations
	return dist, nil
}

// ListDistributions lists distributions with optional filters
func (s *MovementService) ListDistributions(ctx context.Context, itemID, department string, page, perPage int) ([]*repository.Distribution, int64, error) {
	return s.distributions.List(ctx, itemID, department, page, perPage)
}

// RecordWaste documents a disposal and deducts the quantity from the ledger.
// Expired lots carry the earliest expiry dates, so the allocation order
// drains them before usable stock.
func (s *MovementService) RecordWaste(ctx context.Context, input RecordWasteInput) (*repository.WasteRecord, error) {
	act, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if !repository.ValidWasteType(input.WasteType) {
		return nil, errors.Validation(map[string]string{"waste_type": "unknown waste type"})
	}

	qty, err := parseQuantity("quantity", input.Quantity)
	if err != nil {
		return nil, err
	}

	item, err := s.items.GetByID(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}

	var record *repository.WasteRecord
	var allocations []*repository.Allocation

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		allocations, err = s.allocator.Allocate(ctx, tx, item.ID, qty, AllocateOptions{
			LotID: input.LotID,
		})
		if err != nil {
			return err
		}

		record = &repository.WasteRecord{
			ItemID:         item.ID,
			Quantity:       qty,
			WasteType:      input.WasteType,
			Reason:         input.Reason,
			DisposalMethod: input.DisposalMethod,
			CertificateRef: input.CertificateRef,
			RecordedBy:     act.ID,
			RecordedByName: act.Name,
		}
		if err := s.waste.CreateTx(ctx, tx, record); err != nil {
			return err
		}

		return s.lots.InsertAllocations(ctx, tx, repository.AllocationSourceWaste, record.ID, allocations)
	})
	if err != nil {
		return nil, err
	}
	record.Allocations = allocations

	s.publisher.WasteRecorded(ctx, messaging.WasteRecordedEvent{
		ItemID:         item.ID,
		WasteID:        record.ID,
		WasteType:      record.WasteType,
		Quantity:       qty.String(),
		DisposalMethod: record.DisposalMethod,
		ActorID:        act.ID,
	})
	s.publisher.StockAllocated(ctx, messaging.StockAllocatedEvent{
		ItemID:     item.ID,
		SourceType: repository.AllocationSourceWaste,
		SourceID:   record.ID,
		Quantity:   qty.String(),
		LotCount:   len(allocations),
		ActorID:    act.ID,
	})
	s.checkLowStock(ctx, item)

	s.logger.Info().
		Str("waste_id", record.ID).
		Str("item_id", item.ID).
		Str("waste_type", record.WasteType).
		Str("quantity", qty.String()).
		Msg("waste recorded")

	return record, nil
}

// GetWaste returns a waste record with its lot allocations
func (s *MovementService) GetWaste(ctx context.Context, id string) (*repository.WasteRecord, error) {
	record, err := s.waste.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	allocations, err := s.lots.ListAllocations(ctx, repository.AllocationSourceWaste, id)
	if err != nil {
		return nil, err
	}
	record.Allocations = allocations
	return record, nil
}

// ListWaste lists waste records with optional filters
func (s *MovementService) ListWaste(ctx context.Context, itemID, wasteType string, page, perPage int) ([]*repository.WasteRecord, int64, error) {
	return s.waste.List(ctx, itemID, wasteType, page, perPage)
}

// checkLowStock publishes a low-stock event when an item's usable stock has
// dropped to or below its minimum after a movement.
func (s *MovementService) checkLowStock(ctx context.Context, item *repository.ItemDefinition) {
	if !item.MinStock.IsPositive() {
		return
	}

	lots, err := s.lots.ListByItem(ctx, item.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("low stock check failed")
		return
	}

	view := computeItemView(item, lots, time.Now().UTC())
	if !view.LowStock {
		return
	}

	s.publisher.ItemLowStock(ctx, messaging.ItemLowStockEvent{
		ItemID:     item.ID,
		ItemCode:   item.Code,
		TotalStock: view.UsableQuantity.String(),
		MinStock:   item.MinStock.String(),
	})
}
