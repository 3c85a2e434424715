package service

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/labstock/labstock-backend/internal/stock/repository"
	"github.com/labstock/labstock-backend/pkg/errors"
)

// plannedDraw is one lot's share of an allocation plan.
type plannedDraw struct {
	Lot      *repository.Lot
	Quantity decimal.Decimal
}

// sortForAllocation orders lots for drawing: soonest expiry first, undated
// lots last, ties broken by received date then creation time. Matches the
// SQL allocation order so in-memory planning and locked reads agree.
func sortForAllocation(lots []*repository.Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			// fall through to received date
		case a.ExpiryDate == nil:
			return false
		case b.ExpiryDate == nil:
			return true
		case !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.ReceivedDate.Equal(b.ReceivedDate) {
			return a.ReceivedDate.Before(b.ReceivedDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// planAllocation walks the ordered lots and plans draws until the requested
// quantity is covered. All-or-nothing: if the lots cannot cover the full
// request, no draws are planned and an insufficient-stock error is returned.
func planAllocation(itemID string, lots []*repository.Lot, requested decimal.Decimal) ([]plannedDraw, error) {
	remaining := requested
	var draws []plannedDraw

	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}
		if !lot.CurrentQuantity.IsPositive() {
			continue
		}

		draw := decimal.Min(lot.CurrentQuantity, remaining)
		draws = append(draws, plannedDraw{Lot: lot, Quantity: draw})
		remaining = remaining.Sub(draw)
	}

	if remaining.IsPositive() {
		available := requested.Sub(remaining)
		return nil, errors.InsufficientStock(itemID, requested.String(), available.String())
	}

	return draws, nil
}

// Allocator deducts stock from lots inside a caller-supplied transaction.
type Allocator struct {
	lots *repository.LotRepository
}

// NewAllocator creates a new allocator
func NewAllocator(lots *repository.LotRepository) *Allocator {
	return &Allocator{lots: lots}
}

// AllocateOptions tunes one allocation.
type AllocateOptions struct {
	// LotID forces the whole draw from one specific lot instead of
	// walking the ledger in allocation order.
	LotID string
}

// Allocate locks the item's lots, plans the draw, and applies the guarded
// decrements, all inside the caller's transaction. Returns the allocation
// records for the movement ledger. The transaction rolls the whole draw back
// if any single decrement fails.
//
// Every lot with remaining quantity is allocatable, expired or not. Expired
// lots carry the earliest expiry dates, so the allocation order drains them
// first; removing them from circulation is the waste ledger's job, not a
// side effect of ordinary draws.
func (a *Allocator) Allocate(ctx context.Context, tx *sqlx.Tx, itemID string, quantity decimal.Decimal, opts AllocateOptions) ([]*repository.Allocation, error) {
	if !quantity.IsPositive() {
		return nil, errors.Validation(map[string]string{"quantity": "quantity must be positive"})
	}

	var lots []*repository.Lot

	if opts.LotID != "" {
		lot, err := a.lots.GetForAllocation(ctx, tx, opts.LotID)
		if err != nil {
			return nil, err
		}
		if lot.ItemID != itemID {
			return nil, errors.BadRequest("lot does not belong to the requested item")
		}
		if lot.CurrentQuantity.LessThan(quantity) {
			return nil, errors.InsufficientLotQuantity(lot.ID, quantity.String(), lot.CurrentQuantity.String())
		}
		lots = []*repository.Lot{lot}
	} else {
		all, err := a.lots.ListActiveForAllocation(ctx, tx, itemID)
		if err != nil {
			return nil, err
		}
		lots = all
	}

	draws, err := planAllocation(itemID, lots, quantity)
	if err != nil {
		return nil, err
	}

	allocations := make([]*repository.Allocation, 0, len(draws))
	for _, draw := range draws {
		if err := a.lots.Decrement(ctx, tx, draw.Lot.ID, draw.Quantity); err != nil {
			return nil, err
		}
		allocations = append(allocations, &repository.Allocation{
			LotID:     draw.Lot.ID,
			LotNumber: draw.Lot.LotNumber,
			Quantity:  draw.Quantity,
		})
	}

	return allocations, nil
}
