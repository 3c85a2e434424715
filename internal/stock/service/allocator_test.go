package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labstock/labstock-backend/internal/stock/repository"
	"github.com/labstock/labstock-backend/pkg/errors"
)

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func testLot(id string, expiry *time.Time, received string, current string) *repository.Lot {
	rec, err := time.Parse("2006-01-02", received)
	if err != nil {
		panic(err)
	}
	return &repository.Lot{
		ID:              id,
		LotNumber:       "LOT-" + id,
		InitialQuantity: decimal.RequireFromString(current),
		CurrentQuantity: decimal.RequireFromString(current),
		ExpiryDate:      expiry,
		ReceivedDate:    rec,
		CreatedAt:       rec,
	}
}

func TestSortForAllocation_SoonestExpiryFirst(t *testing.T) {
	lots := []*repository.Lot{
		testLot("a", date("2025-06-30"), "2025-01-01", "10"),
		testLot("b", date("2025-03-15"), "2025-01-02", "10"),
		testLot("c", nil, "2024-12-01", "10"),
	}

	sortForAllocation(lots)

	assert.Equal(t, "b", lots[0].ID)
	assert.Equal(t, "a", lots[1].ID)
	assert.Equal(t, "c", lots[2].ID, "undated lot sorts after all dated lots")
}

func TestSortForAllocation_TieBrokenByReceivedDate(t *testing.T) {
	lots := []*repository.Lot{
		testLot("late", date("2025-06-30"), "2025-02-01", "10"),
		testLot("early", date("2025-06-30"), "2025-01-01", "10"),
	}

	sortForAllocation(lots)

	assert.Equal(t, "early", lots[0].ID)
	assert.Equal(t, "late", lots[1].ID)
}

func TestSortForAllocation_UndatedTieBrokenByReceivedDate(t *testing.T) {
	lots := []*repository.Lot{
		testLot("second", nil, "2025-02-01", "5"),
		testLot("first", nil, "2025-01-01", "5"),
	}

	sortForAllocation(lots)

	assert.Equal(t, "first", lots[0].ID)
}

func TestSortForAllocation_ExpiredLotsSortBeforeUsable(t *testing.T) {
	now := time.Now().UTC()
	past := now.AddDate(0, 0, -10)
	future := now.AddDate(0, 0, 90)

	lots := []*repository.Lot{
		testLot("usable", &future, "2025-01-01", "10"),
		testLot("expired", &past, "2025-01-02", "10"),
		testLot("undated", nil, "2025-01-03", "10"),
	}

	sortForAllocation(lots)

	assert.Equal(t, "expired", lots[0].ID)
	assert.Equal(t, "usable", lots[1].ID)
	assert.Equal(t, "undated", lots[2].ID)
}

func TestPlanAllocation_ExpiredStockIsAvailable(t *testing.T) {
	now := time.Now().UTC()
	past := now.AddDate(0, 0, -30)

	// One lot on the shelf, past its expiry date, holding 10: a draw of 5
	// still succeeds. Removing expired stock from circulation is a waste
	// action, never an implicit allocation filter.
	lots := []*repository.Lot{
		testLot("expired", &past, "2025-01-01", "10"),
	}

	draws, err := planAllocation("item-1", lots, decimal.RequireFromString("5"))
	require.NoError(t, err)
	require.Len(t, draws, 1)
	assert.Equal(t, "expired", draws[0].Lot.ID)
	assert.True(t, draws[0].Quantity.Equal(decimal.RequireFromString("5")))
}

func TestPlanAllocation_SpansMultipleLots(t *testing.T) {
	lots := []*repository.Lot{
		testLot("a", date("2025-03-15"), "2025-01-01", "3"),
		testLot("b", date("2025-06-30"), "2025-01-02", "10"),
	}

	draws, err := planAllocation("item-1", lots, decimal.RequireFromString("8"))
	require.NoError(t, err)
	require.Len(t, draws, 2)

	assert.Equal(t, "a", draws[0].Lot.ID)
	assert.True(t, draws[0].Quantity.Equal(decimal.RequireFromString("3")))
	assert.Equal(t, "b", draws[1].Lot.ID)
	assert.True(t, draws[1].Quantity.Equal(decimal.RequireFromString("5")))
}

func TestPlanAllocation_ExactCover(t *testing.T) {
	lots := []*repository.Lot{
		testLot("a", date("2025-03-15"), "2025-01-01", "8"),
	}

	draws, err := planAllocation("item-1", lots, decimal.RequireFromString("8"))
	require.NoError(t, err)
	require.Len(t, draws, 1)
	assert.True(t, draws[0].Quantity.Equal(decimal.RequireFromString("8")))
}

func TestPlanAllocation_InsufficientIsAllOrNothing(t *testing.T) {
	lots := []*repository.Lot{
		testLot("a", date("2025-03-15"), "2025-01-01", "3"),
		testLot("b", date("2025-06-30"), "2025-01-02", "5"),
	}

	draws, err := planAllocation("item-1", lots, decimal.RequireFromString("10"))
	require.Error(t, err)
	assert.Nil(t, draws, "no draws planned when the request cannot be covered")
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "10", appErr.Details["requested"])
	assert.Equal(t, "8", appErr.Details["available"])
}

func TestPlanAllocation_SkipsEmptyLots(t *testing.T) {
	empty := testLot("empty", date("2025-01-01"), "2024-01-01", "5")
	empty.CurrentQuantity = decimal.Zero

	lots := []*repository.Lot{
		empty,
		testLot("full", date("2025-06-30"), "2025-01-01", "5"),
	}

	draws, err := planAllocation("item-1", lots, decimal.RequireFromString("4"))
	require.NoError(t, err)
	require.Len(t, draws, 1)
	assert.Equal(t, "full", draws[0].Lot.ID)
}

func TestPlanAllocation_FractionalQuantities(t *testing.T) {
	lots := []*repository.Lot{
		testLot("a", date("2025-03-15"), "2025-01-01", "0.5"),
		testLot("b", date("2025-06-30"), "2025-01-02", "1.25"),
	}

	draws, err := planAllocation("item-1", lots, decimal.RequireFromString("1.75"))
	require.NoError(t, err)
	require.Len(t, draws, 2)
	assert.True(t, draws[1].Quantity.Equal(decimal.RequireFromString("1.25")))
}
