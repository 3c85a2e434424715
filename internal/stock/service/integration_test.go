package service_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labstock/labstock-backend/internal/stock/repository"
	"github.com/labstock/labstock-backend/internal/stock/service"
	"github.com/labstock/labstock-backend/pkg/actor"
	"github.com/labstock/labstock-backend/pkg/errors"
	"github.com/labstock/labstock-backend/pkg/logger"
	"github.com/labstock/labstock-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()

	ctx := context.Background()
	if !testing.Short() {
		var err error
		suite, err = testutil.NewIntegrationSuite(ctx)
		if err != nil {
			log.Fatalf("failed to create integration suite: %v", err)
		}
	}

	code := m.Run()

	if suite != nil {
		suite.Cleanup(ctx)
	}
	os.Exit(code)
}

func skipShort(t *testing.T) context.Context {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Truncate(t, ctx)
	return actor.WithActor(ctx, &actor.Actor{
		ID:    "user-1",
		Name:  "Test User",
		Email: "user@example.test",
		Role:  "lab_manager",
	})
}

type services struct {
	stock    *service.StockService
	purchase *service.PurchaseService
	movement *service.MovementService
	imports  *service.ImportService
	lots     *repository.LotRepository
}

func newServices() *services {
	l := logger.New("test", "test")
	itemRepo := repository.NewItemRepository(suite.DB)
	lotRepo := repository.NewLotRepository(suite.DB)
	purchaseRepo := repository.NewPurchaseRepository(suite.DB)
	distributionRepo := repository.NewDistributionRepository(suite.DB)
	wasteRepo := repository.NewWasteRepository(suite.DB)
	reportRepo := repository.NewReportRepository(suite.DB)
	allocator := service.NewAllocator(lotRepo)

	return &services{
		stock:    service.NewStockService(itemRepo, lotRepo, reportRepo, nil, l),
		purchase: service.NewPurchaseService(suite.DB, purchaseRepo, itemRepo, lotRepo, nil, l),
		movement: service.NewMovementService(suite.DB, allocator, itemRepo, lotRepo, distributionRepo, wasteRepo, nil, l),
		imports:  service.NewImportService(itemRepo, lotRepo, l),
		lots:     lotRepo,
	}
}

func createItem(t *testing.T, ctx context.Context, svc *services, code, minStock string) *repository.ItemDefinition {
	t.Helper()
	item, err := svc.stock.CreateItem(ctx, service.CreateItemInput{
		Code:       code,
		Name:       "Item " + code,
		Category:   "reagents",
		Department: "molecular",
		Unit:       "box",
		MinStock:   minStock,
	})
	require.NoError(t, err)
	return item
}

func createLot(t *testing.T, ctx context.Context, svc *services, itemID, lotNumber, quantity string, expiry *time.Time) *repository.Lot {
	t.Helper()
	lot, err := svc.stock.CreateLot(ctx, itemID, service.CreateLotInput{
		LotNumber:       lotNumber,
		InitialQuantity: quantity,
		ExpiryDate:      expiry,
	})
	require.NoError(t, err)
	return lot
}

func TestPurchaseLifecycle_PartialReceipts(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "PCR-001", "0")

	p, err := svc.purchase.Request(ctx, service.RequestPurchaseInput{
		ItemID:       item.ID,
		RequestedQty: "10",
	})
	require.NoError(t, err)
	assert.Equal(t, repository.PurchaseStatusRequested, p.Status)

	p, err = svc.purchase.Approve(ctx, p.ID, service.ApprovePurchaseInput{Note: "ok"})
	require.NoError(t, err)
	assert.Equal(t, repository.PurchaseStatusApproved, p.Status)

	p, err = svc.purchase.Order(ctx, p.ID, service.OrderPurchaseInput{Supplier: "Supplies Inc"})
	require.NoError(t, err)
	assert.Equal(t, repository.PurchaseStatusOrdered, p.Status)
	assert.True(t, p.OrderedQty.Equal(decimal.RequireFromString("10")))

	expiry := time.Now().UTC().AddDate(0, 6, 0)
	p, err = svc.purchase.Receive(ctx, p.ID, service.ReceivePurchaseInput{
		Quantity:   "5",
		LotNumber:  "LOT-A",
		ExpiryDate: &expiry,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.PurchaseStatusPartiallyReceived, p.Status)
	require.Len(t, p.Receipts, 1)

	p, err = svc.purchase.Receive(ctx, p.ID, service.ReceivePurchaseInput{
		Quantity:  "5",
		LotNumber: "LOT-B",
	})
	require.NoError(t, err)
	assert.Equal(t, repository.PurchaseStatusReceived, p.Status)
	require.Len(t, p.Receipts, 2)
	assert.True(t, p.ReceivedQtyTotal.Equal(decimal.RequireFromString("10")))

	// Every receipt materialized its own lot.
	view, err := svc.stock.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.ActiveLotCount)
	assert.True(t, view.TotalQuantity.Equal(decimal.RequireFromString("10")))
}

func TestPurchaseLifecycle_OverReceiptGuard(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "PCR-002", "0")

	p, err := svc.purchase.Request(ctx, service.RequestPurchaseInput{ItemID: item.ID, RequestedQty: "10"})
	require.NoError(t, err)
	_, err = svc.purchase.Approve(ctx, p.ID, service.ApprovePurchaseInput{})
	require.NoError(t, err)
	_, err = svc.purchase.Order(ctx, p.ID, service.OrderPurchaseInput{Supplier: "Supplies Inc"})
	require.NoError(t, err)

	_, err = svc.purchase.Receive(ctx, p.ID, service.ReceivePurchaseInput{Quantity: "12", LotNumber: "LOT-X"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOverReceiptNotAcknowledged))

	// The rejected receipt left nothing behind.
	lots, err := svc.stock.ListLots(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, lots)

	got, err := svc.purchase.Receive(ctx, p.ID, service.ReceivePurchaseInput{
		Quantity:       "12",
		LotNumber:      "LOT-X",
		OverReceiptAck: true,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.PurchaseStatusReceived, got.Status)
	assert.True(t, got.ReceivedQtyTotal.Equal(decimal.RequireFromString("12")))
}

func TestPurchaseReject_RequiresManagerRole(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "PCR-003", "0")

	p, err := svc.purchase.Request(ctx, service.RequestPurchaseInput{ItemID: item.ID, RequestedQty: "1"})
	require.NoError(t, err)

	plainCtx := actor.WithActor(context.Background(), &actor.Actor{
		ID: "user-2", Name: "Plain User", Role: "technician",
	})
	_, err = svc.purchase.Approve(plainCtx, p.ID, service.ApprovePurchaseInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrForbidden))
}

func TestDistribute_DrawsSoonestExpiryFirst(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "GLV-001", "0")

	late := time.Now().UTC().AddDate(0, 6, 0)
	soon := time.Now().UTC().AddDate(0, 1, 0)
	createLot(t, ctx, svc, item.ID, "LOT-LATE", "10", &late)
	lotSoon := createLot(t, ctx, svc, item.ID, "LOT-SOON", "3", &soon)
	createLot(t, ctx, svc, item.ID, "LOT-UNDATED", "10", nil)

	dist, err := svc.movement.Distribute(ctx, service.DistributeInput{
		ItemID:      item.ID,
		Quantity:    "8",
		Department:  "hematology",
		RequestedBy: "Dr. Demir",
		Purpose:     "weekly bench supply",
	})
	require.NoError(t, err)
	require.Len(t, dist.Allocations, 2)

	// Soonest-expiring lot drains first, the remainder comes from the
	// later-dated lot; the undated lot is untouched.
	assert.Equal(t, lotSoon.ID, dist.Allocations[0].LotID)
	assert.True(t, dist.Allocations[0].Quantity.Equal(decimal.RequireFromString("3")))
	assert.Equal(t, "LOT-LATE", dist.Allocations[1].LotNumber)
	assert.True(t, dist.Allocations[1].Quantity.Equal(decimal.RequireFromString("5")))

	refreshed, err := svc.stock.GetLot(ctx, lotSoon.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.CurrentQuantity.IsZero())
	assert.Equal(t, repository.LotStatusDepleted, refreshed.Status)
}

func TestDistribute_InsufficientStockMutatesNothing(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "GLV-002", "0")
	lot := createLot(t, ctx, svc, item.ID, "LOT-A", "5", nil)

	_, err := svc.movement.Distribute(ctx, service.DistributeInput{
		ItemID:      item.ID,
		Quantity:    "8",
		Department:  "hematology",
		RequestedBy: "Dr. Demir",
		Purpose:     "weekly bench supply",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	refreshed, err := svc.stock.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.CurrentQuantity.Equal(decimal.RequireFromString("5")))

	distributions, total, err := svc.movement.ListDistributions(ctx, item.ID, "", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, distributions)
}

func TestDistribute_ExpiredStockIsAllocatable(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "GLV-003", "0")

	past := time.Now().UTC().AddDate(0, 0, -1)
	expired := createLot(t, ctx, svc, item.ID, "LOT-EXPIRED", "10", &past)
	createLot(t, ctx, svc, item.ID, "LOT-GOOD", "4", nil)

	// Expired stock stays on the ledger until a waste record removes it, so
	// the full 14 is available and the expired lot drains first.
	dist, err := svc.movement.Distribute(ctx, service.DistributeInput{
		ItemID:      item.ID,
		Quantity:    "12",
		Department:  "hematology",
		RequestedBy: "Dr. Demir",
		Purpose:     "routine restock",
	})
	require.NoError(t, err)
	require.Len(t, dist.Allocations, 2)
	assert.Equal(t, expired.ID, dist.Allocations[0].LotID)
	assert.True(t, dist.Allocations[0].Quantity.Equal(decimal.RequireFromString("10")))
	assert.Equal(t, "LOT-GOOD", dist.Allocations[1].LotNumber)
	assert.True(t, dist.Allocations[1].Quantity.Equal(decimal.RequireFromString("2")))

	_, err = svc.movement.Distribute(ctx, service.DistributeInput{
		ItemID:      item.ID,
		Quantity:    "3",
		Department:  "hematology",
		RequestedBy: "Dr. Demir",
		Purpose:     "routine restock",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock), "2 left on the shelf")
}

func TestConfirmDistribution_OnlyOnce(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "GLV-004", "0")
	createLot(t, ctx, svc, item.ID, "LOT-A", "5", nil)

	dist, err := svc.movement.Distribute(ctx, service.DistributeInput{
		ItemID:      item.ID,
		Quantity:    "2",
		Department:  "hematology",
		RequestedBy: "Dr. Demir",
		Purpose:     "weekly bench supply",
	})
	require.NoError(t, err)
	assert.Equal(t, repository.DistributionStatusOpen, dist.Status)

	confirmed, err := svc.movement.ConfirmDistribution(ctx, dist.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.DistributionStatusCompleted, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, "user-1", *confirmed.ConfirmedBy)

	_, err = svc.movement.ConfirmDistribution(ctx, dist.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidStateTransition))
}

func TestRecordWaste_ExpiredLotsDrawnFirst(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "KIT-001", "0")

	past := time.Now().UTC().AddDate(0, 0, -1)
	future := time.Now().UTC().AddDate(0, 6, 0)
	expired := createLot(t, ctx, svc, item.ID, "LOT-EXPIRED", "3", &past)
	usable := createLot(t, ctx, svc, item.ID, "LOT-USABLE", "10", &future)

	record, err := svc.movement.RecordWaste(ctx, service.RecordWasteInput{
		ItemID:         item.ID,
		Quantity:       "5",
		WasteType:      repository.WasteTypeExpired,
		Reason:         "past expiry date",
		DisposalMethod: "biohazard bin",
	})
	require.NoError(t, err)
	require.Len(t, record.Allocations, 2)

	assert.Equal(t, expired.ID, record.Allocations[0].LotID)
	assert.True(t, record.Allocations[0].Quantity.Equal(decimal.RequireFromString("3")))
	assert.Equal(t, usable.ID, record.Allocations[1].LotID)
	assert.True(t, record.Allocations[1].Quantity.Equal(decimal.RequireFromString("2")))
}

func TestRecordWaste_ManualLotOverride(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "KIT-002", "0")

	future := time.Now().UTC().AddDate(0, 6, 0)
	createLot(t, ctx, svc, item.ID, "LOT-A", "10", &future)
	lotB := createLot(t, ctx, svc, item.ID, "LOT-B", "10", nil)

	record, err := svc.movement.RecordWaste(ctx, service.RecordWasteInput{
		ItemID:         item.ID,
		Quantity:       "4",
		WasteType:      repository.WasteTypeDamaged,
		Reason:         "dropped on floor",
		DisposalMethod: "general waste",
		LotID:          lotB.ID,
	})
	require.NoError(t, err)
	require.Len(t, record.Allocations, 1)
	assert.Equal(t, lotB.ID, record.Allocations[0].LotID)

	refreshed, err := svc.stock.GetLot(ctx, lotB.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.CurrentQuantity.Equal(decimal.RequireFromString("6")))
}

func TestRecordWaste_CertificateRefRoundTrips(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "KIT-003", "0")
	createLot(t, ctx, svc, item.ID, "LOT-A", "5", nil)

	cert := "DSP-2026-0042"
	record, err := svc.movement.RecordWaste(ctx, service.RecordWasteInput{
		ItemID:         item.ID,
		Quantity:       "5",
		WasteType:      repository.WasteTypeContaminated,
		Reason:         "spill during handling",
		DisposalMethod: "licensed disposal firm",
		CertificateRef: &cert,
	})
	require.NoError(t, err)

	fetched, err := svc.movement.GetWaste(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.CertificateRef)
	assert.Equal(t, cert, *fetched.CertificateRef)
}

func TestLowStockReport_IgnoresExpiredQuantity(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "TIP-001", "5")

	past := time.Now().UTC().AddDate(0, 0, -1)
	createLot(t, ctx, svc, item.ID, "LOT-EXPIRED", "20", &past)
	createLot(t, ctx, svc, item.ID, "LOT-GOOD", "3", nil)

	report, err := svc.stock.LowStockReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, item.ID, report[0].ItemID)
	assert.True(t, report[0].UsableStock.Equal(decimal.RequireFromString("3")))
}

func TestExpiringReport(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "TIP-002", "0")

	soon := time.Now().UTC().AddDate(0, 0, 10)
	far := time.Now().UTC().AddDate(0, 0, 90)
	createLot(t, ctx, svc, item.ID, "LOT-SOON", "5", &soon)
	createLot(t, ctx, svc, item.ID, "LOT-FAR", "5", &far)
	createLot(t, ctx, svc, item.ID, "LOT-UNDATED", "5", nil)

	report, err := svc.stock.ExpiringReport(ctx, 30)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, "LOT-SOON", report[0].LotNumber)
	assert.Equal(t, item.Code, report[0].ItemCode)
}

func TestImport_UpsertsByCodeAndCreatesLots(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	existing := createItem(t, ctx, svc, "PCR-001", "2")

	expiry := time.Now().UTC().AddDate(1, 0, 0)
	result, err := svc.imports.Import(ctx, []service.ImportRow{
		{RowNumber: 2, Code: "PCR-001", Name: "PCR master mix v2", MinStock: "4", LotNumber: "LOT-I1", Quantity: "6", ExpiryDate: &expiry},
		{RowNumber: 3, Code: "NEW-001", Name: "Fresh reagent", Category: "reagents", Department: "molecular", Unit: "vial", Quantity: "2", LotNumber: "LOT-I2"},
		{RowNumber: 4, Code: "", Name: "No code"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 2, result.LotsCreated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 4, result.Errors[0].RowNumber)

	updated, err := svc.stock.GetItem(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "PCR master mix v2", updated.Name)
	assert.True(t, updated.MinStock.Equal(decimal.RequireFromString("4")))
	assert.True(t, updated.TotalQuantity.Equal(decimal.RequireFromString("6")))
}

func TestReimportLeavesExistingLotsUntouched(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()

	rows := []service.ImportRow{
		{RowNumber: 2, Code: "RE-001", Name: "Reimported item", LotNumber: "LOT-R1", Quantity: "6"},
	}

	first, err := svc.imports.Import(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 1, first.LotsCreated)

	second, err := svc.imports.Import(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 0, second.LotsCreated)
	assert.Equal(t, 1, second.LotsUpdated)
	assert.Empty(t, second.Errors)

	items, _, err := svc.stock.ListItems(ctx, 1, 10, "", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].TotalQuantity.Equal(decimal.RequireFromString("6")), "quantity not inflated by re-import")
}

func TestStockAggregatorEndToEnd(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "PCR-010", "5")

	later := time.Now().UTC().AddDate(0, 10, 0)
	sooner := time.Now().UTC().AddDate(0, 4, 0)
	createLot(t, ctx, svc, item.ID, "LOT-A", "10", &later)
	createLot(t, ctx, svc, item.ID, "LOT-B", "5", &sooner)

	view, err := svc.stock.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, view.TotalQuantity.Equal(decimal.RequireFromString("15")))
	require.NotNil(t, view.NearestExpiry)
	assert.WithinDuration(t, sooner, *view.NearestExpiry, time.Second)

	dist, err := svc.movement.Distribute(ctx, service.DistributeInput{
		ItemID:      item.ID,
		Quantity:    "8",
		Department:  "molecular",
		RequestedBy: "Dr. Demir",
		Purpose:     "PCR run batch 42",
	})
	require.NoError(t, err)
	require.Len(t, dist.Allocations, 2)
	assert.Equal(t, "LOT-B", dist.Allocations[0].LotNumber)
	assert.True(t, dist.Allocations[0].Quantity.Equal(decimal.RequireFromString("5")))
	assert.True(t, dist.Allocations[1].Quantity.Equal(decimal.RequireFromString("3")))

	view, err = svc.stock.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, view.TotalQuantity.Equal(decimal.RequireFromString("7")))
	assert.Equal(t, service.StockStatusInStock, view.StockStatus, "7 on hand with a minimum of 5")
	assert.Equal(t, 1, view.ActiveLotCount, "the drained lot is depleted")
}

func TestDuplicateLotNumberRejected(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	item := createItem(t, ctx, svc, "DUP-001", "0")
	createLot(t, ctx, svc, item.ID, "LOT-A", "5", nil)

	_, err := svc.stock.CreateLot(ctx, item.ID, service.CreateLotInput{
		LotNumber:       "LOT-A",
		InitialQuantity: "3",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestDuplicateItemCodeRejected(t *testing.T) {
	ctx := skipShort(t)
	svc := newServices()
	createItem(t, ctx, svc, "DUP-002", "0")

	_, err := svc.stock.CreateItem(ctx, service.CreateItemInput{
		Code:       "DUP-002",
		Name:       "Duplicate",
		Category:   "reagents",
		Department: "molecular",
		Unit:       "box",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}
