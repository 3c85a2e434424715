package events

import (
	"context"

	"github.com/labstock/labstock-backend/pkg/logger"
	"github.com/labstock/labstock-backend/pkg/messaging"
)

// StockEventPublisher publishes stock domain events. A nil publisher is safe
// to call; events are then dropped, which keeps the write path working when
// the broker is down or absent in tests.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(publisher *messaging.Publisher, log *logger.Logger) *StockEventPublisher {
	return &StockEventPublisher{publisher: publisher, logger: log}
}

func (p *StockEventPublisher) publish(ctx context.Context, eventType string, data interface{}) {
	if p == nil || p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

// LotReceived publishes a stock.lot.received event
func (p *StockEventPublisher) LotReceived(ctx context.Context, event messaging.LotReceivedEvent) {
	p.publish(ctx, messaging.EventLotReceived, event)
}

// StockAllocated publishes a stock.allocated event
func (p *StockEventPublisher) StockAllocated(ctx context.Context, event messaging.StockAllocatedEvent) {
	p.publish(ctx, messaging.EventStockAllocated, event)
}

// WasteRecorded publishes a stock.waste.recorded event
func (p *StockEventPublisher) WasteRecorded(ctx context.Context, event messaging.WasteRecordedEvent) {
	p.publish(ctx, messaging.EventWasteRecorded, event)
}

// ItemLowStock publishes a stock.item.low_stock event
func (p *StockEventPublisher) ItemLowStock(ctx context.Context, event messaging.ItemLowStockEvent) {
	p.publish(ctx, messaging.EventItemLowStock, event)
}

// PurchaseStatusChanged publishes a purchase.status.changed event
func (p *StockEventPublisher) PurchaseStatusChanged(ctx context.Context, event messaging.PurchaseStatusChangedEvent) {
	p.publish(ctx, messaging.EventPurchaseStatusChanged, event)
}
