package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventLotReceived           = "stock.lot.received"
	EventStockAllocated        = "stock.allocated"
	EventWasteRecorded         = "stock.waste.recorded"
	EventItemLowStock          = "stock.item.low_stock"
	EventPurchaseStatusChanged = "purchase.status.changed"
)

// Exchange names
const (
	ExchangeStockEvents = "stock.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// LotReceivedEvent is published when a receipt or manual entry creates a lot
type LotReceivedEvent struct {
	ItemID     string `json:"item_id"`
	LotID      string `json:"lot_id"`
	LotNumber  string `json:"lot_number"`
	Quantity   string `json:"quantity"`
	ExpiryDate string `json:"expiry_date,omitempty"`
	PurchaseID string `json:"purchase_id,omitempty"`
	ReceivedBy string `json:"received_by"`
}

// StockAllocatedEvent is published when quantity leaves the lot ledger
type StockAllocatedEvent struct {
	ItemID     string `json:"item_id"`
	SourceType string `json:"source_type"` // distribution or waste
	SourceID   string `json:"source_id"`
	Quantity   string `json:"quantity"`
	LotCount   int    `json:"lot_count"`
	ActorID    string `json:"actor_id"`
}

// WasteRecordedEvent is published when a waste record is created
type WasteRecordedEvent struct {
	ItemID         string `json:"item_id"`
	WasteID        string `json:"waste_id"`
	WasteType      string `json:"waste_type"`
	Quantity       string `json:"quantity"`
	DisposalMethod string `json:"disposal_method"`
	ActorID        string `json:"actor_id"`
}

// ItemLowStockEvent is published when an item's total stock drops below its minimum
type ItemLowStockEvent struct {
	ItemID     string `json:"item_id"`
	ItemCode   string `json:"item_code"`
	TotalStock string `json:"total_stock"`
	MinStock   string `json:"min_stock"`
}

// PurchaseStatusChangedEvent is published on every purchase lifecycle transition
type PurchaseStatusChangedEvent struct {
	PurchaseID string `json:"purchase_id"`
	ItemID     string `json:"item_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	ActorID    string `json:"actor_id"`
}

// correlationKey carries the correlation ID through contexts
type contextKey string

const correlationKey contextKey = "correlation_id"

// WithCorrelationID returns a context carrying the given correlation ID
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey).(string); ok {
		return id
	}
	return uuid.New().String()
}
