package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kovacs/go-autoparts-store/internal/models"
)

// Event types consumed by the sales-velocity analytics pipeline and other
// back-office listeners.
const (
	EventMovementRecorded = "MovementRecorded"
	EventOrderPlaced      = "OrderPlaced"
)

type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Producer   string          `json:"producer"`
	Payload    json.RawMessage `json:"payload"`
}

type MovementRecordedPayload struct {
	MovementID    int64  `json:"movement_id"`
	ProductID     int64  `json:"product_id"`
	OrderID       *int64 `json:"order_id,omitempty"`
	Type          string `json:"type"`
	Quantity      int    `json:"quantity"`
	QuantityAfter int    `json:"quantity_after"`
}

type OrderPlacedPayload struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      int64  `json:"user_id"`
	Total       string `json:"total"`
	ItemCount   int    `json:"item_count"`
}

func envelope(eventType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now(),
		Producer:   "autoparts-api",
		Payload:    raw,
	})
}

// PublishMovement emits one ledger row to the stream. Partitioned by
// product so per-product movement order is preserved.
func (p *Producer) PublishMovement(m *models.InventoryMovement) {
	if p == nil {
		return
	}
	value, err := envelope(EventMovementRecorded, MovementRecordedPayload{
		MovementID:    m.ID,
		ProductID:     m.ProductID,
		OrderID:       m.OrderID,
		Type:          m.Type,
		Quantity:      m.Quantity,
		QuantityAfter: m.QuantityAfter,
	})
	if err != nil {
		return
	}
	p.Publish([]byte(strconv.FormatInt(m.ProductID, 10)), value)
}

// PublishOrderPlaced emits the commit result, partitioned by order number.
func (p *Producer) PublishOrderPlaced(o *models.Order) {
	if p == nil {
		return
	}
	value, err := envelope(EventOrderPlaced, OrderPlacedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Total:       o.Total.StringFixed(2),
		ItemCount:   len(o.Items),
	})
	if err != nil {
		return
	}
	p.Publish([]byte(o.OrderNumber), value)
}
