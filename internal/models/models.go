package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Address struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	CreatedAt  time.Time `json:"created_at"`
}

type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Active        bool            `json:"active"`
	InStock       bool            `json:"in_stock"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

// CartLine is one shopper's claim on a product. For products down to their
// last unit, ReservationExpiresAt carries the exclusive hold; it is NULL for
// anything with more stock.
type CartLine struct {
	ID                   int64               `json:"id"`
	UserID               int64               `json:"user_id"`
	ProductID            int64               `json:"product_id"`
	Quantity             int                 `json:"quantity"`
	SnapshotPrice        decimal.NullDecimal `json:"snapshot_price"`
	ReservationExpiresAt *time.Time          `json:"reservation_expires_at,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`

	// Joined from products on reads.
	ProductName  string `json:"product_name,omitempty"`
	ProductSKU   string `json:"product_sku,omitempty"`
	ProductStock int    `json:"product_stock,omitempty"`
}

type Order struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	OrderNumber       string          `json:"order_number"`
	Status            string          `json:"status"`
	PaymentStatus     string          `json:"payment_status"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Discount          decimal.Decimal `json:"discount"`
	ShippingCost      decimal.Decimal `json:"shipping_cost"`
	Tax               decimal.Decimal `json:"tax"`
	Total             decimal.Decimal `json:"total"`
	CouponCode        *string         `json:"coupon_code,omitempty"`
	ShippingAddressID int64           `json:"shipping_address_id"`
	BillingAddressID  int64           `json:"billing_address_id"`
	TrackingNumber    *string         `json:"tracking_number,omitempty"`
	ConfirmedAt       *time.Time      `json:"confirmed_at,omitempty"`
	ShippedAt         *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
	Items             []OrderItem     `json:"items,omitempty"`
}

// OrderItem snapshots the product at commit time so later catalog edits
// don't rewrite order history.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InventoryMovement is append-only: the audit trail of every stock change.
type InventoryMovement struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"product_id"`
	OrderID       *int64    `json:"order_id,omitempty"`
	Type          string    `json:"type"`
	Quantity      int       `json:"quantity"`
	QuantityAfter int       `json:"quantity_after"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Coupon struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	IsUsed          bool            `json:"is_used"`
	UsedByOrderID   *int64          `json:"used_by_order_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelayed   = "delayed"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

const (
	MovementSale       = "SALE"
	MovementPurchase   = "PURCHASE"
	MovementAdjustment = "ADJUSTMENT"
)
