package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kovacs/go-autoparts-store/internal/database"
	"github.com/kovacs/go-autoparts-store/internal/models"
	"github.com/shopspring/decimal"
)

type CommitOrderRequest struct {
	UserID            int64
	ShippingAddressID int64
	BillingAddressID  int64
	CouponCode        string
	ShippingCost      decimal.Decimal
	Tax               decimal.Decimal
	// ClientTotal is whatever the storefront displayed. It is never trusted;
	// the engine derives and persists its own total from server-side prices.
	ClientTotal *decimal.Decimal
	// PaymentStatus is what the payment gateway reported ("paid"/"failed"),
	// treated as an opaque fact.
	PaymentStatus string
}

// CommitOrder is the single atomic boundary that turns the shopper's cart
// into a durable order. Steps 1-5 (validation) touch no storage; the write
// phase runs as one serializable transaction so stock decrement, ledger
// append, coupon consumption, order creation and cart clearing all happen
// or none do.
func CommitOrder(ctx context.Context, db *sql.DB, req CommitOrderRequest) (*models.Order, error) {
	if _, err := RemoveExpiredReservations(ctx, db); err != nil {
		return nil, err
	}

	lines, err := loadCheckoutLines(ctx, db, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, database.ErrEmptyCart
	}

	if err := validateAddressOwnership(ctx, db, req.UserID, req.ShippingAddressID, req.BillingAddressID); err != nil {
		return nil, err
	}

	for i := range lines {
		if err := validateCheckoutLine(ctx, db, &lines[i]); err != nil {
			return nil, err
		}
	}

	var discountPercent decimal.Decimal
	if req.CouponCode != "" {
		coupon, err := GetCouponByCode(ctx, db, req.CouponCode)
		if err != nil {
			if err == database.ErrCouponNotFound {
				return nil, database.ErrInvalidCoupon
			}
			return nil, err
		}
		if coupon.IsUsed {
			return nil, database.ErrCouponAlreadyUsed
		}
		discountPercent = coupon.DiscountPercent
	}

	totals := computeTotals(lines, discountPercent, req.ShippingCost, req.Tax)

	status := models.OrderStatusPending
	var confirmedAt *time.Time
	if req.PaymentStatus == models.PaymentStatusPaid {
		status = models.OrderStatusConfirmed
		now := time.Now()
		confirmedAt = &now
	}

	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentStatusPending
	}

	var order *models.Order

	err = database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		orderNumber, err := nextOrderNumber(ctx, tx)
		if err != nil {
			return err
		}

		var couponCode *string
		if req.CouponCode != "" {
			couponCode = &req.CouponCode
		}

		var orderID int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (user_id, order_number, status, payment_status,
			                     subtotal, discount, shipping_cost, tax, total,
			                     coupon_code, shipping_address_id, billing_address_id,
			                     confirmed_at, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW(), 1)
			 RETURNING id`,
			req.UserID, orderNumber, status, paymentStatus,
			totals.Subtotal, totals.Discount, totals.ShippingCost, totals.Tax, totals.Total,
			couponCode, req.ShippingAddressID, req.BillingAddressID,
			confirmedAt).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for i := range lines {
			line := &lines[i]

			// Last line of defense against a race that slipped past the
			// pre-checks: decrement only if stock still suffices, and
			// re-verify inside the transaction that no other shopper holds
			// the last unit.
			if line.ProductStock == scarceStock {
				held, err := HasActiveReservation(ctx, tx, line.ProductID, req.UserID)
				if err != nil {
					return err
				}
				if held {
					return &database.ReservationError{
						ProductID:   line.ProductID,
						ProductName: line.ProductName,
						Kind:        database.ErrReservationExpired,
					}
				}
			}

			quantityAfter, err := DecrementStock(ctx, tx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, product_sku, quantity, unit_price, line_total, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
				orderID, line.ProductID, line.ProductName, line.ProductSKU,
				line.Quantity, line.UnitPrice, line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}

			err = InsertMovement(ctx, tx, &models.InventoryMovement{
				ProductID:     line.ProductID,
				OrderID:       &orderID,
				Type:          models.MovementSale,
				Quantity:      -line.Quantity,
				QuantityAfter: quantityAfter,
				Reason:        "order " + orderNumber,
			})
			if err != nil {
				return err
			}
		}

		if req.CouponCode != "" {
			if err := consumeCoupon(ctx, tx, req.CouponCode, orderID); err != nil {
				return err
			}
		}

		if err := clearCart(ctx, tx, req.UserID); err != nil {
			return err
		}

		order, err = getOrderTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// checkoutLine is a cart line plus the live product fields checked at
// commit time. UnitPrice is the authoritative server-side price: the cart
// snapshot when present, the current catalog price otherwise.
type checkoutLine struct {
	LineID       int64
	ProductID    int64
	ProductName  string
	ProductSKU   string
	Quantity     int
	UnitPrice    decimal.Decimal
	ProductStock int
	Active       bool
	Reservation  *time.Time
}

func loadCheckoutLines(ctx context.Context, db *sql.DB, userID int64) ([]checkoutLine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT cl.id, cl.product_id, p.name, p.sku, cl.quantity,
		        COALESCE(cl.snapshot_price, p.price), cl.reservation_expires_at,
		        p.stock_quantity, p.active
		 FROM cart_lines cl
		 JOIN products p ON p.id = cl.product_id
		 WHERE cl.user_id = $1
		 ORDER BY cl.created_at, cl.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("load checkout lines: %w", err)
	}
	defer rows.Close()

	var lines []checkoutLine
	for rows.Next() {
		var line checkoutLine
		err := rows.Scan(
			&line.LineID,
			&line.ProductID,
			&line.ProductName,
			&line.ProductSKU,
			&line.Quantity,
			&line.UnitPrice,
			&line.Reservation,
			&line.ProductStock,
			&line.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("scan checkout line: %w", err)
		}
		line.UnitPrice = line.UnitPrice.Round(2)
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

func validateAddressOwnership(ctx context.Context, db *sql.DB, userID int64, addressIDs ...int64) error {
	for _, id := range addressIDs {
		owned, err := AddressBelongsTo(ctx, db, id, userID)
		if err != nil {
			return err
		}
		if !owned {
			return database.ErrInvalidAddress
		}
	}
	return nil
}

// validateCheckoutLine re-checks a line against the live product row. A
// lapsed or foreign reservation deletes the stale line as a side effect so
// the shopper sees an accurate cart on retry.
func validateCheckoutLine(ctx context.Context, db *sql.DB, line *checkoutLine) error {
	if line.ProductStock == scarceStock {
		// The sweep already ran, so a line without a live expiry either
		// lapsed or never held the unit (someone else does).
		if line.Reservation == nil || !line.Reservation.After(time.Now()) {
			if _, err := db.ExecContext(ctx,
				`DELETE FROM cart_lines WHERE id = $1`, line.LineID); err != nil {
				return fmt.Errorf("delete stale cart line: %w", err)
			}
			return &database.ReservationError{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Kind:        database.ErrReservationExpired,
			}
		}
	}

	if !line.Active || line.ProductStock == 0 {
		return &database.StockError{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Requested:   line.Quantity,
			Available:   line.ProductStock,
			Kind:        database.ErrProductUnavailable,
		}
	}

	if line.Quantity > line.ProductStock {
		return &database.StockError{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Requested:   line.Quantity,
			Available:   line.ProductStock,
			Kind:        database.ErrInsufficientStock,
		}
	}

	return nil
}

type orderTotals struct {
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
}

// computeTotals derives the authoritative amounts from server-side prices:
// total = subtotal - discount + shipping + tax, all rounded to 2 decimals.
func computeTotals(lines []checkoutLine, discountPercent, shippingCost, tax decimal.Decimal) orderTotals {
	subtotal := decimal.Zero
	for i := range lines {
		subtotal = subtotal.Add(lines[i].UnitPrice.Mul(decimal.NewFromInt(int64(lines[i].Quantity))))
	}
	subtotal = subtotal.Round(2)

	discount := subtotal.Mul(discountPercent).Div(decimal.NewFromInt(100)).Round(2)
	shippingCost = shippingCost.Round(2)
	tax = tax.Round(2)

	return orderTotals{
		Subtotal:     subtotal,
		Discount:     discount,
		ShippingCost: shippingCost,
		Tax:          tax,
		Total:        subtotal.Sub(discount).Add(shippingCost).Add(tax),
	}
}

const orderNumberAttempts = 5

func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// nextOrderNumber generates a date-prefixed random order number, checking
// for collisions with a bounded number of regenerations.
func nextOrderNumber(ctx context.Context, tx *sql.Tx) (string, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number := generateOrderNumber(time.Now())

		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)`,
			number).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check order number: %w", err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("order number collision after %d attempts", orderNumberAttempts)
}
