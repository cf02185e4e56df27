package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kovacs/go-autoparts-store/internal/database"
	"github.com/kovacs/go-autoparts-store/internal/models"
)

const orderColumns = `id, user_id, order_number, status, payment_status,
	subtotal, discount, shipping_cost, tax, total,
	coupon_code, shipping_address_id, billing_address_id, tracking_number,
	confirmed_at, shipped_at, delivered_at, created_at, updated_at, version`

func scanOrder(row interface {
	Scan(dest ...interface{}) error
}, o *models.Order) error {
	return row.Scan(
		&o.ID,
		&o.UserID,
		&o.OrderNumber,
		&o.Status,
		&o.PaymentStatus,
		&o.Subtotal,
		&o.Discount,
		&o.ShippingCost,
		&o.Tax,
		&o.Total,
		&o.CouponCode,
		&o.ShippingAddressID,
		&o.BillingAddressID,
		&o.TrackingNumber,
		&o.ConfirmedAt,
		&o.ShippedAt,
		&o.DeliveredAt,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
}

func getOrderTx(ctx context.Context, q Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := loadOrderItems(ctx, q, order); err != nil {
		return nil, err
	}

	return order, nil
}

func loadOrderItems(ctx context.Context, q Querier, order *models.Order) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, product_sku, quantity, unit_price, line_total, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		order.ID)
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.ProductSKU,
			&item.Quantity,
			&item.UnitPrice,
			&item.LineTotal,
			&item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	order.Items = items
	return nil
}

// GetOrder loads the order and reconciles the cached status column with the
// resolver before returning.
func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order, err := getOrderTx(ctx, db, id)
	if err != nil {
		return nil, err
	}

	if err := syncStatus(ctx, db, order, time.Now()); err != nil {
		return nil, err
	}

	return order, nil
}

func GetOrderByNumber(ctx context.Context, db *sql.DB, orderNumber string) (*models.Order, error) {
	var id int64
	err := db.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE order_number = $1`, orderNumber).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by number: %w", err)
	}

	return GetOrder(ctx, db, id)
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE user_id = $1
		   AND (created_at, id) < ($2, $3)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $4`,
		userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		// Display value only; the per-order read path writes it through.
		order.Status = ResolveStatus(&order, now)
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// SetPaymentStatus records what the payment gateway reported. Paid while
// pending confirms the order and stamps confirmed_at.
func SetPaymentStatus(ctx context.Context, db *sql.DB, orderID int64, paymentStatus string) (*models.Order, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET payment_status = $1,
		     confirmed_at = CASE WHEN $1 = $2 THEN COALESCE(confirmed_at, NOW()) ELSE confirmed_at END,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $3`,
		paymentStatus, models.PaymentStatusPaid, orderID)
	if err != nil {
		return nil, fmt.Errorf("set payment status: %w", err)
	}
	if err := requireOneRow(result, database.ErrOrderNotFound); err != nil {
		return nil, err
	}

	return GetOrder(ctx, db, orderID)
}

// AttachTracking stores the carrier tracking number. The first attachment
// stamps shipped_at, which drives the shipped/delayed derivation.
func AttachTracking(ctx context.Context, db *sql.DB, orderID int64, trackingNumber string) (*models.Order, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET tracking_number = $1,
		     shipped_at = COALESCE(shipped_at, NOW()),
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2`,
		trackingNumber, orderID)
	if err != nil {
		return nil, fmt.Errorf("attach tracking: %w", err)
	}
	if err := requireOneRow(result, database.ErrOrderNotFound); err != nil {
		return nil, err
	}

	return GetOrder(ctx, db, orderID)
}

// MarkDelivered is the explicit delivery confirmation; it overrides a
// computed delayed state.
func MarkDelivered(ctx context.Context, db *sql.DB, orderID int64) (*models.Order, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET delivered_at = COALESCE(delivered_at, NOW()),
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $1`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	if err := requireOneRow(result, database.ErrOrderNotFound); err != nil {
		return nil, err
	}

	return GetOrder(ctx, db, orderID)
}

// CancelOrder and RefundOrder are the only paths that hand-set the status
// column; both states are terminal for the resolver.

func CancelOrder(ctx context.Context, db *sql.DB, orderID int64) (*models.Order, error) {
	return setTerminalStatus(ctx, db, orderID, models.OrderStatusCancelled)
}

func RefundOrder(ctx context.Context, db *sql.DB, orderID int64) (*models.Order, error) {
	return setTerminalStatus(ctx, db, orderID, models.OrderStatusRefunded)
}

func setTerminalStatus(ctx context.Context, db *sql.DB, orderID int64, status string) (*models.Order, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, updated_at = NOW(), version = version + 1
		 WHERE id = $2`,
		status, orderID)
	if err != nil {
		return nil, fmt.Errorf("set order status %s: %w", status, err)
	}
	if err := requireOneRow(result, database.ErrOrderNotFound); err != nil {
		return nil, err
	}

	return getOrderTx(ctx, db, orderID)
}

func requireOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
