package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kovacs/go-autoparts-store/internal/models"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so reads and ledger
// appends can run inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// InsertMovement appends one row to the inventory ledger. Movements are
// never updated or deleted; quantityAfter is the stock snapshot taken by
// the same transaction that performed the mutation.
func InsertMovement(ctx context.Context, q Querier, m *models.InventoryMovement) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO inventory_movements (product_id, order_id, movement_type, quantity, quantity_after, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, created_at`,
		m.ProductID, m.OrderID, m.Type, m.Quantity, m.QuantityAfter, m.Reason).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert inventory movement: %w", err)
	}
	return nil
}

func ListMovements(ctx context.Context, db *sql.DB, productID int64, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_movements WHERE product_id = $1`,
		productID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count movements: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := db.QueryContext(ctx,
		`SELECT id, product_id, order_id, movement_type, quantity, quantity_after, reason, created_at
		 FROM inventory_movements
		 WHERE product_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		productID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var movements []models.InventoryMovement
	for rows.Next() {
		var m models.InventoryMovement
		err := rows.Scan(
			&m.ID,
			&m.ProductID,
			&m.OrderID,
			&m.Type,
			&m.Quantity,
			&m.QuantityAfter,
			&m.Reason,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      movements,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// SalesVelocity reports units sold per product over the trailing window,
// summed from SALE ledger rows. Sale quantities are stored as negative
// deltas, so the sum is negated.
func SalesVelocity(ctx context.Context, db *sql.DB, productID int64, window time.Duration) (int, error) {
	var sold int
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(-SUM(quantity), 0)
		 FROM inventory_movements
		 WHERE product_id = $1
		   AND movement_type = $2
		   AND created_at >= NOW() - $3::interval`,
		productID, models.MovementSale, fmt.Sprintf("%d seconds", int(window.Seconds()))).Scan(&sold)
	if err != nil {
		return 0, fmt.Errorf("sales velocity: %w", err)
	}
	return sold, nil
}
