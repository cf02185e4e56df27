package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kovacs/go-autoparts-store/internal/database"
	"github.com/kovacs/go-autoparts-store/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type AddCartLineRequest struct {
	UserID    int64
	ProductID int64
	Quantity  int
	// UnitPrice optionally locks in a display price the shopper saw; it is
	// snapshotted for the cart only and re-derived at commit time.
	UnitPrice *decimal.Decimal
}

// AddOrSetCartLine creates or replaces the shopper's line for a product.
// When the product is down to its last unit the line also carries the
// 20 minute reservation; a live hold by another shopper rejects the write.
func AddOrSetCartLine(ctx context.Context, db *sql.DB, req AddCartLineRequest) (*models.CartLine, error) {
	if req.Quantity < 1 {
		return nil, database.ErrInvalidQuantity
	}

	if _, err := RemoveExpiredReservations(ctx, db); err != nil {
		return nil, err
	}

	line := &models.CartLine{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var product models.Product
		err := tx.QueryRowContext(ctx,
			`SELECT id, sku, name, price, stock_quantity, active
			 FROM products
			 WHERE id = $1
			 FOR UPDATE`,
			req.ProductID).Scan(
			&product.ID,
			&product.SKU,
			&product.Name,
			&product.Price,
			&product.StockQuantity,
			&product.Active,
		)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("lock product: %w", err)
		}

		if !product.Active || product.StockQuantity == 0 {
			return &database.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   req.Quantity,
				Available:   product.StockQuantity,
				Kind:        database.ErrProductUnavailable,
			}
		}

		if req.Quantity > product.StockQuantity {
			return &database.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   req.Quantity,
				Available:   product.StockQuantity,
				Kind:        database.ErrInsufficientStock,
			}
		}

		var reservation sql.NullTime
		if product.StockQuantity == scarceStock {
			expiresAt, err := reserveScarceProduct(ctx, tx, req.UserID, product.ID, product.Name)
			if err != nil {
				return err
			}
			reservation = sql.NullTime{Time: expiresAt, Valid: true}
		}

		price := product.Price
		if req.UnitPrice != nil {
			price = *req.UnitPrice
		}
		price = price.Round(2)

		err = tx.QueryRowContext(ctx,
			`INSERT INTO cart_lines (user_id, product_id, quantity, snapshot_price, reservation_expires_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			 ON CONFLICT (user_id, product_id) DO UPDATE
			 SET quantity = EXCLUDED.quantity,
			     snapshot_price = EXCLUDED.snapshot_price,
			     reservation_expires_at = EXCLUDED.reservation_expires_at,
			     updated_at = NOW()
			 RETURNING id, user_id, product_id, quantity, snapshot_price, reservation_expires_at, created_at, updated_at`,
			req.UserID, req.ProductID, req.Quantity, price, reservation).Scan(
			&line.ID,
			&line.UserID,
			&line.ProductID,
			&line.Quantity,
			&line.SnapshotPrice,
			&line.ReservationExpiresAt,
			&line.CreatedAt,
			&line.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert cart line: %w", err)
		}

		line.ProductName = product.Name
		line.ProductSKU = product.SKU
		line.ProductStock = product.StockQuantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	return line, nil
}

// GetCart returns the shopper's valid lines. Lines whose product went
// inactive or out of stock, whose quantity no longer fits the remaining
// stock, or whose last-unit reservation lapsed are deleted as a side
// effect so the shopper always sees a cart that can actually check out.
func GetCart(ctx context.Context, db *sql.DB, userID int64) ([]models.CartLine, error) {
	if _, err := RemoveExpiredReservations(ctx, db); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT cl.id, cl.user_id, cl.product_id, cl.quantity, cl.snapshot_price,
		        cl.reservation_expires_at, cl.created_at, cl.updated_at,
		        p.name, p.sku, p.stock_quantity, p.active
		 FROM cart_lines cl
		 JOIN products p ON p.id = cl.product_id
		 WHERE cl.user_id = $1
		 ORDER BY cl.created_at, cl.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	defer rows.Close()

	var valid []models.CartLine
	var stale []int64

	for rows.Next() {
		var line models.CartLine
		var active bool
		err := rows.Scan(
			&line.ID,
			&line.UserID,
			&line.ProductID,
			&line.Quantity,
			&line.SnapshotPrice,
			&line.ReservationExpiresAt,
			&line.CreatedAt,
			&line.UpdatedAt,
			&line.ProductName,
			&line.ProductSKU,
			&line.ProductStock,
			&active,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}

		if !cartLineValid(&line, active) {
			stale = append(stale, line.ID)
			continue
		}
		valid = append(valid, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(stale) > 0 {
		_, err := db.ExecContext(ctx,
			`DELETE FROM cart_lines WHERE id = ANY($1)`, pq.Array(stale))
		if err != nil {
			return nil, fmt.Errorf("prune stale cart lines: %w", err)
		}
	}

	return valid, nil
}

// cartLineValid decides whether a line can still check out. The expired
// sweep already ran, so a NULL reservation on a last-unit product means the
// hold lapsed. Stock above one needs no reservation at all, which also
// releases holds naturally when a reserved product is restocked.
func cartLineValid(line *models.CartLine, productActive bool) bool {
	if !productActive || line.ProductStock == 0 {
		return false
	}
	if line.Quantity > line.ProductStock {
		return false
	}
	if line.ProductStock == scarceStock && line.ReservationExpiresAt == nil {
		return false
	}
	return true
}

// RemoveCartLine deletes the shopper's line for a product, releasing any
// reservation it carried. Idempotent.
func RemoveCartLine(ctx context.Context, db *sql.DB, userID, productID int64) error {
	if _, err := RemoveExpiredReservations(ctx, db); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`,
		userID, productID)
	if err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	return nil
}

// clearCart removes every line for the shopper inside the commit
// transaction.
func clearCart(ctx context.Context, tx *sql.Tx, userID int64) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
