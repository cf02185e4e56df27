package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kovacs/go-autoparts-store/internal/database"
)

// ReservationTTL is the fixed lifetime of a hold on the last unit of a
// product. Every cart mutation by the holder re-arms the timer.
const ReservationTTL = 20 * time.Minute

// scarceStock is the stock level at which a product needs a reservation
// before it can sit in a cart. Products with more stock never carry one.
const scarceStock = 1

// RemoveExpiredReservations clears every lapsed hold. There is no guarantee
// a hold disappears at the instant it expires; it is guaranteed to be gone
// by the time the next cart read, cart mutation, or checkout runs, because
// each of those calls this first. A periodic sweep in cmd/api covers
// products nobody touches again. Idempotent.
func RemoveExpiredReservations(ctx context.Context, q Querier) (int64, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE cart_lines
		 SET reservation_expires_at = NULL, updated_at = NOW()
		 WHERE reservation_expires_at IS NOT NULL
		   AND reservation_expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("remove expired reservations: %w", err)
	}

	cleared, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return cleared, nil
}

// HasActiveReservation reports whether a shopper other than excludingUserID
// holds a live reservation on the product.
func HasActiveReservation(ctx context.Context, q Querier, productID, excludingUserID int64) (bool, error) {
	var held bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM cart_lines
			WHERE product_id = $1
			  AND user_id <> $2
			  AND reservation_expires_at IS NOT NULL
			  AND reservation_expires_at > NOW())`,
		productID, excludingUserID).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("check active reservation: %w", err)
	}
	return held, nil
}

// reserveScarceProduct grants or renews the hold for userID on a product
// whose live stock is exactly one. The caller must already hold the product
// row lock (FOR UPDATE) in tx: that lock serializes competing shoppers, so
// the foreign-reservation check below runs strictly after the winner's
// write committed and the loser fails visibly instead of overwriting.
func reserveScarceProduct(ctx context.Context, tx *sql.Tx, userID, productID int64, productName string) (time.Time, error) {
	held, err := HasActiveReservation(ctx, tx, productID, userID)
	if err != nil {
		return time.Time{}, err
	}
	if held {
		return time.Time{}, &database.ReservationError{
			ProductID:   productID,
			ProductName: productName,
			Kind:        database.ErrReservationConflict,
		}
	}
	return time.Now().Add(ReservationTTL), nil
}

// CreateOrUpdateReservation grants or renews a hold outside the cart upsert
// path. It is a no-op for products with more than one unit in stock; the
// returned expiry is zero in that case.
func CreateOrUpdateReservation(ctx context.Context, db *sql.DB, userID, productID int64, quantity int) (time.Time, error) {
	if quantity < 1 {
		return time.Time{}, database.ErrInvalidQuantity
	}

	if _, err := RemoveExpiredReservations(ctx, db); err != nil {
		return time.Time{}, err
	}

	var expiresAt time.Time
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var name string
		var stock int
		err := tx.QueryRowContext(ctx,
			`SELECT name, stock_quantity FROM products WHERE id = $1 FOR UPDATE`,
			productID).Scan(&name, &stock)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("lock product: %w", err)
		}

		if stock != scarceStock {
			return nil
		}

		expiresAt, err = reserveScarceProduct(ctx, tx, userID, productID, name)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE cart_lines
			 SET reservation_expires_at = $1, updated_at = NOW()
			 WHERE user_id = $2 AND product_id = $3`,
			expiresAt, userID, productID)
		if err != nil {
			return fmt.Errorf("renew reservation: %w", err)
		}

		// A hold only exists as a persisted expiry on the holder's cart
		// line. No line, no hold: reporting success here would leave the
		// shopper believing they own a unit nothing actually protects.
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return database.ErrCartLineNotFound
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	return expiresAt, nil
}
