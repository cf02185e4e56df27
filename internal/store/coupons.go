package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kovacs/go-autoparts-store/internal/database"
	"github.com/kovacs/go-autoparts-store/internal/models"
	"github.com/shopspring/decimal"
)

func CreateCoupon(ctx context.Context, db *sql.DB, code string, discountPercent decimal.Decimal) (*models.Coupon, error) {
	coupon := &models.Coupon{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO coupons (code, discount_percent, is_used, created_at)
		 VALUES ($1, $2, FALSE, NOW())
		 RETURNING id, code, discount_percent, is_used, used_by_order_id, created_at`,
		code, discountPercent).Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.DiscountPercent,
		&coupon.IsUsed,
		&coupon.UsedByOrderID,
		&coupon.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	return coupon, nil
}

func GetCouponByCode(ctx context.Context, db *sql.DB, code string) (*models.Coupon, error) {
	coupon := &models.Coupon{}

	err := db.QueryRowContext(ctx,
		`SELECT id, code, discount_percent, is_used, used_by_order_id, created_at
		 FROM coupons
		 WHERE code = $1`,
		code).Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.DiscountPercent,
		&coupon.IsUsed,
		&coupon.UsedByOrderID,
		&coupon.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return coupon, nil
}

func ListCoupons(ctx context.Context, db *sql.DB) ([]models.Coupon, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, code, discount_percent, is_used, used_by_order_id, created_at
		 FROM coupons
		 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []models.Coupon
	for rows.Next() {
		var c models.Coupon
		err := rows.Scan(&c.ID, &c.Code, &c.DiscountPercent, &c.IsUsed, &c.UsedByOrderID, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return coupons, nil
}

// consumeCoupon flips is_used exactly once, atomically with the order that
// consumed it. The is_used = FALSE guard makes two concurrent checkouts
// racing on the same code resolve to one winner; the loser's write matches
// zero rows.
func consumeCoupon(ctx context.Context, tx *sql.Tx, code string, orderID int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE coupons
		 SET is_used = TRUE, used_by_order_id = $1
		 WHERE code = $2 AND is_used = FALSE`,
		orderID, code)
	if err != nil {
		return fmt.Errorf("consume coupon: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists); err != nil {
			return fmt.Errorf("re-check coupon: %w", err)
		}
		if !exists {
			return database.ErrInvalidCoupon
		}
		return database.ErrCouponAlreadyUsed
	}

	return nil
}
