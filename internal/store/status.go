package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kovacs/go-autoparts-store/internal/models"
)

// DeliveryDelayThreshold is how long a shipped order may sit undelivered
// before reads report it as delayed.
const DeliveryDelayThreshold = 7 * 24 * time.Hour

// ResolveStatus derives the customer-facing status from stored facts.
// Cancelled and refunded are terminal admin decisions and pass through
// untouched; everything else is recomputed from timestamps and the payment
// flag on every call, so the stored status column is only ever a cache of
// this function's output.
func ResolveStatus(o *models.Order, now time.Time) string {
	switch o.Status {
	case models.OrderStatusCancelled, models.OrderStatusRefunded:
		return o.Status
	}

	if o.DeliveredAt != nil {
		return models.OrderStatusDelivered
	}

	if o.ShippedAt != nil {
		if now.Sub(*o.ShippedAt) > DeliveryDelayThreshold {
			return models.OrderStatusDelayed
		}
		return models.OrderStatusShipped
	}

	if o.PaymentStatus == models.PaymentStatusPaid {
		return models.OrderStatusConfirmed
	}

	return models.OrderStatusPending
}

// syncStatus reconciles the stored status column with the resolved value,
// writing through only when they differ. The shipped/delivered timestamps
// are never touched here, so a delayed order still delivers cleanly.
func syncStatus(ctx context.Context, q Querier, o *models.Order, now time.Time) error {
	resolved := ResolveStatus(o, now)
	if resolved == o.Status {
		return nil
	}

	_, err := q.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		resolved, o.ID)
	if err != nil {
		return fmt.Errorf("sync order status: %w", err)
	}

	o.Status = resolved
	return nil
}
