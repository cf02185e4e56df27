package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrAddressNotFound  = errors.New("address not found")
	ErrCouponNotFound   = errors.New("coupon not found")
	ErrCartLineNotFound = errors.New("cart line not found")

	// Validation failures: reported before any storage mutation.
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidAddress  = errors.New("address does not belong to user")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidCoupon   = errors.New("invalid coupon")

	// Conflict failures: another actor moved first; client must re-fetch.
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrProductUnavailable  = errors.New("product unavailable")
	ErrReservationConflict = errors.New("product reserved by another shopper")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrCouponAlreadyUsed   = errors.New("coupon already used")
)

// StockError carries enough detail for the client to reconcile its cart view.
// It matches ErrInsufficientStock or ErrProductUnavailable via errors.Is.
type StockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
	Kind        error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s: product %q (id=%d) requested=%d available=%d",
		e.Kind, e.ProductName, e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return e.Kind }

// ReservationError names the product whose hold blocked the operation.
// It matches ErrReservationConflict or ErrReservationExpired via errors.Is.
type ReservationError struct {
	ProductID   int64
	ProductName string
	Kind        error
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("%s: product %q (id=%d)", e.Kind, e.ProductName, e.ProductID)
}

func (e *ReservationError) Unwrap() error { return e.Kind }
