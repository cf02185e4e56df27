package integration

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/kovacs/go-autoparts-store/internal/database"
	"github.com/kovacs/go-autoparts-store/internal/models"
	"github.com/kovacs/go-autoparts-store/internal/store"
	"github.com/shopspring/decimal"
)

func createShopper(t *testing.T, db *sql.DB, email string) (*models.User, *models.Address) {
	t.Helper()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, db, email, "Checkout Shopper")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	address, err := store.CreateAddress(ctx, db, &models.Address{
		UserID:     user.ID,
		Line1:      "1 Main St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	})
	if err != nil {
		t.Fatalf("Create address: %v", err)
	}

	return user, address
}

func addLine(t *testing.T, db *sql.DB, userID, productID int64, qty int) {
	t.Helper()
	_, err := store.AddOrSetCartLine(context.Background(), db, store.AddCartLineRequest{
		UserID: userID, ProductID: productID, Quantity: qty,
	})
	if err != nil {
		t.Fatalf("Add cart line (product %d): %v", productID, err)
	}
}

func TestCommitOrderTotalsAndLedger(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user, address := createShopper(t, db, "commit1@example.com")

	productP, err := store.CreateProduct(ctx, db, "CHK-P", "Product P", "Test",
		decimal.NewFromFloat(10.00), 10)
	if err != nil {
		t.Fatalf("Create product P: %v", err)
	}
	productQ, err := store.CreateProduct(ctx, db, "CHK-Q", "Product Q", "Test",
		decimal.NewFromFloat(5.00), 10)
	if err != nil {
		t.Fatalf("Create product Q: %v", err)
	}

	addLine(t, db, user.ID, productP.ID, 2)
	addLine(t, db, user.ID, productQ.ID, 1)

	order, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
		UserID:            user.ID,
		ShippingAddressID: address.ID,
		BillingAddressID:  address.ID,
		ShippingCost:      decimal.NewFromFloat(3.00),
		Tax:               decimal.Zero,
	})
	if err != nil {
		t.Fatalf("Commit order: %v", err)
	}

	if want := decimal.NewFromFloat(25.00); !order.Subtotal.Equal(want) {
		t.Errorf("Expected subtotal %s, got %s", want, order.Subtotal)
	}
	if want := decimal.NewFromFloat(28.00); !order.Total.Equal(want) {
		t.Errorf("Expected total %s, got %s", want, order.Total)
	}
	if !order.Total.Equal(order.Subtotal.Sub(order.Discount).Add(order.ShippingCost).Add(order.Tax)) {
		t.Error("Total must reconcile exactly: subtotal - discount + shipping + tax")
	}
	if len(order.Items) != 2 {
		t.Fatalf("Expected 2 order items, got %d", len(order.Items))
	}
	if order.Items[0].ProductName != "Product P" || order.Items[0].ProductSKU != "CHK-P" {
		t.Error("Order items should snapshot product name and SKU")
	}
	if order.Status != models.OrderStatusPending {
		t.Errorf("Unpaid order should start pending, got %q", order.Status)
	}

	// One SALE ledger row per line with the post-decrement snapshot.
	rows, err := db.Query(
		`SELECT product_id, quantity, quantity_after FROM inventory_movements
		 WHERE order_id = $1 AND movement_type = 'SALE' ORDER BY product_id`,
		order.ID)
	if err != nil {
		t.Fatalf("Query movements: %v", err)
	}
	defer rows.Close()

	type movement struct {
		productID  int64
		qty, after int
	}
	var movements []movement
	for rows.Next() {
		var m movement
		if err := rows.Scan(&m.productID, &m.qty, &m.after); err != nil {
			t.Fatalf("Scan movement: %v", err)
		}
		movements = append(movements, m)
	}
	if len(movements) != 2 {
		t.Fatalf("Expected 2 SALE movements, got %d", len(movements))
	}
	if movements[0].qty != -2 || movements[0].after != 8 {
		t.Errorf("Product P movement: expected qty=-2 after=8, got qty=%d after=%d",
			movements[0].qty, movements[0].after)
	}
	if movements[1].qty != -1 || movements[1].after != 9 {
		t.Errorf("Product Q movement: expected qty=-1 after=9, got qty=%d after=%d",
			movements[1].qty, movements[1].after)
	}

	// Cart cleared atomically with the commit.
	cart, err := store.GetCart(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("Get cart: %v", err)
	}
	if len(cart) != 0 {
		t.Errorf("Cart should be empty after commit, got %d line(s)", len(cart))
	}
}

func TestCommitOrderEmptyCart(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user, address := createShopper(t, db, "commit2@example.com")

	_, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
		UserID:            user.ID,
		ShippingAddressID: address.ID,
		BillingAddressID:  address.ID,
		ShippingCost:      decimal.Zero,
		Tax:               decimal.Zero,
	})
	if !errors.Is(err, database.ErrEmptyCart) {
		t.Errorf("Expected empty cart error, got: %v", err)
	}
}

func TestCommitOrderForeignAddress(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user, address := createShopper(t, db, "commit3@example.com")
	_, foreignAddress := createShopper(t, db, "someone-else@example.com")

	product, err := store.CreateProduct(ctx, db, "CHK-ADDR", "Alternator", "Test",
		decimal.NewFromInt(95), 5)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	addLine(t, db, user.ID, product.ID, 1)

	_, err = store.CommitOrder(ctx, db, store.CommitOrderRequest{
		UserID:            user.ID,
		ShippingAddressID: address.ID,
		BillingAddressID:  foreignAddress.ID,
		ShippingCost:      decimal.Zero,
		Tax:               decimal.Zero,
	})
	if !errors.Is(err, database.ErrInvalidAddress) {
		t.Errorf("Expected invalid address error, got: %v", err)
	}

	// Nothing was written.
	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 5 {
		t.Errorf("Stock should be untouched, got %d", after.StockQuantity)
	}
}

func TestCommitOrderExpiredReservation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user, address := createShopper(t, db, "commit4@example.com")

	product, err := store.CreateProduct(ctx, db, "CHK-RSV", "Classic Fender", "Last one",
		decimal.NewFromInt(300), 1)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	addLine(t, db, user.ID, product.ID, 1)
	expireReservation(t, db, user.ID, product.ID)

	_, err = store.CommitOrder(ctx, db, store.CommitOrderRequest{
		UserID:            user.ID,
		ShippingAddressID: address.ID,
		BillingAddressID:  address.ID,
		ShippingCost:      decimal.Zero,
		Tax:               decimal.Zero,
	})
	if !errors.Is(err, database.ErrReservationExpired) {
		t.Fatalf("Expected reservation expired error, got: %v", err)
	}

	var resErr *database.ReservationError
	if !errors.As(err, &resErr) || resErr.ProductName != "Classic Fender" {
		t.Errorf("Error should name the offending product, got: %v", err)
	}

	// The stale line was deleted so the shopper sees an accurate cart on retry.
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM cart_lines WHERE user_id = $1`, user.ID).Scan(&count); err != nil {
		t.Fatalf("Count cart lines: %v", err)
	}
	if count != 0 {
		t.Errorf("Stale line should be deleted, found %d", count)
	}
}

func TestCommitOrderCouponLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user, address := createShopper(t, db, "commit5@example.com")

	product, err := store.CreateProduct(ctx, db, "CHK-CPN", "Exhaust Kit", "Test",
		decimal.NewFromInt(100), 10)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	if _, err := store.CreateCoupon(ctx, db, "SAVE10", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("Create coupon: %v", err)
	}

	addLine(t, db, user.ID, product.ID, 1)

	order, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
		UserID:            user.ID,
		ShippingAddressID: address.ID,
		BillingAddressID:  address.ID,
		CouponCode:        "SAVE10",
		ShippingCost:      decimal.Zero,
		Tax:               decimal.Zero,
		PaymentStatus:     models.PaymentStatusPaid,
	})
	if err != nil {
		t.Fatalf("Commit order: %v", err)
	}

	if want := decimal.NewFromFloat(10.00); !order.Discount.Equal(want) {
		t.Errorf("Expected discount %s, got %s", want, order.Discount)
	}
	if want := decimal.NewFromFloat(90.00); !order.Total.Equal(want) {
		t.Errorf("Expected total %s, got %s", want, order.Total)
	}
	if order.Status != models.OrderStatusConfirmed {
		t.Errorf("Paid order should start confirmed, got %q", order.Status)
	}

	coupon, err := store.GetCouponByCode(ctx, db, "SAVE10")
	if err != nil {
		t.Fatalf("Get coupon: %v", err)
	}
	if !coupon.IsUsed || coupon.UsedByOrderID == nil || *coupon.UsedByOrderID != order.ID {
		t.Error("Coupon should be consumed by exactly this order")
	}

	// Second use fails with no side effects.
	addLine(t, db, user.ID, product.ID, 1)
	_, err = store.CommitOrder(ctx, db, store.CommitOrderRequest{
		UserID:            user.ID,
		ShippingAddressID: address.ID,
		BillingAddressID:  address.ID,
		CouponCode:        "SAVE10",
		ShippingCost:      decimal.Zero,
		Tax:               decimal.Zero,
	})
	if !errors.Is(err, database.ErrCouponAlreadyUsed) {
		t.Fatalf("Expected coupon already used, got: %v", err)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 9 {
		t.Errorf("Failed commit must not decrement stock, got %d", after.StockQuantity)
	}

	var orderCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM orders WHERE user_id = $1`, user.ID).Scan(&orderCount); err != nil {
		t.Fatalf("Count orders: %v", err)
	}
	if orderCount != 1 {
		t.Errorf("Failed commit must not create an order, found %d", orderCount)
	}
}

func TestConcurrentCommitsInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userA, addressA := createShopper(t, db, "race-a@example.com")
	userB, addressB := createShopper(t, db, "race-b@example.com")

	// Stock covers either cart alone but not both; the conditional decrement
	// decides the winner at write time.
	product, err := store.CreateProduct(ctx, db, "CHK-RACE", "Turbocharger", "Test",
		decimal.NewFromInt(500), 3)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	addLine(t, db, userA.ID, product.ID, 2)
	addLine(t, db, userB.ID, product.ID, 2)

	type result struct {
		order *models.Order
		err   error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup

	commit := func(userID, addressID int64) {
		defer wg.Done()
		order, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
			UserID:            userID,
			ShippingAddressID: addressID,
			BillingAddressID:  addressID,
			ShippingCost:      decimal.Zero,
			Tax:               decimal.Zero,
		})
		results <- result{order, err}
	}

	wg.Add(2)
	go commit(userA.ID, addressA.ID)
	go commit(userB.ID, addressB.ID)
	wg.Wait()
	close(results)

	var successes, failures int
	for r := range results {
		if r.err == nil {
			successes++
			continue
		}
		failures++
		if !errors.Is(r.err, database.ErrInsufficientStock) {
			t.Errorf("Loser should fail with insufficient stock, got: %v", r.err)
		}
	}

	if successes != 1 || failures != 1 {
		t.Errorf("Expected exactly one winner, got %d successes and %d failures", successes, failures)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 1 {
		t.Errorf("Final stock must be 1, never negative, got %d", after.StockQuantity)
	}
}

func TestConcurrentCommitsLastUnit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userA, addressA := createShopper(t, db, "lastunit-a@example.com")
	userB, addressB := createShopper(t, db, "lastunit-b@example.com")

	product, err := store.CreateProduct(ctx, db, "CHK-LAST", "Last Turbo", "Only one",
		decimal.NewFromInt(500), 1)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	// Shopper A's hold lapsed; shopper B took over the last unit. Both carts
	// still show the product when they race to checkout.
	addLine(t, db, userA.ID, product.ID, 1)
	expireReservation(t, db, userA.ID, product.ID)
	addLine(t, db, userB.ID, product.ID, 1)

	type result struct {
		userID int64
		order  *models.Order
		err    error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup

	commit := func(userID, addressID int64) {
		defer wg.Done()
		order, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
			UserID:            userID,
			ShippingAddressID: addressID,
			BillingAddressID:  addressID,
			ShippingCost:      decimal.Zero,
			Tax:               decimal.Zero,
		})
		results <- result{userID, order, err}
	}

	wg.Add(2)
	go commit(userA.ID, addressA.ID)
	go commit(userB.ID, addressB.ID)
	wg.Wait()
	close(results)

	for r := range results {
		switch r.userID {
		case userB.ID:
			if r.err != nil {
				t.Errorf("Holder of the live reservation should win, got: %v", r.err)
			}
		case userA.ID:
			if !errors.Is(r.err, database.ErrReservationExpired) &&
				!errors.Is(r.err, database.ErrInsufficientStock) &&
				!errors.Is(r.err, database.ErrProductUnavailable) {
				t.Errorf("Lapsed holder should fail visibly, got: %v", r.err)
			}
		}
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 0 {
		t.Errorf("Final stock must be 0, never negative, got %d", after.StockQuantity)
	}
	if after.InStock {
		t.Error("in_stock should be false once the last unit sold")
	}
}

func TestConcurrentCheckoutsCouponOneShot(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	userA, addressA := createShopper(t, db, "coupon-a@example.com")
	userB, addressB := createShopper(t, db, "coupon-b@example.com")

	product, err := store.CreateProduct(ctx, db, "CHK-1SHOT", "Starter Motor", "Test",
		decimal.NewFromInt(150), 20)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	if _, err := store.CreateCoupon(ctx, db, "ONESHOT", decimal.NewFromInt(20)); err != nil {
		t.Fatalf("Create coupon: %v", err)
	}

	addLine(t, db, userA.ID, product.ID, 1)
	addLine(t, db, userB.ID, product.ID, 1)

	errs := make(chan error, 2)
	var wg sync.WaitGroup

	commit := func(userID, addressID int64) {
		defer wg.Done()
		_, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
			UserID:            userID,
			ShippingAddressID: addressID,
			BillingAddressID:  addressID,
			CouponCode:        "ONESHOT",
			ShippingCost:      decimal.Zero,
			Tax:               decimal.Zero,
		})
		errs <- err
	}

	wg.Add(2)
	go commit(userA.ID, addressA.ID)
	go commit(userB.ID, addressB.ID)
	wg.Wait()
	close(errs)

	var successes, failures int
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		failures++
		if !errors.Is(err, database.ErrCouponAlreadyUsed) {
			t.Errorf("Loser should fail with coupon already used, got: %v", err)
		}
	}
	if successes != 1 || failures != 1 {
		t.Errorf("Coupon must be consumed exactly once, got %d successes and %d failures",
			successes, failures)
	}

	var used int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM coupons WHERE code = 'ONESHOT' AND is_used`).Scan(&used); err != nil {
		t.Fatalf("Count used coupons: %v", err)
	}
	if used != 1 {
		t.Errorf("Expected exactly one consumed coupon row, got %d", used)
	}
}

func TestOrderNumbersUnique(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user, address := createShopper(t, db, "numbers@example.com")

	product, err := store.CreateProduct(ctx, db, "CHK-NUM", "Gasket Set", "Test",
		decimal.NewFromInt(20), 100)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	format := regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{8}$`)
	seen := make(map[string]bool)

	for i := 0; i < 10; i++ {
		addLine(t, db, user.ID, product.ID, 1)

		order, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
			UserID:            user.ID,
			ShippingAddressID: address.ID,
			BillingAddressID:  address.ID,
			ShippingCost:      decimal.Zero,
			Tax:               decimal.Zero,
		})
		if err != nil {
			t.Fatalf("Commit order %d: %v", i, err)
		}

		if !format.MatchString(order.OrderNumber) {
			t.Errorf("Order number %q does not match expected format", order.OrderNumber)
		}
		if seen[order.OrderNumber] {
			t.Errorf("Duplicate order number %q", order.OrderNumber)
		}
		seen[order.OrderNumber] = true
	}
}
