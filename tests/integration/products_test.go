package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kovacs/go-autoparts-store/internal/database"
	"github.com/kovacs/go-autoparts-store/internal/models"
	"github.com/kovacs/go-autoparts-store/internal/store"
	"github.com/shopspring/decimal"
)

func TestCreateAndGetProduct(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	created, err := store.CreateProduct(ctx, db, "PRD-001", "Shock Absorber", "Front axle",
		decimal.NewFromFloat(79.995), 12)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	if want := decimal.NewFromFloat(80.00); !created.Price.Equal(want) {
		t.Errorf("Price should be rounded to 2 decimals, expected %s got %s", want, created.Price)
	}
	if !created.Active || !created.InStock {
		t.Error("New stocked product should be active and in stock")
	}

	fetched, err := store.GetProduct(ctx, db, created.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if fetched.SKU != "PRD-001" || fetched.StockQuantity != 12 {
		t.Errorf("Unexpected product: sku=%q stock=%d", fetched.SKU, fetched.StockQuantity)
	}

	if _, err := store.GetProduct(ctx, db, 999999); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected product not found, got: %v", err)
	}
}

func TestCreateProductZeroStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	product, err := store.CreateProduct(context.Background(), db, "PRD-002", "Discontinued Hub", "Test",
		decimal.NewFromInt(60), 0)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	if product.InStock {
		t.Error("Zero-stock product should not be in stock")
	}
}

func TestAdjustStockWritesLedger(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product, err := store.CreateProduct(ctx, db, "PRD-003", "Clutch Kit", "Test",
		decimal.NewFromInt(250), 4)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	restock, err := store.AdjustStock(ctx, db, product.ID, 6, models.MovementPurchase, "supplier delivery")
	if err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if restock.Quantity != 6 || restock.QuantityAfter != 10 {
		t.Errorf("Restock movement: expected qty=6 after=10, got qty=%d after=%d",
			restock.Quantity, restock.QuantityAfter)
	}

	correction, err := store.AdjustStock(ctx, db, product.ID, -3, models.MovementAdjustment, "shrinkage count")
	if err != nil {
		t.Fatalf("Correction: %v", err)
	}
	if correction.Quantity != -3 || correction.QuantityAfter != 7 {
		t.Errorf("Correction movement: expected qty=-3 after=7, got qty=%d after=%d",
			correction.Quantity, correction.QuantityAfter)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 7 {
		t.Errorf("Expected stock 7, got %d", after.StockQuantity)
	}

	page, err := store.ListMovements(ctx, db, product.ID, 1, 10)
	if err != nil {
		t.Fatalf("List movements: %v", err)
	}
	movements := page.Items.([]models.InventoryMovement)
	if len(movements) != 2 {
		t.Fatalf("Expected 2 ledger rows, got %d", len(movements))
	}
	// Newest first.
	if movements[0].Type != models.MovementAdjustment || movements[0].Reason != "shrinkage count" {
		t.Errorf("Unexpected newest movement: %+v", movements[0])
	}
	if movements[1].Type != models.MovementPurchase {
		t.Errorf("Unexpected oldest movement: %+v", movements[1])
	}
}

func TestAdjustStockGuards(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product, err := store.CreateProduct(ctx, db, "PRD-004", "Fuel Pump", "Test",
		decimal.NewFromInt(110), 2)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	// A correction below zero is rejected and leaves no ledger row.
	_, err = store.AdjustStock(ctx, db, product.ID, -5, models.MovementAdjustment, "bad count")
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Fatalf("Expected insufficient stock, got: %v", err)
	}

	_, err = store.AdjustStock(ctx, db, product.ID, 0, models.MovementAdjustment, "noop")
	if !errors.Is(err, database.ErrInvalidQuantity) {
		t.Errorf("Expected invalid quantity for zero delta, got: %v", err)
	}

	_, err = store.AdjustStock(ctx, db, 999999, 5, models.MovementPurchase, "ghost")
	if !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected product not found, got: %v", err)
	}

	page, err := store.ListMovements(ctx, db, product.ID, 1, 10)
	if err != nil {
		t.Fatalf("List movements: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("Rejected adjustments must not append ledger rows, found %d", page.Total)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 2 {
		t.Errorf("Stock should be untouched, got %d", after.StockQuantity)
	}
}

func TestListLowStockProducts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	low, err := store.CreateProduct(ctx, db, "PRD-005", "Rare Bearing", "Test",
		decimal.NewFromInt(30), 2)
	if err != nil {
		t.Fatalf("Create low product: %v", err)
	}
	if _, err := store.CreateProduct(ctx, db, "PRD-006", "Common Bolt", "Test",
		decimal.NewFromInt(2), 500); err != nil {
		t.Fatalf("Create stocked product: %v", err)
	}
	inactive, err := store.CreateProduct(ctx, db, "PRD-007", "Retired Gasket", "Test",
		decimal.NewFromInt(9), 1)
	if err != nil {
		t.Fatalf("Create inactive product: %v", err)
	}
	if _, err := store.SetProductActive(ctx, db, inactive.ID, false); err != nil {
		t.Fatalf("Deactivate product: %v", err)
	}

	products, err := store.ListLowStockProducts(ctx, db, 5)
	if err != nil {
		t.Fatalf("List low stock: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("Expected 1 low-stock active product, got %d", len(products))
	}
	if products[0].ID != low.ID {
		t.Errorf("Expected product %d, got %d", low.ID, products[0].ID)
	}
}

func TestSalesVelocity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user, address := createShopper(t, db, "velocity@example.com")

	product, err := store.CreateProduct(ctx, db, "PRD-008", "Brake Rotor", "Test",
		decimal.NewFromInt(65), 40)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	for _, qty := range []int{2, 3} {
		addLine(t, db, user.ID, product.ID, qty)
		if _, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
			UserID:            user.ID,
			ShippingAddressID: address.ID,
			BillingAddressID:  address.ID,
			ShippingCost:      decimal.Zero,
			Tax:               decimal.Zero,
		}); err != nil {
			t.Fatalf("Commit order (qty %d): %v", qty, err)
		}
	}

	// A restock is not a sale and must not count.
	if _, err := store.AdjustStock(ctx, db, product.ID, 10, models.MovementPurchase, "restock"); err != nil {
		t.Fatalf("Restock: %v", err)
	}

	sold, err := store.SalesVelocity(ctx, db, product.ID, 24*time.Hour)
	if err != nil {
		t.Fatalf("Sales velocity: %v", err)
	}
	if sold != 5 {
		t.Errorf("Expected 5 units sold in window, got %d", sold)
	}

	none, err := store.SalesVelocity(ctx, db, 999999, 24*time.Hour)
	if err != nil {
		t.Fatalf("Sales velocity (unknown product): %v", err)
	}
	if none != 0 {
		t.Errorf("Expected 0 for product with no sales, got %d", none)
	}
}
