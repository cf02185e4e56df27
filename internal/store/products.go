package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kovacs/go-autoparts-store/internal/database"
	"github.com/kovacs/go-autoparts-store/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, name, description, price, stock_quantity, active, in_stock, created_at, updated_at, version`

func scanProduct(row interface {
	Scan(dest ...interface{}) error
}, p *models.Product) error {
	return row.Scan(
		&p.ID,
		&p.SKU,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.StockQuantity,
		&p.Active,
		&p.InStock,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
}

func CreateProduct(ctx context.Context, db *sql.DB, sku, name, description string, price decimal.Decimal, stock int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (sku, name, description, price, stock_quantity, active, in_stock, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, TRUE, $5 > 0, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(db.QueryRowContext(ctx, query, sku, name, description, price.Round(2), stock), product)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}

	err := scanProduct(db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func UpdateProduct(ctx context.Context, db *sql.DB, id int64, name, description string, price decimal.Decimal) (*models.Product, error) {
	product := &models.Product{}

	err := scanProduct(db.QueryRowContext(ctx,
		`UPDATE products
		 SET name = $1, description = $2, price = $3, updated_at = NOW(), version = version + 1
		 WHERE id = $4
		 RETURNING `+productColumns,
		name, description, price.Round(2), id), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

func SetProductActive(ctx context.Context, db *sql.DB, id int64, active bool) (*models.Product, error) {
	product := &models.Product{}

	err := scanProduct(db.QueryRowContext(ctx,
		`UPDATE products
		 SET active = $1, updated_at = NOW(), version = version + 1
		 WHERE id = $2
		 RETURNING `+productColumns,
		active, id), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("set product active: %w", err)
	}

	return product, nil
}

// DecrementStock takes quantity units off the product as one conditional
// write: the stock_quantity >= quantity guard is evaluated at write time,
// never from a previously read snapshot, so concurrent commits serialize
// and stock can never go negative. Returns the post-decrement quantity for
// the ledger.
func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) (int, error) {
	var after int
	err := tx.QueryRowContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     in_stock = stock_quantity - $1 > 0,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		   AND stock_quantity >= $1
		 RETURNING stock_quantity`,
		quantity, productID).Scan(&after)
	if err != nil {
		if err == sql.ErrNoRows {
			var name string
			var available int
			if err := tx.QueryRowContext(ctx,
				`SELECT name, stock_quantity FROM products WHERE id = $1`,
				productID).Scan(&name, &available); err != nil {
				if err == sql.ErrNoRows {
					return 0, database.ErrProductNotFound
				}
				return 0, fmt.Errorf("re-read product %d: %w", productID, err)
			}
			return 0, &database.StockError{
				ProductID:   productID,
				ProductName: name,
				Requested:   quantity,
				Available:   available,
				Kind:        database.ErrInsufficientStock,
			}
		}
		return 0, fmt.Errorf("decrement stock: %w", err)
	}

	return after, nil
}

// AdjustStock applies an admin stock correction or restock under the same
// conditional-write-plus-ledger discipline checkout uses. Delta may be
// negative; the guard rejects anything that would take stock below zero.
func AdjustStock(ctx context.Context, db *sql.DB, productID int64, delta int, movementType, reason string) (*models.InventoryMovement, error) {
	if delta == 0 {
		return nil, database.ErrInvalidQuantity
	}

	var movement *models.InventoryMovement

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var after int
		err := tx.QueryRowContext(ctx,
			`UPDATE products
			 SET stock_quantity = stock_quantity + $1,
			     in_stock = stock_quantity + $1 > 0,
			     updated_at = NOW(),
			     version = version + 1
			 WHERE id = $2
			   AND stock_quantity + $1 >= 0
			 RETURNING stock_quantity`,
			delta, productID).Scan(&after)
		if err != nil {
			if err == sql.ErrNoRows {
				var name string
				var available int
				if err := tx.QueryRowContext(ctx,
					`SELECT name, stock_quantity FROM products WHERE id = $1`,
					productID).Scan(&name, &available); err != nil {
					if err == sql.ErrNoRows {
						return database.ErrProductNotFound
					}
					return fmt.Errorf("re-read product %d: %w", productID, err)
				}
				return &database.StockError{
					ProductID:   productID,
					ProductName: name,
					Requested:   -delta,
					Available:   available,
					Kind:        database.ErrInsufficientStock,
				}
			}
			return fmt.Errorf("adjust stock: %w", err)
		}

		movement = &models.InventoryMovement{
			ProductID:     productID,
			Type:          movementType,
			Quantity:      delta,
			QuantityAfter: after,
			Reason:        reason,
		}
		return InsertMovement(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	return movement, nil
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := db.QueryContext(ctx,
		`SELECT `+productColumns+`
		 FROM products
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// ListLowStockProducts feeds the back-office restock report.
func ListLowStockProducts(ctx context.Context, db *sql.DB, threshold int) ([]models.Product, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+productColumns+`
		 FROM products
		 WHERE active AND stock_quantity <= $1
		 ORDER BY stock_quantity, name`,
		threshold)
	if err != nil {
		return nil, fmt.Errorf("list low stock products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}
