package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kovacs/go-autoparts-store/internal/database"
	"github.com/kovacs/go-autoparts-store/internal/models"
)

func CreateAddress(ctx context.Context, db *sql.DB, a *models.Address) (*models.Address, error) {
	address := &models.Address{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO addresses (user_id, line1, line2, city, postal_code, country, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, user_id, line1, line2, city, postal_code, country, created_at`,
		a.UserID, a.Line1, a.Line2, a.City, a.PostalCode, a.Country).Scan(
		&address.ID,
		&address.UserID,
		&address.Line1,
		&address.Line2,
		&address.City,
		&address.PostalCode,
		&address.Country,
		&address.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}

	return address, nil
}

func GetAddress(ctx context.Context, db *sql.DB, id int64) (*models.Address, error) {
	address := &models.Address{}

	err := db.QueryRowContext(ctx,
		`SELECT id, user_id, line1, line2, city, postal_code, country, created_at
		 FROM addresses
		 WHERE id = $1`,
		id).Scan(
		&address.ID,
		&address.UserID,
		&address.Line1,
		&address.Line2,
		&address.City,
		&address.PostalCode,
		&address.Country,
		&address.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return address, nil
}

func ListAddresses(ctx context.Context, db *sql.DB, userID int64) ([]models.Address, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, line1, line2, city, postal_code, country, created_at
		 FROM addresses
		 WHERE user_id = $1
		 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var addresses []models.Address
	for rows.Next() {
		var a models.Address
		err := rows.Scan(&a.ID, &a.UserID, &a.Line1, &a.Line2, &a.City, &a.PostalCode, &a.Country, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return addresses, nil
}

// AddressBelongsTo verifies ownership before an address is attached to an
// order.
func AddressBelongsTo(ctx context.Context, q Querier, addressID, userID int64) (bool, error) {
	var owned bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2)`,
		addressID, userID).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("check address ownership: %w", err)
	}
	return owned, nil
}
