package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpsertProducts stores a catalog batch in one transaction.
func (db *DB) UpsertProducts(ctx context.Context, products []*Product) error {
	if len(products) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin product transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := millis(time.Now())
	for _, p := range products {
		inStock := 0
		if p.InStock {
			inStock = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (code, name, price, image_url, in_stock, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(code) DO UPDATE SET
				name = excluded.name,
				price = excluded.price,
				image_url = excluded.image_url,
				in_stock = excluded.in_stock,
				updated_at = excluded.updated_at`,
			p.Code, p.Name, p.Price, p.ImageURL, inStock, now)
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.Code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit products: %w", err)
	}
	return nil
}

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	var inStock int
	var updatedAt int64
	if err := row.Scan(&p.Code, &p.Name, &p.Price, &p.ImageURL, &inStock, &updatedAt); err != nil {
		return nil, err
	}
	p.InStock = inStock != 0
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

// GetProductByCode loads a product, matching the code case-insensitively.
// Returns nil without error when not found.
func (db *DB) GetProductByCode(ctx context.Context, code string) (*Product, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT code, name, price, image_url, in_stock, updated_at
		FROM products
		WHERE code = ? COLLATE NOCASE`,
		strings.TrimSpace(code))
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return p, nil
}

// SearchProducts returns in-stock products whose name contains the
// query, limited to limit rows.
func (db *DB) SearchProducts(ctx context.Context, query string, limit int) ([]*Product, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT code, name, price, image_url, in_stock, updated_at
		FROM products
		WHERE in_stock = 1 AND name LIKE ?
		ORDER BY name ASC
		LIMIT ?`,
		"%"+strings.TrimSpace(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListProductPrices returns all known prices. Feeds the strict pricing
// allow-list.
func (db *DB) ListProductPrices(ctx context.Context) ([]int, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT DISTINCT price FROM products")
	if err != nil {
		return nil, fmt.Errorf("failed to list product prices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []int
	for rows.Next() {
		var price int
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		out = append(out, price)
	}
	return out, rows.Err()
}

// CountProducts returns the catalog size.
func (db *DB) CountProducts(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}
