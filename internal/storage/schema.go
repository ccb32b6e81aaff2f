package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all necessary tables and indexes.
// Note: WAL mode is configured in db.go.
func InitSchema(db *sql.DB) error {
	if err := createMessagesTable(db); err != nil {
		return err
	}
	if err := createSessionsTable(db); err != nil {
		return err
	}
	if err := createHandoffTable(db); err != nil {
		return err
	}
	if err := createOrdersTable(db); err != nil {
		return err
	}
	if err := createKBTable(db); err != nil {
		return err
	}
	return createProductsTable(db)
}

func createMessagesTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		buffer_state TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(user_id, chat_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_buffer ON messages(user_id, chat_id, buffer_state);
	`
	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}
	return nil
}

func createSessionsTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		slots TEXT NOT NULL DEFAULT '{}',
		checkout_step TEXT NOT NULL DEFAULT '',
		checkout_data TEXT NOT NULL DEFAULT '{}',
		last_media_type TEXT NOT NULL DEFAULT '',
		last_media_at INTEGER NOT NULL DEFAULT 0,
		last_viewed_product TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, chat_id)
	);
	`
	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

func createHandoffTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS handoff_state (
		chat_id TEXT PRIMARY KEY,
		paused INTEGER NOT NULL DEFAULT 0,
		paused_at INTEGER NOT NULL DEFAULT 0,
		last_admin_at INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("failed to create handoff_state table: %w", err)
	}
	return nil
}

func createOrdersTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		product_code TEXT NOT NULL,
		product_name TEXT NOT NULL,
		price INTEGER NOT NULL,
		payment_method TEXT NOT NULL,
		delivery_method TEXT NOT NULL,
		delivery_fee INTEGER NOT NULL DEFAULT 0,
		deposit INTEGER NOT NULL DEFAULT 0,
		address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, status, created_at);

	CREATE TABLE IF NOT EXISTS order_installments (
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		period INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		due_at INTEGER NOT NULL,
		PRIMARY KEY (order_id, period)
	);
	`
	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("failed to create orders tables: %w", err)
	}
	return nil
}

func createKBTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS kb_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		answer TEXT NOT NULL,
		keywords TEXT NOT NULL DEFAULT '[]',
		require_all TEXT NOT NULL DEFAULT '[]',
		require_any TEXT NOT NULL DEFAULT '[]',
		exclude_any TEXT NOT NULL DEFAULT '[]',
		min_query_len INTEGER NOT NULL DEFAULT 0,
		advanced INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1
	);
	`
	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("failed to create kb_entries table: %w", err)
	}
	return nil
}

func createProductsTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS products (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price INTEGER NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		in_stock INTEGER NOT NULL DEFAULT 1,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
	`
	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("failed to create products table: %w", err)
	}
	return nil
}
