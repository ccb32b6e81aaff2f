package storage

import (
	"context"
	"fmt"
	"time"
)

// CreateOrder stores an order and its installment schedule atomically.
func (db *DB) CreateOrder(ctx context.Context, o *Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, chat_id, product_code, product_name, price,
			payment_method, delivery_method, delivery_fee, deposit, address, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.ChatID, o.ProductCode, o.ProductName, o.Price,
		o.PaymentMethod, o.DeliveryMethod, o.DeliveryFee, o.Deposit, o.Address, o.Status, millis(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, inst := range o.Installments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_installments (order_id, period, amount, due_at)
			VALUES (?, ?, ?, ?)`,
			o.ID, inst.Period, inst.Amount, millis(inst.DueAt))
		if err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", inst.Period, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// GetOrder loads an order with its installments.
func (db *DB) GetOrder(ctx context.Context, id string) (*Order, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, chat_id, product_code, product_name, price,
			payment_method, delivery_method, delivery_fee, deposit, address, status, created_at
		FROM orders WHERE id = ?`, id)

	var o Order
	var createdAt int64
	err := row.Scan(&o.ID, &o.UserID, &o.ChatID, &o.ProductCode, &o.ProductName, &o.Price,
		&o.PaymentMethod, &o.DeliveryMethod, &o.DeliveryFee, &o.Deposit, &o.Address, &o.Status, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	o.CreatedAt = fromMillis(createdAt)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT period, amount, due_at FROM order_installments
		WHERE order_id = ? ORDER BY period ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load installments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var inst Installment
		var dueAt int64
		if err := rows.Scan(&inst.Period, &inst.Amount, &dueAt); err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		inst.DueAt = fromMillis(dueAt)
		o.Installments = append(o.Installments, inst)
	}
	return &o, rows.Err()
}

// CountRecentPendingOrders counts orders still awaiting staff action for
// a user within the lookback window.
func (db *DB) CountRecentPendingOrders(ctx context.Context, userID string, lookback time.Duration) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE user_id = ? AND status IN (?, ?) AND created_at > ?`,
		userID, OrderStatusPendingReview, OrderStatusProcessing,
		millis(time.Now().Add(-lookback))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending orders: %w", err)
	}
	return count, nil
}

// UpdateOrderStatus moves an order to a new status.
func (db *DB) UpdateOrderStatus(ctx context.Context, id, status string) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE orders SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s not found", id)
	}
	return nil
}
