package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetSession loads the session for a conversation. Returns a fresh
// empty session when none exists yet.
func (db *DB) GetSession(ctx context.Context, userID, chatID string) (*Session, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT slots, checkout_step, checkout_data, last_media_type, last_media_at, last_viewed_product, updated_at
		FROM sessions
		WHERE user_id = ? AND chat_id = ?`,
		userID, chatID)

	var (
		slotsJSON, checkoutStep, checkoutJSON string
		lastMediaType, lastViewedProduct      string
		lastMediaAt, updatedAt                int64
	)
	err := row.Scan(&slotsJSON, &checkoutStep, &checkoutJSON, &lastMediaType, &lastMediaAt, &lastViewedProduct, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &Session{
			UserID:       userID,
			ChatID:       chatID,
			Slots:        map[string]any{},
			CheckoutData: map[string]any{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	s := &Session{
		UserID:            userID,
		ChatID:            chatID,
		CheckoutStep:      checkoutStep,
		LastMediaType:     lastMediaType,
		LastViewedProduct: lastViewedProduct,
		UpdatedAt:         fromMillis(updatedAt),
	}
	if lastMediaAt > 0 {
		s.LastMediaAt = fromMillis(lastMediaAt)
	}
	if err := json.Unmarshal([]byte(slotsJSON), &s.Slots); err != nil || s.Slots == nil {
		s.Slots = map[string]any{}
	}
	if err := json.Unmarshal([]byte(checkoutJSON), &s.CheckoutData); err != nil || s.CheckoutData == nil {
		s.CheckoutData = map[string]any{}
	}
	return s, nil
}

// PutSession upserts a session row.
func (db *DB) PutSession(ctx context.Context, s *Session) error {
	slotsJSON, err := json.Marshal(s.Slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}
	checkoutJSON, err := json.Marshal(s.CheckoutData)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout data: %w", err)
	}

	var lastMediaAt int64
	if !s.LastMediaAt.IsZero() {
		lastMediaAt = millis(s.LastMediaAt)
	}
	s.UpdatedAt = time.Now()

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO sessions (user_id, chat_id, slots, checkout_step, checkout_data,
			last_media_type, last_media_at, last_viewed_product, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, chat_id) DO UPDATE SET
			slots = excluded.slots,
			checkout_step = excluded.checkout_step,
			checkout_data = excluded.checkout_data,
			last_media_type = excluded.last_media_type,
			last_media_at = excluded.last_media_at,
			last_viewed_product = excluded.last_viewed_product,
			updated_at = excluded.updated_at`,
		s.UserID, s.ChatID, string(slotsJSON), s.CheckoutStep, string(checkoutJSON),
		s.LastMediaType, lastMediaAt, s.LastViewedProduct, millis(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// ResetSession blanks a conversation's collected state in place. The
// row itself stays; sessions are reset, never deleted, so a
// conversation keeps one continuous record.
func (db *DB) ResetSession(ctx context.Context, userID, chatID string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sessions
		SET slots = '{}', checkout_step = '', checkout_data = '{}',
			last_media_type = '', last_media_at = 0, last_viewed_product = '',
			updated_at = ?
		WHERE user_id = ? AND chat_id = ?`,
		millis(time.Now()), userID, chatID)
	if err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}
