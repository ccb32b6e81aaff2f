package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetHandoffState loads the admin takeover state for a chat. Returns
// an unpaused state when none exists.
func (db *DB) GetHandoffState(ctx context.Context, chatID string) (*HandoffState, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT paused, paused_at, last_admin_at
		FROM handoff_state
		WHERE chat_id = ?`,
		chatID)

	var paused int
	var pausedAt, lastAdminAt int64
	err := row.Scan(&paused, &pausedAt, &lastAdminAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &HandoffState{ChatID: chatID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load handoff state: %w", err)
	}

	s := &HandoffState{
		ChatID: chatID,
		Paused: paused != 0,
	}
	if pausedAt > 0 {
		s.PausedAt = fromMillis(pausedAt)
	}
	if lastAdminAt > 0 {
		s.LastAdminAt = fromMillis(lastAdminAt)
	}
	return s, nil
}

// PutHandoffState upserts the admin takeover state.
func (db *DB) PutHandoffState(ctx context.Context, s *HandoffState) error {
	paused := 0
	if s.Paused {
		paused = 1
	}
	var pausedAt, lastAdminAt int64
	if !s.PausedAt.IsZero() {
		pausedAt = millis(s.PausedAt)
	}
	if !s.LastAdminAt.IsZero() {
		lastAdminAt = millis(s.LastAdminAt)
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO handoff_state (chat_id, paused, paused_at, last_admin_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			paused = excluded.paused,
			paused_at = excluded.paused_at,
			last_admin_at = excluded.last_admin_at`,
		s.ChatID, paused, pausedAt, lastAdminAt)
	if err != nil {
		return fmt.Errorf("failed to upsert handoff state: %w", err)
	}
	return nil
}

// ExpirePausedHandoffs clears paused chats whose last admin activity
// is older than cutoff. Returns the number of rows resumed.
func (db *DB) ExpirePausedHandoffs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE handoff_state
		SET paused = 0
		WHERE paused = 1 AND last_admin_at < ?`,
		millis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to expire handoffs: %w", err)
	}
	return res.RowsAffected()
}
