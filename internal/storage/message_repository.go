package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Conversation identifies one (user, chat) message stream.
type Conversation struct {
	UserID string
	ChatID string
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// InsertMessage stores a conversation row and returns its ID.
// CreatedAt defaults to now when zero.
func (db *DB) InsertMessage(ctx context.Context, m *Message) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO messages (user_id, chat_id, role, content, buffer_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.UserID, m.ChatID, m.Role, m.Content, m.BufferState, millis(m.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %w", err)
	}
	m.ID = id
	return id, nil
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		var m Message
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.UserID, &m.ChatID, &m.Role, &m.Content, &m.BufferState, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = fromMillis(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// RecentMessages returns the newest messages for a conversation,
// newest first, up to limit.
func (db *DB) RecentMessages(ctx context.Context, userID, chatID string, limit int) ([]*Message, error) {
	return db.RecentMessagesBefore(ctx, userID, chatID, limit, 0)
}

// RecentMessagesBefore is RecentMessages bounded to rows with an ID
// below beforeID, so in-flight messages can be excluded from their own
// context lookups. A beforeID of 0 applies no bound.
func (db *DB) RecentMessagesBefore(ctx context.Context, userID, chatID string, limit int, beforeID int64) ([]*Message, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, chat_id, role, content, buffer_state, created_at
		FROM messages
		WHERE user_id = ? AND chat_id = ? AND (? <= 0 OR id < ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		userID, chatID, beforeID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// RecentUserMessages returns the newest user-role messages, newest first.
func (db *DB) RecentUserMessages(ctx context.Context, userID, chatID string, limit int) ([]*Message, error) {
	return db.RecentUserMessagesBefore(ctx, userID, chatID, limit, 0)
}

// RecentUserMessagesBefore is RecentUserMessages bounded to rows with
// an ID below beforeID. A beforeID of 0 applies no bound.
func (db *DB) RecentUserMessagesBefore(ctx context.Context, userID, chatID string, limit int, beforeID int64) ([]*Message, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, chat_id, role, content, buffer_state, created_at
		FROM messages
		WHERE user_id = ? AND chat_id = ? AND role = ? AND (? <= 0 OR id < ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		userID, chatID, RoleUser, beforeID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent user messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// PendingMessages returns a conversation's pending buffer rows,
// oldest first.
func (db *DB) PendingMessages(ctx context.Context, userID, chatID string) ([]*Message, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, chat_id, role, content, buffer_state, created_at
		FROM messages
		WHERE user_id = ? AND chat_id = ? AND buffer_state = ?
		ORDER BY created_at ASC, id ASC`,
		userID, chatID, BufferPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// MarkFlushed transitions the given rows from pending to flushed.
func (db *DB) MarkFlushed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, BufferFlushed)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET buffer_state = ? WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to mark messages flushed: %w", err)
	}
	return nil
}

// LastAssistantMessage returns the newest assistant row, or nil when the
// bot has not spoken yet.
func (db *DB) LastAssistantMessage(ctx context.Context, userID, chatID string) (*Message, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, chat_id, role, content, buffer_state, created_at
		FROM messages
		WHERE user_id = ? AND chat_id = ? AND role = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		userID, chatID, RoleAssistant)
	if err != nil {
		return nil, fmt.Errorf("failed to query last assistant message: %w", err)
	}
	defer func() { _ = rows.Close() }()
	msgs, err := scanMessages(rows)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[0], nil
}

// MessagesAfter returns messages strictly newer than the given message
// ID, oldest first, up to limit.
func (db *DB) MessagesAfter(ctx context.Context, userID, chatID string, afterID int64, limit int) ([]*Message, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, chat_id, role, content, buffer_state, created_at
		FROM messages
		WHERE user_id = ? AND chat_id = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?`,
		userID, chatID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages after: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// ConversationsWithPending lists conversations whose oldest pending row
// is older than cutoff. Used by the lazy-flush sweep.
func (db *DB) ConversationsWithPending(ctx context.Context, cutoff time.Time) ([]Conversation, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, chat_id
		FROM messages
		WHERE buffer_state = ?
		GROUP BY user_id, chat_id
		HAVING MIN(created_at) < ?`,
		BufferPending, millis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.UserID, &c.ChatID); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MessagesSince returns all messages created at or after since, oldest
// first. Used by the conversation export job.
func (db *DB) MessagesSince(ctx context.Context, since time.Time) ([]*Message, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, chat_id, role, content, buffer_state, created_at
		FROM messages
		WHERE created_at >= ?
		ORDER BY created_at ASC, id ASC`,
		millis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages since: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// DeleteMessagesBefore prunes rows older than cutoff. Returns the
// number of rows removed.
func (db *DB) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM messages WHERE created_at < ?", millis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old messages: %w", err)
	}
	return res.RowsAffected()
}
