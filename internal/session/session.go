// Package session manages per-conversation state: collected slots,
// checkout progress, and media bookkeeping. Slots accumulate across
// messages; an incoming value never erases what a customer already
// told us unless it actually carries new content.
package session

import (
	"context"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// Store persists sessions and applies slot merge semantics.
type Store struct {
	db  *storage.DB
	log *logger.Logger
}

// NewStore creates a session store.
func NewStore(db *storage.DB, log *logger.Logger) *Store {
	return &Store{
		db:  db,
		log: log.WithModule("session"),
	}
}

// Get loads a conversation's session, returning a fresh empty one when
// none exists yet.
func (s *Store) Get(ctx context.Context, userID, chatID string) (*storage.Session, error) {
	return s.db.GetSession(ctx, userID, chatID)
}

// Put upserts the session row.
func (s *Store) Put(ctx context.Context, sess *storage.Session) error {
	return s.db.PutSession(ctx, sess)
}

// Clear resets the conversation's collected state. The session row is
// kept; only its contents are blanked.
func (s *Store) Clear(ctx context.Context, userID, chatID string) error {
	return s.db.ResetSession(ctx, userID, chatID)
}

// RemoveSlots deletes the given slot keys and saves the session. Like
// MergeSlots, failures are logged and swallowed.
func (s *Store) RemoveSlots(ctx context.Context, sess *storage.Session, keys ...string) {
	for _, k := range keys {
		delete(sess.Slots, k)
	}
	if err := s.db.PutSession(ctx, sess); err != nil {
		s.log.WithError(err).
			WithField("user_id", sess.UserID).
			Errorf("failed to persist slot removal")
	}
}

// MergeSlots merges incoming slot values into the session and saves it.
// Storage failures are logged and swallowed; slot persistence is best
// effort and must never break the reply path.
func (s *Store) MergeSlots(ctx context.Context, sess *storage.Session, incoming map[string]any) {
	sess.Slots = Merge(sess.Slots, incoming)
	if err := s.db.PutSession(ctx, sess); err != nil {
		s.log.WithError(err).
			WithField("user_id", sess.UserID).
			Errorf("failed to persist merged slots")
	}
}

// Merge combines incoming slot values into existing ones. An incoming
// key overwrites only when its value carries content: nil values and
// empty strings are skipped so later vague messages cannot erase
// collected data. Zero numbers and false are valid values.
func Merge(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok && str == "" {
			continue
		}
		merged[k] = v
	}
	return merged
}
