// Package handoff tracks manual admin takeover of conversations. When
// a human admin steps in, the bot goes quiet for that conversation and
// resumes only on an explicit command or after the admin has been
// inactive past the timeout.
package handoff

import (
	"context"
	"regexp"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

var (
	adminCommandPattern  = regexp.MustCompile(`^(?:/admin|#admin|admin)(\s|$)`)
	resumeCommandPattern = regexp.MustCompile(`^(?:/bot|#bot)(\s|$)`)
)

// IsAdminCommand reports whether text is an explicit takeover command.
func IsAdminCommand(text string) bool {
	return adminCommandPattern.MatchString(text)
}

// IsResumeCommand reports whether text hands the conversation back to
// the bot.
func IsResumeCommand(text string) bool {
	return resumeCommandPattern.MatchString(text)
}

// Monitor owns the pause/resume lifecycle for admin takeovers.
type Monitor struct {
	db      *storage.DB
	timeout time.Duration
	admins  map[string]struct{}
	log     *logger.Logger
	mtr     *metrics.Metrics
	now     func() time.Time
}

// NewMonitor creates a handoff monitor. adminUserIDs lists the LINE
// user IDs allowed to issue takeover commands.
func NewMonitor(db *storage.DB, timeout time.Duration, adminUserIDs []string, log *logger.Logger, mtr *metrics.Metrics) *Monitor {
	admins := make(map[string]struct{}, len(adminUserIDs))
	for _, id := range adminUserIDs {
		admins[id] = struct{}{}
	}
	return &Monitor{
		db:      db,
		timeout: timeout,
		admins:  admins,
		log:     log.WithModule("handoff"),
		mtr:     mtr,
		now:     time.Now,
	}
}

// IsAdmin reports whether the sender is a verified admin.
func (m *Monitor) IsAdmin(userID string) bool {
	_, ok := m.admins[userID]
	return ok
}

// HandleAdminMessage records admin activity in a chat. A takeover
// command pauses the bot; a resume command unpauses it; any other
// admin message refreshes the takeover while it lasts. The message is
// stored as an audit row with an "[admin] " prefix. Returns true when
// the chat is paused after this message.
func (m *Monitor) HandleAdminMessage(ctx context.Context, adminID, chatID, text string) bool {
	now := m.now()

	if _, err := m.db.InsertMessage(ctx, &storage.Message{
		UserID:    adminID,
		ChatID:    chatID,
		Role:      storage.RoleAdmin,
		Content:   "[admin] " + text,
		CreatedAt: now,
	}); err != nil {
		m.log.WithError(err).Errorf("failed to store admin audit row")
	}

	state, err := m.db.GetHandoffState(ctx, chatID)
	if err != nil {
		m.log.WithError(err).Errorf("failed to load handoff state")
		state = &storage.HandoffState{ChatID: chatID}
	}

	switch {
	case IsResumeCommand(text):
		state.Paused = false
	case IsAdminCommand(text):
		state.Paused = true
		state.PausedAt = now
		if m.mtr != nil {
			m.mtr.RecordHandoff("command")
		}
	}
	state.LastAdminAt = now

	if err := m.db.PutHandoffState(ctx, state); err != nil {
		m.log.WithError(err).Errorf("failed to persist handoff state")
	}
	return state.Paused
}

// Pause silences the bot for a chat without an admin message, used
// when a pipeline stage escalates on its own (repeat guard, checkout
// completion). trigger names the source for metrics.
func (m *Monitor) Pause(ctx context.Context, chatID, trigger string) {
	now := m.now()
	state := &storage.HandoffState{
		ChatID:      chatID,
		Paused:      true,
		PausedAt:    now,
		LastAdminAt: now,
	}
	if err := m.db.PutHandoffState(ctx, state); err != nil {
		m.log.WithError(err).Errorf("failed to persist handoff pause")
		return
	}
	if m.mtr != nil {
		m.mtr.RecordHandoff(trigger)
	}
}

// IsPaused reports whether the bot should stay quiet in this chat. An
// expired pause is cleared lazily here. Storage failures degrade to
// "not paused" so the customer still gets replies.
func (m *Monitor) IsPaused(ctx context.Context, chatID string) bool {
	state, err := m.db.GetHandoffState(ctx, chatID)
	if err != nil {
		m.log.WithError(err).Errorf("failed to load handoff state, resuming")
		return false
	}
	if !state.Paused {
		return false
	}

	if m.now().Sub(state.LastAdminAt) >= m.timeout {
		state.Paused = false
		if err := m.db.PutHandoffState(ctx, state); err != nil {
			m.log.WithError(err).Errorf("failed to clear expired handoff")
		}
		if m.mtr != nil {
			m.mtr.RecordHandoff("expired")
		}
		return false
	}
	return true
}

// ExpireStale clears paused conversations whose admins have gone quiet
// past the timeout. Run it periodically so takeovers do not outlive
// the admin's shift.
func (m *Monitor) ExpireStale(ctx context.Context) (int64, error) {
	n, err := m.db.ExpirePausedHandoffs(ctx, m.now().Add(-m.timeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.WithField("count", n).Infof("resumed conversations after admin inactivity")
		if m.mtr != nil {
			for i := int64(0); i < n; i++ {
				m.mtr.RecordHandoff("expired")
			}
		}
	}
	return n, nil
}
