// Package guard filters inbound messages before they reach the intent
// pipeline: duplicate webhook redeliveries, users repeating themselves
// past a threshold, and low-information noise the bot should not burn
// an LLM call on.
package guard

import (
	"context"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
	"github.com/chaintara/shopchat-linebot-go/internal/stringutil"
)

// Normalize reduces text to its comparable form: NFC, width-folded,
// lowercased, punctuation stripped, whitespace collapsed. Both the
// dedupe and repeat guards compare on this form so "สวัสดี!!" and
// "สวัสดี" count as the same message.
func Normalize(text string) string {
	return stringutil.CollapseWhitespace(stringutil.StripPunctuation(stringutil.NormalizeForMatch(text)))
}

// DedupeConfig holds duplicate-delivery thresholds.
type DedupeConfig struct {
	Window time.Duration // identical text inside this window is a redelivery
	Depth  int           // how many recent user rows to inspect
}

// DeliveryDedupe suppresses duplicate webhook redeliveries. LINE
// redelivers events when the webhook times out; the retry carries the
// same text seconds after the original.
type DeliveryDedupe struct {
	db  *storage.DB
	cfg DedupeConfig
	log *logger.Logger
	mtr *metrics.Metrics
	now func() time.Time
}

// NewDeliveryDedupe creates a dedupe guard.
func NewDeliveryDedupe(db *storage.DB, cfg DedupeConfig, log *logger.Logger, mtr *metrics.Metrics) *DeliveryDedupe {
	return &DeliveryDedupe{
		db:  db,
		cfg: cfg,
		log: log.WithModule("dedupe"),
		mtr: mtr,
		now: time.Now,
	}
}

// IsDuplicate reports whether the text is a redelivery of a message
// already stored within the window. Storage failures degrade to false:
// answering twice beats not answering at all.
func (g *DeliveryDedupe) IsDuplicate(ctx context.Context, userID, chatID, text string) bool {
	normalized := Normalize(text)
	if normalized == "" {
		return false
	}

	recent, err := g.db.RecentUserMessages(ctx, userID, chatID, g.cfg.Depth)
	if err != nil {
		g.log.WithError(err).Errorf("failed to load recent messages, allowing")
		return false
	}

	cutoff := g.now().Add(-g.cfg.Window)
	for _, m := range recent {
		if m.CreatedAt.Before(cutoff) {
			break
		}
		if Normalize(m.Content) == normalized {
			if g.mtr != nil {
				g.mtr.RecordDedupeHit()
			}
			return true
		}
	}
	return false
}
