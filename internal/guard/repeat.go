package guard

import (
	"context"
	"sync"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// RepeatVerdict is the repeat guard's decision for one message.
type RepeatVerdict struct {
	// Repeated is true when the user crossed the repeat threshold.
	Repeated bool
	// Action is the configured response policy when Repeated is true.
	Action config.RepeatAction
	// Reply carries the rotating variation text for the template and
	// handoff actions.
	Reply string
}

// ackTokens are short acknowledgements users legitimately send many
// times. They never count as repeats.
var ackTokens = map[string]struct{}{
	"ok": {}, "โอเค": {}, "ครับ": {}, "คับ": {}, "ค่ะ": {}, "คะ": {},
	"จ้า": {}, "จ้ะ": {}, "ได้": {}, "yes": {}, "no": {}, "ขอบคุณ": {},
	"ขอบคุณค่ะ": {}, "ขอบคุณครับ": {}, "👍": {}, "🙏": {}, "😊": {},
}

// RepeatGuard detects a user sending the same message over and over,
// usually because the bot's answer did not help.
type RepeatGuard struct {
	db        *storage.DB
	threshold int
	window    time.Duration
	action    config.RepeatAction
	variants  []string
	log       *logger.Logger
	mtr       *metrics.Metrics
	now       func() time.Time

	// hits counts activations per conversation to rotate variants.
	mu   sync.Mutex
	hits map[string]int
}

// NewRepeatGuard creates a repeat guard. cfg must already be clamped.
func NewRepeatGuard(db *storage.DB, cfg config.BotConfig, variants []string, log *logger.Logger, mtr *metrics.Metrics) *RepeatGuard {
	return &RepeatGuard{
		db:        db,
		threshold: cfg.RepeatThreshold,
		window:    cfg.RepeatWindow,
		action:    cfg.RepeatAction,
		variants:  variants,
		log:       log.WithModule("repeat"),
		mtr:       mtr,
		now:       time.Now,
		hits:      map[string]int{},
	}
}

// Check inspects the user's recent messages for repeats of the current
// text. beforeID bounds the lookback to rows stored before the current
// message, so a message never counts toward its own threshold; pass 0
// when the current message has not been stored. Storage failures
// degrade to "not repeated".
func (g *RepeatGuard) Check(ctx context.Context, userID, chatID, text string, beforeID int64) RepeatVerdict {
	normalized := Normalize(text)
	if normalized == "" {
		return RepeatVerdict{}
	}
	if _, ack := ackTokens[normalized]; ack {
		return RepeatVerdict{}
	}
	// Very short texts repeat naturally in chat.
	if len([]rune(normalized)) <= 2 {
		return RepeatVerdict{}
	}

	// A user has "repeated" once threshold-1 earlier identical messages
	// exist, with a floor of 2 so a single echo never triggers.
	limit := g.threshold - 1
	if limit < 2 {
		limit = 2
	}

	recent, err := g.db.RecentUserMessagesBefore(ctx, userID, chatID, limit, beforeID)
	if err != nil {
		g.log.WithError(err).Errorf("failed to load recent messages, allowing")
		return RepeatVerdict{}
	}
	if len(recent) < limit {
		return RepeatVerdict{}
	}

	cutoff := g.now().Add(-g.window)
	for _, m := range recent {
		if m.CreatedAt.Before(cutoff) || Normalize(m.Content) != normalized {
			return RepeatVerdict{}
		}
	}

	if g.mtr != nil {
		g.mtr.RecordRepeatGuard(string(g.action))
	}

	verdict := RepeatVerdict{Repeated: true, Action: g.action}
	if g.action == config.RepeatActionSilent {
		return verdict
	}
	if len(g.variants) > 0 {
		key := userID + "|" + chatID
		g.mu.Lock()
		verdict.Reply = g.variants[g.hits[key]%len(g.variants)]
		g.hits[key]++
		g.mu.Unlock()
	}
	return verdict
}
