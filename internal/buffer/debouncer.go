// Package buffer debounces rapid-fire message fragments. Customers on
// chat often split one thought across several messages; the debouncer
// holds fragments as pending rows and releases them as one combined
// text once the sender pauses. Flush decisions are evaluated lazily on
// the next inbound message plus a periodic sweep, so no per-user timer
// is needed.
package buffer

import (
	"context"
	"strings"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// Flush reasons.
const (
	ReasonImmediate  = "immediate"   // no pending set, answer right away
	ReasonWindow     = "window"      // sender paused past the debounce window
	ReasonMaxWait    = "max_wait"    // pending set hit the age ceiling
	ReasonMaxPending = "max_pending" // pending set hit the fragment cap
	ReasonBypass     = "bypass"      // bypass pattern, answer immediately
	ReasonSweep      = "sweep"       // background sweep released a quiet set
)

// Result is the outcome of handling one inbound fragment.
type Result struct {
	// Buffered is true when the fragment was stored but the caller must
	// not reply yet.
	Buffered bool
	// Text is the combined text to process when Buffered is false.
	Text string
	// Reason names why the set was flushed.
	Reason string
	// FirstID is the row ID of the oldest message in the released set.
	// Downstream guards use it to exclude the current input from their
	// own history lookups. Zero when nothing was stored.
	FirstID int64
}

// Config holds the debounce thresholds.
type Config struct {
	Window     time.Duration
	MaxWait    time.Duration
	MaxPending int
}

// Debouncer coordinates pending message rows for all conversations.
type Debouncer struct {
	db  *storage.DB
	cfg Config
	log *logger.Logger
	mtr *metrics.Metrics
	now func() time.Time
}

// bypassKeywords answer immediately regardless of buffering.
var bypassKeywords = []string{"ด่วน", "urgent", "ยกเลิก"}

// New creates a debouncer.
func New(db *storage.DB, cfg Config, log *logger.Logger, mtr *metrics.Metrics) *Debouncer {
	return &Debouncer{
		db:  db,
		cfg: cfg,
		log: log.WithModule("buffer"),
		mtr: mtr,
		now: time.Now,
	}
}

// ShouldBypass reports whether a fragment must skip buffering and be
// answered immediately. Questions get instant answers; making someone
// who asked "มีของไหม?" wait out the debounce window reads as ignoring
// them.
func ShouldBypass(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, "？") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, kw := range bypassKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Handle stores an inbound fragment and decides whether to release the
// pending set. Storage failures degrade to an immediate flush of the
// bare fragment so the customer still gets an answer.
func (d *Debouncer) Handle(ctx context.Context, userID, chatID, text string) (*Result, error) {
	now := d.now()
	pending, err := d.db.PendingMessages(ctx, userID, chatID)
	if err != nil {
		d.log.WithError(err).Errorf("failed to load pending set, answering immediately")
		id := d.store(ctx, userID, chatID, text, storage.BufferFlushed, now)
		return &Result{Text: text, Reason: ReasonImmediate, FirstID: id}, nil
	}

	if ShouldBypass(text) {
		return d.flushWith(ctx, pending, userID, chatID, text, now, ReasonBypass)
	}

	if len(pending) > 0 {
		gap := now.Sub(pending[len(pending)-1].CreatedAt)
		age := now.Sub(pending[0].CreatedAt)

		switch {
		case gap >= d.cfg.Window:
			return d.flushWith(ctx, pending, userID, chatID, text, now, ReasonWindow)
		case age >= d.cfg.MaxWait:
			return d.flushWith(ctx, pending, userID, chatID, text, now, ReasonMaxWait)
		case len(pending)+1 >= d.cfg.MaxPending:
			return d.flushWith(ctx, pending, userID, chatID, text, now, ReasonMaxPending)
		default:
			d.store(ctx, userID, chatID, text, storage.BufferPending, now)
			return &Result{Buffered: true}, nil
		}
	}

	// A second rapid message right after an answered one still starts a
	// new pending set, so it can be combined with whatever follows.
	recent, err := d.db.RecentUserMessages(ctx, userID, chatID, 1)
	if err == nil && len(recent) == 1 &&
		recent[0].BufferState == storage.BufferFlushed &&
		now.Sub(recent[0].CreatedAt) < d.cfg.Window {
		d.store(ctx, userID, chatID, text, storage.BufferPending, now)
		return &Result{Buffered: true}, nil
	}

	id := d.store(ctx, userID, chatID, text, storage.BufferFlushed, now)
	d.recordFlush(ReasonImmediate)
	return &Result{Text: text, Reason: ReasonImmediate, FirstID: id}, nil
}

// FlushedConversation is one pending set released by the sweep.
type FlushedConversation struct {
	UserID string
	ChatID string
	Text   string
	// FirstID is the row ID of the oldest fragment in the set.
	FirstID int64
}

// FlushDue releases pending sets whose senders have gone quiet. Run it
// periodically; without it, a conversation that never sends another
// message would keep its last fragments pending forever.
func (d *Debouncer) FlushDue(ctx context.Context) ([]FlushedConversation, error) {
	now := d.now()
	convs, err := d.db.ConversationsWithPending(ctx, now.Add(-d.cfg.Window))
	if err != nil {
		return nil, err
	}

	var out []FlushedConversation
	for _, conv := range convs {
		pending, err := d.db.PendingMessages(ctx, conv.UserID, conv.ChatID)
		if err != nil || len(pending) == 0 {
			continue
		}
		gap := now.Sub(pending[len(pending)-1].CreatedAt)
		age := now.Sub(pending[0].CreatedAt)
		if gap < d.cfg.Window && age < d.cfg.MaxWait {
			continue
		}
		ids := make([]int64, len(pending))
		texts := make([]string, len(pending))
		for i, m := range pending {
			ids[i] = m.ID
			texts[i] = m.Content
		}
		if err := d.db.MarkFlushed(ctx, ids); err != nil {
			d.log.WithError(err).Errorf("sweep failed to mark messages flushed")
			continue
		}
		d.recordFlush(ReasonSweep)
		out = append(out, FlushedConversation{
			UserID:  conv.UserID,
			ChatID:  conv.ChatID,
			Text:    strings.Join(texts, "\n"),
			FirstID: ids[0],
		})
	}
	return out, nil
}

// flushWith releases the pending set plus the new fragment as one
// combined text, oldest first, newline-joined.
func (d *Debouncer) flushWith(ctx context.Context, pending []*storage.Message, userID, chatID, text string, now time.Time, reason string) (*Result, error) {
	texts := make([]string, 0, len(pending)+1)
	ids := make([]int64, 0, len(pending))
	for _, m := range pending {
		texts = append(texts, m.Content)
		ids = append(ids, m.ID)
	}
	texts = append(texts, text)

	firstID := d.store(ctx, userID, chatID, text, storage.BufferFlushed, now)
	if len(ids) > 0 {
		firstID = ids[0]
	}
	if err := d.db.MarkFlushed(ctx, ids); err != nil {
		d.log.WithError(err).Errorf("failed to mark pending set flushed")
	}
	d.recordFlush(reason)
	return &Result{Text: strings.Join(texts, "\n"), Reason: reason, FirstID: firstID}, nil
}

func (d *Debouncer) store(ctx context.Context, userID, chatID, text, state string, now time.Time) int64 {
	id, err := d.db.InsertMessage(ctx, &storage.Message{
		UserID:      userID,
		ChatID:      chatID,
		Role:        storage.RoleUser,
		Content:     text,
		BufferState: state,
		CreatedAt:   now,
	})
	if err != nil {
		d.log.WithError(err).Errorf("failed to store message fragment")
		return 0
	}
	return id
}

func (d *Debouncer) recordFlush(reason string) {
	if d.mtr != nil {
		d.mtr.RecordBufferFlush(reason)
	}
}
