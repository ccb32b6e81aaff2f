package guard

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// Gatekeeper outcomes.
const (
	OutcomePass        = "pass"
	OutcomeSkip        = "skip"
	OutcomeGibberish   = "gibberish"
	OutcomeRapidTyping = "rapid_typing"
)

// GateDecision is the gatekeeper's verdict for one message.
type GateDecision struct {
	// Pass is true when the message should continue down the pipeline.
	Pass bool
	// PreferBuffer is true when the message should lean on the
	// debouncer rather than get its own reply.
	PreferBuffer bool
	// Outcome names the decision for metrics.
	Outcome string
	// Score is the informational score that was computed.
	Score float64
}

var (
	quickReplyPattern = regexp.MustCompile(`^[1-9]$`)

	questionMarkers = []string{"?", "？", "ไหม", "มั้ย", "หรอ", "เหรอ", "เท่าไหร่", "เท่าไร", "กี่", "ยังไง", "อะไร", "ที่ไหน", "เมื่อไหร่", "ได้ไหม"}
	commerceWords   = []string{"สนใจ", "ซื้อ", "ราคา", "สั่ง", "โอน", "ส่ง", "จัดส่ง", "ผ่อน", "มัดจำ", "สต็อก", "สินค้า", "รหัส", "รุ่น", "สี", "ไซส์", "ของ", "order", "stock", "price"}
	quickReplyWords = map[string]struct{}{
		"yes": {}, "no": {}, "ok": {}, "โอเค": {}, "ตกลง": {}, "ได้": {}, "เอา": {}, "ไม่เอา": {},
	}

	// Greetings score low on information but always deserve a reply.
	greetingWords = []string{"สวัสดี", "หวัดดี", "ดีจ้า", "hello", "hi"}

	// Conversation commands are short but never skippable.
	commandWords = map[string]struct{}{
		"เริ่มใหม่": {}, "เมนู": {}, "เมนูหลัก": {}, "กลับเมนู": {},
		"กลับเมนูหลัก": {}, "หน้าหลัก": {}, "reset": {}, "restart": {}, "menu": {},
		"ยกเลิก": {}, "ไม่เอาแล้ว": {},
	}
)

// Gatekeeper scores whether a message carries enough information to be
// worth a reply. Filler like "อืม" is skipped; filler right after the
// bot asked a question is usually an answer, so the bar drops.
type Gatekeeper struct {
	db             *storage.DB
	skipThreshold  float64
	questionWindow time.Duration
	rapidTyping    time.Duration
	log            *logger.Logger
	mtr            *metrics.Metrics
	now            func() time.Time
}

// NewGatekeeper creates a gatekeeper.
func NewGatekeeper(db *storage.DB, cfg config.BotConfig, log *logger.Logger, mtr *metrics.Metrics) *Gatekeeper {
	return &Gatekeeper{
		db:             db,
		skipThreshold:  cfg.GatekeeperSkipThreshold,
		questionWindow: cfg.GatekeeperQuestionWindow,
		rapidTyping:    cfg.GatekeeperRapidTyping,
		log:            log.WithModule("gatekeeper"),
		mtr:            mtr,
		now:            time.Now,
	}
}

// Evaluate scores the message. beforeID bounds the conversation
// context to rows stored before the current message; pass 0 when the
// current message has not been stored. Storage failures degrade to
// pass.
func (g *Gatekeeper) Evaluate(ctx context.Context, userID, chatID, text string, beforeID int64) GateDecision {
	trimmed := strings.TrimSpace(text)

	if isRepeatedRune([]rune(trimmed)) {
		return g.record(GateDecision{Outcome: OutcomeGibberish})
	}

	// Quick-reply selections are tiny but fully meaningful.
	normalized := Normalize(trimmed)
	if quickReplyPattern.MatchString(normalized) {
		return g.record(GateDecision{Pass: true, Outcome: OutcomePass, Score: 1})
	}
	if _, ok := quickReplyWords[normalized]; ok {
		return g.record(GateDecision{Pass: true, Outcome: OutcomePass, Score: 1})
	}
	for _, w := range greetingWords {
		if strings.HasPrefix(normalized, w) {
			return g.record(GateDecision{Pass: true, Outcome: OutcomePass, Score: 1})
		}
	}
	if _, ok := commandWords[normalized]; ok {
		return g.record(GateDecision{Pass: true, Outcome: OutcomePass, Score: 1})
	}

	score := informationalScore(trimmed)
	threshold := g.skipThreshold

	recent, err := g.db.RecentMessagesBefore(ctx, userID, chatID, 1, beforeID)
	if err != nil {
		g.log.WithError(err).Errorf("failed to load recent messages, passing")
		return g.record(GateDecision{Pass: true, Outcome: OutcomePass, Score: score})
	}

	if len(recent) > 0 {
		now := g.now()
		last := recent[0]
		switch last.Role {
		case storage.RoleAssistant:
			// A pending bot question lowers the bar: a terse reply is
			// probably the answer.
			if now.Sub(last.CreatedAt) < g.questionWindow && looksLikeQuestion(last.Content) {
				threshold -= 0.15
			}
		case storage.RoleUser:
			if now.Sub(last.CreatedAt) < g.rapidTyping {
				return g.record(GateDecision{Pass: true, PreferBuffer: true, Outcome: OutcomeRapidTyping, Score: score})
			}
		}
	}

	if score < threshold {
		return g.record(GateDecision{Outcome: OutcomeSkip, Score: score})
	}
	return g.record(GateDecision{Pass: true, Outcome: OutcomePass, Score: score})
}

func (g *Gatekeeper) record(d GateDecision) GateDecision {
	if g.mtr != nil {
		g.mtr.RecordGatekeeper(d.Outcome)
	}
	return d
}

// informationalScore estimates how much content a message carries,
// in [0, 1].
func informationalScore(text string) float64 {
	runes := []rune(text)
	var score float64

	if len(runes) >= 4 {
		score += 0.2
	}
	if len(runes) >= 10 {
		score += 0.1
	}
	if looksLikeQuestion(text) {
		score += 0.3
	}
	if strings.ContainsAny(text, "0123456789") {
		score += 0.2
	}
	lower := strings.ToLower(text)
	for _, w := range commerceWords {
		if strings.Contains(lower, w) {
			score += 0.3
			break
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// isRepeatedRune reports keyboard mashing: one rune five or more
// times and nothing else ("อออออ"). RE2 has no backreferences, so
// this is a plain loop.
func isRepeatedRune(runes []rune) bool {
	if len(runes) < 5 {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}

func looksLikeQuestion(text string) bool {
	for _, marker := range questionMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
