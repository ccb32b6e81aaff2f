package guard

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

var testLog = logger.NewWithWriter("error", io.Discard)

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func storeUserMessage(t *testing.T, db *storage.DB, text string, at time.Time) int64 {
	t.Helper()
	id, err := db.InsertMessage(context.Background(), &storage.Message{
		UserID:      "U1",
		ChatID:      "C1",
		Role:        storage.RoleUser,
		Content:     text,
		BufferState: storage.BufferFlushed,
		CreatedAt:   at,
	})
	if err != nil {
		t.Fatalf("InsertMessage() error = %v", err)
	}
	return id
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"สวัสดี!!", "สวัสดี"},
		{"  Hello   World  ", "hello world"},
		{"ＡＢＣ", "abc"},
		{"ราคา 1,500 บาท", "ราคา 1500 บาท"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeliveryDedupe(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewDeliveryDedupe(db, DedupeConfig{Window: 3 * time.Second, Depth: 3}, testLog, nil)
	g.now = func() time.Time { return now }

	storeUserMessage(t, db, "สนใจสินค้า", now.Add(-time.Second))

	if !g.IsDuplicate(context.Background(), "U1", "C1", "สนใจสินค้า") {
		t.Error("identical text 1s later should be a duplicate")
	}
	if !g.IsDuplicate(context.Background(), "U1", "C1", "สนใจสินค้า!!") {
		t.Error("punctuation should not defeat dedupe")
	}
	if g.IsDuplicate(context.Background(), "U1", "C1", "สนใจสินค้าอื่น") {
		t.Error("different text is not a duplicate")
	}
	if g.IsDuplicate(context.Background(), "U2", "C1", "สนใจสินค้า") {
		t.Error("dedupe is per conversation")
	}
}

func TestDeliveryDedupeWindowExpires(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewDeliveryDedupe(db, DedupeConfig{Window: 3 * time.Second, Depth: 3}, testLog, nil)
	g.now = func() time.Time { return now }

	storeUserMessage(t, db, "สนใจสินค้า", now.Add(-5*time.Second))

	if g.IsDuplicate(context.Background(), "U1", "C1", "สนใจสินค้า") {
		t.Error("identical text outside the window is a genuine resend, not a redelivery")
	}
}

func repeatConfig(action config.RepeatAction) config.BotConfig {
	cfg := config.DefaultBotConfig()
	cfg.RepeatThreshold = 3
	cfg.RepeatWindow = 60 * time.Second
	cfg.RepeatAction = action
	return cfg
}

func TestRepeatGuardTriggersAtThreshold(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	variants := []string{"v1", "v2"}
	g := NewRepeatGuard(db, repeatConfig(config.RepeatActionTemplate), variants, testLog, nil)
	g.now = func() time.Time { return now }

	storeUserMessage(t, db, "ราคาเท่าไหร่", now.Add(-30*time.Second))

	// Only one earlier identical message: below threshold.
	v := g.Check(context.Background(), "U1", "C1", "ราคาเท่าไหร่", 0)
	if v.Repeated {
		t.Fatal("one prior identical message should not trigger")
	}

	storeUserMessage(t, db, "ราคาเท่าไหร่", now.Add(-10*time.Second))

	v = g.Check(context.Background(), "U1", "C1", "ราคาเท่าไหร่", 0)
	if !v.Repeated {
		t.Fatal("two prior identical messages should trigger at threshold 3")
	}
	if v.Action != config.RepeatActionTemplate {
		t.Errorf("Action = %q", v.Action)
	}
	if v.Reply != "v1" {
		t.Errorf("Reply = %q, want first variation", v.Reply)
	}

	// Variations rotate on the next activation.
	v = g.Check(context.Background(), "U1", "C1", "ราคาเท่าไหร่", 0)
	if v.Reply != "v2" {
		t.Errorf("Reply = %q, want second variation", v.Reply)
	}
}

func TestRepeatGuardExcludesCurrentRow(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewRepeatGuard(db, repeatConfig(config.RepeatActionTemplate), []string{"v1"}, testLog, nil)
	g.now = func() time.Time { return now }

	// The debouncer stores the current message before the guard runs;
	// a message must never count toward its own threshold.
	storeUserMessage(t, db, "ราคาเท่าไหร่", now.Add(-10*time.Second))
	second := storeUserMessage(t, db, "ราคาเท่าไหร่", now)

	v := g.Check(context.Background(), "U1", "C1", "ราคาเท่าไหร่", second)
	if v.Repeated {
		t.Fatal("second identical message must not trigger at threshold 3")
	}

	third := storeUserMessage(t, db, "ราคาเท่าไหร่", now)
	v = g.Check(context.Background(), "U1", "C1", "ราคาเท่าไหร่", third)
	if !v.Repeated {
		t.Fatal("third identical message should trigger at threshold 3")
	}
}

func TestRepeatGuardWindowExpires(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewRepeatGuard(db, repeatConfig(config.RepeatActionTemplate), nil, testLog, nil)
	g.now = func() time.Time { return now }

	storeUserMessage(t, db, "ราคาเท่าไหร่", now.Add(-2*time.Minute))
	storeUserMessage(t, db, "ราคาเท่าไหร่", now.Add(-90*time.Second))

	v := g.Check(context.Background(), "U1", "C1", "ราคาเท่าไหร่", 0)
	if v.Repeated {
		t.Error("repeats outside the window should not trigger")
	}
}

func TestRepeatGuardIgnoresAcks(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewRepeatGuard(db, repeatConfig(config.RepeatActionTemplate), nil, testLog, nil)
	g.now = func() time.Time { return now }

	storeUserMessage(t, db, "ขอบคุณค่ะ", now.Add(-5*time.Second))
	storeUserMessage(t, db, "ขอบคุณค่ะ", now.Add(-3*time.Second))

	v := g.Check(context.Background(), "U1", "C1", "ขอบคุณค่ะ", 0)
	if v.Repeated {
		t.Error("acknowledgement tokens never count as repeats")
	}
}

func TestRepeatGuardSilentAction(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewRepeatGuard(db, repeatConfig(config.RepeatActionSilent), []string{"v1"}, testLog, nil)
	g.now = func() time.Time { return now }

	storeUserMessage(t, db, "ราคาเท่าไหร่", now.Add(-10*time.Second))
	storeUserMessage(t, db, "ราคาเท่าไหร่", now.Add(-5*time.Second))

	v := g.Check(context.Background(), "U1", "C1", "ราคาเท่าไหร่", 0)
	if !v.Repeated {
		t.Fatal("should trigger")
	}
	if v.Reply != "" {
		t.Errorf("silent action must not carry a reply, got %q", v.Reply)
	}
}

func newTestGatekeeper(t *testing.T, db *storage.DB, now time.Time) *Gatekeeper {
	t.Helper()
	g := NewGatekeeper(db, config.DefaultBotConfig(), testLog, nil)
	g.now = func() time.Time { return now }
	return g
}

func TestGatekeeperGibberish(t *testing.T) {
	db := newTestDB(t)
	g := newTestGatekeeper(t, db, time.Now())

	d := g.Evaluate(context.Background(), "U1", "C1", "อออออออ", 0)
	if d.Pass {
		t.Error("repeated-rune run should be skipped")
	}
	if d.Outcome != OutcomeGibberish {
		t.Errorf("Outcome = %q", d.Outcome)
	}

	for _, text := range []string{"อออ", "สนใจ", "ababab", "ออออx"} {
		if d := g.Evaluate(context.Background(), "U1", "C1", text, 0); d.Outcome == OutcomeGibberish {
			t.Errorf("Evaluate(%q) flagged as gibberish", text)
		}
	}
}

func TestGatekeeperQuickReplyAlwaysPasses(t *testing.T) {
	db := newTestDB(t)
	g := newTestGatekeeper(t, db, time.Now())

	for _, text := range []string{"1", "3", "ok", "ตกลง", "ได้"} {
		d := g.Evaluate(context.Background(), "U1", "C1", text, 0)
		if !d.Pass {
			t.Errorf("Evaluate(%q).Pass = false, want true", text)
		}
	}
}

func TestGatekeeperPassesGreetings(t *testing.T) {
	db := newTestDB(t)
	g := newTestGatekeeper(t, db, time.Now())

	for _, text := range []string{"สวัสดีค่ะ", "หวัดดีครับ", "Hello"} {
		d := g.Evaluate(context.Background(), "U1", "C1", text, 0)
		if !d.Pass {
			t.Errorf("Evaluate(%q).Pass = false, want true", text)
		}
	}
}

func TestGatekeeperSkipsLowInformation(t *testing.T) {
	db := newTestDB(t)
	g := newTestGatekeeper(t, db, time.Now())

	d := g.Evaluate(context.Background(), "U1", "C1", "อืม", 0)
	if d.Pass {
		t.Errorf("filler should be skipped, score %v", d.Score)
	}
	if d.Outcome != OutcomeSkip {
		t.Errorf("Outcome = %q", d.Outcome)
	}
}

func TestGatekeeperPassesCommerceText(t *testing.T) {
	db := newTestDB(t)
	g := newTestGatekeeper(t, db, time.Now())

	d := g.Evaluate(context.Background(), "U1", "C1", "สนใจรุ่นนี้ ราคาเท่าไหร่คะ", 0)
	if !d.Pass {
		t.Errorf("purchase question should pass, score %v", d.Score)
	}
}

func TestGatekeeperLowersBarAfterBotQuestion(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newTestGatekeeper(t, db, now)

	// Filler alone: skipped.
	d := g.Evaluate(context.Background(), "U1", "C1", "อืมม", 0)
	if d.Pass {
		t.Fatal("filler with no pending question should be skipped")
	}

	_, err := db.InsertMessage(context.Background(), &storage.Message{
		UserID:    "U1",
		ChatID:    "C1",
		Role:      storage.RoleAssistant,
		Content:   "รับชำระแบบไหนดีคะ โอนเต็มหรือผ่อนดีไหมคะ",
		CreatedAt: now.Add(-10 * time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}

	d = g.Evaluate(context.Background(), "U1", "C1", "อืมม", 0)
	if !d.Pass {
		t.Errorf("terse reply to a pending bot question should pass, score %v", d.Score)
	}
}

func TestGatekeeperRapidTypingPrefersBuffer(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newTestGatekeeper(t, db, now)

	storeUserMessage(t, db, "สนใจสินค้า", now.Add(-time.Second))

	d := g.Evaluate(context.Background(), "U1", "C1", "ขอดูสีแดงหน่อย", 0)
	if !d.Pass || !d.PreferBuffer {
		t.Errorf("rapid typing should pass with buffer preference, got %+v", d)
	}
	if d.Outcome != OutcomeRapidTyping {
		t.Errorf("Outcome = %q", d.Outcome)
	}
}

func TestGatekeeperExcludesCurrentRow(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newTestGatekeeper(t, db, now)

	// The current message is already stored when the gatekeeper runs.
	// Reading it back as conversation context would make every message
	// look like rapid typing.
	current := storeUserMessage(t, db, "อืม", now)

	d := g.Evaluate(context.Background(), "U1", "C1", "อืม", current)
	if d.Outcome != OutcomeSkip {
		t.Errorf("Outcome = %q, want %q", d.Outcome, OutcomeSkip)
	}

	// An earlier message from the same user still counts.
	later := storeUserMessage(t, db, "ขอดูสีแดงหน่อย", now)
	d = g.Evaluate(context.Background(), "U1", "C1", "ขอดูสีแดงหน่อย", later)
	if d.Outcome != OutcomeRapidTyping {
		t.Errorf("Outcome = %q, want %q", d.Outcome, OutcomeRapidTyping)
	}
}
