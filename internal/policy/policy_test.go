package policy

import (
	"context"
	"io"
	"testing"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

var testLog = logger.NewWithWriter("error", io.Discard)

func newTestGuard(t *testing.T, extraPhrases []string) (*Guard, *storage.DB) {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewGuard(db, config.DefaultTemplates(), extraPhrases, testLog, nil), db
}

func seedCatalog(t *testing.T, db *storage.DB, prices ...int) {
	t.Helper()
	products := make([]*storage.Product, len(prices))
	for i, p := range prices {
		products[i] = &storage.Product{
			Code: "PR-" + string(rune('A'+i)) + "100", Name: "สินค้า", Price: p, InStock: true,
		}
	}
	if err := db.UpsertProducts(context.Background(), products); err != nil {
		t.Fatalf("UpsertProducts() error = %v", err)
	}
}

func TestReplacePlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{
			"single key",
			"ส่ง EMS (+{ems_fee} บาท)",
			map[string]string{"ems_fee": "150"},
			"ส่ง EMS (+150 บาท)",
		},
		{
			"multiple keys",
			"{store_name} เปิด {open_hours}",
			map[string]string{"store_name": "ร้านชัยนารา", "open_hours": "9:00-18:00"},
			"ร้านชัยนารา เปิด 9:00-18:00",
		},
		{
			"unknown key stays visible",
			"สวัสดีค่ะ {store_name}",
			map[string]string{},
			"สวัสดีค่ะ {store_name}",
		},
		{
			"no placeholders",
			"ขอบคุณค่ะ",
			map[string]string{"store_name": "x"},
			"ขอบคุณค่ะ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReplacePlaceholders(tt.template, tt.vars); got != tt.want {
				t.Errorf("ReplacePlaceholders() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequiresBackend(t *testing.T) {
	g, _ := newTestGuard(t, nil)

	for _, name := range []string{"order_status", "stock_check", "tracking"} {
		if !g.RequiresBackend(name) {
			t.Errorf("RequiresBackend(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"greeting", "product_inquiry", "llm_answer", ""} {
		if g.RequiresBackend(name) {
			t.Errorf("RequiresBackend(%q) = true, want false", name)
		}
	}

	if got := g.BackendTemplate(); got != config.DefaultTemplates().BackendLookup {
		t.Errorf("BackendTemplate() = %q", got)
	}
}

func TestCheckReplyCleanPasses(t *testing.T) {
	g, db := newTestGuard(t, nil)
	seedCatalog(t, db, 7900)

	reply := "RX-7040 ราคา 7,900 บาทค่ะ สนใจรับเลยไหมคะ"
	v := g.CheckReply(context.Background(), reply, nil)
	if v.Blocked {
		t.Fatalf("clean reply blocked by rule %q", v.Rule)
	}
	if v.Text != reply {
		t.Errorf("Text = %q, want original", v.Text)
	}
}

func TestCheckReplyBlocksPhrases(t *testing.T) {
	g, _ := newTestGuard(t, []string{"free shipping worldwide"})

	tests := []struct {
		name  string
		reply string
	}{
		{"built-in phrase", "สินค้าตัวนี้มีของพร้อมส่งแน่นอนค่ะ"},
		{"guarantee claim", "ทางร้านรับประกันคืนเงินเต็มจำนวนค่ะ"},
		{"extra phrase case-insensitive", "FREE Shipping Worldwide!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.CheckReply(context.Background(), tt.reply, nil)
			if !v.Blocked || v.Rule != RuleHallucinatedProduct {
				t.Fatalf("verdict = %+v, want hallucinated_product block", v)
			}
			if v.Text != config.DefaultTemplates().Fallback {
				t.Errorf("blocked reply should downgrade to the fallback, got %q", v.Text)
			}
		})
	}
}

func TestCheckReplyBlocksUnverifiedPrice(t *testing.T) {
	g, db := newTestGuard(t, nil)
	seedCatalog(t, db, 7900, 12500)

	tests := []struct {
		name    string
		reply   string
		blocked bool
	}{
		{"catalog price", "ราคา 7,900 บาทค่ะ", false},
		{"second catalog price", "รุ่นใหญ่ 12,500 บาทค่ะ", false},
		{"invented price", "ลดเหลือ 6,500 บาทค่ะ", true},
		{"small numbers pass", "ผ่อน 3 งวด ส่งภายใน 2 วันค่ะ", false},
		{"mixed good and bad", "ราคา 7,900 บาท ค่าติดตั้ง 350 บาทค่ะ", true},
		{"no numbers", "เดี๋ยวเช็คให้นะคะ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.CheckReply(context.Background(), tt.reply, nil)
			if v.Blocked != tt.blocked {
				t.Fatalf("CheckReply(%q).Blocked = %v, want %v", tt.reply, v.Blocked, tt.blocked)
			}
			if tt.blocked {
				if v.Rule != RuleUnverifiedPrice {
					t.Errorf("Rule = %q", v.Rule)
				}
				if v.Text != config.DefaultTemplates().PriceInquiry {
					t.Errorf("Text = %q, want price inquiry template", v.Text)
				}
			}
		})
	}
}

func TestCheckReplySessionAmountsAreAllowed(t *testing.T) {
	g, db := newTestGuard(t, nil)
	seedCatalog(t, db, 7900)

	sess := &storage.Session{
		UserID: "U1",
		ChatID: "C1",
		// Amounts the bot itself produced during checkout. float64
		// mirrors what a JSON round-trip through the session store
		// yields.
		CheckoutData: map[string]any{"deposit": float64(2370), "payment_method": "deposit"},
		Slots:        map[string]any{"amount": "3,237"},
	}

	for _, reply := range []string{
		"มัดจำ 2,370 บาทค่ะ",
		"งวดแรก 3,237 บาทค่ะ",
	} {
		if v := g.CheckReply(context.Background(), reply, sess); v.Blocked {
			t.Errorf("session-quoted amount blocked: %q (rule %s)", reply, v.Rule)
		}
	}

	// Same reply without the session is an invented price.
	if v := g.CheckReply(context.Background(), "มัดจำ 2,370 บาทค่ะ", nil); !v.Blocked {
		t.Error("amount without session backing should be blocked")
	}
}
