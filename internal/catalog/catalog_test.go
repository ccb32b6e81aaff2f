package catalog

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/session"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

var testLog = logger.NewWithWriter("error", io.Discard)

const listingHTML = `
<html><body>
<div class="products">
  <div class="product-card" data-code="RX-7040">
    <img src="https://cdn.example.com/rx7040.jpg">
    <span class="product-name">กระเป๋าหนังแท้ รุ่นคลาสสิก</span>
    <span class="product-price">฿7,900</span>
  </div>
  <div class="product-card out-of-stock" data-code="RX-7050">
    <span class="product-name">กระเป๋าสะพายข้าง</span>
    <span class="product-price">4,500 บาท</span>
  </div>
  <div class="product-card">
    <span class="product-code">BK-100</span>
    <span class="product-name">เข็มขัดหนัง</span>
    <span class="product-price">890</span>
  </div>
  <div class="product-card" data-code="NO-PRICE">
    <span class="product-name">ไม่มีราคา</span>
    <span class="product-price">สอบถาม</span>
  </div>
  <div class="product-card">
    <span class="product-price">1,200</span>
  </div>
</div>
</body></html>`

func TestParseProducts(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingHTML))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	products := parseProducts(doc)
	if len(products) != 3 {
		t.Fatalf("expected 3 products, got %d", len(products))
	}

	first := products[0]
	if first.Code != "RX-7040" {
		t.Errorf("expected code RX-7040, got %q", first.Code)
	}
	if first.Name != "กระเป๋าหนังแท้ รุ่นคลาสสิก" {
		t.Errorf("unexpected name %q", first.Name)
	}
	if first.Price != 7900 {
		t.Errorf("expected price 7900, got %v", first.Price)
	}
	if first.ImageURL != "https://cdn.example.com/rx7040.jpg" {
		t.Errorf("unexpected image URL %q", first.ImageURL)
	}
	if !first.InStock {
		t.Error("expected RX-7040 to be in stock")
	}

	if products[1].Code != "RX-7050" || products[1].InStock {
		t.Errorf("expected RX-7050 out of stock, got %+v", products[1])
	}

	if products[2].Code != "BK-100" || products[2].Price != 890 {
		t.Errorf("unexpected third product %+v", products[2])
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text  string
		want  int
		valid bool
	}{
		{"฿7,900", 7900, true},
		{"4,500 บาท", 4500, true},
		{"890", 890, true},
		{"1,299.50", 1300, true},
		{"สอบถาม", 0, false},
		{"", 0, false},
		{"0", 0, false},
	}

	for _, tt := range tests {
		got, ok := parsePrice(tt.text)
		if ok != tt.valid || got != tt.want {
			t.Errorf("parsePrice(%q) = %v, %v, want %v, %v", tt.text, got, ok, tt.want, tt.valid)
		}
	}
}

func newTestService(t *testing.T) (*Service, *storage.DB) {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sessions := session.NewStore(db, testLog)
	return NewService(db, sessions, testLog), db
}

func seedProducts(t *testing.T, db *storage.DB) {
	t.Helper()
	err := db.UpsertProducts(context.Background(), []*storage.Product{
		{Code: "RX-7040", Name: "กระเป๋าหนังแท้", Price: 7900, InStock: true},
		{Code: "RX-7050", Name: "กระเป๋าสะพายข้าง", Price: 4500, InStock: true},
		{Code: "BK-100", Name: "เข็มขัดหนัง", Price: 890, InStock: false},
	})
	if err != nil {
		t.Fatalf("failed to seed products: %v", err)
	}
}

func TestServiceGetByCode(t *testing.T) {
	svc, db := newTestService(t)
	seedProducts(t, db)
	ctx := context.Background()

	p, err := svc.GetByCode(ctx, "rx-7040")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if p == nil || p.Price != 7900 {
		t.Fatalf("expected RX-7040 at 7900, got %+v", p)
	}

	missing, err := svc.GetByCode(ctx, "ZZ-999")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown code, got %+v", missing)
	}
}

func TestServiceSearchInStockOnly(t *testing.T) {
	svc, db := newTestService(t)
	seedProducts(t, db)

	results, err := svc.Search(context.Background(), "กระเป๋า", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 in-stock matches, got %d", len(results))
	}
	for _, p := range results {
		if !p.InStock {
			t.Errorf("out-of-stock product %s in results", p.Code)
		}
	}
}

func TestTrackView(t *testing.T) {
	svc, db := newTestService(t)
	seedProducts(t, db)
	ctx := context.Background()

	sessions := session.NewStore(db, testLog)
	sess, err := sessions.Get(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}

	one, _ := db.GetProductByCode(ctx, "RX-7040")
	two, _ := db.GetProductByCode(ctx, "RX-7050")
	svc.TrackView(ctx, sess, []*storage.Product{one, two})

	stored, err := sessions.Get(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	if stored.LastViewedProduct != "RX-7040" {
		t.Errorf("expected last viewed RX-7040, got %q", stored.LastViewedProduct)
	}
	candidates, ok := stored.Slots["last_product_candidates"].([]any)
	if !ok || len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %v", stored.Slots["last_product_candidates"])
	}
	if candidates[1] != "RX-7050" {
		t.Errorf("expected second candidate RX-7050, got %v", candidates[1])
	}
}

func TestTrackViewSingleProductKeepsSlots(t *testing.T) {
	svc, db := newTestService(t)
	seedProducts(t, db)
	ctx := context.Background()

	sessions := session.NewStore(db, testLog)
	sess, err := sessions.Get(ctx, "U2", "C2")
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}

	one, _ := db.GetProductByCode(ctx, "BK-100")
	svc.TrackView(ctx, sess, []*storage.Product{one})

	stored, err := sessions.Get(ctx, "U2", "C2")
	if err != nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	if stored.LastViewedProduct != "BK-100" {
		t.Errorf("expected last viewed BK-100, got %q", stored.LastViewedProduct)
	}
	if _, ok := stored.Slots["last_product_candidates"]; ok {
		t.Error("single result should not record a candidate list")
	}
}
