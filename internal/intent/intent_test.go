package intent

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/ratelimit"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

var testLog = logger.NewWithWriter("error", io.Discard)

type fakeCatalog struct {
	products map[string]*storage.Product
}

func (f *fakeCatalog) GetByCode(_ context.Context, code string) (*storage.Product, error) {
	return f.products[code], nil
}

type fakeClassifier struct {
	result *ClassifyResult
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, _ ClassifyRequest) (*ClassifyResult, error) {
	f.calls++
	return f.result, f.err
}

func newSession(step string, slots map[string]any) *storage.Session {
	if slots == nil {
		slots = map[string]any{}
	}
	return &storage.Session{
		UserID:       "U1",
		ChatID:       "C1",
		Slots:        slots,
		CheckoutStep: step,
		CheckoutData: map[string]any{},
	}
}

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"มีของไหม", true},
		{"ราคาเท่าไหร่", true},
		{"ส่งกี่วัน", true},
		{"อันนี้หรอ", true},
		{"what?", true},
		{"เอาอันนี้", false},
		{"สวัสดีครับ", false},
	}
	for _, tt := range tests {
		if got := IsQuestion(tt.text); got != tt.want {
			t.Errorf("IsQuestion(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsMenuReset(t *testing.T) {
	if !IsMenuReset("เริ่มใหม่") || !IsMenuReset("  เมนูหลัก ") || !IsMenuReset("RESET") {
		t.Error("reset tokens not recognized")
	}
	if IsMenuReset("อยากเริ่มใหม่กับเธอ") {
		t.Error("reset token inside a sentence must not match")
	}
}

func TestExtractProductCode(t *testing.T) {
	tests := []struct {
		text     string
		want     string
		wantFind bool
	}{
		{"รหัส ab-123 ครับ", "AB-123", true},
		{"code: XY99", "XY99", true},
		{"RX-7040", "RX-7040", true},
		{"สนใจ RX-7040 ครับ", "RX-7040", true},
		{"สวัสดีครับ", "", false},
		{"12345", "", false},
	}
	for _, tt := range tests {
		got, found := ExtractProductCode(tt.text)
		if found != tt.wantFind || got != tt.want {
			t.Errorf("ExtractProductCode(%q) = %q, %v, want %q, %v", tt.text, got, found, tt.want, tt.wantFind)
		}
	}
}

func TestParseCandidateIndex(t *testing.T) {
	tests := []struct {
		text    string
		want    int
		wantOK  bool
	}{
		{"2", 2, true},
		{"สอง", 2, true},
		{"ตัวแรก", 1, true},
		{"ล่าสุด", -1, true},
		{"เอาอันไหนดี", 0, false},
		{"10", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseCandidateIndex(tt.text)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseCandidateIndex(%q) = %d, %v, want %d, %v", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}

func newTestCascade(catalog ProductLookup, llm Layer) *Cascade {
	return NewDefaultCascade(testLog, catalog, llm)
}

func TestCascadeOrder(t *testing.T) {
	cat := &fakeCatalog{products: map[string]*storage.Product{
		"RX-7040": {Code: "RX-7040", Name: "วิทยุ", Price: 2500, InStock: true},
	}}
	c := newTestCascade(cat, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *Request
		want string
	}{
		{"postback wins over text", &Request{Text: "สวัสดี", Postback: "checkout$payment$1"}, IntentPostback},
		{"admin command", &Request{Text: "/admin", IsAdmin: true}, IntentAdminCommand},
		{"admin command from customer falls through", &Request{Text: "/admin"}, IntentUnknown},
		{"menu reset", &Request{Text: "เริ่มใหม่"}, IntentMenuReset},
		{"greeting", &Request{Text: "สวัสดีค่ะ"}, IntentGreeting},
		{"product code", &Request{Text: "สนใจรหัส RX-7040"}, IntentProductInquiry},
		{"purchase", &Request{Text: "สั่งซื้อยังไงครับ"}, IntentPurchase},
		{"payment query", &Request{Text: "ผ่อนได้ไหมคะ"}, IntentPaymentQuery},
		{"shipping query", &Request{Text: "ค่าส่งเท่าไหร่"}, IntentShippingQuery},
		{"order status", &Request{Text: "ของถึงไหนแล้ว"}, IntentOrderStatus},
		{"store info", &Request{Text: "ร้านเปิดกี่โมง"}, IntentStoreInfo},
		{"unknown", &Request{Text: "เมื่อวานฝนตก"}, IntentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(ctx, tt.req)
			if got.Intent != tt.want {
				t.Errorf("Classify(%q) = %q (source %s), want %q", tt.req.Text, got.Intent, got.Source, tt.want)
			}
		})
	}
}

func TestCascadeProductLookupEnrichesParams(t *testing.T) {
	cat := &fakeCatalog{products: map[string]*storage.Product{
		"RX-7040": {Code: "RX-7040", Name: "วิทยุ", Price: 2500},
	}}
	c := newTestCascade(cat, nil)

	res := c.Classify(context.Background(), &Request{Text: "RX-7040"})
	if res.Intent != IntentProductInquiry {
		t.Fatalf("Intent = %q", res.Intent)
	}
	if res.Params["product_name"] != "วิทยุ" || res.Params["product_price"] != 2500 {
		t.Errorf("Params = %v", res.Params)
	}
	if res.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1 for a known code", res.Confidence)
	}
}

func TestCheckoutFlowOwnsActiveFlow(t *testing.T) {
	c := newTestCascade(nil, nil)
	ctx := context.Background()

	sess := newSession("ask_payment", nil)
	res := c.Classify(ctx, &Request{Text: "ผ่อน", Session: sess})
	if res.Intent != IntentCheckoutResume {
		t.Errorf("Intent = %q, want %q", res.Intent, IntentCheckoutResume)
	}
	if res.Params["step"] != "ask_payment" {
		t.Errorf("step = %v", res.Params["step"])
	}
}

func TestCheckoutFlowReleasesQuestions(t *testing.T) {
	c := newTestCascade(nil, nil)

	sess := newSession("ask_delivery", nil)
	res := c.Classify(context.Background(), &Request{Text: "ค่าส่งเท่าไหร่", Session: sess})
	if res.Intent != IntentShippingQuery {
		t.Errorf("Intent = %q, want question released to cascade", res.Intent)
	}
}

func TestCheckoutFlowReleasesNewProductCode(t *testing.T) {
	c := newTestCascade(nil, nil)

	sess := newSession("ask_payment", nil)
	sess.CheckoutData["product_code"] = "AA-111"
	res := c.Classify(context.Background(), &Request{Text: "BB-222", Session: sess})
	if res.Intent != IntentProductInquiry {
		t.Errorf("Intent = %q, want new code released to cascade", res.Intent)
	}
}

func TestCheckoutFlowCancel(t *testing.T) {
	c := newTestCascade(nil, nil)

	sess := newSession("ask_address", nil)
	res := c.Classify(context.Background(), &Request{Text: "ยกเลิกดีกว่า", Session: sess})
	if res.Intent != IntentCheckoutCancel {
		t.Errorf("Intent = %q, want %q", res.Intent, IntentCheckoutCancel)
	}
}

func TestEarlyCheckoutNeedsRecentlyViewed(t *testing.T) {
	c := newTestCascade(nil, nil)
	ctx := context.Background()

	sess := newSession("", nil)
	sess.LastViewedProduct = "RX-7040"
	res := c.Classify(ctx, &Request{Text: "สนใจค่ะ เอาเลย", Session: sess})
	if res.Intent != IntentCheckoutStart {
		t.Fatalf("Intent = %q, want %q", res.Intent, IntentCheckoutStart)
	}
	if res.Params["product_code"] != "RX-7040" {
		t.Errorf("product_code = %v", res.Params["product_code"])
	}

	// Without a viewed product the same words are not enough.
	res = c.Classify(ctx, &Request{Text: "สนใจค่ะ เอาเลย", Session: newSession("", nil)})
	if res.Intent == IntentCheckoutStart {
		t.Error("interest without context must not start a checkout")
	}

	// A product quoted earlier in the chat lives only in slots, not in
	// the catalog. Interest still counts as product context.
	sess = newSession("", map[string]any{"product_name": "เคสพิเศษ", "product_price": 1200})
	res = c.Classify(ctx, &Request{Text: "สนใจ", Session: sess})
	if res.Intent != IntentCheckoutStart {
		t.Fatalf("Intent = %q, want %q", res.Intent, IntentCheckoutStart)
	}
}

func TestCandidateOrdinalSelection(t *testing.T) {
	c := newTestCascade(nil, nil)

	slots := map[string]any{
		"last_product_candidates": []any{"AA-111", "BB-222", "CC-333"},
	}
	res := c.Classify(context.Background(), &Request{Text: "เอาตัวที่สอง", Session: newSession("", slots)})
	if res.Intent != IntentProductInquiry {
		t.Fatalf("Intent = %q", res.Intent)
	}
	if res.Params["product_code"] != "BB-222" {
		t.Errorf("product_code = %v, want BB-222", res.Params["product_code"])
	}

	res = c.Classify(context.Background(), &Request{Text: "ล่าสุด", Session: newSession("", slots)})
	if res.Params["product_code"] != "CC-333" {
		t.Errorf("product_code = %v, want CC-333 for the last entry", res.Params["product_code"])
	}
}

func TestLLMLayerAnswersFallthrough(t *testing.T) {
	fc := &fakeClassifier{result: &ClassifyResult{Reply: "คำตอบจากโมเดล"}}
	c := newTestCascade(nil, NewLLMLayer(fc, nil, testLog))

	res := c.Classify(context.Background(), &Request{UserID: "U1", Text: "เมื่อวานฝนตก"})
	if res.Intent != IntentLLMAnswer {
		t.Fatalf("Intent = %q", res.Intent)
	}
	if res.Reply != "คำตอบจากโมเดล" {
		t.Errorf("Reply = %q", res.Reply)
	}
	if fc.calls != 1 {
		t.Errorf("calls = %d", fc.calls)
	}
}

func TestLLMLayerErrorResolvesToUnknown(t *testing.T) {
	fc := &fakeClassifier{err: errors.New("provider down")}
	c := newTestCascade(nil, NewLLMLayer(fc, nil, testLog))

	res := c.Classify(context.Background(), &Request{UserID: "U1", Text: "เมื่อวานฝนตก"})
	if res.Intent != IntentUnknown {
		t.Fatalf("Intent = %q, want unknown on provider error", res.Intent)
	}
	if res.Params["llm_error"] != true {
		t.Errorf("Params = %v", res.Params)
	}
}

func TestLLMLayerRateLimited(t *testing.T) {
	fc := &fakeClassifier{result: &ClassifyResult{Reply: "x"}}
	limiter := ratelimit.NewLLMRateLimiter(1, 0.001, 0, 0)
	defer limiter.Stop()
	c := newTestCascade(nil, NewLLMLayer(fc, limiter, testLog))
	ctx := context.Background()

	if res := c.Classify(ctx, &Request{UserID: "U1", Text: "เมื่อวานฝนตก"}); res.Intent != IntentLLMAnswer {
		t.Fatalf("first call should reach the model, got %q", res.Intent)
	}
	res := c.Classify(ctx, &Request{UserID: "U1", Text: "วันนี้ฝนตก"})
	if res.Intent != IntentUnknown || res.Params["rate_limited"] != true {
		t.Errorf("second call should be rate limited, got %q %v", res.Intent, res.Params)
	}
	if fc.calls != 1 {
		t.Errorf("calls = %d, want 1", fc.calls)
	}
}
