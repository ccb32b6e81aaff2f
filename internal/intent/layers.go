package intent

import (
	"context"
	"strings"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/handoff"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// Checkout steps the state machine actively owns. Mirrors the
// checkout package's step names; kept as strings so the cascade does
// not import the machine.
var activeCheckoutSteps = map[string]struct{}{
	"ask_payment": {}, "ask_delivery": {}, "ask_address": {},
}

// candidateTTL bounds how long a previously shown product list can be
// referenced by ordinal ("เอาตัวที่สอง").
const candidateTTL = 10 * time.Minute

// PostbackLayer claims structured quick-reply and button payloads.
// Payload format: "module$action$param" with $ as delimiter.
type PostbackLayer struct{}

func (PostbackLayer) Name() string { return "postback" }

func (PostbackLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if req.Postback == "" {
		return nil, nil
	}
	parts := strings.Split(req.Postback, "$")
	params := map[string]any{"data": req.Postback, "module": parts[0]}
	if len(parts) > 1 {
		params["action"] = parts[1]
	}
	if len(parts) > 2 {
		params["param"] = parts[2]
	}
	return &Result{Intent: IntentPostback, Confidence: 1, Params: params}, nil
}

// AdminCommandLayer claims takeover commands from verified admins.
type AdminCommandLayer struct{}

func (AdminCommandLayer) Name() string { return "admin_command" }

func (AdminCommandLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if !req.IsAdmin {
		return nil, nil
	}
	if !handoff.IsAdminCommand(req.Text) && !handoff.IsResumeCommand(req.Text) {
		return nil, nil
	}
	return &Result{Intent: IntentAdminCommand, Confidence: 1}, nil
}

// MenuResetLayer claims exact reset tokens, clearing any flow.
type MenuResetLayer struct{}

func (MenuResetLayer) Name() string { return "menu_reset" }

func (MenuResetLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if !IsMenuReset(req.Text) {
		return nil, nil
	}
	return &Result{Intent: IntentMenuReset, Confidence: 1}, nil
}

// CheckoutFlowLayer gives an active checkout first refusal on the
// message. Questions and fresh product codes are released to the rest
// of the cascade; cancel keywords end the flow.
type CheckoutFlowLayer struct{}

func (CheckoutFlowLayer) Name() string { return "checkout_flow" }

func (CheckoutFlowLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if req.Session == nil {
		return nil, nil
	}
	if _, active := activeCheckoutSteps[req.Session.CheckoutStep]; !active {
		return nil, nil
	}
	if IsCancel(req.Text) {
		return &Result{Intent: IntentCheckoutCancel, Confidence: 1}, nil
	}
	// A side question or a new product mention interrupts the flow
	// without ending it; the step stays where it was.
	if IsQuestion(req.Text) {
		return nil, nil
	}
	if code, ok := ExtractProductCode(req.Text); ok {
		if current, _ := req.Session.CheckoutData["product_code"].(string); current != code {
			return nil, nil
		}
	}
	return &Result{
		Intent:     IntentCheckoutResume,
		Confidence: 0.9,
		Params:     map[string]any{"step": req.Session.CheckoutStep},
	}, nil
}

// EarlyCheckoutLayer starts a checkout when buying interest follows
// known product context, before any code is typed. Context comes from
// a recently viewed catalog product or from slots rescued earlier in
// the conversation (a product name with a quoted price).
type EarlyCheckoutLayer struct{}

func (EarlyCheckoutLayer) Name() string { return "early_checkout" }

func (EarlyCheckoutLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if req.Session == nil {
		return nil, nil
	}
	if !HasInterest(req.Text) || IsQuestion(req.Text) {
		return nil, nil
	}

	code := req.Session.LastViewedProduct
	if code == "" {
		code, _ = req.Session.Slots["product_code"].(string)
	}
	if code == "" && !hasSlotProduct(req.Session) {
		return nil, nil
	}
	return &Result{
		Intent:     IntentCheckoutStart,
		Confidence: 0.8,
		Params:     map[string]any{"product_code": code},
	}, nil
}

// hasSlotProduct reports whether the slots carry product context on
// their own: a name plus a price or quoted amount.
func hasSlotProduct(sess *storage.Session) bool {
	name, _ := sess.Slots["product_name"].(string)
	if name == "" {
		return false
	}
	if _, ok := sess.Slots["product_price"]; ok {
		return true
	}
	_, ok := sess.Slots["amount"]
	return ok
}

// GreetingLayer claims pure greetings.
type GreetingLayer struct{}

func (GreetingLayer) Name() string { return "greeting" }

func (GreetingLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if !IsGreeting(req.Text) {
		return nil, nil
	}
	return &Result{Intent: IntentGreeting, Confidence: 1}, nil
}

// ProductLookup resolves catalog codes. Implemented by the catalog
// service.
type ProductLookup interface {
	GetByCode(ctx context.Context, code string) (*storage.Product, error)
}

// ProductCodeLayer claims explicit product references: a typed code,
// or an ordinal pointing into a previously shown candidate list.
type ProductCodeLayer struct {
	Catalog ProductLookup
}

func (ProductCodeLayer) Name() string { return "product_code" }

func (l ProductCodeLayer) Match(ctx context.Context, req *Request) (*Result, error) {
	if code, ok := ExtractProductCode(req.Text); ok {
		params := map[string]any{"product_code": code}
		confidence := 0.7
		if l.Catalog != nil {
			p, err := l.Catalog.GetByCode(ctx, code)
			if err != nil {
				return nil, err
			}
			if p != nil {
				params["product_name"] = p.Name
				params["product_price"] = p.Price
				confidence = 1
			}
		}
		return &Result{Intent: IntentProductInquiry, Confidence: confidence, Params: params}, nil
	}

	// "เอาตัวที่สอง" against a recent candidate list.
	if req.Session == nil {
		return nil, nil
	}
	codes := candidateCodes(req.Session)
	if len(codes) == 0 {
		return nil, nil
	}
	idx, ok := ParseCandidateIndex(req.Text)
	if !ok {
		return nil, nil
	}
	if idx == -1 {
		idx = len(codes)
	}
	if idx < 1 || idx > len(codes) {
		return nil, nil
	}
	return &Result{
		Intent:     IntentProductInquiry,
		Confidence: 0.9,
		Params:     map[string]any{"product_code": codes[idx-1], "from_candidates": true},
	}, nil
}

// candidateCodes reads the TTL-bounded candidate list cached in
// session slots.
func candidateCodes(sess *storage.Session) []string {
	raw, ok := sess.Slots["last_product_candidates"]
	if !ok {
		return nil
	}
	if tsRaw, ok := sess.Slots["last_product_candidates_ts"].(float64); ok {
		shown := time.UnixMilli(int64(tsRaw))
		if time.Since(shown) > candidateTTL {
			return nil
		}
	}

	var codes []string
	switch v := raw.(type) {
	case []string:
		codes = v
	case []any: // JSON round-trip through the session store
		for _, item := range v {
			if s, ok := item.(string); ok {
				codes = append(codes, s)
			}
		}
	}
	return codes
}

// PurchaseLayer claims explicit purchase phrasing without a product
// reference.
type PurchaseLayer struct{}

func (PurchaseLayer) Name() string { return "purchase" }

func (PurchaseLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if !IsPurchase(req.Text) {
		return nil, nil
	}
	return &Result{Intent: IntentPurchase, Confidence: 0.8}, nil
}

// PaymentQueryLayer claims payment and installment questions.
type PaymentQueryLayer struct{}

func (PaymentQueryLayer) Name() string { return "payment_query" }

func (PaymentQueryLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if !IsPaymentQuery(req.Text) {
		return nil, nil
	}
	return &Result{Intent: IntentPaymentQuery, Confidence: 0.8}, nil
}

// ShippingQueryLayer claims delivery questions.
type ShippingQueryLayer struct{}

func (ShippingQueryLayer) Name() string { return "shipping_query" }

func (ShippingQueryLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if !IsShippingQuery(req.Text) {
		return nil, nil
	}
	return &Result{Intent: IntentShippingQuery, Confidence: 0.8}, nil
}

// OrderStatusLayer claims questions about existing orders. These are
// backend-required: the policy guard keeps the LLM from answering
// them.
type OrderStatusLayer struct{}

func (OrderStatusLayer) Name() string { return "order_status" }

func (OrderStatusLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if !IsOrderStatus(req.Text) {
		return nil, nil
	}
	return &Result{Intent: IntentOrderStatus, Confidence: 0.8}, nil
}

// StoreInfoLayer claims questions about the store itself.
type StoreInfoLayer struct{}

func (StoreInfoLayer) Name() string { return "store_info" }

func (StoreInfoLayer) Match(_ context.Context, req *Request) (*Result, error) {
	if !IsStoreInfo(req.Text) {
		return nil, nil
	}
	return &Result{Intent: IntentStoreInfo, Confidence: 0.9}, nil
}
