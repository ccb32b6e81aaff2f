// Package intent classifies inbound messages through an ordered
// cascade of rule layers. Each layer either claims the message or
// passes it down; the first claim wins. The LLM sits at the very
// bottom so deterministic rules answer everything they can first.
package intent

import (
	"context"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// Intent names produced by the cascade.
const (
	IntentPostback       = "postback"
	IntentAdminCommand   = "admin_command"
	IntentMenuReset      = "menu_reset"
	IntentCheckoutResume = "checkout_resume"
	IntentCheckoutCancel = "checkout_cancel"
	IntentCheckoutStart  = "checkout_start"
	IntentGreeting       = "greeting"
	IntentProductInquiry = "product_inquiry"
	IntentPurchase       = "purchase"
	IntentPaymentQuery   = "payment_query"
	IntentShippingQuery  = "shipping_query"
	IntentOrderStatus    = "order_status"
	IntentStoreInfo      = "store_info"
	IntentLLMAnswer      = "llm_answer"
	IntentUnknown        = "unknown"
)

// priorities resolve ties when two sources claim the same message in
// one pass. Higher wins.
var priorities = map[string]int{
	IntentAdminCommand:   100,
	IntentPostback:       90,
	IntentMenuReset:      85,
	IntentCheckoutCancel: 80,
	IntentCheckoutResume: 75,
	IntentCheckoutStart:  70,
	IntentProductInquiry: 60,
	IntentPurchase:       55,
	IntentPaymentQuery:   50,
	IntentShippingQuery:  45,
	IntentOrderStatus:    40,
	IntentStoreInfo:      35,
	IntentGreeting:       30,
	IntentLLMAnswer:      10,
	IntentUnknown:        0,
}

// Priority returns the tie-break rank for an intent name.
func Priority(intent string) int {
	return priorities[intent]
}

// Request carries one classified message and its conversation state.
type Request struct {
	UserID   string
	ChatID   string
	Text     string
	Postback string // postback payload, empty for plain text
	IsAdmin  bool
	Session  *storage.Session
}

// Result is a layer's claim on a message.
type Result struct {
	Intent     string
	Confidence float64
	Params     map[string]any
	// Reply carries a direct answer when the layer can produce one
	// itself (LLM layer); rule layers leave it empty and let the
	// router build the response.
	Reply  string
	Source string // layer name, for logging and tests
}

// Layer is one rule in the cascade.
type Layer interface {
	// Name identifies the layer in logs and Result.Source.
	Name() string

	// Match inspects the request and returns a claim, or nil to pass
	// the message down. Errors are logged and treated as no-claim so a
	// broken layer never stalls the pipeline.
	Match(ctx context.Context, req *Request) (*Result, error)
}

// Cascade dispatches a message through its layers in order.
type Cascade struct {
	layers []Layer
	log    *logger.Logger
}

// NewCascade creates an empty cascade.
func NewCascade(log *logger.Logger) *Cascade {
	return &Cascade{log: log.WithModule("intent")}
}

// Register appends a layer. Order of registration is match order.
func (c *Cascade) Register(l Layer) {
	c.layers = append(c.layers, l)
}

// NewDefaultCascade wires the standard layer order. llm may be nil
// when no provider is configured.
func NewDefaultCascade(log *logger.Logger, catalog ProductLookup, llm Layer) *Cascade {
	c := NewCascade(log)
	c.Register(PostbackLayer{})
	c.Register(AdminCommandLayer{})
	c.Register(MenuResetLayer{})
	c.Register(CheckoutFlowLayer{})
	c.Register(EarlyCheckoutLayer{})
	c.Register(GreetingLayer{})
	c.Register(ProductCodeLayer{Catalog: catalog})
	c.Register(PurchaseLayer{})
	c.Register(PaymentQueryLayer{})
	c.Register(ShippingQueryLayer{})
	c.Register(OrderStatusLayer{})
	c.Register(StoreInfoLayer{})
	if llm != nil {
		c.Register(llm)
	}
	return c
}

// Classify runs the cascade. It always returns a non-nil Result; when
// no layer claims the message the intent is unknown.
func (c *Cascade) Classify(ctx context.Context, req *Request) *Result {
	for _, l := range c.layers {
		res, err := l.Match(ctx, req)
		if err != nil {
			c.log.WithError(err).WithField("layer", l.Name()).Errorf("layer failed, skipping")
			continue
		}
		if res == nil {
			continue
		}
		if res.Source == "" {
			res.Source = l.Name()
		}
		if res.Params == nil {
			res.Params = map[string]any{}
		}
		return res
	}
	return &Result{Intent: IntentUnknown, Source: "none", Params: map[string]any{}}
}
