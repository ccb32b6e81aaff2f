// Package router orchestrates the message pipeline: dedupe, admin
// takeover, debouncing, gatekeeping, repeat guard, slot rescue, intent
// cascade, and the downstream handlers (checkout, knowledge base,
// LLM), finishing with the policy guard. No component failure escapes
// as an error to the webhook; everything downgrades to a fallback
// template.
package router

import (
	"context"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/buffer"
	"github.com/chaintara/shopchat-linebot-go/internal/checkout"
	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/guard"
	"github.com/chaintara/shopchat-linebot-go/internal/handoff"
	"github.com/chaintara/shopchat-linebot-go/internal/intent"
	"github.com/chaintara/shopchat-linebot-go/internal/kb"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/policy"
	"github.com/chaintara/shopchat-linebot-go/internal/ratelimit"
	"github.com/chaintara/shopchat-linebot-go/internal/session"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// Message types the webhook forwards.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypePostback = "postback"
)

// Action kinds on a Reply.
const (
	ActionImage      = "image"
	ActionQuickReply = "quick_reply"
	ActionHandoff    = "handoff_to_admin"
)

// Inbound is one normalized webhook event.
type Inbound struct {
	UserID   string
	ChatID   string
	Type     string
	Text     string
	Postback string
	// MediaKey is the stored object key for image events, empty when
	// the media store is disabled.
	MediaKey string
}

// Action is a side effect the webhook layer executes alongside the
// reply text.
type Action struct {
	Kind     string
	ImageURL string
	Choices  []string
}

// Meta describes how the reply was produced, for logging and tests.
type Meta struct {
	Intent string
	Source string
	Stage  string
}

// Reply is the engine's answer for one inbound event. A nil Reply
// means stay silent.
type Reply struct {
	Text    string
	Actions []Action
	Meta    Meta
}

// Deps wires the pipeline components. LLM and Media may be nil.
type Deps struct {
	Config    *config.Config
	DB        *storage.DB
	Sessions  *session.Store
	Debouncer *buffer.Debouncer
	Dedupe    *guard.DeliveryDedupe
	Gate      *guard.Gatekeeper
	Repeat    *guard.RepeatGuard
	Handoff   *handoff.Monitor
	Cascade   *intent.Cascade
	LLM       intent.Layer
	Checkout  *checkout.Machine
	KB        *kb.Matcher
	Policy    *policy.Guard
	Catalog   ProductSource
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	UserLimit *ratelimit.PerKeyLimiter
}

// ProductSource is the catalog surface the engine needs.
type ProductSource interface {
	GetByCode(ctx context.Context, code string) (*storage.Product, error)
	Search(ctx context.Context, query string, limit int) ([]*storage.Product, error)
	TrackView(ctx context.Context, sess *storage.Session, products []*storage.Product)
}

// Engine runs the pipeline.
type Engine struct {
	cfg       *config.Config
	db        *storage.DB
	sessions  *session.Store
	debouncer *buffer.Debouncer
	dedupe    *guard.DeliveryDedupe
	gate      *guard.Gatekeeper
	repeat    *guard.RepeatGuard
	monitor   *handoff.Monitor
	cascade   *intent.Cascade
	llm       intent.Layer
	machine   *checkout.Machine
	kb        *kb.Matcher
	policy    *policy.Guard
	catalog   ProductSource
	userLimit *ratelimit.PerKeyLimiter
	log       *logger.Logger
	mtr       *metrics.Metrics
	now       func() time.Time
}

// New creates the pipeline engine.
func New(d Deps) *Engine {
	return &Engine{
		cfg:       d.Config,
		db:        d.DB,
		sessions:  d.Sessions,
		debouncer: d.Debouncer,
		dedupe:    d.Dedupe,
		gate:      d.Gate,
		repeat:    d.Repeat,
		monitor:   d.Handoff,
		cascade:   d.Cascade,
		llm:       d.LLM,
		machine:   d.Checkout,
		kb:        d.KB,
		policy:    d.Policy,
		catalog:   d.Catalog,
		userLimit: d.UserLimit,
		log:       d.Logger.WithModule("router"),
		mtr:       d.Metrics,
		now:       time.Now,
	}
}

// Handle runs one inbound event through the pipeline. A nil Reply with
// a nil error means the engine chose silence (duplicate delivery,
// buffered fragment, paused conversation).
func (e *Engine) Handle(ctx context.Context, in *Inbound) (*Reply, error) {
	start := e.now()
	reply := e.handle(ctx, in)
	if e.mtr != nil {
		stage := "silent"
		if reply != nil {
			stage = reply.Meta.Stage
		}
		e.mtr.RecordMessage(stage, e.now().Sub(start).Seconds())
	}
	return reply, nil
}

func (e *Engine) handle(ctx context.Context, in *Inbound) *Reply {
	log := e.log.WithFields(map[string]any{"user_id": in.UserID, "chat_id": in.ChatID})

	// Admin traffic never gets a bot reply; it drives the takeover
	// state instead.
	if e.monitor.IsAdmin(in.UserID) {
		e.monitor.HandleAdminMessage(ctx, in.UserID, in.ChatID, in.Text)
		return nil
	}

	if in.Type == TypeImage {
		return e.handleImage(ctx, in)
	}

	if in.Type == TypePostback {
		return e.handlePostback(ctx, in)
	}

	// Duplicate webhook delivery: drop silently without storing.
	if e.dedupe.IsDuplicate(ctx, in.UserID, in.ChatID, in.Text) {
		return nil
	}

	// Paused conversation: store for context, stay quiet.
	if e.monitor.IsPaused(ctx, in.ChatID) {
		e.storeUserRow(ctx, in)
		return nil
	}

	if e.userLimit != nil && !e.userLimit.Allow(in.UserID) {
		e.storeUserRow(ctx, in)
		return e.reply(e.cfg.Templates.RateLimited, "rate_limit", "", nil)
	}

	sess := e.loadSession(ctx, in.UserID, in.ChatID)

	// A bare confirmation shortly after an image refers to that image.
	if r := e.mediaFollowup(ctx, in, sess); r != nil {
		e.storeUserRow(ctx, in)
		return r
	}

	// Debounce: fragments wait for the sender to finish.
	res, err := e.debouncer.Handle(ctx, in.UserID, in.ChatID, in.Text)
	if err != nil {
		log.WithError(err).Errorf("debouncer failed, processing raw text")
		res = &buffer.Result{Text: in.Text, Reason: buffer.ReasonImmediate}
	}
	if res.Buffered {
		return nil
	}

	return e.process(ctx, in, sess, res.Text, res.FirstID)
}

// HandleFlushed runs a conversation's combined text released by the
// debounce sweep. Dedupe and buffering already happened on the way in,
// so it joins the pipeline at the gatekeeper. The caller pushes the
// reply; there is no reply token left by now.
func (e *Engine) HandleFlushed(ctx context.Context, conv buffer.FlushedConversation) (*Reply, error) {
	start := e.now()
	in := &Inbound{UserID: conv.UserID, ChatID: conv.ChatID, Type: TypeText, Text: conv.Text}

	var reply *Reply
	if !e.monitor.IsPaused(ctx, conv.ChatID) {
		sess := e.loadSession(ctx, conv.UserID, conv.ChatID)
		reply = e.process(ctx, in, sess, conv.Text, conv.FirstID)
	}

	if e.mtr != nil {
		stage := "silent"
		if reply != nil {
			stage = reply.Meta.Stage
		}
		e.mtr.RecordMessage(stage, e.now().Sub(start).Seconds())
	}
	return reply, nil
}

// process is the pipeline tail shared by live and flushed messages:
// gatekeeper, repeat guard, slot rescue, intent cascade, dispatch.
// firstID is the oldest stored row of the current input; the guards
// look only at rows before it so the input never counts as its own
// history.
func (e *Engine) process(ctx context.Context, in *Inbound, sess *storage.Session, text string, firstID int64) *Reply {
	// Gatekeeper: skip gibberish and low-information chatter.
	if gd := e.gate.Evaluate(ctx, in.UserID, in.ChatID, text, firstID); !gd.Pass {
		return nil
	}

	// Repeat guard.
	if verdict := e.repeat.Check(ctx, in.UserID, in.ChatID, text, firstID); verdict.Repeated {
		switch verdict.Action {
		case config.RepeatActionSilent:
			return nil
		case config.RepeatActionHandoff:
			e.monitor.Pause(ctx, in.ChatID, "repeat_guard")
			return e.replyWithActions(verdict.Reply, "repeat_handoff", "", nil,
				Action{Kind: ActionHandoff})
		default:
			return e.reply(verdict.Reply, "repeat_template", "", nil)
		}
	}

	// Slot rescue before anything downstream sees the text.
	if rescued := session.RescueFromText(text, sess.Slots); len(rescued) > 0 {
		e.sessions.MergeSlots(ctx, sess, rescued)
	}

	result := e.cascade.Classify(ctx, &intent.Request{
		UserID:  in.UserID,
		ChatID:  in.ChatID,
		Text:    text,
		Session: sess,
	})

	reply := e.dispatch(ctx, in, sess, text, result)
	if reply == nil {
		return nil
	}

	if reply.Meta.Stage != "kb_pending" {
		e.storeAssistantRow(ctx, in, reply.Text)
	}
	return reply
}

// dispatch turns a classified intent into a reply.
func (e *Engine) dispatch(ctx context.Context, in *Inbound, sess *storage.Session, text string, res *intent.Result) *Reply {
	switch res.Intent {
	case intent.IntentMenuReset:
		return e.handleMenuReset(ctx, in)

	case intent.IntentCheckoutCancel:
		outcome, err := e.machine.Cancel(ctx, sess)
		if err != nil {
			return e.fallback(err, "checkout_cancel")
		}
		return e.fromOutcome(ctx, in, sess, text, outcome, res)

	case intent.IntentCheckoutResume:
		outcome, err := e.machine.Handle(ctx, sess, text)
		if err != nil {
			return e.fallback(err, "checkout_resume")
		}
		return e.fromOutcome(ctx, in, sess, text, outcome, res)

	case intent.IntentCheckoutStart:
		return e.startCheckout(ctx, in, sess, text, res)

	case intent.IntentGreeting:
		greeting := policy.ReplacePlaceholders(e.cfg.Templates.Greeting,
			map[string]string{"store_name": e.cfg.StoreName})
		return e.reply(greeting, "greeting", res.Intent, res)

	case intent.IntentProductInquiry:
		// "สั่งซื้อ RX-7040" carries a code and purchase phrasing at
		// once; the code layer claims it, the purchase wins.
		if intent.IsPurchase(text) {
			return e.startCheckout(ctx, in, sess, text, res)
		}
		return e.handleProductInquiry(ctx, sess, res)

	case intent.IntentPurchase:
		if sess.LastViewedProduct != "" {
			res.Params = map[string]any{"product_code": sess.LastViewedProduct}
			return e.startCheckout(ctx, in, sess, text, res)
		}
		return e.reply(e.cfg.Templates.PriceInquiry, "purchase", res.Intent, res)

	case intent.IntentOrderStatus:
		return e.replyWithActions(e.policy.BackendTemplate(), "backend_required", res.Intent, res,
			Action{Kind: ActionHandoff})

	case intent.IntentPaymentQuery, intent.IntentShippingQuery, intent.IntentStoreInfo:
		return e.handleInfoQuery(ctx, in, sess, text, res)

	case intent.IntentLLMAnswer:
		return e.screen(ctx, res.Reply, sess, res)

	case intent.IntentAdminCommand, intent.IntentPostback:
		// Postbacks are normalized before classification; admin
		// commands were consumed at the top of the pipeline.
		return nil

	default:
		return e.handleUnknown(ctx, in, sess, text, res)
	}
}

// handleInfoQuery answers payment, shipping, and store questions from
// the knowledge base first, then canned templates, then the LLM.
func (e *Engine) handleInfoQuery(ctx context.Context, in *Inbound, sess *storage.Session, text string, res *intent.Result) *Reply {
	if r := e.tryKB(ctx, in, text, res); r != nil {
		return r
	}

	switch res.Intent {
	case intent.IntentShippingQuery:
		notice := policy.ReplacePlaceholders(e.cfg.Templates.DeliveryNotice,
			map[string]string{"ems_fee": formatInt(e.cfg.Checkout.EMSFee)})
		return e.reply(notice, "shipping_info", res.Intent, res)
	case intent.IntentPaymentQuery:
		return e.reply(paymentOptionsReply(e.cfg.Checkout), "payment_info", res.Intent, res)
	default:
		return e.askLLM(ctx, in, sess, text, res)
	}
}

// handleUnknown is the bottom of the pipeline: knowledge base, then
// the LLM chain, then the fallback template.
func (e *Engine) handleUnknown(ctx context.Context, in *Inbound, sess *storage.Session, text string, res *intent.Result) *Reply {
	if rateLimited, _ := res.Params["rate_limited"].(bool); rateLimited {
		return e.reply(e.cfg.Templates.RateLimited, "llm_rate_limit", res.Intent, res)
	}

	if r := e.tryKB(ctx, in, text, res); r != nil {
		return r
	}

	return e.askLLM(ctx, in, sess, text, res)
}

// tryKB consults the knowledge base. Returns nil on a miss. A pending
// hold with no prompt means stay silent while fragments accumulate.
func (e *Engine) tryKB(ctx context.Context, in *Inbound, text string, res *intent.Result) *Reply {
	match := e.kb.Match(ctx, in.UserID, in.ChatID, text)
	switch {
	case match.Kind == kb.KindMiss:
		return nil
	case match.Pending:
		// The matcher held the fragment; its own marker row carries
		// the context, so the prompt must not be stored as an
		// assistant row or the retry walk would stop at it.
		return e.reply(match.Answer, "kb_pending", res.Intent, res)
	case match.Kind == kb.KindPartial:
		return e.reply(match.Answer, "kb_partial", res.Intent, res)
	case match.Answer != "":
		return e.reply(match.Answer, "kb", res.Intent, res)
	default:
		return nil
	}
}

// askLLM runs the LLM layer directly, outside the cascade, so the
// knowledge base always gets first refusal.
func (e *Engine) askLLM(ctx context.Context, in *Inbound, sess *storage.Session, text string, res *intent.Result) *Reply {
	if e.llm == nil {
		return e.reply(e.cfg.Templates.Fallback, "fallback", res.Intent, res)
	}

	llmRes, err := e.llm.Match(ctx, &intent.Request{
		UserID:  in.UserID,
		ChatID:  in.ChatID,
		Text:    text,
		Session: sess,
	})
	if err != nil || llmRes == nil || llmRes.Reply == "" {
		if err != nil {
			e.log.WithError(err).Errorf("llm layer failed")
		}
		return e.reply(e.cfg.Templates.Fallback, "fallback", res.Intent, res)
	}

	// The model may reclassify into a backend-required intent.
	if e.policy.RequiresBackend(llmRes.Intent) {
		return e.replyWithActions(e.policy.BackendTemplate(), "backend_required", llmRes.Intent, llmRes,
			Action{Kind: ActionHandoff})
	}
	return e.screen(ctx, llmRes.Reply, sess, llmRes)
}

// screen runs a generated reply through the policy guard.
func (e *Engine) screen(ctx context.Context, reply string, sess *storage.Session, res *intent.Result) *Reply {
	if reply == "" {
		return e.reply(e.cfg.Templates.Fallback, "fallback", res.Intent, res)
	}
	verdict := e.policy.CheckReply(ctx, reply, sess)
	stage := "llm"
	if verdict.Blocked {
		stage = "policy_block"
	}
	return e.reply(verdict.Text, stage, res.Intent, res)
}

func (e *Engine) handleMenuReset(ctx context.Context, in *Inbound) *Reply {
	if err := e.sessions.Clear(ctx, in.UserID, in.ChatID); err != nil {
		return e.fallback(err, "menu_reset")
	}
	greeting := policy.ReplacePlaceholders(e.cfg.Templates.Greeting,
		map[string]string{"store_name": e.cfg.StoreName})
	return e.reply(greeting, "menu_reset", intent.IntentMenuReset, nil)
}

func (e *Engine) handleProductInquiry(ctx context.Context, sess *storage.Session, res *intent.Result) *Reply {
	code, _ := res.Params["product_code"].(string)
	if code == "" || e.catalog == nil {
		return e.reply(e.cfg.Templates.PriceInquiry, "product_inquiry", res.Intent, res)
	}

	product, err := e.catalog.GetByCode(ctx, code)
	if err != nil {
		return e.fallback(err, "product_inquiry")
	}
	if product == nil {
		return e.reply(e.cfg.Templates.PriceInquiry, "product_inquiry", res.Intent, res)
	}

	e.catalog.TrackView(ctx, sess, []*storage.Product{product})

	r := e.reply(productReply(product), "product_inquiry", res.Intent, res)
	if product.ImageURL != "" {
		r.Actions = append(r.Actions, Action{Kind: ActionImage, ImageURL: product.ImageURL})
	}
	if product.InStock {
		r.Actions = append(r.Actions, Action{Kind: ActionQuickReply, Choices: []string{"สั่งซื้อ " + product.Code}})
	}
	return r
}

func (e *Engine) startCheckout(ctx context.Context, in *Inbound, sess *storage.Session, text string, res *intent.Result) *Reply {
	code, _ := res.Params["product_code"].(string)

	var product *storage.Product
	if code != "" && e.catalog != nil {
		p, err := e.catalog.GetByCode(ctx, code)
		if err != nil {
			return e.fallback(err, "checkout_start")
		}
		product = p
	}
	// No catalog hit: product context rescued into slots (a named
	// product with a quoted price) still opens the flow.
	if product == nil {
		product = productFromSlots(sess)
	}
	if product == nil {
		return e.reply(e.cfg.Templates.PriceInquiry, "checkout_start", res.Intent, res)
	}

	outcome, err := e.machine.Start(ctx, sess, product)
	if err != nil {
		return e.fallback(err, "checkout_start")
	}
	return e.fromOutcome(ctx, in, sess, text, outcome, res)
}

// fromOutcome maps a checkout outcome onto a Reply. Released messages
// fall back to the knowledge base and LLM with checkout context.
func (e *Engine) fromOutcome(ctx context.Context, in *Inbound, sess *storage.Session, text string, o *checkout.Outcome, res *intent.Result) *Reply {
	if o == nil {
		return nil
	}
	if o.Released {
		return e.handleUnknown(ctx, in, sess, text, res)
	}

	stage := "checkout"
	switch {
	case o.Completed:
		stage = "checkout_complete"
	case o.Cancelled:
		stage = "checkout_cancel"
	}
	if o.Completed || o.Cancelled {
		// Stale product context must not reopen the finished flow on
		// the next "สนใจ".
		e.sessions.RemoveSlots(ctx, sess,
			session.SlotProductCode, session.SlotAmount, "product_name", "product_price")
	}

	r := e.reply(o.Reply, stage, res.Intent, res)
	if r == nil {
		return nil
	}
	if len(o.QuickReplies) > 0 {
		r.Actions = append(r.Actions, Action{Kind: ActionQuickReply, Choices: o.QuickReplies})
	}
	if o.Handoff {
		r.Actions = append(r.Actions, Action{Kind: ActionHandoff})
	}
	return r
}

// handleImage records the media marker and bookkeeping; the bot does
// not answer images directly, the follow-up path does.
func (e *Engine) handleImage(ctx context.Context, in *Inbound) *Reply {
	content := kb.ImageMarker
	if in.MediaKey != "" {
		content = kb.ImageMarker + " " + in.MediaKey
	}
	if _, err := e.db.InsertMessage(ctx, &storage.Message{
		UserID:      in.UserID,
		ChatID:      in.ChatID,
		Role:        storage.RoleUser,
		Content:     content,
		BufferState: storage.BufferFlushed,
		CreatedAt:   e.now(),
	}); err != nil {
		e.log.WithError(err).Errorf("failed to store image marker")
	}

	sess := e.loadSession(ctx, in.UserID, in.ChatID)
	sess.LastMediaType = TypeImage
	sess.LastMediaAt = e.now()
	if err := e.sessions.Put(ctx, sess); err != nil {
		e.log.WithError(err).Errorf("failed to persist media bookkeeping")
	}

	// An image during an address/payment step is almost always a slip.
	if sess.CheckoutStep != checkout.StepEmpty {
		return e.replyWithActions(e.cfg.Templates.HandoffNotice, "payment_proof", "", nil,
			Action{Kind: ActionHandoff})
	}
	return nil
}

// handlePostback normalizes structured payloads into pipeline intents.
// Payload format: "module$action$param".
func (e *Engine) handlePostback(ctx context.Context, in *Inbound) *Reply {
	res := e.cascade.Classify(ctx, &intent.Request{
		UserID:   in.UserID,
		ChatID:   in.ChatID,
		Postback: in.Postback,
	})
	if res.Intent != intent.IntentPostback {
		return nil
	}

	sess := e.loadSession(ctx, in.UserID, in.ChatID)
	module, _ := res.Params["module"].(string)
	action, _ := res.Params["action"].(string)
	param, _ := res.Params["param"].(string)

	switch {
	case module == "checkout" && action == "cancel":
		outcome, err := e.machine.Cancel(ctx, sess)
		if err != nil {
			return e.fallback(err, "postback")
		}
		return e.fromOutcome(ctx, in, sess, "", outcome, res)
	case module == "checkout" && action == "start" && param != "":
		res.Params["product_code"] = param
		return e.startCheckout(ctx, in, sess, "", res)
	case module == "product" && action == "view" && param != "":
		res.Params["product_code"] = param
		return e.handleProductInquiry(ctx, sess, res)
	case module == "menu" && action == "reset":
		return e.handleMenuReset(ctx, in)
	}
	return nil
}

// mediaFollowup routes a bare confirmation sent shortly after an image
// by checkout state: mid-checkout it reads as payment proof, otherwise
// as a product photo the staff must look at.
func (e *Engine) mediaFollowup(ctx context.Context, in *Inbound, sess *storage.Session) *Reply {
	if sess.LastMediaAt.IsZero() || !isBareConfirmation(in.Text) {
		return nil
	}
	if e.now().Sub(sess.LastMediaAt) > e.cfg.Bot.MediaFollowupWindow {
		return nil
	}

	if sess.CheckoutStep != checkout.StepEmpty {
		return e.replyWithActions(e.cfg.Templates.HandoffNotice, "payment_proof", "", nil,
			Action{Kind: ActionHandoff})
	}
	return e.replyWithActions(e.cfg.Templates.BackendLookup, "media_followup", "", nil,
		Action{Kind: ActionHandoff})
}

func (e *Engine) loadSession(ctx context.Context, userID, chatID string) *storage.Session {
	sess, err := e.sessions.Get(ctx, userID, chatID)
	if err != nil {
		e.log.WithError(err).Errorf("failed to load session, using empty")
		return &storage.Session{
			UserID:       userID,
			ChatID:       chatID,
			Slots:        map[string]any{},
			CheckoutData: map[string]any{},
		}
	}
	return sess
}

func (e *Engine) storeUserRow(ctx context.Context, in *Inbound) {
	if _, err := e.db.InsertMessage(ctx, &storage.Message{
		UserID:      in.UserID,
		ChatID:      in.ChatID,
		Role:        storage.RoleUser,
		Content:     in.Text,
		BufferState: storage.BufferFlushed,
		CreatedAt:   e.now(),
	}); err != nil {
		e.log.WithError(err).Errorf("failed to store user row")
	}
}

func (e *Engine) storeAssistantRow(ctx context.Context, in *Inbound, text string) {
	if text == "" {
		return
	}
	if _, err := e.db.InsertMessage(ctx, &storage.Message{
		UserID:    in.UserID,
		ChatID:    in.ChatID,
		Role:      storage.RoleAssistant,
		Content:   text,
		CreatedAt: e.now(),
	}); err != nil {
		e.log.WithError(err).Errorf("failed to store assistant row")
	}
}

func (e *Engine) reply(text, stage, intentName string, res *intent.Result) *Reply {
	if text == "" {
		return nil
	}
	source := ""
	if res != nil {
		source = res.Source
		if intentName == "" {
			intentName = res.Intent
		}
	}
	return &Reply{
		Text: text,
		Meta: Meta{Intent: intentName, Source: source, Stage: stage},
	}
}

func (e *Engine) replyWithActions(text, stage, intentName string, res *intent.Result, actions ...Action) *Reply {
	r := e.reply(text, stage, intentName, res)
	if r == nil {
		return nil
	}
	r.Actions = append(r.Actions, actions...)
	return r
}

// fallback logs a component failure and downgrades to the template.
func (e *Engine) fallback(err error, stage string) *Reply {
	e.log.WithError(err).WithField("stage", stage).Errorf("component failed, downgrading to fallback")
	return &Reply{
		Text: e.cfg.Templates.Fallback,
		Meta: Meta{Stage: "fallback"},
	}
}
