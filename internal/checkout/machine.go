// Package checkout drives the payment → delivery → address flow. Flow
// state lives on the session so a checkout survives restarts and slow
// conversations; every transition is persisted before the reply goes
// out.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/intent"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/policy"
	"github.com/chaintara/shopchat-linebot-go/internal/session"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// Checkout steps, persisted on the session. Completion and
// cancellation reset the step to empty so new inquiries start clean.
const (
	StepEmpty       = ""
	StepAskPayment  = "ask_payment"
	StepAskDelivery = "ask_delivery"
	StepAskAddress  = "ask_address"
)

// Payment methods.
const (
	PaymentFull        = "full"
	PaymentInstallment = "installment"
	PaymentDeposit     = "deposit"
)

// Delivery methods.
const (
	DeliveryPickup = "pickup"
	DeliveryEMS    = "ems"
	DeliveryGrab   = "grab"
)

// Outcome is the machine's response to one message.
type Outcome struct {
	Reply        string
	QuickReplies []string
	// Handoff signals the router to emit a handoff action (order
	// created, admin must confirm payment).
	Handoff bool
	// Released means the message is not the machine's to answer; the
	// router forwards it to the LLM with checkout context.
	Released bool
	// Completed/Cancelled mark terminal transitions.
	Completed bool
	Cancelled bool
	// Order is set when a completion created one.
	Order *storage.Order
}

// Machine is the checkout state machine.
type Machine struct {
	db       *storage.DB
	sessions *session.Store
	policy   config.CheckoutPolicy
	log      *logger.Logger
	mtr      *metrics.Metrics
	now      func() time.Time
}

// NewMachine creates a checkout machine.
func NewMachine(db *storage.DB, sessions *session.Store, pol config.CheckoutPolicy, log *logger.Logger, mtr *metrics.Metrics) *Machine {
	return &Machine{
		db:       db,
		sessions: sessions,
		policy:   pol,
		log:      log.WithModule("checkout"),
		mtr:      mtr,
		now:      time.Now,
	}
}

// Start opens a checkout for a product and asks for the payment
// method. The product must carry a price; starting a flow on stale
// context would quote garbage.
func (m *Machine) Start(ctx context.Context, sess *storage.Session, product *storage.Product) (*Outcome, error) {
	if product == nil || product.Price <= 0 {
		return &Outcome{Released: true}, nil
	}

	sess.CheckoutData = map[string]any{
		"product_code":  product.Code,
		"product_name":  product.Name,
		"product_price": product.Price,
	}
	m.transition(sess, StepAskPayment)
	if err := m.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}

	deposit := int(float64(product.Price) * m.policy.DepositPercent / 100)
	reply := fmt.Sprintf(
		"%s ราคา %s บาท\nรับชำระแบบไหนดีคะ\n1. โอนเต็มจำนวน\n2. ผ่อน %d งวด\n3. มัดจำ %d%% (%s บาท)",
		product.Name, formatBaht(product.Price),
		m.policy.InstallmentPeriods,
		int(m.policy.DepositPercent), formatBaht(deposit))
	return &Outcome{Reply: reply, QuickReplies: []string{"1", "2", "3"}}, nil
}

// Handle routes a message to the current step. Call only when the
// session carries an active step.
func (m *Machine) Handle(ctx context.Context, sess *storage.Session, text string) (*Outcome, error) {
	if intent.IsCancel(text) {
		return m.Cancel(ctx, sess)
	}
	if !m.hasValidProductContext(sess) {
		// Stale or cleared product context: abandon the flow instead
		// of asking payment questions about nothing.
		m.reset(sess)
		if err := m.sessions.Put(ctx, sess); err != nil {
			m.log.WithError(err).Errorf("failed to clear stale checkout")
		}
		return &Outcome{Released: true}, nil
	}

	switch sess.CheckoutStep {
	case StepAskPayment:
		return m.handlePayment(ctx, sess, text)
	case StepAskDelivery:
		return m.handleDelivery(ctx, sess, text)
	case StepAskAddress:
		return m.handleAddress(ctx, sess, text)
	default:
		return &Outcome{Released: true}, nil
	}
}

// Cancel ends the flow from any step and clears checkout slots.
func (m *Machine) Cancel(ctx context.Context, sess *storage.Session) (*Outcome, error) {
	from := sess.CheckoutStep
	m.reset(sess)
	if err := m.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	if m.mtr != nil && from != StepEmpty {
		m.mtr.RecordCheckoutTransition(from, "cancelled")
	}
	return &Outcome{
		Cancelled:    true,
		Reply:        "ยกเลิกรายการให้แล้วนะคะ สนใจสินค้าตัวไหนสอบถามได้เลยค่ะ 😊",
		QuickReplies: []string{"เมนูหลัก"},
	}, nil
}

func (m *Machine) handlePayment(ctx context.Context, sess *storage.Session, text string) (*Outcome, error) {
	method := parsePaymentMethod(text)
	if method == "" {
		return &Outcome{
			Reply:        "เลือกวิธีชำระเงินได้เลยค่ะ\n1. โอนเต็มจำนวน\n2. ผ่อนชำระ\n3. มัดจำ",
			QuickReplies: []string{"1", "2", "3"},
		}, nil
	}

	price := m.productPrice(sess)
	sess.CheckoutData["payment_method"] = method

	var prefix string
	switch method {
	case PaymentInstallment:
		plan := BuildPlan(price, m.policy, m.now())
		prefix = plan.Describe() + "\n\n"
	case PaymentDeposit:
		deposit := int(float64(price) * m.policy.DepositPercent / 100)
		sess.CheckoutData["deposit"] = deposit
		prefix = fmt.Sprintf("มัดจำ %s บาท ส่วนที่เหลือชำระก่อนจัดส่งค่ะ\n\n", formatBaht(deposit))
	}

	m.transition(sess, StepAskDelivery)
	if err := m.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}

	reply := prefix + policy.ReplacePlaceholders(
		"จัดส่งแบบไหนดีคะ\n1. รับหน้าร้าน\n2. ส่ง EMS (+{ems_fee} บาท)\n3. Grab/ส่งด่วน (เก็บเงินปลายทาง)",
		map[string]string{"ems_fee": formatBaht(m.policy.EMSFee)})
	return &Outcome{Reply: reply, QuickReplies: []string{"1", "2", "3"}}, nil
}

func (m *Machine) handleDelivery(ctx context.Context, sess *storage.Session, text string) (*Outcome, error) {
	method, fee, ok := m.parseDeliveryMethod(text)
	if !ok {
		// Bare "ส่ง" without a carrier: clarify, state unchanged.
		if strings.Contains(text, "ส่ง") {
			return &Outcome{
				Reply:        "ส่งแบบไหนดีคะ EMS หรือ Grab คะ\n2. ส่ง EMS\n3. Grab/ส่งด่วน",
				QuickReplies: []string{"2", "3"},
			}, nil
		}
		return &Outcome{
			Reply:        "เลือกวิธีจัดส่งได้เลยค่ะ\n1. รับหน้าร้าน\n2. ส่ง EMS\n3. Grab/ส่งด่วน",
			QuickReplies: []string{"1", "2", "3"},
		}, nil
	}

	sess.CheckoutData["delivery_method"] = method
	sess.CheckoutData["delivery_fee"] = fee

	if method == DeliveryPickup {
		// No address needed: the order completes here.
		return m.complete(ctx, sess, "")
	}

	m.transition(sess, StepAskAddress)
	if err := m.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}

	note := ""
	if method == DeliveryGrab {
		note = " (เก็บเงินปลายทางค่ะ)"
	}
	return &Outcome{
		Reply: "รบกวนขอชื่อผู้รับ เบอร์โทร และที่อยู่จัดส่งด้วยนะคะ" + note,
	}, nil
}

func (m *Machine) handleAddress(ctx context.Context, sess *storage.Session, text string) (*Outcome, error) {
	if !LooksLikeAddress(text) {
		// Conversation, not an address fragment: let the LLM answer
		// with checkout context and re-prompt.
		return &Outcome{Released: true}, nil
	}

	buffer, _ := sess.CheckoutData["address_buffer"].(string)
	if buffer != "" {
		buffer += "\n"
	}
	buffer += strings.TrimSpace(text)
	sess.CheckoutData["address_buffer"] = buffer

	if !AcceptAddress(buffer, m.policy) {
		if err := m.sessions.Put(ctx, sess); err != nil {
			return nil, err
		}
		missing := InspectAddress(buffer).Missing()
		return &Outcome{
			Reply: "ขอบคุณค่ะ ขาดอีกนิดเดียว รบกวนขอ" + strings.Join(missing, " และ ") + "ด้วยนะคะ",
		}, nil
	}

	return m.complete(ctx, sess, buffer)
}

// complete creates the order and closes the flow. A short lookback
// guards against duplicate orders from rapid repeat taps on the same
// quick reply.
func (m *Machine) complete(ctx context.Context, sess *storage.Session, address string) (*Outcome, error) {
	dupes, err := m.db.CountRecentPendingOrders(ctx, sess.UserID, time.Minute)
	if err != nil {
		m.log.WithError(err).Errorf("duplicate-order check failed, continuing")
	}
	if dupes > 0 {
		m.reset(sess)
		if err := m.sessions.Put(ctx, sess); err != nil {
			return nil, err
		}
		return &Outcome{
			Completed: true,
			Reply:     "รับออเดอร์ไว้แล้วนะคะ แอดมินกำลังตรวจสอบ เดี๋ยวติดต่อกลับค่ะ 🙏",
		}, nil
	}

	from := sess.CheckoutStep
	price := m.productPrice(sess)
	method, _ := sess.CheckoutData["payment_method"].(string)
	delivery, _ := sess.CheckoutData["delivery_method"].(string)
	fee := m.intData(sess, "delivery_fee")

	order := &storage.Order{
		ID:             "ORD-" + strings.ToUpper(uuid.NewString()[:8]),
		UserID:         sess.UserID,
		ChatID:         sess.ChatID,
		ProductCode:    m.stringData(sess, "product_code"),
		ProductName:    m.stringData(sess, "product_name"),
		Price:          price,
		PaymentMethod:  method,
		DeliveryMethod: delivery,
		DeliveryFee:    fee,
		Deposit:        m.intData(sess, "deposit"),
		Address:        address,
		Status:         storage.OrderStatusPendingReview,
		CreatedAt:      m.now(),
	}
	if method == PaymentInstallment {
		order.Installments = BuildPlan(price, m.policy, m.now()).Periods
	}

	if err := m.db.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	m.reset(sess)
	if err := m.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}

	if m.mtr != nil {
		m.mtr.RecordCheckoutTransition(from, "completed")
		m.mtr.RecordOrder(method)
	}

	return &Outcome{
		Completed: true,
		Handoff:   true,
		Order:     order,
		Reply:     m.summarize(order),
	}, nil
}

func (m *Machine) summarize(o *storage.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "สรุปออเดอร์ %s\n%s (%s)\nยอดสินค้า %s บาท\n", o.ID, o.ProductName, o.ProductCode, formatBaht(o.Price))
	switch o.PaymentMethod {
	case PaymentInstallment:
		fmt.Fprintf(&b, "ชำระแบบผ่อน %d งวด\n", len(o.Installments))
	case PaymentDeposit:
		fmt.Fprintf(&b, "มัดจำ %s บาท\n", formatBaht(o.Deposit))
	default:
		b.WriteString("โอนเต็มจำนวน\n")
	}
	switch o.DeliveryMethod {
	case DeliveryPickup:
		b.WriteString("รับหน้าร้าน\n")
	case DeliveryEMS:
		fmt.Fprintf(&b, "จัดส่ง EMS (+%s บาท)\n", formatBaht(o.DeliveryFee))
	case DeliveryGrab:
		b.WriteString("จัดส่ง Grab เก็บเงินปลายทาง\n")
	}
	b.WriteString("แอดมินจะตรวจสอบและยืนยันออเดอร์ให้เร็วที่สุดนะคะ ขอบคุณค่ะ 🙏")
	return b.String()
}

func parsePaymentMethod(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	case normalized == "1" || strings.Contains(normalized, "เต็ม") || strings.Contains(normalized, "โอน"):
		return PaymentFull
	case normalized == "2" || strings.Contains(normalized, "ผ่อน"):
		return PaymentInstallment
	case normalized == "3" || strings.Contains(normalized, "มัดจำ"):
		return PaymentDeposit
	}
	return ""
}

func (m *Machine) parseDeliveryMethod(text string) (string, int, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	case normalized == "1" || strings.Contains(normalized, "รับเอง") || strings.Contains(normalized, "หน้าร้าน") || strings.Contains(normalized, "pickup"):
		return DeliveryPickup, m.policy.PickupFee, true
	case normalized == "2" || strings.Contains(normalized, "ems") || strings.Contains(normalized, "ไปรษณีย์"):
		return DeliveryEMS, m.policy.EMSFee, true
	case normalized == "3" || strings.Contains(normalized, "grab") || strings.Contains(normalized, "ส่งด่วน") || strings.Contains(normalized, "แกร็บ"):
		return DeliveryGrab, m.policy.GrabFee, true
	}
	return "", 0, false
}

// hasValidProductContext guards against entering delivery/address
// steps on cleared product data.
func (m *Machine) hasValidProductContext(sess *storage.Session) bool {
	if m.stringData(sess, "product_name") != "" {
		return true
	}
	return m.productPrice(sess) > 0
}

func (m *Machine) productPrice(sess *storage.Session) int {
	return m.intData(sess, "product_price")
}

// intData reads a numeric checkout value, tolerating the float64 that
// JSON round-trips through the session store produce.
func (m *Machine) intData(sess *storage.Session, key string) int {
	switch v := sess.CheckoutData[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (m *Machine) stringData(sess *storage.Session, key string) string {
	s, _ := sess.CheckoutData[key].(string)
	return s
}

func (m *Machine) transition(sess *storage.Session, to string) {
	if m.mtr != nil {
		from := sess.CheckoutStep
		if from == StepEmpty {
			from = "empty"
		}
		m.mtr.RecordCheckoutTransition(from, to)
	}
	sess.CheckoutStep = to
}

func (m *Machine) reset(sess *storage.Session) {
	sess.CheckoutStep = StepEmpty
	sess.CheckoutData = map[string]any{}
}
