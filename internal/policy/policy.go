// Package policy keeps generated replies honest. The LLM never gets
// the last word on anything the backend must vouch for: order status,
// stock, tracking, and any price the catalog cannot confirm.
package policy

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// Block rules, used as metric labels.
const (
	RuleBackendRequired     = "backend_required"
	RuleHallucinatedProduct = "hallucinated_product"
	RuleUnverifiedPrice     = "unverified_price"
)

// backendIntents must be answered from backend data, never generated.
var backendIntents = map[string]struct{}{
	"order_status": {}, "stock_check": {}, "tracking": {},
}

// defaultBlockPhrases are generated claims the store cannot stand
// behind. A reply containing one is dropped entirely.
var defaultBlockPhrases = []string{
	"มีของพร้อมส่งแน่นอน",
	"รับประกันคืนเงิน",
	"ส่งฟรีทั่วประเทศ",
	"ลดราคาพิเศษ",
	"สต็อกเหลือเยอะ",
	"การันตีของแท้",
}

var placeholderPattern = regexp.MustCompile(`\{([a-z0-9_]+)\}`)

// ReplacePlaceholders fills {key} tokens in a template. Unknown keys
// are left in place so a missing variable is visible in QA rather than
// silently blank.
func ReplacePlaceholders(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}

// Verdict is the guard's decision on a generated reply.
type Verdict struct {
	// Text is the reply to send: the original when clean, a template
	// when blocked.
	Text string
	// Blocked is true when the original was replaced.
	Blocked bool
	// Rule names what fired.
	Rule string
}

// Guard screens LLM output before it reaches the customer.
type Guard struct {
	db        *storage.DB
	templates config.Templates
	phrases   []string
	log       *logger.Logger
	mtr       *metrics.Metrics
}

// NewGuard creates a policy guard. Extra block phrases extend the
// built-in list.
func NewGuard(db *storage.DB, templates config.Templates, extraPhrases []string, log *logger.Logger, mtr *metrics.Metrics) *Guard {
	phrases := make([]string, 0, len(defaultBlockPhrases)+len(extraPhrases))
	phrases = append(phrases, defaultBlockPhrases...)
	phrases = append(phrases, extraPhrases...)
	return &Guard{
		db:        db,
		templates: templates,
		phrases:   phrases,
		log:       log.WithModule("policy"),
		mtr:       mtr,
	}
}

// RequiresBackend reports whether an intent must not be answered by
// the LLM. The router replaces those replies with the lookup template
// and hands off.
func (g *Guard) RequiresBackend(intentName string) bool {
	_, ok := backendIntents[intentName]
	return ok
}

// BackendTemplate is the canned reply for backend-required intents.
func (g *Guard) BackendTemplate() string {
	if g.mtr != nil {
		g.mtr.RecordPolicyBlock(RuleBackendRequired)
	}
	return g.templates.BackendLookup
}

// CheckReply screens a generated reply. sess may be nil; its checkout
// data extends the price allow-list with amounts the bot itself
// quoted.
func (g *Guard) CheckReply(ctx context.Context, reply string, sess *storage.Session) Verdict {
	lower := strings.ToLower(reply)
	for _, phrase := range g.phrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			g.block(RuleHallucinatedProduct)
			return Verdict{Text: g.templates.Fallback, Blocked: true, Rule: RuleHallucinatedProduct}
		}
	}

	if bad, ok := g.findUnverifiedPrice(ctx, reply, sess); ok {
		g.log.WithField("amount", bad).Warnf("generated reply quoted an unverified price")
		g.block(RuleUnverifiedPrice)
		return Verdict{Text: g.templates.PriceInquiry, Blocked: true, Rule: RuleUnverifiedPrice}
	}

	return Verdict{Text: reply}
}

// amountPattern finds standalone numbers. The leading boundary keeps
// digits inside product codes ("RX-7040") from reading as prices.
var amountPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9,.-])(\d[\d,]*)`)

// findUnverifiedPrice returns the first number ≥100 in the reply that
// no catalog or session amount can account for. Small numbers pass:
// quantities, period counts, and percentages live below 100.
func (g *Guard) findUnverifiedPrice(ctx context.Context, reply string, sess *storage.Session) (int, bool) {
	matches := amountPattern.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		return 0, false
	}

	allowed := g.allowedAmounts(ctx, sess)
	for _, m := range matches {
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil || n < 100 {
			continue
		}
		if _, ok := allowed[n]; !ok {
			return n, true
		}
	}
	return 0, false
}

// allowedAmounts builds the price allow-list: every catalog price and
// every amount the current session has legitimately produced.
func (g *Guard) allowedAmounts(ctx context.Context, sess *storage.Session) map[int]struct{} {
	allowed := map[int]struct{}{}

	prices, err := g.db.ListProductPrices(ctx)
	if err != nil {
		g.log.WithError(err).Errorf("failed to load catalog prices")
	}
	for _, p := range prices {
		allowed[p] = struct{}{}
	}

	if sess != nil {
		for _, v := range sess.CheckoutData {
			if n, ok := asInt(v); ok {
				allowed[n] = struct{}{}
			}
		}
		for _, v := range sess.Slots {
			if n, ok := asInt(v); ok {
				allowed[n] = struct{}{}
			}
		}
	}
	return allowed
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.ReplaceAll(n, ",", ""))
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func (g *Guard) block(rule string) {
	if g.mtr != nil {
		g.mtr.RecordPolicyBlock(rule)
	}
}
