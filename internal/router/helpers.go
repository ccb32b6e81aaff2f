package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
	"github.com/chaintara/shopchat-linebot-go/internal/stringutil"
)

// confirmTokens are short messages that refer back to whatever the
// customer just sent, typically an image.
var confirmTokens = map[string]struct{}{
	"ใช่":      {},
	"ใช่ค่ะ":   {},
	"ใช่ครับ":  {},
	"นี่ค่ะ":   {},
	"นี่ครับ":  {},
	"ตามนั้น":  {},
	"อันนี้":   {},
	"โอนแล้ว":  {},
	"โอนแล้วค่ะ": {},
	"จ่ายแล้ว": {},
	"ส่งแล้ว":  {},
	"สลิป":     {},
	"เช็คให้หน่อย": {},
}

// isBareConfirmation reports whether text is a short confirmation with
// no content of its own.
func isBareConfirmation(text string) bool {
	norm := stringutil.CollapseWhitespace(strings.TrimSpace(text))
	if norm == "" || len([]rune(norm)) > 15 {
		return false
	}
	if _, ok := confirmTokens[norm]; ok {
		return true
	}
	for token := range confirmTokens {
		if strings.HasPrefix(norm, token) {
			return true
		}
	}
	return false
}

// productFromSlots rebuilds product context from session slots when
// the catalog has no matching row: a name (or code) plus a quoted
// price is enough to open a checkout. Returns nil when the slots
// carry no usable price.
func productFromSlots(sess *storage.Session) *storage.Product {
	name, _ := sess.Slots["product_name"].(string)
	code, _ := sess.Slots["product_code"].(string)
	price := slotInt(sess.Slots["product_price"])
	if price <= 0 {
		price = slotInt(sess.Slots["amount"])
	}
	if price <= 0 || (name == "" && code == "") {
		return nil
	}
	if name == "" {
		name = code
	}
	return &storage.Product{Code: code, Name: name, Price: price, InStock: true}
}

// slotInt reads a numeric slot value, tolerating the float64 and
// string forms JSON round-trips and rescue extraction produce.
func slotInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(strings.Split(n, ".")[0])
		if err != nil {
			return 0
		}
		return parsed
	}
	return 0
}

// productReply renders a product inquiry answer.
func productReply(p *storage.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\nราคา %s บาทค่ะ", p.Name, p.Code, formatInt(p.Price))
	if p.InStock {
		b.WriteString("\nพร้อมส่งค่ะ สนใจพิมพ์ \"สั่งซื้อ " + p.Code + "\" ได้เลยนะคะ 😊")
	} else {
		b.WriteString("\nตอนนี้สินค้าหมดชั่วคราวค่ะ เดี๋ยวแอดมินแจ้งเมื่อของเข้านะคะ 🙏")
	}
	return b.String()
}

// paymentOptionsReply summarizes the store's payment methods from the
// checkout policy.
func paymentOptionsReply(pol config.CheckoutPolicy) string {
	return fmt.Sprintf(
		"ชำระเงินได้ 3 แบบค่ะ\n1. โอนเต็มจำนวน\n2. ผ่อนชำระ %d งวด (ค่าธรรมเนียม %.0f%%)\n3. มัดจำ %.0f%% ส่วนที่เหลือชำระก่อนจัดส่ง\nสนใจแบบไหนแจ้งได้เลยนะคะ 😊",
		pol.InstallmentPeriods, pol.InstallmentFeeRate*100, pol.DepositPercent)
}

// formatInt renders an amount with thousands separators.
func formatInt(amount int) string {
	s := fmt.Sprintf("%d", amount)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
