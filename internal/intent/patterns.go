package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/chaintara/shopchat-linebot-go/internal/stringutil"
)

// ProductCodePattern matches bare catalog codes like "RX-7040" or
// "AB123". Shared with the checkout interruption guard.
var ProductCodePattern = regexp.MustCompile(`^[A-Z]{2,5}-?[A-Z0-9]{2,5}-?\d{0,5}$`)

var (
	labeledCodePattern  = regexp.MustCompile(`(?i)(?:รหัส|โค้ด|code|sku|serial)\s*[:#]?\s*([A-Za-z0-9\-_./]+)`)
	embeddedCodePattern = regexp.MustCompile(`\b([A-Z]{2,5}-?[A-Z0-9]{2,5}-?\d{0,5})\b`)

	questionSuffixes = []string{"?", "？", "ไหม", "มั้ย", "หรอ", "เหรอ", "หรือเปล่า", "รึเปล่า"}
	questionWords    = []string{"เท่าไหร่", "เท่าไร", "กี่", "ยังไง", "อย่างไร", "อะไร", "ที่ไหน", "เมื่อไหร่", "ทำไม"}
)

// IsQuestion reports whether text reads as a question.
func IsQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, s := range questionSuffixes {
		if strings.HasSuffix(trimmed, s) {
			return true
		}
	}
	return stringutil.ContainsAny(trimmed, questionWords)
}

var cancelKeywords = []string{
	"ยกเลิก", "ไม่เอาแล้ว", "ไม่ซื้อแล้ว", "ไม่สั่งแล้ว", "พอก่อน", "cancel",
}

// IsCancel reports whether text cancels the current flow.
func IsCancel(text string) bool {
	return stringutil.ContainsAny(strings.ToLower(text), cancelKeywords)
}

// menuResetTokens reset the conversation to the main menu. Exact match
// on normalized text only; "เริ่มใหม่" buried in a sentence is not a
// reset.
var menuResetTokens = map[string]struct{}{
	"เริ่มใหม่": {}, "เมนู": {}, "เมนูหลัก": {}, "กลับเมนู": {},
	"กลับเมนูหลัก": {}, "หน้าหลัก": {}, "reset": {}, "restart": {}, "menu": {},
}

// IsMenuReset reports whether the whole message is a reset token.
func IsMenuReset(text string) bool {
	_, ok := menuResetTokens[stringutil.NormalizeForMatch(text)]
	return ok
}

var greetingTokens = map[string]struct{}{
	"สวัสดี": {}, "สวัสดีครับ": {}, "สวัสดีค่ะ": {}, "สวัสดีคะ": {},
	"หวัดดี": {}, "หวัดดีครับ": {}, "หวัดดีค่ะ": {}, "ดีครับ": {}, "ดีค่ะ": {},
	"hello": {}, "hi": {}, "hey": {},
}

// IsGreeting reports whether the whole message is a greeting.
func IsGreeting(text string) bool {
	_, ok := greetingTokens[stringutil.NormalizeForMatch(text)]
	return ok
}

var interestKeywords = []string{"สนใจ", "เอา", "ซื้อ", "ต้องการ", "จัดเลย", "รับ"}

// HasInterest reports whether text signals buying interest.
func HasInterest(text string) bool {
	return stringutil.ContainsAny(text, interestKeywords)
}

var purchasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`สั่ง(?:ซื้อ|ของ)?`),
	regexp.MustCompile(`อยากได้`),
	regexp.MustCompile(`ขอ(?:ซื้อ|สั่ง)`),
	regexp.MustCompile(`รับ.{0,10}(?:ชิ้น|ตัว|อัน|เครื่อง)`),
	regexp.MustCompile(`(?i)\border\b`),
}

// IsPurchase reports whether text is an explicit purchase request.
func IsPurchase(text string) bool {
	for _, p := range purchasePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

var paymentKeywords = []string{
	"ผ่อน", "มัดจำ", "โอน", "ชำระ", "จ่ายยังไง", "จ่ายเงิน", "วิธีจ่าย",
	"บัตรเครดิต", "พร้อมเพย์", "เลขบัญชี", "installment",
}

// IsPaymentQuery reports whether text asks about payment.
func IsPaymentQuery(text string) bool {
	return stringutil.ContainsAny(strings.ToLower(text), paymentKeywords)
}

var shippingKeywords = []string{
	"ค่าส่ง", "จัดส่ง", "ส่งยังไง", "ส่งไหม", "ส่งของ", "ขนส่ง", "กี่วันถึง",
	"เก็บเงินปลายทาง", "ems", "grab", "kerry", "flash", "ไปรษณีย์", "พัสดุกี่วัน",
}

// IsShippingQuery reports whether text asks about delivery.
func IsShippingQuery(text string) bool {
	return stringutil.ContainsAny(strings.ToLower(text), shippingKeywords)
}

var orderStatusKeywords = []string{
	"เช็คออเดอร์", "สถานะ", "ออเดอร์", "สั่งไปแล้ว", "ของถึงไหน", "ได้ของ",
	"เลขพัสดุ", "tracking", "แทรค", "ตามของ",
}

// IsOrderStatus reports whether text asks about an existing order.
func IsOrderStatus(text string) bool {
	return stringutil.ContainsAny(strings.ToLower(text), orderStatusKeywords)
}

var storeInfoKeywords = []string{
	"ที่อยู่ร้าน", "ร้านอยู่ไหน", "ร้านอยู่ที่ไหน", "เปิดกี่โมง", "ปิดกี่โมง",
	"เวลาเปิด", "เวลาทำการ", "เบอร์ร้าน", "แผนที่", "หน้าร้าน", "สาขา",
}

// IsStoreInfo reports whether text asks about the store itself.
func IsStoreInfo(text string) bool {
	return stringutil.ContainsAny(text, storeInfoKeywords)
}

// ExtractProductCode pulls a catalog code out of free text: a labeled
// code first ("รหัส AB-123"), then a bare code shape anywhere in the
// message. Returns the upper-cased code and whether one was found.
func ExtractProductCode(text string) (string, bool) {
	if m := labeledCodePattern.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1]), true
	}
	trimmed := strings.TrimSpace(text)
	if ProductCodePattern.MatchString(strings.ToUpper(trimmed)) && !stringutil.IsNumeric(trimmed) {
		return strings.ToUpper(trimmed), true
	}
	if m := embeddedCodePattern.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}

// thaiOrdinals map spoken position words to candidate list indexes.
// -1 means the last entry shown.
var thaiOrdinals = map[string]int{
	"แรก": 1, "ตัวแรก": 1, "อันแรก": 1,
	"สอง": 2, "ตัวที่สอง": 2, "ตัวสอง": 2,
	"สาม": 3, "ตัวที่สาม": 3,
	"สี่": 4, "ตัวที่สี่": 4,
	"ห้า": 5, "ตัวที่ห้า": 5,
	"ล่าสุด": -1, "ตัวล่าสุด": -1, "อันสุดท้าย": -1, "ตัวสุดท้าย": -1,
}

// ParseCandidateIndex reads "the second one" style references to a
// previously shown product list. Returns a 1-based index (-1 for the
// last entry) and whether the text contained one.
func ParseCandidateIndex(text string) (int, bool) {
	normalized := stringutil.NormalizeForMatch(text)
	if n, err := strconv.Atoi(normalized); err == nil && n >= 1 && n <= 9 {
		return n, true
	}
	if idx, ok := thaiOrdinals[normalized]; ok {
		return idx, true
	}
	for phrase, idx := range thaiOrdinals {
		if len([]rune(phrase)) >= 4 && strings.Contains(normalized, phrase) {
			return idx, true
		}
	}
	return 0, false
}
