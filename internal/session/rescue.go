package session

import (
	"regexp"
	"strings"
)

// Slot keys populated by rescue extraction.
const (
	SlotProductCode = "product_code"
	SlotAmount      = "amount"
	SlotPhone       = "phone"
)

var (
	// "รหัส ABC-123", "code: XY-99", "sku #A1"
	labeledCodePattern = regexp.MustCompile(`(?i)(?:รหัส|โค้ด|code|sku|serial)\s*[:#]?\s*([A-Za-z0-9\-_./]+)`)

	// Bare product-code shape, e.g. "RX-7040" or "AB123"
	bareCodePattern = regexp.MustCompile(`\b([A-Z]{2,5}-?[A-Z0-9]{2,5}-?\d{0,5})\b`)

	// "1,500 บาท", "2500฿"
	amountPattern = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*(?:บาท|฿)`)

	// Thai mobile or landline
	phonePattern = regexp.MustCompile(`\b(0[689]\d{8}|0[1-5]\d{7})\b`)
)

// RescueFromText extracts slot values a rule layer may have missed
// before the message is handed to the LLM. Extracted values are merged
// with Merge semantics: they never overwrite slots already collected.
func RescueFromText(text string, slots map[string]any) map[string]any {
	rescued := map[string]any{}

	if _, ok := slots[SlotProductCode]; !ok {
		if m := labeledCodePattern.FindStringSubmatch(text); m != nil {
			rescued[SlotProductCode] = strings.ToUpper(m[1])
		} else if m := bareCodePattern.FindStringSubmatch(text); m != nil {
			rescued[SlotProductCode] = m[1]
		}
	}

	if _, ok := slots[SlotAmount]; !ok {
		if m := amountPattern.FindStringSubmatch(text); m != nil {
			rescued[SlotAmount] = strings.ReplaceAll(m[1], ",", "")
		}
	}

	if _, ok := slots[SlotPhone]; !ok {
		if m := phonePattern.FindStringSubmatch(text); m != nil {
			rescued[SlotPhone] = m[1]
		}
	}

	merged := Merge(slots, rescued)
	return merged
}
