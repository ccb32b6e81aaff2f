package config

import "os"

// Templates holds user-facing reply templates. Placeholders use {key}
// syntax and are filled by policy.ReplacePlaceholders.
type Templates struct {
	Fallback       string // Generic downgrade reply when a component fails
	Greeting       string
	RateLimited    string
	PriceInquiry   string // Used when strict pricing scrubs an LLM reply
	BackendLookup  string // Used for intents that require backend data
	HandoffNotice  string // Sent when the conversation escalates to a human
	DeliveryNotice string
	KBHedgePrefix  string // Prefix for partial-match KB answers

	// RepeatVariations rotate when the repeat guard fires with the
	// template action. At least one entry is required.
	RepeatVariations []string
}

// DefaultTemplates returns the stock Thai templates.
func DefaultTemplates() Templates {
	return Templates{
		Fallback:       "ขออภัยค่ะ ระบบขัดข้องชั่วคราว รบกวนพิมพ์อีกครั้ง หรือรอแอดมินติดต่อกลับนะคะ 🙏",
		Greeting:       "สวัสดีค่ะ ยินดีต้อนรับร้าน {store_name} สนใจสินค้าตัวไหนสอบถามได้เลยนะคะ 😊",
		RateLimited:    "ข้อความเยอะมากเลยค่ะ รอสักครู่แล้วค่อยพิมพ์ใหม่นะคะ 🙏",
		PriceInquiry:   "เรื่องราคารบกวนแจ้งรุ่นหรือรหัสสินค้าที่สนใจ เดี๋ยวแอดมินเช็คราคาล่าสุดให้นะคะ 💰",
		BackendLookup:  "ขอเช็คข้อมูลในระบบให้ก่อนนะคะ แอดมินจะรีบตอบกลับโดยเร็วที่สุดค่ะ 🙏",
		HandoffNotice:  "รับเรื่องแล้วค่ะ เดี๋ยวแอดมินมาดูแลต่อให้นะคะ 🙏",
		DeliveryNotice: "จัดส่งแบบไหนดีคะ\n1. รับหน้าร้าน\n2. ส่ง EMS (+{ems_fee} บาท)\n3. Grab/ส่งด่วน (เก็บเงินปลายทาง)",
		KBHedgePrefix:  "จากข้อมูลที่มีนะคะ ",

		RepeatVariations: []string{
			"ตอบไปด้านบนแล้วนะคะ มีอะไรเพิ่มเติมสอบถามได้เลยค่ะ 😊",
			"ข้อความเดิมเลยค่ะ ถ้ายังไม่ชัดเจนตรงไหนบอกได้นะคะ",
			"เดี๋ยวให้แอดมินมาช่วยตอบนะคะ รอสักครู่ค่ะ 🙏",
		},
	}
}

// LoadTemplates returns DefaultTemplates with environment overrides for
// the templates merchants most often customize.
func LoadTemplates() Templates {
	t := DefaultTemplates()
	if v := os.Getenv("TEMPLATE_FALLBACK"); v != "" {
		t.Fallback = v
	}
	if v := os.Getenv("TEMPLATE_GREETING"); v != "" {
		t.Greeting = v
	}
	if v := os.Getenv("TEMPLATE_HANDOFF"); v != "" {
		t.HandoffNotice = v
	}
	if v := os.Getenv("TEMPLATE_PRICE_INQUIRY"); v != "" {
		t.PriceInquiry = v
	}
	return t
}
