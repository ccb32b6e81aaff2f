package checkout

import (
	"regexp"
	"strings"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/intent"
)

var (
	// Thai mobile (10 digits) or landline (9 digits).
	phonePattern = regexp.MustCompile(`0[689]\d{8}|0[1-5]\d{7}`)

	// คุณสมชาย, คุณ สมหญิง
	honorificPattern = regexp.MustCompile(`คุณ\s*\S{2,}`)

	postalCodePattern = regexp.MustCompile(`\b\d{5}\b`)

	addressIndicators = []*regexp.Regexp{
		regexp.MustCompile(`ถ(?:นน|\.)`),
		regexp.MustCompile(`ซ(?:อย|\.)`),
		regexp.MustCompile(`ต(?:ำบล|\.)`),
		regexp.MustCompile(`อ(?:ำเภอ|\.)`),
		regexp.MustCompile(`จ(?:ังหวัด|\.)`),
		regexp.MustCompile(`แขวง|เขต`),
		regexp.MustCompile(`หมู่(?:บ้าน)?|ม\.\d`),
		regexp.MustCompile(`เลขที่|บ้านเลขที่|\d+/\d+`),
	}
)

// AddressParts reports which shipping components a buffer contains.
type AddressParts struct {
	HasName    bool
	HasPhone   bool
	HasAddress bool
}

// Complete reports whether all three components are present.
func (p AddressParts) Complete() bool {
	return p.HasName && p.HasPhone && p.HasAddress
}

// Missing lists the missing components in Thai for the re-prompt.
func (p AddressParts) Missing() []string {
	var out []string
	if !p.HasName {
		out = append(out, "ชื่อผู้รับ")
	}
	if !p.HasPhone {
		out = append(out, "เบอร์โทร")
	}
	if !p.HasAddress {
		out = append(out, "ที่อยู่จัดส่ง")
	}
	return out
}

// hasPhone reports whether text carries a Thai phone number. Digits
// are checked after removing separators people type into numbers.
func hasPhone(text string) bool {
	cleaned := strings.NewReplacer("-", "", " ", "").Replace(text)
	return phonePattern.MatchString(cleaned)
}

// hasName heuristically finds a recipient name: an honorific plus a
// word, or two plain words of at least two characters on the same
// line. Customers often put everything on one line, so phone numbers
// and address-marker words are stripped before counting rather than
// the whole line being skipped.
func hasName(text string) bool {
	if honorificPattern.MatchString(text) {
		return true
	}
	for _, line := range strings.Split(text, "\n") {
		count := 0
		for _, w := range strings.Fields(line) {
			if strings.ContainsAny(w, "0123456789") {
				continue
			}
			if isAddressWord(w) {
				continue
			}
			if len([]rune(w)) >= 2 {
				count++
			}
		}
		if count >= 2 {
			return true
		}
	}
	return false
}

// isAddressWord reports whether a token is structural address text
// rather than a possible name part.
func isAddressWord(w string) bool {
	for _, p := range addressIndicators {
		if p.MatchString(w) {
			return true
		}
	}
	return false
}

// hasAddress requires at least two structural indicators (road, soi,
// district, postal code...), or one when a phone is present, or a long
// digit-bearing run.
func hasAddress(text string) bool {
	hits := 0
	for _, p := range addressIndicators {
		if p.MatchString(text) {
			hits++
		}
	}
	if postalCodePattern.MatchString(text) {
		hits++
	}
	if hits >= 2 {
		return true
	}
	// A lone road or soi marker next to a phone number is a shipping
	// line, not conversation.
	if hits >= 1 && hasPhone(text) {
		return true
	}
	return len([]rune(text)) > 40 && strings.ContainsAny(text, "0123456789")
}

// InspectAddress scores an accumulated address buffer.
func InspectAddress(buffer string) AddressParts {
	return AddressParts{
		HasName:    hasName(buffer),
		HasPhone:   hasPhone(buffer),
		HasAddress: hasAddress(buffer),
	}
}

// AcceptAddress decides whether the buffer is good enough to ship to.
// Emergency acceptance keeps long, mostly-complete buffers from
// looping the customer forever on a heuristic miss.
func AcceptAddress(buffer string, policy config.CheckoutPolicy) bool {
	parts := InspectAddress(buffer)
	if parts.Complete() {
		return true
	}

	length := len([]rune(strings.TrimSpace(buffer)))
	if length >= policy.AddressHardAcceptLen {
		return true
	}
	if length >= policy.AddressMinEmergencyLen && parts.HasPhone {
		components := 0
		if parts.HasName {
			components++
		}
		if parts.HasPhone {
			components++
		}
		if parts.HasAddress {
			components++
		}
		return components >= 2
	}
	return false
}

// LooksLikeAddress classifies whether an incoming message belongs in
// the address buffer at all. Questions, purchase phrasing, and product
// codes are conversation, not address fragments.
func LooksLikeAddress(text string) bool {
	if intent.IsQuestion(text) || intent.IsPurchase(text) {
		return false
	}
	if code, ok := intent.ExtractProductCode(text); ok && code != "" {
		return false
	}
	if hasPhone(text) || hasAddress(text) {
		return true
	}
	if honorificPattern.MatchString(text) {
		return true
	}
	// Multi-word plain text during ask_address is usually a name or
	// address fragment.
	return len(strings.Fields(text)) >= 2 || len([]rune(text)) >= 10
}
