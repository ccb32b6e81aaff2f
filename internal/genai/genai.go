// Package genai integrates the LLM providers (OpenAI and Gemini) that
// answer messages no rule layer claimed. Providers classify intent
// through forced function calling and generate free-text answers; a
// fallback chain retries transient failures and moves to the next
// provider on quota or permanent errors.
package genai

import (
	"context"
	"fmt"
	"strings"
)

// Snapshot is the conversation context a provider sees alongside the
// message: recent turns, collected slots, and the product under
// discussion if any.
type Snapshot struct {
	History []Turn
	Slots   map[string]any
	Product string
}

// Turn is one prior line of the conversation, oldest first.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
}

// IntentResult is a provider's classification of one message.
type IntentResult struct {
	Intent      string
	ProductCode string
	Reply       string
}

// Provider is one configured LLM backend.
type Provider interface {
	Name() string
	// Intent classifies the message, forcing a function call so the
	// model always commits to an intent.
	Intent(ctx context.Context, text string, snap *Snapshot) (*IntentResult, error)
	// Answer generates a free-text reply in the shop assistant's voice.
	Answer(ctx context.Context, text string, snap *Snapshot) (string, error)
	Close() error
}

// Intent names the classify function may return. direct_reply carries
// the model's own answer text.
var intentNames = []string{
	"product_inquiry", "purchase", "payment_query", "shipping_query",
	"order_status", "store_info", "greeting", "direct_reply",
}

const classifyFunctionName = "set_intent"

const systemPrompt = `คุณเป็นแอดมินร้านค้าออนไลน์ ตอบลูกค้าเป็นภาษาไทยสุภาพ ลงท้ายค่ะ ` +
	`ห้ามแต่งราคา โปรโมชั่น หรือสถานะสต็อกเอง ถ้าไม่ทราบให้บอกว่าจะเช็คให้ ` +
	`ตอบสั้น กระชับ ไม่เกินสามประโยค`

const classifyPrompt = systemPrompt + ` จำแนกข้อความลูกค้าด้วยฟังก์ชัน ` + classifyFunctionName +
	` เสมอ ถ้าเป็นคำถามทั่วไปให้ใช้ intent "direct_reply" พร้อมคำตอบในช่อง reply`

// buildUserPrompt folds the snapshot into the message so stateless
// chat APIs see the conversation.
func buildUserPrompt(text string, snap *Snapshot) string {
	if snap == nil {
		return text
	}
	var b strings.Builder
	if snap.Product != "" {
		fmt.Fprintf(&b, "สินค้าที่กำลังคุยถึง: %s\n", snap.Product)
	}
	if len(snap.Slots) > 0 {
		b.WriteString("ข้อมูลที่ทราบแล้ว:")
		for k, v := range snap.Slots {
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
		b.WriteString("\n")
	}
	for _, turn := range snap.History {
		if turn.Role == "" {
			b.WriteString(turn.Text)
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
	}
	b.WriteString("ลูกค้า: ")
	b.WriteString(text)
	return b.String()
}

// validIntent reports whether the model returned a known intent name.
func validIntent(name string) bool {
	for _, n := range intentNames {
		if n == name {
			return true
		}
	}
	return false
}
