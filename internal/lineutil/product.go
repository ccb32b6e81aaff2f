package lineutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// NewProductBubble builds a flex bubble for a single catalog product:
// hero image, name, price, and a buy action that feeds the checkout
// trigger phrase back into the chat.
func NewProductBubble(p *storage.Product) messaging_api.FlexBubble {
	priceLine := fmt.Sprintf("%s บาท", formatThousands(p.Price))
	stockLine := "พร้อมส่ง"
	if !p.InStock {
		stockLine = "สินค้าหมด"
	}

	bubble := messaging_api.FlexBubble{
		Body: &messaging_api.FlexBox{
			Layout:  messaging_api.FlexBoxLAYOUT("vertical"),
			Spacing: "sm",
			Contents: []messaging_api.FlexComponentInterface{
				&messaging_api.FlexText{
					Text:   p.Name,
					Weight: messaging_api.FlexTextWEIGHT("bold"),
					Size:   "md",
					Wrap:   true,
				},
				&messaging_api.FlexText{
					Text:  p.Code,
					Size:  "xs",
					Color: "#999999",
				},
				&messaging_api.FlexText{
					Text:   priceLine,
					Size:   "lg",
					Weight: messaging_api.FlexTextWEIGHT("bold"),
					Color:  "#B71C1C",
				},
				&messaging_api.FlexText{
					Text:  stockLine,
					Size:  "xs",
					Color: "#666666",
				},
			},
		},
	}

	if p.ImageURL != "" {
		bubble.Hero = &messaging_api.FlexImage{
			Url:         p.ImageURL,
			Size:        "full",
			AspectRatio: "1:1",
		}
	}

	if p.InStock {
		bubble.Footer = &messaging_api.FlexBox{
			Layout: messaging_api.FlexBoxLAYOUT("vertical"),
			Contents: []messaging_api.FlexComponentInterface{
				&messaging_api.FlexButton{
					Style:  messaging_api.FlexButtonSTYLE("primary"),
					Action: NewMessageAction("สั่งซื้อ", "สั่งซื้อ "+p.Code),
				},
			},
		}
	}

	return bubble
}

// NewProductCarousel builds a flex message showing up to
// MaxFlexBubbleCount products.
func NewProductCarousel(altText string, products []*storage.Product) *messaging_api.FlexMessage {
	if len(products) == 0 {
		return nil
	}
	if len(products) > MaxFlexBubbleCount {
		products = products[:MaxFlexBubbleCount]
	}

	bubbles := make([]messaging_api.FlexBubble, len(products))
	for i, p := range products {
		bubbles[i] = NewProductBubble(p)
	}

	if len(altText) > MaxAltTextLength {
		altText = altText[:MaxAltTextLength]
	}
	return &messaging_api.FlexMessage{
		AltText:  altText,
		Contents: &messaging_api.FlexCarousel{Contents: bubbles},
	}
}

// formatThousands renders an amount with comma separators.
func formatThousands(amount int) string {
	s := strconv.Itoa(amount)
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
