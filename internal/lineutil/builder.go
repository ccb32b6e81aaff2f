// Package lineutil provides helpers for building LINE messages and
// actions within the Messaging API limits.
package lineutil

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/chaintara/shopchat-linebot-go/internal/stringutil"
)

// LINE Messaging API limits (rune counts).
// Reference: https://developers.line.biz/en/reference/messaging-api/
const (
	MaxTextMessageLength   = 5000
	MaxAltTextLength       = 400
	MaxQuickReplyItemCount = 13
	MaxQuickReplyLabel     = 20
	MaxFlexBubbleCount     = 10
)

// Action is an alias for the LINE SDK action interface.
type Action = messaging_api.ActionInterface

// NewTextMessage creates a text message, truncating to the API limit.
func NewTextMessage(text string) *messaging_api.TextMessage {
	return &messaging_api.TextMessage{
		Text: stringutil.Truncate(text, MaxTextMessageLength),
	}
}

// NewImageMessage creates an image message. Both URLs must be HTTPS.
func NewImageMessage(originalContentURL, previewImageURL string) messaging_api.MessageInterface {
	if previewImageURL == "" {
		previewImageURL = originalContentURL
	}
	return &messaging_api.ImageMessage{
		OriginalContentUrl: originalContentURL,
		PreviewImageUrl:    previewImageURL,
	}
}

// NewMessageAction creates an action that sends the label's text back
// into the chat when tapped.
func NewMessageAction(label, text string) Action {
	return &messaging_api.MessageAction{
		Label: stringutil.Truncate(label, MaxQuickReplyLabel),
		Text:  text,
	}
}

// NewPostbackAction creates a postback action with a display text shown
// in the chat.
func NewPostbackAction(label, displayText, data string) Action {
	return &messaging_api.PostbackAction{
		Label:       stringutil.Truncate(label, MaxQuickReplyLabel),
		DisplayText: displayText,
		Data:        data,
	}
}

// NewURIAction creates an action that opens a URL.
func NewURIAction(label, uri string) Action {
	return &messaging_api.UriAction{
		Label: stringutil.Truncate(label, MaxQuickReplyLabel),
		Uri:   uri,
	}
}

// NewQuickReply wraps actions as quick reply items, dropping any past
// the API limit.
func NewQuickReply(actions ...Action) *messaging_api.QuickReply {
	if len(actions) == 0 {
		return nil
	}
	if len(actions) > MaxQuickReplyItemCount {
		actions = actions[:MaxQuickReplyItemCount]
	}

	items := make([]messaging_api.QuickReplyItem, len(actions))
	for i, action := range actions {
		items[i] = messaging_api.QuickReplyItem{
			Action: action,
		}
	}
	return &messaging_api.QuickReply{Items: items}
}

// NewTextMessageWithQuickReply creates a text message carrying quick
// reply choices. Labels double as the sent text.
func NewTextMessageWithQuickReply(text string, choices ...string) *messaging_api.TextMessage {
	msg := NewTextMessage(text)
	if len(choices) == 0 {
		return msg
	}

	actions := make([]Action, len(choices))
	for i, choice := range choices {
		actions[i] = NewMessageAction(choice, choice)
	}
	msg.QuickReply = NewQuickReply(actions...)
	return msg
}
