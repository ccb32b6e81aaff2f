// Package webhook receives LINE webhook callbacks, normalizes events
// into router inbounds, and sends the engine's replies back through the
// Messaging API.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/ctxutil"
	"github.com/chaintara/shopchat-linebot-go/internal/lineutil"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/mediastore"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/policy"
	"github.com/chaintara/shopchat-linebot-go/internal/ratelimit"
	"github.com/chaintara/shopchat-linebot-go/internal/router"
	"github.com/chaintara/shopchat-linebot-go/internal/sentry"
)

// Engine is the message pipeline surface the handler needs. It is
// satisfied by router.Engine.
type Engine interface {
	Handle(ctx context.Context, in *router.Inbound) (*router.Reply, error)
}

// Handler handles LINE webhook events.
type Handler struct {
	channelSecret string
	client        *messaging_api.MessagingApiAPI
	blob          *messaging_api.MessagingApiBlobAPI
	engine        Engine
	media         *mediastore.Store
	rateLimiter   *ratelimit.Limiter // global limiter for Messaging API calls
	metrics       *metrics.Metrics
	logger        *logger.Logger
	wg            sync.WaitGroup // async event processing

	storeName string
	templates *config.Templates

	// LINE API constraints (from config.BotConfig)
	eventTimeout        time.Duration
	maxMessagesPerReply int
	maxEventsPerWebhook int
	minReplyTokenLength int
}

// HandlerConfig holds configuration for creating a new Handler.
type HandlerConfig struct {
	Config  *config.Config
	Engine  Engine
	Media   *mediastore.Store
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// NewHandler creates a webhook handler with its Messaging API clients.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	client, err := messaging_api.NewMessagingApiAPI(cfg.Config.LineChannelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(cfg.Config.LineChannelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API blob client: %w", err)
	}

	bot := cfg.Config.Bot
	return &Handler{
		channelSecret:       cfg.Config.LineChannelSecret,
		client:              client,
		blob:                blob,
		engine:              cfg.Engine,
		media:               cfg.Media,
		rateLimiter:         ratelimit.New(bot.GlobalRateLimitRPS, bot.GlobalRateLimitRPS),
		metrics:             cfg.Metrics,
		logger:              cfg.Logger.WithModule("webhook"),
		storeName:           cfg.Config.StoreName,
		templates:           &cfg.Config.Templates,
		eventTimeout:        bot.WebhookTimeout,
		maxMessagesPerReply: bot.MaxMessagesPerReply,
		maxEventsPerWebhook: bot.MaxEventsPerWebhook,
		minReplyTokenLength: bot.MinReplyTokenLength,
	}, nil
}

// Handle is the Gin handler for the webhook endpoint.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE requires a prompt 200; everything else happens async.
	c.Status(http.StatusOK)

	start := time.Now()
	if h.metrics != nil {
		h.metrics.RecordWebhook("batch", "received", 0)
	}

	if len(cb.Events) > h.maxEventsPerWebhook {
		h.logger.WithField("event_count", len(cb.Events)).
			WithField("limit", h.maxEventsPerWebhook).
			Warn("Too many events in webhook batch; truncating")
		cb.Events = cb.Events[:h.maxEventsPerWebhook]
	}

	// Copy events so the slice outlives the HTTP request.
	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				sentry.RecoverWithContext(context.Background(), r)
				h.logger.WithField("panic", r).Error("Panic in async event processing")
			}
		}()

		for _, event := range events {
			h.processEvent(context.Background(), event, start)
		}
	})
}

// processEvent handles a single webhook event.
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface, batchStart time.Time) {
	eventStart := time.Now()

	ctx, cancel := context.WithTimeout(ctx, h.eventTimeout)
	defer cancel()

	eventID, timestamp, isRedelivery := extractEventMeta(event)
	if eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, eventID)
	}

	log := h.logger
	if eventID != "" {
		log = log.WithRequestID(eventID)
	}
	if isRedelivery != nil {
		log = log.WithField("is_redelivery", *isRedelivery)
	}
	if timestamp > 0 {
		log = log.WithField("event_timestamp_ms", timestamp)
	}

	in, eventType := h.normalizeEvent(ctx, event, log)
	if in == nil {
		log.WithField("event_type", fmt.Sprintf("%T", event)).Debug("Unsupported event type")
		return
	}
	ctx = ctxutil.WithUserID(ctx, in.UserID)
	ctx = ctxutil.WithChatID(ctx, in.ChatID)

	if h.shouldShowLoading(event) {
		if loadErr := h.showLoadingAnimation(in.ChatID); loadErr != nil {
			log.WithError(loadErr).Warn("Failed to show loading animation")
		}
	}

	var reply *router.Reply
	var err error
	if eventType == "follow" {
		reply = h.followReply()
	} else {
		reply, err = h.engine.Handle(ctx, in)
	}

	status := "success"
	if err != nil {
		status = "error"
		log.WithError(err).WithField("event_type", eventType).Error("Failed to handle event")
		sentry.CaptureExceptionWithContext(ctx, err)
	}
	if reply == nil && err == nil {
		status = "silent"
	}
	if h.metrics != nil {
		h.metrics.RecordWebhook(eventType, status, time.Since(eventStart).Seconds())
	}

	if reply != nil && err == nil {
		h.sendReply(ctx, event, reply, eventType, log)
	}

	log.WithField("event_type", eventType).
		WithField("event_duration_ms", time.Since(eventStart).Milliseconds()).
		WithField("batch_duration_ms", time.Since(batchStart).Milliseconds()).
		Info("Event processed")
}

// normalizeEvent maps a LINE event to a router inbound. A nil inbound
// means the event type is not handled.
func (h *Handler) normalizeEvent(ctx context.Context, event webhook.EventInterface, log *logger.Logger) (*router.Inbound, string) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		userID, chatID := sourceIDs(e.Source)
		if userID == "" || chatID == "" {
			return nil, ""
		}
		switch msg := e.Message.(type) {
		case webhook.TextMessageContent:
			return &router.Inbound{
				UserID: userID,
				ChatID: chatID,
				Type:   router.TypeText,
				Text:   msg.Text,
			}, "message"
		case webhook.ImageMessageContent:
			in := &router.Inbound{
				UserID: userID,
				ChatID: chatID,
				Type:   router.TypeImage,
			}
			in.MediaKey = h.fetchImage(ctx, userID, msg.Id, log)
			return in, "message"
		default:
			return nil, ""
		}
	case webhook.PostbackEvent:
		userID, chatID := sourceIDs(e.Source)
		if userID == "" || chatID == "" {
			return nil, ""
		}
		return &router.Inbound{
			UserID:   userID,
			ChatID:   chatID,
			Type:     router.TypePostback,
			Postback: e.Postback.Data,
		}, "postback"
	case webhook.FollowEvent:
		userID, chatID := sourceIDs(e.Source)
		if userID == "" || chatID == "" {
			return nil, ""
		}
		return &router.Inbound{UserID: userID, ChatID: chatID, Type: router.TypeText}, "follow"
	default:
		return nil, ""
	}
}

// fetchImage downloads the message content and stores it in the media
// store. Returns the stored object key, or empty when the store is
// disabled or the download fails; the pipeline still handles the event
// as an image either way.
func (h *Handler) fetchImage(ctx context.Context, userID, messageID string, log *logger.Logger) string {
	if !h.media.Enabled() || messageID == "" {
		return ""
	}

	resp, err := h.blob.GetMessageContent(messageID)
	if err != nil {
		log.WithError(err).WithField("message_id", messageID).Warn("Failed to fetch image content")
		return ""
	}
	defer resp.Body.Close()

	key, err := h.media.SaveMedia(ctx, userID, resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		log.WithError(err).WithField("message_id", messageID).Warn("Failed to store image")
		return ""
	}
	return key
}

// followReply greets a new follower with the store welcome.
func (h *Handler) followReply() *router.Reply {
	greeting := policy.ReplacePlaceholders(h.templates.Greeting,
		map[string]string{"store_name": h.storeName})
	return &router.Reply{
		Text: greeting,
		Meta: router.Meta{Intent: "greeting", Stage: "greeting", Source: "follow"},
	}
}

// sendReply turns the engine reply into LINE messages and replies.
func (h *Handler) sendReply(ctx context.Context, event webhook.EventInterface, reply *router.Reply, eventType string, log *logger.Logger) {
	messages := h.buildMessages(reply)
	if len(messages) == 0 {
		return
	}

	replyToken := getReplyToken(event)
	if replyToken == "" {
		log.Debug("Empty reply token, skipping reply")
		return
	}
	if len(replyToken) < h.minReplyTokenLength {
		log.WithField("token_length", len(replyToken)).Debug("Invalid reply token format")
		return
	}

	if !h.rateLimiter.Allow() {
		log.Warn("Global rate limit exceeded; waiting")
		if h.metrics != nil {
			h.metrics.RecordRateLimiterDrop("global")
		}
		if err := h.rateLimiter.Wait(ctx); err != nil {
			log.WithError(err).Warn("Gave up waiting for rate limiter")
			return
		}
	}

	if _, err := h.client.ReplyMessage(
		&messaging_api.ReplyMessageRequest{
			ReplyToken: replyToken,
			Messages:   messages,
		},
	); err != nil {
		errMsg := err.Error()
		switch {
		case strings.Contains(errMsg, "Invalid reply token"):
			log.WithError(err).Debug("Reply token already used or invalid")
		case strings.Contains(errMsg, "rate limit"):
			log.WithError(err).Error("Rate limit exceeded")
		default:
			log.WithError(err).WithField("stage", reply.Meta.Stage).Error("Failed to send reply")
		}
		if h.metrics != nil {
			h.metrics.RecordWebhook(eventType, "reply_error", 0)
		}
	}
}

// Push delivers a reply outside the webhook cycle. The debounce sweep
// uses it: by the time a buffered set flushes, the reply token is gone.
// The retry key makes LINE-side retries idempotent.
func (h *Handler) Push(ctx context.Context, chatID string, reply *router.Reply) error {
	messages := h.buildMessages(reply)
	if len(messages) == 0 {
		return nil
	}

	if !h.rateLimiter.Allow() {
		if h.metrics != nil {
			h.metrics.RecordRateLimiterDrop("global")
		}
		if err := h.rateLimiter.Wait(ctx); err != nil {
			return err
		}
	}

	if _, err := h.client.PushMessage(
		&messaging_api.PushMessageRequest{
			To:       chatID,
			Messages: messages,
		},
		uuid.NewString(),
	); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// buildMessages converts a router reply into Messaging API messages.
// Text first, then any product image, capped at the per-reply limit.
func (h *Handler) buildMessages(reply *router.Reply) []messaging_api.MessageInterface {
	var messages []messaging_api.MessageInterface

	if reply.Text != "" {
		if choices := quickReplyChoices(reply.Actions); len(choices) > 0 {
			messages = append(messages, lineutil.NewTextMessageWithQuickReply(reply.Text, choices...))
		} else {
			messages = append(messages, lineutil.NewTextMessage(reply.Text))
		}
	}

	for _, action := range reply.Actions {
		if action.Kind == router.ActionImage && action.ImageURL != "" {
			messages = append(messages, lineutil.NewImageMessage(action.ImageURL, ""))
		}
	}

	if len(messages) > h.maxMessagesPerReply {
		messages = messages[:h.maxMessagesPerReply]
	}
	return messages
}

func quickReplyChoices(actions []router.Action) []string {
	for _, action := range actions {
		if action.Kind == router.ActionQuickReply && len(action.Choices) > 0 {
			return action.Choices
		}
	}
	return nil
}

// sourceIDs extracts the acting user and the chat the event belongs
// to. In a 1:1 chat both are the user ID; in groups and rooms the chat
// ID is the group or room ID.
func sourceIDs(source webhook.SourceInterface) (userID, chatID string) {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId, s.UserId
	case webhook.GroupSource:
		return s.UserId, s.GroupId
	case webhook.RoomSource:
		return s.UserId, s.RoomId
	default:
		return "", ""
	}
}

func extractEventMeta(event webhook.EventInterface) (string, int64, *bool) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.WebhookEventId, e.Timestamp, redelivery(e.DeliveryContext)
	case webhook.PostbackEvent:
		return e.WebhookEventId, e.Timestamp, redelivery(e.DeliveryContext)
	case webhook.FollowEvent:
		return e.WebhookEventId, e.Timestamp, redelivery(e.DeliveryContext)
	default:
		return "", 0, nil
	}
}

func redelivery(dc *webhook.DeliveryContext) *bool {
	if dc == nil {
		return nil
	}
	val := dc.IsRedelivery
	return &val
}

// shouldShowLoading reports whether a loading animation makes sense
// for the event. Loading only renders in 1:1 chats, and image uploads
// are usually payment slips the bot acknowledges quickly, so only text
// messages and postbacks qualify.
func (h *Handler) shouldShowLoading(event webhook.EventInterface) bool {
	switch e := event.(type) {
	case webhook.MessageEvent:
		if _, ok := e.Source.(webhook.UserSource); !ok {
			return false
		}
		_, isText := e.Message.(webhook.TextMessageContent)
		return isText
	case webhook.PostbackEvent:
		_, ok := e.Source.(webhook.UserSource)
		return ok
	default:
		return false
	}
}

// showLoadingAnimation shows the typing indicator while the pipeline
// (debounce window included) works. Seconds must be 5-60, a multiple
// of 5.
func (h *Handler) showLoadingAnimation(chatID string) error {
	if chatID == "" {
		return nil
	}

	seconds := int32(h.eventTimeout / time.Second)
	seconds -= seconds % 5
	if seconds < 5 {
		seconds = 5
	}
	if seconds > 60 {
		seconds = 60
	}

	req := &messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: seconds,
	}
	if _, err := h.client.ShowLoadingAnimation(req); err != nil {
		return fmt.Errorf("show loading animation: %w", err)
	}
	return nil
}

func getReplyToken(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.ReplyToken
	case webhook.PostbackEvent:
		return e.ReplyToken
	case webhook.FollowEvent:
		return e.ReplyToken
	default:
		return ""
	}
}

// Shutdown waits for in-flight event processing to finish.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
