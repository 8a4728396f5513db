package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"

	"reachloop/config"
	"reachloop/models"
	"reachloop/outreach"

	"github.com/gofiber/fiber/v2"
)

// WebhookController ingests delivery events pushed by the channel
// providers. Every request is answered 200, valid or not, so a provider
// never builds a retry backlog against us; bad events are only logged.
type WebhookController struct {
	Tracker *outreach.Tracker
	Events  *outreach.Logger
	Logger  *log.Logger
}

func NewWebhookController(tracker *outreach.Tracker, events *outreach.Logger) *WebhookController {
	return &WebhookController{
		Tracker: tracker,
		Events:  events,
		Logger:  log.New(os.Stdout, "WEBHOOK: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

type deliveryEvent struct {
	MessageID string `json:"message_id"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// eventStatus maps provider event names onto execution statuses.
var eventStatus = map[string]string{
	"delivered": models.ExecutionDelivered,
	"opened":    models.ExecutionOpened,
	"read":      models.ExecutionOpened,
	"replied":   models.ExecutionReplied,
	"bounced":   models.ExecutionBounced,
	"failed":    models.ExecutionFailed,
	"dropped":   models.ExecutionFailed,
}

// HandleChannelEvents processes POST /webhooks/:channel/events.
func (wc *WebhookController) HandleChannelEvents(c *fiber.Ctx) error {
	channel := c.Params("channel")
	if !outreach.IsValidChannel(channel) {
		wc.Logger.Printf("event for unknown channel %q ignored", channel)
		return c.SendStatus(fiber.StatusOK)
	}

	body := c.Body()
	if !wc.verifySignature(channel, body, c.Get("X-Webhook-Signature")) {
		wc.Logger.Printf("invalid signature on %s webhook ignored", channel)
		return c.SendStatus(fiber.StatusOK)
	}

	var event deliveryEvent
	if err := json.Unmarshal(body, &event); err != nil {
		wc.Logger.Printf("malformed %s webhook payload ignored: %v", channel, err)
		return c.SendStatus(fiber.StatusOK)
	}

	status, known := eventStatus[event.Event]
	if !known || event.MessageID == "" {
		wc.Logger.Printf("unhandled %s event %q ignored", channel, event.Event)
		return c.SendStatus(fiber.StatusOK)
	}

	if !wc.Tracker.UpdateDeliveryStatus(event.MessageID, status, event.Reason) {
		wc.Logger.Printf("no-op %s event %q for message %s", channel, event.Event, event.MessageID)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (wc *WebhookController) verifySignature(channel string, body []byte, signature string) bool {
	secret := webhookSecret(channel)
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func webhookSecret(channel string) string {
	switch outreach.Channel(channel) {
	case outreach.ChannelEmail:
		return config.AppConfig.EmailWebhookSecret
	case outreach.ChannelChat:
		return config.AppConfig.ChatWebhookSecret
	case outreach.ChannelBot:
		return config.AppConfig.BotWebhookSecret
	}
	return ""
}
