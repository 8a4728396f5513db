package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"reachloop/config"

	"github.com/valyala/fasthttp"
)

var chatIDRe = regexp.MustCompile(`^-?\d+$`)

// BotProvider delivers through the bot-messaging HTTP API. Recipients
// are numeric chat ids (negative for group chats).
type BotProvider struct {
	cfg    config.BotAPIConfig
	client *fasthttp.Client
}

func NewBotProvider() *BotProvider {
	return &BotProvider{
		cfg: config.AppConfig.BotAPI,
		client: &fasthttp.Client{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (p *BotProvider) Channel() Channel { return ChannelBot }

func (p *BotProvider) IsConfigured() bool {
	return p.cfg.BaseURL != "" && p.cfg.Token != ""
}

func (p *BotProvider) ValidateRecipient(recipient string) bool {
	return chatIDRe.MatchString(recipient)
}

type botSendRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type botSendResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Description string `json:"description,omitempty"`
}

func (p *BotProvider) Send(ctx context.Context, recipient, _ string, body string) SendResult {
	if !p.ValidateRecipient(recipient) {
		return SendResult{Err: fmt.Errorf("invalid chat id recipient: %s", recipient)}
	}

	payload, err := json.Marshal(botSendRequest{ChatID: recipient, Text: body})
	if err != nil {
		return SendResult{Err: fmt.Errorf("marshal bot payload: %w", err)}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/bot%s/sendMessage", p.cfg.BaseURL, p.cfg.Token))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		return SendResult{Err: fmt.Errorf("bot api request failed: %w", err)}
	}

	var out botSendResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return SendResult{Err: fmt.Errorf("decode bot response: %w", err)}
	}
	if !out.OK {
		return SendResult{Err: fmt.Errorf("bot api error: %s", out.Description)}
	}

	return SendResult{Success: true, ProviderMessageID: strconv.FormatInt(out.Result.MessageID, 10)}
}
