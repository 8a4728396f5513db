package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"reachloop/config"

	"github.com/valyala/fasthttp"
)

var phoneRe = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// ChatProvider delivers through the business chat-messaging HTTP API.
// Recipients are E.164 phone numbers; the subject is ignored because the
// transport has no subject concept.
type ChatProvider struct {
	cfg    config.ChatAPIConfig
	client *fasthttp.Client
}

func NewChatProvider() *ChatProvider {
	return &ChatProvider{
		cfg: config.AppConfig.ChatAPI,
		client: &fasthttp.Client{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (p *ChatProvider) Channel() Channel { return ChannelChat }

func (p *ChatProvider) IsConfigured() bool {
	return p.cfg.BaseURL != "" && p.cfg.Token != "" && p.cfg.SenderID != ""
}

func (p *ChatProvider) ValidateRecipient(recipient string) bool {
	return phoneRe.MatchString(recipient)
}

type chatSendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type chatSendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (p *ChatProvider) Send(ctx context.Context, recipient, _ string, body string) SendResult {
	if !p.ValidateRecipient(recipient) {
		return SendResult{Err: fmt.Errorf("invalid phone recipient: %s", recipient)}
	}

	payload, err := json.Marshal(chatSendRequest{
		From: p.cfg.SenderID,
		To:   recipient,
		Body: body,
	})
	if err != nil {
		return SendResult{Err: fmt.Errorf("marshal chat payload: %w", err)}
	}

	status, respBody, err := p.post(ctx, p.cfg.BaseURL+"/v1/messages", payload)
	if err != nil {
		return SendResult{Err: fmt.Errorf("chat api request failed: %w", err)}
	}
	if status < 200 || status >= 300 {
		return SendResult{Err: fmt.Errorf("chat api returned status %d", status)}
	}

	var resp chatSendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return SendResult{Err: fmt.Errorf("decode chat response: %w", err)}
	}
	if resp.Error != "" {
		return SendResult{Err: fmt.Errorf("chat api error: %s", resp.Error)}
	}

	return SendResult{Success: true, ProviderMessageID: resp.MessageID}
}

func (p *ChatProvider) post(ctx context.Context, url string, payload []byte) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	req.SetBody(payload)

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, err
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return resp.StatusCode(), body, nil
}
