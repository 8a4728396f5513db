package outreach

import (
	"context"
	"fmt"

	"reachloop/config"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// EmailProvider delivers over SMTP. The Message-ID header is generated
// here and doubles as the provider message id so delivery webhooks and
// inbox replies can be matched back to the execution.
type EmailProvider struct {
	cfg config.SMTPConfig
}

func NewEmailProvider() *EmailProvider {
	return &EmailProvider{cfg: config.AppConfig.SMTP}
}

func (p *EmailProvider) Channel() Channel { return ChannelEmail }

func (p *EmailProvider) IsConfigured() bool {
	return p.cfg.Host != "" && p.cfg.Username != "" && p.cfg.Password != "" && p.cfg.FromEmail != ""
}

func (p *EmailProvider) ValidateRecipient(recipient string) bool {
	if recipient == "" {
		return false
	}
	return checkmail.ValidateFormat(recipient) == nil
}

func (p *EmailProvider) Send(ctx context.Context, recipient, subject, body string) SendResult {
	if !p.ValidateRecipient(recipient) {
		return SendResult{Err: fmt.Errorf("invalid email recipient: %s", recipient)}
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), p.cfg.Host)

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(p.cfg.FromEmail, p.cfg.FromName))
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(p.cfg.Host, p.cfg.Port, p.cfg.Username, p.cfg.Password)

	// gomail has no context support, so run the dial in a goroutine and
	// race it against ctx
	errCh := make(chan error, 1)
	go func() { errCh <- d.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return SendResult{Err: fmt.Errorf("email send aborted: %w", ctx.Err())}
	case err := <-errCh:
		if err != nil {
			return SendResult{Err: fmt.Errorf("smtp send failed: %w", err)}
		}
	}

	return SendResult{Success: true, ProviderMessageID: messageID}
}
