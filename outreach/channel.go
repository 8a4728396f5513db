package outreach

import (
	"context"
	"fmt"
)

// Channel identifies a delivery transport.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
	ChannelBot   Channel = "bot"
)

// AllChannels in a stable order, for iteration and validation.
var AllChannels = []Channel{ChannelEmail, ChannelChat, ChannelBot}

func IsValidChannel(c string) bool {
	switch Channel(c) {
	case ChannelEmail, ChannelChat, ChannelBot:
		return true
	}
	return false
}

// Capability describes what a channel can do. Condition evaluation and
// body truncation consult this table instead of asking the provider.
type Capability struct {
	ConsentRequired        bool
	MaxBodyLength          int
	SupportsTemplates      bool
	SupportsOpenTracking   bool
	SupportsReadTracking   bool
	SupportsReplyDetection bool
	DefaultMaxRetries      int
	RateClass              string // bulk, conversational
}

// Capabilities is the static capability table. Bot recipients are chat
// ids the contact handed over themselves, so consent is implied there.
var Capabilities = map[Channel]Capability{
	ChannelEmail: {
		ConsentRequired:        true,
		MaxBodyLength:          100000,
		SupportsTemplates:      true,
		SupportsOpenTracking:   true,
		SupportsReadTracking:   false,
		SupportsReplyDetection: true,
		DefaultMaxRetries:      3,
		RateClass:              "bulk",
	},
	ChannelChat: {
		ConsentRequired:        true,
		MaxBodyLength:          4096,
		SupportsTemplates:      true,
		SupportsOpenTracking:   false,
		SupportsReadTracking:   true,
		SupportsReplyDetection: true,
		DefaultMaxRetries:      2,
		RateClass:              "conversational",
	},
	ChannelBot: {
		ConsentRequired:        false,
		MaxBodyLength:          4096,
		SupportsTemplates:      true,
		SupportsOpenTracking:   false,
		SupportsReadTracking:   false,
		SupportsReplyDetection: true,
		DefaultMaxRetries:      2,
		RateClass:              "conversational",
	},
}

// SendResult is what a provider reports back for one attempt.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	Err               error
}

// Provider is one delivery transport. Send must respect ctx and return
// a result rather than panic; IsConfigured gates it out of the executor
// when credentials are absent.
type Provider interface {
	Channel() Channel
	IsConfigured() bool
	ValidateRecipient(recipient string) bool
	Send(ctx context.Context, recipient, subject, body string) SendResult
}

// ProviderSet holds one provider per channel. Fields are the interface
// type so tests can substitute fakes.
type ProviderSet struct {
	Email Provider
	Chat  Provider
	Bot   Provider
}

func NewProviderSet() *ProviderSet {
	return &ProviderSet{
		Email: NewEmailProvider(),
		Chat:  NewChatProvider(),
		Bot:   NewBotProvider(),
	}
}

// For returns the provider for a channel.
func (s *ProviderSet) For(c Channel) (Provider, error) {
	switch c {
	case ChannelEmail:
		return s.Email, nil
	case ChannelChat:
		return s.Chat, nil
	case ChannelBot:
		return s.Bot, nil
	default:
		return nil, fmt.Errorf("unknown channel: %s", c)
	}
}
