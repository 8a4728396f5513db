package outreach

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityTableCoversAllChannels(t *testing.T) {
	for _, channel := range AllChannels {
		capability, ok := Capabilities[channel]
		require.True(t, ok, "missing capability for %s", channel)
		assert.Greater(t, capability.MaxBodyLength, 0)
		assert.Greater(t, capability.DefaultMaxRetries, 0)
	}
}

func TestCapabilityConsentFlags(t *testing.T) {
	assert.True(t, Capabilities[ChannelEmail].ConsentRequired)
	assert.True(t, Capabilities[ChannelChat].ConsentRequired)
	assert.False(t, Capabilities[ChannelBot].ConsentRequired)
}

func TestCapabilityTrackingFlags(t *testing.T) {
	assert.True(t, Capabilities[ChannelEmail].SupportsOpenTracking)
	assert.False(t, Capabilities[ChannelEmail].SupportsReadTracking)
	assert.True(t, Capabilities[ChannelChat].SupportsReadTracking)
	assert.False(t, Capabilities[ChannelBot].SupportsOpenTracking)
	assert.False(t, Capabilities[ChannelBot].SupportsReadTracking)
}

func TestIsValidChannel(t *testing.T) {
	assert.True(t, IsValidChannel("email"))
	assert.True(t, IsValidChannel("chat"))
	assert.True(t, IsValidChannel("bot"))
	assert.False(t, IsValidChannel("fax"))
	assert.False(t, IsValidChannel(""))
}

func TestProviderSetForIsExhaustive(t *testing.T) {
	set := &ProviderSet{
		Email: newFakeProvider(ChannelEmail),
		Chat:  newFakeProvider(ChannelChat),
		Bot:   newFakeProvider(ChannelBot),
	}
	for _, channel := range AllChannels {
		provider, err := set.For(channel)
		require.NoError(t, err)
		assert.Equal(t, channel, provider.Channel())
	}
	_, err := set.For(Channel("fax"))
	assert.Error(t, err)
}

func TestEmailProviderRecipientValidation(t *testing.T) {
	p := &EmailProvider{}
	assert.True(t, p.ValidateRecipient("ada@example.com"))
	assert.False(t, p.ValidateRecipient("not-an-email"))
	assert.False(t, p.ValidateRecipient(""))
}

func TestChatProviderRecipientValidation(t *testing.T) {
	p := &ChatProvider{}
	assert.True(t, p.ValidateRecipient("+14155550100"))
	assert.False(t, p.ValidateRecipient("14155550100"))
	assert.False(t, p.ValidateRecipient("+0123"))
	assert.False(t, p.ValidateRecipient("bananas"))
}

func TestBotProviderRecipientValidation(t *testing.T) {
	p := &BotProvider{}
	assert.True(t, p.ValidateRecipient("88001122"))
	assert.True(t, p.ValidateRecipient("-10042"))
	assert.False(t, p.ValidateRecipient("@handle"))
	assert.False(t, p.ValidateRecipient(""))
}

func TestProvidersUnconfiguredWithoutCredentials(t *testing.T) {
	assert.False(t, (&EmailProvider{}).IsConfigured())
	assert.False(t, (&ChatProvider{}).IsConfigured())
	assert.False(t, (&BotProvider{}).IsConfigured())
}
