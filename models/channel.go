package models

import "gorm.io/gorm"

// ChannelConfig is the per-tenant switchboard for one channel. A missing
// row means the channel is enabled with defaults.
type ChannelConfig struct {
	gorm.Model
	TenantID uint   `gorm:"not null;index:idx_tenant_channel,unique" json:"tenant_id"`
	Channel  string `gorm:"not null;index:idx_tenant_channel,unique" json:"channel"`
	Enabled  bool   `gorm:"default:true" json:"enabled"`

	// DailyLimit caps accepted sends per tenant+channel per UTC day; nil
	// means unlimited
	DailyLimit *int `json:"daily_limit,omitempty"`

	CooldownHours int `gorm:"default:24" json:"cooldown_hours"`
	MaxRetries    int `gorm:"default:3" json:"max_retries"`
}
