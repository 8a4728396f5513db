package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact is an outreach recipient. Each channel reads a different
// address field: email for SMTP, phone for the chat API, chat id for
// the bot API.
type Contact struct {
	gorm.Model
	TenantID  uint   `gorm:"not null;index" json:"tenant_id"`
	Email     string `gorm:"index" json:"email"`
	Phone     string `json:"phone"`
	ChatID    string `json:"chat_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	JobTitle  string `json:"job_title"`

	// Global opt-out: set once the contact unsubscribes from everything
	OptedOutAt *time.Time `json:"opted_out_at,omitempty"`

	CustomFields []ContactCustomField `gorm:"foreignKey:ContactID" json:"custom_fields,omitempty"`
}

type ContactCustomField struct {
	gorm.Model
	ContactID uint   `gorm:"not null;index" json:"contact_id"`
	Name      string `gorm:"not null" json:"name"`
	Value     string `json:"value"`
}

// ConsentRecord tracks channel-level messaging consent per contact.
// A revoked or missing record blocks sending on consent-mandatory
// channels at execution time, not at enrollment time.
type ConsentRecord struct {
	gorm.Model
	TenantID   uint       `gorm:"not null;index" json:"tenant_id"`
	ContactID  uint       `gorm:"not null;index:idx_consent_contact_channel" json:"contact_id"`
	Channel    string     `gorm:"not null;index:idx_consent_contact_channel" json:"channel"`
	Granted    bool       `gorm:"default:false" json:"granted"`
	GrantedAt  *time.Time `json:"granted_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LegalBasis string     `json:"legal_basis"` // consent, legitimate_interest, contract
	Source     string     `json:"source"`      // form, import, api, manual
}

// HasConsent reports whether the record currently authorizes sending.
func (c *ConsentRecord) HasConsent() bool {
	return c.Granted && c.RevokedAt == nil
}
