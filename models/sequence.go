package models

import "gorm.io/gorm"

// Sequence is an ordered multi-channel drip flow a contact can be
// enrolled into.
type Sequence struct {
	gorm.Model
	TenantID    uint   `gorm:"not null;index" json:"tenant_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	// Contacts tagged with this value are auto-enrolled when the tag is applied
	TriggerTag string `json:"trigger_tag"`

	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// Step conditions. Unknown conditions are treated as met so a bad rule
// degrades to "always" instead of stalling the enrollment.
const (
	ConditionAlways  = "always"
	ConditionNoReply = "no_reply"
	ConditionNoOpen  = "no_open"
	ConditionReplied = "replied"
	ConditionOpened  = "opened"
)

// SequenceStep is one message in a sequence. StepOrder is zero-based and
// matches Enrollment.CurrentStepIndex.
type SequenceStep struct {
	gorm.Model
	SequenceID uint   `gorm:"not null;index:idx_sequence_step,unique" json:"sequence_id"`
	StepOrder  int    `gorm:"not null;index:idx_sequence_step,unique" json:"step_order"`
	Channel    string `gorm:"not null" json:"channel"`
	TemplateID uint   `gorm:"not null" json:"template_id"`
	DelayHours int    `gorm:"default:0" json:"delay_hours"`
	Condition  string `gorm:"default:always" json:"condition"` // always, no_reply, no_open, replied, opened
}

// MessageTemplate holds a reusable message body with {{variable}}
// placeholders. Subject is only meaningful for email.
type MessageTemplate struct {
	gorm.Model
	TenantID uint   `gorm:"not null;index" json:"tenant_id"`
	Name     string `gorm:"not null" json:"name"`
	Channel  string `gorm:"not null" json:"channel"`
	Category string `json:"category"` // intro, follow_up, re_engagement
	Subject  string `json:"subject"`
	Body     string `gorm:"type:text" json:"body"`
	IsSystem bool   `gorm:"default:false" json:"is_system"`
}
