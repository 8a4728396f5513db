package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment statuses
const (
	EnrollmentActive    = "active"
	EnrollmentPaused    = "paused"
	EnrollmentCompleted = "completed"
	EnrollmentCancelled = "cancelled"
)

// Enrollment walks one contact through one sequence. CurrentStepIndex is
// the next step to execute; NextExecutionAt is when it becomes due.
// Version is bumped on every advance so concurrent passes cannot claim
// the same enrollment twice.
type Enrollment struct {
	gorm.Model
	SequenceID       uint       `gorm:"not null;index" json:"sequence_id"`
	ContactID        uint       `gorm:"not null;index" json:"contact_id"`
	TenantID         uint       `gorm:"not null;index" json:"tenant_id"`
	Status           string     `gorm:"default:active;index" json:"status"` // active, paused, completed, cancelled
	CurrentStepIndex int        `gorm:"default:0" json:"current_step_index"`
	NextExecutionAt  *time.Time `gorm:"index" json:"next_execution_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CancelReason     string     `json:"cancel_reason,omitempty"`
	Version          int64      `gorm:"default:0" json:"version"`

	Sequence Sequence `gorm:"foreignKey:SequenceID" json:"sequence,omitempty"`
	Contact  Contact  `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

// IsTerminal reports whether the enrollment can still change state.
func (e *Enrollment) IsTerminal() bool {
	return e.Status == EnrollmentCompleted || e.Status == EnrollmentCancelled
}

// Execution statuses
const (
	ExecutionPending   = "pending"
	ExecutionSent      = "sent"
	ExecutionDelivered = "delivered"
	ExecutionOpened    = "opened"
	ExecutionReplied   = "replied"
	ExecutionFailed    = "failed"
	ExecutionBounced   = "bounced"
	ExecutionSkipped   = "skipped"
)

// Execution is the write-ahead record of one send attempt. A pending row
// is inserted before the provider is called, in the same transaction that
// claims the enrollment; the row is then updated, never deleted.
type Execution struct {
	gorm.Model
	EnrollmentID uint   `gorm:"not null;index" json:"enrollment_id"`
	StepIndex    int    `gorm:"not null" json:"step_index"`
	TenantID     uint   `gorm:"not null;index" json:"tenant_id"`
	ContactID    uint   `gorm:"not null;index" json:"contact_id"`
	Channel      string `gorm:"not null" json:"channel"`
	TemplateID   uint   `json:"template_id"`
	Recipient    string `json:"recipient"`
	Subject      string `json:"subject"`
	Body         string `gorm:"type:text" json:"body"`

	Status            string `gorm:"default:pending;index" json:"status"` // pending, sent, delivered, opened, replied, failed, bounced, skipped
	ProviderMessageID string `gorm:"index" json:"provider_message_id,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
	RetryCount        int    `gorm:"default:0" json:"retry_count"`

	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	OpenedAt    *time.Time `json:"opened_at,omitempty"`
	RepliedAt   *time.Time `json:"replied_at,omitempty"`
}
