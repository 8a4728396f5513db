package outreach

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"reachloop/models"

	"gorm.io/gorm"
)

// ProcessResult summarizes one executor pass.
type ProcessResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

func (r *ProcessResult) add(o outcome) {
	switch o {
	case outcomeSent:
		r.Processed++
		r.Sent++
	case outcomeSkipped:
		r.Processed++
		r.Skipped++
	case outcomeFailed:
		r.Processed++
		r.Failed++
	case outcomeCompleted:
		r.Processed++
		r.Completed++
	}
}

type outcome int

const (
	outcomeNone outcome = iota // claim lost to a concurrent pass
	outcomeSent
	outcomeSkipped
	outcomeFailed
	outcomeCompleted
)

// Executor walks due enrollments through their next sequence step.
// Passes may overlap (cron trigger plus in-process ticker); the version
// CAS on the enrollment row guarantees each step is claimed once.
type Executor struct {
	DB        *gorm.DB
	Providers *ProviderSet
	Tracker   *Tracker
	Logger    *Logger
	Hub       *Hub

	BatchSize   int
	Workers     int
	SendTimeout time.Duration
	BaseURL     string

	stdLog *log.Logger
}

func NewExecutor(db *gorm.DB, providers *ProviderSet, tracker *Tracker, logger *Logger, hub *Hub) *Executor {
	return &Executor{
		DB:          db,
		Providers:   providers,
		Tracker:     tracker,
		Logger:      logger,
		Hub:         hub,
		BatchSize:   20,
		Workers:     4,
		SendTimeout: 15 * time.Second,
		stdLog:      log.New(os.Stdout, "EXECUTOR: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// ProcessQueue runs one pass: snapshot flags, pull a batch of due
// enrollments oldest-first, and fan them out over a bounded worker pool.
func (e *Executor) ProcessQueue(ctx context.Context) (ProcessResult, error) {
	var result ProcessResult

	flags := NewFlagSnapshot()
	if flags.KillSwitch {
		e.stdLog.Println("kill switch active, skipping pass")
		e.Logger.Event("pass_kill_switch", 0, nil)
		return result, nil
	}

	now := time.Now()
	var enrollments []models.Enrollment
	err := e.DB.
		Where("status = ? AND next_execution_at IS NOT NULL AND next_execution_at <= ?",
			models.EnrollmentActive, now).
		Order("next_execution_at ASC").
		Limit(e.BatchSize).
		Preload("Contact").
		Preload("Contact.CustomFields").
		Find(&enrollments).Error
	if err != nil {
		return result, fmt.Errorf("failed to load due enrollments: %w", err)
	}
	if len(enrollments) == 0 {
		return result, nil
	}

	e.stdLog.Printf("pass started: %d due enrollments", len(enrollments))

	jobs := make(chan models.Enrollment)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := e.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for enrollment := range jobs {
				o := e.safeProcess(ctx, flags, enrollment)
				mu.Lock()
				result.add(o)
				mu.Unlock()
			}
		}()
	}

	for _, enrollment := range enrollments {
		select {
		case <-ctx.Done():
		case jobs <- enrollment:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()

	e.stdLog.Printf("pass finished: processed=%d sent=%d skipped=%d failed=%d completed=%d",
		result.Processed, result.Sent, result.Skipped, result.Failed, result.Completed)
	e.Logger.Event("pass_complete", 0, Fields{
		"processed": result.Processed,
		"sent":      result.Sent,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"completed": result.Completed,
	})
	if e.Hub != nil {
		e.Hub.Publish(result)
	}
	return result, nil
}

// safeProcess wraps one enrollment in a recover boundary so a panic
// cannot take down the whole pass.
func (e *Executor) safeProcess(ctx context.Context, flags FlagSnapshot, enrollment models.Enrollment) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error("enrollment_panic", enrollment.TenantID,
				fmt.Errorf("panic processing enrollment %d: %v", enrollment.ID, r),
				Fields{"enrollment_id": enrollment.ID})
			o = outcomeFailed
		}
	}()
	return e.processEnrollment(ctx, flags, enrollment)
}

func (e *Executor) processEnrollment(ctx context.Context, flags FlagSnapshot, enrollment models.Enrollment) outcome {
	now := time.Now()

	// Resolve the step this enrollment is parked on
	var step models.SequenceStep
	err := e.DB.Where("sequence_id = ? AND step_order = ?",
		enrollment.SequenceID, enrollment.CurrentStepIndex).First(&step).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if e.completeEnrollment(&enrollment, now) {
				return outcomeCompleted
			}
			return outcomeNone
		}
		e.Logger.Error("step_lookup_failed", enrollment.TenantID, err,
			Fields{"enrollment_id": enrollment.ID})
		return outcomeFailed
	}

	channel := Channel(step.Channel)
	capability, known := Capabilities[channel]
	if !known {
		return e.skipStep(&enrollment, &step, "unknown channel: "+step.Channel, now)
	}

	// Step condition: unmet means silently advance, no execution row
	if !e.conditionMet(&enrollment, &step) {
		e.Logger.Event("condition_unmet", enrollment.TenantID, Fields{
			"enrollment_id": enrollment.ID,
			"step_index":    enrollment.CurrentStepIndex,
			"condition":     step.Condition,
		})
		completed, ok := e.advanceEnrollment(&enrollment, now)
		if !ok {
			return outcomeNone
		}
		if completed {
			return outcomeCompleted
		}
		return outcomeSkipped
	}

	// Tenant gate: logged skip without advancing, so re-enabling the
	// tenant resumes exactly where the enrollment paused
	if !flags.TenantEnabled(e.DB, enrollment.TenantID) {
		e.Logger.SafetySkip(enrollment.TenantID, enrollment.ID, "tenant_disabled", nil)
		return outcomeSkipped
	}

	// Consent gate on consent-mandatory channels
	if capability.ConsentRequired && !e.hasConsent(&enrollment, channel) {
		if !e.cancelEnrollment(&enrollment, "consent_withdrawn") {
			return outcomeNone
		}
		e.recordSkip(&enrollment, &step, enrollment.CurrentStepIndex, "", "consent missing or withdrawn")
		return outcomeSkipped
	}

	channelCfg := e.channelConfig(enrollment.TenantID, channel, capability)
	if !channelCfg.Enabled {
		return e.skipStep(&enrollment, &step, "channel disabled for tenant", now)
	}

	// Daily quota: push back an hour and let a later pass retry
	if channelCfg.DailyLimit != nil && e.sentToday(enrollment.TenantID, channel, now) >= *channelCfg.DailyLimit {
		e.Logger.SafetySkip(enrollment.TenantID, enrollment.ID, "daily_limit_reached",
			Fields{"channel": string(channel)})
		if !e.reschedule(&enrollment, now.Add(time.Hour)) {
			return outcomeNone
		}
		return outcomeSkipped
	}

	// Per-recipient cooldown on this channel, across all sequences
	if lastSend := e.lastSendAt(enrollment.TenantID, enrollment.ContactID, channel); lastSend != nil {
		cooldown := time.Duration(channelCfg.CooldownHours) * time.Hour
		if until := lastSend.Add(cooldown); now.Before(until) {
			e.Logger.SafetySkip(enrollment.TenantID, enrollment.ID, "cooldown_active",
				Fields{"channel": string(channel), "resume_at": until})
			if !e.reschedule(&enrollment, until) {
				return outcomeNone
			}
			return outcomeSkipped
		}
	}

	provider, err := e.Providers.For(channel)
	if err != nil || !provider.IsConfigured() {
		e.Logger.SafetySkip(enrollment.TenantID, enrollment.ID, "provider_not_configured",
			Fields{"channel": string(channel)})
		return e.skipStep(&enrollment, &step, "provider not configured", now)
	}

	recipient := recipientFor(channel, &enrollment.Contact)
	if recipient == "" || !provider.ValidateRecipient(recipient) {
		return e.failStep(&enrollment, &step, recipient, "invalid or missing recipient", now)
	}

	var template models.MessageTemplate
	if err := e.DB.First(&template, step.TemplateID).Error; err != nil {
		return e.failStep(&enrollment, &step, recipient, "template not found", now)
	}

	subject, body := RenderMessage(&template, BuildVars(&enrollment.Contact))
	body = truncateBody(body, capability.MaxBodyLength)

	// Retry budget across passes for this step
	priorFailures := e.failureCount(enrollment.ID, enrollment.CurrentStepIndex)
	maxRetries := channelCfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = capability.DefaultMaxRetries
	}
	if priorFailures >= maxRetries {
		if !e.cancelEnrollment(&enrollment, "retries_exhausted") {
			return outcomeNone
		}
		e.recordBounce(&enrollment, &step, enrollment.CurrentStepIndex, recipient, priorFailures)
		return outcomeFailed
	}

	execution, claimed := e.claim(&enrollment, &step, recipient, subject, body, priorFailures)
	if !claimed {
		return outcomeNone
	}
	if execution == nil {
		// A stale pending row from a crashed pass was failed out; the
		// enrollment stays due and the next pass retries
		return outcomeFailed
	}

	if channel == ChannelEmail && capability.SupportsOpenTracking {
		body = InjectOpenPixel(body, e.BaseURL, execution.ID)
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.SendTimeout)
	defer cancel()
	result := provider.Send(sendCtx, recipient, subject, body)
	e.Logger.SendResultLog(enrollment.TenantID, enrollment.ID, execution.ID, channel, result)

	if !result.Success {
		msg := "send failed"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		e.DB.Model(&models.Execution{}).Where("id = ?", execution.ID).
			Updates(map[string]interface{}{
				"status":        models.ExecutionFailed,
				"error_message": msg,
			})
		// Leave the enrollment due so the next pass retries under the budget
		return outcomeFailed
	}

	sentAt := time.Now()
	e.DB.Model(&models.Execution{}).Where("id = ?", execution.ID).
		Updates(map[string]interface{}{
			"status":              models.ExecutionSent,
			"provider_message_id": result.ProviderMessageID,
			"sent_at":             sentAt,
		})

	if _, ok := e.advanceEnrollment(&enrollment, sentAt); !ok {
		e.Logger.Event("advance_lost", enrollment.TenantID,
			Fields{"enrollment_id": enrollment.ID, "step_index": enrollment.CurrentStepIndex})
	}
	return outcomeSent
}

// claim atomically bumps the enrollment version and writes the pending
// execution in one transaction. A false second return means another pass
// holds this step: either it won the version CAS, or its pending row is
// younger than the send timeout, meaning its send is still in flight. A
// pending row older than the send timeout belongs to a crashed pass and
// is failed out instead (nil execution with claimed=true); the
// enrollment stays due and the next pass retries.
func (e *Executor) claim(enrollment *models.Enrollment, step *models.SequenceStep, recipient, subject, body string, retryCount int) (*models.Execution, bool) {
	var execution *models.Execution
	stale := false
	cutoff := time.Now().Add(-e.SendTimeout)

	err := e.DB.Transaction(func(tx *gorm.DB) error {
		var pending models.Execution
		err := tx.Where("enrollment_id = ? AND step_index = ? AND status = ?",
			enrollment.ID, enrollment.CurrentStepIndex, models.ExecutionPending).
			First(&pending).Error
		switch {
		case err == nil && pending.CreatedAt.After(cutoff):
			// A concurrent pass is mid-send on this step; back off
			// without touching the version so its advance still lands
			return errClaimLost
		case err == nil:
			stale = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		res := tx.Model(&models.Enrollment{}).
			Where("id = ? AND version = ? AND status = ?",
				enrollment.ID, enrollment.Version, models.EnrollmentActive).
			Update("version", enrollment.Version+1)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errClaimLost
		}
		enrollment.Version++

		if stale {
			return tx.Model(&pending).Updates(map[string]interface{}{
				"status":        models.ExecutionFailed,
				"error_message": "send interrupted",
			}).Error
		}

		execution = &models.Execution{
			EnrollmentID: enrollment.ID,
			StepIndex:    enrollment.CurrentStepIndex,
			TenantID:     enrollment.TenantID,
			ContactID:    enrollment.ContactID,
			Channel:      step.Channel,
			TemplateID:   step.TemplateID,
			Recipient:    recipient,
			Subject:      subject,
			Body:         body,
			Status:       models.ExecutionPending,
			RetryCount:   retryCount,
		}
		return tx.Create(execution).Error
	})

	if errors.Is(err, errClaimLost) {
		return nil, false
	}
	if err != nil {
		e.Logger.Error("claim_failed", enrollment.TenantID, err,
			Fields{"enrollment_id": enrollment.ID})
		return nil, false
	}
	if stale {
		return nil, true
	}
	return execution, true
}

var errClaimLost = errors.New("enrollment claimed by another pass")

// conditionMet evaluates the step condition against the previous
// execution. Conditions the prior channel cannot observe fail open so a
// sequence never stalls on signals that will never arrive.
func (e *Executor) conditionMet(enrollment *models.Enrollment, step *models.SequenceStep) bool {
	condition := step.Condition
	if condition == "" || condition == models.ConditionAlways {
		return true
	}

	var prev models.Execution
	err := e.DB.Where("enrollment_id = ? AND status NOT IN ?",
		enrollment.ID, []string{models.ExecutionSkipped, models.ExecutionFailed}).
		Order("step_index DESC").First(&prev).Error
	if err != nil {
		// No observable prior send: nothing to condition on
		return condition == models.ConditionNoReply || condition == models.ConditionNoOpen
	}

	prevCap, known := Capabilities[Channel(prev.Channel)]
	opened := prev.Status == models.ExecutionOpened || prev.Status == models.ExecutionReplied
	replied := prev.Status == models.ExecutionReplied

	switch condition {
	case models.ConditionNoReply:
		if known && !prevCap.SupportsReplyDetection {
			return true
		}
		return !replied
	case models.ConditionReplied:
		if known && !prevCap.SupportsReplyDetection {
			return true
		}
		return replied
	case models.ConditionNoOpen:
		if known && !prevCap.SupportsOpenTracking && !prevCap.SupportsReadTracking {
			return true
		}
		return !opened
	case models.ConditionOpened:
		if known && !prevCap.SupportsOpenTracking && !prevCap.SupportsReadTracking {
			return true
		}
		return opened
	default:
		// Unknown rule degrades to always rather than stalling
		return true
	}
}

func (e *Executor) hasConsent(enrollment *models.Enrollment, channel Channel) bool {
	if enrollment.Contact.OptedOutAt != nil {
		return false
	}
	var record models.ConsentRecord
	err := e.DB.Where("tenant_id = ? AND contact_id = ? AND channel = ?",
		enrollment.TenantID, enrollment.ContactID, string(channel)).
		Order("id DESC").First(&record).Error
	if err != nil {
		return false
	}
	return record.HasConsent()
}

// channelConfig loads the tenant's row for a channel, falling back to
// capability defaults when none exists.
func (e *Executor) channelConfig(tenantID uint, channel Channel, capability Capability) models.ChannelConfig {
	var cfg models.ChannelConfig
	err := e.DB.Where("tenant_id = ? AND channel = ?", tenantID, string(channel)).First(&cfg).Error
	if err != nil {
		return models.ChannelConfig{
			TenantID:      tenantID,
			Channel:       string(channel),
			Enabled:       true,
			CooldownHours: 24,
			MaxRetries:    capability.DefaultMaxRetries,
		}
	}
	if cfg.CooldownHours <= 0 {
		cfg.CooldownHours = 24
	}
	return cfg
}

func (e *Executor) sentToday(tenantID uint, channel Channel, now time.Time) int {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	var count int64
	e.DB.Model(&models.Execution{}).
		Where("tenant_id = ? AND channel = ? AND sent_at >= ?", tenantID, string(channel), dayStart).
		Count(&count)
	return int(count)
}

func (e *Executor) lastSendAt(tenantID, contactID uint, channel Channel) *time.Time {
	var execution models.Execution
	err := e.DB.Where("tenant_id = ? AND contact_id = ? AND channel = ? AND sent_at IS NOT NULL",
		tenantID, contactID, string(channel)).
		Order("sent_at DESC").First(&execution).Error
	if err != nil {
		return nil
	}
	return execution.SentAt
}

func (e *Executor) failureCount(enrollmentID uint, stepIndex int) int {
	var count int64
	e.DB.Model(&models.Execution{}).
		Where("enrollment_id = ? AND step_index = ? AND status = ?",
			enrollmentID, stepIndex, models.ExecutionFailed).
		Count(&count)
	return int(count)
}

// mutateEnrollment applies updates under the optimistic lock. A false
// return means another pass changed the enrollment first; the caller
// drops it and the fresher pass's state stands.
func (e *Executor) mutateEnrollment(enrollment *models.Enrollment, updates map[string]interface{}) bool {
	updates["version"] = enrollment.Version + 1
	res := e.DB.Model(&models.Enrollment{}).
		Where("id = ? AND version = ? AND status = ?",
			enrollment.ID, enrollment.Version, models.EnrollmentActive).
		Updates(updates)
	if res.Error != nil || res.RowsAffected == 0 {
		return false
	}
	enrollment.Version++
	return true
}

// advanceEnrollment moves to the next step, or completes when there is
// none. completed reports which path ran; ok=false means the version
// race was lost and nothing was written.
func (e *Executor) advanceEnrollment(enrollment *models.Enrollment, now time.Time) (completed, ok bool) {
	var next models.SequenceStep
	err := e.DB.Where("sequence_id = ? AND step_order = ?",
		enrollment.SequenceID, enrollment.CurrentStepIndex+1).First(&next).Error
	if err != nil {
		return true, e.completeEnrollment(enrollment, now)
	}

	nextAt := now.Add(time.Duration(next.DelayHours) * time.Hour)
	if !e.mutateEnrollment(enrollment, map[string]interface{}{
		"current_step_index": enrollment.CurrentStepIndex + 1,
		"next_execution_at":  nextAt,
	}) {
		return false, false
	}
	enrollment.CurrentStepIndex++
	enrollment.NextExecutionAt = &nextAt
	return false, true
}

func (e *Executor) completeEnrollment(enrollment *models.Enrollment, now time.Time) bool {
	if !e.mutateEnrollment(enrollment, map[string]interface{}{
		"status":            models.EnrollmentCompleted,
		"completed_at":      now,
		"next_execution_at": nil,
	}) {
		return false
	}
	enrollment.Status = models.EnrollmentCompleted
	e.Logger.Event("enrollment_completed", enrollment.TenantID,
		Fields{"enrollment_id": enrollment.ID})
	return true
}

func (e *Executor) cancelEnrollment(enrollment *models.Enrollment, reason string) bool {
	if !e.mutateEnrollment(enrollment, map[string]interface{}{
		"status":            models.EnrollmentCancelled,
		"cancel_reason":     reason,
		"next_execution_at": nil,
	}) {
		return false
	}
	enrollment.Status = models.EnrollmentCancelled
	e.Logger.Event("enrollment_cancelled", enrollment.TenantID,
		Fields{"enrollment_id": enrollment.ID, "reason": reason})
	return true
}

func (e *Executor) reschedule(enrollment *models.Enrollment, at time.Time) bool {
	if !e.mutateEnrollment(enrollment, map[string]interface{}{
		"next_execution_at": at,
	}) {
		return false
	}
	enrollment.NextExecutionAt = &at
	return true
}

// skipStep advances past the step and writes the skipped audit row. The
// version guard on the advance means only the winning pass writes the
// row, so a stale overlapping pass cannot duplicate it.
func (e *Executor) skipStep(enrollment *models.Enrollment, step *models.SequenceStep, reason string, now time.Time) outcome {
	stepIndex := enrollment.CurrentStepIndex
	if _, ok := e.advanceEnrollment(enrollment, now); !ok {
		return outcomeNone
	}
	e.recordSkip(enrollment, step, stepIndex, "", reason)
	return outcomeSkipped
}

// failStep is the skipStep counterpart for steps that cannot be sent at
// all (missing recipient, missing template).
func (e *Executor) failStep(enrollment *models.Enrollment, step *models.SequenceStep, recipient, reason string, now time.Time) outcome {
	stepIndex := enrollment.CurrentStepIndex
	if _, ok := e.advanceEnrollment(enrollment, now); !ok {
		return outcomeNone
	}
	e.recordFailure(enrollment, step, stepIndex, recipient, "", reason, 0)
	return outcomeFailed
}

// recordSkip writes a skipped execution row so the audit trail shows why
// the step produced no message.
func (e *Executor) recordSkip(enrollment *models.Enrollment, step *models.SequenceStep, stepIndex int, recipient, reason string) {
	e.DB.Create(&models.Execution{
		EnrollmentID: enrollment.ID,
		StepIndex:    stepIndex,
		TenantID:     enrollment.TenantID,
		ContactID:    enrollment.ContactID,
		Channel:      step.Channel,
		TemplateID:   step.TemplateID,
		Recipient:    recipient,
		Status:       models.ExecutionSkipped,
		ErrorMessage: reason,
	})
}

func (e *Executor) recordFailure(enrollment *models.Enrollment, step *models.SequenceStep, stepIndex int, recipient, subject, reason string, retryCount int) {
	e.DB.Create(&models.Execution{
		EnrollmentID: enrollment.ID,
		StepIndex:    stepIndex,
		TenantID:     enrollment.TenantID,
		ContactID:    enrollment.ContactID,
		Channel:      step.Channel,
		TemplateID:   step.TemplateID,
		Recipient:    recipient,
		Subject:      subject,
		Status:       models.ExecutionFailed,
		ErrorMessage: reason,
		RetryCount:   retryCount,
	})
}

func (e *Executor) recordBounce(enrollment *models.Enrollment, step *models.SequenceStep, stepIndex int, recipient string, retryCount int) {
	e.DB.Create(&models.Execution{
		EnrollmentID: enrollment.ID,
		StepIndex:    stepIndex,
		TenantID:     enrollment.TenantID,
		ContactID:    enrollment.ContactID,
		Channel:      step.Channel,
		TemplateID:   step.TemplateID,
		Recipient:    recipient,
		Status:       models.ExecutionBounced,
		ErrorMessage: "retry budget exhausted",
		RetryCount:   retryCount,
	})
}

// truncateBody enforces the channel body limit without splitting a
// multibyte rune at the cut.
func truncateBody(body string, limit int) string {
	if limit <= 0 || len(body) <= limit {
		return body
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

func recipientFor(channel Channel, contact *models.Contact) string {
	switch channel {
	case ChannelEmail:
		return contact.Email
	case ChannelChat:
		return contact.Phone
	case ChannelBot:
		return contact.ChatID
	}
	return ""
}
