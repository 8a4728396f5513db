package outreach

import (
	"errors"
	"time"

	"reachloop/models"

	"gorm.io/gorm"
)

// statusOrder ranks the forward delivery progression. The terminal
// failure statuses are not ranked; they are sinks with their own rule.
var statusOrder = map[string]int{
	models.ExecutionPending:   0,
	models.ExecutionSent:      1,
	models.ExecutionDelivered: 2,
	models.ExecutionOpened:    3,
	models.ExecutionReplied:   4,
}

func isSinkStatus(status string) bool {
	switch status {
	case models.ExecutionFailed, models.ExecutionBounced, models.ExecutionSkipped:
		return true
	}
	return false
}

// CanTransition reports whether an execution may move from one status to
// another. The progression is strictly monotonic; a sink can only be
// entered from pending or sent, and nothing leaves a sink.
func CanTransition(from, to string) bool {
	if isSinkStatus(from) {
		return false
	}
	if isSinkStatus(to) {
		return from == models.ExecutionPending || from == models.ExecutionSent
	}
	fromRank, ok := statusOrder[from]
	if !ok {
		return false
	}
	toRank, ok := statusOrder[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Tracker applies delivery-status updates coming back from providers
// (webhooks, tracking pixels, inbox replies). It only ever touches
// execution rows; enrollments belong to the executor.
type Tracker struct {
	DB     *gorm.DB
	Logger *Logger
}

func NewTracker(db *gorm.DB, logger *Logger) *Tracker {
	return &Tracker{DB: db, Logger: logger}
}

// UpdateDeliveryStatus moves the execution identified by a provider
// message id to a new status. Returns false for unknown ids, invalid
// statuses, and transitions that would go backwards; stale or duplicate
// webhook events land here and must be harmless.
func (t *Tracker) UpdateDeliveryStatus(providerMessageID, newStatus, errorMessage string) bool {
	if providerMessageID == "" {
		return false
	}
	if _, ranked := statusOrder[newStatus]; !ranked && !isSinkStatus(newStatus) {
		return false
	}

	var execution models.Execution
	err := t.DB.Where("provider_message_id = ?", providerMessageID).First(&execution).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Logger.Error("tracker_lookup_failed", 0, err, Fields{
				"provider_message_id": providerMessageID,
			})
		}
		return false
	}

	return t.apply(&execution, newStatus, errorMessage)
}

// UpdateByExecutionID is the same transition applied to a known row.
func (t *Tracker) UpdateByExecutionID(executionID uint, newStatus, errorMessage string) bool {
	if _, ranked := statusOrder[newStatus]; !ranked && !isSinkStatus(newStatus) {
		return false
	}
	var execution models.Execution
	if err := t.DB.First(&execution, executionID).Error; err != nil {
		return false
	}
	return t.apply(&execution, newStatus, errorMessage)
}

func (t *Tracker) apply(execution *models.Execution, newStatus, errorMessage string) bool {
	if !CanTransition(execution.Status, newStatus) {
		return false
	}

	now := time.Now()
	updates := map[string]interface{}{"status": newStatus}
	switch newStatus {
	case models.ExecutionSent:
		updates["sent_at"] = now
	case models.ExecutionDelivered:
		updates["delivered_at"] = now
	case models.ExecutionOpened:
		updates["opened_at"] = now
	case models.ExecutionReplied:
		updates["replied_at"] = now
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}

	// Guard on the previous status so two racing updates cannot both win
	res := t.DB.Model(&models.Execution{}).
		Where("id = ? AND status = ?", execution.ID, execution.Status).
		Updates(updates)
	if res.Error != nil {
		t.Logger.Error("tracker_update_failed", execution.TenantID, res.Error, Fields{
			"execution_id": execution.ID,
		})
		return false
	}
	if res.RowsAffected == 0 {
		return false
	}

	t.Logger.DeliveryUpdate(execution.TenantID, execution.ID, execution.Status, newStatus)
	return true
}
