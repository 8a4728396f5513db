package outreach

import (
	"testing"
	"time"

	"reachloop/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedExecution(t *testing.T, tracker *Tracker, status string) *models.Execution {
	t.Helper()
	execution := &models.Execution{
		EnrollmentID:      1,
		StepIndex:         0,
		TenantID:          1,
		ContactID:         1,
		Channel:           "email",
		Recipient:         gofakeit.Email(),
		Status:            status,
		ProviderMessageID: gofakeit.UUID(),
	}
	if status != models.ExecutionPending {
		now := time.Now()
		execution.SentAt = &now
	}
	require.NoError(t, tracker.DB.Create(execution).Error)
	return execution
}

func TestTrackerForwardProgression(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, NewLogger())
	execution := seedExecution(t, tracker, models.ExecutionSent)

	assert.True(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionDelivered, ""))
	assert.True(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionOpened, ""))
	assert.True(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionReplied, ""))

	var got models.Execution
	require.NoError(t, db.First(&got, execution.ID).Error)
	assert.Equal(t, models.ExecutionReplied, got.Status)
	assert.NotNil(t, got.DeliveredAt)
	assert.NotNil(t, got.OpenedAt)
	assert.NotNil(t, got.RepliedAt)
}

func TestTrackerSkipsIntermediateStatuses(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, NewLogger())
	execution := seedExecution(t, tracker, models.ExecutionSent)

	// Webhooks can arrive out of order; replied straight from sent is fine
	assert.True(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionReplied, ""))
}

func TestTrackerRejectsBackwardTransitions(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, NewLogger())
	execution := seedExecution(t, tracker, models.ExecutionOpened)

	assert.False(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionDelivered, ""))
	assert.False(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionSent, ""))

	var got models.Execution
	require.NoError(t, db.First(&got, execution.ID).Error)
	assert.Equal(t, models.ExecutionOpened, got.Status)
}

func TestTrackerDuplicateEventIsNoOp(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, NewLogger())
	execution := seedExecution(t, tracker, models.ExecutionSent)

	assert.True(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionDelivered, ""))
	assert.False(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionDelivered, ""))
}

func TestTrackerUnknownMessageID(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, NewLogger())

	assert.False(t, tracker.UpdateDeliveryStatus("no-such-id", models.ExecutionDelivered, ""))
	assert.False(t, tracker.UpdateDeliveryStatus("", models.ExecutionDelivered, ""))
}

func TestTrackerRejectsInvalidStatus(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, NewLogger())
	execution := seedExecution(t, tracker, models.ExecutionSent)

	assert.False(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, "exploded", ""))
}

func TestTrackerSinksOnlyFromPendingOrSent(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, NewLogger())

	sent := seedExecution(t, tracker, models.ExecutionSent)
	assert.True(t, tracker.UpdateDeliveryStatus(sent.ProviderMessageID, models.ExecutionBounced, "mailbox full"))

	var got models.Execution
	require.NoError(t, db.First(&got, sent.ID).Error)
	assert.Equal(t, models.ExecutionBounced, got.Status)
	assert.Equal(t, "mailbox full", got.ErrorMessage)

	opened := seedExecution(t, tracker, models.ExecutionOpened)
	assert.False(t, tracker.UpdateDeliveryStatus(opened.ProviderMessageID, models.ExecutionBounced, ""))
}

func TestTrackerNothingLeavesASink(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, NewLogger())
	execution := seedExecution(t, tracker, models.ExecutionBounced)

	assert.False(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionDelivered, ""))
	assert.False(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionFailed, ""))
}

func TestTrackerNeverTouchesEnrollments(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, NewLogger())

	due := time.Now()
	enrollment := models.Enrollment{
		SequenceID: 1, ContactID: 1, TenantID: 1,
		Status: models.EnrollmentActive, NextExecutionAt: &due,
	}
	require.NoError(t, db.Create(&enrollment).Error)

	execution := seedExecution(t, tracker, models.ExecutionSent)
	require.True(t, tracker.UpdateDeliveryStatus(execution.ProviderMessageID, models.ExecutionReplied, ""))

	var got models.Enrollment
	require.NoError(t, db.First(&got, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentActive, got.Status)
	assert.Equal(t, enrollment.Version, got.Version)
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{models.ExecutionPending, models.ExecutionSent, true},
		{models.ExecutionSent, models.ExecutionOpened, true},
		{models.ExecutionDelivered, models.ExecutionReplied, true},
		{models.ExecutionPending, models.ExecutionFailed, true},
		{models.ExecutionSent, models.ExecutionBounced, true},
		{models.ExecutionOpened, models.ExecutionBounced, false},
		{models.ExecutionReplied, models.ExecutionOpened, false},
		{models.ExecutionSent, models.ExecutionSent, false},
		{models.ExecutionFailed, models.ExecutionSent, false},
		{models.ExecutionSkipped, models.ExecutionFailed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
