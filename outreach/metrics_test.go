package outreach

import (
	"testing"

	"reachloop/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAggregation(t *testing.T) {
	db := newTestDB(t)

	seed := func(channel, status string, n int) {
		for i := 0; i < n; i++ {
			require.NoError(t, db.Create(&models.Execution{
				EnrollmentID: 1, TenantID: 1, ContactID: 1,
				Channel: channel, Status: status,
			}).Error)
		}
	}
	seed("email", models.ExecutionSent, 4)
	seed("email", models.ExecutionDelivered, 2)
	seed("email", models.ExecutionOpened, 2)
	seed("email", models.ExecutionReplied, 2)
	seed("email", models.ExecutionFailed, 1)
	seed("chat", models.ExecutionSent, 5)
	seed("chat", models.ExecutionSkipped, 3)

	// Another tenant's rows must not leak in
	require.NoError(t, db.Create(&models.Execution{
		EnrollmentID: 2, TenantID: 2, ContactID: 2,
		Channel: "email", Status: models.ExecutionSent,
	}).Error)

	require.NoError(t, db.Create(&models.Enrollment{
		SequenceID: 1, ContactID: 1, TenantID: 1, Status: models.EnrollmentActive,
	}).Error)
	require.NoError(t, db.Create(&models.Enrollment{
		SequenceID: 1, ContactID: 2, TenantID: 1, Status: models.EnrollmentCompleted,
	}).Error)

	m, err := Metrics(db, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(2), m.TotalEnrollments)
	assert.Equal(t, int64(1), m.ActiveEnrollments)

	// Later statuses imply the earlier ones
	email := m.ByChannel["email"]
	require.NotNil(t, email)
	assert.Equal(t, int64(10), email.Sent)
	assert.Equal(t, int64(6), email.Delivered)
	assert.Equal(t, int64(4), email.Opened)
	assert.Equal(t, int64(2), email.Replied)
	assert.Equal(t, int64(1), email.Failed)

	chat := m.ByChannel["chat"]
	require.NotNil(t, chat)
	assert.Equal(t, int64(5), chat.Sent)
	assert.Equal(t, int64(3), chat.Skipped)

	assert.Equal(t, int64(15), m.Totals.Sent)
	assert.InDelta(t, 6.0/15.0, m.DeliveryRate, 1e-9)
	assert.InDelta(t, 4.0/15.0, m.OpenRate, 1e-9)
	assert.InDelta(t, 2.0/15.0, m.ReplyRate, 1e-9)
}

func TestMetricsEmptyTenant(t *testing.T) {
	db := newTestDB(t)
	m, err := Metrics(db, 1)
	require.NoError(t, err)
	assert.Zero(t, m.Totals.Sent)
	assert.Zero(t, m.DeliveryRate)
	assert.Empty(t, m.ByChannel)
}
