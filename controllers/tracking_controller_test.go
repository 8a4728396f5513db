package controllers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"reachloop/config"
	"reachloop/models"
	"reachloop/outreach"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func trackingTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	config.AppConfig.TrackingSecret = "tracking-secret"

	db := newTestDB(t)
	tracker := outreach.NewTracker(db, outreach.NewLogger())
	tc := NewTrackingController(tracker)

	app := fiber.New()
	app.Get("/track/open/:executionID/:token", tc.TrackOpen)
	app.Get("/track/click/:executionID/:token", tc.TrackClick)
	return app, db
}

func TestTrackOpenRecordsOpen(t *testing.T) {
	app, db := trackingTestApp(t)
	execution := seedSentExecution(t, db, "msg-open")

	url := fmt.Sprintf("/track/open/%d/%s", execution.ID, outreach.TrackingToken(execution.ID))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/gif", resp.Header.Get("Content-Type"))

	var got models.Execution
	require.NoError(t, db.First(&got, execution.ID).Error)
	assert.Equal(t, models.ExecutionOpened, got.Status)
}

func TestTrackOpenBadTokenStillServesPixel(t *testing.T) {
	app, db := trackingTestApp(t)
	execution := seedSentExecution(t, db, "msg-forged")

	url := fmt.Sprintf("/track/open/%d/forged-token", execution.ID)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.Execution
	require.NoError(t, db.First(&got, execution.ID).Error)
	assert.Equal(t, models.ExecutionSent, got.Status)
}

func TestTrackClickRedirectsAndRecordsOpen(t *testing.T) {
	app, db := trackingTestApp(t)
	execution := seedSentExecution(t, db, "msg-click")

	url := fmt.Sprintf("/track/click/%d/%s?url=https://example.com/pricing",
		execution.ID, outreach.TrackingToken(execution.ID))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.com/pricing", resp.Header.Get("Location"))

	var got models.Execution
	require.NoError(t, db.First(&got, execution.ID).Error)
	assert.Equal(t, models.ExecutionOpened, got.Status)
}
