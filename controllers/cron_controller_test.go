package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"reachloop/config"
	"reachloop/middleware"
	"reachloop/outreach"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cronTestApp(t *testing.T) *fiber.App {
	t.Helper()
	config.AppConfig.CronSecret = "cron-secret"

	db := newTestDB(t)
	events := outreach.NewLogger()
	tracker := outreach.NewTracker(db, events)
	executor := outreach.NewExecutor(db, &outreach.ProviderSet{}, tracker, events, nil)
	cc := NewCronController(executor)

	app := fiber.New()
	app.Get("/cron/outreach", cc.Status)
	app.Post("/cron/outreach", middleware.CronAuth(), cc.TriggerOutreach)
	return app
}

func TestCronTriggerRequiresSecret(t *testing.T) {
	app := cronTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/cron/outreach", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/cron/outreach", nil)
	req.Header.Set("X-Cron-Secret", "wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCronTriggerRunsPass(t *testing.T) {
	app := cronTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/cron/outreach", nil)
	req.Header.Set("X-Cron-Secret", "cron-secret")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body struct {
		Success bool                   `json:"success"`
		Result  outreach.ProcessResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.True(t, body.Success)
	assert.Zero(t, body.Result.Processed)
}

func TestCronStatusIsOpen(t *testing.T) {
	app := cronTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/cron/outreach", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "outreach-sequence-executor", body["engine"])
	assert.Contains(t, body, "kill_switch_active")
}
