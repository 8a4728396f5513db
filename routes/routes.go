package routes

import (
	"reachloop/config"
	"reachloop/controllers"
	"reachloop/middleware"
	"reachloop/outreach"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func SetupRoutes(app *fiber.App, executor *outreach.Executor, tracker *outreach.Tracker, events *outreach.Logger, hub *outreach.Hub) {
	db := config.DB

	cronController := controllers.NewCronController(executor)
	webhookController := controllers.NewWebhookController(tracker, events)
	trackingController := controllers.NewTrackingController(tracker)
	enrollmentController := controllers.NewEnrollmentController(db)
	sequenceController := controllers.NewSequenceController(db)
	outreachController := controllers.NewOutreachController(db, hub)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Scheduler trigger: GET is open health metadata, POST does the work
	cron := app.Group("/cron")
	cron.Get("/outreach", cronController.Status)
	cron.Post("/outreach", middleware.CronAuth(), cronController.TriggerOutreach)

	// Provider delivery events
	app.Post("/webhooks/:channel/events",
		middleware.WebhookRateLimit(),
		webhookController.HandleChannelEvents)

	// Email open pixel and click redirect
	app.Get("/track/open/:executionID/:token", trackingController.TrackOpen)
	app.Get("/track/click/:executionID/:token", trackingController.TrackClick)

	// Tenant admin API
	api := app.Group("/api/v1", middleware.TenantAuth())

	api.Post("/enrollments", enrollmentController.CreateEnrollment)
	api.Get("/enrollments", enrollmentController.ListEnrollments)
	api.Post("/enrollments/:id/pause", enrollmentController.PauseEnrollment)
	api.Post("/enrollments/:id/resume", enrollmentController.ResumeEnrollment)
	api.Post("/enrollments/:id/cancel", enrollmentController.CancelEnrollment)

	api.Post("/sequences", sequenceController.CreateSequence)
	api.Get("/sequences", sequenceController.ListSequences)
	api.Get("/sequences/:id", sequenceController.GetSequence)
	api.Post("/sequences/:id/deactivate", sequenceController.DeactivateSequence)

	api.Post("/templates", sequenceController.CreateTemplate)
	api.Get("/templates", sequenceController.ListTemplates)

	api.Put("/channels/config", outreachController.UpsertChannelConfig)
	api.Get("/channels/config", outreachController.ListChannelConfigs)

	api.Post("/consent/grant", outreachController.GrantConsent)
	api.Post("/consent/revoke", outreachController.RevokeConsent)

	api.Get("/outreach/metrics", outreachController.GetMetrics)

	api.Use("/outreach/progress", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/outreach/progress", websocket.New(outreachController.ProgressSocket))
}
