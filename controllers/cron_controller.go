package controllers

import (
	"log"
	"os"

	"reachloop/outreach"

	"github.com/gofiber/fiber/v2"
)

// CronController exposes the scheduler trigger for the outreach engine.
// External schedulers POST here; the in-process ticker shares the same
// executor, and overlapping passes are safe.
type CronController struct {
	Executor *outreach.Executor
	Logger   *log.Logger
}

func NewCronController(executor *outreach.Executor) *CronController {
	return &CronController{
		Executor: executor,
		Logger:   log.New(os.Stdout, "CRON: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// TriggerOutreach runs one executor pass and returns its counters.
func (cc *CronController) TriggerOutreach(c *fiber.Ctx) error {
	cc.Logger.Println("outreach pass triggered via cron endpoint")

	result, err := cc.Executor.ProcessQueue(c.Context())
	if err != nil {
		cc.Logger.Printf("outreach pass failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "outreach pass failed",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"result":  result,
	})
}

// Status reports engine metadata without running anything. Left open so
// uptime monitors can probe it.
func (cc *CronController) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"engine":             "outreach-sequence-executor",
		"schedule":           "*/5 * * * *",
		"kill_switch_active": outreach.IsKillSwitchActive(),
	})
}
