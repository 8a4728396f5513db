package controllers

import (
	"log"
	"os"
	"strconv"

	"reachloop/models"
	"reachloop/outreach"

	"github.com/gofiber/fiber/v2"
)

// transparent 1x1 GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingController serves the open pixel and click redirect baked into
// outgoing email bodies. Both endpoints are token-gated and both always
// serve their payload; tracking must never break the recipient's view.
type TrackingController struct {
	Tracker *outreach.Tracker
	Logger  *log.Logger
}

func NewTrackingController(tracker *outreach.Tracker) *TrackingController {
	return &TrackingController{
		Tracker: tracker,
		Logger:  log.New(os.Stdout, "TRACKING: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// TrackOpen handles GET /track/open/:executionID/:token.
func (tc *TrackingController) TrackOpen(c *fiber.Ctx) error {
	if id, ok := tc.verifiedExecutionID(c); ok {
		tc.Tracker.UpdateByExecutionID(id, models.ExecutionOpened, "")
	}
	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store")
	return c.Send(pixelGIF)
}

// TrackClick handles GET /track/click/:executionID/:token?url=...
// A click also implies the message was opened.
func (tc *TrackingController) TrackClick(c *fiber.Ctx) error {
	target := c.Query("url")
	if id, ok := tc.verifiedExecutionID(c); ok {
		tc.Tracker.UpdateByExecutionID(id, models.ExecutionOpened, "")
	}
	if target == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	return c.Redirect(target, fiber.StatusFound)
}

func (tc *TrackingController) verifiedExecutionID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("executionID"), 10, 32)
	if err != nil {
		return 0, false
	}
	if !outreach.VerifyTrackingToken(uint(id), c.Params("token")) {
		tc.Logger.Printf("bad tracking token for execution %d", id)
		return 0, false
	}
	return uint(id), true
}
