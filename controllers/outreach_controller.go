package controllers

import (
	"log"
	"os"
	"time"

	"reachloop/models"
	"reachloop/outreach"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

// OutreachController covers the tenant-facing engine surface: channel
// configuration, consent, metrics and the live progress stream.
type OutreachController struct {
	DB     *gorm.DB
	Hub    *outreach.Hub
	Logger *log.Logger
}

func NewOutreachController(db *gorm.DB, hub *outreach.Hub) *OutreachController {
	return &OutreachController{
		DB:     db,
		Hub:    hub,
		Logger: log.New(os.Stdout, "OUTREACH: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

type channelConfigRequest struct {
	Channel       string `json:"channel" validate:"required,oneof=email chat bot"`
	Enabled       *bool  `json:"enabled"`
	DailyLimit    *int   `json:"daily_limit" validate:"omitempty,gte=0"`
	CooldownHours *int   `json:"cooldown_hours" validate:"omitempty,gte=0"`
	MaxRetries    *int   `json:"max_retries" validate:"omitempty,gte=0"`
}

// UpsertChannelConfig creates or updates the tenant's config row for one
// channel. Omitted fields keep their current values.
func (oc *OutreachController) UpsertChannelConfig(c *fiber.Ctx) error {
	tenant := tenantID(c)

	var req channelConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	capability := outreach.Capabilities[outreach.Channel(req.Channel)]
	var cfg models.ChannelConfig
	err := oc.DB.Where("tenant_id = ? AND channel = ?", tenant, req.Channel).First(&cfg).Error
	if err != nil {
		cfg = models.ChannelConfig{
			TenantID:      tenant,
			Channel:       req.Channel,
			Enabled:       true,
			CooldownHours: 24,
			MaxRetries:    capability.DefaultMaxRetries,
		}
	}

	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.DailyLimit != nil {
		cfg.DailyLimit = req.DailyLimit
	}
	if req.CooldownHours != nil {
		cfg.CooldownHours = *req.CooldownHours
	}
	if req.MaxRetries != nil {
		cfg.MaxRetries = *req.MaxRetries
	}

	if err := oc.DB.Save(&cfg).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save channel config"})
	}
	return c.JSON(cfg)
}

func (oc *OutreachController) ListChannelConfigs(c *fiber.Ctx) error {
	var configs []models.ChannelConfig
	if err := oc.DB.Where("tenant_id = ?", tenantID(c)).Find(&configs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list channel configs"})
	}
	return c.JSON(fiber.Map{"configs": configs})
}

type consentRequest struct {
	ContactID  uint   `json:"contact_id" validate:"required"`
	Channel    string `json:"channel" validate:"required,oneof=email chat bot"`
	LegalBasis string `json:"legal_basis"`
	Source     string `json:"source"`
}

// GrantConsent records messaging consent for a contact on one channel.
func (oc *OutreachController) GrantConsent(c *fiber.Ctx) error {
	tenant := tenantID(c)

	var req consentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	now := time.Now()
	record := models.ConsentRecord{
		TenantID:   tenant,
		ContactID:  req.ContactID,
		Channel:    req.Channel,
		Granted:    true,
		GrantedAt:  &now,
		LegalBasis: req.LegalBasis,
		Source:     req.Source,
	}
	if err := oc.DB.Create(&record).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to record consent"})
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

// RevokeConsent withdraws consent; the executor picks this up at the
// next send attempt, not retroactively.
func (oc *OutreachController) RevokeConsent(c *fiber.Ctx) error {
	tenant := tenantID(c)

	var req consentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res := oc.DB.Model(&models.ConsentRecord{}).
		Where("tenant_id = ? AND contact_id = ? AND channel = ? AND revoked_at IS NULL",
			tenant, req.ContactID, req.Channel).
		Update("revoked_at", time.Now())
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to revoke consent"})
	}
	return c.JSON(fiber.Map{"revoked": res.RowsAffected > 0})
}

// GetMetrics returns the tenant's outreach dashboard numbers.
func (oc *OutreachController) GetMetrics(c *fiber.Ctx) error {
	metrics, err := outreach.Metrics(oc.DB, tenantID(c))
	if err != nil {
		oc.Logger.Printf("metrics query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute metrics"})
	}
	return c.JSON(metrics)
}

// ProgressSocket streams each executor pass result to the client until
// it disconnects.
func (oc *OutreachController) ProgressSocket(conn *websocket.Conn) {
	sub := oc.Hub.Subscribe()
	defer oc.Hub.Unsubscribe(sub)

	for result := range sub {
		if err := conn.WriteJSON(result); err != nil {
			return
		}
	}
}
