package controllers

import (
	"log"
	"os"

	"reachloop/models"
	"reachloop/outreach"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB) *SequenceController {
	return &SequenceController{
		DB:     db,
		Logger: log.New(os.Stdout, "SEQUENCE: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

type sequenceStepRequest struct {
	Channel    string `json:"channel" validate:"required,oneof=email chat bot"`
	TemplateID uint   `json:"template_id" validate:"required"`
	DelayHours int    `json:"delay_hours" validate:"gte=0"`
	Condition  string `json:"condition" validate:"omitempty,oneof=always no_reply no_open replied opened"`
}

type createSequenceRequest struct {
	Name        string                `json:"name" validate:"required"`
	Description string                `json:"description"`
	TriggerTag  string                `json:"trigger_tag"`
	Steps       []sequenceStepRequest `json:"steps" validate:"required,min=1,dive"`
}

// CreateSequence creates a sequence and its steps in one transaction.
// Step order follows the request array; templates must exist and match
// the step channel.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	tenant := tenantID(c)

	var req createSequenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	for i, step := range req.Steps {
		var tpl models.MessageTemplate
		err := sc.DB.Where("id = ? AND (tenant_id = ? OR is_system = ?)", step.TemplateID, tenant, true).
			First(&tpl).Error
		if err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": fiber.Map{"step": i, "message": "template not found"},
			})
		}
		if tpl.Channel != step.Channel {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": fiber.Map{"step": i, "message": "template channel mismatch"},
			})
		}
	}

	sequence := models.Sequence{
		TenantID:    tenant,
		Name:        req.Name,
		Description: req.Description,
		TriggerTag:  req.TriggerTag,
		IsActive:    true,
	}
	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sequence).Error; err != nil {
			return err
		}
		for i, step := range req.Steps {
			condition := step.Condition
			if condition == "" {
				condition = models.ConditionAlways
			}
			if err := tx.Create(&models.SequenceStep{
				SequenceID: sequence.ID,
				StepOrder:  i,
				Channel:    step.Channel,
				TemplateID: step.TemplateID,
				DelayHours: step.DelayHours,
				Condition:  condition,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		sc.Logger.Printf("failed to create sequence: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create sequence"})
	}

	sc.DB.Preload("Steps").First(&sequence, sequence.ID)
	return c.Status(fiber.StatusCreated).JSON(sequence)
}

func (sc *SequenceController) ListSequences(c *fiber.Ctx) error {
	var sequences []models.Sequence
	err := sc.DB.Where("tenant_id = ?", tenantID(c)).
		Preload("Steps").Order("created_at DESC").Find(&sequences).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list sequences"})
	}
	return c.JSON(fiber.Map{"sequences": sequences, "count": len(sequences)})
}

func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid sequence id"})
	}
	var sequence models.Sequence
	err = sc.DB.Where("id = ? AND tenant_id = ?", id, tenantID(c)).
		Preload("Steps").First(&sequence).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sequence not found"})
	}
	return c.JSON(sequence)
}

// DeactivateSequence blocks new enrollments; existing ones keep running.
func (sc *SequenceController) DeactivateSequence(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid sequence id"})
	}
	res := sc.DB.Model(&models.Sequence{}).
		Where("id = ? AND tenant_id = ?", id, tenantID(c)).
		Update("is_active", false)
	if res.Error != nil || res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sequence not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}

type createTemplateRequest struct {
	Name     string `json:"name" validate:"required"`
	Channel  string `json:"channel" validate:"required,oneof=email chat bot"`
	Category string `json:"category"`
	Subject  string `json:"subject"`
	Body     string `json:"body" validate:"required"`
}

// CreateTemplate stores a message template after checking its
// placeholders are well formed.
func (sc *SequenceController) CreateTemplate(c *fiber.Ctx) error {
	var req createTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := outreach.ValidateTemplate(req.Subject); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	if err := outreach.ValidateTemplate(req.Body); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	template := models.MessageTemplate{
		TenantID: tenantID(c),
		Name:     req.Name,
		Channel:  req.Channel,
		Category: req.Category,
		Subject:  req.Subject,
		Body:     req.Body,
	}
	if err := sc.DB.Create(&template).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create template"})
	}
	return c.Status(fiber.StatusCreated).JSON(template)
}

func (sc *SequenceController) ListTemplates(c *fiber.Ctx) error {
	query := sc.DB.Where("tenant_id = ? OR is_system = ?", tenantID(c), true)
	if channel := c.Query("channel"); channel != "" {
		query = query.Where("channel = ?", channel)
	}
	var templates []models.MessageTemplate
	if err := query.Order("created_at DESC").Find(&templates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list templates"})
	}
	return c.JSON(fiber.Map{"templates": templates, "count": len(templates)})
}
