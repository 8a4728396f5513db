package controllers

import (
	"errors"
	"log"
	"os"
	"time"

	"reachloop/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var validate = validator.New()

// tenantID pulls the tenant set by the JWT middleware.
func tenantID(c *fiber.Ctx) uint {
	if id, ok := c.Locals("tenant_id").(uint); ok {
		return id
	}
	return 0
}

type EnrollmentController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewEnrollmentController(db *gorm.DB) *EnrollmentController {
	return &EnrollmentController{
		DB:     db,
		Logger: log.New(os.Stdout, "ENROLLMENT: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

type createEnrollmentRequest struct {
	SequenceID uint `json:"sequence_id" validate:"required"`
	ContactID  uint `json:"contact_id" validate:"required"`
}

// CreateEnrollment starts a contact on a sequence. The first step is
// scheduled from its delay; a contact cannot be actively enrolled in the
// same sequence twice.
func (ec *EnrollmentController) CreateEnrollment(c *fiber.Ctx) error {
	tenant := tenantID(c)

	var req createEnrollmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var sequence models.Sequence
	if err := ec.DB.Where("id = ? AND tenant_id = ?", req.SequenceID, tenant).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sequence not found"})
	}
	if !sequence.IsActive {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "sequence is inactive"})
	}

	var contact models.Contact
	if err := ec.DB.Where("id = ? AND tenant_id = ?", req.ContactID, tenant).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "contact not found"})
	}

	var existing models.Enrollment
	err := ec.DB.Where("sequence_id = ? AND contact_id = ? AND status IN ?",
		req.SequenceID, req.ContactID,
		[]string{models.EnrollmentActive, models.EnrollmentPaused}).
		First(&existing).Error
	if err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "contact already enrolled in this sequence"})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to check existing enrollment"})
	}

	var firstStep models.SequenceStep
	if err := ec.DB.Where("sequence_id = ? AND step_order = 0", req.SequenceID).
		First(&firstStep).Error; err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "sequence has no steps"})
	}

	nextAt := time.Now().Add(time.Duration(firstStep.DelayHours) * time.Hour)
	enrollment := models.Enrollment{
		SequenceID:      req.SequenceID,
		ContactID:       req.ContactID,
		TenantID:        tenant,
		Status:          models.EnrollmentActive,
		NextExecutionAt: &nextAt,
	}
	if err := ec.DB.Create(&enrollment).Error; err != nil {
		ec.Logger.Printf("failed to create enrollment: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create enrollment"})
	}

	return c.Status(fiber.StatusCreated).JSON(enrollment)
}

// ListEnrollments returns the tenant's enrollments, optionally filtered
// by status or sequence.
func (ec *EnrollmentController) ListEnrollments(c *fiber.Ctx) error {
	tenant := tenantID(c)

	query := ec.DB.Where("tenant_id = ?", tenant)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if seq := c.QueryInt("sequence_id"); seq > 0 {
		query = query.Where("sequence_id = ?", seq)
	}

	var enrollments []models.Enrollment
	if err := query.Order("created_at DESC").Limit(200).Find(&enrollments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list enrollments"})
	}
	return c.JSON(fiber.Map{"enrollments": enrollments, "count": len(enrollments)})
}

// PauseEnrollment suspends scheduling without losing the position.
func (ec *EnrollmentController) PauseEnrollment(c *fiber.Ctx) error {
	return ec.transition(c, models.EnrollmentActive, map[string]interface{}{
		"status": models.EnrollmentPaused,
	})
}

// ResumeEnrollment makes a paused enrollment due immediately.
func (ec *EnrollmentController) ResumeEnrollment(c *fiber.Ctx) error {
	return ec.transition(c, models.EnrollmentPaused, map[string]interface{}{
		"status":            models.EnrollmentActive,
		"next_execution_at": time.Now(),
	})
}

// CancelEnrollment terminally stops an enrollment.
func (ec *EnrollmentController) CancelEnrollment(c *fiber.Ctx) error {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&body)
	if body.Reason == "" {
		body.Reason = "cancelled_by_operator"
	}
	return ec.transition(c, "", map[string]interface{}{
		"status":            models.EnrollmentCancelled,
		"cancel_reason":     body.Reason,
		"next_execution_at": nil,
	})
}

// transition applies a guarded status change. fromStatus "" means any
// non-terminal state.
func (ec *EnrollmentController) transition(c *fiber.Ctx, fromStatus string, updates map[string]interface{}) error {
	tenant := tenantID(c)
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid enrollment id"})
	}

	query := ec.DB.Model(&models.Enrollment{}).
		Where("id = ? AND tenant_id = ?", id, tenant)
	if fromStatus != "" {
		query = query.Where("status = ?", fromStatus)
	} else {
		query = query.Where("status IN ?", []string{models.EnrollmentActive, models.EnrollmentPaused})
	}
	updates["version"] = gorm.Expr("version + 1")

	res := query.Updates(updates)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update enrollment"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "enrollment not found or not in a valid state"})
	}

	var enrollment models.Enrollment
	ec.DB.First(&enrollment, id)
	return c.JSON(enrollment)
}
