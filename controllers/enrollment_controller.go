package controller

import (
	"errors"
	"time"

	"dripcrm/models"
	"dripcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type EnrollmentController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
	Now    func() time.Time
}

func NewEnrollmentController(db *gorm.DB, logger *logrus.Entry) *EnrollmentController {
	return &EnrollmentController{
		DB:     db,
		Logger: logger,
		Now:    time.Now,
	}
}

// EnrollLeads puts one or many leads into a sequence. Stopped or completed
// enrollments are restarted from the first step.
func (ec *EnrollmentController) EnrollLeads(c *fiber.Ctx) error {
	sequenceID := utils.ParseUint(c.Params("id"))

	var input struct {
		LeadIDs []uint `json:"lead_ids" validate:"required,min=1,max=1000"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var sequence models.Sequence
	if err := ec.DB.First(&sequence, sequenceID).Error; err != nil {
		return sequenceLookupError(c, err)
	}

	leadIDs := uniqueIDs(input.LeadIDs)
	if len(leadIDs) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", errors.New("lead_ids must contain valid ids"))
	}
	var found []uint
	if err := ec.DB.Model(&models.Lead{}).Where("id IN ?", leadIDs).Pluck("id", &found).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", err)
	}
	if missing := missingIDs(leadIDs, found); len(missing) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":          false,
			"error":            "Unknown leads",
			"missing_lead_ids": missing,
		})
	}

	enrolled, err := models.Enroll(ec.DB, sequence.ID, leadIDs, ec.Now().UTC())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enroll leads", err)
	}

	ec.Logger.WithFields(logrus.Fields{
		"sequence_id": sequence.ID,
		"requested":   len(leadIDs),
		"enrolled":    enrolled,
	}).Info("Leads enrolled")

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"enrolled":       enrolled,
		"already_active": len(leadIDs) - enrolled,
	}))
}

// GetEnrollments lists a sequence's enrollments, optionally by status.
func (ec *EnrollmentController) GetEnrollments(c *fiber.Ctx) error {
	sequenceID := utils.ParseUint(c.Params("id"))
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var sequence models.Sequence
	if err := ec.DB.First(&sequence, sequenceID).Error; err != nil {
		return sequenceLookupError(c, err)
	}

	query := ec.DB.Model(&models.SequenceEnrollment{}).Where("sequence_id = ?", sequence.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count enrollments", err)
	}

	var enrollments []models.SequenceEnrollment
	if err := query.Order("id").Offset((page - 1) * limit).Limit(limit).Find(&enrollments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollments", err)
	}

	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  enrollments,
		Total: total,
		Page:  page,
		Limit: limit,
	}))
}

// MarkConversion records that a lead booked or registered. The next processor
// run completes the lead's active enrollments.
func (ec *EnrollmentController) MarkConversion(c *fiber.Ctx) error {
	var input struct {
		LeadID         uint   `json:"lead_id" validate:"required"`
		ConversionType string `json:"conversion_type" validate:"required,max=50"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	flagged, err := models.MarkConverted(ec.DB, input.LeadID, input.ConversionType, ec.Now().UTC())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record conversion", err)
	}
	if flagged == 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "No sent sequence email to attribute the conversion to", nil)
	}

	utils.LogEvent("sequence_conversion", map[string]interface{}{
		"lead_id":         input.LeadID,
		"conversion_type": input.ConversionType,
		"flagged_sends":   flagged,
	})

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"flagged": flagged,
	}))
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missingIDs(want, found []uint) []uint {
	have := make(map[uint]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	var missing []uint
	for _, id := range want {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
