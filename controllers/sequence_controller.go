package controller

import (
	"errors"
	"fmt"

	"dripcrm/models"
	"dripcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewSequenceController(db *gorm.DB, logger *logrus.Entry) *SequenceController {
	return &SequenceController{
		DB:     db,
		Logger: logger,
	}
}

type stepInput struct {
	StepOrder  int    `json:"step_order" validate:"omitempty,min=1"`
	DelayDays  int    `json:"delay_days" validate:"min=0"`
	DelayHours int    `json:"delay_hours" validate:"min=0"`
	Subject    string `json:"subject" validate:"required,max=998"`
	HTMLBody   string `json:"html_body" validate:"required"`
	TextBody   string `json:"text_body"`
	FromName   string `json:"from_name" validate:"max=200"`
	FromEmail  string `json:"from_email" validate:"omitempty,email"`
	ReplyTo    string `json:"reply_to" validate:"omitempty,email"`
}

func (in stepInput) toStep(sequenceID uint, order int) models.SequenceStep {
	return models.SequenceStep{
		SequenceID: sequenceID,
		StepOrder:  order,
		DelayDays:  in.DelayDays,
		DelayHours: in.DelayHours,
		Subject:    in.Subject,
		HTMLBody:   in.HTMLBody,
		TextBody:   in.TextBody,
		FromName:   in.FromName,
		FromEmail:  in.FromEmail,
		ReplyTo:    in.ReplyTo,
	}
}

// CreateSequence creates a sequence from the posted steps, or from the
// built-in template when use_default is set.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var input struct {
		Name        string      `json:"name" validate:"required,max=200"`
		Description string      `json:"description" validate:"max=1000"`
		UseDefault  bool        `json:"use_default"`
		IsActive    *bool       `json:"is_active"`
		CreatedByID *uint       `json:"created_by_id"`
		Steps       []stepInput `json:"steps" validate:"dive"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.UseDefault && len(input.Steps) > 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Provide steps or use_default, not both", nil)
	}

	var sequence *models.Sequence
	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		if input.UseDefault {
			seeded, err := models.SeedDefaultSequence(tx, input.Name, input.CreatedByID)
			if err != nil {
				return err
			}
			sequence = seeded
		} else {
			steps, err := orderSteps(input.Steps)
			if err != nil {
				return err
			}
			sequence = &models.Sequence{
				Name:        input.Name,
				Description: input.Description,
				IsActive:    true,
				CreatedByID: input.CreatedByID,
				Steps:       steps,
			}
			if err := tx.Create(sequence).Error; err != nil {
				return err
			}
		}

		if input.IsActive != nil && !*input.IsActive {
			sequence.IsActive = false
			return tx.Model(sequence).Update("is_active", false).Error
		}
		return nil
	})

	var orderErr stepOrderError
	if errors.As(err, &orderErr) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid step order", err)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}

	sc.Logger.WithFields(logrus.Fields{
		"sequence_id": sequence.ID,
		"steps":       len(sequence.Steps),
		"default":     input.UseDefault,
	}).Info("Sequence created")

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sequence))
}

type stepOrderError struct {
	msg string
}

func (e stepOrderError) Error() string { return e.msg }

// orderSteps numbers unnumbered steps by position and requires the result to
// run 1..n without gaps.
func orderSteps(inputs []stepInput) ([]models.SequenceStep, error) {
	steps := make([]models.SequenceStep, len(inputs))
	seen := make(map[int]bool, len(inputs))
	for i, in := range inputs {
		order := in.StepOrder
		if order == 0 {
			order = i + 1
		}
		if order > len(inputs) || seen[order] {
			return nil, stepOrderError{msg: fmt.Sprintf("step orders must run from 1 to %d without repeats", len(inputs))}
		}
		seen[order] = true
		steps[i] = in.toStep(0, order)
	}
	return steps, nil
}

// GetSequences lists sequences with their steps
func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := sc.DB.Model(&models.Sequence{}).Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count sequences", err)
	}

	var sequences []models.Sequence
	if err := sc.DB.Preload("Steps", orderedSteps).
		Order("id").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&sequences).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequences", err)
	}

	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  sequences,
		Total: total,
		Page:  page,
		Limit: limit,
	}))
}

// GetSequence returns one sequence with its steps and enrollment counts by
// status.
func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	sequence, err := sc.findSequence(c.Params("id"), true)
	if err != nil {
		return sequenceLookupError(c, err)
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := sc.DB.Model(&models.SequenceEnrollment{}).
		Select("status, COUNT(*) AS count").
		Where("sequence_id = ?", sequence.ID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count enrollments", err)
	}

	counts := map[string]int64{
		models.EnrollmentActive:    0,
		models.EnrollmentCompleted: 0,
		models.EnrollmentStopped:   0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"sequence":    sequence,
		"enrollments": counts,
	}))
}

// AddStep appends a step. Appending is allowed while leads are enrolled; they
// pick the new step up once they reach it.
func (sc *SequenceController) AddStep(c *fiber.Ctx) error {
	sequence, err := sc.findSequence(c.Params("id"), false)
	if err != nil {
		return sequenceLookupError(c, err)
	}

	var input stepInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var step models.SequenceStep
	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		var last int
		if err := tx.Model(&models.SequenceStep{}).
			Where("sequence_id = ?", sequence.ID).
			Select("COALESCE(MAX(step_order), 0)").
			Scan(&last).Error; err != nil {
			return err
		}

		order := last + 1
		if input.StepOrder != 0 && input.StepOrder != order {
			return stepOrderError{msg: fmt.Sprintf("next step order is %d", order)}
		}
		step = input.toStep(sequence.ID, order)
		return tx.Create(&step).Error
	})

	var orderErr stepOrderError
	if errors.As(err, &orderErr) {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Invalid step order", err)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to add step", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(step))
}

// UpdateStep replaces a step's content and timing. Steps are frozen while the
// sequence has active enrollments.
func (sc *SequenceController) UpdateStep(c *fiber.Ctx) error {
	sequence, err := sc.findSequence(c.Params("id"), false)
	if err != nil {
		return sequenceLookupError(c, err)
	}

	order, err := c.ParamsInt("order")
	if err != nil || order < 1 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid step order", err)
	}

	step, err := models.FindStep(sc.DB, sequence.ID, order)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch step", err)
	}
	if step == nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Step not found", nil)
	}

	active, err := models.HasActiveEnrollments(sc.DB, sequence.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check enrollments", err)
	}
	if active {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Steps cannot change while leads are enrolled; create a new sequence instead", nil)
	}

	var input stepInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if err := sc.DB.Model(step).Updates(map[string]interface{}{
		"delay_days":  input.DelayDays,
		"delay_hours": input.DelayHours,
		"subject":     input.Subject,
		"html_body":   input.HTMLBody,
		"text_body":   input.TextBody,
		"from_name":   input.FromName,
		"from_email":  input.FromEmail,
		"reply_to":    input.ReplyTo,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update step", err)
	}

	updated, err := models.FindStep(sc.DB, sequence.ID, order)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch step", err)
	}
	return c.JSON(utils.SuccessResponse(updated))
}

// UpdateSequenceStatus activates or pauses a sequence. Paused sequences keep
// their enrollments but send nothing.
func (sc *SequenceController) UpdateSequenceStatus(c *fiber.Ctx) error {
	sequence, err := sc.findSequence(c.Params("id"), false)
	if err != nil {
		return sequenceLookupError(c, err)
	}

	var input struct {
		IsActive *bool `json:"is_active" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if err := sc.DB.Model(sequence).Update("is_active", *input.IsActive).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", err)
	}
	sequence.IsActive = *input.IsActive

	sc.Logger.WithFields(logrus.Fields{
		"sequence_id": sequence.ID,
		"is_active":   sequence.IsActive,
	}).Info("Sequence status changed")

	return c.JSON(utils.SuccessResponse(sequence))
}

func (sc *SequenceController) findSequence(idParam string, withSteps bool) (*models.Sequence, error) {
	id := utils.ParseUint(idParam)
	if id == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	query := sc.DB
	if withSteps {
		query = query.Preload("Steps", orderedSteps)
	}

	var sequence models.Sequence
	if err := query.First(&sequence, id).Error; err != nil {
		return nil, err
	}
	return &sequence, nil
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("step_order")
}

func sequenceLookupError(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequence", err)
}
