package controller

import (
	"errors"
	"strings"
	"time"

	"dripcrm/utils"
	"dripcrm/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type WebhookController struct {
	Recorder *worker.FeedbackRecorder
	Logger   *logrus.Entry
}

func NewWebhookController(db *gorm.DB, logger *logrus.Entry) *WebhookController {
	return &WebhookController{
		Recorder: worker.NewFeedbackRecorder(db),
		Logger:   logger,
	}
}

type emailEvent struct {
	EventType  string `json:"event_type" validate:"required,oneof=open click bounce unsubscribe complaint"`
	Email      string `json:"email" validate:"omitempty,email"`
	MessageID  string `json:"message_id"`
	BounceType string `json:"bounce_type" validate:"omitempty,oneof=hard soft"`
	Code       string `json:"code"`
	Reason     string `json:"reason"`
	Timestamp  int64  `json:"timestamp"`
}

// HandleEmailEvent ingests delivery feedback from the mail provider. Bounces
// and unsubscribes feed the eligibility checks; opens and clicks are stamped
// on the matching send.
func (wc *WebhookController) HandleEmailEvent(c *fiber.Ctx) error {
	var input emailEvent
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	input.EventType = strings.ToLower(strings.TrimSpace(input.EventType))
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	event := worker.FeedbackEvent{
		Type:       input.EventType,
		Email:      input.Email,
		MessageID:  input.MessageID,
		BounceType: input.BounceType,
		Code:       input.Code,
		Reason:     input.Reason,
		Source:     "webhook",
	}
	if input.Timestamp > 0 {
		event.OccurredAt = time.Unix(input.Timestamp, 0).UTC()
	}

	email, err := wc.Recorder.Record(c.UserContext(), event)
	switch {
	case errors.Is(err, worker.ErrSendNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Send not found", nil)
	case errors.Is(err, worker.ErrMissingRecipient):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	case err != nil:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record event", err)
	}

	wc.Logger.WithFields(logrus.Fields{
		"event_type": input.EventType,
		"message_id": input.MessageID,
		"email":      email,
	}).Info("Email event recorded")

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Webhook processed successfully",
	})
}
