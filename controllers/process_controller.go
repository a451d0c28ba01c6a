package controller

import (
	"dripcrm/utils"
	"dripcrm/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ProcessController struct {
	Processor worker.BatchProcessor
	Logger    *logrus.Entry
}

func NewProcessController(processor worker.BatchProcessor, logger *logrus.Entry) *ProcessController {
	return &ProcessController{
		Processor: processor,
		Logger:    logger,
	}
}

// ProcessSequences runs one pass of the sequence processor and returns its
// summary. It is the target of the external cron.
func (pc *ProcessController) ProcessSequences(c *fiber.Ctx) error {
	summary, err := pc.Processor.ProcessAll(c.UserContext())
	if err != nil {
		utils.LogError("sequence_run_failed", err, map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process sequences", err)
	}

	return c.JSON(summary)
}
