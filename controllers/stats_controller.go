package controller

import (
	"time"

	"dripcrm/models"
	"dripcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type StatsController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
	Now    func() time.Time
}

func NewStatsController(db *gorm.DB, logger *logrus.Entry) *StatsController {
	return &StatsController{
		DB:     db,
		Logger: logger,
		Now:    time.Now,
	}
}

type SequenceStats struct {
	TotalSent      int64       `json:"total_sent"`
	OpenRate       float64     `json:"open_rate"`
	ClickRate      float64     `json:"click_rate"`
	ConversionRate float64     `json:"conversion_rate"`
	Steps          []StepStats `json:"steps"`
}

type StepStats struct {
	StepOrder int   `json:"step_order"`
	Sent      int64 `json:"sent"`
	Opened    int64 `json:"opened"`
	Clicked   int64 `json:"clicked"`
	Converted int64 `json:"converted"`
}

// GetSequenceStats returns send and engagement counts for one sequence over
// a time frame: day, week, month or all.
func (sc *StatsController) GetSequenceStats(c *fiber.Ctx) error {
	var sequence models.Sequence
	if err := sc.DB.First(&sequence, utils.ParseUint(c.Params("id"))).Error; err != nil {
		return sequenceLookupError(c, err)
	}

	query := sc.DB.Model(&models.SequenceSend{}).
		Joins("JOIN sequence_enrollments ON sequence_enrollments.id = sequence_sends.enrollment_id").
		Where("sequence_enrollments.sequence_id = ?", sequence.ID)

	now := sc.Now().UTC()
	switch c.Query("time_frame", "all") {
	case "day":
		query = query.Where("sequence_sends.sent_at >= ?", now.Add(-24*time.Hour))
	case "week":
		query = query.Where("sequence_sends.sent_at >= ?", now.Add(-7*24*time.Hour))
	case "month":
		query = query.Where("sequence_sends.sent_at >= ?", now.Add(-30*24*time.Hour))
	case "all":
	default:
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "time_frame must be day, week, month or all", nil)
	}

	var rows []StepStats
	if err := query.Select(`sequence_sends.step_order AS step_order,
		COUNT(*) AS sent,
		COUNT(sequence_sends.opened_at) AS opened,
		COUNT(sequence_sends.clicked_at) AS clicked,
		COUNT(CASE WHEN sequence_sends.converted THEN 1 END) AS converted`).
		Group("sequence_sends.step_order").
		Order("sequence_sends.step_order").
		Scan(&rows).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get sequence stats", err)
	}

	stats := SequenceStats{Steps: rows}
	if stats.Steps == nil {
		stats.Steps = []StepStats{}
	}

	var opened, clicked, converted int64
	for _, row := range rows {
		stats.TotalSent += row.Sent
		opened += row.Opened
		clicked += row.Clicked
		converted += row.Converted
	}
	if stats.TotalSent > 0 {
		stats.OpenRate = percent(opened, stats.TotalSent)
		stats.ClickRate = percent(clicked, stats.TotalSent)
		stats.ConversionRate = percent(converted, stats.TotalSent)
	}

	return c.JSON(utils.SuccessResponse(stats))
}

func percent(part, total int64) float64 {
	return float64(part) / float64(total) * 100
}
