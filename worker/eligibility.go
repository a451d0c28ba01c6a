package worker

import (
	"context"
	"fmt"

	"dripcrm/models"

	"gorm.io/gorm"
)

// Decision is the outcome of an eligibility check.
type Decision string

const (
	DecisionContinue     Decision = "continue"
	DecisionUnsubscribed Decision = "unsubscribed"
	DecisionBounced      Decision = "bounced"
	DecisionConverted    Decision = "converted"
)

// Terminal reports whether the decision ends the enrollment.
func (d Decision) Terminal() bool {
	return d != DecisionContinue
}

// EligibilityFilter decides whether an enrollment may keep receiving mail.
// Checks run unsubscribe, then hard bounce, then conversion; the first match
// wins.
type EligibilityFilter struct {
	db *gorm.DB
}

func NewEligibilityFilter(db *gorm.DB) *EligibilityFilter {
	return &EligibilityFilter{db: db}
}

func (f *EligibilityFilter) Check(ctx context.Context, enrollment models.SequenceEnrollment, recipient string) (Decision, error) {
	db := f.db.WithContext(ctx)

	unsubscribed, err := models.IsUnsubscribed(db, recipient)
	if err != nil {
		return "", fmt.Errorf("check unsubscribe registry: %w", err)
	}
	if unsubscribed {
		return DecisionUnsubscribed, nil
	}

	bounced, err := models.HasHardBounce(db, recipient)
	if err != nil {
		return "", fmt.Errorf("check bounces: %w", err)
	}
	if bounced {
		return DecisionBounced, nil
	}

	var converted int64
	if err := db.Model(&models.SequenceSend{}).
		Where("enrollment_id = ? AND cycle = ? AND converted = ?", enrollment.ID, enrollment.Cycle, true).
		Count(&converted).Error; err != nil {
		return "", fmt.Errorf("check conversions: %w", err)
	}
	if converted > 0 {
		return DecisionConverted, nil
	}

	return DecisionContinue, nil
}
