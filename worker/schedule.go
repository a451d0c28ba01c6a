package worker

import (
	"time"

	"dripcrm/models"
)

// DueAt is when the step becomes sendable. The first step counts from
// enrollment, later steps from the previous send.
func DueAt(enrolledAt time.Time, lastSentAt *time.Time, step models.SequenceStep) time.Time {
	reference := enrolledAt
	if lastSentAt != nil {
		reference = *lastSentAt
	}
	delay := time.Duration(step.DelayDays)*24*time.Hour + time.Duration(step.DelayHours)*time.Hour
	return reference.Add(delay)
}

// IsDue reports whether now has reached the step's due instant.
func IsDue(enrolledAt time.Time, lastSentAt *time.Time, step models.SequenceStep, now time.Time) bool {
	return !now.Before(DueAt(enrolledAt, lastSentAt, step))
}
