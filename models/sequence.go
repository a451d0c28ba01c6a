package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentStopped   = "stopped"
)

const (
	StopReasonUnsubscribed = "unsubscribed"
	StopReasonBounced      = "bounced"
	StopReasonConverted    = "converted"
)

// Sequence represents an automated drip email sequence
type Sequence struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
	CreatedByID *uint  `gorm:"index" json:"created_by_id"`

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// SequenceStep is one email of a sequence. The delay is measured from
// enrollment for step 1 and from the previous send afterwards.
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;uniqueIndex:idx_sequence_step_order" json:"sequence_id"`
	StepOrder  int  `gorm:"not null;uniqueIndex:idx_sequence_step_order" json:"step_order" validate:"required,min=1"`

	DelayDays  int `gorm:"not null;default:0" json:"delay_days" validate:"min=0"`
	DelayHours int `gorm:"not null;default:0" json:"delay_hours" validate:"min=0"`

	// Content templates
	Subject  string `gorm:"not null" json:"subject" validate:"required"`
	HTMLBody string `gorm:"type:text;not null" json:"html_body" validate:"required"`
	TextBody string `gorm:"type:text" json:"text_body"`

	// Sender identity
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email" validate:"omitempty,email"`
	ReplyTo   string `json:"reply_to" validate:"omitempty,email"`
}

// SequenceEnrollment links one lead to one sequence. Re-enrolling reuses the
// row and bumps Cycle.
type SequenceEnrollment struct {
	gorm.Model
	SequenceID uint `gorm:"not null;uniqueIndex:idx_enrollment_sequence_lead" json:"sequence_id"`
	LeadID     uint `gorm:"not null;uniqueIndex:idx_enrollment_sequence_lead;index" json:"lead_id"`

	// Progress
	CurrentStep     int        `gorm:"not null;default:0" json:"current_step"` // steps already sent
	Cycle           int        `gorm:"not null;default:1" json:"cycle"`
	Status          string     `gorm:"not null;default:'active';index" json:"status"` // active, completed, stopped
	EnrolledAt      time.Time  `gorm:"not null" json:"enrolled_at"`
	LastEmailSentAt *time.Time `json:"last_email_sent_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	StoppedAt       *time.Time `json:"stopped_at"`
	StopReason      string     `json:"stop_reason"` // unsubscribed, bounced, converted

	// Relations
	Sequence Sequence       `json:"-"`
	Lead     Lead           `json:"-"`
	Sends    []SequenceSend `gorm:"foreignKey:EnrollmentID" json:"sends,omitempty"`
}

// SequenceSend records one successful dispatch
type SequenceSend struct {
	gorm.Model
	EnrollmentID uint `gorm:"not null;index" json:"enrollment_id"`
	StepID       uint `gorm:"not null;index" json:"step_id"`
	LeadID       uint `gorm:"not null;index" json:"lead_id"`
	Cycle        int  `gorm:"not null;default:1" json:"cycle"`
	StepOrder    int  `gorm:"not null" json:"step_order"`

	RecipientEmail string    `gorm:"not null" json:"recipient_email"`
	SentAt         time.Time `gorm:"not null" json:"sent_at"`
	MessageID      string    `gorm:"index" json:"message_id"`

	// Set after the fact by booking or registration
	Converted      bool       `gorm:"default:false" json:"converted"`
	ConversionType string     `json:"conversion_type"`
	ConvertedAt    *time.Time `json:"converted_at"`

	// Provider feedback
	OpenedAt  *time.Time `json:"opened_at"`
	ClickedAt *time.Time `json:"clicked_at"`
}

// FindStep looks up a step by order. A missing step is not an error: it
// means the sequence is exhausted.
func FindStep(db *gorm.DB, sequenceID uint, order int) (*SequenceStep, error) {
	var step SequenceStep
	err := db.Where("sequence_id = ? AND step_order = ?", sequenceID, order).First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// HasActiveEnrollments reports whether any lead is still progressing through
// the sequence.
func HasActiveEnrollments(db *gorm.DB, sequenceID uint) (bool, error) {
	var count int64
	err := db.Model(&SequenceEnrollment{}).
		Where("sequence_id = ? AND status = ?", sequenceID, EnrollmentActive).
		Count(&count).Error
	return count > 0, err
}

// Enroll puts leads into a sequence. Leads that were stopped or completed are
// reactivated on their existing row; leads already active are left alone.
// It returns the number of enrollments created or reactivated.
func Enroll(db *gorm.DB, sequenceID uint, leadIDs []uint, now time.Time) (int, error) {
	changed := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, leadID := range leadIDs {
			var enrollment SequenceEnrollment
			err := tx.Where("sequence_id = ? AND lead_id = ?", sequenceID, leadID).First(&enrollment).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				enrollment = SequenceEnrollment{
					SequenceID: sequenceID,
					LeadID:     leadID,
					Status:     EnrollmentActive,
					Cycle:      1,
					EnrolledAt: now,
				}
				if err := tx.Create(&enrollment).Error; err != nil {
					return err
				}
				changed++
			case err != nil:
				return err
			case enrollment.Status == EnrollmentActive:
				continue
			default:
				if err := tx.Model(&enrollment).Updates(map[string]interface{}{
					"status":             EnrollmentActive,
					"current_step":       0,
					"cycle":              gorm.Expr("cycle + ?", 1),
					"enrolled_at":        now,
					"last_email_sent_at": nil,
					"completed_at":       nil,
					"stopped_at":         nil,
					"stop_reason":        "",
				}).Error; err != nil {
					return err
				}
				changed++
			}
		}
		return nil
	})
	return changed, err
}

// MarkConverted flags the latest send of every active enrollment of the lead.
// It returns the number of send records flagged.
func MarkConverted(db *gorm.DB, leadID uint, conversionType string, now time.Time) (int, error) {
	var enrollments []SequenceEnrollment
	if err := db.Where("lead_id = ? AND status = ?", leadID, EnrollmentActive).Find(&enrollments).Error; err != nil {
		return 0, err
	}

	flagged := 0
	for _, enrollment := range enrollments {
		var send SequenceSend
		err := db.Where("enrollment_id = ? AND cycle = ?", enrollment.ID, enrollment.Cycle).
			Order("sent_at DESC").
			First(&send).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return flagged, err
		}
		if err := db.Model(&send).Updates(map[string]interface{}{
			"converted":       true,
			"conversion_type": conversionType,
			"converted_at":    now,
		}).Error; err != nil {
			return flagged, err
		}
		flagged++
	}
	return flagged, nil
}
