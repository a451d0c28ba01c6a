package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"dripcrm/models"

	"gorm.io/gorm"
)

const (
	EventOpen        = "open"
	EventClick       = "click"
	EventBounce      = "bounce"
	EventUnsubscribe = "unsubscribe"
	EventComplaint   = "complaint"
)

var (
	ErrSendNotFound     = errors.New("no send matches the message id")
	ErrMissingRecipient = errors.New("email or a known message_id is required")
)

// FeedbackEvent is one delivery signal from the mail provider, whichever
// channel it arrived on.
type FeedbackEvent struct {
	Type       string
	Email      string
	MessageID  string
	BounceType string
	Code       string
	Reason     string
	Source     string
	OccurredAt time.Time
}

// FeedbackRecorder writes provider feedback where the eligibility filter
// and the stats read it: bounces, the unsubscribe registry and the
// open/click stamps on sends.
type FeedbackRecorder struct {
	db *gorm.DB
}

func NewFeedbackRecorder(db *gorm.DB) *FeedbackRecorder {
	return &FeedbackRecorder{db: db}
}

// Record stores the event. It returns the address the event was applied to.
func (r *FeedbackRecorder) Record(ctx context.Context, event FeedbackEvent) (string, error) {
	db := r.db.WithContext(ctx)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	send, err := r.findSend(db, event.MessageID)
	if err != nil {
		return "", err
	}

	email := strings.ToLower(strings.TrimSpace(event.Email))
	if email == "" && send != nil {
		email = send.RecipientEmail
	}

	switch event.Type {
	case EventOpen, EventClick:
		if send == nil {
			return email, ErrSendNotFound
		}
		column := "opened_at"
		if event.Type == EventClick {
			column = "clicked_at"
		}
		return email, db.Model(send).Where(column+" IS NULL").Update(column, event.OccurredAt).Error

	case EventBounce:
		if email == "" {
			return "", ErrMissingRecipient
		}
		return email, db.Create(&models.Bounce{
			Email:          email,
			MessageID:      event.MessageID,
			Type:           BounceType(event.BounceType, event.Code),
			Code:           event.Code,
			Message:        event.Reason,
			DiagnosticCode: event.Code,
			BouncedAt:      event.OccurredAt,
		}).Error

	case EventUnsubscribe, EventComplaint:
		if email == "" {
			return "", ErrMissingRecipient
		}
		entry := models.Unsubscribe{
			Email:  email,
			Reason: event.Reason,
			Source: event.Source,
		}
		if entry.Source == "" {
			entry.Source = "webhook"
		}
		if event.Type == EventComplaint {
			entry.Source = "complaint"
			if entry.Reason == "" {
				entry.Reason = "spam complaint"
			}
		}
		if send != nil {
			entry.LeadID = &send.LeadID
		}
		return email, models.RecordUnsubscribe(db, entry)
	}

	return email, errors.New("unknown event type " + event.Type)
}

func (r *FeedbackRecorder) findSend(db *gorm.DB, messageID string) (*models.SequenceSend, error) {
	if messageID == "" {
		return nil, nil
	}
	var send models.SequenceSend
	err := db.Where("message_id = ?", messageID).First(&send).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &send, nil
}

// BounceType trusts the provider's classification, then the SMTP reply class.
func BounceType(reported, code string) string {
	switch strings.ToLower(reported) {
	case models.BounceHard:
		return models.BounceHard
	case models.BounceSoft:
		return models.BounceSoft
	}
	if strings.HasPrefix(strings.TrimSpace(code), "4") {
		return models.BounceSoft
	}
	return models.BounceHard
}
