package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	EventTypeLivestream  = "livestream"
	EventTypeAppointment = "appointment"
	EventTypeSeminar     = "seminar"
)

// CalendarEvent is a scheduled appointment or broadcast. Sequence emails link
// to the next upcoming livestream.
type CalendarEvent struct {
	gorm.Model
	Title     string     `gorm:"not null" json:"title"`
	EventType string     `gorm:"not null;index" json:"event_type"` // livestream, appointment, seminar
	StartsAt  time.Time  `gorm:"not null;index" json:"starts_at"`
	EndsAt    *time.Time `json:"ends_at"`
	UserID    *uint      `gorm:"index" json:"user_id"`
	LeadID    *uint      `gorm:"index" json:"lead_id"`
	Location  string     `json:"location"`
	Cancelled bool       `gorm:"default:false" json:"cancelled"`
}

// NextLivestream returns the earliest livestream starting after now, or nil
// when none is scheduled.
func NextLivestream(db *gorm.DB, now time.Time) (*CalendarEvent, error) {
	var event CalendarEvent
	err := db.Where("event_type = ? AND starts_at > ? AND cancelled = ?", EventTypeLivestream, now, false).
		Order("starts_at ASC").
		Limit(1).
		Find(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}
