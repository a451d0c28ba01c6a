package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusBooked    = "booked"
	LeadStatusEnrolled  = "enrolled"
	LeadStatusClosed    = "closed"
)

// Lead represents a single Medicare prospect
type Lead struct {
	gorm.Model

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`

	// Age drives the turning-65 content blocks. Nil when unknown.
	Age   *int   `json:"age"`
	City  string `json:"city"`
	State string `json:"state"`

	// Owning agent; unowned leads are signed by the default account
	AgentID *uint `gorm:"index" json:"agent_id"`

	// Status
	Status      string     `gorm:"default:'new'" json:"status"` // new, contacted, booked, enrolled, closed
	Source      string     `json:"source"`
	LastContact *time.Time `json:"last_contact"`

	// Relations
	Agent *User `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
}
