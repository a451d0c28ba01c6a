package models

import (
	"gorm.io/gorm"
)

const (
	RoleAdmin  = "admin"
	RoleAgent  = "agent"
	RoleSetter = "setter"
)

// User is a CRM account. Agents own leads and sign the sequence emails sent
// to them.
type User struct {
	gorm.Model

	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Name     string `gorm:"not null" json:"name"`
	Phone    string `json:"phone"`
	Role     string `gorm:"default:'agent'" json:"role"` // admin, agent, setter
	Timezone string `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`

	// Relations
	Leads []Lead `gorm:"foreignKey:AgentID" json:"leads,omitempty"`
}
