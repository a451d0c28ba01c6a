package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	BounceHard = "hard"
	BounceSoft = "soft"
)

// Unsubscribe represents unsubscribe requests
type Unsubscribe struct {
	gorm.Model
	Email  string `gorm:"not null;index" json:"email"`
	LeadID *uint  `json:"lead_id,omitempty"`

	Reason    string `json:"reason"`
	Source    string `json:"source"` // link, webhook, complaint, manual
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// Bounce represents email bounce records
type Bounce struct {
	gorm.Model
	Email     string `gorm:"not null;index" json:"email"`
	MessageID string `gorm:"index" json:"message_id"`

	Type           string    `gorm:"not null" json:"type"` // hard, soft
	Code           string    `json:"code"`
	Message        string    `json:"message"`
	DiagnosticCode string    `json:"diagnostic_code"`
	BouncedAt      time.Time `json:"bounced_at"`
}

// IsUnsubscribed reports whether the address is in the unsubscribe registry,
// compared case-insensitively.
func IsUnsubscribed(db *gorm.DB, email string) (bool, error) {
	var count int64
	err := db.Model(&Unsubscribe{}).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&count).Error
	return count > 0, err
}

// HasHardBounce reports whether any campaign has hard-bounced on the address.
func HasHardBounce(db *gorm.DB, email string) (bool, error) {
	var count int64
	err := db.Model(&Bounce{}).
		Where("LOWER(email) = ? AND type = ?", strings.ToLower(strings.TrimSpace(email)), BounceHard).
		Count(&count).Error
	return count > 0, err
}

// RecordUnsubscribe adds the address to the registry once.
func RecordUnsubscribe(db *gorm.DB, entry Unsubscribe) error {
	entry.Email = strings.ToLower(strings.TrimSpace(entry.Email))
	already, err := IsUnsubscribed(db, entry.Email)
	if err != nil || already {
		return err
	}
	return db.Create(&entry).Error
}
