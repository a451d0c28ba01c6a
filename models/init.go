package models

import "gorm.io/gorm"

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Lead{},
		&CalendarEvent{},
		&Sequence{},
		&SequenceStep{},
		&SequenceEnrollment{},
		&SequenceSend{},
		&Unsubscribe{},
		&Bounce{},
	)
}

// SeedDefaultSequence persists the built-in sequence under the given name.
func SeedDefaultSequence(db *gorm.DB, name string, createdByID *uint) (*Sequence, error) {
	if name == "" {
		name = DefaultSequenceName
	}
	sequence := Sequence{
		Name:        name,
		Description: DefaultSequenceDescription,
		IsActive:    true,
		CreatedByID: createdByID,
		Steps:       DefaultSequenceSteps(),
	}
	if err := db.Create(&sequence).Error; err != nil {
		return nil, err
	}
	return &sequence, nil
}
