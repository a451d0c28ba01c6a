// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"dripcrm/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter atomic.Int64

// NewTestDB opens a private in-memory SQLite database with every model
// migrated. It is closed when the test ends.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:dripcrm_test_%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// CreateLead inserts a lead with the given email and age.
func CreateLead(t *testing.T, db *gorm.DB, email string, age *int) *models.Lead {
	t.Helper()

	lead := &models.Lead{
		Email:     email,
		FirstName: "Pat",
		LastName:  "Jones",
		Age:       age,
		City:      "Tampa",
		State:     "FL",
	}
	if err := db.Create(lead).Error; err != nil {
		t.Fatalf("create lead: %v", err)
	}
	return lead
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
