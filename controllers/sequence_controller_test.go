package controller

import (
	"fmt"
	"testing"
	"time"

	"dripcrm/models"
	"dripcrm/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSequenceApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	sc := NewSequenceController(db, testLogger())

	app := fiber.New()
	app.Post("/sequences", sc.CreateSequence)
	app.Get("/sequences", sc.GetSequences)
	app.Get("/sequences/:id", sc.GetSequence)
	app.Put("/sequences/:id/status", sc.UpdateSequenceStatus)
	app.Post("/sequences/:id/steps", sc.AddStep)
	app.Put("/sequences/:id/steps/:order", sc.UpdateStep)
	return app, db
}

func TestCreateSequenceFromDefault(t *testing.T) {
	app, db := newSequenceApp(t)

	resp, body := doJSON(t, app, "POST", "/sequences", map[string]interface{}{
		"name":        "Spring leads",
		"use_default": true,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	data := dataOf(t, body)
	require.Equal(t, "Spring leads", data["name"])
	require.Len(t, data["steps"], 5)

	var count int64
	require.NoError(t, db.Model(&models.SequenceStep{}).Count(&count).Error)
	require.EqualValues(t, 5, count)
}

func TestCreateSequenceWithSteps(t *testing.T) {
	app, db := newSequenceApp(t)

	resp, body := doJSON(t, app, "POST", "/sequences", map[string]interface{}{
		"name":      "Custom",
		"is_active": false,
		"steps": []map[string]interface{}{
			{"subject": "Hello {first_name}", "html_body": "<p>one</p>"},
			{"subject": "Again", "html_body": "<p>two</p>", "delay_days": 2, "delay_hours": 6},
			{"subject": "Later", "html_body": "<p>three</p>", "delay_hours": 36},
		},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	id := uint(dataOf(t, body)["ID"].(float64))

	var seq models.Sequence
	require.NoError(t, db.Preload("Steps").First(&seq, id).Error)
	require.False(t, seq.IsActive)
	require.Len(t, seq.Steps, 3)

	step, err := models.FindStep(db, id, 2)
	require.NoError(t, err)
	require.Equal(t, 2, step.DelayDays)
	require.Equal(t, 6, step.DelayHours)

	step, err = models.FindStep(db, id, 3)
	require.NoError(t, err)
	require.Equal(t, 0, step.DelayDays)
	require.Equal(t, 36, step.DelayHours)
}

func TestCreateSequenceValidation(t *testing.T) {
	app, _ := newSequenceApp(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "missing name", body: map[string]interface{}{"use_default": true}},
		{name: "step without body", body: map[string]interface{}{
			"name":  "x",
			"steps": []map[string]interface{}{{"subject": "s"}},
		}},
		{name: "gap in order", body: map[string]interface{}{
			"name":  "x",
			"steps": []map[string]interface{}{{"step_order": 1, "subject": "s", "html_body": "b"}, {"step_order": 3, "subject": "s", "html_body": "b"}},
		}},
		{name: "negative delay hours", body: map[string]interface{}{
			"name":  "x",
			"steps": []map[string]interface{}{{"subject": "s", "html_body": "b", "delay_hours": -1}},
		}},
		{name: "both default and steps", body: map[string]interface{}{
			"name":        "x",
			"use_default": true,
			"steps":       []map[string]interface{}{{"subject": "s", "html_body": "b"}},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doJSON(t, app, "POST", "/sequences", tc.body)
			require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			require.Equal(t, false, body["success"])
		})
	}
}

func TestAddStepAppends(t *testing.T) {
	app, db := newSequenceApp(t)
	seq, err := models.SeedDefaultSequence(db, "", nil)
	require.NoError(t, err)

	resp, body := doJSON(t, app, "POST", fmt.Sprintf("/sequences/%d/steps", seq.ID), map[string]interface{}{
		"subject":    "Bonus",
		"html_body":  "<p>bonus</p>",
		"delay_days": 10,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.EqualValues(t, 6, dataOf(t, body)["step_order"])

	resp, _ = doJSON(t, app, "POST", fmt.Sprintf("/sequences/%d/steps", seq.ID), map[string]interface{}{
		"step_order": 2,
		"subject":    "Insert",
		"html_body":  "<p>x</p>",
	})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestUpdateStepFrozenWhileEnrolled(t *testing.T) {
	app, db := newSequenceApp(t)
	seq, err := models.SeedDefaultSequence(db, "", nil)
	require.NoError(t, err)
	lead := testutil.CreateLead(t, db, "pat@example.com", nil)
	_, err = models.Enroll(db, seq.ID, []uint{lead.ID}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	update := map[string]interface{}{"subject": "New subject", "html_body": "<p>new</p>", "delay_days": 1}
	path := fmt.Sprintf("/sequences/%d/steps/2", seq.ID)

	resp, _ := doJSON(t, app, "PUT", path, update)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	require.NoError(t, db.Model(&models.SequenceEnrollment{}).Where("lead_id = ?", lead.ID).
		Update("status", models.EnrollmentStopped).Error)

	resp, body := doJSON(t, app, "PUT", path, update)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "New subject", dataOf(t, body)["subject"])

	step, err := models.FindStep(db, seq.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 1, step.DelayDays)
	require.Empty(t, step.TextBody)

	resp, _ = doJSON(t, app, "PUT", fmt.Sprintf("/sequences/%d/steps/9", seq.ID), update)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestUpdateSequenceStatus(t *testing.T) {
	app, db := newSequenceApp(t)
	seq, err := models.SeedDefaultSequence(db, "", nil)
	require.NoError(t, err)

	resp, _ := doJSON(t, app, "PUT", fmt.Sprintf("/sequences/%d/status", seq.ID), map[string]interface{}{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "PUT", fmt.Sprintf("/sequences/%d/status", seq.ID), map[string]interface{}{"is_active": false})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var reloaded models.Sequence
	require.NoError(t, db.First(&reloaded, seq.ID).Error)
	require.False(t, reloaded.IsActive)
}

func TestGetSequenceIncludesEnrollmentCounts(t *testing.T) {
	app, db := newSequenceApp(t)
	seq, err := models.SeedDefaultSequence(db, "", nil)
	require.NoError(t, err)
	lead := testutil.CreateLead(t, db, "pat@example.com", nil)
	_, err = models.Enroll(db, seq.ID, []uint{lead.ID}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	resp, body := doJSON(t, app, "GET", fmt.Sprintf("/sequences/%d", seq.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	counts := dataOf(t, body)["enrollments"].(map[string]interface{})
	require.EqualValues(t, 1, counts[models.EnrollmentActive])
	require.EqualValues(t, 0, counts[models.EnrollmentStopped])

	resp, _ = doJSON(t, app, "GET", "/sequences/999", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetSequencesPaginates(t *testing.T) {
	app, db := newSequenceApp(t)
	for i := 0; i < 3; i++ {
		_, err := models.SeedDefaultSequence(db, fmt.Sprintf("Seq %d", i), nil)
		require.NoError(t, err)
	}

	resp, body := doJSON(t, app, "GET", "/sequences?page=2&limit=2", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := dataOf(t, body)
	require.EqualValues(t, 3, data["total"])
	require.Len(t, data["data"], 1)
}
