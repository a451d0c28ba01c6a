package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"testing"
	"time"

	"dripcrm/models"
	"dripcrm/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newLeadApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	lc := NewLeadController(db, testLogger())
	lc.Now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }

	app := fiber.New()
	app.Post("/leads", lc.CreateLead)
	app.Get("/leads", lc.GetLeads)
	app.Post("/leads/import", lc.ImportLeads)
	app.Get("/leads/:id", lc.GetLead)
	app.Put("/leads/:id", lc.UpdateLead)
	return app, db
}

func TestCreateAndUpdateLead(t *testing.T) {
	app, db := newLeadApp(t)

	resp, body := doJSON(t, app, "POST", "/leads", map[string]interface{}{
		"email":      "Pat@Example.com",
		"first_name": "Pat",
		"age":        64,
		"state":      "FL",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	data := dataOf(t, body)
	require.Equal(t, "pat@example.com", data["email"])
	require.Equal(t, models.LeadStatusNew, data["status"])
	id := uint(data["ID"].(float64))

	resp, _ = doJSON(t, app, "POST", "/leads", map[string]interface{}{"email": "pat@example.com"})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/leads", map[string]interface{}{"email": "pat@mailinator.com"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/leads", map[string]interface{}{"first_name": "NoEmail"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "PUT", fmt.Sprintf("/leads/%d", id), map[string]interface{}{"age": 65, "city": "Orlando"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var lead models.Lead
	require.NoError(t, db.First(&lead, id).Error)
	require.NotNil(t, lead.Age)
	require.Equal(t, 65, *lead.Age)
	require.Equal(t, "Orlando", lead.City)
	require.Equal(t, "Pat", lead.FirstName)

	resp, _ = doJSON(t, app, "PUT", "/leads/999", map[string]interface{}{"city": "Miami"})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetLeadsFilters(t *testing.T) {
	app, db := newLeadApp(t)
	testutil.CreateLead(t, db, "pat@example.com", nil)
	other := testutil.CreateLead(t, db, "sam@example.com", nil)
	require.NoError(t, db.Model(other).Update("state", "OH").Error)

	resp, body := doJSON(t, app, "GET", "/leads?state=FL", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, dataOf(t, body)["total"])

	resp, body = doJSON(t, app, "GET", "/leads?email=sam", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, dataOf(t, body)["total"])
}

func TestGetLeadIncludesEnrollments(t *testing.T) {
	app, db := newLeadApp(t)
	seq, err := models.SeedDefaultSequence(db, "", nil)
	require.NoError(t, err)
	lead := testutil.CreateLead(t, db, "pat@example.com", nil)
	_, err = models.Enroll(db, seq.ID, []uint{lead.ID}, time.Now().UTC())
	require.NoError(t, err)

	resp, body := doJSON(t, app, "GET", fmt.Sprintf("/leads/%d", lead.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	enrollments, ok := dataOf(t, body)["enrollments"].([]interface{})
	require.True(t, ok)
	require.Len(t, enrollments, 1)
}

func TestImportLeadsAndEnroll(t *testing.T) {
	app, db := newLeadApp(t)
	seq, err := models.SeedDefaultSequence(db, "", nil)
	require.NoError(t, err)
	existing := testutil.CreateLead(t, db, "pat@example.com", nil)

	csvBody := "Email,First_Name,Age,State\n" +
		"pat@example.com,Pat,64,FL\n" +
		"sam@example.com,Sam,66,OH\n" +
		"SAM@example.com,Sam,66,OH\n" +
		"not-an-email,Bad,40,FL\n" +
		"short,row\n"

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "leads.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvBody))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest("POST", fmt.Sprintf("/leads/import?sequence_id=%d", seq.ID), &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	data := dataOf(t, body)
	require.EqualValues(t, 5, data["total_rows"])
	require.EqualValues(t, 1, data["new_leads"])
	require.EqualValues(t, 1, data["existing"])
	require.EqualValues(t, 3, data["skipped"])
	require.EqualValues(t, 2, data["enrolled"])

	var sam models.Lead
	require.NoError(t, db.Where("email = ?", "sam@example.com").First(&sam).Error)
	require.NotNil(t, sam.Age)
	require.Equal(t, 66, *sam.Age)
	require.Equal(t, "import", sam.Source)

	var count int64
	require.NoError(t, db.Model(&models.SequenceEnrollment{}).
		Where("lead_id IN ?", []uint{existing.ID, sam.ID}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func postLeadCSV(t *testing.T, app *fiber.App, path, csvBody string) int {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "leads.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvBody))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestImportLeadsRejectsMalformedCSV(t *testing.T) {
	app, db := newLeadApp(t)

	status := postLeadCSV(t, app, "/leads/import", "email,first_name\n\"pat@example.com,Pat\n")
	require.Equal(t, fiber.StatusBadRequest, status)

	var count int64
	require.NoError(t, db.Model(&models.Lead{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestImportLeadsRollsBackWhenEnrollFails(t *testing.T) {
	app, db := newLeadApp(t)
	seq, err := models.SeedDefaultSequence(db, "", nil)
	require.NoError(t, err)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_enrollments", func(tx *gorm.DB) {
		if tx.Statement.Table == "sequence_enrollments" {
			_ = tx.AddError(errors.New("enrollment store unavailable"))
		}
	}))

	csvBody := "email,first_name\n" +
		"pat@example.com,Pat\n" +
		"sam@example.com,Sam\n"
	status := postLeadCSV(t, app, fmt.Sprintf("/leads/import?sequence_id=%d", seq.ID), csvBody)
	require.Equal(t, fiber.StatusInternalServerError, status)

	var count int64
	require.NoError(t, db.Model(&models.Lead{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&models.SequenceEnrollment{}).Count(&count).Error)
	require.Zero(t, count)
}
