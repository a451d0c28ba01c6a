package controller

import (
	"io"
	"net/http/httptest"
	"testing"

	"dripcrm/models"
	"dripcrm/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestUnsubscribePage(t *testing.T) {
	db := testutil.NewTestDB(t)
	lead := testutil.CreateLead(t, db, "pat@example.com", nil)
	uc := NewUnsubscribeController(db, testLogger())

	app := fiber.New()
	app.Get("/unsubscribe", uc.Unsubscribe)

	resp, err := app.Test(httptest.NewRequest("GET", "/unsubscribe?email=Pat%40Example.com", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(page), "You have been unsubscribed")

	unsubscribed, err := models.IsUnsubscribed(db, "pat@example.com")
	require.NoError(t, err)
	require.True(t, unsubscribed)

	var entry models.Unsubscribe
	require.NoError(t, db.First(&entry).Error)
	require.Equal(t, "link", entry.Source)
	require.NotNil(t, entry.LeadID)
	require.Equal(t, lead.ID, *entry.LeadID)

	// Following the link twice is harmless.
	resp, err = app.Test(httptest.NewRequest("GET", "/unsubscribe?email=pat%40example.com", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/unsubscribe?email=nonsense", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
