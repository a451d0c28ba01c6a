package controller

import (
	"fmt"
	"html"
	"strings"

	"dripcrm/models"
	"dripcrm/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type UnsubscribeController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewUnsubscribeController(db *gorm.DB, logger *logrus.Entry) *UnsubscribeController {
	return &UnsubscribeController{
		DB:     db,
		Logger: logger,
	}
}

const unsubscribePage = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%s</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 40px auto; padding: 20px; text-align: center; }
    </style>
</head>
<body>
    <h2>%s</h2>
    <p>%s</p>
</body>
</html>`

// Unsubscribe is the target of the link in every sequence email. It also
// accepts one-click POSTs from mail clients honoring List-Unsubscribe.
func (uc *UnsubscribeController) Unsubscribe(c *fiber.Ctx) error {
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))
	if err := checkmail.ValidateFormat(email); err != nil {
		return renderPage(c, fiber.StatusBadRequest, "Invalid link",
			"This unsubscribe link is not valid. Reply to any of our emails and we will remove you by hand.")
	}

	entry := models.Unsubscribe{
		Email:     email,
		Reason:    "unsubscribe link",
		Source:    "link",
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}

	var leadIDs []uint
	if err := uc.DB.Model(&models.Lead{}).Where("LOWER(email) = ?", email).Limit(1).Pluck("id", &leadIDs).Error; err == nil && len(leadIDs) > 0 {
		entry.LeadID = &leadIDs[0]
	}

	if err := models.RecordUnsubscribe(uc.DB, entry); err != nil {
		utils.LogError("unsubscribe_failed", err, map[string]interface{}{
			"email": email,
		})
		return renderPage(c, fiber.StatusInternalServerError, "Something went wrong",
			"We could not process your request. Please try again in a few minutes.")
	}

	uc.Logger.WithField("email", email).Info("Address unsubscribed")

	return renderPage(c, fiber.StatusOK, "You have been unsubscribed",
		fmt.Sprintf("%s will not receive any more emails from us.", email))
}

func renderPage(c *fiber.Ctx, status int, title, message string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).SendString(fmt.Sprintf(unsubscribePage,
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(message)))
}
