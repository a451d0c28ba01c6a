package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// BookingLink is the scheduling page for a lead.
func BookingLink(baseURL string, leadID uint) string {
	return fmt.Sprintf("%s/book?lead=%d", trimBase(baseURL), leadID)
}

// LivestreamLink points at a specific seminar when one is scheduled, otherwise
// at the livestream landing page.
func LivestreamLink(baseURL string, eventID *uint, leadID uint) string {
	if eventID == nil {
		return trimBase(baseURL) + "/livestream"
	}
	return fmt.Sprintf("%s/livestream?seminar=%d&lead=%d", trimBase(baseURL), *eventID, leadID)
}

// UnsubscribeLink builds the one-click unsubscribe URL for an address
func UnsubscribeLink(baseURL, email string) string {
	return fmt.Sprintf("%s/unsubscribe?email=%s", trimBase(baseURL), url.QueryEscape(email))
}

func trimBase(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}
