package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/badoux/checkmail"
)

var (
	ErrDisposableAddress = errors.New("disposable email domain")
	ErrLikelyTypo        = errors.New("email domain looks like a typo")
)

// Common email typos
var commonTypos = map[string]string{
	"gmai.com":   "gmail.com",
	"gmal.com":   "gmail.com",
	"gmail.co":   "gmail.com",
	"yaho.com":   "yahoo.com",
	"hotmai.com": "hotmail.com",
	"outlok.com": "outlook.com",
	"aol.co":     "aol.com",
	"comcast.ne": "comcast.net",
}

var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"tempmail.org":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"sharklasers.com":   true,
	"yopmail.com":       true,
	"trashmail.com":     true,
	"getnada.com":       true,
	"dispostable.com":   true,
	"throwawaymail.com": true,
}

// ScreenAddress rejects lead addresses that would only ever bounce or
// never reach a person. It does no network lookups.
func ScreenAddress(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}

	local, domain := email[:strings.LastIndex(email, "@")], ExtractDomain(email)
	if suggested, ok := commonTypos[domain]; ok {
		return fmt.Errorf("%w: did you mean %s@%s?", ErrLikelyTypo, local, suggested)
	}
	if disposableDomains[domain] {
		return ErrDisposableAddress
	}
	return nil
}

// ExtractDomain extracts domain from email address
func ExtractDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
