package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"dripcrm/config"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

var (
	ErrMailerNotConfigured = errors.New("mailer not configured")
	ErrInvalidRecipient    = errors.New("invalid recipient address")
)

// Email is one rendered message ready for dispatch. Metadata entries are sent
// as X- headers so provider webhooks can be correlated back to a send, and
// UnsubscribeURL becomes the List-Unsubscribe header when set.
type Email struct {
	From           string
	FromName       string
	To             string
	ReplyTo        string
	Subject        string
	HTMLBody       string
	TextBody       string
	UnsubscribeURL string
	Metadata       map[string]string
}

// Mailer delivers a single message and returns its Message-ID.
type Mailer interface {
	Send(ctx context.Context, email Email) (string, error)
}

type SMTPMailer struct {
	host        string
	port        int
	username    string
	password    string
	fromEmail   string
	fromName    string
	maxAttempts int
	backoff     func(attempt int) time.Duration
	send        func(m *gomail.Message) error
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	m := &SMTPMailer{
		host:        cfg.Host,
		port:        cfg.Port,
		username:    cfg.Username,
		password:    cfg.Password,
		fromEmail:   cfg.FromEmail,
		fromName:    cfg.FromName,
		maxAttempts: 3,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}
	m.send = func(msg *gomail.Message) error {
		return dialer.DialAndSend(msg)
	}
	return m
}

// Configured reports whether the mailer has a relay to talk to.
func (m *SMTPMailer) Configured() bool {
	return m.host != "" && m.port > 0
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) (string, error) {
	if !m.Configured() {
		return "", ErrMailerNotConfigured
	}

	from := email.From
	if from == "" {
		from = m.fromEmail
	}
	if from == "" {
		return "", fmt.Errorf("no sender address: %w", ErrMailerNotConfigured)
	}
	fromName := email.FromName
	if fromName == "" {
		fromName = m.fromName
	}

	if err := checkmail.ValidateFormat(email.To); err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidRecipient, email.To, err)
	}

	messageID := NewMessageID(from)
	msg := buildMessage(email, from, fromName, messageID)

	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(m.backoff(attempt)):
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		lastErr = m.send(msg)
		if lastErr == nil {
			return messageID, nil
		}
		if !isTemporaryError(lastErr) {
			break
		}
	}

	return "", fmt.Errorf("smtp send to %s: %w", email.To, lastErr)
}

// NewMessageID returns an RFC 5322 Message-ID in the sender's domain.
func NewMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}

func buildMessage(email Email, from, fromName, messageID string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", from, fromName)
	msg.SetHeader("To", email.To)
	if email.ReplyTo != "" {
		msg.SetHeader("Reply-To", email.ReplyTo)
	}
	msg.SetHeader("Subject", email.Subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetHeader("X-Mailer", "dripcrm")
	if email.UnsubscribeURL != "" {
		msg.SetHeader("List-Unsubscribe", "<"+email.UnsubscribeURL+">")
	}

	for key, value := range email.Metadata {
		msg.SetHeader(MetadataHeader(key), value)
	}

	if email.TextBody != "" {
		msg.SetBody("text/plain", email.TextBody)
		msg.AddAlternative("text/html", email.HTMLBody)
	} else {
		msg.SetBody("text/html", email.HTMLBody)
	}
	return msg
}

// MetadataHeader maps a metadata key such as "enrollment_id" to
// "X-Enrollment-Id".
func MetadataHeader(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	for i, part := range parts {
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return "X-" + strings.Join(parts, "-")
}

func isTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// 4xx SMTP replies are transient
	errStr := strings.ToLower(err.Error())
	for _, tempErr := range []string{"try again", "temporary", "421", "450", "451", "452"} {
		if strings.Contains(errStr, tempErr) {
			return true
		}
	}
	return false
}
