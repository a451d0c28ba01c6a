package utils

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dripcrm/config"

	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func newTestMailer(send func(m *gomail.Message) error) *SMTPMailer {
	m := NewSMTPMailer(config.SMTPConfig{
		Host:      "smtp.example.com",
		Port:      587,
		FromEmail: "team@example.com",
		FromName:  "Medicare Team",
	})
	m.backoff = func(int) time.Duration { return 0 }
	m.send = send
	return m
}

func TestSMTPMailerSendsHeadersAndBodies(t *testing.T) {
	var sent *gomail.Message
	m := newTestMailer(func(msg *gomail.Message) error {
		sent = msg
		return nil
	})

	id, err := m.Send(context.Background(), Email{
		From:           "agent@agency.com",
		FromName:       "Dana Agent",
		To:             "pat@example.com",
		ReplyTo:        "dana@agency.com",
		Subject:        "Hello",
		HTMLBody:       "<p>Hi</p>",
		TextBody:       "Hi",
		UnsubscribeURL: "https://crm.example.com/unsubscribe?email=pat%40example.com",
		Metadata:       map[string]string{"enrollment_id": "12"},
	})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(id, "@agency.com>"))

	require.Equal(t, []string{id}, sent.GetHeader("Message-ID"))
	require.Equal(t, []string{"pat@example.com"}, sent.GetHeader("To"))
	require.Equal(t, []string{"dana@agency.com"}, sent.GetHeader("Reply-To"))
	require.Equal(t, []string{"12"}, sent.GetHeader("X-Enrollment-Id"))
	require.Equal(t, []string{"<https://crm.example.com/unsubscribe?email=pat%40example.com>"}, sent.GetHeader("List-Unsubscribe"))
	require.Contains(t, sent.GetHeader("From")[0], "agent@agency.com")

	var buf bytes.Buffer
	_, err = sent.WriteTo(&buf)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "text/plain")
	require.Contains(t, buf.String(), "text/html")
}

func TestSMTPMailerFallsBackToConfiguredSender(t *testing.T) {
	var sent *gomail.Message
	m := newTestMailer(func(msg *gomail.Message) error {
		sent = msg
		return nil
	})

	_, err := m.Send(context.Background(), Email{To: "pat@example.com", Subject: "Hi", HTMLBody: "<p>Hi</p>"})
	require.NoError(t, err)
	require.Contains(t, sent.GetHeader("From")[0], "team@example.com")
	require.Contains(t, sent.GetHeader("From")[0], "Medicare Team")
}

func TestSMTPMailerNotConfigured(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{})
	_, err := m.Send(context.Background(), Email{To: "pat@example.com"})
	require.ErrorIs(t, err, ErrMailerNotConfigured)
}

func TestSMTPMailerRejectsMalformedRecipient(t *testing.T) {
	calls := 0
	m := newTestMailer(func(*gomail.Message) error {
		calls++
		return nil
	})

	_, err := m.Send(context.Background(), Email{To: "not-an-address"})
	require.ErrorIs(t, err, ErrInvalidRecipient)
	require.Zero(t, calls)
}

func TestSMTPMailerRetriesTemporaryErrors(t *testing.T) {
	calls := 0
	m := newTestMailer(func(*gomail.Message) error {
		calls++
		if calls < 3 {
			return errors.New("451 4.3.0 try again later")
		}
		return nil
	})

	_, err := m.Send(context.Background(), Email{To: "pat@example.com", HTMLBody: "x"})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestSMTPMailerDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	m := newTestMailer(func(*gomail.Message) error {
		calls++
		return errors.New("550 mailbox unavailable")
	})

	_, err := m.Send(context.Background(), Email{To: "pat@example.com", HTMLBody: "x"})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestMetadataHeader(t *testing.T) {
	require.Equal(t, "X-Enrollment-Id", MetadataHeader("enrollment_id"))
	require.Equal(t, "X-Sequence-Step", MetadataHeader("SEQUENCE-step"))
}
