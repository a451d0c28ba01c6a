package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dripcrm/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/sirupsen/logrus"
)

// SQSClient is the part of the SQS API the feedback consumer uses.
type SQSClient interface {
	ReceiveMessageWithContext(aws.Context, *sqs.ReceiveMessageInput, ...request.Option) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageWithContext(aws.Context, *sqs.DeleteMessageInput, ...request.Option) (*sqs.DeleteMessageOutput, error)
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type sesNotification struct {
	NotificationType string       `json:"notificationType"`
	Mail             sesMail      `json:"mail"`
	Bounce           sesBounce    `json:"bounce"`
	Complaint        sesComplaint `json:"complaint"`
}

type sesMail struct {
	MessageID     string `json:"messageId"`
	CommonHeaders struct {
		MessageID string `json:"messageId"`
	} `json:"commonHeaders"`
}

type sesRecipient struct {
	EmailAddress   string `json:"emailAddress"`
	Status         string `json:"status"`
	DiagnosticCode string `json:"diagnosticCode"`
}

type sesBounce struct {
	BounceType        string         `json:"bounceType"`
	BounceSubType     string         `json:"bounceSubType"`
	BouncedRecipients []sesRecipient `json:"bouncedRecipients"`
	Timestamp         string         `json:"timestamp"`
}

type sesComplaint struct {
	ComplainedRecipients  []sesRecipient `json:"complainedRecipients"`
	ComplaintFeedbackType string         `json:"complaintFeedbackType"`
	Timestamp             string         `json:"timestamp"`
}

// SESFeedbackConsumer long-polls an SQS queue subscribed to SES bounce and
// complaint notifications and records them like webhook events.
type SESFeedbackConsumer struct {
	client      SQSClient
	queueURL    string
	recorder    *FeedbackRecorder
	logger      *logrus.Entry
	maxMessages int64
	waitSeconds int64
	retryDelay  time.Duration
}

func NewSESFeedbackConsumer(client SQSClient, queueURL string, recorder *FeedbackRecorder, logger *logrus.Entry) *SESFeedbackConsumer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SESFeedbackConsumer{
		client:      client,
		queueURL:    queueURL,
		recorder:    recorder,
		logger:      logger.WithField("component", "ses_feedback"),
		maxMessages: 10,
		waitSeconds: 20,
		retryDelay:  5 * time.Second,
	}
}

// Start polls until ctx is cancelled.
func (c *SESFeedbackConsumer) Start(ctx context.Context) {
	c.logger.WithField("queue", c.queueURL).Info("SES feedback consumer started")
	for {
		if ctx.Err() != nil {
			c.logger.Info("SES feedback consumer shutting down...")
			return
		}
		if _, err := c.PollOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).Warn("Failed to receive SES feedback")
			select {
			case <-ctx.Done():
			case <-time.After(c.retryDelay):
			}
		}
	}
}

// PollOnce receives one batch and handles it. Messages are deleted once
// handled; a message whose events could not be stored stays on the queue
// for redelivery.
func (c *SESFeedbackConsumer) PollOnce(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: aws.Int64(c.maxMessages),
		WaitTimeSeconds:     aws.Int64(c.waitSeconds),
	})
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, msg := range out.Messages {
		err := c.handleMessage(ctx, aws.StringValue(msg.Body))
		var malformed malformedMessageError
		switch {
		case errors.As(err, &malformed):
			c.logger.WithError(err).WithField("sqs_message_id", aws.StringValue(msg.MessageId)).Warn("Dropping malformed SES notification")
		case err != nil:
			utils.LogError("ses_feedback_failed", err, map[string]interface{}{
				"sqs_message_id": aws.StringValue(msg.MessageId),
			})
			continue
		}

		if _, err := c.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			c.logger.WithError(err).Warn("Failed to delete SQS message")
			continue
		}
		handled++
	}
	return handled, nil
}

type malformedMessageError struct {
	err error
}

func (e malformedMessageError) Error() string { return "malformed notification: " + e.err.Error() }
func (e malformedMessageError) Unwrap() error { return e.err }

func (c *SESFeedbackConsumer) handleMessage(ctx context.Context, body string) error {
	notification, err := parseSESNotification(body)
	if err != nil {
		return malformedMessageError{err: err}
	}

	for _, event := range notification.events() {
		if _, err := c.recorder.Record(ctx, event); err != nil {
			if errors.Is(err, ErrMissingRecipient) {
				continue
			}
			return fmt.Errorf("record %s for %s: %w", event.Type, event.Email, err)
		}
		c.logger.WithFields(logrus.Fields{
			"event_type": event.Type,
			"email":      event.Email,
			"message_id": event.MessageID,
		}).Info("SES feedback recorded")
	}
	return nil
}

// parseSESNotification accepts SNS-wrapped notifications and raw message
// delivery.
func parseSESNotification(body string) (*sesNotification, error) {
	payload := body
	var envelope snsEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Type == "Notification" && envelope.Message != "" {
		payload = envelope.Message
	}

	var notification sesNotification
	if err := json.Unmarshal([]byte(payload), &notification); err != nil {
		return nil, err
	}
	if notification.NotificationType == "" {
		return nil, errors.New("missing notificationType")
	}
	return &notification, nil
}

func (n *sesNotification) events() []FeedbackEvent {
	messageID := n.Mail.CommonHeaders.MessageID
	if messageID == "" {
		messageID = n.Mail.MessageID
	}

	var events []FeedbackEvent
	switch n.NotificationType {
	case "Bounce":
		// Only explicitly transient bounces are soft
		bounceType := "hard"
		if n.Bounce.BounceType == "Transient" {
			bounceType = "soft"
		}
		for _, r := range n.Bounce.BouncedRecipients {
			events = append(events, FeedbackEvent{
				Type:       EventBounce,
				Email:      r.EmailAddress,
				MessageID:  messageID,
				BounceType: bounceType,
				Code:       r.Status,
				Reason:     strings.TrimSpace(n.Bounce.BounceSubType + " " + r.DiagnosticCode),
				Source:     "ses",
				OccurredAt: parseSESTime(n.Bounce.Timestamp),
			})
		}
	case "Complaint":
		for _, r := range n.Complaint.ComplainedRecipients {
			events = append(events, FeedbackEvent{
				Type:       EventComplaint,
				Email:      r.EmailAddress,
				MessageID:  messageID,
				Reason:     n.Complaint.ComplaintFeedbackType,
				Source:     "ses",
				OccurredAt: parseSESTime(n.Complaint.Timestamp),
			})
		}
	}
	return events
}

func parseSESTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
