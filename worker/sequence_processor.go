package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dripcrm/config"
	"dripcrm/models"
	"dripcrm/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrStepIncomplete    = errors.New("sequence step is missing subject or body")
	ErrEnrollmentChanged = errors.New("enrollment changed while it was being processed")
)

type ProcessorConfig struct {
	BaseURL           string
	FromEmail         string
	FromName          string
	DefaultAgent      config.AgentConfig
	LockTTL           time.Duration
	MaxReportedErrors int
	Now               func() time.Time
}

func NewProcessorConfig(cfg *config.Config) ProcessorConfig {
	return ProcessorConfig{
		BaseURL:           cfg.BaseURL,
		FromEmail:         cfg.SMTP.FromEmail,
		FromName:          cfg.SMTP.FromName,
		DefaultAgent:      cfg.DefaultAgent,
		LockTTL:           cfg.Sequence.LockTTL,
		MaxReportedErrors: cfg.Sequence.MaxReportedErrors,
	}
}

// ProcessSummary counts what one run did. Errors holds at most
// MaxReportedErrors messages; Failed counts all of them.
type ProcessSummary struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Stopped   int      `json:"stopped"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

func (s *ProcessSummary) recordError(limit int, message string) {
	s.Failed++
	if len(s.Errors) < limit {
		s.Errors = append(s.Errors, message)
	}
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeStopped
	outcomeSkipped
)

// agentIdentity signs the email and fills the agent placeholders.
type agentIdentity struct {
	Name  string
	Email string
	Phone string
}

type SequenceProcessor struct {
	db       *gorm.DB
	mailer   utils.Mailer
	locker   utils.Locker
	filter   *EligibilityFilter
	renderer *utils.Renderer
	cfg      ProcessorConfig
	logger   *logrus.Entry
}

func NewSequenceProcessor(db *gorm.DB, mailer utils.Mailer, locker utils.Locker, cfg ProcessorConfig, logger *logrus.Entry) *SequenceProcessor {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.MaxReportedErrors <= 0 {
		cfg.MaxReportedErrors = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if locker == nil {
		locker = utils.NewMemoryLocker()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &SequenceProcessor{
		db:       db,
		mailer:   mailer,
		locker:   locker,
		filter:   NewEligibilityFilter(db),
		renderer: utils.NewRenderer(),
		cfg:      cfg,
		logger:   logger.WithField("component", "sequence_processor"),
	}
}

// ProcessAll walks every active enrollment once, in id order, and sends each
// one's next step if it is due. Failures are isolated per enrollment; only a
// failure to list enrollments or a cancelled context ends the run early.
func (p *SequenceProcessor) ProcessAll(ctx context.Context) (*ProcessSummary, error) {
	started := time.Now()

	var ids []uint
	if err := p.db.WithContext(ctx).
		Model(&models.SequenceEnrollment{}).
		Where("status = ?", models.EnrollmentActive).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list active enrollments: %w", err)
	}

	summary := &ProcessSummary{Errors: []string{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.Processed++
		result, err := p.processSafely(ctx, id)
		if err != nil {
			summary.recordError(p.cfg.MaxReportedErrors, fmt.Sprintf("enrollment %d: %v", id, err))
			utils.LogError("sequence_enrollment_failed", err, map[string]interface{}{
				"enrollment_id": id,
			})
			continue
		}

		switch result {
		case outcomeSent:
			summary.Sent++
		case outcomeStopped:
			summary.Stopped++
		case outcomeSkipped:
			summary.Skipped++
		}
	}

	p.logger.WithFields(logrus.Fields{
		"processed": summary.Processed,
		"sent":      summary.Sent,
		"stopped":   summary.Stopped,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
		"duration":  time.Since(started).String(),
	}).Info("Sequence run finished")

	return summary, nil
}

func (p *SequenceProcessor) processSafely(ctx context.Context, id uint) (result outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.processEnrollment(ctx, id)
}

func (p *SequenceProcessor) processEnrollment(ctx context.Context, id uint) (outcome, error) {
	release, err := p.locker.Acquire(ctx, utils.EnrollmentLockKey(id), p.cfg.LockTTL)
	if errors.Is(err, utils.ErrLockHeld) {
		p.logger.WithField("enrollment_id", id).Debug("Enrollment locked by another run")
		return outcomeSkipped, nil
	}
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			p.logger.WithError(err).WithField("enrollment_id", id).Warn("Failed to release enrollment lock")
		}
	}()

	db := p.db.WithContext(ctx)

	// Re-read under the lock; another run may have advanced or ended it.
	var enrollment models.SequenceEnrollment
	err = db.Preload("Sequence").Preload("Lead").Preload("Lead.Agent").First(&enrollment, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return outcomeSkipped, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load enrollment: %w", err)
	}
	if enrollment.Status != models.EnrollmentActive {
		return outcomeSkipped, nil
	}
	if enrollment.Lead.ID == 0 {
		return 0, fmt.Errorf("lead %d not found", enrollment.LeadID)
	}

	decision, err := p.filter.Check(ctx, enrollment, enrollment.Lead.Email)
	if err != nil {
		return 0, err
	}
	if decision.Terminal() {
		if err := p.terminate(db, enrollment, decision); err != nil {
			return 0, err
		}
		return outcomeStopped, nil
	}

	if enrollment.Sequence.ID == 0 || !enrollment.Sequence.IsActive {
		return outcomeSkipped, nil
	}

	order := enrollment.CurrentStep + 1
	step, err := models.FindStep(db, enrollment.SequenceID, order)
	if err != nil {
		return 0, fmt.Errorf("load step %d: %w", order, err)
	}
	if step == nil {
		if err := p.complete(db, enrollment); err != nil {
			return 0, err
		}
		return outcomeStopped, nil
	}

	now := p.cfg.Now()
	if !IsDue(enrollment.EnrolledAt, enrollment.LastEmailSentAt, *step, now) {
		return outcomeSkipped, nil
	}
	if step.Subject == "" || step.HTMLBody == "" {
		return 0, fmt.Errorf("step %d of sequence %d: %w", order, enrollment.SequenceID, ErrStepIncomplete)
	}

	agent, err := p.resolveAgent(db, enrollment.Lead)
	if err != nil {
		return 0, err
	}

	var eventID *uint
	event, err := models.NextLivestream(db, now)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to look up next livestream, using generic link")
	} else if event != nil {
		eventID = &event.ID
	}

	data := p.personalizationData(enrollment.Lead, agent, eventID)
	email := p.buildEmail(enrollment, *step, agent, data)

	messageID, err := p.mailer.Send(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("dispatch step %d: %w", order, err)
	}

	if err := p.recordSend(db, enrollment, *step, messageID, p.cfg.Now()); err != nil {
		return 0, fmt.Errorf("email %s sent but not recorded: %w", messageID, err)
	}

	p.logger.WithFields(logrus.Fields{
		"enrollment_id": enrollment.ID,
		"sequence_id":   enrollment.SequenceID,
		"lead_id":       enrollment.LeadID,
		"step":          order,
		"message_id":    messageID,
	}).Info("Sequence email sent")

	return outcomeSent, nil
}

func (p *SequenceProcessor) terminate(db *gorm.DB, enrollment models.SequenceEnrollment, decision Decision) error {
	now := p.cfg.Now()
	updates := map[string]interface{}{
		"stop_reason": string(decision),
	}
	if decision == DecisionConverted {
		updates["status"] = models.EnrollmentCompleted
		updates["completed_at"] = now
	} else {
		updates["status"] = models.EnrollmentStopped
		updates["stopped_at"] = now
	}

	if err := casUpdate(db, enrollment, updates); err != nil {
		return fmt.Errorf("stop enrollment (%s): %w", decision, err)
	}
	p.logger.WithFields(logrus.Fields{
		"enrollment_id": enrollment.ID,
		"reason":        decision,
	}).Info("Enrollment ended")
	return nil
}

func (p *SequenceProcessor) complete(db *gorm.DB, enrollment models.SequenceEnrollment) error {
	if err := casUpdate(db, enrollment, map[string]interface{}{
		"status":       models.EnrollmentCompleted,
		"completed_at": p.cfg.Now(),
	}); err != nil {
		return fmt.Errorf("complete enrollment: %w", err)
	}
	p.logger.WithField("enrollment_id", enrollment.ID).Info("Enrollment completed")
	return nil
}

// recordSend stores the send and advances the enrollment in one transaction.
// The advance only applies if current_step is still what was read.
func (p *SequenceProcessor) recordSend(db *gorm.DB, enrollment models.SequenceEnrollment, step models.SequenceStep, messageID string, sentAt time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := casUpdate(tx, enrollment, map[string]interface{}{
			"current_step":       step.StepOrder,
			"last_email_sent_at": sentAt,
		}); err != nil {
			return err
		}

		send := models.SequenceSend{
			EnrollmentID:   enrollment.ID,
			StepID:         step.ID,
			LeadID:         enrollment.LeadID,
			Cycle:          enrollment.Cycle,
			StepOrder:      step.StepOrder,
			RecipientEmail: enrollment.Lead.Email,
			SentAt:         sentAt,
			MessageID:      messageID,
		}
		if err := tx.Create(&send).Error; err != nil {
			return err
		}

		return tx.Model(&models.Lead{}).
			Where("id = ?", enrollment.LeadID).
			Update("last_contact", sentAt).Error
	})
}

// casUpdate applies updates only while the row is still active at the step
// that was read.
func casUpdate(db *gorm.DB, enrollment models.SequenceEnrollment, updates map[string]interface{}) error {
	res := db.Model(&models.SequenceEnrollment{}).
		Where("id = ? AND status = ? AND current_step = ?", enrollment.ID, models.EnrollmentActive, enrollment.CurrentStep).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEnrollmentChanged
	}
	return nil
}

// resolveAgent prefers the lead's owner, then the account matching the
// configured default agent email, then the configured identity itself.
func (p *SequenceProcessor) resolveAgent(db *gorm.DB, lead models.Lead) (agentIdentity, error) {
	if lead.Agent != nil {
		return agentIdentity{Name: lead.Agent.Name, Email: lead.Agent.Email, Phone: lead.Agent.Phone}, nil
	}

	fallback := agentIdentity{
		Name:  p.cfg.DefaultAgent.Name,
		Email: p.cfg.DefaultAgent.Email,
		Phone: p.cfg.DefaultAgent.Phone,
	}
	if fallback.Email == "" {
		return fallback, nil
	}

	var users []models.User
	if err := db.Where("LOWER(email) = LOWER(?)", fallback.Email).Limit(1).Find(&users).Error; err != nil {
		return agentIdentity{}, fmt.Errorf("load default agent: %w", err)
	}
	if len(users) == 0 {
		return fallback, nil
	}
	agent := users[0]
	if agent.Phone == "" {
		agent.Phone = fallback.Phone
	}
	return agentIdentity{Name: agent.Name, Email: agent.Email, Phone: agent.Phone}, nil
}

func (p *SequenceProcessor) personalizationData(lead models.Lead, agent agentIdentity, eventID *uint) utils.PersonalizationData {
	data := utils.PersonalizationData{
		"first_name":       lead.FirstName,
		"last_name":        lead.LastName,
		"city":             lead.City,
		"state":            lead.State,
		"agent_name":       agent.Name,
		"agent_phone":      agent.Phone,
		"agent_email":      agent.Email,
		"booking_link":     utils.BookingLink(p.cfg.BaseURL, lead.ID),
		"livestream_link":  utils.LivestreamLink(p.cfg.BaseURL, eventID, lead.ID),
		"unsubscribe_link": utils.UnsubscribeLink(p.cfg.BaseURL, lead.Email),
	}
	if lead.Age != nil {
		data["age"] = *lead.Age
	}
	return data
}

func (p *SequenceProcessor) buildEmail(enrollment models.SequenceEnrollment, step models.SequenceStep, agent agentIdentity, data utils.PersonalizationData) utils.Email {
	from := step.FromEmail
	if from == "" {
		from = p.cfg.FromEmail
	}
	fromName := p.renderer.Render(step.FromName, data)
	if fromName == "" {
		fromName = agent.Name
	}
	if fromName == "" {
		fromName = p.cfg.FromName
	}
	replyTo := step.ReplyTo
	if replyTo == "" {
		replyTo = agent.Email
	}

	email := utils.Email{
		From:           from,
		FromName:       fromName,
		To:             enrollment.Lead.Email,
		ReplyTo:        replyTo,
		Subject:        p.renderer.Render(step.Subject, data),
		HTMLBody:       p.renderer.RenderHTML(step.HTMLBody, data),
		UnsubscribeURL: utils.UnsubscribeLink(p.cfg.BaseURL, enrollment.Lead.Email),
		Metadata: map[string]string{
			"enrollment_id": strconv.FormatUint(uint64(enrollment.ID), 10),
			"sequence_id":   strconv.FormatUint(uint64(enrollment.SequenceID), 10),
			"step_order":    strconv.Itoa(step.StepOrder),
			"lead_id":       strconv.FormatUint(uint64(enrollment.LeadID), 10),
		},
	}
	if step.TextBody != "" {
		email.TextBody = p.renderer.Render(step.TextBody, data)
	}
	return email
}
