package controller

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"dripcrm/models"
	"dripcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const importBatchSize = 100

type LeadController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
	Now    func() time.Time
}

func NewLeadController(db *gorm.DB, logger *logrus.Entry) *LeadController {
	return &LeadController{
		DB:     db,
		Logger: logger,
		Now:    time.Now,
	}
}

type leadInput struct {
	Email     string `json:"email" validate:"omitempty,email"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=30"`
	Age       *int   `json:"age" validate:"omitempty,min=0,max=130"`
	City      string `json:"city" validate:"omitempty,max=100"`
	State     string `json:"state" validate:"omitempty,max=50"`
	AgentID   *uint  `json:"agent_id"`
	Status    string `json:"status" validate:"omitempty,oneof=new contacted booked enrolled closed"`
	Source    string `json:"source" validate:"omitempty,max=100"`
}

// CreateLead creates a new lead with validation
func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	var input leadInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if input.Email == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", errors.New("email is required"))
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := utils.ScreenAddress(email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Email address rejected", err)
	}
	exists, err := lc.emailTaken(email, 0)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check lead", err)
	}
	if exists {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Lead with this email already exists", nil)
	}

	lead := models.Lead{
		Email:     email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     input.Phone,
		Age:       input.Age,
		City:      input.City,
		State:     input.State,
		AgentID:   input.AgentID,
		Status:    input.Status,
		Source:    input.Source,
	}
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}

	if err := lc.DB.Create(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create lead", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(lead))
}

// GetLeads returns paginated list of leads with filters
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := lc.DB.Model(&models.Lead{})
	if email := c.Query("email"); email != "" {
		query = query.Where("email LIKE ?", "%"+strings.ToLower(email)+"%")
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if state := c.Query("state"); state != "" {
		query = query.Where("state = ?", state)
	}
	if agentID := utils.ParseUint(c.Query("agent_id")); agentID != 0 {
		query = query.Where("agent_id = ?", agentID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count leads", err)
	}

	var leads []models.Lead
	if err := query.Order("id").Offset((page - 1) * limit).Limit(limit).Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", err)
	}

	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  leads,
		Total: total,
		Page:  page,
		Limit: limit,
	}))
}

// GetLead returns a single lead with its enrollments
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	lead, err := lc.findLead(c.Params("id"))
	if err != nil {
		return leadLookupError(c, err)
	}

	var enrollments []models.SequenceEnrollment
	if err := lc.DB.Where("lead_id = ?", lead.ID).Order("id").Find(&enrollments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollments", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"lead":        lead,
		"enrollments": enrollments,
	}))
}

// UpdateLead updates the fields present in the body
func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	var input leadInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	lead, err := lc.findLead(c.Params("id"))
	if err != nil {
		return leadLookupError(c, err)
	}

	updates := map[string]interface{}{}
	if input.Email != "" {
		email := strings.ToLower(strings.TrimSpace(input.Email))
		if email != lead.Email {
			taken, err := lc.emailTaken(email, lead.ID)
			if err != nil {
				return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check lead", err)
			}
			if taken {
				return utils.ErrorResponse(c, fiber.StatusConflict, "Lead with this email already exists", nil)
			}
			updates["email"] = email
		}
	}
	if input.FirstName != "" {
		updates["first_name"] = input.FirstName
	}
	if input.LastName != "" {
		updates["last_name"] = input.LastName
	}
	if input.Phone != "" {
		updates["phone"] = input.Phone
	}
	if input.Age != nil {
		updates["age"] = *input.Age
	}
	if input.City != "" {
		updates["city"] = input.City
	}
	if input.State != "" {
		updates["state"] = input.State
	}
	if input.AgentID != nil {
		updates["agent_id"] = *input.AgentID
	}
	if input.Status != "" {
		updates["status"] = input.Status
	}
	if input.Source != "" {
		updates["source"] = input.Source
	}

	if len(updates) > 0 {
		if err := lc.DB.Model(lead).Updates(updates).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update lead", err)
		}
	}

	return c.JSON(utils.SuccessResponse(lead))
}

// ImportLeads imports leads from a CSV upload. Rows are matched on email;
// existing leads are left as they are. With ?sequence_id= every imported or
// matched lead is also enrolled.
func (lc *LeadController) ImportLeads(c *fiber.Ctx) error {
	var sequence *models.Sequence
	if raw := c.Query("sequence_id"); raw != "" {
		var seq models.Sequence
		if err := lc.DB.First(&seq, utils.ParseUint(raw)).Error; err != nil {
			return sequenceLookupError(c, err)
		}
		sequence = &seq
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File upload error", err)
	}
	if file.Size > 5<<20 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File too large (max 5MB)", nil)
	}

	src, err := file.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to open file", err)
	}
	defer src.Close()

	header, rows, err := readLeadCSV(src)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse CSV file", err)
	}

	// Leads and enrollments commit together or not at all
	var result *importResult
	enrolled := 0
	err = lc.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = importLeadRows(tx, header, rows)
		if err != nil {
			return err
		}
		if sequence != nil && len(result.leadIDs) > 0 {
			enrolled, err = models.Enroll(tx, sequence.ID, result.leadIDs, lc.Now().UTC())
		}
		return err
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to import leads", err)
	}

	lc.Logger.WithFields(logrus.Fields{
		"rows":      result.rows,
		"new_leads": result.created,
		"skipped":   result.skipped,
		"enrolled":  enrolled,
	}).Info("Leads imported")

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"total_rows": result.rows,
		"new_leads":  result.created,
		"existing":   result.existing,
		"skipped":    result.skipped,
		"enrolled":   enrolled,
	}))
}

type importResult struct {
	rows     int
	created  int
	existing int
	skipped  int
	leadIDs  []uint
}

// readLeadCSV returns the lowercased header row and the data rows.
func readLeadCSV(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, errors.New("CSV file must have at least a header and one row")
	}

	header := make([]string, len(records[0]))
	for i, col := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(col))
	}
	return header, records[1:], nil
}

// importLeadRows creates one lead per row, matching existing leads on email.
// Rows whose email fails ScreenAddress are skipped.
func importLeadRows(tx *gorm.DB, header []string, rows [][]string) (*importResult, error) {
	result := &importResult{rows: len(rows)}
	seen := make(map[string]bool)
	var batch []models.Lead

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		for _, lead := range batch {
			result.leadIDs = append(result.leadIDs, lead.ID)
		}
		result.created += len(batch)
		batch = nil
		return nil
	}

	for _, row := range rows {
		if len(row) != len(header) {
			result.skipped++
			continue
		}
		data := make(map[string]string, len(header))
		for i, col := range header {
			data[col] = strings.TrimSpace(row[i])
		}

		email := strings.ToLower(data["email"])
		if utils.ScreenAddress(email) != nil || seen[email] {
			result.skipped++
			continue
		}
		seen[email] = true

		var existing models.Lead
		err := tx.Where("LOWER(email) = ?", email).First(&existing).Error
		switch {
		case err == nil:
			result.existing++
			result.leadIDs = append(result.leadIDs, existing.ID)
			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}

		lead := models.Lead{
			Email:     email,
			FirstName: data["first_name"],
			LastName:  data["last_name"],
			Phone:     data["phone"],
			City:      data["city"],
			State:     data["state"],
			Source:    data["source"],
			Status:    models.LeadStatusNew,
		}
		if age, err := strconv.Atoi(data["age"]); err == nil && age > 0 {
			lead.Age = &age
		}
		if lead.Source == "" {
			lead.Source = "import"
		}
		batch = append(batch, lead)

		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return result, nil
}

func (lc *LeadController) findLead(id string) (*models.Lead, error) {
	var lead models.Lead
	if err := lc.DB.First(&lead, utils.ParseUint(id)).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (lc *LeadController) emailTaken(email string, exceptID uint) (bool, error) {
	var count int64
	err := lc.DB.Model(&models.Lead{}).
		Where("LOWER(email) = ? AND id <> ?", email, exceptID).
		Count(&count).Error
	return count > 0, err
}

func leadLookupError(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
}
