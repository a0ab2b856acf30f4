package testing

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/leadpilot/pipeline-journey/models"
	"github.com/leadpilot/pipeline-journey/utils"
	"github.com/lib/pq"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestStage creates a pipeline stage with the given entry rule
func (tf *TestFixtures) CreateTestStage(name string, sortOrder int, rule models.StageEntryRule) (*models.PipelineStage, error) {
	stage := &models.PipelineStage{
		Name:      name,
		SortOrder: sortOrder,
		EntryRule: rule,
		CreatedAt: utils.UTCNow(),
		UpdatedAt: utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(stage).Error; err != nil {
		return nil, fmt.Errorf("failed to create test stage: %w", err)
	}
	return stage, nil
}

// CreateTestLead creates a lead positioned at the given stage
func (tf *TestFixtures) CreateTestLead(stageID uint) (*models.Lead, error) {
	randomDigits := fmt.Sprintf("%09d", rand.Intn(900000000)+100000000)

	lead := &models.Lead{
		UUID:      uuid.New(),
		FullName:  "Jordan Doe",
		Phone:     "+1555" + randomDigits[:7],
		Email:     fmt.Sprintf("jordan.doe.%s@example.com", randomDigits),
		Tags:      pq.StringArray{"newsletter", "trial"},
		StageID:   stageID,
		CreatedAt: utils.UTCNow(),
		UpdatedAt: utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(lead).Error; err != nil {
		return nil, fmt.Errorf("failed to create test lead: %w", err)
	}
	return lead, nil
}

// CreateTestLeadWithProposal creates a lead that already has a linked proposal
func (tf *TestFixtures) CreateTestLeadWithProposal(stageID, proposalID uint) (*models.Lead, error) {
	lead, err := tf.CreateTestLead(stageID)
	if err != nil {
		return nil, err
	}
	lead.ProposalID = &proposalID
	if err := tf.DB.DB.Save(lead).Error; err != nil {
		return nil, fmt.Errorf("failed to link proposal: %w", err)
	}
	return lead, nil
}

// CreateTestTemplate creates a journey template for a stage
func (tf *TestFixtures) CreateTestTemplate(stageID uint, title string, delayValue int, delayUnit models.DelayUnit) (*models.JourneyTemplate, error) {
	tpl := &models.JourneyTemplate{
		StageID:    stageID,
		Title:      title,
		Body:       "Hello from " + title,
		Type:       models.MessageTypeText,
		DelayValue: delayValue,
		DelayUnit:  delayUnit,
		CreatedAt:  utils.UTCNow(),
		UpdatedAt:  utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(tpl).Error; err != nil {
		return nil, fmt.Errorf("failed to create test template: %w", err)
	}
	return tpl, nil
}

// CreateTestTemplateWithWebhook creates a journey template carrying its own webhook URL
func (tf *TestFixtures) CreateTestTemplateWithWebhook(stageID uint, title string, delayValue int, delayUnit models.DelayUnit, webhookURL string) (*models.JourneyTemplate, error) {
	tpl, err := tf.CreateTestTemplate(stageID, title, delayValue, delayUnit)
	if err != nil {
		return nil, err
	}
	tpl.WebhookURL = &webhookURL
	if err := tf.DB.DB.Save(tpl).Error; err != nil {
		return nil, fmt.Errorf("failed to set template webhook: %w", err)
	}
	return tpl, nil
}

// CreateTestScheduledMessage creates a scheduled message row directly
func (tf *TestFixtures) CreateTestScheduledMessage(lead *models.Lead, stageID, templateID uint, msg *models.ScheduledMessage) (*models.ScheduledMessage, error) {
	if msg == nil {
		msg = &models.ScheduledMessage{}
	}
	msg.LeadID = lead.ID
	msg.StageID = stageID
	msg.TemplateID = templateID
	if msg.EnteredAt.IsZero() {
		msg.EnteredAt = utils.UTCNow()
	}
	if msg.LeadName == "" {
		msg.LeadName = lead.FullName
	}
	if msg.LeadPhone == "" {
		msg.LeadPhone = lead.Phone
	}
	if msg.LeadEmail == "" {
		msg.LeadEmail = lead.Email
	}
	if msg.LeadTags == nil {
		msg.LeadTags = lead.Tags
	}
	if msg.Title == "" {
		msg.Title = "Test message"
	}
	if msg.Body == "" {
		msg.Body = "Test body"
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}
	if msg.ScheduledFor.IsZero() {
		msg.ScheduledFor = utils.UTCNow()
	}
	if msg.Status == "" {
		msg.Status = models.ScheduleStatusPending
	}
	if err := tf.DB.DB.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create test scheduled message: %w", err)
	}
	return msg, nil
}
