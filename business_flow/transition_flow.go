package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/leadpilot/pipeline-journey/app/services"
	"github.com/leadpilot/pipeline-journey/config"
	"github.com/leadpilot/pipeline-journey/models"
	"github.com/leadpilot/pipeline-journey/repository"
	"github.com/leadpilot/pipeline-journey/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// MoveResult is returned by a successful (allowed) move.
type MoveResult struct {
	Decision        MoveDecision
	PreviousStageID uint
	MovedAt         time.Time
	Scheduled       int
}

// TransitionFlow owns stage transitions and the journey scheduling that
// follows an approved entry.
type TransitionFlow interface {
	// RequestMove evaluates the target stage's entry rule for the lead
	// without mutating anything.
	RequestMove(ctx context.Context, leadUUID uuid.UUID, targetStageID uint) (MoveDecision, error)
	// Move evaluates the gate and, when allowed, commits the stage change
	// and materializes the target stage's journey messages in one
	// transaction.
	Move(ctx context.Context, leadUUID uuid.UUID, targetStageID uint, metadata *ClientMetadata) (*MoveResult, error)
	// CancelPending cancels still-pending journey messages of the lead for
	// one stage and returns how many rows were cancelled.
	CancelPending(ctx context.Context, leadUUID uuid.UUID, stageID uint) (int64, error)
	// ListStages returns the stage catalog in pipeline order.
	ListStages(ctx context.Context) ([]*models.PipelineStage, error)
}

type transitionFlow struct {
	leadRepo     repository.LeadRepository
	stageRepo    repository.StageRepository
	templateRepo repository.TemplateRepository
	scheduleRepo repository.ScheduledMessageRepository
	calendar     services.CalendarService
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.ProductionConfig
	logger       *log.Logger
}

// NewTransitionFlow creates a new transition business flow
func NewTransitionFlow(
	leadRepo repository.LeadRepository,
	stageRepo repository.StageRepository,
	templateRepo repository.TemplateRepository,
	scheduleRepo repository.ScheduledMessageRepository,
	calendar services.CalendarService,
	db *gorm.DB,
	redisClient *redis.Client,
	cfg *config.ProductionConfig,
) TransitionFlow {
	return &transitionFlow{
		leadRepo:     leadRepo,
		stageRepo:    stageRepo,
		templateRepo: templateRepo,
		scheduleRepo: scheduleRepo,
		calendar:     calendar,
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		logger:       log.New(os.Stdout, "pipeline ", log.LstdFlags|log.Lmicroseconds|log.LUTC),
	}
}

func (f *transitionFlow) RequestMove(ctx context.Context, leadUUID uuid.UUID, targetStageID uint) (MoveDecision, error) {
	lead, stage, err := f.loadLeadAndStage(ctx, leadUUID, targetStageID)
	if err != nil {
		return MoveDecision{}, err
	}
	return f.evaluateGate(ctx, lead, stage)
}

func (f *transitionFlow) Move(ctx context.Context, leadUUID uuid.UUID, targetStageID uint, metadata *ClientMetadata) (*MoveResult, error) {
	lead, stage, err := f.loadLeadAndStage(ctx, leadUUID, targetStageID)
	if err != nil {
		return nil, err
	}

	release, err := acquireMoveLock(ctx, f.redisClient, f.cfg.Cache.RedisPrefix, lead.ID, f.cfg.Cache.MoveLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	decision, err := f.evaluateGate(ctx, lead, stage)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return &MoveResult{Decision: decision, PreviousStageID: lead.StageID}, nil
	}

	enteredAt := utils.UTCNow()
	previousStageID := lead.StageID
	scheduled := 0

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		ok, err := f.leadRepo.UpdateStageCAS(txCtx, lead.ID, previousStageID, stage.ID)
		if err != nil {
			return fmt.Errorf("failed to update lead stage: %w", err)
		}
		if !ok {
			return ErrStaleStage
		}

		if f.cfg.Dispatch.CancelOnStageExit && previousStageID != stage.ID {
			if _, err := f.scheduleRepo.CancelPending(txCtx, lead.ID, previousStageID); err != nil {
				return fmt.Errorf("failed to cancel pending messages of exited stage: %w", err)
			}
		}

		n, err := f.materializeJourney(txCtx, lead, stage, enteredAt)
		if err != nil {
			return err
		}
		scheduled = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logMove(ctx, lead, previousStageID, stage.ID, scheduled, metadata)

	return &MoveResult{
		Decision:        decision,
		PreviousStageID: previousStageID,
		MovedAt:         enteredAt,
		Scheduled:       scheduled,
	}, nil
}

// logMove records the committed transition with the caller's client metadata
// and request ID for correlation.
func (f *transitionFlow) logMove(ctx context.Context, lead *models.Lead, fromStageID, toStageID uint, scheduled int, metadata *ClientMetadata) {
	ipAddress := ""
	userAgent := ""
	requestID := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
		requestID = metadata.RequestID
	}
	if requestID == "" {
		if v, ok := ctx.Value(RequestIDKey).(string); ok {
			requestID = v
		}
	}
	f.logger.Printf("lead %s moved stage %d -> %d scheduled=%d ip=%s agent=%q request_id=%s",
		lead.UUID, fromStageID, toStageID, scheduled, ipAddress, userAgent, requestID)
}

func (f *transitionFlow) CancelPending(ctx context.Context, leadUUID uuid.UUID, stageID uint) (int64, error) {
	lead, err := f.leadRepo.ByUUID(ctx, leadUUID)
	if err != nil {
		return 0, fmt.Errorf("failed to find lead: %w", err)
	}
	if lead == nil {
		return 0, ErrLeadNotFound
	}
	return f.scheduleRepo.CancelPending(ctx, lead.ID, stageID)
}

func (f *transitionFlow) ListStages(ctx context.Context) ([]*models.PipelineStage, error) {
	return f.stageRepo.ListOrdered(ctx)
}

func (f *transitionFlow) loadLeadAndStage(ctx context.Context, leadUUID uuid.UUID, targetStageID uint) (*models.Lead, *models.PipelineStage, error) {
	if targetStageID == 0 {
		return nil, nil, ErrTargetStageRequired
	}

	lead, err := f.leadRepo.ByUUID(ctx, leadUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find lead: %w", err)
	}
	if lead == nil {
		return nil, nil, ErrLeadNotFound
	}

	stage, err := f.stageRepo.ByID(ctx, targetStageID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find stage: %w", err)
	}
	if stage == nil {
		return nil, nil, ErrStageNotFound
	}

	return lead, stage, nil
}

// evaluateGate applies the target stage's entry rule, translating an unmet
// precondition into a blocked decision rather than an error.
func (f *transitionFlow) evaluateGate(ctx context.Context, lead *models.Lead, stage *models.PipelineStage) (MoveDecision, error) {
	err := f.checkEntryRule(ctx, lead, stage)
	switch {
	case err == nil:
		return Allowed(lead.ID, stage.ID), nil
	case errors.Is(err, ErrProposalRequired):
		return Blocked(lead.ID, stage.ID, BlockReasonProposalRequired), nil
	case errors.Is(err, ErrMeetingRequired):
		return Blocked(lead.ID, stage.ID, BlockReasonMeetingRequired), nil
	default:
		return MoveDecision{}, err
	}
}

// checkEntryRule reports the unmet precondition of the stage's entry rule as
// a sentinel error. Unknown rules carry no precondition.
func (f *transitionFlow) checkEntryRule(ctx context.Context, lead *models.Lead, stage *models.PipelineStage) error {
	switch stage.EntryRule {
	case models.EntryRuleRequiresLinkedProposal:
		if lead.ProposalID == nil {
			return ErrProposalRequired
		}
	case models.EntryRuleRequiresScheduledMeeting:
		has, err := f.calendar.HasUpcomingMeeting(ctx, lead.ID)
		if err != nil {
			return NewBusinessError("CALENDAR_UNAVAILABLE", "failed to check upcoming meetings", err)
		}
		if !has {
			return ErrMeetingRequired
		}
	}
	return nil
}

// materializeJourney snapshots the stage's templates and the lead's identity
// into durable scheduled messages keyed by this entry event. Inserts ignore
// rows already present
// for the same (lead, stage, entered_at, template) key so re-processing an
// entry cannot duplicate messages.
func (f *transitionFlow) materializeJourney(ctx context.Context, lead *models.Lead, stage *models.PipelineStage, enteredAt time.Time) (int, error) {
	templates, err := f.templateRepo.ListByStage(ctx, stage.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list journey templates: %w", err)
	}
	if len(templates) == 0 {
		return 0, nil
	}

	rows := make([]*models.ScheduledMessage, 0, len(templates))
	for _, tpl := range templates {
		rows = append(rows, &models.ScheduledMessage{
			LeadID:       lead.ID,
			StageID:      stage.ID,
			TemplateID:   tpl.ID,
			EnteredAt:    enteredAt,
			LeadName:     lead.FullName,
			LeadPhone:    lead.Phone,
			LeadEmail:    lead.Email,
			LeadTags:     lead.Tags,
			Title:        tpl.Title,
			Body:         tpl.Body,
			Type:         tpl.Type,
			MediaURL:     tpl.MediaURL,
			WebhookURL:   f.resolveWebhookURL(tpl),
			ScheduledFor: enteredAt.Add(tpl.Delay()),
			Status:       models.ScheduleStatusPending,
		})
	}

	if err := f.scheduleRepo.SaveBatchIgnoreConflicts(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to save scheduled messages: %w", err)
	}
	return len(rows), nil
}

// resolveWebhookURL prefers the template's override and falls back to the
// system default. May be empty when neither is set; the dispatcher records
// such rows as failed without calling out.
func (f *transitionFlow) resolveWebhookURL(tpl *models.JourneyTemplate) string {
	if tpl.WebhookURL != nil && *tpl.WebhookURL != "" {
		return *tpl.WebhookURL
	}
	return f.cfg.Webhook.DefaultURL
}
