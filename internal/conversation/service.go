package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/events"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/realtime"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
)

// UpdateParams describes a conversation update. Nullable columns carry an
// explicit Set flag so callers can distinguish "leave alone" from "set to
// nil". ClosedAt is managed automatically on status transitions; the
// explicit field exists for callers that need to override it.
type UpdateParams struct {
	Status          *models.ConversationStatus
	AssignedToID    *uint
	AssignedToIDSet bool
	AssignedToAI    *bool
	ClosedAt        *time.Time
	ClosedAtSet     bool

	// EventType defaults to a plain update when empty
	EventType models.ConversationEventType
	ByUserID  *uint
	Reason    string

	// SkipRealtimeEvents suppresses the websocket publishes for updates the
	// UI should not react to, such as silent auto-assignment.
	SkipRealtimeEvents bool
}

// Service applies conversation state transitions. Every transition goes
// through Update so the audit trail, realtime publishes and event fan-out
// stay consistent with the stored row.
type Service struct {
	conversations repository.ConversationRepository
	auditLog      repository.EventRepository
	mailboxes     repository.MailboxRepository
	dispatcher    events.Dispatcher
	publisher     realtime.Publisher
	logger        *slog.Logger
}

// NewService creates a new Service instance
func NewService(
	conversations repository.ConversationRepository,
	auditLog repository.EventRepository,
	mailboxes repository.MailboxRepository,
	dispatcher events.Dispatcher,
	publisher realtime.Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		conversations: conversations,
		auditLog:      auditLog,
		mailboxes:     mailboxes,
		dispatcher:    dispatcher,
		publisher:     publisher,
		logger:        logger,
	}
}

// Update applies the given changes to a conversation and fires the side
// effects of the transition. A missing conversation is not an error; Update
// returns (nil, nil) so concurrent deletes do not fail callers.
//
// Closing stamps ClosedAt; reopening leaves the old ClosedAt in place as a
// record of the last closure. The audit event snapshots the values from
// before the update.
func (s *Service) Update(ctx context.Context, tx *gorm.DB, id uint, params UpdateParams) (*models.Conversation, error) {
	conversations := s.conversations.WithTx(tx)
	auditLog := s.auditLog.WithTx(tx)

	conv, err := conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	prevStatus := conv.Status
	prevAssignedToID := conv.AssignedToID
	prevAssignedToAI := conv.AssignedToAI

	changes := models.EventChanges{}
	now := time.Now()

	if params.Status != nil && *params.Status != conv.Status {
		changes.Status = &prevStatus
		conv.Status = *params.Status
		if conv.Status == models.StatusClosed {
			conv.ClosedAt = &now
		}
	}
	if params.AssignedToIDSet && !uintPtrEqual(params.AssignedToID, conv.AssignedToID) {
		changes.AssignedToID = prevAssignedToID
		conv.AssignedToID = params.AssignedToID
	}
	if params.AssignedToAI != nil && *params.AssignedToAI != conv.AssignedToAI {
		changes.AssignedToAI = &prevAssignedToAI
		conv.AssignedToAI = *params.AssignedToAI
	}
	if params.ClosedAtSet {
		conv.ClosedAt = params.ClosedAt
	}
	conv.UpdatedAt = now

	if err := conversations.Save(ctx, conv); err != nil {
		return nil, err
	}

	eventType := params.EventType
	if eventType == "" {
		eventType = models.EventTypeUpdate
	}
	if err := auditLog.Create(ctx, &models.ConversationEvent{
		ConversationID: conv.ID,
		Type:           eventType,
		Changes:        changes,
		ByUserID:       params.ByUserID,
		Reason:         params.Reason,
	}); err != nil {
		return nil, err
	}

	statusChanged := conv.Status != prevStatus
	assignmentChanged := changes.AssignedToID != nil || changes.AssignedToAI != nil

	if !params.SkipRealtimeEvents {
		s.publishUpdated(conv)
		if statusChanged {
			s.publishStatusChanged(ctx, conv, changes)
		}
	}

	// Semantic indexing is only worth doing once the conversation settles,
	// so the trigger fires on the transition into closed and nowhere else.
	if statusChanged && conv.Status == models.StatusClosed {
		s.trigger(ctx, events.EmbeddingCreate, events.EmbeddingCreatePayload{
			ConversationSlug: conv.Slug,
		})
	}

	if assignmentChanged && !params.SkipRealtimeEvents {
		s.trigger(ctx, events.SendFollowerNotification, events.SendFollowerNotificationPayload{
			ConversationID:    conv.ID,
			EventType:         string(eventType),
			TriggeredByUserID: params.ByUserID,
			EventDetails:      params.Reason,
		})
	}

	return conv, nil
}

// RequestHumanSupport takes the conversation away from the AI and escalates
// it to staff via the human-escalation handler.
func (s *Service) RequestHumanSupport(ctx context.Context, tx *gorm.DB, id uint, byUserID *uint) (*models.Conversation, error) {
	assignedToAI := false
	conv, err := s.Update(ctx, tx, id, UpdateParams{
		AssignedToAI: &assignedToAI,
		EventType:    models.EventTypeRequestHumanSupport,
		ByUserID:     byUserID,
	})
	if err != nil || conv == nil {
		return conv, err
	}

	s.trigger(ctx, events.HumanSupportRequested, events.HumanSupportRequestedPayload{
		ConversationID: conv.ID,
	})
	return conv, nil
}

// publishUpdated pushes the new conversation state to its detail channel
func (s *Service) publishUpdated(conv *models.Conversation) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(realtime.ConversationChannel(conv.Slug), realtime.EventConversationUpdated, map[string]interface{}{
		"id":           conv.ID,
		"slug":         conv.Slug,
		"status":       conv.Status,
		"assignedToId": conv.AssignedToID,
		"assignedToAI": conv.AssignedToAI,
		"updatedAt":    conv.UpdatedAt,
	})
}

// publishStatusChanged pushes a status transition to the mailbox list channel
// so inbox views can move the conversation between tabs. The payload carries
// the new status, the assignment, and the previous values of whatever
// changed.
func (s *Service) publishStatusChanged(ctx context.Context, conv *models.Conversation, changes models.EventChanges) {
	if s.publisher == nil {
		return
	}
	mailbox, err := s.mailboxes.GetByID(ctx, conv.MailboxID)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to load mailbox for status broadcast",
				slog.Uint64("mailbox_id", uint64(conv.MailboxID)),
				slog.Any("error", err))
		}
		return
	}
	s.publisher.Publish(realtime.MailboxListChannel(mailbox.Slug), realtime.EventConversationStatusChanged, map[string]interface{}{
		"slug":         conv.Slug,
		"status":       conv.Status,
		"assignedToId": conv.AssignedToID,
		"assignedToAI": conv.AssignedToAI,
		"previous":     changes,
	})
}

// trigger enqueues a domain event. The row is already committed by the time
// we get here, so a queue failure is logged rather than unwinding the update.
func (s *Service) trigger(ctx context.Context, name events.Name, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Trigger(ctx, name, payload, nil); err != nil && s.logger != nil {
		s.logger.Error("failed to trigger event",
			slog.String("event", string(name)),
			slog.Any("error", err))
	}
}

func uintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
