package repository

import (
	"context"
	"fmt"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"gorm.io/gorm"
)

// EventRepository defines the interface for the conversation audit log.
// The log is append-only; there are no update or delete operations.
type EventRepository interface {
	WithTx(tx *gorm.DB) EventRepository
	Create(ctx context.Context, event *models.ConversationEvent) error
	ListByConversation(ctx context.Context, conversationID uint) ([]models.ConversationEvent, error)
}

// eventRepository implements EventRepository using GORM
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// WithTx returns a repository that runs inside the given transaction
func (r *eventRepository) WithTx(tx *gorm.DB) EventRepository {
	if tx == nil {
		return r
	}
	return &eventRepository{db: tx}
}

// Create appends a conversation event
func (r *eventRepository) Create(ctx context.Context, event *models.ConversationEvent) error {
	result := r.db.WithContext(ctx).Create(event)
	if result.Error != nil {
		return fmt.Errorf("failed to create conversation event: %w", result.Error)
	}
	return nil
}

// ListByConversation retrieves the audit log of a conversation in order
func (r *eventRepository) ListByConversation(ctx context.Context, conversationID uint) ([]models.ConversationEvent, error) {
	var events []models.ConversationEvent
	result := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&events)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list conversation events: %w", result.Error)
	}
	return events, nil
}
