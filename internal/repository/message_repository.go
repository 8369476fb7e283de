package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"gorm.io/gorm"
)

// MessageRepository defines the interface for conversation message data access
type MessageRepository interface {
	WithTx(tx *gorm.DB) MessageRepository
	Create(ctx context.Context, message *models.ConversationMessage) error
	CreateWithFiles(ctx context.Context, message *models.ConversationMessage, files []models.MessageFile) error
	AddFile(ctx context.Context, file *models.MessageFile) error
	GetByID(ctx context.Context, id uint) (*models.ConversationMessage, error)
	ExistsByGmailMessageID(ctx context.Context, gmailMessageID string) (bool, error)
	GetLatestByThreadID(ctx context.Context, gmailThreadID string) (*models.ConversationMessage, error)
	ListByConversation(ctx context.Context, conversationID uint) ([]models.ConversationMessage, error)
	UpdateStatus(ctx context.Context, id uint, status models.MessageStatus) error
	DiscardDrafts(ctx context.Context, conversationID uint) error
}

// messageRepository implements MessageRepository using GORM
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository instance
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// WithTx returns a repository that runs inside the given transaction
func (r *messageRepository) WithTx(tx *gorm.DB) MessageRepository {
	if tx == nil {
		return r
	}
	return &messageRepository{db: tx}
}

// Create creates a new conversation message
func (r *messageRepository) Create(ctx context.Context, message *models.ConversationMessage) error {
	result := r.db.WithContext(ctx).Create(message)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create message: %w", result.Error)
	}
	return nil
}

// CreateWithFiles creates a message and its file records in one transaction
func (r *messageRepository) CreateWithFiles(ctx context.Context, message *models.ConversationMessage, files []models.MessageFile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateEntry
			}
			return fmt.Errorf("failed to create message: %w", err)
		}

		for i := range files {
			files[i].MessageID = message.ID
			if err := tx.Create(&files[i]).Error; err != nil {
				return fmt.Errorf("failed to create message file: %w", err)
			}
		}

		return nil
	})
}

// AddFile attaches a file record to an already-persisted message
func (r *messageRepository) AddFile(ctx context.Context, file *models.MessageFile) error {
	result := r.db.WithContext(ctx).Create(file)
	if result.Error != nil {
		return fmt.Errorf("failed to add message file: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a message by its ID with preloaded files
func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.ConversationMessage, error) {
	var message models.ConversationMessage
	result := r.db.WithContext(ctx).Preload("Files").First(&message, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message by ID: %w", result.Error)
	}
	return &message, nil
}

// ExistsByGmailMessageID checks whether an inbound email has already been
// persisted. The unique index on gmail_message_id remains the authoritative
// guard; this lookup only absorbs the common redelivery case early.
func (r *messageRepository) ExistsByGmailMessageID(ctx context.Context, gmailMessageID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.ConversationMessage{}).
		Where("gmail_message_id = ?", gmailMessageID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check message existence: %w", result.Error)
	}
	return count > 0, nil
}

// GetLatestByThreadID retrieves the most recent message carrying a Gmail
// thread ID, used to adopt the owning conversation for follow-up messages
func (r *messageRepository) GetLatestByThreadID(ctx context.Context, gmailThreadID string) (*models.ConversationMessage, error) {
	var message models.ConversationMessage
	result := r.db.WithContext(ctx).
		Where("gmail_thread_id = ?", gmailThreadID).
		Order("created_at DESC").
		First(&message)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message by thread ID: %w", result.Error)
	}
	return &message, nil
}

// ListByConversation retrieves all messages of a conversation in order
func (r *messageRepository) ListByConversation(ctx context.Context, conversationID uint) ([]models.ConversationMessage, error) {
	var messages []models.ConversationMessage
	result := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list messages: %w", result.Error)
	}
	return messages, nil
}

// UpdateStatus updates the delivery status of a message
func (r *messageRepository) UpdateStatus(ctx context.Context, id uint, status models.MessageStatus) error {
	result := r.db.WithContext(ctx).Model(&models.ConversationMessage{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update message status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DiscardDrafts soft-discards superseded AI draft messages on a conversation
func (r *messageRepository) DiscardDrafts(ctx context.Context, conversationID uint) error {
	result := r.db.WithContext(ctx).Model(&models.ConversationMessage{}).
		Where("conversation_id = ? AND role = ? AND status = ?",
			conversationID, models.RoleAIAssistant, models.MessageStatusDraft).
		Update("status", models.MessageStatusDiscarded)
	if result.Error != nil {
		return fmt.Errorf("failed to discard drafts: %w", result.Error)
	}
	return nil
}
