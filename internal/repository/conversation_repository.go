package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"gorm.io/gorm"
)

// ConversationRepository defines the interface for conversation data access.
// WithTx returns a repository bound to the given transaction so callers can
// make persistence participate in their own transaction scope.
type ConversationRepository interface {
	WithTx(tx *gorm.DB) ConversationRepository
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id uint) (*models.Conversation, error)
	GetBySlug(ctx context.Context, slug string) (*models.Conversation, error)
	GetByAnonymousSession(ctx context.Context, mailboxID uint, sessionID string) (*models.Conversation, error)
	Save(ctx context.Context, conversation *models.Conversation) error
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
}

// conversationRepository implements ConversationRepository using GORM
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository instance
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// WithTx returns a repository that runs inside the given transaction
func (r *conversationRepository) WithTx(tx *gorm.DB) ConversationRepository {
	if tx == nil {
		return r
	}
	return &conversationRepository{db: tx}
}

// Create creates a new conversation
func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	result := r.db.WithContext(ctx).Create(conversation)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create conversation: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a conversation by its ID
func (r *conversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	result := r.db.WithContext(ctx).First(&conversation, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation by ID: %w", result.Error)
	}
	return &conversation, nil
}

// GetBySlug retrieves a conversation by its shareable slug
func (r *conversationRepository) GetBySlug(ctx context.Context, slug string) (*models.Conversation, error) {
	var conversation models.Conversation
	result := r.db.WithContext(ctx).Where("slug = ?", slug).First(&conversation)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation by slug: %w", result.Error)
	}
	return &conversation, nil
}

// GetByAnonymousSession retrieves the most recent conversation linked to a
// chat widget session
func (r *conversationRepository) GetByAnonymousSession(ctx context.Context, mailboxID uint, sessionID string) (*models.Conversation, error) {
	var conversation models.Conversation
	result := r.db.WithContext(ctx).
		Where("mailbox_id = ? AND anonymous_session_id = ?", mailboxID, sessionID).
		Order("created_at DESC").
		First(&conversation)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation by session: %w", result.Error)
	}
	return &conversation, nil
}

// Save persists all fields of an existing conversation
func (r *conversationRepository) Save(ctx context.Context, conversation *models.Conversation) error {
	result := r.db.WithContext(ctx).Save(conversation)
	if result.Error != nil {
		return fmt.Errorf("failed to save conversation: %w", result.Error)
	}
	return nil
}

// UpdateFields applies a partial update to a conversation
func (r *conversationRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
