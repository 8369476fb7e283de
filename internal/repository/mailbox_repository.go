package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"gorm.io/gorm"
)

// MailboxRepository defines the interface for mailbox data access
type MailboxRepository interface {
	Create(ctx context.Context, mailbox *models.Mailbox) error
	GetByID(ctx context.Context, id uint) (*models.Mailbox, error)
	GetBySlug(ctx context.Context, slug string) (*models.Mailbox, error)
	GetBySupportAddress(ctx context.Context, address string) (*models.Mailbox, error)
	UpdateHistoryID(ctx context.Context, id uint, historyID uint64) error
}

// mailboxRepository implements MailboxRepository using GORM
type mailboxRepository struct {
	db *gorm.DB
}

// NewMailboxRepository creates a new MailboxRepository instance
func NewMailboxRepository(db *gorm.DB) MailboxRepository {
	return &mailboxRepository{db: db}
}

// Create creates a new mailbox
func (r *mailboxRepository) Create(ctx context.Context, mailbox *models.Mailbox) error {
	result := r.db.WithContext(ctx).Create(mailbox)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create mailbox: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a mailbox by its ID
func (r *mailboxRepository) GetByID(ctx context.Context, id uint) (*models.Mailbox, error) {
	var mailbox models.Mailbox
	result := r.db.WithContext(ctx).First(&mailbox, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mailbox by ID: %w", result.Error)
	}
	return &mailbox, nil
}

// GetBySlug retrieves a mailbox by its slug
func (r *mailboxRepository) GetBySlug(ctx context.Context, slug string) (*models.Mailbox, error) {
	var mailbox models.Mailbox
	result := r.db.WithContext(ctx).Where("slug = ?", slug).First(&mailbox)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mailbox by slug: %w", result.Error)
	}
	return &mailbox, nil
}

// GetBySupportAddress retrieves the mailbox owning a support address.
// The lookup is case-insensitive; addresses are stored lowercased.
func (r *mailboxRepository) GetBySupportAddress(ctx context.Context, address string) (*models.Mailbox, error) {
	var mailbox models.Mailbox
	result := r.db.WithContext(ctx).
		Where("support_address = ?", strings.ToLower(strings.TrimSpace(address))).
		First(&mailbox)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mailbox by address: %w", result.Error)
	}
	return &mailbox, nil
}

// UpdateHistoryID persists the Gmail history cursor for a mailbox
func (r *mailboxRepository) UpdateHistoryID(ctx context.Context, id uint, historyID uint64) error {
	result := r.db.WithContext(ctx).Model(&models.Mailbox{}).
		Where("id = ?", id).
		Update("gmail_history_id", historyID)
	if result.Error != nil {
		return fmt.Errorf("failed to update history cursor: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
