package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"gorm.io/gorm"
)

// StaffRepository defines the interface for staff profile lookups
type StaffRepository interface {
	WithTx(tx *gorm.DB) StaffRepository
	Create(ctx context.Context, staff *models.StaffUser) error
	GetByID(ctx context.Context, id uint) (*models.StaffUser, error)
	GetByEmail(ctx context.Context, email string) (*models.StaffUser, error)
}

// staffRepository implements StaffRepository using GORM
type staffRepository struct {
	db *gorm.DB
}

// NewStaffRepository creates a new StaffRepository instance
func NewStaffRepository(db *gorm.DB) StaffRepository {
	return &staffRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *staffRepository) WithTx(tx *gorm.DB) StaffRepository {
	if tx == nil {
		return r
	}
	return &staffRepository{db: tx}
}

// Create creates a new staff user
func (r *staffRepository) Create(ctx context.Context, staff *models.StaffUser) error {
	staff.Email = strings.ToLower(strings.TrimSpace(staff.Email))
	result := r.db.WithContext(ctx).Create(staff)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create staff user: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a staff user by ID
func (r *staffRepository) GetByID(ctx context.Context, id uint) (*models.StaffUser, error) {
	var staff models.StaffUser
	result := r.db.WithContext(ctx).First(&staff, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get staff user by ID: %w", result.Error)
	}
	return &staff, nil
}

// GetByEmail retrieves a staff user by email, case-insensitively
func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*models.StaffUser, error) {
	var staff models.StaffUser
	result := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&staff)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get staff user by email: %w", result.Error)
	}
	return &staff, nil
}
