package models

import (
	"time"
)

// StaffUser represents a support team member. Inbound mail from a staff
// address is recorded with the staff role, and staff users can be assigned
// to conversations.
type StaffUser struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Name      string    `gorm:"size:255" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for StaffUser
func (StaffUser) TableName() string {
	return "staff_users"
}
