package models

import (
	"time"
)

// MessageFile represents a file attached to a conversation message, either a
// provider-native attachment or an inline image extracted from the HTML body.
type MessageFile struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   uint      `gorm:"not null;index" json:"message_id"`
	Filename    string    `gorm:"size:255" json:"filename"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	StorageKey  string    `gorm:"size:500" json:"storage_key"`
	PreviewKey  string    `gorm:"size:500" json:"preview_key,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	IsInline    bool      `gorm:"default:false" json:"is_inline"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	Message ConversationMessage `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for MessageFile
func (MessageFile) TableName() string {
	return "message_files"
}
