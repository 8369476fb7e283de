package models

import (
	"time"
)

// MessageRole identifies who authored a conversation message.
type MessageRole string

const (
	RoleUser        MessageRole = "user"
	RoleStaff       MessageRole = "staff"
	RoleAIAssistant MessageRole = "ai_assistant"
	RoleTool        MessageRole = "tool"
)

// MessageStatus tracks outbound delivery state. Inbound messages carry an
// empty status.
type MessageStatus string

const (
	MessageStatusQueueing  MessageStatus = "queueing"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusDraft     MessageStatus = "draft"
	MessageStatusDiscarded MessageStatus = "discarded"
)

// ConversationMessage represents one message within a conversation.
// GmailMessageID carries a partial unique index that acts as the
// authoritative deduplication guard for inbound email under at-least-once
// delivery. The index skips empty values; chat and outbound staff messages
// have no provider id.
type ConversationMessage struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	ConversationID uint          `gorm:"not null;index" json:"conversation_id"`
	Role           MessageRole   `gorm:"not null;size:16" json:"role"`
	Status         MessageStatus `gorm:"size:16" json:"status,omitempty"`
	GmailMessageID string        `gorm:"size:64;index:idx_messages_gmail_message_id,unique,where:gmail_message_id <> ''" json:"gmail_message_id,omitempty"`
	GmailThreadID  string        `gorm:"index;size:64" json:"gmail_thread_id,omitempty"`
	MessageID      string        `gorm:"size:998" json:"message_id,omitempty"`
	References     string        `json:"references,omitempty"`
	EmailFrom      string        `gorm:"size:255" json:"email_from,omitempty"`
	EmailTo        string        `gorm:"size:998" json:"email_to,omitempty"`
	EmailCC        []string      `gorm:"serializer:json" json:"email_cc,omitempty"`
	EmailBCC       []string      `gorm:"serializer:json" json:"email_bcc,omitempty"`
	Body           string        `json:"body,omitempty"`
	CleanedUpText  string        `json:"cleaned_up_text,omitempty"`
	IsPinned       bool          `gorm:"default:false" json:"is_pinned"`
	IsPerfect      bool          `gorm:"default:false" json:"is_perfect"`
	IsFlaggedAsBad bool          `gorm:"default:false" json:"is_flagged_as_bad"`
	ResponseToID   *uint         `json:"response_to_id,omitempty"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	Conversation Conversation         `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
	ResponseTo   *ConversationMessage `gorm:"foreignKey:ResponseToID" json:"-"`
	Files        []MessageFile        `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"files,omitempty"`
}

// TableName returns the table name for ConversationMessage
func (ConversationMessage) TableName() string {
	return "conversation_messages"
}
