package models

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusOpen   ConversationStatus = "open"
	StatusClosed ConversationStatus = "closed"
	StatusSpam   ConversationStatus = "spam"
)

// Conversation providers
const (
	ProviderGmail     = "gmail"
	ProviderChat      = "chat"
	ProviderHelpscout = "helpscout"
)

// Conversation represents a support thread with a customer.
// A conversation with a non-nil MergedIntoID has been absorbed into another
// conversation for display purposes, but messages on its original thread
// still attach to it; the merge pointer is never followed during ingestion.
type Conversation struct {
	ID                     uint               `gorm:"primaryKey" json:"id"`
	MailboxID              uint               `gorm:"not null;index" json:"mailbox_id"`
	Slug                   string             `gorm:"uniqueIndex;not null;size:64" json:"slug"`
	Subject                string             `gorm:"size:998" json:"subject,omitempty"`
	Status                 ConversationStatus `gorm:"not null;size:16;default:open;index" json:"status"`
	Provider               string             `gorm:"size:16" json:"provider,omitempty"`
	AssignedToID           *uint              `gorm:"index" json:"assigned_to_id,omitempty"`
	AssignedToAI           bool               `gorm:"default:false" json:"assigned_to_ai"`
	MergedIntoID           *uint              `json:"merged_into_id,omitempty"`
	EmailFrom              string             `gorm:"size:255;index" json:"email_from,omitempty"`
	EmailFromName          string             `gorm:"size:255" json:"email_from_name,omitempty"`
	AnonymousSessionID     string             `gorm:"size:64;index" json:"anonymous_session_id,omitempty"`
	CreatedAt              time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	LastMessageAt          *time.Time         `json:"last_message_at,omitempty"`
	LastUserEmailCreatedAt *time.Time         `json:"last_user_email_created_at,omitempty"`
	ClosedAt               *time.Time         `json:"closed_at,omitempty"`
	LastReadAt             *time.Time         `json:"last_read_at,omitempty"`

	// Relationships
	Mailbox    Mailbox               `gorm:"foreignKey:MailboxID;constraint:OnDelete:CASCADE" json:"-"`
	AssignedTo *StaffUser            `gorm:"foreignKey:AssignedToID" json:"-"`
	MergedInto *Conversation         `gorm:"foreignKey:MergedIntoID" json:"-"`
	Messages   []ConversationMessage `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
	Events     []ConversationEvent   `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// IsClosed reports whether the conversation is currently closed.
func (c *Conversation) IsClosed() bool {
	return c.Status == StatusClosed
}
