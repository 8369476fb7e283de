package models

import (
	"time"
)

// AutoRespondMode controls what the AI assistant does with new user messages.
type AutoRespondMode string

const (
	// AutoRespondOff disables AI responses entirely.
	AutoRespondOff AutoRespondMode = "off"
	// AutoRespondDraft lets the AI prepare a draft for staff review.
	AutoRespondDraft AutoRespondMode = "draft"
	// AutoRespondReply lets the AI send replies on its own.
	AutoRespondReply AutoRespondMode = "reply"
)

// Mailbox represents a support inbox connected to a Gmail account
type Mailbox struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Slug            string          `gorm:"uniqueIndex;not null;size:64" json:"slug"`
	Name            string          `gorm:"size:255" json:"name"`
	SupportAddress  string          `gorm:"uniqueIndex;not null;size:255" json:"support_address"`
	AutoRespondMode AutoRespondMode `gorm:"size:16;default:off" json:"auto_respond_mode"`
	GmailHistoryID  uint64          `json:"gmail_history_id"`
	WidgetHost      string          `gorm:"size:255" json:"widget_host,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Conversations []Conversation `gorm:"foreignKey:MailboxID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Mailbox
func (Mailbox) TableName() string {
	return "mailboxes"
}

// AutoRespondsDirectly reports whether the AI answers without staff review.
func (m *Mailbox) AutoRespondsDirectly() bool {
	return m.AutoRespondMode == AutoRespondReply
}
