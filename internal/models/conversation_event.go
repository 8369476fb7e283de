package models

import (
	"time"
)

// ConversationEventType classifies audit log entries.
type ConversationEventType string

const (
	EventTypeUpdate              ConversationEventType = "update"
	EventTypeRequestHumanSupport ConversationEventType = "request_human_support"
	EventTypeReasoningToggled    ConversationEventType = "reasoning_toggled"
	EventTypeAutoClosedInactive  ConversationEventType = "auto_closed_due_to_inactivity"
)

// EventChanges is the snapshot of fields captured on a conversation event.
// The snapshot holds the values from *before* the update so downstream
// consumers can see what changed from what.
type EventChanges struct {
	Status       *ConversationStatus `json:"status,omitempty"`
	AssignedToID *uint               `json:"assigned_to_id,omitempty"`
	AssignedToAI *bool               `json:"assigned_to_ai,omitempty"`
	IsVisible    *bool               `json:"is_visible,omitempty"`
}

// ConversationEvent is an append-only audit record of a conversation change.
// Events are never updated or deleted.
type ConversationEvent struct {
	ID             uint                  `gorm:"primaryKey" json:"id"`
	ConversationID uint                  `gorm:"not null;index" json:"conversation_id"`
	Type           ConversationEventType `gorm:"not null;size:40" json:"type"`
	Changes        EventChanges          `gorm:"serializer:json" json:"changes"`
	ByUserID       *uint                 `json:"by_user_id,omitempty"`
	Reason         string                `gorm:"size:255" json:"reason,omitempty"`
	CreatedAt      time.Time             `gorm:"autoCreateTime" json:"created_at"`

	// Relationships
	Conversation Conversation `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
	ByUser       *StaffUser   `gorm:"foreignKey:ByUserID" json:"-"`
}

// TableName returns the table name for ConversationEvent
func (ConversationEvent) TableName() string {
	return "conversation_events"
}
