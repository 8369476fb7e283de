// Package conversation owns conversation lifecycle: resolving inbound
// threads to conversations and applying status transitions with their
// side effects.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
)

// IsFirstInThread reports whether a message opens its thread. The provider
// assigns the thread id of the first message as its own message id.
func IsFirstInThread(messageExternalID, threadExternalID string) bool {
	return messageExternalID == threadExternalID
}

// ResolveInput carries what the resolver needs to find or create the
// conversation owning an inbound message
type ResolveInput struct {
	Mailbox           *models.Mailbox
	MessageExternalID string
	ThreadExternalID  string
	Subject           string
	FromAddress       string
	FromName          string
	Provider          string
	// Ignorable seeds the initial status of a newly created conversation:
	// ignorable first messages open the conversation already closed.
	Ignorable bool
}

// Resolver finds or creates the conversation for an inbound thread
type Resolver struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	logger        *slog.Logger
}

// NewResolver creates a new Resolver instance
func NewResolver(conversations repository.ConversationRepository, messages repository.MessageRepository, logger *slog.Logger) *Resolver {
	return &Resolver{conversations: conversations, messages: messages, logger: logger}
}

// Resolve returns the conversation owning the message's thread, creating one
// when the message is first in its thread. A follow-up whose initiating
// message was never ingested (a missed webhook) also creates a fresh
// conversation; that is a recovery path, not an error. The returned bool
// reports whether a conversation was created.
func (r *Resolver) Resolve(ctx context.Context, tx *gorm.DB, in ResolveInput) (*models.Conversation, bool, error) {
	if !IsFirstInThread(in.MessageExternalID, in.ThreadExternalID) {
		latest, err := r.messages.WithTx(tx).GetLatestByThreadID(ctx, in.ThreadExternalID)
		if err == nil {
			conv, err := r.conversations.WithTx(tx).GetByID(ctx, latest.ConversationID)
			if err != nil {
				return nil, false, fmt.Errorf("failed to load conversation for thread %s: %w", in.ThreadExternalID, err)
			}
			return conv, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("failed to look up thread %s: %w", in.ThreadExternalID, err)
		}
		if r.logger != nil {
			r.logger.Warn("no prior message for thread, creating conversation as recovery",
				slog.String("thread_id", in.ThreadExternalID))
		}
	}

	conv := r.newConversation(in)
	if err := r.conversations.WithTx(tx).Create(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// newConversation builds a conversation with creation defaults. A message
// classified as ignorable opens it closed; assignment to the AI follows the
// mailbox auto-respond preference.
func (r *Resolver) newConversation(in ResolveInput) *models.Conversation {
	status := models.StatusOpen
	var closedAt *time.Time
	if in.Ignorable {
		status = models.StatusClosed
		now := time.Now()
		closedAt = &now
	}

	provider := in.Provider
	if provider == "" {
		provider = models.ProviderGmail
	}

	return &models.Conversation{
		MailboxID:     in.Mailbox.ID,
		Slug:          uuid.New().String(),
		Subject:       in.Subject,
		Status:        status,
		Provider:      provider,
		AssignedToAI:  in.Mailbox.AutoRespondMode != models.AutoRespondOff,
		EmailFrom:     in.FromAddress,
		EmailFromName: in.FromName,
		ClosedAt:      closedAt,
	}
}

// ShouldReopen implements the reopen rule: a closed conversation reopens for
// a new non-ignorable message unless the AI owns it and answers directly.
func ShouldReopen(conv *models.Conversation, mailbox *models.Mailbox, ignorable bool) bool {
	if conv.Status != models.StatusClosed || ignorable {
		return false
	}
	if !conv.AssignedToAI {
		return true
	}
	return mailbox.AutoRespondMode == models.AutoRespondDraft
}
