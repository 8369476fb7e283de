package handlers

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api/response"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/conversation"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/events"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
)

// ChatHandler serves the anonymous chat widget. Widget visitors are keyed
// by a client-generated session id rather than an email thread.
type ChatHandler struct {
	db            *gorm.DB
	mailboxes     repository.MailboxRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	service       *conversation.Service
	dispatcher    events.Dispatcher
	logger        *slog.Logger
}

// NewChatHandler creates a new ChatHandler instance
func NewChatHandler(
	db *gorm.DB,
	mailboxes repository.MailboxRepository,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	service *conversation.Service,
	dispatcher events.Dispatcher,
	logger *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		db:            db,
		mailboxes:     mailboxes,
		conversations: conversations,
		messages:      messages,
		service:       service,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// chatMessageRequest is the body for a widget message
type chatMessageRequest struct {
	SessionID string `json:"sessionId"`
	Body      string `json:"body"`
}

// PostMessage handles POST /api/chat/:mailbox/messages. The widget session's
// conversation is created on first message and reused afterwards; a closed
// chat conversation reopens when the visitor writes again.
func (h *ChatHandler) PostMessage(c echo.Context) error {
	ctx := c.Request().Context()

	var req chatMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return response.BadRequest(c, "sessionId is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return response.BadRequest(c, "body is required")
	}

	mailbox, err := h.mailboxes.GetBySlug(ctx, c.Param("mailbox"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "mailbox not found")
		}
		return response.InternalError(c, "failed to load mailbox")
	}

	var conv *models.Conversation
	var msg *models.ConversationMessage
	txErr := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		conv, err = h.conversations.WithTx(tx).GetByAnonymousSession(ctx, mailbox.ID, req.SessionID)
		if errors.Is(err, repository.ErrNotFound) {
			conv = &models.Conversation{
				MailboxID:          mailbox.ID,
				Slug:               uuid.New().String(),
				Status:             models.StatusOpen,
				Provider:           models.ProviderChat,
				AssignedToAI:       mailbox.AutoRespondMode != models.AutoRespondOff,
				AnonymousSessionID: req.SessionID,
			}
			if err := h.conversations.WithTx(tx).Create(ctx, conv); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		msg = &models.ConversationMessage{
			ConversationID: conv.ID,
			Role:           models.RoleUser,
			Body:           req.Body,
			CleanedUpText:  req.Body,
		}
		if err := h.messages.WithTx(tx).Create(ctx, msg); err != nil {
			return err
		}

		if conversation.ShouldReopen(conv, mailbox, false) {
			status := models.StatusOpen
			if _, err := h.service.Update(ctx, tx, conv.ID, conversation.UpdateParams{
				Status: &status,
				Reason: "Reopened by new message",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		h.logger.Error("failed to persist chat message",
			slog.String("mailbox", mailbox.Slug),
			slog.Any("error", txErr))
		return response.InternalError(c, "failed to persist message")
	}

	h.fanOut(c, msg)

	return response.Created(c, map[string]interface{}{
		"conversationSlug": conv.Slug,
		"message":          msg,
	})
}

// ListMessages handles GET /api/chat/:mailbox/messages?sessionId=...
func (h *ChatHandler) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()

	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		return response.BadRequest(c, "sessionId is required")
	}

	mailbox, err := h.mailboxes.GetBySlug(ctx, c.Param("mailbox"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "mailbox not found")
		}
		return response.InternalError(c, "failed to load mailbox")
	}

	conv, err := h.conversations.GetByAnonymousSession(ctx, mailbox.ID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.Success(c, []models.ConversationMessage{})
		}
		return response.InternalError(c, "failed to load conversation")
	}

	messages, err := h.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return response.InternalError(c, "failed to list messages")
	}

	// Drafts and discarded messages are internal; the widget never sees them
	visible := make([]models.ConversationMessage, 0, len(messages))
	for _, m := range messages {
		if m.Status == models.MessageStatusDraft || m.Status == models.MessageStatusDiscarded {
			continue
		}
		visible = append(visible, m)
	}
	return response.Success(c, visible)
}

// fanOut raises the post-persistence events. Auto-response generation is
// always triggered; the downstream handler consults the mailbox mode and
// assignment when deciding what, if anything, to produce.
func (h *ChatHandler) fanOut(c echo.Context, msg *models.ConversationMessage) {
	ctx := c.Request().Context()

	if err := h.dispatcher.Trigger(ctx, events.AutoResponseCreate, events.AutoResponseCreatePayload{
		MessageID: msg.ID,
	}, nil); err != nil {
		h.logger.Error("failed to trigger auto-response",
			slog.Uint64("message_id", uint64(msg.ID)),
			slog.Any("error", err))
	}
	if err := h.dispatcher.Trigger(ctx, events.MessageCreated, events.MessageCreatedPayload{
		MessageID: msg.ID,
	}, nil); err != nil {
		h.logger.Error("failed to trigger message.created",
			slog.Uint64("message_id", uint64(msg.ID)),
			slog.Any("error", err))
	}
}
