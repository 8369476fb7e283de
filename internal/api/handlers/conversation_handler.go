package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api/response"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/conversation"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/events"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/mailparse"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
)

// defaultUndoWindowSeconds is how long a queued staff reply stays
// cancellable before the delivery job becomes visible to workers
const defaultUndoWindowSeconds = 15

// ConversationHandler handles conversation state and staff reply endpoints
type ConversationHandler struct {
	db            *gorm.DB
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	auditLog      repository.EventRepository
	mailboxes     repository.MailboxRepository
	service       *conversation.Service
	dispatcher    events.Dispatcher
	logger        *slog.Logger
}

// NewConversationHandler creates a new ConversationHandler instance
func NewConversationHandler(
	db *gorm.DB,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	auditLog repository.EventRepository,
	mailboxes repository.MailboxRepository,
	service *conversation.Service,
	dispatcher events.Dispatcher,
	logger *slog.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		db:            db,
		conversations: conversations,
		messages:      messages,
		auditLog:      auditLog,
		mailboxes:     mailboxes,
		service:       service,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// Get handles GET /api/conversations/:slug
func (h *ConversationHandler) Get(c echo.Context) error {
	conv, err := h.conversations.GetBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "conversation not found")
		}
		return response.InternalError(c, "failed to load conversation")
	}
	return response.Success(c, conv)
}

// ListMessages handles GET /api/conversations/:slug/messages
func (h *ConversationHandler) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()

	conv, err := h.conversations.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "conversation not found")
		}
		return response.InternalError(c, "failed to load conversation")
	}

	messages, err := h.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return response.InternalError(c, "failed to list messages")
	}
	return response.Success(c, messages)
}

// ListEvents handles GET /api/conversations/:slug/events
func (h *ConversationHandler) ListEvents(c echo.Context) error {
	ctx := c.Request().Context()

	conv, err := h.conversations.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "conversation not found")
		}
		return response.InternalError(c, "failed to load conversation")
	}

	auditEvents, err := h.auditLog.ListByConversation(ctx, conv.ID)
	if err != nil {
		return response.InternalError(c, "failed to list events")
	}
	return response.Success(c, auditEvents)
}

// updateConversationRequest is the PATCH body. Unassign exists because JSON
// binding cannot distinguish a missing assignedToId from an explicit null.
type updateConversationRequest struct {
	Status              *string `json:"status"`
	AssignedToID        *uint   `json:"assignedToId"`
	Unassign            bool    `json:"unassign"`
	AssignedToAI        *bool   `json:"assignedToAI"`
	RequestHumanSupport bool    `json:"requestHumanSupport"`
	ByUserID            *uint   `json:"byUserId"`
	Reason              string  `json:"reason"`
}

// Update handles PATCH /api/conversations/:slug
func (h *ConversationHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	var req updateConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	conv, err := h.conversations.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "conversation not found")
		}
		return response.InternalError(c, "failed to load conversation")
	}

	if req.RequestHumanSupport {
		updated, err := h.service.RequestHumanSupport(ctx, nil, conv.ID, req.ByUserID)
		if err != nil {
			return response.InternalError(c, "failed to request human support")
		}
		if updated == nil {
			return response.NotFound(c, "conversation not found")
		}
		return response.Success(c, updated)
	}

	params := conversation.UpdateParams{
		AssignedToAI: req.AssignedToAI,
		ByUserID:     req.ByUserID,
		Reason:       req.Reason,
	}
	if req.Status != nil {
		status, ok := parseStatus(*req.Status)
		if !ok {
			return response.BadRequest(c, "status must be one of open, closed, spam")
		}
		params.Status = &status
	}
	if req.Unassign {
		params.AssignedToIDSet = true
	} else if req.AssignedToID != nil {
		params.AssignedToID = req.AssignedToID
		params.AssignedToIDSet = true
	}

	updated, err := h.service.Update(ctx, nil, conv.ID, params)
	if err != nil {
		return response.InternalError(c, "failed to update conversation")
	}
	if updated == nil {
		return response.NotFound(c, "conversation not found")
	}
	return response.Success(c, updated)
}

// replyRequest is the body for a staff reply
type replyRequest struct {
	Body        string `json:"body"`
	ByUserID    *uint  `json:"byUserId"`
	UndoSeconds int    `json:"undoSeconds"`
	LeaveOpen   bool   `json:"leaveOpen"`
}

// Reply handles POST /api/conversations/:slug/replies. The reply is
// persisted in queueing status, supersedes any pending AI drafts, closes
// the conversation unless asked not to, and schedules outbound delivery
// after the undo window.
func (h *ConversationHandler) Reply(c echo.Context) error {
	ctx := c.Request().Context()

	var req replyRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Body) == "" {
		return response.BadRequest(c, "body is required")
	}

	conv, err := h.conversations.GetBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "conversation not found")
		}
		return response.InternalError(c, "failed to load conversation")
	}

	mailbox, err := h.mailboxes.GetByID(ctx, conv.MailboxID)
	if err != nil {
		return response.InternalError(c, "failed to load mailbox")
	}

	msg := &models.ConversationMessage{
		ConversationID: conv.ID,
		Role:           models.RoleStaff,
		Status:         models.MessageStatusQueueing,
		EmailTo:        conv.EmailFrom,
		EmailCC:        h.replyParticipants(ctx, conv, mailbox),
		Body:           req.Body,
	}

	txErr := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := h.messages.WithTx(tx).Create(ctx, msg); err != nil {
			return err
		}
		if err := h.messages.WithTx(tx).DiscardDrafts(ctx, conv.ID); err != nil {
			return err
		}
		if !req.LeaveOpen && conv.Status != models.StatusClosed {
			status := models.StatusClosed
			if _, err := h.service.Update(ctx, tx, conv.ID, conversation.UpdateParams{
				Status:   &status,
				ByUserID: req.ByUserID,
				Reason:   "Closed by reply",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		h.logger.Error("failed to persist reply",
			slog.String("conversation", conv.Slug),
			slog.Any("error", txErr))
		return response.InternalError(c, "failed to persist reply")
	}

	undoSeconds := req.UndoSeconds
	if undoSeconds <= 0 {
		undoSeconds = defaultUndoWindowSeconds
	}
	if err := h.dispatcher.Trigger(ctx, events.EmailEnqueued, events.EmailEnqueuedPayload{
		MessageID: msg.ID,
	}, &events.TriggerOpts{SleepSeconds: undoSeconds}); err != nil {
		h.logger.Error("failed to schedule reply delivery",
			slog.Uint64("message_id", uint64(msg.ID)),
			slog.Any("error", err))
	}

	return response.Created(c, msg)
}

// replyParticipants rebuilds the reply-all audience from the most recent
// inbound message: everyone on its To and Cc lists minus the mailbox's own
// address and the primary recipient.
func (h *ConversationHandler) replyParticipants(ctx context.Context, conv *models.Conversation, mailbox *models.Mailbox) []string {
	messages, err := h.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		h.logger.Warn("failed to load messages for reply participants",
			slog.String("conversation", conv.Slug),
			slog.Any("error", err))
		return nil
	}

	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != models.RoleUser {
			continue
		}
		lists := append([]string{m.EmailTo}, m.EmailCC...)
		var cc []string
		for _, addr := range mailparse.ExtractNonSupportParticipants(lists, mailbox.SupportAddress) {
			if strings.EqualFold(addr, conv.EmailFrom) {
				continue
			}
			cc = append(cc, addr)
		}
		return cc
	}
	return nil
}

// CancelReply handles DELETE /api/conversations/:slug/replies/:id, the undo
// path for a reply still inside its undo window
func (h *ConversationHandler) CancelReply(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return response.BadRequest(c, "invalid message id")
	}

	msg, err := h.messages.GetByID(ctx, uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.InternalError(c, "failed to load message")
	}
	if msg.Status != models.MessageStatusQueueing {
		return response.Conflict(c, "message is no longer cancellable")
	}

	if err := h.messages.UpdateStatus(ctx, msg.ID, models.MessageStatusDiscarded); err != nil {
		return response.InternalError(c, "failed to cancel reply")
	}
	return response.NoContent(c)
}

func parseStatus(s string) (models.ConversationStatus, bool) {
	switch models.ConversationStatus(strings.ToLower(strings.TrimSpace(s))) {
	case models.StatusOpen:
		return models.StatusOpen, true
	case models.StatusClosed:
		return models.StatusClosed, true
	case models.StatusSpam:
		return models.StatusSpam, true
	default:
		return "", false
	}
}
