// Package handlers contains the Echo HTTP handlers for the API.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/api/response"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/auth"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/ingest"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
)

// pushEnvelope is the Pub/Sub push delivery wrapper
type pushEnvelope struct {
	Message      pushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

type pushMessage struct {
	Data        string `json:"data"`
	MessageID   string `json:"messageId"`
	PublishTime string `json:"publishTime"`
}

// gmailNotification is the decoded payload of a Gmail watch notification
type gmailNotification struct {
	EmailAddress string      `json:"emailAddress"`
	HistoryID    json.Number `json:"historyId"`
}

// WebhookHandler receives Gmail push notifications relayed through Pub/Sub.
// Response codes are chosen for the retry semantics of the push
// subscription: 2xx acknowledges, 403 and 400 are never retried usefully so
// they carry descriptive bodies, and 5xx asks for redelivery.
type WebhookHandler struct {
	pipeline  *ingest.Pipeline
	mailboxes repository.MailboxRepository
	verifier  auth.Verifier
	logger    *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(pipeline *ingest.Pipeline, mailboxes repository.MailboxRepository, verifier auth.Verifier, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline:  pipeline,
		mailboxes: mailboxes,
		verifier:  verifier,
		logger:    logger,
	}
}

// GmailPush handles POST /webhooks/gmail
func (h *WebhookHandler) GmailPush(c echo.Context) error {
	if h.verifier != nil {
		token := bearerToken(c.Request().Header.Get("Authorization"))
		if token == "" {
			return response.Forbidden(c, "missing bearer token")
		}
		if err := h.verifier.Verify(c.Request().Context(), token); err != nil {
			h.logger.Warn("rejected webhook delivery",
				slog.String("remote_ip", c.RealIP()),
				slog.Any("error", err))
			return response.Forbidden(c, "token verification failed")
		}
	}

	var envelope pushEnvelope
	if err := c.Bind(&envelope); err != nil {
		return response.BadRequest(c, "invalid push envelope")
	}

	raw, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return response.BadRequest(c, "message data is not valid base64")
	}

	var notification gmailNotification
	if err := json.Unmarshal(raw, &notification); err != nil {
		return response.BadRequest(c, "message data is not a gmail notification")
	}
	historyID, err := strconv64(notification.HistoryID)
	if err != nil {
		return response.BadRequest(c, "historyId is not a valid integer")
	}

	mailbox, err := h.mailboxes.GetBySupportAddress(c.Request().Context(), notification.EmailAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Acknowledge so the subscription stops redelivering mail for
			// addresses we do not serve
			return response.SuccessWithMessage(c, nil,
				fmt.Sprintf("no mailbox configured for %s, notification ignored", notification.EmailAddress))
		}
		return response.InternalError(c, "mailbox lookup failed")
	}

	results, err := h.pipeline.Sync(c.Request().Context(), mailbox, historyID)
	if err != nil {
		h.logger.Error("history sync failed",
			slog.String("mailbox", mailbox.Slug),
			slog.Any("error", err))
		return response.InternalError(c, "history sync failed")
	}

	return response.Success(c, map[string]interface{}{
		"mailbox": mailbox.Slug,
		"results": results,
	})
}

// bearerToken extracts the token from an Authorization header
func bearerToken(header string) string {
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return strings.TrimSpace(token)
}

func strconv64(n json.Number) (uint64, error) {
	v, err := n.Int64()
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid history id %q", n.String())
	}
	return uint64(v), nil
}
