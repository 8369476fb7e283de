// Package ingest turns Gmail webhook notifications into persisted
// conversation messages. The pipeline is idempotent under redelivery; the
// unique index on the provider message id is the last line of defense.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/ai"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/conversation"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/events"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/gmail"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/mailparse"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/storage"
)

// Pipeline drives incremental Gmail history sync for a mailbox
type Pipeline struct {
	db            *gorm.DB
	mailboxes     repository.MailboxRepository
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	staff         repository.StaffRepository
	resolver      *conversation.Resolver
	service       *conversation.Service
	classifier    *ai.Classifier
	gmail         gmail.Client
	store         storage.FileStorage
	dispatcher    events.Dispatcher
	logger        *slog.Logger
}

// NewPipeline creates a new Pipeline instance
func NewPipeline(
	db *gorm.DB,
	mailboxes repository.MailboxRepository,
	messages repository.MessageRepository,
	conversations repository.ConversationRepository,
	staff repository.StaffRepository,
	resolver *conversation.Resolver,
	service *conversation.Service,
	classifier *ai.Classifier,
	gmailClient gmail.Client,
	store storage.FileStorage,
	dispatcher events.Dispatcher,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		db:            db,
		mailboxes:     mailboxes,
		messages:      messages,
		conversations: conversations,
		staff:         staff,
		resolver:      resolver,
		service:       service,
		classifier:    classifier,
		gmail:         gmailClient,
		store:         store,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// Sync processes all messages added since the mailbox's stored history
// cursor. The webhook's own history id serves as a fallback cursor when the
// stored one has expired on the provider side.
//
// Message failures are isolated per message; the new cursor is persisted
// even when individual messages fail, because redeliveries replay the whole
// batch anyway and the dedup guard absorbs the overlap.
func (p *Pipeline) Sync(ctx context.Context, mailbox *models.Mailbox, payloadHistoryID uint64) ([]Result, error) {
	cursor := mailbox.GmailHistoryID
	if cursor == 0 {
		cursor = payloadHistoryID
	}

	history, err := p.gmail.History(ctx, cursor)
	if errors.Is(err, gmail.ErrHistoryExpired) && cursor != payloadHistoryID {
		p.logger.Warn("stored history cursor expired, retrying from webhook cursor",
			slog.String("mailbox", mailbox.Slug),
			slog.Uint64("stored_cursor", cursor),
			slog.Uint64("webhook_cursor", payloadHistoryID))
		history, err = p.gmail.History(ctx, payloadHistoryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list history for mailbox %s: %w", mailbox.Slug, err)
	}

	var results []Result
	seen := make(map[string]bool)
	for _, entry := range history.History {
		for _, added := range entry.MessagesAdded {
			ref := added.Message
			if seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			results = append(results, p.ingestOne(ctx, mailbox, ref))
		}
	}

	p.advanceCursor(ctx, mailbox, history.HistoryID)
	return results, nil
}

// advanceCursor persists the new history cursor. Failures are logged only;
// a stale cursor just means extra dedup work on the next webhook.
func (p *Pipeline) advanceCursor(ctx context.Context, mailbox *models.Mailbox, historyID string) {
	if historyID == "" {
		return
	}
	cursor, err := strconv.ParseUint(historyID, 10, 64)
	if err != nil {
		p.logger.Error("unparseable history cursor from provider",
			slog.String("mailbox", mailbox.Slug),
			slog.String("history_id", historyID))
		return
	}
	if err := p.mailboxes.UpdateHistoryID(ctx, mailbox.ID, cursor); err != nil {
		p.logger.Error("failed to persist history cursor",
			slog.String("mailbox", mailbox.Slug),
			slog.Any("error", err))
	}
}

// ingestOne processes a single message reference through fetch, parse,
// classification, persistence and fan-out
func (p *Pipeline) ingestOne(ctx context.Context, mailbox *models.Mailbox, ref gmail.MessageRef) Result {
	result := Result{GmailMessageID: ref.ID, GmailThreadID: ref.ThreadID}

	if ref.ID == "" || ref.ThreadID == "" {
		result.Disposition = DispositionSkipped
		result.Detail = "message reference missing id or thread id"
		return result
	}

	exists, err := p.messages.ExistsByGmailMessageID(ctx, ref.ID)
	if err != nil {
		return p.failed(result, "dedup lookup failed", err)
	}
	if exists {
		result.Disposition = DispositionDuplicate
		return result
	}

	raw, err := p.gmail.Message(ctx, ref.ID)
	if err != nil {
		return p.failed(result, "message fetch failed", err)
	}
	if raw.ThreadID != "" {
		result.GmailThreadID = raw.ThreadID
	}

	parsed, err := mailparse.ParseRawMessage(raw.Raw)
	if err != nil {
		return p.failed(result, "message parse failed", err)
	}

	if strings.EqualFold(parsed.SenderEmail, mailbox.SupportAddress) {
		result.Disposition = DispositionSkipped
		result.Detail = "sent from the mailbox's own support address"
		return result
	}

	firstInThread := conversation.IsFirstInThread(raw.ID, raw.ThreadID)
	normalized := mailparse.Normalize(parsed, firstInThread)

	role := models.RoleUser
	if _, err := p.staff.GetByEmail(ctx, normalized.FromAddress); err == nil {
		role = models.RoleStaff
	} else if !errors.Is(err, repository.ErrNotFound) {
		return p.failed(result, "staff lookup failed", err)
	}

	ignorable, automated := p.isIgnorable(ctx, mailbox, raw, normalized, role, firstInThread)
	result.ClassifiedAsAutomated = automated

	body, inlineFiles := mailparse.ExtractInlineImages(normalized.CanonicalBody, p.store, p.logger)
	files := append(inlineFiles, p.storeAttachments(parsed.Attachments)...)

	var conv *models.Conversation
	var msg *models.ConversationMessage
	txErr := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var created bool
		var err error
		conv, created, err = p.resolver.Resolve(ctx, tx, conversation.ResolveInput{
			Mailbox:           mailbox,
			MessageExternalID: raw.ID,
			ThreadExternalID:  raw.ThreadID,
			Subject:           parsed.Subject,
			FromAddress:       normalized.FromAddress,
			FromName:          normalized.FromName,
			Ignorable:         ignorable,
		})
		if err != nil {
			return err
		}

		msg = &models.ConversationMessage{
			ConversationID: conv.ID,
			Role:           role,
			GmailMessageID: raw.ID,
			GmailThreadID:  raw.ThreadID,
			MessageID:      parsed.MessageID,
			References:     normalized.References,
			EmailFrom:      normalized.FromAddress,
			EmailTo:        strings.Join(normalized.To, ", "),
			EmailCC:        normalized.CC,
			EmailBCC:       normalized.BCC,
			Body:           body,
			CleanedUpText:  normalized.CleanedUpText,
		}
		if err := p.messages.WithTx(tx).CreateWithFiles(ctx, msg, files); err != nil {
			return err
		}

		if err := p.touchConversation(ctx, tx, conv, role); err != nil {
			return err
		}
		if role != models.RoleStaff {
			if err := p.autoAssignFromCC(ctx, tx, mailbox, conv, normalized.CC); err != nil {
				return err
			}
		}

		if !created && conversation.ShouldReopen(conv, mailbox, ignorable) {
			status := models.StatusOpen
			if _, err := p.service.Update(ctx, tx, conv.ID, conversation.UpdateParams{
				Status: &status,
				Reason: "Reopened by new message",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, repository.ErrDuplicateEntry) {
			// Lost a race with a concurrent delivery of the same message
			result.Disposition = DispositionDuplicate
			return result
		}
		return p.failed(result, "persistence failed", txErr)
	}

	result.ConversationSlug = conv.Slug
	if ignorable {
		result.Disposition = DispositionIgnored
		return result
	}

	p.fanOut(ctx, msg)
	result.Responded = true
	result.Disposition = DispositionIngested
	return result
}

// isIgnorable decides whether a message warrants no response. The cheap
// deterministic rules run first; the model is only consulted when none of
// them fires. An unavailable model fails open to "needs a response". The
// second return reports whether the model flagged the message as an
// automated reply or thank-you.
func (p *Pipeline) isIgnorable(ctx context.Context, mailbox *models.Mailbox, raw *gmail.RawMessage, normalized *mailparse.NormalizedMessage, role models.MessageRole, firstInThread bool) (bool, bool) {
	if role == models.RoleStaff && !firstInThread {
		return true, false
	}
	if hasIgnoredLabel(raw.LabelIDs) {
		return true, false
	}
	if isTransactionalSender(normalized.FromAddress) {
		return true, false
	}
	if p.classifier == nil {
		return false, false
	}
	automated := p.classifier.IsAutoResponseOrThankYou(ctx, mailbox, normalized.CleanedUpText) == ai.OutcomeMatch
	return automated, automated
}

// storeAttachments uploads provider-native attachments concurrently. Each
// attachment fails independently; an oversized or unsavable file is logged
// and dropped without affecting the others.
func (p *Pipeline) storeAttachments(attachments []mailparse.ParsedAttachment) []models.MessageFile {
	if len(attachments) == 0 {
		return nil
	}

	var mu sync.Mutex
	var files []models.MessageFile
	var wg sync.WaitGroup

	for _, att := range attachments {
		wg.Add(1)
		go func(att mailparse.ParsedAttachment) {
			defer wg.Done()

			if err := storage.ValidateFile(att.Size); err != nil {
				p.logger.Warn("skipping attachment",
					slog.String("filename", att.Filename),
					slog.Int64("size", att.Size),
					slog.Any("error", err))
				return
			}
			key, err := p.store.Save(att.Filename, att.Content)
			if err != nil {
				p.logger.Error("failed to store attachment",
					slog.String("filename", att.Filename),
					slog.Any("error", err))
				return
			}

			// TODO: downscale image previews instead of serving the original blob
			previewKey := ""
			if strings.HasPrefix(att.ContentType, "image/") {
				previewKey = key
			}

			mu.Lock()
			files = append(files, models.MessageFile{
				Filename:    att.Filename,
				ContentType: att.ContentType,
				StorageKey:  key,
				PreviewKey:  previewKey,
				SizeBytes:   att.Size,
			})
			mu.Unlock()
		}(att)
	}
	wg.Wait()
	return files
}

// touchConversation updates the activity timestamps on the owning
// conversation
func (p *Pipeline) touchConversation(ctx context.Context, tx *gorm.DB, conv *models.Conversation, role models.MessageRole) error {
	now := time.Now()
	fields := map[string]interface{}{"last_message_at": now}
	conv.LastMessageAt = &now
	if role == models.RoleUser {
		fields["last_user_email_created_at"] = now
		conv.LastUserEmailCreatedAt = &now
	}
	return p.conversations.WithTx(tx).UpdateFields(ctx, conv.ID, fields)
}

// autoAssignFromCC assigns an unassigned conversation to the first CC'd
// staff user. The mailbox's own address never counts as a CC candidate. The
// guard deliberately reads only the human assignee; a conversation owned by
// the AI but unassigned to a person is still eligible.
func (p *Pipeline) autoAssignFromCC(ctx context.Context, tx *gorm.DB, mailbox *models.Mailbox, conv *models.Conversation, cc []string) error {
	if conv.AssignedToID != nil {
		return nil
	}
	staff := p.staff.WithTx(tx)
	for _, addr := range cc {
		if strings.EqualFold(addr, mailbox.SupportAddress) {
			continue
		}
		staffUser, err := staff.GetByEmail(ctx, addr)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		updated, err := p.service.Update(ctx, tx, conv.ID, conversation.UpdateParams{
			AssignedToID:       &staffUser.ID,
			AssignedToIDSet:    true,
			Reason:             "Auto-assigned based on CC",
			SkipRealtimeEvents: true,
		})
		if err != nil {
			return err
		}
		if updated != nil {
			conv.AssignedToID = updated.AssignedToID
		}
		return nil
	}
	return nil
}

// fanOut triggers the post-persistence domain events for a message that
// needs a response. The auto-response handler downstream decides whether a
// reply, a draft, or nothing gets generated; the pipeline always raises the
// event for non-ignorable messages. Trigger failures are logged, not
// returned; the message is already committed and a redelivery would
// re-raise the events.
func (p *Pipeline) fanOut(ctx context.Context, msg *models.ConversationMessage) {
	if err := p.dispatcher.Trigger(ctx, events.AutoResponseCreate, events.AutoResponseCreatePayload{
		MessageID: msg.ID,
	}, nil); err != nil {
		p.logger.Error("failed to trigger auto-response",
			slog.Uint64("message_id", uint64(msg.ID)),
			slog.Any("error", err))
	}

	if err := p.dispatcher.Trigger(ctx, events.MessageCreated, events.MessageCreatedPayload{
		MessageID: msg.ID,
	}, nil); err != nil {
		p.logger.Error("failed to trigger message.created",
			slog.Uint64("message_id", uint64(msg.ID)),
			slog.Any("error", err))
	}
}

func (p *Pipeline) failed(result Result, detail string, err error) Result {
	p.logger.Error("message ingestion failed",
		slog.String("gmail_message_id", result.GmailMessageID),
		slog.String("detail", detail),
		slog.Any("error", err))
	result.Disposition = DispositionFailed
	result.Detail = detail
	return result
}
