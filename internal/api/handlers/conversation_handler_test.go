package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/conversation"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/events"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/models"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/repository"
	"github.com/welldanyogia/webrana-helpdesk-backend/tests/mocks"
)

// ConversationHandlerTestSuite is the test suite for ConversationHandler
type ConversationHandlerTestSuite struct {
	suite.Suite
	db         *gorm.DB
	handler    *ConversationHandler
	dispatcher *mocks.MockDispatcher
	mailbox    *models.Mailbox
	conv       *models.Conversation
}

func (s *ConversationHandlerTestSuite) SetupTest() {
	s.db = newHandlerDB(s.T())
	s.dispatcher = new(mocks.MockDispatcher)

	conversations := repository.NewConversationRepository(s.db)
	messages := repository.NewMessageRepository(s.db)
	eventsRepo := repository.NewEventRepository(s.db)
	mailboxes := repository.NewMailboxRepository(s.db)

	service := conversation.NewService(conversations, eventsRepo, mailboxes, s.dispatcher, nil, discardLogger())

	s.handler = NewConversationHandler(s.db, conversations, messages, eventsRepo, mailboxes, service, s.dispatcher, discardLogger())

	s.mailbox = &models.Mailbox{Slug: "acme", SupportAddress: "support@acme.test"}
	s.Require().NoError(s.db.Create(s.mailbox).Error)

	s.conv = &models.Conversation{
		MailboxID: s.mailbox.ID,
		Slug:      "conv-1",
		Status:    models.StatusOpen,
		EmailFrom: "jane@example.com",
	}
	s.Require().NoError(s.db.Create(s.conv).Error)
}

func (s *ConversationHandlerTestSuite) request(method, body string, paramNames, paramValues []string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames(paramNames...)
	c.SetParamValues(paramValues...)
	return c, rec
}

func (s *ConversationHandlerTestSuite) TestGet() {
	c, rec := s.request(http.MethodGet, "", []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.Get(c))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"conv-1"`)
}

func (s *ConversationHandlerTestSuite) TestGet_NotFound() {
	c, rec := s.request(http.MethodGet, "", []string{"slug"}, []string{"missing"})
	s.Require().NoError(s.handler.Get(c))
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ConversationHandlerTestSuite) TestUpdate_Close() {
	s.dispatcher.On("Trigger", mock.Anything, events.EmbeddingCreate, mock.Anything, mock.Anything).Return(nil)

	c, rec := s.request(http.MethodPatch, `{"status":"closed","reason":"resolved"}`, []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.Update(c))
	s.Equal(http.StatusOK, rec.Code)

	var conv models.Conversation
	s.Require().NoError(s.db.First(&conv, s.conv.ID).Error)
	s.Equal(models.StatusClosed, conv.Status)
	s.NotNil(conv.ClosedAt)

	s.dispatcher.AssertExpectations(s.T())
}

func (s *ConversationHandlerTestSuite) TestUpdate_InvalidStatus() {
	c, rec := s.request(http.MethodPatch, `{"status":"archived"}`, []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.Update(c))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ConversationHandlerTestSuite) TestUpdate_Unassign() {
	staffID := uint(7)
	s.Require().NoError(s.db.Model(s.conv).Update("assigned_to_id", staffID).Error)
	s.dispatcher.On("Trigger", mock.Anything, events.SendFollowerNotification, mock.Anything, mock.Anything).Return(nil)

	c, rec := s.request(http.MethodPatch, `{"unassign":true}`, []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.Update(c))
	s.Equal(http.StatusOK, rec.Code)

	var conv models.Conversation
	s.Require().NoError(s.db.First(&conv, s.conv.ID).Error)
	s.Nil(conv.AssignedToID)
}

func (s *ConversationHandlerTestSuite) TestUpdate_RequestHumanSupport() {
	s.Require().NoError(s.db.Model(s.conv).Update("assigned_to_ai", true).Error)
	s.dispatcher.On("Trigger", mock.Anything, events.SendFollowerNotification, mock.Anything, mock.Anything).Return(nil)
	s.dispatcher.On("Trigger", mock.Anything, events.HumanSupportRequested, mock.Anything, mock.Anything).Return(nil)

	c, rec := s.request(http.MethodPatch, `{"requestHumanSupport":true,"byUserId":3}`, []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.Update(c))
	s.Equal(http.StatusOK, rec.Code)

	var conv models.Conversation
	s.Require().NoError(s.db.First(&conv, s.conv.ID).Error)
	s.False(conv.AssignedToAI)

	s.dispatcher.AssertExpectations(s.T())
}

func (s *ConversationHandlerTestSuite) TestReply_QueuesClosesAndSchedules() {
	draft := &models.ConversationMessage{
		ConversationID: s.conv.ID,
		Role:           models.RoleAIAssistant,
		Status:         models.MessageStatusDraft,
	}
	s.Require().NoError(s.db.Create(draft).Error)

	s.dispatcher.On("Trigger", mock.Anything, events.EmbeddingCreate, mock.Anything, mock.Anything).Return(nil)
	s.dispatcher.On("Trigger", mock.Anything, events.EmailEnqueued, mock.Anything,
		mock.MatchedBy(func(opts *events.TriggerOpts) bool {
			return opts != nil && opts.SleepSeconds == defaultUndoWindowSeconds
		})).Return(nil)

	c, rec := s.request(http.MethodPost, `{"body":"We shipped a fix.","byUserId":3}`, []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.Reply(c))
	s.Equal(http.StatusCreated, rec.Code)

	var reply models.ConversationMessage
	s.Require().NoError(s.db.Where("role = ?", models.RoleStaff).First(&reply).Error)
	s.Equal(models.MessageStatusQueueing, reply.Status)
	s.Equal("jane@example.com", reply.EmailTo)

	// The pending AI draft is superseded
	var discarded models.ConversationMessage
	s.Require().NoError(s.db.First(&discarded, draft.ID).Error)
	s.Equal(models.MessageStatusDiscarded, discarded.Status)

	var conv models.Conversation
	s.Require().NoError(s.db.First(&conv, s.conv.ID).Error)
	s.Equal(models.StatusClosed, conv.Status)

	s.dispatcher.AssertExpectations(s.T())
}

func (s *ConversationHandlerTestSuite) TestReply_LeaveOpen() {
	s.dispatcher.On("Trigger", mock.Anything, events.EmailEnqueued, mock.Anything, mock.Anything).Return(nil)

	c, rec := s.request(http.MethodPost, `{"body":"Looking into it.","leaveOpen":true}`, []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.Reply(c))
	s.Equal(http.StatusCreated, rec.Code)

	var conv models.Conversation
	s.Require().NoError(s.db.First(&conv, s.conv.ID).Error)
	s.Equal(models.StatusOpen, conv.Status)
}

func (s *ConversationHandlerTestSuite) TestReply_CustomUndoWindow() {
	s.dispatcher.On("Trigger", mock.Anything, events.EmbeddingCreate, mock.Anything, mock.Anything).Return(nil)
	s.dispatcher.On("Trigger", mock.Anything, events.EmailEnqueued, mock.Anything,
		mock.MatchedBy(func(opts *events.TriggerOpts) bool {
			return opts != nil && opts.SleepSeconds == 60
		})).Return(nil)

	c, _ := s.request(http.MethodPost, `{"body":"Done.","undoSeconds":60}`, []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.Reply(c))

	s.dispatcher.AssertExpectations(s.T())
}

func (s *ConversationHandlerTestSuite) TestReply_CCsOtherParticipants() {
	s.Require().NoError(s.db.Create(&models.ConversationMessage{
		ConversationID: s.conv.ID,
		Role:           models.RoleUser,
		EmailFrom:      "jane@example.com",
		EmailTo:        "support@acme.test, colleague@example.com",
		EmailCC:        []string{"Partner@example.org"},
	}).Error)

	s.dispatcher.On("Trigger", mock.Anything, events.EmbeddingCreate, mock.Anything, mock.Anything).Return(nil)
	s.dispatcher.On("Trigger", mock.Anything, events.EmailEnqueued, mock.Anything, mock.Anything).Return(nil)

	c, rec := s.request(http.MethodPost, `{"body":"All set."}`, []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.Reply(c))
	s.Equal(http.StatusCreated, rec.Code)

	var reply models.ConversationMessage
	s.Require().NoError(s.db.Where("role = ?", models.RoleStaff).First(&reply).Error)
	s.Equal("jane@example.com", reply.EmailTo)

	// Everyone on the last inbound message stays in the loop except the
	// support address and the primary recipient
	s.ElementsMatch([]string{"colleague@example.com", "partner@example.org"}, reply.EmailCC)
}

func (s *ConversationHandlerTestSuite) TestReply_EmptyBody() {
	c, rec := s.request(http.MethodPost, `{"body":"   "}`, []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.Reply(c))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ConversationHandlerTestSuite) TestCancelReply_WithinWindow() {
	msg := &models.ConversationMessage{
		ConversationID: s.conv.ID,
		Role:           models.RoleStaff,
		Status:         models.MessageStatusQueueing,
	}
	s.Require().NoError(s.db.Create(msg).Error)

	c, rec := s.request(http.MethodDelete, "", []string{"slug", "id"}, []string{"conv-1", idString(msg.ID)})
	s.Require().NoError(s.handler.CancelReply(c))
	s.Equal(http.StatusNoContent, rec.Code)

	var got models.ConversationMessage
	s.Require().NoError(s.db.First(&got, msg.ID).Error)
	s.Equal(models.MessageStatusDiscarded, got.Status)
}

func (s *ConversationHandlerTestSuite) TestCancelReply_AlreadySent() {
	msg := &models.ConversationMessage{
		ConversationID: s.conv.ID,
		Role:           models.RoleStaff,
		Status:         models.MessageStatusSent,
	}
	s.Require().NoError(s.db.Create(msg).Error)

	c, rec := s.request(http.MethodDelete, "", []string{"slug", "id"}, []string{"conv-1", idString(msg.ID)})
	s.Require().NoError(s.handler.CancelReply(c))
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *ConversationHandlerTestSuite) TestCancelReply_MissingMessage() {
	c, rec := s.request(http.MethodDelete, "", []string{"slug", "id"}, []string{"conv-1", "999"})
	s.Require().NoError(s.handler.CancelReply(c))
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ConversationHandlerTestSuite) TestListEvents() {
	s.Require().NoError(s.db.Create(&models.ConversationEvent{
		ConversationID: s.conv.ID,
		Type:           models.EventTypeUpdate,
		Reason:         "Closed by reply",
	}).Error)

	c, rec := s.request(http.MethodGet, "", []string{"slug"}, []string{"conv-1"})
	s.Require().NoError(s.handler.ListEvents(c))
	s.Equal(http.StatusOK, rec.Code)

	var envelope struct {
		Data []models.ConversationEvent `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &envelope))
	s.Len(envelope.Data, 1)
	s.Equal("Closed by reply", envelope.Data[0].Reason)
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestConversationHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(ConversationHandlerTestSuite))
}
