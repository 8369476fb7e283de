// Package mocks provides hand-written testify mocks for the interfaces
// consumed across package boundaries in tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/welldanyogia/webrana-helpdesk-backend/internal/events"
	"github.com/welldanyogia/webrana-helpdesk-backend/internal/gmail"
)

// MockDispatcher implements events.Dispatcher
type MockDispatcher struct {
	mock.Mock
}

// Trigger records a domain event trigger
func (m *MockDispatcher) Trigger(ctx context.Context, name events.Name, payload interface{}, opts *events.TriggerOpts) error {
	args := m.Called(ctx, name, payload, opts)
	return args.Error(0)
}

// MockPublisher implements realtime.Publisher
type MockPublisher struct {
	mock.Mock
}

// Publish records a realtime publish
func (m *MockPublisher) Publish(channel, event string, data interface{}) {
	m.Called(channel, event, data)
}

// MockGmailClient implements gmail.Client
type MockGmailClient struct {
	mock.Mock
}

// History lists messages added since a history cursor
func (m *MockGmailClient) History(ctx context.Context, startHistoryID uint64) (*gmail.HistoryResponse, error) {
	args := m.Called(ctx, startHistoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gmail.HistoryResponse), args.Error(1)
}

// Message fetches the raw content of a message
func (m *MockGmailClient) Message(ctx context.Context, id string) (*gmail.RawMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gmail.RawMessage), args.Error(1)
}
