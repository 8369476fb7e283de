// Package gmail implements the minimal Gmail API surface the ingestion
// pipeline consumes: incremental history listing and raw message fetches.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrHistoryExpired is returned when the provider rejects a history cursor
// as too old (HTTP 404). Callers fall back to a secondary cursor instead of
// failing the batch.
var ErrHistoryExpired = errors.New("history cursor expired")

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// Client is the provider surface consumed by the ingestion pipeline
type Client interface {
	History(ctx context.Context, startHistoryID uint64) (*HistoryResponse, error)
	Message(ctx context.Context, id string) (*RawMessage, error)
}

// MessageRef identifies a message within a history entry
type MessageRef struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	LabelIDs []string `json:"labelIds"`
}

// MessageAdded wraps a message reference in a history entry
type MessageAdded struct {
	Message MessageRef `json:"message"`
}

// HistoryEntry is one incremental change record
type HistoryEntry struct {
	ID            string         `json:"id"`
	MessagesAdded []MessageAdded `json:"messagesAdded"`
}

// HistoryResponse is the result of an incremental history listing
type HistoryResponse struct {
	History   []HistoryEntry `json:"history"`
	HistoryID string         `json:"historyId"`
}

// RawMessage is a fetched message with its decoded RFC 822 payload
type RawMessage struct {
	ID       string
	ThreadID string
	LabelIDs []string
	Raw      []byte
}

// httpClient implements Client against the Gmail REST API
type httpClient struct {
	baseURL     string
	accessToken string
	client      *http.Client
	logger      *slog.Logger
}

// NewClient creates a Gmail API client authenticated with an access token
func NewClient(accessToken string, logger *slog.Logger) Client {
	return &httpClient{
		baseURL:     defaultBaseURL,
		accessToken: accessToken,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// NewClientWithBaseURL creates a client against a custom endpoint
func NewClientWithBaseURL(baseURL, accessToken string, logger *slog.Logger) Client {
	c := NewClient(accessToken, logger).(*httpClient)
	c.baseURL = baseURL
	return c
}

func (c *httpClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gmail request failed: %w", err)
	}
	return resp, nil
}

// History lists messages added since the given history cursor. A 404 means
// the cursor has expired and maps to ErrHistoryExpired; any other non-2xx
// status is a hard failure.
func (c *httpClient) History(ctx context.Context, startHistoryID uint64) (*HistoryResponse, error) {
	path := fmt.Sprintf("/history?startHistoryId=%d&historyTypes=messageAdded", startHistoryID)
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrHistoryExpired
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gmail history error (status %d): %s", resp.StatusCode, string(body))
	}

	var history HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("fetched gmail history",
			slog.Uint64("start_history_id", startHistoryID),
			slog.Int("entries", len(history.History)))
	}
	return &history, nil
}

// messagePayload is the wire shape of a format=raw message fetch
type messagePayload struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	LabelIDs []string `json:"labelIds"`
	Raw      string   `json:"raw"`
}

// Message fetches the full raw content of a message
func (c *httpClient) Message(ctx context.Context, id string) (*RawMessage, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/messages/%s?format=raw", id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gmail message error (status %d): %s", resp.StatusCode, string(body))
	}

	var payload messagePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode message response: %w", err)
	}

	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(payload.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raw message body: %w", err)
	}

	return &RawMessage{
		ID:       payload.ID,
		ThreadID: payload.ThreadID,
		LabelIDs: payload.LabelIDs,
		Raw:      raw,
	}, nil
}
