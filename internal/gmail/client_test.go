package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithBaseURL(server.URL, "test-token", nil)
}

func TestHistory_DecodesEntries(t *testing.T) {
	var gotPath, gotAuth string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(HistoryResponse{
			History: []HistoryEntry{
				{ID: "101", MessagesAdded: []MessageAdded{
					{Message: MessageRef{ID: "gm-1", ThreadID: "th-1", LabelIDs: []string{"INBOX"}}},
				}},
			},
			HistoryID: "150",
		})
	})

	history, err := client.History(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, "/history?startHistoryId=100&historyTypes=messageAdded", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "150", history.HistoryID)
	require.Len(t, history.History, 1)
	require.Len(t, history.History[0].MessagesAdded, 1)
	assert.Equal(t, "gm-1", history.History[0].MessagesAdded[0].Message.ID)
}

func TestHistory_ExpiredCursor(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.History(context.Background(), 100)
	assert.ErrorIs(t, err, ErrHistoryExpired)
}

func TestHistory_ServerError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("backend unavailable"))
	})

	_, err := client.History(context.Background(), 100)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHistoryExpired)
	assert.Contains(t, err.Error(), "status 500")
}

func TestMessage_DecodesRawPayload(t *testing.T) {
	raw := []byte("From: jane@example.com\r\nSubject: Hello\r\n\r\nBody")
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(raw)

	var gotPath string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "gm-1",
			"threadId": "th-1",
			"labelIds": []string{"INBOX", "UNREAD"},
			"raw":      encoded,
		})
	})

	msg, err := client.Message(context.Background(), "gm-1")
	require.NoError(t, err)

	assert.Equal(t, "/messages/gm-1?format=raw", gotPath)
	assert.Equal(t, "gm-1", msg.ID)
	assert.Equal(t, "th-1", msg.ThreadID)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, msg.LabelIDs)
	assert.Equal(t, raw, msg.Raw)
}

func TestMessage_InvalidBase64(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "gm-1", "raw": "!!!not-base64!!!"})
	})

	_, err := client.Message(context.Background(), "gm-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode raw message body")
}

func TestMessage_NotFound(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.Message(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
