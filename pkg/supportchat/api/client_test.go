package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook-chat/pkg/supportchat"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, StaticToken("tok"), 5*time.Second)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/support/v1/messages", r.URL.Path)
		assert.Equal(t, "ai", r.URL.Query().Get("mode"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, supportchat.HistoryResponse{Success: true, Messages: []supportchat.WireMessage{
			{ID: "m1", Text: "hi"},
			{ID: "", Text: "dropped"},
			{ID: "m2", Text: "hello", AuthoredByAI: true},
		}})
	})

	msgs, err := c.History(context.Background(), supportchat.ModeAI)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID.String())
	assert.True(t, msgs[1].AuthoredByAI)
}

func TestHistory_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Missing token"})
	})

	_, err := c.History(context.Background(), supportchat.ModeSupport)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHistory_Malformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>gateway</html>"))
	})

	_, err := c.History(context.Background(), supportchat.ModeSupport)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestSend_Confirmed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req supportchat.SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, supportchat.ModeSupport, req.Mode)
		assert.Equal(t, "Hello", req.Text)
		writeJSON(w, http.StatusOK, supportchat.SendResponse{Success: true, Message: &supportchat.WireMessage{ID: "m1", Text: "Hello"}})
	})

	res, err := c.Send(context.Background(), supportchat.ModeSupport, "Hello")

	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, "m1", res.Message.ID.String())
	assert.Empty(t, res.Messages)
}

func TestSend_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, supportchat.RejectedResponse{
			Message: "This conversation was closed by support",
			Session: &supportchat.SessionInfo{Status: supportchat.SessionClosed},
		})
	})

	_, err := c.Send(context.Background(), supportchat.ModeSupport, "Hello")

	var rejected *WriteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, supportchat.SessionClosed, rejected.Status)
	assert.Equal(t, "This conversation was closed by support", rejected.Error())
}

func TestSend_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream"})
	})

	_, err := c.Send(context.Background(), supportchat.ModeAI, "Hello")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

func TestSessionStatus(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			writeJSON(w, http.StatusOK, supportchat.SessionStatusResponse{})
			return
		}
		writeJSON(w, http.StatusOK, supportchat.SessionStatusResponse{Session: &supportchat.SessionInfo{Status: supportchat.SessionActive}})
	})

	info, err := c.SessionStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info)

	info, err = c.SessionStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, supportchat.SessionActive, info.Status)
}

func TestClearHistoryAndStartSession(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		writeJSON(w, http.StatusOK, supportchat.SuccessResponse{Success: true})
	})

	require.NoError(t, c.ClearHistory(context.Background(), supportchat.ModeAI))
	require.NoError(t, c.StartSession(context.Background()))

	assert.Equal(t, []string{"DELETE /api/support/v1/messages", "POST /api/support/v1/session"}, seen)
}
