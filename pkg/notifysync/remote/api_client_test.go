package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/notifications/unread", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, `{"success":true,"message":"ok","data":[
			{"id":"n2","user_id":"u1","type":"assigned","related_entity_type":"ticket","related_entity_id":"t1","read_at":null,"created_at":"2026-01-02T10:00:00Z"},
			{"id":"n1","user_id":"u1","type":"mentioned","read_at":null,"created_at":"2026-01-01T10:00:00Z"}
		]}`)
	})
	mux.HandleFunc("/api/notifications/n1/read", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		writeJSON(w, http.StatusOK, `{"success":true,"message":"ok","data":{"id":"n1","user_id":"u1","type":"mentioned","read_at":"2026-01-03T08:00:00Z","created_at":"2026-01-01T10:00:00Z"}}`)
	})
	mux.HandleFunc("/api/notifications/missing/read", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"success":false,"message":"notification not found"}`)
	})
	mux.HandleFunc("/api/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		writeJSON(w, http.StatusOK, `{"success":true,"message":"ok","data":{"count":2}}`)
	})
	mux.HandleFunc("/api/entities/tickets/t1/title", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"message":"ok","data":{"id":"t1","title":"Elevator noise"}}`)
	})
	mux.HandleFunc("/api/entities/meeting-minutes/m1/title", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"success":false,"message":"Internal server error"}`)
	})
	mux.HandleFunc("/api/entities/comments/c1/meeting-minute", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"message":"ok","data":{"comment_id":"c1","meeting_minute_id":"m9"}}`)
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			writeJSON(w, http.StatusUnauthorized, `{"success":false,"message":"Missing token"}`)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestAPIClientStore(t *testing.T) {
	server := newAPIServer(t)
	client := NewAPIClient(server.URL+"/", " secret-token ", server.Client())
	ctx := context.Background()

	records, err := client.ListUnread(ctx, "u1", 25)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "n2", records[0].ID)
	assert.Equal(t, "ticket", records[0].RelatedEntityType)
	assert.Equal(t, "t1", records[0].RelatedEntityID)
	assert.Nil(t, records[1].ReadAt)

	_, err = client.ListUnread(ctx, "someone-else", 25)
	assert.Error(t, err)

	rec, err := client.MarkAsRead(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, rec.ReadAt)
	assert.Equal(t, "n1", rec.ID)

	_, err = client.MarkAsRead(ctx, "missing")
	assert.True(t, IsNotFound(err))

	count, err := client.MarkAllAsRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestAPIClientLookups(t *testing.T) {
	server := newAPIServer(t)
	client := NewAPIClient(server.URL, "secret-token", server.Client())
	ctx := context.Background()

	title, err := client.TicketTitle(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Elevator noise", title)

	title, err = client.TicketTitle(ctx, "t404")
	require.NoError(t, err, "a missing entity is not an error")
	assert.Empty(t, title)

	_, err = client.MeetingMinuteTitle(ctx, "m1")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, "Internal server error", httpErr.Message)

	minuteID, err := client.MeetingMinuteIDForComment(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "m9", minuteID)
}

func TestAPIClientRejectsBadToken(t *testing.T) {
	server := newAPIServer(t)
	client := NewAPIClient(server.URL, "wrong", server.Client())

	_, err := client.ListUnread(context.Background(), "u1", 25)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, "http 401: Missing token", httpErr.Error())
}
