// Package remote connects the sync engine to the notification HTTP API and
// its websocket push channel.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backoffice-notify/pkg/notifysync"
)

const defaultBaseURL = "http://127.0.0.1:3000"

// HTTPError is a non-2xx answer from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIClient implements notifysync.Store and notifysync.EntityLookup for the
// user the bearer token belongs to.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var (
	_ notifysync.Store        = (*APIClient)(nil)
	_ notifysync.EntityLookup = (*APIClient)(nil)
)

func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &APIClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

// ListUnread loads the token owner's unread notifications. The server scopes
// by token, userID is only used to reject a mismatched row.
func (c *APIClient) ListUnread(ctx context.Context, userID string, limit int) ([]notifysync.Record, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []notifysync.Record
	if err := c.doJSON(ctx, http.MethodGet, "/api/notifications/unread?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	for _, rec := range out {
		if userID != "" && rec.UserID != "" && rec.UserID != userID {
			return nil, fmt.Errorf("snapshot row %s belongs to %s, expected %s", rec.ID, rec.UserID, userID)
		}
	}
	return out, nil
}

func (c *APIClient) MarkAsRead(ctx context.Context, id string) (notifysync.Record, error) {
	var out notifysync.Record
	err := c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/api/notifications/%s/read", url.PathEscape(id)), &out)
	return out, err
}

func (c *APIClient) MarkAllAsRead(ctx context.Context, _ string) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	err := c.doJSON(ctx, http.MethodPatch, "/api/notifications/read-all", &out)
	return out.Count, err
}

func (c *APIClient) TicketTitle(ctx context.Context, id string) (string, error) {
	return c.title(ctx, fmt.Sprintf("/api/entities/tickets/%s/title", url.PathEscape(id)))
}

func (c *APIClient) MeetingMinuteTitle(ctx context.Context, id string) (string, error) {
	return c.title(ctx, fmt.Sprintf("/api/entities/meeting-minutes/%s/title", url.PathEscape(id)))
}

func (c *APIClient) MeetingMinuteIDForComment(ctx context.Context, commentID string) (string, error) {
	var out struct {
		MeetingMinuteID string `json:"meeting_minute_id"`
	}
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/entities/comments/%s/meeting-minute", url.PathEscape(commentID)), &out)
	if IsNotFound(err) {
		return "", nil
	}
	return out.MeetingMinuteID, err
}

func (c *APIClient) title(ctx context.Context, requestPath string) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	err := c.doJSON(ctx, http.MethodGet, requestPath, &out)
	if IsNotFound(err) {
		return "", nil
	}
	return out.Title, err
}

func (c *APIClient) doJSON(ctx context.Context, method, requestPath string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	var env envelope
	decodeErr := json.Unmarshal(bytes.TrimSpace(payload), &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil {
			msg = strings.TrimSpace(string(payload))
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s %s: %w", method, requestPath, decodeErr)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
