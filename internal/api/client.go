package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dispatch-realtime/internal/models"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Error is a failed backend call: a non-2xx status or a success=false envelope.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the dispatch backend's admin REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "api")),
	}
}

type ListQuery struct {
	Limit      int
	Page       int
	UnreadOnly bool
}

// ListNotifications fetches a page of notifications with the authoritative
// unread count.
func (c *Client) ListNotifications(ctx context.Context, q ListQuery) (*models.NotificationPage, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.UnreadOnly {
		params.Set("unreadOnly", "true")
	}

	path := "/admins/notifications"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var page models.NotificationPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/admins/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/admins/notifications/read-all", nil, nil)
}

func (c *Client) DeleteNotifications(ctx context.Context, ids []string) error {
	body := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}
	return c.do(ctx, http.MethodDelete, "/admins/notifications/delete", body, nil)
}

func (c *Client) DeleteAllNotifications(ctx context.Context) error {
	body := struct {
		DeleteAll bool `json:"deleteAll"`
	}{DeleteAll: true}
	return c.do(ctx, http.MethodDelete, "/admins/notifications/delete", body, nil)
}

// UpdatePushToken stores the device push token on the admin profile.
func (c *Client) UpdatePushToken(ctx context.Context, token string) error {
	body := struct {
		FCMToken string `json:"fcmToken"`
	}{FCMToken: token}
	return c.do(ctx, http.MethodPut, "/admins/profile", body, nil)
}

// SendNotification fans a notification out to the requested audience.
func (c *Client) SendNotification(ctx context.Context, req models.SendRequest) (*models.SendResult, error) {
	var result models.SendResult
	if err := c.do(ctx, http.MethodPost, "/admins/notifications/send", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("[API] Backend request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			c.logger.Error("[API] Failed to decode response envelope", zap.String("path", path), zap.Error(err))
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("[API] Backend returned non-2xx status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode))
		return &Error{Status: resp.StatusCode, Message: env.Message}
	}
	if len(raw) > 0 && !env.Success {
		return &Error{Status: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			c.logger.Error("[API] Failed to decode response data", zap.String("path", path), zap.Error(err))
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
