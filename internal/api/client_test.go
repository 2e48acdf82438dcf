package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"dispatch-realtime/internal/models"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

func newBackend(t *testing.T, status int, response string) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			body:   string(b),
		})
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", "tok", 0, zap.NewNop()), &calls
}

func TestListNotifications(t *testing.T) {
	c, calls := newBackend(t, http.StatusOK, `{
		"success": true,
		"data": {
			"notifications": [
				{"_id": "n1", "title": "New driver", "type": "new-driver-registration", "isRead": false, "createdAt": "2024-05-01T10:00:00Z"},
				{"_id": "n2", "title": "Paid", "type": "payment-received", "isRead": true, "createdAt": "2024-05-01T09:00:00Z"}
			],
			"unreadCount": 7,
			"pagination": {"page": 1, "limit": 10, "total": 2, "totalPages": 1}
		}
	}`)

	page, err := c.ListNotifications(context.Background(), ListQuery{Limit: 10, UnreadOnly: true})
	require.NoError(t, err)

	assert.Equal(t, 7, page.UnreadCount)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, "n1", page.Notifications[0].ID)
	assert.Equal(t, models.TypeNewDriverRegistration, page.Notifications[0].Type)
	assert.Equal(t, 1, page.Pagination.TotalPages)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, "/api/admins/notifications", call.path)
	assert.Equal(t, "limit=10&unreadOnly=true", call.query)
	assert.Equal(t, "Bearer tok", call.auth)
}

func TestMutations(t *testing.T) {
	c, calls := newBackend(t, http.StatusOK, `{"success": true, "message": "ok"}`)
	ctx := context.Background()

	require.NoError(t, c.MarkRead(ctx, "n1"))
	require.NoError(t, c.MarkAllRead(ctx))
	require.NoError(t, c.DeleteNotifications(ctx, []string{"n1", "n2"}))
	require.NoError(t, c.DeleteAllNotifications(ctx))
	require.NoError(t, c.UpdatePushToken(ctx, "device-token"))

	want := []recorded{
		{method: http.MethodPut, path: "/api/admins/notifications/n1/read"},
		{method: http.MethodPut, path: "/api/admins/notifications/read-all"},
		{method: http.MethodDelete, path: "/api/admins/notifications/delete", body: `{"ids":["n1","n2"]}`},
		{method: http.MethodDelete, path: "/api/admins/notifications/delete", body: `{"deleteAll":true}`},
		{method: http.MethodPut, path: "/api/admins/profile", body: `{"fcmToken":"device-token"}`},
	}
	require.Len(t, *calls, len(want))
	for i, w := range want {
		got := (*calls)[i]
		assert.Equal(t, w.method, got.method)
		assert.Equal(t, w.path, got.path)
		if w.body != "" {
			assert.JSONEq(t, w.body, got.body)
		}
	}
}

func TestSendNotification(t *testing.T) {
	c, calls := newBackend(t, http.StatusOK, `{"success": true, "data": {"users": {"success": 3, "failure": 1}, "drivers": {"success": 0, "failure": 0}}}`)

	res, err := c.SendNotification(context.Background(), models.SendRequest{
		Title:   "Maintenance",
		Message: "Tonight",
		Target:  models.TargetAllUsers,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Users.Success)
	assert.Equal(t, 1, res.Users.Failure)

	var sent models.SendRequest
	require.NoError(t, json.Unmarshal([]byte((*calls)[0].body), &sent))
	assert.Equal(t, models.TargetAllUsers, sent.Target)
}

func TestErrors(t *testing.T) {
	c, _ := newBackend(t, http.StatusNotFound, `{"success": false, "message": "Notification not found"}`)
	err := c.MarkRead(context.Background(), "missing")

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Notification not found", apiErr.Message)

	c, _ = newBackend(t, http.StatusOK, `{"success": false, "message": "rejected"}`)
	err = c.MarkAllRead(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "rejected", apiErr.Message)

	c, _ = newBackend(t, http.StatusOK, `not json`)
	_, err = c.ListNotifications(context.Background(), ListQuery{})
	assert.Error(t, err)
}

func TestErrorsAreLoggedWithTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"success": false, "message": "db down"}`)
	}))
	defer srv.Close()

	core, logs := observer.New(zap.WarnLevel)
	c := NewClient(srv.URL, "tok", 0, zap.New(core))

	require.Error(t, c.MarkAllRead(context.Background()))
	entries := logs.FilterMessage("[API] Backend returned non-2xx status").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, http.StatusInternalServerError, entries[0].ContextMap()["status_code"])
}
