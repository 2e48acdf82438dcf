package console

import (
	"context"
	"errors"
	"net/http"

	"dispatch-realtime/internal/api"
	"dispatch-realtime/internal/feed"
	"dispatch-realtime/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type Feed interface {
	Snapshot() feed.Snapshot
	OpenDropdown(ctx context.Context) int
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	OpenNotificationsPage(ctx context.Context) error
	Delete(ctx context.Context, ids []string) error
	DeleteAll(ctx context.Context) error
	Send(ctx context.Context, req models.SendRequest) (*models.SendResult, error)
}

type Alerts interface {
	Active() (models.SOSAlert, bool)
	Acknowledge() bool
}

type Connection interface {
	Connected() bool
}

type handler struct {
	feed      Feed
	alerts    Alerts
	conn      Connection
	presenter *Presenter
	logger    *zap.Logger
}

// NewRouter exposes the operator actions over local HTTP.
func NewRouter(f Feed, alerts Alerts, conn Connection, presenter *Presenter, logger *zap.Logger) http.Handler {
	h := &handler{
		feed:      f,
		alerts:    alerts,
		conn:      conn,
		presenter: presenter,
		logger:    logger.With(zap.String("component", "console")),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Get("/feed", h.getFeed)
	r.Delete("/feed", h.deleteFeed)
	r.Post("/feed/dropdown", h.openDropdown)
	r.Post("/feed/read-all", h.markAllRead)
	r.Post("/feed/{id}/read", h.markRead)

	r.Get("/notifications", h.openNotificationsPage)
	r.Post("/notifications/send", h.send)

	r.Get("/sos", h.getSOS)
	r.Post("/sos/ack", h.ackSOS)

	r.Post("/toast/click", h.clickToast)

	return r
}

type feedResponse struct {
	UnreadCount   int                   `json:"unreadCount"`
	Notifications []models.Notification `json:"notifications"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"connected": h.conn.Connected(),
	})
}

func (h *handler) getFeed(w http.ResponseWriter, r *http.Request) {
	snap := h.feed.Snapshot()
	writeJSON(w, http.StatusOK, feedResponse{UnreadCount: snap.UnreadCount, Notifications: snap.Notifications})
}

func (h *handler) openDropdown(w http.ResponseWriter, r *http.Request) {
	marked := h.feed.OpenDropdown(r.Context())
	snap := h.feed.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"marked":        marked,
		"unreadCount":   snap.UnreadCount,
		"notifications": snap.Notifications,
	})
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.feed.MarkRead(r.Context(), id); err != nil {
		h.fail(w, "Failed to mark notification as read", err)
		return
	}
	h.getFeed(w, r)
}

func (h *handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.MarkAllRead(r.Context()); err != nil {
		h.fail(w, "Failed to mark all notifications as read", err)
		return
	}
	h.getFeed(w, r)
}

func (h *handler) openNotificationsPage(w http.ResponseWriter, r *http.Request) {
	h.presenter.Navigate(models.NotificationsRoute)
	if err := h.feed.OpenNotificationsPage(r.Context()); err != nil {
		h.fail(w, "Failed to mark all notifications as read", err)
		return
	}
	h.getFeed(w, r)
}

type deleteRequest struct {
	IDs       []string `json:"ids"`
	DeleteAll bool     `json:"deleteAll"`
}

func (h *handler) deleteFeed(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch {
	case req.DeleteAll:
		err = h.feed.DeleteAll(r.Context())
	case len(req.IDs) > 0:
		err = h.feed.Delete(r.Context(), req.IDs)
	default:
		writeError(w, http.StatusBadRequest, "ids or deleteAll required")
		return
	}
	if err != nil {
		h.fail(w, "Failed to delete notifications", err)
		return
	}
	h.getFeed(w, r)
}

func (h *handler) send(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.Message == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "title, message and target are required")
		return
	}

	res, err := h.feed.Send(r.Context(), req)
	if err != nil {
		h.fail(w, "Failed to send notification", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) getSOS(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.alerts.Active()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": true, "alert": alert})
}

func (h *handler) ackSOS(w http.ResponseWriter, r *http.Request) {
	if !h.alerts.Acknowledge() {
		writeError(w, http.StatusConflict, "no active alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true, "route": h.presenter.Route()})
}

func (h *handler) clickToast(w http.ResponseWriter, r *http.Request) {
	route, ok := h.presenter.ClickToast()
	if !ok {
		writeError(w, http.StatusNotFound, "no toast to click")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"route": route})
}

// fail reports a user-triggered failure to the caller only.
func (h *handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn("[CONSOLE] "+msg, zap.Error(err))

	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = msg + ": " + apiErr.Message
	}
	writeError(w, http.StatusBadGateway, msg)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
