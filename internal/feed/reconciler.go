package feed

import (
	"context"
	"sync"
	"time"

	"dispatch-realtime/internal/api"
	"dispatch-realtime/internal/models"
	"dispatch-realtime/internal/ws"

	"go.uber.org/zap"
)

const dropdownBatch = 3

// Backend is the slice of the admin REST API the feed needs.
type Backend interface {
	ListNotifications(ctx context.Context, q api.ListQuery) (*models.NotificationPage, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	DeleteNotifications(ctx context.Context, ids []string) error
	DeleteAllNotifications(ctx context.Context) error
	SendNotification(ctx context.Context, req models.SendRequest) (*models.SendResult, error)
}

// Subscriber is the event surface of the connection manager.
type Subscriber interface {
	On(event string, h ws.Handler) ws.Subscription
	Off(sub ws.Subscription)
}

type Options struct {
	Limit        int
	UnreadOnly   bool
	PollInterval time.Duration
}

// Snapshot is what the header badge and dropdown render.
type Snapshot struct {
	Notifications []models.Notification
	UnreadCount   int
	LastSync      time.Time
}

// Reconciler is the single owner of the unread count and the recent list.
// Socket events, push deliveries, polls and user actions all mutate them
// through its methods.
type Reconciler struct {
	backend Backend
	opts    Options
	logger  *zap.Logger

	mu        sync.Mutex
	items     []models.Notification
	unread    int
	lastSync  time.Time
	observers []func(Snapshot)
	stopped   bool
	cancel    context.CancelFunc

	// fetches are numbered when issued; a response older than the last
	// applied one is dropped
	fetchSeq   uint64
	appliedSeq uint64

	// background fetches and dropdown mark-reads
	wg sync.WaitGroup
}

func New(backend Backend, opts Options, logger *zap.Logger) *Reconciler {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 60 * time.Second
	}
	return &Reconciler{
		backend: backend,
		opts:    opts,
		logger:  logger.With(zap.String("component", "feed")),
	}
}

// Start fetches once and then polls on the configured interval until Stop.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil || r.stopped {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.poll(ctx)
	}()
}

func (r *Reconciler) poll(ctx context.Context) {
	if err := r.FetchRecent(ctx); err != nil {
		r.logger.Warn("[FEED] Initial notification fetch failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.FetchRecent(ctx); err != nil {
				r.logger.Warn("[FEED] Notification poll failed", zap.Error(err))
			}
		}
	}
}

// Stop cancels the poll and waits for in-flight background work. Every call
// made after Stop returns without touching the backend.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Subscribe registers fn to be called with every new snapshot.
func (r *Reconciler) Subscribe(fn func(Snapshot)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	items := make([]models.Notification, len(r.items))
	copy(items, r.items)
	return Snapshot{Notifications: items, UnreadCount: r.unread, LastSync: r.lastSync}
}

// publish hands the current state to observers. Callers must not hold mu.
func (r *Reconciler) publish() {
	r.mu.Lock()
	snap := r.snapshotLocked()
	observers := make([]func(Snapshot), len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (r *Reconciler) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// FetchRecent replaces local state with the backend's view. The unread count
// becomes exactly the server-reported value.
func (r *Reconciler) FetchRecent(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.fetchSeq++
	seq := r.fetchSeq
	r.mu.Unlock()

	page, err := r.backend.ListNotifications(ctx, api.ListQuery{Limit: r.opts.Limit, UnreadOnly: r.opts.UnreadOnly})
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	if seq < r.appliedSeq {
		r.mu.Unlock()
		r.logger.Debug("[FEED] Dropping stale fetch", zap.Uint64("seq", seq))
		return nil
	}
	r.appliedSeq = seq
	r.items = page.Notifications
	r.unread = page.UnreadCount
	r.lastSync = time.Now()
	r.mu.Unlock()

	r.logger.Debug("[FEED] Feed reconciled", zap.Int("unread", page.UnreadCount), zap.Int("items", len(page.Notifications)))
	r.publish()
	return nil
}

// MarkRead marks one notification read and re-fetches; local state is not
// touched before the backend confirms.
func (r *Reconciler) MarkRead(ctx context.Context, id string) error {
	if r.isStopped() {
		return nil
	}
	if err := r.backend.MarkRead(ctx, id); err != nil {
		r.logger.Warn("[FEED] Mark read failed", zap.String("id", id), zap.Error(err))
		return err
	}
	return r.FetchRecent(ctx)
}

func (r *Reconciler) MarkAllRead(ctx context.Context) error {
	if r.isStopped() {
		return nil
	}
	if err := r.backend.MarkAllRead(ctx); err != nil {
		r.logger.Warn("[FEED] Mark all read failed", zap.Error(err))
		return err
	}
	return r.FetchRecent(ctx)
}

// OpenNotificationsPage is the side effect of navigating to the full list.
func (r *Reconciler) OpenNotificationsPage(ctx context.Context) error {
	return r.MarkAllRead(ctx)
}

// OpenDropdown marks the top unread items read. Local state changes at once;
// the backend calls run in parallel in the background and failures are only
// logged. It returns how many items were marked.
func (r *Reconciler) OpenDropdown(ctx context.Context) int {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return 0
	}
	var ids []string
	for i := range r.items {
		if len(ids) == dropdownBatch {
			break
		}
		if !r.items[i].IsRead {
			r.items[i].IsRead = true
			ids = append(ids, r.items[i].ID)
		}
	}
	r.unread -= len(ids)
	if r.unread < 0 {
		r.unread = 0
	}
	r.wg.Add(len(ids))
	r.mu.Unlock()

	if len(ids) == 0 {
		return 0
	}

	for _, id := range ids {
		go func(id string) {
			defer r.wg.Done()
			if err := r.backend.MarkRead(context.WithoutCancel(ctx), id); err != nil {
				r.logger.Warn("[FEED] Dropdown mark read failed", zap.String("id", id), zap.Error(err))
			}
		}(id)
	}

	r.publish()
	return len(ids)
}

// NotifyNew records that a notification arrived over the socket or push. The
// count moves immediately and a fetch reconciles it in the background.
func (r *Reconciler) NotifyNew(ctx context.Context) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.unread++
	r.wg.Add(1)
	r.mu.Unlock()

	r.publish()

	go func() {
		defer r.wg.Done()
		if err := r.FetchRecent(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("[FEED] Reconcile after new notification failed", zap.Error(err))
		}
	}()
}

// Attach feeds the given socket events into NotifyNew. The returned func
// removes the handlers.
func (r *Reconciler) Attach(ctx context.Context, sub Subscriber, events ...string) func() {
	subs := make([]ws.Subscription, 0, len(events))
	for _, event := range events {
		subs = append(subs, sub.On(event, func(models.NotificationEvent) {
			r.NotifyNew(ctx)
		}))
	}
	return func() {
		for _, s := range subs {
			sub.Off(s)
		}
	}
}

func (r *Reconciler) Delete(ctx context.Context, ids []string) error {
	if r.isStopped() {
		return nil
	}
	if err := r.backend.DeleteNotifications(ctx, ids); err != nil {
		return err
	}
	return r.FetchRecent(ctx)
}

func (r *Reconciler) DeleteAll(ctx context.Context) error {
	if r.isStopped() {
		return nil
	}
	if err := r.backend.DeleteAllNotifications(ctx); err != nil {
		return err
	}
	return r.FetchRecent(ctx)
}

// Send fans out a notification and re-fetches; the sender may be in the audience.
func (r *Reconciler) Send(ctx context.Context, req models.SendRequest) (*models.SendResult, error) {
	res, err := r.backend.SendNotification(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := r.FetchRecent(ctx); err != nil {
		r.logger.Warn("[FEED] Refresh after send failed", zap.Error(err))
	}
	return res, nil
}
