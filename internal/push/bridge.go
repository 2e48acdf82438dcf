package push

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"dispatch-realtime/internal/models"

	"go.uber.org/zap"
)

var ErrPermissionDenied = errors.New("push permission not granted")

// Provider is the push-messaging service.
type Provider interface {
	// Token returns the device's delivery token, or ErrPermissionDenied.
	Token(ctx context.Context) (string, error)
	// NextMessage waits for one foreground delivery. Listening again
	// requires another call.
	NextMessage(ctx context.Context, token string) (models.PushPayload, error)
}

// TokenStore persists the delivery token on the backend.
type TokenStore interface {
	UpdatePushToken(ctx context.Context, token string) error
}

type Toaster interface {
	Toast(t models.Toast)
}

// Counter is told about every delivered notification.
type Counter interface {
	NotifyNew(ctx context.Context)
}

// retryDelay spaces out listener re-arms after a provider error.
const retryDelay = 5 * time.Second

type Bridge struct {
	provider Provider
	store    TokenStore
	toaster  Toaster
	counter  Counter
	logger   *zap.Logger

	token      atomic.Value
	registered atomic.Bool
}

func NewBridge(provider Provider, store TokenStore, toaster Toaster, counter Counter, logger *zap.Logger) *Bridge {
	return &Bridge{
		provider: provider,
		store:    store,
		toaster:  toaster,
		counter:  counter,
		logger:   logger.With(zap.String("component", "push")),
	}
}

// RequestToken asks the provider for a delivery token. It never fails
// loudly: any problem is logged and reported as ok=false.
func (b *Bridge) RequestToken(ctx context.Context) (token string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("[PUSH] Token request panicked", zap.Any("panic", rec))
			token, ok = "", false
		}
	}()

	token, err := b.provider.Token(ctx)
	switch {
	case errors.Is(err, ErrPermissionDenied):
		b.logger.Warn("[PUSH] Notification permission not granted")
		return "", false
	case err != nil:
		b.logger.Error("[PUSH] Failed to get push token", zap.Error(err))
		return "", false
	case token == "":
		b.logger.Warn("[PUSH] Provider returned an empty token")
		return "", false
	}

	b.token.Store(token)
	return token, true
}

// Register acquires a token and stores it on the admin profile. The backend
// call happens at most once per bridge; a failure only degrades push delivery.
func (b *Bridge) Register(ctx context.Context) (string, bool) {
	token, ok := b.RequestToken(ctx)
	if !ok {
		return "", false
	}
	if !b.registered.CompareAndSwap(false, true) {
		return token, true
	}

	if err := b.store.UpdatePushToken(ctx, token); err != nil {
		b.logger.Error("[PUSH] Failed to save push token, push delivery may not work", zap.Error(err))
	} else {
		b.logger.Info("[PUSH] Push token registered")
	}
	return token, true
}

// ForegroundMessages starts a fresh listener and returns its deliveries. The
// listener re-arms after every delivery and the channel closes when ctx is
// done.
func (b *Bridge) ForegroundMessages(ctx context.Context) <-chan models.PushPayload {
	out := make(chan models.PushPayload)

	go func() {
		defer close(out)

		token, _ := b.token.Load().(string)
		if token == "" {
			b.logger.Warn("[PUSH] No push token, foreground listener not started")
			return
		}

		for {
			payload, err := b.provider.NextMessage(ctx, token)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				b.logger.Warn("[PUSH] Foreground listener failed, re-arming", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay):
				}
				continue
			}

			select {
			case out <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Run turns foreground deliveries into unread-count bumps and toasts until
// ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	for payload := range b.ForegroundMessages(ctx) {
		b.logger.Info("[PUSH] Foreground message received",
			zap.String("title", payload.Notification.Title),
			zap.String("type", payload.Data.Type))

		b.counter.NotifyNew(ctx)
		b.toaster.Toast(models.Toast{
			Title: payload.Notification.Title,
			Body:  payload.Notification.Body,
			Route: payload.Route(),
		})
	}
}
