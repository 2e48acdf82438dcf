package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dispatch-realtime/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("socket not connected")

type Options struct {
	URL   string
	Token string

	// Reconnection policy: up to ReconnectAttempts retries, ReconnectDelay apart.
	ReconnectAttempts uint64
	ReconnectDelay    time.Duration

	Dialer *websocket.Dialer
}

// Manager owns the session's single socket. Handlers are tracked here rather
// than on the socket, so they stay attached across reconnects.
type Manager struct {
	opts   Options
	dialer *websocket.Dialer
	reg    *registry
	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	closing bool
	live    *connection
}

func NewManager(opts Options, logger *zap.Logger) *Manager {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}

	logger = logger.With(zap.String("component", "socket"))
	return &Manager{
		opts:   opts,
		dialer: dialer,
		reg:    newRegistry(logger),
		logger: logger,
	}
}

// Connect starts the connection loop for identity and returns once it is
// running. Calling it while a loop is running is a no-op; a loop that is
// still shutting down after Disconnect is waited for first.
func (m *Manager) Connect(ctx context.Context, identity models.Identity) {
	m.mu.Lock()
	for m.done != nil {
		if !m.closing {
			m.mu.Unlock()
			m.logger.Debug("[WS] Connect called while already connected")
			return
		}
		prev := m.done
		m.mu.Unlock()
		<-prev
		m.mu.Lock()
	}
	defer m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go m.run(runCtx, identity, done)
}

// Disconnect tears down the socket and waits for the loop to exit. The loop
// keeps ownership until then, so a concurrent Connect cannot open a second socket.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	if cancel != nil {
		m.closing = true
	}
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("[WS] Disconnected")
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live != nil
}

// On registers h for event. Registrations made before Connect are served as
// soon as the socket is up.
func (m *Manager) On(event string, h Handler) Subscription {
	return m.reg.add(event, h)
}

// Off removes a registration. Unknown or already removed subscriptions are ignored.
func (m *Manager) Off(sub Subscription) {
	m.reg.remove(sub)
}

// Emit sends an event to the server on the live socket.
func (m *Manager) Emit(event string, data interface{}) error {
	payload, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	live := m.live
	m.mu.Unlock()

	if live == nil {
		return ErrNotConnected
	}
	return live.enqueue(payload)
}

func (m *Manager) run(ctx context.Context, identity models.Identity, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		if m.done == done {
			m.cancel()
			m.cancel, m.done = nil, nil
			m.closing = false
		}
		m.mu.Unlock()
		close(done)
	}()

	for {
		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Error("[WS] Giving up on connection, running stale", zap.Error(err))
			}
			return
		}

		c := newConnection(conn, m.logger)
		m.logger.Info("[WS] Connected", zap.String("url", m.opts.URL))
		m.join(c, identity)
		m.setLive(c)

		c.serve(ctx, m.reg.dispatch)

		m.clearLive(c)
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("[WS] Connection lost, reconnecting")
	}
}

// join queues the room join ahead of anything else on a fresh socket.
func (m *Manager) join(c *connection, identity models.Identity) {
	if !identity.CanJoin() {
		m.logger.Warn("[WS] No admin id in session, skipping room join")
		return
	}

	payload, err := encodeFrame(models.EventJoinRoom, models.JoinRoomData{
		Role:    models.RoleAdmin,
		AdminID: identity.ID,
	})
	if err == nil {
		err = c.enqueue(payload)
	}
	if err != nil {
		m.logger.Error("[WS] Failed to queue room join", zap.String("adminId", identity.ID), zap.Error(err))
		return
	}
	m.logger.Info("[WS] Joining admin room", zap.String("adminId", identity.ID))
}

func (m *Manager) setLive(c *connection) {
	m.mu.Lock()
	m.live = c
	m.mu.Unlock()
}

// clearLive drops the live handle only if c still holds it.
func (m *Manager) clearLive(c *connection) {
	m.mu.Lock()
	if m.live == c {
		m.live = nil
	}
	m.mu.Unlock()
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if m.opts.Token != "" {
		header.Set("Authorization", "Bearer "+m.opts.Token)
	}

	var conn *websocket.Conn
	operation := func() error {
		c, resp, err := m.dialer.DialContext(ctx, m.opts.URL, header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(fmt.Errorf("socket handshake rejected with status %d: %w", resp.StatusCode, err))
			}
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.opts.ReconnectDelay), m.opts.ReconnectAttempts),
		ctx,
	)
	err := backoff.RetryNotify(operation, policy, func(err error, next time.Duration) {
		m.logger.Warn("[WS] Dial failed, retrying", zap.Duration("in", next), zap.Error(err))
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(models.Frame{Event: event, Data: raw})
}
