package redis

import (
	"context"
	"testing"
	"time"

	"dispatch-realtime/internal/models"
	"dispatch-realtime/internal/push"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, permission string) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), "redis://"+mr.Addr(), "laptop", permission, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestToken_StablePerDevice(t *testing.T) {
	c, mr := newTestClient(t, PermissionGranted)

	first, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stored, err := mr.Get("push:device:laptop")
	require.NoError(t, err)
	assert.Equal(t, first, stored)
}

func TestToken_RequiresGrant(t *testing.T) {
	for _, perm := range []string{PermissionDenied, PermissionDefault, ""} {
		c, _ := newTestClient(t, perm)
		_, err := c.Token(context.Background())
		assert.ErrorIs(t, err, push.ErrPermissionDenied)
	}
}

func TestNextMessage_ReceivesOneDelivery(t *testing.T) {
	c, _ := newTestClient(t, PermissionGranted)
	token, err := c.Token(context.Background())
	require.NoError(t, err)

	got := make(chan models.PushPayload, 1)
	go func() {
		p, err := c.NextMessage(context.Background(), token)
		if err == nil {
			got <- p
		}
	}()

	want := models.PushPayload{
		Notification: models.PushNotification{Title: "SOS", Body: "help"},
		Data:         models.PushData{Type: "sos-alert", TripID: "t1"},
	}

	// publish until the listener is subscribed
	assert.Eventually(t, func() bool {
		c.rdb.Publish(context.Background(), channel(token), "not json")
		n, err := c.Publish(context.Background(), token, want)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case p := <-got:
		assert.Equal(t, want, p)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
}

func TestNextMessage_StopsOnCancel(t *testing.T) {
	c, _ := newTestClient(t, PermissionGranted)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.NextMessage(ctx, "tok")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "://nope", "", PermissionGranted, zap.NewNop())
	assert.Error(t, err)
}
