package redis

import (
	"context"
	"fmt"
	"strings"

	"dispatch-realtime/internal/models"
	"dispatch-realtime/internal/push"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Browser-style permission states.
const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
	PermissionDefault = "default"
)

// Client is a push provider on Redis pub/sub: each device holds a stable
// token and receives deliveries on the "push:<token>" channel.
type Client struct {
	rdb        *redis.Client
	deviceID   string
	permission string
	logger     *zap.Logger
}

func NewClient(ctx context.Context, redisURL, deviceID, permission string, logger *zap.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger = logger.With(zap.String("component", "redis"))
	logger.Info("[REDIS] Connected to Redis", zap.String("addr", opt.Addr))
	return newClient(rdb, deviceID, permission, logger), nil
}

func newClient(rdb *redis.Client, deviceID, permission string, logger *zap.Logger) *Client {
	if deviceID == "" {
		deviceID = "default"
	}
	return &Client{
		rdb:        rdb,
		deviceID:   deviceID,
		permission: strings.ToLower(permission),
		logger:     logger,
	}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func deviceKey(deviceID string) string {
	return "push:device:" + deviceID
}

func channel(token string) string {
	return "push:" + token
}

// Token returns the device token, minting one on first use.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.permission != PermissionGranted {
		return "", push.ErrPermissionDenied
	}

	key := deviceKey(c.deviceID)
	if _, err := c.rdb.SetNX(ctx, key, uuid.NewString(), 0).Result(); err != nil {
		return "", fmt.Errorf("failed to mint push token: %w", err)
	}
	token, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read push token: %w", err)
	}
	return token, nil
}

// Publish delivers payload to the device holding token. It returns the number
// of listeners that received it.
func (c *Client) Publish(ctx context.Context, token string, payload models.PushPayload) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("[REDIS] Failed to marshal push payload", zap.Error(err))
		return 0, err
	}

	receivers, err := c.rdb.Publish(ctx, channel(token), raw).Result()
	if err != nil {
		c.logger.Error("[REDIS] Failed to publish push payload", zap.String("channel", channel(token)), zap.Error(err))
		return 0, err
	}
	return receivers, nil
}
