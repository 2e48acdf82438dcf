package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Admin     AdminConfig
	API       APIConfig
	Socket    SocketConfig
	Push      PushConfig
	Feed      FeedConfig
	Alert     AlertConfig
	Console   ConsoleConfig
	LogLevel  string
	LogFormat string
}

type AdminConfig struct {
	// Token is the bearer token of the admin session.
	Token          string
	KindeIssuerURL string
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SocketConfig struct {
	URL               string
	ReconnectAttempts uint64
	ReconnectDelay    time.Duration
	// Events that count as "new notification" for the feed.
	NotificationEvents []string
}

type PushConfig struct {
	RedisURL   string
	DeviceID   string
	Permission string
}

type FeedConfig struct {
	Limit        int
	UnreadOnly   bool
	PollInterval time.Duration
}

type AlertConfig struct {
	BellPeriod time.Duration
}

type ConsoleConfig struct {
	ListenAddr string
}

// Load reads defaults, an optional config file and DISPATCH_* environment
// variables, in increasing priority.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("dispatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("admin.token", "")
	v.SetDefault("admin.kindeissuerurl", "")

	v.SetDefault("api.baseurl", "http://localhost:5000/api")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("socket.url", "ws://localhost:5000/ws")
	v.SetDefault("socket.reconnectattempts", 5)
	v.SetDefault("socket.reconnectdelay", "1s")
	v.SetDefault("socket.notificationevents", []string{"admin-new-notification", "new-notification"})

	v.SetDefault("push.redisurl", "")
	v.SetDefault("push.deviceid", "")
	v.SetDefault("push.permission", "default")

	v.SetDefault("feed.limit", 10)
	v.SetDefault("feed.unreadonly", false)
	v.SetDefault("feed.pollinterval", "60s")

	v.SetDefault("alert.bellperiod", "2s")

	v.SetDefault("console.listenaddr", "127.0.0.1:8090")

	v.SetDefault("loglevel", "info")
	v.SetDefault("logformat", "json")
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.baseurl is required")
	}
	if c.Socket.URL == "" {
		return fmt.Errorf("socket.url is required")
	}
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("feed.pollinterval must be positive, got %s", c.Feed.PollInterval)
	}
	if c.Feed.Limit <= 0 {
		return fmt.Errorf("feed.limit must be positive, got %d", c.Feed.Limit)
	}
	return nil
}
