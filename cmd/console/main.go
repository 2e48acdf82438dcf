package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatch-realtime/internal/alert"
	"dispatch-realtime/internal/api"
	"dispatch-realtime/internal/audio"
	"dispatch-realtime/internal/auth"
	"dispatch-realtime/internal/config"
	"dispatch-realtime/internal/console"
	"dispatch-realtime/internal/feed"
	"dispatch-realtime/internal/push"
	"dispatch-realtime/internal/redis"
	"dispatch-realtime/internal/ws"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session identity
	verifier := auth.NewVerifier(cfg.Admin.KindeIssuerURL, logger)
	if err := verifier.Init(ctx); err != nil {
		logger.Fatal("Failed to initialize JWKS", zap.Error(err))
	}
	identity, err := verifier.Identity(cfg.Admin.Token)
	if err != nil {
		logger.Fatal("Invalid admin session token", zap.Error(err))
	}
	if !identity.CanJoin() {
		logger.Warn("Session has no admin id, private events will not be received")
	}

	backend := api.NewClient(cfg.API.BaseURL, cfg.Admin.Token, cfg.API.Timeout, logger)
	presenter := console.NewPresenter(os.Stdout)

	conn := ws.NewManager(ws.Options{
		URL:               cfg.Socket.URL,
		Token:             cfg.Admin.Token,
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
		ReconnectDelay:    cfg.Socket.ReconnectDelay,
	}, logger)

	reconciler := feed.New(backend, feed.Options{
		Limit:        cfg.Feed.Limit,
		UnreadOnly:   cfg.Feed.UnreadOnly,
		PollInterval: cfg.Feed.PollInterval,
	}, logger)
	reconciler.Subscribe(presenter.Badge)
	detach := reconciler.Attach(ctx, conn, cfg.Socket.NotificationEvents...)
	reconciler.Start(ctx)

	bell := audio.NewBell(os.Stdout, cfg.Alert.BellPeriod)
	interrupt := alert.New(conn, bell, presenter, presenter, logger)

	// Push delivery is optional; socket and polling keep the feed alive without it.
	pushDone := make(chan struct{})
	if cfg.Push.RedisURL != "" {
		provider, err := redis.NewClient(ctx, cfg.Push.RedisURL, cfg.Push.DeviceID, cfg.Push.Permission, logger)
		if err != nil {
			logger.Warn("Push provider unavailable, continuing without push", zap.Error(err))
			close(pushDone)
		} else {
			defer provider.Close()
			bridge := push.NewBridge(provider, backend, presenter, reconciler, logger)
			go func() {
				defer close(pushDone)
				if _, ok := bridge.Register(ctx); ok {
					bridge.Run(ctx)
				}
			}()
		}
	} else {
		close(pushDone)
	}

	conn.Connect(ctx, identity)

	srv := &http.Server{
		Addr:         cfg.Console.ListenAddr,
		Handler:      console.NewRouter(reconciler, interrupt, conn, presenter, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info("Console listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Console server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Console server shutdown", zap.Error(err))
	}

	// Reverse of startup, as on logout.
	interrupt.Close()
	detach()
	<-pushDone
	conn.Disconnect()
	reconciler.Stop()
}
