// Command pushsend delivers one push payload to a console's device token.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"dispatch-realtime/internal/config"
	"dispatch-realtime/internal/models"
	"dispatch-realtime/internal/redis"

	"go.uber.org/zap"
)

func main() {
	var (
		redisURL = flag.String("redis", "redis://localhost:6379", "Redis URL")
		token    = flag.String("token", "", "device push token")
		title    = flag.String("title", "", "notification title")
		body     = flag.String("body", "", "notification body")
		kind     = flag.String("type", "", "payload type, e.g. sos-alert")
		tripID   = flag.String("trip", "", "trip id")
	)
	flag.Parse()

	if *token == "" || *title == "" {
		log.Fatal("-token and -title are required")
	}

	logger, err := config.NewLogger("info", "console")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Sending does not need a device or permission of its own.
	client, err := redis.NewClient(ctx, *redisURL, "", redis.PermissionDenied, logger)
	if err != nil {
		logger.Fatal("Failed to connect", zap.Error(err))
	}
	defer client.Close()

	receivers, err := client.Publish(ctx, *token, models.PushPayload{
		Notification: models.PushNotification{Title: *title, Body: *body},
		Data:         models.PushData{Type: *kind, TripID: *tripID},
	})
	if err != nil {
		logger.Fatal("Failed to publish", zap.Error(err))
	}
	logger.Info("Push published", zap.Int64("receivers", receivers))
}
