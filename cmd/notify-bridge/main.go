package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/modgate/backend/internal/config"
	"github.com/modgate/backend/internal/db"
	"github.com/modgate/backend/internal/events"
	"github.com/modgate/backend/internal/services"
	"go.uber.org/zap"
)

// Notify bridge: subscribes to the notification stream and forwards direct
// messages to the bot runtime's internal API.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	botClient := services.NewBotClient(cfg.BotInternalURL, cfg.BotInternalSecret, log)
	bridge := services.NewNotificationBridge(botClient, log)

	if err := bridge.Run(ctx, events.NewRedisSubscriber(rdb, log)); err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}
	log.Info("notify-bridge started", zap.String("stream", events.StreamNotifications))

	<-ctx.Done()
	log.Info("shutting down notify-bridge")
}
