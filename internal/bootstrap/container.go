package bootstrap

import (
	"context"
	"log"

	"backoffice-notify/internal/changefeed"
	"backoffice-notify/internal/config"
	"backoffice-notify/internal/handler"
	"backoffice-notify/internal/pkg/logger"
	"backoffice-notify/internal/repository"
	"backoffice-notify/internal/repository/implementation"
	"backoffice-notify/internal/repository/memory"
	"backoffice-notify/internal/service"
	"backoffice-notify/internal/websocket"

	pktNats "backoffice-notify/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Logger         logger.ILogger
	RealtimeLogger logger.ILogger

	// Handlers
	NotificationHandler *handler.NotificationHandler
	EntityHandler       *handler.EntityHandler

	// Background Services (started by Start)
	NotificationService *service.NotificationService
	WebSocketHub        *websocket.Hub
	ChangeDispatcher    *changefeed.Dispatcher

	cfg     *config.Config
	pubSub  *gochannel.GoChannel
	natsSub *pktNats.Subscriber
	rdb     *redis.Client
}

// NewContainer wires the application. A nil db selects the in-memory
// repositories.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Loggers
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	wsLogger := logger.NewIsolatedLogger(cfg.App.RealtimeLogPath)

	// 2. Change feed (in-process)
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)
	changes := changefeed.NewPublisher(pubSub, wsLogger)

	// 3. Infrastructure
	// NATS
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsHub := websocket.NewHub(rdb, wsLogger)
	dispatcher := changefeed.NewDispatcher(pubSub, wsHub, wsLogger)

	// 4. Notification Domain
	var (
		notifRepo  repository.NotificationRepository
		entityRepo repository.EntityRepository
	)
	if db != nil {
		notifRepo = implementation.NewNotificationRepository(db)
		entityRepo = implementation.NewEntityRepository(db)
	} else {
		sysLogger.Warn("Container", "No database configured, notifications are kept in memory", nil)
		notifRepo = memory.NewNotificationRepository()
		entityRepo = memory.NewEntityRepository()
	}

	var eventSub service.EventSubscriber
	if natsSub != nil {
		eventSub = natsSub
	}
	notifService := service.NewNotificationService(notifRepo, changes, eventSub, sysLogger, service.NotificationServiceOptions{
		DefaultLimit: cfg.Notification.DefaultListLimit,
		MaxLimit:     cfg.Notification.MaxListLimit,
	})
	entityService := service.NewEntityService(entityRepo)

	// 5. Handlers
	return &Container{
		Logger:              sysLogger,
		RealtimeLogger:      wsLogger,
		NotificationHandler: handler.NewNotificationHandler(notifService, wsHub, cfg.Auth.JWTSecret, wsLogger),
		EntityHandler:       handler.NewEntityHandler(entityService, cfg.Auth.JWTSecret),
		NotificationService: notifService,
		WebSocketHub:        wsHub,
		ChangeDispatcher:    dispatcher,
		cfg:                 cfg,
		pubSub:              pubSub,
		natsSub:             natsSub,
		rdb:                 rdb,
	}
}

// Start runs the hub, the change dispatcher and the notification worker
// until ctx is cancelled.
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)

	if err := c.ChangeDispatcher.Run(ctx); err != nil {
		return err
	}

	if c.natsSub == nil {
		c.Logger.Warn("Container", "NATS unavailable, notification ingest disabled", nil)
		return nil
	}
	return c.NotificationService.Start(ctx, c.cfg.Notification.EventSubject, c.cfg.Notification.DurableName)
}

func (c *Container) Close() {
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if err := c.pubSub.Close(); err != nil {
		c.Logger.Warn("Container", "Failed to close change feed", map[string]interface{}{"error": err.Error()})
	}
	if err := c.rdb.Close(); err != nil {
		c.Logger.Warn("Container", "Failed to close Redis", map[string]interface{}{"error": err.Error()})
	}
	_ = c.Logger.Sync()
	_ = c.RealtimeLogger.Sync()
}
