package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/modgate/backend/internal/audit"
	"github.com/modgate/backend/internal/commands"
	"github.com/modgate/backend/internal/config"
	"github.com/modgate/backend/internal/db"
	"github.com/modgate/backend/internal/events"
	"github.com/modgate/backend/internal/gate"
	apphttp "github.com/modgate/backend/internal/http"
	"github.com/modgate/backend/internal/http/handlers"
	"github.com/modgate/backend/internal/ids"
	"github.com/modgate/backend/internal/limiter"
	"github.com/modgate/backend/internal/metrics"
	"github.com/modgate/backend/internal/models"
	"github.com/modgate/backend/internal/repositories"
	"github.com/modgate/backend/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sweepInterval = time.Minute

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	cfg.LogWarnings(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if _, err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	clock := clockwork.NewRealClock()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	staff := cfg.Staff()

	// Repositories
	auditRepo := repositories.NewAuditRepo(pool)
	ticketRepo := repositories.NewTicketRepo(pool)
	communityRepo := repositories.NewCommunityRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Limiter backend
	var (
		cooldownStore limiter.CooldownStore
		rateStore     limiter.RateLimitStore
		sweeper       *limiter.Sweeper
		apiLimitRedis redis.UniversalClient
	)
	switch cfg.LimiterBackend {
	case config.LimiterRedis:
		cooldownStore = limiter.NewRedisCooldownStore(rdb)
		rateStore = limiter.NewRedisRateLimitStore(rdb)
		apiLimitRedis = rdb
	default:
		mc, mr := limiter.NewMemoryCooldownStore(), limiter.NewMemoryRateLimitStore()
		cooldownStore, rateStore = mc, mr
		sweeper = &limiter.Sweeper{Cooldowns: mc, RateLimits: mr, MaxWindow: cfg.RateLimitWindow, Clock: clock, Log: log}
	}
	g := gate.New(staff, limiter.NewCooldowns(cooldownStore, clock), limiter.NewRateLimiter(rateStore, clock), m, log)

	// Services
	botClient := services.NewBotClient(cfg.BotInternalURL, cfg.BotInternalSecret, log)
	streams := services.NewAuditStreams(cfg.AuditStreams, communityRepo, clock)
	notifier := services.NewEventNotifier(publisher, log)
	reporter := services.NewErrorReporter(cfg.ErrorWebhookURL, log)
	generator := ids.NewGenerator(clock)

	auditLogger := audit.NewLogger(auditRepo, streams, botClient, publisher, generator, clock, m, log, audit.Options{
		PersistTimeout: cfg.PersistenceTimeout,
		MirrorTimeout:  cfg.MirrorTimeout,
	})

	registry := commands.NewRegistry()
	if err := commands.RegisterBuiltins(registry, commands.Deps{
		Moderation: botClient,
		Notifier:   notifier,
		Warnings:   auditLogger,
		Clock:      clock,
		MassBanLimit: models.RateLimit{
			Limit:    cfg.RateLimitDefault,
			WindowMs: cfg.RateLimitWindow.Milliseconds(),
		},
	}); err != nil {
		log.Fatal("failed to register commands", zap.Error(err))
	}
	if err := registry.ApplyCooldowns(cfg.DefaultCooldownSeconds, cfg.CommandCooldowns); err != nil {
		log.Fatal("invalid command cooldowns", zap.Error(err))
	}

	dispatcher := commands.NewDispatcher(registry, g, auditLogger, reporter, m, clock, log, cfg.HandlerTimeout)
	resolver := services.NewResolver(botClient, staff, clock, log)
	ticketService := services.NewTicketService(ticketRepo, staff, notifier, auditLogger, publisher, generator, clock, m, log,
		services.TicketServiceOptions{
			SupportCanManage: cfg.SupportCanManageTickets,
			Timeout:          cfg.PersistenceTimeout,
		})

	// Handlers
	authHandler := handlers.NewAuthHandler(cfg.JWTSecret, cfg.JWTExpiration, staff, log)
	invocationHandler := handlers.NewInvocationHandler(resolver, dispatcher, registry, log)
	ticketHandler := handlers.NewTicketHandler(ticketService, log)
	auditHandler := handlers.NewAuditHandler(auditLogger, streams, log)
	communityHandler := handlers.NewCommunityHandler(auditLogger, streams, resolver, log)
	wsHub := handlers.NewWSHub(cfg.JWTSecret, staff, subscriber, log)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, apiLimitRedis, staff, m, reg,
		authHandler, invocationHandler, ticketHandler, auditHandler, communityHandler, wsHub)

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		return wsHub.Start(gctx)
	})
	grp.Go(func() error {
		reporter.Run(gctx)
		return nil
	})
	if sweeper != nil {
		grp.Go(func() error {
			sweeper.Run(gctx, sweepInterval)
			return nil
		})
	}
	grp.Go(func() error {
		addr := fmt.Sprintf(":%s", cfg.APIPort)
		log.Info("starting API server",
			zap.String("addr", addr),
			zap.String("limiter", cfg.LimiterBackend),
			zap.Int("commands", len(registry.List())),
		)
		return app.Listen(addr)
	})
	grp.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		err := app.ShutdownWithTimeout(10 * time.Second)
		auditLogger.Wait()
		notifier.Wait()
		return err
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}
