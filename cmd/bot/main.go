package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-bot/internal/api/http"
	"github.com/spec-kit/support-bot/internal/api/http/handlers"
	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/bot"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/persistence"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/service"
	"github.com/spec-kit/support-bot/internal/session"
	"github.com/spec-kit/support-bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var redis *persistence.Redis
	var sessions session.Store
	if cfg.Session.Backend == config.SessionBackendRedis {
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		sessions = session.NewRedisStore(redis.Client, cfg.Session.TTL())
	} else {
		sessions = session.NewMemoryStore(cfg.Session.TTL())
	}

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger))

	tgBot, err := bot.New(cfg.Telegram, logger)
	if err != nil {
		logger.Fatal("failed to create telegram bot", zap.Error(err))
	}

	routing := service.NewRoutingService(cfg.Telegram.GroupChatID, service.RoutingDependencies{
		TicketRepo: ticketRepo,
		Messenger:  tgBot,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	conversations := service.NewConversationService(cfg.Telegram.GroupChatID, service.ConversationDependencies{
		Sessions:   sessions,
		UserRepo:   userRepo,
		Routing:    routing,
		Messenger:  tgBot,
		Logger:     logger,
		IsOperator: cfg.Telegram.IsOperator,
	})
	tgBot.Bind(conversations, routing)

	var app *fiber.App
	if cfg.Admin.Enabled() {
		app = fiber.New()
		metrics := observability.NewMetrics()
		httptransport.RegisterMiddlewares(app, logger, metrics)

		tokens := auth.NewTokenManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTLMinutes)
		httptransport.RegisterRoutes(app, httptransport.RouteConfig{
			Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
			Auth:           handlers.NewAuthHandler(cfg.Admin, tokens),
			Tickets:        handlers.NewTicketsHandler(ticketRepo),
			AuthMiddleware: auth.NewAuthMiddleware(tokens),
		})

		go func() {
			if err := app.Listen(cfg.App.Addr()); err != nil {
				logger.Fatal("fiber listen", zap.Error(err))
			}
		}()
	} else {
		logger.Info("admin API disabled; ADMIN_PASSWORD_HASH not set")
	}

	go tgBot.Run(ctx)

	waitForShutdown(logger)
	cancel()

	if app != nil {
		_ = app.Shutdown()
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
