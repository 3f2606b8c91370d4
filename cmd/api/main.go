package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httptransport "github.com/ledgerline/banking-support/internal/api/http"
	"github.com/ledgerline/banking-support/internal/api/http/handlers"
	"github.com/ledgerline/banking-support/internal/auth"
	"github.com/ledgerline/banking-support/internal/config"
	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/events"
	"github.com/ledgerline/banking-support/internal/observability"
	"github.com/ledgerline/banking-support/internal/persistence"
	"github.com/ledgerline/banking-support/internal/realtime"
	"github.com/ledgerline/banking-support/internal/repository"
	"github.com/ledgerline/banking-support/internal/service"
	"github.com/ledgerline/banking-support/internal/storage"
	"github.com/ledgerline/banking-support/internal/worker"
)

type repositories struct {
	users    repository.UserRepository
	staff    repository.StaffRepository
	messages repository.MessageRepository
	tickets  repository.SupportTicketRepository
	requests repository.RequestRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Pool != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer rdb.Close()

	repos := buildRepositories(pg)
	dispatcher := events.NewInMemoryDispatcher()

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:  repos.users,
		StaffRepo: repos.staff,
		Logger:    logger,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), repos.users, repos.staff)

	if cfg.Auth.BootstrapStaffEmail != "" && cfg.Auth.BootstrapStaffPassword != "" {
		if _, err := authService.EnsureStaff(ctx, "Support Admin", cfg.Auth.BootstrapStaffEmail, cfg.Auth.BootstrapStaffPassword, domain.StaffRoleAdmin); err != nil {
			logger.Fatal("failed to bootstrap staff account", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if rdb != nil {
		redisClient = rdb.Client
	}
	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer, metrics)
	defer hub.Close()
	broker := realtime.NewBroker(hub, redisClient, cfg.Redis.Channel, logger)
	relayDone := worker.StartRealtimeRelay(ctx, broker, logger)

	store := storage.NewDiskStore(cfg.Storage.RootDir, cfg.Storage.PublicBaseURL)
	uploader := storage.NewUploader(store, int64(cfg.Storage.MaxUploadBytes), logger, metrics)

	messageService := service.NewMessageService(service.MessageDependencies{
		Repo:       repos.messages,
		Broker:     broker,
		Uploader:   uploader,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	supportService := service.NewSupportService(repos.tickets, dispatcher, logger, metrics)
	requestService := service.NewRequestService(repos.requests, uploader, dispatcher, logger, metrics)

	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: cfg.Storage.MaxUploadBytes + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rdb),
		Users:          handlers.NewUsersHandler(authService),
		Staff:          handlers.NewStaffHandler(authService),
		Chat:           handlers.NewChatHandler(messageService),
		Inbox:          handlers.NewInboxHandler(messageService),
		Tickets:        handlers.NewTicketsHandler(supportService),
		Requests:       handlers.NewRequestsHandler(requestService),
		Storage:        handlers.NewStorageHandler(store),
		Metrics:        metrics,
		AuthMiddleware: authMiddleware,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", realtime.NewGateway(hub, authMiddleware, logger))
	realtimeServer := &http.Server{
		Addr:              cfg.Realtime.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("realtime gateway listening", zap.String("addr", realtimeServer.Addr))
		if err := realtimeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("realtime listen", zap.Error(err))
		}
	}()

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	_ = app.ShutdownWithContext(shutdownCtx)
	_ = realtimeServer.Shutdown(shutdownCtx)
	cancel()
	<-relayDone
}

// buildRepositories picks pgx-backed repositories, or in-memory ones when no DSN is configured.
func buildRepositories(pg *persistence.Postgres) repositories {
	if pg.Pool == nil {
		return repositories{
			users:    repository.NewMemoryUserRepository(),
			staff:    repository.NewMemoryStaffRepository(),
			messages: repository.NewMemoryMessageRepository(),
			tickets:  repository.NewMemorySupportTicketRepository(),
			requests: repository.NewMemoryRequestRepository(),
		}
	}
	return repositories{
		users:    repository.NewUserRepository(pg.Pool),
		staff:    repository.NewStaffRepository(pg.Pool),
		messages: repository.NewMessageRepository(pg.Pool),
		tickets:  repository.NewSupportTicketRepository(pg.Pool),
		requests: repository.NewRequestRepository(pg.Pool),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
