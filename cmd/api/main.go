package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-automation/internal/api/http"
	"github.com/spec-kit/ticket-automation/internal/api/http/handlers"
	"github.com/spec-kit/ticket-automation/internal/auth"
	"github.com/spec-kit/ticket-automation/internal/automation"
	"github.com/spec-kit/ticket-automation/internal/config"
	"github.com/spec-kit/ticket-automation/internal/events"
	"github.com/spec-kit/ticket-automation/internal/observability"
	"github.com/spec-kit/ticket-automation/internal/persistence"
	"github.com/spec-kit/ticket-automation/internal/repository"
	"github.com/spec-kit/ticket-automation/internal/service"
	"github.com/spec-kit/ticket-automation/internal/sweeper"
	"github.com/spec-kit/ticket-automation/internal/worker"
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

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewTicketMessageRepository(pool)
	activityRepo := repository.NewTicketActivityRepository(pool)
	ruleRepo := repository.NewAutomationRuleRepository(pool)

	dispatcher := events.NewInMemoryDispatcher(logger)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)

	resolver := service.NewPoolResolver(agentRepo, groupRepo)
	evaluator := automation.NewEvaluator(logger)
	executor := automation.NewExecutor(resolver, notificationService, logger)
	tracker := automation.NewTracker(repository.NewAutomationStore(ruleRepo, activityRepo), logger)
	engine := automation.NewEngine(automation.EngineDependencies{
		Rules:     ruleRepo,
		Evaluator: evaluator,
		Executor:  executor,
		Tracker:   tracker,
		Guard:     automation.NewRecursionGuard(cfg.Automation.MaxDispatchDepth),
		Metrics:   metrics,
		Logger:    logger,
	})

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:  userRepo,
		AgentRepo: agentRepo,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, agentRepo)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		MessageRepo:  messageRepo,
		ActivityRepo: activityRepo,
		AgentRepo:    agentRepo,
		Engine:       engine,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	ruleService := service.NewRuleService(ruleRepo)

	var sweep *sweeper.Sweeper
	if cfg.Sweeper.Enabled {
		var tokens sweeper.TokenStore = sweeper.NewMemoryTokenStore()
		if redis.Available() {
			tokens = sweeper.NewRedisTokenStore(redis.Client)
		} else {
			logger.Warn("redis unavailable; sweep dedup tokens are in-process only")
		}
		sweep = sweeper.New(sweeper.Config{
			Spec:            cfg.Sweeper.Spec,
			DefaultTokenTTL: cfg.Sweeper.TokenTTL(),
		}, sweeper.Dependencies{
			Rules:     ruleRepo,
			Tickets:   ticketRepo,
			Tokens:    tokens,
			Engine:    engine,
			Evaluator: evaluator,
			Metrics:   metrics,
			Logger:    logger,
		})
	}

	background, err := worker.Start(notificationService, sweep, logger)
	if err != nil {
		logger.Fatal("failed to start background workers", zap.Error(err))
	}

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Error("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Agents:         handlers.NewAgentsHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AgentTickets:   handlers.NewAgentTicketsHandler(ticketService),
		Rules:          handlers.NewRulesHandler(ruleService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	background.Stop()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
