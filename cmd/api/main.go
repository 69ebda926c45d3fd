package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Abdin71/supportflow-ai/internal/ai"
	httptransport "github.com/Abdin71/supportflow-ai/internal/api/http"
	"github.com/Abdin71/supportflow-ai/internal/api/http/handlers"
	"github.com/Abdin71/supportflow-ai/internal/auth"
	"github.com/Abdin71/supportflow-ai/internal/config"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/events"
	"github.com/Abdin71/supportflow-ai/internal/observability"
	"github.com/Abdin71/supportflow-ai/internal/persistence"
	"github.com/Abdin71/supportflow-ai/internal/repository"
	"github.com/Abdin71/supportflow-ai/internal/service"
	"github.com/Abdin71/supportflow-ai/internal/worker"
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

	backend, err := persistence.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open document store", zap.Error(err))
	}
	defer backend.Close()

	canned := ai.DefaultSuggestionTable()
	if cfg.AI.SuggestionsFile != "" {
		canned, err = ai.LoadSuggestionTable(cfg.AI.SuggestionsFile)
		if err != nil {
			logger.Fatal("failed to load suggestion table", zap.Error(err))
		}
	}
	if cfg.AI.APIKey == "" {
		logger.Warn("AI_API_KEY not set; analysis and suggestions will use fallbacks")
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	userRepo := repository.NewUserRepository(backend.Store)
	ticketRepo := repository.NewTicketRepository(backend.Store)
	messageRepo := repository.NewMessageRepository(backend.Store)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:     userRepo,
		TokenManager: tokens,
		Logger:       logger,
	})
	if cfg.Auth.BootstrapAdminEmail != "" && cfg.Auth.BootstrapAdminPassword != "" {
		created, err := authService.EnsureUser(ctx, "Administrator", cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword, domain.UserRoleAdmin)
		if err != nil {
			logger.Fatal("failed to provision admin", zap.Error(err))
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("email", cfg.Auth.BootstrapAdminEmail))
		}
	}

	completer := ai.NewOpenAICompleter(cfg.AI)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		UserRepo:    userRepo,
		Logger:      logger,
	})
	pipeline := service.NewAnalysisPipeline(service.AnalysisDependencies{
		TicketRepo:   ticketRepo,
		Classifier:   ai.NewClassifier(completer),
		ModelVersion: completer.Model(),
		Timeout:      cfg.AI.Timeout(),
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	suggestionService := service.NewSuggestionService(service.SuggestionDependencies{
		UserRepo:    userRepo,
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Drafter:     ai.NewSuggestionGenerator(completer),
		Canned:      canned,
		Timeout:     cfg.AI.Timeout(),
		Metrics:     metrics,
		Logger:      logger,
	})

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notificationService.RegisterHandlers()

	analysisWorker := worker.NewAnalysisWorker(worker.AnalysisWorkerDependencies{
		Store:         backend.Store,
		Dispatcher:    dispatcher,
		Analyzer:      pipeline,
		Counter:       ticketService,
		Logger:        logger,
		Workers:       cfg.Analysis.Workers,
		SweepInterval: cfg.Analysis.SweepInterval(),
	})
	analysisWorker.Start(ctx)

	app := httptransport.NewApp()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	var checks []handlers.DependencyCheck
	if backend.Postgres != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "postgres", Ping: backend.Postgres.Ping})
	}
	if backend.Redis != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Ping: backend.Redis.Ping})
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, checks...),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Messages:       handlers.NewMessagesHandler(ticketService),
		Suggestions:    handlers.NewSuggestionsHandler(suggestionService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, userRepo),
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	analysisWorker.Stop()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
