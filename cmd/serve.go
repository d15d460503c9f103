package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/types/events"

	"showroom_bot/internal/config"
	"showroom_bot/internal/infrastructure"
	"showroom_bot/internal/interfaces"
	api "showroom_bot/internal/interfaces/http"
	"showroom_bot/internal/repository"
	"showroom_bot/internal/resilience"
	"showroom_bot/internal/usecases"
)

func loadPatterns() (*usecases.Patterns, error) {
	if patternsFile == "" {
		return usecases.DefaultPatterns(), nil
	}
	raw, err := os.ReadFile(patternsFile)
	if err != nil {
		return nil, err
	}
	return usecases.LoadPatterns(raw)
}

func runServe(parent context.Context) error {
	cfg := config.Load()
	infrastructure.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := infrastructure.SetupTracing(cfg.TracingExporter)
	if err != nil {
		return err
	}

	patterns, err := loadPatterns()
	if err != nil {
		log.Error().Err(err).Str("file", patternsFile).Msg("Invalid intent patterns")
		return err
	}

	// Database
	pgClient, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return err
	}
	defer pgClient.Close()
	if err := pgClient.Migrate(ctx); err != nil {
		return err
	}

	// Repositories
	tenantStore := repository.NewTenantStore(pgClient.Pool)
	inventoryRepo := repository.NewInventoryRepository(pgClient.Pool)
	scheduleRepo := repository.NewScheduleRepository(pgClient.Pool)
	articleRepo := repository.NewArticleRepository(pgClient.Pool)
	usageRepo := repository.NewUsageRepository(pgClient.Pool)
	userRepo := repository.NewUserRepository(pgClient.Pool)
	tenantManager := repository.NewTenantManager(pgClient.Pool)

	registry := resilience.NewRegistryFromConfig(cfg)

	persistence := usecases.NewGuardedPersistence(tenantStore, registry)
	inventory := usecases.NewGuardedInventory(inventoryRepo, registry)
	scheduling := usecases.NewGuardedScheduling(scheduleRepo, registry)
	content := usecases.NewGuardedContent(articleRepo, registry)
	usage := usecases.NewGuardedUsage(usageRepo, registry)
	reasoning := usecases.NewGuardedReasoning(
		infrastructure.NewReasoningClient(cfg.ReasoningBaseURL, cfg.ReasoningAPIKey, cfg.ReasoningModel), registry)

	states := infrastructure.NewMemoryStateStore(time.Minute)
	locker := infrastructure.NewKeyedLocker(cfg.LockWait)
	limiter := infrastructure.NewMessageRateLimiter(1, 3)
	defer limiter.Close()

	publisher := infrastructure.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
	defer publisher.Close()

	// Messaging gateway
	var (
		gateway   interfaces.Gateway
		waManager *infrastructure.WhatsAppManager
		telegram  *infrastructure.TelegramGateway
	)
	switch cfg.GatewayMode {
	case "http":
		gw, err := infrastructure.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayToken)
		if err != nil {
			return err
		}
		gateway = gw
	case "telegram":
		tg, err := infrastructure.NewTelegramGateway(cfg.TelegramToken)
		if err != nil {
			return err
		}
		gateway, telegram = tg, tg
	default:
		waManager = infrastructure.NewWhatsAppManager(cfg.DevicesDir)
		gateway = waManager
	}

	dispatcher := usecases.NewDispatcher(gateway, registry, states, limiter, usage)
	wib := time.FixedZone("WIB", 7*3600)

	// Customer engine
	tools := usecases.NewToolRegistry()
	if err := usecases.RegisterCustomerTools(tools, usecases.CustomerToolDeps{
		Inventory:  inventory,
		Scheduling: scheduling,
		Media:      infrastructure.NewS3MediaResolver(cfg.S3),
		Outbound:   dispatcher,
		Financing:  usecases.NewFinancingCalculator(),
		TradeIn:    usecases.NewTradeInAppraiser(inventory),
		Location:   wib,
	}); err != nil {
		return err
	}
	contextBuilder := usecases.NewContextBuilder(persistence, tools)
	engine := usecases.NewCustomerEngine(usecases.CustomerEngineDeps{
		Reasoning: reasoning,
		Tools:     tools,
		Context:   contextBuilder,
		Patterns:  patterns,
		Templates: usecases.NewTemplateResponder(inventory),
	})

	// Operator commands
	operator := usecases.NewOperatorMachine(states, locker, cfg.StateTTL)
	usecases.RegisterOperatorCommands(operator, usecases.OperatorDeps{
		Inventory:  inventory,
		Scheduling: scheduling,
		Content:    content,
		Reasoning:  reasoning,
		Location:   wib,
	})

	orchestrator := usecases.NewOrchestrator(usecases.OrchestratorDeps{
		Persistence: persistence,
		Operator:    operator,
		Engine:      engine,
		Context:     contextBuilder,
		Outbound:    dispatcher,
		Claims:      states,
		Publisher:   publisher,
		Usage:       usage,
		Registry:    registry,
	})

	// Admin surface
	authUsecase := usecases.NewAuthUsecase(userRepo, cfg.JWTSecret)
	if err := authUsecase.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure admin user")
	}
	adminUsecase := usecases.NewAdminUsecase(tenantManager, tenantStore.TenantRepository, inventory, inventoryRepo, usageRepo)
	adminUsecase.OnTenantChanged = persistence.InvalidateTenant

	// Direct ingress paths share the webhook normalizer
	normalizer := usecases.NewNormalizer()
	ingest := func(tenantID string, payload map[string]any) {
		msg, err := normalizer.NormalizePayload(payload)
		if err != nil {
			log.Debug().Err(err).Str("tenant", tenantID).Msg("Ignoring inbound event")
			return
		}
		ack := orchestrator.HandleInbound(context.Background(), tenantID, msg)
		log.Debug().Str("tenant", tenantID).Str("status", ack.Status).Msg("Inbound event handled")
	}

	if waManager != nil {
		waManager.HandlerFactory = func(tenantID string) func(interface{}) {
			return func(evt interface{}) {
				if v, ok := evt.(*events.Message); ok {
					if payload := infrastructure.EventPayload(v); payload != nil {
						go ingest(tenantID, payload)
					}
				}
			}
		}
		restored := waManager.RestoreSessions(ctx)
		log.Info().Int("sessions", restored).Msg("WhatsApp sessions restored")
		defer waManager.DisconnectAll()
	}
	if telegram != nil {
		go telegram.Listen(ctx, func(payload map[string]any) {
			ingest(cfg.TelegramTenant, payload)
		})
	}

	// Housekeeping
	scheduler := infrastructure.NewScheduler()
	if err := scheduler.Every("@every 1m", "sweep_states", 10*time.Second, func(context.Context) error {
		if n := states.SweepExpired(); n > 0 {
			log.Debug().Int("expired", n).Msg("Expired conversation states swept")
		}
		return nil
	}); err != nil {
		return err
	}
	if err := scheduler.Every("55 23 * * *", "daily_usage", time.Minute, func(ctx context.Context) error {
		tenants, sent, received, err := usageRepo.DailyTotals(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("tenants", tenants).Int("sent", sent).Int("received", received).Msg("Daily message totals")
		return nil
	}); err != nil {
		return err
	}
	scheduler.Start()

	// HTTP server
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.SetupRoutes(r, api.RouterDeps{
		Webhook:       orchestrator,
		Auth:          authUsecase,
		Admin:         adminUsecase,
		Registry:      registry,
		WhatsApp:      waManager,
		Middleware:    api.NewMiddleware(cfg.JWTSecret),
		WebhookSecret: cfg.WebhookSecret,
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("gateway", cfg.GatewayMode).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-serveErr:
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	scheduler.Stop(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Tracer shutdown")
	}
	return nil
}
