package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bank-reconciliation-backend/internal/config"
	handler "bank-reconciliation-backend/internal/handlers"
	"bank-reconciliation-backend/internal/listener"
	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/provider"
	"bank-reconciliation-backend/internal/repository"
	"bank-reconciliation-backend/internal/routes"
	"bank-reconciliation-backend/internal/scheduler"
	"bank-reconciliation-backend/internal/services/ingestion"
	"bank-reconciliation-backend/internal/services/matching"
	service "bank-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "json")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		log.Info().Msg("no .env file found, relying on system env")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	db, err := config.InitDB(cfg.Database)
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := models.AutoMigrate(db); err != nil {
			return err
		}
	}

	tenants := repository.NewTenantRepository(db)
	transactions := repository.NewBankTransactionRepository(db)
	payables := repository.NewPayableRepository(db)
	suggestions := repository.NewSuggestionRepository(db)
	syncRuns := repository.NewSyncRunRepository(db)
	matchRuns := repository.NewMatchRunRepository(db)

	registry := provider.NewRegistry()
	if cfg.Providers.Sandbox {
		sandbox := provider.NewStatic()
		if cfg.Providers.SandboxFile != "" {
			if sandbox, err = provider.LoadStaticFile(cfg.Providers.SandboxFile); err != nil {
				return err
			}
		} else {
			log.Warn().Msg("sandbox provider has no fixture file; sandbox connections will sync no accounts")
		}
		registry.Register("sandbox", sandbox)
	}
	if cfg.Providers.HTTP.BaseURL != "" {
		registry.Register(cfg.Providers.HTTP.Name, provider.NewHTTPClient(provider.HTTPConfig{
			BaseURL: cfg.Providers.HTTP.BaseURL,
			APIKey:  cfg.Providers.HTTP.APIKey,
			Timeout: cfg.Providers.HTTP.Timeout,
		}))
	}
	log.Info().Strs("providers", registry.Names()).Msg("bank providers registered")

	var notifier ingestion.Notifier
	if cfg.Listener.Enabled {
		notifier = listener.NewPGNotifier(db, cfg.Listener.Channel)
	}

	gateway := ingestion.NewGateway(syncRuns, tenants, repository.NewBankConnectionRepository(db),
		repository.NewBankAccountRepository(db), transactions, registry, notifier,
		ingestion.Config{
			Concurrency:         cfg.Ingestion.Concurrency,
			ProviderTimeout:     cfg.Ingestion.ProviderTimeout,
			Overlap:             cfg.Ingestion.Overlap,
			InitialLookbackDays: cfg.Ingestion.InitialLookbackDays,
		}, log)

	engine := matching.NewEngine(tenants, transactions, payables, suggestions, matchRuns,
		matching.Config{
			Policy: matching.Policy{
				AutoThreshold:   cfg.Matching.AutoThreshold,
				ReviewThreshold: cfg.Matching.ReviewThreshold,
			},
			Concurrency:         cfg.Matching.Concurrency,
			DefaultLookbackDays: cfg.Matching.LookbackDays,
		}, log)

	reconService := service.NewReconciliationService(payables, suggestions, log)

	poolCfg := scheduler.PoolConfig{
		Workers:    cfg.Scheduler.Workers,
		QueueSize:  cfg.Scheduler.QueueSize,
		JobDelay:   cfg.Scheduler.JobDelay,
		JobTimeout: cfg.Scheduler.JobTimeout,
	}

	var sched *scheduler.Scheduler
	var pool *scheduler.WorkerPool
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.NewScheduler(scheduler.Config{
			ScheduleTimes: cfg.Scheduler.Times,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			Pool:          poolCfg,
			JobProvider:   scheduler.ActiveTenantPipelines(tenants, gateway, engine),
		}, log)
		if err != nil {
			return err
		}
		sched.Start()
		pool = sched.Pool()
	} else {
		log.Info().Msg("scheduler is disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var syncListener *listener.SyncListener
	if cfg.Listener.Enabled {
		if pool == nil {
			pool = scheduler.NewWorkerPool(poolCfg, log)
			pool.Start()
		}
		syncListener = listener.NewSyncListener(cfg.Database.URL, cfg.Listener.Channel, pool, engine, log)
		syncListener.Start(ctx)
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(handler.RequestLogger(log))

	routes.RegisterRoutes(r, handler.NewReconciliationHandler(reconService, gateway, engine, syncRuns, matchRuns))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info().Msg("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down HTTP server")
	}

	if syncListener != nil {
		syncListener.Stop()
	}
	switch {
	case sched != nil:
		sched.Shutdown(shutdownTimeout)
	case pool != nil:
		pool.ShutdownWithTimeout(shutdownTimeout)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
	return nil
}
