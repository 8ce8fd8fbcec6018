package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/spendsync/src/api"
	"github.com/username/spendsync/src/config"
	"github.com/username/spendsync/src/database"
	"github.com/username/spendsync/src/handlers"
	"github.com/username/spendsync/src/logger"
	"github.com/username/spendsync/src/secrets"
	"github.com/username/spendsync/src/services"
	"github.com/username/spendsync/src/session"
	syncengine "github.com/username/spendsync/src/sync"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("SpendSync agent starting...", "backend", config.Cfg.APIBaseURL)

	db, err := database.Open(config.Cfg.DatabasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := database.RunMigrations(db, config.Cfg.MigrationsPath, config.Cfg.DatabasePath); err != nil {
		stdlog.Fatalf("failed to run migrations: %v", err)
	}

	secretStore, err := secrets.NewFileStore(config.Cfg.SecretsDir)
	if err != nil {
		stdlog.Fatalf("failed to open secret store: %v", err)
	}

	client := api.NewClient(config.Cfg.APIBaseURL, config.Cfg.HTTPTimeout)
	// Biometric challenges belong to the platform shell; headless runs
	// fall back to PIN unlock only.
	sessionManager := session.NewManager(client, secretStore, nil, config.Cfg.RefreshLeeway)
	logger.L.Info("Session restored", "state", sessionManager.State().String())

	expenseAPI := api.NewExpenseAPI(sessionManager)

	importQueue, err := syncengine.NewImportQueue(db, expenseAPI, config.Cfg.PendingUploadsDir,
		config.Cfg.DrainMinInterval, config.Cfg.ImportMaxBackoff)
	if err != nil {
		stdlog.Fatalf("failed to init import queue: %v", err)
	}

	engine := syncengine.NewEngine(db, expenseAPI, importQueue)

	analyticsCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	analyticsService := services.NewAnalyticsService(expenseAPI, analyticsCache)
	engine.Subscribe(func(ev syncengine.Event) {
		if ev.Type == syncengine.EventRecordsChanged {
			analyticsService.InvalidateCache()
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := syncengine.NewOnlineNotifier()
	engine.BindConnectivity(notifier)
	go syncengine.RunProbe(ctx, notifier, config.Cfg.APIBaseURL, 15*time.Second)

	engine.Start(ctx)
	engine.TriggerSync()

	authHandler := handlers.NewAuthHandler(sessionManager)
	recordHandler := handlers.NewRecordHandler(engine)
	importHandler := handlers.NewImportHandler(engine)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(rateLimitMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.LoginHandler)
		r.Post("/register", authHandler.RegisterHandler)
		r.Post("/logout", authHandler.LogoutHandler)
		r.Get("/state", authHandler.StateHandler)
		r.Post("/pin", authHandler.SavePinHandler)
		r.Post("/unlock/pin", authHandler.UnlockPinHandler)
		r.Post("/unlock/biometric", authHandler.UnlockBiometricHandler)
		r.Post("/lock", authHandler.LockHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(handlers.RequireUnlocked(sessionManager))

		r.Get("/records", recordHandler.ListRecordsHandler)
		r.Post("/records", recordHandler.AddRecordHandler)
		r.Put("/records/{id}", recordHandler.UpdateRecordHandler)
		r.Delete("/records/{id}", recordHandler.DeleteRecordHandler)
		r.Delete("/records", recordHandler.DeleteAllRecordsHandler)
		r.Post("/records/sync", recordHandler.TriggerSyncHandler)

		r.Post("/imports", importHandler.QueueImportHandler)
		r.Get("/imports", importHandler.ListImportsHandler)

		r.Get("/analytics/monthly/{year}", analyticsHandler.MonthlyTotalsHandler)
	})

	server := &http.Server{
		Addr:         config.Cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.L.Info("Agent API listening", "address", config.Cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start agent API: %v", err)
	}
}
