package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sleepTaxAPI/handlers"
	"sleepTaxAPI/internal/config"
	"sleepTaxAPI/internal/logger"
	"sleepTaxAPI/internal/metrics"
	"sleepTaxAPI/internal/notification"
	"sleepTaxAPI/internal/store"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/workers"
	"sleepTaxAPI/middleware"
	"sleepTaxAPI/services"

	_ "net/http/pprof"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg); err != nil {
		os.Exit(fail(log, err))
	}
}

// fail logs the error and flushes the logger. os.Exit skips deferred calls,
// so the flush has to happen here.
func fail(log *zap.Logger, err error) int {
	log.Sugar().Errorf("server stopped: %v", err)
	_ = log.Sync()
	return 1
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		zap.S().Info("Closing store...")
		db.Close()
	}()

	cal := calendar.New(cfg.Location())

	var profiles services.ProfileFetcher
	verifiers := []middleware.TokenVerifier{}
	if cfg.ClerkSecretKey != "" {
		clerk.SetKey(cfg.ClerkSecretKey)
		profiles = services.ClerkProfileFetcher{}
		verifiers = append(verifiers, middleware.ClerkVerifier)
		zap.S().Info("Clerk initialized successfully")
	}
	if cfg.DevJWTSecret != "" {
		verifiers = append(verifiers, middleware.HS256Verifier(cfg.DevJWTSecret))
		zap.S().Warn("Development token verifier enabled")
	}

	dispatcher := services.NewNotificationDispatcher(4)
	defer dispatcher.Stop()

	fcmService, err := notification.NewFCMService(ctx, cfg.FCMServiceAccount, cfg.FCMCredentialsFile)
	if err != nil {
		zap.S().Warnf("Could not initialize FCM, push notifications disabled: %v", err)
	} else {
		dispatcher.SetPushProvider(fcmService)
		zap.S().Info("FCM Push Provider initialized successfully")
	}

	users := services.NewUserService(db, cal, profiles)
	groups := services.NewGroupService(db, cal, cfg.InviteBaseURL)
	boards := services.NewLeaderboardService(db, groups, cal, cfg.MinStreakHours)
	notifications := services.NewNotificationService(db, dispatcher, cal)
	weeks := services.NewWeekService(db, groups, boards, cal, notifications)

	webhookHandler, err := handlers.NewWebhookHandler(users, cfg.ClerkWebhookSecret)
	if err != nil {
		return err
	}
	if cfg.ClerkWebhookSecret == "" {
		zap.S().Warn("CLERK_WEBHOOK_SECRET not set, webhook signatures are not verified")
	}

	h := handlers.NewHandlers(handlers.Services{
		Users:         users,
		Groups:        groups,
		Weeks:         weeks,
		Leaderboards:  boards,
		Sleep:         services.NewSleepService(db, groups, cal, cfg.MinStreakHours),
		Pledges:       services.NewPledgeService(db, groups, cal),
		Notifications: notifications,
	}, webhookHandler)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	middleware.InitPrometheus(reg)
	metrics.Register(reg)

	limiter := middleware.NewRateLimiter(5, 30)
	if err := limiter.TrustProxies(cfg.TrustedProxies); err != nil {
		return err
	}
	go limiter.CleanupVisitors(ctx)

	r := mux.NewRouter()
	standardRouter := r.PathPrefix("/").Subrouter()
	standardRouter.Use(limiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.PprofSecret)(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "sleeptax-api"}`))
	}).Methods("GET")

	h.Register(standardRouter, middleware.AuthMiddleware(middleware.ChainVerifiers(verifiers...)))

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	repairDone := workers.StartRepairWorker(ctx, weeks, cfg.RepairInterval)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zap.S().Infof("Server starting on port %s (store: %s, timezone: %s)", cfg.Port, cfg.StoreDriver, cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	zap.S().Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	stop()
	<-repairDone
	zap.S().Info("Server exited")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pg, err := store.NewPostgresStore(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(connectCtx); err != nil {
			pg.Close()
			return nil, err
		}
		zap.S().Info("Successfully connected to Postgres")
		return pg, nil
	case "sqlite":
		lite, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		zap.S().Infof("Using SQLite store at %s", cfg.SQLitePath)
		return lite, nil
	default:
		zap.S().Warn("Using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	}
}
