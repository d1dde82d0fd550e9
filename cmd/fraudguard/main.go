package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/giftwell/fraudguard/internal/admin"
	"github.com/giftwell/fraudguard/internal/alert"
	"github.com/giftwell/fraudguard/internal/cluster"
	"github.com/giftwell/fraudguard/internal/config"
	"github.com/giftwell/fraudguard/internal/giftcard"
	"github.com/giftwell/fraudguard/internal/guard"
	"github.com/giftwell/fraudguard/internal/httpapi"
	"github.com/giftwell/fraudguard/internal/ratelimit"
	"github.com/giftwell/fraudguard/internal/replay"
	"github.com/giftwell/fraudguard/internal/store/postgres"
	redispkg "github.com/giftwell/fraudguard/internal/store/redis"
	"github.com/giftwell/fraudguard/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, "fraudguard", cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrationsDir := os.Getenv("MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "internal/store/postgres/migrations"
	}
	if err := db.RunMigrations(migrationsDir); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	fraudLogs := postgres.NewFraudLogRepo(db)
	clusters := postgres.NewClusterRepo(db)
	redeemedCodes := postgres.NewRedeemedCodeRepo(db)
	stats := postgres.NewStatsRepo(db)

	var sinks []alert.Sink
	if cfg.Alert.WebhookURL != "" {
		sinks = append(sinks, alert.NewWebhookSink(cfg.Alert.WebhookURL, cfg.Alert.WebhookCooldown))
	}
	var publisher *redispkg.Publisher
	if cfg.Redis.URL != "" {
		publisher, err = redispkg.NewPublisher(cfg.Redis.URL, logger)
		if err != nil {
			logger.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}
	broadcaster := alert.NewBroadcaster(logger, sinks...)

	replayGuard := replay.NewGuard(redeemedCodes, logger,
		replay.WithReservationTTL(cfg.Guard.ReservationTTL),
		replay.WithLookupTimeout(cfg.Guard.RedeemTimeout),
	)

	// The external gift-card store is out of process in production; the
	// in-memory redeemer keeps local runs self-contained.
	redeemer := giftcard.NewMemoryRedeemer()

	redemptionGuard := guard.New(
		ratelimit.NewMemoryStore(),
		replayGuard,
		redeemer,
		fraudLogs,
		broadcaster,
		guard.Policies{
			IPLimit:             cfg.Guard.IPLimit,
			IPWindow:            cfg.Guard.IPWindow,
			DeviceLimit:         cfg.Guard.DeviceLimit,
			DeviceWindow:        cfg.Guard.DeviceWindow,
			DeviceFailureLimit:  cfg.Guard.DeviceFailureLimit,
			DeviceFailureWindow: cfg.Guard.DeviceFailureWindow,
			MerchantLimit:       cfg.Guard.MerchantLimit,
			MerchantWindow:      cfg.Guard.MerchantWindow,
			RedeemTimeout:       cfg.Guard.RedeemTimeout,
		},
		logger,
	)

	engine := cluster.NewEngine(
		cluster.Config{
			Interval:        cfg.Cluster.Interval,
			LookBack:        cfg.Cluster.LookBack,
			MinThreatCount:  cfg.Cluster.MinThreatCount,
			GroupWindow:     cfg.Cluster.GroupWindow,
			VelocityCount:   cfg.Cluster.VelocityCount,
			VelocityWindow:  cfg.Cluster.VelocityWindow,
			UserAgentMinIPs: cfg.Cluster.UserAgentMinIPs,
		},
		fraudLogs,
		clusters,
		broadcaster,
		logger,
	)

	publicAPI := httpapi.NewServer(redemptionGuard, fraudLogs, broadcaster, db.DB, logger)
	publicAPI.SetAnalysisStatus(engine)
	adminAPI := admin.NewServer(fraudLogs, clusters, stats, engine, broadcaster, logger)

	adminLimiter := admin.NewRateLimitMiddleware(logger, cfg.Admin.RateLimitPerMin, cfg.Admin.RateBurst)
	defer adminLimiter.Stop()

	mux := http.NewServeMux()
	mux.Handle("/", publicAPI.Handler())
	mux.Handle("/admin/", adminLimiter.Wrap(admin.AuditMiddleware(logger, adminAPI.Handler())))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return engine.Start(gctx)
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fraudguard exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("fraudguard shut down gracefully")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
