package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"villagegate/internal/access"
	"villagegate/internal/audit"
	"villagegate/internal/config"
	"villagegate/internal/controller"
	"villagegate/internal/events"
	"villagegate/internal/google"
	"villagegate/internal/metrics"
	"villagegate/internal/status"
	"villagegate/internal/store"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("GATE_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.Site.Timezone).Msg("invalid site timezone")
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Backup.Enabled {
		backupPath := cfg.Backup.Path
		if backupPath == "" {
			backupPath = "data/backups"
		}
		backupSvc := store.NewBackupService(cfg.Database.Path, store.BackupConfig{
			StoragePath:   backupPath,
			Interval:      cfg.BackupInterval(),
			RetentionDays: cfg.Backup.RetentionDays,
		}, logger)
		go backupSvc.Start(ctx)
	}

	var rdb *redis.Client
	var publisher controller.StatusPublisher
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		publisher = status.NewPublisher(rdb, cfg.Site.VillageID, cfg.StatusTTL(), logger)
	}

	bus := events.NewBus()
	accessSvc := access.NewService(cfg.Site.VillageID, db, bus, logger)

	ctrl := controller.New(controller.Config{
		VillageID:      cfg.Site.VillageID,
		Gates:          cfg.Site.Gates,
		Location:       loc,
		PollInterval:   cfg.PollInterval(),
		ActuationRate:  cfg.ActuationRate(),
		ActuationBurst: cfg.ActuationBurst(),
	}, db, accessSvc, bus, publisher, logger)

	if cfg.Audit.Enabled {
		var mirror audit.Mirror
		if cfg.Audit.SpreadsheetID != "" && cfg.Audit.CredentialsFile != "" {
			sheetsSvc, err := google.NewSheetsService(ctx, cfg.Audit.CredentialsFile, cfg.Audit.SpreadsheetID, logger)
			if err != nil {
				logger.Fatal().Err(err).Msg("create sheets service error")
			}
			mirror = sheetsSvc
		}

		exportPath := cfg.Audit.ExportPath
		if exportPath == "" {
			exportPath = "data"
		}
		if err := os.MkdirAll(exportPath, 0o755); err != nil {
			logger.Fatal().Err(err).Msg("create audit export dir error")
		}

		auditSvc := audit.NewService(audit.Config{
			VillageID:     cfg.Site.VillageID,
			ExportPath:    exportPath,
			ExportOnStart: cfg.Audit.ExportOnStart,
			Interval:      cfg.AuditInterval(),
			Retention:     cfg.AuditRetention(),
		}, db, audit.NewExcelizeWriter, mirror, logger)
		auditSvc.Start()
		defer auditSvc.Stop()
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().
		Str("village_id", cfg.Site.VillageID).
		Int("gates", len(cfg.Site.Gates)).
		Msg("gate service started")
	ctrl.Run(ctx)
}

func startHealthServer(ctx context.Context, port int, db *store.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
