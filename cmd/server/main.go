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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/api"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/deferred"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/dispatcher"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/events"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/fleet"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/reconcile"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/resourcecache"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr           string
	dbDriver           string
	dbDSN              string
	secretKey          string
	logLevel           string
	workerScheme       string
	workerPort         int
	dispatchCredential string
	deferredDebounce   time.Duration
	sslSweepInterval   time.Duration
	sslThreshold       time.Duration
	resourceCapacity   int
	resourcePurgeTick  time.Duration
	resourceMaxAge     time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "sentry-server",
		Short: "Website monitoring control plane server",
		Long: `sentry-server is the control plane for a distributed website
monitoring fleet: it stores monitor configuration, dispatches worker
commands, processes worker event reports, and serves the REST API
consumed by customer-facing tooling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("SENTRY_HTTP_ADDR", ":8080"), "HTTP API listen address")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("SENTRY_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("SENTRY_DB_DSN", "./sentry.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.secretKey, "secret-key", envOrDefault("SENTRY_SECRET_KEY", ""), "Master secret key for encrypting credentials at rest (required)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("SENTRY_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.workerScheme, "worker-scheme", envOrDefault("SENTRY_WORKER_SCHEME", "https"), "URL scheme used to reach worker processes")
	root.PersistentFlags().IntVar(&cfg.workerPort, "worker-port", envOrDefaultInt("SENTRY_WORKER_PORT", 0), "Port appended to a worker's identifier (0 = none)")
	root.PersistentFlags().StringVar(&cfg.dispatchCredential, "dispatch-credential", envOrDefault("SENTRY_DISPATCH_CREDENTIAL", ""), "Default HMAC credential signing outbound worker requests")
	root.PersistentFlags().DurationVar(&cfg.deferredDebounce, "deferred-debounce", envOrDefaultDuration("SENTRY_DEFERRED_DEBOUNCE", 10*time.Second), "Debounce delay before an activate/deactivate reaches the fleet")
	root.PersistentFlags().DurationVar(&cfg.sslSweepInterval, "ssl-sweep-interval", envOrDefaultDuration("SENTRY_SSL_SWEEP_INTERVAL", 2*time.Second), "SSL expiration sweeper tick period")
	root.PersistentFlags().DurationVar(&cfg.sslThreshold, "ssl-threshold", envOrDefaultDuration("SENTRY_SSL_THRESHOLD", 72*time.Hour), "SSL expiration horizon considered \"expiring soon\"")
	root.PersistentFlags().IntVar(&cfg.resourceCapacity, "resource-cache-capacity", envOrDefaultInt("SENTRY_RESOURCE_CACHE_CAPACITY", 4096), "Number of customer entries held in the Resource Cache")
	root.PersistentFlags().DurationVar(&cfg.resourcePurgeTick, "resource-purge-interval", envOrDefaultDuration("SENTRY_RESOURCE_PURGE_INTERVAL", 24*time.Hour), "Resource purge daemon tick period")
	root.PersistentFlags().DurationVar(&cfg.resourceMaxAge, "resource-max-age", envOrDefaultDuration("SENTRY_RESOURCE_MAX_AGE", 0), "Maximum resource sample age before purge (0 disables purging)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sentry-server %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.secretKey == "" {
		return fmt.Errorf("secret key is required — set --secret-key or SENTRY_SECRET_KEY")
	}

	logger.Info("starting sentry server",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_driver", cfg.dbDriver),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	// Dispatcher credentials are stored encrypted at rest; InitEncryption
	// must run before opening the database so EncryptedString fields can
	// transparently encrypt/decrypt on read/write.
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(cfg.secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// --- 2. Database ---
	gormDB, err := db.New(db.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	st := store.New(gormDB, logger)

	// --- 3. Outbound Dispatcher ---
	// The shared default credential lives in the dispatcher_credential table,
	// encrypted at rest. On first run (empty table) the --dispatch-credential
	// flag seeds it; afterward the stored row wins even if the flag changes,
	// so rotating the credential means writing the row, not the flag.
	dispatchCredential, err := st.Credentials.Get(ctx, "startup", store.DefaultDispatcherCredentialKey)
	if err != nil {
		return fmt.Errorf("failed to load dispatcher credential: %w", err)
	}
	if dispatchCredential == "" && cfg.dispatchCredential != "" {
		if err := st.Credentials.Set(ctx, "startup", store.DefaultDispatcherCredentialKey, cfg.dispatchCredential); err != nil {
			return fmt.Errorf("failed to seed dispatcher credential: %w", err)
		}
		dispatchCredential = cfg.dispatchCredential
	}

	dispatch := dispatcher.New(dispatcher.Config{
		Scheme:            cfg.workerScheme,
		Port:              cfg.workerPort,
		DefaultCredential: dispatchCredential,
	}, logger)
	defer dispatch.Close()

	// --- 4. Fleet Administrator ---
	fl := fleet.New(st, dispatch, logger)

	// --- 5. Deferred Scheduler ---
	deferredSched := deferred.New(cfg.deferredDebounce, fl, logger)
	go deferredSched.Run(ctx)

	// --- 6. Event Processor ---
	eventProc := events.New(events.Config{
		SweepInterval: cfg.sslSweepInterval,
		SSLThreshold:  cfg.sslThreshold,
	}, st, dispatch, logger)
	if err := eventProc.StartSweeper(ctx, "ssl-sweep"); err != nil {
		return fmt.Errorf("failed to start SSL sweeper: %w", err)
	}

	// --- 7. Resource Cache & Purger ---
	resCache, err := resourcecache.New(resourcecache.Config{
		Capacity:      cfg.resourceCapacity,
		PurgeInterval: cfg.resourcePurgeTick,
		MaxAge:        cfg.resourceMaxAge,
	}, st, logger)
	if err != nil {
		return fmt.Errorf("failed to create resource cache: %w", err)
	}
	if err := resCache.StartPurger(ctx, "resource-purge"); err != nil {
		return fmt.Errorf("failed to start resource purger: %w", err)
	}

	// --- 8. Monitor Reconciler ---
	reconciler := reconcile.New(st, deferredSched, logger)

	// --- 9. HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		Store:      st,
		Reconciler: reconciler,
		Events:     eventProc,
		Resources:  resCache,
		Logger:     logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down sentry server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("sentry server stopped")
	return nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultVal
	}
	return n
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
