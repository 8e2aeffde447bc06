// Package main implements a one-shot seed command that provisions a new
// customer — row plus capability flags — directly in the control plane's
// database. There is no REST endpoint for customer provisioning (spec §6
// only covers host/scheme, monitor, event, resource, and multiple); account
// creation is assumed to happen in an external billing/provisioning system,
// so this tool stands in for that system during local development and
// testing.
//
// Usage:
//
//	go run ./cmd/seed \
//	  --polling-interval 60 \
//	  --supports-post \
//	  --supports-keyword-check
//
// Environment variables:
//
//	SENTRY_DB_DSN      SQLite file path (default: ./sentry.db); the tool always opens SQLite
//	SENTRY_SECRET_KEY  Master encryption key — must match the value used by the server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	pollingInterval := flag.Uint("polling-interval", 60, "Polling interval in seconds")
	supportsPost := flag.Bool("supports-post", false, "Grant POST-method monitor capability")
	supportsContentCheck := flag.Bool("supports-content-check", false, "Grant content-match capability")
	supportsKeywordCheck := flag.Bool("supports-keyword-check", false, "Grant keyword-check capability")
	supportsPing := flag.Bool("supports-ping", true, "Grant ping-based polling capability")
	supportsSSL := flag.Bool("supports-ssl", true, "Grant SSL expiration checking capability")
	supportsLatency := flag.Bool("supports-latency", false, "Grant latency-tracking capability")
	supportsMaintenance := flag.Bool("supports-maintenance", false, "Grant maintenance-mode capability")
	supportsMultiRegion := flag.Bool("supports-multi-region", false, "Grant multi-region assignment capability")
	flag.Parse()

	dsn := envOrDefault("SENTRY_DB_DSN", "./sentry.db")

	secretKey := os.Getenv("SENTRY_SECRET_KEY")
	if secretKey == "" {
		return fmt.Errorf(
			"SENTRY_SECRET_KEY is not set\n" +
				"  Set it to the same value used by the server, otherwise dispatcher\n" +
				"  credentials encrypted under a different key will be unreadable.",
		)
	}

	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	logger, _ := zap.NewDevelopment()

	database, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      dsn,
		Logger:   logger,
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	cust := &db.Customer{Active: true}
	if err := database.WithContext(context.Background()).Create(cust).Error; err != nil {
		return fmt.Errorf("create customer: %w", err)
	}

	caps := &db.CustomerCapabilities{
		CustomerID:              cust.ID,
		SupportsPost:            *supportsPost,
		SupportsContentCheck:    *supportsContentCheck,
		SupportsKeywordCheck:    *supportsKeywordCheck,
		SupportsPingCheck:       *supportsPing,
		SupportsSSLCheck:        *supportsSSL,
		SupportsLatencyTracking: *supportsLatency,
		SupportsMaintenanceMode: *supportsMaintenance,
		SupportsMultiRegion:     *supportsMultiRegion,
		PollingInterval:         uint32(*pollingInterval),
	}
	if err := database.WithContext(context.Background()).Create(caps).Error; err != nil {
		return fmt.Errorf("create customer capabilities: %w", err)
	}

	fmt.Printf("customer created\n")
	fmt.Printf("  id:               %d\n", cust.ID)
	fmt.Printf("  polling interval: %ds\n", caps.PollingInterval)

	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
