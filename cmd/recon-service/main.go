// recon-service runs the background side of the reconciliation engine: the
// schema migration on startup, then the cron jobs for pattern learning,
// relationship discovery and taxonomy rebuilds.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	REDIS_ADDRESS=... go run ./cmd/recon-service
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/workflow"
)

func main() {
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	models.MigrateTable()

	scheduler := workflow.NewScheduler(logger)
	if err := scheduler.Start(); err != nil {
		config.LogError(logger, "main", "main", "starting scheduler", nil, err)
		os.Exit(1)
	}
	logger.Info("recon service started")

	<-sigCtx.Done()
	logger.Info("shutdown signal received, stopping scheduler")
	scheduler.Stop()
	logger.Info("recon service stopped")
}
