// learning-run executes one pattern learning pass (and optionally
// relationship discovery) outside the cron schedule. Useful after a large
// review session or a watermark reset.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	REDIS_ADDRESS=... RUN_DISCOVERY=1 go run ./cmd/learning-run
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/workflow"
)

func main() {
	ctx := context.Background()
	logger := config.GetLogger()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	consumed, err := workflow.RunPatternLearning(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pattern learning failed after %d decisions: %v\n", consumed, err)
		os.Exit(1)
	}
	fmt.Printf("pattern learning consumed %d decisions\n", consumed)

	if os.Getenv("RUN_DISCOVERY") == "" {
		return
	}
	var propertyIds []string
	err = db.WithContext(ctx).Model(&models.LineItem{}).
		Distinct("property_id").Order("property_id").
		Pluck("property_id", &propertyIds).Error
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list properties: %v\n", err)
		os.Exit(1)
	}
	for _, propertyId := range propertyIds {
		drafted, err := workflow.RunRelationshipDiscovery(ctx, logger, propertyId)
		if err != nil {
			fmt.Fprintf(os.Stderr, "discovery failed for %q: %v\n", propertyId, err)
			os.Exit(1)
		}
		fmt.Printf("discovery for %q drafted %d rule(s)\n", propertyId, drafted)
	}
}
