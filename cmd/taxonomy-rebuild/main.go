// taxonomy-rebuild regenerates the derived account taxonomy (discovered
// codes, shape patterns, seed synonyms) for one property, or for every
// property with line-item history when PROPERTY_ID is unset.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	PROPERTY_ID=prop-001 go run ./cmd/taxonomy-rebuild
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/utils"
	"github.com/propfolio/recon_backend/workflow"
)

func main() {
	ctx := context.Background()
	logger := config.GetLogger()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	var propertyIds []string
	if propertyId := os.Getenv("PROPERTY_ID"); propertyId != "" {
		propertyIds = []string{propertyId}
	} else {
		err := db.WithContext(ctx).Model(&models.LineItem{}).
			Distinct("property_id").Order("property_id").
			Pluck("property_id", &propertyIds).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list properties: %v\n", err)
			os.Exit(1)
		}
	}

	for _, propertyId := range propertyIds {
		err := workflow.RebuildAccountTaxonomy(ctx, logger, propertyId)
		if err == utils.ErrorNoDataAvailable {
			fmt.Printf("skipped %q: no line items\n", propertyId)
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild failed for %q: %v\n", propertyId, err)
			os.Exit(1)
		}
		codes, err := models.GetDiscoveredAccountCodes(ctx, propertyId, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuilt %q but listing codes failed: %v\n", propertyId, err)
			os.Exit(1)
		}
		fmt.Printf("rebuilt taxonomy for %q: %d account codes\n", propertyId, len(codes))
	}
}
