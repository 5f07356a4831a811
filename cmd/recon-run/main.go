// recon-run starts one reconciliation session for a property/period and
// prints the match summary plus the health score.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	PROPERTY_ID=prop-001 PERIOD_ID=2026-07 PERSONA=controller \
//	go run ./cmd/recon-run
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
	propertyId := os.Getenv("PROPERTY_ID")
	periodId := os.Getenv("PERIOD_ID")
	if propertyId == "" || periodId == "" {
		fmt.Fprintln(os.Stderr, "PROPERTY_ID and PERIOD_ID are required")
		os.Exit(1)
	}
	persona := os.Getenv("PERSONA")
	if persona == "" {
		persona = "controller"
	}

	ctx := context.Background()
	logger := config.GetLogger()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	sessionId, err := workflow.StartSession(ctx, logger, propertyId, periodId)
	switch err {
	case nil:
	case utils.ErrorNoDataAvailable:
		fmt.Fprintf(os.Stderr, "no line items for %s/%s\n", propertyId, periodId)
		os.Exit(2)
	case utils.ErrorSessionAlreadyRunning:
		fmt.Fprintf(os.Stderr, "a session is already running for %s/%s\n", propertyId, periodId)
		os.Exit(3)
	default:
		fmt.Fprintf(os.Stderr, "session failed: %v\n", err)
		os.Exit(1)
	}

	matches, err := workflow.GetMatches(ctx, sessionId, models.MatchFilters{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load matches: %v\n", err)
		os.Exit(1)
	}
	byTier := map[int]int{}
	discrepancies := 0
	for _, m := range matches {
		byTier[m.Tier]++
		if m.IsDiscrepancy() {
			discrepancies++
		}
	}
	fmt.Printf("session %s: %d rows (%d discrepancies)\n", sessionId, len(matches), discrepancies)
	for tier := models.TierAutoClose; tier <= models.TierEscalate; tier++ {
		fmt.Printf("  tier %d: %d\n", tier, byTier[tier])
	}

	score, err := workflow.ComputeHealthScore(ctx, logger, propertyId, periodId, persona)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to compute health score: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("health score (%s): %.1f\n", persona, score.Score)
	if score.BlockedClose {
		fmt.Printf("  close blocked: %v\n", score.BlockedReasons)
	}
}
