package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	// healthHistoryWindow: how many trailing period scores feed the
	// volatility component.
	healthHistoryWindow = 6
	healthHistoryTTL    = 30 * 24 * time.Hour
)

// Per-tier penalty weights for open discrepancies: an escalated item hurts
// the score far more than one already auto-suggested.
var tierPenaltyWeight = map[int]float64{
	models.TierAutoClose:   0.0,
	models.TierAutoSuggest: 0.25,
	models.TierRoute:       0.5,
	models.TierEscalate:    1.0,
}

// HealthScore is the 0-100 close-readiness score for one property/period,
// with the component breakdown a reviewer needs to act on it.
type HealthScore struct {
	PropertyId       string   `json:"property_id"`
	PeriodId         string   `json:"period_id"`
	SessionId        string   `json:"session_id"`
	Persona          string   `json:"persona"`
	Score            float64  `json:"score"`
	ApprovalScore    float64  `json:"approval_score"`
	ConfidenceScore  float64  `json:"confidence_score"`
	DiscrepancyScore float64  `json:"discrepancy_score"`
	TrendDelta       float64  `json:"trend_delta"`
	Volatility       float64  `json:"volatility"`
	BlockedClose     bool     `json:"blocked_close"`
	BlockedReasons   []string `json:"blocked_reasons,omitempty"`
}

// healthInputs is the session reduced to the counts the scoring math needs,
// so the formula is testable without storage.
type healthInputs struct {
	Approved      int
	Rejected      int
	Pending       int
	AutoClosed    int
	SumConfidence float64
	TotalRows     int
	// Weighted open-discrepancy penalty, already tier-weighted.
	DiscrepancyPenalty float64
	DiscrepancyBasis   int
	BlockedReasons     []string
	PriorScore         *float64
	History            []float64
}

// scoreFromInputs runs the weighted formula and clamps to [0,100]. A blocked
// close caps the score at the configured ceiling no matter how clean the
// components look.
func scoreFromInputs(in healthInputs, cfg models.HealthScoreConfig) HealthScore {
	hs := HealthScore{Persona: cfg.Persona}

	decided := in.Approved + in.Rejected + in.Pending
	if decided > 0 {
		hs.ApprovalScore = float64(in.Approved) / float64(decided)
	} else {
		hs.ApprovalScore = 1.0
	}
	if in.TotalRows > 0 {
		hs.ConfidenceScore = in.SumConfidence / float64(in.TotalRows)
	} else {
		hs.ConfidenceScore = 1.0
	}
	if in.DiscrepancyBasis > 0 {
		hs.DiscrepancyScore = 1.0 - in.DiscrepancyPenalty/float64(in.DiscrepancyBasis)
	} else {
		hs.DiscrepancyScore = 1.0
	}
	if hs.DiscrepancyScore < 0 {
		hs.DiscrepancyScore = 0
	}

	weightSum := cfg.ApprovalWeight + cfg.ConfidenceWeight + cfg.DiscrepancyWeight
	if weightSum <= 0 {
		weightSum = 1
	}
	base := (cfg.ApprovalWeight*hs.ApprovalScore +
		cfg.ConfidenceWeight*hs.ConfidenceScore +
		cfg.DiscrepancyWeight*hs.DiscrepancyScore) / weightSum
	score := base * 100

	if in.PriorScore != nil {
		hs.TrendDelta = score - *in.PriorScore
		score += cfg.TrendWeight * hs.TrendDelta
	}
	if len(in.History) >= 2 {
		if sd, err := stats.StandardDeviation(in.History); err == nil {
			hs.Volatility = sd
			score -= cfg.VolatilityWeight * sd
		}
	}

	if len(in.BlockedReasons) > 0 {
		hs.BlockedClose = true
		hs.BlockedReasons = in.BlockedReasons
		if score > cfg.BlockedScoreCeiling {
			score = cfg.BlockedScoreCeiling
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	hs.Score = score
	return hs
}

// ComputeHealthScore scores the latest completed session for a
// property/period under the persona's weighting. Returns
// ErrorNoDataAvailable when no completed session exists.
func ComputeHealthScore(ctx context.Context, logger *logrus.Logger, propertyId, periodId, persona string) (*HealthScore, error) {
	session, err := models.GetLatestCompletedSession(ctx, propertyId, periodId)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, utils.ErrorNoDataAvailable
	}

	cfg, err := models.GetHealthScoreConfig(ctx, persona)
	if err != nil {
		return nil, err
	}
	matches, err := models.GetMatchesBySession(ctx, session.ID, models.MatchFilters{})
	if err != nil {
		return nil, err
	}

	in := reduceMatches(matches, cfg)

	if prior, history := loadScoreHistory(ctx, logger, propertyId, periodId, persona); prior != nil || len(history) > 0 {
		in.PriorScore = prior
		in.History = history
	}

	hs := scoreFromInputs(in, cfg)
	hs.PropertyId = propertyId
	hs.PeriodId = periodId
	hs.SessionId = session.ID

	storeScoreHistory(logger, propertyId, periodId, persona, hs.Score)
	return &hs, nil
}

// reduceMatches folds session rows into scoring inputs and evaluates the
// persona's blocked-close rules.
func reduceMatches(matches []*models.ForensicMatch, cfg models.HealthScoreConfig) healthInputs {
	var in healthInputs
	unresolvedCritical := 0
	materialDiscrepancies := 0

	for _, m := range matches {
		in.TotalRows++
		in.SumConfidence += m.ConfidenceScore
		switch m.Status {
		case models.MatchStatusApproved:
			in.Approved++
		case models.MatchStatusRejected:
			in.Rejected++
		case models.MatchStatusAutoClosed:
			in.AutoClosed++
		default:
			in.Pending++
		}

		open := m.Status == models.MatchStatusPending
		if open && (m.IsDiscrepancy() || m.IsMaterial) {
			in.DiscrepancyPenalty += tierPenaltyWeight[m.Tier]
		}
		if open && m.Tier == models.TierEscalate {
			unresolvedCritical++
		}
		if open && m.IsDiscrepancy() && m.IsMaterial {
			materialDiscrepancies++
		}
	}
	in.DiscrepancyBasis = in.TotalRows

	for _, rule := range cfg.ParseBlockedCloseRules() {
		switch rule.Kind {
		case "unresolved_critical":
			if unresolvedCritical > 0 {
				in.BlockedReasons = append(in.BlockedReasons,
					fmt.Sprintf("%d unresolved escalated items", unresolvedCritical))
			}
		case "material_discrepancy":
			if materialDiscrepancies > 0 {
				in.BlockedReasons = append(in.BlockedReasons,
					fmt.Sprintf("%d open material discrepancies", materialDiscrepancies))
			}
		}
	}
	// A config may list the same kind more than once; one reason per kind.
	in.BlockedReasons = utils.UniqueSlice(in.BlockedReasons)
	return in
}

type scoreHistoryEntry struct {
	PeriodId string  `json:"period_id"`
	Score    float64 `json:"score"`
}

func scoreHistoryKey(propertyId, persona string) string {
	return fmt.Sprintf("recon:health:%s:%s", propertyId, persona)
}

// loadScoreHistory pulls the cached trailing scores. The prior-period score
// (trend baseline) is the newest entry for a different period. Cache misses
// degrade the trend and volatility terms to zero rather than failing.
func loadScoreHistory(ctx context.Context, logger *logrus.Logger, propertyId, periodId, persona string) (*float64, []float64) {
	key := scoreHistoryKey(propertyId, persona)
	var entries []scoreHistoryEntry
	found, err := config.GetRedisObject(key, &entries)
	if err != nil {
		// A corrupt cache entry would fail every read; drop it and rebuild.
		config.LogError(logger, "healthScore", "loadScoreHistory", "reading history", propertyId, err)
		_ = config.RemoveRedisKey(key)
		return nil, nil
	}
	if !found {
		return nil, nil
	}

	var prior *float64
	history := make([]float64, 0, len(entries))
	for _, e := range entries {
		history = append(history, e.Score)
		if e.PeriodId != periodId {
			score := e.Score
			prior = &score
		}
	}
	return prior, history
}

// storeScoreHistory appends this score and trims to the window. One entry per
// period: recomputing a period replaces its entry.
func storeScoreHistory(logger *logrus.Logger, propertyId, periodId, persona string, score float64) {
	key := scoreHistoryKey(propertyId, persona)
	var entries []scoreHistoryEntry
	if _, err := config.GetRedisObject(key, &entries); err != nil {
		config.LogError(logger, "healthScore", "storeScoreHistory", "reading history", propertyId, err)
		_ = config.RemoveRedisKey(key)
		entries = nil
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.PeriodId != periodId {
			kept = append(kept, e)
		}
	}
	kept = append(kept, scoreHistoryEntry{PeriodId: periodId, Score: score})
	if len(kept) > healthHistoryWindow {
		kept = kept[len(kept)-healthHistoryWindow:]
	}
	if err := config.SetRedisObject(key, kept, healthHistoryTTL); err != nil {
		config.LogError(logger, "healthScore", "storeScoreHistory", "writing history", propertyId, err)
	}
}
