package workflow

import (
	"strings"
	"testing"

	"github.com/propfolio/recon_backend/models"
	"github.com/shopspring/decimal"
)

func TestSummarizeMissingDocuments(t *testing.T) {
	d := &Diagnosis{
		MissingDocs: []models.DocumentType{models.DocumentTypeMortgageStatement, models.DocumentTypeRentRoll},
	}
	got := summarize(d)
	if !strings.Contains(got, "2 counterpart document(s) missing") {
		t.Errorf("unexpected summary: %q", got)
	}
}

func TestSummarizeBelowFloor(t *testing.T) {
	d := &Diagnosis{
		NearMisses: []NearMiss{
			{Strategy: models.MatchStrategyFuzzy, TargetName: "Sundry Income", Confidence: 0.45,
				AmountDifference: decimal.NewFromInt(300)},
		},
	}
	got := summarize(d)
	if !strings.Contains(got, "Sundry Income") || !strings.Contains(got, "below") {
		t.Errorf("below-floor candidate should be named: %q", got)
	}
}

func TestSummarizeConsumedCandidate(t *testing.T) {
	d := &Diagnosis{
		NearMisses: []NearMiss{
			{Strategy: models.MatchStrategyFuzzy, TargetName: "Prepaid Insurance", Confidence: 0.55},
			{Strategy: models.MatchStrategyExact, TargetName: "Net Income", Confidence: 0.99},
		},
	}
	got := summarize(d)
	// The strongest miss wins the narrative, regardless of strategy order.
	if !strings.Contains(got, "Net Income") || !strings.Contains(got, "consumed") {
		t.Errorf("unexpected summary: %q", got)
	}
}

func TestSummarizeNoCandidates(t *testing.T) {
	if got := summarize(&Diagnosis{}); !strings.Contains(got, "no strategy") {
		t.Errorf("unexpected summary: %q", got)
	}
}
