package models_test

import (
	"testing"

	"github.com/propfolio/recon_backend/models"
)

func TestSynonymConfidence(t *testing.T) {
	cases := []struct {
		approvals, rejections int
		want                  float64
	}{
		{0, 0, 0.5},
		// Thin evidence blends toward the neutral prior.
		{1, 0, 1.0/3 + 0.5*2/3},
		{0, 1, 0.5 * 2 / 3},
		{2, 0, 2.0/3 + 0.5/3},
		// At three observations the raw rate takes over.
		{3, 0, 1.0},
		{0, 3, 0.0},
		{6, 2, 0.75},
	}
	for _, tc := range cases {
		got := models.SynonymConfidence(tc.approvals, tc.rejections)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("SynonymConfidence(%d, %d) = %v, want %v", tc.approvals, tc.rejections, got, tc.want)
		}
	}
}

func TestSynonymRecompute(t *testing.T) {
	s := &models.AccountSynonym{ApprovalCount: 9, RejectionCount: 1}
	s.Recompute()
	if s.Confidence != 0.9 {
		t.Errorf("expected 0.9, got %v", s.Confidence)
	}
}

func TestLearnedPatternRecompute(t *testing.T) {
	active := true
	p := &models.LearnedMatchPattern{ApprovalCount: 4, RejectionCount: 8, IsActive: &active}
	p.Recompute()
	if p.SuccessRate < 0.33 || p.SuccessRate > 0.34 {
		t.Errorf("expected success rate ~1/3, got %v", p.SuccessRate)
	}
	if p.IsActive == nil || *p.IsActive {
		t.Error("12 observations below the floor must deactivate the pattern")
	}

	// Deactivation is one-way here; reactivation is a manual operation.
	thin := &models.LearnedMatchPattern{ApprovalCount: 1, RejectionCount: 3, IsActive: &active}
	thin.Recompute()
	if thin.IsActive == nil || !*thin.IsActive {
		t.Error("4 observations must not deactivate")
	}
}
