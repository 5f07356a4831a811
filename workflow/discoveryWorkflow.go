package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	// DiscoveryMinPeriods: an account pair must co-occur in at least this many
	// completed periods before a relationship is worth proposing.
	DiscoveryMinPeriods = 3
	// DiscoveryCorrelationThreshold: Pearson correlation across the shared
	// periods required to draft a rule.
	DiscoveryCorrelationThreshold = 0.95
)

// OperandSeries is one (document type, account code) amount series across
// completed periods, aligned by period index.
type OperandSeries struct {
	DocumentType models.DocumentType
	AccountCode  string
	Amounts      []float64
}

// RelationshipCandidate is a proposed cross-document equality discovered from
// period history, prior to human review.
type RelationshipCandidate struct {
	Source      OperandSeries
	Target      OperandSeries
	Correlation float64
	Periods     int
}

// ProposeRelationships finds cross-document operand pairs whose amounts move
// together across periods. Pure over already-aligned series; candidates come
// back in a stable order (correlation desc, then operand keys).
func ProposeRelationships(series []*OperandSeries, minPeriods int, threshold float64) []*RelationshipCandidate {
	var candidates []*RelationshipCandidate
	for i := 0; i < len(series); i++ {
		for j := i + 1; j < len(series); j++ {
			a, b := series[i], series[j]
			if a.DocumentType == b.DocumentType {
				continue
			}
			n := len(a.Amounts)
			if len(b.Amounts) < n {
				n = len(b.Amounts)
			}
			if n < minPeriods {
				continue
			}
			r, err := stats.Correlation(a.Amounts[:n], b.Amounts[:n])
			if err != nil || r < threshold {
				continue
			}
			candidates = append(candidates, &RelationshipCandidate{
				Source:      *a,
				Target:      *b,
				Correlation: r,
				Periods:     n,
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Correlation != candidates[j].Correlation {
			return candidates[i].Correlation > candidates[j].Correlation
		}
		return candidates[i].ruleName() < candidates[j].ruleName()
	})
	return candidates
}

func (c *RelationshipCandidate) ruleName() string {
	return fmt.Sprintf("discovered:%s.%s~%s.%s",
		c.Source.DocumentType, c.Source.AccountCode,
		c.Target.DocumentType, c.Target.AccountCode)
}

// RunRelationshipDiscovery mines a property's completed periods for account
// pairs that track each other and drafts inactive calculated rules for them.
// Drafts need a human to activate; re-running never duplicates a rule name.
// Returns the number of rules drafted.
func RunRelationshipDiscovery(ctx context.Context, logger *logrus.Logger, propertyId string) (int, error) {
	periods, err := models.ListCompletedPeriods(ctx, propertyId)
	if err != nil {
		return 0, err
	}
	if len(periods) < DiscoveryMinPeriods {
		logger.WithFields(logrus.Fields{
			"module":      "discoveryWorkflow",
			"property_id": propertyId,
			"periods":     len(periods),
		}).Info("not enough completed periods for discovery")
		return 0, nil
	}

	series, err := buildOperandSeries(ctx, propertyId, periods)
	if err != nil {
		return 0, err
	}
	candidates := ProposeRelationships(series, DiscoveryMinPeriods, DiscoveryCorrelationThreshold)

	db := config.GetDB()
	drafted := 0
	for _, cand := range candidates {
		name := cand.ruleName()
		exists, err := models.RuleExists(ctx, name)
		if err != nil {
			return drafted, err
		}
		if exists {
			continue
		}

		formula, err := json.Marshal(models.RuleFormula{
			Target: models.FormulaOperand{DocumentType: cand.Source.DocumentType, AccountCode: cand.Source.AccountCode},
			Terms:  []models.FormulaOperand{{DocumentType: cand.Target.DocumentType, AccountCode: cand.Target.AccountCode}},
		})
		if err != nil {
			return drafted, err
		}
		inactive := false
		rule := &models.CalculatedRule{
			Name:       name,
			Version:    1,
			Formula:    string(formula),
			IsActive:   &inactive,
			ProposedBy: "relationship_discovery",
			ExplanationTemplate: fmt.Sprintf(
				"{rule}: %s %s should equal %s %s; expected {expected}, found {actual} (difference {difference})",
				cand.Source.DocumentType, cand.Source.AccountCode,
				cand.Target.DocumentType, cand.Target.AccountCode),
		}
		if err := utils.ValidateStruct(rule); err != nil {
			return drafted, err
		}
		if err := db.WithContext(ctx).Create(rule).Error; err != nil {
			return drafted, err
		}
		drafted++

		logger.WithFields(logrus.Fields{
			"module":      "discoveryWorkflow",
			"property_id": propertyId,
			"rule":        name,
			"correlation": cand.Correlation,
			"periods":     cand.Periods,
		}).Info("drafted calculated rule candidate")
	}
	return drafted, nil
}

// buildOperandSeries loads the property's line items for the given periods
// and folds them into aligned per-operand amount series. Only operands
// present in every period survive: a gap breaks the alignment the
// correlation needs.
func buildOperandSeries(ctx context.Context, propertyId string, periods []string) ([]*OperandSeries, error) {
	db := config.GetDB()
	var items []*models.LineItem
	err := db.WithContext(ctx).Model(&models.LineItem{}).
		Where("property_id = ? AND period_id IN ?", propertyId, periods).
		Order("period_id, document_type, line_number, id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	type key struct {
		docType models.DocumentType
		code    string
	}
	periodIndex := make(map[string]int, len(periods))
	for i, p := range periods {
		periodIndex[p] = i
	}

	sums := map[key][]float64{}
	seen := map[key][]bool{}
	for _, item := range items {
		if item.AccountCode == "" {
			continue
		}
		idx, ok := periodIndex[item.PeriodId]
		if !ok {
			continue
		}
		k := key{item.DocumentType, item.AccountCode}
		if _, ok := sums[k]; !ok {
			sums[k] = make([]float64, len(periods))
			seen[k] = make([]bool, len(periods))
		}
		amount, _ := item.Amount.Float64()
		sums[k][idx] += amount
		seen[k][idx] = true
	}

	var series []*OperandSeries
	for k, amounts := range sums {
		complete := true
		for _, present := range seen[k] {
			if !present {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		series = append(series, &OperandSeries{
			DocumentType: k.docType,
			AccountCode:  k.code,
			Amounts:      amounts,
		})
	}
	sort.Slice(series, func(i, j int) bool {
		if series[i].DocumentType != series[j].DocumentType {
			return series[i].DocumentType < series[j].DocumentType
		}
		return series[i].AccountCode < series[j].AccountCode
	})
	return series, nil
}
