package workflow

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SynonymSeedConfidence is the neutral starting confidence for synonyms
// proposed by the taxonomy builder before any reviewer evidence exists.
const SynonymSeedConfidence = 0.5

// synonymSeedOverlap: minimum token overlap between two account names before
// the builder proposes they share a canonical code.
const synonymSeedOverlap = 0.5

// RebuildAccountTaxonomy derives the account taxonomy for one property from
// its full line-item history: per-document-type code frequency tables, code
// shape patterns, and seed synonyms for names that plausibly refer to the
// same account. The derived tables (codes, patterns) are fully replaced in
// one transaction; synonym rows already shaped by reviewer feedback are left
// untouched. Rebuilding twice over the same history is a no-op.
func RebuildAccountTaxonomy(ctx context.Context, logger *logrus.Logger, propertyId string) error {
	db := config.GetDB()

	var items []*models.LineItem
	err := db.WithContext(ctx).Model(&models.LineItem{}).
		Where("property_id = ?", propertyId).
		Order("period_id, document_type, line_number, id").
		Find(&items).Error
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return utils.ErrorNoDataAvailable
	}

	codes := discoverCodes(propertyId, items)
	patterns := synthesizePatterns(propertyId, codes)
	seeds := seedSynonyms(items)

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("property_id = ?", propertyId).Delete(&models.DiscoveredAccountCode{}).Error; err != nil {
			return err
		}
		if err := tx.Where("property_id = ?", propertyId).Delete(&models.AccountCodePattern{}).Error; err != nil {
			return err
		}
		if len(codes) > 0 {
			if err := tx.Create(&codes).Error; err != nil {
				return err
			}
		}
		if len(patterns) > 0 {
			if err := tx.Create(&patterns).Error; err != nil {
				return err
			}
		}
		for _, seed := range seeds {
			var existing models.AccountSynonym
			err := tx.Where("source_name = ? AND canonical_code = ?", seed.SourceName, seed.CanonicalCode).
				First(&existing).Error
			if err == nil {
				continue // learned or previously seeded row wins
			}
			if err != gorm.ErrRecordNotFound {
				return err
			}
			if err := tx.Create(seed).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "taxonomyBuilder", "RebuildAccountTaxonomy", "persisting taxonomy", propertyId, err)
		return err
	}

	logger.WithFields(logrus.Fields{
		"module":      "taxonomyBuilder",
		"property_id": propertyId,
		"codes":       len(codes),
		"patterns":    len(patterns),
		"synonyms":    len(seeds),
	}).Info("account taxonomy rebuilt")
	return nil
}

// discoverCodes folds line items into per (document type, code) frequency
// rows with first/last seen periods. Items are already period-ordered, so
// first/last assignment is a straight fold.
func discoverCodes(propertyId string, items []*models.LineItem) []*models.DiscoveredAccountCode {
	type key struct {
		docType models.DocumentType
		code    string
	}
	byKey := map[key]*models.DiscoveredAccountCode{}
	for _, item := range items {
		if item.AccountCode == "" {
			continue
		}
		k := key{item.DocumentType, item.AccountCode}
		row, ok := byKey[k]
		if !ok {
			row = &models.DiscoveredAccountCode{
				PropertyId:      propertyId,
				DocumentType:    item.DocumentType,
				AccountCode:     item.AccountCode,
				FirstSeenPeriod: item.PeriodId,
			}
			byKey[k] = row
		}
		row.Frequency++
		row.LastSeenPeriod = item.PeriodId
	}

	rows := make([]*models.DiscoveredAccountCode, 0, len(byKey))
	for _, row := range byKey {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DocumentType != rows[j].DocumentType {
			return rows[i].DocumentType < rows[j].DocumentType
		}
		return rows[i].AccountCode < rows[j].AccountCode
	})
	return rows
}

// synthesizePatterns groups discovered codes by their character shape and
// emits one anchored regex per shape per document type.
func synthesizePatterns(propertyId string, codes []*models.DiscoveredAccountCode) []*models.AccountCodePattern {
	type key struct {
		docType models.DocumentType
		regex   string
	}
	byKey := map[key]int{}
	for _, code := range codes {
		k := key{code.DocumentType, codeShapeRegex(code.AccountCode)}
		byKey[k] += code.Frequency
	}

	rows := make([]*models.AccountCodePattern, 0, len(byKey))
	for k, freq := range byKey {
		rows = append(rows, &models.AccountCodePattern{
			PropertyId:   propertyId,
			DocumentType: k.docType,
			PatternRegex: k.regex,
			Frequency:    freq,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DocumentType != rows[j].DocumentType {
			return rows[i].DocumentType < rows[j].DocumentType
		}
		return rows[i].PatternRegex < rows[j].PatternRegex
	})
	return rows
}

// codeShapeRegex abstracts a concrete code into an anchored shape regex:
// digit runs become \d{n}, letter runs [A-Za-z]{n}, everything else is
// escaped literally. "4010-0001" -> ^\d{4}-\d{4}$.
func codeShapeRegex(code string) string {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(code)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsDigit(r):
			n := runLen(runes, i, unicode.IsDigit)
			fmt.Fprintf(&b, `\d{%d}`, n)
			i += n
		case unicode.IsLetter(r):
			n := runLen(runes, i, unicode.IsLetter)
			fmt.Fprintf(&b, `[A-Za-z]{%d}`, n)
			i += n
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
			i++
		}
	}
	b.WriteString("$")
	return b.String()
}

func runLen(runes []rune, start int, class func(rune) bool) int {
	n := 0
	for i := start; i < len(runes) && class(runes[i]); i++ {
		n++
	}
	return n
}

// seedSynonyms proposes name->code mappings at the neutral confidence. Two
// sources: every observed (normalized name, code) pairing, and cross-document
// name variants whose token overlap clears the threshold against a name
// already bound to the code.
func seedSynonyms(items []*models.LineItem) []*models.AccountSynonym {
	namesByCode := map[string][]string{}
	seen := map[string]bool{}
	var seeds []*models.AccountSynonym

	add := func(name, code string) {
		k := name + "|" + code
		if name == "" || code == "" || seen[k] {
			return
		}
		seen[k] = true
		seeds = append(seeds, &models.AccountSynonym{
			SourceName:    name,
			CanonicalCode: code,
			Confidence:    SynonymSeedConfidence,
		})
		namesByCode[code] = append(namesByCode[code], name)
	}

	for _, item := range items {
		add(utils.NormalizeName(item.AccountName), item.AccountCode)
	}

	// Second pass: bind codeless names to codes whose bound names overlap.
	// Codes are walked in sorted order so overlap ties resolve the same way
	// on every rebuild.
	sortedCodes := make([]string, 0, len(namesByCode))
	for code := range namesByCode {
		sortedCodes = append(sortedCodes, code)
	}
	sort.Strings(sortedCodes)
	for _, item := range items {
		if item.AccountCode != "" {
			continue
		}
		name := utils.NormalizeName(item.AccountName)
		if name == "" {
			continue
		}
		bestCode, bestOverlap := "", synonymSeedOverlap
		for _, code := range sortedCodes {
			for _, bound := range namesByCode[code] {
				if overlap := TokenOverlap(name, bound); overlap > bestOverlap {
					bestCode, bestOverlap = code, overlap
				}
			}
		}
		if bestCode != "" {
			add(name, bestCode)
		}
	}

	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].SourceName != seeds[j].SourceName {
			return seeds[i].SourceName < seeds[j].SourceName
		}
		return seeds[i].CanonicalCode < seeds[j].CanonicalCode
	})
	return seeds
}
