// Package governance implements catalog SKU validation (spec stage D.1),
// grounded on original_source/app/catalog/{models.py,validate.py}: a SKU is
// VALID only when its ingredient and category tags are both present and
// non-empty, its evidence tier is not BLOCKED, and it carries no
// blocked_ingredient risk tag.
package governance

import (
	"sort"
	"strings"

	"github.com/genomax/protocol-engine/internal/domain"
)

// Reason codes, matching the closed set in
// original_source/app/catalog/models.py ReasonCode.
const (
	ReasonInsufficientMetadata = "INSUFFICIENT_METADATA"
	ReasonMissingIngredientTags = "MISSING_INGREDIENT_TAGS"
	ReasonMissingCategoryTags  = "MISSING_CATEGORY_TAGS"
	ReasonEmptyIngredientTags  = "EMPTY_INGREDIENT_TAGS"
	ReasonEmptyCategoryTags    = "EMPTY_CATEGORY_TAGS"
	ReasonBlockedByEvidence    = "BLOCKED_BY_EVIDENCE"
	ReasonHepatotoxicityRisk   = "HEPATOTOXICITY_RISK"
)

// Validator evaluates catalog governance over a snapshot of SKUs. It holds
// no state of its own; it is safe for concurrent use.
type Validator struct{}

// NewValidator builds a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateSnapshot validates every SKU in the snapshot and returns the
// governance result: the valid subset, every individual verdict, and an
// aggregate coverage report. Results are sorted by sku_id for determinism.
func (v *Validator) ValidateSnapshot(skus []domain.CatalogSKU) domain.GovernanceResult {
	sorted := make([]domain.CatalogSKU, len(skus))
	copy(sorted, skus)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SkuID < sorted[j].SkuID })

	var valid []domain.CatalogSKU
	var autoBlocked []domain.SkuValidationResult
	var allResults []domain.SkuValidationResult
	missingFieldCounts := map[string]int{}
	blockedByEvidence := 0

	for _, sku := range sorted {
		result := v.validateSku(sku)
		allResults = append(allResults, result)
		if result.Status == domain.SkuValid {
			valid = append(valid, sku)
		} else {
			autoBlocked = append(autoBlocked, result)
			for _, reason := range result.ReasonCodes {
				if reason == ReasonBlockedByEvidence {
					blockedByEvidence++
				}
			}
			for _, field := range result.MissingFields {
				missingFieldCounts[field]++
			}
		}
	}

	coverage := buildCoverageReport(len(sorted), len(valid), len(autoBlocked), blockedByEvidence, missingFieldCounts)

	return domain.GovernanceResult{
		Valid:       valid,
		AutoBlocked: autoBlocked,
		Results:     allResults,
		Coverage:    coverage,
		ResultsHash: computeResultsHash(allResults),
	}
}

// validateSku applies the VALID/AUTO_BLOCKED rule to a single SKU.
func (v *Validator) validateSku(sku domain.CatalogSKU) domain.SkuValidationResult {
	var reasonCodes []string
	var missingFields []string

	if len(sku.IngredientTags) == 0 {
		missingFields = append(missingFields, "ingredient_tags")
		reasonCodes = append(reasonCodes, ReasonEmptyIngredientTags)
	}
	if len(sku.CategoryTags) == 0 {
		missingFields = append(missingFields, "category_tags")
		reasonCodes = append(reasonCodes, ReasonEmptyCategoryTags)
	}
	if len(missingFields) > 0 {
		reasonCodes = append([]string{ReasonInsufficientMetadata}, reasonCodes...)
	}

	if sku.EvidenceTier == domain.EvidenceBlocked {
		reasonCodes = append(reasonCodes, ReasonBlockedByEvidence)
	}

	riskBlocked := false
	for _, tag := range sku.RiskTags {
		if strings.EqualFold(tag, "blocked_ingredient") {
			reasonCodes = append(reasonCodes, ReasonHepatotoxicityRisk)
			riskBlocked = true
			break
		}
	}

	status := domain.SkuValid
	if len(missingFields) > 0 || sku.EvidenceTier == domain.EvidenceBlocked || riskBlocked {
		status = domain.SkuAutoBlocked
	}

	return domain.SkuValidationResult{
		SkuID:         sku.SkuID,
		Status:        status,
		ReasonCodes:   domain.SortedSet(reasonCodes),
		MissingFields: missingFields,
	}
}

func buildCoverageReport(total, validCount, autoBlockedCount, blockedByEvidence int, missingFieldCounts map[string]int) domain.CoverageReport {
	percent := 100.0
	if total > 0 {
		percent = round2(float64(validCount) / float64(total) * 100)
	}

	fieldNames := make([]string, 0, len(missingFieldCounts))
	for field := range missingFieldCounts {
		fieldNames = append(fieldNames, field)
	}
	sort.Slice(fieldNames, func(i, j int) bool {
		if missingFieldCounts[fieldNames[i]] != missingFieldCounts[fieldNames[j]] {
			return missingFieldCounts[fieldNames[i]] > missingFieldCounts[fieldNames[j]]
		}
		return fieldNames[i] < fieldNames[j]
	})

	var top []domain.FieldCount
	for _, name := range fieldNames {
		top = append(top, domain.FieldCount{FieldName: name, Count: missingFieldCounts[name]})
	}

	return domain.CoverageReport{
		TotalSkus:             total,
		ValidCount:            validCount,
		AutoBlockedCount:      autoBlockedCount,
		PercentValid:          percent,
		TopMissingFields:      top,
		BlockedByEvidenceTier: blockedByEvidence,
	}
}

// computeResultsHash hashes the sorted-by-sku_id result set, grounded on
// CatalogValidationRunV1.compute_results_hash in
// original_source/app/catalog/models.py.
func computeResultsHash(results []domain.SkuValidationResult) string {
	type hashable struct {
		SkuID       string   `json:"sku_id"`
		Status      string   `json:"status"`
		ReasonCodes []string `json:"reason_codes"`
	}
	entries := make([]hashable, 0, len(results))
	for _, r := range results {
		entries = append(entries, hashable{SkuID: r.SkuID, Status: string(r.Status), ReasonCodes: r.ReasonCodes})
	}
	return domain.StableHash(entries)
}

func round2(v float64) float64 {
	const p = 100
	return float64(int64(v*p+0.5)) / p
}
