// Package routing implements pure safety elimination over governance-valid
// SKUs (spec stage D.2), grounded on
// original_source/app/routing/apply.py. It is PURE, ELIMINATIVE (only
// removes, never adds), and DETERMINISTIC.
package routing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/genomax/protocol-engine/internal/domain"
)

// Router applies translated constraints to governance-valid SKUs. It holds
// no state and performs no I/O.
type Router struct{}

// NewRouter builds a Router.
func NewRouter() *Router {
	return &Router{}
}

// Route applies routing constraints to valid SKUs, producing the allowed
// and blocked sets plus a full audit. Blood does not negotiate: once a
// constraint blocks an ingredient or category, no downstream stage can
// un-block it.
func (r *Router) Route(validSkus []domain.CatalogSKU, constraints domain.TranslatedConstraints, requirements []string) domain.RoutingResult {
	var allowed []domain.AllowedSKU
	var blocked []domain.BlockedSKU

	blockedByBlood, blockedByMetadata, blockedByCategory, cautionCount := 0, 0, 0, 0

	blockedIngredientsLower := domain.ToLowerSet(constraints.BlockedIngredients)
	blockedCategoriesLower := domain.ToLowerSet(constraints.BlockedCategories)
	cautionFlagsLower := domain.ToLowerSet(constraints.CautionFlags)

	requirementSet := make(map[string]struct{}, len(requirements))
	for _, req := range requirements {
		requirementSet[strings.ToLower(req)] = struct{}{}
	}
	fulfilledRequirements := make(map[string]struct{})

	for _, sku := range validSkus {
		skuIngredients := domain.ToLowerSet(sku.IngredientTags)
		skuCategories := domain.ToLowerSet(sku.CategoryTags)
		skuRiskTags := domain.ToLowerSet(sku.RiskTags)

		var metadataReasons []string
		for _, tag := range skuRiskTags {
			if tag == "blocked_ingredient" {
				metadataReasons = append(metadataReasons, "BLOCKED_BY_EVIDENCE")
			}
			if tag == "auto_blocked" {
				metadataReasons = append(metadataReasons, "AUTO_BLOCKED_METADATA")
			}
		}

		bloodBlockIngredients := domain.SetIntersect(blockedIngredientsLower, skuIngredients)
		var bloodReasons []string
		for _, ing := range bloodBlockIngredients {
			bloodReasons = append(bloodReasons, fmt.Sprintf("BLOCK_INGREDIENT_%s", strings.ToUpper(ing)))
		}

		categoryBlock := domain.SetIntersect(blockedCategoriesLower, skuCategories)
		var categoryReasons []string
		for _, cat := range categoryBlock {
			categoryReasons = append(categoryReasons, fmt.Sprintf("BLOCK_CATEGORY_%s", strings.ToUpper(cat)))
		}

		allReasons := append(append(append([]string{}, metadataReasons...), bloodReasons...), categoryReasons...)

		if len(allReasons) > 0 {
			var blockedBy domain.BlockedBy
			switch {
			case len(metadataReasons) > 0:
				blockedBy = domain.BlockedByMetadata
				blockedByMetadata++
			case len(bloodReasons) > 0:
				blockedBy = domain.BlockedByBlood
				blockedByBlood++
			default:
				blockedBy = domain.BlockedByCategory
				blockedByCategory++
			}

			blocked = append(blocked, domain.BlockedSKU{
				SkuID:              sku.SkuID,
				ProductName:        sku.ProductName,
				ReasonCodes:        domain.SortedSet(allReasons),
				BlockedBy:          blockedBy,
				BlockedIngredients: bloodBlockIngredients,
				BlockedCategories:  categoryBlock,
			})
			continue
		}

		skuCaution := domain.SetIntersect(cautionFlagsLower, skuIngredients)
		var cautionReasons []string
		if len(skuCaution) > 0 {
			cautionCount++
			for _, flag := range skuCaution {
				cautionReasons = append(cautionReasons, fmt.Sprintf("CAUTION_%s", strings.ToUpper(flag)))
			}
		}

		var fulfills []string
		for req := range requirementSet {
			for _, tag := range skuIngredients {
				if tag == req {
					fulfills = append(fulfills, req)
					fulfilledRequirements[req] = struct{}{}
					break
				}
			}
		}

		allowed = append(allowed, domain.AllowedSKU{
			SkuID:                sku.SkuID,
			ProductName:          sku.ProductName,
			IngredientTags:       sku.IngredientTags,
			CategoryTags:         sku.CategoryTags,
			ProductLine:          sku.ProductLine,
			EvidenceTier:         sku.EvidenceTier,
			CautionFlags:         skuCaution,
			CautionReasons:       domain.SortedSet(cautionReasons),
			FulfillsRequirements: domain.SortedSet(fulfills),
		})
	}

	sort.Slice(allowed, func(i, j int) bool { return allowed[i].SkuID < allowed[j].SkuID })
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].SkuID < blocked[j].SkuID })

	var constraintsApplied []string
	if len(constraints.BlockedIngredients) > 0 {
		constraintsApplied = append(constraintsApplied, "blocked_ingredients")
	}
	if len(constraints.BlockedCategories) > 0 {
		constraintsApplied = append(constraintsApplied, "blocked_categories")
	}
	if len(constraints.CautionFlags) > 0 {
		constraintsApplied = append(constraintsApplied, "caution_flags")
	}
	if len(requirements) > 0 {
		constraintsApplied = append(constraintsApplied, "requirements")
	}

	var fulfilledList []string
	for req := range fulfilledRequirements {
		fulfilledList = append(fulfilledList, req)
	}
	var missingList []string
	for req := range requirementSet {
		if _, ok := fulfilledRequirements[req]; !ok {
			missingList = append(missingList, req)
		}
	}

	audit := domain.RoutingAudit{
		TotalInputSkus:        len(validSkus),
		AllowedCount:          len(allowed),
		BlockedCount:          len(blocked),
		BlockedByBlood:        blockedByBlood,
		BlockedByMetadata:     blockedByMetadata,
		BlockedByCategory:     blockedByCategory,
		ConstraintsApplied:    domain.SortedSet(constraintsApplied),
		RequirementsInCatalog: domain.SortedSet(fulfilledList),
		RequirementsMissing:   domain.SortedSet(missingList),
		CautionCount:          cautionCount,
		ProcessedAt:           time.Now().UTC().Format(time.RFC3339),
	}

	return domain.RoutingResult{
		Allowed:     allowed,
		Blocked:     blocked,
		RoutingHash: computeRoutingHash(allowed, blocked),
		Audit:       audit,
	}
}

func computeRoutingHash(allowed []domain.AllowedSKU, blocked []domain.BlockedSKU) string {
	allowedIDs := make([]string, 0, len(allowed))
	for _, a := range allowed {
		allowedIDs = append(allowedIDs, a.SkuID)
	}
	blockedIDs := make([]string, 0, len(blocked))
	for _, b := range blocked {
		blockedIDs = append(blockedIDs, b.SkuID)
	}
	return domain.StableHash(map[string]interface{}{
		"allowed": domain.SortedSet(allowedIDs),
		"blocked": domain.SortedSet(blockedIDs),
	})
}

// FilterByGender is a downstream utility: returns the subset of allowed
// SKUs matching target product line, retaining universal (unspecified)
// SKUs regardless of target. It is NOT part of core routing; the matcher
// (internal/matching) makes the authoritative gender decision for the final
// protocol.
func FilterByGender(allowed []domain.AllowedSKU, target domain.ProductLine) []domain.AllowedSKU {
	if target == domain.ProductLineUnspecified {
		return allowed
	}
	var out []domain.AllowedSKU
	for _, sku := range allowed {
		if sku.ProductLine == domain.ProductLineUnspecified || sku.ProductLine == target {
			out = append(out, sku)
		}
	}
	return out
}

// RequirementsCoverage reports which required ingredient tags have at least
// one allowed SKU, for diagnostics.
type RequirementsCoverage struct {
	TotalRequirements int      `json:"total_requirements"`
	Fulfilled         []string `json:"fulfilled"`
	Missing           []string `json:"missing"`
	CoveragePercent   float64  `json:"coverage_pct"`
}

// RequirementsCoverage computes coverage across the allowed SKU set.
func RequirementsCoverage(allowed []domain.AllowedSKU, requirements []string) RequirementsCoverage {
	requirementSet := make(map[string]struct{}, len(requirements))
	for _, req := range requirements {
		requirementSet[strings.ToLower(req)] = struct{}{}
	}
	fulfilled := make(map[string]struct{})
	for _, sku := range allowed {
		tags := domain.ToLowerSet(sku.IngredientTags)
		for req := range requirementSet {
			for _, tag := range tags {
				if tag == req {
					fulfilled[req] = struct{}{}
					break
				}
			}
		}
	}
	var fulfilledList, missingList []string
	for req := range requirementSet {
		if _, ok := fulfilled[req]; ok {
			fulfilledList = append(fulfilledList, req)
		} else {
			missingList = append(missingList, req)
		}
	}
	pct := 100.0
	if len(requirementSet) > 0 {
		pct = round2(float64(len(fulfilledList)) / float64(len(requirementSet)) * 100)
	}
	return RequirementsCoverage{
		TotalRequirements: len(requirementSet),
		Fulfilled:         domain.SortedSet(fulfilledList),
		Missing:           domain.SortedSet(missingList),
		CoveragePercent:   pct,
	}
}

func round2(v float64) float64 {
	const p = 100
	return float64(int64(v*p+0.5)) / p
}
