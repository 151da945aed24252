// Package matching implements the final protocol assembly (spec stage E),
// grounded on original_source/app/matching/match.py: filter allowed SKUs by
// product line, score by ingredient-tag overlap against prioritized
// intents, fulfill requirements, and assemble a deterministically sorted
// protocol.
package matching

import (
	"sort"
	"strings"

	"github.com/genomax/protocol-engine/internal/domain"
)

// Matcher assembles a protocol from routing's allowed SKUs. It holds no
// state and performs no I/O.
type Matcher struct{}

// NewMatcher builds a Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// candidate tracks per-SKU matching state while scanning intents.
type candidate struct {
	sku            domain.AllowedSKU
	tags           []string
	matchedIntents []string
	// allTargets is the union of every matched intent's full ingredient
	// target list (not just the overlapping tags); match_score is the
	// SKU's tag overlap against this union, per spec §4.E step 5.
	allTargets map[string]struct{}
	fulfilled  []string
}

// Match runs the full stage-E pipeline: gender filter, intent scan,
// requirement fulfillment, protocol assembly, sort, hash.
func (m *Matcher) Match(allowed []domain.AllowedSKU, intents []domain.Intent, user domain.UserContext, requirements []string) domain.MatchingResult {
	filtered := filterByGender(allowed, user.ResolvedProductLine())

	candidates := make(map[string]*candidate, len(filtered))
	for _, sku := range filtered {
		candidates[sku.SkuID] = &candidate{
			sku:        sku,
			tags:       domain.ToLowerSet(sku.IngredientTags),
			allTargets: make(map[string]struct{}),
		}
	}

	sortedIntents := make([]domain.Intent, len(intents))
	copy(sortedIntents, intents)
	sort.SliceStable(sortedIntents, func(i, j int) bool { return sortedIntents[i].Priority < sortedIntents[j].Priority })

	var unmatched []domain.UnmatchedIntent
	for _, intent := range sortedIntents {
		targets := domain.ToLowerSet(intent.IngredientTargets)
		matchedAny := false
		if len(targets) > 0 {
			for _, c := range candidates {
				overlap := domain.SetIntersect(c.tags, targets)
				if len(overlap) == 0 {
					continue
				}
				matchedAny = true
				c.matchedIntents = append(c.matchedIntents, intent.Code)
				for _, t := range targets {
					c.allTargets[t] = struct{}{}
				}
			}
		}
		if !matchedAny {
			unmatched = append(unmatched, domain.UnmatchedIntent{
				Code:   intent.Code,
				Reason: "No SKU with matching ingredient tags available",
			})
		}
	}

	requirementSet := make(map[string]struct{}, len(requirements))
	for _, req := range requirements {
		requirementSet[strings.ToLower(req)] = struct{}{}
	}
	fulfilledRequirements := make(map[string]struct{})
	for _, c := range candidates {
		for req := range requirementSet {
			for _, tag := range c.tags {
				if tag == req {
					c.fulfilled = append(c.fulfilled, req)
					fulfilledRequirements[req] = struct{}{}
					break
				}
			}
		}
	}

	var protocol []domain.ProtocolItem
	for _, c := range candidates {
		hasIntent := len(c.matchedIntents) > 0
		hasRequirement := len(c.fulfilled) > 0
		if !hasIntent && !hasRequirement {
			continue
		}

		var reason domain.ProtocolReason
		switch {
		case hasIntent && hasRequirement:
			reason = domain.ReasonBoth
		case hasIntent:
			reason = domain.ReasonIntentMatch
		default:
			reason = domain.ReasonRequirement
		}

		matchScore := 1.0
		var matchedIngredients []string
		if hasIntent {
			unionTargets := make([]string, 0, len(c.allTargets))
			for t := range c.allTargets {
				unionTargets = append(unionTargets, t)
			}
			unionTargets = domain.SortedSet(unionTargets)
			overlap := domain.SetIntersect(c.tags, unionTargets)
			if len(unionTargets) > 0 {
				matchScore = round4(float64(len(overlap)) / float64(len(unionTargets)))
			}
			matchedIngredients = overlap
		}

		priorityRank := domain.UnfulfillPriorityRank
		if hasIntent {
			priorityRank = minPriority(c.matchedIntents, sortedIntents)
		}

		protocol = append(protocol, domain.ProtocolItem{
			SkuID:              c.sku.SkuID,
			ProductName:        c.sku.ProductName,
			MatchedIntents:     domain.SortedSet(c.matchedIntents),
			MatchedIngredients: matchedIngredients,
			MatchScore:         matchScore,
			Reason:             reason,
			Warnings:           buildWarnings(c.sku),
			PriorityRank:       priorityRank,
		})
	}

	sort.Slice(protocol, func(i, j int) bool {
		if protocol[i].PriorityRank != protocol[j].PriorityRank {
			return protocol[i].PriorityRank < protocol[j].PriorityRank
		}
		if protocol[i].MatchScore != protocol[j].MatchScore {
			return protocol[i].MatchScore > protocol[j].MatchScore
		}
		return protocol[i].SkuID < protocol[j].SkuID
	})

	var missingRequirements []string
	for req := range requirementSet {
		if _, ok := fulfilledRequirements[req]; !ok {
			missingRequirements = append(missingRequirements, req)
		}
	}

	sort.Slice(unmatched, func(i, j int) bool { return unmatched[i].Code < unmatched[j].Code })

	return domain.MatchingResult{
		Protocol:                protocol,
		UnmatchedIntents:        unmatched,
		RequirementsUnfulfilled: domain.SortedSet(missingRequirements),
		MatchHash:               computeMatchHash(protocol, unmatched),
	}
}

// filterByGender retains SKUs whose product line equals target; SKUs with
// an absent/unspecified product line are retained as universal per spec
// §4.E step 1 and the Open Question decision in SPEC_FULL.md.
func filterByGender(allowed []domain.AllowedSKU, target domain.ProductLine) []domain.AllowedSKU {
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

func buildWarnings(sku domain.AllowedSKU) []string {
	var warnings []string
	for _, flag := range sku.CautionFlags {
		warnings = append(warnings, "CAUTION: "+strings.ToUpper(flag))
	}
	warnings = append(warnings, sku.CautionReasons...)
	return domain.SortedSet(warnings)
}

func minPriority(matchedCodes []string, intents []domain.Intent) int {
	byCode := make(map[string]int, len(intents))
	for _, intent := range intents {
		byCode[intent.Code] = intent.Priority
	}
	min := domain.UnfulfillPriorityRank
	for _, code := range matchedCodes {
		if p, ok := byCode[code]; ok && p < min {
			min = p
		}
	}
	return min
}

func computeMatchHash(protocol []domain.ProtocolItem, unmatched []domain.UnmatchedIntent) string {
	ids := make([]string, 0, len(protocol))
	for _, p := range protocol {
		ids = append(ids, p.SkuID)
	}
	codes := make([]string, 0, len(unmatched))
	for _, u := range unmatched {
		codes = append(codes, u.Code)
	}
	return domain.StableHash(map[string]interface{}{
		"protocol":  domain.SortedSet(ids),
		"unmatched": domain.SortedSet(codes),
	})
}

func round4(v float64) float64 {
	const p = 10000
	return float64(int64(v*p+0.5)) / p
}
