package constraints

import (
	"fmt"
	"strings"

	"github.com/genomax/protocol-engine/internal/domain"
)

// Translator is a pure, deterministic mapper from constraint codes to
// enforcement fields. It performs no I/O, reads no clock, and uses no
// randomness; calling Translate twice with the same input always returns a
// byte-identical output, grounded on
// original_source/app/brain/constraint_translator/translator.py.
type Translator struct{}

// NewTranslator builds a Translator. It carries no state beyond the
// package-level closed registry.
func NewTranslator() *Translator {
	return &Translator{}
}

// Translate maps constraint codes into TranslatedConstraints. sex is
// accepted for forward compatibility with gender-specific rules but is not
// currently used by any mapping row.
func (t *Translator) Translate(codes []string, sex string) domain.TranslatedConstraints {
	normalizedCodes := normalizeCodes(codes)

	inputHash := domain.StableHash(map[string]interface{}{
		"constraint_codes": normalizedCodes,
		"sex":              sex,
	})

	var blockedIngredients, blockedCategories, blockedTargets, cautionFlags, reasonCodes, recommended []string
	var unknownCodes []string

	for _, code := range normalizedCodes {
		mapping, ok := lookup(code)
		if !ok {
			unknownCodes = append(unknownCodes, code)
			reasonCodes = append(reasonCodes, fmt.Sprintf("UNKNOWN_CONSTRAINT_%s", code))
			continue
		}
		blockedIngredients = append(blockedIngredients, mapping.BlockedIngredients...)
		blockedCategories = append(blockedCategories, mapping.BlockedCategories...)
		blockedTargets = append(blockedTargets, mapping.BlockedTargets...)
		cautionFlags = append(cautionFlags, mapping.CautionFlags...)
		reasonCodes = append(reasonCodes, mapping.ReasonCodes...)
		recommended = append(recommended, mapping.RecommendedIngredients...)
	}

	sortedBlockedIngredients := domain.SortedSet(blockedIngredients)

	// "Blood does not negotiate": blocks strictly dominate recommendations.
	recommendedFinal := domain.SetSubtract(domain.SortedSet(recommended), sortedBlockedIngredients)

	result := domain.TranslatedConstraints{
		BlockedIngredients:     sortedBlockedIngredients,
		BlockedCategories:      domain.SortedSet(blockedCategories),
		BlockedTargets:         domain.SortedSet(blockedTargets),
		CautionFlags:           domain.SortedSet(cautionFlags),
		ReasonCodes:            domain.SortedSet(reasonCodes),
		RecommendedIngredients: recommendedFinal,
		InputConstraintCodes:   normalizedCodes,
		UnknownCodes:           domain.SortedSet(unknownCodes),
		MappingVersion:         MappingVersion,
		InputHash:              inputHash,
	}

	result.OutputHash = domain.StableHash(map[string]interface{}{
		"blocked_ingredients":     result.BlockedIngredients,
		"blocked_categories":      result.BlockedCategories,
		"blocked_targets":         result.BlockedTargets,
		"caution_flags":           result.CautionFlags,
		"reason_codes":            result.ReasonCodes,
		"recommended_ingredients": result.RecommendedIngredients,
	})

	return result
}

// Merge combines another translator output into a bloodwork-derived
// baseline. Per spec §4.C, merge only ADDS to blocked/caution/reason sets;
// it can never remove anything the bloodwork output produced, preserving
// the dominance invariant across external inputs.
func (t *Translator) Merge(bloodwork, other domain.TranslatedConstraints) domain.TranslatedConstraints {
	merged := domain.TranslatedConstraints{
		BlockedIngredients: domain.SetUnion(bloodwork.BlockedIngredients, other.BlockedIngredients),
		BlockedCategories:  domain.SetUnion(bloodwork.BlockedCategories, other.BlockedCategories),
		BlockedTargets:     domain.SetUnion(bloodwork.BlockedTargets, other.BlockedTargets),
		CautionFlags:       domain.SetUnion(bloodwork.CautionFlags, other.CautionFlags),
		ReasonCodes:        domain.SetUnion(bloodwork.ReasonCodes, other.ReasonCodes),
		MappingVersion:     bloodwork.MappingVersion,
	}
	recommended := domain.SetUnion(bloodwork.RecommendedIngredients, other.RecommendedIngredients)
	merged.RecommendedIngredients = domain.SetSubtract(recommended, merged.BlockedIngredients)
	merged.InputConstraintCodes = domain.SetUnion(bloodwork.InputConstraintCodes, other.InputConstraintCodes)
	merged.UnknownCodes = domain.SetUnion(bloodwork.UnknownCodes, other.UnknownCodes)
	merged.OutputHash = domain.StableHash(map[string]interface{}{
		"blocked_ingredients":     merged.BlockedIngredients,
		"blocked_categories":      merged.BlockedCategories,
		"blocked_targets":         merged.BlockedTargets,
		"caution_flags":           merged.CautionFlags,
		"reason_codes":            merged.ReasonCodes,
		"recommended_ingredients": merged.RecommendedIngredients,
	})
	return merged
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		trimmed := strings.ToUpper(strings.TrimSpace(c))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return domain.SortedSet(out)
}
