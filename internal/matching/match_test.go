package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomax/protocol-engine/internal/domain"
)

func allowedSKU(id string, line domain.ProductLine, ingredients ...string) domain.AllowedSKU {
	return domain.AllowedSKU{SkuID: id, ProductName: id, ProductLine: line, IngredientTags: ingredients}
}

func TestMatchAssignsIntentMatchReason(t *testing.T) {
	m := NewMatcher()
	result := m.Match(
		[]domain.AllowedSKU{allowedSKU("sku-1", domain.ProductLineUnspecified, "omega_3")},
		[]domain.Intent{{Code: "heart_health", Priority: 1, IngredientTargets: []string{"omega_3", "coq10"}}},
		domain.UserContext{Sex: "male"},
		nil,
	)
	require.Len(t, result.Protocol, 1)
	assert.Equal(t, domain.ReasonIntentMatch, result.Protocol[0].Reason)
	assert.Contains(t, result.Protocol[0].MatchedIntents, "heart_health")
}

func TestMatchUnmatchedIntentWhenNoSkuQualifies(t *testing.T) {
	m := NewMatcher()
	result := m.Match(
		[]domain.AllowedSKU{allowedSKU("sku-1", domain.ProductLineUnspecified, "zinc")},
		[]domain.Intent{{Code: "sleep", Priority: 1, IngredientTargets: []string{"melatonin"}}},
		domain.UserContext{Sex: "male"},
		nil,
	)
	assert.Empty(t, result.Protocol)
	require.Len(t, result.UnmatchedIntents, 1)
	assert.Equal(t, "sleep", result.UnmatchedIntents[0].Code)
}

func TestMatchGenderFilterExcludesOppositeLine(t *testing.T) {
	m := NewMatcher()
	result := m.Match(
		[]domain.AllowedSKU{
			allowedSKU("sku-female", domain.ProductLineFemale, "dim"),
			allowedSKU("sku-universal", domain.ProductLineUnspecified, "dim"),
		},
		[]domain.Intent{{Code: "hormone_balance", Priority: 1, IngredientTargets: []string{"dim"}}},
		domain.UserContext{Sex: "male"},
		nil,
	)
	var ids []string
	for _, item := range result.Protocol {
		ids = append(ids, item.SkuID)
	}
	assert.NotContains(t, ids, "sku-female")
	assert.Contains(t, ids, "sku-universal")
}

func TestMatchRequirementFulfillmentWithoutIntent(t *testing.T) {
	m := NewMatcher()
	result := m.Match(
		[]domain.AllowedSKU{allowedSKU("sku-1", domain.ProductLineUnspecified, "magnesium")},
		nil,
		domain.UserContext{Sex: "male"},
		[]string{"magnesium"},
	)
	require.Len(t, result.Protocol, 1)
	assert.Equal(t, domain.ReasonRequirement, result.Protocol[0].Reason)
	assert.Equal(t, domain.UnfulfillPriorityRank, result.Protocol[0].PriorityRank)
}

func TestMatchBothReasonWhenIntentAndRequirementOverlap(t *testing.T) {
	m := NewMatcher()
	result := m.Match(
		[]domain.AllowedSKU{allowedSKU("sku-1", domain.ProductLineUnspecified, "omega_3")},
		[]domain.Intent{{Code: "heart_health", Priority: 1, IngredientTargets: []string{"omega_3"}}},
		domain.UserContext{Sex: "male"},
		[]string{"omega_3"},
	)
	require.Len(t, result.Protocol, 1)
	assert.Equal(t, domain.ReasonBoth, result.Protocol[0].Reason)
}

func TestMatchSortedByPriorityThenScoreThenSkuID(t *testing.T) {
	m := NewMatcher()
	result := m.Match(
		[]domain.AllowedSKU{
			allowedSKU("sku-b", domain.ProductLineUnspecified, "omega_3"),
			allowedSKU("sku-a", domain.ProductLineUnspecified, "zinc"),
		},
		[]domain.Intent{
			{Code: "heart_health", Priority: 2, IngredientTargets: []string{"omega_3"}},
			{Code: "immune", Priority: 1, IngredientTargets: []string{"zinc"}},
		},
		domain.UserContext{Sex: "male"},
		nil,
	)
	require.Len(t, result.Protocol, 2)
	assert.Equal(t, "sku-a", result.Protocol[0].SkuID)
	assert.Equal(t, "sku-b", result.Protocol[1].SkuID)
}

func TestMatchWarningsFromCautionFlags(t *testing.T) {
	m := NewMatcher()
	sku := allowedSKU("sku-1", domain.ProductLineUnspecified, "omega_3")
	sku.CautionFlags = []string{"bleeding_risk"}
	sku.CautionReasons = []string{"BLEEDING_RISK"}
	result := m.Match(
		[]domain.AllowedSKU{sku},
		[]domain.Intent{{Code: "heart_health", Priority: 1, IngredientTargets: []string{"omega_3"}}},
		domain.UserContext{Sex: "male"},
		nil,
	)
	require.Len(t, result.Protocol, 1)
	assert.Contains(t, result.Protocol[0].Warnings, "CAUTION: BLEEDING_RISK")
	assert.Contains(t, result.Protocol[0].Warnings, "BLEEDING_RISK")
}

func TestMatchHashDeterministic(t *testing.T) {
	m := NewMatcher()
	skus := []domain.AllowedSKU{allowedSKU("sku-1", domain.ProductLineUnspecified, "omega_3")}
	intents := []domain.Intent{{Code: "heart_health", Priority: 1, IngredientTargets: []string{"omega_3"}}}
	a := m.Match(skus, intents, domain.UserContext{Sex: "male"}, nil)
	b := m.Match(skus, intents, domain.UserContext{Sex: "male"}, nil)
	assert.Equal(t, a.MatchHash, b.MatchHash)
}
