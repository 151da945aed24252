package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableHashDeterministic(t *testing.T) {
	a := StableHash(map[string]interface{}{"b": 2, "a": 1})
	b := StableHash(map[string]interface{}{"b": 2, "a": 1})
	require.Equal(t, a, b)
	assert.Contains(t, a, "sha256:")
}

func TestStableHashDiffersOnContent(t *testing.T) {
	a := StableHash([]string{"x", "y"})
	b := StableHash([]string{"x", "z"})
	assert.NotEqual(t, a, b)
}

func TestSortedSetDedupesAndSorts(t *testing.T) {
	got := SortedSet([]string{"banana", "apple", "apple", "", "cherry"})
	assert.Equal(t, []string{"apple", "banana", "cherry"}, got)
}

func TestSetUnion(t *testing.T) {
	got := SetUnion([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSetIntersect(t *testing.T) {
	got := SetIntersect([]string{"a", "b", "c"}, []string{"b", "c", "d"})
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestSetSubtract(t *testing.T) {
	got := SetSubtract([]string{"a", "b", "c"}, []string{"b"})
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestToLowerSet(t *testing.T) {
	got := ToLowerSet([]string{"Iron", "IRON", "Vitamin_D"})
	assert.Equal(t, []string{"iron", "vitamin_d"}, got)
}

func TestResolvedProductLineDefaultsFromSex(t *testing.T) {
	assert.Equal(t, ProductLineMale, UserContext{Sex: "male"}.ResolvedProductLine())
	assert.Equal(t, ProductLineFemale, UserContext{Sex: "female"}.ResolvedProductLine())
	assert.Equal(t, ProductLineUnspecified, UserContext{}.ResolvedProductLine())
	assert.Equal(t, ProductLineFemale, UserContext{Sex: "male", ProductLine: ProductLineFemale}.ResolvedProductLine())
}

func TestTranslatedConstraintsIsEmpty(t *testing.T) {
	assert.True(t, TranslatedConstraints{}.IsEmpty())
	assert.False(t, TranslatedConstraints{BlockedIngredients: []string{"iron"}}.IsEmpty())
}
