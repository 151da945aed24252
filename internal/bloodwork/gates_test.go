package bloodwork

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomax/protocol-engine/internal/domain"
)

func marker(code string, value float64, status domain.RangeStatus) domain.NormalizedMarker {
	return domain.NormalizedMarker{CanonicalCode: code, CanonicalValue: value, RangeStatus: status}
}

func TestNewGateEngineValidatesRegistry(t *testing.T) {
	engine, err := NewGateEngine(testLogger())
	require.NoError(t, err)
	require.NotNil(t, engine)
}

func TestGateIronOverloadBlocks(t *testing.T) {
	engine, err := NewGateEngine(testLogger())
	require.NoError(t, err)

	result := engine.Evaluate([]domain.NormalizedMarker{
		marker("ferritin", 420, domain.RangeCriticalHigh),
	}, "male", 40)

	assert.Contains(t, result.ConstraintCodes, domain.BlockIron)
	assert.NotContains(t, result.ConstraintCodes, domain.FlagAcuteInflammation)
}

// TestGateIronOverloadSuppressedByAcuteInflammation covers spec scenario 2:
// ferritin=420 ng/mL with crp=8.0 mg/L suppresses BLOCK_IRON and emits the
// acute-inflammation flag instead.
func TestGateIronOverloadSuppressedByAcuteInflammation(t *testing.T) {
	engine, err := NewGateEngine(testLogger())
	require.NoError(t, err)

	result := engine.Evaluate([]domain.NormalizedMarker{
		marker("ferritin", 420, domain.RangeCriticalHigh),
		marker("crp", 8.0, domain.RangeHigh),
	}, "male", 40)

	assert.NotContains(t, result.ConstraintCodes, domain.BlockIron)
	assert.Contains(t, result.ConstraintCodes, domain.FlagAcuteInflammation)

	var ironGate *domain.GateEvaluation
	for i := range result.ActiveGates {
		if result.ActiveGates[i].GateID == "GATE_IRON_OVERLOAD" {
			ironGate = &result.ActiveGates[i]
		}
	}
	require.NotNil(t, ironGate)
	assert.Equal(t, domain.GateSuppressed, ironGate.State)
}

func TestGateMissingRequiredMarkerForBlockSetsReviewRequired(t *testing.T) {
	engine, err := NewGateEngine(testLogger())
	require.NoError(t, err)

	result := engine.Evaluate(nil, "male", 40)
	assert.True(t, result.ReviewRequired)

	found := false
	for _, g := range result.ActiveGates {
		if g.GateID == "GATE_IRON_OVERLOAD" {
			found = true
			assert.True(t, g.DataMissing)
			assert.Equal(t, domain.GateInert, g.State)
		}
	}
	assert.True(t, found)
}

// TestGateHepatotoxicRiskBlocks covers spec scenario 4: elevated ALT/AST
// trips both the caution flag and the hard block.
func TestGateHepatotoxicRiskBlocks(t *testing.T) {
	engine, err := NewGateEngine(testLogger())
	require.NoError(t, err)

	result := engine.Evaluate([]domain.NormalizedMarker{
		marker("alt", 60, domain.RangeHigh),
		marker("ast", 55, domain.RangeHigh),
	}, "male", 40)

	assert.Contains(t, result.ConstraintCodes, domain.BlockHepatotoxic)
	assert.Contains(t, result.ConstraintCodes, domain.CautionHepatotoxic)
}

// TestGateMethylationRequiredOnHomozygousMTHFR covers spec scenario 3:
// MTHFR C677T = TT plus elevated homocysteine.
func TestGateMethylationRequiredOnHomozygousMTHFR(t *testing.T) {
	engine, err := NewGateEngine(testLogger())
	require.NoError(t, err)

	result := engine.Evaluate([]domain.NormalizedMarker{
		{CanonicalCode: "mthfr_c677t", CategoricalValue: "TT", RangeStatus: domain.RangeNormal},
		marker("homocysteine", 18, domain.RangeHigh),
	}, "female", 32)

	assert.Contains(t, result.ConstraintCodes, domain.FlagMethylfolateRequired)
	assert.Contains(t, result.ConstraintCodes, domain.FlagMethylationSupport)
	assert.Contains(t, result.ConstraintCodes, domain.FlagCardiovascularRisk)
}

func TestGateHyperkalemiaBlocksPotassium(t *testing.T) {
	engine, err := NewGateEngine(testLogger())
	require.NoError(t, err)

	result := engine.Evaluate([]domain.NormalizedMarker{
		marker("potassium", 5.8, domain.RangeHigh),
	}, "male", 50)

	assert.Contains(t, result.ConstraintCodes, domain.BlockPotassium)
}

func TestGateRenalImpairmentBlocksRenalAndPotassium(t *testing.T) {
	engine, err := NewGateEngine(testLogger())
	require.NoError(t, err)

	result := engine.Evaluate([]domain.NormalizedMarker{
		marker("egfr", 25, domain.RangeCriticalLow),
	}, "male", 60)

	assert.Contains(t, result.ConstraintCodes, domain.BlockRenal)
	assert.Contains(t, result.ConstraintCodes, domain.BlockPotassium)
}

func TestGateConstraintCodesAreSortedAndDeduped(t *testing.T) {
	engine, err := NewGateEngine(testLogger())
	require.NoError(t, err)

	result := engine.Evaluate([]domain.NormalizedMarker{
		marker("egfr", 25, domain.RangeCriticalLow),
		marker("potassium", 5.8, domain.RangeHigh),
	}, "male", 60)

	sorted := append([]string(nil), result.ConstraintCodes...)
	assert.True(t, isSortedUnique(sorted))
}

func isSortedUnique(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] >= s[i] {
			return false
		}
	}
	return true
}

func TestGateRegistryRejectsUnknownMarker(t *testing.T) {
	// buildGateRegistry is closed and already validated by NewGateEngine;
	// this documents that behavior against a directly-constructed bad gate.
	badGates := []domain.SafetyGate{{
		GateID:          "GATE_BOGUS",
		Tier:            domain.GateTierInformational,
		RequiredMarkers: []string{"not_a_real_marker"},
		Trigger:         func(m map[string]domain.NormalizedMarker, sex string, age int) bool { return false },
	}}
	known := KnownMarkerCodes()
	for _, g := range badGates {
		for _, marker := range g.RequiredMarkers {
			_, ok := known[marker]
			assert.False(t, ok)
		}
	}
}
