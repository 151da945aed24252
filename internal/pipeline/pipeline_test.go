package pipeline

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomax/protocol-engine/internal/catalogstore"
	"github.com/genomax/protocol-engine/internal/domain"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testCatalog(t *testing.T) *catalogstore.Store {
	t.Helper()
	skus := []domain.CatalogSKU{
		{
			SkuID:            "sku-iron",
			ProductName:      "Iron Complex",
			IngredientTags:   []string{"iron", "iron_bisglycinate"},
			CategoryTags:     []string{"mineral"},
			EvidenceTier:     domain.EvidenceTier1,
			GovernanceStatus: domain.GovernanceActive,
		},
		{
			SkuID:            "sku-omega",
			ProductName:      "Omega-3 Fish Oil",
			IngredientTags:   []string{"omega_3"},
			CategoryTags:     []string{"fish_oil"},
			EvidenceTier:     domain.EvidenceTier1,
			GovernanceStatus: domain.GovernanceActive,
		},
		{
			SkuID:            "sku-methylfolate",
			ProductName:      "Methylfolate B Complex",
			IngredientTags:   []string{"methylfolate", "methylcobalamin"},
			CategoryTags:     []string{"vitamin"},
			EvidenceTier:     domain.EvidenceTier1,
			GovernanceStatus: domain.GovernanceActive,
		},
		{
			SkuID:            "sku-hepatotoxic",
			ProductName:      "Ashwagandha Extract",
			IngredientTags:   []string{"ashwagandha"},
			CategoryTags:     []string{"adaptogen"},
			EvidenceTier:     domain.EvidenceTier1,
			GovernanceStatus: domain.GovernanceActive,
		},
		{
			SkuID:            "sku-sleep",
			ProductName:      "Sleep Support",
			IngredientTags:   []string{"melatonin"},
			CategoryTags:     []string{"sleep"},
			EvidenceTier:     domain.EvidenceTier1,
			GovernanceStatus: domain.GovernanceActive,
		},
	}
	store, err := catalogstore.New(catalogstore.NewStaticSource("catalog_v1", skus), testLogger(), catalogstore.Config{})
	require.NoError(t, err)
	require.NoError(t, store.EnsureLoaded(context.Background()))
	return store
}

func mustPipeline(t *testing.T) *Pipeline {
	t.Helper()
	pl, err := New(testLogger(), testCatalog(t))
	require.NoError(t, err)
	return pl
}

// TestPipelineIronOverloadBlocksIronSKU covers spec scenario 1: a male with
// elevated ferritin and no acute inflammation gets BLOCK_IRON, and the iron
// SKU never reaches the protocol.
func TestPipelineIronOverloadBlocksIronSKU(t *testing.T) {
	pl := mustPipeline(t)
	req := domain.PipelineRequest{
		User: domain.UserContext{Sex: "male"},
		Panel: []domain.BiomarkerEntry{
			{Code: "ferritin", Value: "420", Unit: "ng/mL"},
		},
	}
	result, err := pl.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, result.ConstraintCodes, domain.BlockIron)
	for _, blocked := range result.Routing.Blocked {
		if blocked.SkuID == "sku-iron" {
			assert.Equal(t, domain.BlockedByBlood, blocked.BlockedBy)
		}
	}
	for _, item := range result.Protocol {
		assert.NotEqual(t, "sku-iron", item.SkuID)
	}
}

// TestPipelineIronOverloadSuppressedByAcuteInflammation covers spec scenario
// 2: the same elevated ferritin with CRP >= 5.0 suppresses the iron block
// and the iron SKU is eligible again.
func TestPipelineIronOverloadSuppressedByAcuteInflammation(t *testing.T) {
	pl := mustPipeline(t)
	req := domain.PipelineRequest{
		User: domain.UserContext{Sex: "male"},
		Panel: []domain.BiomarkerEntry{
			{Code: "ferritin", Value: "420", Unit: "ng/mL"},
			{Code: "crp", Value: "8.0", Unit: "mg/L"},
		},
	}
	result, err := pl.Run(context.Background(), req)
	require.NoError(t, err)
	assert.NotContains(t, result.ConstraintCodes, domain.BlockIron)
	assert.Contains(t, result.ConstraintCodes, domain.FlagAcuteInflammation)
	var blockedIron bool
	for _, blocked := range result.Routing.Blocked {
		if blocked.SkuID == "sku-iron" {
			blockedIron = true
		}
	}
	assert.False(t, blockedIron)
}

// TestPipelineMTHFRElevatedHomocysteine covers spec scenario 3: MTHFR TT
// plus elevated homocysteine blocks folic_acid and routes to methylfolate.
func TestPipelineMTHFRElevatedHomocysteine(t *testing.T) {
	pl := mustPipeline(t)
	req := domain.PipelineRequest{
		User: domain.UserContext{Sex: "female"},
		Panel: []domain.BiomarkerEntry{
			{Code: "mthfr_c677t", Value: "TT", Unit: ""},
			{Code: "homocysteine", Value: "18", Unit: "umol/L"},
		},
		Requirements: []string{"methylfolate"},
	}
	result, err := pl.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, result.TranslatedConstraints.BlockedIngredients, "folic_acid")
	var matchedMethylfolate bool
	for _, item := range result.Protocol {
		if item.SkuID == "sku-methylfolate" {
			matchedMethylfolate = true
		}
	}
	assert.True(t, matchedMethylfolate)
}

// TestPipelineElevatedALTASTBlocksHepatotoxicSKU covers spec scenario 4.
func TestPipelineElevatedALTASTBlocksHepatotoxicSKU(t *testing.T) {
	pl := mustPipeline(t)
	req := domain.PipelineRequest{
		User: domain.UserContext{Sex: "male"},
		Panel: []domain.BiomarkerEntry{
			{Code: "alt", Value: "60", Unit: "U/L"},
			{Code: "ast", Value: "55", Unit: "U/L"},
		},
	}
	result, err := pl.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, result.ConstraintCodes, domain.BlockHepatotoxic)
	for _, item := range result.Protocol {
		assert.NotEqual(t, "sku-hepatotoxic", item.SkuID)
	}
}

// TestPipelineIntentWithoutMatchingSkuIsUnmatched covers spec scenario 5.
func TestPipelineIntentWithoutMatchingSkuIsUnmatched(t *testing.T) {
	pl := mustPipeline(t)
	req := domain.PipelineRequest{
		User: domain.UserContext{Sex: "male"},
		Intents: []domain.Intent{
			{Code: "focus", Priority: 1, IngredientTargets: []string{"lions_mane"}},
		},
	}
	result, err := pl.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.UnmatchedIntents, 1)
	assert.Equal(t, "focus", result.UnmatchedIntents[0].Code)
}

// TestPipelineDeterministicAcrossRuns covers spec scenario 6: running the
// same request twice produces byte-identical hashes at every stage.
func TestPipelineDeterministicAcrossRuns(t *testing.T) {
	pl := mustPipeline(t)
	req := domain.PipelineRequest{
		User: domain.UserContext{Sex: "male"},
		Panel: []domain.BiomarkerEntry{
			{Code: "ferritin", Value: "420", Unit: "ng/mL"},
		},
		Intents: []domain.Intent{
			{Code: "heart_health", Priority: 1, IngredientTargets: []string{"omega_3"}},
		},
	}

	first, err := pl.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := pl.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.PipelineHash, second.PipelineHash)
	assert.Equal(t, first.TranslatedConstraints.OutputHash, second.TranslatedConstraints.OutputHash)
	assert.Equal(t, first.Routing.RoutingHash, second.Routing.RoutingHash)
}

func TestPipelineRejectsInvalidSex(t *testing.T) {
	pl := mustPipeline(t)
	_, err := pl.Run(context.Background(), domain.PipelineRequest{User: domain.UserContext{Sex: "other"}})
	require.Error(t, err)
	pipeErr, ok := err.(*domain.PipelineError)
	require.True(t, ok)
	assert.Equal(t, domain.ErrInvalidInput, pipeErr.Kind)
}

func TestPipelineRejectsMissingPanelCode(t *testing.T) {
	pl := mustPipeline(t)
	_, err := pl.Run(context.Background(), domain.PipelineRequest{
		User:  domain.UserContext{Sex: "male"},
		Panel: []domain.BiomarkerEntry{{Value: "10"}},
	})
	require.Error(t, err)
}

func TestPipelineRejectsDeadlineExceeded(t *testing.T) {
	pl := mustPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pl.Run(ctx, domain.PipelineRequest{User: domain.UserContext{Sex: "male"}})
	require.Error(t, err)
	pipeErr, ok := err.(*domain.PipelineError)
	require.True(t, ok)
	assert.Equal(t, domain.ErrDeadlineExceeded, pipeErr.Kind)
}

func TestAuditRecordsCoversAllFiveStages(t *testing.T) {
	pl := mustPipeline(t)
	result, err := pl.Run(context.Background(), domain.PipelineRequest{User: domain.UserContext{Sex: "male"}})
	require.NoError(t, err)
	records := AuditRecords(result)
	require.Len(t, records, 5)
	stages := make(map[string]bool)
	for _, r := range records {
		stages[r.Stage] = true
		assert.Equal(t, result.RunID, r.RunID)
	}
	for _, want := range []string{"normalize", "gates", "translate", "routing", "matching"} {
		assert.True(t, stages[want], "missing audit record for stage %s", want)
	}
}
