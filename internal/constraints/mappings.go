// Package constraints implements the constraint translator (spec stage C):
// a pure, deterministic mapping from constraint codes to enforcement
// fields. Grounded on the closed registry in
// original_source/app/brain/constraint_translator/mappings.py, re-expressed
// as Go struct literals instead of a Python dict.
package constraints

import "github.com/genomax/protocol-engine/internal/domain"

// MappingVersion is carried into every TranslatedConstraints output.
const MappingVersion = "constraint_mappings_v1.0"

// registry is the closed constraint-code registry. Every code a gate may
// emit (see internal/bloodwork/gates.go) has exactly one row here.
var registry = map[string]domain.ConstraintMapping{
	domain.BlockIron: {
		Code:               domain.BlockIron,
		BlockedIngredients: []string{"iron", "iron_bisglycinate", "ferrous_sulfate", "heme_iron"},
		ReasonCodes:        []string{"IRON_OVERLOAD_RISK"},
	},
	domain.BlockPotassium: {
		Code:               domain.BlockPotassium,
		BlockedIngredients: []string{"potassium_citrate", "potassium_chloride"},
		ReasonCodes:        []string{"HYPERKALEMIA_RISK"},
	},
	domain.BlockIodine: {
		Code:               domain.BlockIodine,
		BlockedIngredients: []string{"iodine", "kelp", "potassium_iodide"},
		ReasonCodes:        []string{"THYROID_SUPPRESSION_RISK"},
	},
	domain.BlockVitaminD: {
		Code:               domain.BlockVitaminD,
		BlockedIngredients: []string{"vitamin_d3", "vitamin_d2", "cholecalciferol"},
		ReasonCodes:        []string{"VITAMIN_D_TOXICITY_RISK"},
	},
	domain.BlockCalcium: {
		Code:               domain.BlockCalcium,
		BlockedIngredients: []string{"calcium_carbonate", "calcium_citrate"},
		ReasonCodes:        []string{"HYPERCALCEMIA_RISK"},
	},
	domain.BlockB12: {
		Code:                  domain.BlockB12,
		BlockedIngredients:    []string{},
		RecommendedIngredients: []string{"methylcobalamin", "cyanocobalamin"},
		ReasonCodes:           []string{"B12_SUPPLEMENTATION_INDICATED"},
	},
	domain.BlockPostMI: {
		Code:              domain.BlockPostMI,
		BlockedIngredients: []string{"yohimbe", "bitter_orange", "ephedra"},
		BlockedCategories: []string{"stimulant"},
		ReasonCodes:       []string{"CARDIOVASCULAR_EVENT_RISK"},
	},
	domain.BlockHepatotoxic: {
		Code:               domain.BlockHepatotoxic,
		BlockedIngredients: []string{"ashwagandha", "kava", "comfrey", "green_tea_extract_high_dose"},
		ReasonCodes:        []string{"HEPATOTOXICITY_RISK"},
	},
	domain.BlockRenal: {
		Code:               domain.BlockRenal,
		BlockedIngredients: []string{"creatine", "potassium_citrate"},
		ReasonCodes:        []string{"RENAL_IMPAIRMENT_RISK"},
	},
	domain.CautionHepatotoxic: {
		Code:         domain.CautionHepatotoxic,
		CautionFlags: []string{"hepatic_sensitive"},
		ReasonCodes:  []string{"HEPATIC_MONITORING_ADVISED"},
	},
	domain.CautionRenal: {
		Code:         domain.CautionRenal,
		CautionFlags: []string{"renal_sensitive"},
		ReasonCodes:  []string{"RENAL_MONITORING_ADVISED"},
	},
	domain.CautionVitaminD: {
		Code:         domain.CautionVitaminD,
		CautionFlags: []string{"vitamin_d_sensitive"},
		ReasonCodes:  []string{"VITAMIN_D_MONITORING_ADVISED"},
	},
	domain.CautionBloodThinning: {
		Code:         domain.CautionBloodThinning,
		CautionFlags: []string{"blood_thinning"},
		BlockedIngredients: []string{"high_dose_fish_oil", "nattokinase"},
		ReasonCodes:  []string{"BLEEDING_RISK"},
	},
	domain.FlagAcuteInflammation: {
		Code:        domain.FlagAcuteInflammation,
		ReasonCodes: []string{"ACUTE_INFLAMMATION_DETECTED"},
		RecommendedIngredients: []string{"omega_3", "curcumin"},
	},
	domain.FlagChronicInflammation: {
		Code:                   domain.FlagChronicInflammation,
		ReasonCodes:            []string{"CHRONIC_INFLAMMATION_DETECTED"},
		RecommendedIngredients: []string{"omega_3", "curcumin", "resveratrol"},
	},
	domain.FlagInsulinResistance: {
		Code:                   domain.FlagInsulinResistance,
		ReasonCodes:            []string{"INSULIN_RESISTANCE_INDICATED"},
		RecommendedIngredients: []string{"berberine", "alpha_lipoic_acid", "chromium"},
	},
	domain.FlagHyperglycemia: {
		Code:                   domain.FlagHyperglycemia,
		ReasonCodes:            []string{"HYPERGLYCEMIA_INDICATED"},
		RecommendedIngredients: []string{"berberine", "chromium"},
	},
	domain.FlagMethylfolateRequired: {
		Code:               domain.FlagMethylfolateRequired,
		BlockedIngredients: []string{"folic_acid"},
		RecommendedIngredients: []string{"methylfolate"},
		ReasonCodes:        []string{"MTHFR_TT_METHYLFOLATE_REQUIRED"},
	},
	domain.FlagMethylationSupport: {
		Code:                   domain.FlagMethylationSupport,
		RecommendedIngredients: []string{"methylfolate", "methylcobalamin", "trimethylglycine"},
		ReasonCodes:            []string{"METHYLATION_SUPPORT_INDICATED"},
	},
	domain.FlagB12Deficiency: {
		Code:                   domain.FlagB12Deficiency,
		RecommendedIngredients: []string{"methylcobalamin"},
		ReasonCodes:            []string{"B12_DEFICIENCY_DETECTED"},
	},
	domain.FlagFolateDeficiency: {
		Code:                   domain.FlagFolateDeficiency,
		RecommendedIngredients: []string{"methylfolate"},
		ReasonCodes:            []string{"FOLATE_DEFICIENCY_DETECTED"},
	},
	domain.FlagThyroidSupport: {
		Code:                   domain.FlagThyroidSupport,
		RecommendedIngredients: []string{"selenium", "tyrosine"},
		ReasonCodes:            []string{"THYROID_SUPPORT_INDICATED"},
	},
	domain.FlagHypothyroid: {
		Code:        domain.FlagHypothyroid,
		ReasonCodes: []string{"HYPOTHYROID_PATTERN_DETECTED"},
	},
	domain.FlagHyperthyroid: {
		Code:        domain.FlagHyperthyroid,
		ReasonCodes: []string{"HYPERTHYROID_PATTERN_DETECTED"},
	},
	domain.FlagCardiovascularRisk: {
		Code:                   domain.FlagCardiovascularRisk,
		RecommendedIngredients: []string{"omega_3", "coq10"},
		ReasonCodes:            []string{"CARDIOVASCULAR_RISK_DETECTED"},
	},
	domain.FlagLDLElevated: {
		Code:                   domain.FlagLDLElevated,
		RecommendedIngredients: []string{"plant_sterols", "soluble_fiber"},
		ReasonCodes:            []string{"LDL_ELEVATED_DETECTED"},
	},
	domain.FlagOxidativeStress: {
		Code:                   domain.FlagOxidativeStress,
		RecommendedIngredients: []string{"vitamin_c", "vitamin_e", "nac"},
		ReasonCodes:            []string{"OXIDATIVE_STRESS_DETECTED"},
	},
	domain.FlagAnemia: {
		Code:                   domain.FlagAnemia,
		RecommendedIngredients: []string{"iron_bisglycinate", "vitamin_c"},
		ReasonCodes:            []string{"ANEMIA_PATTERN_DETECTED"},
	},
	domain.FlagIronDeficiency: {
		Code:                   domain.FlagIronDeficiency,
		RecommendedIngredients: []string{"iron_bisglycinate"},
		ReasonCodes:            []string{"IRON_DEFICIENCY_DETECTED"},
	},
	domain.FlagTestosteroneLow: {
		Code:                   domain.FlagTestosteroneLow,
		RecommendedIngredients: []string{"zinc", "vitamin_d3", "ashwagandha"},
		ReasonCodes:            []string{"LOW_TESTOSTERONE_DETECTED"},
	},
	domain.FlagEstrogenImbalance: {
		Code:                   domain.FlagEstrogenImbalance,
		RecommendedIngredients: []string{"dim", "calcium_d_glucarate"},
		ReasonCodes:            []string{"ESTROGEN_IMBALANCE_DETECTED"},
	},
	domain.FlagCortisolElevated: {
		Code:                   domain.FlagCortisolElevated,
		RecommendedIngredients: []string{"ashwagandha", "phosphatidylserine"},
		ReasonCodes:            []string{"CORTISOL_ELEVATED_DETECTED"},
	},
}

// lookup returns the mapping row for a constraint code and whether it
// exists in the closed registry.
func lookup(code string) (domain.ConstraintMapping, bool) {
	m, ok := registry[code]
	return m, ok
}
