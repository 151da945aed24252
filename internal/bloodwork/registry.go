// Package bloodwork implements the biomarker normalizer (spec stage A) and
// the safety gate engine (spec stage B). Both operate over a closed,
// versioned set of canonical marker codes; neither performs I/O.
package bloodwork

import "github.com/genomax/protocol-engine/internal/domain"

// RulesetVersion is carried end to end into every output so downstream
// hashes cover ruleset identity.
const RulesetVersion = "bloodwork_v2.0"

// unitConversion multiplies a value in fromUnit by factor to reach the
// canonical unit.
type unitConversion struct {
	fromUnit string
	factor   float64
}

// markerSpec describes one canonical marker: its accepted lab-code aliases,
// canonical unit, accepted non-canonical units with conversion factors, and
// whether it is a categorical (genotype-like) marker.
type markerSpec struct {
	canonicalCode string
	aliases       []string
	canonicalUnit string
	conversions   []unitConversion
	categorical   bool
}

// canonicalMarkers is the ~40-marker allow-list. Codes not present here are
// reported as unknown and never participate in gates.
var canonicalMarkers = []markerSpec{
	{canonicalCode: "ferritin", aliases: []string{"ferritin"}, canonicalUnit: "ng/mL"},
	{canonicalCode: "crp", aliases: []string{"crp", "hs_crp", "hscrp"}, canonicalUnit: "mg/L"},
	{canonicalCode: "homocysteine", aliases: []string{"homocysteine", "hcy"}, canonicalUnit: "umol/L"},
	{canonicalCode: "mthfr_c677t", aliases: []string{"mthfr_c677t", "mthfr"}, categorical: true},
	{canonicalCode: "alt", aliases: []string{"alt", "sgpt"}, canonicalUnit: "U/L"},
	{canonicalCode: "ast", aliases: []string{"ast", "sgot"}, canonicalUnit: "U/L"},
	{canonicalCode: "fasting_glucose", aliases: []string{"fasting_glucose", "glucose"}, canonicalUnit: "mg/dL",
		conversions: []unitConversion{{fromUnit: "mmol/L", factor: 18}}},
	{canonicalCode: "fasting_insulin", aliases: []string{"fasting_insulin", "insulin"}, canonicalUnit: "uIU/mL"},
	{canonicalCode: "vitamin_d", aliases: []string{"vitamin_d", "25_oh_vitamin_d", "vitd"}, canonicalUnit: "ng/mL",
		conversions: []unitConversion{{fromUnit: "nmol/L", factor: 0.4}}},
	{canonicalCode: "calcium", aliases: []string{"calcium"}, canonicalUnit: "mg/dL"},
	{canonicalCode: "potassium", aliases: []string{"potassium", "k"}, canonicalUnit: "mmol/L"},
	{canonicalCode: "sodium", aliases: []string{"sodium", "na"}, canonicalUnit: "mmol/L"},
	{canonicalCode: "vitamin_b12", aliases: []string{"vitamin_b12", "b12", "cobalamin"}, canonicalUnit: "pg/mL"},
	{canonicalCode: "folate", aliases: []string{"folate", "folic_acid_serum"}, canonicalUnit: "ng/mL"},
	{canonicalCode: "tsh", aliases: []string{"tsh"}, canonicalUnit: "uIU/mL"},
	{canonicalCode: "free_t3", aliases: []string{"free_t3", "ft3"}, canonicalUnit: "pg/mL"},
	{canonicalCode: "free_t4", aliases: []string{"free_t4", "ft4"}, canonicalUnit: "ng/dL"},
	{canonicalCode: "ldl", aliases: []string{"ldl", "ldl_cholesterol"}, canonicalUnit: "mg/dL"},
	{canonicalCode: "hdl", aliases: []string{"hdl", "hdl_cholesterol"}, canonicalUnit: "mg/dL"},
	{canonicalCode: "triglycerides", aliases: []string{"triglycerides", "trig"}, canonicalUnit: "mg/dL"},
	{canonicalCode: "testosterone_total", aliases: []string{"testosterone_total", "testosterone"}, canonicalUnit: "ng/dL"},
	{canonicalCode: "estradiol", aliases: []string{"estradiol", "e2"}, canonicalUnit: "pg/mL"},
	{canonicalCode: "cortisol_am", aliases: []string{"cortisol_am", "cortisol"}, canonicalUnit: "ug/dL"},
	{canonicalCode: "hba1c", aliases: []string{"hba1c", "a1c"}, canonicalUnit: "%"},
	{canonicalCode: "egfr", aliases: []string{"egfr"}, canonicalUnit: "mL/min/1.73m2"},
	{canonicalCode: "creatinine", aliases: []string{"creatinine"}, canonicalUnit: "mg/dL",
		conversions: []unitConversion{{fromUnit: "umol/L", factor: 0.0113}}},
	{canonicalCode: "iron", aliases: []string{"iron", "serum_iron"}, canonicalUnit: "ug/dL"},
	{canonicalCode: "tibc", aliases: []string{"tibc"}, canonicalUnit: "ug/dL"},
	{canonicalCode: "transferrin_saturation", aliases: []string{"transferrin_saturation", "tsat"}, canonicalUnit: "%"},
	{canonicalCode: "magnesium", aliases: []string{"magnesium", "mg"}, canonicalUnit: "mg/dL"},
	{canonicalCode: "zinc", aliases: []string{"zinc"}, canonicalUnit: "ug/dL"},
	{canonicalCode: "psa", aliases: []string{"psa"}, canonicalUnit: "ng/mL"},
	{canonicalCode: "wbc", aliases: []string{"wbc"}, canonicalUnit: "10^3/uL"},
	{canonicalCode: "hemoglobin", aliases: []string{"hemoglobin", "hgb"}, canonicalUnit: "g/dL"},
	{canonicalCode: "hematocrit", aliases: []string{"hematocrit", "hct"}, canonicalUnit: "%"},
	{canonicalCode: "platelets", aliases: []string{"platelets", "plt"}, canonicalUnit: "10^3/uL"},
	{canonicalCode: "uric_acid", aliases: []string{"uric_acid"}, canonicalUnit: "mg/dL"},
	{canonicalCode: "dhea_s", aliases: []string{"dhea_s", "dheas"}, canonicalUnit: "ug/dL"},
	{canonicalCode: "shbg", aliases: []string{"shbg"}, canonicalUnit: "nmol/L"},
	{canonicalCode: "total_cholesterol", aliases: []string{"total_cholesterol", "cholesterol"}, canonicalUnit: "mg/dL"},
	{canonicalCode: "fasting_glucose_urine_protein", aliases: []string{"urine_protein"}, canonicalUnit: "mg/dL"},
}

// aliasTable maps every accepted raw lab code to its canonical code.
var aliasTable = buildAliasTable()

func buildAliasTable() map[string]string {
	table := make(map[string]string)
	for _, spec := range canonicalMarkers {
		for _, alias := range spec.aliases {
			table[alias] = spec.canonicalCode
		}
	}
	return table
}

// specByCode indexes canonicalMarkers for O(1) lookup.
var specByCode = buildSpecIndex()

func buildSpecIndex() map[string]markerSpec {
	idx := make(map[string]markerSpec, len(canonicalMarkers))
	for _, spec := range canonicalMarkers {
		idx[spec.canonicalCode] = spec
	}
	return idx
}

// KnownMarkerCodes returns the closed allow-list of canonical marker codes,
// used by the gate engine to validate its registry at startup.
func KnownMarkerCodes() map[string]struct{} {
	out := make(map[string]struct{}, len(canonicalMarkers))
	for _, spec := range canonicalMarkers {
		out[spec.canonicalCode] = struct{}{}
	}
	return out
}

// referenceRanges is the versioned reference-range table keyed by
// (canonical_code, sex, age_bracket). An empty sex/age_bracket matches any
// value of that dimension.
var referenceRanges = []domain.ReferenceRange{
	{CanonicalCode: "ferritin", Sex: "male", Low: 24, High: 336, OptimalLow: 50, OptimalHigh: 150},
	{CanonicalCode: "ferritin", Sex: "female", Low: 11, High: 307, OptimalLow: 30, OptimalHigh: 120},
	{CanonicalCode: "crp", Low: 0, High: 3.0, OptimalHigh: 1.0},
	{CanonicalCode: "homocysteine", Low: 4, High: 15, OptimalHigh: 10},
	{CanonicalCode: "mthfr_c677t", CategoricalExpected: []string{"CC", "CT", "TT"}},
	{CanonicalCode: "alt", Low: 0, High: 44},
	{CanonicalCode: "ast", Low: 0, High: 40},
	{CanonicalCode: "fasting_glucose", Low: 70, High: 99, OptimalLow: 75, OptimalHigh: 90},
	{CanonicalCode: "fasting_insulin", Low: 2, High: 25, OptimalHigh: 10},
	{CanonicalCode: "vitamin_d", Low: 30, High: 100, OptimalLow: 40, OptimalHigh: 60},
	{CanonicalCode: "calcium", Low: 8.5, High: 10.5},
	{CanonicalCode: "potassium", Low: 3.5, High: 5.1},
	{CanonicalCode: "sodium", Low: 135, High: 145},
	{CanonicalCode: "vitamin_b12", Low: 200, High: 900, OptimalLow: 400},
	{CanonicalCode: "folate", Low: 2.7, High: 17},
	{CanonicalCode: "tsh", Low: 0.4, High: 4.0, OptimalLow: 0.5, OptimalHigh: 2.5},
	{CanonicalCode: "free_t3", Low: 2.0, High: 4.4},
	{CanonicalCode: "free_t4", Low: 0.8, High: 1.8},
	{CanonicalCode: "ldl", Low: 0, High: 100},
	{CanonicalCode: "hdl", Sex: "male", Low: 40, High: 999},
	{CanonicalCode: "hdl", Sex: "female", Low: 50, High: 999},
	{CanonicalCode: "triglycerides", Low: 0, High: 150},
	{CanonicalCode: "testosterone_total", Sex: "male", Low: 300, High: 1000},
	{CanonicalCode: "testosterone_total", Sex: "female", Low: 15, High: 70},
	{CanonicalCode: "estradiol", Low: 10, High: 350},
	{CanonicalCode: "cortisol_am", Low: 6, High: 23},
	{CanonicalCode: "hba1c", Low: 4.0, High: 5.6, OptimalHigh: 5.3},
	{CanonicalCode: "egfr", Low: 90, High: 999},
	{CanonicalCode: "creatinine", Sex: "male", Low: 0.7, High: 1.3},
	{CanonicalCode: "creatinine", Sex: "female", Low: 0.6, High: 1.1},
	{CanonicalCode: "iron", Low: 60, High: 170},
	{CanonicalCode: "tibc", Low: 240, High: 450},
	{CanonicalCode: "transferrin_saturation", Low: 20, High: 50},
	{CanonicalCode: "magnesium", Low: 1.7, High: 2.2},
	{CanonicalCode: "zinc", Low: 60, High: 120},
	{CanonicalCode: "psa", Low: 0, High: 4.0},
	{CanonicalCode: "wbc", Low: 4.5, High: 11.0},
	{CanonicalCode: "hemoglobin", Sex: "male", Low: 13.5, High: 17.5},
	{CanonicalCode: "hemoglobin", Sex: "female", Low: 12.0, High: 15.5},
	{CanonicalCode: "hematocrit", Sex: "male", Low: 38.8, High: 50.0},
	{CanonicalCode: "hematocrit", Sex: "female", Low: 34.9, High: 44.5},
	{CanonicalCode: "platelets", Low: 150, High: 450},
	{CanonicalCode: "uric_acid", Low: 3.4, High: 7.0},
	{CanonicalCode: "dhea_s", Low: 80, High: 560},
	{CanonicalCode: "shbg", Low: 10, High: 80},
	{CanonicalCode: "total_cholesterol", Low: 0, High: 200},
}

func lookupRange(code, sex string) (domain.ReferenceRange, bool) {
	var fallback domain.ReferenceRange
	haveFallback := false
	for _, r := range referenceRanges {
		if r.CanonicalCode != code {
			continue
		}
		if r.Sex == sex {
			return r, true
		}
		if r.Sex == "" {
			fallback = r
			haveFallback = true
		}
	}
	return fallback, haveFallback
}
