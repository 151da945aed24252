package bloodwork

import (
	"fmt"

	"github.com/genomax/protocol-engine/internal/domain"
	"github.com/sirupsen/logrus"
)

// GateRegistryVersion is carried into every gate-evaluation output.
const GateRegistryVersion = "gate_registry_v2.0"

// GateEngine evaluates the closed registry of tiered safety gates against
// a normalized marker set, grounded on the teacher's rule-registry pattern
// (internal/service's evaluator-closure map, generalized from ACMG/AMP
// rules to bloodwork safety gates).
type GateEngine struct {
	log   *logrus.Logger
	gates []domain.SafetyGate
}

// NewGateEngine builds the gate registry and validates that every gate's
// required markers exist in the canonical allow-list. A gate referencing an
// unknown marker is a fatal startup misconfiguration per spec §4.B.
func NewGateEngine(log *logrus.Logger) (*GateEngine, error) {
	gates := buildGateRegistry()
	known := KnownMarkerCodes()
	known["homa_ir"] = struct{}{}
	known["na_k_ratio"] = struct{}{}

	for _, g := range gates {
		for _, marker := range g.RequiredMarkers {
			if _, ok := known[marker]; !ok {
				return nil, fmt.Errorf("gate %s references unknown canonical marker %q", g.GateID, marker)
			}
		}
	}

	return &GateEngine{log: log, gates: gates}, nil
}

// Evaluate runs every gate against the normalized marker set, producing the
// union of emitted constraint codes. It never fails at request time;
// missing-input conditions are recorded, not raised.
func (e *GateEngine) Evaluate(normalized []domain.NormalizedMarker, sex string, age int) domain.GateEvaluationResult {
	byCode := make(map[string]domain.NormalizedMarker, len(normalized))
	for _, m := range normalized {
		byCode[m.CanonicalCode] = m
	}

	var evaluations []domain.GateEvaluation
	var codes []string
	reviewRequired := false

	for _, gate := range e.gates {
		allPresent := true
		for _, marker := range gate.RequiredMarkers {
			if _, ok := byCode[marker]; !ok {
				allPresent = false
				break
			}
		}
		if !allPresent {
			if gate.Tier == domain.GateTierBlock {
				reviewRequired = true
				evaluations = append(evaluations, domain.GateEvaluation{
					GateID:      gate.GateID,
					Tier:        gate.Tier,
					State:       domain.GateInert,
					DataMissing: true,
				})
			}
			continue
		}

		if !gate.Trigger(byCode, sex, age) {
			continue
		}

		if gate.Exception != nil {
			if suppressed, reason := gate.Exception(byCode, sex, age); suppressed {
				evaluations = append(evaluations, domain.GateEvaluation{
					GateID:       gate.GateID,
					Tier:         gate.Tier,
					State:        domain.GateSuppressed,
					SuppressedBy: reason,
					EmittedCodes: domain.SortedSet(gate.ExceptionEmits),
				})
				codes = append(codes, gate.ExceptionEmits...)
				continue
			}
		}

		evaluations = append(evaluations, domain.GateEvaluation{
			GateID:       gate.GateID,
			Tier:         gate.Tier,
			State:        domain.GateActive,
			EmittedCodes: domain.SortedSet(gate.Emits),
		})
		codes = append(codes, gate.Emits...)
	}

	return domain.GateEvaluationResult{
		ActiveGates:     evaluations,
		ConstraintCodes: domain.SortedSet(codes),
		ReviewRequired:  reviewRequired,
		RulesetVersion:  GateRegistryVersion,
	}
}

func numeric(markers map[string]domain.NormalizedMarker, code string) (float64, bool) {
	m, ok := markers[code]
	if !ok || m.RangeStatus == domain.RangeUnknown {
		return 0, false
	}
	return m.CanonicalValue, true
}

func categorical(markers map[string]domain.NormalizedMarker, code string) (string, bool) {
	m, ok := markers[code]
	if !ok {
		return "", false
	}
	return m.CategoricalValue, true
}

// buildGateRegistry defines the 31-gate, 3-tier registry. Most gates use a
// simple threshold trigger; a handful carry an exception_expr that
// reclassifies a block into an alternate flag.
func buildGateRegistry() []domain.SafetyGate {
	return []domain.SafetyGate{
		{
			GateID:          "GATE_IRON_OVERLOAD",
			Tier:            domain.GateTierBlock,
			RequiredMarkers: []string{"ferritin"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "ferritin")
				return ok && v > 300
			},
			Exception: func(m map[string]domain.NormalizedMarker, sex string, age int) (bool, string) {
				crp, ok := numeric(m, "crp")
				if ok && crp >= 5.0 {
					return true, "acute inflammation (CRP elevated) suppresses iron block"
				}
				return false, ""
			},
			Emits:          []string{domain.BlockIron},
			ExceptionEmits: []string{domain.FlagAcuteInflammation},
		},
		{
			GateID:          "GATE_IRON_DEFICIENCY",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"ferritin"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "ferritin")
				return ok && v < 30
			},
			Emits: []string{domain.FlagIronDeficiency, domain.FlagAnemia},
		},
		{
			GateID:          "GATE_CHRONIC_INFLAMMATION",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"crp"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "crp")
				return ok && v >= 1.0 && v < 5.0
			},
			Emits: []string{domain.FlagChronicInflammation},
		},
		{
			GateID:          "GATE_METHYLFOLATE_REQUIRED",
			Tier:            domain.GateTierCaution,
			RequiredMarkers: []string{"mthfr_c677t"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := categorical(m, "mthfr_c677t")
				return ok && v == "TT"
			},
			Emits: []string{domain.FlagMethylfolateRequired, domain.FlagMethylationSupport},
		},
		{
			GateID:          "GATE_HOMOCYSTEINE_ELEVATED",
			Tier:            domain.GateTierCaution,
			RequiredMarkers: []string{"homocysteine"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "homocysteine")
				return ok && v > 15
			},
			Emits: []string{domain.FlagMethylationSupport, domain.FlagCardiovascularRisk},
		},
		{
			GateID:          "GATE_HEPATOTOXIC_RISK",
			Tier:            domain.GateTierBlock,
			RequiredMarkers: []string{"alt", "ast"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				alt, ok1 := numeric(m, "alt")
				ast, ok2 := numeric(m, "ast")
				return (ok1 && alt > 55) && (ok2 && ast > 48)
			},
			Emits: []string{domain.CautionHepatotoxic, domain.BlockHepatotoxic},
		},
		{
			GateID:          "GATE_HEPATOTOXIC_CAUTION",
			Tier:            domain.GateTierCaution,
			RequiredMarkers: []string{"alt", "ast"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				alt, ok1 := numeric(m, "alt")
				ast, ok2 := numeric(m, "ast")
				return (ok1 && alt > 44 && alt <= 55) || (ok2 && ast > 40 && ast <= 48)
			},
			Emits: []string{domain.CautionHepatotoxic},
		},
		{
			GateID:          "GATE_RENAL_IMPAIRMENT",
			Tier:            domain.GateTierBlock,
			RequiredMarkers: []string{"egfr"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "egfr")
				return ok && v < 30
			},
			Emits: []string{domain.BlockRenal, domain.BlockPotassium},
		},
		{
			GateID:          "GATE_RENAL_CAUTION",
			Tier:            domain.GateTierCaution,
			RequiredMarkers: []string{"egfr"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "egfr")
				return ok && v >= 30 && v < 60
			},
			Emits: []string{domain.CautionRenal},
		},
		{
			GateID:          "GATE_HYPERKALEMIA",
			Tier:            domain.GateTierBlock,
			RequiredMarkers: []string{"potassium"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "potassium")
				return ok && v > 5.1
			},
			Emits: []string{domain.BlockPotassium},
		},
		{
			GateID:          "GATE_HYPERCALCEMIA",
			Tier:            domain.GateTierBlock,
			RequiredMarkers: []string{"calcium"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "calcium")
				return ok && v > 10.5
			},
			Emits: []string{domain.BlockCalcium, domain.BlockVitaminD},
		},
		{
			GateID:          "GATE_VITAMIN_D_TOXICITY",
			Tier:            domain.GateTierBlock,
			RequiredMarkers: []string{"vitamin_d"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "vitamin_d")
				return ok && v > 100
			},
			Emits: []string{domain.BlockVitaminD},
		},
		{
			GateID:          "GATE_VITAMIN_D_CAUTION",
			Tier:            domain.GateTierCaution,
			RequiredMarkers: []string{"vitamin_d"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "vitamin_d")
				return ok && v > 80 && v <= 100
			},
			Emits: []string{domain.CautionVitaminD},
		},
		{
			GateID:          "GATE_B12_DEFICIENCY",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"vitamin_b12"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "vitamin_b12")
				return ok && v < 200
			},
			Emits: []string{domain.FlagB12Deficiency, domain.BlockB12},
		},
		{
			GateID:          "GATE_FOLATE_DEFICIENCY",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"folate"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "folate")
				return ok && v < 2.7
			},
			Emits: []string{domain.FlagFolateDeficiency},
		},
		{
			GateID:          "GATE_HYPOTHYROID",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"tsh"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "tsh")
				return ok && v > 4.0
			},
			Emits: []string{domain.FlagHypothyroid, domain.FlagThyroidSupport},
		},
		{
			GateID:          "GATE_HYPERTHYROID",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"tsh"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "tsh")
				return ok && v < 0.4
			},
			Emits: []string{domain.FlagHyperthyroid, domain.BlockIodine},
		},
		{
			GateID:          "GATE_LDL_ELEVATED",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"ldl"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "ldl")
				return ok && v > 130
			},
			Emits: []string{domain.FlagLDLElevated, domain.FlagCardiovascularRisk},
		},
		{
			GateID:          "GATE_INSULIN_RESISTANCE",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"homa_ir"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "homa_ir")
				return ok && v >= 2.5
			},
			Emits: []string{domain.FlagInsulinResistance},
		},
		{
			GateID:          "GATE_HYPERGLYCEMIA",
			Tier:            domain.GateTierCaution,
			RequiredMarkers: []string{"fasting_glucose"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "fasting_glucose")
				return ok && v >= 100
			},
			Emits: []string{domain.FlagHyperglycemia},
		},
		{
			GateID:          "GATE_TESTOSTERONE_LOW",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"testosterone_total"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "testosterone_total")
				return ok && sex == "male" && v < 300
			},
			Emits: []string{domain.FlagTestosteroneLow},
		},
		{
			GateID:          "GATE_ESTROGEN_IMBALANCE",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"estradiol"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "estradiol")
				return ok && (v < 10 || v > 350)
			},
			Emits: []string{domain.FlagEstrogenImbalance},
		},
		{
			GateID:          "GATE_CORTISOL_ELEVATED",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"cortisol_am"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "cortisol_am")
				return ok && v > 23
			},
			Emits: []string{domain.FlagCortisolElevated},
		},
		{
			GateID:          "GATE_ANEMIA_LOW_HGB",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"hemoglobin"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "hemoglobin")
				if !ok {
					return false
				}
				if sex == "female" {
					return v < 12.0
				}
				return v < 13.5
			},
			Emits: []string{domain.FlagAnemia},
		},
		{
			GateID:          "GATE_OXIDATIVE_STRESS_LIPIDS",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"ldl", "hdl"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				ldl, ok1 := numeric(m, "ldl")
				hdl, ok2 := numeric(m, "hdl")
				return ok1 && ok2 && hdl > 0 && ldl/hdl > 3.5
			},
			Emits: []string{domain.FlagOxidativeStress},
		},
		{
			GateID:          "GATE_BLOOD_THINNING_CAUTION",
			Tier:            domain.GateTierCaution,
			RequiredMarkers: []string{"platelets"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "platelets")
				return ok && v < 150
			},
			Emits: []string{domain.CautionBloodThinning},
		},
		{
			GateID:          "GATE_POST_MI_RISK",
			Tier:            domain.GateTierBlock,
			RequiredMarkers: []string{"ldl", "hba1c"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				ldl, ok1 := numeric(m, "ldl")
				a1c, ok2 := numeric(m, "hba1c")
				return ok1 && ok2 && ldl > 160 && a1c > 6.5
			},
			Emits: []string{domain.BlockPostMI, domain.FlagCardiovascularRisk},
		},
		{
			GateID:          "GATE_URIC_ACID_ELEVATED",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"uric_acid"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "uric_acid")
				return ok && v > 7.0
			},
			Emits: []string{domain.FlagOxidativeStress},
		},
		{
			GateID:          "GATE_NA_K_IMBALANCE",
			Tier:            domain.GateTierCaution,
			RequiredMarkers: []string{"na_k_ratio"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "na_k_ratio")
				return ok && (v > 35 || v < 25)
			},
			Emits: []string{domain.CautionRenal},
		},
		{
			GateID:          "GATE_ZINC_DEFICIENCY",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"zinc"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "zinc")
				return ok && v < 60
			},
			Emits: []string{domain.FlagOxidativeStress},
		},
		{
			GateID:          "GATE_MAGNESIUM_DEFICIENCY",
			Tier:            domain.GateTierInformational,
			RequiredMarkers: []string{"magnesium"},
			Trigger: func(m map[string]domain.NormalizedMarker, sex string, age int) bool {
				v, ok := numeric(m, "magnesium")
				return ok && v < 1.7
			},
			Emits: []string{domain.FlagCardiovascularRisk},
		},
	}
}
