package bloodwork

import (
	"strconv"
	"strings"

	"github.com/genomax/protocol-engine/internal/domain"
	"github.com/sirupsen/logrus"
)

// Normalizer implements spec stage A: mapping raw (code, value, unit)
// entries to canonical, range-classified markers. It never fails; every
// panel entry either normalizes or is reported as unknown.
type Normalizer struct {
	log *logrus.Logger
}

// NewNormalizer builds a Normalizer. The canonical marker table, alias
// table, and reference ranges are process-wide and loaded once at package
// init, matching the read-only "reference-range set" of the data model.
func NewNormalizer(log *logrus.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize maps a raw panel to normalized, unknown, and computed markers.
func (n *Normalizer) Normalize(panel []domain.BiomarkerEntry, sex string, age int) domain.NormalizationResult {
	result := domain.NormalizationResult{RulesetVersion: RulesetVersion}
	byCode := make(map[string]domain.NormalizedMarker)

	for _, entry := range panel {
		rawCode := strings.ToLower(strings.TrimSpace(entry.Code))
		canonical, known := aliasTable[rawCode]
		if !known {
			result.Unknown = append(result.Unknown, domain.UnknownMarker{
				OriginalCode:  entry.Code,
				OriginalValue: entry.Value,
				OriginalUnit:  entry.Unit,
				Reason:        "code not in canonical allow-list",
			})
			continue
		}

		spec := specByCode[canonical]
		marker := n.normalizeOne(spec, entry, sex)
		byCode[canonical] = marker
		result.Normalized = append(result.Normalized, marker)
	}

	computed := computeDerivedMarkers(byCode)
	result.Computed = computed
	result.Normalized = append(result.Normalized, computed...)

	return result
}

// normalizeOne converts, range-classifies, and marks a single raw entry.
func (n *Normalizer) normalizeOne(spec markerSpec, entry domain.BiomarkerEntry, sex string) domain.NormalizedMarker {
	marker := domain.NormalizedMarker{
		CanonicalCode: spec.canonicalCode,
		OriginalCode:  entry.Code,
		OriginalValue: entry.Value,
		OriginalUnit:  entry.Unit,
	}

	if spec.categorical {
		marker.CategoricalValue = strings.ToUpper(strings.TrimSpace(entry.Value))
		marker.CanonicalUnit = ""
		marker.ConversionApplied = true
		marker.RangeStatus = n.classifyCategorical(spec, marker.CategoricalValue)
		return marker
	}

	value, reducedConfidence, ok := parseNumeric(entry.Value)
	if !ok || value < 0 {
		marker.RangeStatus = domain.RangeUnknown
		marker.ConversionApplied = false
		return marker
	}
	marker.ReducedConfidence = reducedConfidence

	canonicalValue, converted := convertUnit(spec, entry.Unit, value)
	marker.CanonicalValue = canonicalValue
	marker.CanonicalUnit = spec.canonicalUnit
	marker.ConversionApplied = converted
	if !converted && entry.Unit != "" && !strings.EqualFold(entry.Unit, spec.canonicalUnit) {
		marker.RangeStatus = domain.RangeUnknown
		return marker
	}

	rng, found := lookupRange(spec.canonicalCode, sex)
	if !found {
		marker.RangeStatus = domain.RangeUnknown
		return marker
	}
	marker.RangeStatus = classifyNumeric(canonicalValue, rng)
	return marker
}

// classifyCategorical compares a genotype-like value against the expected
// allele set; values outside it are UNKNOWN rather than blocking.
func (n *Normalizer) classifyCategorical(spec markerSpec, value string) domain.RangeStatus {
	rng, found := lookupRange(spec.canonicalCode, "")
	if !found {
		return domain.RangeUnknown
	}
	for _, expected := range rng.CategoricalExpected {
		if value == expected {
			return domain.RangeNormal
		}
	}
	return domain.RangeUnknown
}

// classifyNumeric buckets value into the range_status enum using low/high
// and optimal bounds.
func classifyNumeric(value float64, rng domain.ReferenceRange) domain.RangeStatus {
	switch {
	case value < rng.Low*0.5:
		return domain.RangeCriticalLow
	case value < rng.Low:
		return domain.RangeLow
	case value > rng.High*1.5 && rng.High > 0:
		return domain.RangeCriticalHigh
	case rng.High > 0 && value > rng.High:
		return domain.RangeHigh
	case rng.OptimalLow > 0 && rng.OptimalHigh > 0 && value >= rng.OptimalLow && value <= rng.OptimalHigh:
		return domain.RangeOptimal
	default:
		return domain.RangeNormal
	}
}

// convertUnit converts value from unit to the marker's canonical unit. It
// returns the original value with converted=true when unit already matches
// or is empty (assumed canonical); converted=false signals an unrecognized
// unit for a known code.
func convertUnit(spec markerSpec, unit string, value float64) (float64, bool) {
	trimmed := strings.TrimSpace(unit)
	if trimmed == "" || strings.EqualFold(trimmed, spec.canonicalUnit) {
		return value, true
	}
	for _, conv := range spec.conversions {
		if strings.EqualFold(conv.fromUnit, trimmed) {
			return value * conv.factor, true
		}
	}
	return value, false
}

// parseNumeric parses a raw value string, handling "<X"/">X" qualifiers and
// thousands-separator commas per spec §4.A edge cases.
func parseNumeric(raw string) (value float64, reducedConfidence bool, ok bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false, false
	}

	switch {
	case strings.HasPrefix(s, "<"):
		v, err := strconv.ParseFloat(strings.TrimSpace(s[1:]), 64)
		if err != nil {
			return 0, false, false
		}
		return v / 2, true, true
	case strings.HasPrefix(s, ">"):
		v, err := strconv.ParseFloat(strings.TrimSpace(s[1:]), 64)
		if err != nil {
			return 0, false, false
		}
		return v * 1.1, true, true
	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, false
		}
		return v, false, true
	}
}

// computeDerivedMarkers builds markers whose inputs are present among
// already-normalized base markers: HOMA-IR and the sodium:potassium ratio.
func computeDerivedMarkers(byCode map[string]domain.NormalizedMarker) []domain.NormalizedMarker {
	var out []domain.NormalizedMarker

	glucose, hasGlucose := byCode["fasting_glucose"]
	insulin, hasInsulin := byCode["fasting_insulin"]
	if hasGlucose && hasInsulin && glucose.RangeStatus != domain.RangeUnknown && insulin.RangeStatus != domain.RangeUnknown {
		homaIR := glucose.CanonicalValue * insulin.CanonicalValue / 405
		status := domain.RangeNormal
		if homaIR >= 2.5 {
			status = domain.RangeHigh
		}
		out = append(out, domain.NormalizedMarker{
			CanonicalCode:  "homa_ir",
			CanonicalValue: round4(homaIR),
			CanonicalUnit:  "index",
			RangeStatus:    status,
			Computed:       true,
		})
	}

	sodium, hasSodium := byCode["sodium"]
	potassium, hasPotassium := byCode["potassium"]
	if hasSodium && hasPotassium && potassium.CanonicalValue > 0 {
		ratio := sodium.CanonicalValue / potassium.CanonicalValue
		// Bucketed against the same 25/35 bounds GATE_NA_K_IMBALANCE
		// triggers on, so a caution flag never coexists with a marker this
		// output reports as normal.
		status := domain.RangeNormal
		if ratio > 35 || ratio < 25 {
			status = domain.RangeHigh
			if ratio < 25 {
				status = domain.RangeLow
			}
		}
		out = append(out, domain.NormalizedMarker{
			CanonicalCode:  "na_k_ratio",
			CanonicalValue: round4(ratio),
			CanonicalUnit:  "ratio",
			RangeStatus:    status,
			Computed:       true,
		})
	}

	return out
}

func round4(v float64) float64 {
	const p = 10000
	return float64(int64(v*p+0.5)) / p
}
