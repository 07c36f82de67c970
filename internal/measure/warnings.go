package measure

import "sort"

// WarningCode is an informational flag attached to a Result. The set of codes
// is append-only; each value has one documented meaning and codes are never
// renamed or reused.
type WarningCode string

const (
	// EmptyCandidates: the section band selected no vertices.
	EmptyCandidates WarningCode = "EMPTY_CANDIDATES"
	// BodyAxisTooShort: the robust body-axis extent is below min_axis_extent.
	BodyAxisTooShort WarningCode = "BODY_AXIS_TOO_SHORT"
	// DegenFail: geometry was insufficient to compute a value (too few
	// vertices, too few band points for a boundary, zero-length segment).
	DegenFail WarningCode = "DEGEN_FAIL"
	// UnitFail: the value or the body-axis extent is implausibly large for
	// metres. Non-fatal.
	UnitFail WarningCode = "UNIT_FAIL"
	// PerimeterLarge: a circumference exceeds the key's upper bound. Non-fatal.
	PerimeterLarge WarningCode = "PERIMETER_LARGE"
	// HipBleedRisk: a limb section sits close enough to the hip joint that
	// torso vertices may leak into the band.
	HipBleedRisk WarningCode = "HIP_BLEED_RISK"
	// KneeProximityRisk: a limb section sits close to the knee joint.
	KneeProximityRisk WarningCode = "KNEE_PROXIMITY_RISK"
	// LegRegionUncertain: the two legs are not clearly separated in the band.
	LegRegionUncertain WarningCode = "LEG_REGION_UNCERTAIN"
	// RegionAmbiguous: skin-weight affinity was flat across the search band,
	// so the cap could not be separated from its surroundings.
	RegionAmbiguous WarningCode = "REGION_AMBIGUOUS"
	// BandWidened: the section band was widened to reach min_candidates.
	BandWidened WarningCode = "BAND_WIDENED"
	// CandidatesCapped: the candidate set was thinned to max_candidates.
	CandidatesCapped WarningCode = "CANDIDATES_CAPPED"
	// CapFallback: fewer than min_cap_points cap points; a lower-confidence
	// representative was used.
	CapFallback WarningCode = "CAP_FALLBACK"
	// CapEmpty: no plausible representative exists for a side.
	CapEmpty WarningCode = "CAP_EMPTY"
)

var knownCodes = map[WarningCode]struct{}{
	EmptyCandidates:    {},
	BodyAxisTooShort:   {},
	DegenFail:          {},
	UnitFail:           {},
	PerimeterLarge:     {},
	HipBleedRisk:       {},
	KneeProximityRisk:  {},
	LegRegionUncertain: {},
	RegionAmbiguous:    {},
	BandWidened:        {},
	CandidatesCapped:   {},
	CapFallback:        {},
	CapEmpty:           {},
}

// Known reports whether code belongs to the warning vocabulary.
func Known(code WarningCode) bool {
	_, ok := knownCodes[code]
	return ok
}

// Codes returns every known warning code in sorted order.
func Codes() []WarningCode {
	out := make([]WarningCode, 0, len(knownCodes))
	for c := range knownCodes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// degenerateCodes mark a NaN value as an expected outcome rather than a defect.
var degenerateCodes = []WarningCode{DegenFail, EmptyCandidates, BodyAxisTooShort, CapEmpty}

// warnings collects codes in emission order without duplicates.
type warnings []WarningCode

func (w *warnings) add(c WarningCode) {
	for _, have := range *w {
		if have == c {
			return
		}
	}
	*w = append(*w, c)
}

func (w warnings) has(c WarningCode) bool {
	for _, have := range w {
		if have == c {
			return true
		}
	}
	return false
}
