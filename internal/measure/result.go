package measure

import (
	"math"
	"sort"
	"strings"
)

// Result is one measurement outcome. A NaN Value with a degenerate warning is
// a normal, expected result; errors are reported separately by Measure.
type Result struct {
	Key       string
	Value     float64
	SectionID string
	MethodTag string
	Warnings  []WarningCode
	Fallback  bool
}

// Has reports whether the result carries code.
func (r Result) Has(code WarningCode) bool {
	for _, w := range r.Warnings {
		if w == code {
			return true
		}
	}
	return false
}

// Degenerate reports whether the result is a NaN explained by insufficient
// geometry.
func (r Result) Degenerate() bool {
	if !math.IsNaN(r.Value) {
		return false
	}
	for _, c := range degenerateCodes {
		if r.Has(c) {
			return true
		}
	}
	return false
}

// SortedWarnings returns a sorted copy of the warning codes.
func (r Result) SortedWarnings() []WarningCode {
	out := append([]WarningCode(nil), r.Warnings...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WarningString joins the sorted warning codes with '|'.
func (r Result) WarningString() string {
	ws := r.SortedWarnings()
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = string(w)
	}
	return strings.Join(parts, "|")
}

// Equivalent reports whether r and o satisfy the determinism contract:
// identical key, section ID, method tag, fallback flag and value (NaN equals
// NaN), and the same warning codes in any order.
func (r Result) Equivalent(o Result) bool {
	if r.Key != o.Key || r.SectionID != o.SectionID || r.MethodTag != o.MethodTag || r.Fallback != o.Fallback {
		return false
	}
	if !sameValue(r.Value, o.Value) {
		return false
	}
	a, b := r.SortedWarnings(), o.SortedWarnings()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameValue(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}
