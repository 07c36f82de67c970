package verify

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// WarningCount is one warning histogram bin.
type WarningCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// KeyStats summarises one measurement key.
type KeyStats struct {
	Records    int      `json:"records"`
	Valid      int      `json:"valid"`
	NaN        int      `json:"nan"`
	Fallbacks  int      `json:"fallbacks"`
	Mismatches int      `json:"mismatches"`
	Mean       *float64 `json:"mean"`
	StdDev     *float64 `json:"stddev"`
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
}

// Provenance identifies what produced a run.
type Provenance struct {
	RunID          string    `json:"run_id"`
	SourceRevision string    `json:"source_revision"`
	Version        string    `json:"version"`
	DatasetPath    string    `json:"dataset_path"`
	PolicyVersion  string    `json:"policy_version"`
	Timestamp      time.Time `json:"run_timestamp"`
	CaseCount      int       `json:"case_count"`
	Keys           []string  `json:"measurement_keys"`
}

// Summary aggregates a run's records. Every count is order independent.
type Summary struct {
	TotalRecords             int                       `json:"total_records"`
	NaNCount                 int                       `json:"nan_count"`
	NaNRate                  float64                   `json:"nan_rate"`
	NonfiniteCount           int                       `json:"nonfinite_count"`
	WarningHistogram         map[string][]WarningCount `json:"warning_histogram"`
	DeterminismMismatchCount int                       `json:"determinism_mismatch_count"`
	FailureCountByType       map[string]int            `json:"failure_count_by_type"`
	KeyStats                 map[string]KeyStats       `json:"key_stats"`
	Provenance               Provenance                `json:"provenance"`
}

// Summarize folds records into a Summary. The warning histogram keeps the
// topN most frequent codes per key, ordered by count descending then code;
// topN < 1 keeps every code. Records with an error carry a NaN value and
// count towards the NaN rate.
func Summarize(records []Record, keys []string, topN int) Summary {
	s := Summary{
		TotalRecords:       len(records),
		WarningHistogram:   make(map[string][]WarningCount, len(keys)),
		FailureCountByType: make(map[string]int, len(FailureTypes)),
		KeyStats:           make(map[string]KeyStats, len(keys)),
	}
	for _, ft := range FailureTypes {
		s.FailureCountByType[string(ft)] = 0
	}

	counts := make(map[string]map[string]int, len(keys))
	values := make(map[string][]float64, len(keys))
	stats := make(map[string]*KeyStats, len(keys))
	for _, k := range keys {
		counts[k] = map[string]int{}
		stats[k] = &KeyStats{}
	}

	for _, r := range records {
		if math.IsNaN(r.Value) {
			s.NaNCount++
		}
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			s.NonfiniteCount++
		}
		if r.Mismatch {
			s.DeterminismMismatchCount++
		}
		if r.FailureType != FailureNone {
			s.FailureCountByType[string(r.FailureType)]++
		}

		ks, ok := stats[r.Key]
		if !ok {
			ks = &KeyStats{}
			stats[r.Key] = ks
			counts[r.Key] = map[string]int{}
		}
		ks.Records++
		if r.Fallback {
			ks.Fallbacks++
		}
		if r.Mismatch {
			ks.Mismatches++
		}
		if math.IsNaN(r.Value) {
			ks.NaN++
		} else if !math.IsInf(r.Value, 0) {
			ks.Valid++
			values[r.Key] = append(values[r.Key], r.Value)
		}
		for _, w := range r.Warnings {
			counts[r.Key][string(w)]++
		}
	}
	if s.TotalRecords > 0 {
		s.NaNRate = float64(s.NaNCount) / float64(s.TotalRecords)
	}

	for k, ks := range stats {
		vals := values[k]
		if len(vals) > 0 {
			sorted := append([]float64(nil), vals...)
			sort.Float64s(sorted)
			mean := stat.Mean(sorted, nil)
			ks.Mean, ks.Min, ks.Max = ptr(mean), ptr(sorted[0]), ptr(sorted[len(sorted)-1])
			if len(sorted) > 1 {
				ks.StdDev = ptr(stat.StdDev(sorted, nil))
			}
		}
		s.KeyStats[k] = *ks
		s.WarningHistogram[k] = topWarnings(counts[k], topN)
	}
	return s
}

// topWarnings orders bins by count descending, then code ascending.
func topWarnings(counts map[string]int, n int) []WarningCount {
	out := make([]WarningCount, 0, len(counts))
	for code, c := range counts {
		out = append(out, WarningCount{Code: code, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func ptr(v float64) *float64 { return &v }
