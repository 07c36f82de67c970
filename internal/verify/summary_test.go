package verify

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/bodymeasure/internal/measure"
)

func TestSummarize_HistogramOrderAndTopN(t *testing.T) {
	w := func(codes ...measure.WarningCode) []measure.WarningCode { return codes }
	records := []Record{
		{Key: "a", Value: 1, Warnings: w(measure.BandWidened, measure.UnitFail)},
		{Key: "a", Value: 1, Warnings: w(measure.BandWidened, measure.CapFallback)},
		{Key: "a", Value: 1, Warnings: w(measure.UnitFail)},
		{Key: "a", Value: 1, Warnings: w(measure.CandidatesCapped)},
		{Key: "b", Value: math.Inf(1)},
	}
	s := Summarize(records, []string{"a", "b"}, 3)

	want := []WarningCount{
		{Code: string(measure.BandWidened), Count: 2},
		{Code: string(measure.UnitFail), Count: 2},
		{Code: string(measure.CandidatesCapped), Count: 1},
	}
	if diff := cmp.Diff(want, s.WarningHistogram["a"]); diff != "" {
		t.Errorf("histogram mismatch (-want +got):\n%s", diff)
	}
	if got := s.WarningHistogram["b"]; len(got) != 0 {
		t.Errorf("histogram for b = %v, want empty", got)
	}
	if s.NonfiniteCount != 1 || s.NaNCount != 0 {
		t.Errorf("nonfinite=%d nan=%d, want 1 and 0", s.NonfiniteCount, s.NaNCount)
	}
	if s.KeyStats["b"].Valid != 0 || s.KeyStats["b"].Mean != nil {
		t.Errorf("infinite values must not enter key stats: %+v", s.KeyStats["b"])
	}
}

func TestSummarize_OrderIndependent(t *testing.T) {
	records := []Record{
		{Key: "a", Value: 0.5, Warnings: []measure.WarningCode{measure.UnitFail}},
		{Key: "a", Value: math.NaN(), FailureType: FailureDegenerate, Warnings: []measure.WarningCode{measure.DegenFail}},
		{Key: "a", Value: 0.7, Mismatch: true},
		{Key: "a", Value: math.NaN(), FailureType: FailureContract},
	}
	reversed := make([]Record, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	a := Summarize(records, []string{"a"}, 5)
	b := Summarize(reversed, []string{"a"}, 5)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("summary depends on record order (-fwd +rev):\n%s", diff)
	}
	if a.FailureCountByType["execution"] != 0 || a.FailureCountByType["contract"] != 1 {
		t.Errorf("failure counts = %v", a.FailureCountByType)
	}
	if a.NaNRate != 0.5 || a.DeterminismMismatchCount != 1 {
		t.Errorf("nan_rate=%v mismatches=%d", a.NaNRate, a.DeterminismMismatchCount)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, []string{"a"}, 5)
	if s.NaNRate != 0 || s.TotalRecords != 0 {
		t.Errorf("empty summary = %+v", s)
	}
	if _, ok := s.KeyStats["a"]; !ok {
		t.Error("requested keys always get stats")
	}
}
