package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bodymeasure/internal/config"
	"github.com/banshee-data/bodymeasure/internal/dataset"
	"github.com/banshee-data/bodymeasure/internal/measure"
	"github.com/banshee-data/bodymeasure/internal/metrics"
	"github.com/banshee-data/bodymeasure/internal/monitoring"
	"github.com/banshee-data/bodymeasure/internal/testutil"
	"github.com/banshee-data/bodymeasure/internal/version"
)

func init() {
	monitoring.SetLogger(nil)
}

// memSource serves cases from memory. Entries in fail are returned as
// errors; IDs in panics make Get panic.
type memSource struct {
	ids    []string
	cases  map[string]dataset.Case
	fail   map[string]error
	panics map[string]bool
}

func (s *memSource) IDs(context.Context) ([]string, error) { return s.ids, nil }

func (s *memSource) Get(_ context.Context, id string) (dataset.Case, error) {
	if s.panics[id] {
		panic("loader exploded for " + id)
	}
	if err, ok := s.fail[id]; ok {
		return dataset.Case{}, err
	}
	return s.cases[id], nil
}

func defaultPolicy(t *testing.T) *config.Policy {
	t.Helper()
	p, err := measure.DefaultPolicy(measure.DefaultPolicyVersion)
	require.NoError(t, err)
	return p
}

func mixedSource() *memSource {
	body := testutil.Mannequin(testutil.MannequinOptions{})
	return &memSource{
		ids: []string{"body", "flat", "corrupt", "boom"},
		cases: map[string]dataset.Case{
			"body": {ID: "body", Vertices: body.Vertices, Joints: body.Joints, Weights: body.Weights},
			"flat": {ID: "flat", Vertices: testutil.Flat(100, 0.5)},
		},
		fail:   map[string]error{"corrupt": &measure.ContractError{Reason: "bad blob"}},
		panics: map[string]bool{"boom": true},
	}
}

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)) }

func TestRun_MixedBatch(t *testing.T) {
	keys := []string{measure.WaistCircumference, measure.ShoulderWidth}
	rep, err := Run(context.Background(), mixedSource(), Options{
		Policy:      defaultPolicy(t),
		Keys:        keys,
		Workers:     3,
		TopN:        5,
		DatasetPath: "cases.db",
		Now:         fixedNow,
	})
	require.NoError(t, err)
	require.Len(t, rep.Records, 8)

	type row struct {
		id, key string
		ft      FailureType
	}
	var got []row
	for _, r := range rep.Records {
		got = append(got, row{r.CaseID, r.Key, r.FailureType})
	}
	assert.Equal(t, []row{
		{"body", measure.WaistCircumference, FailureNone},
		{"body", measure.ShoulderWidth, FailureNone},
		{"flat", measure.WaistCircumference, FailureDegenerate},
		{"flat", measure.ShoulderWidth, FailureContract},
		{"corrupt", measure.WaistCircumference, FailureContract},
		{"corrupt", measure.ShoulderWidth, FailureContract},
		{"boom", measure.WaistCircumference, FailureExecution},
		{"boom", measure.ShoulderWidth, FailureExecution},
	}, got)

	body := rep.Records[1]
	assert.InDelta(t, 0.36, body.Value, 1e-9)
	assert.NotEmpty(t, body.SectionID)
	assert.Equal(t, "joint.cap_distance", body.MethodTag)
	assert.Empty(t, body.Error)

	flat := rep.Records[2]
	assert.True(t, math.IsNaN(flat.Value))
	assert.Contains(t, flat.Warnings, measure.BodyAxisTooShort)
	assert.Contains(t, rep.Records[3].Error, "joints are required")
	assert.Contains(t, rep.Records[4].Error, "bad blob")
	assert.Contains(t, rep.Records[6].Error, "loader exploded")

	s := rep.Summary
	assert.Equal(t, 8, s.TotalRecords)
	assert.Equal(t, 6, s.NaNCount)
	assert.InDelta(t, 0.75, s.NaNRate, 1e-12)
	assert.Equal(t, 6, s.NonfiniteCount)
	assert.Zero(t, s.DeterminismMismatchCount)
	assert.Equal(t, map[string]int{"contract": 3, "execution": 2, "degenerate": 1}, s.FailureCountByType)
	assert.Equal(t, []WarningCount{{Code: string(measure.BodyAxisTooShort), Count: 1}}, s.WarningHistogram[measure.WaistCircumference])
	assert.Empty(t, s.WarningHistogram[measure.ShoulderWidth])

	ws := s.KeyStats[measure.ShoulderWidth]
	assert.Equal(t, 4, ws.Records)
	assert.Equal(t, 1, ws.Valid)
	require.NotNil(t, ws.Mean)
	assert.InDelta(t, 0.36, *ws.Mean, 1e-9)
	assert.Nil(t, ws.StdDev)

	p := s.Provenance
	assert.Equal(t, "cases.db", p.DatasetPath)
	assert.Equal(t, measure.DefaultPolicyVersion, p.PolicyVersion)
	assert.Equal(t, version.Revision(), p.SourceRevision)
	assert.Equal(t, time.UTC, p.Timestamp.Location())
	assert.True(t, p.Timestamp.Equal(fixedNow()))
	assert.Equal(t, 4, p.CaseCount)
	_, err = uuid.Parse(p.RunID)
	assert.NoError(t, err)
}

func TestRun_AllKeysOnMannequin(t *testing.T) {
	body := testutil.Mannequin(testutil.MannequinOptions{})
	src := &memSource{
		ids:   []string{"m"},
		cases: map[string]dataset.Case{"m": {ID: "m", Vertices: body.Vertices, Joints: body.Joints, Weights: body.Weights}},
	}
	policy := defaultPolicy(t)
	rep, err := Run(context.Background(), src, Options{Policy: policy})
	require.NoError(t, err)
	require.Len(t, rep.Records, len(policy.Keys()))
	for _, r := range rep.Records {
		assert.Equal(t, FailureNone, r.FailureType, r.Key)
		assert.False(t, r.Mismatch, r.Key)
		assert.Empty(t, r.Warnings, r.Key)
	}
	assert.Zero(t, rep.Summary.NaNCount)
}

func TestRun_TruncatesDiagnostics(t *testing.T) {
	src := &memSource{ids: []string{"boom"}, panics: map[string]bool{"boom": true}}
	rep, err := Run(context.Background(), src, Options{
		Policy:      defaultPolicy(t),
		Keys:        []string{measure.ArmLength},
		MaxErrorLen: 64,
	})
	require.NoError(t, err)
	require.Len(t, rep.Records, 1)
	assert.LessOrEqual(t, len(rep.Records[0].Error), 64)
	assert.True(t, strings.HasPrefix(rep.Records[0].Error, "panic: loader exploded"))
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(context.Background(), mixedSource(), Options{})
	assert.Error(t, err)

	_, err = Run(context.Background(), mixedSource(), Options{Policy: defaultPolicy(t), Keys: []string{"nope"}})
	assert.ErrorContains(t, err, "nope")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, mixedSource(), Options{Policy: defaultPolicy(t)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewManager(metrics.WithRegisterer(reg))
	_, err := Run(context.Background(), mixedSource(), Options{
		Policy:  defaultPolicy(t),
		Keys:    []string{measure.WaistCircumference},
		Metrics: m,
	})
	require.NoError(t, err)

	n, err := promtest.GatherAndCount(reg, "bodymeasure_measurements_total")
	require.NoError(t, err)
	// value, degenerate, contract (corrupt). The panicking loader records
	// nothing.
	assert.Equal(t, 3, n)
}

func TestRun_Bundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.db")
	b, err := dataset.Create(path, dataset.Meta{SchemaVersion: dataset.SchemaVersion, Units: dataset.UnitsMeters})
	require.NoError(t, err)
	body := testutil.Mannequin(testutil.MannequinOptions{PerRing: 24, CapPoints: 10})
	require.NoError(t, b.Put(dataset.Case{ID: "m1", Vertices: body.Vertices, Joints: body.Joints, Weights: body.Weights}))
	require.NoError(t, b.Put(dataset.Case{ID: "flat", Vertices: testutil.Flat(50, 1)}))
	require.NoError(t, b.Close())

	b, err = dataset.Open(path)
	require.NoError(t, err)
	defer b.Close()

	rep, err := Run(context.Background(), b, Options{
		Policy:      defaultPolicy(t),
		Keys:        []string{measure.HipCircumference},
		Workers:     2,
		DatasetPath: b.Path(),
	})
	require.NoError(t, err)
	require.Len(t, rep.Records, 2)
	assert.Equal(t, "m1", rep.Records[0].CaseID)
	assert.False(t, math.IsNaN(rep.Records[0].Value))
	assert.Equal(t, FailureDegenerate, rep.Records[1].FailureType)
}

func TestSame(t *testing.T) {
	r := measure.Result{Key: "k", Value: math.NaN(), SectionID: "s", MethodTag: "m",
		Warnings: []measure.WarningCode{measure.DegenFail}}

	assert.True(t, same(call{res: r}, call{res: r}))
	other := r
	other.SectionID = "t"
	assert.False(t, same(call{res: r}, call{res: other}))
	assert.False(t, same(call{res: r}, call{err: errors.New("x")}))
	assert.True(t, same(
		call{err: &measure.ExecutionError{Key: "k", Cause: errors.New("x"), Stack: []byte("a")}},
		call{err: &measure.ExecutionError{Key: "k", Cause: errors.New("x"), Stack: []byte("b")}},
	))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	// "é" is two bytes; never cut inside it.
	assert.Equal(t, "a", truncate("aé", 2))
}

func TestWriteRecordsCSV(t *testing.T) {
	records := []Record{
		{CaseID: "c1", Key: "waist_circumference", Value: 0.75, SectionID: "sid", MethodTag: "section.hull_perimeter",
			Warnings: []measure.WarningCode{measure.BandWidened, measure.CandidatesCapped}},
		{CaseID: "c2", Key: "waist_circumference", Value: math.NaN(), FailureType: FailureContract,
			Error: "contract error: bad, blob"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRecordsCSV(&buf, records))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(RecordHeader, ","), lines[0])
	assert.Equal(t, "c1,waist_circumference,0.75,sid,section.hull_perimeter,"+
		string(measure.BandWidened)+"|"+string(measure.CandidatesCapped)+",,false,false,", lines[1])
	assert.Equal(t, `c2,waist_circumference,NaN,,,,contract,false,false,"contract error: bad, blob"`, lines[2])
}

func TestWriteSummaryJSON(t *testing.T) {
	s := Summarize([]Record{{Key: "k", Value: 1}, {Key: "k", Value: 3}}, []string{"k"}, 3)
	var buf bytes.Buffer
	require.NoError(t, WriteSummaryJSON(&buf, s))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	for _, field := range []string{"nan_rate", "warning_histogram", "determinism_mismatch_count", "nonfinite_count", "failure_count_by_type", "provenance"} {
		assert.Contains(t, decoded, field)
	}
	stats := decoded["key_stats"].(map[string]interface{})["k"].(map[string]interface{})
	assert.Equal(t, 2.0, stats["mean"])
	assert.Equal(t, 1.0, stats["min"])
	assert.Equal(t, 3.0, stats["max"])
}
