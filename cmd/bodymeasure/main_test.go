package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bodymeasure/internal/artifact"
	"github.com/banshee-data/bodymeasure/internal/dataset"
	"github.com/banshee-data/bodymeasure/internal/measure"
	"github.com/banshee-data/bodymeasure/internal/monitoring"
	"github.com/banshee-data/bodymeasure/internal/store"
	"github.com/banshee-data/bodymeasure/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// resetFlags restores every flag to its default so commands can run more
// than once in a process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCLI executes the root command with args, writing artifacts to memory.
func runCLI(t *testing.T, args ...string) (string, *artifact.MemoryFileSystem, error) {
	t.Helper()
	t.Setenv("BODYMEASURE_CONFIG", "")
	resetFlags(rootCmd)

	mfs := artifact.NewMemoryFileSystem()
	outputFS = mfs
	t.Cleanup(func() { outputFS = artifact.OSFileSystem{} })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), mfs, err
}

func writeBundle(t *testing.T, cases ...dataset.Case) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.db")
	b, err := dataset.Create(path, dataset.Meta{SchemaVersion: dataset.SchemaVersion, Units: dataset.UnitsMeters})
	require.NoError(t, err)
	for _, c := range cases {
		require.NoError(t, b.Put(c))
	}
	require.NoError(t, b.Close())
	return path
}

func cylinderCases() []dataset.Case {
	return []dataset.Case{
		{ID: "c1", Vertices: testutil.Cylinder(0.10, 1.6, 41, 48)},
		{ID: "c2", Vertices: testutil.Cylinder(0.12, 1.6, 41, 48)},
		{ID: "c3", Vertices: testutil.Cylinder(0.14, 1.6, 41, 48)},
	}
}

func TestVerifyCommand(t *testing.T) {
	body := testutil.Mannequin(testutil.MannequinOptions{})
	bundle := writeBundle(t,
		dataset.Case{ID: "m1", Vertices: body.Vertices, Joints: body.Joints, Weights: body.Weights},
		dataset.Case{ID: "flat", Vertices: testutil.Flat(100, 0.5)},
	)
	storePath := filepath.Join(t.TempDir(), "results.db")

	out, mfs, err := runCLI(t, "verify", "--dataset", bundle, "--out", "out", "--store", storePath, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "records")
	assert.Equal(t, []string{
		filepath.Join("out", "verify_records.csv"),
		filepath.Join("out", "verify_summary.json"),
	}, mfs.Files())

	data, err := mfs.ReadFile(filepath.Join("out", "verify_records.csv"))
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	policy, err := measure.DefaultPolicy(measure.DefaultPolicyVersion)
	require.NoError(t, err)
	assert.Len(t, rows, 1+2*len(policy.Keys()))

	st, err := store.Open(storePath)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.VerifyRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestVerifyCommand_KeysSubset(t *testing.T) {
	bundle := writeBundle(t, cylinderCases()...)

	_, mfs, err := runCLI(t, "verify", "--dataset", bundle, "--out", "o", "--keys", measure.WaistCircumference+","+measure.HipCircumference)
	require.NoError(t, err)

	data, err := mfs.ReadFile(filepath.Join("o", "verify_records.csv"))
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1+3*2)
}

func TestVerifyCommand_MetricsFromEnv(t *testing.T) {
	bundle := writeBundle(t, cylinderCases()...)
	metricsPath := filepath.Join(t.TempDir(), "verify.prom")
	t.Setenv("BODYMEASURE_METRICS_OUT", metricsPath)

	_, _, err := runCLI(t, "verify", "--dataset", bundle, "--keys", measure.WaistCircumference)
	require.NoError(t, err)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `bodymeasure_measurements_total{key="waist_circumference",outcome="value"} 3`)
}

func TestVerifyCommand_PolicyVersionMustMatchFile(t *testing.T) {
	bundle := writeBundle(t, cylinderCases()...)
	policyPath := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(policyPath, []byte(`{"version": "v2"}`), 0o644))

	_, _, err := runCLI(t, "verify", "--dataset", bundle, "--policy", policyPath, "--policy-version", "v3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `has version "v2", not "v3"`)

	out, _, err := runCLI(t, "verify", "--dataset", bundle, "--policy", policyPath, "--keys", measure.WaistCircumference)
	require.NoError(t, err)
	assert.Contains(t, out, "3 records")
}

func TestVerifyCommand_NeedsDataset(t *testing.T) {
	t.Setenv("BODYMEASURE_DATASET_PATH", "")
	_, _, err := runCLI(t, "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset is required")
}

func TestSweepCommand(t *testing.T) {
	bundle := writeBundle(t, cylinderCases()...)
	storePath := filepath.Join(t.TempDir(), "results.db")
	metricsPath := filepath.Join(t.TempDir(), "sweep.prom")

	out, mfs, err := runCLI(t, "sweep", "--dataset", bundle, "--out", "out", "--store", storePath, "--metrics-out", metricsPath,
		"--key", measure.WaistCircumference, "--dim", "section_ratio=0.4,0.5", "--dim", "band_half_width_ratio=0.01:0.02:0.01", "--top", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 ")
	assert.Contains(t, out, "#2 ")
	assert.NotContains(t, out, "#3 ")
	assert.Equal(t, []string{
		filepath.Join("out", "sweep_waist_circumference.csv"),
		filepath.Join("out", "sweep_waist_circumference.json"),
	}, mfs.Files())

	data, err := mfs.ReadFile(filepath.Join("out", "sweep_waist_circumference.csv"))
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1+4)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `bodymeasure_sweep_points_total{key="waist_circumference"} 4`)
}

func TestSweepCommand_Errors(t *testing.T) {
	bundle := writeBundle(t, cylinderCases()...)

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"unknown_key", []string{"--key", "nope", "--dim", "section_ratio=0.5"}, "no measurement key"},
		{"bad_dim", []string{"--key", measure.WaistCircumference, "--dim", "section_ratio"}, "section_ratio"},
		{"unknown_tunable", []string{"--key", measure.WaistCircumference, "--dim", "colour=1,2"}, "colour"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"sweep", "--dataset", bundle}, tc.args...)
			_, _, err := runCLI(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestPlotSectionCommand(t *testing.T) {
	bundle := writeBundle(t, cylinderCases()...)
	png := filepath.Join(t.TempDir(), "waist.png")

	out, _, err := runCLI(t, "plot-section", "--dataset", bundle, "--case", "c2", "--key", measure.WaistCircumference, "-o", png)
	require.NoError(t, err)
	assert.Contains(t, out, "c2 waist_circumference")

	info, err := os.Stat(png)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, _, err = runCLI(t, "plot-section", "--dataset", bundle, "--case", "missing", "--key", measure.WaistCircumference, "-o", png)
	assert.ErrorIs(t, err, dataset.ErrNotFound)
}

func TestMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	out, _, err := runCLI(t, "migrate", "version", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "store schema at version 0 (dirty=false)")

	out, _, err = runCLI(t, "migrate", "up", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "store schema at version 2 (dirty=false)")

	out, _, err = runCLI(t, "migrate", "down", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "store schema at version 1 (dirty=false)")

	out, _, err = runCLI(t, "migrate", "force", "2", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "version 2")

	_, _, err = runCLI(t, "migrate", "sideways", "--path", path)
	assert.Error(t, err)

	_, _, err = runCLI(t, "migrate", "up", "--schema", "nope", "--path", path)
	assert.Error(t, err)
}

func TestDatasetInfoCommand(t *testing.T) {
	body := testutil.Mannequin(testutil.MannequinOptions{})
	bundle := writeBundle(t,
		dataset.Case{ID: "m1", Vertices: body.Vertices, Joints: body.Joints, Weights: body.Weights},
		dataset.Case{ID: "c1", Vertices: testutil.Cylinder(0.1, 1.6, 5, 8)},
	)

	out, _, err := runCLI(t, "dataset", "info", "--dataset", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "cases:   2")
	assert.Contains(t, out, "units:   meters")
	assert.Contains(t, out, "c1: 40 vertices, 0 joints, weights=false")
	assert.Contains(t, out, "weights=true")
}

func TestRootCommand_InvalidSettings(t *testing.T) {
	_, _, err := runCLI(t, "dataset", "info", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}
