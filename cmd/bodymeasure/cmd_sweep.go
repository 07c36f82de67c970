package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/banshee-data/bodymeasure/internal/dataset"
	"github.com/banshee-data/bodymeasure/internal/monitoring"
	"github.com/banshee-data/bodymeasure/internal/store"
	"github.com/banshee-data/bodymeasure/internal/sweep"
)

var sweepFlags struct {
	key  string
	dims []string
	top  int
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Rank threshold configurations for one measurement key",
	Long: `Sweep evaluates every point of a parameter grid over the cases in a
bundle and ranks the configurations by coefficient of variation, then
fallback rate. Each --dim is name=v1,v2,... or name=min:max:step.

Tunables: ` + fmt.Sprint(sweep.Tunables()),
	RunE: runSweep,
}

func init() {
	f := sweepCmd.Flags()
	f.StringVar(&sweepFlags.key, "key", "", "Measurement key to sweep (required)")
	f.StringArrayVar(&sweepFlags.dims, "dim", nil, "Grid dimension, repeatable (required)")
	f.IntVar(&sweepFlags.top, "top", 5, "Ranked rows to print")
	_ = sweepCmd.MarkFlagRequired("key")
	_ = sweepCmd.MarkFlagRequired("dim")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	if err := requireDataset(); err != nil {
		return err
	}
	dims := make([]sweep.Dimension, 0, len(sweepFlags.dims))
	for _, s := range sweepFlags.dims {
		d, err := sweep.ParseDimension(s)
		if err != nil {
			return err
		}
		dims = append(dims, d)
	}

	policy, err := loadPolicy()
	if err != nil {
		return err
	}
	base, ok := policy.Get(sweepFlags.key)
	if !ok {
		return fmt.Errorf("policy %s has no measurement key %q", policy.Version(), sweepFlags.key)
	}

	bundle, err := dataset.Open(settings.DatasetPath)
	if err != nil {
		return err
	}
	defer bundle.Close()
	cases, err := bundle.Cases(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading cases: %w", err)
	}

	mgr, reg := newMetrics()
	started := time.Now()
	rep, err := sweep.Run(cmd.Context(), sweep.Request{
		Base:       base,
		Dimensions: dims,
		Workers:    settings.Workers,
		Metrics:    mgr,
	}, cases)
	if err != nil {
		return err
	}

	out := outputDir()
	csvPath, err := out.Write("sweep_"+rep.Key+".csv", func(w io.Writer) error { return sweep.WriteCSV(w, rep) })
	if err != nil {
		return err
	}
	jsonPath, err := out.Write("sweep_"+rep.Key+".json", func(w io.Writer) error { return sweep.WriteJSON(w, rep) })
	if err != nil {
		return err
	}
	monitoring.Infof("[sweep] wrote %s and %s", csvPath, jsonPath)

	if settings.StorePath != "" {
		st, err := store.Open(settings.StorePath)
		if err != nil {
			return err
		}
		defer st.Close()
		runID := uuid.NewString()
		if err := st.SaveSweep(cmd.Context(), runID, started, rep); err != nil {
			return err
		}
		monitoring.Infof("[sweep] run %s saved to %s", runID, settings.StorePath)
	}

	stdout := cmd.OutOrStdout()
	for i, r := range rep.Rows {
		if i >= sweepFlags.top {
			break
		}
		fmt.Fprintf(stdout, "#%d grid=%d %v cv=%.3f%% fallback=%.1f%% valid=%d/%d\n",
			r.Rank, r.Index, r.ParamMap(rep.Dimensions), r.CVPct, r.FallbackRatePct, r.Valid, r.Total)
	}
	return writeMetrics(reg)
}
