package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/bodymeasure/internal/dataset"
	"github.com/banshee-data/bodymeasure/internal/monitoring"
	"github.com/banshee-data/bodymeasure/internal/store"
	"github.com/banshee-data/bodymeasure/internal/verify"
)

var verifyFlags struct {
	keys        []string
	topN        int
	maxErrorLen int
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Record every measurement for every case in a bundle",
	Long: `Verify measures each case for each key twice, checks the results are
identical, and writes a per-case CSV plus a summary JSON. It records facts
and never fails a run because of what a case produced.`,
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.StringSliceVar(&verifyFlags.keys, "keys", nil, "Measurement keys to run (default: every key in the policy)")
	f.IntVar(&verifyFlags.topN, "top-n", 0, "Warning codes kept per key in the histogram (default from settings)")
	f.IntVar(&verifyFlags.maxErrorLen, "max-error-len", 0, "Truncate stored diagnostics to this many bytes (default from settings)")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	if err := requireDataset(); err != nil {
		return err
	}
	policy, err := loadPolicy()
	if err != nil {
		return err
	}
	topN, maxErr := settings.TopN, settings.MaxErrorLen
	if cmd.Flags().Changed("top-n") {
		topN = verifyFlags.topN
	}
	if cmd.Flags().Changed("max-error-len") {
		maxErr = verifyFlags.maxErrorLen
	}

	bundle, err := dataset.Open(settings.DatasetPath)
	if err != nil {
		return err
	}
	defer bundle.Close()

	mgr, reg := newMetrics()
	rep, err := verify.Run(cmd.Context(), bundle, verify.Options{
		Policy:      policy,
		Keys:        verifyFlags.keys,
		Workers:     settings.Workers,
		TopN:        topN,
		MaxErrorLen: maxErr,
		DatasetPath: bundle.Path(),
		Metrics:     mgr,
	})
	if err != nil {
		return err
	}

	out := outputDir()
	recordsPath, err := out.Write("verify_records.csv", func(w io.Writer) error { return verify.WriteRecordsCSV(w, rep.Records) })
	if err != nil {
		return err
	}
	summaryPath, err := out.Write("verify_summary.json", func(w io.Writer) error { return verify.WriteSummaryJSON(w, rep.Summary) })
	if err != nil {
		return err
	}
	monitoring.Infof("[verify] wrote %s and %s", recordsPath, summaryPath)

	if settings.StorePath != "" {
		st, err := store.Open(settings.StorePath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveVerify(cmd.Context(), rep); err != nil {
			return err
		}
		monitoring.Infof("[verify] run %s saved to %s", rep.Summary.Provenance.RunID, settings.StorePath)
	}

	s := rep.Summary
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d records, nan_rate %.4f, %d mismatches, failures %v\n",
		s.Provenance.RunID, s.TotalRecords, s.NaNRate, s.DeterminismMismatchCount, s.FailureCountByType)
	return writeMetrics(reg)
}
