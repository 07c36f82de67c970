// bodymeasure runs the measurement engine over case bundles: batch
// verification, threshold sweeps, section plots and store migrations.
//
// Usage:
//
//	bodymeasure verify --dataset=cases.db [--out=out] [--store=results.db]
//	bodymeasure sweep --dataset=cases.db --key=waist_circumference --dim=section_ratio=0.5:0.7:0.02
//	bodymeasure plot-section --dataset=cases.db --case=c001 --key=hip_circumference -o hip.png
//	bodymeasure migrate up --schema=store --path=results.db
//	bodymeasure dataset info --dataset=cases.db
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/banshee-data/bodymeasure/internal/artifact"
	"github.com/banshee-data/bodymeasure/internal/config"
	"github.com/banshee-data/bodymeasure/internal/measure"
	"github.com/banshee-data/bodymeasure/internal/metrics"
	"github.com/banshee-data/bodymeasure/internal/monitoring"
	"github.com/banshee-data/bodymeasure/internal/version"
)

var rootFlags struct {
	policyPath    string
	policyVersion string
	logLevel      string
	workers       int
	datasetPath   string
	outputDir     string
	storePath     string
	metricsOut    string
}

// settings are resolved once per invocation in PersistentPreRunE.
var settings *config.Settings

// outputFS receives CSV and JSON artifacts; tests swap in memory.
var outputFS artifact.FileSystem = artifact.OSFileSystem{}

func outputDir() artifact.Dir { return artifact.Dir{FS: outputFS, Path: settings.OutputDir} }

var rootCmd = &cobra.Command{
	Use:   "bodymeasure",
	Short: "Anthropometric measurements from body meshes",
	Long: `bodymeasure derives circumferences, widths and lengths from 3D body
vertices, optionally guided by a skeleton and skin weights, and records
facts about how the engine behaves across a batch of cases.`,
	SilenceUsage:      true,
	PersistentPreRunE: resolveSettings,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.policyPath, "policy", "", "Policy override JSON file (default: built-in policy)")
	f.StringVar(&rootFlags.policyVersion, "policy-version", "", "Policy version (default: the policy file's version, or \""+measure.DefaultPolicyVersion+"\"); must match --policy when both are set")
	f.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.IntVar(&rootFlags.workers, "workers", 0, "Concurrent workers (default: number of CPUs)")
	f.StringVar(&rootFlags.datasetPath, "dataset", "", "Case bundle path")
	f.StringVar(&rootFlags.outputDir, "out", "", "Output directory for CSV and JSON artifacts")
	f.StringVar(&rootFlags.storePath, "store", "", "Results store to persist runs to (optional)")
	f.StringVar(&rootFlags.metricsOut, "metrics-out", "", "Write Prometheus text metrics to this file on exit (optional)")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(plotSectionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.Version = version.String()
}

// resolveSettings layers flags that were set explicitly over the koanf
// settings (defaults, BODYMEASURE_CONFIG file, BODYMEASURE_* env).
func resolveSettings(cmd *cobra.Command, _ []string) error {
	s, err := config.LoadSettings(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	f := cmd.Flags()
	if f.Changed("policy") {
		s.PolicyPath = rootFlags.policyPath
	}
	if f.Changed("policy-version") {
		s.PolicyVersion = rootFlags.policyVersion
	}
	if f.Changed("log-level") {
		s.LogLevel = rootFlags.logLevel
	}
	if f.Changed("workers") {
		s.Workers = rootFlags.workers
	}
	if f.Changed("dataset") {
		s.DatasetPath = rootFlags.datasetPath
	}
	if f.Changed("out") {
		s.OutputDir = rootFlags.outputDir
	}
	if f.Changed("store") {
		s.StorePath = rootFlags.storePath
	}
	if f.Changed("metrics-out") {
		s.MetricsOut = rootFlags.metricsOut
	}
	if err := s.Validate(); err != nil {
		return err
	}
	level, err := monitoring.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	monitoring.SetLevel(level)
	settings = s
	return nil
}

func loadPolicy() (*config.Policy, error) {
	p, err := measure.LoadPolicy(settings.PolicyPath, settings.PolicyVersion)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	monitoring.Debugf("policy %s with %d keys", p.Version(), len(p.Keys()))
	return p, nil
}

func requireDataset() error {
	if settings.DatasetPath == "" {
		return fmt.Errorf("a dataset is required: pass --dataset or set BODYMEASURE_DATASET_PATH")
	}
	return nil
}

// newMetrics returns a manager on a private registry, or nil when no
// metrics file was requested.
func newMetrics() (*metrics.Manager, *prometheus.Registry) {
	if settings.MetricsOut == "" {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	return metrics.NewManager(metrics.WithRegisterer(reg)), reg
}

func writeMetrics(reg *prometheus.Registry) error {
	if reg == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(settings.MetricsOut, reg); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	monitoring.Infof("metrics written to %s", settings.MetricsOut)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
