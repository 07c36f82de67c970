package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/bodymeasure/internal/dataset"
	"github.com/banshee-data/bodymeasure/internal/debug"
	"github.com/banshee-data/bodymeasure/internal/monitoring"
)

var plotFlags struct {
	caseID string
	key    string
	output string
}

var plotSectionCmd = &cobra.Command{
	Use:   "plot-section",
	Short: "Plot the band and hull one section measurement uses",
	RunE:  runPlotSection,
}

func init() {
	f := plotSectionCmd.Flags()
	f.StringVar(&plotFlags.caseID, "case", "", "Case ID (required)")
	f.StringVar(&plotFlags.key, "key", "", "Section measurement key (required)")
	f.StringVarP(&plotFlags.output, "output", "o", "section.png", "PNG output path")
	_ = plotSectionCmd.MarkFlagRequired("case")
	_ = plotSectionCmd.MarkFlagRequired("key")
}

func runPlotSection(cmd *cobra.Command, _ []string) error {
	if err := requireDataset(); err != nil {
		return err
	}
	policy, err := loadPolicy()
	if err != nil {
		return err
	}
	cfg, ok := policy.Get(plotFlags.key)
	if !ok {
		return fmt.Errorf("policy %s has no measurement key %q", policy.Version(), plotFlags.key)
	}

	bundle, err := dataset.Open(settings.DatasetPath)
	if err != nil {
		return err
	}
	defer bundle.Close()
	c, err := bundle.Get(cmd.Context(), plotFlags.caseID)
	if err != nil {
		return err
	}

	s, err := debug.BuildSection(c.Vertices, cfg, c.Joints)
	if err != nil {
		return err
	}
	if err := s.SavePNG(plotFlags.output); err != nil {
		return err
	}
	monitoring.Infof("section plot written to %s (%d band points, %d widening steps)", plotFlags.output, len(s.Points), s.Retries)
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %g [%s] %s\n", c.ID, s.Result.Key, s.Result.Value, s.Result.WarningString(), s.Result.SectionID)
	return nil
}
