package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/bodymeasure/internal/dataset"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Inspect case bundles",
}

var datasetInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print bundle tags and case IDs",
	RunE:  runDatasetInfo,
}

func init() {
	datasetCmd.AddCommand(datasetInfoCmd)
}

func runDatasetInfo(cmd *cobra.Command, _ []string) error {
	if err := requireDataset(); err != nil {
		return err
	}
	bundle, err := dataset.Open(settings.DatasetPath)
	if err != nil {
		return err
	}
	defer bundle.Close()

	ids, err := bundle.IDs(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	m := bundle.Meta()
	fmt.Fprintf(out, "bundle:  %s\nschema:  %s\nunits:   %s\ncases:   %d\n", bundle.Path(), m.SchemaVersion, m.Units, len(ids))
	for _, id := range ids {
		c, err := bundle.Get(cmd.Context(), id)
		if err != nil {
			fmt.Fprintf(out, "  %s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(out, "  %s: %d vertices, %d joints, weights=%t\n", id, len(c.Vertices), c.Joints.Len(), c.Weights != nil)
	}
	return nil
}
