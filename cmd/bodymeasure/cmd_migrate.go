package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/bodymeasure/internal/db"
)

var migrateFlags struct {
	schema string
	path   string
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|down|version|force N>",
	Short: "Manage the schema of a bundle or results store",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMigrate,
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&migrateFlags.schema, "schema", string(db.SchemaStore), "Schema to manage (store or bundle)")
	f.StringVar(&migrateFlags.path, "path", "", "Database path (default: --store for store, --dataset for bundle)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	schema := db.Schema(migrateFlags.schema)
	fsys, err := db.Migrations(schema)
	if err != nil {
		return err
	}
	path := migrateFlags.path
	if path == "" {
		if schema == db.SchemaBundle {
			path = settings.DatasetPath
		} else {
			path = settings.StorePath
		}
	}
	if path == "" {
		return fmt.Errorf("no database path: pass --path")
	}

	d, err := db.OpenDB(path)
	if err != nil {
		return err
	}
	defer d.Close()

	out := cmd.OutOrStdout()
	switch args[0] {
	case "up":
		if err := d.MigrateUp(fsys); err != nil {
			return err
		}
	case "down":
		if err := d.MigrateDown(fsys); err != nil {
			return err
		}
	case "force":
		if len(args) != 2 {
			return fmt.Errorf("force needs a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := d.MigrateForce(fsys, v); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", args[0])
	}

	v, dirty, err := d.MigrateVersion(fsys)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s schema at version %d (dirty=%t)\n", schema, v, dirty)
	return nil
}
