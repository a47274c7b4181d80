package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/masahif/seeker/internal/storage"
)

func newShowCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print a stored run",
		Long: `Print a run saved with --database, the latest one when no id is given.
The report uses the same --format and --output flags as a crawl.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, v, args)
		},
	}
	cmd.Flags().Bool("list", false, "List stored runs instead of printing one")
	return cmd
}

func runShow(cmd *cobra.Command, v *viper.Viper, args []string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.DatabasePath == "" {
		return fmt.Errorf("no database given, use --database")
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", cfg.DatabasePath, err)
	}
	defer func() { _ = store.Close() }()

	if list, _ := cmd.Flags().GetBool("list"); list {
		runs, err := store.ListRuns()
		if err != nil {
			return err
		}
		return printRuns(cmd.OutOrStdout(), runs)
	}

	var id int64
	if len(args) == 1 {
		id, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}
	} else {
		id, err = store.LatestRunID()
		if err != nil {
			return err
		}
	}

	run, err := store.LoadRun(id)
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), cfg.OutputPath, run.Snapshot, cfg.OutputFormat)
}

func printRuns(w io.Writer, runs []storage.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No stored runs")
		return err
	}
	for _, r := range runs {
		_, err := fmt.Fprintf(w, "%d\t%s\t%s\tfound=%d searched=%d frontier=%d\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Scope, r.Found, r.Searched, r.Frontier)
		if err != nil {
			return err
		}
	}
	return nil
}
