package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/simwrap/internal/config"
	"github.com/nvandessel/simwrap/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recorded runs",
		Long: `Show runs recorded in the run ledger (~/.simwrap/simwrap.db).

Examples:
  simwrap runs              # 20 most recent runs
  simwrap runs --limit 0    # every run
  simwrap runs <run-id>     # one run in detail`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			dir, err := cfg.LedgerDir()
			if err != nil {
				return err
			}
			ledger, err := store.Open(dir)
			if err != nil {
				return fmt.Errorf("failed to open run ledger: %w", err)
			}
			defer ledger.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				r, err := ledger.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(r)
				}
				printRun(cmd, r)
				return nil
			}

			runs, err := ledger.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return json.NewEncoder(out).Encode(map[string]any{"runs": runs, "count": len(runs)})
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-20s  %-14s  %-9s  %s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Type, r.Status, valueOrDefault(r.ConfigPath, "-"))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to show (0 for all)")
	return cmd
}

func printRun(cmd *cobra.Command, r store.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s\n", r.ID)
	fmt.Fprintf(out, "  type:            %s\n", r.Type)
	fmt.Fprintf(out, "  modes:           %s\n", valueOrDefault(r.Mode, "-"))
	fmt.Fprintf(out, "  source:          %s\n", valueOrDefault(r.Source, "-"))
	fmt.Fprintf(out, "  status:          %s\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(out, "  error:           %s\n", r.Error)
	}
	fmt.Fprintf(out, "  output:          %s\n", valueOrDefault(r.OutputDir, "-"))
	fmt.Fprintf(out, "  config:          %s\n", valueOrDefault(r.ConfigPath, "-"))
	fmt.Fprintf(out, "  derived plans:   %s\n", valueOrDefault(r.DerivedPlans, "-"))
	fmt.Fprintf(out, "  cleaned network: %s\n", valueOrDefault(r.CleanedNetwork, "-"))
	fmt.Fprintf(out, "  started:         %s\n", r.StartedAt.Local().Format(time.RFC3339))
	if r.FinishedAt != nil {
		fmt.Fprintf(out, "  finished:        %s (%s)\n", r.FinishedAt.Local().Format(time.RFC3339),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
}
