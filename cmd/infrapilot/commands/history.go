package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/infrapilot/infrapilot/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past runs and their cycles",
		Long: `History lists persisted runs, newest first. With a run ID it shows that
run's cycle records instead. Requires store.enabled in the configuration.`,
		Example: `  # List recent runs
  infrapilot history

  # Show one run's cycles
  infrapilot history 6d1f0a9c-0b2e-4c37-9df1-0f6a4f6f3b21`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Store.Enabled {
				return fmt.Errorf("run history is not enabled (set store.enabled)")
			}

			store, err := stores.NewSQLiteStore(cfg.Store.Path)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			if len(args) == 1 {
				return printCycles(cmd, store, args[0])
			}
			return printRuns(cmd, store, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")

	return cmd
}

func printRuns(cmd *cobra.Command, store *stores.SQLiteStore, limit int) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tOUTCOME\tCYCLES\tDURATION\tPROMPT")
	for _, run := range runs {
		prompt := run.Prompt
		if len(prompt) > 60 {
			prompt = prompt[:60] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			run.ID,
			run.StartedAt.Format(time.RFC3339),
			run.Outcome,
			run.CycleCount,
			run.Duration.Round(time.Millisecond),
			prompt,
		)
	}
	return w.Flush()
}

func printCycles(cmd *cobra.Command, store *stores.SQLiteStore, runID string) error {
	cycles, err := store.GetCycles(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		fmt.Printf("No cycles recorded for run %s\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CYCLE\tOUTCOME\tFAILURE\tDEPLOYED\tMET\tERROR")
	for _, cycle := range cycles {
		errSummary := cycle.ErrorSummary
		if len(errSummary) > 80 {
			errSummary = errSummary[:80] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%v\t%s\n",
			cycle.Index,
			cycle.Outcome,
			cycle.FailureClass,
			cycle.Deployed,
			cycle.ExpectationMet,
			errSummary,
		)
	}
	return w.Flush()
}
