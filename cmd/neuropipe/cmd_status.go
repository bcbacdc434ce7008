package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"neuropipe/internal/store"
)

var statusFlags struct {
	storePath string
	failed    bool
}

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a persisted run's summary and item records",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusFlags.storePath, "store", "neuropipe.db", "SQLite path for run records")
	f.BoolVar(&statusFlags.failed, "failed", false, "Only show failed items")
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := store.Open(statusFlags.storePath)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer st.Close()

	run, err := st.GetRun(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s started %s\n", run.ID, run.Started.Format("2006-01-02 15:04:05"))
	if run.Finished {
		fmt.Fprintf(out, "finished %s: %d succeeded, %d skipped, %d failed, %d cancelled\n",
			run.Ended.Format("2006-01-02 15:04:05"),
			run.Counts.Succeeded, run.Counts.Skipped, run.Counts.Failed, run.Counts.Cancelled)
	} else {
		fmt.Fprintln(out, "still running or aborted before finishing")
	}

	records, err := st.ListRecords(run.ID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if statusFlags.failed && rec.Status != "failed" {
			continue
		}
		fmt.Fprintf(out, "  %-10s %s/%s", rec.Status, rec.Loader, rec.Item)
		if rec.Step != "" {
			fmt.Fprintf(out, " at step %q: %s", rec.Step, rec.Cause)
		}
		fmt.Fprintln(out)
	}
	return nil
}
