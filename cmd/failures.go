package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var failureLimit int

// failuresCmd represents the failures command
var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Show actuations that could not be completed",
	Long: `List the failure ledger, newest first. An entry is written whenever a
target could not be switched to the limited or the full speed pair after
all retries.`,
	PreRunE: initializeApp,
	RunE:    runFailures,
}

func init() {
	rootCmd.AddCommand(failuresCmd)

	failuresCmd.Flags().IntVarP(&failureLimit, "limit", "n", 20, "number of records to show (0 for all)")
}

func runFailures(cmd *cobra.Command, args []string) error {
	records, err := newFailureLedger().List(failureLimit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("✓ No failures recorded.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Target", "Action", "Limits (KB/s)", "Probe", "Reason"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.Timestamp.Local().Format(time.DateTime),
			r.Target,
			r.Action,
			fmt.Sprintf("%s / %s", formatLimit(r.Download), formatLimit(r.Upload)),
			r.Probe,
			r.Reason,
		})
	}
	t.Render()
	return nil
}

func formatLimit(kb int64) string {
	if kb <= 0 {
		return "∞"
	}
	return fmt.Sprintf("%d", kb)
}
