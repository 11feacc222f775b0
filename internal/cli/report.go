// report.go implements the "clipforge report" command for session summaries.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/berth-dev/clipforge/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <session-id|project>",
	Short: "Show a session report",
	Long: `Display segment counts, completion percentage, average segment time,
projected total time, and cost for a session.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

var writeReportFlag bool

func init() {
	reportCmd.Flags().BoolVar(&writeReportFlag, "write", false, "Also write report.md to the session output directory")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.store.Resume(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading session %s: %w", args[0], err)
	}
	if err := a.store.Release(context.WithoutCancel(ctx), sess.ID); err != nil {
		return err
	}

	events, err := a.logger.ReadAll()
	if err != nil {
		return fmt.Errorf("reading event log: %w", err)
	}
	r := report.Generate(sess, events)
	fmt.Print(report.FormatReport(r))

	if writeReportFlag && sess.OutputPath != "" {
		if err := report.WriteReport(sess.OutputPath, r); err != nil {
			return err
		}
		fmt.Printf("Written to %s/report.md\n", sess.OutputPath)
	}
	return nil
}
