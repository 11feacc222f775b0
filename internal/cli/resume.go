// resume.go implements the "clipforge resume" command for interrupted sessions.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/berth-dev/clipforge/internal/workflow"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id|project>",
	Short: "Resume an interrupted session",
	Long: `Resume a session by id, or the most recently updated session of a
project. Completed segments are kept, in-flight segments are polled again,
and failed segments are reset and submitted again.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Resuming %s\n\n", args[0])
	return drive(ctx, a, args[0], func(o *workflow.Orchestrator) (*workflow.Result, error) {
		return o.ResumeJob(ctx, args[0])
	})
}
