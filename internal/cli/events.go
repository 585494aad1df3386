package cli

import (
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/output"
)

var eventsCmd = &cobra.Command{
	Use:   "events [job-id]",
	Short: "Follow or replay a job's event stream",
	Long: `Attach to a job's event stream. Running jobs are followed live; finished
jobs replay their recorded frames.

Examples:
  sc events 3f2a9c1e-...
  sc events 3f2a9c1e-... --after 12`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

var eventsAfter int64

func init() {
	eventsCmd.Flags().Int64Var(&eventsAfter, "after", 0, "Skip frames up to and including this sequence number")
}

func runEvents(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	renderer := output.NewFrameRenderer(printer)
	defer renderer.Close()

	terminal, err := apiClient.Events(cmd.Context(), jobID, eventsAfter, renderer.Render)
	return finishRun(cmd, jobID, terminal, err, "")
}
