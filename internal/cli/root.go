// Package cli implements sc, the command-line client for the scene generation API.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/client"
	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/config"
	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/output"
	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/version"
)

var (
	jsonOutput bool
	quietMode  bool
	noColor    bool
	cfg        *config.Config
	apiClient  client.ClientInterface
	printer    *output.Printer
)

// newClient is replaced in tests.
var newClient = func(c *config.Config) client.ClientInterface {
	cl := client.New(c.BaseURL, c.APIToken)
	cl.SetTimeout(c.RequestTimeout())
	return cl
}

var rootCmd = &cobra.Command{
	Use:   "sc",
	Short: "scene.cheap CLI - turn videos into scene prompts",
	Long: `sc is the command-line interface for the scene generation service.

Start generation jobs, follow their progress, and manage job history from
the terminal.

Get started:
  sc generate dQw4w9WgXcQ --scenes 20   # Generate 20 scenes from a video
  sc jobs list                          # List recent jobs
  sc resume <job-id>                    # Continue a partial job`,
	Version: version.Full(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		printer = output.New(
			output.WithJSON(jsonOutput),
			output.WithQuiet(quietMode),
			output.WithNoColor(noColor),
			output.WithOutput(cmd.OutOrStdout()),
			output.WithErrOutput(cmd.ErrOrStderr()),
		)

		apiClient = newClient(cfg)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Interrupts cancel the command context, which closes any open
// stream and lets the server keep a resumable snapshot.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON (for scripting)")
	rootCmd.PersistentFlags().BoolVar(&quietMode, "quiet", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.SetVersionTemplate("sc version {{.Version}}\n")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(configCmd)
}
