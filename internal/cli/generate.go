package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/client"
	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/output"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
	"github.com/abdul-hamid-achik/scene.cheap/internal/resume"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

var generateCmd = &cobra.Command{
	Use:   "generate [source]",
	Short: "Generate scenes from a video or script",
	Long: `Start a generation job and stream its progress.

The source is a video URL or 11-character video id, or script text with
--mode text. Interrupting the command cancels the job; it can be resumed
later with 'sc resume'.

Examples:
  sc generate dQw4w9WgXcQ --scenes 20
  sc generate https://youtu.be/dQw4w9WgXcQ --scenes 30 --workflow merged
  sc generate "$(cat script.txt)" --mode text --scenes 10
  sc generate dQw4w9WgXcQ --scenes 50 --async`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume a partial, failed or cancelled job",
	Long: `Resume a job from its stored progress. Completed batches are kept and
generation continues with the first missing one.

Examples:
  sc resume 3f2a9c1e-...
  sc resume 3f2a9c1e-... --async
  sc resume 3f2a9c1e-... --reextract-characters`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var (
	genScenes        int
	genBatchSize     int
	genWorkflow      string
	genMode          string
	genStyle         string
	genModel         string
	genCallbackURL   string
	genVoice         bool
	genVoiceLanguage string
	genVoiceTone     string
	genStart         int
	genEnd           int
	genAsync         bool
	genOutput        string
	resumeAsync      bool
	resumeOutput     string
	resumeColor      bool
	resumeCharacters bool
)

func init() {
	f := generateCmd.Flags()
	f.IntVarP(&genScenes, "scenes", "n", 0, "Number of scenes to generate (required)")
	f.IntVar(&genBatchSize, "batch-size", 0, "Scenes per provider call (default from config)")
	f.StringVar(&genWorkflow, "workflow", string(model.WorkflowStandard), "Workflow: standard, merged or script")
	f.StringVar(&genMode, "mode", string(model.ModeVideo), "Source mode: video or text")
	f.StringVar(&genStyle, "style", "", "Free-text style hint")
	f.StringVar(&genModel, "model", "", "Provider model override")
	f.StringVar(&genCallbackURL, "callback-url", "", "Webhook notified when the job ends")
	f.BoolVar(&genVoice, "voice", false, "Generate voice-over lines")
	f.StringVar(&genVoiceLanguage, "voice-language", "", "Voice-over language")
	f.StringVar(&genVoiceTone, "voice-tone", "", "Voice-over tone")
	f.IntVar(&genStart, "start", 0, "Video range start in seconds")
	f.IntVar(&genEnd, "end", 0, "Video range end in seconds")
	f.BoolVar(&genAsync, "async", false, "Queue the job and return its id")
	f.StringVarP(&genOutput, "output", "o", "", "Write the final job result to a JSON file")
	_ = generateCmd.MarkFlagRequired("scenes")

	resumeCmd.Flags().BoolVar(&resumeAsync, "async", false, "Queue the resumption and return")
	resumeCmd.Flags().StringVarP(&resumeOutput, "output", "o", "", "Write the final job result to a JSON file")
	resumeCmd.Flags().BoolVar(&resumeColor, "reextract-color-profile", false, "Analyze the color profile again before the missing batches")
	resumeCmd.Flags().BoolVar(&resumeCharacters, "reextract-characters", false, "Extract characters again before the missing batches")
}

func buildOptions(source string) model.Options {
	batch := genBatchSize
	if batch <= 0 {
		batch = cfg.BatchSize
	}
	opts := model.Options{
		Workflow:    model.Workflow(genWorkflow),
		Mode:        model.Mode(genMode),
		Source:      source,
		SceneCount:  genScenes,
		BatchSize:   batch,
		Style:       genStyle,
		Model:       genModel,
		CallbackURL: genCallbackURL,
		Voice: model.Voice{
			Enabled:  genVoice,
			Language: genVoiceLanguage,
			Tone:     genVoiceTone,
		},
	}
	if genEnd > 0 {
		opts.Range = &model.VideoRange{Start: genStart, End: genEnd}
	}
	return opts
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts := buildOptions(args[0])

	if genAsync {
		resp, err := apiClient.Submit(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to queue job: %w", err)
		}
		return printQueued(resp)
	}

	renderer := output.NewFrameRenderer(printer)
	defer renderer.Close()
	terminal, err := apiClient.Generate(ctx, opts, renderer.Render)
	return finishRun(cmd, renderer.JobID(), terminal, err, genOutput)
}

// resumeOverrides only sends the toggles that were switched on, so the job keeps its
// stored choices otherwise.
func resumeOverrides() resume.Overrides {
	var ov resume.Overrides
	if resumeColor {
		ov.ReextractColorProfile = &resumeColor
	}
	if resumeCharacters {
		ov.ReextractCharacters = &resumeCharacters
	}
	return ov
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jobID := args[0]
	ov := resumeOverrides()

	if resumeAsync {
		resp, err := apiClient.SubmitResume(ctx, jobID, ov)
		if err != nil {
			return fmt.Errorf("failed to queue resume: %w", err)
		}
		return printQueued(resp)
	}

	printer.Info("Resuming job %s", jobID)
	renderer := output.NewFrameRenderer(printer)
	defer renderer.Close()
	terminal, err := apiClient.Resume(ctx, jobID, ov, renderer.Render)
	if renderer.JobID() == "" {
		return finishRun(cmd, jobID, terminal, err, resumeOutput)
	}
	return finishRun(cmd, renderer.JobID(), terminal, err, resumeOutput)
}

func printQueued(resp *client.QueuedResponse) error {
	if jsonOutput {
		return printer.JSON(resp)
	}
	printer.Success("Job %s queued", resp.JobID)
	printer.Indent("Follow with: sc events %s", resp.JobID)
	return nil
}

// finishRun maps the stream outcome to the command result and saves the job when
// asked to.
func finishRun(cmd *cobra.Command, jobID string, terminal stream.Event, err error, outPath string) error {
	if err != nil {
		if cmd.Context().Err() != nil {
			printer.Warn("Interrupted; the job can be resumed with: sc resume %s", jobID)
			return nil
		}
		return err
	}

	switch terminal.Kind {
	case stream.KindComplete:
		if outPath != "" {
			if err := writeResult(cmd, jobID, outPath); err != nil {
				return err
			}
		}
		return nil
	case stream.KindError:
		return fmt.Errorf("job %s failed", jobID)
	case stream.KindCancelled:
		return fmt.Errorf("job %s was cancelled", jobID)
	default:
		return fmt.Errorf("stream ended before the job finished; check with: sc jobs get %s", jobID)
	}
}

func writeResult(cmd *cobra.Command, jobID, path string) error {
	job, err := apiClient.GetJob(cmd.Context(), jobID)
	if err != nil {
		return fmt.Errorf("failed to fetch job result: %w", err)
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	printer.Success("Result written to %s", path)
	return nil
}
