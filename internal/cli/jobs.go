package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/scene.cheap/internal/cli/output"
	"github.com/abdul-hamid-achik/scene.cheap/internal/model"
)

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Aliases: []string{"job"},
	Short:   "Manage generation jobs",
	Long: `List, inspect and delete stored generation jobs.

Examples:
  sc jobs list
  sc jobs get 3f2a9c1e-...
  sc jobs delete 3f2a9c1e-... --force
  sc jobs result 3f2a9c1e-...`,
}

var jobsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List jobs, newest first",
	Args:    cobra.NoArgs,
	RunE:    runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get [job-id]",
	Short: "Show a job and its scenes",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var jobsDeleteCmd = &cobra.Command{
	Use:     "delete [job-id...]",
	Aliases: []string{"rm"},
	Short:   "Delete jobs",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runJobsDelete,
}

var jobsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every job",
	Args:  cobra.NoArgs,
	RunE:  runJobsClear,
}

var jobsResultCmd = &cobra.Command{
	Use:   "result [job-id]",
	Short: "Print a download link for a completed job's archived result",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsResult,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel a running job",
	Long: `Ask the server to stop a running job. Completed batches are kept and
the job can be resumed later.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

var (
	jobsDeleteForce bool
	jobsClearForce  bool
	jobsGetScenes   bool
)

func init() {
	jobsDeleteCmd.Flags().BoolVarP(&jobsDeleteForce, "force", "f", false, "Skip confirmation")
	jobsClearCmd.Flags().BoolVarP(&jobsClearForce, "force", "f", false, "Skip confirmation")
	jobsGetCmd.Flags().BoolVar(&jobsGetScenes, "scenes", false, "Print every scene prompt")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	jobsCmd.AddCommand(jobsClearCmd)
	jobsCmd.AddCommand(jobsResultCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	jobs, err := apiClient.ListJobs(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if jsonOutput {
		return printer.JSON(map[string]any{"jobs": jobs})
	}

	if len(jobs) == 0 {
		printer.Info("No jobs found")
		return nil
	}

	table := output.NewTableWriter(printer.Out(), []string{"ID", "STATUS", "WORKFLOW", "SCENES", "CREATED", "ERROR"}, quietMode)
	for _, j := range jobs {
		table.Append(
			j.ID,
			string(j.Status),
			string(j.Workflow),
			fmt.Sprintf("%d/%d", j.SceneCount, j.TargetScenes),
			formatTime(j.CreatedAt),
			truncate(j.Error, 40),
		)
	}
	table.Render()
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	job, err := apiClient.GetJob(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	if jsonOutput {
		return printer.JSON(job)
	}

	printer.Section("Job " + job.ID)
	printer.KeyValue("Status", string(job.Status))
	printer.KeyValue("Workflow", string(job.Options.Workflow))
	printer.KeyValue("Source", truncate(job.Options.Source, 60))
	printer.KeyValue("Scenes", fmt.Sprintf("%d/%d", len(job.Scenes), job.Options.SceneCount))
	printer.KeyValue("Characters", strconv.Itoa(len(job.Characters)))
	printer.KeyValue("Created", formatTime(job.CreatedAt))
	printer.KeyValue("Expires", job.ExpiresAt.Format(time.RFC3339))
	if job.Error != nil {
		printer.KeyValue("Error", job.Error.Message)
		if job.Error.FailedBatch != nil {
			printer.KeyValue("Failed batch", strconv.Itoa(*job.Error.FailedBatch))
		}
		if job.Status != model.StatusCompleted {
			printer.Indent("Resume with: sc resume %s", job.ID)
		}
	}

	if jobsGetScenes {
		printer.Section("Scenes")
		for _, s := range job.Scenes {
			printer.Printf("%3d. %s\n", s.Sequence, s.Prompt)
		}
	}
	return nil
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	if !jobsDeleteForce && !jsonOutput {
		if !confirm(cmd.InOrStdin(), fmt.Sprintf("Are you sure you want to delete %d job(s)? [y/N] ", len(args))) {
			printer.Info("Cancelled")
			return nil
		}
	}

	ctx := cmd.Context()
	var successful, failed int
	var results []map[string]any

	for _, id := range args {
		if err := apiClient.DeleteJob(ctx, id); err != nil {
			if !jsonOutput {
				printer.Error("Failed to delete %s: %v", id, err)
			}
			results = append(results, map[string]any{"id": id, "error": err.Error()})
			failed++
			continue
		}
		if !jsonOutput {
			printer.Success("Deleted %s", id)
		}
		results = append(results, map[string]any{"id": id, "deleted": true})
		successful++
	}

	if jsonOutput {
		return printer.JSON(map[string]any{
			"results":    results,
			"successful": successful,
			"failed":     failed,
		})
	}

	if failed > 0 {
		return fmt.Errorf("%d job(s) could not be deleted", failed)
	}
	return nil
}

func runJobsClear(cmd *cobra.Command, args []string) error {
	if !jobsClearForce && !jsonOutput {
		if !confirm(cmd.InOrStdin(), "Delete every stored job? [y/N] ") {
			printer.Info("Cancelled")
			return nil
		}
	}

	if err := apiClient.ClearJobs(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear jobs: %w", err)
	}

	if jsonOutput {
		return printer.JSON(map[string]any{"cleared": true})
	}
	printer.Success("All jobs deleted")
	return nil
}

func runJobsResult(cmd *cobra.Command, args []string) error {
	url, err := apiClient.ResultURL(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get result link: %w", err)
	}

	if jsonOutput {
		return printer.JSON(map[string]any{"jobId": args[0], "url": url})
	}
	printer.Println(url)
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	if err := apiClient.Cancel(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	if jsonOutput {
		return printer.JSON(map[string]any{"jobId": args[0], "status": "cancelling"})
	}
	printer.Success("Cancellation requested for %s", args[0])
	return nil
}

func confirm(in io.Reader, prompt string) bool {
	printer.Printf("%s", prompt)
	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
