package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/drover-ai/drover/cmd/droverctl/cmdutil"
	"github.com/drover-ai/drover/internal/cli/output"
	"github.com/drover-ai/drover/pkg/apiclient"
	"github.com/spf13/cobra"
)

var cascadeCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Blast-radius analysis and repair dispatch",
	Long: `Run blast-radius analysis on a commit or dispatch a hand-built batch
of repair jobs.

A round where every repair job was blocked by locks fails with the
contested paths; a round with at least one dispatch succeeds even if
some jobs failed.`,
}

var (
	cascadeRepo      string
	cascadeBranch    string
	cascadeCommit    string
	cascadePaths     string
	cascadeGoal      string
	cascadeTrigger   string
	cascadeBatchFile string
)

func init() {
	cascadeAnalyzeCmd.Flags().StringVar(&cascadeRepo, "repo", "", "Repository as owner/name (required)")
	cascadeAnalyzeCmd.Flags().StringVar(&cascadeBranch, "branch", "", "Branch the commit landed on")
	cascadeAnalyzeCmd.Flags().StringVar(&cascadeCommit, "commit", "", "Commit SHA to analyze (required)")
	cascadeAnalyzeCmd.Flags().StringVar(&cascadePaths, "changed-paths", "", "Comma-separated changed paths (fetched from the VCS if omitted)")
	cascadeAnalyzeCmd.Flags().StringVar(&cascadeGoal, "goal", "", "Attach dispatched sessions to this goal")
	cascadeAnalyzeCmd.Flags().StringVar(&cascadeTrigger, "trigger-session", "", "Session whose change triggered the analysis")
	_ = cascadeAnalyzeCmd.MarkFlagRequired("repo")
	_ = cascadeAnalyzeCmd.MarkFlagRequired("commit")

	cascadeBatchCmd.Flags().StringVarP(&cascadeBatchFile, "file", "f", "", "JSON file with the batch request (required)")
	_ = cascadeBatchCmd.MarkFlagRequired("file")

	cascadeCmd.AddCommand(cascadeAnalyzeCmd)
	cascadeCmd.AddCommand(cascadeBatchCmd)
}

var cascadeAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the blast radius of a commit",
	Example: `  droverctl cascade analyze --repo acme/widgets --commit 4f2a91c \
    --branch main --changed-paths pkg/api/types.go`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		req := &apiclient.AnalyzeRequest{
			Repo:         cascadeRepo,
			Branch:       cascadeBranch,
			Commit:       cascadeCommit,
			ChangedPaths: cmdutil.ParseCommaSeparatedList(cascadePaths),
		}
		if cascadeGoal != "" {
			req.GoalID = &cascadeGoal
		}
		if cascadeTrigger != "" {
			req.TriggerSessionID = &cascadeTrigger
		}

		resp, err := client.AnalyzeCascade(req)
		if err != nil {
			return err
		}

		format, err := cmdutil.GetOutputFormatParsed()
		if err != nil {
			return err
		}
		if format != output.FormatTable {
			return cmdutil.PrintResource(os.Stdout, resp, nil)
		}

		if !resp.IsCascade {
			fmt.Println("No cascade: the change does not ripple beyond its own files.")
			return nil
		}

		fmt.Printf("Cascade:    %s\n", resp.CascadeID)
		fmt.Printf("Confidence: %.2f\n", resp.Confidence)
		if resp.Summary != "" {
			fmt.Printf("Summary:    %s\n", resp.Summary)
		}
		fmt.Printf("Dispatched: %d  Conflicts: %d  Failed: %d  (%dms)\n",
			resp.Telemetry.DispatchedCount, resp.Telemetry.ConflictCount,
			resp.Telemetry.FailedCount, resp.Telemetry.DispatchLatencyMs)

		printDispatchedSessions(resp.DispatchedSessions)
		printLockConflicts(resp.LockConflicts)
		return nil
	},
}

var cascadeBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Dispatch a hand-built batch of repair jobs",
	Long: `Dispatch an operator-authored batch of repair jobs from a JSON file.

The file carries a repo, a base branch, and a list of jobs, each naming
the files to reserve and the prompt for the agent:

  {
    "repo": "acme/widgets",
    "branch": "main",
    "jobs": [
      {"files": ["pkg/api/server.go"], "prompt": "Fix the handler signatures"}
    ]
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(cascadeBatchFile)
		if err != nil {
			return fmt.Errorf("failed to read batch file: %w", err)
		}

		var req apiclient.BatchDispatchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("invalid batch file: %w", err)
		}

		resp, err := client.DispatchBatch(&req)
		if err != nil {
			return err
		}

		format, err := cmdutil.GetOutputFormatParsed()
		if err != nil {
			return err
		}
		if format != output.FormatTable {
			return cmdutil.PrintResource(os.Stdout, resp, nil)
		}

		fmt.Printf("Batch:      %s\n", resp.BatchID)
		fmt.Printf("Dispatched: %d  Failed: %d\n", resp.DispatchedCount, resp.FailedCount)
		printDispatchedSessions(resp.Sessions)
		printLockConflicts(resp.LockConflicts)
		return nil
	},
}

func printDispatchedSessions(sessions []apiclient.DispatchedSession) {
	if len(sessions) == 0 {
		return
	}
	fmt.Println("\nSessions:")
	table := output.NewTableData("SESSION", "JOB", "STATUS", "FILES")
	for _, s := range sessions {
		table.AddRow(s.SessionID, s.JobID, s.Status, fmt.Sprintf("%d", len(s.Files)))
	}
	_ = output.PrintTable(os.Stdout, table)
}

func printLockConflicts(conflicts []apiclient.LockConflict) {
	if len(conflicts) == 0 {
		return
	}
	fmt.Println("\nContested paths:")
	for _, c := range conflicts {
		fmt.Printf("  %s (held by %s)\n", c.Path, c.HeldBy)
	}
}
