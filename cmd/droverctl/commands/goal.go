package commands

import (
	"fmt"
	"os"

	"github.com/drover-ai/drover/cmd/droverctl/cmdutil"
	"github.com/drover-ai/drover/internal/cli/output"
	"github.com/drover-ai/drover/pkg/apiclient"
	"github.com/spf13/cobra"
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage persistent goals",
	Long: `Manage the persistent goals agents work toward.

A goal carries acceptance criteria that the Auditor assesses on every
review round. Criteria keep their identity across edits, so assessments
survive rewording.`,
}

var (
	goalTitle       string
	goalDescription string
	goalCriteria    []string
	goalStatus      string
	goalAddCriteria []string
	goalRemoveIDs   []string
	goalForce       bool
)

func init() {
	goalCreateCmd.Flags().StringVar(&goalTitle, "title", "", "Goal title (required)")
	goalCreateCmd.Flags().StringVar(&goalDescription, "description", "", "Goal description")
	goalCreateCmd.Flags().StringArrayVar(&goalCriteria, "criterion", nil, "Acceptance criterion (repeatable)")
	_ = goalCreateCmd.MarkFlagRequired("title")

	goalUpdateCmd.Flags().StringVar(&goalTitle, "title", "", "New title")
	goalUpdateCmd.Flags().StringVar(&goalDescription, "description", "", "New description")
	goalUpdateCmd.Flags().StringVar(&goalStatus, "status", "", "New status (backlog|in-progress|achieved|abandoned)")
	goalUpdateCmd.Flags().StringArrayVar(&goalAddCriteria, "add-criterion", nil, "Add an acceptance criterion (repeatable)")
	goalUpdateCmd.Flags().StringArrayVar(&goalRemoveIDs, "remove-criterion", nil, "Remove a criterion by id (repeatable)")

	goalDeleteCmd.Flags().BoolVarP(&goalForce, "force", "f", false, "Skip confirmation")

	goalCmd.AddCommand(goalListCmd)
	goalCmd.AddCommand(goalGetCmd)
	goalCmd.AddCommand(goalCreateCmd)
	goalCmd.AddCommand(goalUpdateCmd)
	goalCmd.AddCommand(goalDeleteCmd)
	goalCmd.AddCommand(goalReAuditCmd)
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		goals, err := client.ListGoals()
		if err != nil {
			return err
		}

		table := output.NewTableData("ID", "TITLE", "STATUS", "CRITERIA MET", "UPDATED")
		for _, g := range goals {
			met := 0
			for _, c := range g.Criteria {
				if c.Met {
					met++
				}
			}
			table.AddRow(g.ID, g.Title, g.Status,
				fmt.Sprintf("%d/%d", met, len(g.Criteria)),
				g.UpdatedAt.Format("2006-01-02 15:04"))
		}

		return cmdutil.PrintOutput(os.Stdout, goals, len(goals) == 0, "No goals found.", table)
	},
}

var goalGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a goal with its criteria and sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		goal, err := client.GetGoal(args[0])
		if err != nil {
			return err
		}

		format, err := cmdutil.GetOutputFormatParsed()
		if err != nil {
			return err
		}
		if format != output.FormatTable {
			return cmdutil.PrintResource(os.Stdout, goal, nil)
		}

		printGoalDetail(goal)
		return nil
	},
}

var goalCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a goal",
	Example: `  droverctl goal create --title "Stabilize checkout flow" \
    --criterion "All payment tests pass" \
    --criterion "No flaky retries in CI"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		goal, err := client.CreateGoal(&apiclient.CreateGoalRequest{
			Title:       goalTitle,
			Description: goalDescription,
			Criteria:    goalCriteria,
		})
		if err != nil {
			return err
		}

		return cmdutil.PrintResourceWithSuccess(os.Stdout, goal,
			fmt.Sprintf("Goal %q created (id: %s)", goal.Title, goal.ID))
	},
}

var goalUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a goal",
	Long: `Update a goal's title, description, status, or criteria.

Criterion edits preserve the identity (and audit assessment) of criteria
that survive: existing criteria are kept unless removed with
--remove-criterion, and --add-criterion appends new ones.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		req := &apiclient.UpdateGoalRequest{}
		if cmd.Flags().Changed("title") {
			req.Title = &goalTitle
		}
		if cmd.Flags().Changed("description") {
			req.Description = &goalDescription
		}
		if cmd.Flags().Changed("status") {
			req.Status = &goalStatus
		}

		// The API replaces the whole criterion set, so build the patch from
		// the goal's current criteria.
		if len(goalAddCriteria) > 0 || len(goalRemoveIDs) > 0 {
			current, err := client.GetGoal(args[0])
			if err != nil {
				return err
			}
			removed := make(map[string]bool, len(goalRemoveIDs))
			for _, id := range goalRemoveIDs {
				removed[id] = true
			}
			var patch []apiclient.CriterionPatch
			for _, c := range current.Criteria {
				if removed[c.ID] {
					continue
				}
				patch = append(patch, apiclient.CriterionPatch{ID: c.ID, Text: c.Text})
			}
			for _, text := range goalAddCriteria {
				patch = append(patch, apiclient.CriterionPatch{Text: text})
			}
			req.Criteria = patch
		}

		goal, err := client.UpdateGoal(args[0], req)
		if err != nil {
			return err
		}

		return cmdutil.PrintResourceWithSuccess(os.Stdout, goal,
			fmt.Sprintf("Goal %q updated", goal.Title))
	},
}

var goalDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a goal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		return cmdutil.RunDeleteWithConfirmation("goal", args[0], goalForce, func() error {
			return client.DeleteGoal(args[0])
		})
	},
}

var goalReAuditCmd = &cobra.Command{
	Use:   "re-audit <id>",
	Short: "Re-run the audit for a goal",
	Long: `Re-run the Auditor assessment of a goal's acceptance criteria against
its most recent reviewed session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		result, err := client.ReAuditGoal(args[0])
		if err != nil {
			return err
		}

		return cmdutil.PrintResourceWithSuccess(os.Stdout, result,
			fmt.Sprintf("Re-audit finished: %s", result.Outcome))
	},
}

func printGoalDetail(goal *apiclient.GoalDetail) {
	fmt.Printf("Goal:        %s\n", goal.Title)
	fmt.Printf("ID:          %s\n", goal.ID)
	fmt.Printf("Status:      %s\n", goal.Status)
	if goal.Description != "" {
		fmt.Printf("Description: %s\n", goal.Description)
	}
	fmt.Printf("Updated:     %s\n", goal.UpdatedAt.Format("2006-01-02 15:04:05"))

	if len(goal.Criteria) > 0 {
		fmt.Println("\nCriteria:")
		table := output.NewTableData("ID", "MET", "TEXT")
		for _, c := range goal.Criteria {
			table.AddRow(c.ID, cmdutil.BoolToYesNo(c.Met), c.Text)
		}
		_ = output.PrintTable(os.Stdout, table)
	}

	if len(goal.Sessions) > 0 {
		fmt.Println("\nSessions:")
		table := output.NewTableData("ID", "STATUS", "BRANCH", "DEPTH")
		for _, s := range goal.Sessions {
			table.AddRow(s.ID, s.Status, s.BranchName, fmt.Sprintf("%d", s.RemediationDepth))
		}
		_ = output.PrintTable(os.Stdout, table)
	}

	if len(goal.ReviewArtifacts) > 0 {
		fmt.Println("\nChange proposals:")
		for _, a := range goal.ReviewArtifacts {
			fmt.Printf("  %s (session %s)\n", a.URL, a.SessionID)
		}
	}
}
