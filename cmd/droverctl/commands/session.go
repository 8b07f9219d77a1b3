package commands

import (
	"fmt"
	"os"

	"github.com/drover-ai/drover/cmd/droverctl/cmdutil"
	"github.com/drover-ai/drover/internal/cli/output"
	"github.com/drover-ai/drover/internal/cli/prompt"
	"github.com/drover-ai/drover/pkg/apiclient"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage agent work sessions",
	Long: `Manage agent work sessions.

A session is one unit of agent work: a branch, an external agent, and
the set of file locks the work holds. Terminal sessions (completed,
failed, terminated) hold no locks.`,
}

var (
	sessionAll   bool
	sessionForce bool
)

func init() {
	sessionListCmd.Flags().BoolVar(&sessionAll, "all", false, "Include terminal sessions")
	sessionTerminateCmd.Flags().BoolVarP(&sessionForce, "force", "f", false, "Skip confirmation")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionTerminateCmd)
	sessionCmd.AddCommand(sessionSyncCmd)
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		sessions, err := client.ListSessions(sessionAll)
		if err != nil {
			return err
		}

		table := output.NewTableData("ID", "STATUS", "REPO", "BRANCH", "DEPTH", "LOCKS")
		for _, s := range sessions {
			table.AddRow(s.ID, s.Status, s.SourceRepo, s.BranchName,
				fmt.Sprintf("%d", s.RemediationDepth),
				fmt.Sprintf("%d", len(s.Locks)))
		}

		emptyMsg := "No active sessions."
		if sessionAll {
			emptyMsg = "No sessions found."
		}
		return cmdutil.PrintOutput(os.Stdout, sessions, len(sessions) == 0, emptyMsg, table)
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a session with its held locks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		session, err := client.GetSession(args[0])
		if err != nil {
			return err
		}

		format, err := cmdutil.GetOutputFormatParsed()
		if err != nil {
			return err
		}
		if format != output.FormatTable {
			return cmdutil.PrintResource(os.Stdout, session, nil)
		}

		printSessionDetail(session)
		return nil
	},
}

var sessionTerminateCmd = &cobra.Command{
	Use:   "terminate <id>",
	Short: "Terminate a session",
	Long: `Terminate a session, instructing the external agent to stop and
releasing every lock the session holds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Terminate session '%s'?", args[0]), sessionForce)
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}

		result, err := client.TerminateSession(args[0])
		if err != nil {
			return err
		}

		return cmdutil.PrintResourceWithSuccess(os.Stdout, result,
			fmt.Sprintf("Session %s terminated", result.SessionID))
	},
}

var sessionSyncCmd = &cobra.Command{
	Use:   "sync <id> [id...]",
	Short: "Reconcile sessions against the agent fleet",
	Long: `Poll the agent fleet for the given sessions and reconcile their
registry state. With multiple ids, per-session failures are reported
inline without failing the whole batch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			result, err := client.SyncSession(args[0])
			if err != nil {
				return err
			}
			return cmdutil.PrintResourceWithSuccess(os.Stdout, result,
				fmt.Sprintf("Session %s: %s", args[0], result.Session.Status))
		}

		outcomes, err := client.SyncSessions(args)
		if err != nil {
			return err
		}

		table := output.NewTableData("SESSION", "STATUS", "ERROR")
		for _, o := range outcomes {
			status := "-"
			if o.Result != nil && o.Result.Session != nil {
				status = o.Result.Session.Status
			}
			table.AddRow(o.SessionID, status, cmdutil.EmptyOr(o.Error, "-"))
		}
		return cmdutil.PrintOutput(os.Stdout, outcomes, len(outcomes) == 0, "Nothing to sync.", table)
	},
}

func printSessionDetail(s *apiclient.Session) {
	fmt.Printf("Session:  %s\n", s.ID)
	fmt.Printf("Status:   %s\n", s.Status)
	fmt.Printf("Repo:     %s\n", s.SourceRepo)
	fmt.Printf("Branch:   %s (base: %s)\n", s.BranchName, cmdutil.EmptyOr(s.BaseBranch, "-"))
	fmt.Printf("Depth:    %d\n", s.RemediationDepth)
	if s.GoalID != nil {
		fmt.Printf("Goal:     %s\n", *s.GoalID)
	}
	if s.CascadeID != nil {
		fmt.Printf("Cascade:  %s\n", *s.CascadeID)
	}
	if s.ExternalAgentID != nil {
		fmt.Printf("Agent:    %s\n", *s.ExternalAgentID)
	}
	if s.AgentURL != "" {
		fmt.Printf("URL:      %s\n", s.AgentURL)
	}
	if s.LastError != "" {
		fmt.Printf("Error:    %s\n", s.LastError)
	}
	if s.LastSyncedAt != nil {
		fmt.Printf("Synced:   %s\n", s.LastSyncedAt.Format("2006-01-02 15:04:05"))
	}

	if len(s.Locks) > 0 {
		fmt.Println("\nHeld locks:")
		for _, l := range s.Locks {
			fmt.Printf("  %s (since %s)\n", l.FilePath, l.LockedAt.Format("15:04:05"))
		}
	}
}
