package commands

import (
	"fmt"
	"os"

	"github.com/drover-ai/drover/cmd/droverctl/cmdutil"
	"github.com/drover-ai/drover/internal/cli/output"
	"github.com/drover-ai/drover/internal/cli/prompt"
	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect and release file locks",
	Long: `Inspect and release exclusive per-file locks.

Locks are normally acquired and released by the engine. Manual release
is an escape hatch for orphaned reservations.`,
}

var (
	lockReleaseSession string
	lockReleaseAll     bool
	lockForce          bool
)

func init() {
	lockReleaseCmd.Flags().StringVar(&lockReleaseSession, "session", "", "Release locks held by this session")
	lockReleaseCmd.Flags().BoolVar(&lockReleaseAll, "all", false, "Release every lock in the registry")
	lockReleaseCmd.Flags().BoolVarP(&lockForce, "force", "f", false, "Skip confirmation")

	lockCmd.AddCommand(lockListCmd)
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockReleaseCmd)
}

var lockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List held locks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		locks, err := client.ListLocks()
		if err != nil {
			return err
		}

		table := output.NewTableData("PATH", "SESSION", "LOCKED AT")
		for _, l := range locks {
			table.AddRow(l.FilePath, l.SessionID, l.LockedAt.Format("2006-01-02 15:04:05"))
		}

		return cmdutil.PrintOutput(os.Stdout, locks, len(locks) == 0, "No locks held.", table)
	},
}

var lockStatusCmd = &cobra.Command{
	Use:   "status <path> [path...]",
	Short: "Show who holds the given paths",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		statuses, err := client.LockStatus(args)
		if err != nil {
			return err
		}

		table := output.NewTableData("PATH", "SESSION", "SESSION STATUS", "BRANCH")
		for _, s := range statuses {
			table.AddRow(s.Path,
				cmdutil.EmptyOr(s.SessionID, "-"),
				cmdutil.EmptyOr(s.SessionStatus, "-"),
				cmdutil.EmptyOr(s.Branch, "-"))
		}

		return cmdutil.PrintOutput(os.Stdout, statuses, len(statuses) == 0, "All paths free.", table)
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release locks",
	Example: `  # Release the locks of an orphaned session
  droverctl lock release --session 7d8f...

  # Release everything (dangerous)
  droverctl lock release --all --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (lockReleaseSession == "") == !lockReleaseAll {
			return fmt.Errorf("specify exactly one of --session or --all")
		}

		client, err := cmdutil.GetAuthenticatedClient()
		if err != nil {
			return err
		}

		label := fmt.Sprintf("Release locks held by session '%s'?", lockReleaseSession)
		if lockReleaseAll {
			label = "Release EVERY lock in the registry?"
		}
		confirmed, err := prompt.ConfirmWithForce(label, lockForce)
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}

		var released int64
		if lockReleaseAll {
			resp, err := client.ReleaseAllLocks()
			if err != nil {
				return err
			}
			released = resp.ReleasedCount
		} else {
			resp, err := client.ReleaseSessionLocks(lockReleaseSession)
			if err != nil {
				return err
			}
			released = resp.ReleasedCount
		}

		cmdutil.PrintSuccess(fmt.Sprintf("Released %d lock(s)", released))
		return nil
	},
}
