package commands

import (
	"fmt"
	"os"

	"github.com/drover-ai/drover/cmd/droverctl/cmdutil"
	"github.com/drover-ai/drover/internal/cli/credentials"
	"github.com/drover-ai/drover/internal/cli/output"
	"github.com/spf13/cobra"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage connection contexts",
	Long:  `Manage the stored connection contexts (server URLs and credentials).`,
}

func init() {
	contextCmd.AddCommand(contextListCmd)
	contextCmd.AddCommand(contextCurrentCmd)
	contextCmd.AddCommand(contextUseCmd)
	contextCmd.AddCommand(contextRenameCmd)
	contextCmd.AddCommand(contextDeleteCmd)
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}

		names := store.ListContexts()
		current := store.GetCurrentContextName()

		table := output.NewTableData("CURRENT", "NAME", "SERVER", "OPERATOR")
		for _, name := range names {
			ctx, err := store.GetContext(name)
			if err != nil {
				continue
			}
			marker := ""
			if name == current {
				marker = "*"
			}
			table.AddRow(marker, name, ctx.ServerURL, cmdutil.EmptyOr(ctx.Operator, "-"))
		}

		return cmdutil.PrintOutput(os.Stdout, names, len(names) == 0, "No contexts stored. Run 'droverctl login' first.", table)
	},
}

var contextCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		name := store.GetCurrentContextName()
		if name == "" {
			fmt.Println("No current context set")
			return nil
		}
		fmt.Println(name)
		return nil
	},
}

var contextUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch to a different context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		if err := store.UseContext(args[0]); err != nil {
			return err
		}
		fmt.Printf("Switched to context %q\n", args[0])
		return nil
	},
}

var contextRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a context",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		if err := store.RenameContext(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Renamed context %q to %q\n", args[0], args[1])
		return nil
	},
}

var contextDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		if err := store.DeleteContext(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted context %q\n", args[0])
		return nil
	},
}
