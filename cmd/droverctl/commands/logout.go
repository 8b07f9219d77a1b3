package commands

import (
	"errors"
	"fmt"

	"github.com/drover-ai/drover/internal/cli/credentials"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Long: `Remove the stored operator token for the current context.

The context itself (server URL) is kept so a later 'droverctl login'
does not need --server again.`,
	RunE: runLogout,
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	if err := store.ClearCurrentContext(); err != nil {
		if errors.Is(err, credentials.ErrNoCurrentContext) {
			fmt.Println("Not logged in")
			return nil
		}
		return err
	}

	fmt.Println("Logged out")
	return nil
}
