package commands

import (
	"fmt"
	"os"

	"github.com/drover-ai/drover/cmd/droverctl/cmdutil"
	"github.com/drover-ai/drover/internal/cli/credentials"
	"github.com/drover-ai/drover/internal/cli/output"
	"github.com/drover-ai/drover/internal/cli/timeutil"
	"github.com/drover-ai/drover/pkg/apiclient"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health",
	Long: `Show the health and readiness of the connected control plane.

The health endpoints are unauthenticated, so this works without a valid
token as long as a server URL is known.`,
	RunE: runServerStatus,
}

func runServerStatus(cmd *cobra.Command, args []string) error {
	serverURL := cmdutil.Flags.ServerURL
	if serverURL == "" {
		store, err := credentials.NewStore()
		if err != nil {
			return err
		}
		ctx, err := store.GetCurrentContext()
		if err != nil || ctx.ServerURL == "" {
			return fmt.Errorf("no server URL known. Use --server or 'droverctl login --server <url>'")
		}
		serverURL = ctx.ServerURL
	}

	client := apiclient.New(serverURL)

	healthResp, err := client.Health()
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	readyResp, readyErr := client.Ready()

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		combined := map[string]any{"health": healthResp, "ready": readyResp}
		return cmdutil.PrintResource(os.Stdout, combined, nil)
	}

	fmt.Printf("Server:  %s\n", serverURL)
	fmt.Printf("Status:  %s\n", healthResp.Status)
	if healthResp.StartedAt != "" {
		fmt.Printf("Started: %s\n", timeutil.FormatTime(healthResp.StartedAt))
	}
	if healthResp.Uptime != "" {
		fmt.Printf("Uptime:  %s\n", timeutil.FormatUptime(healthResp.Uptime))
	}
	switch {
	case readyErr != nil:
		fmt.Printf("Store:   unreachable (%v)\n", readyErr)
	case readyResp.Error != "":
		fmt.Printf("Store:   %s (%s)\n", readyResp.Status, readyResp.Error)
	default:
		fmt.Printf("Store:   %s\n", readyResp.Status)
	}
	return nil
}
