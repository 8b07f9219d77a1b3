package commands

import (
	"fmt"
	"net/url"
	"time"

	"github.com/drover-ai/drover/cmd/droverctl/cmdutil"
	"github.com/drover-ai/drover/internal/cli/credentials"
	"github.com/drover-ai/drover/internal/cli/prompt"
	"github.com/drover-ai/drover/pkg/apiclient"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var (
	loginServer string
	loginToken  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store credentials for a Drover control plane",
	Long: `Store an operator token for a Drover control plane.

The control plane has no login endpoint: tokens are minted out-of-band
with 'drover token' by whoever holds the signing secret. This command
verifies the token against the server and stores it for later commands.

On first login, you must specify the server URL. Subsequent logins will
use the stored server URL unless overridden.

Examples:
  # First login to a server
  droverctl login --server http://localhost:8080 --token $TOKEN

  # Re-login to the stored server (prompts for the token)
  droverctl login`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginServer, "server", "", "Server URL (required on first login)")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Operator token (prompted if not provided)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	// Load credential store
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	// Determine server URL
	serverURLStr := loginServer
	if serverURLStr == "" {
		// Try to get from current context
		ctx, err := store.GetCurrentContext()
		if err != nil || ctx == nil || ctx.ServerURL == "" {
			return fmt.Errorf("no server URL specified and no saved context found\n\n" +
				"Specify server URL:\n" +
				"  droverctl login --server http://localhost:8080")
		}
		serverURLStr = ctx.ServerURL
	}

	// Validate server URL
	parsedURL, err := url.Parse(serverURLStr)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if parsedURL.Scheme == "" {
		parsedURL.Scheme = "http"
		serverURLStr = parsedURL.String()
	}

	// Get token (prompt if not provided)
	token := loginToken
	if token == "" {
		token, err = prompt.Password("Operator token")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	// Read the operator name and expiry from the token claims. The server
	// verifies the signature; the client only displays these.
	operator, expiresAt := inspectToken(token)

	// Verify the token against the server
	client := apiclient.New(serverURLStr).WithToken(token)
	fmt.Printf("Verifying token against %s...\n", serverURLStr)
	if _, err := client.ListSessions(false); err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}

	// Determine context name
	contextName := store.GetCurrentContextName()
	if contextName == "" {
		contextName = credentials.GenerateContextName(serverURLStr)
	}

	// Save credentials
	ctx := &credentials.Context{
		ServerURL:   serverURLStr,
		Operator:    operator,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}

	if err := store.SetContext(contextName, ctx); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	if err := store.UseContext(contextName); err != nil {
		return fmt.Errorf("failed to set current context: %w", err)
	}

	if operator != "" {
		fmt.Printf("Logged in successfully as %s\n", operator)
	} else {
		fmt.Println("Logged in successfully")
	}
	fmt.Printf("Context: %s\n", contextName)
	fmt.Printf("Credentials saved to: %s\n", store.ConfigPath())

	return nil
}

// inspectToken extracts the operator name and expiry from the token claims
// without verifying the signature. Returns zero values for opaque tokens.
func inspectToken(token string) (string, time.Time) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", time.Time{}
	}

	operator, _ := claims["operator"].(string)

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return operator, expiresAt
}
