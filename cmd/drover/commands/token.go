package commands

import (
	"fmt"
	"time"

	"github.com/drover-ai/drover/pkg/config"
	"github.com/drover-ai/drover/pkg/controlplane/api/auth"
	"github.com/spf13/cobra"
)

var (
	tokenOperator string
	tokenDuration time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator API token",
	Long: `Mint a JWT for the operator API, signed with the configured secret.

The control plane has no login endpoint: operator tokens are minted
out-of-band by whoever holds the signing secret and handed to droverctl.

Examples:
  # Mint a token for the default operator
  drover token

  # Mint a 7-day token for a named operator
  drover token --operator alice --duration 168h`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "operator", "Operator name embedded in the token")
	tokenCmd.Flags().DurationVar(&tokenDuration, "duration", 0, "Token lifetime (default: configured token_duration)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	secret := cfg.API.GetJWTSecret()
	if secret == "" {
		return fmt.Errorf("no JWT secret configured (set api.jwt.secret or DROVER_API_SECRET)")
	}

	duration := tokenDuration
	if duration == 0 {
		duration = cfg.API.JWT.TokenDuration
	}

	svc, err := auth.NewService(auth.Config{
		Secret:        secret,
		TokenDuration: duration,
	})
	if err != nil {
		return err
	}

	token, expiresAt, err := svc.GenerateToken(tokenOperator)
	if err != nil {
		return err
	}

	fmt.Println(token)
	fmt.Fprintf(cmd.ErrOrStderr(), "Token for %q expires at %s\n", tokenOperator, expiresAt.Format(time.RFC3339))
	return nil
}
