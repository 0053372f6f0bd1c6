package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-gateway/internal/auth"
)

const defaultTokenTTL = time.Hour

func newTokenCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for a user",
		Long: `Sign a short-lived bearer token for an existing user with the configured
JWT secret. Intended for operators and local testing; the gateway resolves the
user's role from the store on every request.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := cmd.Flags().GetString("user")
			if err != nil {
				return fmt.Errorf("failed to get user flag: %w", err)
			}
			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return fmt.Errorf("failed to get ttl flag: %w", err)
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			secret, err := cfg.Auth.GetJWTSecret()
			if err != nil {
				return err
			}
			token, err := auth.SignToken(secret, user, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().String("user", "", "User id placed in the token subject (required)")
	cmd.Flags().Duration("ttl", defaultTokenTTL, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
