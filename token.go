package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"efd-cmms-bridge/internal/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := opts.cfg.HTTP.JWTSecret
			if secret == "" {
				return errors.New("http.jwt_secret (AUTH_JWT_SECRET) is not set")
			}
			r, ok := auth.NormalizeRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.IssueJWT([]byte(secret), subject, r, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "role (viewer, operator, admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
