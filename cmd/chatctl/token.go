package main

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCmd(cfg *config) *cobra.Command {
	var (
		role     string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for tests and local clients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.jwtSecret == "" {
				return fmt.Errorf("jwt secret is required, set --jwt-secret or JWT_SECRET")
			}
			identity := domain.Identity{UserID: domain.UserID(args[0]), Role: domain.Role(role)}
			if !identity.Role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.NewTokens(cfg.jwtSecret, duration).GenerateToken(identity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleCustomer), "customer, company or admin")
	cmd.Flags().DurationVar(&duration, "ttl", time.Hour, "Token lifetime")
	return cmd
}
