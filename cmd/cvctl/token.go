package main

import (
	"fmt"
	"time"

	"cloudvault/internal/services"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a development access token signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		token, err := services.NewAuthService(cfg.JWTSecret, tokenTTL).IssueAccessToken(userID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), color.CyanString("→")+" valid for "+tokenTTL.String())
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
