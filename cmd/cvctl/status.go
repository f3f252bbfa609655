package main

import (
	"fmt"
	"io"
	"strings"

	"cloudvault/internal/client"
	"cloudvault/internal/services"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <conversation-id>",
	Short: "Show the encryption status of a conversation through the API",
	Long: `Queries API_BASE_URL with API_TOKEN and prints whether the conversation is
encrypted, how many active key records it has and who holds them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid conversation id: %w", err)
		}
		if cfg.APIToken == "" {
			return fmt.Errorf("API_TOKEN is not set, issue one with %s", color.YellowString("cvctl token <user-id>"))
		}
		remote := client.New(cfg.APIBaseURL, cfg.APIToken, nil)
		status, err := remote.Status(cmd.Context(), conversationID)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), conversationID, status)
		return nil
	},
}

func printStatus(out io.Writer, conversationID uuid.UUID, status services.ConversationStatus) {
	enabled := color.RedString("disabled")
	if status.Enabled {
		enabled = color.GreenString("enabled")
	}
	fmt.Fprintf(out, "conversation %s: %s\n", conversationID, enabled)
	fmt.Fprintf(out, "%s active key records: %d\n", color.CyanString("→"), status.Keys.KeyCount)
	if status.Keys.LastKeyRotation != nil {
		fmt.Fprintf(out, "%s last rotation: %s\n", color.CyanString("→"), status.Keys.LastKeyRotation.Format("2006-01-02 15:04:05Z07:00"))
	}
	if len(status.Keys.Participants) > 0 {
		ids := make([]string, 0, len(status.Keys.Participants))
		for _, id := range status.Keys.Participants {
			ids = append(ids, id.String())
		}
		fmt.Fprintf(out, "%s key holders: %s\n", color.CyanString("→"), strings.Join(ids, ", "))
	}
}
