package main

import (
	"context"
	"fmt"
	"io"

	"cloudvault/internal/domain/conversation"
	"cloudvault/internal/proxy"
	"cloudvault/internal/repository"
	"cloudvault/internal/services"
	"cloudvault/pkg/logger"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const maxRounds = 10

var (
	simulateMembers int
	simulateRotate  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run enable, key exchange and rotation between in-process members",
	Long: `Starts an in-memory server and one encryption session per member, lets the
first member enable encryption and drains notifications until the exchange
settles. Every member then sends a message and the delivery matrix is
printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulation(cmd.Context(), cmd.OutOrStdout(), simulateMembers, simulateRotate, log)
	},
}

func init() {
	simulateCmd.Flags().IntVarP(&simulateMembers, "members", "m", 2, "number of conversation members")
	simulateCmd.Flags().BoolVar(&simulateRotate, "rotate", true, "rotate the initiator's key after the first exchange")
}

type member struct {
	id      uuid.UUID
	session *services.EncryptionSession
}

// runSimulation fails when a message between the initiator and any other
// member cannot be read. Pairs of responders are reported but not required.
func runSimulation(ctx context.Context, out io.Writer, members int, rotate bool, log *logger.Logger) error {
	if members < 2 {
		return fmt.Errorf("need at least 2 members, got %d", members)
	}

	store := repository.NewMemoryStore()
	svc := services.NewEncryptionService(
		store.Encryption(),
		services.NewParticipantService(store.Conversations(), nil, log),
		services.NewNotificationService(store.Notifications(), nil, log),
		proxy.NewAccessControl(store.Conversations()),
		log,
	)

	convID := uuid.New()
	group := make([]member, 0, members)
	for i := 0; i < members; i++ {
		id := uuid.New()
		if err := store.Conversations().AddParticipant(ctx, &conversation.Participant{ConversationID: convID, UserID: id}); err != nil {
			return err
		}
		group = append(group, member{id: id, session: services.NewEncryptionSession(id, services.NewLocalActions(svc, id), log)})
	}
	fmt.Fprintf(out, "conversation %s with %d members\n", convID, members)

	initiator := group[0].session
	if !initiator.EnableEncryption(ctx, convID) {
		return fmt.Errorf("enable: %s", initiator.Status(convID).Error)
	}
	rounds, err := settle(ctx, group, convID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s exchange settled after %d rounds\n", color.CyanString("→"), rounds)
	if err := report(out, group, convID); err != nil {
		return err
	}

	if !rotate {
		return nil
	}
	if !initiator.RotateKeys(ctx, convID) {
		return fmt.Errorf("rotate: %s", initiator.Status(convID).Error)
	}
	rounds, err = settle(ctx, group, convID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s rotation settled after %d rounds\n", color.CyanString("→"), rounds)
	return report(out, group, convID)
}

// settle drains every member's notifications until a full round applies none.
func settle(ctx context.Context, group []member, convID uuid.UUID) (int, error) {
	for round := 1; round <= maxRounds; round++ {
		applied := 0
		for _, m := range group {
			n, err := m.session.ProcessNotifications(ctx, convID)
			if err != nil {
				return round, err
			}
			applied += n
		}
		if applied == 0 {
			return round, nil
		}
	}
	return maxRounds, fmt.Errorf("exchange did not settle after %d rounds", maxRounds)
}

func report(out io.Writer, group []member, convID uuid.UUID) error {
	var required int
	for i, sender := range group {
		text := fmt.Sprintf("hello from member %d", i)
		msg, err := sender.session.EncryptMessage(text, convID)
		if err != nil {
			return err
		}
		if msg == nil {
			return fmt.Errorf("member %d does not see encryption enabled", i)
		}
		for j, recipient := range group {
			if i == j {
				continue
			}
			got := recipient.session.DecryptMessage(msg, convID)
			if got == text {
				fmt.Fprintf(out, "%s member %d → member %d\n", color.GreenString("✓"), i, j)
				continue
			}
			fmt.Fprintf(out, "%s member %d → member %d: %s\n", color.RedString("✗"), i, j, got)
			if i == 0 || j == 0 {
				required++
			}
		}
	}
	if required > 0 {
		return fmt.Errorf("%d initiator deliveries failed", required)
	}
	return nil
}
