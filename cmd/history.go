// File: cmd/history.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zerofrost11/cortex-client/api/schemas"
	"github.com/zerofrost11/cortex-client/internal/conversation"
	"github.com/zerofrost11/cortex-client/internal/observability"
	"github.com/zerofrost11/cortex-client/internal/store"
)

// newHistoryCmd creates the `history` command and its subcommands. History
// only touches the on-disk store; no agent connection is made.
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Lists stored conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conversations, err := openConversations()
			if err != nil {
				return err
			}

			list := conversations.List()
			if len(list) == 0 {
				cmd.Println("No conversations stored.")
				return nil
			}
			for _, conv := range list {
				marker := " "
				if conv.ID == conversations.CurrentID() {
					marker = "*"
				}
				cmd.Printf("%s %s  %-34s  %d messages  %s\n",
					marker, conv.ID, conv.Title, len(conv.Messages),
					conv.UpdatedAt.Local().Format("2006-01-02 15:04"),
				)
			}
			return nil
		},
	}

	historyCmd.AddCommand(newHistoryShowCmd())
	historyCmd.AddCommand(newHistoryRemoveCmd())
	return historyCmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Prints the full transcript of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conversations, err := openConversations()
			if err != nil {
				return err
			}
			var target *schemas.Conversation
			for _, conv := range conversations.List() {
				if conv.ID == args[0] {
					conv := conv
					target = &conv
					break
				}
			}
			if target == nil {
				return fmt.Errorf("conversation %s: %w", args[0], conversation.ErrNotFound)
			}

			cmd.Printf("%s (%s)\n\n", target.Title, target.ID)
			for _, msg := range target.Messages {
				cmd.Printf("[%s] %s\n", msg.Role, msg.Content)
				for _, shot := range msg.Screenshots {
					if shot.URL != "" {
						cmd.Printf("    step %d screenshot: %s\n", shot.Step, shot.URL)
					}
				}
			}
			return nil
		},
	}
}

func newHistoryRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <conversation-id>",
		Short: "Deletes a conversation from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conversations, err := openConversations()
			if err != nil {
				return err
			}
			if _, err := conversations.Remove(args[0]); err != nil {
				return fmt.Errorf("conversation %s: %w", args[0], err)
			}
			observability.GetLogger().Info("Conversation removed", zap.String("conversation_id", args[0]))
			return nil
		},
	}
}

// openConversations wires the file-backed store for read-mostly commands.
func openConversations() (*conversation.Store, error) {
	logger := observability.GetLogger()
	blob, err := store.NewFileStore(cfg.Store().Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	return conversation.NewStore(blob, cfg.Store().Key, logger), nil
}
