package cmd

import (
	"fmt"
	"strings"

	"github.com/iksnae/cognitus-chat/internal"
	"github.com/spf13/cobra"
)

var createTitle string

// chatsCmd groups conversation management commands
var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage conversations",
}

var chatsCreateCmd = &cobra.Command{
	Use:   "create [instruction...]",
	Short: "Create a conversation, optionally with a first instruction",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()

		chat, err := a.client.CreateChat(cmd.Context(), internal.ChatCreate{
			Title:           createTitle,
			UserInstruction: strings.Join(args, " "),
		})
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		a.remember(cmd.Context(), chat)

		fmt.Fprintln(cmd.OutOrStdout(), chat.ID)
		internal.PrintSuccess(fmt.Sprintf("Created conversation %q", chat.Title))
		return nil
	},
}

var chatsRenameCmd = &cobra.Command{
	Use:   "rename <chat-id> <title...>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()

		chat, err := a.client.RenameChat(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("failed to rename conversation %s: %w", args[0], err)
		}
		a.remember(cmd.Context(), chat)

		internal.PrintSuccess(fmt.Sprintf("Renamed %s to %q", chat.ID, chat.Title))
		return nil
	},
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <chat-id>...",
	Short: "Delete conversations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()

		for _, id := range args {
			if err := a.deleteChat(cmd.Context(), id); err != nil {
				return err
			}
			internal.PrintSuccess(fmt.Sprintf("Deleted conversation %s", id))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatsCmd)
	chatsCmd.AddCommand(chatsCreateCmd, chatsRenameCmd, chatsDeleteCmd)
	chatsCreateCmd.Flags().StringVarP(&createTitle, "title", "t", "", "Conversation title (default \"Chat\")")
}
