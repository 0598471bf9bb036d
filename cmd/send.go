package cmd

import (
	"fmt"
	"strings"

	"github.com/iksnae/cognitus-chat/internal"
	"github.com/spf13/cobra"
)

// sendCmd posts one instruction without following the stream
var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <instruction...>",
	Short: "Send an instruction to the agent",
	Long: `Send an instruction to a conversation and return. Follow the agent's
answer with 'cognitus watch <chat-id>'.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()

		chatID := args[0]
		instruction := strings.TrimSpace(strings.Join(args[1:], " "))
		if instruction == "" {
			return fmt.Errorf("instruction is empty")
		}

		if err := a.client.SendInstruction(cmd.Context(), chatID, instruction); err != nil {
			return fmt.Errorf("failed to send instruction: %w", err)
		}
		internal.PrintSuccess(fmt.Sprintf("Sent to %s", chatID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
