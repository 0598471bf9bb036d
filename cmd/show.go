package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/cognitus-chat/internal"
	"github.com/spf13/cobra"
)

var (
	limit      int
	showCached bool
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <chat-id>",
	Short: "Show the history of a conversation",
	Long: `Display the history of a conversation. Function calls are printed with
their text, table and chart outputs; inline images are shown as URLs.

The conversation is fetched from the server and stored in the local history
cache. Use --cached to read the cache only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()

		chat, err := a.loadChat(cmd.Context(), args[0], showCached)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		renderer := NewRenderer(out, internal.MapResolver(chat.FileMap))
		renderer.Header(chat)

		messages := chat.History
		total := len(messages)
		if limit > 0 && limit < total {
			messages = lastMessages(messages, limit)
			fmt.Fprintln(out, lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true).
				Render(fmt.Sprintf("... (%d earlier message(s))", total-len(messages))))
			fmt.Fprintln(out)
		}

		renderer.History(messages)
		return nil
	},
}

// lastMessages returns the last n messages, extending the window backwards
// so no function result in it is separated from its call
func lastMessages(messages []internal.Message, n int) []internal.Message {
	start := len(messages) - n
	if start <= 0 {
		return messages
	}

	index := make(map[string]int, start)
	for i, msg := range messages[:start] {
		index[msg.ID] = i
	}
	first := start
	for _, msg := range messages[start:] {
		if msg.Kind != internal.KindFunctionResult {
			continue
		}
		if i, ok := index[msg.BelongsTo]; ok && i < first {
			first = i
		}
	}
	return messages[first:]
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the last n messages")
	showCmd.Flags().BoolVar(&showCached, "cached", false, "Read the conversation from the local history cache")
}
