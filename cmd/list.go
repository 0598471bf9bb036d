package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/cognitus-chat/internal"
	"github.com/spf13/cobra"
)

var listCached bool

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// chatRow is one line of the conversation listing
type chatRow struct {
	ID       string
	Title    string
	Messages int
	Updated  string
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Long: `List conversations on the server, or in the local history cache with --cached.

Listing from the server does not fetch full histories into the cache; use
'cognitus show <id>' for that.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()
		ctx := cmd.Context()

		var rows []chatRow
		if listCached {
			if a.cache == nil {
				return fmt.Errorf("history cache is disabled")
			}
			summaries, err := a.cache.ListChats(ctx)
			if err != nil {
				return fmt.Errorf("failed to read history cache: %w", err)
			}
			for _, s := range summaries {
				rows = append(rows, chatRow{ID: s.ID, Title: s.Title, Messages: s.MessageCount, Updated: s.UpdatedAt})
			}
		} else {
			var chats []internal.Chat
			err := internal.ShowProgress(ctx, "Loading conversations", func() error {
				var err error
				chats, err = a.client.ListChats(ctx)
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to list conversations: %w", err)
			}
			for _, c := range chats {
				updated := c.UpdatedAt
				if updated == "" {
					updated = c.CreatedAt
				}
				rows = append(rows, chatRow{ID: c.ID, Title: c.Title, Messages: len(c.History), Updated: updated})
			}
		}

		displayChats(cmd.OutOrStdout(), rows, time.Now())
		return nil
	},
}

func displayChats(out io.Writer, rows []chatRow, now time.Time) {
	if len(rows) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No conversations found"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Found %d conversation(s)", len(rows))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Updated")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 90))

	for _, row := range rows {
		title := row.Title
		if title == "" {
			title = "Untitled"
		}
		if len(title) > 50 {
			title = title[:47] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			idStyle.Render(row.ID),
			title,
			countStyle.Render(strconv.Itoa(row.Messages)),
			dateStyle.Render(formatWhen(row.Updated, now)))
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("💡 Tip: follow a conversation with `cognitus watch "+rows[0].ID+"`"))
}

// formatWhen shortens an RFC3339 timestamp relative to now
func formatWhen(ts string, now time.Time) string {
	if ts == "" {
		return "—"
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		// server timestamps without a zone
		t, err = time.Parse("2006-01-02T15:04:05.999999", ts)
		if err != nil {
			return ts
		}
	}

	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour && t.YearDay() == now.YearDay():
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	chatsCmd.AddCommand(chatsListCmd)
	chatsListCmd.Flags().BoolVar(&listCached, "cached", false, "List conversations from the local history cache")
}
