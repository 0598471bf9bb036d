package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/iksnae/cognitus-chat/internal"
	"github.com/spf13/cobra"
)

// watchCmd follows a conversation live
var watchCmd = &cobra.Command{
	Use:   "watch <chat-id>",
	Short: "Follow a conversation live",
	Long: `Print the history of a conversation, then follow its event stream and
print messages as the agent produces them. A spinner is shown while the
agent is working. Press Ctrl+C to stop.

The stream is not reconnected automatically; run the command again to resume.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a := newApp(cfg)
		defer a.Close()

		chat, err := a.loadChat(ctx, args[0], false)
		if err != nil {
			return err
		}

		files := a.newFileMap()
		files.Replace(chat.FileMap)

		out := cmd.OutOrStdout()
		renderer := NewRenderer(out, files)
		renderer.Header(chat)
		renderer.History(chat.History)

		indicator := internal.NewWorkingIndicator(cmd.ErrOrStderr(), "Agent is working...")
		defer indicator.Stop()

		session := a.follow(ctx, "", chat, files, liveListener(ctx, a, chat.ID, renderer, indicator, nil))
		return waitSession(ctx, a, session, files, out)
	},
}

// liveListener renders accepted messages, persists them and drives the
// working indicator. skip, when set, suppresses rendering of a message.
func liveListener(ctx context.Context, a *app, chatID string, renderer *Renderer, indicator *internal.WorkingIndicator, skip func(internal.Message) bool) internal.Listener {
	return internal.ListenerFuncs{
		Message: func(msg internal.Message) {
			a.persist(ctx, chatID, msg)
			if skip != nil && skip(msg) {
				return
			}
			working := indicator.Active()
			indicator.Stop()
			renderer.Message(msg)
			if working {
				indicator.Set(true)
			}
		},
		Working: indicator.Set,
		State: func(state internal.SessionState) {
			internal.LogDebug("Stream %s is %s", chatID, state)
		},
	}
}

// waitSession blocks until the session closes or ctx is cancelled and
// reports why the stream ended
func waitSession(ctx context.Context, a *app, session *internal.Session, files *internal.FileMap, out io.Writer) error {
	select {
	case <-session.Done():
	case <-ctx.Done():
		session.Stop()
	}

	if a.cache != nil && files.Len() > 0 {
		if err := a.cache.SaveFileMap(context.Background(), session.ChatID(), files.Snapshot()); err != nil {
			internal.LogWarn("Failed to cache files for %s: %v", session.ChatID(), err)
		}
	}

	stats := session.Stats()
	internal.LogDebugw("stream closed", "chat", session.ChatID(),
		"frames", stats.Frames, "accepted", stats.Accepted, "duplicates", stats.Duplicates,
		"rejected", stats.Rejected, "malformed", stats.Malformed)

	err := session.Err()
	switch {
	case err == nil:
		if ctx.Err() == nil {
			fmt.Fprintln(out, idStyle.Render("Stream ended by server."))
		}
		return nil
	case errors.Is(err, internal.ErrUnauthorized):
		return fmt.Errorf("stream rejected, check your token: %w", err)
	default:
		return fmt.Errorf("stream closed: %w", err)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
