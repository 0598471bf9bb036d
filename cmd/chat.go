package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/iksnae/cognitus-chat/internal"
	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  /switch <chat-id>   follow another conversation
  /new [title]        start a new conversation
  /delete             delete the current conversation
  /quit               leave`

// chatCmd is the interactive conversation loop
var chatCmd = &cobra.Command{
	Use:   "chat [chat-id]",
	Short: "Chat with the agent interactively",
	Long: `Open a conversation, follow its live stream and send every line you type
as an instruction. Without a chat id, the first line starts a new
conversation.

` + chatHelp,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a := newApp(cfg)
		defer a.Close()

		r := &chatREPL{
			app:       a,
			out:       cmd.OutOrStdout(),
			indicator: internal.NewWorkingIndicator(cmd.ErrOrStderr(), "Agent is working..."),
			pending:   make(map[string]int),
		}
		defer r.indicator.Stop()

		if len(args) == 1 {
			if err := r.open(ctx, args[0]); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(r.out, idStyle.Render("Type an instruction to start a new conversation. /quit to leave."))
		}

		return r.loop(ctx, cmd.InOrStdin())
	},
}

// chatREPL tracks the conversation being followed
type chatREPL struct {
	app       *app
	out       io.Writer
	indicator *internal.WorkingIndicator

	chat     *internal.Chat
	files    *internal.FileMap
	renderer *Renderer
	session  *internal.Session

	// instructions sent but not yet echoed by the stream
	mu      sync.Mutex
	pending map[string]int
}

func (r *chatREPL) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var done <-chan struct{}
		if r.session != nil {
			done = r.session.Done()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-done:
			r.reportClosed()
			r.session = nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := r.handle(ctx, strings.TrimSpace(line))
			if err != nil {
				internal.PrintError(err.Error())
			}
			if quit {
				return nil
			}
		}
	}
}

func (r *chatREPL) handle(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/switch":
		if arg == "" {
			return false, errors.New("usage: /switch <chat-id>")
		}
		return false, r.open(ctx, arg)
	case "/new":
		return false, r.create(ctx, internal.ChatCreate{Title: arg})
	case "/delete":
		if r.chat == nil {
			return false, errors.New("no conversation open")
		}
		id := r.chat.ID
		if err := r.app.deleteChat(ctx, id); err != nil {
			return false, err
		}
		r.chat, r.session = nil, nil
		internal.PrintSuccess(fmt.Sprintf("Deleted conversation %s", id))
	default:
		return false, fmt.Errorf("unknown command %s\n%s", name, chatHelp)
	}
	return false, nil
}

// open loads a conversation and follows it, closing the previous one
func (r *chatREPL) open(ctx context.Context, chatID string) error {
	chat, err := r.app.loadChat(ctx, chatID, false)
	if err != nil {
		return err
	}
	r.follow(ctx, chat)
	return nil
}

func (r *chatREPL) create(ctx context.Context, in internal.ChatCreate) error {
	chat, err := r.app.client.CreateChat(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	r.app.remember(ctx, chat)
	r.follow(ctx, chat)
	return nil
}

func (r *chatREPL) follow(ctx context.Context, chat *internal.Chat) {
	from := ""
	if r.chat != nil {
		from = r.chat.ID
	}
	r.indicator.Stop()

	r.chat = chat
	r.files = r.app.newFileMap()
	r.files.Replace(chat.FileMap)
	r.renderer = NewRenderer(r.out, r.files)

	r.mu.Lock()
	r.pending = make(map[string]int)
	r.mu.Unlock()

	r.renderer.Header(chat)
	r.renderer.History(chat.History)

	r.session = r.app.follow(ctx, from, chat, r.files,
		liveListener(ctx, r.app, chat.ID, r.renderer, r.indicator, r.echoed))
}

// send shows the instruction immediately, then posts it to the agent.
// Without an open conversation the instruction starts a new one.
func (r *chatREPL) send(ctx context.Context, text string) error {
	if r.chat == nil {
		return r.create(ctx, internal.ChatCreate{UserInstruction: text})
	}
	if r.session == nil {
		internal.PrintWarning("Stream is closed; use /switch " + r.chat.ID + " to reconnect")
	} else {
		local := r.session.Store().AppendLocal(text, nil)
		r.renderer.Message(local)

		r.mu.Lock()
		r.pending[text]++
		r.mu.Unlock()
	}

	if err := r.app.client.SendInstruction(ctx, r.chat.ID, text); err != nil {
		r.forget(text)
		return fmt.Errorf("failed to send instruction: %w", err)
	}
	return nil
}

// echoed reports whether msg is the stream's copy of an instruction that
// was already shown locally
func (r *chatREPL) echoed(msg internal.Message) bool {
	if msg.Kind != internal.KindUser {
		return false
	}
	return r.forget(msg.Content)
}

func (r *chatREPL) forget(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[text] == 0 {
		return false
	}
	r.pending[text]--
	return true
}

func (r *chatREPL) reportClosed() {
	r.indicator.Stop()
	if err := r.session.Err(); err != nil {
		internal.PrintError(fmt.Sprintf("Stream closed: %v", err))
	} else {
		internal.PrintInfo("Stream ended by server")
	}
	if r.chat != nil {
		internal.PrintInfo("Use /switch " + r.chat.ID + " to reconnect")
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
