package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

var spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ShowProgress runs fn while a spinner with message is drawn on stderr.
// Without a terminal the message is logged and fn simply runs.
func ShowProgress(ctx context.Context, message string, fn func() error) error {
	if !isTerminal(os.Stderr) {
		LogInfo(message)
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case err := <-done:
			if err != nil {
				fmt.Fprintf(os.Stderr, "\r%s %s\n", errorStyle.Render("✗"), message)
				return err
			}
			fmt.Fprintf(os.Stderr, "\r%s %s\n", successStyle.Render("✓"), message)
			return nil
		case <-ctx.Done():
			fmt.Fprint(os.Stderr, "\r")
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\r%s %s", progressStyle.Render(spinnerChars[i%len(spinnerChars)]), message)
		}
	}
}

// WorkingIndicator shows that the agent is running a flow. It is driven by
// the stream session's working flag.
type WorkingIndicator struct {
	w       io.Writer
	message string
	animate bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewWorkingIndicator creates an indicator writing to w. The spinner is only
// animated when w is a terminal; otherwise one line is printed per transition.
func NewWorkingIndicator(w io.Writer, message string) *WorkingIndicator {
	return &WorkingIndicator{w: w, message: message, animate: isTerminal(w)}
}

// Set shows or hides the indicator
func (wi *WorkingIndicator) Set(working bool) {
	if working {
		wi.start()
	} else {
		wi.Stop()
	}
}

// Active reports whether the indicator is showing
func (wi *WorkingIndicator) Active() bool {
	wi.mu.Lock()
	defer wi.mu.Unlock()
	return wi.stop != nil
}

func (wi *WorkingIndicator) start() {
	wi.mu.Lock()
	defer wi.mu.Unlock()
	if wi.stop != nil {
		return
	}

	wi.stop = make(chan struct{})
	wi.done = make(chan struct{})

	if !wi.animate {
		fmt.Fprintf(wi.w, "… %s\n", wi.message)
		close(wi.done)
		return
	}

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				fmt.Fprint(wi.w, "\r\033[K")
				return
			case <-ticker.C:
				fmt.Fprintf(wi.w, "\r%s %s", progressStyle.Render(spinnerChars[i%len(spinnerChars)]), wi.message)
			}
		}
	}(wi.stop, wi.done)
}

// Stop hides the indicator and waits for the spinner to clear its line
func (wi *WorkingIndicator) Stop() {
	wi.mu.Lock()
	stop, done := wi.stop, wi.done
	wi.stop, wi.done = nil, nil
	wi.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	return isTerminal(w)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	if isTerminal(os.Stdout) {
		fmt.Printf("%s %s\n", successStyle.Render("✓"), message)
	} else {
		fmt.Println(message)
	}
}

// PrintError prints an error message
func PrintError(message string) {
	if isTerminal(os.Stderr) {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("✗"), message)
	} else {
		fmt.Fprintf(os.Stderr, "%s\n", message)
	}
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	if isTerminal(os.Stdout) {
		fmt.Printf("%s %s\n", progressStyle.Render("ℹ"), message)
	} else {
		fmt.Println(message)
	}
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	if isTerminal(os.Stderr) {
		fmt.Fprintf(os.Stderr, "%s %s\n", warningStyle.Render("⚠"), message)
	} else {
		fmt.Fprintf(os.Stderr, "WARNING: %s\n", message)
	}
}
