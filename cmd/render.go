package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/iksnae/cognitus-chat/internal"
)

var (
	chatHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1).
			MarginBottom(1)

	chatMetaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			MarginBottom(1)

	userLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true).
			Padding(0, 1)

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	functionLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214")).
				Bold(true).
				Padding(0, 1)

	contentStyle = lipgloss.NewStyle().
			Padding(0, 2)

	codeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("62")).
			PaddingLeft(1).
			MarginLeft(2)

	explanationStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true).
				PaddingLeft(2)

	imageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			PaddingLeft(2)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62")).
				Padding(0, 1)

	tableCellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)
)

// Renderer writes conversation messages to a terminal. Image keys are
// resolved through files at render time, so a refreshed file map is picked
// up by later messages.
type Renderer struct {
	w          io.Writer
	files      internal.Resolver
	classifier *internal.Classifier
}

// NewRenderer creates a Renderer. files may be nil.
func NewRenderer(w io.Writer, files internal.Resolver) *Renderer {
	return &Renderer{
		w:          w,
		files:      files,
		classifier: internal.NewClassifier(files),
	}
}

// Header prints the conversation title line
func (r *Renderer) Header(chat *internal.Chat) {
	if chat == nil {
		return
	}
	title := chat.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintln(r.w, chatHeaderStyle.Render(fmt.Sprintf("💬 %s", title)))

	meta := []string{fmt.Sprintf("ID: %s", chat.ID)}
	if chat.CreatedAt != "" {
		meta = append(meta, fmt.Sprintf("Created: %s", chat.CreatedAt))
	}
	meta = append(meta, fmt.Sprintf("Messages: %d", len(chat.History)))
	fmt.Fprintln(r.w, chatMetaStyle.Render(strings.Join(meta, " • ")))
}

// History renders a full history. A function result is printed under its
// call; results whose call is not in the history are printed on their own.
func (r *Renderer) History(messages []internal.Message) {
	calls := make(map[string]bool)
	for _, msg := range messages {
		if msg.Kind == internal.KindFunctionCall {
			calls[msg.ID] = true
		}
	}

	for _, msg := range messages {
		switch msg.Kind {
		case internal.KindFunctionCall:
			r.functionCall(msg)
			if result, ok := internal.FunctionResultFor(messages, msg.ID); ok {
				r.artifacts(result.Output)
			}
			fmt.Fprintln(r.w)
		case internal.KindFunctionResult:
			if calls[msg.BelongsTo] {
				continue
			}
			r.functionResult(msg)
		default:
			r.Message(msg)
		}
	}
}

// Message renders one message as it arrives. A function result is printed
// when it arrives, below whatever was printed since its call.
func (r *Renderer) Message(msg internal.Message) {
	switch msg.Kind {
	case internal.KindUser:
		fmt.Fprintln(r.w, userLabelStyle.Render("👤 You"))
		if msg.Content != "" {
			fmt.Fprintln(r.w, contentStyle.Render(wrapText(msg.Content, 80)))
		}
		for _, a := range msg.Attachments {
			fmt.Fprintln(r.w, imageStyle.Render(fmt.Sprintf("📎 %s %s", a.Filename, idStyle.Render(a.URL))))
		}
		fmt.Fprintln(r.w)
	case internal.KindAssistantText:
		fmt.Fprintln(r.w, assistantLabelStyle.Render("🤖 Assistant"))
		r.inline(msg.Content)
		fmt.Fprintln(r.w)
	case internal.KindFunctionCall:
		r.functionCall(msg)
		fmt.Fprintln(r.w)
	case internal.KindFunctionResult:
		r.functionResult(msg)
	}
}

func (r *Renderer) functionCall(msg internal.Message) {
	call := msg.FunctionCall
	if call == nil {
		return
	}
	fmt.Fprintln(r.w, functionLabelStyle.Render(fmt.Sprintf("🔧 %s", call.Name)))
	if call.Explanation != "" {
		fmt.Fprintln(r.w, explanationStyle.Render(call.Explanation))
	}
	if strings.TrimSpace(call.Content) != "" {
		fmt.Fprintln(r.w, codeStyle.Render(strings.TrimRight(call.Content, "\n")))
	}
}

func (r *Renderer) functionResult(msg internal.Message) {
	label := "📊 Output"
	if msg.Name != "" {
		label = fmt.Sprintf("📊 %s output", msg.Name)
	}
	fmt.Fprintln(r.w, functionLabelStyle.Render(label))
	r.artifacts(msg.Output)
	fmt.Fprintln(r.w)
}

// inline prints text with image tags replaced by their resolved URL
func (r *Renderer) inline(text string) {
	var b strings.Builder
	for _, seg := range internal.Tokenize(text) {
		switch seg.Kind {
		case internal.SegmentText:
			b.WriteString(seg.Text)
		case internal.SegmentImage:
			if b.Len() > 0 {
				fmt.Fprintln(r.w, contentStyle.Render(wrapText(strings.TrimSpace(b.String()), 80)))
				b.Reset()
			}
			fmt.Fprintln(r.w, imageStyle.Render("🖼  "+internal.ResolveOr(r.files, seg.Key)))
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		fmt.Fprintln(r.w, contentStyle.Render(wrapText(s, 80)))
	}
}

func (r *Renderer) artifacts(output string) {
	for _, a := range r.classifier.Classify(output) {
		switch a.Type {
		case internal.ArtifactText:
			fmt.Fprintln(r.w, contentStyle.Render(wrapText(a.Content, 80)))
		case internal.ArtifactImage, internal.ArtifactChart:
			fmt.Fprintln(r.w, imageStyle.Render("🖼  "+a.Content))
		case internal.ArtifactTable:
			if a.Table != nil {
				fmt.Fprintln(r.w, renderTable(a.Table))
			}
		}
	}
}

func renderTable(t *internal.TableData) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers(t.Columns...).
		Rows(t.PaddedRows()...).
		String()
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		words := strings.Fields(line)
		currentLine := ""
		for _, word := range words {
			if len(currentLine)+len(word)+1 > width {
				if currentLine != "" {
					wrapped = append(wrapped, currentLine)
				}
				currentLine = word
			} else if currentLine == "" {
				currentLine = word
			} else {
				currentLine += " " + word
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}
