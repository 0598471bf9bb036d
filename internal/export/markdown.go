package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/cognitus-chat/internal"
)

// MarkdownExporter renders a conversation as a readable document. Function
// calls become fenced code followed by the classified outputs of their result.
type MarkdownExporter struct{}

// Export exports a conversation to Markdown format
func (e *MarkdownExporter) Export(chat *internal.Chat, w io.Writer) error {
	files := internal.MapResolver(chat.FileMap)
	classifier := internal.NewClassifier(files)

	title := chat.Title
	if title == "" {
		title = "Chat " + chat.ID
	}
	_, _ = fmt.Fprintf(w, "# %s\n\n", title)
	_, _ = fmt.Fprintf(w, "**Chat:** %s  \n", chat.ID)
	if chat.CreatedAt != "" {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", chat.CreatedAt)
	}
	if chat.UpdatedAt != "" {
		_, _ = fmt.Fprintf(w, "**Updated:** %s  \n", chat.UpdatedAt)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(chat.History))
	_, _ = fmt.Fprintf(w, "---\n\n")

	calls := make(map[string]bool)
	for _, msg := range chat.History {
		if msg.Kind == internal.KindFunctionCall {
			calls[msg.ID] = true
		}
	}

	first := true
	for _, msg := range chat.History {
		// results are written with their call
		if msg.Kind == internal.KindFunctionResult && calls[msg.BelongsTo] {
			continue
		}
		if !first {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
		first = false

		switch msg.Kind {
		case internal.KindUser:
			_, _ = fmt.Fprintf(w, "**user:**\n\n%s\n\n", escapeMarkdown(msg.Content))
			for _, a := range msg.Attachments {
				_, _ = fmt.Fprintf(w, "- 📎 [%s](%s)\n", a.Filename, a.URL)
			}
			if len(msg.Attachments) > 0 {
				_, _ = fmt.Fprintln(w)
			}

		case internal.KindAssistantText:
			_, _ = fmt.Fprintf(w, "**assistant:**\n\n%s\n\n", inlineImages(msg.Content, files))

		case internal.KindFunctionCall:
			fc := msg.FunctionCall
			_, _ = fmt.Fprintf(w, "**assistant → %s:**\n\n", fc.Name)
			if fc.Explanation != "" {
				_, _ = fmt.Fprintf(w, "_%s_\n\n", fc.Explanation)
			}
			_, _ = fmt.Fprintf(w, "```%s\n%s\n```\n\n", fc.Language(), strings.TrimRight(fc.Content, "\n"))
			if result, ok := internal.FunctionResultFor(chat.History, msg.ID); ok {
				writeArtifacts(w, classifier.Classify(result.Output))
			}

		case internal.KindFunctionResult:
			_, _ = fmt.Fprintf(w, "**function %s:**\n\n", msg.Name)
			writeArtifacts(w, classifier.Classify(msg.Output))
		}
	}

	return nil
}

func writeArtifacts(w io.Writer, artifacts []internal.Artifact) {
	for _, a := range artifacts {
		switch a.Type {
		case internal.ArtifactText:
			_, _ = fmt.Fprintf(w, "```text\n%s\n```\n\n", strings.TrimRight(a.Content, "\n"))
		case internal.ArtifactImage, internal.ArtifactChart:
			_, _ = fmt.Fprintf(w, "![%s](%s)\n\n", altText(a), a.Content)
		case internal.ArtifactTable:
			writeTable(w, a.Table)
		}
	}
}

func writeTable(w io.Writer, t *internal.TableData) {
	if t == nil || len(t.Columns) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(escapeCells(t.Columns), " | "))
	_, _ = fmt.Fprintf(w, "|%s\n", strings.Repeat(" --- |", len(t.Columns)))
	for _, row := range t.PaddedRows() {
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(escapeCells(row), " | "))
	}
	_, _ = fmt.Fprintln(w)
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "|", "\\|")
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}

func altText(a internal.Artifact) string {
	if a.Key != "" {
		return a.Key
	}
	return string(a.Type)
}

// inlineImages replaces image tags with Markdown images resolved through files
func inlineImages(text string, files internal.Resolver) string {
	if !internal.HasImageTags(text) {
		return escapeMarkdown(text)
	}

	var b strings.Builder
	for _, seg := range internal.Tokenize(text) {
		if seg.Kind == internal.SegmentImage {
			fmt.Fprintf(&b, "![%s](%s)", seg.Key, internal.ResolveOr(files, seg.Key))
			continue
		}
		b.WriteString(escapeMarkdown(seg.Text))
	}
	return b.String()
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
