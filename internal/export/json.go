package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/cognitus-chat/internal"
)

// JSONExporter writes the conversation as one pretty-printed document,
// messages in their wire shape
type JSONExporter struct{}

func (e *JSONExporter) Export(chat *internal.Chat, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(chat)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}
