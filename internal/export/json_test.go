package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iksnae/cognitus-chat/internal"
)

func TestJSONExporter_Export(t *testing.T) {
	tests := []struct {
		name string
		chat *internal.Chat
	}{
		{name: "full chat", chat: internal.CreateTestChat("c1")},
		{name: "empty chat", chat: &internal.Chat{ID: "c2", Title: "Empty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&JSONExporter{}).Export(tt.chat, &buf); err != nil {
				t.Fatalf("JSONExporter.Export() error = %v", err)
			}

			var got internal.Chat
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("Output is not a valid chat: %v\nOutput: %s", err, buf.String())
			}
			if got.ID != tt.chat.ID || got.Title != tt.chat.Title {
				t.Errorf("got chat %q/%q, want %q/%q", got.ID, got.Title, tt.chat.ID, tt.chat.Title)
			}
			if len(got.History) != len(tt.chat.History) {
				t.Fatalf("history length = %d, want %d", len(got.History), len(tt.chat.History))
			}
			for i := range got.History {
				if got.History[i].Kind != tt.chat.History[i].Kind {
					t.Errorf("message %d kind = %v, want %v", i, got.History[i].Kind, tt.chat.History[i].Kind)
				}
			}
		})
	}
}

func TestJSONExporter_WireShape(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(internal.CreateTestChat("c1"), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{`"function_call"`, `"belongsTo": "m2"`, `"explanation": "Counting shipped orders"`, `<image-tag>chart-1</image-tag>`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s\n%s", want, out)
		}
	}
}

func TestJSONExporter_Extension(t *testing.T) {
	if got := (&JSONExporter{}).Extension(); got != "json" {
		t.Errorf("Extension() = %q, want json", got)
	}
}
