package export

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/iksnae/cognitus-chat/internal"
)

func TestJSONLExporter_Export(t *testing.T) {
	chat := internal.CreateTestChat("c1")

	var buf bytes.Buffer
	if err := (&JSONLExporter{}).Export(chat, &buf); err != nil {
		t.Fatalf("JSONLExporter.Export() error = %v", err)
	}

	normalizer := internal.NewNormalizer()
	scanner := bufio.NewScanner(&buf)
	i := 0
	for scanner.Scan() {
		msg, ok := normalizer.NormalizeJSON(scanner.Bytes())
		if !ok {
			t.Fatalf("line %d does not normalize: %s", i+1, scanner.Text())
		}
		if i >= len(chat.History) {
			t.Fatalf("more lines than messages")
		}
		if msg.ID != chat.History[i].ID || msg.Kind != chat.History[i].Kind {
			t.Errorf("line %d = %s/%v, want %s/%v", i+1, msg.ID, msg.Kind, chat.History[i].ID, chat.History[i].Kind)
		}
		i++
	}
	if i != len(chat.History) {
		t.Errorf("got %d lines, want %d", i, len(chat.History))
	}
}

func TestJSONLExporter_EmptyChat(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONLExporter{}).Export(&internal.Chat{ID: "empty"}, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
