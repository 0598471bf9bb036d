package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDisplayChats(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	long := strings.Repeat("x", 60)

	tests := []struct {
		name    string
		rows    []chatRow
		want    []string
		notWant []string
	}{
		{
			name:    "empty",
			want:    []string{"No conversations found"},
			notWant: []string{"Tip"},
		},
		{
			name: "rows",
			rows: []chatRow{
				{ID: "c1", Title: "Revenue", Messages: 4, Updated: "2024-05-10T09:30:00Z"},
				{ID: "c2", Title: "", Messages: 0},
				{ID: "c3", Title: long, Messages: 1, Updated: "2022-01-15T09:30:00Z"},
			},
			want: []string{
				"Found 3 conversation(s)",
				"Revenue", "Today 09:30",
				"Untitled", "—",
				strings.Repeat("x", 47) + "...", "2022-01-15",
				"cognitus watch c1",
			},
			notWant: []string{long},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			displayChats(&buf, tt.rows, now)
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output should not contain %q", w)
				}
			}
		})
	}
}

func TestChatsListCommand_Flags(t *testing.T) {
	if chatsListCmd.Flags().Lookup("cached") == nil {
		t.Error("chats list should have a --cached flag")
	}
}

func TestFormatWhen(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ts   string
		want string
	}{
		{name: "empty", ts: "", want: "—"},
		{name: "today", ts: "2024-05-10T09:30:00Z", want: "Today 09:30"},
		{name: "this week", ts: "2024-05-07T09:30:00Z", want: "Tue 09:30"},
		{name: "this year", ts: "2024-01-15T09:30:00Z", want: "Jan 15 09:30"},
		{name: "old", ts: "2022-01-15T09:30:00Z", want: "2022-01-15"},
		{name: "no zone", ts: "2024-05-10T08:00:00.123456", want: "Today 08:00"},
		{name: "unparseable", ts: "yesterday", want: "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatWhen(tt.ts, now); got != tt.want {
				t.Errorf("formatWhen(%q) = %q, want %q", tt.ts, got, tt.want)
			}
		})
	}
}
