package internal

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/iksnae/cognitus-chat/testutil"
)

func TestMessage_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "user",
			msg:  CreateTestUserMessage("1", "hi"),
			want: `{"content":"hi","id":"1","role":"user"}`,
		},
		{
			name: "user with attachment",
			msg: Message{ID: "1", Role: RoleUser, Kind: KindUser, Content: "see",
				Attachments: []Attachment{{Filename: "a.csv", URL: "/f/a.csv"}}},
			want: `{"attachments":[{"filename":"a.csv","url":"/f/a.csv"}],"content":"see","id":"1","role":"user"}`,
		},
		{
			name: "assistant text keeps image tags unescaped",
			msg:  CreateTestAssistantText("2", "<image-tag>k</image-tag>"),
			want: `{"content":"<image-tag>k</image-tag>","id":"2","role":"assistant"}`,
		},
		{
			name: "function call",
			msg:  CreateTestFunctionCall("3", "execute_sql", "SELECT 1", ""),
			want: `{"function_call":{"name":"execute_sql","content":"SELECT 1"},"id":"3","role":"assistant"}`,
		},
		{
			name: "function result",
			msg:  CreateTestFunctionResult("4", "3", `{"text":["ok"]}`),
			want: `{"belongsTo":"3","id":"4","output":"{\"text\":[\"ok\"]}","role":"function"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testutil.JSONMarshal(t, tt.msg)
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestMessage_UnmarshalJSON(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"id":7,"role":"function","belongsTo":6,"output":{"text":["x"]}}`), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if m.ID != "7" || m.Kind != KindFunctionResult || m.BelongsTo != "6" || m.Output != `{"text":["x"]}` {
		t.Errorf("Unmarshal() = %#v", m)
	}

	err := json.Unmarshal([]byte(`{"id":"1","role":"system","content":"x"}`), &m)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("Unmarshal() of unknown role error = %v, want *ParseError", err)
	}
}

func TestChat_UnmarshalJSON(t *testing.T) {
	data := `{
		"id": 12,
		"title": "Revenue",
		"created_at": "2024-05-01T10:00:00Z",
		"history": [
			{"id": "1", "role": "user", "content": "hi"},
			{"role": "assistant", "content": "no id"},
			{"id": "2", "role": "assistant", "function_call": {"name": "execute_code", "content": "print(1)", "explaination": "print"}},
			{"id": "3", "role": "tool", "content": "unknown"}
		]
	}`

	var chat Chat
	if err := json.Unmarshal([]byte(data), &chat); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if chat.ID != "12" || chat.Title != "Revenue" {
		t.Errorf("chat = %q/%q", chat.ID, chat.Title)
	}
	if ids(chat.History) != "1,2" {
		t.Errorf("history ids = %s, want 1,2", ids(chat.History))
	}
	if got := chat.History[1].FunctionCall.Explanation; got != "print" {
		t.Errorf("legacy explanation = %q", got)
	}
}

func TestTableData_UnmarshalJSON(t *testing.T) {
	var table TableData
	if err := json.Unmarshal([]byte(`{"columns":["id","ok","note"],"data":[[1,true,null],[2.5,false]]}`), &table); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	want := [][]string{{"1", "true", ""}, {"2.5", "false", ""}}
	if got := table.PaddedRows(); !reflect.DeepEqual(got, want) {
		t.Errorf("PaddedRows() = %#v, want %#v", got, want)
	}
	if len(table.Data[1]) != 2 {
		t.Error("PaddedRows() must not modify the stored rows")
	}
}

func TestMessage_IsLocal(t *testing.T) {
	store := NewStore("c1")
	local := store.AppendLocal("hi", nil)

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "generated local id", id: local.ID, want: true},
		{name: "server id", id: "42", want: false},
		{name: "bare prefix", id: "local-", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Message{ID: tt.id}).IsLocal(); got != tt.want {
				t.Errorf("IsLocal(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestFunctionCall_Language(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "execute_sql", want: "sql"},
		{name: "execute_code", want: "python"},
		{name: "run_python", want: "python"},
		{name: "shell_command", want: "sh"},
		{name: "search", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (&FunctionCall{Name: tt.name}).Language(); got != tt.want {
				t.Errorf("Language() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageKind_String(t *testing.T) {
	if KindFunctionCall.String() != "assistant-function-call" || MessageKind(0).String() != "unknown" {
		t.Error("unexpected MessageKind names")
	}
}
