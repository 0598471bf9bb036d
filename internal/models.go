package internal

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Role is the author role carried on the wire
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// MessageKind discriminates the normalized message variants
type MessageKind int

const (
	KindUser MessageKind = iota + 1
	KindAssistantText
	KindFunctionCall
	KindFunctionResult
)

func (k MessageKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAssistantText:
		return "assistant-text"
	case KindFunctionCall:
		return "assistant-function-call"
	case KindFunctionResult:
		return "function-result"
	default:
		return "unknown"
	}
}

// Attachment is a file attached to a user message
type Attachment struct {
	Filename  string `json:"filename,omitempty" yaml:"filename,omitempty"`
	MediaType string `json:"mediaType,omitempty" yaml:"media_type,omitempty"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
}

// FunctionCall is a tool invocation issued by the assistant
type FunctionCall struct {
	Name        string `json:"name" yaml:"name"`
	Content     string `json:"content" yaml:"content"`
	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Language guesses the source language of the call body from the tool name
func (f *FunctionCall) Language() string {
	name := strings.ToLower(f.Name)
	switch {
	case strings.Contains(name, "sql"):
		return "sql"
	case strings.Contains(name, "code"), strings.Contains(name, "python"):
		return "python"
	case strings.Contains(name, "command"), strings.Contains(name, "shell"):
		return "sh"
	default:
		return ""
	}
}

// Message is one entry of a conversation. Which fields are meaningful
// depends on Kind; construct values through the Normalizer or the Store.
type Message struct {
	ID           string        `yaml:"id"`
	Role         Role          `yaml:"role"`
	Kind         MessageKind   `yaml:"-"`
	Content      string        `yaml:"content,omitempty"`
	Attachments  []Attachment  `yaml:"attachments,omitempty"`
	FunctionCall *FunctionCall `yaml:"function_call,omitempty"`
	BelongsTo    string        `yaml:"belongs_to,omitempty"`
	Name         string        `yaml:"name,omitempty"`
	Output       string        `yaml:"output,omitempty"`
}

// IsLocal reports whether the message was appended optimistically by this client
func (m Message) IsLocal() bool {
	return len(m.ID) > len(localIDPrefix) && m.ID[:len(localIDPrefix)] == localIDPrefix
}

// MarshalJSON encodes the message in the wire shape of its variant
func (m Message) MarshalJSON() ([]byte, error) {
	obj := map[string]interface{}{
		"id":   m.ID,
		"role": string(m.Role),
	}

	switch m.Kind {
	case KindUser:
		obj["content"] = m.Content
		if len(m.Attachments) > 0 {
			obj["attachments"] = m.Attachments
		}
	case KindAssistantText:
		obj["content"] = m.Content
	case KindFunctionCall:
		obj["function_call"] = m.FunctionCall
	case KindFunctionResult:
		obj["belongsTo"] = m.BelongsTo
		obj["output"] = m.Output
		if m.Name != "" {
			obj["name"] = m.Name
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes any wire shape through the Normalizer
func (m *Message) UnmarshalJSON(data []byte) error {
	msg, ok := NewNormalizer().NormalizeJSON(data)
	if !ok {
		return &ParseError{Source: "message", Key: "payload", Err: errUnrecognizedMessage}
	}
	*m = msg
	return nil
}

// ArtifactType identifies how an execution artifact is rendered
type ArtifactType string

const (
	ArtifactText  ArtifactType = "text"
	ArtifactTable ArtifactType = "table"
	ArtifactImage ArtifactType = "image"
	ArtifactChart ArtifactType = "chart"
)

// TableData is a tabular artifact. Rows shorter than Columns are padded at render time.
type TableData struct {
	Columns []string   `json:"columns" yaml:"columns"`
	Data    [][]string `json:"data" yaml:"data"`
}

// UnmarshalJSON accepts non-string cells and stringifies them
func (t *TableData) UnmarshalJSON(data []byte) error {
	var raw struct {
		Columns []interface{}   `json:"columns"`
		Data    [][]interface{} `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.Columns = make([]string, 0, len(raw.Columns))
	for _, c := range raw.Columns {
		t.Columns = append(t.Columns, stringify(c))
	}

	t.Data = make([][]string, 0, len(raw.Data))
	for _, row := range raw.Data {
		cells := make([]string, 0, len(row))
		for _, c := range row {
			cells = append(cells, stringify(c))
		}
		t.Data = append(t.Data, cells)
	}

	return nil
}

// PaddedRows returns the rows with short rows padded to the column count
func (t *TableData) PaddedRows() [][]string {
	rows := make([][]string, 0, len(t.Data))
	for _, row := range t.Data {
		if len(row) >= len(t.Columns) {
			rows = append(rows, row)
			continue
		}
		padded := make([]string, len(t.Columns))
		copy(padded, row)
		rows = append(rows, padded)
	}
	return rows
}

// Artifact is one renderable output of a code or query execution.
// Content holds text or a resolved URL; Table is set for table artifacts.
type Artifact struct {
	Type    ArtifactType `json:"type" yaml:"type"`
	Key     string       `json:"key,omitempty" yaml:"key,omitempty"`
	Content string       `json:"content,omitempty" yaml:"content,omitempty"`
	Table   *TableData   `json:"table,omitempty" yaml:"table,omitempty"`
}

// Chat is a conversation as held by the server
type Chat struct {
	ID        string            `json:"id" yaml:"id"`
	Title     string            `json:"title" yaml:"title"`
	History   []Message         `json:"history" yaml:"history"`
	CreatedAt string            `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt string            `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	FileMap   map[string]string `json:"file_map,omitempty" yaml:"file_map,omitempty"`
}

// UnmarshalJSON drops history entries the Normalizer rejects instead of failing the chat
func (c *Chat) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        interface{}              `json:"id"`
		Title     string                   `json:"title"`
		History   []map[string]interface{} `json:"history"`
		CreatedAt string                   `json:"created_at"`
		UpdatedAt string                   `json:"updated_at"`
		FileMap   map[string]string        `json:"file_map"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, _ := coerceID(raw.ID)
	*c = Chat{
		ID:        id,
		Title:     raw.Title,
		History:   NewNormalizer().NormalizeHistory(raw.History),
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
		FileMap:   raw.FileMap,
	}
	return nil
}

// ChatCreate is the payload for creating a conversation
type ChatCreate struct {
	Title           string `json:"title"`
	UserInstruction string `json:"user_instruction,omitempty"`
}

// ChatUpdate is the payload for renaming a conversation
type ChatUpdate struct {
	Title string `json:"title"`
}
