package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UserPayload is a user message as the server sends it
func UserPayload(id, content string) map[string]interface{} {
	return map[string]interface{}{"id": id, "role": "user", "content": content}
}

// AssistantPayload is an assistant text message as the server sends it
func AssistantPayload(id, content string) map[string]interface{} {
	return map[string]interface{}{"id": id, "role": "assistant", "content": content}
}

// FunctionCallPayload is an assistant tool call using the legacy
// "explaination" spelling the backend emits
func FunctionCallPayload(id, name, content, explanation string) map[string]interface{} {
	return map[string]interface{}{
		"id":   id,
		"role": "assistant",
		"function_call": map[string]interface{}{
			"name":         name,
			"content":      content,
			"explaination": explanation,
		},
	}
}

// FunctionResultPayload is a tool result; output may be any JSON value
func FunctionResultPayload(id, belongsTo string, output interface{}) map[string]interface{} {
	return map[string]interface{}{
		"id":        id,
		"role":      "function",
		"name":      "execute_code",
		"belongsTo": belongsTo,
		"output":    output,
	}
}

// MessageFrame encodes payload as a complete "message" event
func MessageFrame(payload interface{}) string {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return SSEFrame("message", string(data))
}

// StatusFrame encodes a "status" event with the given flag
func StatusFrame(flag string) string {
	return SSEFrame("status", fmt.Sprintf(`{"flag":%q}`, flag))
}

// SSEFrame formats one event-stream frame; multi-line data becomes several data lines
func SSEFrame(event, data string) string {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return b.String()
}
