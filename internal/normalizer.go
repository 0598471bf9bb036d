package internal

import (
	"encoding/json"
	"errors"
	"strconv"
)

var errUnrecognizedMessage = errors.New("unrecognized message shape")

// Normalizer converts loosely typed message payloads into Message variants
type Normalizer struct{}

// NewNormalizer creates a new Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeJSON decodes a JSON object and normalizes it
func (n *Normalizer) NormalizeJSON(data []byte) (Message, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, false
	}
	return n.Normalize(raw)
}

// Normalize classifies a decoded payload. The second result is false when
// the payload matches none of the known variants.
func (n *Normalizer) Normalize(raw map[string]interface{}) (Message, bool) {
	if raw == nil {
		return Message{}, false
	}

	id, ok := coerceID(raw["id"])
	if !ok {
		return Message{}, false
	}

	role, _ := raw["role"].(string)
	content, contentIsString := raw["content"].(string)

	switch Role(role) {
	case RoleUser:
		if !contentIsString {
			return Message{}, false
		}
		return Message{
			ID:          id,
			Role:        RoleUser,
			Kind:        KindUser,
			Content:     content,
			Attachments: n.normalizeAttachments(raw["attachments"]),
		}, true

	case RoleAssistant:
		if call, ok := raw["function_call"].(map[string]interface{}); ok {
			return Message{
				ID:           id,
				Role:         RoleAssistant,
				Kind:         KindFunctionCall,
				FunctionCall: n.normalizeFunctionCall(call),
			}, true
		}
		if !contentIsString {
			return Message{}, false
		}
		return Message{
			ID:      id,
			Role:    RoleAssistant,
			Kind:    KindAssistantText,
			Content: content,
		}, true

	case RoleFunction:
		belongsTo, _ := coerceID(raw["belongsTo"])
		name, _ := raw["name"].(string)
		return Message{
			ID:        id,
			Role:      RoleFunction,
			Kind:      KindFunctionResult,
			BelongsTo: belongsTo,
			Name:      name,
			Output:    coerceOutput(raw["output"]),
		}, true
	}

	return Message{}, false
}

// NormalizeHistory normalizes a fetched history, skipping rejected entries
func (n *Normalizer) NormalizeHistory(history []map[string]interface{}) []Message {
	messages := make([]Message, 0, len(history))
	for _, raw := range history {
		msg, ok := n.Normalize(raw)
		if !ok {
			LogDebug("Skipping unrecognized history entry (role=%v)", raw["role"])
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

func (n *Normalizer) normalizeFunctionCall(call map[string]interface{}) *FunctionCall {
	name, _ := call["name"].(string)
	content, _ := call["content"].(string)

	// "explaination" is an older producer's spelling
	explanation, ok := call["explanation"].(string)
	if !ok {
		explanation, _ = call["explaination"].(string)
	}

	return &FunctionCall{
		Name:        name,
		Content:     content,
		Explanation: explanation,
	}
}

func (n *Normalizer) normalizeAttachments(v interface{}) []Attachment {
	items, ok := v.([]interface{})
	if !ok || len(items) == 0 {
		return nil
	}

	attachments := make([]Attachment, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var a Attachment
		a.Filename, _ = obj["filename"].(string)
		a.MediaType, _ = obj["mediaType"].(string)
		a.URL, _ = obj["url"].(string)
		attachments = append(attachments, a)
	}
	return attachments
}

// coerceID accepts string and integral numeric ids
func coerceID(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		if id != float64(int64(id)) {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	case json.Number:
		return id.String(), true
	default:
		return "", false
	}
}

func coerceOutput(v interface{}) string {
	switch out := v.(type) {
	case nil:
		return ""
	case string:
		return out
	default:
		data, err := json.Marshal(out)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// stringify renders a decoded JSON scalar as display text
func stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
