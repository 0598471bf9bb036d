package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// legacy key prefixes, e.g. "[table]-2d0c2b2b"
var legacyPrefixes = []struct {
	prefix string
	typ    ArtifactType
}{
	{"[table]", ArtifactTable},
	{"[text]", ArtifactText},
	{"[image]", ArtifactImage},
	{"[chart]", ArtifactChart},
}

// Classifier turns function-result output into renderable artifacts
type Classifier struct {
	files Resolver
}

// NewClassifier creates a Classifier resolving image keys through files.
// files may be nil, in which case keys are used verbatim.
func NewClassifier(files Resolver) *Classifier {
	return &Classifier{files: files}
}

// Classify decodes output, detecting the encoding from the payload shape.
// Unparseable output yields no artifacts.
func (c *Classifier) Classify(output string) []Artifact {
	if strings.TrimSpace(output) == "" {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(output), &fields); err != nil {
		LogWarn("Failed to parse function output: %v", err)
		return nil
	}

	if isArrayEncoded(fields) {
		return c.classifyArrays(fields)
	}

	artifacts, err := c.classifyLegacy([]byte(output))
	if err != nil {
		LogWarn("Failed to scan legacy function output: %v", err)
		return nil
	}
	return artifacts
}

// isArrayEncoded reports whether any of text/image/table is present as an array
func isArrayEncoded(fields map[string]json.RawMessage) bool {
	for _, key := range []string{"text", "image", "table"} {
		if raw, ok := fields[key]; ok && isJSONArray(raw) {
			return true
		}
	}
	return false
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func (c *Classifier) classifyArrays(fields map[string]json.RawMessage) []Artifact {
	var artifacts []Artifact

	for _, v := range decodeArray(fields["text"]) {
		artifacts = append(artifacts, Artifact{Type: ArtifactText, Content: textValue(v)})
	}

	for _, v := range decodeArray(fields["image"]) {
		key := textValue(v)
		artifacts = append(artifacts, Artifact{Type: ArtifactImage, Key: key, Content: ResolveOr(c.files, key)})
	}

	for _, v := range decodeArray(fields["table"]) {
		var table TableData
		if err := json.Unmarshal(v, &table); err != nil {
			LogDebug("Skipping malformed table artifact: %v", err)
			continue
		}
		artifacts = append(artifacts, Artifact{Type: ArtifactTable, Table: &table})
	}

	return artifacts
}

// classifyLegacy walks the top-level object in document order
func (c *Classifier) classifyLegacy(data []byte) ([]Artifact, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var artifacts []Artifact
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}

		if artifact, ok := c.legacyArtifact(key, value); ok {
			artifacts = append(artifacts, artifact)
		}
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return artifacts, nil
}

func (c *Classifier) legacyArtifact(key string, value json.RawMessage) (Artifact, bool) {
	for _, p := range legacyPrefixes {
		if !strings.HasPrefix(key, p.prefix) {
			continue
		}

		switch p.typ {
		case ArtifactTable:
			var table TableData
			if err := json.Unmarshal(value, &table); err != nil {
				LogDebug("Skipping malformed table %q: %v", key, err)
				return Artifact{}, false
			}
			return Artifact{Type: ArtifactTable, Key: key, Table: &table}, true
		case ArtifactText:
			return Artifact{Type: ArtifactText, Key: key, Content: textValue(value)}, true
		default:
			ref := textValue(value)
			return Artifact{Type: p.typ, Key: key, Content: ResolveOr(c.files, ref)}, true
		}
	}
	return Artifact{}, false
}

func decodeArray(raw json.RawMessage) []json.RawMessage {
	if raw == nil || !isJSONArray(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

// textValue returns a JSON string's value, or the compact JSON text of anything else
func textValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return stringify(v)
}
