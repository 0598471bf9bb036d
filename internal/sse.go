package internal

import (
	"strings"
)

const (
	frameDelimiter   = "\n\n"
	defaultEventType = "message"
)

// Frame is one complete server-sent event
type Frame struct {
	Event string
	Data  string
}

// FrameParser splits an incrementally received event stream into frames.
// It is not safe for concurrent use; each stream session owns one.
type FrameParser struct {
	buf string
}

// NewFrameParser creates a new FrameParser
func NewFrameParser() *FrameParser {
	return &FrameParser{}
}

// Feed appends a chunk and returns every frame completed by it, in arrival order.
// Incomplete trailing data is retained for the next call.
func (p *FrameParser) Feed(chunk string) []Frame {
	if chunk == "" {
		return nil
	}

	p.buf += chunk
	if strings.Contains(p.buf, "\r") {
		p.buf = normalizeNewlines(p.buf)
	}

	parts := strings.Split(p.buf, frameDelimiter)
	p.buf = parts[len(parts)-1]

	var frames []Frame
	for _, raw := range parts[:len(parts)-1] {
		if frame, ok := parseFrame(raw); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Buffered returns the bytes held back waiting for a delimiter
func (p *FrameParser) Buffered() string {
	return p.buf
}

// Reset discards any partial frame
func (p *FrameParser) Reset() {
	p.buf = ""
}

func parseFrame(raw string) (Frame, bool) {
	event := defaultEventType
	var data []string

	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event:"):
			if v := strings.TrimSpace(line[len("event:"):]); v != "" {
				event = v
			}
		case strings.HasPrefix(line, "data:"):
			v := line[len("data:"):]
			v = strings.TrimPrefix(v, " ")
			data = append(data, v)
		}
	}

	joined := strings.Join(data, "\n")
	if strings.TrimSpace(joined) == "" {
		return Frame{}, false
	}
	return Frame{Event: event, Data: joined}, true
}

// normalizeNewlines converts CRLF to LF. A lone trailing CR is kept so a
// CRLF split across two reads still collapses once the LF arrives.
func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
