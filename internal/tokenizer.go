package internal

import (
	"strings"
)

const (
	imageTagOpen  = "<image-tag>"
	imageTagClose = "</image-tag>"
)

// SegmentKind distinguishes literal text from inline image references
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentImage
)

// Segment is one piece of a tokenized message body
type Segment struct {
	Kind SegmentKind
	Text string // literal text for SegmentText
	Key  string // file map key for SegmentImage
	Raw  string // original tag text for SegmentImage
}

// Tokenize splits a message body into text runs and image references.
// Empty text runs are omitted; an unterminated tag or a tag without a key
// is kept as literal text.
func Tokenize(text string) []Segment {
	var segments []Segment
	var literal strings.Builder
	rest := text

	for {
		start := strings.Index(rest, imageTagOpen)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+len(imageTagOpen):], imageTagClose)
		if end < 0 {
			break
		}
		end += start + len(imageTagOpen)

		raw := rest[start : end+len(imageTagClose)]
		key := strings.TrimSpace(rest[start+len(imageTagOpen) : end])
		literal.WriteString(rest[:start])
		rest = rest[end+len(imageTagClose):]

		if key == "" {
			literal.WriteString(raw)
			continue
		}
		if literal.Len() > 0 {
			segments = append(segments, Segment{Kind: SegmentText, Text: literal.String()})
			literal.Reset()
		}
		segments = append(segments, Segment{Kind: SegmentImage, Key: key, Raw: raw})
	}

	literal.WriteString(rest)
	if literal.Len() > 0 {
		segments = append(segments, Segment{Kind: SegmentText, Text: literal.String()})
	}
	return segments
}

// JoinSegments reassembles segments into the original text
func JoinSegments(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if s.Kind == SegmentImage {
			b.WriteString(s.Raw)
		} else {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// HasImageTags reports whether text contains at least one complete image reference
func HasImageTags(text string) bool {
	for _, s := range Tokenize(text) {
		if s.Kind == SegmentImage {
			return true
		}
	}
	return false
}
