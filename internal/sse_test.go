package internal

import (
	"reflect"
	"strings"
	"testing"
)

func TestFrameParser_Feed(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []Frame
		rest   string
	}{
		{
			name:   "single frame",
			chunks: []string{"event: message\ndata: {\"id\":1}\n\n"},
			want:   []Frame{{Event: "message", Data: `{"id":1}`}},
		},
		{
			name:   "default event type",
			chunks: []string{"data: hello\n\n"},
			want:   []Frame{{Event: "message", Data: "hello"}},
		},
		{
			name:   "multi-line data joined",
			chunks: []string{"event: message\ndata: line1\ndata: line2\n\n"},
			want:   []Frame{{Event: "message", Data: "line1\nline2"}},
		},
		{
			name:   "comments and unknown fields ignored",
			chunks: []string{": keepalive\nid: 7\nretry: 1000\nevent: status\ndata: {\"flag\":\"flow_started\"}\n\n"},
			want:   []Frame{{Event: "status", Data: `{"flag":"flow_started"}`}},
		},
		{
			name:   "comment-only frame dropped",
			chunks: []string{": ping\n\n"},
			want:   nil,
		},
		{
			name:   "empty data dropped",
			chunks: []string{"event: message\ndata: \n\n", "event: status\n\n"},
			want:   nil,
		},
		{
			name:   "partial frame retained",
			chunks: []string{"event: message\ndata: {\"id\""},
			want:   nil,
			rest:   "event: message\ndata: {\"id\"",
		},
		{
			name:   "frame completed by later chunk",
			chunks: []string{"event: message\nda", "ta: x\n", "\nevent: st"},
			want:   []Frame{{Event: "message", Data: "x"}},
			rest:   "event: st",
		},
		{
			name:   "two frames in one chunk",
			chunks: []string{"data: a\n\ndata: b\n\n"},
			want:   []Frame{{Event: "message", Data: "a"}, {Event: "message", Data: "b"}},
		},
		{
			name:   "crlf line endings",
			chunks: []string{"event: message\r\ndata: a\r\n\r\n"},
			want:   []Frame{{Event: "message", Data: "a"}},
		},
		{
			name:   "crlf split across reads",
			chunks: []string{"data: a\r\n\r", "\n"},
			want:   []Frame{{Event: "message", Data: "a"}},
		},
		{
			name:   "data without space after colon",
			chunks: []string{"data:tight\n\n"},
			want:   []Frame{{Event: "message", Data: "tight"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewFrameParser()
			var got []Frame
			for _, c := range tt.chunks {
				got = append(got, p.Feed(c)...)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Feed() frames = %#v, want %#v", got, tt.want)
			}
			if p.Buffered() != tt.rest {
				t.Errorf("Buffered() = %q, want %q", p.Buffered(), tt.rest)
			}
		})
	}
}

func TestFrameParser_SplitAtEveryBoundary(t *testing.T) {
	stream := strings.Join([]string{
		": connected\n\n",
		"event: status\ndata: {\"flag\":\"flow_started\"}\n\n",
		"event: message\r\ndata: {\"id\":\"1\",\"role\":\"assistant\",\"content\":\"héllo\"}\r\n\r\n",
		"data: first\ndata: second\n\n",
		"event: status\ndata: {\"flag\":\"flow_finished\"}\n\n",
	}, "")

	whole := NewFrameParser().Feed(stream)
	if len(whole) != 4 {
		t.Fatalf("expected 4 frames from whole stream, got %d", len(whole))
	}

	for i := 0; i <= len(stream); i++ {
		p := NewFrameParser()
		got := append(p.Feed(stream[:i]), p.Feed(stream[i:])...)
		if !reflect.DeepEqual(got, whole) {
			t.Fatalf("split at %d: frames = %#v, want %#v", i, got, whole)
		}
	}

	// byte by byte
	p := NewFrameParser()
	var got []Frame
	for i := 0; i < len(stream); i++ {
		got = append(got, p.Feed(stream[i:i+1])...)
	}
	if !reflect.DeepEqual(got, whole) {
		t.Errorf("byte-wise frames = %#v, want %#v", got, whole)
	}
}

func TestFrameParser_Reset(t *testing.T) {
	p := NewFrameParser()
	p.Feed("data: partial")
	p.Reset()
	if p.Buffered() != "" {
		t.Errorf("Buffered() after Reset = %q", p.Buffered())
	}
	if got := p.Feed("\n\n"); got != nil {
		t.Errorf("Feed() after Reset = %#v, want nil", got)
	}
}
