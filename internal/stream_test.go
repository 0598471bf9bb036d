package internal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iksnae/cognitus-chat/testutil"
)

const waitTimeout = 2 * time.Second

// pipeOpener hands out an in-memory stream the test writes frames into
type pipeOpener struct {
	mu     sync.Mutex
	w      *io.PipeWriter
	err    error
	opens  atomic.Int32
	opened chan struct{}
}

func newPipeOpener() *pipeOpener {
	return &pipeOpener{opened: make(chan struct{}, 8)}
}

func (p *pipeOpener) OpenStream(ctx context.Context, chatID string) (io.ReadCloser, error) {
	p.opens.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	r, w := io.Pipe()
	go func() {
		<-ctx.Done()
		_ = r.CloseWithError(ctx.Err())
	}()
	p.mu.Lock()
	p.w = w
	p.mu.Unlock()
	p.opened <- struct{}{}
	return r, nil
}

func (p *pipeOpener) send(t *testing.T, frames ...string) {
	t.Helper()
	p.mu.Lock()
	w := p.w
	p.mu.Unlock()
	for _, f := range frames {
		if _, err := io.WriteString(w, f); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
}

func (p *pipeOpener) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.w.Close()
}

type recorder struct {
	messages chan Message
	working  chan bool
	states   chan SessionState
}

func newRecorder() *recorder {
	return &recorder{
		messages: make(chan Message, 64),
		working:  make(chan bool, 64),
		states:   make(chan SessionState, 64),
	}
}

func (r *recorder) OnMessage(m Message) { r.messages <- m }
func (r *recorder) OnWorking(w bool) { r.working <- w }
func (r *recorder) OnState(state SessionState) { r.states <- state }

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("session %s did not close", s.ChatID())
	}
}

func startSession(t *testing.T, opts SessionOptions) (*Session, *pipeOpener, *recorder) {
	t.Helper()
	opener := newPipeOpener()
	rec := newRecorder()
	opts.Opener = opener
	opts.Listener = rec
	s := NewSession("c1", opts)
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	receive(t, opener.opened, "stream open")
	return s, opener, rec
}

func TestSession_DuplicateFrameAppendsOnce(t *testing.T) {
	s, opener, rec := startSession(t, SessionOptions{})

	frame := testutil.MessageFrame(testutil.AssistantPayload("7", "hello"))
	opener.send(t, frame, frame)
	opener.end()
	waitDone(t, s)

	if s.Store().Len() != 1 {
		t.Errorf("Store().Len() = %d, want 1", s.Store().Len())
	}
	if got := receive(t, rec.messages, "message"); got.ID != "7" {
		t.Errorf("OnMessage id = %s, want 7", got.ID)
	}
	if len(rec.messages) != 0 {
		t.Error("listener notified for duplicate")
	}
	stats := s.Stats()
	if stats.Frames != 2 || stats.Accepted != 1 || stats.Duplicates != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil on server close", s.Err())
	}
}

func TestSession_StatusTogglesWorking(t *testing.T) {
	s, opener, rec := startSession(t, SessionOptions{})

	opener.send(t, testutil.StatusFrame("flow_started"))
	if !receive(t, rec.working, "working=true") {
		t.Fatal("OnWorking(false) after flow_started")
	}
	if !s.Working() {
		t.Error("Working() = false after flow_started")
	}

	opener.send(t, testutil.StatusFrame("flow_started"), testutil.StatusFrame("flow_finished"))
	if receive(t, rec.working, "working=false") {
		t.Fatal("OnWorking(true) repeated for an unchanged flag")
	}
	if s.Working() {
		t.Error("Working() = true after flow_finished")
	}

	opener.send(t, testutil.StatusFrame("something_else"))
	opener.end()
	waitDone(t, s)
	if s.Working() {
		t.Error("unknown flag changed Working()")
	}
}

func TestSession_MalformedAndRejectedFrames(t *testing.T) {
	s, opener, _ := startSession(t, SessionOptions{})

	opener.send(t,
		testutil.SSEFrame("message", "{not json"),
		testutil.SSEFrame("status", "nope"),
		testutil.MessageFrame(map[string]interface{}{"id": "x", "role": "system", "content": "?"}),
		testutil.SSEFrame("unknown", `{"a":1}`),
		testutil.MessageFrame(testutil.UserPayload("1", "still works")),
	)
	opener.end()
	waitDone(t, s)

	stats := s.Stats()
	if stats.Malformed != 2 || stats.Rejected != 1 || stats.Accepted != 1 || stats.Frames != 5 {
		t.Errorf("Stats() = %+v", stats)
	}
	if s.Err() != nil {
		t.Errorf("malformed frames closed the session: %v", s.Err())
	}
}

func TestSession_Unauthorized(t *testing.T) {
	opener := newPipeOpener()
	opener.err = &TransportError{Op: "connect", Status: http.StatusUnauthorized, Err: ErrUnauthorized}
	rec := newRecorder()

	s := NewSession("c1", SessionOptions{Opener: opener, Listener: rec})
	err := s.Run(context.Background())

	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Run() error = %v, want ErrUnauthorized", err)
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if opener.opens.Load() != 1 {
		t.Errorf("opened %d times, want exactly 1 (no retry)", opener.opens.Load())
	}
	if got := receive(t, rec.states, "connecting"); got != StateConnecting {
		t.Errorf("first state = %v, want connecting", got)
	}
	if got := receive(t, rec.states, "closed"); got != StateClosed {
		t.Errorf("second state = %v, want closed", got)
	}
}

func TestSession_CancellationClosesPromptly(t *testing.T) {
	opener := newPipeOpener()
	rec := newRecorder()
	s := NewSession("c1", SessionOptions{Opener: opener, Listener: rec})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	receive(t, opener.opened, "stream open")

	for _, want := range []SessionState{StateConnecting, StateStreaming} {
		if got := receive(t, rec.states, want.String()); got != want {
			t.Errorf("state = %v, want %v", got, want)
		}
	}

	cancel()
	waitDone(t, s)

	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil after cancellation", s.Err())
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
}

func TestSession_RunTwice(t *testing.T) {
	opener := newPipeOpener()
	opener.err = errors.New("offline")
	s := NewSession("c1", SessionOptions{Opener: opener})
	_ = s.Run(context.Background())

	if err := s.Run(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second Run() error = %v, want ErrSessionClosed", err)
	}
}

func TestSession_StopBeforeStart(t *testing.T) {
	s := NewSession("c1", SessionOptions{Opener: newPipeOpener()})
	s.Stop()
	waitDone(t, s)
	if err := s.Run(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Run() after Stop() error = %v, want ErrSessionClosed", err)
	}
}

func TestSession_RefreshesFileMapOnAcceptedMessage(t *testing.T) {
	var fetches atomic.Int32
	fetcher := fetchFunc(func(ctx context.Context, chatID string) (map[string]string, error) {
		fetches.Add(1)
		return map[string]string{"img": "https://cdn/img.png"}, nil
	})
	files := NewFileMap("")

	s, opener, _ := startSession(t, SessionOptions{Fetcher: fetcher, Files: files})

	frame := testutil.MessageFrame(testutil.AssistantPayload("1", "<image-tag>img</image-tag>"))
	opener.send(t, frame, frame, testutil.StatusFrame("flow_finished"))
	opener.end()
	waitDone(t, s)

	if got := fetches.Load(); got != 1 {
		t.Errorf("file map fetched %d times, want 1", got)
	}
	if got := ResolveOr(files, "img"); got != "https://cdn/img.png" {
		t.Errorf("ResolveOr(img) = %q after refresh", got)
	}
}

func TestSession_NormalEndDoesNotWaitOnSlowRefresh(t *testing.T) {
	cancelled := make(chan error, 1)
	fetcher := fetchFunc(func(ctx context.Context, chatID string) (map[string]string, error) {
		<-ctx.Done()
		cancelled <- ctx.Err()
		return nil, ctx.Err()
	})

	s, opener, _ := startSession(t, SessionOptions{
		Fetcher:      fetcher,
		Files:        NewFileMap(""),
		RefreshGrace: 50 * time.Millisecond,
	})

	opener.send(t, testutil.MessageFrame(testutil.AssistantPayload("1", "a")))
	start := time.Now()
	opener.end()
	waitDone(t, s)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("session closed %v after the stream ended, want within the refresh grace", elapsed)
	}
	if err := receive(t, cancelled, "refresh cancelled"); !errors.Is(err, context.Canceled) {
		t.Errorf("refresh context error = %v, want context.Canceled", err)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v, want nil on a normal end", err)
	}
}

func TestSession_EndToEndWithClient(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	srv.RequireToken("secret")
	srv.SetFiles("c1", map[string]string{"chart": "/files/chart.png"})

	client := NewClient(srv.URL, NewStaticToken("secret"))
	files := NewFileMap(srv.URL)
	rec := newRecorder()
	s := NewSession("c1", SessionOptions{Opener: client, Fetcher: client, Files: files, Listener: rec})
	s.Start(context.Background())
	defer s.Stop()

	srv.Push("c1", testutil.StatusFrame("flow_started"))
	srv.Push("c1", testutil.MessageFrame(testutil.FunctionCallPayload("f1", "execute_code", "plot()", "draw")))
	srv.Push("c1", testutil.MessageFrame(testutil.FunctionResultPayload("r1", "f1", map[string]interface{}{"image": []string{"chart"}})))
	srv.Push("c1", testutil.StatusFrame("flow_finished"))
	srv.EndStream("c1")

	waitDone(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	msgs := s.Store().Messages()
	if len(msgs) != 2 || msgs[0].Kind != KindFunctionCall || msgs[1].Kind != KindFunctionResult {
		t.Fatalf("Messages() = %#v", msgs)
	}
	if msgs[0].FunctionCall.Explanation != "draw" {
		t.Errorf("explanation = %q, want draw", msgs[0].FunctionCall.Explanation)
	}

	artifacts := NewClassifier(files).Classify(msgs[1].Output)
	if len(artifacts) != 1 || artifacts[0].Content != srv.URL+"/files/chart.png" {
		t.Errorf("artifacts = %#v", artifacts)
	}
}

func TestSession_ClientUnauthorizedStream(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	srv.RequireToken("secret")

	client := NewClient(srv.URL, NewStaticToken("wrong"))
	s := NewSession("c1", SessionOptions{Opener: client})
	err := s.Run(context.Background())

	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Run() error = %v, want ErrUnauthorized", err)
	}
	if n := srv.Requests("GET /chats/c1/stream"); n != 1 {
		t.Errorf("stream requested %d times, want 1", n)
	}
	if n := srv.Requests("POST /auth/refresh"); n != 0 {
		t.Errorf("stream attempted a token refresh")
	}
}

func TestManager_OneSessionPerChat(t *testing.T) {
	m := NewManager()
	defer m.CloseAll()

	opener := newPipeOpener()
	first := m.Open(context.Background(), "c1", SessionOptions{Opener: opener})
	receive(t, opener.opened, "first open")

	second := m.Open(context.Background(), "c1", SessionOptions{Opener: opener})
	receive(t, opener.opened, "second open")

	select {
	case <-first.Done():
	default:
		t.Error("Open() did not close the previous session for the same chat")
	}
	if active, ok := m.Active("c1"); !ok || active != second {
		t.Error("Active(c1) is not the newest session")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestManager_SwitchAndClose(t *testing.T) {
	m := NewManager()

	a := newPipeOpener()
	s1 := m.Open(context.Background(), "c1", SessionOptions{Opener: a})
	receive(t, a.opened, "c1 open")

	b := newPipeOpener()
	s2 := m.Switch(context.Background(), "c1", "c2", SessionOptions{Opener: b})
	receive(t, b.opened, "c2 open")

	waitDone(t, s1)
	if _, ok := m.Active("c1"); ok {
		t.Error("c1 still active after Switch")
	}
	if active, ok := m.Active("c2"); !ok || active != s2 {
		t.Error("c2 not active after Switch")
	}

	if !m.Close("c2") {
		t.Error("Close(c2) = false")
	}
	waitDone(t, s2)
	if m.Close("c2") {
		t.Error("Close(c2) twice = true")
	}

	c := newPipeOpener()
	s3 := m.Open(context.Background(), "c3", SessionOptions{Opener: c})
	receive(t, c.opened, "c3 open")
	m.CloseAll()
	waitDone(t, s3)
	if m.Len() != 0 {
		t.Errorf("Len() after CloseAll = %d", m.Len())
	}
}

func TestManager_ForgetsEndedSessions(t *testing.T) {
	m := NewManager()
	opener := newPipeOpener()
	s := m.Open(context.Background(), "c1", SessionOptions{Opener: opener})
	receive(t, opener.opened, "open")

	opener.end()
	waitDone(t, s)

	deadline := time.Now().Add(waitTimeout)
	for m.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("ended session still tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
