package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	eventStatus  = "status"
	eventMessage = "message"

	flagFlowStarted  = "flow_started"
	flagFlowFinished = "flow_finished"

	defaultReadBufferSize = 4096
	defaultRefreshGrace   = 2 * time.Second
)

// StreamOpener opens the server-push connection of a conversation
type StreamOpener interface {
	OpenStream(ctx context.Context, chatID string) (io.ReadCloser, error)
}

// SessionState is the lifecycle state of a stream session
type SessionState int32

const (
	StateIdle SessionState = iota
	StateConnecting
	StateStreaming
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Listener observes a session. Callbacks run on the session's read goroutine.
type Listener interface {
	OnMessage(msg Message)
	OnWorking(working bool)
	OnState(state SessionState)
}

// ListenerFuncs adapts optional functions to a Listener
type ListenerFuncs struct {
	Message func(Message)
	Working func(bool)
	State   func(SessionState)
}

func (l ListenerFuncs) OnMessage(msg Message) {
	if l.Message != nil {
		l.Message(msg)
	}
}

func (l ListenerFuncs) OnWorking(working bool) {
	if l.Working != nil {
		l.Working(working)
	}
}

func (l ListenerFuncs) OnState(state SessionState) {
	if l.State != nil {
		l.State(state)
	}
}

// SessionOptions wires a session to its collaborators
type SessionOptions struct {
	Opener   StreamOpener
	Fetcher  FileMapFetcher // optional
	Store    *Store
	Files    *FileMap // optional
	Listener Listener // optional

	ReadBufferSize int
	// RefreshGrace bounds how long a normal stream end waits for in-flight
	// file map refreshes before cancelling them
	RefreshGrace time.Duration
}

// SessionStats counts what happened to received frames
type SessionStats struct {
	Frames     int64
	Accepted   int64
	Duplicates int64
	Rejected   int64
	Malformed  int64
}

// Session is the live stream of one conversation. A Session runs once;
// open a new one to reconnect.
type Session struct {
	chatID     string
	opts       SessionOptions
	parser     *FrameParser
	normalizer *Normalizer

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	state   atomic.Int32
	working atomic.Bool

	frames     atomic.Int64
	accepted   atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
	malformed  atomic.Int64

	refreshes sync.WaitGroup
}

// NewSession creates an idle session for chatID
func NewSession(chatID string, opts SessionOptions) *Session {
	if opts.Listener == nil {
		opts.Listener = ListenerFuncs{}
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = defaultReadBufferSize
	}
	if opts.Store == nil {
		opts.Store = NewStore(chatID)
	}
	if opts.RefreshGrace <= 0 {
		opts.RefreshGrace = defaultRefreshGrace
	}
	return &Session{
		chatID:     chatID,
		opts:       opts,
		parser:     NewFrameParser(),
		normalizer: NewNormalizer(),
		done:       make(chan struct{}),
	}
}

// ChatID returns the conversation id
func (s *Session) ChatID() string { return s.chatID }

// Store returns the message store the session appends to
func (s *Session) Store() *Store { return s.opts.Store }

// State returns the current lifecycle state
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Working reports whether the agent last announced a running flow
func (s *Session) Working() bool { return s.working.Load() }

// Done is closed once the session reaches StateClosed
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session closed; nil for a normal end or cancellation
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns frame counters
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Frames:     s.frames.Load(),
		Accepted:   s.accepted.Load(),
		Duplicates: s.duplicates.Load(),
		Rejected:   s.rejected.Load(),
		Malformed:  s.malformed.Load(),
	}
}

// Start runs the session in a new goroutine
func (s *Session) Start(ctx context.Context) {
	go func() {
		_ = s.Run(ctx)
	}()
}

// Stop cancels the session and waits until it is closed
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.mu.Unlock()
		s.setState(StateClosed)
		close(s.done)
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.done
}

// Run connects and consumes the stream until it ends, fails or ctx is cancelled.
// Unauthorized responses close the session without retrying.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	err := s.run(ctx)

	s.awaitRefreshes(cancel)

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.setState(StateClosed)
	close(s.done)
	return err
}

// awaitRefreshes lets in-flight refreshes land for up to RefreshGrace, then
// cancels them. On cancellation ctx is already done and this returns at once.
func (s *Session) awaitRefreshes(cancel context.CancelFunc) {
	landed := make(chan struct{})
	go func() {
		s.refreshes.Wait()
		close(landed)
	}()

	timer := time.NewTimer(s.opts.RefreshGrace)
	defer timer.Stop()
	select {
	case <-landed:
	case <-timer.C:
		LogDebug("Cancelling pending file map refresh for %s", s.chatID)
	}
	cancel()
	<-landed
}

func (s *Session) run(ctx context.Context) error {
	s.setState(StateConnecting)

	body, err := s.opts.Opener.OpenStream(ctx, s.chatID)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			LogWarn("Stream for %s rejected: %v", s.chatID, err)
		} else {
			LogWarn("Failed to open stream for %s: %v", s.chatID, err)
		}
		return err
	}
	defer body.Close()

	s.setState(StateStreaming)
	LogDebug("Streaming conversation %s", s.chatID)

	return s.readLoop(ctx, body)
}

func (s *Session) readLoop(ctx context.Context, body io.Reader) error {
	buf := make([]byte, s.opts.ReadBufferSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := body.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		if n > 0 {
			for _, frame := range s.parser.Feed(string(buf[:n])) {
				s.handleFrame(ctx, frame)
			}
		}

		if err == io.EOF {
			LogDebug("Stream for %s ended by server", s.chatID)
			return nil
		}
		if err != nil {
			return &TransportError{Op: "read", URL: s.chatID, Err: err}
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, frame Frame) {
	s.frames.Add(1)

	switch frame.Event {
	case eventStatus:
		var status struct {
			Flag string `json:"flag"`
		}
		if err := json.Unmarshal([]byte(frame.Data), &status); err != nil {
			s.malformed.Add(1)
			LogDebugw("dropping malformed status frame", "chat", s.chatID, "error", err)
			return
		}
		switch status.Flag {
		case flagFlowStarted:
			s.setWorking(true)
		case flagFlowFinished:
			s.setWorking(false)
		default:
			LogDebugw("ignoring status flag", "chat", s.chatID, "flag", status.Flag)
		}

	case eventMessage:
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(frame.Data), &raw); err != nil {
			s.malformed.Add(1)
			LogDebugw("dropping malformed message frame", "chat", s.chatID, "error", err)
			return
		}
		msg, ok := s.normalizer.Normalize(raw)
		if !ok {
			s.rejected.Add(1)
			LogDebugw("dropping unrecognized message", "chat", s.chatID, "role", raw["role"])
			return
		}
		if !s.opts.Store.AppendLive(msg) {
			s.duplicates.Add(1)
			return
		}
		s.accepted.Add(1)
		s.opts.Listener.OnMessage(msg)
		s.refreshFiles(ctx)

	default:
		LogDebugw("ignoring event", "chat", s.chatID, "event", frame.Event)
	}
}

func (s *Session) refreshFiles(ctx context.Context) {
	if s.opts.Fetcher == nil || s.opts.Files == nil {
		return
	}
	s.refreshes.Add(1)
	go func() {
		defer s.refreshes.Done()
		if err := s.opts.Files.Refresh(ctx, s.opts.Fetcher, s.chatID); err != nil {
			LogDebug("File map refresh for %s failed: %v", s.chatID, err)
		}
	}()
}

func (s *Session) setWorking(working bool) {
	if s.working.Swap(working) != working {
		s.opts.Listener.OnWorking(working)
	}
}

func (s *Session) setState(state SessionState) {
	if SessionState(s.state.Swap(int32(state))) != state {
		s.opts.Listener.OnState(state)
	}
}

// Manager keeps at most one live session per conversation id
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty Manager
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Open stops any session already running for chatID and starts a new one
func (m *Manager) Open(ctx context.Context, chatID string, opts SessionOptions) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[chatID]; ok {
		prev.Stop()
		delete(m.sessions, chatID)
	}

	s := NewSession(chatID, opts)
	m.sessions[chatID] = s
	s.Start(ctx)

	go func() {
		<-s.Done()
		m.mu.Lock()
		if m.sessions[chatID] == s {
			delete(m.sessions, chatID)
		}
		m.mu.Unlock()
	}()

	return s
}

// Switch closes the session of from before opening one for to
func (m *Manager) Switch(ctx context.Context, from, to string, opts SessionOptions) *Session {
	if from != "" && from != to {
		m.Close(from)
	}
	return m.Open(ctx, to, opts)
}

// Close stops the session for chatID, reporting whether one was running
func (m *Manager) Close(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[chatID]
	if !ok {
		return false
	}
	s.Stop()
	delete(m.sessions, chatID)
	return true
}

// CloseAll stops every session
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		s.Stop()
		delete(m.sessions, id)
	}
}

// Active returns the running session for chatID
func (m *Manager) Active(chatID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	return s, ok
}

// Len returns the number of tracked sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
