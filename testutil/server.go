package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// Instruction is a user instruction received by the fake agent endpoint
type Instruction struct {
	ChatID string
	Text   string
}

// FakeServer is an in-process backend serving the chat REST API and
// per-chat event streams
type FakeServer struct {
	*httptest.Server

	mu           sync.Mutex
	token        string
	refreshToken string
	chats        map[string]map[string]interface{}
	files        map[string]map[string]string
	streams      map[string]chan string
	streamStatus int
	instructions []Instruction
	requests     map[string]int
	nextID       int
}

// NewFakeServer starts a server; it is closed on test cleanup
func NewFakeServer(t *testing.T) *FakeServer {
	t.Helper()
	f := &FakeServer{
		chats:    make(map[string]map[string]interface{}),
		files:    make(map[string]map[string]string),
		streams:  make(map[string]chan string),
		requests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /auth/refresh", f.handleRefresh)
	mux.HandleFunc("GET /chats", f.authed(f.handleList))
	mux.HandleFunc("POST /chats", f.authed(f.handleCreate))
	mux.HandleFunc("GET /chats/{id}", f.authed(f.handleGet))
	mux.HandleFunc("PATCH /chats/{id}", f.authed(f.handleRename))
	mux.HandleFunc("DELETE /chats/{id}", f.authed(f.handleDelete))
	mux.HandleFunc("GET /chats/{id}/files", f.authed(f.handleFiles))
	mux.HandleFunc("POST /chats/{id}/agent", f.authed(f.handleAgent))
	mux.HandleFunc("GET /chats/{id}/stream", f.authed(f.handleStream))

	f.Server = httptest.NewServer(f.count(mux))
	t.Cleanup(f.Close)
	return f
}

// RequireToken makes every chat endpoint demand "Bearer token"
func (f *FakeServer) RequireToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

// IssueOnRefresh sets the token /auth/refresh hands out; empty disables refresh
func (f *FakeServer) IssueOnRefresh(token string) {
	f.mu.Lock()
	f.refreshToken = token
	f.mu.Unlock()
}

// FailStreams makes stream requests answer with status
func (f *FakeServer) FailStreams(status int) {
	f.mu.Lock()
	f.streamStatus = status
	f.mu.Unlock()
}

// AddChat registers a conversation with its history
func (f *FakeServer) AddChat(id, title string, history ...map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if history == nil {
		history = []map[string]interface{}{}
	}
	f.chats[id] = map[string]interface{}{
		"id":         id,
		"title":      title,
		"history":    history,
		"created_at": "2024-05-01T10:00:00Z",
		"updated_at": "2024-05-01T10:00:00Z",
	}
}

// SetFiles sets the file map returned for a conversation
func (f *FakeServer) SetFiles(chatID string, files map[string]string) {
	f.mu.Lock()
	f.files[chatID] = files
	f.mu.Unlock()
}

// Push queues a raw frame on the conversation's stream
func (f *FakeServer) Push(chatID, frame string) {
	f.stream(chatID) <- frame
}

// EndStream makes the server close the conversation's stream after the queued frames
func (f *FakeServer) EndStream(chatID string) {
	close(f.stream(chatID))
}

// Instructions returns what the agent endpoint received
func (f *FakeServer) Instructions() []Instruction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Instruction(nil), f.instructions...)
}

// Requests returns how many times "METHOD /path" was requested
func (f *FakeServer) Requests(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}

// ChatIDs returns the ids of the registered conversations
func (f *FakeServer) ChatIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.chats))
	for id := range f.chats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *FakeServer) stream(chatID string) chan string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.streams[chatID]
	if !ok {
		ch = make(chan string, 64)
		f.streams[chatID] = ch
	}
	return ch
}

func (f *FakeServer) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests[r.Method+" "+r.URL.Path]++
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeServer) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		token := f.token
		f.mu.Unlock()
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		next(w, r)
	}
}

func (f *FakeServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	token := f.refreshToken
	if token != "" {
		f.token = token
	}
	f.mu.Unlock()

	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Refresh token expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (f *FakeServer) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.chats))
	for id := range f.chats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.chats[id])
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title           string `json:"title"`
		UserInstruction string `json:"user_instruction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}

	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("chat-%d", f.nextID)
	f.mu.Unlock()

	var history []map[string]interface{}
	if in.UserInstruction != "" {
		history = append(history, UserPayload(id+"-m1", in.UserInstruction))
	}
	f.AddChat(id, in.Title, history...)

	f.mu.Lock()
	chat := copyChat(f.chats[id])
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, chat)
}

func (f *FakeServer) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	chat, ok := f.chats[r.PathValue("id")]
	chat = copyChat(chat)
	if ok && f.files[r.PathValue("id")] != nil {
		chat["file_map"] = f.files[r.PathValue("id")]
	}
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Chat not found"})
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (f *FakeServer) handleRename(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}

	f.mu.Lock()
	chat, ok := f.chats[r.PathValue("id")]
	if ok {
		chat["title"] = in.Title
	}
	chat = copyChat(chat)
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Chat not found"})
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (f *FakeServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	_, ok := f.chats[r.PathValue("id")]
	delete(f.chats, r.PathValue("id"))
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Chat not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeServer) handleFiles(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	files := f.files[r.PathValue("id")]
	f.mu.Unlock()
	if files == nil {
		files = map[string]string{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (f *FakeServer) handleAgent(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var in struct {
		UserInstruction string `json:"user_instruction"`
	}
	if err := json.Unmarshal(body, &in); err != nil || strings.TrimSpace(in.UserInstruction) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "user_instruction required"})
		return
	}

	f.mu.Lock()
	f.instructions = append(f.instructions, Instruction{ChatID: r.PathValue("id"), Text: in.UserInstruction})
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (f *FakeServer) handleStream(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	status := f.streamStatus
	f.mu.Unlock()
	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	frames := f.stream(r.PathValue("id"))
	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			_, _ = io.WriteString(w, frame)
			flusher.Flush()
		}
	}
}

func copyChat(chat map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(chat)+1)
	for k, v := range chat {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
