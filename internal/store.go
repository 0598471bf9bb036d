package internal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const localIDPrefix = "local-"

// Store is the ordered, id-deduplicated message sequence of one conversation.
// Writes are append-only and idempotent by id; it is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	chatID   string
	messages []Message
	index    map[string]int

	localNS  string
	localSeq uint64
}

// NewStore creates an empty Store for chatID
func NewStore(chatID string) *Store {
	ns := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return &Store{
		chatID:  chatID,
		index:   make(map[string]int),
		localNS: ns,
	}
}

// ChatID returns the conversation this store belongs to
func (s *Store) ChatID() string {
	return s.chatID
}

// Seed loads fetched history. History goes first in its own order; messages
// already present but absent from history (a live frame that beat the fetch,
// or an optimistic append) keep their relative order after it.
func (s *Store) Seed(history []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]Message, 0, len(history)+len(s.messages))
	index := make(map[string]int, len(history)+len(s.messages))

	for _, msg := range history {
		if _, dup := index[msg.ID]; dup {
			continue
		}
		index[msg.ID] = len(merged)
		merged = append(merged, msg)
	}
	for _, msg := range s.messages {
		if _, dup := index[msg.ID]; dup {
			continue
		}
		index[msg.ID] = len(merged)
		merged = append(merged, msg)
	}

	s.messages = merged
	s.index = index
}

// AppendLocal appends a user message before the server has seen it.
// Its id comes from a client-only namespace.
func (s *Store) AppendLocal(content string, attachments []Attachment) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.localSeq++
	msg := Message{
		ID:          fmt.Sprintf("%s%s-%d", localIDPrefix, s.localNS, s.localSeq),
		Role:        RoleUser,
		Kind:        KindUser,
		Content:     content,
		Attachments: attachments,
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return msg
}

// AppendLive appends a streamed message unless its id is already present.
// It reports whether the message was added.
func (s *Store) AppendLive(msg Message) bool {
	if msg.ID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.index[msg.ID]; dup {
		return false
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return true
}

// Messages returns a snapshot of the sequence in display order
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Get returns the message with id
func (s *Store) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return s.messages[i], true
}

// FunctionResultFor returns the first function result belonging to callID
func (s *Store) FunctionResultFor(callID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return functionResultFor(s.messages, callID)
}

func functionResultFor(messages []Message, callID string) (Message, bool) {
	for _, m := range messages {
		if m.Kind == KindFunctionResult && m.BelongsTo == callID {
			return m, true
		}
	}
	return Message{}, false
}

// FunctionResultFor looks up a result in a plain message slice
func FunctionResultFor(messages []Message, callID string) (Message, bool) {
	return functionResultFor(messages, callID)
}
