package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// HistoryCache keeps a local copy of conversations in SQLite so they can be
// shown and exported without the server
type HistoryCache struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// ChatSummary is one row of the cached conversation index
type ChatSummary struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	UpdatedAt    string `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	SyncedAt     string `json:"synced_at,omitempty" yaml:"synced_at,omitempty"`
	MessageCount int    `json:"message_count" yaml:"message_count"`
}

// OpenCache opens the cache database at path
func OpenCache(path string) (*HistoryCache, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, &CacheError{Path: path, Op: "open", Err: err}
	}
	return NewHistoryCache(db, path), nil
}

// NewHistoryCache wraps an already migrated database
func NewHistoryCache(db *sql.DB, path string) *HistoryCache {
	return &HistoryCache{db: db, path: path, now: time.Now}
}

// Path returns the database location
func (c *HistoryCache) Path() string {
	return c.path
}

// Close closes the database
func (c *HistoryCache) Close() error {
	return c.db.Close()
}

// SaveChat stores a conversation, its history and its file map
func (c *HistoryCache) SaveChat(ctx context.Context, chat *Chat) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO chats (id, title, created_at, updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			synced_at = excluded.synced_at`,
		chat.ID, chat.Title, chat.CreatedAt, chat.UpdatedAt, c.now().UTC().Format(time.RFC3339))
	if err != nil {
		return &CacheError{Path: c.path, Op: "write", Err: err}
	}

	if _, err := c.AppendMessages(ctx, chat.ID, chat.History); err != nil {
		return err
	}

	if chat.FileMap != nil {
		return c.SaveFileMap(ctx, chat.ID, chat.FileMap)
	}
	return nil
}

// AppendMessages adds messages after those already cached, ignoring ids that
// are present. Optimistic local messages are never cached. It returns how
// many rows were inserted.
func (c *HistoryCache) AppendMessages(ctx context.Context, chatID string, messages []Message) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &CacheError{Path: c.path, Op: "write", Err: err}
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE chat_id = ?", chatID).Scan(&seq); err != nil {
		return 0, &CacheError{Path: c.path, Op: "read", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO messages (chat_id, id, seq, body) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, &CacheError{Path: c.path, Op: "write", Err: err}
	}
	defer stmt.Close()

	inserted := 0
	for _, msg := range messages {
		if msg.ID == "" || msg.IsLocal() {
			continue
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return inserted, &CacheError{Path: c.path, Op: "write", Err: fmt.Errorf("encode %s: %w", msg.ID, err)}
		}
		res, err := stmt.ExecContext(ctx, chatID, msg.ID, seq+1, string(body))
		if err != nil {
			return inserted, &CacheError{Path: c.path, Op: "write", Err: err}
		}
		if n, _ := res.RowsAffected(); n > 0 {
			seq++
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &CacheError{Path: c.path, Op: "write", Err: err}
	}
	return inserted, nil
}

// SaveFileMap replaces the cached file map of a conversation
func (c *HistoryCache) SaveFileMap(ctx context.Context, chatID string, files map[string]string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &CacheError{Path: c.path, Op: "write", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM file_maps WHERE chat_id = ?", chatID); err != nil {
		return &CacheError{Path: c.path, Op: "write", Err: err}
	}
	for key, url := range files {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO file_maps (chat_id, key, url) VALUES (?, ?, ?)", chatID, key, url); err != nil {
			return &CacheError{Path: c.path, Op: "write", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &CacheError{Path: c.path, Op: "write", Err: err}
	}
	return nil
}

// LoadChat reads a cached conversation. Bodies that no longer normalize are skipped.
func (c *HistoryCache) LoadChat(ctx context.Context, chatID string) (*Chat, error) {
	chat := &Chat{ID: chatID}
	err := c.db.QueryRowContext(ctx,
		"SELECT title, created_at, updated_at FROM chats WHERE id = ?", chatID).
		Scan(&chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &CacheError{Path: c.path, Op: "read", Err: fmt.Errorf("chat %s: %w", chatID, ErrNotFound)}
	}
	if err != nil {
		return nil, &CacheError{Path: c.path, Op: "read", Err: err}
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT id, body FROM messages WHERE chat_id = ? ORDER BY seq", chatID)
	if err != nil {
		return nil, &CacheError{Path: c.path, Op: "read", Err: err}
	}
	defer rows.Close()

	normalizer := NewNormalizer()
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, &CacheError{Path: c.path, Op: "read", Err: err}
		}
		msg, ok := normalizer.NormalizeJSON([]byte(body))
		if !ok {
			LogWarn("Skipping unreadable cached message %s/%s", chatID, id)
			continue
		}
		chat.History = append(chat.History, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &CacheError{Path: c.path, Op: "read", Err: err}
	}

	files, err := c.loadFileMap(ctx, chatID)
	if err != nil {
		return nil, err
	}
	chat.FileMap = files

	return chat, nil
}

func (c *HistoryCache) loadFileMap(ctx context.Context, chatID string) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT key, url FROM file_maps WHERE chat_id = ?", chatID)
	if err != nil {
		return nil, &CacheError{Path: c.path, Op: "read", Err: err}
	}
	defer rows.Close()

	files := make(map[string]string)
	for rows.Next() {
		var key, url string
		if err := rows.Scan(&key, &url); err != nil {
			return nil, &CacheError{Path: c.path, Op: "read", Err: err}
		}
		files[key] = url
	}
	if err := rows.Err(); err != nil {
		return nil, &CacheError{Path: c.path, Op: "read", Err: err}
	}
	return files, nil
}

// ListChats returns the cached conversations, most recently updated first
func (c *HistoryCache) ListChats(ctx context.Context) ([]ChatSummary, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.updated_at, c.synced_at,
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)
		FROM chats c
		ORDER BY c.updated_at DESC, c.id`)
	if err != nil {
		return nil, &CacheError{Path: c.path, Op: "read", Err: err}
	}
	defer rows.Close()

	var chats []ChatSummary
	for rows.Next() {
		var s ChatSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.UpdatedAt, &s.SyncedAt, &s.MessageCount); err != nil {
			return nil, &CacheError{Path: c.path, Op: "read", Err: err}
		}
		chats = append(chats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &CacheError{Path: c.path, Op: "read", Err: err}
	}
	return chats, nil
}

// DeleteChat removes a conversation and everything cached for it
func (c *HistoryCache) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &CacheError{Path: c.path, Op: "write", Err: err}
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM messages WHERE chat_id = ?",
		"DELETE FROM file_maps WHERE chat_id = ?",
		"DELETE FROM chats WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, chatID); err != nil {
			return &CacheError{Path: c.path, Op: "write", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &CacheError{Path: c.path, Op: "write", Err: err}
	}
	return nil
}
