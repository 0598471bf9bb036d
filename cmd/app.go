package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/iksnae/cognitus-chat/internal"
	"github.com/iksnae/cognitus-chat/internal/config"
)

// app holds the collaborators a command needs, built from the loaded config
type app struct {
	cfg      *config.Config
	tokens   internal.TokenSource
	client   *internal.Client
	cache    *internal.HistoryCache // nil when the cache is disabled or unavailable
	sessions *internal.Manager
}

func newApp(c *config.Config) *app {
	var tokens internal.TokenSource
	if c.Auth.Token != "" {
		tokens = internal.NewStaticToken(c.Auth.Token)
	} else {
		tokens = internal.NewFileToken(c.Auth.TokenFile)
	}

	client := internal.NewClient(c.Server.URL, tokens).WithRequestTimeout(c.Server.Timeout)

	a := &app{
		cfg:      c,
		tokens:   tokens,
		client:   client,
		sessions: internal.NewManager(),
	}

	if c.Cache.Enabled {
		cache, err := internal.OpenCache(c.Cache.Path)
		if err != nil {
			internal.LogWarn("History cache unavailable: %v", err)
		} else {
			a.cache = cache
		}
	}
	return a
}

func (a *app) Close() {
	if n := a.sessions.Len(); n > 0 {
		internal.LogDebug("Closing %d live session(s)", n)
	}
	a.sessions.CloseAll()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			internal.LogWarn("Failed to close history cache: %v", err)
		}
	}
}

func (a *app) newFileMap() *internal.FileMap {
	return internal.NewFileMap(a.cfg.AssetsBase())
}

// loadChat fetches a conversation and its file map from the server and
// records it in the cache. With cached set it reads only the cache.
func (a *app) loadChat(ctx context.Context, chatID string, cached bool) (*internal.Chat, error) {
	if cached {
		if a.cache == nil {
			return nil, fmt.Errorf("history cache is disabled")
		}
		return a.cache.LoadChat(ctx, chatID)
	}

	chat, err := a.client.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, internal.ErrNotFound) {
			return nil, fmt.Errorf("conversation %s not found: %w", chatID, err)
		}
		return nil, fmt.Errorf("failed to load conversation %s: %w", chatID, err)
	}

	files := a.newFileMap()
	if err := files.Refresh(ctx, a.client, chatID); err != nil {
		internal.LogWarn("Failed to fetch files for %s: %v", chatID, err)
	}
	chat.FileMap = files.Snapshot()

	a.remember(ctx, chat)
	return chat, nil
}

func (a *app) remember(ctx context.Context, chat *internal.Chat) {
	if a.cache == nil {
		return
	}
	if err := a.cache.SaveChat(ctx, chat); err != nil {
		internal.LogWarn("Failed to cache conversation %s: %v", chat.ID, err)
	}
}

// deleteChat removes a conversation on the server, stops its live session
// and drops it from the cache
func (a *app) deleteChat(ctx context.Context, chatID string) error {
	if err := a.client.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", chatID, err)
	}
	if s, ok := a.sessions.Active(chatID); ok {
		stats := s.Stats()
		a.sessions.Close(chatID)
		internal.LogDebugw("Closed live session for deleted conversation",
			"chat", chatID, "accepted", stats.Accepted, "malformed", stats.Malformed)
	}
	if a.cache != nil {
		if err := a.cache.DeleteChat(ctx, chatID); err != nil {
			internal.LogWarn("Failed to remove %s from cache: %v", chatID, err)
		}
	}
	return nil
}

// follow opens the live stream of a conversation, seeding its store with
// history. The session of from, if any, is closed first.
func (a *app) follow(ctx context.Context, from string, chat *internal.Chat, files *internal.FileMap, listener internal.Listener) *internal.Session {
	store := internal.NewStore(chat.ID)
	store.Seed(chat.History)

	return a.sessions.Switch(ctx, from, chat.ID, internal.SessionOptions{
		Opener:         a.client,
		Fetcher:        a.client,
		Store:          store,
		Files:          files,
		Listener:       listener,
		ReadBufferSize: a.cfg.Stream.ReadBuffer,
	})
}

// persist appends accepted live messages to the cache
func (a *app) persist(ctx context.Context, chatID string, msg internal.Message) {
	if a.cache == nil || msg.IsLocal() {
		return
	}
	if _, err := a.cache.AppendMessages(ctx, chatID, []internal.Message{msg}); err != nil {
		internal.LogWarn("Failed to cache message %s: %v", msg.ID, err)
	}
}
