package internal

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// Resolver maps an opaque artifact key to a displayable URL
type Resolver interface {
	Resolve(key string) (string, bool)
}

// FileMapFetcher retrieves the current asset mapping of a conversation
type FileMapFetcher interface {
	FetchFileMap(ctx context.Context, chatID string) (map[string]string, error)
}

// MapResolver resolves keys from a plain map, e.g. a cached or exported chat's file map
type MapResolver map[string]string

func (m MapResolver) Resolve(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// FileMap is the per-conversation dictionary of artifact keys to URLs.
// It is replaced wholesale on every refresh and is safe for concurrent use.
type FileMap struct {
	mu      sync.RWMutex
	prefix  string
	entries map[string]string
	issued  uint64
	applied uint64
}

// NewFileMap creates an empty FileMap. Relative values are joined onto prefix.
func NewFileMap(prefix string) *FileMap {
	return &FileMap{
		prefix:  strings.TrimRight(prefix, "/"),
		entries: make(map[string]string),
	}
}

// Resolve returns the URL for key
func (f *FileMap) Resolve(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.entries[key]
	return v, ok
}

// ResolveOr returns the URL for key through r, or key itself when r is nil
// or has no entry
func ResolveOr(r Resolver, key string) string {
	if r == nil {
		return key
	}
	if v, ok := r.Resolve(key); ok {
		return v
	}
	return key
}

// Replace swaps in a new mapping, prefixing relative entries
func (f *FileMap) Replace(entries map[string]string) {
	resolved := f.absolutize(entries)

	f.mu.Lock()
	f.issued++
	f.applied = f.issued
	f.entries = resolved
	f.mu.Unlock()
}

// Snapshot returns a copy of the current mapping
func (f *FileMap) Snapshot() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.entries))
	for k, v := range f.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of entries
func (f *FileMap) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Refresh fetches the mapping and replaces the cached one. A response that
// arrives after a newer refresh has already been applied is discarded, and
// on failure the previous mapping stays in effect.
func (f *FileMap) Refresh(ctx context.Context, fetcher FileMapFetcher, chatID string) error {
	f.mu.Lock()
	f.issued++
	gen := f.issued
	f.mu.Unlock()

	entries, err := fetcher.FetchFileMap(ctx, chatID)
	if err != nil {
		return err
	}
	resolved := f.absolutize(entries)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen < f.applied {
		LogDebug("Discarding stale file map for %s (generation %d < %d)", chatID, gen, f.applied)
		return nil
	}
	f.applied = gen
	f.entries = resolved
	return nil
}

func (f *FileMap) absolutize(entries map[string]string) map[string]string {
	out := make(map[string]string, len(entries))
	for k, v := range entries {
		out[k] = f.absoluteURL(v)
	}
	return out
}

func (f *FileMap) absoluteURL(v string) string {
	if f.prefix == "" || v == "" {
		return v
	}
	if u, err := url.Parse(v); err == nil && u.IsAbs() {
		return v
	}
	if strings.HasPrefix(v, "data:") || strings.HasPrefix(v, "blob:") {
		return v
	}
	return f.prefix + "/" + strings.TrimLeft(v, "/")
}
