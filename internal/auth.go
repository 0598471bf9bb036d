package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer credential. It is consulted on every
// connection open, never cached by callers.
type TokenSource interface {
	Token() (string, error)
}

// TokenStore is a TokenSource that can persist a refreshed token
type TokenStore interface {
	TokenSource
	SetToken(token string) error
}

// StaticToken holds a token in memory
type StaticToken struct {
	mu    sync.RWMutex
	token string
}

// NewStaticToken creates an in-memory token store
func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: token}
}

func (s *StaticToken) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *StaticToken) SetToken(token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// FileToken reads the token from a file each time it is requested, so a
// login performed elsewhere is picked up by the next connection.
type FileToken struct {
	path string
	mu   sync.Mutex
}

// NewFileToken creates a token store backed by path
func NewFileToken(path string) *FileToken {
	return &FileToken{path: path}
}

func (f *FileToken) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileToken) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	return os.WriteFile(f.path, []byte(token+"\n"), 0600)
}

// TokenInfo is what can be read from a JWT without verifying it
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token expiry has passed at now
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// InspectToken decodes the claims of a JWT bearer token without checking its
// signature; the server remains the authority. Opaque tokens return an error.
func InspectToken(token string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("token is not a JWT: %w", err)
	}

	var info TokenInfo
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}
