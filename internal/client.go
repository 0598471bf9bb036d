package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to the Cognitus REST API and opens conversation streams
type Client struct {
	baseURL        string
	tokens         TokenSource
	http           *http.Client
	requestTimeout time.Duration
}

// NewClient creates a client for baseURL. tokens may be nil for anonymous use.
func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		tokens:         tokens,
		http:           &http.Client{},
		requestTimeout: defaultRequestTimeout,
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// WithRequestTimeout bounds REST calls. Streams are never bounded.
func (c *Client) WithRequestTimeout(d time.Duration) *Client {
	c.requestTimeout = d
	return c
}

// BaseURL returns the server root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListChats returns the user's conversations, most recently updated first
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// CreateChat creates a conversation
func (c *Client) CreateChat(ctx context.Context, in ChatCreate) (*Chat, error) {
	if in.Title == "" {
		in.Title = "Chat"
	}
	var chat Chat
	if err := c.do(ctx, http.MethodPost, "/chats", in, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetChat fetches a conversation with its history
func (c *Client) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var chat Chat
	if err := c.do(ctx, http.MethodGet, chatPath(chatID, ""), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// RenameChat updates a conversation title
func (c *Client) RenameChat(ctx context.Context, chatID, title string) (*Chat, error) {
	if title == "" {
		title = "Chat"
	}
	var chat Chat
	if err := c.do(ctx, http.MethodPatch, chatPath(chatID, ""), ChatUpdate{Title: title}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// DeleteChat removes a conversation
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, chatPath(chatID, ""), nil, nil)
}

// SendInstruction forwards a user instruction to the agent
func (c *Client) SendInstruction(ctx context.Context, chatID, instruction string) error {
	payload := map[string]string{"user_instruction": instruction}
	return c.do(ctx, http.MethodPost, chatPath(chatID, "agent"), payload, nil)
}

// FetchFileMap returns the artifact key to URL mapping of a conversation
func (c *Client) FetchFileMap(ctx context.Context, chatID string) (map[string]string, error) {
	files := make(map[string]string)
	if err := c.do(ctx, http.MethodGet, chatPath(chatID, "files"), nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// Health checks that the server is reachable
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// OpenStream connects to the conversation's event stream. The returned body
// is bound to ctx; cancelling ctx aborts a pending read.
func (c *Client) OpenStream(ctx context.Context, chatID string) (io.ReadCloser, error) {
	endpoint := c.baseURL + chatPath(chatID, "stream")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Op: "connect", URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "connect", URL: endpoint, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, &TransportError{Op: "connect", URL: endpoint, Status: resp.StatusCode, Err: ErrUnauthorized}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, &TransportError{
			Op:     "connect",
			URL:    endpoint,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body))),
		}
	}

	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	err := c.doOnce(ctx, method, path, in, out)
	if err == nil || !isStatus(err, http.StatusUnauthorized) || strings.HasPrefix(path, "/auth/") {
		return err
	}

	store, ok := c.tokens.(TokenStore)
	if !ok {
		return err
	}
	if refreshErr := c.refreshToken(ctx, store); refreshErr != nil {
		LogDebug("Token refresh failed: %v", refreshErr)
		return err
	}
	return c.doOnce(ctx, method, path, in, out)
}

func (c *Client) doOnce(ctx context.Context, method, path string, in, out interface{}) error {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &TransportError{Op: "request", URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: "request", URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: apiErrorDetail(data)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Source: "api", Key: method + " " + path, Err: err}
	}
	return nil
}

func (c *Client) refreshToken(ctx context.Context, store TokenStore) error {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.doOnce(ctx, http.MethodPost, "/auth/refresh", nil, &resp); err != nil {
		return err
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("refresh response carried no access token")
	}
	LogDebug("Refreshed access token")
	return store.SetToken(resp.AccessToken)
}

func (c *Client) authorize(req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to read credential: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func chatPath(chatID, sub string) string {
	p := "/chats/" + url.PathEscape(chatID)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func isStatus(err error, status int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == status
}

// apiErrorDetail extracts FastAPI-style {"detail": "..."} bodies
func apiErrorDetail(data []byte) string {
	var body struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != nil {
		return stringify(body.Detail)
	}
	return strings.TrimSpace(string(data))
}
