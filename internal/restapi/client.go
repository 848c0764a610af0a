// Package restapi is the HTTP client for the chat backend's REST API.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/metrics"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Message)
}

// TokenSource returns the current bearer token.
type TokenSource func() string

// Client talks to the backend REST API.
type Client struct {
	base  *url.URL
	token TokenSource
	http  *http.Client
}

// New creates a client for baseURL. A zero timeout defaults to 15s.
func New(baseURL string, token TokenSource, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse api url: unsupported scheme %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{base: u, token: token, http: &http.Client{Timeout: timeout}}, nil
}

// ListConversations fetches every conversation of the signed-in user.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var out []chat.Conversation
	err := c.do(ctx, "list conversations", http.MethodGet, "/api/chat", nil, nil, &out)
	return out, err
}

// FetchMessages returns a page of history in chronological order. offset
// counts back from the newest message.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, limit, offset int) ([]chat.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var out []chat.Message
	err := c.do(ctx, "fetch messages", http.MethodGet, "/api/message/"+url.PathEscape(conversationID), q, nil, &out)
	return out, err
}

type createGroupRequest struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
}

// CreateGroup creates a group with the signed-in user and the given members.
func (c *Client) CreateGroup(ctx context.Context, name string, userIDs []string) (*chat.Conversation, error) {
	var out chat.Conversation
	if err := c.do(ctx, "create group", http.MethodPost, "/api/chat/group", nil, createGroupRequest{Name: name, Users: userIDs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type renameRequest struct {
	ChatID   string `json:"chatId"`
	ChatName string `json:"chatName"`
}

// RenameGroup renames a group.
func (c *Client) RenameGroup(ctx context.Context, conversationID, name string) (*chat.Conversation, error) {
	var out chat.Conversation
	if err := c.do(ctx, "rename group", http.MethodPut, "/api/chat/rename", nil, renameRequest{ChatID: conversationID, ChatName: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type memberRequest struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// AddMember adds a user to a group.
func (c *Client) AddMember(ctx context.Context, conversationID, userID string) (*chat.Conversation, error) {
	var out chat.Conversation
	if err := c.do(ctx, "add member", http.MethodPut, "/api/chat/groupadd", nil, memberRequest{ChatID: conversationID, UserID: userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveMember removes a user from a group.
func (c *Client) RemoveMember(ctx context.Context, conversationID, userID string) (*chat.Conversation, error) {
	var out chat.Conversation
	if err := c.do(ctx, "remove member", http.MethodPut, "/api/chat/groupremove", nil, memberRequest{ChatID: conversationID, UserID: userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchUsers looks users up by name or email.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]chat.User, error) {
	q := url.Values{}
	q.Set("search", query)
	var out []chat.User
	err := c.do(ctx, "search users", http.MethodGet, "/api/user", q, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveREST(op, start, err) }()

	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorMessage extracts {"message": ...} or {"error": ...} from an error body.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
