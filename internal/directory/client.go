package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"chatsecure/internal/domain"
)

// Client talks JSON over HTTP to the directory server.
type Client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a Client for the given base URL. httpClient may be nil, in
// which case http.DefaultClient is used.
func New(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: base, http: httpClient}
}

// SetToken sets the auth token sent on subsequent calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login registers or re-authenticates a user by display name and public
// key, returning the server-assigned id and token.
func (c *Client) Login(ctx context.Context, displayName, publicKeyArmored string) (domain.LoginResult, error) {
	var out domain.LoginResult
	in := struct {
		Name   string `json:"name"`
		Pubkey string `json:"pubkey"`
	}{Name: displayName, Pubkey: publicKeyArmored}
	if err := c.post(ctx, "/login", in, &out); err != nil {
		return domain.LoginResult{}, err
	}
	return out, nil
}

// FetchRoster returns all users the directory knows about.
func (c *Client) FetchRoster(ctx context.Context) ([]domain.Peer, error) {
	var out []domain.Peer
	if err := c.getJSON(ctx, "/users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchBroadcastHistory returns the stored group-channel messages.
func (c *Client) FetchBroadcastHistory(ctx context.Context) ([]domain.WireMessage, error) {
	var out []domain.WireMessage
	if err := c.getJSON(ctx, "/group_msg", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchDirectHistory returns the stored direct messages exchanged with
// peerID.
func (c *Client) FetchDirectHistory(ctx context.Context, peerID string) ([]domain.WireMessage, error) {
	var out []domain.WireMessage
	if err := c.getJSON(ctx, "/user_msg/"+url.PathEscape(peerID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrDirectoryUnavailable, path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, buf)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrDirectoryUnavailable, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: %s: %s", domain.ErrDirectoryUnavailable, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s: %v", domain.ErrDirectoryUnavailable, path, err)
		}
	}
	return nil
}

// Compile-time assertion that Client implements domain.DirectoryClient.
var _ domain.DirectoryClient = (*Client)(nil)
