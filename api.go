package parley

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnauthorized is returned when the server rejects the bearer credential.
// The session treats it as invalidating and forces a logout.
var ErrUnauthorized = errors.New("parley: unauthorized")

// APIClient communicates with the Parley REST API. It works independently
// of the realtime Conn — no live connection needed.
type APIClient struct {
	base  string
	httpc *http.Client
	log   zerolog.Logger

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

// NewAPIClient creates a REST client for the given base URL
// (e.g. "http://localhost:8080").
func NewAPIClient(baseURL string, log zerolog.Logger) *APIClient {
	return &APIClient{
		base:  strings.TrimRight(baseURL, "/") + "/api",
		httpc: &http.Client{Timeout: 30 * time.Second},
		log:   log.With().Str("component", "api").Logger(),
	}
}

// SetToken replaces the bearer credential attached to every request. An
// empty token clears it.
func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer credential.
func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// OnUnauthorized sets the hook fired whenever any call comes back 401.
func (c *APIClient) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// doJSON sends an authed request and decodes the JSON response into dest.
func (c *APIClient) doJSON(ctx context.Context, method, path string, reqBody, dest any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		c.mu.RLock()
		fn := c.onUnauthorized
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("parley api %s %s: %d %s", method, path, resp.StatusCode, string(b))
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Auth
// --------------------------------------------------------------------------

// Login authenticates with email and password. On success the returned
// bearer token is stored and attached to subsequent requests.
func (c *APIClient) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Register creates a new account. The returned token is stored like Login's.
func (c *APIClient) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	req := RegisterRequest{Username: username, Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

// CurrentUser fetches the authenticated user's profile.
func (c *APIClient) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.doJSON(ctx, http.MethodGet, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile updates the authenticated user's profile.
func (c *APIClient) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	var u User
	if err := c.doJSON(ctx, http.MethodPut, "/users/me", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SearchUsers searches accounts by username or email fragment.
func (c *APIClient) SearchUsers(ctx context.Context, query string) ([]User, error) {
	var users []User
	path := "/users/search?q=" + url.QueryEscape(query)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches a single user by id.
func (c *APIClient) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := c.doJSON(ctx, http.MethodGet, "/users/"+formatID(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// --------------------------------------------------------------------------
// Friends
// --------------------------------------------------------------------------

// Friends returns the accepted contact list.
func (c *APIClient) Friends(ctx context.Context) ([]Friend, error) {
	var friends []Friend
	if err := c.doJSON(ctx, http.MethodGet, "/friends", nil, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// PendingFriendRequests returns incoming requests awaiting a response.
func (c *APIClient) PendingFriendRequests(ctx context.Context) ([]FriendRequest, error) {
	var reqs []FriendRequest
	if err := c.doJSON(ctx, http.MethodGet, "/friends/requests", nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// SendFriendRequest sends a friend request to userID.
func (c *APIClient) SendFriendRequest(ctx context.Context, userID int64) error {
	return c.doJSON(ctx, http.MethodPost, "/friends/requests", map[string]int64{"userId": userID}, nil)
}

// RespondFriendRequest accepts or rejects a pending request.
func (c *APIClient) RespondFriendRequest(ctx context.Context, requestID int64, accept bool) error {
	path := "/friends/requests/" + formatID(requestID)
	return c.doJSON(ctx, http.MethodPut, path, map[string]bool{"accept": accept}, nil)
}

// RemoveFriend removes an accepted contact.
func (c *APIClient) RemoveFriend(ctx context.Context, friendID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/friends/"+formatID(friendID), nil, nil)
}

// --------------------------------------------------------------------------
// Groups
// --------------------------------------------------------------------------

// Groups returns all groups the user belongs to.
func (c *APIClient) Groups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.doJSON(ctx, http.MethodGet, "/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGroup creates a group with an optional initial roster.
func (c *APIClient) CreateGroup(ctx context.Context, req CreateGroupRequest) (*Group, error) {
	var g Group
	if err := c.doJSON(ctx, http.MethodPost, "/groups", req, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGroup fetches a single group by id.
func (c *APIClient) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
	var g Group
	if err := c.doJSON(ctx, http.MethodGet, "/groups/"+formatID(groupID), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GroupMembers returns the roster of a group.
func (c *APIClient) GroupMembers(ctx context.Context, groupID int64) ([]GroupMember, error) {
	var members []GroupMember
	path := "/groups/" + formatID(groupID) + "/members"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// InviteGroupMembers adds users to a group.
func (c *APIClient) InviteGroupMembers(ctx context.Context, groupID int64, userIDs []int64) error {
	path := "/groups/" + formatID(groupID) + "/members"
	return c.doJSON(ctx, http.MethodPost, path, map[string][]int64{"userIds": userIDs}, nil)
}

// RemoveGroupMember removes a user from a group.
func (c *APIClient) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	path := "/groups/" + formatID(groupID) + "/members/" + formatID(userID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// LeaveGroup removes the authenticated user from a group.
func (c *APIClient) LeaveGroup(ctx context.Context, groupID int64) error {
	return c.doJSON(ctx, http.MethodPost, "/groups/"+formatID(groupID)+"/leave", nil, nil)
}

// GroupMessages returns the ordered message history of a group.
func (c *APIClient) GroupMessages(ctx context.Context, groupID int64) ([]GroupMessage, error) {
	var msgs []GroupMessage
	path := "/groups/" + formatID(groupID) + "/messages"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// --------------------------------------------------------------------------
// Direct messages
// --------------------------------------------------------------------------

// ChatList returns conversation summaries for the authenticated user.
func (c *APIClient) ChatList(ctx context.Context) ([]ChatSummary, error) {
	var list []ChatSummary
	if err := c.doJSON(ctx, http.MethodGet, "/messages/chat-list", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ChatHistory returns the ordered direct-message history with peerID.
func (c *APIClient) ChatHistory(ctx context.Context, peerID int64) ([]Message, error) {
	var msgs []Message
	path := "/messages/history/" + formatID(peerID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead marks every unread message from peerID as read on the server.
func (c *APIClient) MarkRead(ctx context.Context, peerID int64) error {
	return c.doJSON(ctx, http.MethodPut, "/messages/read/"+formatID(peerID), nil, nil)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
