package parley

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ParleyChat/parley-go-sdk/wire"
)

// ErrNotLoggedIn is returned by session operations that require a live
// authenticated session.
var ErrNotLoggedIn = errors.New("parley: not logged in")

// SessionState is the coordinator lifecycle state.
type SessionState int

const (
	SessionLoggedOut SessionState = iota
	SessionConnecting
	SessionLive
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionLive:
		return "live"
	default:
		return "logged_out"
	}
}

// Transport is the slice of the realtime connection the session drives.
// *Conn implements it.
type Transport interface {
	Connect(ctx context.Context, userID int64, credential string) error
	Disconnect()
	Publish(topic string, body any) error
	SubscribeGroup(groupID int64)
	UnsubscribeGroup(groupID int64)
	Registry() *Registry
	OnStatus(h StatusHandler)
	Connected() bool
}

// SessionAPI is the REST surface the session and its stores consume.
// *APIClient implements it.
type SessionAPI interface {
	DirectAPI
	GroupAPI
	Login(ctx context.Context, email, password string) (*AuthResponse, error)
	SetToken(token string)
	OnUnauthorized(fn func())
	ChatList(ctx context.Context) ([]ChatSummary, error)
	Friends(ctx context.Context) ([]Friend, error)
	Groups(ctx context.Context) ([]Group, error)
	LeaveGroup(ctx context.Context, groupID int64) error
}

// Session ties authentication state to the connection lifecycle: connect
// when authenticated, disconnect and discard all derived state on logout.
// It owns the process's single Transport, making one-session-per-process an
// explicit constructor constraint rather than hidden global state.
type Session struct {
	api  SessionAPI
	conn Transport
	log  zerolog.Logger

	mu         sync.Mutex
	state      SessionState
	user       User
	direct     *DirectStore
	groups     *GroupStore
	openGroups map[int64]struct{}
	chatList   []ChatSummary
	friends    []Friend
	groupList  []Group
}

// NewSession wires the coordinator to its transport and REST client. A 401
// from any REST call forces the session back to LoggedOut.
func NewSession(api SessionAPI, conn Transport, log zerolog.Logger) *Session {
	s := &Session{
		api:        api,
		conn:       conn,
		log:        log.With().Str("component", "session").Logger(),
		openGroups: make(map[int64]struct{}),
	}
	api.OnUnauthorized(func() {
		s.log.Warn().Msg("credential rejected, forcing logout")
		s.Logout()
	})
	return s
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentUser returns the authenticated user while the session is live.
func (s *Session) CurrentUser() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.state == SessionLive
}

// Online reports whether the realtime channel is currently up. Composition
// stays available while offline; sends fail fast instead of queueing.
func (s *Session) Online() bool { return s.conn.Connected() }

// Registry exposes the transport's topic registry so callers can attach
// additional handlers (notifications, logging) next to the stores.
func (s *Session) Registry() *Registry { return s.conn.Registry() }

// Direct returns the direct-message store, or nil when logged out.
func (s *Session) Direct() *DirectStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct
}

// Groups returns the group-message store, or nil when logged out.
func (s *Session) Groups() *GroupStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups
}

// Login authenticates, connects the realtime channel, and performs the
// initial bulk refresh of conversation summaries. A login while already
// live tears the previous session down first.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if s.State() != SessionLoggedOut {
		s.Logout()
	}

	s.mu.Lock()
	s.state = SessionConnecting
	s.mu.Unlock()

	auth, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.mu.Lock()
		s.state = SessionLoggedOut
		s.mu.Unlock()
		return fmt.Errorf("login: %w", err)
	}

	if err := s.conn.Connect(ctx, auth.User.ID, auth.Token); err != nil {
		s.api.SetToken("")
		s.mu.Lock()
		s.state = SessionLoggedOut
		s.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	direct := NewDirectStore(auth.User, s.conn, s.api, s.log)
	groups := NewGroupStore(s.conn, s.api, s.log)
	s.conn.Registry().Register(wire.InboxTopic(auth.User.ID), direct)

	s.mu.Lock()
	s.user = auth.User
	s.direct = direct
	s.groups = groups
	s.state = SessionLive
	s.mu.Unlock()

	s.log.Info().Int64("user_id", auth.User.ID).Msg("session live")
	s.refresh(ctx)
	return nil
}

// refresh pulls the conversation summaries after entering Live. Failures
// are logged, not fatal: the realtime channel is already up and a failed
// fetch keeps the previously cached value.
func (s *Session) refresh(ctx context.Context) {
	chatList, chatErr := s.api.ChatList(ctx)
	if chatErr != nil {
		s.log.Warn().Err(chatErr).Msg("chat list refresh failed")
	}
	friends, friendsErr := s.api.Friends(ctx)
	if friendsErr != nil {
		s.log.Warn().Err(friendsErr).Msg("friends refresh failed")
	}
	groupList, groupsErr := s.api.Groups(ctx)
	if groupsErr != nil {
		s.log.Warn().Err(groupsErr).Msg("groups refresh failed")
	}

	s.mu.Lock()
	if s.state == SessionLive {
		if chatErr == nil {
			s.chatList = chatList
		}
		if friendsErr == nil {
			s.friends = friends
		}
		if groupsErr == nil {
			s.groupList = groupList
		}
	}
	s.mu.Unlock()
}

// Logout disconnects the realtime channel and discards every store, the
// tracked subscriptions, and the cached summaries. Idempotent.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.state == SessionLoggedOut {
		s.mu.Unlock()
		return
	}
	user := s.user
	direct := s.direct
	groups := s.groups
	open := make([]int64, 0, len(s.openGroups))
	for id := range s.openGroups {
		open = append(open, id)
	}
	s.state = SessionLoggedOut
	s.user = User{}
	s.direct = nil
	s.groups = nil
	s.openGroups = make(map[int64]struct{})
	s.chatList = nil
	s.friends = nil
	s.groupList = nil
	s.mu.Unlock()

	reg := s.conn.Registry()
	if direct != nil {
		reg.Unregister(wire.InboxTopic(user.ID), direct)
		direct.Reset()
	}
	if groups != nil {
		for _, id := range open {
			reg.Unregister(wire.GroupTopic(id), groups)
		}
		groups.Reset()
	}

	s.conn.Disconnect() // also empties the subscription tracker
	s.api.SetToken("")
	s.log.Info().Msg("logged out")
}

// OpenChat loads the direct history with peerID and marks the conversation
// read, the sequence expected on entering a conversation view.
func (s *Session) OpenChat(ctx context.Context, peerID int64) error {
	direct := s.Direct()
	if direct == nil {
		return ErrNotLoggedIn
	}
	if err := direct.LoadHistory(ctx, peerID); err != nil {
		return err
	}
	return direct.MarkRead(ctx, peerID)
}

// OpenGroup subscribes to a group channel and loads its history. The
// subscription survives reconnects until CloseGroup, LeaveGroup or logout.
func (s *Session) OpenGroup(ctx context.Context, groupID int64) error {
	s.mu.Lock()
	if s.state != SessionLive {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	groups := s.groups
	_, already := s.openGroups[groupID]
	s.openGroups[groupID] = struct{}{}
	s.mu.Unlock()

	if !already {
		s.conn.Registry().Register(wire.GroupTopic(groupID), groups)
		s.conn.SubscribeGroup(groupID)
	}
	return groups.LoadHistory(ctx, groupID)
}

// CloseGroup closes the channel subscription without leaving the group.
// Idempotent; the log is kept until LeaveGroup or logout.
func (s *Session) CloseGroup(groupID int64) {
	s.mu.Lock()
	groups := s.groups
	_, open := s.openGroups[groupID]
	delete(s.openGroups, groupID)
	s.mu.Unlock()

	if !open {
		return
	}
	s.conn.UnsubscribeGroup(groupID)
	s.conn.Registry().Unregister(wire.GroupTopic(groupID), groups)
}

// LeaveGroup leaves the group via REST, closes its channel subscription,
// and drops the local log.
func (s *Session) LeaveGroup(ctx context.Context, groupID int64) error {
	s.mu.Lock()
	if s.state != SessionLive {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	groups := s.groups
	s.mu.Unlock()

	if err := s.api.LeaveGroup(ctx, groupID); err != nil {
		return err
	}
	s.CloseGroup(groupID)
	groups.Drop(groupID)

	s.mu.Lock()
	kept := s.groupList[:0]
	for _, g := range s.groupList {
		if g.ID != groupID {
			kept = append(kept, g)
		}
	}
	s.groupList = kept
	s.mu.Unlock()
	return nil
}

// ChatList returns the cached conversation summaries from the last refresh.
func (s *Session) ChatList() []ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatSummary, len(s.chatList))
	copy(out, s.chatList)
	return out
}

// FriendList returns the cached contact list from the last refresh.
func (s *Session) FriendList() []Friend {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Friend, len(s.friends))
	copy(out, s.friends)
	return out
}

// GroupList returns the cached group list from the last refresh.
func (s *Session) GroupList() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Group, len(s.groupList))
	copy(out, s.groupList)
	return out
}

// Refresh re-pulls chat list, friends, and groups while live.
func (s *Session) Refresh(ctx context.Context) error {
	if s.State() != SessionLive {
		return ErrNotLoggedIn
	}
	s.refresh(ctx)
	return nil
}
