package parley

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ParleyChat/parley-go-sdk/wire"
)

// Publisher is the slice of the transport the conversation stores need.
// *Conn implements it.
type Publisher interface {
	Publish(topic string, body any) error
}

// DirectAPI is the REST surface the direct store consumes. *APIClient
// implements it.
type DirectAPI interface {
	ChatHistory(ctx context.Context, peerID int64) ([]Message, error)
	MarkRead(ctx context.Context, peerID int64) error
}

// DirectStore holds the per-peer ordered logs of direct messages for one
// session. It registers on the personal inbox topic and applies inbound
// frames as they arrive; the UI reads snapshots.
type DirectStore struct {
	self User
	pub  Publisher
	api  DirectAPI
	log  zerolog.Logger

	mu   sync.Mutex
	logs map[int64][]Message
}

// NewDirectStore creates an empty store for the authenticated user.
func NewDirectStore(self User, pub Publisher, api DirectAPI, log zerolog.Logger) *DirectStore {
	return &DirectStore{
		self: self,
		pub:  pub,
		api:  api,
		log:  log.With().Str("component", "direct").Logger(),
		logs: make(map[int64][]Message),
	}
}

// HandleFrame implements Handler for the personal inbox topic.
func (s *DirectStore) HandleFrame(topic string, body json.RawMessage) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		s.log.Debug().Err(err).Str("topic", topic).Msg("bad direct message frame")
		return
	}
	s.ApplyIncoming(m)
}

// ApplyIncoming appends m to the log of its sender. Direct delivery is
// at-most-once, so no identifier dedup happens here; the group store dedups
// because fan-out can redeliver.
func (s *DirectStore) ApplyIncoming(m Message) {
	s.mu.Lock()
	s.logs[m.SenderID] = append(s.logs[m.SenderID], m)
	s.mu.Unlock()
}

// Send publishes an outbound frame for receiverID and appends an optimistic
// local echo with a wall-clock identifier. The echo is final: it is never
// reconciled with a server copy. When the connection is down the publish
// fails and the log is left untouched.
func (s *DirectStore) Send(receiverID int64, content, messageType string) (Message, error) {
	if messageType == "" {
		messageType = MessageText
	}

	err := s.pub.Publish(wire.DirectSendTopic(receiverID), wire.DirectSend{
		ReceiverID:  receiverID,
		Content:     content,
		MessageType: messageType,
	})
	if err != nil {
		return Message{}, err
	}

	now := time.Now()
	m := Message{
		ID:             now.UnixMilli(),
		SenderID:       s.self.ID,
		ReceiverID:     receiverID,
		SenderUsername: s.self.Username,
		Content:        content,
		MessageType:    messageType,
		CreatedAt:      now,
	}
	s.mu.Lock()
	s.logs[receiverID] = append(s.logs[receiverID], m)
	s.mu.Unlock()
	return m, nil
}

// LoadHistory fetches the authoritative log for peerID and replaces the
// local one wholesale. Idempotent.
func (s *DirectStore) LoadHistory(ctx context.Context, peerID int64) error {
	history, err := s.api.ChatHistory(ctx, peerID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.logs[peerID] = history
	s.mu.Unlock()
	return nil
}

// MarkRead flips every unread entry from peerID to read, on the server
// first and then locally. The flag only ever transitions false to true; a
// failed server call leaves the local log unchanged.
func (s *DirectStore) MarkRead(ctx context.Context, peerID int64) error {
	if err := s.api.MarkRead(ctx, peerID); err != nil {
		return err
	}
	s.mu.Lock()
	log := s.logs[peerID]
	for i := range log {
		if log[i].SenderID == peerID {
			log[i].Read = true
		}
	}
	s.mu.Unlock()
	return nil
}

// Messages returns a snapshot of the log for peerID, oldest first.
func (s *DirectStore) Messages(peerID int64) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[peerID]
	out := make([]Message, len(log))
	copy(out, log)
	return out
}

// UnreadCount counts unread entries sent by peerID. Own outgoing messages
// never count. Recomputed from the log on each call.
func (s *DirectStore) UnreadCount(peerID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.logs[peerID] {
		if m.SenderID == peerID && !m.Read {
			n++
		}
	}
	return n
}

// Reset drops every log. Called on session teardown.
func (s *DirectStore) Reset() {
	s.mu.Lock()
	clear(s.logs)
	s.mu.Unlock()
}
