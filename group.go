package parley

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ParleyChat/parley-go-sdk/wire"
)

// GroupAPI is the REST surface the group store consumes. *APIClient
// implements it.
type GroupAPI interface {
	GroupMessages(ctx context.Context, groupID int64) ([]GroupMessage, error)
}

// GroupStore holds the per-group ordered logs for one session. Unlike the
// direct store it dedups by message identifier, because group fan-out can
// legitimately redeliver a broadcast (subscription replay after reconnect,
// multi-path delivery).
type GroupStore struct {
	pub Publisher
	api GroupAPI
	log zerolog.Logger

	mu   sync.Mutex
	logs map[int64][]GroupMessage
	seen map[int64]map[int64]struct{} // group id -> message ids present in its log
}

// NewGroupStore creates an empty store.
func NewGroupStore(pub Publisher, api GroupAPI, log zerolog.Logger) *GroupStore {
	return &GroupStore{
		pub:  pub,
		api:  api,
		log:  log.With().Str("component", "group").Logger(),
		logs: make(map[int64][]GroupMessage),
		seen: make(map[int64]map[int64]struct{}),
	}
}

// HandleFrame implements Handler for group topics.
func (s *GroupStore) HandleFrame(topic string, body json.RawMessage) {
	var m GroupMessage
	if err := json.Unmarshal(body, &m); err != nil {
		s.log.Debug().Err(err).Str("topic", topic).Msg("bad group message frame")
		return
	}
	s.ApplyIncoming(m)
}

// ApplyIncoming appends m to its group log unless an entry with the same
// identifier is already present. The log stays append-only but
// duplicate-free; the first-arrival position wins. Returns false when m was
// discarded as a duplicate.
func (s *GroupStore) ApplyIncoming(m GroupMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.seen[m.GroupID]
	if ids == nil {
		ids = make(map[int64]struct{})
		s.seen[m.GroupID] = ids
	}
	if _, dup := ids[m.ID]; dup {
		return false
	}
	ids[m.ID] = struct{}{}
	s.logs[m.GroupID] = append(s.logs[m.GroupID], m)
	return true
}

// Send publishes an outbound frame on the group's channel. No optimistic
// echo: the sender's own view is populated by the server broadcast coming
// back through ApplyIncoming, which keeps the identifier dedup
// authoritative for every entry.
func (s *GroupStore) Send(groupID int64, content, messageType string) error {
	if messageType == "" {
		messageType = MessageText
	}
	return s.pub.Publish(wire.GroupTopic(groupID), wire.GroupSend{
		Content:     content,
		MessageType: messageType,
	})
}

// LoadHistory fetches the authoritative log for groupID and replaces the
// local one wholesale, enforcing the identifier invariant on the fetched
// data as well.
func (s *GroupStore) LoadHistory(ctx context.Context, groupID int64) error {
	history, err := s.api.GroupMessages(ctx, groupID)
	if err != nil {
		return err
	}

	ids := make(map[int64]struct{}, len(history))
	log := make([]GroupMessage, 0, len(history))
	for _, m := range history {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		log = append(log, m)
	}

	s.mu.Lock()
	s.logs[groupID] = log
	s.seen[groupID] = ids
	s.mu.Unlock()
	return nil
}

// Messages returns a snapshot of the log for groupID, oldest first.
func (s *GroupStore) Messages(groupID int64) []GroupMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[groupID]
	out := make([]GroupMessage, len(log))
	copy(out, log)
	return out
}

// Drop discards the log for groupID. Called when the group is left.
func (s *GroupStore) Drop(groupID int64) {
	s.mu.Lock()
	delete(s.logs, groupID)
	delete(s.seen, groupID)
	s.mu.Unlock()
}

// Reset drops every log. Called on session teardown.
func (s *GroupStore) Reset() {
	s.mu.Lock()
	clear(s.logs)
	clear(s.seen)
	s.mu.Unlock()
}
