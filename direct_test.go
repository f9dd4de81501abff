package parley

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePub records published frames and can simulate an offline transport.
type fakePub struct {
	topics []string
	bodies []any
	err    error
}

func (p *fakePub) Publish(topic string, body any) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.bodies = append(p.bodies, body)
	return nil
}

type fakeDirectAPI struct {
	history     map[int64][]Message
	historyErr  error
	markReadErr error
	marked      []int64
}

func (a *fakeDirectAPI) ChatHistory(_ context.Context, peerID int64) ([]Message, error) {
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	return a.history[peerID], nil
}

func (a *fakeDirectAPI) MarkRead(_ context.Context, peerID int64) error {
	if a.markReadErr != nil {
		return a.markReadErr
	}
	a.marked = append(a.marked, peerID)
	return nil
}

func newDirectStore(pub *fakePub, api *fakeDirectAPI) *DirectStore {
	self := User{ID: 1, Username: "alice"}
	return NewDirectStore(self, pub, api, zerolog.Nop())
}

func TestDirectStoreSend(t *testing.T) {
	t.Run("publishes and echoes locally", func(t *testing.T) {
		pub := &fakePub{}
		s := newDirectStore(pub, &fakeDirectAPI{})

		before := time.Now().UnixMilli()
		m, err := s.Send(2, "hello", MessageText)
		after := time.Now().UnixMilli()
		require.NoError(t, err)

		require.Equal(t, []string{"chat/2"}, pub.topics)

		assert.Equal(t, int64(1), m.SenderID)
		assert.Equal(t, int64(2), m.ReceiverID)
		assert.Equal(t, "alice", m.SenderUsername)
		assert.Equal(t, "hello", m.Content)
		assert.GreaterOrEqual(t, m.ID, before)
		assert.LessOrEqual(t, m.ID, after)

		log := s.Messages(2)
		require.Len(t, log, 1)
		assert.Equal(t, m, log[0])
	})

	t.Run("offline publish leaves log untouched", func(t *testing.T) {
		pub := &fakePub{err: ErrNotConnected}
		s := newDirectStore(pub, &fakeDirectAPI{})

		_, err := s.Send(2, "hello", MessageText)
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Empty(t, s.Messages(2))
	})

	t.Run("empty type defaults to text", func(t *testing.T) {
		s := newDirectStore(&fakePub{}, &fakeDirectAPI{})
		m, err := s.Send(2, "hi", "")
		require.NoError(t, err)
		assert.Equal(t, MessageText, m.MessageType)
	})
}

func TestDirectStoreIncoming(t *testing.T) {
	t.Run("appends per sender in arrival order", func(t *testing.T) {
		s := newDirectStore(&fakePub{}, &fakeDirectAPI{})

		s.ApplyIncoming(Message{ID: 10, SenderID: 2, Content: "first"})
		s.ApplyIncoming(Message{ID: 11, SenderID: 3, Content: "other peer"})
		s.ApplyIncoming(Message{ID: 12, SenderID: 2, Content: "second"})

		log := s.Messages(2)
		require.Len(t, log, 2)
		assert.Equal(t, "first", log[0].Content)
		assert.Equal(t, "second", log[1].Content)
		assert.Len(t, s.Messages(3), 1)
	})

	t.Run("no identifier dedup", func(t *testing.T) {
		s := newDirectStore(&fakePub{}, &fakeDirectAPI{})

		s.ApplyIncoming(Message{ID: 10, SenderID: 2, Content: "once"})
		s.ApplyIncoming(Message{ID: 10, SenderID: 2, Content: "twice"})

		assert.Len(t, s.Messages(2), 2)
	})

	t.Run("frames with bad json are dropped", func(t *testing.T) {
		s := newDirectStore(&fakePub{}, &fakeDirectAPI{})
		s.HandleFrame("messages/1", []byte("not json"))
		assert.Empty(t, s.Messages(2))
	})

	t.Run("frames dispatch through the handler", func(t *testing.T) {
		s := newDirectStore(&fakePub{}, &fakeDirectAPI{})
		s.HandleFrame("messages/1", []byte(`{"id":5,"senderId":2,"content":"via frame"}`))
		log := s.Messages(2)
		require.Len(t, log, 1)
		assert.Equal(t, "via frame", log[0].Content)
	})
}

func TestDirectStoreHistory(t *testing.T) {
	api := &fakeDirectAPI{history: map[int64][]Message{
		2: {
			{ID: 1, SenderID: 2, Content: "old", Read: true},
			{ID: 2, SenderID: 1, Content: "mine", Read: true},
		},
	}}
	s := newDirectStore(&fakePub{}, api)

	// a stale local entry gets replaced wholesale
	s.ApplyIncoming(Message{ID: 99, SenderID: 2, Content: "stale"})

	require.NoError(t, s.LoadHistory(context.Background(), 2))
	log := s.Messages(2)
	require.Len(t, log, 2)
	assert.Equal(t, "old", log[0].Content)

	t.Run("fetch failure keeps the local log", func(t *testing.T) {
		api.historyErr = errors.New("boom")
		assert.Error(t, s.LoadHistory(context.Background(), 2))
		assert.Len(t, s.Messages(2), 2)
	})
}

func TestDirectStoreUnread(t *testing.T) {
	s := newDirectStore(&fakePub{}, &fakeDirectAPI{})
	s.ApplyIncoming(Message{ID: 1, SenderID: 2})
	s.ApplyIncoming(Message{ID: 2, SenderID: 2})
	s.ApplyIncoming(Message{ID: 3, SenderID: 2, Read: true})

	assert.Equal(t, 2, s.UnreadCount(2))
	assert.Equal(t, 0, s.UnreadCount(3))

	t.Run("own messages never count", func(t *testing.T) {
		if _, err := s.Send(2, "out", MessageText); err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, 2, s.UnreadCount(2))
	})

	t.Run("mark read zeroes the count", func(t *testing.T) {
		api := s.api.(*fakeDirectAPI)
		require.NoError(t, s.MarkRead(context.Background(), 2))
		assert.Equal(t, 0, s.UnreadCount(2))
		assert.Equal(t, []int64{2}, api.marked)
	})

	t.Run("server failure leaves flags alone", func(t *testing.T) {
		s := newDirectStore(&fakePub{}, &fakeDirectAPI{markReadErr: errors.New("503")})
		s.ApplyIncoming(Message{ID: 1, SenderID: 2})
		assert.Error(t, s.MarkRead(context.Background(), 2))
		assert.Equal(t, 1, s.UnreadCount(2))
	})
}

func TestDirectStoreReset(t *testing.T) {
	s := newDirectStore(&fakePub{}, &fakeDirectAPI{})
	s.ApplyIncoming(Message{ID: 1, SenderID: 2})
	s.ApplyIncoming(Message{ID: 2, SenderID: 3})
	s.Reset()
	assert.Empty(t, s.Messages(2))
	assert.Empty(t, s.Messages(3))
}
