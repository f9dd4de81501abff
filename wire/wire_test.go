package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "messages/42", InboxTopic(42))
	assert.Equal(t, "group/7", GroupTopic(7))
	assert.Equal(t, "chat/99", DirectSendTopic(99))
}

func TestParseGroupTopic(t *testing.T) {
	t.Run("round trips", func(t *testing.T) {
		id, ok := ParseGroupTopic(GroupTopic(12345))
		assert.True(t, ok)
		assert.Equal(t, int64(12345), id)
	})

	t.Run("rejects other topics", func(t *testing.T) {
		_, ok := ParseGroupTopic("messages/42")
		assert.False(t, ok)
	})

	t.Run("rejects non-numeric id", func(t *testing.T) {
		_, ok := ParseGroupTopic("group/abc")
		assert.False(t, ok)
	})
}
