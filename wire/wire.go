// Package wire defines the JSON payload types and topic scheme for the
// Parley realtime binary protocol. Both the gateway and Go SDK import
// these — single source of truth.
package wire

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Topic builders. A topic is an opaque string identifying a logical channel;
// the gateway routes deliveries by exact topic match.

// InboxTopic is the personal inbox channel of a user. Direct message
// deliveries for that user arrive here.
func InboxTopic(userID int64) string {
	return "messages/" + strconv.FormatInt(userID, 10)
}

// GroupTopic is the broadcast channel of a group. It doubles as the send
// target for group messages, which is why GroupSend carries no group id.
func GroupTopic(groupID int64) string {
	return "group/" + strconv.FormatInt(groupID, 10)
}

// DirectSendTopic is the send target for a direct message to a user.
func DirectSendTopic(receiverID int64) string {
	return "chat/" + strconv.FormatInt(receiverID, 10)
}

// ParseGroupTopic extracts the group id from a group topic.
func ParseGroupTopic(topic string) (int64, bool) {
	rest, ok := strings.CutPrefix(topic, "group/")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ConnectPayload is the payload of a CONNECT frame (client -> server).
// ClientID identifies the connection attempt, not the user.
type ConnectPayload struct {
	UserID   int64  `json:"userId"`
	Token    string `json:"token"`
	ClientID string `json:"clientId,omitempty"`
}

// AuthResultPayload is the payload of AUTH_OK / AUTH_FAIL (server -> client).
type AuthResultPayload struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// SubscribePayload is the payload of SUBSCRIBE / UNSUBSCRIBE frames
// (client -> server).
type SubscribePayload struct {
	Topic string `json:"topic"`
}

// Envelope is the payload of PUBLISH (client -> server) and DELIVERY
// (server -> client) frames. Body is the flat keyed document for the topic:
// DirectSend/GroupSend outbound, Message/GroupMessage inbound.
type Envelope struct {
	Topic string          `json:"topic"`
	Body  json.RawMessage `json:"body"`
}

// DirectSend is the outbound body published to a chat/{receiverId} target.
type DirectSend struct {
	ReceiverID  int64  `json:"receiverId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

// GroupSend is the outbound body published to a group/{groupId} target.
// The group id is encoded in the target topic, not the body.
type GroupSend struct {
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

// ClosePayload is the payload of a CLOSE frame (server -> client).
type ClosePayload struct {
	Reason string `json:"reason,omitempty"`
}
