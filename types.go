package parley

import "time"

// Message content types.
const (
	MessageText  = "TEXT"
	MessageImage = "IMAGE"
	MessageFile  = "FILE"
)

// --------------------------------------------------------------------------
// Auth & Users
// --------------------------------------------------------------------------

// User is an account on the Parley server.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthResponse is returned by POST /auth/login and POST /auth/register.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// LoginRequest is sent to POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is sent to POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest is sent to PUT /users/me. Zero-value fields are
// left unchanged by the server.
type UpdateProfileRequest struct {
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// --------------------------------------------------------------------------
// Friends
// --------------------------------------------------------------------------

// Friend is an accepted contact.
type Friend struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// FriendRequest is a pending incoming friend request.
type FriendRequest struct {
	ID        int64     `json:"id"`
	Sender    User      `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

// --------------------------------------------------------------------------
// Groups
// --------------------------------------------------------------------------

// Group describes a group chat the user belongs to.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     int64     `json:"ownerId"`
	MemberCount int       `json:"memberCount,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GroupMember describes a member of a group.
type GroupMember struct {
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Role      string    `json:"role,omitempty"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// CreateGroupRequest is sent to POST /groups.
type CreateGroupRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	MemberIDs   []int64 `json:"memberIds,omitempty"`
}

// --------------------------------------------------------------------------
// Messages
// --------------------------------------------------------------------------

// Message is one direct message. Immutable once created except for the read
// flag, which only ever transitions false to true.
type Message struct {
	ID               int64     `json:"id"`
	SenderID         int64     `json:"senderId"`
	ReceiverID       int64     `json:"receiverId"`
	SenderUsername   string    `json:"senderUsername,omitempty"`
	ReceiverUsername string    `json:"receiverUsername,omitempty"`
	Content          string    `json:"content"`
	MessageType      string    `json:"messageType"`
	Read             bool      `json:"isRead"`
	CreatedAt        time.Time `json:"createdAt"`
}

// GroupMessage is one message in a group channel. Immutable after creation;
// group reads are not modeled.
type GroupMessage struct {
	ID             int64     `json:"id"`
	SenderID       int64     `json:"senderId"`
	SenderUsername string    `json:"senderUsername,omitempty"`
	GroupID        int64     `json:"groupId"`
	Content        string    `json:"content"`
	MessageType    string    `json:"messageType"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ChatSummary is one row of the chat list: the peer plus the most recent
// message and the unread count, as computed by the server.
type ChatSummary struct {
	UserID        int64     `json:"userId"`
	Username      string    `json:"username"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}
