package domain

import (
	"encoding/json"
	"time"
)

// ChatKind tags the chat variant.
type ChatKind string

const (
	ChatDirect ChatKind = "direct"
	ChatGroup  ChatKind = "group"
)

const (
	// PreviewChatCreated is the summary preview of a chat without messages.
	PreviewChatCreated = "Chat created"
	// PreviewAttachment is the summary preview of an attachment-only message.
	PreviewAttachment = "[attachment]"
)

// Identity is a registered account. HandleVersion counts handle changes;
// credential tokens carry the version they were issued under.
type Identity struct {
	ID                string          `json:"id"`
	Handle            string          `json:"username"`
	DisplayName       string          `json:"name"`
	StatusText        string          `json:"status"`
	AvatarRef         string          `json:"avatar,omitempty"`
	Preferences       json.RawMessage `json:"-"`
	AllowGroupInvites bool            `json:"allowGroupInvites"`
	PasswordHash      string          `json:"-"`
	HandleVersion     int             `json:"-"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// DirectChat holds the two participants of a direct chat in canonical order.
type DirectChat struct {
	MemberA string `json:"memberA"`
	MemberB string `json:"memberB"`
}

// NewDirectChat orders the pair so (a, b) and (b, a) map to the same chat.
func NewDirectChat(a, b string) DirectChat {
	if b < a {
		a, b = b, a
	}
	return DirectChat{MemberA: a, MemberB: b}
}

// Has reports whether userID is one of the two members.
func (d DirectChat) Has(userID string) bool {
	return d.MemberA == userID || d.MemberB == userID
}

// Peer returns the member that is not userID.
func (d DirectChat) Peer(userID string) string {
	if d.MemberA == userID {
		return d.MemberB
	}
	return d.MemberA
}

// GroupChat holds group metadata. Members live in the membership table.
type GroupChat struct {
	Name      string `json:"name"`
	OwnerID   string `json:"ownerId"`
	AvatarRef string `json:"avatar,omitempty"`
}

// Chat is either a direct or a group chat, selected by Kind.
type Chat struct {
	ID                 string      `json:"id"`
	Kind               ChatKind    `json:"kind"`
	Direct             *DirectChat `json:"direct,omitempty"`
	Group              *GroupChat  `json:"group,omitempty"`
	LastMessagePreview string      `json:"lastMessage"`
	LastMessageAt      time.Time   `json:"lastMessageAt"`
	CreatedAt          time.Time   `json:"createdAt"`
}

// Membership links a user to a group chat.
type Membership struct {
	GroupID    string    `json:"groupId"`
	UserID     string    `json:"userId"`
	JoinedAt   time.Time `json:"joinedAt"`
	LastReadAt time.Time `json:"lastReadAt"`
}

// Message is one entry of a chat's message log. Fields are camelCase on the
// wire except sender_id and time, which the web client reads by those names.
type Message struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chatId"`
	SenderID      string    `json:"sender_id"`
	ReceiverID    string    `json:"receiverId,omitempty"`
	Text          string    `json:"text"`
	AttachmentRef string    `json:"attachment,omitempty"`
	SentAt        time.Time `json:"time"`
	Read          bool      `json:"read"`
}

// Preview is the summary text this message contributes to its chat.
func (m Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	return PreviewAttachment
}

// ChatEntry is a chat as seen by one participant, before projection.
type ChatEntry struct {
	Chat        Chat
	Peer        *Identity
	MemberCount int
	Unread      int
}

// ChatSummary is one row of a user's chat list. Fields are camelCase on the
// wire except is_group, which the web client reads by that name.
type ChatSummary struct {
	ID            string    `json:"id"`
	Kind          ChatKind  `json:"kind"`
	IsGroup       bool      `json:"is_group"`
	Name          string    `json:"name"`
	Avatar        string    `json:"avatar,omitempty"`
	Status        string    `json:"status"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	Unread        int       `json:"unread"`
}
