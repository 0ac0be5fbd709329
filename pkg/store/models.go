package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type IdentityModel struct {
	ID                string `gorm:"primaryKey"`
	Handle            string `gorm:"uniqueIndex;not null"`
	DisplayName       string `gorm:"not null"`
	StatusText        string
	AvatarRef         string
	Preferences       datatypes.JSON
	AllowGroupInvites bool      `gorm:"not null"`
	PasswordHash      string    `gorm:"not null"`
	HandleVersion     int       `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

type ChatModel struct {
	ID                 string    `gorm:"primaryKey"`
	Kind               string    `gorm:"not null"`
	LastMessagePreview string    `gorm:"not null"`
	LastMessageAt      time.Time `gorm:"not null;index"`
	CreatedAt          time.Time `gorm:"not null"`
}

// DirectChatModel stores the member pair in canonical order; the unique
// index is what keeps one direct chat per unordered pair.
type DirectChatModel struct {
	ChatID  string `gorm:"primaryKey"`
	MemberA string `gorm:"not null;uniqueIndex:idx_direct_pair,priority:1"`
	MemberB string `gorm:"not null;uniqueIndex:idx_direct_pair,priority:2;index"`
}

type GroupChatModel struct {
	ChatID    string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	OwnerID   string `gorm:"not null;index"`
	AvatarRef string
}

type MembershipModel struct {
	GroupID    string    `gorm:"primaryKey"`
	UserID     string    `gorm:"primaryKey;index"`
	JoinedAt   time.Time `gorm:"not null"`
	LastReadAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID            string  `gorm:"primaryKey"`
	ChatID        string  `gorm:"not null;index:idx_message_chat_sent,priority:1"`
	SenderID      string  `gorm:"not null"`
	ReceiverID    *string `gorm:"index"`
	Text          *string `gorm:"type:text"`
	AttachmentRef *string
	SentAt        time.Time `gorm:"not null;index:idx_message_chat_sent,priority:2"`
	Read          bool      `gorm:"column:is_read;not null"`
}
