package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"messenger/pkg/domain"
)

var (
	// ErrNotFound indicates the referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("unique constraint violated")
)

// Store defines persistence operations for identities, chats, memberships and messages.
type Store interface {
	// identities
	CreateIdentity(ctx context.Context, identity domain.Identity) error
	UpdateIdentity(ctx context.Context, identity domain.Identity) error
	GetIdentityByID(ctx context.Context, id string) (domain.Identity, bool, error)
	GetIdentityByHandle(ctx context.Context, handle string) (domain.Identity, bool, error)
	GetIdentities(ctx context.Context, ids []string) ([]domain.Identity, error)
	SearchIdentities(ctx context.Context, query, excludeID string, limit int) ([]domain.Identity, error)

	// preferences
	GetPreferences(ctx context.Context, userID string) (json.RawMessage, bool, error)
	PutPreferences(ctx context.Context, userID string, blob json.RawMessage) error

	// chats
	FindDirectChat(ctx context.Context, userA, userB string) (domain.Chat, bool, error)
	CreateDirectChat(ctx context.Context, chat domain.Chat) error
	CreateGroupChat(ctx context.Context, chat domain.Chat, members []domain.Membership) error
	GetChat(ctx context.Context, id string) (domain.Chat, bool, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	ListChatEntries(ctx context.Context, userID string) ([]domain.ChatEntry, error)

	// messages
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]domain.Message, error)
	MarkRead(ctx context.Context, chatID, receiverID string, messageIDs []string) (int, error)
	AdvanceReadCursor(ctx context.Context, groupID, userID string, at time.Time) error
}

// SessionStore issues and resolves credential tokens.
type SessionStore interface {
	NewSession(userID, handle string, handleVersion int) (string, error)
	ParseSession(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// Session is the verified content of a credential token.
type Session struct {
	UserID        string
	Handle        string
	HandleVersion int
	IssuedAt      time.Time
}

// sortChatEntries orders entries by most recent activity first.
func sortChatEntries(entries []domain.ChatEntry) {
	slices.SortFunc(entries, func(a, b domain.ChatEntry) int {
		if c := b.Chat.LastMessageAt.Compare(a.Chat.LastMessageAt); c != 0 {
			return c
		}
		switch {
		case a.Chat.ID > b.Chat.ID:
			return -1
		case a.Chat.ID < b.Chat.ID:
			return 1
		}
		return 0
	})
}
