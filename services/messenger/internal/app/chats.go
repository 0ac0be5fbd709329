package app

import (
	"context"
	"errors"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"messenger/internal/util"
	"messenger/pkg/domain"
	"messenger/pkg/store"
)

const maxGroupNameRunes = 64

// FindOrCreateDirect returns the direct chat between requester and other,
// creating it when missing. created reports whether this call created it.
func (a *App) FindOrCreateDirect(ctx context.Context, requesterID, otherID string) (domain.Chat, bool, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return domain.Chat{}, false, validationf("userId is required")
	}
	if requesterID == otherID {
		return domain.Chat{}, false, ErrSelfChat
	}
	if _, err := a.GetIdentity(ctx, otherID); err != nil {
		return domain.Chat{}, false, err
	}

	chat, ok, err := a.store.FindDirectChat(ctx, requesterID, otherID)
	if err != nil {
		return domain.Chat{}, false, storageErr("find direct chat", err)
	}
	if ok {
		return chat, false, nil
	}

	now := a.timestamp()
	pair := domain.NewDirectChat(requesterID, otherID)
	chat = domain.Chat{
		ID:                 util.NewOrderedID(),
		Kind:               domain.ChatDirect,
		Direct:             &pair,
		LastMessagePreview: domain.PreviewChatCreated,
		LastMessageAt:      now,
		CreatedAt:          now,
	}
	err = a.store.CreateDirectChat(ctx, chat)
	if err == nil {
		return chat, true, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return domain.Chat{}, false, storageErr("create direct chat", err)
	}

	// Lost the race against the other participant: return the winner.
	winner, ok, err := a.store.FindDirectChat(ctx, requesterID, otherID)
	if err != nil {
		return domain.Chat{}, false, storageErr("find direct chat", err)
	}
	if !ok {
		return domain.Chat{}, false, storageErr("find direct chat", errors.New("conflicting chat vanished"))
	}
	util.LoggerFromContext(ctx).Debug("direct chat race resolved", "chat_id", winner.ID)
	return winner, false, nil
}

// CreateGroup creates a group owned by ownerID with the given members. The
// owner is always a member. Nothing is written when any member refuses invites.
func (a *App) CreateGroup(ctx context.Context, ownerID, name string, memberIDs []string, avatarRef string) (domain.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Chat{}, validationf("group name is required")
	}
	if utf8.RuneCountInString(name) > maxGroupNameRunes {
		return domain.Chat{}, validationf("group name must be at most %d characters", maxGroupNameRunes)
	}
	avatarRef = strings.TrimSpace(avatarRef)
	if err := a.validateRef("avatar", avatarRef); err != nil {
		return domain.Chat{}, err
	}
	if len(memberIDs) == 0 {
		return domain.Chat{}, validationf("at least one member is required")
	}
	invited := lo.Without(lo.Uniq(lo.Map(memberIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})), "", ownerID)
	if len(invited) == 0 {
		return domain.Chat{}, validationf("at least one member other than yourself is required")
	}

	identities, err := a.store.GetIdentities(ctx, invited)
	if err != nil {
		return domain.Chat{}, storageErr("fetch members", err)
	}
	if len(identities) != len(invited) {
		return domain.Chat{}, ErrUserNotFound
	}
	denied := lo.FilterMap(identities, func(identity domain.Identity, _ int) (string, bool) {
		return identity.Handle, !identity.AllowGroupInvites
	})
	if len(denied) > 0 {
		slices.Sort(denied)
		return domain.Chat{}, &InviteDeniedError{Handles: denied}
	}

	now := a.timestamp()
	chat := domain.Chat{
		ID:                 util.NewOrderedID(),
		Kind:               domain.ChatGroup,
		Group:              &domain.GroupChat{Name: name, OwnerID: ownerID, AvatarRef: avatarRef},
		LastMessagePreview: domain.PreviewChatCreated,
		LastMessageAt:      now,
		CreatedAt:          now,
	}
	members := make([]domain.Membership, 0, len(invited)+1)
	for _, userID := range append([]string{ownerID}, invited...) {
		members = append(members, domain.Membership{
			GroupID:    chat.ID,
			UserID:     userID,
			JoinedAt:   now,
			LastReadAt: now,
		})
	}
	if err := a.store.CreateGroupChat(ctx, chat, members); err != nil {
		return domain.Chat{}, storageErr("create group chat", err)
	}
	util.LoggerFromContext(ctx).Info("group created", "chat_id", chat.ID, "members", len(members))
	return chat, nil
}

// ListChatsFor returns the chat list of userID, most recently active first.
func (a *App) ListChatsFor(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	entries, err := a.store.ListChatEntries(ctx, userID)
	if err != nil {
		return nil, storageErr("list chats", err)
	}
	return ProjectSummaries(entries), nil
}

// participantChat loads chatID and checks that userID takes part in it.
// Missing chats and chats the user cannot see are reported the same way.
func (a *App) participantChat(ctx context.Context, chatID, userID string) (domain.Chat, error) {
	chat, ok, err := a.store.GetChat(ctx, chatID)
	if err != nil {
		return domain.Chat{}, storageErr("fetch chat", err)
	}
	if !ok {
		return domain.Chat{}, ErrChatNotFound
	}
	switch chat.Kind {
	case domain.ChatDirect:
		if chat.Direct != nil && chat.Direct.Has(userID) {
			return chat, nil
		}
	case domain.ChatGroup:
		member, err := a.store.IsMember(ctx, chat.ID, userID)
		if err != nil {
			return domain.Chat{}, storageErr("check membership", err)
		}
		if member {
			return chat, nil
		}
	}
	return domain.Chat{}, ErrChatNotFound
}
