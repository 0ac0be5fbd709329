package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"messenger/pkg/domain"
)

// MemoryStore implements Store in process memory. It is used by tests and
// when no database is configured; every operation serializes on one mutex.
type MemoryStore struct {
	mu          sync.Mutex
	identities  map[string]domain.Identity
	handles     map[string]string
	chats       map[string]domain.Chat
	directPairs map[domain.DirectChat]string
	memberships map[string]map[string]domain.Membership
	messages    map[string][]domain.Message
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities:  map[string]domain.Identity{},
		handles:     map[string]string{},
		chats:       map[string]domain.Chat{},
		directPairs: map[domain.DirectChat]string{},
		memberships: map[string]map[string]domain.Membership{},
		messages:    map[string][]domain.Message{},
	}
}

func (s *MemoryStore) CreateIdentity(_ context.Context, identity domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.ID]; ok {
		return ErrConflict
	}
	if _, ok := s.handles[identity.Handle]; ok {
		return ErrConflict
	}
	s.identities[identity.ID] = cloneIdentity(identity)
	s.handles[identity.Handle] = identity.ID
	return nil
}

func (s *MemoryStore) UpdateIdentity(_ context.Context, identity domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.identities[identity.ID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := s.handles[identity.Handle]; taken && owner != identity.ID {
		return ErrConflict
	}
	delete(s.handles, current.Handle)
	s.handles[identity.Handle] = identity.ID
	current.Handle = identity.Handle
	current.DisplayName = identity.DisplayName
	current.StatusText = identity.StatusText
	current.AvatarRef = identity.AvatarRef
	current.AllowGroupInvites = identity.AllowGroupInvites
	current.HandleVersion = identity.HandleVersion
	current.UpdatedAt = identity.UpdatedAt
	s.identities[identity.ID] = current
	return nil
}

func (s *MemoryStore) GetIdentityByID(_ context.Context, id string) (domain.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	return cloneIdentity(identity), ok, nil
}

func (s *MemoryStore) GetIdentityByHandle(_ context.Context, handle string) (domain.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.handles[handle]
	if !ok {
		return domain.Identity{}, false, nil
	}
	return cloneIdentity(s.identities[id]), true, nil
}

func (s *MemoryStore) GetIdentities(_ context.Context, ids []string) ([]domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.Identity, 0, len(ids))
	for _, id := range ids {
		if identity, ok := s.identities[id]; ok {
			res = append(res, cloneIdentity(identity))
		}
	}
	return res, nil
}

func (s *MemoryStore) SearchIdentities(_ context.Context, query, excludeID string, limit int) ([]domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	query = strings.ToLower(query)
	res := []domain.Identity{}
	for _, identity := range s.identities {
		if identity.ID == excludeID {
			continue
		}
		if strings.HasPrefix(identity.Handle, query) || strings.HasPrefix(strings.ToLower(identity.DisplayName), query) {
			res = append(res, cloneIdentity(identity))
		}
	}
	slices.SortFunc(res, func(a, b domain.Identity) int { return strings.Compare(a.Handle, b.Handle) })
	if limit >= 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *MemoryStore) GetPreferences(_ context.Context, userID string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[userID]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(identity.Preferences), true, nil
}

func (s *MemoryStore) PutPreferences(_ context.Context, userID string, blob json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[userID]
	if !ok {
		return ErrNotFound
	}
	identity.Preferences = slices.Clone(blob)
	s.identities[userID] = identity
	return nil
}

func (s *MemoryStore) FindDirectChat(_ context.Context, userA, userB string) (domain.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.directPairs[domain.NewDirectChat(userA, userB)]
	if !ok {
		return domain.Chat{}, false, nil
	}
	return cloneChat(s.chats[id]), true, nil
}

func (s *MemoryStore) CreateDirectChat(_ context.Context, chat domain.Chat) error {
	if chat.Direct == nil {
		return fmt.Errorf("direct chat %s has no members", chat.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pair := domain.NewDirectChat(chat.Direct.MemberA, chat.Direct.MemberB)
	if _, ok := s.directPairs[pair]; ok {
		return ErrConflict
	}
	if _, ok := s.chats[chat.ID]; ok {
		return ErrConflict
	}
	chat.Direct = &pair
	s.chats[chat.ID] = cloneChat(chat)
	s.directPairs[pair] = chat.ID
	return nil
}

func (s *MemoryStore) CreateGroupChat(_ context.Context, chat domain.Chat, members []domain.Membership) error {
	if chat.Group == nil {
		return fmt.Errorf("group chat %s has no metadata", chat.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chat.ID]; ok {
		return ErrConflict
	}
	for _, m := range members {
		if _, ok := s.identities[m.UserID]; !ok {
			return fmt.Errorf("membership references unknown user %s", m.UserID)
		}
	}
	s.chats[chat.ID] = cloneChat(chat)
	rows := make(map[string]domain.Membership, len(members))
	for _, m := range members {
		if _, dup := rows[m.UserID]; dup {
			continue
		}
		m.GroupID = chat.ID
		rows[m.UserID] = m
	}
	s.memberships[chat.ID] = rows
	return nil
}

func (s *MemoryStore) GetChat(_ context.Context, id string) (domain.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	return cloneChat(chat), ok, nil
}

func (s *MemoryStore) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.memberships[groupID][userID]
	return ok, nil
}

func (s *MemoryStore) ListChatEntries(_ context.Context, userID string) ([]domain.ChatEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := []domain.ChatEntry{}
	for _, chat := range s.chats {
		switch chat.Kind {
		case domain.ChatDirect:
			if !chat.Direct.Has(userID) {
				continue
			}
			entry := domain.ChatEntry{Chat: cloneChat(chat), MemberCount: 2}
			if peer, ok := s.identities[chat.Direct.Peer(userID)]; ok {
				peer = cloneIdentity(peer)
				entry.Peer = &peer
			}
			for _, msg := range s.messages[chat.ID] {
				if msg.ReceiverID == userID && !msg.Read {
					entry.Unread++
				}
			}
			entries = append(entries, entry)
		case domain.ChatGroup:
			membership, ok := s.memberships[chat.ID][userID]
			if !ok {
				continue
			}
			entry := domain.ChatEntry{Chat: cloneChat(chat), MemberCount: len(s.memberships[chat.ID])}
			for _, msg := range s.messages[chat.ID] {
				if msg.SenderID != userID && msg.SentAt.After(membership.LastReadAt) {
					entry.Unread++
				}
			}
			entries = append(entries, entry)
		}
	}
	sortChatEntries(entries)
	return entries, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[msg.ChatID]
	if !ok {
		return domain.Message{}, ErrNotFound
	}
	if !msg.SentAt.After(chat.LastMessageAt) {
		msg.SentAt = chat.LastMessageAt.Add(time.Microsecond)
	}
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	chat.LastMessagePreview = msg.Preview()
	chat.LastMessageAt = msg.SentAt
	s.chats[msg.ChatID] = chat
	return msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, chatID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := slices.Clone(s.messages[chatID])
	if msgs == nil {
		msgs = []domain.Message{}
	}
	slices.SortStableFunc(msgs, func(a, b domain.Message) int {
		if c := a.SentAt.Compare(b.SentAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return msgs, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, chatID, receiverID string, messageIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(messageIDs) == 0 {
		return 0, nil
	}
	wanted := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}
	changed := 0
	msgs := s.messages[chatID]
	for i := range msgs {
		if _, ok := wanted[msgs[i].ID]; !ok {
			continue
		}
		if msgs[i].ReceiverID != receiverID || msgs[i].Read {
			continue
		}
		msgs[i].Read = true
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) AdvanceReadCursor(_ context.Context, groupID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	membership, ok := s.memberships[groupID][userID]
	if !ok {
		return nil
	}
	if membership.LastReadAt.Before(at) {
		membership.LastReadAt = at
		s.memberships[groupID][userID] = membership
	}
	return nil
}

func cloneIdentity(identity domain.Identity) domain.Identity {
	identity.Preferences = slices.Clone(identity.Preferences)
	return identity
}

func cloneChat(chat domain.Chat) domain.Chat {
	if chat.Direct != nil {
		direct := *chat.Direct
		chat.Direct = &direct
	}
	if chat.Group != nil {
		group := *chat.Group
		chat.Group = &group
	}
	return chat
}
