package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"messenger/pkg/domain"
)

func seedIdentity(t *testing.T, s *MemoryStore, id, handle string) {
	t.Helper()
	if err := s.CreateIdentity(context.Background(), domain.Identity{ID: id, Handle: handle, DisplayName: handle}); err != nil {
		t.Fatalf("create identity %s: %v", id, err)
	}
}

func TestMemoryStoreHandleUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedIdentity(t, s, "u1", "alice")
	if err := s.CreateIdentity(ctx, domain.Identity{ID: "u2", Handle: "alice"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on duplicate handle, got %v", err)
	}
	seedIdentity(t, s, "u2", "bob")
	if err := s.UpdateIdentity(ctx, domain.Identity{ID: "u2", Handle: "alice"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on rename to taken handle, got %v", err)
	}
	if err := s.UpdateIdentity(ctx, domain.Identity{ID: "u2", Handle: "robert"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, ok, _ := s.GetIdentityByHandle(ctx, "bob"); ok {
		t.Fatalf("expected old handle to be released")
	}
	if got, ok, _ := s.GetIdentityByHandle(ctx, "robert"); !ok || got.ID != "u2" {
		t.Fatalf("expected new handle lookup, got %+v ok=%v", got, ok)
	}
}

func TestMemoryStoreDirectPairIsUnordered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	first := domain.Chat{ID: "c1", Kind: domain.ChatDirect, Direct: &domain.DirectChat{MemberA: "u2", MemberB: "u1"}, LastMessageAt: now}
	if err := s.CreateDirectChat(ctx, first); err != nil {
		t.Fatalf("create direct: %v", err)
	}
	second := domain.Chat{ID: "c2", Kind: domain.ChatDirect, Direct: &domain.DirectChat{MemberA: "u1", MemberB: "u2"}, LastMessageAt: now}
	if err := s.CreateDirectChat(ctx, second); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for reversed pair, got %v", err)
	}
	chat, ok, err := s.FindDirectChat(ctx, "u1", "u2")
	if err != nil || !ok || chat.ID != "c1" {
		t.Fatalf("expected c1, got %+v ok=%v err=%v", chat, ok, err)
	}
	if chat.Direct.MemberA != "u1" || chat.Direct.MemberB != "u2" {
		t.Fatalf("expected canonical order, got %+v", chat.Direct)
	}
}

func TestMemoryStoreAppendKeepsSentAtIncreasing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	created := time.Now().UTC().Truncate(time.Microsecond)
	chat := domain.Chat{ID: "c1", Kind: domain.ChatDirect, Direct: &domain.DirectChat{MemberA: "u1", MemberB: "u2"}, LastMessageAt: created}
	if err := s.CreateDirectChat(ctx, chat); err != nil {
		t.Fatalf("create direct: %v", err)
	}
	first, err := s.AppendMessage(ctx, domain.Message{ID: "m1", ChatID: "c1", SenderID: "u1", ReceiverID: "u2", Text: "hi", SentAt: created.Add(time.Second)})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	stale, err := s.AppendMessage(ctx, domain.Message{ID: "m2", ChatID: "c1", SenderID: "u2", ReceiverID: "u1", AttachmentRef: "obj", SentAt: created})
	if err != nil {
		t.Fatalf("append stale: %v", err)
	}
	if !stale.SentAt.After(first.SentAt) {
		t.Fatalf("expected stale timestamp to be moved after %v, got %v", first.SentAt, stale.SentAt)
	}
	got, _, _ := s.GetChat(ctx, "c1")
	if got.LastMessagePreview != domain.PreviewAttachment || !got.LastMessageAt.Equal(stale.SentAt) {
		t.Fatalf("unexpected summary cache: %+v", got)
	}
	if _, err := s.AppendMessage(ctx, domain.Message{ID: "m3", ChatID: "missing", SentAt: created}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreMarkReadOnlyTouchesReceiver(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	chat := domain.Chat{ID: "c1", Kind: domain.ChatDirect, Direct: &domain.DirectChat{MemberA: "u1", MemberB: "u2"}, LastMessageAt: now}
	if err := s.CreateDirectChat(ctx, chat); err != nil {
		t.Fatalf("create direct: %v", err)
	}
	for i, sender := range []string{"u1", "u2"} {
		receiver := "u2"
		if sender == "u2" {
			receiver = "u1"
		}
		msg := domain.Message{ID: []string{"m1", "m2"}[i], ChatID: "c1", SenderID: sender, ReceiverID: receiver, Text: "x", SentAt: now.Add(time.Duration(i+1) * time.Second)}
		if _, err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	n, err := s.MarkRead(ctx, "c1", "u2", []string{"m1", "m2"})
	if err != nil || n != 1 {
		t.Fatalf("expected one message marked, got %d err=%v", n, err)
	}
	n, err = s.MarkRead(ctx, "c1", "u2", []string{"m1", "m2"})
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent mark, got %d err=%v", n, err)
	}
	msgs, _ := s.ListMessages(ctx, "c1")
	if !msgs[0].Read || msgs[1].Read {
		t.Fatalf("unexpected read flags: %+v", msgs)
	}
}

func TestMemoryStoreReadCursorNeverMovesBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedIdentity(t, s, "u1", "alice")
	now := time.Now().UTC()
	group := domain.Chat{ID: "g1", Kind: domain.ChatGroup, Group: &domain.GroupChat{Name: "team", OwnerID: "u1"}, LastMessageAt: now}
	if err := s.CreateGroupChat(ctx, group, []domain.Membership{{UserID: "u1", JoinedAt: now, LastReadAt: now}}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	later := now.Add(time.Minute)
	if err := s.AdvanceReadCursor(ctx, "g1", "u1", later); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := s.AdvanceReadCursor(ctx, "g1", "u1", now); err != nil {
		t.Fatalf("advance back: %v", err)
	}
	if got := s.memberships["g1"]["u1"].LastReadAt; !got.Equal(later) {
		t.Fatalf("expected cursor %v, got %v", later, got)
	}
}
