package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"messenger/pkg/domain"
	"messenger/pkg/storage"
	"messenger/pkg/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// tickingClock advances by one millisecond on every reading.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	return newTestAppWithStore(t, mem), mem
}

func newTestAppWithStore(t *testing.T, s store.Store) *App {
	t.Helper()
	sessions, err := store.NewJWTSessionStore(testSecret, time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	a, err := New(Config{
		Store:    s,
		Sessions: sessions,
		Objects:  storage.NewMemoryStore(),
		Now:      (&tickingClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}).Now,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func register(t *testing.T, a *App, handle string) (domain.Identity, string) {
	t.Helper()
	identity, token, err := a.Register(context.Background(), handle+" name", handle, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", handle, err)
	}
	return identity, token
}

func disableInvites(t *testing.T, a *App, userID string) {
	t.Helper()
	off := false
	if _, _, err := a.UpdateProfile(context.Background(), userID, ProfileUpdate{AllowGroupInvites: &off}); err != nil {
		t.Fatalf("disable invites: %v", err)
	}
}

func summaryFor(t *testing.T, a *App, userID, chatID string) domain.ChatSummary {
	t.Helper()
	summaries, err := a.ListChatsFor(context.Background(), userID)
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	for _, s := range summaries {
		if s.ID == chatID {
			return s
		}
	}
	t.Fatalf("chat %s not listed for %s: %+v", chatID, userID, summaries)
	return domain.ChatSummary{}
}

func TestNewDefaultsToInMemoryCollaborators(t *testing.T) {
	a, err := New(Config{JWTSecret: testSecret})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, ok := a.store.(*store.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", a.store)
	}
	if _, ok := a.uploads.Objects().(*storage.MemoryStore); !ok {
		t.Fatalf("expected memory object store, got %T", a.uploads.Objects())
	}
	if err := a.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewRejectsWeakSecret(t *testing.T) {
	if _, err := New(Config{JWTSecret: "short"}); err == nil {
		t.Fatalf("expected short jwt secret to fail")
	}
}

func TestScenarioDirectChatReadFlow(t *testing.T) {
	ctx := context.Background()
	a, mem := newTestApp(t)
	alice, _ := register(t, a, "alice")
	bob, _ := register(t, a, "bob")

	chat, created, err := a.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	if err != nil || !created {
		t.Fatalf("find or create: created=%v err=%v", created, err)
	}
	again, created, err := a.FindOrCreateDirect(ctx, bob.ID, alice.ID)
	if err != nil || created || again.ID != chat.ID {
		t.Fatalf("expected existing chat %s, got %s created=%v err=%v", chat.ID, again.ID, created, err)
	}

	msg, err := a.SendMessage(ctx, chat.ID, alice.ID, "hi", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ReceiverID != bob.ID || msg.Read {
		t.Fatalf("unexpected message: %+v", msg)
	}

	if got := summaryFor(t, a, bob.ID, chat.ID); got.Unread != 1 || got.LastMessage != "hi" {
		t.Fatalf("bob before read: %+v", got)
	}

	msgs, err := a.ListMessages(ctx, chat.ID, bob.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID || msgs[0].Read {
		t.Fatalf("expected pre-read snapshot, got %+v", msgs)
	}
	stored, _ := mem.ListMessages(ctx, chat.ID)
	if !stored[0].Read {
		t.Fatalf("expected message to be marked read after listing")
	}

	if got := summaryFor(t, a, alice.ID, chat.ID); got.Unread != 0 || got.LastMessage != "hi" || got.Name != bob.DisplayName {
		t.Fatalf("alice summary: %+v", got)
	}
	if got := summaryFor(t, a, bob.ID, chat.ID); got.Unread != 0 || got.Name != alice.DisplayName {
		t.Fatalf("bob after read: %+v", got)
	}
}
