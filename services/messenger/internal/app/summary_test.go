package app

import (
	"strings"
	"testing"
	"time"

	"messenger/pkg/domain"
)

func TestTruncatePreview(t *testing.T) {
	exact := strings.Repeat("a", 35)
	cases := []struct {
		in, want string
	}{
		{"", domain.PreviewChatCreated},
		{"   ", domain.PreviewChatCreated},
		{"hi", "hi"},
		{exact, exact},
		{exact + "b", exact + "..."},
		{strings.Repeat("é", 40), strings.Repeat("é", 35) + "..."},
	}
	for _, tc := range cases {
		if got := TruncatePreview(tc.in); got != tc.want {
			t.Fatalf("TruncatePreview(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProjectSummary(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	peer := &domain.Identity{ID: "u2", DisplayName: "Bob", AvatarRef: "/api/files/uploads/u2/a.png", StatusText: "away"}
	direct := ProjectSummary(domain.ChatEntry{
		Chat: domain.Chat{
			ID:                 "c1",
			Kind:               domain.ChatDirect,
			Direct:             &domain.DirectChat{MemberA: "u1", MemberB: "u2"},
			LastMessagePreview: "see you tomorrow at the usual place, bring the charts",
			LastMessageAt:      at,
		},
		Peer:        peer,
		MemberCount: 2,
		Unread:      3,
	})
	if direct.Name != "Bob" || direct.Avatar != peer.AvatarRef || direct.Status != "away" || direct.IsGroup {
		t.Fatalf("unexpected direct summary: %+v", direct)
	}
	if direct.LastMessage != "see you tomorrow at the usual place..." || direct.Unread != 3 || !direct.LastMessageAt.Equal(at) {
		t.Fatalf("unexpected direct preview: %+v", direct)
	}

	group := ProjectSummary(domain.ChatEntry{
		Chat: domain.Chat{
			ID:    "g1",
			Kind:  domain.ChatGroup,
			Group: &domain.GroupChat{Name: "Team", OwnerID: "u1"},
		},
		MemberCount: 1,
	})
	if group.Name != "Team" || group.Avatar != "" || !group.IsGroup || group.Status != "1 member" {
		t.Fatalf("unexpected group summary: %+v", group)
	}
	if group.LastMessage != domain.PreviewChatCreated {
		t.Fatalf("expected chat created fallback, got %q", group.LastMessage)
	}

	orphan := ProjectSummary(domain.ChatEntry{Chat: domain.Chat{ID: "c2", Kind: domain.ChatDirect}})
	if orphan.Name != unknownPeerName {
		t.Fatalf("expected placeholder name, got %q", orphan.Name)
	}
}
