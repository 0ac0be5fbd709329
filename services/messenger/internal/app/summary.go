package app

import (
	"fmt"
	"strings"

	"messenger/pkg/domain"
)

const (
	previewMaxRunes = 35
	previewEllipsis = "..."
	unknownPeerName = "Unknown user"
)

// ProjectSummaries turns chat entries into chat list rows, keeping their order.
func ProjectSummaries(entries []domain.ChatEntry) []domain.ChatSummary {
	out := make([]domain.ChatSummary, 0, len(entries))
	for _, entry := range entries {
		out = append(out, ProjectSummary(entry))
	}
	return out
}

// ProjectSummary renders one chat list row.
func ProjectSummary(entry domain.ChatEntry) domain.ChatSummary {
	chat := entry.Chat
	summary := domain.ChatSummary{
		ID:            chat.ID,
		Kind:          chat.Kind,
		IsGroup:       chat.Kind == domain.ChatGroup,
		LastMessage:   TruncatePreview(chat.LastMessagePreview),
		LastMessageAt: chat.LastMessageAt,
		Unread:        entry.Unread,
	}
	switch chat.Kind {
	case domain.ChatDirect:
		summary.Name = unknownPeerName
		if entry.Peer != nil {
			summary.Name = entry.Peer.DisplayName
			summary.Avatar = entry.Peer.AvatarRef
			summary.Status = entry.Peer.StatusText
		}
	case domain.ChatGroup:
		if chat.Group != nil {
			summary.Name = chat.Group.Name
			summary.Avatar = chat.Group.AvatarRef
		}
		summary.Status = memberCountText(entry.MemberCount)
	}
	return summary
}

// TruncatePreview bounds a preview to 35 runes plus an ellipsis. Empty
// previews fall back to the chat created placeholder.
func TruncatePreview(preview string) string {
	if strings.TrimSpace(preview) == "" {
		return domain.PreviewChatCreated
	}
	runes := []rune(preview)
	if len(runes) <= previewMaxRunes {
		return preview
	}
	return string(runes[:previewMaxRunes]) + previewEllipsis
}

func memberCountText(n int) string {
	if n == 1 {
		return "1 member"
	}
	return fmt.Sprintf("%d members", n)
}
