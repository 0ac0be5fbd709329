package app

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"messenger/internal/util"
	"messenger/pkg/domain"
	"messenger/pkg/store"
)

const maxMessageRunes = 4000

// SendMessage appends a message to chatID. At least one of text and
// attachmentRef must be non-blank.
func (a *App) SendMessage(ctx context.Context, chatID, senderID, text, attachmentRef string) (domain.Message, error) {
	attachmentRef = strings.TrimSpace(attachmentRef)
	if strings.TrimSpace(text) == "" {
		text = ""
	}
	if text == "" && attachmentRef == "" {
		return domain.Message{}, validationf("message must have text or an attachment")
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return domain.Message{}, validationf("message must be at most %d characters", maxMessageRunes)
	}
	if err := a.validateRef("attachment", attachmentRef); err != nil {
		return domain.Message{}, err
	}
	chat, err := a.participantChat(ctx, chatID, senderID)
	if err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		ID:            util.NewOrderedID(),
		ChatID:        chat.ID,
		SenderID:      senderID,
		Text:          text,
		AttachmentRef: attachmentRef,
		SentAt:        a.timestamp(),
	}
	if chat.Kind == domain.ChatDirect {
		msg.ReceiverID = chat.Direct.Peer(senderID)
	}
	stored, err := a.store.AppendMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Message{}, ErrChatNotFound
		}
		return domain.Message{}, storageErr("append message", err)
	}
	return stored, nil
}

// ListMessages returns the messages of chatID oldest first, as they were
// before this call, then marks read the ones addressed to requesterID.
// The read marks are committed before ListMessages returns.
func (a *App) ListMessages(ctx context.Context, chatID, requesterID string) ([]domain.Message, error) {
	chat, err := a.participantChat(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	msgs, err := a.store.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	switch chat.Kind {
	case domain.ChatDirect:
		unread := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			if msg.ReceiverID == requesterID && !msg.Read {
				unread = append(unread, msg.ID)
			}
		}
		if len(unread) == 0 {
			break
		}
		marked, err := a.store.MarkRead(ctx, chat.ID, requesterID, unread)
		if err != nil {
			return nil, storageErr("mark messages read", err)
		}
		util.LoggerFromContext(ctx).Debug("messages marked read", "chat_id", chat.ID, "count", marked)
	case domain.ChatGroup:
		last := msgs[len(msgs)-1].SentAt
		if err := a.store.AdvanceReadCursor(ctx, chat.ID, requesterID, last); err != nil {
			return nil, storageErr("advance read cursor", err)
		}
	}
	return msgs, nil
}
