package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// loadChat fetches a chat and checks that c's user takes part in it.
// The returned CoreError is what the client should see; err is for logs.
func (s *Service) loadChat(ctx context.Context, c *core.Client, chatID string) (*store.Chat, *core.CoreError, error) {
	chat, err := call(ctx, s, componentStorage, "get_chat", func(ctx context.Context) (*store.Chat, error) {
		return s.store.GetChat(ctx, chatID)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, core.NewError(core.ErrCodeChatNotFound, reasonChatNotFound), err
	case err != nil:
		return nil, core.NewError(core.ErrCodePersistenceFailure, "storage unavailable"), err
	case !chat.HasParticipant(c.UserID):
		return nil, core.NewError(core.ErrCodeNotParticipant, reasonNotParticipant),
			fmt.Errorf("user %s is not in chat %s", c.UserID, chatID)
	}
	return chat, nil, nil
}

// JoinChat subscribes the connection to a chat it participates in.
func (s *Service) JoinChat(ctx context.Context, c *core.Client, cmd core.JoinChat) error {
	if _, cerr, err := s.loadChat(ctx, c, cmd.ChatID); cerr != nil {
		s.replyError(c, cmd.Name(), cerr)
		return err
	}
	if _, err := s.hub.Join(c, core.ChatChannel(cmd.ChatID)); err != nil {
		return fmt.Errorf("join chat: %w", err)
	}
	return nil
}

// LeaveChat unsubscribes the connection. Leaving a chat never joined is a no-op.
func (s *Service) LeaveChat(_ context.Context, c *core.Client, cmd core.LeaveChat) error {
	if _, err := s.hub.Leave(c, core.ChatChannel(cmd.ChatID)); err != nil {
		return fmt.Errorf("leave chat: %w", err)
	}
	return nil
}

// SendMessage persists a message, moves the chat's last-message pointer, fans
// the message out to the chat channel (sender included) and marks delivery
// for participants that are online right now.
//
// Any failure is reported to the sender alone as message:error. A stored
// message whose delivery marks could not all be written stays as it is.
func (s *Service) SendMessage(ctx context.Context, c *core.Client, cmd core.SendMessage) error {
	chat, cerr, err := s.loadChat(ctx, c, cmd.ChatID)
	if cerr != nil {
		reason := reasonSendFailed
		if cerr.Code != core.ErrCodePersistenceFailure {
			reason = cerr.Message
		}
		s.reply(c, core.MessageFailed(reason))
		return err
	}

	msgType := cmd.Type
	if msgType == "" {
		msgType = store.MessageTypeText
	}
	msg := &store.Message{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		SenderID:  c.UserID,
		Content:   cmd.Content,
		Type:      msgType,
		FileURL:   cmd.FileURL,
		ReplyTo:   cmd.ReplyTo,
		CreatedAt: s.now(),
	}

	if err := callErr(ctx, s, componentStorage, "create_message", func(ctx context.Context) error {
		return s.store.CreateMessage(ctx, msg)
	}); err != nil {
		s.reply(c, core.MessageFailed(reasonSendFailed))
		return fmt.Errorf("create message: %w", err)
	}
	s.metrics.MessagePersisted()

	if err := callErr(ctx, s, componentStorage, "update_last_message", func(ctx context.Context) error {
		return s.store.UpdateLastMessage(ctx, chat.ID, msg.ID, msg.CreatedAt)
	}); err != nil {
		s.reply(c, core.MessageFailed(reasonSendFailed))
		return fmt.Errorf("update last message: %w", err)
	}

	// msg is shared with every recipient from here on and must not be mutated.
	s.broadcast(core.ChatChannel(chat.ID), core.MessageReceived(msg, core.Sender{ID: c.UserID, Username: c.Username, Email: c.Email}), nil)

	if err := s.markDelivered(ctx, chat, msg); err != nil {
		s.reply(c, core.MessageFailed(reasonSendFailed))
		return err
	}
	return nil
}

// markDelivered writes a delivery mark for every participant other than the
// sender who is online at this moment. Presence errors skip the participant.
func (s *Service) markDelivered(ctx context.Context, chat *store.Chat, msg *store.Message) error {
	deliveredAt := s.now()
	for _, participant := range chat.Participants {
		if participant == msg.SenderID {
			continue
		}

		online, err := call(ctx, s, componentPresence, "is_online", func(ctx context.Context) (bool, error) {
			return s.presence.IsOnline(ctx, participant)
		})
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", participant).Str("message_id", msg.ID).Msg("presence lookup failed, skipping delivery mark")
			continue
		}
		if !online {
			continue
		}

		added, err := call(ctx, s, componentStorage, "add_delivery", func(ctx context.Context) (bool, error) {
			return s.store.AddDelivery(ctx, msg.ID, participant, deliveredAt)
		})
		if err != nil {
			return fmt.Errorf("mark delivered to %s: %w", participant, err)
		}
		if added {
			s.metrics.DeliveryMarked()
		}
	}
	return nil
}

// Notify delivers an event to every connection of the given users. It is the
// entry point for broadcasts that originate outside a live connection.
func (s *Service) Notify(userIDs []string, ev *core.Event) error {
	for _, id := range userIDs {
		if err := s.hub.SendUser(id, ev); err != nil {
			return err
		}
	}
	return nil
}
