package http

import (
	"encoding/json"

	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/proto"
	"github.com/vovakirdan/flowchat-server/internal/store"
)

// inboundToCommand decodes an inbound frame. A nil command comes with the
// error the client should see; the connection stays open either way.
func inboundToCommand(inbound proto.Inbound) (core.Command, *core.CoreError) {
	switch inbound.Event {
	case proto.EventChatJoin, proto.EventChatLeave, proto.EventTypingStart, proto.EventTypingStop:
		var data proto.ChatIDData
		if err := decode(inbound.Data, &data); err != nil {
			return nil, err
		}
		switch inbound.Event {
		case proto.EventChatJoin:
			return core.JoinChat{ChatID: data.ChatID}, nil
		case proto.EventChatLeave:
			return core.LeaveChat{ChatID: data.ChatID}, nil
		case proto.EventTypingStart:
			return core.TypingStart{ChatID: data.ChatID}, nil
		default:
			return core.TypingStop{ChatID: data.ChatID}, nil
		}
	case proto.EventMessageSend:
		var data proto.SendMessageData
		if err := decode(inbound.Data, &data); err != nil {
			return nil, err
		}
		return core.SendMessage{
			ChatID:  data.ChatID,
			Content: data.Content,
			Type:    store.MessageType(data.Type),
			FileURL: data.FileURL,
			ReplyTo: data.ReplyTo,
		}, nil
	case proto.EventMessageRead:
		var data proto.ReadData
		if err := decode(inbound.Data, &data); err != nil {
			return nil, err
		}
		return core.ReadMessage{MessageID: data.MessageID, ChatID: data.ChatID}, nil
	default:
		return nil, core.NewError(core.ErrCodeBadRequest, "unknown event "+inbound.Event)
	}
}

func decode(raw json.RawMessage, v any) *core.CoreError {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return core.NewError(core.ErrCodeBadRequest, "invalid payload")
	}
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Event: event.Kind.String()}
	switch event.Kind {
	case core.EventMessageReceive:
		var sender core.Sender
		if event.Sender != nil {
			sender = *event.Sender
		}
		out.Data = proto.MessageReceive{Message: messageToProto(event.Message, sender)}
	case core.EventMessageError:
		out.Data = proto.MessageError{Error: event.Reason}
	case core.EventTypingUpdate:
		out.Data = proto.TypingUpdate{
			ChatID:   event.Typing.ChatID,
			UserID:   event.Typing.UserID,
			Username: event.Typing.Username,
			IsTyping: event.Typing.IsTyping,
		}
	case core.EventMessageRead:
		out.Data = proto.MessageRead{
			MessageID: event.Read.MessageID,
			UserID:    event.Read.UserID,
			ReadAt:    event.Read.ReadAt,
		}
	case core.EventUserOnline, core.EventUserOffline:
		out.Data = proto.UserPresence{UserID: event.UserID}
	case core.EventChatNew:
		out.Data = proto.ChatNew{Chat: chatToProto(event.Chat, nil)}
	case core.EventChatDeleted:
		out.Data = proto.ChatDeleted{ChatID: event.Chat.ID}
	case core.EventMessageDeleted:
		out.Data = proto.MessageDeleted{MessageID: event.Deletion.MessageID, ChatID: event.Deletion.ChatID}
	case core.EventStatusNew:
		var author core.Sender
		if event.Sender != nil {
			author = *event.Sender
		}
		out.Data = proto.StatusNew{Status: proto.StatusSummary{
			ID:        event.Status.ID,
			User:      senderToProto(author),
			Type:      string(event.Status.Type),
			CreatedAt: event.Status.CreatedAt,
			ExpiresAt: event.Status.ExpiresAt,
		}}
	case core.EventStatusViewed:
		out.Data = proto.StatusViewed{
			StatusID: event.StatusView.StatusID,
			Viewer:   senderToProto(event.StatusView.Viewer),
			ViewedAt: event.StatusView.ViewedAt,
		}
	case core.EventError:
		if event.Error == nil {
			out.Data = proto.Error{Code: "unknown", Message: "unknown error", Event: event.Command}
			break
		}
		out.Data = proto.Error{Code: event.Error.Code, Message: event.Error.Message, Event: event.Command}
	}
	return out
}

func senderToProto(s core.Sender) proto.Sender {
	return proto.Sender{ID: s.ID, Username: s.Username, Email: s.Email}
}

func messageToProto(msg *store.Message, sender core.Sender) proto.Message {
	out := proto.Message{
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		Sender:      senderToProto(sender),
		Content:     msg.Content,
		Type:        string(msg.Type),
		FileURL:     msg.FileURL,
		ReplyTo:     msg.ReplyTo,
		IsEncrypted: msg.IsEncrypted,
		IsDeleted:   msg.IsDeleted,
		DeliveredTo: make([]proto.Delivery, 0, len(msg.DeliveredTo)),
		ReadBy:      make([]proto.Read, 0, len(msg.ReadBy)),
		CreatedAt:   msg.CreatedAt,
		UpdatedAt:   msg.UpdatedAt,
	}
	if out.Sender.ID == "" {
		out.Sender.ID = msg.SenderID
	}
	for _, d := range msg.DeliveredTo {
		out.DeliveredTo = append(out.DeliveredTo, proto.Delivery{UserID: d.UserID, DeliveredAt: d.DeliveredAt})
	}
	for _, r := range msg.ReadBy {
		out.ReadBy = append(out.ReadBy, proto.Read{UserID: r.UserID, ReadAt: r.ReadAt})
	}
	return out
}

func chatToProto(chat *store.Chat, online map[string]bool) proto.Chat {
	return proto.Chat{
		ID:              chat.ID,
		Participants:    chat.Participants,
		IsGroup:         chat.IsGroup,
		GroupName:       chat.GroupName,
		GroupAdmin:      chat.GroupAdmin,
		LastMessage:     chat.LastMessageID,
		LastMessageTime: chat.LastMessageTime,
		Online:          online,
		CreatedAt:       chat.CreatedAt,
		UpdatedAt:       chat.UpdatedAt,
	}
}
