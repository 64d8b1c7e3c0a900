package core

import (
	"time"

	"github.com/vovakirdan/flowchat-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessageReceive carries a newly persisted message to a chat channel.
	EventMessageReceive EventKind = iota
	// EventMessageError tells the sender that their message could not be sent.
	EventMessageError
	// EventTypingUpdate announces a typing start or stop.
	EventTypingUpdate
	// EventMessageRead announces a new read receipt.
	EventMessageRead
	// EventUserOnline announces that a user's first connection opened.
	EventUserOnline
	// EventUserOffline announces that a user's last connection closed.
	EventUserOffline
	// EventChatNew tells participants about a chat created outside the socket.
	EventChatNew
	// EventError notifies a client about a rejected command.
	EventError
	// EventMessageDeleted tells a chat that a message was deleted for everyone.
	EventMessageDeleted
	// EventChatDeleted tells participants that a chat is gone.
	EventChatDeleted
	// EventStatusNew tells friends about a new status.
	EventStatusNew
	// EventStatusViewed tells a status author who viewed it.
	EventStatusViewed
)

var eventNames = [...]string{
	EventMessageReceive: "message:receive",
	EventMessageError:   "message:error",
	EventTypingUpdate:   "typing:update",
	EventMessageRead:    "message:read",
	EventUserOnline:     "user:online",
	EventUserOffline:    "user:offline",
	EventChatNew:        "chat:new",
	EventError:          "error",
	EventMessageDeleted: "message:deleted",
	EventChatDeleted:    "chat:deleted",
	EventStatusNew:      "status:new",
	EventStatusViewed:   "status:viewed",
}

// String returns the wire name of the event.
func (k EventKind) String() string {
	if int(k) < 0 || int(k) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[k]
}

// Sender is the author annotation attached to delivered messages.
type Sender struct {
	ID       string
	Username string
	Email    string
}

// Typing is the payload of EventTypingUpdate.
type Typing struct {
	ChatID   string
	UserID   string
	Username string
	IsTyping bool
}

// ReadReceipt is the payload of EventMessageRead.
type ReadReceipt struct {
	MessageID string
	ChatID    string
	UserID    string
	ReadAt    time.Time
}

// MessageDeletion is the payload of EventMessageDeleted.
type MessageDeletion struct {
	MessageID string
	ChatID    string
}

// StatusView is the payload of EventStatusViewed.
type StatusView struct {
	StatusID string
	Viewer   Sender
	ViewedAt time.Time
}

// Event is sent to clients to describe what happened in the system.
// Exactly one payload field is set, according to Kind.
type Event struct {
	Kind EventKind
	Room string

	Message    *store.Message   // EventMessageReceive
	Sender     *Sender          // EventMessageReceive, EventStatusNew
	Typing     *Typing          // EventTypingUpdate
	Read       *ReadReceipt     // EventMessageRead
	UserID     string           // EventUserOnline, EventUserOffline
	Chat       *store.Chat      // EventChatNew, EventChatDeleted
	Reason     string           // EventMessageError
	Deletion   *MessageDeletion // EventMessageDeleted
	Status     *store.Status    // EventStatusNew
	StatusView *StatusView      // EventStatusViewed

	Error   *CoreError // EventError
	Command string     // EventError: name of the rejected inbound event
}

// MessageReceived builds an EventMessageReceive.
func MessageReceived(msg *store.Message, sender Sender) *Event {
	return &Event{Kind: EventMessageReceive, Room: ChatChannel(msg.ChatID), Message: msg, Sender: &sender}
}

// MessageFailed builds an EventMessageError.
func MessageFailed(reason string) *Event {
	return &Event{Kind: EventMessageError, Reason: reason}
}

// TypingChanged builds an EventTypingUpdate.
func TypingChanged(t Typing) *Event {
	return &Event{Kind: EventTypingUpdate, Room: ChatChannel(t.ChatID), Typing: &t}
}

// MessageRead builds an EventMessageRead.
func MessageRead(r ReadReceipt) *Event {
	return &Event{Kind: EventMessageRead, Room: ChatChannel(r.ChatID), Read: &r}
}

// UserOnline builds an EventUserOnline.
func UserOnline(userID string) *Event {
	return &Event{Kind: EventUserOnline, UserID: userID}
}

// UserOffline builds an EventUserOffline.
func UserOffline(userID string) *Event {
	return &Event{Kind: EventUserOffline, UserID: userID}
}

// ChatCreated builds an EventChatNew.
func ChatCreated(chat *store.Chat) *Event {
	return &Event{Kind: EventChatNew, Chat: chat}
}

// MessageDeleted builds an EventMessageDeleted.
func MessageDeleted(chatID, messageID string) *Event {
	return &Event{Kind: EventMessageDeleted, Room: ChatChannel(chatID), Deletion: &MessageDeletion{MessageID: messageID, ChatID: chatID}}
}

// ChatDeleted builds an EventChatDeleted.
func ChatDeleted(chat *store.Chat) *Event {
	return &Event{Kind: EventChatDeleted, Chat: chat}
}

// StatusPosted builds an EventStatusNew.
func StatusPosted(st *store.Status, author Sender) *Event {
	return &Event{Kind: EventStatusNew, Status: st, Sender: &author}
}

// StatusViewed builds an EventStatusViewed.
func StatusViewed(v StatusView) *Event {
	return &Event{Kind: EventStatusViewed, StatusView: &v}
}

// ErrorEvent builds an EventError for the named inbound event.
func ErrorEvent(command string, err *CoreError) *Event {
	return &Event{Kind: EventError, Command: command, Error: err}
}
