package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventChatJoin    = "chat:join"
	EventChatLeave   = "chat:leave"
	EventMessageSend = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventMessageRead = "message:read"
)

// ChatIDData carries a chat id. Clients send either a bare JSON string or
// an object with a chatId field.
type ChatIDData struct {
	ChatID string `json:"chatId"`
}

// UnmarshalJSON accepts "id" as well as {"chatId": "id"}.
func (d *ChatIDData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &d.ChatID)
	}
	if b[0] != '{' {
		return errors.New("chat id must be a string or an object")
	}
	type plain ChatIDData
	return json.Unmarshal(b, (*plain)(d))
}

// SendMessageData is the payload of message:send.
type SendMessageData struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
	FileURL string `json:"fileUrl,omitempty"`
	ReplyTo string `json:"replyTo,omitempty"`
}

// ReadData is the payload of message:read.
type ReadData struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

// Sender is the enriched author of a delivered message.
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Delivery is one entry of a message's delivery list.
type Delivery struct {
	UserID      string    `json:"userId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// Read is one entry of a message's read list.
type Read struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message is the wire form of a stored message.
type Message struct {
	ID          string     `json:"id"`
	ChatID      string     `json:"chatId"`
	Sender      Sender     `json:"sender"`
	Content     string     `json:"content"`
	Type        string     `json:"type"`
	FileURL     string     `json:"fileUrl,omitempty"`
	ReplyTo     string     `json:"replyTo,omitempty"`
	IsEncrypted bool       `json:"isEncrypted"`
	IsDeleted   bool       `json:"isDeleted"`
	DeliveredTo []Delivery `json:"deliveredTo"`
	ReadBy      []Read     `json:"readBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Chat is the wire form of a chat. Online is only filled by REST listings.
type Chat struct {
	ID              string          `json:"id"`
	Participants    []string        `json:"participants"`
	IsGroup         bool            `json:"isGroup"`
	GroupName       string          `json:"groupName,omitempty"`
	GroupAdmin      string          `json:"groupAdmin,omitempty"`
	LastMessage     string          `json:"lastMessage,omitempty"`
	LastMessageTime *time.Time      `json:"lastMessageTime,omitempty"`
	Online          map[string]bool `json:"online,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// MessageReceive is the payload of message:receive.
type MessageReceive struct {
	Message Message `json:"message"`
}

// MessageError is the payload of message:error.
type MessageError struct {
	Error string `json:"error"`
}

// TypingUpdate is the payload of typing:update.
type TypingUpdate struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// MessageRead is the outbound payload of message:read.
type MessageRead struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

// UserPresence is the payload of user:online and user:offline.
type UserPresence struct {
	UserID string `json:"userId"`
}

// ChatNew is the payload of chat:new.
type ChatNew struct {
	Chat Chat `json:"chat"`
}

// MessageDeleted is the payload of message:deleted.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

// ChatDeleted is the payload of chat:deleted.
type ChatDeleted struct {
	ChatID string `json:"chatId"`
}

// StatusSummary is the short form of a status pushed with status:new.
type StatusSummary struct {
	ID        string    `json:"id"`
	User      Sender    `json:"user"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StatusNew is the payload of status:new.
type StatusNew struct {
	Status StatusSummary `json:"status"`
}

// StatusViewed is the payload of status:viewed.
type StatusViewed struct {
	StatusID string    `json:"statusId"`
	Viewer   Sender    `json:"viewer"`
	ViewedAt time.Time `json:"viewedAt"`
}

// Error describes a rejected inbound event.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}
