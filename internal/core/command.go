package core

import (
	"context"

	"github.com/vovakirdan/flowchat-server/internal/store"
)

// Inbound event names.
const (
	CommandJoinChat    = "chat:join"
	CommandLeaveChat   = "chat:leave"
	CommandSendMessage = "message:send"
	CommandTypingStart = "typing:start"
	CommandTypingStop  = "typing:stop"
	CommandReadMessage = "message:read"
)

// CommandHandler executes inbound commands. Adding a command type without a
// matching method here is a compile error in every implementation.
type CommandHandler interface {
	JoinChat(ctx context.Context, c *Client, cmd JoinChat) error
	LeaveChat(ctx context.Context, c *Client, cmd LeaveChat) error
	SendMessage(ctx context.Context, c *Client, cmd SendMessage) error
	TypingStart(ctx context.Context, c *Client, cmd TypingStart) error
	TypingStop(ctx context.Context, c *Client, cmd TypingStop) error
	ReadMessage(ctx context.Context, c *Client, cmd ReadMessage) error
}

// Command is an action requested by a client. The set of implementations is
// closed: only this package can add one.
type Command interface {
	// Name is the inbound event name.
	Name() string
	// Validate rejects malformed payloads with a bad_request CoreError.
	Validate() *CoreError
	// Dispatch calls the handler method for the concrete command.
	Dispatch(ctx context.Context, h CommandHandler, c *Client) error

	sealed()
}

// JoinChat subscribes the connection to a chat channel.
type JoinChat struct{ ChatID string }

// LeaveChat unsubscribes the connection from a chat channel.
type LeaveChat struct{ ChatID string }

// SendMessage persists and fans out a chat message.
type SendMessage struct {
	ChatID  string
	Content string
	Type    store.MessageType
	FileURL string
	ReplyTo string
}

// TypingStart marks the user as typing in a chat.
type TypingStart struct{ ChatID string }

// TypingStop clears the user's typing mark in a chat.
type TypingStop struct{ ChatID string }

// ReadMessage records a read receipt.
type ReadMessage struct {
	MessageID string
	ChatID    string
}

func (JoinChat) Name() string    { return CommandJoinChat }
func (LeaveChat) Name() string   { return CommandLeaveChat }
func (SendMessage) Name() string { return CommandSendMessage }
func (TypingStart) Name() string { return CommandTypingStart }
func (TypingStop) Name() string  { return CommandTypingStop }
func (ReadMessage) Name() string { return CommandReadMessage }

func (JoinChat) sealed()    {}
func (LeaveChat) sealed()   {}
func (SendMessage) sealed() {}
func (TypingStart) sealed() {}
func (TypingStop) sealed()  {}
func (ReadMessage) sealed() {}

func requireChatID(id string) *CoreError {
	if id == "" {
		return badRequest("chatId is required")
	}
	return nil
}

func (c JoinChat) Validate() *CoreError    { return requireChatID(c.ChatID) }
func (c LeaveChat) Validate() *CoreError   { return requireChatID(c.ChatID) }
func (c TypingStart) Validate() *CoreError { return requireChatID(c.ChatID) }
func (c TypingStop) Validate() *CoreError  { return requireChatID(c.ChatID) }

func (c SendMessage) Validate() *CoreError {
	if err := requireChatID(c.ChatID); err != nil {
		return err
	}
	if c.Content == "" && c.FileURL == "" {
		return badRequest("content or fileUrl is required")
	}
	if c.Type != "" && !c.Type.Valid() {
		return badRequest("unknown message type " + string(c.Type))
	}
	return nil
}

func (c ReadMessage) Validate() *CoreError {
	if c.MessageID == "" {
		return badRequest("messageId is required")
	}
	return requireChatID(c.ChatID)
}

func (c JoinChat) Dispatch(ctx context.Context, h CommandHandler, cl *Client) error {
	return h.JoinChat(ctx, cl, c)
}

func (c LeaveChat) Dispatch(ctx context.Context, h CommandHandler, cl *Client) error {
	return h.LeaveChat(ctx, cl, c)
}

func (c SendMessage) Dispatch(ctx context.Context, h CommandHandler, cl *Client) error {
	return h.SendMessage(ctx, cl, c)
}

func (c TypingStart) Dispatch(ctx context.Context, h CommandHandler, cl *Client) error {
	return h.TypingStart(ctx, cl, c)
}

func (c TypingStop) Dispatch(ctx context.Context, h CommandHandler, cl *Client) error {
	return h.TypingStop(ctx, cl, c)
}

func (c ReadMessage) Dispatch(ctx context.Context, h CommandHandler, cl *Client) error {
	return h.ReadMessage(ctx, cl, c)
}
